package metrics

import (
	"context"
	"math"
	"net/http"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	coremetrics "github.com/shareprinto/dispatcher/core/metrics"
	"github.com/shareprinto/dispatcher/infra/logger"
)

// InfluxSink writes dispatch events to an InfluxDB instance using the official client.
type InfluxSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	log      logger.Logger
}

// NewInfluxSink creates a new sink configured for the given InfluxDB endpoint.
func NewInfluxSink(url, token, org, bucket string) *InfluxSink {
	base := strings.TrimSuffix(url, "/api/v2/write")
	client := influxdb2.NewClientWithOptions(base, token,
		influxdb2.DefaultOptions().SetHTTPClient(&http.Client{Timeout: 5 * time.Second}))
	return &InfluxSink{
		client:   client,
		writeAPI: client.WriteAPIBlocking(org, bucket),
		log:      logger.New("influx-sink"),
	}
}

// NewInfluxSinkWithFallback tries to ping the InfluxDB instance and
// returns a NopSink if the health check fails.
func NewInfluxSinkWithFallback(url, token, org, bucket string) coremetrics.Sink {
	sink := NewInfluxSink(url, token, org, bucket)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	health, err := sink.client.Health(ctx)
	if err != nil || health.Status != "pass" {
		if err != nil {
			sink.log.Errorf("influx health check error: %v", err)
		} else {
			sink.log.Errorf("influx health status: %s", health.Status)
		}
		sink.client.Close()
		return coremetrics.NopSink{}
	}
	return sink
}

// RecordOfferOutcome writes the offer outcome as a measurement point.
func (s *InfluxSink) RecordOfferOutcome(o coremetrics.OfferOutcome) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("dispatch_offer").
		AddTag("order_id", o.OrderID).
		AddTag("farmer_id", o.FarmerID).
		AddTag("state", o.State.String()).
		AddTag("component", "dispatch_scheduler").
		AddField("position", o.Position).
		AddField("latency_ms", round3(o.Latency.Seconds()*1000)).
		AddField("errors", o.Error).
		SetTime(o.Time)
	return s.writeAPI.WritePoint(ctx, p)
}

// RecordRunOutcome persists the summary of a finished run.
func (s *InfluxSink) RecordRunOutcome(o coremetrics.RunOutcome) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("dispatch_run").
		AddTag("order_id", o.OrderID).
		AddTag("state", o.State).
		AddTag("component", "dispatch_scheduler")
	if o.AssignedFarmerID != "" {
		p = p.AddTag("farmer_id", o.AssignedFarmerID)
	}
	p = p.AddField("candidates_ranked", o.CandidatesRanked).
		AddField("candidates_contacted", o.CandidatesContacted).
		AddField("elapsed_s", round3(o.Elapsed.Seconds())).
		SetTime(o.Time)
	return s.writeAPI.WritePoint(ctx, p)
}

// Close shuts down the underlying client.
func (s *InfluxSink) Close() {
	s.client.Close()
}

func round3(f float64) float64 {
	return math.Round(f*1000) / 1000
}
