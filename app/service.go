// Package app wires the configured components into a runnable service.
package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/shareprinto/dispatcher/api"
	"github.com/shareprinto/dispatcher/config"
	"github.com/shareprinto/dispatcher/core/availability"
	corechannel "github.com/shareprinto/dispatcher/core/channel"
	"github.com/shareprinto/dispatcher/core/dispatch"
	"github.com/shareprinto/dispatcher/core/dispatch/audit"
	"github.com/shareprinto/dispatcher/core/farmers"
	coremetrics "github.com/shareprinto/dispatcher/core/metrics"
	"github.com/shareprinto/dispatcher/core/ranking"
	"github.com/shareprinto/dispatcher/infra/channel"
	"github.com/shareprinto/dispatcher/infra/logger"
	"github.com/shareprinto/dispatcher/infra/metrics"
	"github.com/shareprinto/dispatcher/internal/eventbus"
)

// Service orchestrates the scheduler, the offer channel and the HTTP surface.
type Service struct {
	Scheduler *dispatch.Scheduler
	Avail     availability.Store
	Registry  farmers.Registry

	httpAddr    string
	httpHandler http.Handler
	httpStop    func()
	channel     corechannel.OfferChannel
	bus         eventbus.Bus
	log         logger.Logger
	promEnabled bool
	promAddr    string
}

// New creates a Service from the configuration.
func New(cfg *config.Config) (*Service, error) {
	logg := logger.New("service")

	ch, err := buildChannel(cfg.Channel)
	if err != nil {
		return nil, fmt.Errorf("offer channel: %w", err)
	}

	var sinks []coremetrics.Sink
	if cfg.Metrics.PrometheusEnabled {
		sink, err := metrics.NewPromSink()
		if err != nil {
			return nil, fmt.Errorf("prom sink: %w", err)
		}
		sinks = append(sinks, sink)
	}
	if cfg.Metrics.InfluxEnabled {
		sink := metrics.NewInfluxSinkWithFallback(cfg.Metrics.InfluxURL, cfg.Metrics.InfluxToken, cfg.Metrics.InfluxOrg, cfg.Metrics.InfluxBucket)
		sinks = append(sinks, sink)
	}
	var sink coremetrics.Sink
	if len(sinks) == 1 {
		sink = sinks[0]
	} else if len(sinks) > 1 {
		sink = metrics.NewMultiSink(sinks...)
	}

	bus := eventbus.New()
	avail := availability.NewMemoryStore()
	registry := farmers.NewMemoryRegistry(cfg.Farmers...)
	resolver := ranking.StaticResolver(cfg.Cities)
	ranker, err := ranking.NewRanker(registry, avail, resolver, cfg.Ranking)
	if err != nil {
		return nil, fmt.Errorf("ranker: %w", err)
	}

	orders := dispatch.NewMemoryOrderStore()
	sched, err := dispatch.NewScheduler(ranker, ch, orders, cfg.Dispatch.OfferTimeout(), sink, bus, logger.New("dispatch"))
	if err != nil {
		return nil, fmt.Errorf("scheduler: %w", err)
	}
	sched.SetDeliveryFailurePolicy(cfg.Dispatch.WaitOnDeliveryFailure)
	sched.SetRetryPolicy(cfg.Dispatch.StoreRetryAttempts, cfg.Dispatch.RetryBackoff())

	var store audit.Store
	if cfg.Logging.Enabled {
		store, err = buildAuditStore(cfg.Logging)
		if err != nil {
			return nil, fmt.Errorf("audit store: %w", err)
		}
		sched.SetAuditStore(store)
	}

	handler, stop := api.NewRouter(sched, avail, registry, api.Config{
		Audit:    store,
		LogToken: cfg.HTTP.LogToken,
		Bus:      bus,
		Logger:   logger.New("api"),
	})

	return &Service{
		Scheduler:   sched,
		Avail:       avail,
		Registry:    registry,
		httpAddr:    cfg.HTTP.Addr,
		httpHandler: handler,
		httpStop:    stop,
		channel:     ch,
		bus:         bus,
		log:         logg,
		promEnabled: cfg.Metrics.PrometheusEnabled,
		promAddr:    cfg.Metrics.PrometheusAddr,
	}, nil
}

// Run starts the HTTP servers and blocks until the context is cancelled.
func (s *Service) Run(ctx context.Context) error {
	if s.promEnabled {
		go func() {
			if err := metrics.StartPromServer(ctx, s.promAddr, s.log); err != nil {
				s.log.Errorf("prom server: %v", err)
			}
		}()
	}

	srv := &http.Server{Addr: s.httpAddr, Handler: s.httpHandler}
	errCh := make(chan error, 1)
	go func() {
		s.log.Infof("api listening on %s", s.httpAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// Close releases resources held by the service.
func (s *Service) Close() error {
	s.httpStop()
	if c, ok := s.channel.(*channel.MQTTChannel); ok {
		c.Close()
	}
	return s.Scheduler.Close()
}

func buildChannel(cfg config.ChannelConfig) (corechannel.OfferChannel, error) {
	switch cfg.Mode {
	case "mock":
		return channel.NewMockChannel(), nil
	default:
		return channel.NewMQTTChannel(cfg.MQTT)
	}
}

func buildAuditStore(cfg config.LoggingConfig) (audit.Store, error) {
	switch cfg.Backend {
	case "sqlite":
		return audit.NewSQLiteStore(cfg.Path)
	default:
		if cfg.MaxSizeMB > 0 {
			return audit.NewRotatingJSONLStore(cfg.Path, cfg.MaxSizeMB, cfg.MaxBackups, cfg.MaxAgeDays)
		}
		return audit.NewJSONLStore(cfg.Path)
	}
}
