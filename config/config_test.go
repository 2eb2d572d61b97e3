package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/shareprinto/dispatcher/core/ranking"
)

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	data := `http:
  addr: ":8088"
  log_token: "secret"
channel:
  mode: "mqtt"
  mqtt:
    broker: "tcp://localhost:1883"
    client_id: "dispatcher"
    username: "user"
    password: "pass"
    topic_prefix: "shareprinto/farmers"
dispatch:
  offer_timeout_seconds: 20
  wait_on_delivery_failure: false
ranking:
  rating_weight: 2
  distance_penalty_per_km: 0.1
  availability_bonus: 0.5
metrics:
  prometheus_enabled: true
  prometheus_addr: ":9091"
logging:
  enabled: true
  backend: "sqlite"
  path: "runs.db"
cities:
  Paris:
    lat: 48.8566
    lon: 2.3522
farmers:
  - id: "f1"
    name: "Anna"
    city: "Paris"
    rating: 4.5
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load error: %v", err)
	}
	checks := []struct {
		name string
		got  any
		want any
	}{
		{"http.addr", cfg.HTTP.Addr, ":8088"},
		{"http.log_token", cfg.HTTP.LogToken, "secret"},
		{"channel.mode", cfg.Channel.Mode, "mqtt"},
		{"broker", cfg.Channel.MQTT.Broker, "tcp://localhost:1883"},
		{"client_id", cfg.Channel.MQTT.ClientID, "dispatcher"},
		{"topic_prefix", cfg.Channel.MQTT.TopicPrefix, "shareprinto/farmers"},
		{"offer_timeout_seconds", cfg.Dispatch.OfferTimeoutSeconds, 20},
		{"wait_on_delivery_failure", cfg.Dispatch.WaitOnDeliveryFailure, false},
		{"rating_weight", cfg.Ranking.RatingWeight, 2.0},
		{"prometheus_addr", cfg.Metrics.PrometheusAddr, ":9091"},
		{"logging.backend", cfg.Logging.Backend, "sqlite"},
		{"logging.path", cfg.Logging.Path, "runs.db"},
		{"city", cfg.Cities["Paris"].Lat, 48.8566},
		{"farmer", len(cfg.Farmers) == 1 && cfg.Farmers[0].ID == "f1", true},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s mismatch: %v", c.name, c.got)
		}
	}
}

func TestLoadDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	data := `{"channel": {"mode": "mock"}}`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load error: %v", err)
	}
	if cfg.HTTP.Addr != ":8080" {
		t.Errorf("http addr default: %s", cfg.HTTP.Addr)
	}
	if cfg.Dispatch.OfferTimeoutSeconds != 20 {
		t.Errorf("offer timeout default: %d", cfg.Dispatch.OfferTimeoutSeconds)
	}
	if cfg.Ranking != ranking.DefaultWeights() {
		t.Errorf("ranking defaults not applied: %+v", cfg.Ranking)
	}
	if cfg.Logging.Backend != "jsonl" {
		t.Errorf("logging backend default: %s", cfg.Logging.Backend)
	}
}

func TestLoadRejectsUnknownChannelMode(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	data := "channel:\n  mode: \"carrier-pigeon\"\n"
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for unknown channel mode")
	}
}

func TestLoadRejectsMissingBroker(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	data := "channel:\n  mode: \"mqtt\"\n"
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for missing broker")
	}
}

func TestLoadUnsupportedFormat(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte(""), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}
