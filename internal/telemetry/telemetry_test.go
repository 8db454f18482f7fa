package telemetry

import (
	"context"
	"testing"
)

func TestSetupNoopWithoutEndpoint(t *testing.T) {
	shutdown, err := Setup(context.Background(), "rhi-test", Config{Enabled: true})
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}

func TestSetupNoopWhenDisabled(t *testing.T) {
	shutdown, err := Setup(context.Background(), "rhi-test", Config{Endpoint: "http://localhost:4318"})
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}

func TestSetupWithEndpoint(t *testing.T) {
	// Non-routable address: nothing is exported before shutdown.
	cfg := Config{Endpoint: "http://192.0.2.1:4318", Enabled: true, Ratio: 0.5}
	shutdown, err := Setup(context.Background(), "rhi-test", cfg)
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("RHI_OTEL_ENDPOINT", "http://collector:4318")
	t.Setenv("RHI_OTEL_SAMPLE_RATIO", "0.25")
	cfg, err := ConfigFromEnv()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Endpoint != "http://collector:4318" || !cfg.Enabled || cfg.Ratio != 0.25 {
		t.Errorf("cfg = %+v", cfg)
	}
}
