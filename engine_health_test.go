package gatekeeper

import (
	"context"
	"errors"
	"testing"
)

func TestHealthReportsEveryStore(t *testing.T) {
	env := newTestEnv(t, nil)

	report := env.engine.Health(context.Background())
	if report.Status != HealthOK || !report.Healthy() {
		t.Fatalf("expected ok, got %+v", report)
	}
	if report.Services.PrimaryStore != HealthConnected || report.Services.CacheStore != HealthConnected {
		t.Fatalf("expected both stores ok, got %+v", report.Services)
	}
	if report.Uptime < 0 || report.Timestamp.IsZero() {
		t.Fatalf("unexpected uptime/timestamp %+v", report)
	}
}

func TestHealthDegradedWhenCacheDown(t *testing.T) {
	env := newTestEnv(t, nil)
	env.mr.Close()

	report := env.engine.Health(context.Background())
	if report.Status != HealthDegraded {
		t.Fatalf("expected degraded, got %s", report.Status)
	}
	if report.Services.CacheStore != HealthDisconnected || report.Services.PrimaryStore != HealthConnected {
		t.Fatalf("unexpected services %+v", report.Services)
	}
}

func TestHealthWithoutDatabase(t *testing.T) {
	engine, _ := newSessionEngine(t, nil)

	report := engine.Health(context.Background())
	if report.Status != HealthOK {
		t.Fatalf("an unconfigured store must not degrade health, got %s", report.Status)
	}
	if report.Services.PrimaryStore != HealthDisabled {
		t.Fatalf("expected primary store disabled, got %s", report.Services.PrimaryStore)
	}
}

func TestHealthDatabaseFailure(t *testing.T) {
	_, rdb := newTestRedis(t)
	engine, err := New().
		WithConfig(testConfig()).
		WithRedis(rdb).
		WithDatabasePing(func(context.Context) error { return errors.New("connection refused") }).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer engine.Close()

	report := engine.Health(context.Background())
	if report.Status != HealthDegraded || report.Services.PrimaryStore != HealthDisconnected {
		t.Fatalf("expected degraded primary store, got %+v", report)
	}
}
