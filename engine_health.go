package gatekeeper

import (
	"context"
	"time"

	"github.com/lernio/gatekeeper/internal/kvstore"
)

const healthProbeTimeout = 5 * time.Second

// Health pings the relational store and the key-value store. A store that
// was never configured reports "disabled" and does not degrade the result.
func (e *Engine) Health(ctx context.Context) HealthReport {
	report := HealthReport{
		Status:    HealthOK,
		Timestamp: e.clock().UTC(),
		Services: HealthServices{
			PrimaryStore: HealthDisabled,
			CacheStore:   HealthDisabled,
		},
	}
	if e == nil {
		report.Status = HealthDown
		return report
	}
	report.Uptime = e.clock().Sub(e.startedAt).Seconds()

	if e.databasePing != nil {
		report.Services.PrimaryStore = e.probe(ctx, "primary_store", e.databasePing)
	}
	if e.redis != nil {
		report.Services.CacheStore = e.probe(ctx, "cache_store", func(ctx context.Context) error {
			return kvstore.Ping(ctx, e.redis)
		})
	}

	if report.Services.PrimaryStore == HealthDisconnected || report.Services.CacheStore == HealthDisconnected {
		report.Status = HealthDegraded
	}
	return report
}

func (e *Engine) probe(ctx context.Context, name string, ping func(context.Context) error) string {
	ctx, cancel := context.WithTimeout(ctx, healthProbeTimeout)
	defer cancel()

	start := time.Now()
	if err := ping(ctx); err != nil {
		e.warn("health probe failed",
			"service", name,
			"duration", time.Since(start).String(),
			"error", err.Error(),
		)
		return HealthDisconnected
	}
	return HealthConnected
}
