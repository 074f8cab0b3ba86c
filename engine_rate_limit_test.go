package gatekeeper

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestConsumeRateLimitFixedWindow(t *testing.T) {
	engine, fastForward := newSessionEngine(t, nil)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		d, err := engine.ConsumeRateLimit(ctx, "203.0.113.9", PolicyAuth)
		if err != nil {
			t.Fatalf("consume %d failed: %v", i, err)
		}
		if !d.Allowed {
			t.Fatalf("consume %d: expected allowed", i)
		}
		if d.Remaining != 4-i {
			t.Fatalf("consume %d: expected remaining %d, got %d", i, 4-i, d.Remaining)
		}
	}

	d, err := engine.ConsumeRateLimit(ctx, "203.0.113.9", PolicyAuth)
	if err != nil {
		t.Fatalf("consume failed: %v", err)
	}
	if d.Allowed {
		t.Fatal("sixth auth attempt must be denied")
	}
	if d.Limit != 5 || d.Remaining != 0 {
		t.Fatalf("unexpected decision %+v", d)
	}
	if d.ResetAt.IsZero() {
		t.Fatal("denied decision must carry ResetAt")
	}

	fastForward(5*time.Minute + time.Second)

	d, err = engine.ConsumeRateLimit(ctx, "203.0.113.9", PolicyAuth)
	if err != nil {
		t.Fatalf("consume after window failed: %v", err)
	}
	if !d.Allowed {
		t.Fatal("expected a fresh window after expiry")
	}

	snap := engine.MetricsSnapshot()
	if snap.Counters[MetricRateLimitDenied] != 1 {
		t.Fatalf("expected 1 denial, got %d", snap.Counters[MetricRateLimitDenied])
	}
	if snap.Counters[MetricRateLimitAllowed] != 6 {
		t.Fatalf("expected 6 allowed, got %d", snap.Counters[MetricRateLimitAllowed])
	}
}

func TestConsumeRateLimitKeysArePerPolicyAndClient(t *testing.T) {
	engine, _ := newSessionEngine(t, func(c *Config) {
		c.RateLimit.Rules[PolicyStrict] = RateLimitRule{Max: 1, Window: time.Minute}
	})
	ctx := context.Background()

	if d, _ := engine.ConsumeRateLimit(ctx, "a", PolicyStrict); !d.Allowed {
		t.Fatal("first strict call for a should pass")
	}
	if d, _ := engine.ConsumeRateLimit(ctx, "a", PolicyStrict); d.Allowed {
		t.Fatal("second strict call for a should be denied")
	}
	if d, _ := engine.ConsumeRateLimit(ctx, "b", PolicyStrict); !d.Allowed {
		t.Fatal("client b has its own counter")
	}
	if d, _ := engine.ConsumeRateLimit(ctx, "a", PolicyDefault); !d.Allowed {
		t.Fatal("default policy has its own counter")
	}
}

func TestConsumeRateLimitFallsBackToContextIP(t *testing.T) {
	engine, _ := newSessionEngine(t, func(c *Config) {
		c.RateLimit.Rules[PolicyStrict] = RateLimitRule{Max: 1, Window: time.Minute}
	})
	ctx := WithClientIP(context.Background(), "192.0.2.1")

	if d, _ := engine.ConsumeRateLimit(ctx, "", PolicyStrict); !d.Allowed {
		t.Fatal("first call should pass")
	}
	if d, _ := engine.ConsumeRateLimit(ctx, "192.0.2.1", PolicyStrict); d.Allowed {
		t.Fatal("empty key must count against the context IP")
	}
}

func TestResetRateLimit(t *testing.T) {
	engine, _ := newSessionEngine(t, func(c *Config) {
		c.RateLimit.Rules[PolicyStrict] = RateLimitRule{Max: 1, Window: time.Hour}
	})
	ctx := context.Background()

	_, _ = engine.ConsumeRateLimit(ctx, "c", PolicyStrict)
	if d, _ := engine.ConsumeRateLimit(ctx, "c", PolicyStrict); d.Allowed {
		t.Fatal("expected denial before reset")
	}
	if err := engine.ResetRateLimit(ctx, "c", PolicyStrict); err != nil {
		t.Fatalf("ResetRateLimit failed: %v", err)
	}
	if d, _ := engine.ConsumeRateLimit(ctx, "c", PolicyStrict); !d.Allowed {
		t.Fatal("expected allowance after reset")
	}
}

func TestConsumeRateLimitUnknownPolicy(t *testing.T) {
	engine, _ := newSessionEngine(t, nil)

	_, err := engine.ConsumeRateLimit(context.Background(), "x", RateLimitPolicy("burst"))
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestConsumeRateLimitDisabled(t *testing.T) {
	engine, _ := newSessionEngine(t, func(c *Config) { c.RateLimit.Enabled = false })

	for i := 0; i < 20; i++ {
		d, err := engine.ConsumeRateLimit(context.Background(), "x", PolicyAuth)
		if err != nil || !d.Allowed {
			t.Fatalf("disabled limiter must allow, d=%+v err=%v", d, err)
		}
	}
}

func TestConsumeRateLimitStoreOutage(t *testing.T) {
	for _, failOpen := range []bool{true, false} {
		mr, rdb := newTestRedis(t)
		cfg := testConfig()
		cfg.RateLimit.FailOpen = failOpen
		engine, err := New().WithConfig(cfg).WithRedis(rdb).Build()
		if err != nil {
			t.Fatalf("Build failed: %v", err)
		}
		mr.Close()

		d, err := engine.ConsumeRateLimit(context.Background(), "x", PolicyDefault)
		if failOpen {
			if err != nil || !d.Allowed {
				t.Fatalf("fail-open: expected allowed, d=%+v err=%v", d, err)
			}
		} else if !errors.Is(err, ErrStoreUnavailable) {
			t.Fatalf("fail-closed: expected ErrStoreUnavailable, got %v", err)
		}
		if got := engine.MetricsSnapshot().Counters[MetricRateLimitStoreError]; got != 1 {
			t.Fatalf("expected store error metric, got %d", got)
		}
		engine.Close()
	}
}
