package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/lernio/gatekeeper"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	var (
		identities  = flag.Int("identities", 2000, "number of identities to seed with one session each")
		concurrency = flag.Int("concurrency", 128, "number of concurrent workers")
		ops         = flag.Int("ops", 100000, "operations per phase")
		raceIDs     = flag.Int("race-identities", 200, "identities hit by a concurrent login burst")
		burst       = flag.Int("burst", 8, "concurrent logins per race identity")
		clients     = flag.Int("clients", 500, "distinct client IPs in the rate limit phase")
		atomicLimit = flag.Bool("atomic-limit", false, "enforce the session limit with the Lua check-and-set")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
	)
	flag.Parse()

	if *identities <= 0 || *concurrency <= 0 || *ops <= 0 || *burst <= 0 || *clients <= 0 {
		fmt.Fprintln(os.Stderr, "identities, concurrency, ops, burst and clients must be > 0")
		os.Exit(2)
	}

	ctx := context.Background()

	addr := *redisAddr
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}

	var (
		cleanup func()
		client  redis.UniversalClient
	)
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start miniredis: %v\n", err)
			os.Exit(1)
		}
		addr = mr.Addr()
		client = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		cleanup = func() {
			_ = client.Close()
			mr.Close()
		}
		fmt.Printf("using miniredis at %s\n", addr)
	} else {
		client = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		cleanup = func() { _ = client.Close() }
		fmt.Printf("using redis at %s\n", addr)
	}
	defer cleanup()

	cfg := gatekeeper.DefaultConfig()
	cfg.Token.PrivateKey = []byte("loadtest-signing-key-not-secret!")
	cfg.Session.AtomicLimit = *atomicLimit
	cfg.Audit.Enabled = false
	cfg.RateLimit.FailOpen = false

	engine, err := gatekeeper.New().WithConfig(cfg).WithRedis(client).WithLogger(zap.NewNop()).Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "build engine: %v\n", err)
		os.Exit(1)
	}
	defer engine.Close()

	seeded := make([]*gatekeeper.Session, *identities)
	fmt.Printf("seeding %d sessions...\n", *identities)
	startSeed := time.Now()
	for i := range seeded {
		res, err := engine.CreateSession(ctx, gatekeeper.SessionRequest{
			Identity: identity("seed", i),
			Role:     gatekeeper.RoleUser,
			Device:   "loadtest",
			IP:       "127.0.0.1",
		})
		if err != nil || res.LimitExceeded {
			fmt.Fprintf(os.Stderr, "seed failed: %v\n", err)
			os.Exit(1)
		}
		seeded[i] = res.Session
	}
	fmt.Printf("seeded in %s\n", time.Since(startSeed).Round(time.Millisecond))

	validateStats := runPhase(*ops, *concurrency, func(r *rand.Rand, _ int) error {
		s := seeded[r.Intn(len(seeded))]
		ok, err := engine.ValidateSession(ctx, s.SessionID, s.Identity, s.Role)
		if err == nil && !ok {
			return fmt.Errorf("session %s vanished", s.SessionID)
		}
		return err
	})

	touchStats := runPhase(*ops, *concurrency, func(r *rand.Rand, _ int) error {
		s := seeded[r.Intn(len(seeded))]
		return engine.UpdateSessionActivity(ctx, s.SessionID, s.Identity, s.Role)
	})

	var allowed, denied int64
	perClient := make([]int64, *clients)
	rateStats := runPhase(*ops, *concurrency, func(r *rand.Rand, _ int) error {
		c := r.Intn(*clients)
		d, err := engine.ConsumeRateLimit(ctx, fmt.Sprintf("10.0.%d.%d", c/256, c%256), gatekeeper.PolicyDefault)
		if err != nil {
			return err
		}
		if d.Allowed {
			atomic.AddInt64(&allowed, 1)
			atomic.AddInt64(&perClient[c], 1)
		} else {
			atomic.AddInt64(&denied, 1)
		}
		return nil
	})
	rule, _ := engine.RateLimitRule(gatekeeper.PolicyDefault)
	var overBudget int
	for _, n := range perClient {
		if n > int64(rule.Max) {
			overBudget++
		}
	}

	limit := cfg.Session.Limits[gatekeeper.RoleAdmin]
	raceStats := runPhase((*raceIDs)*(*burst), *concurrency, func(_ *rand.Rand, i int) error {
		_, err := engine.CreateSession(ctx, gatekeeper.SessionRequest{
			Identity: identity("race", i%*raceIDs),
			Role:     gatekeeper.RoleAdmin,
			Device:   "loadtest",
		})
		return err
	})
	var overshoot, overIdentities int
	for i := 0; i < *raceIDs; i++ {
		n, err := engine.CountActiveSessions(ctx, identity("race", i), gatekeeper.RoleAdmin)
		if err != nil {
			fmt.Fprintf(os.Stderr, "count failed: %v\n", err)
			os.Exit(1)
		}
		if n > limit {
			overIdentities++
			overshoot += n - limit
		}
	}

	fmt.Println("---- results ----")
	printStats("validate", validateStats)
	printStats("touch", touchStats)
	printStats("ratelimit", rateStats)
	fmt.Printf("ratelimit: allowed=%d denied=%d clients-over-budget=%d (fixed window, max %d per %s)\n",
		allowed, denied, overBudget, rule.Max, rule.Window)
	printStats("create-race", raceStats)
	fmt.Printf("create-race: limit=%d atomic=%t identities-over-limit=%d/%d extra-sessions=%d\n",
		limit, *atomicLimit, overIdentities, *raceIDs, overshoot)
}

func identity(kind string, i int) string {
	return fmt.Sprintf("%s-%d@loadtest.local", kind, i)
}

// runPhase executes ops calls of fn across concurrency workers and records
// the latency of each.
func runPhase(ops, concurrency int, fn func(r *rand.Rand, i int) error) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*7919))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				t0 := time.Now()
				err := fn(r, i)
				d := time.Since(t0)
				if err != nil {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	total := time.Since(start)
	return computeStats(total, latencies, failures)
}

type phaseStats struct {
	total    time.Duration
	ops      int
	failures int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	opsPerS  float64
}

func computeStats(total time.Duration, samples []time.Duration, failures int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:    total,
		ops:      len(samples),
		failures: failures,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
		opsPerS:  float64(len(samples)) / total.Seconds(),
	}
}

func percentile(samples []time.Duration, p int) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	idx := (len(samples) - 1) * p / 100
	return samples[idx]
}

func printStats(name string, s phaseStats) {
	fmt.Printf("%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.failures,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}
