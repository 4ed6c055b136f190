// Command throttle-loadtest hammers a small set of identifiers from several
// engines sharing one Redis and checks that no identifier was ever allowed
// more than max-attempts times.
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

	goThrottle "github.com/MrEthical07/goThrottle"
	"github.com/MrEthical07/goThrottle/policy"
	"github.com/MrEthical07/goThrottle/store"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

const loadAction = "loadtest"

func main() {
	var (
		identifiers = flag.Int("identifiers", 64, "number of distinct identifiers")
		engines     = flag.Int("engines", 4, "engines sharing the store, standing in for separate processes")
		concurrency = flag.Int("concurrency", 256, "number of concurrent workers")
		ops         = flag.Int("ops", 200000, "operations per phase (check + status)")
		maxAttempts = flag.Int("max-attempts", 5, "attempts allowed per identifier")
		casRetries  = flag.Int("cas-retries", 64, "compare-and-swap retries per check")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
		namespace   = flag.String("namespace", "loadtest", "key namespace")
	)
	flag.Parse()

	if *identifiers <= 0 || *engines <= 0 || *concurrency <= 0 || *ops <= 0 || *maxAttempts <= 0 {
		fmt.Fprintln(os.Stderr, "identifiers, engines, concurrency, ops, and max-attempts must be > 0")
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
		client = redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs: []string{addr},
		})
		cleanup = func() {
			_ = client.Close()
			mr.Close()
		}
		fmt.Printf("using miniredis at %s\n", addr)
	} else {
		client = redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs: []string{addr},
		})
		cleanup = func() { _ = client.Close() }
		fmt.Printf("using redis at %s\n", addr)
	}
	defer cleanup()

	cfg := goThrottle.DefaultConfig()
	cfg.Namespace = fmt.Sprintf("%s-%d", *namespace, time.Now().UnixNano())
	cfg.Policies = map[string]policy.Policy{
		loadAction: {MaxAttempts: *maxAttempts, Window: time.Hour, BlockDuration: time.Hour},
	}
	cfg.Storage.MaxCASRetries = *casRetries
	cfg.Cleanup.OpportunisticInterval = 0
	cfg.Metrics.EnableLatencyHistograms = true

	pool := make([]*goThrottle.Engine, *engines)
	for i := range pool {
		engine, err := goThrottle.New().
			WithConfig(cfg).
			WithStore(store.NewRedis(client, store.RedisOptions{})).
			Build()
		if err != nil {
			fmt.Fprintf(os.Stderr, "engine build failed: %v\n", err)
			os.Exit(1)
		}
		defer engine.Close()
		pool[i] = engine
	}

	ids := make([]string, *identifiers)
	for i := range ids {
		ids[i] = fmt.Sprintf("user-%d@example.com", i)
	}

	allowed := make([]int64, len(ids))
	checkStats := runCheckPhase(ctx, pool, ids, allowed, *ops, *concurrency)
	statusStats := runStatusPhase(ctx, pool, ids, *ops, *concurrency)

	fmt.Println("---- results ----")
	printStats("check", checkStats)
	printStats("status", statusStats)

	var conflicts, persistFailures uint64
	for _, engine := range pool {
		snap := engine.MetricsSnapshot()
		conflicts += snap.Counters[goThrottle.MetricCASConflict]
		persistFailures += snap.Counters[goThrottle.MetricPersistFailure]
	}
	fmt.Printf("cas conflicts=%d persist failures=%d\n", conflicts, persistFailures)

	violations := 0
	for i, n := range allowed {
		if n > int64(*maxAttempts) {
			violations++
			fmt.Fprintf(os.Stderr, "ceiling violated: %s allowed %d times (max %d)\n", ids[i], n, *maxAttempts)
		}
	}
	if violations > 0 {
		os.Exit(1)
	}
	fmt.Printf("ceiling held: no identifier allowed more than %d times\n", *maxAttempts)
}

func runCheckPhase(ctx context.Context, pool []*goThrottle.Engine, ids []string, allowed []int64, ops, concurrency int) phaseStats {
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
			engine := pool[worker%len(pool)]
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				idx := r.Intn(len(ids))
				t0 := time.Now()
				d, err := engine.CheckAndRecord(ctx, ids[idx], loadAction)
				elapsed := time.Since(t0)
				if err != nil {
					atomic.AddInt64(&failures, 1)
				} else if d.Allowed {
					atomic.AddInt64(&allowed[idx], 1)
				}
				mu.Lock()
				latencies = append(latencies, elapsed)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	total := time.Since(start)
	return computeStats(total, latencies, failures)
}

func runStatusPhase(ctx context.Context, pool []*goThrottle.Engine, ids []string, ops, concurrency int) phaseStats {
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
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*6151))
			engine := pool[worker%len(pool)]
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				idx := r.Intn(len(ids))
				t0 := time.Now()
				_, err := engine.GetStatus(ctx, ids[idx], loadAction)
				elapsed := time.Since(t0)
				if err != nil {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, elapsed)
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
