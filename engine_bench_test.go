package goThrottle

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/MrEthical07/goThrottle/clock"
	"github.com/MrEthical07/goThrottle/policy"
	"github.com/MrEthical07/goThrottle/store"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

const benchAction = "bench"

func newBenchmarkEngine(b *testing.B, s store.Store) *Engine {
	b.Helper()

	cfg := DefaultConfig()
	cfg.Cleanup.OpportunisticInterval = 0
	cfg.Policies = map[string]policy.Policy{
		benchAction: {MaxAttempts: 1 << 30, Window: time.Hour, BlockDuration: time.Hour},
	}
	engine, err := New().WithConfig(cfg).WithStore(s).Build()
	if err != nil {
		b.Fatalf("Build failed: %v", err)
	}
	b.Cleanup(engine.Close)
	return engine
}

func newBenchmarkRedis(b *testing.B) store.Store {
	b.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		b.Fatalf("miniredis run failed: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	b.Cleanup(func() {
		_ = client.Close()
		mr.Close()
	})
	return store.NewRedis(client, store.RedisOptions{})
}

func BenchmarkCheckAndRecordMemory(b *testing.B) {
	engine := newBenchmarkEngine(b, store.NewMemory(clock.System{}))
	ctx := context.Background()

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := engine.CheckAndRecord(ctx, "alice@example.com", benchAction); err != nil {
			b.Fatalf("check failed: %v", err)
		}
	}
}

func BenchmarkCheckAndRecordMemoryParallel(b *testing.B) {
	engine := newBenchmarkEngine(b, store.NewMemory(clock.System{}))
	ctx := context.Background()
	identifiers := make([]string, 1024)
	for i := range identifiers {
		identifiers[i] = "user-" + strconv.Itoa(i)
	}

	b.ReportAllocs()
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			if _, err := engine.CheckAndRecord(ctx, identifiers[i%len(identifiers)], benchAction); err != nil {
				b.Errorf("check failed: %v", err)
				return
			}
			i++
		}
	})
}

func BenchmarkCheckAndRecordRedis(b *testing.B) {
	engine := newBenchmarkEngine(b, newBenchmarkRedis(b))
	ctx := context.Background()

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := engine.CheckAndRecord(ctx, "alice@example.com", benchAction); err != nil {
			b.Fatalf("check failed: %v", err)
		}
	}
}

func BenchmarkGetStatusRedis(b *testing.B) {
	engine := newBenchmarkEngine(b, newBenchmarkRedis(b))
	ctx := context.Background()
	if _, err := engine.CheckAndRecord(ctx, "alice@example.com", benchAction); err != nil {
		b.Fatalf("seed failed: %v", err)
	}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := engine.GetStatus(ctx, "alice@example.com", benchAction); err != nil {
			b.Fatalf("status failed: %v", err)
		}
	}
}
