//go:build integration
// +build integration

package test

import (
	"fmt"
	"strings"
	"testing"
	"time"

	goThrottle "github.com/MrEthical07/goThrottle"
	"github.com/MrEthical07/goThrottle/clock"
	"github.com/MrEthical07/goThrottle/policy"
	"github.com/MrEthical07/goThrottle/store"
	"github.com/redis/go-redis/v9"
)

var integrationStart = time.Date(2026, time.April, 1, 10, 0, 0, 0, time.UTC)

// uniqueNamespace keeps runs against a shared Redis from seeing each other's keys.
func uniqueNamespace(t *testing.T) string {
	t.Helper()
	name := strings.NewReplacer("/", "-", " ", "-", ":", "-").Replace(t.Name())
	return fmt.Sprintf("it-%s-%d", name, time.Now().UnixNano())
}

func newIntegrationEngine(t *testing.T, rdb redis.UniversalClient, c clock.Clock, namespace string, retries int) *goThrottle.Engine {
	t.Helper()

	cfg := goThrottle.DefaultConfig()
	cfg.Namespace = namespace
	cfg.Cleanup.OpportunisticInterval = 0
	cfg.Storage.MaxCASRetries = retries
	cfg.Policies = map[string]policy.Policy{
		policy.ActionLogin: {MaxAttempts: 5, Window: 15 * time.Minute, BlockDuration: 30 * time.Minute},
	}

	engine, err := goThrottle.New().
		WithConfig(cfg).
		WithStore(store.NewRedis(rdb, store.RedisOptions{})).
		WithClock(c).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)
	return engine
}
