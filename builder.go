package goThrottle

import (
	"errors"
	"fmt"

	"github.com/MrEthical07/goThrottle/clock"
	"github.com/MrEthical07/goThrottle/internal/audit"
	"github.com/MrEthical07/goThrottle/policy"
	"github.com/MrEthical07/goThrottle/store"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/MrEthical07/goThrottle"

// Builder assembles an [Engine]. A Builder can be built once.
type Builder struct {
	config Config
	store  store.Store

	registry       *policy.Registry
	clock          clock.Clock
	logger         *zerolog.Logger
	tracerProvider trace.TracerProvider
	auditSink      AuditSink

	built bool
}

// New returns a Builder seeded with [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithStore sets the backing store. Required unless [Builder.WithRedis] is used.
func (b *Builder) WithStore(s store.Store) *Builder {
	b.store = s
	return b
}

// WithRedis backs the engine with a Redis store over client.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	if client == nil {
		b.store = nil
		return b
	}
	b.store = store.NewRedis(client, store.RedisOptions{})
	return b
}

// WithRegistry supplies a prebuilt policy registry instead of
// Config.Policies. The registry is frozen by Build.
func (b *Builder) WithRegistry(r *policy.Registry) *Builder {
	b.registry = r
	return b
}

// WithClock overrides the time source.
func (b *Builder) WithClock(c clock.Clock) *Builder {
	b.clock = c
	return b
}

// WithLogger sets the structured logger. The default discards output.
func (b *Builder) WithLogger(logger zerolog.Logger) *Builder {
	b.logger = &logger
	return b
}

// WithTracerProvider sets the OpenTelemetry tracer provider. The default is
// the global provider.
func (b *Builder) WithTracerProvider(tp trace.TracerProvider) *Builder {
	b.tracerProvider = tp
	return b
}

// WithAuditSink sets the audit sink and enables auditing. A nil sink leaves
// the configured setting alone; with auditing enabled by configuration but
// no sink, events go to the engine logger.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	if sink != nil {
		b.config.Audit.Enabled = true
	}
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and returns a running Engine. When
// Cleanup.Interval is set, Build starts the background sweeper; call
// [Engine.Close] to stop it.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}
	if b.store == nil {
		return nil, fmt.Errorf("%w: store is required", ErrConfiguration)
	}

	cfg := cloneConfig(b.config)
	if len(cfg.Policies) == 0 && b.registry == nil {
		cfg.Policies = policy.DefaultPolicies()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	registry := b.registry
	if registry == nil {
		var err error
		registry, err = policy.FromMap(cfg.Policies)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
		}
	}
	registry.Freeze()

	c := b.clock
	if c == nil {
		c = clock.System{}
	}

	logger := zerolog.Nop()
	if b.logger != nil {
		logger = *b.logger
	}

	tp := b.tracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}

	e := &Engine{
		config:   cfg,
		store:    b.store,
		registry: registry,
		clock:    c,
		logger:   logger.With().Str("component", "goThrottle").Str("namespace", cfg.Namespace).Logger(),
		tracer:   tp.Tracer(tracerName),
		metrics:  NewMetrics(cfg.Metrics),
		stop:     make(chan struct{}),
	}
	if swapper, ok := b.store.(store.Swapper); ok {
		e.swapper = swapper
	}
	if cfg.Audit.Enabled {
		sink := b.auditSink
		if sink == nil {
			sink = audit.NewLoggerSink(e.logger)
		}
		e.audit = audit.NewDispatcher(audit.Config{
			Enabled:    true,
			BufferSize: cfg.Audit.BufferSize,
			DropIfFull: cfg.Audit.DropIfFull,
		}, sink, c.Now)
	}

	if cfg.Cleanup.Interval > 0 {
		e.startJanitor(cfg.Cleanup.Interval)
	}

	b.built = true
	return e, nil
}
