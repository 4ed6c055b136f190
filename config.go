package goThrottle

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/MrEthical07/goThrottle/policy"
	"gopkg.in/yaml.v3"
)

// Config holds everything an [Engine] needs besides its collaborators.
// Build it once at startup and treat it as immutable afterwards.
type Config struct {
	// Namespace prefixes every store key. It must not contain ':'.
	Namespace string `yaml:"namespace"`
	// Policies maps action names to rules. Empty means policy.DefaultPolicies.
	Policies        map[string]policy.Policy `yaml:"policies"`
	ReadFailureMode ReadFailureMode          `yaml:"read_failure_mode"`
	Storage         StorageConfig            `yaml:"storage"`
	Cleanup         CleanupConfig            `yaml:"cleanup"`
	Metrics         MetricsConfig            `yaml:"metrics"`
	Audit           AuditConfig              `yaml:"audit"`
}

/*
====================================
STORAGE CONFIG
====================================
*/

// StorageConfig tunes how entries are written.
type StorageConfig struct {
	// ExpireEntries attaches a TTL to every write so the backend drops
	// entries once they are logically expired.
	ExpireEntries bool `yaml:"expire_entries"`
	// MaxCASRetries bounds read-compute-write retries on swap conflicts.
	MaxCASRetries int `yaml:"max_cas_retries"`
}

/*
====================================
CLEANUP CONFIG
====================================
*/

// CleanupConfig schedules expired-entry sweeps. Zero values disable each mode.
type CleanupConfig struct {
	// Interval runs a background sweep on this period.
	Interval time.Duration `yaml:"interval"`
	// OpportunisticInterval sweeps before a CheckAndRecord call at most
	// once per interval.
	OpportunisticInterval time.Duration `yaml:"opportunistic_interval"`
}

/*
====================================
METRICS CONFIG
====================================
*/

// MetricsConfig toggles in-process counters.
type MetricsConfig struct {
	Enabled                 bool `yaml:"enabled"`
	EnableLatencyHistograms bool `yaml:"enable_latency_histograms"`
}

/*
====================================
AUDIT CONFIG
====================================
*/

// AuditConfig controls the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool `yaml:"enabled"`
	BufferSize int  `yaml:"buffer_size"`
	DropIfFull bool `yaml:"drop_if_full"`
}

/*
====================================
DEFAULT CONFIG
====================================
*/

const (
	defaultNamespace     = "throttle"
	defaultMaxCASRetries = 4
)

func defaultConfig() Config {
	return Config{
		Namespace:       defaultNamespace,
		Policies:        policy.DefaultPolicies(),
		ReadFailureMode: FailOpen,
		Storage: StorageConfig{
			ExpireEntries: true,
			MaxCASRetries: defaultMaxCASRetries,
		},
		Cleanup: CleanupConfig{
			OpportunisticInterval: time.Minute,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
	}
}

// DefaultConfig returns the stock configuration: namespace "throttle", the
// default policy table, fail-open reads, TTL'd writes and a once-a-minute
// opportunistic sweep.
func DefaultConfig() Config {
	return defaultConfig()
}

// StrictConfig is [DefaultConfig] with fail-closed reads, for deployments
// that prefer denying over trusting a missing entry.
func StrictConfig() Config {
	cfg := defaultConfig()
	cfg.ReadFailureMode = FailClosed
	return cfg
}

func cloneConfig(cfg Config) Config {
	out := cfg
	if cfg.Policies != nil {
		out.Policies = make(map[string]policy.Policy, len(cfg.Policies))
		for k, v := range cfg.Policies {
			out.Policies[k] = v
		}
	}
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate reports the first configuration problem, wrapped in [ErrConfiguration].
func (c *Config) Validate() error {
	if err := c.validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	return nil
}

func (c *Config) validate() error {
	if c.Namespace == "" {
		return errors.New("Namespace must not be empty")
	}
	if strings.Contains(c.Namespace, ":") {
		return errors.New("Namespace must not contain ':'")
	}

	if c.ReadFailureMode != FailOpen && c.ReadFailureMode != FailClosed {
		return errors.New("unsupported ReadFailureMode")
	}

	if c.Storage.MaxCASRetries <= 0 {
		return errors.New("Storage MaxCASRetries must be > 0")
	}

	if c.Cleanup.Interval < 0 {
		return errors.New("Cleanup Interval must be >= 0")
	}
	if c.Cleanup.OpportunisticInterval < 0 {
		return errors.New("Cleanup OpportunisticInterval must be >= 0")
	}

	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when audit is enabled")
	}

	if c.Metrics.EnableLatencyHistograms && !c.Metrics.Enabled {
		return errors.New("Metrics EnableLatencyHistograms requires Metrics Enabled")
	}

	for _, action := range sortedActions(c.Policies) {
		if err := c.Policies[action].Validate(); err != nil {
			return fmt.Errorf("policy %q: %v", action, err)
		}
	}

	return nil
}

/*
====================================
LINT
====================================
*/

// LintWarning is an advisory finding; it never blocks Build.
type LintWarning struct {
	Code    string
	Message string
}

// LintResult collects warnings from [Config.Lint].
type LintResult []LintWarning

// Codes returns the warning codes in order.
func (r LintResult) Codes() []string {
	out := make([]string, 0, len(r))
	for _, w := range r {
		out = append(out, w.Code)
	}
	return out
}

// Lint reports settings that are valid but likely unintended.
func (c *Config) Lint() LintResult {
	var out LintResult

	if c.ReadFailureMode == FailOpen {
		out = append(out, LintWarning{
			Code:    "read_fail_open",
			Message: "store read failures are treated as missing entries; attackers who can degrade the store bypass limits",
		})
	}

	if !c.Storage.ExpireEntries && c.Cleanup.Interval == 0 && c.Cleanup.OpportunisticInterval == 0 {
		out = append(out, LintWarning{
			Code:    "unbounded_storage",
			Message: "entries never expire and no cleanup is scheduled",
		})
	}

	for _, action := range sortedActions(c.Policies) {
		p := c.Policies[action].Normalize()
		if p.BlockDuration < p.Window {
			out = append(out, LintWarning{
				Code:    "block_shorter_than_window",
				Message: fmt.Sprintf("policy %q blocks for %s but counts over %s; a pair can be re-blocked inside one window", action, p.BlockDuration, p.Window),
			})
		}
	}

	return out
}

/*
====================================
LOADING
====================================
*/

// LoadConfig reads a YAML file on top of [DefaultConfig].
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}
	return ParseConfig(data)
}

// ParseConfig decodes YAML on top of [DefaultConfig]. A policies section
// replaces the default table rather than merging into it.
func ParseConfig(data []byte) (Config, error) {
	cfg := defaultConfig()
	cfg.Policies = nil

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("%w: parse yaml: %v", ErrConfiguration, err)
	}
	if len(cfg.Policies) == 0 {
		cfg.Policies = policy.DefaultPolicies()
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func sortedActions(policies map[string]policy.Policy) []string {
	out := make([]string, 0, len(policies))
	for action := range policies {
		out = append(out, action)
	}
	sort.Strings(out)
	return out
}
