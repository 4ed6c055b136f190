package goThrottle

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/MrEthical07/goThrottle/policy"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantValid bool
	}{
		{
			name:      "defaults valid",
			mutate:    func(*Config) {},
			wantValid: true,
		},
		{
			name: "empty namespace invalid",
			mutate: func(c *Config) {
				c.Namespace = ""
			},
			wantValid: false,
		},
		{
			name: "namespace with colon invalid",
			mutate: func(c *Config) {
				c.Namespace = "app:throttle"
			},
			wantValid: false,
		},
		{
			name: "read failure mode out of range invalid",
			mutate: func(c *Config) {
				c.ReadFailureMode = ReadFailureMode(9)
			},
			wantValid: false,
		},
		{
			name: "fail closed valid",
			mutate: func(c *Config) {
				c.ReadFailureMode = FailClosed
			},
			wantValid: true,
		},
		{
			name: "zero cas retries invalid",
			mutate: func(c *Config) {
				c.Storage.MaxCASRetries = 0
			},
			wantValid: false,
		},
		{
			name: "negative cleanup interval invalid",
			mutate: func(c *Config) {
				c.Cleanup.Interval = -time.Second
			},
			wantValid: false,
		},
		{
			name: "negative opportunistic interval invalid",
			mutate: func(c *Config) {
				c.Cleanup.OpportunisticInterval = -time.Second
			},
			wantValid: false,
		},
		{
			name: "audit without buffer invalid",
			mutate: func(c *Config) {
				c.Audit.Enabled = true
				c.Audit.BufferSize = 0
			},
			wantValid: false,
		},
		{
			name: "latency without metrics invalid",
			mutate: func(c *Config) {
				c.Metrics.Enabled = false
				c.Metrics.EnableLatencyHistograms = true
			},
			wantValid: false,
		},
		{
			name: "invalid policy invalid",
			mutate: func(c *Config) {
				c.Policies["login"] = policy.Policy{MaxAttempts: 0, Window: time.Minute}
			},
			wantValid: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantValid && err != nil {
				t.Fatalf("expected valid config, got %v", err)
			}
			if !tt.wantValid {
				if err == nil {
					t.Fatal("expected validation error")
				}
				if !errors.Is(err, ErrConfiguration) {
					t.Fatalf("expected ErrConfiguration, got %v", err)
				}
			}
		})
	}
}

func TestStrictConfigFailsClosed(t *testing.T) {
	if DefaultConfig().ReadFailureMode != FailOpen {
		t.Fatal("default config must fail open")
	}
	if StrictConfig().ReadFailureMode != FailClosed {
		t.Fatal("strict config must fail closed")
	}
}

func TestCloneConfigCopiesPolicies(t *testing.T) {
	cfg := defaultConfig()
	clone := cloneConfig(cfg)
	clone.Policies["login"] = policy.Policy{MaxAttempts: 1, Window: time.Second}

	if cfg.Policies["login"].MaxAttempts != 5 {
		t.Fatal("clone must not share the policy map")
	}
}

func TestParseConfig(t *testing.T) {
	data := []byte(`
namespace: signin
read_failure_mode: fail-closed
storage:
  expire_entries: false
  max_cas_retries: 8
cleanup:
  interval: 5m
  opportunistic_interval: 30s
policies:
  login:
    max_attempts: 10
    window: 1h
  otp-verify:
    max_attempts: 3
    window: 5m
    block_duration: 1h
audit:
  enabled: true
  buffer_size: 64
`)

	cfg, err := ParseConfig(data)
	if err != nil {
		t.Fatalf("ParseConfig failed: %v", err)
	}
	if cfg.Namespace != "signin" || cfg.ReadFailureMode != FailClosed {
		t.Fatalf("unexpected header fields: %+v", cfg)
	}
	if cfg.Storage.ExpireEntries || cfg.Storage.MaxCASRetries != 8 {
		t.Fatalf("unexpected storage config: %+v", cfg.Storage)
	}
	if cfg.Cleanup.Interval != 5*time.Minute || cfg.Cleanup.OpportunisticInterval != 30*time.Second {
		t.Fatalf("unexpected cleanup config: %+v", cfg.Cleanup)
	}
	if len(cfg.Policies) != 2 {
		t.Fatalf("policies section must replace defaults, got %v", cfg.Policies)
	}
	if p := cfg.Policies["login"]; p.MaxAttempts != 10 || p.Window != time.Hour {
		t.Fatalf("unexpected login policy: %+v", p)
	}
	if p := cfg.Policies["otp-verify"]; p.BlockDuration != time.Hour {
		t.Fatalf("unexpected otp policy: %+v", p)
	}
	if !cfg.Audit.Enabled || cfg.Audit.BufferSize != 64 || !cfg.Audit.DropIfFull {
		t.Fatalf("unexpected audit config: %+v", cfg.Audit)
	}
	if !cfg.Metrics.Enabled {
		t.Fatal("omitted sections must keep defaults")
	}
}

func TestParseConfigEmptyKeepsDefaults(t *testing.T) {
	cfg, err := ParseConfig([]byte("namespace: app\n"))
	if err != nil {
		t.Fatalf("ParseConfig failed: %v", err)
	}
	if len(cfg.Policies) != 3 {
		t.Fatalf("expected default policies, got %v", cfg.Policies)
	}
}

func TestParseConfigRejectsBadInput(t *testing.T) {
	cases := map[string]string{
		"syntax":      "namespace: [",
		"mode":        "read_failure_mode: sometimes\n",
		"duration":    "cleanup:\n  interval: soon\n",
		"policy":      "policies:\n  login:\n    max_attempts: 0\n    window: 1m\n",
		"namespace":   "namespace: \"a:b\"\n",
		"cas retries": "storage:\n  max_cas_retries: -1\n",
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := ParseConfig([]byte(data)); !errors.Is(err, ErrConfiguration) {
				t.Fatalf("expected ErrConfiguration, got %v", err)
			}
		})
	}
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "throttle.yaml")
	if err := os.WriteFile(path, []byte("namespace: fromfile\n"), 0o600); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Namespace != "fromfile" {
		t.Fatalf("unexpected namespace %q", cfg.Namespace)
	}

	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestReadFailureModeText(t *testing.T) {
	for _, m := range []ReadFailureMode{FailOpen, FailClosed} {
		text, err := m.MarshalText()
		if err != nil {
			t.Fatalf("MarshalText failed: %v", err)
		}
		var back ReadFailureMode
		if err := back.UnmarshalText(text); err != nil || back != m {
			t.Fatalf("round trip %v: got %v err=%v", m, back, err)
		}
	}

	if m, err := ParseReadFailureMode(" Closed "); err != nil || m != FailClosed {
		t.Fatalf("expected FailClosed, got %v err=%v", m, err)
	}
	if _, err := ParseReadFailureMode("maybe"); !errors.Is(err, ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}
	if got := ReadFailureMode(7).String(); got != "ReadFailureMode(7)" {
		t.Fatalf("unexpected String: %q", got)
	}
}
