// Package appconfig holds the small set of typed tunables the three
// engines need at startup. It deliberately does not grow into a general
// configuration-loading subsystem (file watching, CLI flags, hot-reload)
// — configuration loading proper is an external collaborator per the
// specification's scope; this package only loads a YAML file into a
// fixed struct and applies defaults.
package appconfig

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full set of tunables read by the daemon at startup.
type Config struct {
	// Audit holds subcloud audit engine tunables.
	Audit AuditConfig `yaml:"audit"`

	// Orchestrator holds strategy orchestrator tunables.
	Orchestrator OrchestratorConfig `yaml:"orchestrator"`

	// Sync holds resource sync engine tunables.
	Sync SyncConfig `yaml:"sync"`

	// Driver holds shared driver HTTP client tunables.
	Driver DriverConfig `yaml:"driver"`
}

// AuditConfig configures the subcloud audit engine (§4.2).
type AuditConfig struct {
	// TickInterval is how often a full audit pass runs. Default 60s.
	TickInterval time.Duration `yaml:"tickInterval"`

	// PoolSize bounds concurrent per-subcloud audit tasks.
	PoolSize int `yaml:"poolSize"`

	// MaxAuditFailCount is the threshold at which an online subcloud with
	// consecutive unreachable ticks transitions to offline.
	MaxAuditFailCount int `yaml:"maxAuditFailCount"`

	// EndpointStatusDebounce is not read by the store: store.Memory
	// suppresses repeated identical SetEndpointStatus writes within the
	// fixed store.EndpointStatusDebounce window.
	EndpointStatusDebounce time.Duration `yaml:"endpointStatusDebounce"`

	// CadenceTicks maps an endpoint type to how many ticks elapse between
	// its audits (1 = every tick). Endpoint types absent from the map
	// default to every tick.
	CadenceTicks map[string]int `yaml:"cadenceTicks"`
}

// OrchestratorConfig configures the strategy orchestrator (§4.3).
type OrchestratorConfig struct {
	// TickInterval is how often each per-kind loop scans its strategy.
	TickInterval time.Duration `yaml:"tickInterval"`

	// StepPoolSize is not read by the orchestrator. Each dispatched step
	// runs in its own goroutine, one per region, and only the current
	// stage's steps are dispatched.
	StepPoolSize int `yaml:"stepPoolSize"`

	// VimPollInterval is the spacing between VIM strategy state polls.
	VimPollInterval time.Duration `yaml:"vimPollInterval"`

	// VimPollMaxAttempts bounds how long the orchestrator waits for a VIM
	// strategy to leave a transient state before treating it as stuck.
	VimPollMaxAttempts int `yaml:"vimPollMaxAttempts"`
}

// SyncConfig configures the resource sync engine (§4.4).
type SyncConfig struct {
	// MaxRetry bounds per-request retry attempts.
	MaxRetry int `yaml:"maxRetry"`

	// AuditInterval is how often each (subcloud, endpoint) worker triggers
	// itself. Every trigger, from this ticker or from Engine.Trigger, runs
	// a sync pass followed by a differential audit.
	AuditInterval time.Duration `yaml:"auditInterval"`
}

// DriverConfig configures the shared retryable HTTP client used by every
// capability interface implementation.
type DriverConfig struct {
	// SessionTimeout bounds a single driver call, including retries.
	SessionTimeout time.Duration `yaml:"sessionTimeout"`

	// RetryMax bounds transient-failure retries.
	RetryMax int `yaml:"retryMax"`
}

// Default returns the configuration used when no file is supplied,
// mirroring every numeric constant named in the specification.
func Default() Config {
	return Config{
		Audit: AuditConfig{
			TickInterval:           60 * time.Second,
			PoolSize:               50,
			MaxAuditFailCount:      2,
			EndpointStatusDebounce: 3600 * time.Second,
			CadenceTicks: map[string]int{
				"patching":    1,
				"load":        1,
				"kubernetes":  1,
				"firmware":    10,
				"kube-rootca": 10,
			},
		},
		Orchestrator: OrchestratorConfig{
			TickInterval:       10 * time.Second,
			StepPoolSize:       100,
			VimPollInterval:    5 * time.Second,
			VimPollMaxAttempts: 120,
		},
		Sync: SyncConfig{
			MaxRetry:      3,
			AuditInterval: 5 * time.Minute,
		},
		Driver: DriverConfig{
			SessionTimeout: 60 * time.Second,
			RetryMax:       3,
		},
	}
}

// Load reads a YAML config file at path and overlays it onto Default().
// A missing file is not an error: the defaults are used as-is, matching
// the teacher's "config is optional, defaults always work" posture.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}
