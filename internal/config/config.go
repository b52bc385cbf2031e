package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Defaults applied when the YAML omits a value.
const (
	DefaultPollIntervalMs = 10000
	DefaultBatchLimit     = 100
	DefaultDBPath         = "claim-sync.db"
)

// DefaultStatusEvents are the contract event types that carry a claim status
// transition. All other event types are recorded for audit only.
var DefaultStatusEvents = []string{"AdjudicationComplete", "ClaimStatusUpdated"}

// Config holds the YAML configuration.
type Config struct {
	Version  int            `yaml:"version"`
	Global   GlobalConfig   `yaml:"global"`
	Listener ListenerConfig `yaml:"listener"`
}

type GlobalConfig struct {
	DBPath string `yaml:"db_path"`
}

// ListenerConfig configures the contract event listener. An empty ContractID
// disables the listener entirely; it is not an error.
type ListenerConfig struct {
	ContractID     string   `yaml:"contract_id"`
	RPCURL         string   `yaml:"rpc_url"`
	PollIntervalMs int64    `yaml:"poll_interval_ms"`
	BatchLimit     int      `yaml:"batch_limit"`
	StatusEvents   []string `yaml:"status_events"`
}

// Enabled reports whether a contract is configured for ingestion.
func (l ListenerConfig) Enabled() bool {
	return l.ContractID != ""
}

var envPattern = regexp.MustCompile(`\${([A-Za-z_][A-Za-z0-9_]*)}`)

// Load reads, interpolates env vars, parses YAML, applies defaults, and validates.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is required")
	}

	if err := loadDotEnv(path); err != nil {
		return nil, err
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	interpolated, err := interpolateEnv(string(raw))
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal([]byte(interpolated), &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func loadDotEnv(configPath string) error {
	envPath := filepath.Join(filepath.Dir(configPath), ".env")
	if _, err := os.Stat(envPath); err == nil {
		if err := godotenv.Load(envPath); err != nil {
			return fmt.Errorf("load .env: %w", err)
		}
	}
	return nil
}

func interpolateEnv(input string) (string, error) {
	missing := []string{}
	out := envPattern.ReplaceAllStringFunc(input, func(match string) string {
		name := envPattern.FindStringSubmatch(match)[1]
		if val, ok := os.LookupEnv(name); ok {
			return val
		}
		missing = append(missing, name)
		return match
	})

	if len(missing) > 0 {
		return "", fmt.Errorf("missing environment variables: %s", strings.Join(dedup(missing), ", "))
	}
	return out, nil
}

func (c *Config) applyDefaults() {
	if c.Global.DBPath == "" {
		c.Global.DBPath = DefaultDBPath
	}
	if c.Listener.PollIntervalMs == 0 {
		c.Listener.PollIntervalMs = DefaultPollIntervalMs
	}
	if c.Listener.BatchLimit == 0 {
		c.Listener.BatchLimit = DefaultBatchLimit
	}
	if len(c.Listener.StatusEvents) == 0 {
		c.Listener.StatusEvents = append([]string{}, DefaultStatusEvents...)
	}
}

// Validate performs small, direct schema checks.
func (c *Config) Validate() error {
	if c.Version == 0 {
		return errors.New("version is required")
	}
	if c.Listener.RPCURL == "" {
		return errors.New("listener.rpc_url is required")
	}
	if c.Listener.PollIntervalMs < 0 {
		return errors.New("listener.poll_interval_ms must not be negative")
	}
	if c.Listener.BatchLimit < 0 {
		return errors.New("listener.batch_limit must not be negative")
	}
	for _, ev := range c.Listener.StatusEvents {
		if strings.TrimSpace(ev) == "" {
			return errors.New("listener.status_events must not contain empty entries")
		}
	}
	return nil
}

func dedup(values []string) []string {
	seen := map[string]struct{}{}
	out := make([]string, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
