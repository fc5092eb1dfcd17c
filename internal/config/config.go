// Package config loads the engine's runtime configuration: a YAML file with
// environment-variable overrides for the deployment-specific bits. The
// commission sections are the engine's view of the platform's system-settings
// store.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/rentora/payments/internal/commission"
	"github.com/rentora/payments/internal/domain"
	"github.com/rentora/payments/internal/retry"
)

// Duration parses YAML scalars like "5s" or "2m" via time.ParseDuration;
// plain time.Duration would only accept raw nanosecond integers.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) Std() time.Duration { return time.Duration(d) }

type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`

	Database struct {
		Path string `yaml:"path"`
	} `yaml:"database"`

	Providers struct {
		Card         Gateway `yaml:"card"`
		Wallet       Gateway `yaml:"wallet"`
		BankRedirect Gateway `yaml:"bank_redirect"`
		Voucher      Gateway `yaml:"voucher"`
	} `yaml:"providers"`

	Commission Commission `yaml:"commission"`

	Retry struct {
		MaxAttempts int      `yaml:"max_attempts"`
		BaseDelay   Duration `yaml:"base_delay"`
		MaxDelay    Duration `yaml:"max_delay"`
		Multiplier  float64  `yaml:"multiplier"`
	} `yaml:"retry"`

	Scheduler struct {
		Interval Duration `yaml:"interval"`
	} `yaml:"scheduler"`

	Notifier struct {
		Kind     string `yaml:"kind"` // "log" or "sqs"
		QueueURL string `yaml:"queue_url"`
	} `yaml:"notifier"`

	CallTimeout Duration `yaml:"call_timeout"`
}

type Gateway struct {
	BaseURL string   `yaml:"base_url"`
	APIKey  string   `yaml:"api_key"`
	Timeout Duration `yaml:"timeout"`
}

type Commission struct {
	// FlatRates are percentages per job type, as strings so fractional rates
	// stay exact ("8", "4.5").
	FlatRates map[string]string `yaml:"flat_rates"`

	Tiered struct {
		Breakpoint         int64 `yaml:"breakpoint"`
		HighValueThreshold int64 `yaml:"high_value_threshold"`
		MinimumCommission  int64 `yaml:"minimum_commission"`
	} `yaml:"tiered"`
}

// Load reads the YAML file at path (optional: an empty path yields defaults)
// and applies PORT / DB_PATH environment overrides.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if cfg.Server.Port == "" {
		cfg.Server.Port = "8080"
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = "rentora.db"
	}
	if cfg.Notifier.Kind == "" {
		cfg.Notifier.Kind = "log"
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = Duration(15 * time.Second)
	}

	if port := os.Getenv("PORT"); port != "" {
		cfg.Server.Port = port
	}
	if dbPath := os.Getenv("DB_PATH"); dbPath != "" {
		cfg.Database.Path = dbPath
	}

	return cfg, nil
}

// FlatConfig converts the YAML rates into the commission engine's flat-mode
// configuration. Unlisted job types fall back to the engine default.
func (c *Config) FlatConfig() (commission.FlatConfig, error) {
	rates := make(map[domain.JobType]decimal.Decimal, len(c.Commission.FlatRates))
	for jt, raw := range c.Commission.FlatRates {
		rate, err := decimal.NewFromString(raw)
		if err != nil {
			return commission.FlatConfig{}, fmt.Errorf("flat rate for %s: %w", jt, err)
		}
		rates[domain.JobType(jt)] = rate
	}
	return commission.FlatConfig{Rates: rates}, nil
}

// TieredConfig merges YAML threshold overrides onto the standard rate card.
func (c *Config) TieredConfig() commission.TieredConfig {
	tc := commission.DefaultTieredConfig()
	if v := c.Commission.Tiered.Breakpoint; v > 0 {
		tc.Breakpoint = v
	}
	if v := c.Commission.Tiered.HighValueThreshold; v > 0 {
		tc.HighValueThreshold = v
	}
	if v := c.Commission.Tiered.MinimumCommission; v > 0 {
		tc.MinimumCommission = v
	}
	return tc
}

// RetryPolicy builds the shared backoff policy, falling back to defaults for
// unset fields.
func (c *Config) RetryPolicy() retry.Policy {
	p := retry.DefaultPolicy()
	if c.Retry.MaxAttempts > 0 {
		p.MaxAttempts = c.Retry.MaxAttempts
	}
	if c.Retry.BaseDelay > 0 {
		p.BaseDelay = c.Retry.BaseDelay.Std()
	}
	if c.Retry.MaxDelay > 0 {
		p.MaxDelay = c.Retry.MaxDelay.Std()
	}
	if c.Retry.Multiplier > 0 {
		p.Multiplier = c.Retry.Multiplier
	}
	return p
}
