package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"slices"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Run modes for telegram.run_mode.
const (
	RunModeWebhook  = "webhook"
	RunModeLongpoll = "longpoll"
)

// Update kinds accepted by rate_limit.exclude_updates.
const (
	UpdateCallback    = "callback"
	UpdateMessage     = "message"
	UpdateInlineQuery = "inline_query"
)

// TelegramConfig is the bot identity and how updates arrive.
type TelegramConfig struct {
	Token string `yaml:"token" envconfig:"BOT_TOKEN" validate:"required"`
	// AdminIDs moderate listings and see the admin menu.
	AdminIDs []int64 `yaml:"admin_ids" envconfig:"ADMIN_IDS" validate:"dive,gt=0"`
	RunMode  string  `yaml:"run_mode" envconfig:"TELEGRAM_RUN_MODE" validate:"oneof=webhook longpoll"`
	// LongPollTimeoutSeconds of 0 picks the runtime default.
	LongPollTimeoutSeconds int `yaml:"longpoll_timeout_seconds" envconfig:"TELEGRAM_LONGPOLL_TIMEOUT_SECONDS" validate:"gte=0"`
}

// WebhookConfig is only checked in webhook mode.
type WebhookConfig struct {
	URL    string `yaml:"url" envconfig:"WEBHOOK_URL" validate:"required,url"`
	Listen string `yaml:"listen" envconfig:"WEBHOOK_LISTEN" validate:"required"`
	Port   int    `yaml:"port" envconfig:"WEBHOOK_PORT" validate:"gt=0,lte=65535"`
}

type LoggingConfig struct {
	Level       string `yaml:"level" validate:"omitempty,oneof=debug info warn warning error"`
	Format      string `yaml:"format"`
	KeysOrder   string `yaml:"keys_order"`
	DebugSample string `yaml:"debug_sample"`
	Dir         string `yaml:"dir"`
	BotFile     string `yaml:"bot_file"`
	ErrorsFile  string `yaml:"errors_file"`
	// Profile is "prod", "dev" or "debug"; dev and debug default to kv output.
	Profile string `yaml:"profile"`
}

// RateLimitConfig throttles each user's updates. ExcludeUpdates lists update
// kinds (callback, message, inline_query) that bypass the limiter.
type RateLimitConfig struct {
	IntervalMS int `yaml:"interval_ms" envconfig:"RATE_LIMIT_INTERVAL_MS" validate:"gte=0"`
	// Burst is the number of updates a user may send back to back.
	Burst          int      `yaml:"burst" envconfig:"RATE_LIMIT_BURST" validate:"gte=0"`
	ExcludeUpdates []string `yaml:"exclude_updates" envconfig:"RATE_LIMIT_EXCLUDE_UPDATES" validate:"dive,oneof=callback message inline_query"`
}

// DefaultSendRetries is used when sender.max_retries is left at zero.
const DefaultSendRetries = 2

// SenderConfig tunes the outbound Bot API queue. Zero values pick the
// queue defaults; max_retries of -1 turns retries off.
type SenderConfig struct {
	Workers        int `yaml:"workers" envconfig:"SENDER_WORKERS" validate:"gte=0"`
	QueueSize      int `yaml:"queue_size" envconfig:"SENDER_QUEUE_SIZE" validate:"gte=0"`
	MaxRetries     int `yaml:"max_retries" envconfig:"SENDER_MAX_RETRIES" validate:"gte=-1,lte=10"`
	RetryBackoffMS int `yaml:"retry_backoff_ms" envconfig:"SENDER_RETRY_BACKOFF_MS" validate:"gte=0"`
}

// Config is the part of the configuration every bot built on core shares.
type Config struct {
	Telegram  TelegramConfig  `yaml:"telegram"`
	Webhook   WebhookConfig   `yaml:"webhook" validate:"-"`
	Logging   LoggingConfig   `yaml:"logging"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Sender    SenderConfig    `yaml:"sender"`
}

// ReadInto decodes the YAML file at path into dst and then applies the
// environment overlay. dst must be a pointer to a struct.
func ReadInto(path string, dst any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("failed to parse YAML config: %w", err)
	}
	if err := envconfig.Process("", dst); err != nil {
		return fmt.Errorf("failed to process env: %w", err)
	}
	return nil
}

// Load reads and normalizes a core-only configuration.
func Load(path string) (*Config, error) {
	var cfg Config
	if err := ReadInto(path, &cfg); err != nil {
		return nil, err
	}
	if err := Normalize(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Normalize canonicalizes spellings, validates and removes duplicate admins.
func Normalize(cfg *Config) error {
	if cfg == nil {
		return errors.New("nil config")
	}
	tc := &cfg.Telegram
	tc.RunMode = strings.ToLower(strings.TrimSpace(tc.RunMode))
	if tc.RunMode == "" || tc.RunMode == "polling" {
		tc.RunMode = RunModeLongpoll
	}
	cfg.Logging.Level = strings.ToLower(strings.TrimSpace(cfg.Logging.Level))
	for i, kind := range cfg.RateLimit.ExcludeUpdates {
		cfg.RateLimit.ExcludeUpdates[i] = strings.ToLower(strings.TrimSpace(kind))
	}
	cfg.RateLimit.ExcludeUpdates = slices.DeleteFunc(cfg.RateLimit.ExcludeUpdates, func(s string) bool { return s == "" })

	if err := Validate("", cfg); err != nil {
		return err
	}
	if tc.RunMode == RunModeWebhook {
		if err := Validate("webhook", &cfg.Webhook); err != nil {
			return err
		}
	}

	if cfg.Sender.MaxRetries == 0 {
		cfg.Sender.MaxRetries = DefaultSendRetries
	}

	seen := make(map[int64]bool, len(tc.AdminIDs))
	tc.AdminIDs = slices.DeleteFunc(tc.AdminIDs, func(id int64) bool {
		dup := seen[id]
		seen[id] = true
		return dup
	})
	return nil
}

// IsAdmin reports whether id is listed in telegram.admin_ids.
func (c *Config) IsAdmin(id int64) bool {
	return c != nil && slices.Contains(c.Telegram.AdminIDs, id)
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("yaml"), ",")
		if name == "-" {
			return ""
		}
		if name == "" {
			return f.Name
		}
		return name
	})
	return v
}

// Validate checks v against its validate tags and reports the first bad
// field by its YAML path under section, e.g. "invalid market.currency:
// failed len".
func Validate(section string, v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return fmt.Errorf("invalid %s config: %w", sectionName(section), err)
	}
	fe := fieldErrs[0]
	path := fe.Namespace()
	if _, rest, ok := strings.Cut(path, "."); ok {
		path = rest
	}
	// Inline-embedded structs keep their Go type name in the namespace.
	path = strings.TrimPrefix(path, "Config.")
	if section != "" {
		path = section + "." + path
	}
	return fmt.Errorf("invalid %s: failed %s", path, fe.Tag())
}

func sectionName(section string) string {
	if section == "" {
		return "core"
	}
	return section
}
