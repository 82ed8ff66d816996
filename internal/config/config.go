package config

import (
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the dispatch subsystem.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Postgres    PostgresConfig    `yaml:"postgres"`
	Redis       RedisConfig       `yaml:"redis"`
	SES         SESConfig         `yaml:"ses"`
	Waterfall   WaterfallConfig   `yaml:"waterfall"`
	Scorer      ScorerConfig      `yaml:"scorer"`
	JIT         JITConfig         `yaml:"jit"`
	RateLedger  RateLedgerConfig  `yaml:"rate_ledger"`
	Scheduler   SchedulerConfig   `yaml:"scheduler"`
	ReplyRouter ReplyRouterConfig `yaml:"reply_router"`
	Patterns    PatternsConfig    `yaml:"patterns"`
	Cache       CacheConfig       `yaml:"cache"`
	TestMode    TestModeConfig    `yaml:"test_mode"`
}

// ServerConfig configures the webhook-ingress / operator-surface HTTP server.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// PostgresConfig configures the system-of-record connection.
type PostgresConfig struct {
	DSN             string `yaml:"dsn"`
	MaxOpenConns    int    `yaml:"max_open_conns"`
	MaxIdleConns    int    `yaml:"max_idle_conns"`
	ConnMaxLifeMins int    `yaml:"conn_max_life_minutes"`
}

// RedisConfig configures the shared cache / rate-ledger / distlock backend.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// SESConfig configures the concrete email channel driver's provider.
type SESConfig struct {
	Region         string `yaml:"region"`
	AccessKey      string `yaml:"access_key"`
	SecretKey      string `yaml:"secret_key"`
	ConfigSetName  string `yaml:"config_set_name"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// WaterfallConfig configures the Enrichment Waterfall (spec §4.5, §6.1).
type WaterfallConfig struct {
	ConfidenceThreshold float64 `yaml:"confidence_threshold"` // enrichment_confidence_threshold, default 0.70
	PremiumMaxBudgetPct float64 `yaml:"premium_max_budget_percent"` // clay_max_budget_percent, default 0.15
	PerLeadTimeoutSecs  int     `yaml:"per_lead_timeout_seconds"`   // default 60
}

// ScorerConfig configures the ALS tier boundaries (spec §4.7, §6.1).
type ScorerConfig struct {
	HotThreshold  int `yaml:"hot_threshold"`  // default 85
	WarmThreshold int `yaml:"warm_threshold"` // default 60
}

// JITConfig configures the JIT Validator's gates (spec §4.8, §6.1).
type JITConfig struct {
	VoiceMinALS       int `yaml:"voice_min_als"`        // default 70
	MailMinALS        int `yaml:"mail_min_als"`         // default 85
	MinTouchGapDays   int `yaml:"min_touch_gap_days"`   // default 2
	ChannelCooldownDays int `yaml:"channel_cooldown_days"` // default 5
	EmailWarmupDays   int `yaml:"email_warmup_days"`    // default 14
}

// RateLedgerConfig configures per-resource daily caps (spec §4.2, §6.1).
type RateLedgerConfig struct {
	DailyCapEmailDomain int `yaml:"daily_cap_email_domain"` // default 50
	DailyCapSMSNumber   int `yaml:"daily_cap_sms_number"`   // default 100
	DailyCapVoiceNumber int `yaml:"daily_cap_voice_number"` // default 50
	DailyCapLinkedInSeat int `yaml:"daily_cap_linkedin_seat"` // default 17
	DailyCapMailSender  int `yaml:"daily_cap_mail_sender"`  // default 1000
}

// SchedulerConfig configures the Outreach Scheduler's periodic run
// (spec §4.9, §6.1).
type SchedulerConfig struct {
	IntervalMinutes int `yaml:"interval_minutes"` // default 60 ("1/hour")
	BatchSize       int `yaml:"batch_size"`       // scheduler_batch_size, default 50
	MaxParallel     int `yaml:"max_parallel"`     // scheduler_max_parallel, default 10
	AssignmentLockTTLSeconds int `yaml:"assignment_lock_ttl_seconds"` // default 90
}

// ReplyRouterConfig configures reply handling (spec §4.10, §6.1).
type ReplyRouterConfig struct {
	LifetimeReplyCapUSD float64 `yaml:"reply_sdk_lifetime_cap_usd"` // default 0.50
	RecoveryPollMinutes int     `yaml:"recovery_poll_minutes"`      // default 15
}

// PatternsConfig configures the Pattern Detectors' eligibility gates
// (spec §4.11, §6.1).
type PatternsConfig struct {
	MinConversions int     `yaml:"pattern_min_conversions"` // default 20
	MinConfidence  float64 `yaml:"pattern_min_confidence"`  // default 0.70
	MinSampleSize  int     `yaml:"pattern_min_sample"`       // min_sample, default 30
	RunIntervalDays int    `yaml:"run_interval_days"`        // default 7 ("weekly")
}

// CacheConfig configures the Cache Layer (spec §4.3, §6.1).
type CacheConfig struct {
	VersionPrefix          string `yaml:"cache_version_prefix"` // default "v1"
	EnrichmentTTLDays      int    `yaml:"enrichment_ttl_days"`  // default 90
	SuppressionReplicaTTLHours int `yaml:"suppression_replica_ttl_hours"` // default 24
}

// TestModeConfig configures the global test-mode address redirect
// (spec §4.12, §6.1).
type TestModeConfig struct {
	Enabled        bool   `yaml:"test_mode"`             // default false
	DailyEmailLimit int   `yaml:"test_daily_email_limit"` // default 15
	RedirectAddress string `yaml:"redirect_address"`
}

// Load reads and parses the configuration file, filling in every default
// named in spec §6.1.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Postgres.MaxOpenConns == 0 {
		cfg.Postgres.MaxOpenConns = 25
	}
	if cfg.Postgres.MaxIdleConns == 0 {
		cfg.Postgres.MaxIdleConns = 10
	}
	if cfg.Postgres.ConnMaxLifeMins == 0 {
		cfg.Postgres.ConnMaxLifeMins = 5
	}
	if cfg.SES.Region == "" {
		cfg.SES.Region = "us-east-1"
	}
	if cfg.SES.TimeoutSeconds == 0 {
		cfg.SES.TimeoutSeconds = 30
	}
	if cfg.Waterfall.ConfidenceThreshold == 0 {
		cfg.Waterfall.ConfidenceThreshold = 0.70
	}
	if cfg.Waterfall.PremiumMaxBudgetPct == 0 {
		cfg.Waterfall.PremiumMaxBudgetPct = 0.15
	}
	if cfg.Waterfall.PerLeadTimeoutSecs == 0 {
		cfg.Waterfall.PerLeadTimeoutSecs = 60
	}
	if cfg.Scorer.HotThreshold == 0 {
		cfg.Scorer.HotThreshold = 85
	}
	if cfg.Scorer.WarmThreshold == 0 {
		cfg.Scorer.WarmThreshold = 60
	}
	if cfg.JIT.VoiceMinALS == 0 {
		cfg.JIT.VoiceMinALS = 70
	}
	if cfg.JIT.MailMinALS == 0 {
		cfg.JIT.MailMinALS = 85
	}
	if cfg.JIT.MinTouchGapDays == 0 {
		cfg.JIT.MinTouchGapDays = 2
	}
	if cfg.JIT.ChannelCooldownDays == 0 {
		cfg.JIT.ChannelCooldownDays = 5
	}
	if cfg.JIT.EmailWarmupDays == 0 {
		cfg.JIT.EmailWarmupDays = 14
	}
	if cfg.RateLedger.DailyCapEmailDomain == 0 {
		cfg.RateLedger.DailyCapEmailDomain = 50
	}
	if cfg.RateLedger.DailyCapSMSNumber == 0 {
		cfg.RateLedger.DailyCapSMSNumber = 100
	}
	if cfg.RateLedger.DailyCapVoiceNumber == 0 {
		cfg.RateLedger.DailyCapVoiceNumber = 50
	}
	if cfg.RateLedger.DailyCapLinkedInSeat == 0 {
		cfg.RateLedger.DailyCapLinkedInSeat = 17
	}
	if cfg.RateLedger.DailyCapMailSender == 0 {
		cfg.RateLedger.DailyCapMailSender = 1000
	}
	if cfg.Scheduler.IntervalMinutes == 0 {
		cfg.Scheduler.IntervalMinutes = 60
	}
	if cfg.Scheduler.BatchSize == 0 {
		cfg.Scheduler.BatchSize = 50
	}
	if cfg.Scheduler.MaxParallel == 0 {
		cfg.Scheduler.MaxParallel = 10
	}
	if cfg.Scheduler.AssignmentLockTTLSeconds == 0 {
		cfg.Scheduler.AssignmentLockTTLSeconds = 90
	}
	if cfg.ReplyRouter.LifetimeReplyCapUSD == 0 {
		cfg.ReplyRouter.LifetimeReplyCapUSD = 0.50
	}
	if cfg.ReplyRouter.RecoveryPollMinutes == 0 {
		cfg.ReplyRouter.RecoveryPollMinutes = 15
	}
	if cfg.Patterns.MinConversions == 0 {
		cfg.Patterns.MinConversions = 20
	}
	if cfg.Patterns.MinConfidence == 0 {
		cfg.Patterns.MinConfidence = 0.70
	}
	if cfg.Patterns.MinSampleSize == 0 {
		cfg.Patterns.MinSampleSize = 30
	}
	if cfg.Patterns.RunIntervalDays == 0 {
		cfg.Patterns.RunIntervalDays = 7
	}
	if cfg.Cache.VersionPrefix == "" {
		cfg.Cache.VersionPrefix = "v1"
	}
	if cfg.Cache.EnrichmentTTLDays == 0 {
		cfg.Cache.EnrichmentTTLDays = 90
	}
	if cfg.Cache.SuppressionReplicaTTLHours == 0 {
		cfg.Cache.SuppressionReplicaTTLHours = 24
	}
	if cfg.TestMode.DailyEmailLimit == 0 {
		cfg.TestMode.DailyEmailLimit = 15
	}
}

// LoadFromEnv loads configuration with environment variable overrides.
// It automatically loads a .env file (if present) before reading env vars,
// so secrets can live in .env locally and in real env vars in production.
func LoadFromEnv(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Postgres.DSN = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("AWS_SES_ACCESS_KEY"); v != "" {
		cfg.SES.AccessKey = v
	}
	if v := os.Getenv("AWS_SES_SECRET_KEY"); v != "" {
		cfg.SES.SecretKey = v
	}
	if v := os.Getenv("AWS_SES_REGION"); v != "" {
		cfg.SES.Region = v
	}
	if v := os.Getenv("TEST_MODE"); v == "true" || v == "1" {
		cfg.TestMode.Enabled = true
	}
	if v := os.Getenv("TEST_MODE_REDIRECT_ADDRESS"); v != "" {
		cfg.TestMode.RedirectAddress = v
	}

	return cfg, nil
}
