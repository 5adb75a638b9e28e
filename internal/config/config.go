package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ============================================================
// MAIN CONFIG
// ============================================================

type Config struct {
	Chain     ChainConfig     `yaml:"chain"`
	Store     StoreConfig     `yaml:"store"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Epoch     EpochConfig     `yaml:"epoch"`
	Selector  SelectorConfig  `yaml:"selector"`
	Server    ServerConfig    `yaml:"server"`
	Advanced  AdvancedConfig  `yaml:"advanced"`
	Alerts    AlertsConfig    `yaml:"alerts"`
}

// ============================================================
// CHAIN CONFIG
// ============================================================

type ChainConfig struct {
	NetUID          int    `yaml:"net_uid"`
	Network         string `yaml:"network"`
	RPCURL          string `yaml:"rpc_url"`
	SignatureScheme string `yaml:"signature_scheme"` // "ed25519" | "sr25519"
	SyncInterval    string `yaml:"sync_interval"`
	MaxStale        string `yaml:"max_stale"`
	FallbackEnabled bool   `yaml:"fallback_enabled"`
}

// ============================================================
// OBJECT STORE CONFIG
// ============================================================

type StoreConfig struct {
	Bucket           string `yaml:"bucket"`
	Region           string `yaml:"region"`
	AccessKeyID      string `yaml:"access_key_id"`
	SecretAccessKey  string `yaml:"secret_access_key"`
	OperationTimeout string `yaml:"operation_timeout"`
}

// ============================================================
// RATE LIMIT CONFIG
// ============================================================

type RateLimitConfig struct {
	Enabled                bool   `yaml:"enabled"`
	RedisURL               string `yaml:"redis_url"`
	DailyLimitPerMiner     int    `yaml:"daily_limit_per_miner"`
	DailyLimitPerValidator int    `yaml:"daily_limit_per_validator"`
	TotalDailyLimit        int    `yaml:"total_daily_limit"`
	IPDailyLimit           int    `yaml:"ip_daily_limit"`
}

// ============================================================
// EPOCH CONFIG
// ============================================================

type EpochConfig struct {
	DatabaseURL      string `yaml:"database_url"`
	TargetListings   int    `yaml:"target_listings"`
	TolerancePercent int    `yaml:"tolerance_percent"`
	RetentionDays    int    `yaml:"retention_days"`
	UploadTTL        string `yaml:"upload_ttl"`
}

// ============================================================
// SELECTOR CONFIG
// ============================================================

type SelectorConfig struct {
	MinZipcodeListings  int            `yaml:"min_zipcode_listings"`
	MaxZipcodeListings  int            `yaml:"max_zipcode_listings"`
	CooldownHours       int            `yaml:"cooldown_hours"`
	MaxDataAgeDays      int            `yaml:"max_data_age_days"`
	StatePriorities     map[string]int `yaml:"state_priorities"`
	PremiumWeight       float64        `yaml:"premium_weight"`
	StandardWeight      float64        `yaml:"standard_weight"`
	EmergingWeight      float64        `yaml:"emerging_weight"`
	SelectionRandomness float64        `yaml:"selection_randomness"`
	HoneypotProbability float64        `yaml:"honeypot_probability"`
	HoneypotThreshold   int            `yaml:"honeypot_threshold"`
	SecretKey           string         `yaml:"secret_key"`
}

// ============================================================
// SERVER CONFIG
// ============================================================

type ServerConfig struct {
	Port             int    `yaml:"port"`
	PrometheusPort   int    `yaml:"prometheus_port"`
	TimestampSkew    string `yaml:"timestamp_skew"`
	MaxCredentialTTL string `yaml:"max_credential_ttl"`
	MetricsPrefix    string `yaml:"metrics_prefix"`
}

// ============================================================
// ADVANCED CONFIG
// ============================================================

type AdvancedConfig struct {
	ValidatorVerificationTimeout  string `yaml:"validator_verification_timeout"`
	SignatureVerificationTimeout  string `yaml:"signature_verification_timeout"`
	DBTimeout                     string `yaml:"db_timeout"`
	ValidatorMinStake             int64  `yaml:"validator_min_stake"`
	StateFile                     string `yaml:"state_file"`
	OpsLogPort                    int    `yaml:"ops_log_port"`
}

// ============================================================
// ALERTS CONFIG
// ============================================================

// AlertsConfig configures dependency-health alerting: fire/resolve
// durations per rule and the notifier fan-out channels. Mirrors the
// teacher's AlertsConfig shape, repointed at dependency rules instead of
// validator-downtime rules.
type AlertsConfig struct {
	StateFile     string            `yaml:"state_file"`
	CheckInterval string            `yaml:"check_interval"`
	Rules         AlertRulesConfig  `yaml:"rules"`
	Channels      AlertChannelsConfig `yaml:"channels"`
}

type AlertRuleConfig struct {
	Fire    string `yaml:"fire_after"`
	Resolve string `yaml:"resolve_after"`
}

func (r AlertRuleConfig) Enabled() bool          { return r.Fire != "" }
func (r AlertRuleConfig) FireDuration() time.Duration    { return ParseDuration(r.Fire) }
func (r AlertRuleConfig) ResolveDuration() time.Duration { return ParseDuration(r.Resolve) }

type AlertRulesConfig struct {
	ChainStale       AlertRuleConfig `yaml:"chain_stale"`
	EpochGenFailure  AlertRuleConfig `yaml:"epoch_generation_failure"`
	StoreUnavailable AlertRuleConfig `yaml:"store_unavailable"`
	RateLimitDegraded AlertRuleConfig `yaml:"rate_limit_degraded"`
}

type AlertChannelsConfig struct {
	PagerDuty PagerDutyChannelConfig `yaml:"pagerduty"`
	Discord   WebhookChannelConfig   `yaml:"discord"`
	Slack     WebhookChannelConfig   `yaml:"slack"`
	Telegram  TelegramChannelConfig  `yaml:"telegram"`
}

type PagerDutyChannelConfig struct {
	Enabled  bool   `yaml:"enabled"`
	APIKey   string `yaml:"api_key"`
	Severity string `yaml:"severity"`
}

type WebhookChannelConfig struct {
	Enabled bool   `yaml:"enabled"`
	Webhook string `yaml:"webhook"`
}

type TelegramChannelConfig struct {
	Enabled bool   `yaml:"enabled"`
	Token   string `yaml:"token"`
	ChatID  string `yaml:"chat_id"`
}

// ============================================================
// HELPER FUNCTIONS
// ============================================================

// ParseDuration parses duration strings like "1m", "5m", "30s", falling back
// to a plain integer number of seconds when no unit suffix is present.
func ParseDuration(s string) time.Duration {
	if s == "" {
		return 0
	}
	if d, err := time.ParseDuration(s); err == nil {
		return d
	}
	if n, err := strconv.Atoi(s); err == nil {
		return time.Duration(n) * time.Second
	}
	return 0
}

// ParsePercent parses percent strings like "90%", "60%"
func ParsePercent(s string) int {
	if s == "" {
		return 0
	}
	s = strings.TrimSuffix(s, "%")
	val, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return val
}

// ============================================================
// LOAD FUNCTION
// ============================================================

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyEnvOverrides(&cfg)
	applyDefaults(&cfg)
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Chain.SyncInterval == "" {
		cfg.Chain.SyncInterval = "5m"
	}
	if cfg.Chain.MaxStale == "" {
		cfg.Chain.MaxStale = "15m"
	}
	if cfg.Chain.SignatureScheme == "" {
		cfg.Chain.SignatureScheme = "ed25519"
	}
	if cfg.Store.OperationTimeout == "" {
		cfg.Store.OperationTimeout = "60s"
	}
	if cfg.RateLimit.DailyLimitPerMiner == 0 {
		cfg.RateLimit.DailyLimitPerMiner = 20
	}
	if cfg.RateLimit.DailyLimitPerValidator == 0 {
		cfg.RateLimit.DailyLimitPerValidator = 10000
	}
	if cfg.RateLimit.TotalDailyLimit == 0 {
		cfg.RateLimit.TotalDailyLimit = 200000
	}
	if cfg.RateLimit.IPDailyLimit == 0 {
		cfg.RateLimit.IPDailyLimit = 5000
	}
	if cfg.Epoch.TargetListings == 0 {
		cfg.Epoch.TargetListings = 100000
	}
	if cfg.Epoch.TolerancePercent == 0 {
		cfg.Epoch.TolerancePercent = 10
	}
	if cfg.Epoch.RetentionDays == 0 {
		cfg.Epoch.RetentionDays = 7
	}
	if cfg.Epoch.UploadTTL == "" {
		cfg.Epoch.UploadTTL = "4h"
	}
	if cfg.Selector.MinZipcodeListings == 0 {
		cfg.Selector.MinZipcodeListings = 50
	}
	if cfg.Selector.MaxZipcodeListings == 0 {
		cfg.Selector.MaxZipcodeListings = 20000
	}
	if cfg.Selector.CooldownHours == 0 {
		cfg.Selector.CooldownHours = 24
	}
	if cfg.Selector.MaxDataAgeDays == 0 {
		cfg.Selector.MaxDataAgeDays = 30
	}
	if cfg.Selector.PremiumWeight == 0 {
		cfg.Selector.PremiumWeight = 1.5
	}
	if cfg.Selector.StandardWeight == 0 {
		cfg.Selector.StandardWeight = 1.0
	}
	if cfg.Selector.EmergingWeight == 0 {
		cfg.Selector.EmergingWeight = 0.8
	}
	if cfg.Selector.HoneypotThreshold == 0 {
		cfg.Selector.HoneypotThreshold = cfg.Selector.MinZipcodeListings
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.PrometheusPort == 0 {
		cfg.Server.PrometheusPort = 9999
	}
	if cfg.Server.TimestampSkew == "" {
		cfg.Server.TimestampSkew = "300s"
	}
	if cfg.Server.MaxCredentialTTL == "" {
		cfg.Server.MaxCredentialTTL = "86400s"
	}
	if cfg.Advanced.ValidatorVerificationTimeout == "" {
		cfg.Advanced.ValidatorVerificationTimeout = "120s"
	}
	if cfg.Advanced.SignatureVerificationTimeout == "" {
		cfg.Advanced.SignatureVerificationTimeout = "60s"
	}
	if cfg.Advanced.DBTimeout == "" {
		cfg.Advanced.DBTimeout = "10s"
	}
	if cfg.Alerts.CheckInterval == "" {
		cfg.Alerts.CheckInterval = "30s"
	}
	if cfg.Alerts.Rules.ChainStale.Fire == "" {
		cfg.Alerts.Rules.ChainStale.Fire = "5m"
	}
	if cfg.Alerts.Rules.EpochGenFailure.Fire == "" {
		cfg.Alerts.Rules.EpochGenFailure.Fire = "1m"
	}
	if cfg.Alerts.Rules.StoreUnavailable.Fire == "" {
		cfg.Alerts.Rules.StoreUnavailable.Fire = "1m"
	}
	if cfg.Alerts.Rules.RateLimitDegraded.Fire == "" {
		cfg.Alerts.Rules.RateLimitDegraded.Fire = "2m"
	}
}

// applyEnvOverrides layers the broker's recognized environment keys on top
// of whatever the YAML file already set.
func applyEnvOverrides(cfg *Config) {
	str := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	i := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}
	i64 := func(key string, dst *int64) {
		if v := os.Getenv(key); v != "" {
			if n, err := strconv.ParseInt(v, 10, 64); err == nil {
				*dst = n
			}
		}
	}
	f := func(key string, dst *float64) {
		if v := os.Getenv(key); v != "" {
			if n, err := strconv.ParseFloat(v, 64); err == nil {
				*dst = n
			}
		}
	}
	b := func(key string, dst *bool) {
		if v := os.Getenv(key); v != "" {
			*dst = v == "true" || v == "1"
		}
	}

	i("NET_UID", &cfg.Chain.NetUID)
	str("BT_NETWORK", &cfg.Chain.Network)
	str("S3_BUCKET", &cfg.Store.Bucket)
	str("S3_REGION", &cfg.Store.Region)
	i("DAILY_LIMIT_PER_MINER", &cfg.RateLimit.DailyLimitPerMiner)
	i("DAILY_LIMIT_PER_VALIDATOR", &cfg.RateLimit.DailyLimitPerValidator)
	i("TOTAL_DAILY_LIMIT", &cfg.RateLimit.TotalDailyLimit)
	b("ENABLE_RATE_LIMITING", &cfg.RateLimit.Enabled)
	str("VALIDATOR_VERIFICATION_TIMEOUT", &cfg.Advanced.ValidatorVerificationTimeout)
	str("SIGNATURE_VERIFICATION_TIMEOUT", &cfg.Advanced.SignatureVerificationTimeout)
	str("S3_OPERATION_TIMEOUT", &cfg.Store.OperationTimeout)
	str("METAGRAPH_SYNC_INTERVAL", &cfg.Chain.SyncInterval)
	i64("VALIDATOR_MIN_STAKE", &cfg.Advanced.ValidatorMinStake)
	i("TARGET_LISTINGS", &cfg.Epoch.TargetListings)
	i("TOLERANCE_PERCENT", &cfg.Epoch.TolerancePercent)
	i("MIN_ZIPCODE_LISTINGS", &cfg.Selector.MinZipcodeListings)
	i("MAX_ZIPCODE_LISTINGS", &cfg.Selector.MaxZipcodeListings)
	i("COOLDOWN_HOURS", &cfg.Selector.CooldownHours)
	if v := os.Getenv("STATE_PRIORITIES"); v != "" {
		cfg.Selector.StatePriorities = parseStatePriorities(v)
	}
	f("PREMIUM_WEIGHT", &cfg.Selector.PremiumWeight)
	f("STANDARD_WEIGHT", &cfg.Selector.StandardWeight)
	f("EMERGING_WEIGHT", &cfg.Selector.EmergingWeight)
	f("SELECTION_RANDOMNESS", &cfg.Selector.SelectionRandomness)
	f("HONEYPOT_PROBABILITY", &cfg.Selector.HoneypotProbability)
	i("HONEYPOT_THRESHOLD", &cfg.Selector.HoneypotThreshold)
	str("ZIPCODE_SECRET_KEY", &cfg.Selector.SecretKey)
	str("DATABASE_URL", &cfg.Epoch.DatabaseURL)
	str("REDIS_URL", &cfg.RateLimit.RedisURL)
	str("TIMESTAMP_SKEW_SECONDS", &cfg.Server.TimestampSkew)
	str("MAX_CREDENTIAL_TTL_SECONDS", &cfg.Server.MaxCredentialTTL)
	str("ALERT_STATE_FILE", &cfg.Alerts.StateFile)
	b("ALERT_PAGERDUTY_ENABLED", &cfg.Alerts.Channels.PagerDuty.Enabled)
	str("ALERT_PAGERDUTY_API_KEY", &cfg.Alerts.Channels.PagerDuty.APIKey)
	b("ALERT_DISCORD_ENABLED", &cfg.Alerts.Channels.Discord.Enabled)
	str("ALERT_DISCORD_WEBHOOK", &cfg.Alerts.Channels.Discord.Webhook)
	b("ALERT_SLACK_ENABLED", &cfg.Alerts.Channels.Slack.Enabled)
	str("ALERT_SLACK_WEBHOOK", &cfg.Alerts.Channels.Slack.Webhook)
	b("ALERT_TELEGRAM_ENABLED", &cfg.Alerts.Channels.Telegram.Enabled)
	str("ALERT_TELEGRAM_TOKEN", &cfg.Alerts.Channels.Telegram.Token)
	str("ALERT_TELEGRAM_CHAT_ID", &cfg.Alerts.Channels.Telegram.ChatID)
}

// parseStatePriorities parses "PA:1,NJ:2,NY:3" into a map. Lower number means
// higher priority.
func parseStatePriorities(raw string) map[string]int {
	out := make(map[string]int)
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		parts := strings.SplitN(pair, ":", 2)
		if len(parts) != 2 {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(parts[1]))
		if err != nil {
			continue
		}
		out[strings.TrimSpace(parts[0])] = n
	}
	return out
}
