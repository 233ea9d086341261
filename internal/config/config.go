package config

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/dotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	Server    ServerConfig
	Log       LogConfig
	Redis     RedisConfig
	DB        DBConfig
	NATS      NATSConfig
	Quota     QuotaConfig
	Referral  ReferralConfig
	LLM       LLMConfig
	Sheets    SheetsConfig
	Analytics AnalyticsConfig
	RateLimit RateLimitConfig
	CORS      CORSConfig
	Device    DeviceConfig
}

type ServerConfig struct {
	Host         string
	Port         int
	WriteTimeout time.Duration
}

type LogConfig struct {
	Level  string
	Format string
}

// RedisConfig backs the quota and referral stores. With Enabled false both
// live in process memory.
type RedisConfig struct {
	Enabled   bool
	Host      string
	Port      int
	Password  string
	DB        int
	KeyPrefix string
}

func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type DBConfig struct {
	Enabled        bool
	Host           string
	Port           int
	User           string
	Password       string
	Name           string
	SSLMode        string
	MaxConns       int32
	MigrationsPath string
}

// DSN builds a postgres URL, escaping credentials.
func (c DBConfig) DSN() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     net.JoinHostPort(c.Host, strconv.Itoa(c.Port)),
		Path:     "/" + c.Name,
		RawQuery: url.Values{"sslmode": {c.SSLMode}}.Encode(),
	}
	return u.String()
}

// NATSConfig is optional; an empty URL disables the event bus.
type NATSConfig struct {
	URL string
}

// QuotaConfig.Mode is "limited" or "unlimited". Unlimited deployments
// still track usage but never refuse a generation.
type QuotaConfig struct {
	Mode        string
	BaseMax     int
	BonusAmount int
	Cycle       time.Duration
	UsageKey    string
	BonusKey    string
	KeySource   string
}

type ReferralConfig struct {
	Key            string
	ScratchKey     string
	TTL            time.Duration
	AllowedOrigins []string
}

type LLMConfig struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// SheetsConfig enables the spreadsheet analytics sink when SpreadsheetID is set.
type SheetsConfig struct {
	SpreadsheetID   string
	Range           string
	CredentialsFile string
}

type AnalyticsConfig struct {
	QueueSize   int
	Workers     int
	LogEvents   bool
	Persist     bool
	SinkTimeout time.Duration
	// AdminToken guards the summary endpoint; empty disables it.
	AdminToken string
}

type RateLimitConfig struct {
	Requests int
	Window   time.Duration
}

type CORSConfig struct {
	AllowedOrigins []string
}

// DeviceConfig covers client identity: the signed device cookie used when
// Quota.KeySource is "device" and the key for pseudonymous client hashes.
type DeviceConfig struct {
	CookieName   string
	CookieSecret string
	CookieTTL    time.Duration
	HashKey      string
	TrustProxy   bool
}

func Load() (*Config, error) {
	k := koanf.New(".")

	// Load .env file if it exists (ignore error if missing)
	_ = k.Load(file.Provider(".env"), dotenv.Parser())

	// Load environment variables (override .env)
	err := k.Load(env.Provider("", ".", func(s string) string {
		return strings.ToLower(strings.ReplaceAll(s, "_", "."))
	}), nil)
	if err != nil {
		return nil, fmt.Errorf("loading env vars: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Host: k.String("server.host"),
			Port: k.Int("server.port"),
		},
		Log: LogConfig{
			Level:  k.String("log.level"),
			Format: k.String("log.format"),
		},
		Redis: RedisConfig{
			Enabled:   k.Bool("redis.enabled"),
			Host:      k.String("redis.host"),
			Port:      k.Int("redis.port"),
			Password:  k.String("redis.password"),
			DB:        k.Int("redis.db"),
			KeyPrefix: k.String("redis.key.prefix"),
		},
		DB: DBConfig{
			Enabled:        k.Bool("db.enabled"),
			Host:           k.String("db.host"),
			Port:           k.Int("db.port"),
			User:           k.String("db.user"),
			Password:       k.String("db.password"),
			Name:           k.String("db.name"),
			SSLMode:        k.String("db.sslmode"),
			MaxConns:       int32(k.Int("db.max.conns")),
			MigrationsPath: k.String("db.migrations.path"),
		},
		NATS: NATSConfig{
			URL: k.String("nats.url"),
		},
		Quota: QuotaConfig{
			Mode:        k.String("quota.mode"),
			BaseMax:     k.Int("quota.base.max"),
			BonusAmount: k.Int("quota.bonus.amount"),
			UsageKey:    k.String("quota.usage.key"),
			BonusKey:    k.String("quota.bonus.key"),
			KeySource:   k.String("quota.key.source"),
		},
		Referral: ReferralConfig{
			Key:            k.String("referral.key"),
			ScratchKey:     k.String("referral.scratch.key"),
			AllowedOrigins: splitList(k.String("referral.allowed.origins")),
		},
		LLM: LLMConfig{
			BaseURL: k.String("llm.base.url"),
			APIKey:  k.String("llm.api.key"),
			Model:   k.String("llm.model"),
		},
		Sheets: SheetsConfig{
			SpreadsheetID:   k.String("sheets.spreadsheet.id"),
			Range:           k.String("sheets.range"),
			CredentialsFile: k.String("sheets.credentials.file"),
		},
		Analytics: AnalyticsConfig{
			QueueSize:  k.Int("analytics.queue.size"),
			Workers:    k.Int("analytics.workers"),
			LogEvents:  k.Bool("analytics.log.events"),
			Persist:    k.Bool("analytics.persist"),
			AdminToken: k.String("analytics.admin.token"),
		},
		RateLimit: RateLimitConfig{
			Requests: k.Int("ratelimit.requests"),
		},
		CORS: CORSConfig{
			AllowedOrigins: splitList(k.String("cors.allowed.origins")),
		},
		Device: DeviceConfig{
			CookieName:   k.String("device.cookie.name"),
			CookieSecret: k.String("device.cookie.secret"),
			HashKey:      k.String("device.hash.key"),
			TrustProxy:   k.Bool("device.trust.proxy"),
		},
	}

	// Apply defaults
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.Redis.KeyPrefix == "" {
		cfg.Redis.KeyPrefix = "reelrank:"
	}
	if cfg.DB.Host == "" {
		cfg.DB.Host = "localhost"
	}
	if cfg.DB.Port == 0 {
		cfg.DB.Port = 5432
	}
	if cfg.DB.User == "" {
		cfg.DB.User = "reelrank"
	}
	if cfg.DB.Name == "" {
		cfg.DB.Name = "reelrank"
	}
	if cfg.DB.SSLMode == "" {
		cfg.DB.SSLMode = "disable"
	}
	if cfg.DB.MaxConns == 0 {
		cfg.DB.MaxConns = 10
	}
	if cfg.DB.MigrationsPath == "" {
		cfg.DB.MigrationsPath = "migrations"
	}
	if cfg.Quota.Mode == "" {
		cfg.Quota.Mode = "limited"
	}
	if cfg.Quota.BaseMax == 0 {
		cfg.Quota.BaseMax = 5
	}
	if cfg.Quota.BonusAmount == 0 {
		cfg.Quota.BonusAmount = 5
	}
	if cfg.Quota.UsageKey == "" {
		cfg.Quota.UsageKey = "keywordGeneratorUsage_limit"
	}
	if cfg.Quota.BonusKey == "" {
		cfg.Quota.BonusKey = "keywordGeneratorEmailBonusData_limit"
	}
	if cfg.Quota.KeySource == "" {
		cfg.Quota.KeySource = "ip"
	}
	if cfg.Referral.Key == "" {
		cfg.Referral.Key = "referralCodeData"
	}
	if cfg.Referral.ScratchKey == "" {
		cfg.Referral.ScratchKey = "referralCode"
	}
	if len(cfg.Referral.AllowedOrigins) == 0 {
		cfg.Referral.AllowedOrigins = []string{"https://superprofile.bio"}
	}
	if cfg.LLM.BaseURL == "" {
		cfg.LLM.BaseURL = "https://generativelanguage.googleapis.com/v1beta"
	}
	if cfg.LLM.Model == "" {
		cfg.LLM.Model = "gemini-2.0-flash"
	}
	if cfg.Sheets.Range == "" {
		cfg.Sheets.Range = "Events!A1"
	}
	if cfg.Analytics.QueueSize == 0 {
		cfg.Analytics.QueueSize = 1024
	}
	if cfg.Analytics.Workers == 0 {
		cfg.Analytics.Workers = 2
	}
	if cfg.RateLimit.Requests == 0 {
		cfg.RateLimit.Requests = 20
	}
	if len(cfg.CORS.AllowedOrigins) == 0 {
		cfg.CORS.AllowedOrigins = []string{"https://superprofile.bio"}
	}
	if cfg.Device.CookieName == "" {
		cfg.Device.CookieName = "rr_device"
	}

	// Parse durations
	durations := []struct {
		key string
		def string
		dst *time.Duration
	}{
		{"server.write.timeout", "30s", &cfg.Server.WriteTimeout},
		{"quota.cycle", "24h", &cfg.Quota.Cycle},
		{"referral.ttl", "720h", &cfg.Referral.TTL},
		{"llm.timeout", "20s", &cfg.LLM.Timeout},
		{"analytics.sink.timeout", "10s", &cfg.Analytics.SinkTimeout},
		{"ratelimit.window", "1m", &cfg.RateLimit.Window},
		{"device.cookie.ttl", "8760h", &cfg.Device.CookieTTL},
	}
	for _, d := range durations {
		s := k.String(d.key)
		if s == "" {
			s = d.def
		}
		*d.dst, err = time.ParseDuration(s)
		if err != nil {
			return nil, fmt.Errorf("parsing %s: %w", d.key, err)
		}
	}

	return cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
