package config

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/AzielCF/az-postsync/domains/schedule"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
)

const (
	BackendFile   = "file"
	BackendHTTP   = "http"
	BackendValkey = "valkey"
	BackendSQL    = "sql"
)

// Config holds all application configuration in a structured way.
type Config struct {
	App      AppConfig
	Store    StoreConfig
	Database DatabaseConfig
	Valkey   ValkeyConfig
	Platform PlatformConfig
	Engine   EngineConfig
	Notify   NotifyConfig
}

type AppConfig struct {
	Version     string
	Port        string
	Debug       bool
	Environment string
	BasicAuth   []string
	BasePath    string
	ServerID    string
	StorageDir  string
}

// StoreConfig selects where the schedule document lives.
type StoreConfig struct {
	Backend     string
	FilePath    string
	HTTPURL     string
	HTTPToken   string
	HTTPTimeout time.Duration
	Key         string // document key for the valkey and sql backends
}

type DatabaseConfig struct {
	Driver   string
	Host     string
	Port     int
	User     string
	Password string
	Name     string // File path for SQLite, DB Name for Postgres
}

type ValkeyConfig struct {
	Enabled   bool
	Address   string
	Password  string
	DB        int
	KeyPrefix string
}

type PlatformConfig struct {
	BaseURL      string
	Timeout      time.Duration
	PollAttempts int
	PollDelay    time.Duration
	PollMaxDelay time.Duration
	RecentLookup int
}

type EngineConfig struct {
	Interval     time.Duration
	RunOnStart   bool
	MaxAttempts  int
	RetryDelays  []time.Duration
	CallSpacing  time.Duration
	StaleAfter   time.Duration
	WriteRetries int
	LockTTL      time.Duration
	HistorySize  int
}

type NotifyConfig struct {
	Log             bool
	WebhookURLs     []string
	WebhookSecret   string
	WebhookInsecure bool
	SMTPHost        string
	SMTPPort        int
	SMTPUser        string
	SMTPPassword    string
	EmailFrom       string
	EmailTo         []string
}

// Global provides access to the loaded configuration.
var Global *Config

// LoadConfig loads configuration from environment variables or defaults.
// Call utils.LoadConfig first so a .env file is already in the environment.
func LoadConfig() (*Config, error) {
	storageDir := getEnv("APP_STORAGE_DIR", "storages")

	cfg := &Config{
		App: AppConfig{
			Version:     "v1.0.0",
			Port:        getEnv("APP_PORT", "3000"),
			Debug:       getEnvBool("APP_DEBUG", false) || getEnvBool("DEBUG", false),
			Environment: getEnv("APP_ENV", "development"),
			BasicAuth:   getEnvList("APP_BASIC_AUTH"),
			BasePath:    getEnv("APP_BASE_PATH", ""),
			ServerID:    getEnv("SERVER_ID", ""),
			StorageDir:  storageDir,
		},
		Store: StoreConfig{
			Backend:     strings.ToLower(getEnv("STORE_BACKEND", BackendFile)),
			FilePath:    getEnv("STORE_FILE_PATH", filepath.Join(storageDir, "schedule.json")),
			HTTPURL:     getEnv("STORE_HTTP_URL", ""),
			HTTPToken:   getEnv("STORE_HTTP_TOKEN", ""),
			HTTPTimeout: getEnvDuration("STORE_HTTP_TIMEOUT", 15*time.Second),
			Key:         getEnv("STORE_KEY", "main"),
		},
		Database: DatabaseConfig{
			Driver:   getEnv("DB_DRIVER", "sqlite"),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", ""),
			Name:     getEnv("DB_NAME", filepath.Join(storageDir, "postsync.db")),
		},
		Valkey: ValkeyConfig{
			Enabled:   getEnvBool("VALKEY_ENABLED", false),
			Address:   getEnv("VALKEY_ADDRESS", "localhost:6379"),
			Password:  getEnv("VALKEY_PASSWORD", ""),
			DB:        getEnvInt("VALKEY_DB", 0),
			KeyPrefix: getEnv("VALKEY_KEY_PREFIX", "postsync:"),
		},
		Platform: PlatformConfig{
			BaseURL:      getEnv("PLATFORM_BASE_URL", "https://graph.facebook.com/v21.0"),
			Timeout:      getEnvDuration("PLATFORM_TIMEOUT", 30*time.Second),
			PollAttempts: getEnvInt("PLATFORM_POLL_ATTEMPTS", 5),
			PollDelay:    getEnvDuration("PLATFORM_POLL_DELAY", 2*time.Second),
			PollMaxDelay: getEnvDuration("PLATFORM_POLL_MAX_DELAY", 30*time.Second),
			RecentLookup: getEnvInt("PLATFORM_RECENT_LOOKUP", 10),
		},
		Engine: EngineConfig{
			Interval:     getEnvDuration("ENGINE_INTERVAL", time.Hour),
			RunOnStart:   getEnvBool("ENGINE_RUN_ON_START", true),
			MaxAttempts:  getEnvInt("ENGINE_MAX_ATTEMPTS", schedule.MaxAttempts),
			RetryDelays:  getEnvDurations("ENGINE_RETRY_DELAYS", []time.Duration{2 * time.Second, 4 * time.Second}),
			CallSpacing:  getEnvDuration("ENGINE_CALL_SPACING", time.Second),
			StaleAfter:   getEnvDuration("ENGINE_STALE_AFTER", 0),
			WriteRetries: getEnvInt("ENGINE_WRITE_RETRIES", 5),
			LockTTL:      getEnvDuration("ENGINE_LOCK_TTL", 30*time.Minute),
			HistorySize:  getEnvInt("ENGINE_HISTORY_SIZE", 50),
		},
		Notify: NotifyConfig{
			Log:             getEnvBool("NOTIFY_LOG", true),
			WebhookURLs:     getEnvList("NOTIFY_WEBHOOK_URLS"),
			WebhookSecret:   getEnv("NOTIFY_WEBHOOK_SECRET", ""),
			WebhookInsecure: getEnvBool("NOTIFY_WEBHOOK_INSECURE_SKIP_VERIFY", false),
			SMTPHost:        getEnv("NOTIFY_SMTP_HOST", ""),
			SMTPPort:        getEnvInt("NOTIFY_SMTP_PORT", 587),
			SMTPUser:        getEnv("NOTIFY_SMTP_USER", ""),
			SMTPPassword:    getEnv("NOTIFY_SMTP_PASSWORD", ""),
			EmailFrom:       getEnv("NOTIFY_EMAIL_FROM", ""),
			EmailTo:         getEnvList("NOTIFY_EMAIL_TO"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	Global = cfg
	return cfg, nil
}

// Validate checks the combinations a run cannot start without.
func (c *Config) Validate() error {
	s := c.Store
	if err := validation.ValidateStruct(&s,
		validation.Field(&s.Backend, validation.Required, validation.In(BackendFile, BackendHTTP, BackendValkey, BackendSQL)),
		validation.Field(&s.FilePath, validation.When(s.Backend == BackendFile, validation.Required)),
		validation.Field(&s.HTTPURL, validation.When(s.Backend == BackendHTTP, validation.Required, is.URL)),
		validation.Field(&s.Key, validation.When(s.Backend == BackendValkey || s.Backend == BackendSQL, validation.Required)),
	); err != nil {
		return err
	}

	d := c.Database
	if err := validation.ValidateStruct(&d,
		validation.Field(&d.Driver, validation.When(s.Backend == BackendSQL, validation.In("sqlite", "postgres"))),
	); err != nil {
		return err
	}

	e := c.Engine
	if err := validation.ValidateStruct(&e,
		validation.Field(&e.MaxAttempts, validation.Min(1), validation.Max(schedule.MaxAttempts)),
		validation.Field(&e.Interval, validation.Min(time.Minute)),
		validation.Field(&e.WriteRetries, validation.Min(1)),
	); err != nil {
		return err
	}

	p := c.Platform
	if err := validation.ValidateStruct(&p,
		validation.Field(&p.BaseURL, validation.Required, is.URL),
		validation.Field(&p.PollAttempts, validation.Min(1)),
	); err != nil {
		return err
	}

	n := c.Notify
	return validation.ValidateStruct(&n,
		validation.Field(&n.WebhookURLs, validation.Each(is.URL)),
		validation.Field(&n.EmailFrom, validation.When(len(n.EmailTo) > 0, validation.Required, is.Email)),
		validation.Field(&n.SMTPHost, validation.When(len(n.EmailTo) > 0, validation.Required)),
		validation.Field(&n.EmailTo, validation.Each(is.Email)),
	)
}

// ValkeyRequired reports whether the chosen backend needs a valkey server.
func (c *Config) ValkeyRequired() bool {
	return c.Valkey.Enabled || c.Store.Backend == BackendValkey
}
