package config

import (
	"fmt"
	"log"
	"time"
	_ "time/tzdata"

	"github.com/caarlos0/env/v6"
)

type GeneratorProvider string

const (
	GeneratorWorkflow  GeneratorProvider = "workflow"
	GeneratorOpenAI    GeneratorProvider = "openai"
	GeneratorYandex    GeneratorProvider = "yandex"
	GeneratorSimulated GeneratorProvider = "simulated"
)

type StoreBackend string

const (
	StoreFile   StoreBackend = "file"
	StoreRedis  StoreBackend = "redis"
	StoreMemory StoreBackend = "memory"
)

type Config struct {
	// HTTP
	HTTPAddr       string        `env:"HTTP_ADDR" envDefault:":5000"`
	AllowedOrigins []string      `env:"CORS_ALLOWED_ORIGINS" envSeparator:"," envDefault:"*"`
	ReadTimeout    time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"15s"`
	WriteTimeout   time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"120s"`

	// Storage
	StoreBackend  StoreBackend `env:"STORE_BACKEND" envDefault:"file"`
	StoreFilePath string       `env:"STORE_FILE_PATH" envDefault:"data/store.json"`
	RedisAddr     string       `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string       `env:"REDIS_PASSWORD"`
	RedisDB       int          `env:"REDIS_DB" envDefault:"0"`
	RedisPrefix   string       `env:"REDIS_PREFIX" envDefault:"reading:"`

	// Quota and history
	MaxUsesPerDay     int           `env:"MAX_USES_PER_DAY" envDefault:"10"`
	MaxUsesPerMonth   int           `env:"MAX_USES_PER_MONTH" envDefault:"50"`
	ThemeCapacity     int           `env:"THEME_CAPACITY" envDefault:"10"`
	DraftIdle         time.Duration `env:"DRAFT_IDLE" envDefault:"10s"`
	DisplayTimeZone   string        `env:"DISPLAY_TZ" envDefault:"Asia/Hong_Kong"`
	PruneSchedule     string        `env:"PRUNE_SCHEDULE" envDefault:"0 3 * * *"`
	ReportSchedule    string        `env:"REPORT_SCHEDULE" envDefault:"5 0 * * *"`
	EvictSchedule     string        `env:"EVICT_SCHEDULE" envDefault:"*/5 * * * *"`
	WorkspaceIdle     time.Duration `env:"WORKSPACE_IDLE" envDefault:"30m"`
	UsageRetainDays   int           `env:"USAGE_RETAIN_DAYS" envDefault:"31"`
	UsageRetainMonths int           `env:"USAGE_RETAIN_MONTHS" envDefault:"12"`

	// Generation
	GeneratorProvider GeneratorProvider `env:"GENERATOR_PROVIDER" envDefault:"workflow"`
	WorkflowEndpoint  string            `env:"WORKFLOW_ENDPOINT" envDefault:"https://api.coze.cn/v1/workflow/run"`
	WorkflowBotID     string            `env:"WORKFLOW_BOT_ID"`
	WorkflowAPIKey    string            `env:"WORKFLOW_API_KEY"`
	WorkflowTimeout   time.Duration     `env:"WORKFLOW_TIMEOUT" envDefault:"90s"`

	// LLM settings
	OpenAIAPIKey       string `env:"OPENAI_API_KEY"`
	OpenAIBaseURL      string `env:"OPENAI_BASE_URL"`
	OpenAIModel        string `env:"OPENAI_MODEL" envDefault:"gpt-4o-mini"`
	OpenRouterReferrer string `env:"OPENROUTER_REFERRER"`
	OpenRouterTitle    string `env:"OPENROUTER_TITLE"`
	YandexOAuthToken   string `env:"YANDEX_OAUTH_TOKEN"`
	YandexFolderID     string `env:"YANDEX_FOLDER_ID"`

	// Packaging
	PackagerURL     string        `env:"PACKAGER_URL"`
	PackagerTimeout time.Duration `env:"PACKAGER_TIMEOUT" envDefault:"60s"`
	ArchiveDir      string        `env:"ARCHIVE_DIR" envDefault:"out"`

	// Telegram
	TelegramBotToken string  `env:"TELEGRAM_BOT_TOKEN"`
	AllowedUsers     []int64 `env:"ALLOWED_USERS" envSeparator:":"`
	AdminUserID      int64   `env:"ADMIN_USER_ID"`
	ParseMode        string  `env:"TELEGRAM_PARSE_MODE" envDefault:"HTML"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`
	LogFile   string `env:"LOG_FILE"`
}

func New() *Config {
	cfg, err := Load()
	if err != nil {
		log.Fatalf("failed to parse config: %v", err)
	}
	return cfg
}

// Load parses the environment and validates the result.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.StoreBackend {
	case StoreFile, StoreRedis, StoreMemory:
	default:
		return fmt.Errorf("unknown store backend: %s", c.StoreBackend)
	}
	switch c.GeneratorProvider {
	case GeneratorWorkflow, GeneratorOpenAI, GeneratorYandex, GeneratorSimulated:
	default:
		return fmt.Errorf("unknown generator provider: %s", c.GeneratorProvider)
	}
	if c.ThemeCapacity <= 0 {
		return fmt.Errorf("THEME_CAPACITY must be positive, got %d", c.ThemeCapacity)
	}
	if _, err := time.LoadLocation(c.DisplayTimeZone); err != nil {
		return fmt.Errorf("invalid DISPLAY_TZ %q: %w", c.DisplayTimeZone, err)
	}
	return nil
}

// Location returns the display time zone, falling back to UTC.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.DisplayTimeZone)
	if err != nil {
		return time.UTC
	}
	return loc
}
