package blogconsole

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// SiteConfig holds all configuration for a console deployment.
type SiteConfig struct {
	Name        string `yaml:"name" env:"SITE_NAME" env-default:"Producer Blog"`
	URL         string `yaml:"url" env:"SITE_URL" env-default:"http://localhost:3000"`
	Description string `yaml:"description" env:"SITE_DESCRIPTION"`

	Env      string `yaml:"env" env:"APP_ENV" env-default:"local"` // local, dev or prod
	LogLevel string `yaml:"log_level" env:"LOG_LEVEL"`
	Addr     string `yaml:"addr" env:"ADDR" env-default:":3000"`

	APIBaseURL string        `yaml:"api_base_url" env:"API_BASE_URL"`
	APITimeout time.Duration `yaml:"api_timeout" env:"API_TIMEOUT" env-default:"10s"`

	// UseAPIMocks serves the console from the local SQLite store instead of
	// the remote backend.
	UseAPIMocks      bool   `yaml:"use_api_mocks" env:"USE_API_MOCKS"`
	MockDatabasePath string `yaml:"mock_database_path" env:"MOCK_DATABASE_PATH" env-default:"data/blog.db"`

	DefaultProducerID string `yaml:"default_producer_id" env:"DEFAULT_PRODUCER_ID" env-default:"demo-producer"`
	LoginPath         string `yaml:"login_path" env:"LOGIN_PATH" env-default:"/login"`

	SessionSecret string `yaml:"session_secret" env:"SESSION_SECRET"`
	CookieSecure  bool   `yaml:"cookie_secure" env:"COOKIE_SECURE"`

	// CacheStaleTime is how long console data stays fresh. Zero means the
	// 30s default; a negative value such as -1s turns time-based staleness off.
	CacheStaleTime time.Duration `yaml:"cache_stale_time" env:"CACHE_STALE_TIME" env-default:"30s"`
	StorefrontTTL  time.Duration `yaml:"storefront_cache_ttl" env:"STOREFRONT_CACHE_TTL" env-default:"5m"`
	// WorkspaceTTL is how long an idle caller's console cache is kept.
	WorkspaceTTL time.Duration `yaml:"workspace_ttl" env:"WORKSPACE_TTL" env-default:"30m"`

	Redis RedisConfig `yaml:"redis"`

	WriteLimit       int           `yaml:"write_limit" env:"WRITE_LIMIT" env-default:"30"`
	WriteLimitWindow time.Duration `yaml:"write_limit_window" env:"WRITE_LIMIT_WINDOW" env-default:"1m"`
}

// RedisConfig points the storefront page cache at a shared Redis. An empty
// Addr keeps the cache in process.
type RedisConfig struct {
	Addr     string `yaml:"addr" env:"REDIS_ADDR"`
	Password string `yaml:"password" env:"REDIS_PASSWORD"`
	DB       int    `yaml:"db" env:"REDIS_DB"`
}

// LoadConfig reads the configuration from the YAML file at path, overlaid
// with environment variables. An empty path reads the environment only.
func LoadConfig(path string) (SiteConfig, error) {
	var cfg SiteConfig
	var err error
	if path != "" {
		err = cleanenv.ReadConfig(path, &cfg)
	} else {
		err = cleanenv.ReadEnv(&cfg)
	}
	if err != nil {
		return SiteConfig{}, fmt.Errorf("blogconsole: read config: %w", err)
	}
	cfg.setDefaults()
	return cfg, nil
}

func (c *SiteConfig) setDefaults() {
	if c.Name == "" {
		c.Name = "Producer Blog"
	}
	if c.URL == "" {
		c.URL = "http://localhost:3000"
	}
	if c.Env == "" {
		c.Env = envLocal
	}
	if c.Addr == "" {
		c.Addr = ":3000"
	}
	if c.APITimeout == 0 {
		c.APITimeout = 10 * time.Second
	}
	if c.MockDatabasePath == "" {
		c.MockDatabasePath = "data/blog.db"
	}
	if c.DefaultProducerID == "" {
		c.DefaultProducerID = "demo-producer"
	}
	if c.LoginPath == "" {
		c.LoginPath = "/login"
	}
	if c.CacheStaleTime == 0 {
		c.CacheStaleTime = 30 * time.Second
	}
	if c.StorefrontTTL == 0 {
		c.StorefrontTTL = 5 * time.Minute
	}
	if c.WorkspaceTTL == 0 {
		c.WorkspaceTTL = 30 * time.Minute
	}
	if c.WriteLimit == 0 {
		c.WriteLimit = 30
	}
	if c.WriteLimitWindow == 0 {
		c.WriteLimitWindow = time.Minute
	}
}

// Option configures additional App behavior.
type Option func(*App)

// WithCustomRoutes registers additional routes on the Echo instance.
// The callback receives the App before the server starts.
func WithCustomRoutes(fn func(*App)) Option {
	return func(a *App) {
		a.customRoutes = append(a.customRoutes, fn)
	}
}

// WithLogger sets the application logger. By default one is built from
// Config.Env and Config.LogLevel.
func WithLogger(l *slog.Logger) Option {
	return func(a *App) {
		a.Log = l
	}
}

// WithRemote replaces the backend the console talks to. It takes precedence
// over Config.UseAPIMocks and Config.APIBaseURL.
func WithRemote(r Remote, sf Storefront) Option {
	return func(a *App) {
		a.Remote = r
		a.Storefront = sf
	}
}

// WithPageCache replaces the storefront page cache.
func WithPageCache(pc PageCache) Option {
	return func(a *App) {
		a.Pages = pc
	}
}

// WithMetrics sets the Prometheus metrics the app records into.
func WithMetrics(m *Metrics) Option {
	return func(a *App) {
		a.Metrics = m
	}
}
