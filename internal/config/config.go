package config

import (
	"errors"
	"fmt"
	"net/netip"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config is the complete RepoScope configuration.
type Config struct {
	Server   ServerConfig   `json:"server" mapstructure:"server"`
	GitHub   GitHubConfig   `json:"github" mapstructure:"github"`
	LLM      LLMConfig      `json:"llm" mapstructure:"llm"`
	Storage  StorageConfig  `json:"storage" mapstructure:"storage"`
	Auth     AuthConfig     `json:"auth" mapstructure:"auth"`
	Analysis AnalysisConfig `json:"analysis" mapstructure:"analysis"`
	Logging  LoggingConfig  `json:"logging" mapstructure:"logging"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Host               string   `json:"host" mapstructure:"host"`
	Port               int      `json:"port" mapstructure:"port"`
	CORSOrigins        []string `json:"corsOrigins" mapstructure:"corsOrigins"`
	ReadTimeoutSec     int      `json:"readTimeoutSec" mapstructure:"readTimeoutSec"`
	ShutdownTimeoutSec int      `json:"shutdownTimeoutSec" mapstructure:"shutdownTimeoutSec"`
	// TrustedProxies are CIDRs or addresses allowed to set X-Forwarded-For.
	TrustedProxies []string `json:"trustedProxies" mapstructure:"trustedProxies"`
}

// GitHubConfig contains GitHub API settings
type GitHubConfig struct {
	Token             string  `json:"-" mapstructure:"token"`
	BaseURL           string  `json:"baseUrl" mapstructure:"baseUrl"`
	RequestsPerSecond float64 `json:"requestsPerSecond" mapstructure:"requestsPerSecond"`
	Burst             int     `json:"burst" mapstructure:"burst"`
	MaxFiles          int     `json:"maxFiles" mapstructure:"maxFiles"`
	MaxFileBytes      int     `json:"maxFileBytes" mapstructure:"maxFileBytes"`
	MaxFileChars      int     `json:"maxFileChars" mapstructure:"maxFileChars"`
	BatchSize         int     `json:"batchSize" mapstructure:"batchSize"`
}

// LLMConfig contains Gemini settings
type LLMConfig struct {
	APIKey          string  `json:"-" mapstructure:"apiKey"`
	Model           string  `json:"model" mapstructure:"model"`
	Temperature     float32 `json:"temperature" mapstructure:"temperature"`
	MaxOutputTokens int32   `json:"maxOutputTokens" mapstructure:"maxOutputTokens"`
	MaxRetries      int     `json:"maxRetries" mapstructure:"maxRetries"`
	TimeoutSec      int     `json:"timeoutSec" mapstructure:"timeoutSec"`
}

// StorageConfig selects the persistence backend.
// Driver is one of "sqlite", "postgres", "memory" or "auto".
type StorageConfig struct {
	Driver      string `json:"driver" mapstructure:"driver"`
	Path        string `json:"path" mapstructure:"path"`
	DatabaseURL string `json:"-" mapstructure:"databaseUrl"`
}

// AuthConfig contains session and account settings
type AuthConfig struct {
	JWTSecret     string          `json:"-" mapstructure:"jwtSecret"`
	TokenTTLHours int             `json:"tokenTtlHours" mapstructure:"tokenTtlHours"`
	BcryptCost    int             `json:"bcryptCost" mapstructure:"bcryptCost"`
	CookieSecure  bool            `json:"cookieSecure" mapstructure:"cookieSecure"`
	UsersFile     string          `json:"usersFile" mapstructure:"usersFile"`
	RateLimit     RateLimitConfig `json:"rateLimit" mapstructure:"rateLimit"`
}

// RateLimitConfig configures the per-client token bucket
type RateLimitConfig struct {
	Enabled           bool `json:"enabled" mapstructure:"enabled"`
	RequestsPerMinute int  `json:"requestsPerMinute" mapstructure:"requestsPerMinute"`
	Burst             int  `json:"burst" mapstructure:"burst"`
}

// AnalysisConfig contains pipeline settings
type AnalysisConfig struct {
	MaxTreeEntries int `json:"maxTreeEntries" mapstructure:"maxTreeEntries"`
	TimeoutSec     int `json:"timeoutSec" mapstructure:"timeoutSec"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Format     string `json:"format" mapstructure:"format"`
	Level      string `json:"level" mapstructure:"level"`
	File       string `json:"file" mapstructure:"file"`
	MaxSize    string `json:"maxSize" mapstructure:"maxSize"`
	MaxBackups int    `json:"maxBackups" mapstructure:"maxBackups"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:               "0.0.0.0",
			Port:               8080,
			CORSOrigins:        []string{"http://localhost:5173", "http://localhost:3000"},
			ReadTimeoutSec:     30,
			ShutdownTimeoutSec: 10,
		},
		GitHub: GitHubConfig{
			BaseURL:           "https://api.github.com/",
			RequestsPerSecond: 10,
			Burst:             10,
			MaxFiles:          25,
			MaxFileBytes:      100000,
			MaxFileChars:      8000,
			BatchSize:         5,
		},
		LLM: LLMConfig{
			Model:           "gemini-2.0-flash",
			Temperature:     0.2,
			MaxOutputTokens: 8192,
			MaxRetries:      3,
			TimeoutSec:      120,
		},
		Storage: StorageConfig{
			Driver: "auto",
			Path:   "reposcope.db",
		},
		Auth: AuthConfig{
			TokenTTLHours: 24 * 7,
			BcryptCost:    10,
			RateLimit: RateLimitConfig{
				Enabled:           true,
				RequestsPerMinute: 30,
				Burst:             10,
			},
		},
		Analysis: AnalysisConfig{
			MaxTreeEntries: 300,
			TimeoutSec:     300,
		},
		Logging: LoggingConfig{
			Format:     "human",
			Level:      "info",
			MaxSize:    "10MB",
			MaxBackups: 3,
		},
	}
}

// conventionalEnv maps config keys to the unprefixed variables deployments
// commonly set. REPOSCOPE_* variables take precedence.
var conventionalEnv = map[string]string{
	"server.port":         "PORT",
	"github.token":        "GITHUB_TOKEN",
	"llm.apiKey":          "GEMINI_API_KEY",
	"storage.databaseUrl": "DATABASE_URL",
	"auth.jwtSecret":      "JWT_SECRET",
}

// Load reads configuration from defaults, an optional config file, .env and
// the environment. An empty configFile searches the working directory and
// $HOME/.reposcope for reposcope.{yaml,toml,json}.
func Load(configFile string) (*Config, error) {
	// a missing .env is fine
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v, DefaultConfig())

	v.SetEnvPrefix("REPOSCOPE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, env := range conventionalEnv {
		prefixed := "REPOSCOPE_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, prefixed, env); err != nil {
			return nil, err
		}
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("reposcope")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".reposcope"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	cfg.Storage.Driver = cfg.ResolveDriver()

	return &cfg, nil
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.corsOrigins", d.Server.CORSOrigins)
	v.SetDefault("server.readTimeoutSec", d.Server.ReadTimeoutSec)
	v.SetDefault("server.shutdownTimeoutSec", d.Server.ShutdownTimeoutSec)
	v.SetDefault("server.trustedProxies", []string{})

	v.SetDefault("github.token", "")
	v.SetDefault("github.baseUrl", d.GitHub.BaseURL)
	v.SetDefault("github.requestsPerSecond", d.GitHub.RequestsPerSecond)
	v.SetDefault("github.burst", d.GitHub.Burst)
	v.SetDefault("github.maxFiles", d.GitHub.MaxFiles)
	v.SetDefault("github.maxFileBytes", d.GitHub.MaxFileBytes)
	v.SetDefault("github.maxFileChars", d.GitHub.MaxFileChars)
	v.SetDefault("github.batchSize", d.GitHub.BatchSize)

	v.SetDefault("llm.apiKey", "")
	v.SetDefault("llm.model", d.LLM.Model)
	v.SetDefault("llm.temperature", d.LLM.Temperature)
	v.SetDefault("llm.maxOutputTokens", d.LLM.MaxOutputTokens)
	v.SetDefault("llm.maxRetries", d.LLM.MaxRetries)
	v.SetDefault("llm.timeoutSec", d.LLM.TimeoutSec)

	v.SetDefault("storage.driver", d.Storage.Driver)
	v.SetDefault("storage.path", d.Storage.Path)
	v.SetDefault("storage.databaseUrl", "")

	v.SetDefault("auth.jwtSecret", "")
	v.SetDefault("auth.tokenTtlHours", d.Auth.TokenTTLHours)
	v.SetDefault("auth.bcryptCost", d.Auth.BcryptCost)
	v.SetDefault("auth.cookieSecure", d.Auth.CookieSecure)
	v.SetDefault("auth.usersFile", "")
	v.SetDefault("auth.rateLimit.enabled", d.Auth.RateLimit.Enabled)
	v.SetDefault("auth.rateLimit.requestsPerMinute", d.Auth.RateLimit.RequestsPerMinute)
	v.SetDefault("auth.rateLimit.burst", d.Auth.RateLimit.Burst)

	v.SetDefault("analysis.maxTreeEntries", d.Analysis.MaxTreeEntries)
	v.SetDefault("analysis.timeoutSec", d.Analysis.TimeoutSec)

	v.SetDefault("logging.format", d.Logging.Format)
	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.file", "")
	v.SetDefault("logging.maxSize", d.Logging.MaxSize)
	v.SetDefault("logging.maxBackups", d.Logging.MaxBackups)
}

// ResolveDriver turns "auto" into a concrete backend: postgres when a
// postgres DATABASE_URL is configured, sqlite otherwise.
func (c *Config) ResolveDriver() string {
	driver := strings.ToLower(strings.TrimSpace(c.Storage.Driver))
	if driver != "" && driver != "auto" {
		return driver
	}
	url := c.Storage.DatabaseURL
	if strings.HasPrefix(url, "postgres://") || strings.HasPrefix(url, "postgresql://") {
		return "postgres"
	}
	return "sqlite"
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return &ConfigError{Field: "server.port", Message: "must be between 1 and 65535"}
	}

	switch c.Storage.Driver {
	case "sqlite":
		if c.Storage.Path == "" {
			return &ConfigError{Field: "storage.path", Message: "required for the sqlite driver"}
		}
	case "postgres":
		if c.Storage.DatabaseURL == "" {
			return &ConfigError{Field: "storage.databaseUrl", Message: "required for the postgres driver"}
		}
	case "memory":
	default:
		return &ConfigError{Field: "storage.driver", Message: fmt.Sprintf("unknown driver %q", c.Storage.Driver)}
	}

	for _, p := range c.Server.TrustedProxies {
		if !validProxy(strings.TrimSpace(p)) {
			return &ConfigError{Field: "server.trustedProxies", Message: fmt.Sprintf("%q is not an IP address or CIDR", p)}
		}
	}

	if c.GitHub.MaxFiles <= 0 || c.GitHub.BatchSize <= 0 {
		return &ConfigError{Field: "github", Message: "maxFiles and batchSize must be positive"}
	}
	if c.Auth.BcryptCost < 4 || c.Auth.BcryptCost > 31 {
		return &ConfigError{Field: "auth.bcryptCost", Message: "must be between 4 and 31"}
	}

	return nil
}

func validProxy(s string) bool {
	if strings.Contains(s, "/") {
		_, err := netip.ParsePrefix(s)
		return err == nil
	}
	_, err := netip.ParseAddr(s)
	return err == nil
}

// ValidateServe adds the checks that only matter when running the HTTP server.
func (c *Config) ValidateServe() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if len(c.Auth.JWTSecret) < 16 {
		return &ConfigError{Field: "auth.jwtSecret", Message: "JWT_SECRET must be at least 16 characters"}
	}
	return nil
}

// Addr returns the listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// ConfigError represents a configuration error
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return "config error in field '" + e.Field + "': " + e.Message
}
