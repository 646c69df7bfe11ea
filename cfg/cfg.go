package cfg

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
)

type Secret struct {
	value []byte
}

func NewSecret(s string) Secret {
	return Secret{value: []byte(s)}
}
func (s Secret) Value() string {
	return string(s.value)
}
func (s Secret) Wipe() {
	for i := range s.value {
		s.value[i] = 0
	}
}
func (s Secret) String() string {
	return "***REDACTED***"
}

type Cfg struct {
	Environment    string
	LogLevel       string
	ConfigFile     string
	BaseURL        string
	RequestTimeout time.Duration
	UserAgent      string
	Port           string
	ContextTimeout time.Duration
	MetricsUser    string
	MetricsPass    Secret
	RedisURL       string
	RedisTLS       bool
	RedisUsername  string
	RedisPassword  Secret
	RedisTimeout   time.Duration
	SessionTTL     time.Duration
	HistoryPath    string
	DBMaxOpenConns int
	DBMaxIdleConns int
	DBQueryTimeout time.Duration
}

// fileCfg is the optional TOML file named by PBIN_CONFIG. Its values replace
// built-in defaults; environment variables still win.
type fileCfg struct {
	Environment string `toml:"environment"`
	LogLevel    string `toml:"log_level"`
	BaseURL     string `toml:"base_url"`
	Timeout     string `toml:"timeout"`
	UserAgent   string `toml:"user_agent"`
	Port        string `toml:"port"`
	RedisURL    string `toml:"redis_url"`
	SessionTTL  string `toml:"session_ttl"`
	HistoryPath string `toml:"history_path"`
}

func Load() (*Cfg, error) {
	if err := loadDotEnv(getEnv("ENV_FILE", ".env")); err != nil {
		return nil, err
	}
	c := &Cfg{}
	c.ConfigFile = getEnv("PBIN_CONFIG", "")
	f, err := loadFile(c.ConfigFile)
	if err != nil {
		return nil, err
	}
	c.Environment = getEnv("ENVIRONMENT", or(f.Environment, "development"))
	c.LogLevel = getEnv("LOG_LEVEL", or(f.LogLevel, "info"))
	c.BaseURL = getEnv("PASTEBIN_BASE_URL", or(f.BaseURL, "https://pastebin.com/"))
	c.UserAgent = getEnv("PASTEBIN_USER_AGENT", or(f.UserAgent, "pbin/1.0"))
	c.RequestTimeout, err = getDuration("PASTEBIN_TIMEOUT", or(f.Timeout, "5s"))
	if err != nil {
		return nil, err
	}
	c.Port = getEnv("PORT", or(f.Port, "8080"))
	c.ContextTimeout, err = getDuration("CONTEXT_TIMEOUT", max(10*time.Second, 2*c.RequestTimeout).String())
	if err != nil {
		return nil, err
	}
	c.MetricsUser = getEnv("METRICS_USER", "")
	c.MetricsPass = NewSecret(getEnv("METRICS_PASS", ""))
	c.RedisURL = getEnv("REDIS_URL", f.RedisURL)
	c.RedisTLS = getEnv("REDIS_TLS", "false") == "true"
	c.RedisUsername = getEnv("REDIS_USERNAME", "")
	c.RedisPassword = NewSecret(getEnv("REDIS_PASSWORD", ""))
	c.RedisTimeout, err = getDuration("REDIS_TIMEOUT", "5s")
	if err != nil {
		return nil, err
	}
	c.SessionTTL, err = getDuration("SESSION_TTL", or(f.SessionTTL, "0s"))
	if err != nil {
		return nil, err
	}
	c.HistoryPath = getEnv("HISTORY_PATH", f.HistoryPath)
	c.DBMaxOpenConns, err = getInt("DB_MAX_OPEN_CONNS", 4)
	if err != nil {
		return nil, err
	}
	c.DBMaxIdleConns, err = getInt("DB_MAX_IDLE_CONNS", 2)
	if err != nil {
		return nil, err
	}
	c.DBQueryTimeout, err = getDuration("DB_QUERY_TIMEOUT", "5s")
	if err != nil {
		return nil, err
	}
	return c, nil
}
func Validate(c *Cfg) error {
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return errors.Wrap(err, "invalid PASTEBIN_BASE_URL")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return errors.New("PASTEBIN_BASE_URL must start with http:// or https://")
	}
	if u.Host == "" {
		return errors.New("PASTEBIN_BASE_URL must include a host")
	}
	if c.RequestTimeout <= 0 {
		return errors.New("PASTEBIN_TIMEOUT must be positive")
	}
	if c.RequestTimeout > 2*time.Minute {
		return errors.New("PASTEBIN_TIMEOUT cannot exceed 2 minutes")
	}
	if c.Port == "" {
		return errors.New("PORT is required")
	}
	if _, err := strconv.Atoi(c.Port); err != nil {
		return errors.New("PORT must be a number")
	}
	// A bridge post may need a login and the post itself.
	if c.ContextTimeout < 2*c.RequestTimeout {
		return errors.New("CONTEXT_TIMEOUT must be at least twice PASTEBIN_TIMEOUT")
	}
	if c.RedisURL != "" {
		if !strings.HasPrefix(c.RedisURL, "redis://") && !strings.HasPrefix(c.RedisURL, "rediss://") {
			return errors.New("REDIS_URL must start with redis:// or rediss://")
		}
		if strings.HasPrefix(c.RedisURL, "rediss://") && !c.RedisTLS {
			return errors.New("REDIS_URL uses rediss:// but REDIS_TLS=false")
		}
	}
	if c.SessionTTL < 0 {
		return errors.New("SESSION_TTL cannot be negative")
	}
	if c.HistoryPath != "" && c.DBMaxOpenConns <= 0 {
		return errors.New("DB_MAX_OPEN_CONNS must be positive")
	}
	if c.Environment == "production" {
		if c.MetricsUser == "" || c.MetricsPass.Value() == "" {
			return errors.New("METRICS_USER and METRICS_PASS are required in production")
		}
	}
	return nil
}
func (c *Cfg) Wipe() {
	c.RedisPassword.Wipe()
	c.MetricsPass.Wipe()
}
func loadDotEnv(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.Wrap(err, "stat env file")
	}
	return errors.Wrapf(godotenv.Load(path), "load env file %s", path)
}
func loadFile(path string) (fileCfg, error) {
	var f fileCfg
	if path == "" {
		return f, nil
	}
	if _, err := toml.DecodeFile(path, &f); err != nil {
		return f, errors.Wrapf(err, "decode config file %s", path)
	}
	return f, nil
}
func or(v, fallback string) string {
	if v != "" {
		return v
	}
	return fallback
}
func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}
func getInt(key string, fallback int) (int, error) {
	s := getEnv(key, "")
	if s == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid integer for %s: %w", key, err)
	}
	return v, nil
}
func getDuration(key string, fallback string) (time.Duration, error) {
	s := getEnv(key, "")
	if s == "" {
		s = fallback
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration for %s: %w", key, err)
	}
	return v, nil
}
