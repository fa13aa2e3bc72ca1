package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Addr                       string
	DatabaseURL                string
	JWTSecret                  string
	TokenTTL                   time.Duration
	BcryptCost                 int
	DataEncryptionKey          string
	FrontendDir                string
	Environment                string
	CORSOrigins                []string
	SeedAdminEmail             string
	SeedAdminPassword          string
	EmailFrom                  string
	EmailEnabled               bool
	SMTPHost                   string
	SMTPPort                   int
	SMTPUser                   string
	SMTPPassword               string
	SMTPUseTLS                 bool
	RunMigrations              bool
	RunSeed                    bool
	MaxBodyBytes               int64
	RateLimitPerMinute         int
	EmployeeIDBackfillInterval time.Duration
	MetricsEnabled             bool
	LogLevel                   string
}

// fileConfig mirrors the optional YAML file named by CONFIG_PATH. Zero values
// and nil pointers leave the defaults untouched.
type fileConfig struct {
	Server struct {
		Addr               string   `yaml:"addr"`
		Environment        string   `yaml:"environment"`
		FrontendDir        string   `yaml:"frontend_dir"`
		CORSOrigins        []string `yaml:"cors_origins"`
		MaxBodyBytes       int64    `yaml:"max_body_bytes"`
		RateLimitPerMinute int      `yaml:"rate_limit_per_minute"`
		LogLevel           string   `yaml:"log_level"`
		MetricsEnabled     *bool    `yaml:"metrics_enabled"`
	} `yaml:"server"`
	Database struct {
		URL           string `yaml:"url"`
		RunMigrations *bool  `yaml:"run_migrations"`
		RunSeed       *bool  `yaml:"run_seed"`
	} `yaml:"database"`
	Auth struct {
		JWTSecret         string `yaml:"jwt_secret"`
		TokenTTL          string `yaml:"token_ttl"`
		BcryptCost        int    `yaml:"bcrypt_cost"`
		SeedAdminEmail    string `yaml:"seed_admin_email"`
		SeedAdminPassword string `yaml:"seed_admin_password"`
	} `yaml:"auth"`
	Crypto struct {
		DataEncryptionKey string `yaml:"data_encryption_key"`
	} `yaml:"crypto"`
	Email struct {
		Enabled      *bool  `yaml:"enabled"`
		From         string `yaml:"from"`
		SMTPHost     string `yaml:"smtp_host"`
		SMTPPort     int    `yaml:"smtp_port"`
		SMTPUser     string `yaml:"smtp_user"`
		SMTPPassword string `yaml:"smtp_password"`
		SMTPUseTLS   *bool  `yaml:"smtp_use_tls"`
	} `yaml:"email"`
	Jobs struct {
		EmployeeIDBackfillInterval string `yaml:"employee_id_backfill_interval"`
	} `yaml:"jobs"`
}

func Defaults() Config {
	return Config{
		Addr:               ":3009",
		TokenTTL:           time.Hour,
		BcryptCost:         12,
		FrontendDir:        "frontend/dist",
		Environment:        "development",
		CORSOrigins:        []string{"http://localhost:3000", "http://localhost:3001", "http://localhost:3005"},
		SeedAdminEmail:     "admin@example.com",
		EmailFrom:          "no-reply@example.com",
		SMTPPort:           587,
		SMTPUseTLS:         true,
		RunMigrations:      true,
		RunSeed:            true,
		MaxBodyBytes:       1048576,
		RateLimitPerMinute: 60,
		MetricsEnabled:     true,
		LogLevel:           "info",
	}
}

// Load resolves configuration from defaults, the YAML file named by
// CONFIG_PATH, a local .env file and the process environment, in increasing
// order of precedence.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("config: load .env: %w", err)
	}

	cfg := Defaults()
	if path := os.Getenv("CONFIG_PATH"); path != "" {
		if err := cfg.applyFile(path); err != nil {
			return Config{}, err
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read file %s: %w", path, err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(raw, &fc); err != nil {
		return fmt.Errorf("config: parse yaml: %w", err)
	}

	setString(&c.Addr, fc.Server.Addr)
	setString(&c.Environment, fc.Server.Environment)
	setString(&c.FrontendDir, fc.Server.FrontendDir)
	if len(fc.Server.CORSOrigins) > 0 {
		c.CORSOrigins = fc.Server.CORSOrigins
	}
	if fc.Server.MaxBodyBytes != 0 {
		c.MaxBodyBytes = fc.Server.MaxBodyBytes
	}
	if fc.Server.RateLimitPerMinute != 0 {
		c.RateLimitPerMinute = fc.Server.RateLimitPerMinute
	}
	setString(&c.LogLevel, fc.Server.LogLevel)
	setBool(&c.MetricsEnabled, fc.Server.MetricsEnabled)

	setString(&c.DatabaseURL, fc.Database.URL)
	setBool(&c.RunMigrations, fc.Database.RunMigrations)
	setBool(&c.RunSeed, fc.Database.RunSeed)

	setString(&c.JWTSecret, fc.Auth.JWTSecret)
	if fc.Auth.TokenTTL != "" {
		ttl, err := time.ParseDuration(fc.Auth.TokenTTL)
		if err != nil {
			return fmt.Errorf("config: auth.token_ttl: %w", err)
		}
		c.TokenTTL = ttl
	}
	if fc.Auth.BcryptCost != 0 {
		c.BcryptCost = fc.Auth.BcryptCost
	}
	setString(&c.SeedAdminEmail, fc.Auth.SeedAdminEmail)
	setString(&c.SeedAdminPassword, fc.Auth.SeedAdminPassword)

	setString(&c.DataEncryptionKey, fc.Crypto.DataEncryptionKey)

	setBool(&c.EmailEnabled, fc.Email.Enabled)
	setString(&c.EmailFrom, fc.Email.From)
	setString(&c.SMTPHost, fc.Email.SMTPHost)
	if fc.Email.SMTPPort != 0 {
		c.SMTPPort = fc.Email.SMTPPort
	}
	setString(&c.SMTPUser, fc.Email.SMTPUser)
	setString(&c.SMTPPassword, fc.Email.SMTPPassword)
	setBool(&c.SMTPUseTLS, fc.Email.SMTPUseTLS)

	if fc.Jobs.EmployeeIDBackfillInterval != "" {
		interval, err := time.ParseDuration(fc.Jobs.EmployeeIDBackfillInterval)
		if err != nil {
			return fmt.Errorf("config: jobs.employee_id_backfill_interval: %w", err)
		}
		c.EmployeeIDBackfillInterval = interval
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Addr = getEnv("APP_ADDR", c.Addr)
	c.DatabaseURL = getEnv("DATABASE_URL", c.DatabaseURL)
	c.JWTSecret = getEnv("JWT_SECRET", c.JWTSecret)
	c.TokenTTL = getEnvDuration("TOKEN_TTL", c.TokenTTL)
	c.BcryptCost = getEnvInt("BCRYPT_COST", c.BcryptCost)
	c.DataEncryptionKey = getEnv("DATA_ENCRYPTION_KEY", c.DataEncryptionKey)
	c.FrontendDir = getEnv("FRONTEND_DIR", c.FrontendDir)
	c.Environment = getEnv("APP_ENV", c.Environment)
	c.CORSOrigins = getEnvList("CORS_ORIGINS", c.CORSOrigins)
	c.SeedAdminEmail = getEnv("SEED_ADMIN_EMAIL", c.SeedAdminEmail)
	c.SeedAdminPassword = getEnv("SEED_ADMIN_PASSWORD", c.SeedAdminPassword)
	c.EmailFrom = getEnv("EMAIL_FROM", c.EmailFrom)
	c.EmailEnabled = getEnvBool("EMAIL_ENABLED", c.EmailEnabled)
	c.SMTPHost = getEnv("SMTP_HOST", c.SMTPHost)
	c.SMTPPort = getEnvInt("SMTP_PORT", c.SMTPPort)
	c.SMTPUser = getEnv("SMTP_USER", c.SMTPUser)
	c.SMTPPassword = getEnv("SMTP_PASSWORD", c.SMTPPassword)
	c.SMTPUseTLS = getEnvBool("SMTP_USE_TLS", c.SMTPUseTLS)
	c.RunMigrations = getEnvBool("RUN_MIGRATIONS", c.RunMigrations)
	c.RunSeed = getEnvBool("RUN_SEED", c.RunSeed)
	c.MaxBodyBytes = int64(getEnvInt("MAX_BODY_BYTES", int(c.MaxBodyBytes)))
	c.RateLimitPerMinute = getEnvInt("RATE_LIMIT_PER_MINUTE", c.RateLimitPerMinute)
	c.EmployeeIDBackfillInterval = getEnvDuration("EMPLOYEE_ID_BACKFILL_INTERVAL", c.EmployeeIDBackfillInterval)
	c.MetricsEnabled = getEnvBool("METRICS_ENABLED", c.MetricsEnabled)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
}

func (c Config) IsProduction() bool {
	return c.Environment == "production"
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.DatabaseURL) == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.IsProduction() {
		if strings.TrimSpace(c.JWTSecret) == "" {
			return fmt.Errorf("JWT_SECRET must be set to a strong value in production")
		}
		if strings.TrimSpace(c.DataEncryptionKey) == "" {
			return fmt.Errorf("DATA_ENCRYPTION_KEY must be set in production for encryption at rest")
		}
	}
	if c.TokenTTL <= 0 {
		return fmt.Errorf("TOKEN_TTL must be positive")
	}
	if c.BcryptCost < bcrypt.MinCost || c.BcryptCost > bcrypt.MaxCost {
		return fmt.Errorf("BCRYPT_COST must be between %d and %d", bcrypt.MinCost, bcrypt.MaxCost)
	}
	if c.MaxBodyBytes < 1024 {
		return fmt.Errorf("MAX_BODY_BYTES must be at least 1024")
	}
	if c.RateLimitPerMinute <= 0 {
		return fmt.Errorf("RATE_LIMIT_PER_MINUTE must be positive")
	}
	if c.EmailEnabled && c.SMTPHost == "" {
		return fmt.Errorf("SMTP_HOST must be set when EMAIL_ENABLED is true")
	}
	return nil
}

func setString(dst *string, value string) {
	if value != "" {
		*dst = value
	}
}

func setBool(dst *bool, value *bool) {
	if value != nil {
		*dst = *value
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvList(key string, fallback []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
