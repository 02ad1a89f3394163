// Package config loads the service configuration from environment variables
package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Environment is the deployment environment
type Environment string

const (
	EnvDevelopment Environment = "dev"
	EnvStaging     Environment = "staging"
	EnvProduction  Environment = "prod"
	EnvTest        Environment = "test"
)

func (e Environment) String() string { return string(e) }

// ParseEnvironment accepts the short names and their long forms
func ParseEnvironment(s string) (Environment, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "dev", "development":
		return EnvDevelopment, nil
	case "staging":
		return EnvStaging, nil
	case "prod", "production":
		return EnvProduction, nil
	case "test":
		return EnvTest, nil
	}
	return EnvDevelopment, fmt.Errorf("ENV must be one of: [dev staging prod test], got: %s", s)
}

// Store backends
const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

var sweepTimeRegex = regexp.MustCompile(`^([01]\d|2[0-3]):[0-5]\d(:[0-5]\d)?$`)

// Config holds all application configuration
type Config struct {
	Port              string
	Address           string
	Env               Environment
	LogLevel          string
	LogDir            string
	LogRetentionWeeks int   // Number of weeks to keep log files
	MaxLogFileSize    int64 // Maximum log file size in bytes
	MaxRequestBody    int64 // Maximum request body size in bytes
	MaxHeaderSize     int64 // Maximum header size in bytes

	StoreBackend   string
	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	RedisKeyPrefix string
	DatabaseURL    string

	ShortfallPolicy   string  // block or partial
	ExpiryWarningDays int     // lots expiring within this many days are reported
	LowStockThreshold float64 // items at or below this quantity are reported
	StockSweepTimes   string  // "HH:MM[:SS]" joined by ';'
	CORSOrigins       []string
}

// Load loads and validates configuration from environment variables
func Load() (*Config, error) {
	env, err := ParseEnvironment(getEnvWithDefault("ENV", "dev"))
	if err != nil {
		return nil, fmt.Errorf("configuration validation failed: invalid ENV: %w", err)
	}

	cfg := &Config{
		Port:              getEnvWithDefault("PORT", "8000"),
		Address:           getEnvWithDefault("ADDRESS", "127.0.0.1"),
		Env:               env,
		LogLevel:          strings.ToLower(getEnvWithDefault("LOG_LEVEL", "info")),
		LogDir:            getEnvWithDefault("LOG_DIR", "logs"),
		LogRetentionWeeks: getIntEnvWithDefault("LOG_RETENTION_WEEKS", 4),         // 4 weeks default
		MaxLogFileSize:    getInt64EnvWithDefault("MAX_LOG_FILE_SIZE", 104857600), // 100MB default
		MaxRequestBody:    getInt64EnvWithDefault("MAX_REQUEST_BODY", 1048576),    // 1MB default
		MaxHeaderSize:     getInt64EnvWithDefault("MAX_HEADER_SIZE", 1048576),     // 1MB default

		StoreBackend:   strings.ToLower(getEnvWithDefault("STORE_BACKEND", BackendMemory)),
		RedisAddr:      getEnvWithDefault("REDIS_ADDR", "localhost:6379"),
		RedisPassword:  os.Getenv("REDIS_PASSWORD"),
		RedisDB:        getIntEnvWithDefault("REDIS_DB", 0),
		RedisKeyPrefix: getEnvWithDefault("REDIS_KEY_PREFIX", "healthpost:"),
		DatabaseURL:    os.Getenv("DATABASE_URL"),

		ShortfallPolicy:   strings.ToLower(getEnvWithDefault("SHORTFALL_POLICY", "block")),
		ExpiryWarningDays: getIntEnvWithDefault("EXPIRY_WARNING_DAYS", 90),
		LowStockThreshold: getFloatEnvWithDefault("LOW_STOCK_THRESHOLD", 10),
		StockSweepTimes:   getEnvWithDefault("STOCK_SWEEP_TIMES", "06:00;18:00"),
		CORSOrigins:       splitList(getEnvWithDefault("CORS_ORIGINS", "*")),
	}

	if err := validateConfig(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// ExpiryWindow is ExpiryWarningDays as a duration
func (c *Config) ExpiryWindow() time.Duration {
	return time.Duration(c.ExpiryWarningDays) * 24 * time.Hour
}

// validateConfig validates all configuration values
func validateConfig(cfg *Config) error {
	// Validate PORT
	if err := validatePort(cfg.Port); err != nil {
		return fmt.Errorf("invalid PORT: %w", err)
	}

	// Validate ADDRESS
	if err := validateAddress(cfg.Address); err != nil {
		return fmt.Errorf("invalid ADDRESS: %w", err)
	}

	// Validate LOG_LEVEL
	if err := validateOneOf(cfg.LogLevel, "LOG_LEVEL", "debug", "info", "warn", "error"); err != nil {
		return fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}

	// Validate MAX_REQUEST_BODY
	if err := validateSizeLimit(cfg.MaxRequestBody, "MAX_REQUEST_BODY"); err != nil {
		return fmt.Errorf("invalid MAX_REQUEST_BODY: %w", err)
	}

	// Validate MAX_HEADER_SIZE
	if err := validateSizeLimit(cfg.MaxHeaderSize, "MAX_HEADER_SIZE"); err != nil {
		return fmt.Errorf("invalid MAX_HEADER_SIZE: %w", err)
	}

	// Validate LOG_RETENTION_WEEKS
	if err := validateLogRetentionWeeks(cfg.LogRetentionWeeks); err != nil {
		return fmt.Errorf("invalid LOG_RETENTION_WEEKS: %w", err)
	}

	// Validate MAX_LOG_FILE_SIZE
	if err := validateMaxLogFileSize(cfg.MaxLogFileSize); err != nil {
		return fmt.Errorf("invalid MAX_LOG_FILE_SIZE: %w", err)
	}

	// Validate STORE_BACKEND and its connection settings
	if err := validateStore(cfg); err != nil {
		return fmt.Errorf("invalid STORE_BACKEND: %w", err)
	}

	// Validate SHORTFALL_POLICY
	if err := validateOneOf(cfg.ShortfallPolicy, "SHORTFALL_POLICY", "block", "partial"); err != nil {
		return fmt.Errorf("invalid SHORTFALL_POLICY: %w", err)
	}

	// Validate EXPIRY_WARNING_DAYS
	if cfg.ExpiryWarningDays < 1 || cfg.ExpiryWarningDays > 365 {
		return fmt.Errorf("invalid EXPIRY_WARNING_DAYS: must be between 1 and 365, got: %d", cfg.ExpiryWarningDays)
	}

	// Validate LOW_STOCK_THRESHOLD
	if cfg.LowStockThreshold < 0 {
		return fmt.Errorf("invalid LOW_STOCK_THRESHOLD: cannot be negative, got: %g", cfg.LowStockThreshold)
	}

	// Validate STOCK_SWEEP_TIMES
	if err := validateSweepTimes(cfg.StockSweepTimes); err != nil {
		return fmt.Errorf("invalid STOCK_SWEEP_TIMES: %w", err)
	}

	// Validate CORS_ORIGINS
	if err := validateOrigins(cfg.CORSOrigins); err != nil {
		return fmt.Errorf("invalid CORS_ORIGINS: %w", err)
	}

	return nil
}

// validatePort validates the PORT environment variable
func validatePort(port string) error {
	if port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}

	portNum, err := strconv.Atoi(port)
	if err != nil {
		return fmt.Errorf("PORT must be a valid number: %w", err)
	}

	if portNum < 1 || portNum > 65535 {
		return fmt.Errorf("PORT must be between 1 and 65535")
	}

	// Check for privileged ports
	if portNum < 1024 {
		return fmt.Errorf("PORT %d is privileged (less than 1024), use ports 1024-65535", portNum)
	}

	return nil
}

// validateAddress validates the ADDRESS environment variable
func validateAddress(address string) error {
	if address == "" {
		return fmt.Errorf("ADDRESS cannot be empty")
	}

	if address == "localhost" {
		return nil
	}

	ip := net.ParseIP(address)
	if ip == nil {
		return fmt.Errorf("ADDRESS must be a valid IP address or 'localhost', got: %s", address)
	}

	// A health post server sits on the clinic LAN
	if !ip.IsLoopback() && !ip.IsPrivate() && !ip.IsUnspecified() {
		return fmt.Errorf("ADDRESS %s is a public IP, use a loopback or private network address", address)
	}

	return nil
}

func validateOneOf(value, name string, valid ...string) error {
	if value == "" {
		return fmt.Errorf("%s cannot be empty", name)
	}
	for _, v := range valid {
		if value == v {
			return nil
		}
	}
	return fmt.Errorf("%s must be one of: %v, got: %s", name, valid, value)
}

// validateStore checks that the chosen backend has what it needs to connect
func validateStore(cfg *Config) error {
	if err := validateOneOf(cfg.StoreBackend, "STORE_BACKEND", BackendMemory, BackendRedis, BackendPostgres); err != nil {
		return err
	}

	switch cfg.StoreBackend {
	case BackendRedis:
		if _, _, err := net.SplitHostPort(cfg.RedisAddr); err != nil {
			return fmt.Errorf("REDIS_ADDR must be host:port, got: %s", cfg.RedisAddr)
		}
		if cfg.RedisDB < 0 || cfg.RedisDB > 15 {
			return fmt.Errorf("REDIS_DB must be between 0 and 15, got: %d", cfg.RedisDB)
		}
		if strings.ContainsAny(cfg.RedisKeyPrefix, " *?[]") {
			return fmt.Errorf("REDIS_KEY_PREFIX cannot contain spaces or glob characters")
		}
	case BackendPostgres:
		if cfg.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres backend")
		}
	}
	return nil
}

// validateSizeLimit validates size limit configuration values
func validateSizeLimit(size int64, configName string) error {
	if size <= 0 {
		return fmt.Errorf("%s must be positive, got: %d", configName, size)
	}

	if size > 100*1024*1024 { // 100MB
		return fmt.Errorf("%s is too large (max 100MB), got: %d bytes", configName, size)
	}

	return nil
}

// validateLogRetentionWeeks validates the LOG_RETENTION_WEEKS environment variable
func validateLogRetentionWeeks(weeks int) error {
	if weeks <= 0 {
		return fmt.Errorf("LOG_RETENTION_WEEKS must be positive, got: %d", weeks)
	}

	if weeks > 52 { // 1 year maximum
		return fmt.Errorf("LOG_RETENTION_WEEKS is too large (max 52 weeks), got: %d", weeks)
	}

	return nil
}

// validateMaxLogFileSize validates the MAX_LOG_FILE_SIZE environment variable
func validateMaxLogFileSize(size int64) error {
	// Minimum 1MB, maximum 1GB
	if size < 1024*1024 {
		return fmt.Errorf("MAX_LOG_FILE_SIZE is too small (min 1MB), got: %d bytes", size)
	}

	if size > 1024*1024*1024 {
		return fmt.Errorf("MAX_LOG_FILE_SIZE is too large (max 1GB), got: %d bytes", size)
	}

	return nil
}

// validateSweepTimes validates the times of day of the stock sweep
func validateSweepTimes(spec string) error {
	parts := splitListSep(spec, ";")
	if len(parts) == 0 {
		return fmt.Errorf("STOCK_SWEEP_TIMES cannot be empty")
	}
	for _, p := range parts {
		if !sweepTimeRegex.MatchString(p) {
			return fmt.Errorf("%q is not a HH:MM or HH:MM:SS time", p)
		}
	}
	return nil
}

// validateOrigins accepts "*" or absolute http(s) origins
func validateOrigins(origins []string) error {
	if len(origins) == 0 {
		return fmt.Errorf("CORS_ORIGINS cannot be empty")
	}
	for _, o := range origins {
		if o == "*" {
			continue
		}
		u, err := url.Parse(o)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("%q is not an http(s) origin", o)
		}
	}
	return nil
}

// getEnvWithDefault gets an environment variable with a default value
func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getIntEnvWithDefault gets an environment variable as int with a default value
func getIntEnvWithDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getInt64EnvWithDefault gets an environment variable as int64 with a default value
func getInt64EnvWithDefault(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getFloatEnvWithDefault gets an environment variable as float64 with a default value
func getFloatEnvWithDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func splitList(s string) []string {
	return splitListSep(s, ",")
}

func splitListSep(s, sep string) []string {
	var out []string
	for _, p := range strings.Split(s, sep) {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// GetEnvVars returns a list of all expected environment variables
func GetEnvVars() []string {
	return []string{
		"PORT",
		"ADDRESS",
		"ENV",
		"LOG_LEVEL",
		"LOG_DIR",
		"LOG_RETENTION_WEEKS",
		"MAX_LOG_FILE_SIZE",
		"MAX_REQUEST_BODY",
		"MAX_HEADER_SIZE",
		"STORE_BACKEND",
		"REDIS_ADDR",
		"REDIS_PASSWORD",
		"REDIS_DB",
		"REDIS_KEY_PREFIX",
		"DATABASE_URL",
		"SHORTFALL_POLICY",
		"EXPIRY_WARNING_DAYS",
		"LOW_STOCK_THRESHOLD",
		"STOCK_SWEEP_TIMES",
		"CORS_ORIGINS",
	}
}

// ValidateAllEnvVars checks if all required environment variables are set
func ValidateAllEnvVars() error {
	requiredVars := []string{"PORT"} // Only PORT is truly required
	if os.Getenv("STORE_BACKEND") == BackendPostgres {
		requiredVars = append(requiredVars, "DATABASE_URL")
	}
	missingVars := []string{}

	for _, varName := range requiredVars {
		if os.Getenv(varName) == "" {
			missingVars = append(missingVars, varName)
		}
	}

	if len(missingVars) > 0 {
		return fmt.Errorf("missing required environment variables: %v", missingVars)
	}

	return nil
}
