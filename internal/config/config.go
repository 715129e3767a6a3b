// Package config provides application configuration loaded from environment
// variables. Use the package-level Get() function to obtain the singleton
// Config instance.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"
)

// ──────────────────────────────────────────────────────────────────────────────
// Sub-config structs
// ──────────────────────────────────────────────────────────────────────────────

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port           string        // e.g. "8080"
	Env            string        // "development" | "production"
	ReadTimeout    time.Duration // default 10s
	WriteTimeout   time.Duration // default 10s
	AllowedOrigins string        // comma-separated origins; "" = WS accepts any origin, HTTP CORS allows none in production
}

// DBConfig holds PostgreSQL connection settings.
type DBConfig struct {
	DSN             string        // full postgres DSN
	MaxOpenConns    int           // default 25
	MaxIdleConns    int           // default 10
	ConnMaxLifetime time.Duration // default 5m
}

// JWTConfig holds JWT signing settings.
type JWTConfig struct {
	AccessSecret  string        // must be set
	RefreshSecret string        // must be set
	AccessTTL     time.Duration // default 15m
	RefreshTTL    time.Duration // default 720h (30 days)
}

// LedgerConfig holds order-pipeline-wide tunables.
type LedgerConfig struct {
	MinLotSats          int64 // minimum order amount_sats, default 100
	SerializationRetries int  // retry bound for SERIALIZATION_FAILURE, default 5
}

// MMConfig holds Market-Maker Core risk settings.
type MMConfig struct {
	MaxAcceptableLossSats         int64   // L: hard cap on total at-risk exposure
	ThresholdPercent              float64 // T: tier width, e.g. 10 = 10 tiers
	GlobalMultiplier              float64 // G: scales all curve weights
	WithdrawalReviewThresholdSats int64   // default 100_000 (spec §9 open question)
	ReconcileInterval             time.Duration
}

// ──────────────────────────────────────────────────────────────────────────────
// Top-level Config
// ──────────────────────────────────────────────────────────────────────────────

// Config is the root configuration object for the entire application.
type Config struct {
	Server ServerConfig
	DB     DBConfig
	JWT    JWTConfig
	Ledger LedgerConfig
	MM     MMConfig
}

// IsProd returns true when running in the production environment.
func (c *Config) IsProd() bool {
	return c.Server.Env == "production"
}

// Validate checks that all required configuration values are present and
// valid. Returns every validation error joined together.
func (c *Config) Validate() error {
	var errs []error

	if c.JWT.AccessSecret == "" {
		errs = append(errs, errors.New("JWT_ACCESS_SECRET must be set"))
	}
	if c.JWT.RefreshSecret == "" {
		errs = append(errs, errors.New("JWT_REFRESH_SECRET must be set"))
	}
	if c.IsProd() && c.DB.DSN == "" {
		errs = append(errs, errors.New("DATABASE_DSN must be set in production"))
	}
	if c.Ledger.MinLotSats <= 0 {
		errs = append(errs, errors.New("LEDGER_MIN_LOT_SATS must be positive"))
	}
	if c.MM.MaxAcceptableLossSats <= 0 {
		errs = append(errs, errors.New("MM_MAX_ACCEPTABLE_LOSS_SATS must be positive"))
	}
	if c.MM.ThresholdPercent <= 0 || c.MM.ThresholdPercent > 100 {
		errs = append(errs, fmt.Errorf(
			"MM_THRESHOLD_PERCENT must be in (0,100], got %.4f", c.MM.ThresholdPercent))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Singleton
// ──────────────────────────────────────────────────────────────────────────────

var (
	instance *Config
	once     sync.Once
	loadErr  error
)

// Get returns the singleton Config, loading it once from environment
// variables. Panics if loading fails — call this early in main() to catch
// misconfigurations at startup.
func Get() *Config {
	once.Do(func() {
		instance, loadErr = load()
	})
	if loadErr != nil {
		panic(fmt.Sprintf("config: failed to load: %v", loadErr))
	}
	return instance
}

// MustLoad loads and validates configuration. Intended for use in main().
// Panics on any error so misconfiguration is caught immediately at boot.
func MustLoad() *Config {
	cfg := Get()
	if err := cfg.Validate(); err != nil {
		panic(fmt.Sprintf("config: validation failed: %v", err))
	}
	return cfg
}

// ──────────────────────────────────────────────────────────────────────────────
// Internal loader
// ──────────────────────────────────────────────────────────────────────────────

func load() (*Config, error) {
	cfg := &Config{}

	cfg.Server = ServerConfig{
		Port:           getEnv("SERVER_PORT", "8080"),
		Env:            getEnv("ENVIRONMENT", "development"),
		ReadTimeout:    getDuration("SERVER_READ_TIMEOUT", 10*time.Second),
		WriteTimeout:   getDuration("SERVER_WRITE_TIMEOUT", 10*time.Second),
		AllowedOrigins: getEnv("ALLOWED_ORIGINS", ""),
	}

	dsn := os.Getenv("DATABASE_DSN")
	if dsn == "" {
		dsn = fmt.Sprintf(
			"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
			getEnv("DB_HOST", "localhost"),
			getEnv("DB_PORT", "5432"),
			getEnv("DB_USER", "postgres"),
			getEnv("DB_PASSWORD", ""),
			getEnv("DB_NAME", "satscex"),
			getEnv("DB_SSLMODE", "disable"),
		)
	}

	maxOpen, err := getInt("DB_MAX_OPEN_CONNS", 25)
	if err != nil {
		return nil, fmt.Errorf("DB_MAX_OPEN_CONNS: %w", err)
	}
	maxIdle, err := getInt("DB_MAX_IDLE_CONNS", 10)
	if err != nil {
		return nil, fmt.Errorf("DB_MAX_IDLE_CONNS: %w", err)
	}

	cfg.DB = DBConfig{
		DSN:             dsn,
		MaxOpenConns:    maxOpen,
		MaxIdleConns:    maxIdle,
		ConnMaxLifetime: getDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
	}

	cfg.JWT = JWTConfig{
		AccessSecret:  getEnv("JWT_ACCESS_SECRET", ""),
		RefreshSecret: getEnv("JWT_REFRESH_SECRET", ""),
		AccessTTL:     getDuration("JWT_ACCESS_TTL", 15*time.Minute),
		RefreshTTL:    getDuration("JWT_REFRESH_TTL", 30*24*time.Hour),
	}

	minLot, err := getInt64("LEDGER_MIN_LOT_SATS", 100)
	if err != nil {
		return nil, fmt.Errorf("LEDGER_MIN_LOT_SATS: %w", err)
	}
	serRetries, err := getInt("LEDGER_SERIALIZATION_RETRIES", 5)
	if err != nil {
		return nil, fmt.Errorf("LEDGER_SERIALIZATION_RETRIES: %w", err)
	}
	cfg.Ledger = LedgerConfig{
		MinLotSats:           minLot,
		SerializationRetries: serRetries,
	}

	maxLoss, err := getInt64("MM_MAX_ACCEPTABLE_LOSS_SATS", 10_000_000)
	if err != nil {
		return nil, fmt.Errorf("MM_MAX_ACCEPTABLE_LOSS_SATS: %w", err)
	}
	threshold, err := getFloat("MM_THRESHOLD_PERCENT", 10)
	if err != nil {
		return nil, fmt.Errorf("MM_THRESHOLD_PERCENT: %w", err)
	}
	globalMult, err := getFloat("MM_GLOBAL_MULTIPLIER", 1)
	if err != nil {
		return nil, fmt.Errorf("MM_GLOBAL_MULTIPLIER: %w", err)
	}
	withdrawThreshold, err := getInt64("MM_WITHDRAWAL_REVIEW_THRESHOLD_SATS", 100_000)
	if err != nil {
		return nil, fmt.Errorf("MM_WITHDRAWAL_REVIEW_THRESHOLD_SATS: %w", err)
	}

	cfg.MM = MMConfig{
		MaxAcceptableLossSats:         maxLoss,
		ThresholdPercent:              threshold,
		GlobalMultiplier:              globalMult,
		WithdrawalReviewThresholdSats: withdrawThreshold,
		ReconcileInterval:             getDuration("MM_RECONCILE_INTERVAL", 5*time.Second),
	}

	return cfg, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Helper functions
// ──────────────────────────────────────────────────────────────────────────────

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getInt(key string, defaultVal int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid integer %q", v)
	}
	return n, nil
}

func getInt64(key string, defaultVal int64) (int64, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid integer %q", v)
	}
	return n, nil
}

func getFloat(key string, defaultVal float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid float %q", v)
	}
	return f, nil
}

// getDuration parses an env var as a Go duration string (e.g. "15m", "2s").
// Falls back to defaultVal if the variable is unset or empty or unparseable.
func getDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
