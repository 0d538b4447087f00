// Package config loads process settings from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config is the full process configuration.
type Config struct {
	AppEnv   string
	LogLevel string
	HTTPPort string

	Odoo OdooConfig

	DoneField       string
	ValidateMethods []string
	CatalogLimit    int
	POSConfigName   string
	// POSLocationID overrides the location order stock is previewed at.
	POSLocationID int64
	// EntryWarehouseID is the receipt warehouse used when a request names none.
	EntryWarehouseID int64
	ShortagePolicy   string

	DatabaseURL string
	RedisAddr   string
	// IdempotencyTTL is how long a stored response can be replayed.
	IdempotencyTTL time.Duration

	TransferLock    bool
	TransferLockTTL time.Duration

	NotifyURL  string
	NotifyChat string
}

// OdooConfig holds the ERP connection.
type OdooConfig struct {
	URL          string
	Database     string
	User         string
	Password     string
	Timeout      time.Duration
	Retries      int
	RetryBackoff time.Duration
}

// Development reports whether the process runs in development mode.
func (c *Config) Development() bool { return c.AppEnv == "development" }

// Load reads a .env file when present, then the environment.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		AppEnv:   getEnv("APP_ENV", "development"),
		LogLevel: getEnv("LOG_LEVEL", "info"),
		HTTPPort: getEnv("HTTP_PORT", "8080"),
		Odoo: OdooConfig{
			URL:          getEnv("ODOO_URL", ""),
			Database:     getEnv("ODOO_DB", ""),
			User:         getEnv("ODOO_USER", ""),
			Password:     getEnv("ODOO_PASSWORD", ""),
			Timeout:      getEnvDuration("ODOO_TIMEOUT", 12*time.Second),
			Retries:      getEnvInt("ODOO_RETRIES", 1),
			RetryBackoff: getEnvDuration("ODOO_RETRY_BACKOFF", 350*time.Millisecond),
		},
		DoneField:        getEnv("DONE_QTY_FIELD", "qty_done"),
		ValidateMethods:  getEnvList("VALIDATE_METHODS", []string{"action_done", "button_validate"}),
		CatalogLimit:     getEnvInt("CATALOG_LIMIT", 5000),
		POSConfigName:    getEnv("POS_CONFIG_NAME", "bodega"),
		POSLocationID:    int64(getEnvInt("POS_LOCATION_ID", 0)),
		EntryWarehouseID: int64(getEnvInt("ENTRY_WAREHOUSE_ID", 0)),
		ShortagePolicy:   getEnv("SHORTAGE_POLICY", "hasShortage"),
		DatabaseURL:      getEnv("DATABASE_URL", ""),
		RedisAddr:        getEnv("REDIS_ADDR", ""),
		IdempotencyTTL:   getEnvDuration("IDEMPOTENCY_TTL", 24*time.Hour),
		TransferLock:     getEnvBool("TRANSFER_LOCK", false),
		TransferLockTTL:  getEnvDuration("TRANSFER_LOCK_TTL", time.Minute),
		NotifyURL:        getEnv("NOTIFY_URL", ""),
		NotifyChat:       getEnv("NOTIFY_CHAT", ""),
	}
}

// Validate lists every missing required value.
func (c *Config) Validate() error {
	var errs []error
	required := map[string]string{
		"ODOO_URL":      c.Odoo.URL,
		"ODOO_DB":       c.Odoo.Database,
		"ODOO_USER":     c.Odoo.User,
		"ODOO_PASSWORD": c.Odoo.Password,
	}
	for _, key := range []string{"ODOO_URL", "ODOO_DB", "ODOO_USER", "ODOO_PASSWORD"} {
		if required[key] == "" {
			errs = append(errs, fmt.Errorf("%s is required", key))
		}
	}
	if c.Odoo.Retries < 0 {
		errs = append(errs, errors.New("ODOO_RETRIES must not be negative"))
	}
	if c.DoneField != "qty_done" && c.DoneField != "quantity" {
		errs = append(errs, fmt.Errorf("DONE_QTY_FIELD must be qty_done or quantity, got %q", c.DoneField))
	}
	if len(c.ValidateMethods) == 0 {
		errs = append(errs, errors.New("VALIDATE_METHODS must name at least one method"))
	}
	if c.TransferLock && c.RedisAddr == "" {
		errs = append(errs, errors.New("TRANSFER_LOCK requires REDIS_ADDR"))
	}
	return errors.Join(errs...)
}

func getEnv(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(strings.TrimSpace(value)); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(strings.TrimSpace(value)); err == nil {
			return d
		}
	}
	return defaultValue
}

// getEnvList splits a comma-separated value, dropping empty items.
func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
