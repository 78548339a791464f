// Package config provides configuration management using Viper
package config

import (
	"fmt"
	"log"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"

	"funnelmetrics/internal/metrics"
)

// Environment types
const (
	Development = "development"
	Production  = "production"
	Test        = "test"
)

// LogLevel represents the logging level for the application
type LogLevel string

// Available log levels
const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// Database types
const (
	SQLiteDatabase = "sqlite"
)

const defaultPrivateKey = "88888888888888888888888888888888"

// DefaultSignificanceFloors are the minimum previous-period values required
// before a percentage change is reported for a metric.
var DefaultSignificanceFloors = map[string]float64{
	"impressions": 100,
	"clicks":      5,
	"leads":       1,
	"sales":       1,
}

// Config holds all configuration parameters for the application
type Config struct {
	// Application settings
	AppName     string   `mapstructure:"appname"`
	AppPort     string   `mapstructure:"appport"`
	Environment string   `mapstructure:"environment"`
	LogLevel    LogLevel `mapstructure:"loglevel"`
	PrivateKey  string   `mapstructure:"privatekey"`

	// File paths
	DatabasePath          string `mapstructure:"storagepath"`
	DatabaseName          string `mapstructure:"-"` // Derived from other settings
	PublicDirectory       string `mapstructure:"publicdir"`
	PublicAssetsUrlPrefix string `mapstructure:"publicassetsurlprefix"`

	// Logging settings
	LogsDirectory    string `mapstructure:"logsdir"`
	LogsMaxSizeInMb  int    `mapstructure:"logsmaxsizeinmb"`
	LogsMaxBackups   int    `mapstructure:"logsmaxbackups"`
	LogsMaxAgeInDays int    `mapstructure:"logsmaxageindays"`

	// Database settings
	DatabaseType         string `mapstructure:"dbtype"`
	DatabaseMaxOpenConns int    `mapstructure:"dbmaxopenconns"`
	DatabaseMaxIdleConns int    `mapstructure:"dbmaxidleconns"`

	// Write locking. An empty RedisURL keeps locks in-process.
	RedisURL          string `mapstructure:"redisurl"`
	LockTTLSeconds    int    `mapstructure:"lockttlseconds"`
	LockWaitMillis    int    `mapstructure:"lockwaitmillis"`
	LockRetryInterval int    `mapstructure:"lockretrymillis"`

	// Reporting conventions
	SignificanceFloorsRaw string             `mapstructure:"significancefloors"`
	DefaultFloor          float64            `mapstructure:"defaultfloor"`
	SignificanceFloors    map[string]float64 `mapstructure:"-"`
	WeekStartDay          string             `mapstructure:"weekstartday"`
	WeekEndOffsetDays     int                `mapstructure:"weekendoffsetdays"`
}

var (
	cfg  *Config
	once sync.Once
)

// GetConfig returns the application configuration
func GetConfig() *Config {
	once.Do(func() {
		v := viper.New()

		v.SetDefault("appname", "funnelmetrics")
		v.SetDefault("appport", "3000")
		v.SetDefault("environment", Development)
		v.SetDefault("loglevel", string(LogLevelDebug))
		v.SetDefault("privatekey", defaultPrivateKey)
		v.SetDefault("storagepath", "storage")
		v.SetDefault("publicdir", "public")
		v.SetDefault("publicassetsurlprefix", "/")
		v.SetDefault("logsdir", "logs")
		v.SetDefault("logsmaxsizeinmb", 20)
		v.SetDefault("logsmaxbackups", 10)
		v.SetDefault("logsmaxageindays", 30)
		v.SetDefault("dbtype", SQLiteDatabase)
		v.SetDefault("dbmaxopenconns", 0)
		v.SetDefault("dbmaxidleconns", 0)
		v.SetDefault("redisurl", "")
		v.SetDefault("lockttlseconds", 30)
		v.SetDefault("lockwaitmillis", 5000)
		v.SetDefault("lockretrymillis", 25)
		v.SetDefault("significancefloors", "")
		v.SetDefault("defaultfloor", 1)
		v.SetDefault("weekstartday", "saturday")
		v.SetDefault("weekendoffsetdays", 2)

		v.BindEnv("appname", "FUNNELMETRICS_APP_NAME")
		v.BindEnv("appport", "FUNNELMETRICS_APP_PORT")
		v.BindEnv("environment", "FUNNELMETRICS_ENV")
		v.BindEnv("loglevel", "FUNNELMETRICS_LOG_LEVEL")
		v.BindEnv("privatekey", "FUNNELMETRICS_PRIVATE_KEY")
		v.BindEnv("storagepath", "FUNNELMETRICS_STORAGE_PATH")
		v.BindEnv("publicdir", "FUNNELMETRICS_PUBLIC_DIR")
		v.BindEnv("publicassetsurlprefix", "FUNNELMETRICS_PUBLIC_ASSETS_URL_PREFIX")
		v.BindEnv("logsdir", "FUNNELMETRICS_LOGS_DIR")
		v.BindEnv("logsmaxsizeinmb", "FUNNELMETRICS_LOGS_MAX_SIZE_IN_MB")
		v.BindEnv("logsmaxbackups", "FUNNELMETRICS_LOGS_MAX_BACKUPS")
		v.BindEnv("logsmaxageindays", "FUNNELMETRICS_LOGS_MAX_AGE_IN_DAYS")
		v.BindEnv("dbtype", "FUNNELMETRICS_DB_TYPE")
		v.BindEnv("dbmaxopenconns", "FUNNELMETRICS_DB_MAX_OPEN_CONNS")
		v.BindEnv("dbmaxidleconns", "FUNNELMETRICS_DB_MAX_IDLE_CONNS")
		v.BindEnv("redisurl", "FUNNELMETRICS_REDIS_URL")
		v.BindEnv("lockttlseconds", "FUNNELMETRICS_LOCK_TTL_SECONDS")
		v.BindEnv("lockwaitmillis", "FUNNELMETRICS_LOCK_WAIT_MILLIS")
		v.BindEnv("lockretrymillis", "FUNNELMETRICS_LOCK_RETRY_MILLIS")
		v.BindEnv("significancefloors", "FUNNELMETRICS_SIGNIFICANCE_FLOORS")
		v.BindEnv("defaultfloor", "FUNNELMETRICS_DEFAULT_FLOOR")
		v.BindEnv("weekstartday", "FUNNELMETRICS_WEEK_START_DAY")
		v.BindEnv("weekendoffsetdays", "FUNNELMETRICS_WEEK_END_OFFSET_DAYS")

		cfg = &Config{}
		if err := v.Unmarshal(cfg); err != nil {
			log.Fatalf("config: failed to unmarshal configuration: %v", err)
		}

		floors, err := ParseSignificanceFloors(cfg.SignificanceFloorsRaw)
		if err != nil {
			log.Fatalf("config: invalid significance floors: %v", err)
		}
		cfg.SignificanceFloors = floors

		if err := cfg.validate(); err != nil {
			log.Fatalf("config: invalid configuration: %v", err)
		}

		cfg.DatabaseName = cfg.GetDatabasePath()

		if cfg.PrivateKey == "" {
			log.Fatal("Private key is required")
		}
		if cfg.IsProduction() && cfg.PrivateKey == defaultPrivateKey {
			log.Fatal("Production requires a unique FUNNELMETRICS_PRIVATE_KEY (cannot use default)")
		}
	})
	return cfg
}

// validate checks the configuration for errors
func (c *Config) validate() error {
	validEnvs := map[string]bool{
		Development: true,
		Production:  true,
		Test:        true,
	}
	if !validEnvs[c.Environment] {
		return fmt.Errorf("invalid environment: %s", c.Environment)
	}

	validDBTypes := map[string]bool{
		SQLiteDatabase: true,
	}
	if !validDBTypes[c.DatabaseType] {
		return fmt.Errorf("invalid database type: %s", c.DatabaseType)
	}

	if _, err := ParseWeekday(c.WeekStartDay); err != nil {
		return err
	}
	if c.WeekEndOffsetDays < 0 {
		return fmt.Errorf("week end offset must be >= 0, got %d", c.WeekEndOffsetDays)
	}
	if c.DefaultFloor < 0 {
		return fmt.Errorf("default floor must be >= 0, got %v", c.DefaultFloor)
	}

	return nil
}

// ParseSignificanceFloors merges a "metric:floor,metric:floor" list over the
// default floors. An empty string yields the defaults.
func ParseSignificanceFloors(raw string) (map[string]float64, error) {
	floors := make(map[string]float64, len(DefaultSignificanceFloors))
	for k, v := range DefaultSignificanceFloors {
		floors[k] = v
	}

	raw = strings.TrimSpace(raw)
	if raw == "" {
		return floors, nil
	}

	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		name, value, ok := strings.Cut(pair, ":")
		if !ok {
			return nil, fmt.Errorf("malformed floor %q, expected metric:value", pair)
		}
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" {
			return nil, fmt.Errorf("malformed floor %q, metric name is empty", pair)
		}
		if !metrics.IsName(name) {
			return nil, fmt.Errorf("malformed floor %q, unknown metric %s", pair, name)
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil {
			return nil, fmt.Errorf("floor for %s: %w", name, err)
		}
		if f < 0 {
			return nil, fmt.Errorf("floor for %s must be >= 0, got %v", name, f)
		}
		floors[name] = f
	}
	return floors, nil
}

// FormatSignificanceFloors renders floors in the same format ParseSignificanceFloors accepts.
func FormatSignificanceFloors(floors map[string]float64) string {
	names := make([]string, 0, len(floors))
	for name := range floors {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, name+":"+strconv.FormatFloat(floors[name], 'f', -1, 64))
	}
	return strings.Join(parts, ",")
}

// ParseWeekday parses an english weekday name, case-insensitively.
func ParseWeekday(name string) (time.Weekday, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	for d := time.Sunday; d <= time.Saturday; d++ {
		if strings.ToLower(d.String()) == n {
			return d, nil
		}
	}
	return time.Sunday, fmt.Errorf("invalid week start day: %q", name)
}

// GetWeekStart returns the configured first weekday of a weekly period.
func (c *Config) GetWeekStart() time.Weekday {
	d, err := ParseWeekday(c.WeekStartDay)
	if err != nil {
		return time.Saturday
	}
	return d
}

// GetLockTTL returns how long a per-record write lock may be held.
func (c *Config) GetLockTTL() time.Duration {
	return time.Duration(c.LockTTLSeconds) * time.Second
}

// GetLockWait returns how long a writer waits for a busy record lock.
func (c *Config) GetLockWait() time.Duration {
	return time.Duration(c.LockWaitMillis) * time.Millisecond
}

// GetLockRetryInterval returns the polling interval while waiting on a lock.
func (c *Config) GetLockRetryInterval() time.Duration {
	if c.LockRetryInterval <= 0 {
		return 25 * time.Millisecond
	}
	return time.Duration(c.LockRetryInterval) * time.Millisecond
}

// GetDatabasePath returns the appropriate database path based on environment
func (c *Config) GetDatabasePath() string {
	if c.DatabaseName == "" {
		c.DatabaseName = filepath.Join(c.DatabasePath,
			fmt.Sprintf("%s-%s.db", c.AppName, c.Environment))
	}
	return c.DatabaseName
}

// IsDevelopment returns true if the environment is development
func (c *Config) IsDevelopment() bool {
	return c.Environment == Development
}

// IsProduction returns true if the environment is production
func (c *Config) IsProduction() bool {
	return c.Environment == Production
}

// IsTest returns true if the environment is test
func (c *Config) IsTest() bool {
	return c.Environment == Test
}

// GetPort returns the HTTP server port (implements cartridge.Config interface).
func (c *Config) GetPort() string {
	return c.AppPort
}

// GetPublicDirectory returns the path to public/static assets (implements cartridge.Config interface).
func (c *Config) GetPublicDirectory() string {
	return c.PublicDirectory
}

// GetAssetsPrefix returns the URL prefix for static assets (implements cartridge.Config interface).
func (c *Config) GetAssetsPrefix() string {
	return c.PublicAssetsUrlPrefix
}

// GetAppName returns the application name (implements cartridge.FactoryConfig interface).
func (c *Config) GetAppName() string {
	return c.AppName
}

// DatabaseDSN returns the database connection string (implements cartridge.FactoryConfig interface).
func (c *Config) DatabaseDSN() string {
	return c.GetDatabasePath()
}

// GetSessionSecret returns the session encryption key (implements cartridge.FactoryConfig interface).
func (c *Config) GetSessionSecret() string {
	return c.PrivateKey
}

// GetMaxOpenConns returns the appropriate MaxOpenConns value based on environment
// If explicitly set via env var, uses that value. Otherwise:
// - Test: 1
// - Development/Production: 10 (allows the current and previous rollups to read in parallel)
func (c *Config) GetMaxOpenConns() int {
	if c.DatabaseMaxOpenConns > 0 {
		return c.DatabaseMaxOpenConns
	}

	if c.Environment == Test {
		return 1
	}

	return 10
}

// GetMaxIdleConns returns the appropriate MaxIdleConns value based on environment
func (c *Config) GetMaxIdleConns() int {
	if c.DatabaseMaxIdleConns > 0 {
		return c.DatabaseMaxIdleConns
	}

	if c.Environment == Test {
		return 1
	}

	return 5
}

// GetLogLevel returns the log level as a string (implements cartridge.LogConfigProvider).
func (c *Config) GetLogLevel() string {
	return string(c.LogLevel)
}

// GetLogDirectory returns the logs directory (implements cartridge.LogConfigProvider).
func (c *Config) GetLogDirectory() string {
	return c.LogsDirectory
}

// GetLogMaxSizeMB returns the max log file size in MB (implements cartridge.LogConfigProvider).
func (c *Config) GetLogMaxSizeMB() int {
	return c.LogsMaxSizeInMb
}

// GetLogMaxBackups returns the max number of log backups (implements cartridge.LogConfigProvider).
func (c *Config) GetLogMaxBackups() int {
	return c.LogsMaxBackups
}

// GetLogMaxAgeDays returns the max age in days for log files (implements cartridge.LogConfigProvider).
func (c *Config) GetLogMaxAgeDays() int {
	return c.LogsMaxAgeInDays
}

// Reset clears the cached configuration; intended for tests.
func Reset() {
	once = sync.Once{}
	cfg = nil
}
