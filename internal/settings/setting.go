package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/karloscodes/cartridge/cache"
	"github.com/karloscodes/cartridge/sqlite"
	"gorm.io/gorm"

	"funnelmetrics/internal/metrics"
)

// Setting represents a configuration item in the database
type Setting struct {
	ID        uint      `gorm:"primaryKey"`
	Key       string    `gorm:"uniqueIndex;not null"`
	Value     string    `gorm:"not null"`
	CreatedAt time.Time `gorm:"not null;autoCreateTime:milli"`
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime:milli"`
}

// ErrUnknownMetric is returned when a floor names a metric that does not exist.
var ErrUnknownMetric = errors.New("unknown metric")

// Setting keys
const (
	KeySignificanceFloors = "significance_floors"
	KeyLastSeededAt       = "last_seeded_at"
)

// SetupDefaultSettings initializes default settings in the database
func SetupDefaultSettings(dbConn *gorm.DB) error {
	settings := []Setting{
		{Key: KeySignificanceFloors, Value: "{}"},
	}
	return sqlite.PerformWrite(slog.Default(), dbConn, func(tx *gorm.DB) error {
		for _, setting := range settings {
			err := tx.Exec(`
				INSERT INTO settings (key, value, created_at, updated_at)
				VALUES (?, ?, ?, ?)
				ON CONFLICT(key) DO NOTHING
			`, setting.Key, setting.Value, time.Now().UTC(), time.Now().UTC()).Error
			if err != nil {
				slog.Default().Error("Failed to upsert setting", slog.String("key", setting.Key), slog.Any("error", err))
				return fmt.Errorf("failed to upsert setting %s: %w", setting.Key, err)
			}
		}
		return nil
	})
}

// GetSetting retrieves a setting value from the database
func GetSetting(dbConn *gorm.DB, key string) (string, error) {
	var setting Setting
	result := dbConn.Where("key = ?", key).First(&setting)

	if result.Error != nil {
		return "", result.Error
	}

	return setting.Value, nil
}

// UpdateSetting creates or replaces a setting in a single statement
func UpdateSetting(dbConn *gorm.DB, key string, value string) error {
	now := time.Now().UTC()
	return sqlite.PerformWrite(slog.Default(), dbConn, func(tx *gorm.DB) error {
		err := tx.Exec(`
			INSERT INTO settings (key, value, created_at, updated_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
		`, key, value, now, now).Error
		if err != nil {
			return fmt.Errorf("failed to update setting %s: %w", key, err)
		}
		return nil
	})
}

// SettingResponse represents a setting key-value pair for API responses
type SettingResponse struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// GetAllSettingsForDisplay returns every stored setting ordered by key
func GetAllSettingsForDisplay(db *gorm.DB) ([]SettingResponse, error) {
	var allSettings []Setting
	if err := db.Order("key ASC").Find(&allSettings).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch settings: %w", err)
	}

	result := make([]SettingResponse, 0, len(allSettings))
	for _, setting := range allSettings {
		result = append(result, SettingResponse{Key: setting.Key, Value: setting.Value})
	}
	return result, nil
}

// FloorStore reads and writes significance floor overrides. Overrides are
// merged over the configured defaults and cached until the next save.
type FloorStore struct {
	db       *gorm.DB
	defaults map[string]float64
	cache    *cache.Cache[string, map[string]float64]
}

// NewFloorStore returns a FloorStore backed by the settings table.
func NewFloorStore(db *gorm.DB, logger *slog.Logger, defaults map[string]float64) *FloorStore {
	if logger == nil {
		logger = slog.Default()
	}
	s := &FloorStore{db: db, defaults: defaults}
	fetchFunc := func(key string) (map[string]float64, error) {
		var value string
		err := db.WithContext(context.Background()).Raw("SELECT value FROM settings WHERE key = ? LIMIT 1", key).Scan(&value).Error
		if err != nil {
			return nil, err
		}
		return decodeFloors(value)
	}
	s.cache = cache.NewCache[string, map[string]float64](logger, 5*time.Minute, fetchFunc)
	return s
}

// Overrides returns only the floors saved in the database.
func (s *FloorStore) Overrides() (map[string]float64, error) {
	overrides, err := s.cache.Get(KeySignificanceFloors)
	if err != nil {
		return nil, fmt.Errorf("failed to read significance floors: %w", err)
	}
	return overrides, nil
}

// Floors returns the defaults with any saved overrides applied.
func (s *FloorStore) Floors() (map[string]float64, error) {
	overrides, err := s.Overrides()
	if err != nil {
		return nil, err
	}
	merged := make(map[string]float64, len(s.defaults)+len(overrides))
	for k, v := range s.defaults {
		merged[k] = v
	}
	for k, v := range overrides {
		merged[k] = v
	}
	return merged, nil
}

// Save replaces the stored overrides.
func (s *FloorStore) Save(overrides map[string]float64) error {
	clean := make(map[string]float64, len(overrides))
	names := make([]string, 0, len(overrides))
	for name := range overrides {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		v := overrides[name]
		key := strings.ToLower(strings.TrimSpace(name))
		if key == "" {
			return errors.New("significance floor needs a metric name")
		}
		if !metrics.IsName(key) {
			return fmt.Errorf("%w %q", ErrUnknownMetric, key)
		}
		if v < 0 {
			return fmt.Errorf("significance floor for %s must be >= 0, got %v", key, v)
		}
		clean[key] = v
	}

	raw, err := json.Marshal(clean)
	if err != nil {
		return fmt.Errorf("failed to marshal significance floors: %w", err)
	}
	if err := UpdateSetting(s.db, KeySignificanceFloors, string(raw)); err != nil {
		return err
	}
	s.cache.Clear()
	return nil
}

func decodeFloors(value string) (map[string]float64, error) {
	floors := map[string]float64{}
	if strings.TrimSpace(value) == "" {
		return floors, nil
	}
	if err := json.Unmarshal([]byte(value), &floors); err != nil {
		return nil, fmt.Errorf("invalid significance floors setting: %w", err)
	}
	return floors, nil
}
