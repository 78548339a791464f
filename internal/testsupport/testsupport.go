package testsupport

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"
	ctestsupport "github.com/karloscodes/cartridge/testsupport"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"funnelmetrics/internal"
	"funnelmetrics/internal/config"
	"funnelmetrics/internal/database"
	"funnelmetrics/internal/entities"
	"funnelmetrics/internal/pkg/keylock"
	"funnelmetrics/internal/settings"
)

// testDBCache caches test databases by test name to allow multiple calls
// within the same test to share the same database
var testDBCache = make(map[string]*gorm.DB)
var testDBCacheMu sync.Mutex

// TestDBManager wraps cartridge's TestDBManager
type TestDBManager struct {
	*ctestsupport.TestDBManager
}

// NewTestDBManager creates a TestDBManager that implements cartridge.DBManager
func NewTestDBManager(db *gorm.DB) *TestDBManager {
	return &TestDBManager{
		TestDBManager: ctestsupport.NewTestDBManager(db),
	}
}

// Ensure TestDBManager implements cartridge.DBManager
var _ cartridge.DBManager = (*TestDBManager)(nil)

// FixedClock always reports the same instant.
type FixedClock struct {
	Time time.Time
}

func (c FixedClock) Now(loc *time.Location) time.Time {
	return c.Time.In(loc)
}

// Today is the date every test clock is pinned to unless a test picks its own.
var Today = time.Date(2024, time.March, 15, 12, 0, 0, 0, time.UTC)

// SetupTestDB creates a test database with all models migrated.
// Uses a named in-memory database with cache=shared to allow multiple connections
// to share the same database within a test. Caches the database by test name
// so multiple calls within the same test return the same database.
func SetupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	testName := t.Name()

	// Use root test name for caching to handle closure issues where
	// setup functions capture the outer t while t.Run has subtest t
	rootName := testName
	if idx := strings.Index(testName, "/"); idx > 0 {
		rootName = testName[:idx]
	}

	// Check cache first
	testDBCacheMu.Lock()
	if db, exists := testDBCache[rootName]; exists {
		testDBCacheMu.Unlock()
		return db
	}
	testDBCacheMu.Unlock()

	// Create a unique named in-memory database for each test
	// cache=shared allows multiple connections to the same database
	sanitizedName := strings.ReplaceAll(rootName, "/", "_")
	dsn := fmt.Sprintf("file:test_%s_%d?mode=memory&cache=shared", sanitizedName, time.Now().UnixNano())

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("testsupport: failed to open test database: %v", err)
	}

	// Apply SQLite pragmas
	db.Exec("PRAGMA foreign_keys = ON")
	db.Exec("PRAGMA journal_mode = WAL")

	if err := db.AutoMigrate(database.Models()...); err != nil {
		t.Fatalf("testsupport: failed to migrate models: %v", err)
	}
	if err := settings.SetupDefaultSettings(db); err != nil {
		t.Fatalf("testsupport: failed to write default settings: %v", err)
	}

	// Cache the database
	testDBCacheMu.Lock()
	testDBCache[rootName] = db
	testDBCacheMu.Unlock()

	// Register cleanup
	t.Cleanup(func() {
		testDBCacheMu.Lock()
		delete(testDBCache, rootName)
		testDBCacheMu.Unlock()
		sqlDB, err := db.DB()
		if err == nil {
			sqlDB.Close()
		}
	})

	return db
}

// CleanAllTables clears all non-system tables in the database
func CleanAllTables(db *gorm.DB) {
	var tableNames []string
	db.Raw("SELECT name FROM sqlite_master WHERE type='table' AND name NOT LIKE 'sqlite_%'").Scan(&tableNames)

	if len(tableNames) == 0 {
		return
	}

	db.Exec("PRAGMA foreign_keys = OFF")
	defer db.Exec("PRAGMA foreign_keys = ON")

	db.Transaction(func(tx *gorm.DB) error {
		for _, table := range tableNames {
			tx.Exec("DELETE FROM " + table)
			tx.Exec("DELETE FROM sqlite_sequence WHERE name=?", table)
		}
		return nil
	})
}

// GetLogger returns a test logger
func GetLogger() *slog.Logger {
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError})
	return slog.New(handler)
}

// Tree is a one-branch funnel hierarchy.
type Tree struct {
	Funnel   *entities.Entity
	Campaign *entities.Entity
	AdSet    *entities.Entity
	Creative *entities.Entity
}

// CreateTree creates a funnel with one campaign, ad set and creative.
func CreateTree(t *testing.T, db *gorm.DB, name string) Tree {
	t.Helper()

	funnel, err := entities.Create(db, entities.Funnel, nil, name)
	require.NoError(t, err)
	campaign, err := entities.Create(db, entities.Campaign, &funnel.ID, name+" campaign")
	require.NoError(t, err)
	adSet, err := entities.Create(db, entities.AdSet, &campaign.ID, name+" ad set")
	require.NoError(t, err)
	creative, err := entities.Create(db, entities.Creative, &adSet.ID, name+" creative")
	require.NoError(t, err)

	return Tree{Funnel: funnel, Campaign: campaign, AdSet: adSet, Creative: creative}
}

// CreateMinimalTestApp creates a test Fiber app with all routes and a clock
// pinned to Today.
func CreateMinimalTestApp(t *testing.T, db *gorm.DB) *fiber.App {
	t.Helper()

	dbManager := NewTestDBManager(db)
	appConfig := config.GetConfig()
	appConfig.Environment = config.Test

	cfg := cartridge.DefaultServerConfig()
	cfg.Config = appConfig
	cfg.Logger = GetLogger()
	cfg.DBManager = dbManager
	// Enable SecFetchSite validation in tests to match production behavior
	cfg.EnableSecFetchSite = true
	cfg.SecFetchSiteAllowedValues = []string{"cross-site", "same-site", "same-origin"}

	srv, err := cartridge.NewServer(cfg)
	require.NoError(t, err)

	internal.MountRoutes(srv, keylock.NewLocalLocker(), FixedClock{Time: Today})
	return srv.App()
}

// NewJSONRequest builds a request the API accepts from a browser.
func NewJSONRequest(t *testing.T, method, target string, body any) *http.Request {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Sec-Fetch-Site", "cross-site")
	return req
}

// DecodeJSON reads a response body into v.
func DecodeJSON(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}
