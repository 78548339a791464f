package settings_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"funnelmetrics/internal/settings"
	"funnelmetrics/internal/testsupport"
)

func TestUpdateSetting(t *testing.T) {
	db := testsupport.SetupTestDB(t)

	t.Run("defaults are written once", func(t *testing.T) {
		require.NoError(t, settings.SetupDefaultSettings(db))
		value, err := settings.GetSetting(db, settings.KeySignificanceFloors)
		require.NoError(t, err)
		assert.Equal(t, "{}", value)
	})

	t.Run("update replaces in place", func(t *testing.T) {
		require.NoError(t, settings.UpdateSetting(db, settings.KeyLastSeededAt, "2024-03-01T00:00:00Z"))
		require.NoError(t, settings.UpdateSetting(db, settings.KeyLastSeededAt, "2024-03-02T00:00:00Z"))

		value, err := settings.GetSetting(db, settings.KeyLastSeededAt)
		require.NoError(t, err)
		assert.Equal(t, "2024-03-02T00:00:00Z", value)

		all, err := settings.GetAllSettingsForDisplay(db)
		require.NoError(t, err)
		require.Len(t, all, 2)
		assert.Equal(t, settings.KeyLastSeededAt, all[0].Key)
	})

	t.Run("defaults do not overwrite", func(t *testing.T) {
		require.NoError(t, settings.UpdateSetting(db, settings.KeySignificanceFloors, `{"clicks":9}`))
		require.NoError(t, settings.SetupDefaultSettings(db))
		value, err := settings.GetSetting(db, settings.KeySignificanceFloors)
		require.NoError(t, err)
		assert.Equal(t, `{"clicks":9}`, value)
	})
}

func TestFloorStore(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	defaults := map[string]float64{"impressions": 100, "clicks": 5}
	store := settings.NewFloorStore(db, testsupport.GetLogger(), defaults)

	t.Run("no overrides yields defaults", func(t *testing.T) {
		overrides, err := store.Overrides()
		require.NoError(t, err)
		assert.Empty(t, overrides)

		floors, err := store.Floors()
		require.NoError(t, err)
		assert.Equal(t, defaults, floors)
	})

	t.Run("saved overrides merge over defaults", func(t *testing.T) {
		require.NoError(t, store.Save(map[string]float64{" Clicks ": 20, "leads": 3}))

		floors, err := store.Floors()
		require.NoError(t, err)
		assert.Equal(t, map[string]float64{"impressions": 100, "clicks": 20, "leads": 3}, floors)

		value, err := settings.GetSetting(db, settings.KeySignificanceFloors)
		require.NoError(t, err)
		assert.JSONEq(t, `{"clicks":20,"leads":3}`, value)
	})

	t.Run("invalid overrides are rejected", func(t *testing.T) {
		assert.Error(t, store.Save(map[string]float64{"clicks": -1}))
		assert.Error(t, store.Save(map[string]float64{"": 1}))
		assert.ErrorIs(t, store.Save(map[string]float64{"impresions": 50}), settings.ErrUnknownMetric)

		floors, err := store.Floors()
		require.NoError(t, err)
		assert.Equal(t, 20.0, floors["clicks"])
		assert.NotContains(t, floors, "impresions")
	})

	t.Run("defaults are not mutated", func(t *testing.T) {
		assert.Equal(t, 5.0, defaults["clicks"])
	})
}
