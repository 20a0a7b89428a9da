package radwatch

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSettingsStore(t *testing.T) *SettingsStore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "settings.db")
	store, err := NewSettingsStore(DefaultSettingsStoreConfig(path))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSettingsStore_SaveLoadRoundTrip(t *testing.T) {
	store := newTestSettingsStore(t)
	ctx := context.Background()

	want := Options{
		ActivationThresholds: map[string]float64{"zscore": 0.9},
		CusumK:               floatPtr(0.6),
		CusumH:               floatPtr(4),
		AlertCount:           intPtr(4),
	}
	require.NoError(t, store.Save(ctx, "device-7", want))

	got, err := store.Load(ctx, "device-7")
	require.NoError(t, err)
	assert.Equal(t, want.ActivationThresholds, got.ActivationThresholds)
	require.NotNil(t, got.CusumK)
	assert.Equal(t, 0.6, *got.CusumK)
	require.NotNil(t, got.AlertCount)
	assert.Equal(t, 4, *got.AlertCount)
	assert.Nil(t, got.ForecastAlpha)

	// Loaded options configure an engine without modification.
	engine, err := New(DefaultConfig())
	require.NoError(t, err)
	defer engine.Close()
	require.NoError(t, engine.Configure(got))
	assert.Equal(t, 0.6, engine.Config().Cusum.K)
}

func TestSettingsStore_LoadMissingDevice(t *testing.T) {
	store := newTestSettingsStore(t)

	_, err := store.Load(context.Background(), "never-seen")
	assert.ErrorIs(t, err, ErrSettingsNotFound)
}

func TestSettingsStore_SaveOverwrites(t *testing.T) {
	store := newTestSettingsStore(t)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "device-1", Options{CusumK: floatPtr(0.5)}))
	require.NoError(t, store.Save(ctx, "device-1", Options{CusumK: floatPtr(0.9)}))

	got, err := store.Load(ctx, "device-1")
	require.NoError(t, err)
	require.NotNil(t, got.CusumK)
	assert.Equal(t, 0.9, *got.CusumK)
}

func TestSettingsStore_ListAndDelete(t *testing.T) {
	store := newTestSettingsStore(t)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "b-device", Options{}))
	require.NoError(t, store.Save(ctx, "a-device", Options{}))

	ids, err := store.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a-device", "b-device"}, ids)

	require.NoError(t, store.Delete(ctx, "a-device"))
	require.NoError(t, store.Delete(ctx, "a-device")) // idempotent

	ids, err = store.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"b-device"}, ids)

	_, err = store.Load(ctx, "a-device")
	assert.ErrorIs(t, err, ErrSettingsNotFound)
}

func TestSettingsStore_ClosedFailsFast(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.db")
	store, err := NewSettingsStore(DefaultSettingsStoreConfig(path))
	require.NoError(t, err)
	require.NoError(t, store.Close())

	ctx := context.Background()
	assert.ErrorIs(t, store.Save(ctx, "d", Options{}), ErrEngineClosed)
	_, err = store.Load(ctx, "d")
	assert.ErrorIs(t, err, ErrEngineClosed)
}

func TestNewSettingsStore_RequiresPath(t *testing.T) {
	_, err := NewSettingsStore(SettingsStoreConfig{})
	assert.ErrorIs(t, err, ErrConfigOutOfRange)
}
