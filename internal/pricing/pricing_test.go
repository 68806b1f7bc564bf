package pricing

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/digkill/SpeakCoachBot/internal/models"
)

func TestNewStoreDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prices.json")
	store, err := NewStore(path)
	require.NoError(t, err)

	assert.Equal(t, DefaultPrices, store.All())

	// The defaults were persisted for next startup.
	_, err = os.Stat(path)
	assert.NoError(t, err)
}

func TestNewStoreLoadsExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prices.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"week": 100, "month": 500, "single": 25}`), 0o644))

	store, err := NewStore(path)
	require.NoError(t, err)

	amount, ok := store.Price(models.TariffWeek)
	assert.True(t, ok)
	assert.Equal(t, 100, amount)
}

func TestNewStoreFillsMissingTariffs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prices.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"week": 100}`), 0o644))

	store, err := NewStore(path)
	require.NoError(t, err)

	amount, ok := store.Price(models.TariffSingle)
	assert.True(t, ok)
	assert.Equal(t, DefaultPrices[models.TariffSingle], amount)
}

func TestNewStoreCorruptFileFallsBackToDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prices.json")
	// Valid JSON that fails decoding partway: "bogus" lands in the map
	// before the string value for "week" aborts the unmarshal.
	require.NoError(t, os.WriteFile(path, []byte(`{"bogus": 10, "week": "oops"}`), 0o644))

	store, err := NewStore(path)
	require.NoError(t, err)

	assert.Equal(t, DefaultPrices, store.All())

	reloaded, err := NewStore(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultPrices, reloaded.All())
}

func TestSetPricePersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prices.json")
	store, err := NewStore(path)
	require.NoError(t, err)

	require.NoError(t, store.SetPrice(models.TariffMonth, 999))

	reloaded, err := NewStore(path)
	require.NoError(t, err)
	amount, ok := reloaded.Price(models.TariffMonth)
	assert.True(t, ok)
	assert.Equal(t, 999, amount)
}

func TestSetPriceRejectsInvalid(t *testing.T) {
	store, err := NewStore(filepath.Join(t.TempDir(), "prices.json"))
	require.NoError(t, err)

	assert.Error(t, store.SetPrice(models.Tariff("yearly"), 100))
	assert.Error(t, store.SetPrice(models.TariffWeek, 0))
	assert.Error(t, store.SetPrice(models.TariffWeek, -5))
}

func TestAllReturnsCopy(t *testing.T) {
	store, err := NewStore(filepath.Join(t.TempDir(), "prices.json"))
	require.NoError(t, err)

	all := store.All()
	all[models.TariffWeek] = 1

	amount, _ := store.Price(models.TariffWeek)
	assert.Equal(t, DefaultPrices[models.TariffWeek], amount)
}
