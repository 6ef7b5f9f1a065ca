package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/raine/marktplatz-bot/internal/analysis"
	"github.com/raine/marktplatz-bot/internal/category"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestVisionCache(t *testing.T) {
	store := newTestStore(t)

	got, err := store.GetVisionCache("missing")
	require.NoError(t, err)
	assert.Nil(t, got)

	p := 45.0
	entry := &analysis.AnalysisResult{
		Title:       "Kaffeeservice",
		Description: "12 Teile, Porzellan",
		Price:       &p,
		Features:    []string{"spülmaschinenfest"},
	}
	require.NoError(t, store.SetVisionCache("abc", entry))

	got, err = store.GetVisionCache("abc")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, *entry, *got)

	entry.Title = "Kaffeeservice 12-teilig"
	require.NoError(t, store.SetVisionCache("abc", entry))
	got, err = store.GetVisionCache("abc")
	require.NoError(t, err)
	assert.Equal(t, "Kaffeeservice 12-teilig", got.Title)
}

func TestCategories_RoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	nodes, err := store.LoadCategories(ctx)
	require.NoError(t, err)
	assert.Empty(t, nodes)

	input := []category.Node{
		{ID: "1", Level: 1, Slug: "fahrzeuge", Translations: map[string]category.Translation{
			"de": {Name: "Fahrzeuge"},
			"en": {Name: "Vehicles", Description: "Cars and more"},
		}},
		{ID: "11", Level: 2, ParentID: "1", Slug: "autos-pkw", Translations: map[string]category.Translation{"de": {Name: "PKW"}}},
		{ID: "10", Level: 2, ParentID: "1", Slug: "motorraeder", Translations: map[string]category.Translation{"de": {Name: "Motorräder"}}},
	}
	require.NoError(t, store.ReplaceCategories(input))

	nodes, err = store.LoadCategories(ctx)
	require.NoError(t, err)
	assert.Equal(t, input, nodes)

	require.NoError(t, store.ReplaceCategories(input[:1]))
	nodes, err = store.LoadCategories(ctx)
	require.NoError(t, err)
	assert.Len(t, nodes, 1)
}

func TestItems(t *testing.T) {
	store := newTestStore(t)

	missing, err := store.GetItem("nope")
	require.NoError(t, err)
	assert.Nil(t, missing)

	p := 12140.0
	item := &StoredItem{
		Title:          "BMW 320d Touring",
		Description:    "Gepflegt",
		Price:          &p,
		CategoryID:     "11",
		CategoryStatus: "resolved",
		ImageCount:     3,
		FailedImages:   1,
		Analysis: analysis.AnalysisResult{
			Title:       "BMW 320d Touring",
			Description: "Gepflegt",
			Price:       &p,
			VehicleYear: "2015",
		},
	}
	id, err := store.SaveItem(item)
	require.NoError(t, err)
	assert.Len(t, id, 36)
	assert.Equal(t, id, item.ID)

	got, err := store.GetItem(id)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "BMW 320d Touring", got.Title)
	require.NotNil(t, got.Price)
	assert.Equal(t, 12140.0, *got.Price)
	assert.Equal(t, "11", got.CategoryID)
	assert.Equal(t, 1, got.FailedImages)
	assert.Equal(t, "2015", got.Analysis.VehicleYear)
	assert.WithinDuration(t, time.Now(), got.CreatedAt, time.Minute)
}

func TestItems_WithoutPriceOrCategory(t *testing.T) {
	store := newTestStore(t)

	id, err := store.SaveItem(&StoredItem{Title: "Teller", Description: "Sechs Stück", CategoryStatus: "unresolved"})
	require.NoError(t, err)

	got, err := store.GetItem(id)
	require.NoError(t, err)
	assert.Nil(t, got.Price)
	assert.Empty(t, got.CategoryID)
}
