package persistence

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rebeliceyang/gridfilter/internal/models"
)

func sampleGroup() *models.FilterGroup {
	return models.NewGroup().
		Add(models.NewLeaf("Age", models.OpGreaterThan, int64(30)), models.LogicalNone).
		Or(models.NewGroup().
			Add(models.NewLeaf("City", models.OpInList, []any{"Ankara", "Izmir"}), models.LogicalNone).
			And(models.NewRange("Joined", models.OpBetween,
				time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
				time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC))))
}

func TestSaveLoadRoundTrip(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "nested", "last.json"))
	g := sampleGroup()

	require.NoError(t, s.Save(g))
	got := s.Load()
	require.NotNil(t, got)
	assert.Equal(t, g.ToMap(), got.ToMap())
}

func TestSaveDocumentShape(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "last.json"))
	require.NoError(t, s.Save(sampleGroup()))

	data, err := os.ReadFile(s.Path())
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.EqualValues(t, 2, doc["version"])
	assert.Equal(t, "composite", doc["format"])

	root := doc["root"].(map[string]any)
	assert.Equal(t, "group", root["type"])
	items := root["items"].([]any)
	require.Len(t, items, 2)
	assert.Nil(t, items[0].(map[string]any)["preceding_operator"])
	assert.Equal(t, "OR", items[1].(map[string]any)["preceding_operator"])

	leaf := items[0].(map[string]any)["component"].(map[string]any)
	assert.Equal(t, "GREATER_THAN", leaf["operator"])
	assert.Contains(t, string(data), `"__datetime__": true`)
}

func TestSaveNilStoresEmptyGroup(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "last.json"))
	require.NoError(t, s.Save(nil))

	got := s.Load()
	require.NotNil(t, got)
	assert.True(t, got.IsEmpty())
}

func TestLoadFailuresReturnNil(t *testing.T) {
	dir := t.TempDir()

	assert.Nil(t, NewStore(filepath.Join(dir, "missing.json")).Load())

	tests := map[string]string{
		"malformed.json":    `{"version": 2,`,
		"wrong_format.json": `{"version": 2, "format": "flat", "root": {"type": "group", "items": []}}`,
		"no_root.json":      `{"version": 2, "format": "composite"}`,
		"bad_operator.json": `{"format": "composite", "root": {"type": "group", "items": [{"component": {"type": "filter", "column_name": "A", "operator": "LIKE"}}]}}`,
	}
	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name)
			require.NoError(t, os.WriteFile(path, []byte(content), 0644))
			assert.Nil(t, NewStore(path).Load())
		})
	}
}

func TestUnmarshalIgnoresVersion(t *testing.T) {
	g, err := Unmarshal([]byte(`{"version": 7, "format": "composite", "root": {"type": "group", "id": "r", "children": [{"type": "filter", "column_name": "A", "operator": "IS_NULL"}], "logical_operator": "OR"}}`))
	require.NoError(t, err)
	assert.Equal(t, "r", g.ID())
	assert.Equal(t, 1, g.Len())

	_, err = Unmarshal([]byte(`{"format": "plain", "root": {}}`))
	assert.ErrorIs(t, err, ErrWrongFormat)
}

func TestDefaultPath(t *testing.T) {
	assert.Equal(t, "last_filters.json", filepath.Base(DefaultPath()))
	assert.Equal(t, DefaultPath(), NewStore("").Path())
}
