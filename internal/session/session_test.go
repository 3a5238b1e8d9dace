package session

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rebeliceyang/gridfilter/internal/history"
	"github.com/rebeliceyang/gridfilter/internal/models"
	"github.com/rebeliceyang/gridfilter/internal/persistence"
	"github.com/rebeliceyang/gridfilter/internal/table"
	"github.com/rebeliceyang/gridfilter/internal/tableio"
)

const salesCSV = "city,amount,day\nAnkara,10,15.01.2024\nIzmir,25,16.01.2024\nBursa,40,17.01.2024\n"

func writeSales(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "sales.csv")
	require.NoError(t, os.WriteFile(path, []byte(salesCSV), 0644))
	return path
}

func newLoader() *Loader {
	return NewLoader(tableio.DefaultRegistry(nil), nil, nil)
}

func TestLoadConvertsDates(t *testing.T) {
	path := writeSales(t, t.TempDir())

	var stages []Stage
	ds, err := newLoader().Load(context.Background(), path, nil, func(p Progress) {
		stages = append(stages, p.Stage)
	})
	require.NoError(t, err)

	assert.Equal(t, []Stage{StageReading, StageAnalyzing, StageConverting, StageReanalyzing, StageDone}, stages)
	assert.Equal(t, path, ds.Source)
	require.Len(t, ds.Columns, 3)

	day, ok := ds.Column("day")
	require.True(t, ok)
	assert.Equal(t, models.ColumnDate, day.Type)
	assert.Equal(t, time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC), day.MinValue)

	col, _ := ds.Table.Column("day")
	assert.Equal(t, table.KindTime, col.Kind)

	amount, _ := ds.Column("amount")
	assert.Equal(t, models.ColumnNumeric, amount.Type)
}

func TestLoadAsync(t *testing.T) {
	path := writeSales(t, t.TempDir())

	progress, result := newLoader().LoadAsync(context.Background(), path, nil)
	for range progress {
	}
	res := <-result
	require.NoError(t, res.Err)
	assert.Equal(t, 3, res.Dataset.Table.NumRows())
}

func TestLoadAsyncError(t *testing.T) {
	progress, result := newLoader().LoadAsync(context.Background(), filepath.Join(t.TempDir(), "missing.csv"), nil)
	for range progress {
	}
	res := <-result
	assert.Error(t, res.Err)
	assert.Nil(t, res.Dataset)
}

func TestLoadCancelled(t *testing.T) {
	path := writeSales(t, t.TempDir())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newLoader().Load(ctx, path, nil, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestApplyRemembersAndRestores(t *testing.T) {
	dir := t.TempDir()
	path := writeSales(t, dir)
	store := persistence.NewStore(filepath.Join(dir, "last.json"))
	ctx := context.Background()

	s := New(newLoader(), WithStore(store))
	_, err := s.Open(ctx, path, nil, true, nil)
	require.NoError(t, err)

	root := models.NewGroup().
		Add(models.NewLeaf("amount", models.OpGreaterThan, 15), models.LogicalNone).
		And(models.NewLeaf("region", models.OpEquals, "north"))
	view, err := s.Apply(root)
	require.NoError(t, err)
	assert.Equal(t, 2, view.NumRows())
	assert.Same(t, root, s.Filter())

	next := New(newLoader(), WithStore(store))
	res, err := next.Open(ctx, path, nil, true, nil)
	require.NoError(t, err)
	require.NotNil(t, res.Restored)
	assert.Equal(t, 2, res.View.NumRows())
	require.Len(t, res.Issues, 1)
	assert.Equal(t, persistence.IssueMissingColumn, res.Issues[0].Kind)
	assert.Equal(t, "region", res.Issues[0].Column)
}

func TestOpenWithoutRestore(t *testing.T) {
	dir := t.TempDir()
	path := writeSales(t, dir)
	store := persistence.NewStore(filepath.Join(dir, "last.json"))
	require.NoError(t, store.Save(models.NewGroup().Add(models.NewLeaf("amount", models.OpLessThan, 0), models.LogicalNone)))

	res, err := New(newLoader(), WithStore(store)).Open(context.Background(), path, nil, false, nil)
	require.NoError(t, err)
	assert.Nil(t, res.Restored)
	assert.Equal(t, 3, res.View.NumRows())
}

func TestClearIsNotRestored(t *testing.T) {
	dir := t.TempDir()
	path := writeSales(t, dir)
	store := persistence.NewStore(filepath.Join(dir, "last.json"))
	ctx := context.Background()

	s := New(newLoader(), WithStore(store))
	_, err := s.Open(ctx, path, nil, true, nil)
	require.NoError(t, err)
	_, err = s.Apply(models.NewGroup().Add(models.NewLeaf("city", models.OpEquals, "Izmir"), models.LogicalNone))
	require.NoError(t, err)

	view, err := s.Clear()
	require.NoError(t, err)
	assert.Equal(t, 3, view.NumRows())

	res, err := New(newLoader(), WithStore(store)).Open(ctx, path, nil, true, nil)
	require.NoError(t, err)
	assert.Nil(t, res.Restored)
}

func TestApplyRecordsHistory(t *testing.T) {
	dir := t.TempDir()
	path := writeSales(t, dir)
	h, err := history.NewStore(filepath.Join(dir, "history.db"))
	require.NoError(t, err)
	defer func() { _ = h.Close() }()

	s := New(newLoader(), WithHistory(h, 2))
	_, err = s.Open(context.Background(), path, nil, false, nil)
	require.NoError(t, err)

	for _, city := range []string{"Ankara", "Izmir", "Bursa"} {
		_, err := s.Apply(models.NewGroup().Add(models.NewLeaf("city", models.OpEquals, city), models.LogicalNone))
		require.NoError(t, err)
	}
	_, err = s.Apply(models.NewGroup())
	require.NoError(t, err)

	entries, err := h.GetRecent(10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "city = Bursa", entries[0].Summary)
	assert.Equal(t, 3, entries[0].RowsTotal)
	assert.Equal(t, 1, entries[0].RowsMatched)
	assert.True(t, entries[0].Success)
	assert.Contains(t, entries[0].FilterJSON, `"composite"`)
}

func TestApplyWithoutDataset(t *testing.T) {
	_, err := New(newLoader()).Apply(models.NewGroup())
	assert.ErrorIs(t, err, ErrNoDataset)
}

func TestWatchReloads(t *testing.T) {
	for _, debounce := range []time.Duration{20 * time.Millisecond, time.Nanosecond} {
		t.Run(debounce.String(), func(t *testing.T) {
			watchUntilReload(t, debounce)
		})
	}
}

func watchUntilReload(t *testing.T, debounce time.Duration) {
	t.Helper()
	dir := t.TempDir()
	path := writeSales(t, dir)

	s := New(newLoader())
	_, err := s.Open(context.Background(), path, nil, false, nil)
	require.NoError(t, err)
	_, err = s.Apply(models.NewGroup().Add(models.NewLeaf("amount", models.OpGreaterThan, 15), models.LogicalNone))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var once sync.Once
	reloaded := make(chan *table.Table, 1)
	done := make(chan error, 1)
	go func() {
		done <- s.Watch(ctx, debounce, func(view *table.Table, err error) {
			// A reload can race a write that is still in progress.
			if err == nil && view.NumRows() == 3 {
				once.Do(func() { reloaded <- view })
			}
		})
	}()

	updated := salesCSV + "Adana,99,18.01.2024\n"
	deadline := time.After(5 * time.Second)
	tick := time.NewTicker(100 * time.Millisecond)
	defer tick.Stop()

	var view *table.Table
wait:
	for {
		select {
		case view = <-reloaded:
			break wait
		case <-tick.C:
			require.NoError(t, os.WriteFile(path, []byte(updated), 0644))
		case <-deadline:
			t.Fatal("no reload after file change")
		}
	}

	assert.Equal(t, 3, view.NumRows())
	assert.Eventually(t, func() bool { return s.Dataset().Table.NumRows() == 4 }, time.Second, 10*time.Millisecond)
	assert.NotNil(t, s.Filter())

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}
