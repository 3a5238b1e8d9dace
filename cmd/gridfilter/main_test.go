package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rebeliceyang/gridfilter/internal/models"
	"github.com/rebeliceyang/gridfilter/internal/persistence"
	"github.com/rebeliceyang/gridfilter/internal/table"
	"github.com/rebeliceyang/gridfilter/internal/tableio"
)

type fixture struct {
	dir    string
	input  string
	config string
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	dir := t.TempDir()
	f := fixture{
		dir:    dir,
		input:  filepath.Join(dir, "sales.csv"),
		config: filepath.Join(dir, "config.yaml"),
	}
	require.NoError(t, os.WriteFile(f.input,
		[]byte("city;amount;day\nAnkara;10;15.01.2024\nIzmir;25;16.01.2024\nBursa;40;17.01.2024\n"), 0644))

	cfg := fmt.Sprintf(`
persistence:
  path: %s
presets:
  path: %s
history:
  path: %s
log:
  level: error
`, filepath.Join(dir, "last.json"), filepath.Join(dir, "presets.yaml"), filepath.Join(dir, "history.db"))
	require.NoError(t, os.WriteFile(f.config, []byte(cfg), 0644))
	return f
}

func (f fixture) run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	args = append([]string{"--config", f.config}, args...)
	err := run(context.Background(), args, &stdout, &stderr)
	return stdout.String(), stderr.String(), err
}

func (f fixture) writeFilter(t *testing.T, g *models.FilterGroup) string {
	t.Helper()
	data, err := persistence.Marshal(g)
	require.NoError(t, err)
	path := filepath.Join(f.dir, "filter.json")
	require.NoError(t, os.WriteFile(path, data, 0644))
	return path
}

func TestRunFilterAndRestore(t *testing.T) {
	f := newFixture(t)
	filterPath := f.writeFilter(t, models.NewGroup().
		Add(models.NewLeaf("amount", models.OpGreaterThan, 15), models.LogicalNone))
	out := filepath.Join(f.dir, "out.json")

	stdout, _, err := f.run(t, "--input", f.input, "--filter", filterPath, "--output", out)
	require.NoError(t, err)
	assert.Equal(t, "2 of 3 rows: amount > 15\n", stdout)
	_, err = os.Stat(out)
	require.NoError(t, err)

	stdout, _, err = f.run(t, "--input", f.input)
	require.NoError(t, err)
	assert.Equal(t, "2 of 3 rows: amount > 15\n", stdout)

	stdout, _, err = f.run(t, "--input", f.input, "--no-restore")
	require.NoError(t, err)
	assert.Equal(t, "3 of 3 rows: no filters\n", stdout)
}

func TestRunWarnsAboutIncompatibleFilter(t *testing.T) {
	f := newFixture(t)
	filterPath := f.writeFilter(t, models.NewGroup().
		Add(models.NewLeaf("region", models.OpEquals, "north"), models.LogicalNone))

	stdout, stderr, err := f.run(t, "--input", f.input, "--filter", filterPath)
	require.NoError(t, err)
	assert.Equal(t, "3 of 3 rows: region = north\n", stdout)
	assert.Contains(t, stderr, "missing_column")
}

func TestRunPresets(t *testing.T) {
	f := newFixture(t)
	filterPath := f.writeFilter(t, models.NewGroup().
		Add(models.NewLeaf("city", models.OpInList, []any{"Ankara", "Bursa"}), models.LogicalNone))

	_, _, err := f.run(t, "--input", f.input, "--filter", filterPath, "--save-preset", "cities")
	require.NoError(t, err)

	stdout, _, err := f.run(t, "--input", f.input, "--no-restore", "--preset", "Cities")
	require.NoError(t, err)
	assert.Equal(t, "2 of 3 rows: city IN [Ankara, Bursa]\n", stdout)

	_, _, err = f.run(t, "--input", f.input, "--preset", "unknown")
	assert.Error(t, err)

	exported := filepath.Join(f.dir, "presets.csv")
	_, _, err = f.run(t, "--export-presets", exported)
	require.NoError(t, err)
	data, err := os.ReadFile(exported)
	require.NoError(t, err)
	assert.Contains(t, string(data), "cities")
}

func TestRunColumns(t *testing.T) {
	f := newFixture(t)
	stdout, _, err := f.run(t, "--input", f.input, "--columns", "--no-restore")
	require.NoError(t, err)
	assert.Contains(t, stdout, "DATE")
	assert.Contains(t, stdout, "NUMERIC")
	assert.Contains(t, stdout, "range=15.01.2024 - 17.01.2024")
}

func TestRunFlagErrors(t *testing.T) {
	f := newFixture(t)

	_, _, err := f.run(t)
	assert.Error(t, err)

	_, _, err = f.run(t, "--input", f.input, "--filter", "a.json", "--preset", "x")
	assert.Error(t, err)

	_, _, err = f.run(t, "--input", filepath.Join(f.dir, "missing.csv"))
	assert.Error(t, err)
}

func TestRunSQLitePushdown(t *testing.T) {
	f := newFixture(t)
	db := filepath.Join(f.dir, "sales.db")
	tbl := table.MustNew(
		table.NewColumn("city", table.KindString, []any{"Ankara", "Izmir", "Bursa"}),
		table.NewColumn("amount", table.KindInt, []any{int64(10), int64(25), int64(40)}),
		table.NewColumn("day", table.KindString, []any{"05.03.2024", "20.01.2023", "2024-03-05"}),
	)
	require.NoError(t, tableio.DefaultRegistry(nil).Write(context.Background(), tbl, db, nil))

	filterPath := f.writeFilter(t, models.NewGroup().
		Add(models.NewLeaf("amount", models.OpGreaterThan, 15), models.LogicalNone))

	stdout, _, err := f.run(t, "--input", db, "--filter", filterPath, "--pushdown")
	require.NoError(t, err)
	assert.Equal(t, "2 of 2 rows: amount > 15\n", stdout)

	stdout, _, err = f.run(t, "--input", db, "--filter", filterPath)
	require.NoError(t, err)
	assert.Equal(t, "2 of 3 rows: amount > 15\n", stdout)

	// Date strings are only comparable after conversion, so the leaf stays in memory.
	dayPath := f.writeFilter(t, models.NewGroup().
		Add(models.NewLeaf("day", models.OpEquals, time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)), models.LogicalNone))
	for _, args := range [][]string{
		{"--input", db, "--filter", dayPath, "--pushdown"},
		{"--input", db, "--filter", dayPath},
	} {
		stdout, _, err = f.run(t, args...)
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(stdout, "2 of 3 rows: "), stdout)
	}
}
