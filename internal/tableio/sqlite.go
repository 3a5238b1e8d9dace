package tableio

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/mattn/go-sqlite3"

	"github.com/rebeliceyang/gridfilter/internal/filter"
	"github.com/rebeliceyang/gridfilter/internal/models"
	"github.com/rebeliceyang/gridfilter/internal/table"
)

// DefaultSQLiteTable is the table name used when writing without OptTable.
const DefaultSQLiteTable = "data"

// ErrAmbiguousTable is returned when a database holds several tables and no
// OptTable was given.
var ErrAmbiguousTable = errors.New("database has several tables, set the table option")

// SQLite reads and writes one table of a SQLite database file.
type SQLite struct{}

func (SQLite) Name() string { return "sqlite" }

func (SQLite) Extensions() []string { return []string{".db", ".sqlite", ".sqlite3"} }

func (s SQLite) Read(ctx context.Context, path string, opts Options) (*table.Table, error) {
	return s.ReadFiltered(ctx, path, opts, nil)
}

// ReadFiltered reads the table with root translated into a WHERE clause.
// Only leaves SQLite evaluates exactly like the engine are pushed, the rest
// widen to true, so the result is a superset and the caller must still apply
// root in memory.
func (SQLite) ReadFiltered(ctx context.Context, path string, opts Options, root models.Component) (*table.Table, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite3", "file:"+path+"?mode=ro")
	if err != nil {
		return nil, err
	}
	defer func() { _ = db.Close() }()

	name, err := resolveTable(ctx, db, opts.Get(OptTable, ""))
	if err != nil {
		return nil, err
	}
	kinds, err := sqliteColumns(ctx, db, name)
	if err != nil {
		return nil, err
	}

	query := sq.Select("*").From(filter.QuoteIdent(name))
	if root != nil && !root.IsEmpty() {
		pred, err := filter.NewBuilder(filter.SQLite).WithKinds(kinds).Build(root)
		if err != nil {
			return nil, err
		}
		query = query.Where(pred)
	}

	stmt, args, err := query.ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", name, err)
	}
	defer func() { _ = rows.Close() }()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	values := make([][]any, len(cols))
	for i := range values {
		values[i] = []any{}
	}
	scan := make([]any, len(cols))
	dest := make([]any, len(cols))
	for i := range dest {
		dest[i] = &scan[i]
	}
	for rows.Next() {
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		for i, v := range scan {
			values[i] = append(values[i], sqliteValue(v))
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]*table.Column, len(cols))
	for i, c := range cols {
		out[i] = table.NewColumn(c, table.KindAny, values[i])
	}
	return table.New(out...)
}

func (SQLite) Write(ctx context.Context, t *table.Table, path string, opts Options) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	name := opts.Get(OptTable, DefaultSQLiteTable)
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+filter.QuoteIdent(name)); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, createTableSQL(name, t)); err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}

	if t.NumColumns() > 0 {
		cols := t.Columns()
		names := make([]string, len(cols))
		placeholders := make([]any, len(cols))
		for i, c := range cols {
			names[i] = filter.QuoteIdent(c.Name)
		}
		insert, _, err := sq.Insert(filter.QuoteIdent(name)).Columns(names...).Values(placeholders...).ToSql()
		if err != nil {
			return err
		}
		stmt, err := tx.PrepareContext(ctx, insert)
		if err != nil {
			return err
		}
		defer func() { _ = stmt.Close() }()

		row := make([]any, len(cols))
		for r := 0; r < t.NumRows(); r++ {
			for i, c := range cols {
				row[i] = sqliteArg(c.Value(r))
			}
			if _, err := stmt.ExecContext(ctx, row...); err != nil {
				return fmt.Errorf("failed to insert row %d: %w", r, err)
			}
		}
	}
	return tx.Commit()
}

func resolveTable(ctx context.Context, db *sql.DB, name string) (string, error) {
	if name != "" {
		return name, nil
	}
	query, args, err := sq.Select("name").
		From("sqlite_master").
		Where(sq.Eq{"type": "table"}).
		Where(sq.NotLike{"name": "sqlite_%"}).
		OrderBy("name").
		ToSql()
	if err != nil {
		return "", err
	}
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return "", err
	}
	defer func() { _ = rows.Close() }()

	var tables []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return "", err
		}
		tables = append(tables, n)
	}
	if err := rows.Err(); err != nil {
		return "", err
	}
	switch len(tables) {
	case 0:
		return "", errors.New("database has no tables")
	case 1:
		return tables[0], nil
	}
	return "", fmt.Errorf("%w: %s", ErrAmbiguousTable, strings.Join(tables, ", "))
}

// sqliteColumns maps each column of name to the kind implied by its declared
// type.
func sqliteColumns(ctx context.Context, db *sql.DB, name string) (map[string]table.Kind, error) {
	rows, err := db.QueryContext(ctx, "SELECT name, type FROM pragma_table_info(?)", name)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	kinds := make(map[string]table.Kind)
	for rows.Next() {
		var n, declared string
		if err := rows.Scan(&n, &declared); err != nil {
			return nil, err
		}
		kinds[n] = kindForSQLite(declared)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(kinds) == 0 {
		return nil, fmt.Errorf("table %q not found", name)
	}
	return kinds, nil
}

// kindForSQLite follows SQLite's column affinity rules, with BOOLEAN and
// date names split out of NUMERIC.
func kindForSQLite(declared string) table.Kind {
	dt := strings.ToUpper(declared)
	switch {
	case strings.Contains(dt, "INT"):
		return table.KindInt
	case strings.Contains(dt, "CHAR"), strings.Contains(dt, "CLOB"), strings.Contains(dt, "TEXT"):
		return table.KindString
	case strings.Contains(dt, "BOOL"):
		return table.KindBool
	case strings.Contains(dt, "DATE"), strings.Contains(dt, "TIME"):
		return table.KindTime
	case strings.Contains(dt, "REAL"), strings.Contains(dt, "FLOA"), strings.Contains(dt, "DOUB"),
		strings.Contains(dt, "NUM"), strings.Contains(dt, "DEC"):
		return table.KindFloat
	}
	return table.KindAny
}

func createTableSQL(name string, t *table.Table) string {
	defs := make([]string, 0, t.NumColumns())
	for _, c := range t.Columns() {
		defs = append(defs, filter.QuoteIdent(c.Name)+" "+sqliteType(c.Kind))
	}
	return "CREATE TABLE " + filter.QuoteIdent(name) + " (" + strings.Join(defs, ", ") + ")"
}

func sqliteType(k table.Kind) string {
	switch k {
	case table.KindInt:
		return "INTEGER"
	case table.KindFloat:
		return "REAL"
	case table.KindBool:
		return "BOOLEAN"
	case table.KindTime:
		return "TIMESTAMP"
	}
	return "TEXT"
}

func sqliteArg(v any) any {
	if table.IsNull(v) {
		return nil
	}
	switch x := v.(type) {
	case int64, float64, bool, string, time.Time:
		return x
	case int:
		return int64(x)
	}
	return table.Format(v)
}

func sqliteValue(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}
