package tableio

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rebeliceyang/gridfilter/internal/filter"
	"github.com/rebeliceyang/gridfilter/internal/logger"
	"github.com/rebeliceyang/gridfilter/internal/models"
	"github.com/rebeliceyang/gridfilter/internal/table"
)

// PostgresColumn describes a column from information_schema.
type PostgresColumn struct {
	Name     string
	DataType string
	UDTName  string
	Kind     table.Kind
}

// Postgres loads tables from a PostgreSQL database.
type Postgres struct {
	pool   *pgxpool.Pool
	config models.ConnectionConfig
	log    *logger.Logger
}

// OpenPostgres connects to the database described by config.
func OpenPostgres(ctx context.Context, config models.ConnectionConfig, log *logger.Logger) (*Postgres, error) {
	if log == nil {
		log = logger.Nop()
	}
	poolConfig, err := pgxpool.ParseConfig(config.ConnString())
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection config: %w", err)
	}

	poolConfig.MaxConns = 4
	poolConfig.MinConns = 1
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Infow("connected to postgres", "source", config.Redacted())
	return &Postgres{pool: pool, config: config, log: log}, nil
}

// Close closes the connection pool.
func (p *Postgres) Close() {
	if p.pool != nil {
		p.pool.Close()
	}
}

// Query runs sql and returns the result set as a table.
func (p *Postgres) Query(ctx context.Context, sql string, args ...any) (*table.Table, error) {
	rows, err := p.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	values := make([][]any, len(fields))
	for i := range values {
		values[i] = []any{}
	}
	for rows.Next() {
		row, err := rows.Values()
		if err != nil {
			return nil, err
		}
		for i, v := range row {
			values[i] = append(values[i], postgresValue(v))
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	cols := make([]*table.Column, len(fields))
	for i, fd := range fields {
		cols[i] = table.NewColumn(fd.Name, table.KindAny, values[i])
	}
	return table.New(cols...)
}

// Columns returns column metadata for schema.name in ordinal order.
func (p *Postgres) Columns(ctx context.Context, schema, name string) ([]PostgresColumn, error) {
	query, args, err := sq.Select("column_name", "data_type", "udt_name").
		From("information_schema.columns").
		Where(sq.Eq{"table_schema": p.schemaOr(schema), "table_name": name}).
		OrderBy("ordinal_position").
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get columns: %w", err)
	}
	defer rows.Close()

	var cols []PostgresColumn
	for rows.Next() {
		var c PostgresColumn
		if err := rows.Scan(&c.Name, &c.DataType, &c.UDTName); err != nil {
			return nil, err
		}
		c.Kind = kindForPostgres(c.DataType)
		cols = append(cols, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(cols) == 0 {
		return nil, fmt.Errorf("table %s.%s not found", p.schemaOr(schema), name)
	}
	return cols, nil
}

// ReadTable loads schema.name with root pushed down as a WHERE clause. A
// limit of zero reads every row. Leaves on text and date columns are not
// pushed, so the caller must still apply root in memory.
func (p *Postgres) ReadTable(ctx context.Context, schema, name string, root models.Component, limit uint64) (*table.Table, error) {
	cols, err := p.Columns(ctx, schema, name)
	if err != nil {
		return nil, err
	}
	query, args, err := postgresSelect(p.schemaOr(schema), name, cols, root, limit)
	if err != nil {
		return nil, err
	}
	p.log.Debugw("reading postgres table", "query", query, "args", len(args))
	return p.Query(ctx, query, args...)
}

func (p *Postgres) schemaOr(schema string) string {
	switch {
	case schema != "":
		return schema
	case p.config.Schema != "":
		return p.config.Schema
	}
	return "public"
}

func postgresSelect(schema, name string, columns []PostgresColumn, root models.Component, limit uint64) (string, []any, error) {
	quoted := make([]string, len(columns))
	kinds := make(map[string]table.Kind, len(columns))
	for i, c := range columns {
		quoted[i] = filter.QuoteIdent(c.Name)
		kinds[c.Name] = c.Kind
	}
	q := sq.Select(quoted...).
		From(filter.QuoteIdent(schema) + "." + filter.QuoteIdent(name)).
		PlaceholderFormat(sq.Dollar)

	if root != nil && !root.IsEmpty() {
		pred, err := filter.NewBuilder(filter.Postgres).WithKinds(kinds).Build(root)
		if err != nil {
			return "", nil, err
		}
		q = q.Where(pred)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	return q.ToSql()
}

func kindForPostgres(dataType string) table.Kind {
	dt := strings.ToLower(dataType)
	switch {
	case dt == "smallint", dt == "integer", dt == "bigint":
		return table.KindInt
	case dt == "real", dt == "double precision", dt == "numeric", dt == "decimal", dt == "money":
		return table.KindFloat
	case dt == "boolean":
		return table.KindBool
	case dt == "date", strings.HasPrefix(dt, "timestamp"):
		return table.KindTime
	}
	return table.KindString
}

// postgresValue converts a pgx decoded value to a table value.
func postgresValue(v any) any {
	switch x := v.(type) {
	case nil:
		return nil
	case int64, float64, bool, string, time.Time:
		return x
	case int16:
		return int64(x)
	case int32:
		return int64(x)
	case int:
		return int64(x)
	case float32:
		return float64(x)
	case pgtype.Numeric:
		f, err := x.Float64Value()
		if err != nil || !f.Valid {
			return nil
		}
		return f.Float64
	case [16]byte:
		return uuid.UUID(x).String()
	case []byte:
		return string(x)
	case map[string]any, []any:
		b, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprintf("%v", x)
		}
		return string(b)
	}
	return fmt.Sprintf("%v", v)
}
