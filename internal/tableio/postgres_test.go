package tableio

import (
	"math/big"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rebeliceyang/gridfilter/internal/models"
	"github.com/rebeliceyang/gridfilter/internal/table"
)

func TestPostgresSelect(t *testing.T) {
	cols := []PostgresColumn{
		{Name: "age", DataType: "integer", Kind: table.KindInt},
		{Name: "city", DataType: "text", Kind: table.KindString},
		{Name: "joined", DataType: "date", Kind: table.KindTime},
	}
	root := models.NewGroup().
		Add(models.NewLeaf("age", models.OpGreaterThanOrEqual, 18), models.LogicalNone).
		And(models.NewLeaf("age", models.OpStartsWith, "2")).
		Or(models.NewLeaf("city", models.OpContains, "ank")).
		And(models.NewLeaf("joined", models.OpGreaterThan, time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)))

	query, args, err := postgresSelect("public", "people", cols, root, 100)
	require.NoError(t, err)
	assert.Equal(t, `SELECT "age", "city", "joined" FROM "public"."people" WHERE ((("age" >= $1 AND "age"::text ILIKE $2) OR 1=1) AND 1=1) LIMIT 100`, query)
	assert.Equal(t, []any{18, "2%"}, args)
}

func TestPostgresSelectWithoutFilter(t *testing.T) {
	query, args, err := postgresSelect("s", "t", []PostgresColumn{{Name: "a", Kind: table.KindInt}}, models.NewGroup(), 0)
	require.NoError(t, err)
	assert.Equal(t, `SELECT "a" FROM "s"."t"`, query)
	assert.Empty(t, args)
}

func TestKindForPostgres(t *testing.T) {
	tests := map[string]table.Kind{
		"integer":                     table.KindInt,
		"bigint":                      table.KindInt,
		"numeric":                     table.KindFloat,
		"double precision":            table.KindFloat,
		"boolean":                     table.KindBool,
		"date":                        table.KindTime,
		"timestamp without time zone": table.KindTime,
		"text":                        table.KindString,
		"jsonb":                       table.KindString,
	}
	for dt, want := range tests {
		assert.Equal(t, want, kindForPostgres(dt), dt)
	}
}

func TestPostgresValue(t *testing.T) {
	now := time.Now()
	id := [16]byte{0x12, 0x34, 0x56, 0x78, 0x12, 0x34, 0x56, 0x78, 0x12, 0x34, 0x56, 0x78, 0x12, 0x34, 0x56, 0x78}

	assert.Nil(t, postgresValue(nil))
	assert.Equal(t, int64(7), postgresValue(int32(7)))
	assert.Equal(t, int64(3), postgresValue(int16(3)))
	assert.Equal(t, float64(float32(1.5)), postgresValue(float32(1.5)))
	assert.Equal(t, now, postgresValue(now))
	assert.Equal(t, "12345678-1234-5678-1234-567812345678", postgresValue(id))
	assert.Equal(t, `{"a":1}`, postgresValue(map[string]any{"a": 1}))
	assert.Equal(t, `[1,"x"]`, postgresValue([]any{1, "x"}))
	assert.Equal(t, "raw", postgresValue([]byte("raw")))

	num := pgtype.Numeric{Int: big.NewInt(12345), Exp: -2, Valid: true}
	assert.Equal(t, 123.45, postgresValue(num))
	assert.Nil(t, postgresValue(pgtype.Numeric{}))
}
