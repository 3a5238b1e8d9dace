package table

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sample() *Table {
	return MustNew(
		NewColumn("Age", KindAny, []any{int64(20), int64(35), nil}),
		NewColumn("City", KindAny, []any{"Ankara", "Izmir", "Ankara"}),
	)
}

func TestNew(t *testing.T) {
	tbl := sample()
	assert.Equal(t, 3, tbl.NumRows())
	assert.Equal(t, 2, tbl.NumColumns())
	assert.Equal(t, []string{"Age", "City"}, tbl.ColumnNames())

	age, ok := tbl.Column("Age")
	require.True(t, ok)
	assert.Equal(t, KindInt, age.Kind)
	assert.True(t, age.IsNull(2))
	assert.Equal(t, 1, age.NullCount())
	assert.Equal(t, []any{int64(20), int64(35)}, age.NonNull())

	_, ok = tbl.Column("Missing")
	assert.False(t, ok)
}

func TestNew_Errors(t *testing.T) {
	_, err := New(
		NewColumn("a", KindInt, []any{int64(1)}),
		NewColumn("a", KindInt, []any{int64(2)}),
	)
	assert.ErrorIs(t, err, ErrDuplicateColumn)

	_, err = New(
		NewColumn("a", KindInt, []any{int64(1)}),
		NewColumn("b", KindInt, []any{int64(1), int64(2)}),
	)
	assert.ErrorIs(t, err, ErrLengthMismatch)
}

func TestFilter(t *testing.T) {
	tbl := sample()

	out, err := tbl.Filter([]bool{true, false, true})
	require.NoError(t, err)
	assert.Equal(t, 2, out.NumRows())
	city, _ := out.Column("City")
	assert.Equal(t, []any{"Ankara", "Ankara"}, city.Values)
	assert.Equal(t, KindString, city.Kind)

	_, err = tbl.Filter([]bool{true})
	assert.ErrorIs(t, err, ErrLengthMismatch)

	// the source table is untouched
	assert.Equal(t, 3, tbl.NumRows())
}

func TestReplaceColumn(t *testing.T) {
	tbl := sample()
	out, err := tbl.ReplaceColumn(NewColumn("City", KindString, []any{"a", "b", "c"}))
	require.NoError(t, err)

	city, _ := out.Column("City")
	assert.Equal(t, []any{"a", "b", "c"}, city.Values)
	orig, _ := tbl.Column("City")
	assert.Equal(t, "Ankara", orig.Values[0])

	_, err = tbl.ReplaceColumn(NewColumn("Nope", KindString, []any{"a", "b", "c"}))
	assert.Error(t, err)
}

func TestInferKind(t *testing.T) {
	tests := []struct {
		name   string
		values []any
		want   Kind
	}{
		{"ints", []any{1, int64(2), nil}, KindInt},
		{"mixed numbers", []any{1, 2.5}, KindFloat},
		{"bools", []any{true, false}, KindBool},
		{"strings", []any{"a", nil, "b"}, KindString},
		{"times", []any{time.Now()}, KindTime},
		{"mixed", []any{"a", 1}, KindAny},
		{"all null", []any{nil, math.NaN()}, KindAny},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, InferKind(tt.values))
		})
	}
}

func TestCompareAndEqual(t *testing.T) {
	d := time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)

	c, ok := Compare(int64(10), 10.5)
	require.True(t, ok)
	assert.Equal(t, -1, c)

	c, ok = Compare(d, "05.03.2024")
	require.True(t, ok)
	assert.Equal(t, 0, c)

	_, ok = Compare("abc", 1)
	assert.False(t, ok)

	_, ok = Compare(nil, 1)
	assert.False(t, ok)

	assert.True(t, Equal(int64(1), 1.0))
	assert.True(t, Equal(true, int64(1)))
	assert.True(t, Equal("Ankara", "Ankara"))
	assert.False(t, Equal(nil, nil))
	assert.False(t, Equal("1", 1))
}

func TestFormat(t *testing.T) {
	assert.Equal(t, "35", Format(35.0))
	assert.Equal(t, "2.5", Format(2.5))
	assert.Equal(t, "true", Format(true))
	assert.Equal(t, "2024-03-05", Format(time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, "2024-03-05 10:30:00", Format(time.Date(2024, 3, 5, 10, 30, 0, 0, time.UTC)))
	assert.Equal(t, "", Format(nil))
}

func TestParseDate(t *testing.T) {
	tests := []struct {
		in   string
		want time.Time
	}{
		{"2024-03-05", time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)},
		{"05-03-2024", time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)},
		{"12/25/2024", time.Date(2024, 12, 25, 0, 0, 0, 0, time.UTC)},
		{"5.3.2024", time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)},
		{"5 March 2024", time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)},
		{"5 Mar 2024", time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)},
		{" 2024-03-05 10:30:00 ", time.Date(2024, 3, 5, 10, 30, 0, 0, time.UTC)},
		{"05.03.2024 10:30:00", time.Date(2024, 3, 5, 10, 30, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseDate(tt.in)
			require.True(t, ok)
			assert.True(t, tt.want.Equal(got), "got %v", got)
		})
	}

	for _, bad := range []string{"", "hello", "2024", "35"} {
		_, ok := ParseDate(bad)
		assert.False(t, ok, bad)
	}
}
