// Package analyzer infers semantic column types and summary statistics for
// an in-memory table.
package analyzer

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rebeliceyang/gridfilter/internal/logger"
	"github.com/rebeliceyang/gridfilter/internal/models"
	"github.com/rebeliceyang/gridfilter/internal/table"
)

const (
	DefaultMaxUniqueValues = 100
	DefaultDateSampleSize  = 100
	DefaultDateThreshold   = 0.8
)

// booleanTokens are the lower-cased spellings accepted as boolean text.
var booleanTokens = map[string]bool{
	"true": true, "false": true,
	"evet": true, "hayır": true,
	"yes": true, "no": true,
	"1": true, "0": true,
}

// Analyzer computes ColumnInfo for tables.
type Analyzer struct {
	maxUnique     int
	sampleSize    int
	dateThreshold float64
	log           *logger.Logger
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithMaxUniqueValues caps the unique value sample.
func WithMaxUniqueValues(n int) Option {
	return func(a *Analyzer) {
		if n > 0 {
			a.maxUnique = n
		}
	}
}

// WithDateSampleSize sets how many leading non-null values are tried as dates.
func WithDateSampleSize(n int) Option {
	return func(a *Analyzer) {
		if n > 0 {
			a.sampleSize = n
		}
	}
}

// WithDateThreshold sets the share of the sample that must parse as dates.
func WithDateThreshold(f float64) Option {
	return func(a *Analyzer) {
		if f > 0 && f <= 1 {
			a.dateThreshold = f
		}
	}
}

// WithLogger sets the analyzer logger.
func WithLogger(l *logger.Logger) Option {
	return func(a *Analyzer) {
		if l != nil {
			a.log = l
		}
	}
}

// New creates an Analyzer.
func New(opts ...Option) *Analyzer {
	a := &Analyzer{
		maxUnique:     DefaultMaxUniqueValues,
		sampleSize:    DefaultDateSampleSize,
		dateThreshold: DefaultDateThreshold,
		log:           logger.Nop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Analyze returns one ColumnInfo per column in table order.
func (a *Analyzer) Analyze(t *table.Table) []models.ColumnInfo {
	infos := make([]models.ColumnInfo, 0, t.NumColumns())
	for _, col := range t.Columns() {
		infos = append(infos, a.AnalyzeColumn(col))
	}
	return infos
}

// AnalyzeColumn computes the ColumnInfo of a single column.
func (a *Analyzer) AnalyzeColumn(col *table.Column) models.ColumnInfo {
	typ := a.DetermineType(col)
	nonNull := col.NonNull()

	info := models.ColumnInfo{
		Name:         col.Name,
		Type:         typ,
		UniqueValues: a.uniqueValues(nonNull, typ),
		NullCount:    col.NullCount(),
		TotalCount:   col.Len(),
	}
	if typ == models.ColumnNumeric || typ == models.ColumnDate {
		info.MinValue, info.MaxValue = minMax(nonNull)
	}
	return info
}

// DetermineType classifies a column.
func (a *Analyzer) DetermineType(col *table.Column) models.ColumnType {
	nonNull := col.NonNull()
	if len(nonNull) == 0 {
		return models.ColumnUnknown
	}

	switch col.Kind {
	case table.KindTime:
		return models.ColumnDate
	case table.KindInt, table.KindFloat:
		if isZeroOne(nonNull) {
			return models.ColumnBoolean
		}
		return models.ColumnNumeric
	case table.KindBool:
		return models.ColumnBoolean
	}

	if a.looksLikeDates(nonNull) {
		return models.ColumnDate
	}
	if isBooleanText(nonNull) {
		return models.ColumnBoolean
	}
	return models.ColumnText
}

// isZeroOne reports whether a numeric column holds at most two distinct
// values, all of them 0 or 1.
func isZeroOne(values []any) bool {
	seen := map[float64]bool{}
	for _, v := range values {
		f, ok := table.ToFloat(v)
		if !ok || (f != 0 && f != 1) {
			return false
		}
		seen[f] = true
	}
	return len(seen) <= 2
}

func isBooleanText(values []any) bool {
	for _, v := range values {
		if !booleanTokens[strings.ToLower(table.Format(v))] {
			return false
		}
	}
	return true
}

func (a *Analyzer) looksLikeDates(values []any) bool {
	n := min(a.sampleSize, len(values))
	parsed := 0
	for _, v := range values[:n] {
		if _, ok := table.ParseDate(table.Format(v)); ok {
			parsed++
		}
	}
	return float64(parsed) >= float64(n)*a.dateThreshold
}

type valueKey struct {
	tag byte
	f   float64
	s   string
}

func keyOf(v any) valueKey {
	switch x := v.(type) {
	case bool:
		if x {
			return valueKey{tag: 'b', f: 1}
		}
		return valueKey{tag: 'b'}
	case string:
		return valueKey{tag: 's', s: x}
	case time.Time:
		return valueKey{tag: 't', f: float64(x.UnixNano())}
	}
	if f, ok := table.ToFloat(v); ok {
		return valueKey{tag: 'n', f: f}
	}
	return valueKey{tag: 'o', s: fmt.Sprintf("%T:%v", v, v)}
}

func (a *Analyzer) uniqueValues(values []any, typ models.ColumnType) []any {
	seen := make(map[valueKey]bool)
	var unique []any
	for _, v := range values {
		k := keyOf(v)
		if seen[k] {
			continue
		}
		seen[k] = true
		unique = append(unique, v)
	}

	sortValues(unique, typ)
	if len(unique) > a.maxUnique {
		unique = unique[:a.maxUnique]
	}
	return unique
}

// sortValues orders numbers and dates ascending and everything else by its
// string form. Values that cannot be compared fall back to string order.
func sortValues(values []any, typ models.ColumnType) {
	if typ == models.ColumnNumeric || typ == models.ColumnDate {
		ordered := true
		for i := 1; i < len(values); i++ {
			if _, ok := table.Compare(values[0], values[i]); !ok {
				ordered = false
				break
			}
		}
		if ordered {
			sort.SliceStable(values, func(i, j int) bool {
				c, _ := table.Compare(values[i], values[j])
				return c < 0
			})
			return
		}
	}
	sort.SliceStable(values, func(i, j int) bool {
		return table.Format(values[i]) < table.Format(values[j])
	})
}

// minMax returns nil bounds when any pair of values cannot be compared.
func minMax(values []any) (any, any) {
	if len(values) == 0 {
		return nil, nil
	}
	lo, hi := values[0], values[0]
	for _, v := range values[1:] {
		c, ok := table.Compare(v, lo)
		if !ok {
			return nil, nil
		}
		if c < 0 {
			lo = v
		}
		c, ok = table.Compare(v, hi)
		if !ok {
			return nil, nil
		}
		if c > 0 {
			hi = v
		}
	}
	return lo, hi
}

// ConvertDateColumns returns a copy of t in which every text column
// classified as DATE holds time.Time values. Day-first layouts win for
// ambiguous input. A column with any unparsable value is left unchanged.
// Callers should analyze the result again since types can shift.
func (a *Analyzer) ConvertDateColumns(t *table.Table, infos []models.ColumnInfo) (*table.Table, error) {
	out := t
	for _, info := range infos {
		if info.Type != models.ColumnDate {
			continue
		}
		col, ok := out.Column(info.Name)
		if !ok || col.Kind == table.KindTime {
			continue
		}

		converted, bad := parseDates(col)
		if bad != nil {
			a.log.Warnw("date conversion failed, keeping column as text",
				"column", info.Name, "value", table.Format(bad))
			continue
		}
		next, err := out.ReplaceColumn(table.NewColumn(col.Name, table.KindTime, converted))
		if err != nil {
			return nil, fmt.Errorf("convert column %q: %w", info.Name, err)
		}
		out = next
	}
	return out, nil
}

func parseDates(col *table.Column) ([]any, any) {
	converted := make([]any, col.Len())
	for i := 0; i < col.Len(); i++ {
		v := col.Value(i)
		if table.IsNull(v) {
			continue
		}
		if tv, ok := v.(time.Time); ok {
			converted[i] = tv
			continue
		}
		tv, ok := table.ParseDate(table.Format(v))
		if !ok {
			return nil, v
		}
		converted[i] = tv
	}
	return converted, nil
}
