// Package format renders column values and ranges for display.
package format

import (
	"fmt"
	"strconv"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"

	"github.com/rebeliceyang/gridfilter/internal/models"
	"github.com/rebeliceyang/gridfilter/internal/table"
)

const notAvailable = "N/A"

// ValueFormatter renders values of one column type.
type ValueFormatter interface {
	FormatValue(v any) string
	FormatRange(lo, hi any) string
}

// Date formats time values with a Go layout.
type Date struct {
	Layout string
}

func (d Date) FormatValue(v any) string {
	if t, ok := v.(time.Time); ok {
		layout := d.Layout
		if layout == "" {
			layout = "02.01.2006"
		}
		return t.Format(layout)
	}
	if v == nil {
		return notAvailable
	}
	return table.Format(v)
}

func (d Date) FormatRange(lo, hi any) string {
	if lo == nil || hi == nil {
		return notAvailable
	}
	return d.FormatValue(lo) + " - " + d.FormatValue(hi)
}

// Numeric formats numbers. Decimals applies to floats only; a negative value
// keeps the shortest representation. A non-nil Printer adds locale digit
// grouping.
type Numeric struct {
	Decimals int
	Printer  *message.Printer
}

func (n Numeric) FormatValue(v any) string {
	if table.IsNull(v) {
		return notAvailable
	}
	switch x := v.(type) {
	case float64:
		return n.float(x)
	case float32:
		return n.float(float64(x))
	}
	if n.Printer != nil {
		if f, ok := table.ToFloat(v); ok {
			return n.Printer.Sprintf("%v", number.Decimal(f))
		}
	}
	return table.Format(v)
}

func (n Numeric) float(f float64) string {
	if n.Decimals < 0 {
		if n.Printer != nil {
			return n.Printer.Sprintf("%v", number.Decimal(f))
		}
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	if n.Printer != nil {
		return n.Printer.Sprintf("%v", number.Decimal(f, number.Scale(n.Decimals)))
	}
	return strconv.FormatFloat(f, 'f', n.Decimals, 64)
}

func (n Numeric) FormatRange(lo, hi any) string {
	if lo == nil || hi == nil {
		return notAvailable
	}
	return n.FormatValue(lo) + " - " + n.FormatValue(hi)
}

// Text formats values by their string form. Text has no range.
type Text struct{}

func (Text) FormatValue(v any) string {
	return table.Format(v)
}

func (Text) FormatRange(_, _ any) string { return notAvailable }

// Boolean renders truthy values with TrueLabel.
type Boolean struct {
	TrueLabel  string
	FalseLabel string
}

func (b Boolean) FormatValue(v any) string {
	if table.IsNull(v) {
		return notAvailable
	}
	truthy := false
	switch x := v.(type) {
	case bool:
		truthy = x
	case string:
		truthy, _ = strconv.ParseBool(x)
		if x == "evet" || x == "Evet" || x == "yes" || x == "Yes" {
			truthy = true
		}
	default:
		f, ok := table.ToFloat(v)
		truthy = ok && f != 0
	}
	if truthy {
		return b.TrueLabel
	}
	return b.FalseLabel
}

func (Boolean) FormatRange(_, _ any) string { return notAvailable }

// Unknown is the fallback formatter.
type Unknown struct{}

func (Unknown) FormatValue(v any) string {
	if v == nil {
		return notAvailable
	}
	return fmt.Sprint(v)
}

func (Unknown) FormatRange(_, _ any) string { return notAvailable }

// Registry maps column types to formatters.
type Registry struct {
	formatters map[models.ColumnType]ValueFormatter
}

// Options configures the default formatters of a Registry.
type Options struct {
	DateLayout string `mapstructure:"date_layout"`
	Decimals   int    `mapstructure:"decimals"`
	Locale     string `mapstructure:"locale"`
	TrueLabel  string `mapstructure:"true_label"`
	FalseLabel string `mapstructure:"false_label"`
}

// DefaultOptions returns the built-in display settings.
func DefaultOptions() Options {
	return Options{
		DateLayout: "02.01.2006",
		Decimals:   -1,
		TrueLabel:  "Evet",
		FalseLabel: "Hayır",
	}
}

// NewRegistry creates a registry populated with the default formatters.
func NewRegistry(opts Options) *Registry {
	numeric := Numeric{Decimals: opts.Decimals}
	if opts.Locale != "" {
		if tag, err := language.Parse(opts.Locale); err == nil {
			numeric.Printer = message.NewPrinter(tag)
		}
	}
	r := &Registry{formatters: map[models.ColumnType]ValueFormatter{}}
	r.Register(models.ColumnDate, Date{Layout: opts.DateLayout})
	r.Register(models.ColumnNumeric, numeric)
	r.Register(models.ColumnText, Text{})
	r.Register(models.ColumnBoolean, Boolean{TrueLabel: opts.TrueLabel, FalseLabel: opts.FalseLabel})
	r.Register(models.ColumnUnknown, Unknown{})
	return r
}

// Register sets the formatter for a column type.
func (r *Registry) Register(t models.ColumnType, f ValueFormatter) {
	r.formatters[t] = f
}

// Get returns the formatter for t, or Unknown if none is registered.
func (r *Registry) Get(t models.ColumnType) ValueFormatter {
	if f, ok := r.formatters[t]; ok {
		return f
	}
	return Unknown{}
}

// DisplayRange renders the min/max range of a column.
func (r *Registry) DisplayRange(info models.ColumnInfo) string {
	return r.Get(info.Type).FormatRange(info.MinValue, info.MaxValue)
}

// DisplayValue renders v as a value of the column.
func (r *Registry) DisplayValue(info models.ColumnInfo, v any) string {
	return r.Get(info.Type).FormatValue(v)
}
