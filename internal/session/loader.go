// Package session loads tables, keeps the active filter and remembers it
// between runs.
package session

import (
	"context"
	"fmt"

	"github.com/rebeliceyang/gridfilter/internal/analyzer"
	"github.com/rebeliceyang/gridfilter/internal/logger"
	"github.com/rebeliceyang/gridfilter/internal/models"
	"github.com/rebeliceyang/gridfilter/internal/table"
	"github.com/rebeliceyang/gridfilter/internal/tableio"
)

// Stage identifies a step of the load pipeline.
type Stage string

const (
	StageReading     Stage = "reading"
	StageAnalyzing   Stage = "analyzing"
	StageConverting  Stage = "converting"
	StageReanalyzing Stage = "reanalyzing"
	StageDone        Stage = "done"
)

// Progress reports the current pipeline step.
type Progress struct {
	Stage   Stage
	Message string
}

// ProgressFunc receives progress updates. It may be nil.
type ProgressFunc func(Progress)

// Dataset is a loaded table with its column analysis.
type Dataset struct {
	Source  string
	Options tableio.Options
	Table   *table.Table
	Columns []models.ColumnInfo
}

// Column returns the analysis of the named column.
func (d *Dataset) Column(name string) (models.ColumnInfo, bool) {
	for _, c := range d.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return models.ColumnInfo{}, false
}

// Loader runs the read, analyze, convert and re-analyze pipeline.
type Loader struct {
	registry *tableio.Registry
	analyzer *analyzer.Analyzer
	log      *logger.Logger
}

// NewLoader creates a loader. A nil analyzer uses default settings.
func NewLoader(registry *tableio.Registry, a *analyzer.Analyzer, log *logger.Logger) *Loader {
	if log == nil {
		log = logger.Nop()
	}
	if a == nil {
		a = analyzer.New(analyzer.WithLogger(log))
	}
	return &Loader{registry: registry, analyzer: a, log: log}
}

// Load reads path and analyzes it.
func (l *Loader) Load(ctx context.Context, path string, opts tableio.Options, progress ProgressFunc) (*Dataset, error) {
	report(progress, StageReading, fmt.Sprintf("Reading %s", path))
	t, err := l.registry.Read(ctx, path, opts)
	if err != nil {
		return nil, err
	}
	ds, err := l.Prepare(ctx, path, t, progress)
	if err != nil {
		return nil, err
	}
	ds.Options = opts
	return ds, nil
}

// Prepare analyzes a table that was obtained elsewhere, such as a database
// query, and converts its date columns.
func (l *Loader) Prepare(ctx context.Context, source string, t *table.Table, progress ProgressFunc) (*Dataset, error) {
	report(progress, StageAnalyzing, "Analyzing columns")
	infos := l.analyzer.Analyze(t)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	report(progress, StageConverting, "Converting date columns")
	converted, err := l.analyzer.ConvertDateColumns(t, infos)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	report(progress, StageReanalyzing, "Analyzing converted columns")
	infos = l.analyzer.Analyze(converted)

	report(progress, StageDone, fmt.Sprintf("Loaded %d rows, %d columns", converted.NumRows(), converted.NumColumns()))
	l.log.Debugw("dataset loaded", "source", source, "rows", converted.NumRows(), "columns", converted.NumColumns())
	return &Dataset{Source: source, Table: converted, Columns: infos}, nil
}

// Result is the outcome of an asynchronous load.
type Result struct {
	Dataset *Dataset
	Err     error
}

// LoadAsync runs Load on a goroutine. Progress updates are dropped when the
// receiver falls behind. Both channels are closed when loading finishes.
func (l *Loader) LoadAsync(ctx context.Context, path string, opts tableio.Options) (<-chan Progress, <-chan Result) {
	progress := make(chan Progress, 8)
	result := make(chan Result, 1)

	go func() {
		defer close(result)
		defer close(progress)

		ds, err := l.Load(ctx, path, opts, func(p Progress) {
			select {
			case progress <- p:
			default:
			}
		})
		result <- Result{Dataset: ds, Err: err}
	}()
	return progress, result
}

func report(fn ProgressFunc, stage Stage, msg string) {
	if fn != nil {
		fn(Progress{Stage: stage, Message: msg})
	}
}
