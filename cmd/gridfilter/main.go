package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/rebeliceyang/gridfilter/internal/analyzer"
	"github.com/rebeliceyang/gridfilter/internal/config"
	"github.com/rebeliceyang/gridfilter/internal/export"
	"github.com/rebeliceyang/gridfilter/internal/filter"
	"github.com/rebeliceyang/gridfilter/internal/format"
	"github.com/rebeliceyang/gridfilter/internal/history"
	"github.com/rebeliceyang/gridfilter/internal/logger"
	"github.com/rebeliceyang/gridfilter/internal/models"
	"github.com/rebeliceyang/gridfilter/internal/persistence"
	"github.com/rebeliceyang/gridfilter/internal/presets"
	"github.com/rebeliceyang/gridfilter/internal/session"
	"github.com/rebeliceyang/gridfilter/internal/table"
	"github.com/rebeliceyang/gridfilter/internal/tableio"
)

type options struct {
	input      string
	filterFile string
	preset     string
	savePreset string
	exportTo   string
	output     string
	columns    bool
	noRestore  bool
	watch      bool
	configFile string
	pgQuery    string
	pgTable    string
	limit      uint64
	pushdown   bool
}

func (o *options) fromPostgres() bool {
	return o.pgQuery != "" || o.pgTable != ""
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	v := config.New()
	opts, err := parseFlags(v, args, stderr)
	if err != nil {
		return err
	}

	cfg, err := config.Load(v, opts.configFile)
	if err != nil {
		if opts.configFile != "" {
			return err
		}
		fmt.Fprintf(stderr, "Warning: Could not load config: %v (using defaults)\n", err)
		cfg = config.GetDefaults()
	}

	log, err := logger.New(cfg.Log)
	if err != nil {
		return err
	}
	defer log.Sync()

	app, err := newApp(cfg, log)
	if err != nil {
		return err
	}
	defer app.close()

	if opts.exportTo != "" && opts.input == "" && !opts.fromPostgres() {
		return export.Export(app.presets.GetAll(), opts.exportTo)
	}

	root, err := app.chooseFilter(opts)
	if err != nil {
		return err
	}

	res, err := app.open(ctx, opts, root)
	if err != nil {
		return err
	}
	for _, issue := range res.Issues {
		fmt.Fprintf(stderr, "Warning: restored filter: %s\n", issue)
	}

	if opts.columns {
		printColumns(stdout, res.Dataset.Columns, format.NewRegistry(cfg.Format))
	}

	view := res.View
	if root != nil {
		for _, issue := range persistence.CheckCompatibility(root, res.Dataset.Columns) {
			fmt.Fprintf(stderr, "Warning: filter: %s\n", issue)
		}
		if view, err = app.session.Apply(root); err != nil {
			return err
		}
	}

	if opts.savePreset != "" {
		active := app.session.Filter()
		if active == nil || active.IsEmpty() {
			return fmt.Errorf("no filter to save as preset %q", opts.savePreset)
		}
		if _, err := app.presets.Add(opts.savePreset, "", active, nil); err != nil {
			return err
		}
	}

	if opts.output != "" {
		if err := app.registry.Write(ctx, view, opts.output, app.ioOptions()); err != nil {
			return err
		}
	}
	if opts.exportTo != "" {
		if err := export.Export(app.presets.GetAll(), opts.exportTo); err != nil {
			return err
		}
	}
	fmt.Fprintf(stdout, "%d of %d rows: %s\n", view.NumRows(), res.Dataset.Table.NumRows(), filter.Summary(app.session.Filter()))

	if !opts.watch {
		return nil
	}
	if opts.fromPostgres() {
		return errors.New("--watch needs a file input")
	}
	err = app.session.Watch(ctx, 0, func(view *table.Table, err error) {
		if err != nil {
			fmt.Fprintf(stderr, "Warning: reload failed: %v\n", err)
			return
		}
		fmt.Fprintf(stdout, "%d of %d rows: %s\n", view.NumRows(), app.session.Dataset().Table.NumRows(), filter.Summary(app.session.Filter()))
		if opts.output != "" {
			if err := app.registry.Write(ctx, view, opts.output, app.ioOptions()); err != nil {
				fmt.Fprintf(stderr, "Warning: %v\n", err)
			}
		}
	})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func parseFlags(v *viper.Viper, args []string, stderr io.Writer) (*options, error) {
	var o options
	fs := pflag.NewFlagSet("gridfilter", pflag.ContinueOnError)
	fs.SetOutput(stderr)

	fs.StringVarP(&o.input, "input", "i", "", "table file to load")
	fs.StringVarP(&o.filterFile, "filter", "f", "", "filter document to apply")
	fs.StringVarP(&o.preset, "preset", "p", "", "name of a saved preset to apply")
	fs.StringVar(&o.savePreset, "save-preset", "", "save the applied filter under this name")
	fs.StringVar(&o.exportTo, "export-presets", "", "write saved presets to a .csv or .json file")
	fs.StringVarP(&o.output, "output", "o", "", "write matching rows to this file")
	fs.BoolVar(&o.columns, "columns", false, "print column analysis")
	fs.BoolVar(&o.noRestore, "no-restore", false, "do not restore the last applied filter")
	fs.BoolVar(&o.watch, "watch", false, "reload and refilter when the input changes")
	fs.StringVar(&o.configFile, "config", "", "config file")
	fs.String("delimiter", "", "CSV delimiter (auto-detected)")
	fs.String("encoding", "", "text encoding (auto-detected)")
	fs.String("table", "", "table name inside a database file")
	fs.String("pg-dsn", "", "PostgreSQL connection string")
	fs.StringVar(&o.pgQuery, "pg-query", "", "SQL query to load from PostgreSQL")
	fs.StringVar(&o.pgTable, "pg-table", "", "PostgreSQL table to load, optionally schema qualified")
	fs.Uint64Var(&o.limit, "limit", 0, "maximum rows to read with --pg-table")
	fs.BoolVar(&o.pushdown, "pushdown", false, "evaluate --filter or --preset in the database when reading SQLite or --pg-table")
	fs.String("log-level", "", "log level")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	bindings := map[string]string{
		"io.delimiter": "delimiter",
		"io.encoding":  "encoding",
		"io.table":     "table",
		"postgres.dsn": "pg-dsn",
		"log.level":    "log-level",
	}
	for key, name := range bindings {
		if err := v.BindPFlag(key, fs.Lookup(name)); err != nil {
			return nil, err
		}
	}

	if o.input == "" && fs.NArg() > 0 {
		o.input = fs.Arg(0)
	}
	if o.input == "" && !o.fromPostgres() && o.exportTo == "" {
		return nil, errors.New("--input, --pg-query or --pg-table is required")
	}
	if o.pgQuery != "" && o.pgTable != "" {
		return nil, errors.New("--pg-query and --pg-table are mutually exclusive")
	}
	if o.filterFile != "" && o.preset != "" {
		return nil, errors.New("--filter and --preset are mutually exclusive")
	}
	return &o, nil
}

type app struct {
	cfg      *config.Config
	log      *logger.Logger
	registry *tableio.Registry
	loader   *session.Loader
	session  *session.Session
	store    *persistence.Store
	history  *history.Store
	presets  *presets.Manager
	pg       *tableio.Postgres
}

func newApp(cfg *config.Config, log *logger.Logger) (*app, error) {
	a := &app{cfg: cfg, log: log, registry: tableio.DefaultRegistry(log)}

	an := analyzer.New(
		analyzer.WithMaxUniqueValues(cfg.Analyzer.MaxUniqueValues),
		analyzer.WithDateSampleSize(cfg.Analyzer.DateSampleSize),
		analyzer.WithDateThreshold(cfg.Analyzer.DateThreshold),
		analyzer.WithLogger(log.WithComponent("analyzer")),
	)
	a.loader = session.NewLoader(a.registry, an, log.WithComponent("loader"))

	sessOpts := []session.Option{
		session.WithLogger(log.WithComponent("session")),
		session.WithEngine(filter.NewEngine(filter.WithLogger(log.WithComponent("engine")))),
	}
	if cfg.Persistence.Enabled {
		a.store = persistence.NewStore(cfg.Persistence.Path, persistence.WithLogger(log.WithComponent("persistence")))
		sessOpts = append(sessOpts, session.WithStore(a.store))
	}
	if cfg.History.Enabled {
		if err := os.MkdirAll(filepath.Dir(cfg.History.Path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create history directory: %w", err)
		}
		h, err := history.NewStore(cfg.History.Path)
		if err != nil {
			log.Warnw("history disabled", "path", cfg.History.Path, "error", err)
		} else {
			a.history = h
			sessOpts = append(sessOpts, session.WithHistory(h, cfg.History.MaxEntries))
		}
	}
	a.session = session.New(a.loader, sessOpts...)

	pm, err := presets.Open(cfg.Presets.Path)
	if err != nil {
		return nil, err
	}
	a.presets = pm
	return a, nil
}

func (a *app) close() {
	if a.history != nil {
		_ = a.history.Close()
	}
	if a.pg != nil {
		a.pg.Close()
	}
}

// ioOptions returns the configured reader options. Unset keys are left out
// so handlers auto-detect them.
func (a *app) ioOptions() tableio.Options {
	opts := tableio.Options{}
	for key, val := range map[string]string{
		tableio.OptDelimiter:  a.cfg.IO.Delimiter,
		tableio.OptEncoding:   a.cfg.IO.Encoding,
		tableio.OptTable:      a.cfg.IO.Table,
		tableio.OptNullValues: a.cfg.IO.NullValues,
	} {
		if val != "" {
			opts[key] = val
		}
	}
	return opts
}

func (a *app) open(ctx context.Context, o *options, root *models.FilterGroup) (*session.OpenResult, error) {
	restore := !o.noRestore && root == nil
	var pushed models.Component
	if o.pushdown && root != nil {
		pushed = root
	}

	if o.fromPostgres() {
		pg, err := tableio.OpenPostgres(ctx, a.cfg.Postgres, a.log.WithComponent("postgres"))
		if err != nil {
			return nil, err
		}
		a.pg = pg

		var t *table.Table
		if o.pgQuery != "" {
			t, err = pg.Query(ctx, o.pgQuery)
		} else {
			schema, name := splitTable(o.pgTable)
			t, err = pg.ReadTable(ctx, schema, name, pushed, o.limit)
		}
		if err != nil {
			return nil, err
		}
		return a.use(ctx, a.cfg.Postgres.Redacted(), t, restore)
	}

	if pushed != nil {
		h, err := a.registry.HandlerFor(o.input)
		if err != nil {
			return nil, err
		}
		if db, ok := h.(tableio.SQLite); ok {
			t, err := db.ReadFiltered(ctx, o.input, a.ioOptions(), pushed)
			if err != nil {
				return nil, err
			}
			return a.use(ctx, o.input, t, restore)
		}
		a.log.Warnw("pushdown is not supported for this input, filtering in memory", "input", o.input)
	}
	return a.session.Open(ctx, o.input, a.ioOptions(), restore, a.progress)
}

// use installs a table read outside the registry.
func (a *app) use(ctx context.Context, source string, t *table.Table, restore bool) (*session.OpenResult, error) {
	ds, err := a.loader.Prepare(ctx, source, t, a.progress)
	if err != nil {
		return nil, err
	}
	ds.Options = a.ioOptions()

	var saved *models.FilterGroup
	if restore && a.store != nil {
		saved = a.store.Load()
	}
	return a.session.Use(ds, saved)
}

func (a *app) progress(p session.Progress) {
	a.log.Debugw("load", "stage", p.Stage, "message", p.Message)
}

func splitTable(s string) (schema, name string) {
	if i := strings.LastIndexByte(s, '.'); i >= 0 {
		return s[:i], s[i+1:]
	}
	return "", s
}

// chooseFilter returns the filter named on the command line, or nil to keep
// whatever gets restored.
func (a *app) chooseFilter(o *options) (*models.FilterGroup, error) {
	switch {
	case o.filterFile != "":
		data, err := os.ReadFile(o.filterFile)
		if err != nil {
			return nil, err
		}
		root, err := persistence.Unmarshal(data)
		if err != nil {
			return nil, fmt.Errorf("invalid filter file %s: %w", o.filterFile, err)
		}
		return root, nil
	case o.preset != "":
		p, err := a.presets.GetByName(o.preset)
		if err != nil {
			return nil, err
		}
		root, err := p.Group()
		if err != nil {
			return nil, fmt.Errorf("invalid preset %q: %w", o.preset, err)
		}
		if err := a.presets.RecordUsage(p.ID); err != nil {
			a.log.Warnw("failed to record preset usage", "preset", p.Name, "error", err)
		}
		return root, nil
	}
	return nil, nil
}

func printColumns(w io.Writer, infos []models.ColumnInfo, formats *format.Registry) {
	for _, info := range infos {
		line := fmt.Sprintf("%-24s %-8s nulls=%d/%d unique=%d", info.Name, info.Type, info.NullCount, info.TotalCount, info.UniqueCount())
		if info.HasRange() {
			line += " range=" + formats.DisplayRange(info)
		}
		if info.IsCategorical() {
			line += " categorical"
		}
		fmt.Fprintln(w, line)
	}
}
