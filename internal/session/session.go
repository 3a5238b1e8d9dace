package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rebeliceyang/gridfilter/internal/filter"
	"github.com/rebeliceyang/gridfilter/internal/history"
	"github.com/rebeliceyang/gridfilter/internal/logger"
	"github.com/rebeliceyang/gridfilter/internal/models"
	"github.com/rebeliceyang/gridfilter/internal/persistence"
	"github.com/rebeliceyang/gridfilter/internal/table"
	"github.com/rebeliceyang/gridfilter/internal/tableio"
)

// ErrNoDataset is returned when filtering before a table was loaded.
var ErrNoDataset = errors.New("no dataset loaded")

// Session holds the loaded dataset, the active filter and its result.
type Session struct {
	loader     *Loader
	engine     *filter.Engine
	store      *persistence.Store
	history    *history.Store
	maxHistory int
	log        *logger.Logger

	mu      sync.RWMutex
	dataset *Dataset
	active  *models.FilterGroup
	view    *table.Table
}

// Option configures a Session.
type Option func(*Session)

// WithStore remembers the last applied filter in store.
func WithStore(store *persistence.Store) Option {
	return func(s *Session) { s.store = store }
}

// WithHistory records applications in h and keeps at most maxEntries rows.
// A maxEntries of zero keeps everything.
func WithHistory(h *history.Store, maxEntries int) Option {
	return func(s *Session) {
		s.history = h
		s.maxHistory = maxEntries
	}
}

// WithEngine replaces the default filter engine.
func WithEngine(e *filter.Engine) Option {
	return func(s *Session) { s.engine = e }
}

// WithLogger sets the logger.
func WithLogger(l *logger.Logger) Option {
	return func(s *Session) { s.log = l }
}

// New creates a session.
func New(loader *Loader, opts ...Option) *Session {
	s := &Session{loader: loader, log: logger.Nop()}
	for _, opt := range opts {
		opt(s)
	}
	if s.engine == nil {
		s.engine = filter.NewEngine(filter.WithLogger(s.log))
	}
	return s
}

// OpenResult describes what Open loaded and restored.
type OpenResult struct {
	Dataset *Dataset
	// Restored is the remembered filter, nil when there was none.
	Restored *models.FilterGroup
	// Issues lists problems found when checking Restored against the new
	// columns. The filter is applied regardless.
	Issues []persistence.Issue
	View   *table.Table
}

// Open loads path and, when restore is set, reads the remembered filter at
// the same time. A non-empty restored filter is checked and applied.
func (s *Session) Open(ctx context.Context, path string, opts tableio.Options, restore bool, progress ProgressFunc) (*OpenResult, error) {
	var (
		ds    *Dataset
		saved *models.FilterGroup
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		ds, err = s.loader.Load(gctx, path, opts, progress)
		return err
	})
	if restore && s.store != nil {
		g.Go(func() error {
			saved = s.store.Load()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return s.Use(ds, saved)
}

// Use installs an already loaded dataset and applies saved when it is not
// empty. Incompatibilities are reported, not fatal.
func (s *Session) Use(ds *Dataset, saved *models.FilterGroup) (*OpenResult, error) {
	s.mu.Lock()
	s.dataset = ds
	s.active = nil
	s.view = ds.Table
	s.mu.Unlock()

	res := &OpenResult{Dataset: ds, View: ds.Table}
	if saved == nil || saved.IsEmpty() {
		return res, nil
	}

	res.Restored = saved
	res.Issues = persistence.CheckCompatibility(saved, ds.Columns)
	for _, issue := range res.Issues {
		s.log.Warnw("restored filter is not fully compatible", "issue", issue.String())
	}

	view, err := s.apply(saved, false)
	if err != nil {
		return nil, err
	}
	res.View = view
	return res, nil
}

// Apply filters the dataset with root, remembers root as the last filter and
// records the application in history. An empty root shows every row and is
// remembered as empty so nothing is restored next time.
func (s *Session) Apply(root *models.FilterGroup) (*table.Table, error) {
	return s.apply(root, true)
}

// Clear removes the active filter.
func (s *Session) Clear() (*table.Table, error) {
	return s.Apply(models.NewGroup())
}

func (s *Session) apply(root *models.FilterGroup, remember bool) (*table.Table, error) {
	s.mu.RLock()
	ds := s.dataset
	s.mu.RUnlock()
	if ds == nil {
		return nil, ErrNoDataset
	}
	if root == nil {
		root = models.NewGroup()
	}

	start := time.Now()
	view, err := s.engine.Apply(ds.Table, root)
	s.record(ds, root, view, time.Since(start), err)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.active = root
	s.view = view
	s.mu.Unlock()

	if remember && s.store != nil {
		if err := s.store.Save(root); err != nil {
			s.log.Warnw("failed to remember filter", "path", s.store.Path(), "error", err)
		}
	}
	return view, nil
}

func (s *Session) record(ds *Dataset, root *models.FilterGroup, view *table.Table, took time.Duration, applyErr error) {
	if s.history == nil || root.IsEmpty() {
		return
	}

	entry := history.Entry{
		Source:    ds.Source,
		Summary:   filter.Summary(root),
		Duration:  took,
		RowsTotal: ds.Table.NumRows(),
		Success:   applyErr == nil,
	}
	if data, err := persistence.Marshal(root); err == nil {
		entry.FilterJSON = string(data)
	}
	if view != nil {
		entry.RowsMatched = view.NumRows()
	}
	if applyErr != nil {
		entry.ErrorMessage = applyErr.Error()
	}

	if err := s.history.Add(entry); err != nil {
		s.log.Warnw("failed to record filter history", "error", err)
		return
	}
	if s.maxHistory > 0 {
		if _, err := s.history.Prune(s.maxHistory); err != nil {
			s.log.Warnw("failed to prune filter history", "error", err)
		}
	}
}

// Reload reads the current source again and reapplies the active filter.
func (s *Session) Reload(ctx context.Context, progress ProgressFunc) (*table.Table, error) {
	s.mu.RLock()
	ds, active := s.dataset, s.active
	s.mu.RUnlock()
	if ds == nil {
		return nil, ErrNoDataset
	}

	next, err := s.loader.Load(ctx, ds.Source, ds.Options, progress)
	if err != nil {
		return nil, err
	}
	res, err := s.Use(next, active)
	if err != nil {
		return nil, err
	}
	if active != nil {
		s.mu.Lock()
		s.active = active
		s.mu.Unlock()
	}
	return res.View, nil
}

// Dataset returns the loaded dataset or nil.
func (s *Session) Dataset() *Dataset {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dataset
}

// Filter returns the active filter or nil.
func (s *Session) Filter() *models.FilterGroup {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active
}

// View returns the filtered table.
func (s *Session) View() *table.Table {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.view
}
