// Package persistence stores the last applied filter tree as JSON and checks
// stored filters against the current table schema.
package persistence

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rebeliceyang/gridfilter/internal/logger"
	"github.com/rebeliceyang/gridfilter/internal/models"
)

const (
	// FormatVersion is written to every document. Readers ignore it.
	FormatVersion = 2
	// FormatComposite discriminates composite filter documents.
	FormatComposite = "composite"

	defaultFileName = "last_filters.json"
)

// ErrWrongFormat is returned by Unmarshal for documents that are not
// composite filter documents.
var ErrWrongFormat = errors.New("not a composite filter document")

type document struct {
	Version int             `json:"version"`
	Format  string          `json:"format"`
	Root    json.RawMessage `json:"root"`
}

// DefaultPath returns <user config dir>/gridfilter/last_filters.json, or a
// path under the home directory when no config dir is known.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		home, herr := os.UserHomeDir()
		if herr != nil {
			return defaultFileName
		}
		return filepath.Join(home, ".gridfilter", defaultFileName)
	}
	return filepath.Join(dir, "gridfilter", defaultFileName)
}

// Store persists one filter tree in a JSON file.
type Store struct {
	path string
	log  *logger.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the store logger.
func WithLogger(l *logger.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.log = l
		}
	}
}

// NewStore creates a store at path, or at DefaultPath when path is empty.
func NewStore(path string, opts ...Option) *Store {
	if path == "" {
		path = DefaultPath()
	}
	s := &Store{path: path, log: logger.Nop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Path returns the file the store writes to.
func (s *Store) Path() string {
	return s.path
}

// Save writes g to the store file. A nil group is saved as an empty group so
// that no stale filter is restored later.
func (s *Store) Save(g *models.FilterGroup) error {
	data, err := Marshal(g)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("failed to create filter directory: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0644); err != nil {
		return fmt.Errorf("failed to write filter file: %w", err)
	}
	return nil
}

// Load returns the stored group, or nil when the file is missing, unreadable,
// malformed or not a composite document. Callers treat nil as "no prior
// filters".
func (s *Store) Load() *models.FilterGroup {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			s.log.Warnw("failed to read filter file", "path", s.path, "error", err)
		}
		return nil
	}
	g, err := Unmarshal(data)
	if err != nil {
		s.log.Warnw("ignoring stored filters", "path", s.path, "error", err)
		return nil
	}
	return g
}

// Marshal encodes g as an indented composite document.
func Marshal(g *models.FilterGroup) ([]byte, error) {
	if g == nil {
		g = models.NewGroup()
	}
	root, err := json.Marshal(g.ToMap())
	if err != nil {
		return nil, fmt.Errorf("failed to encode filters: %w", err)
	}
	doc := document{Version: FormatVersion, Format: FormatComposite, Root: root}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return nil, fmt.Errorf("failed to encode filters: %w", err)
	}
	return buf.Bytes(), nil
}

// Unmarshal decodes a composite document.
func Unmarshal(data []byte) (*models.FilterGroup, error) {
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse filter file: %w", err)
	}
	if doc.Format != FormatComposite || len(doc.Root) == 0 || string(doc.Root) == "null" {
		return nil, ErrWrongFormat
	}

	dec := json.NewDecoder(bytes.NewReader(doc.Root))
	dec.UseNumber()
	var root map[string]any
	if err := dec.Decode(&root); err != nil {
		return nil, fmt.Errorf("failed to parse filter root: %w", err)
	}
	g, err := models.GroupFromMap(root)
	if err != nil {
		return nil, fmt.Errorf("failed to decode filter root: %w", err)
	}
	return g, nil
}
