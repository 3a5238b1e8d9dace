// Package tableio reads and writes tables in the supported file formats.
package tableio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rebeliceyang/gridfilter/internal/logger"
	"github.com/rebeliceyang/gridfilter/internal/table"
)

// ErrNoHandler is returned when no handler is registered for a file extension.
var ErrNoHandler = errors.New("no handler for file type")

// Recognised option keys.
const (
	OptDelimiter  = "delimiter"
	OptEncoding   = "encoding"
	OptTable      = "table"
	OptNullValues = "null_values"
)

// Options carries format specific settings. Missing keys are auto-detected
// by the handler.
type Options map[string]string

// Get returns the value of key or def when unset.
func (o Options) Get(key, def string) string {
	if v, ok := o[key]; ok && v != "" {
		return v
	}
	return def
}

// Handler reads and writes one file format.
type Handler interface {
	Name() string
	Extensions() []string
	Read(ctx context.Context, path string, opts Options) (*table.Table, error)
	Write(ctx context.Context, t *table.Table, path string, opts Options) error
}

// Codec is a stream based format. Registering a Codec gives it transparent
// gzip and zstd support.
type Codec interface {
	Name() string
	Extensions() []string
	Decode(ctx context.Context, r io.Reader, opts Options) (*table.Table, error)
	Encode(ctx context.Context, w io.Writer, t *table.Table, opts Options) error
}

// Registry maps file extensions to handlers.
type Registry struct {
	handlers map[string]Handler
	log      *logger.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(log *logger.Logger) *Registry {
	if log == nil {
		log = logger.Nop()
	}
	return &Registry{handlers: map[string]Handler{}, log: log}
}

// DefaultRegistry creates a registry with every built-in format.
func DefaultRegistry(log *logger.Logger) *Registry {
	r := NewRegistry(log)
	r.RegisterCodec(NewCSV())
	r.RegisterCodec(JSON{})
	r.RegisterCodec(Arrow{})
	r.RegisterCodec(Parquet{})
	r.Register(SQLite{})
	return r
}

// Register adds h for all its extensions, replacing earlier handlers.
func (r *Registry) Register(h Handler) {
	for _, ext := range h.Extensions() {
		r.handlers[normalizeExt(ext)] = h
	}
}

// RegisterCodec adds a stream codec.
func (r *Registry) RegisterCodec(c Codec) {
	r.Register(codecHandler{c})
}

// HandlerFor returns the handler for path, ignoring a trailing compression
// suffix.
func (r *Registry) HandlerFor(path string) (Handler, error) {
	ext := normalizeExt(filepath.Ext(stripCompression(path)))
	h, ok := r.handlers[ext]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNoHandler, ext)
	}
	return h, nil
}

// Read loads the table at path.
func (r *Registry) Read(ctx context.Context, path string, opts Options) (*table.Table, error) {
	h, err := r.HandlerFor(path)
	if err != nil {
		return nil, err
	}
	r.log.Debugw("reading table", "path", path, "format", h.Name())
	t, err := h.Read(ctx, path, opts)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return t, nil
}

// Write stores t at path.
func (r *Registry) Write(ctx context.Context, t *table.Table, path string, opts Options) error {
	h, err := r.HandlerFor(path)
	if err != nil {
		return err
	}
	r.log.Debugw("writing table", "path", path, "format", h.Name(), "rows", t.NumRows())
	if err := h.Write(ctx, t, path, opts); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// Extensions lists registered extensions in sorted order.
func (r *Registry) Extensions() []string {
	return r.extensions(func(Handler) bool { return true })
}

// ReadableExtensions lists extensions that can be read.
func (r *Registry) ReadableExtensions() []string {
	return r.Extensions()
}

// WritableExtensions lists extensions whose handler supports writing.
func (r *Registry) WritableExtensions() []string {
	return r.extensions(func(h Handler) bool {
		ro, ok := h.(interface{ ReadOnly() bool })
		return !ok || !ro.ReadOnly()
	})
}

func (r *Registry) extensions(keep func(Handler) bool) []string {
	exts := make([]string, 0, len(r.handlers))
	for ext, h := range r.handlers {
		if keep(h) {
			exts = append(exts, ext)
		}
	}
	sort.Strings(exts)
	return exts
}

func normalizeExt(ext string) string {
	ext = strings.ToLower(ext)
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}

// codecHandler adapts a Codec to a file Handler.
type codecHandler struct {
	Codec
}

func (h codecHandler) Read(ctx context.Context, path string, opts Options) (*table.Table, error) {
	rc, err := openFile(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rc.Close() }()
	return h.Decode(ctx, rc, withPath(opts, path))
}

func (h codecHandler) Write(ctx context.Context, t *table.Table, path string, opts Options) (err error) {
	wc, err := createFile(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := wc.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return h.Encode(ctx, wc, t, withPath(opts, path))
}

// optPath passes the logical file name to codecs that key behaviour off the
// extension, such as tab separation for .tsv.
const optPath = "_path"

func withPath(opts Options, path string) Options {
	out := make(Options, len(opts)+1)
	for k, v := range opts {
		out[k] = v
	}
	out[optPath] = stripCompression(path)
	return out
}
