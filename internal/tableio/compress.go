package tableio

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

type compression int

const (
	compressionNone compression = iota
	compressionGzip
	compressionZstd
)

func compressionOf(path string) compression {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".gz", ".gzip":
		return compressionGzip
	case ".zst", ".zstd":
		return compressionZstd
	}
	return compressionNone
}

func stripCompression(path string) string {
	if compressionOf(path) == compressionNone {
		return path
	}
	return strings.TrimSuffix(path, filepath.Ext(path))
}

type multiCloser struct {
	io.Reader
	closers []func() error
}

func (m *multiCloser) Close() error {
	var first error
	for _, c := range m.closers {
		if err := c(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// openFile opens path for reading and decompresses it when the name ends in
// a compression suffix. Uncompressed files are returned as *os.File so that
// random access formats can use them directly.
func openFile(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	switch compressionOf(path) {
	case compressionGzip:
		zr, err := gzip.NewReader(bufio.NewReader(f))
		if err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("failed to open gzip stream: %w", err)
		}
		return &multiCloser{Reader: zr, closers: []func() error{zr.Close, f.Close}}, nil
	case compressionZstd:
		zr, err := zstd.NewReader(bufio.NewReader(f))
		if err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
		}
		return &multiCloser{Reader: zr, closers: []func() error{
			func() error { zr.Close(); return nil },
			f.Close,
		}}, nil
	}
	return f, nil
}

type multiWriteCloser struct {
	io.Writer
	closers []func() error
}

func (m *multiWriteCloser) Close() error {
	var first error
	for _, c := range m.closers {
		if err := c(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// createFile creates path, compressing the stream when the name ends in a
// compression suffix. Parent directories are created as needed.
func createFile(path string) (io.WriteCloser, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create output directory: %w", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	bw := bufio.NewWriter(f)

	switch compressionOf(path) {
	case compressionGzip:
		zw := gzip.NewWriter(bw)
		return &multiWriteCloser{Writer: zw, closers: []func() error{zw.Close, bw.Flush, f.Close}}, nil
	case compressionZstd:
		zw, err := zstd.NewWriter(bw, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
		}
		return &multiWriteCloser{Writer: zw, closers: []func() error{zw.Close, bw.Flush, f.Close}}, nil
	}
	return &multiWriteCloser{Writer: bw, closers: []func() error{bw.Flush, f.Close}}, nil
}

// readerAt returns r as random access input, buffering it in memory when it
// is a compressed stream.
func readerAt(r io.Reader) (readSeekerAt, error) {
	if f, ok := r.(*os.File); ok {
		return f, nil
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return bytes.NewReader(data), nil
}

type readSeekerAt interface {
	io.Reader
	io.ReaderAt
	io.Seeker
}

// writerOnly hides Close from encoders that close their sink when done.
type writerOnly struct {
	io.Writer
}
