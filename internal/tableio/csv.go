package tableio

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/rebeliceyang/gridfilter/internal/table"
)

var candidateDelimiters = []rune{',', ';', '\t', '|'}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// encodings maps accepted encoding names to decoders. utf-8-sig tolerates and
// strips a byte order mark.
var encodings = map[string]encoding.Encoding{
	"utf-8":        unicode.UTF8,
	"utf8":         unicode.UTF8,
	"utf-8-sig":    unicode.UTF8BOM,
	"latin-1":      charmap.ISO8859_1,
	"latin1":       charmap.ISO8859_1,
	"iso-8859-1":   charmap.ISO8859_1,
	"iso-8859-9":   charmap.ISO8859_9,
	"latin5":       charmap.ISO8859_9,
	"cp1254":       charmap.Windows1254,
	"windows-1254": charmap.Windows1254,
}

func lookupEncoding(name string) (encoding.Encoding, error) {
	enc, ok := encodings[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, fmt.Errorf("unsupported encoding %q", name)
	}
	return enc, nil
}

// CSV reads and writes delimited text.
type CSV struct {
	// WriteBOM prefixes written files with a UTF-8 byte order mark unless the
	// encoding option says otherwise.
	WriteBOM bool
}

// NewCSV returns the CSV codec with BOM output enabled.
func NewCSV() CSV {
	return CSV{WriteBOM: true}
}

func (CSV) Name() string { return "csv" }

func (CSV) Extensions() []string { return []string{".csv", ".tsv", ".txt"} }

func (c CSV) Decode(ctx context.Context, r io.Reader, opts Options) (*table.Table, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	text, err := decodeText(raw, opts[OptEncoding])
	if err != nil {
		return nil, err
	}

	delim, err := readDelimiter(opts, text)
	if err != nil {
		return nil, err
	}

	cr := csv.NewReader(strings.NewReader(text))
	cr.Comma = delim
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	header, err := cr.Read()
	if err == io.EOF {
		return table.New()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	header = uniqueNames(header)

	cells := make([][]string, len(header))
	for row := 0; ; row++ {
		if row%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read row %d: %w", row+2, err)
		}
		for i := range header {
			v := ""
			if i < len(rec) {
				v = rec[i]
			}
			cells[i] = append(cells[i], v)
		}
	}

	nulls := nullSet(opts)
	cols := make([]*table.Column, len(header))
	for i, name := range header {
		cols[i] = inferColumn(name, cells[i], nulls)
	}
	return table.New(cols...)
}

func (c CSV) Encode(ctx context.Context, w io.Writer, t *table.Table, opts Options) error {
	out := w
	encName := opts[OptEncoding]
	switch {
	case encName == "" && c.WriteBOM:
		if _, err := w.Write(utf8BOM); err != nil {
			return err
		}
	case encName != "":
		enc, err := lookupEncoding(encName)
		if err != nil {
			return err
		}
		tw := transform.NewWriter(w, enc.NewEncoder())
		defer func() { _ = tw.Close() }()
		out = tw
	}

	delim := ','
	if d, ok := opts[OptDelimiter]; ok && d != "" {
		var err error
		if delim, err = parseDelimiter(d); err != nil {
			return err
		}
	} else if isTSV(opts) {
		delim = '\t'
	}

	cw := csv.NewWriter(out)
	cw.Comma = delim
	if err := cw.Write(t.ColumnNames()); err != nil {
		return err
	}
	cols := t.Columns()
	rec := make([]string, len(cols))
	for i := 0; i < t.NumRows(); i++ {
		if i%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		for j, col := range cols {
			rec[j] = table.Format(col.Value(i))
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// decodeText converts raw bytes to UTF-8. Without an explicit encoding it
// accepts UTF-8 (with or without BOM) and falls back to Latin-1, which
// decodes any byte sequence.
func decodeText(raw []byte, name string) (string, error) {
	if name != "" {
		enc, err := lookupEncoding(name)
		if err != nil {
			return "", err
		}
		out, _, err := transform.Bytes(enc.NewDecoder(), raw)
		if err != nil {
			return "", fmt.Errorf("failed to decode %s: %w", name, err)
		}
		return strings.TrimPrefix(string(out), "\uFEFF"), nil
	}

	raw = bytes.TrimPrefix(raw, utf8BOM)
	if utf8.Valid(raw) {
		return string(raw), nil
	}
	out, _, err := transform.Bytes(charmap.ISO8859_1.NewDecoder(), raw)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

func readDelimiter(opts Options, text string) (rune, error) {
	if d, ok := opts[OptDelimiter]; ok && d != "" {
		return parseDelimiter(d)
	}
	if isTSV(opts) {
		return '\t', nil
	}
	return DetectDelimiter(text), nil
}

func isTSV(opts Options) bool {
	return strings.EqualFold(filepath.Ext(opts[optPath]), ".tsv")
}

func parseDelimiter(d string) (rune, error) {
	switch d {
	case `\t`, "tab", "TAB":
		return '\t', nil
	}
	r, size := utf8.DecodeRuneInString(d)
	if size != len(d) || r == utf8.RuneError {
		return 0, fmt.Errorf("delimiter must be a single character, got %q", d)
	}
	return r, nil
}

// DetectDelimiter picks the most frequent candidate delimiter on the first
// line. Ties resolve in the order comma, semicolon, tab, pipe.
func DetectDelimiter(text string) rune {
	first := text
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		first = text[:i]
	}
	best, bestCount := ',', 0
	for _, d := range candidateDelimiters {
		if n := strings.Count(first, string(d)); n > bestCount {
			best, bestCount = d, n
		}
	}
	return best
}

// uniqueNames suffixes repeated header names so every column can be
// addressed by name.
func uniqueNames(header []string) []string {
	seen := make(map[string]int, len(header))
	out := make([]string, len(header))
	for i, name := range header {
		name = strings.TrimSpace(name)
		if name == "" {
			name = fmt.Sprintf("Unnamed: %d", i)
		}
		if n, ok := seen[name]; ok {
			seen[name] = n + 1
			name = fmt.Sprintf("%s.%d", name, n+1)
		} else {
			seen[name] = 0
		}
		out[i] = name
	}
	return out
}
