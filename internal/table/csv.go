package table

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/korean"
	"golang.org/x/text/encoding/unicode"
)

// ErrUnsupported indicates a file format this package cannot read.
var ErrUnsupported = errors.New("unsupported table format")

// CSVOptions controls CSV decoding.
type CSVOptions struct {
	// Encoding of the file bytes. Empty means UTF-8 (a leading BOM is dropped).
	// "cp949" and "euc-kr" select the Korean code page; other WHATWG labels are looked up.
	Encoding string
	// Delimiter for fields. If 0, ',' is used unless the file ends in .tsv.
	Delimiter rune
}

// ReadCSV reads a delimited text file into a Table.
func ReadCSV(path string, opt CSVOptions) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open csv: %w", err)
	}
	defer f.Close()
	if opt.Delimiter == 0 {
		opt.Delimiter = sniffDelimiter(path)
	}
	return ParseCSV(f, filepath.Base(path), opt)
}

// ParseCSV decodes CSV content from r. name is used for error messages and Table.Name.
func ParseCSV(r io.Reader, name string, opt CSVOptions) (*Table, error) {
	enc, err := LookupEncoding(opt.Encoding)
	if err != nil {
		return nil, err
	}
	cr := csv.NewReader(enc.NewDecoder().Reader(r))
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	if opt.Delimiter != 0 {
		cr.Comma = opt.Delimiter
	}

	t := &Table{Name: name}
	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return t, nil
		}
		return nil, fmt.Errorf("read header: %w", err)
	}
	t.Header = append([]string(nil), header...)
	ncol := len(t.Header)
	for {
		rec, err := cr.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("read row %d: %w", len(t.Rows)+1, err)
		}
		t.Rows = append(t.Rows, pad(rec, ncol))
	}
	return t, nil
}

// LookupEncoding resolves an encoding label to a text encoding.
func LookupEncoding(label string) (encoding.Encoding, error) {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "", "utf-8", "utf8":
		return unicode.UTF8BOM, nil
	case "cp949", "ms949", "uhc", "euc-kr", "euckr":
		return korean.EUCKR, nil
	}
	enc, err := htmlindex.Get(label)
	if err != nil {
		return nil, fmt.Errorf("unsupported encoding %q: %w", label, err)
	}
	return enc, nil
}

func sniffDelimiter(path string) rune {
	if strings.HasSuffix(strings.ToLower(path), ".tsv") {
		return '\t'
	}
	return ','
}
