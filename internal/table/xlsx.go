package table

import (
	"archive/zip"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"strconv"
	"strings"
)

type workbookXML struct {
	Sheets []struct {
		Name    string `xml:"name,attr"`
		SheetID int    `xml:"sheetId,attr"`
		RID     string `xml:"id,attr"`
	} `xml:"sheets>sheet"`
}

type relsXML struct {
	Rels []struct {
		ID     string `xml:"Id,attr"`
		Target string `xml:"Target,attr"`
	} `xml:"Relationship"`
}

// richText is a <si> or <is> element. Only direct <t> and run <r><t> text count;
// phonetic <rPh> runs, common in Korean workbooks, are not part of the value.
type richText struct {
	T    string `xml:"t"`
	Runs []struct {
		T string `xml:"t"`
	} `xml:"r"`
}

func (r richText) String() string {
	if len(r.Runs) == 0 {
		return r.T
	}
	var b strings.Builder
	b.WriteString(r.T)
	for _, run := range r.Runs {
		b.WriteString(run.T)
	}
	return b.String()
}

type rowXML struct {
	Cells []struct {
		Ref    string    `xml:"r,attr"`
		Type   string    `xml:"t,attr"`
		V      string    `xml:"v"`
		Inline *richText `xml:"is"`
	} `xml:"c"`
}

// ReadXLSX reads one worksheet of a .xlsx workbook into a Table. The first row is the header.
// sheetName wins over sheetIndex; sheetIndex is the 1-based sheetId, and values <= 0 mean 1.
func ReadXLSX(filename string, sheetName string, sheetIndex int) (*Table, error) {
	zr, err := zip.OpenReader(filename)
	if err != nil {
		return nil, fmt.Errorf("open xlsx: %w", err)
	}
	defer zr.Close()
	base := filepath.Base(filename)

	target, err := sheetPath(&zr.Reader, base, sheetName, sheetIndex)
	if err != nil {
		return nil, err
	}
	shared, err := sharedStrings(&zr.Reader)
	if err != nil {
		return nil, fmt.Errorf("%s: shared strings: %w", base, err)
	}

	f, err := openEntry(&zr.Reader, target)
	if err != nil {
		return nil, fmt.Errorf("worksheet %s missing from '%s'", target, base)
	}
	defer f.Close()

	t := &Table{Name: base}
	first := true
	dec := xml.NewDecoder(f)
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%s: read worksheet: %w", base, err)
		}
		se, ok := tok.(xml.StartElement)
		if !ok || se.Name.Local != "row" {
			continue
		}
		var row rowXML
		if err := dec.DecodeElement(&row, &se); err != nil {
			return nil, fmt.Errorf("%s: decode row: %w", base, err)
		}
		cells := row.values(shared)
		if first {
			t.Header, first = cells, false
			continue
		}
		t.Rows = append(t.Rows, pad(cells, len(t.Header)))
	}
	return t, nil
}

// values places each cell at the column its reference names; cells without a
// reference follow the previous one.
func (r rowXML) values(shared []string) []string {
	out := []string{}
	for _, c := range r.Cells {
		col := len(out)
		if c.Ref != "" {
			col = columnIndex(c.Ref)
		}
		if col < 0 {
			continue
		}
		var val string
		switch c.Type {
		case "s":
			if i, err := strconv.Atoi(strings.TrimSpace(c.V)); err == nil && i >= 0 && i < len(shared) {
				val = shared[i]
			}
		case "inlineStr":
			if c.Inline != nil {
				val = c.Inline.String()
			}
		default:
			val = c.V
		}
		out = pad(out, col+1)
		out[col] = val
	}
	return out
}

// sheetPath resolves the zip entry of the requested worksheet through workbook.xml and its rels.
func sheetPath(zr *zip.Reader, base, sheetName string, sheetIndex int) (string, error) {
	var wb workbookXML
	if err := decodeEntry(zr, "xl/workbook.xml", &wb); err != nil && !errors.Is(err, errNoEntry) {
		return "", fmt.Errorf("%s: workbook: %w", base, err)
	}
	var rels relsXML
	if err := decodeEntry(zr, "xl/_rels/workbook.xml.rels", &rels); err != nil && !errors.Is(err, errNoEntry) {
		return "", fmt.Errorf("%s: workbook rels: %w", base, err)
	}
	targets := make(map[string]string, len(rels.Rels))
	for _, r := range rels.Rels {
		targets[r.ID] = relTarget(r.Target)
	}

	if sheetName != "" {
		names := make([]string, 0, len(wb.Sheets))
		for _, s := range wb.Sheets {
			if strings.EqualFold(s.Name, sheetName) {
				if p, ok := targets[s.RID]; ok {
					return p, nil
				}
			}
			names = append(names, s.Name)
		}
		return "", fmt.Errorf("sheet '%s' not found in workbook '%s'; available sheets: %s",
			sheetName, base, strings.Join(names, ", "))
	}
	if sheetIndex <= 0 {
		sheetIndex = 1
	}
	for _, s := range wb.Sheets {
		if s.SheetID == sheetIndex {
			if p, ok := targets[s.RID]; ok {
				return p, nil
			}
		}
	}
	return fmt.Sprintf("xl/worksheets/sheet%d.xml", sheetIndex), nil
}

func sharedStrings(zr *zip.Reader) ([]string, error) {
	rc, err := openEntry(zr, "xl/sharedStrings.xml")
	if errors.Is(err, errNoEntry) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return decodeSharedStrings(rc)
}

func decodeSharedStrings(r io.Reader) ([]string, error) {
	var sst struct {
		Items []richText `xml:"si"`
	}
	if err := xml.NewDecoder(r).Decode(&sst); err != nil {
		return nil, err
	}
	out := make([]string, len(sst.Items))
	for i, si := range sst.Items {
		out[i] = si.String()
	}
	return out, nil
}

var errNoEntry = errors.New("zip entry not found")

func openEntry(zr *zip.Reader, name string) (io.ReadCloser, error) {
	for _, f := range zr.File {
		if f.Name == name {
			return f.Open()
		}
	}
	return nil, errNoEntry
}

func decodeEntry(zr *zip.Reader, name string, v any) error {
	rc, err := openEntry(zr, name)
	if err != nil {
		return err
	}
	defer rc.Close()
	return xml.NewDecoder(rc).Decode(v)
}

// columnIndex converts a cell reference like "C12" to a 0-based column index.
func columnIndex(ref string) int {
	idx := 0
	for _, c := range strings.ToUpper(ref) {
		if c < 'A' || c > 'Z' {
			break
		}
		idx = idx*26 + int(c-'A'+1)
	}
	return idx - 1
}

// relTarget maps a relationship target, absolute or relative to xl/, to a zip entry name.
func relTarget(rel string) string {
	rel = strings.TrimPrefix(rel, "/")
	if strings.HasPrefix(rel, "xl/") {
		return rel
	}
	return path.Join("xl", rel)
}
