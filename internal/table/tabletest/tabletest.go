// Package tabletest writes small CSV and XLSX fixtures for tests.
package tabletest

import (
	"archive/zip"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
)

// WriteCSV writes rows as comma-separated lines and returns the file path.
func WriteCSV(t testing.TB, dir, name string, rows [][]string) string {
	t.Helper()
	var b strings.Builder
	for _, r := range rows {
		b.WriteString(strings.Join(r, ","))
		b.WriteString("\n")
	}
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(b.String()), 0o644); err != nil {
		t.Fatalf("write csv fixture: %v", err)
	}
	return p
}

// WriteXLSX writes a single-sheet workbook named sheet. Numeric-looking cells are stored
// as numbers, everything else through the shared string table.
func WriteXLSX(t testing.TB, dir, name, sheet string, rows [][]string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	f, err := os.Create(p)
	if err != nil {
		t.Fatalf("create xlsx fixture: %v", err)
	}
	defer f.Close()

	var shared []string
	sharedIdx := map[string]int{}
	var sheetXML strings.Builder
	sheetXML.WriteString(`<?xml version="1.0" encoding="UTF-8"?><worksheet xmlns="http://schemas.openxmlformats.org/spreadsheetml/2006/main"><sheetData>`)
	for i, r := range rows {
		fmt.Fprintf(&sheetXML, `<row r="%d">`, i+1)
		for j, v := range r {
			ref := fmt.Sprintf("%s%d", columnName(j), i+1)
			if v == "" {
				continue
			}
			if _, err := strconv.ParseFloat(v, 64); err == nil && !strings.HasPrefix(v, "0") {
				fmt.Fprintf(&sheetXML, `<c r="%s"><v>%s</v></c>`, ref, v)
				continue
			}
			idx, ok := sharedIdx[v]
			if !ok {
				idx = len(shared)
				shared = append(shared, v)
				sharedIdx[v] = idx
			}
			fmt.Fprintf(&sheetXML, `<c r="%s" t="s"><v>%d</v></c>`, ref, idx)
		}
		sheetXML.WriteString(`</row>`)
	}
	sheetXML.WriteString(`</sheetData></worksheet>`)

	var sst strings.Builder
	fmt.Fprintf(&sst, `<?xml version="1.0" encoding="UTF-8"?><sst xmlns="http://schemas.openxmlformats.org/spreadsheetml/2006/main" count="%d" uniqueCount="%d">`, len(shared), len(shared))
	for _, s := range shared {
		sst.WriteString("<si><t>")
		sst.WriteString(escape(s))
		sst.WriteString("</t></si>")
	}
	sst.WriteString(`</sst>`)

	files := []struct{ name, body string }{
		{"[Content_Types].xml", `<?xml version="1.0" encoding="UTF-8"?><Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types"></Types>`},
		{"xl/workbook.xml", fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?><workbook xmlns="http://schemas.openxmlformats.org/spreadsheetml/2006/main" xmlns:r="http://schemas.openxmlformats.org/officeDocument/2006/relationships"><sheets><sheet name="%s" sheetId="1" r:id="rId1"/></sheets></workbook>`, escape(sheet))},
		{"xl/_rels/workbook.xml.rels", `<?xml version="1.0" encoding="UTF-8"?><Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships"><Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/worksheet" Target="worksheets/sheet1.xml"/></Relationships>`},
		{"xl/worksheets/sheet1.xml", sheetXML.String()},
		{"xl/sharedStrings.xml", sst.String()},
	}
	zw := zip.NewWriter(f)
	for _, file := range files {
		w, err := zw.Create(file.name)
		if err != nil {
			t.Fatalf("zip create %s: %v", file.name, err)
		}
		if _, err := w.Write([]byte(file.body)); err != nil {
			t.Fatalf("zip write %s: %v", file.name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("zip close: %v", err)
	}
	return p
}

func columnName(i int) string {
	name := ""
	for i >= 0 {
		name = string(rune('A'+i%26)) + name
		i = i/26 - 1
	}
	return name
}

func escape(s string) string {
	r := strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&quot;")
	return r.Replace(s)
}
