package analysis

import (
	"strings"

	"github.com/taein2026/AItest/internal/table"
)

// UnknownCode labels feature codes that neither lookup table defines.
const UnknownCode = "unknown code"

// Dictionary maps trimmed codes to display names.
type Dictionary map[string]string

// Label returns the display name for code, or UnknownCode when the code is unmapped.
// A mapped code with an empty name yields "".
func (d Dictionary) Label(code string) string {
	if name, ok := d[strings.TrimSpace(code)]; ok {
		return name
	}
	return UnknownCode
}

// BuildDictionary merges the disease and drug tables. Later rows win within a table,
// and drug entries override disease entries.
func BuildDictionary(disease *table.Table, dcols LookupColumns, drug *table.Table, gcols LookupColumns) (Dictionary, error) {
	dm, err := lookupMap(disease, dcols)
	if err != nil {
		return nil, err
	}
	gm, err := lookupMap(drug, gcols)
	if err != nil {
		return nil, err
	}
	for k, v := range gm {
		dm[k] = v
	}
	return dm, nil
}

func lookupMap(t *table.Table, cols LookupColumns) (Dictionary, error) {
	name := "lookup table"
	if t != nil && t.Name != "" {
		name = t.Name
	}
	ci, ok := t.Index(cols.Code)
	if !ok {
		return nil, &SchemaError{Table: name, Column: cols.Code, Reason: "code column not found"}
	}
	ni, ok := t.Index(cols.Name)
	if !ok {
		return nil, &SchemaError{Table: name, Column: cols.Name, Reason: "name column not found"}
	}
	out := make(Dictionary, t.Len())
	for r := range t.Rows {
		code := strings.TrimSpace(t.Cell(r, ci))
		if code == "" {
			continue
		}
		out[code] = t.Cell(r, ni)
	}
	return out, nil
}
