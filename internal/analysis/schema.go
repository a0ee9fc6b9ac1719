package analysis

import (
	"errors"
	"fmt"
)

// ErrSchema is matched by every *SchemaError via errors.Is.
var ErrSchema = errors.New("schema error")

// SchemaError reports a required column that is missing or unusable.
type SchemaError struct {
	Table  string
	Column string
	Reason string
}

func (e *SchemaError) Error() string {
	reason := e.Reason
	if reason == "" {
		reason = "column not found"
	}
	if e.Table == "" {
		return fmt.Sprintf("schema: %s: %q", reason, e.Column)
	}
	return fmt.Sprintf("schema: %s: %q in %s", reason, e.Column, e.Table)
}

func (e *SchemaError) Is(target error) bool { return target == ErrSchema }

// Span is an inclusive, name-bounded range of header columns.
type Span struct {
	Start string `mapstructure:"start" yaml:"start" json:"start"`
	End   string `mapstructure:"end" yaml:"end" json:"end"`
}

// LookupColumns names the code and display-name columns of a lookup table.
type LookupColumns struct {
	Code string `mapstructure:"code" yaml:"code" json:"code"`
	Name string `mapstructure:"name" yaml:"name" json:"name"`
}

// Schema is the column contract for one dataset family.
type Schema struct {
	// Spans are concatenated in order to form the feature columns.
	Spans    []Span        `mapstructure:"spans" yaml:"spans" json:"spans"`
	IDColumn string        `mapstructure:"id_column" yaml:"id_column" json:"id_column"`
	Date     string        `mapstructure:"date_column" yaml:"date_column" json:"date_column"`
	Disease  LookupColumns `mapstructure:"disease" yaml:"disease" json:"disease"`
	Drug     LookupColumns `mapstructure:"drug" yaml:"drug" json:"drug"`
}

// DefaultSchema returns the column contract of the claims export this tool was built for:
// diagnosis codes F41.2..J30.4 followed by drug codes AA254..648101420.
func DefaultSchema() Schema {
	return Schema{
		Spans: []Span{
			{Start: "F41.2", End: "J30.4"},
			{Start: "AA254", End: "648101420"},
		},
		IDColumn: "환자번호",
		Date:     "진료일시",
		Disease:  LookupColumns{Code: "상병코드", Name: "표준상병명"},
		Drug:     LookupColumns{Code: "연합회코드", Name: "연합회전용명"},
	}
}

// ResolvedSpan is a Span located in a concrete header.
type ResolvedSpan struct {
	Span
	From, To int // inclusive header indices
}

// Width is the number of columns in the span.
func (r ResolvedSpan) Width() int { return r.To - r.From + 1 }

// Resolve locates every span in header. All boundaries are checked before any slice is taken.
func (s Schema) Resolve(table string, header []string) ([]ResolvedSpan, error) {
	if len(s.Spans) == 0 {
		return nil, &SchemaError{Table: table, Reason: "no feature spans configured"}
	}
	out := make([]ResolvedSpan, 0, len(s.Spans))
	for _, sp := range s.Spans {
		from := indexOf(header, sp.Start)
		if from < 0 {
			return nil, &SchemaError{Table: table, Column: sp.Start, Reason: "boundary column not found"}
		}
		to := indexOf(header, sp.End)
		if to < 0 {
			return nil, &SchemaError{Table: table, Column: sp.End, Reason: "boundary column not found"}
		}
		if to < from {
			return nil, &SchemaError{Table: table, Column: sp.End, Reason: fmt.Sprintf("span end precedes start %q", sp.Start)}
		}
		out = append(out, ResolvedSpan{Span: sp, From: from, To: to})
	}
	return out, nil
}

func indexOf(header []string, name string) int {
	for i, h := range header {
		if h == name {
			return i
		}
	}
	return -1
}
