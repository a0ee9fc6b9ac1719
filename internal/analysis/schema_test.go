package analysis

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/taein2026/AItest/internal/table"
)

func TestBuildFeatureMatrixMissingBoundary(t *testing.T) {
	claims := claimsTable(randomBinary(10, 1, mixedProbs))
	for i, h := range claims.Header {
		if h == "J30.4" {
			claims.Header[i] = "J30.9"
		}
	}
	m, err := BuildFeatureMatrix(claims, DefaultSchema())
	if m != nil {
		t.Fatalf("expected no matrix on schema error, got %d columns", len(m.Columns))
	}
	var se *SchemaError
	if !errors.As(err, &se) {
		t.Fatalf("expected *SchemaError, got %v", err)
	}
	if se.Column != "J30.4" || se.Table != "claims.csv" {
		t.Fatalf("unexpected schema error fields: %+v", se)
	}
	if !errors.Is(err, ErrSchema) {
		t.Fatalf("errors.Is(err, ErrSchema) = false")
	}
}

func TestResolveRejectsReversedSpan(t *testing.T) {
	s := Schema{Spans: []Span{{Start: "b", End: "a"}}}
	_, err := s.Resolve("t", []string{"a", "b"})
	if !errors.Is(err, ErrSchema) {
		t.Fatalf("expected schema error for reversed span, got %v", err)
	}
	if _, err := (Schema{}).Resolve("t", []string{"a"}); !errors.Is(err, ErrSchema) {
		t.Fatalf("expected schema error for empty span list, got %v", err)
	}
}

func TestBuildFeatureMatrixSpansAndCoercion(t *testing.T) {
	claims := &table.Table{
		Name:   "claims.csv",
		Header: []string{"환자번호", "F41.2", "X", "J30.4", "skip", "AA254", "648101420", "tail"},
		Rows: [][]string{
			{"1", "1", " 2 ", "abc", "9", "", "0.5", "9"},
			{"2", "NaN", "1e400", "3"},
		},
	}
	m, err := BuildFeatureMatrix(claims, DefaultSchema())
	if err != nil {
		t.Fatalf("BuildFeatureMatrix: %v", err)
	}
	if diff := cmp.Diff([]string{"F41.2", "X", "J30.4", "AA254", "648101420"}, m.Columns); diff != "" {
		t.Fatalf("columns mismatch (-want +got):\n%s", diff)
	}
	want := [][]float64{
		{1, 2, 0, 0, 0.5},
		{0, 0, 3, 0, 0},
	}
	if diff := cmp.Diff(want, m.Values); diff != "" {
		t.Fatalf("values mismatch (-want +got):\n%s", diff)
	}
	// "abc", "NaN" and "1e400" fail; empty cells and short rows do not.
	if m.CoercionFailures != 3 {
		t.Fatalf("CoercionFailures = %d, want 3", m.CoercionFailures)
	}
	if len(m.Spans) != 2 || m.Spans[0].Width() != 3 || m.Spans[1].Width() != 2 {
		t.Fatalf("unexpected spans: %+v", m.Spans)
	}
}

func TestBuildDictionary(t *testing.T) {
	disease := &table.Table{
		Name:   "d.csv",
		Header: []string{"상병코드", "표준상병명"},
		Rows: [][]string{
			{"A01", "first"},
			{" A01 ", "second"},
			{"007", "leading zeros kept"},
			{"B02", ""},
			{"  ", "blank code"},
			{"SHARED", "disease name"},
		},
	}
	drug := &table.Table{
		Name:   "g.csv",
		Header: []string{"연합회코드", "연합회전용명"},
		Rows:   [][]string{{"SHARED", "drug name"}},
	}
	s := DefaultSchema()
	dict, err := BuildDictionary(disease, s.Disease, drug, s.Drug)
	if err != nil {
		t.Fatalf("BuildDictionary: %v", err)
	}
	want := Dictionary{"A01": "second", "007": "leading zeros kept", "B02": "", "SHARED": "drug name"}
	if diff := cmp.Diff(want, dict); diff != "" {
		t.Fatalf("dictionary mismatch (-want +got):\n%s", diff)
	}
	if got := dict.Label("B02"); got != "" {
		t.Fatalf("empty mapped name should stay empty, got %q", got)
	}
	if got := dict.Label("ZZZ"); got != UnknownCode {
		t.Fatalf("Label(ZZZ) = %q, want %q", got, UnknownCode)
	}
	if got := dict.Label(" 007"); got != "leading zeros kept" {
		t.Fatalf("Label trims input, got %q", got)
	}
}

func TestBuildDictionaryMissingColumn(t *testing.T) {
	s := DefaultSchema()
	bad := &table.Table{Name: "drugs.csv", Header: []string{"연합회코드", "name"}}
	_, err := BuildDictionary(diseaseTable(), s.Disease, bad, s.Drug)
	var se *SchemaError
	if !errors.As(err, &se) || se.Table != "drugs.csv" || se.Column != "연합회전용명" {
		t.Fatalf("expected schema error for drug name column, got %v", err)
	}
}
