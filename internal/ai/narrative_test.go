package ai

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/taein2026/AItest/internal/analysis"
)

func narrativeResult() *analysis.Result {
	return &analysis.Result{
		Source:         "claims.csv",
		TotalClaims:    500,
		TotalAnomalies: 5,
		Features:       []string{"F41.2", "J30.4", "CC777"},
		Anomalies: []analysis.Anomaly{
			{Rank: 2, Row: 17, ID: "1017", Date: "2024-03-18", Score: -0.1234, Reasons: []analysis.Reason{
				{Code: "CC777", Rate: 0.006, Name: "Rare compound injection"},
			}},
			{Rank: 1, Row: 40, ID: "1040", Date: "N/A", Score: -0.01},
		},
		Projection: []analysis.Point{
			{Row: 0, PC1: 1, PC2: 1, Label: "1"},
			{Row: 1, PC1: 3, PC2: -1, Label: "1"},
			{Row: 17, PC1: -4, PC2: 2, Label: "-1"},
		},
	}
}

func TestBuildPrompt(t *testing.T) {
	msgs := BuildPrompt(narrativeResult(), 0)
	if len(msgs) != 2 || msgs[0].Role != "system" || msgs[1].Role != "user" {
		t.Fatalf("unexpected messages: %+v", msgs)
	}
	data := msgs[1].Content
	for _, want := range []string{
		"Claims analyzed: 500",
		"Claims flagged: 5 (1.00%)",
		"rank 2, claim 1017, date 2024-03-18, score -0.1234",
		"CC777 Rare compound injection: 0.60% of claims",
		"claim 1040, date N/A",
		"no active codes",
		"normal (2.000, 0.000) over 2 claims, flagged (-4.000, 2.000) over 1 claims",
	} {
		if !strings.Contains(data, want) {
			t.Errorf("prompt missing %q:\n%s", want, data)
		}
	}
}

func TestBuildPromptBudget(t *testing.T) {
	full := BuildPrompt(narrativeResult(), 0)[1].Content
	cut := BuildPrompt(narrativeResult(), 10)[1].Content
	if len(cut) >= len(full) || !strings.HasPrefix(full, cut) {
		t.Fatalf("budget not applied: %d vs %d bytes", len(cut), len(full))
	}
}

type fakeRuntime struct {
	got    GenerateRequest
	reply  string
	err    error
	chunks []string
}

func (f *fakeRuntime) Generate(_ context.Context, req GenerateRequest) (*GenerateResponse, error) {
	f.got = req
	if f.err != nil {
		return nil, f.err
	}
	return &GenerateResponse{Content: f.reply}, nil
}

func (f *fakeRuntime) GenerateStream(_ context.Context, req GenerateRequest, onDelta func(string)) error {
	f.got = req
	for _, c := range f.chunks {
		onDelta(c)
	}
	return f.err
}

func TestNarrate(t *testing.T) {
	rt := &fakeRuntime{reply: "  Five claims flagged.\n"}
	text, err := Narrate(context.Background(), rt, narrativeResult(), NarrativeOptions{Model: "m", MaxTokens: 100, Temperature: 0.3})
	if err != nil {
		t.Fatalf("Narrate: %v", err)
	}
	if text != "Five claims flagged." {
		t.Fatalf("text = %q", text)
	}
	if rt.got.Model != "m" || rt.got.MaxTokens != 100 || len(rt.got.Messages) != 2 {
		t.Fatalf("request = %+v", rt.got)
	}
}

func TestNarrateStream(t *testing.T) {
	rt := &fakeRuntime{chunks: []string{"Five ", "claims."}}
	var seen []string
	text, err := Narrate(context.Background(), rt, narrativeResult(), NarrativeOptions{Model: "m", Stream: true, OnDelta: func(s string) { seen = append(seen, s) }})
	if err != nil {
		t.Fatalf("Narrate: %v", err)
	}
	if text != "Five claims." || len(seen) != 2 {
		t.Fatalf("text=%q deltas=%v", text, seen)
	}
}

func TestNarrateErrors(t *testing.T) {
	boom := errors.New("boom")
	if _, err := Narrate(context.Background(), &fakeRuntime{err: boom}, narrativeResult(), NarrativeOptions{Model: "m"}); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped runtime error, got %v", err)
	}
	if _, err := Narrate(context.Background(), &fakeRuntime{}, nil, NarrativeOptions{}); err == nil {
		t.Fatalf("expected error for nil result")
	}
}
