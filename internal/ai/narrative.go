package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/taein2026/AItest/internal/analysis"
	"github.com/taein2026/AItest/internal/utils"
)

const narrativeSystem = `You review medical claim audits for a Korean clinic.
You are given the output of an unsupervised outlier detector: the flagged claims and, for each, the rarest diagnosis and drug codes it carries with the share of all claims that carry them.
Write a short report in plain prose for a billing reviewer:
1) one paragraph summarizing how many claims were flagged and what they have in common,
2) up to five bullet points naming the claims most worth a manual check and why,
3) one sentence on what the detector cannot tell (it flags rarity, not fraud).
Do not invent codes, claims or numbers that are not in the data.`

// NarrativeOptions tunes the narrative request.
type NarrativeOptions struct {
	Model       string
	MaxTokens   int
	Temperature float64
	// PromptBudget caps the estimated tokens of the data section.
	PromptBudget int
	Stream       bool
	OnDelta      func(string)
}

// BuildPrompt renders res as chat messages. Only aggregate counts and explained
// anomalies are included; raw claim rows never leave the process.
func BuildPrompt(res *analysis.Result, budget int) []Message {
	var b strings.Builder
	fmt.Fprintf(&b, "Source: %s\n", res.Source)
	fmt.Fprintf(&b, "Claims analyzed: %d\n", res.TotalClaims)
	fmt.Fprintf(&b, "Claims flagged: %d (%.2f%%)\n", res.TotalAnomalies, res.OutlierPercent())
	fmt.Fprintf(&b, "Features: %d\n", len(res.Features))
	if res.Coercions > 0 {
		fmt.Fprintf(&b, "Non-numeric cells treated as 0: %d\n", res.Coercions)
	}
	if len(res.Anomalies) == 0 {
		b.WriteString("\nNo claims were flagged.\n")
	} else {
		fmt.Fprintf(&b, "\nTop %d flagged claims (lower score = more unusual):\n", len(res.Anomalies))
	}
	for _, a := range res.Anomalies {
		fmt.Fprintf(&b, "- rank %d, claim %s, date %s, score %.4f\n", a.Rank, a.ID, a.Date, a.Score)
		if len(a.Reasons) == 0 {
			b.WriteString("  no active codes\n")
		}
		for _, r := range a.Reasons {
			fmt.Fprintf(&b, "  %s %s: %.2f%% of claims\n", r.Code, r.Name, r.Rate*100)
		}
	}
	if s := projectionSummary(res.Projection); s != "" {
		b.WriteString("\n" + s)
	}

	data := b.String()
	if budget > 0 {
		data = utils.TruncateToTokenLimit(data, budget)
	}
	return []Message{
		{Role: "system", Content: narrativeSystem},
		{Role: "user", Content: data},
	}
}

// projectionSummary gives the centroid of each label in the PCA plane.
func projectionSummary(points []analysis.Point) string {
	type acc struct {
		n        int
		pc1, pc2 float64
	}
	groups := map[string]*acc{}
	for _, p := range points {
		g := groups[p.Label]
		if g == nil {
			g = &acc{}
			groups[p.Label] = g
		}
		g.n++
		g.pc1 += p.PC1
		g.pc2 += p.PC2
	}
	in, out := groups["1"], groups["-1"]
	if in == nil || out == nil {
		return ""
	}
	return fmt.Sprintf("PCA centroids: normal (%.3f, %.3f) over %d claims, flagged (%.3f, %.3f) over %d claims\n",
		in.pc1/float64(in.n), in.pc2/float64(in.n), in.n,
		out.pc1/float64(out.n), out.pc2/float64(out.n), out.n)
}

// Narrate asks rt for a narrative of res. When opt.Stream is set and rt streams,
// the deltas go to opt.OnDelta and are also collected into the returned text.
func Narrate(ctx context.Context, rt Runtime, res *analysis.Result, opt NarrativeOptions) (string, error) {
	if res == nil {
		return "", errors.New("no analysis result to narrate")
	}
	req := GenerateRequest{
		Model:       opt.Model,
		Messages:    BuildPrompt(res, opt.PromptBudget),
		MaxTokens:   opt.MaxTokens,
		Temperature: opt.Temperature,
	}
	if sr, ok := rt.(StreamRuntime); ok && opt.Stream {
		var out strings.Builder
		err := sr.GenerateStream(ctx, req, func(s string) {
			out.WriteString(s)
			if opt.OnDelta != nil {
				opt.OnDelta(s)
			}
		})
		if err != nil {
			return "", fmt.Errorf("narrate: %w", err)
		}
		return strings.TrimSpace(out.String()), nil
	}
	resp, err := rt.Generate(ctx, req)
	if err != nil {
		return "", fmt.Errorf("narrate: %w", err)
	}
	return strings.TrimSpace(resp.Content), nil
}
