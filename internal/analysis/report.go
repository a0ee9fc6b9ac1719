package analysis

import (
	"fmt"
	"math"
	"strings"
)

// Markdown renders a compact report suitable for prompts or standalone docs.
// Anomalies are listed climbing towards the worst: lowest rank first.
func (r *Result) Markdown() string {
	var b strings.Builder
	b.WriteString("[ANALYSIS SUMMARY]\n")
	if r.Source != "" {
		b.WriteString(fmt.Sprintf("File: %s\n", r.Source))
	}
	if r.RunID != "" {
		b.WriteString(fmt.Sprintf("Run: %s\n", r.RunID))
	}
	b.WriteString(fmt.Sprintf("Claims analyzed: %d\n", r.TotalClaims))
	b.WriteString(fmt.Sprintf("Anomalies flagged: %d (%.2f%%)\n", r.TotalAnomalies, r.OutlierPercent()))
	b.WriteString(fmt.Sprintf("Features: %d", len(r.Features)))
	if len(r.Spans) > 0 {
		parts := make([]string, len(r.Spans))
		for i, sp := range r.Spans {
			parts[i] = fmt.Sprintf("%s..%s (%d)", sp.Start, sp.End, sp.Width())
		}
		b.WriteString(" — " + strings.Join(parts, ", "))
	}
	b.WriteString("\n\n")

	b.WriteString("[TOP ANOMALIES]\n")
	if len(r.Anomalies) == 0 {
		b.WriteString("- none\n")
	}
	for i := len(r.Anomalies) - 1; i >= 0; i-- {
		a := r.Anomalies[i]
		b.WriteString(fmt.Sprintf("- #%d %s @ %s (score %.4f)\n", a.Rank, safeVal(a.ID), safeVal(a.Date), a.Score))
		if len(a.Reasons) == 0 {
			b.WriteString("  • no active features\n")
		}
		for _, rs := range a.Reasons {
			name := rs.Name
			if strings.TrimSpace(name) == "" {
				name = "(unnamed)"
			}
			b.WriteString(fmt.Sprintf("  • %s %s: %.2f%% of claims\n", rs.Code, safeVal(name), rs.Rate*100))
		}
	}

	if len(r.Projection) > 0 {
		b.WriteString("\n[FEATURE SPACE]\n")
		out := 0
		lo1, hi1 := math.Inf(1), math.Inf(-1)
		lo2, hi2 := math.Inf(1), math.Inf(-1)
		for _, p := range r.Projection {
			if p.Label == "-1" {
				out++
			}
			lo1, hi1 = math.Min(lo1, p.PC1), math.Max(hi1, p.PC1)
			lo2, hi2 = math.Min(lo2, p.PC2), math.Max(hi2, p.PC2)
		}
		b.WriteString(fmt.Sprintf("Points: %d (outliers %d, inliers %d)\n", len(r.Projection), out, len(r.Projection)-out))
		b.WriteString(fmt.Sprintf("PC1 range: %.4g .. %.4g\n", lo1, hi1))
		b.WriteString(fmt.Sprintf("PC2 range: %.4g .. %.4g\n", lo2, hi2))
	}

	if len(r.Warnings) > 0 {
		b.WriteString("\n[NOTES]\n")
		for _, w := range r.Warnings {
			b.WriteString("- " + w + "\n")
		}
	}
	return b.String()
}

func safeVal(s string) string { return strings.ReplaceAll(strings.ReplaceAll(s, "\n", " "), "|", "/") }
