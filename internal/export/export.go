// Package export writes analysis results to JSON and Parquet files.
package export

import (
	"fmt"
	"io"
	"path/filepath"

	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/compress/zstd"

	"github.com/taein2026/AItest/internal/analysis"
	"github.com/taein2026/AItest/internal/utils"
)

const (
	AnomaliesFile  = "anomalies.parquet"
	ProjectionFile = "projection.parquet"
)

// AnomalyRow is one reason of one explained claim. Claims without active features
// produce a single row with ReasonOrder 0 and empty reason fields.
type AnomalyRow struct {
	RunID       string  `parquet:"run_id,dict"`
	Rank        int32   `parquet:"rank"`
	Row         int64   `parquet:"row"`
	ClaimID     string  `parquet:"claim_id"`
	Date        string  `parquet:"treatment_date"`
	Score       float64 `parquet:"score"`
	ReasonOrder int32   `parquet:"reason_order"`
	Code        string  `parquet:"code,dict"`
	Rate        float64 `parquet:"rate"`
	Name        string  `parquet:"name,dict"`
}

// PointRow is one projected claim.
type PointRow struct {
	RunID string  `parquet:"run_id,dict"`
	Row   int64   `parquet:"row"`
	PC1   float64 `parquet:"pc1"`
	PC2   float64 `parquet:"pc2"`
	Label string  `parquet:"label,dict"`
	Score float64 `parquet:"score"`
}

// AnomalyRows flattens the explained anomalies, most anomalous first.
func AnomalyRows(res *analysis.Result) []AnomalyRow {
	var out []AnomalyRow
	for _, a := range res.Anomalies {
		base := AnomalyRow{
			RunID:   res.RunID,
			Rank:    int32(a.Rank),
			Row:     int64(a.Row),
			ClaimID: a.ID,
			Date:    a.Date,
			Score:   a.Score,
		}
		if len(a.Reasons) == 0 {
			out = append(out, base)
			continue
		}
		for i, r := range a.Reasons {
			row := base
			row.ReasonOrder = int32(i + 1)
			row.Code, row.Rate, row.Name = r.Code, r.Rate, r.Name
			out = append(out, row)
		}
	}
	return out
}

// PointRows converts the projection, attaching each row's decision score when known.
func PointRows(res *analysis.Result) []PointRow {
	out := make([]PointRow, len(res.Projection))
	for i, p := range res.Projection {
		out[i] = PointRow{RunID: res.RunID, Row: int64(p.Row), PC1: p.PC1, PC2: p.PC2, Label: p.Label}
		if p.Row < len(res.Scores) {
			out[i].Score = res.Scores[p.Row]
		}
	}
	return out
}

// Files lists what WriteParquet produced.
type Files struct {
	Anomalies  string
	Projection string
	Rows       int
	Points     int
}

// WriteParquet writes anomalies.parquet and projection.parquet into dir.
func WriteParquet(dir string, res *analysis.Result) (*Files, error) {
	f := &Files{
		Anomalies:  filepath.Join(dir, AnomaliesFile),
		Projection: filepath.Join(dir, ProjectionFile),
	}
	rows := AnomalyRows(res)
	if err := writeParquet(f.Anomalies, rows); err != nil {
		return nil, err
	}
	points := PointRows(res)
	if err := writeParquet(f.Projection, points); err != nil {
		return nil, err
	}
	f.Rows, f.Points = len(rows), len(points)
	return f, nil
}

func writeParquet[T any](path string, rows []T) error {
	err := utils.SafeWrite(path, func(w io.Writer) error {
		pw := parquet.NewGenericWriter[T](w,
			parquet.Compression(&zstd.Codec{Level: zstd.SpeedDefault}),
			parquet.CreatedBy("claimscan", "1.0", ""),
		)
		if len(rows) > 0 {
			if _, err := pw.Write(rows); err != nil {
				pw.Close()
				return fmt.Errorf("write parquet rows: %w", err)
			}
		}
		if err := pw.Close(); err != nil {
			return fmt.Errorf("close parquet writer: %w", err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return nil
}

// WriteJSON writes the whole result as indented JSON.
func WriteJSON(path string, res *analysis.Result) error {
	b, err := utils.PrettyJSON(res)
	if err != nil {
		return err
	}
	return utils.SafeWriteFile(path, b)
}
