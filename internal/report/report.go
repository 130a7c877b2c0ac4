package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/contactkeval/btc-iv-compare/internal/compare"
	"github.com/contactkeval/btc-iv-compare/internal/logger"
)

const (
	JSONFile = "comparison.json"
	CSVFile  = "comparison.csv"
)

// WriteJSON writes the full report to outdir/comparison.json.
func WriteJSON(rep *compare.Report, outdir string) error {
	if err := os.MkdirAll(outdir, 0755); err != nil {
		return err
	}
	b, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return err
	}
	path := filepath.Join(outdir, JSONFile)
	if err := os.WriteFile(path, b, 0644); err != nil {
		return err
	}
	logger.Debugf("wrote %s", path)
	return nil
}

// WriteCSV writes the comparison table to outdir/comparison.csv. Missing values are
// left empty.
func WriteCSV(rep *compare.Report, outdir string) error {
	if err := os.MkdirAll(outdir, 0755); err != nil {
		return err
	}
	path := filepath.Join(outdir, CSVFile)
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	headers := []string{"bucket", "etf", "deribit", "surface", "etf_spread", "deribit_spread"}
	if err := w.Write(headers); err != nil {
		return err
	}
	for _, r := range rep.Rows {
		row := []string{string(r.Bucket), num(r.ETF), num(r.Deribit), num(r.Surface), num(r.ETFSpread), num(r.DeribitSpread)}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("write row %s: %w", r.Bucket, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	logger.Debugf("wrote %s", path)
	return nil
}

func num(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', 6, 64)
}
