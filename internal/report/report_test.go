package report

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contactkeval/btc-iv-compare/internal/buckets"
	"github.com/contactkeval/btc-iv-compare/internal/compare"
	"github.com/contactkeval/btc-iv-compare/internal/testutil"
)

func sampleReport() *compare.Report {
	rows := compare.Table(
		buckets.Buckets{buckets.Put25: 0.5, buckets.ATM: 0.75},
		buckets.Buckets{},
		buckets.Buckets{buckets.ATM: 0.5},
		[]buckets.Label{buckets.Put25, buckets.ATM},
	)
	return &compare.Report{
		RunID:       "run-1",
		GeneratedAt: time.Date(2025, 3, 3, 15, 0, 0, 0, time.UTC),
		ETF:         "IBIT",
		Expiry:      time.Date(2025, 3, 28, 0, 0, 0, 0, time.UTC),
		Threshold:   0.05,
		Rows:        rows,
		Divergences: compare.Divergences(rows, 0.05, "IBIT"),
	}
}

func TestWriteJSON(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	require.NoError(t, WriteJSON(sampleReport(), dir))

	b, err := os.ReadFile(filepath.Join(dir, JSONFile))
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(b, &decoded))
	assert.Equal(t, "run-1", decoded["run_id"])
	assert.Equal(t, "2025-03-28T00:00:00Z", decoded["expiry"])

	testutil.CompareWithGolden(t, "comparison_rows", decoded["rows"])
}

func TestWriteCSV(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, WriteCSV(sampleReport(), dir))

	b, err := os.ReadFile(filepath.Join(dir, CSVFile))
	require.NoError(t, err)

	assert.Equal(t, "bucket,etf,deribit,surface,etf_spread,deribit_spread\n"+
		"25D Put,0.500000,,,,\n"+
		"50D,0.750000,,0.500000,0.250000,\n", string(b))
}
