package compare

import (
	"fmt"
	"io"
	"math"
	"text/tabwriter"

	"github.com/contactkeval/btc-iv-compare/internal/buckets"
)

// Row is one bucket of the comparison table. Nil fields are missing data.
type Row struct {
	Bucket        buckets.Label `json:"bucket"`
	ETF           *float64      `json:"etf"`
	Deribit       *float64      `json:"deribit"`
	Surface       *float64      `json:"surface"`
	ETFSpread     *float64      `json:"etf_spread"`
	DeribitSpread *float64      `json:"deribit_spread"`
}

// Divergence is a spread against the surface at or above the alert threshold.
type Divergence struct {
	Bucket buckets.Label `json:"bucket"`
	Leg    string        `json:"leg"`
	Spread float64       `json:"spread"`
}

func lookup(b buckets.Buckets, l buckets.Label) *float64 {
	if v, ok := b.Get(l); ok {
		return &v
	}
	return nil
}

func spread(a, b *float64) *float64 {
	if a == nil || b == nil {
		return nil
	}
	s := *a - *b
	return &s
}

// Table builds one row per label, in order, with each source's IV and the spreads
// ETF - surface and Deribit - surface. A spread exists only when both sides do.
func Table(etf, deribit, surf buckets.Buckets, labels []buckets.Label) []Row {
	rows := make([]Row, 0, len(labels))
	for _, l := range labels {
		r := Row{
			Bucket:  l,
			ETF:     lookup(etf, l),
			Deribit: lookup(deribit, l),
			Surface: lookup(surf, l),
		}
		r.ETFSpread = spread(r.ETF, r.Surface)
		r.DeribitSpread = spread(r.Deribit, r.Surface)
		rows = append(rows, r)
	}
	return rows
}

// LegName labels the spread of source against the surface, e.g. "IBIT - Surface".
func LegName(source string) string {
	return source + " - Surface"
}

// Divergences returns every spread with |spread| >= threshold, row by row with the ETF leg
// before the Deribit leg.
func Divergences(rows []Row, threshold float64, etfName string) []Divergence {
	out := make([]Divergence, 0)
	for _, r := range rows {
		for _, leg := range []struct {
			name string
			v    *float64
		}{{LegName(etfName), r.ETFSpread}, {LegName("Deribit"), r.DeribitSpread}} {
			if leg.v != nil && math.Abs(*leg.v) >= threshold {
				out = append(out, Divergence{Bucket: r.Bucket, Leg: leg.name, Spread: *leg.v})
			}
		}
	}
	return out
}

func cell(v *float64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%.4f", *v)
}

func signedCell(v *float64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%+.4f", *v)
}

// Render writes the comparison, spread and divergence tables as aligned plain text.
func (r *Report) Render(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	fmt.Fprintf(tw, "Run %s  %s expiry %s  (threshold %.2f)\n\n",
		r.RunID, r.ETF, r.Expiry.Format("2006-01-02"), r.Threshold)

	for _, s := range r.Sources() {
		switch {
		case IsMissingData(s):
			fmt.Fprintf(tw, "%s: no data (%v)\n", s.Name, s.Err)
		case s.Err != nil:
			fmt.Fprintf(tw, "%s failed: %v\n", s.Name, s.Err)
		}
	}

	fmt.Fprintln(tw, "Comparison (IV)")
	fmt.Fprintf(tw, "Bucket\t%s\tDeribit\tSurface\t\n", r.ETF)
	for _, row := range r.Rows {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t\n", row.Bucket, cell(row.ETF), cell(row.Deribit), cell(row.Surface))
	}

	fmt.Fprintln(tw)
	fmt.Fprintln(tw, "Spreads vs Surface (IV pts)")
	fmt.Fprintf(tw, "Bucket\t%s\t%s\t\n", LegName(r.ETF), LegName("Deribit"))
	for _, row := range r.Rows {
		fmt.Fprintf(tw, "%s\t%s\t%s\t\n", row.Bucket, signedCell(row.ETFSpread), signedCell(row.DeribitSpread))
	}

	fmt.Fprintln(tw)
	if len(r.Divergences) == 0 {
		fmt.Fprintln(tw, "No spreads above threshold.")
	} else {
		fmt.Fprintf(tw, "Found %d divergences >= %.2f IV pts\n", len(r.Divergences), r.Threshold)
		fmt.Fprintln(tw, "Bucket\tLeg\tSpread\t")
		for _, d := range r.Divergences {
			fmt.Fprintf(tw, "%s\t%s\t%+.4f\t\n", d.Bucket, d.Leg, d.Spread)
		}
	}

	return tw.Flush()
}
