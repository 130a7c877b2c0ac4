// Package surface holds a two-axis volatility grid (tenor x delta) and extracts the
// one-dimensional delta cross-section nearest to a target tenor.
package surface

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/contactkeval/btc-iv-compare/internal/buckets"
)

// ErrMalformedGrid reports a grid that violates its structural contract.
var ErrMalformedGrid = errors.New("malformed surface grid")

// Kind tags an axis value.
type Kind int

const (
	Numeric Kind = iota + 1
	Text
)

// Value is one axis coordinate: a number (remembering whether it was written as an
// integer) or a text label. The kind is fixed when the value is built or decoded.
type Value struct {
	Kind    Kind
	Num     float64
	Integer bool
	Text    string
}

// Number builds a numeric value from a float.
func Number(f float64) Value { return Value{Kind: Numeric, Num: f} }

// Int builds an integer-typed numeric value, e.g. an epoch timestamp.
func Int(i int64) Value { return Value{Kind: Numeric, Num: float64(i), Integer: true} }

// Label builds a text value.
func Label(s string) Value { return Value{Kind: Text, Text: s} }

// UnmarshalJSON accepts JSON numbers and strings; anything else is malformed.
func (v *Value) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 {
		return fmt.Errorf("%w: empty axis value", ErrMalformedGrid)
	}

	switch b[0] {
	case '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return fmt.Errorf("%w: %v", ErrMalformedGrid, err)
		}
		*v = Label(s)
		return nil
	case '-', '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
		s := string(b)
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fmt.Errorf("%w: axis value %s: %v", ErrMalformedGrid, s, err)
		}
		*v = Value{Kind: Numeric, Num: f, Integer: !strings.ContainsAny(s, ".eE")}
		return nil
	}

	return fmt.Errorf("%w: unsupported axis value %s", ErrMalformedGrid, string(b))
}

// MarshalJSON writes the value back as a JSON number or string.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case Numeric:
		if v.Integer {
			return []byte(strconv.FormatInt(int64(v.Num), 10)), nil
		}
		return json.Marshal(v.Num)
	case Text:
		return json.Marshal(v.Text)
	}
	return []byte("null"), nil
}

// DeltaLabel renders the value in the shared bucket vocabulary ("25D Call", "10D Put",
// "0D"); text values are returned unchanged.
func (v Value) DeltaLabel() string {
	if v.Kind == Text {
		return v.Text
	}
	return buckets.DeltaLabel(v.Num)
}

// Axis describes one grid dimension.
type Axis struct {
	Type   string  `json:"type"`
	Values []Value `json:"values"`
}

func (a Axis) taggedTenor() bool {
	return strings.Contains(strings.ToLower(a.Type), "tenor")
}

// integerValued is true when the first value is an integer (epoch-like).
func (a Axis) integerValued() bool {
	return len(a.Values) > 0 && a.Values[0].Kind == Numeric && a.Values[0].Integer
}

// tenorOnY decides which axis holds tenors. Type tags are checked first (Y, then X); the
// integer-value test only applies when neither axis is tagged. Otherwise X is the tenor axis.
func tenorOnY(x, y Axis) bool {
	switch {
	case y.taggedTenor():
		return true
	case x.taggedTenor():
		return false
	default:
		return y.integerValued()
	}
}

// Grid is a validated volatility surface. Rows run along the delta axis and columns
// along the tenor axis: Data[deltaIndex][tenorIndex]. A nil cell is a missing IV.
type Grid struct {
	X, Y     Axis
	Data     [][]*float64
	tenorIsY bool
}

// NewGrid identifies the tenor axis (tags first, Y before X) and validates the shape.
// It fails with ErrMalformedGrid when an axis value is untyped or the delta axis length
// does not match the number of rows.
func NewGrid(x, y Axis, data [][]*float64) (*Grid, error) {
	for _, a := range []Axis{x, y} {
		for i, v := range a.Values {
			if v.Kind != Numeric && v.Kind != Text {
				return nil, fmt.Errorf("%w: axis %q value %d is untyped", ErrMalformedGrid, a.Type, i)
			}
		}
	}

	g := &Grid{X: x, Y: y, Data: data, tenorIsY: tenorOnY(x, y)}

	delta := g.DeltaAxis()
	if len(data) > 0 && len(delta.Values) > 0 && len(delta.Values) != len(data) {
		return nil, fmt.Errorf("%w: delta axis has %d values but matrix has %d rows",
			ErrMalformedGrid, len(delta.Values), len(data))
	}

	return g, nil
}

// TenorAxis returns the axis identified as tenor.
func (g *Grid) TenorAxis() Axis {
	if g.tenorIsY {
		return g.Y
	}
	return g.X
}

// DeltaAxis returns the axis identified as delta/moneyness.
func (g *Grid) DeltaAxis() Axis {
	if g.tenorIsY {
		return g.X
	}
	return g.Y
}

// Empty reports whether the matrix has no rows.
func (g *Grid) Empty() bool { return len(g.Data) == 0 }

// Point is one cell of a cross-section.
type Point struct {
	Delta Value    `json:"delta"`
	Label string   `json:"label"`
	IV    *float64 `json:"iv"`
}

// Slice returns the cross-section at the tenor nearest to target (Unix seconds).
// Rows shorter than the tenor index yield a nil IV. An empty matrix yields no points.
func (g *Grid) Slice(target int64) []Point {
	if len(g.Data) == 0 {
		return []Point{}
	}

	idx := nearestIndex(g.TenorAxis().Values, target)
	deltas := g.DeltaAxis().Values
	points := make([]Point, len(g.Data))
	for i, row := range g.Data {
		p := Point{}
		if i < len(deltas) {
			p.Delta = deltas[i]
			p.Label = p.Delta.DeltaLabel()
		} else {
			p.Label = fmt.Sprintf("idx%d", i)
		}
		if idx < len(row) && row[idx] != nil {
			iv := *row[idx]
			p.IV = &iv
		}
		points[i] = p
	}
	return points
}

// Extract returns parallel labels and IVs for the cross-section nearest to target
// (Unix seconds). An empty matrix returns two empty slices.
func (g *Grid) Extract(target int64) ([]string, []*float64) {
	points := g.Slice(target)
	labels := make([]string, len(points))
	ivs := make([]*float64, len(points))
	for i, p := range points {
		labels[i] = p.Label
		ivs[i] = p.IV
	}
	return labels, ivs
}

// msThreshold separates epoch milliseconds from epoch seconds.
const msThreshold = 1e11

// nearestIndex returns the first index minimising |value - target| over numeric values.
// Values above msThreshold are taken as epoch milliseconds and compared to target*1000.
// With no numeric values the index is 0.
func nearestIndex(values []Value, target int64) int {
	t := float64(target)
	for _, v := range values {
		if v.Kind == Numeric && math.Abs(v.Num) > msThreshold {
			t *= 1000
			break
		}
	}

	best, bestDist := 0, math.Inf(1)
	for i, v := range values {
		if v.Kind != Numeric {
			continue
		}
		if d := math.Abs(v.Num - t); d < bestDist {
			best, bestDist = i, d
		}
	}
	return best
}

// ToBuckets runs cross-section points through the shared bucket policy. Numeric deltas
// are classified like any other observation; text labels that already name a canonical
// bucket are averaged into that bucket. Points without an IV are dropped.
func ToBuckets(points []Point, targets []float64) buckets.Buckets {
	var (
		obs     []buckets.Observation
		samples []buckets.Sample
	)
	for _, p := range points {
		if p.IV == nil {
			continue
		}
		switch p.Delta.Kind {
		case Numeric:
			obs = append(obs, buckets.Observation{Delta: p.Delta.Num, IV: *p.IV})
		default:
			if l, err := buckets.ParseLabel(p.Label); err == nil {
				samples = append(samples, buckets.Sample{Label: l, IV: *p.IV})
			}
		}
	}
	return buckets.AggregateSamples(obs, samples, targets)
}

// DailyReferenceHour is the UTC hour of the floating daily tenor reference.
const DailyReferenceHour = 8

// NearestDailyReference returns the most recent 08:00 UTC at or before t: the same day
// when t is at or after 08:00 UTC, otherwise the previous day.
func NearestDailyReference(t time.Time) time.Time {
	u := t.UTC()
	ref := time.Date(u.Year(), u.Month(), u.Day(), DailyReferenceHour, 0, 0, 0, time.UTC)
	if u.Hour() < DailyReferenceHour {
		ref = ref.AddDate(0, 0, -1)
	}
	return ref
}
