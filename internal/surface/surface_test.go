package surface

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contactkeval/btc-iv-compare/internal/buckets"
	"github.com/contactkeval/btc-iv-compare/internal/testutil"
)

var (
	f = testutil.Float

	day0 = time.Date(2025, 3, 28, 8, 0, 0, 0, time.UTC)
	day1 = day0.AddDate(0, 0, 7)
	day2 = day0.AddDate(0, 0, 35)

	deltaAxis = Axis{Type: "delta", Values: []Value{
		Number(-0.10), Number(-0.25), Number(0.50), Number(0.25), Number(0.10),
	}}
	tenorAxis = Axis{Type: "tenor-floating", Values: []Value{
		Int(day0.Unix()), Int(day1.Unix()), Int(day2.Unix()),
	}}

	// rows follow the delta axis, columns the tenor axis
	matrix = [][]*float64{
		{f(0.71), f(0.66), f(0.62)},
		{f(0.64), f(0.60), f(0.58)},
		{f(0.57), f(0.55), f(0.54)},
		{f(0.56), f(0.55), f(0.55)},
		{f(0.60), f(0.58), f(0.57)},
	}
)

type crossSection struct {
	Labels []string   `json:"labels"`
	IVs    []*float64 `json:"ivs"`
}

func TestExtract_TenorOnY(t *testing.T) {
	g, err := NewGrid(deltaAxis, tenorAxis, matrix)
	require.NoError(t, err)
	assert.Equal(t, "tenor-floating", g.TenorAxis().Type)

	labels, ivs := g.Extract(day1.Add(30 * time.Hour).Unix())

	testutil.CompareWithGolden(t, "cross_section_tenor_y", crossSection{Labels: labels, IVs: ivs})
}

func TestExtract_TenorOnX(t *testing.T) {
	x := Axis{Type: "expiry", Values: tenorAxis.Values}
	y := Axis{Type: "moneyness", Values: deltaAxis.Values}

	g, err := NewGrid(x, y, matrix)
	require.NoError(t, err)
	assert.Equal(t, "expiry", g.TenorAxis().Type)
	assert.Equal(t, "moneyness", g.DeltaAxis().Type)

	labels, ivs := g.Extract(day2.Unix() + 1)

	assert.Equal(t, []string{"10D Put", "25D Put", "50D Call", "25D Call", "10D Call"}, labels)
	require.Len(t, ivs, 5)
	assert.Equal(t, 0.62, *ivs[0])
	assert.Equal(t, 0.57, *ivs[4])
}

func TestExtract_IntegerValuesMarkTenor(t *testing.T) {
	x := Axis{Type: "x", Values: deltaAxis.Values}
	y := Axis{Type: "y", Values: tenorAxis.Values}

	g, err := NewGrid(x, y, matrix)
	require.NoError(t, err)
	assert.Equal(t, "y", g.TenorAxis().Type)

	_, ivs := g.Extract(day0.Unix())
	assert.Equal(t, 0.71, *ivs[0])
}

func TestNewGrid_TenorTagBeatsIntegerValues(t *testing.T) {
	x := Axis{Type: "tenor", Values: []Value{Int(day0.Unix()), Int(day1.Unix())}}
	y := Axis{Type: "delta", Values: []Value{Int(-25), Int(25)}}
	m := [][]*float64{{f(0.61), f(0.62)}, {f(0.51), f(0.52)}}

	g, err := NewGrid(x, y, m)
	require.NoError(t, err)
	assert.Equal(t, "tenor", g.TenorAxis().Type)
	assert.Equal(t, "delta", g.DeltaAxis().Type)

	labels, ivs := g.Extract(day1.Unix())
	assert.Equal(t, []string{"2500D Put", "2500D Call"}, labels)
	assert.Equal(t, 0.62, *ivs[0])
	assert.Equal(t, 0.52, *ivs[1])
}

func TestNewGrid_UntaggedDefaultsToX(t *testing.T) {
	x := Axis{Type: "a", Values: []Value{Number(0.25)}}
	y := Axis{Type: "b", Values: []Value{Number(0.5)}}

	g, err := NewGrid(x, y, [][]*float64{{f(0.5)}})
	require.NoError(t, err)
	assert.Equal(t, "a", g.TenorAxis().Type)
}

func TestExtract_EmptyMatrix(t *testing.T) {
	g, err := NewGrid(deltaAxis, tenorAxis, nil)
	require.NoError(t, err)
	assert.True(t, g.Empty())

	labels, ivs := g.Extract(day0.Unix())
	assert.Equal(t, []string{}, labels)
	assert.Equal(t, []*float64{}, ivs)
}

func TestExtract_ShortRowYieldsNull(t *testing.T) {
	m := [][]*float64{
		{f(0.71), f(0.66), f(0.62)},
		{f(0.64)},
		{f(0.57), nil, f(0.54)},
	}
	x := Axis{Type: "delta", Values: []Value{Number(-0.25), Number(0.5), Number(0.25)}}

	g, err := NewGrid(x, tenorAxis, m)
	require.NoError(t, err)

	labels, ivs := g.Extract(day1.Unix())
	assert.Equal(t, []string{"25D Put", "50D Call", "25D Call"}, labels)
	assert.Equal(t, 0.66, *ivs[0])
	assert.Nil(t, ivs[1])
	assert.Nil(t, ivs[2])
}

func TestExtract_TextLabelsAndEmptyTenorAxis(t *testing.T) {
	x := Axis{Type: "delta", Values: []Value{Label("ATM"), Label("25D Call"), Number(0)}}
	y := Axis{Type: "tenor"}
	m := [][]*float64{{f(0.5), f(0.9)}, {f(0.52)}, {f(0.6)}}

	g, err := NewGrid(x, y, m)
	require.NoError(t, err)

	labels, ivs := g.Extract(day0.Unix())
	assert.Equal(t, []string{"ATM", "25D Call", "0D"}, labels)
	assert.Equal(t, 0.5, *ivs[0])
	assert.Equal(t, 0.52, *ivs[1])
	assert.Equal(t, 0.6, *ivs[2])
}

func TestExtract_UnlabelledRows(t *testing.T) {
	g, err := NewGrid(Axis{Type: "delta"}, tenorAxis, [][]*float64{{f(0.5)}, {f(0.6)}})
	require.NoError(t, err)

	labels, _ := g.Extract(day0.Unix())
	assert.Equal(t, []string{"idx0", "idx1"}, labels)
}

func TestExtract_MillisecondTenors(t *testing.T) {
	y := Axis{Type: "tenor", Values: []Value{Int(day0.UnixMilli()), Int(day1.UnixMilli())}}
	x := Axis{Type: "delta", Values: []Value{Number(0.25)}}

	g, err := NewGrid(x, y, [][]*float64{{f(0.5), f(0.6)}})
	require.NoError(t, err)

	_, ivs := g.Extract(day1.Unix() - 3600)
	assert.Equal(t, 0.6, *ivs[0])
}

func TestNewGrid_Malformed(t *testing.T) {
	_, err := NewGrid(deltaAxis, tenorAxis, matrix[:3])
	assert.ErrorIs(t, err, ErrMalformedGrid)

	_, err = NewGrid(Axis{Type: "delta", Values: []Value{{}}}, tenorAxis, [][]*float64{{f(0.5)}})
	assert.ErrorIs(t, err, ErrMalformedGrid)
}

func TestValue_UnmarshalJSON(t *testing.T) {
	var a Axis
	require.NoError(t, json.Unmarshal([]byte(`{"type":"tenor","values":[1743148800, 0.25, "1W", -2e-1]}`), &a))

	require.Len(t, a.Values, 4)
	assert.Equal(t, Value{Kind: Numeric, Num: 1743148800, Integer: true}, a.Values[0])
	assert.Equal(t, Value{Kind: Numeric, Num: 0.25}, a.Values[1])
	assert.Equal(t, Label("1W"), a.Values[2])
	assert.Equal(t, Value{Kind: Numeric, Num: -0.2}, a.Values[3])

	err := json.Unmarshal([]byte(`{"type":"delta","values":[true]}`), &a)
	assert.ErrorIs(t, err, ErrMalformedGrid)
}

func TestToBuckets(t *testing.T) {
	g, err := NewGrid(deltaAxis, tenorAxis, matrix)
	require.NoError(t, err)

	got := ToBuckets(g.Slice(day0.Unix()), nil)

	assert.Equal(t, buckets.Buckets{
		buckets.Put10:  0.71,
		buckets.Put25:  0.64,
		buckets.ATM:    0.57,
		buckets.Call25: 0.56,
		buckets.Call10: 0.60,
	}, got)
}

func TestToBuckets_TextLabels(t *testing.T) {
	points := []Point{
		{Delta: Label("25D Call"), Label: "25D Call", IV: f(0.5)},
		{Delta: Label("ATM"), Label: "ATM", IV: f(0.6)},
		{Delta: Number(0.1), Label: "10D Call"},
	}
	assert.Equal(t, buckets.Buckets{buckets.Call25: 0.5}, ToBuckets(points, nil))
}

func TestToBuckets_AveragesEverySample(t *testing.T) {
	points := []Point{
		{Delta: Label("25D Call"), Label: "25D Call", IV: f(0.50)},
		{Delta: Label("25D Call"), Label: "25D Call", IV: f(0.70)},
		{Delta: Label("10D Put"), Label: "10D Put", IV: f(0.90)},
		{Delta: Number(-0.10), Label: "10D Put", IV: f(0.70)},
	}

	got := ToBuckets(points, nil)

	require.Len(t, got, 2)
	assert.InDelta(t, 0.60, got[buckets.Call25], 1e-12)
	assert.InDelta(t, 0.80, got[buckets.Put10], 1e-12)
}

func TestNearestDailyReference(t *testing.T) {
	testCases := []struct {
		name string
		in   time.Time
		want time.Time
	}{
		{"just before the reference rolls back a day",
			time.Date(2025, 3, 28, 7, 59, 0, 0, time.UTC),
			time.Date(2025, 3, 27, 8, 0, 0, 0, time.UTC)},
		{"exactly on the reference",
			time.Date(2025, 3, 28, 8, 0, 0, 0, time.UTC),
			time.Date(2025, 3, 28, 8, 0, 0, 0, time.UTC)},
		{"late in the day",
			time.Date(2025, 3, 28, 23, 59, 59, 0, time.UTC),
			time.Date(2025, 3, 28, 8, 0, 0, 0, time.UTC)},
		{"midnight crosses a month",
			time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
			time.Date(2025, 2, 28, 8, 0, 0, 0, time.UTC)},
		{"non-utc input",
			time.Date(2025, 3, 28, 9, 30, 0, 0, time.FixedZone("ET", -4*3600)),
			time.Date(2025, 3, 28, 8, 0, 0, 0, time.UTC)},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.True(t, tc.want.Equal(NearestDailyReference(tc.in)), "got %v", NearestDailyReference(tc.in))
		})
	}
}
