package buckets

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	testCases := []struct {
		name  string
		delta float64
		want  Label
	}{
		{"atm call", 0.52, ATM},
		{"atm put", -0.48, ATM},
		{"lower band edge", 0.45, ATM},
		{"upper band edge", 0.55, ATM},
		{"lower band edge put", -0.45, ATM},
		{"upper band edge put", -0.55, ATM},
		{"just outside band", 0.44, Call25},
		{"25 delta call", 0.27, Call25},
		{"25 delta put", -0.22, Put25},
		{"10 delta call", 0.08, Call10},
		{"10 delta put", -0.12, Put10},
		{"deep otm call", 0.01, Call10},
		{"deep itm call maps to the nearest wing", 0.9, Call25},
		{"deep itm put maps to the nearest wing", -0.95, Put25},
		{"zero delta is a call wing", 0, Call10},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Classify(tc.delta, DefaultTargets))
		})
	}
}

func TestClassify_BandIsSignIndependent(t *testing.T) {
	for d := 0.45; d <= 0.55; d += 0.001 {
		assert.Equal(t, ATM, Classify(d, DefaultTargets), "delta %v", d)
		assert.Equal(t, ATM, Classify(-d, DefaultTargets), "delta %v", -d)
	}
}

func TestClassify_OnlyATMTarget(t *testing.T) {
	assert.Equal(t, ATM, Classify(0.1, []float64{0.5}))
}

func TestAggregate(t *testing.T) {
	obs := []Observation{
		{Delta: 0.50, IV: 0.60},
		{Delta: -0.50, IV: 0.62},
		{Delta: 0.26, IV: 0.58},
		{Delta: 0.24, IV: 0.56},
		{Delta: -0.11, IV: 0.70},
	}

	got := Aggregate(obs, nil)

	require.Len(t, got, 3)
	assert.InDelta(t, 0.61, got[ATM], 1e-12)
	assert.InDelta(t, 0.57, got[Call25], 1e-12)
	assert.InDelta(t, 0.70, got[Put10], 1e-12)

	_, ok := got.Get(Put25)
	assert.False(t, ok, "empty bucket must be absent")
	_, ok = got.Get(Call10)
	assert.False(t, ok, "empty bucket must be absent")
}

func TestAggregate_Empty(t *testing.T) {
	got := Aggregate(nil, nil)
	require.NotNil(t, got)
	assert.Empty(t, got)

	got = Aggregate([]Observation{}, DefaultTargets)
	assert.Empty(t, got)
}

func TestAggregateSamples(t *testing.T) {
	obs := []Observation{{Delta: 0.24, IV: 0.40}}
	samples := []Sample{
		{Label: Call25, IV: 0.50},
		{Label: Call25, IV: 0.60},
		{Label: Put10, IV: 0.90},
		{Label: Put10, IV: math.Inf(1)},
	}

	got := AggregateSamples(obs, samples, nil)

	require.Len(t, got, 2)
	assert.InDelta(t, 0.50, got[Call25], 1e-12)
	assert.InDelta(t, 0.90, got[Put10], 1e-12)
	assert.Equal(t, Aggregate(obs, nil), AggregateSamples(obs, nil, nil))
}

func TestAggregate_SkipsNonFinite(t *testing.T) {
	nan := math.NaN()
	got := Aggregate([]Observation{{Delta: nan, IV: 0.5}, {Delta: 0.25, IV: nan}}, nil)
	assert.Empty(t, got)
}

func TestDeltaLabel(t *testing.T) {
	testCases := []struct {
		delta float64
		want  string
	}{
		{0.25, "25D Call"},
		{-0.25, "25D Put"},
		{0.10, "10D Call"},
		{-0.10, "10D Put"},
		{0, "0D"},
		{0.5, "50D Call"},
		// half-to-even at the percent boundary
		{0.125, "12D Call"},
		{-0.375, "38D Put"},
	}

	for _, tc := range testCases {
		assert.Equal(t, tc.want, DeltaLabel(tc.delta), "delta %v", tc.delta)
	}
}

func TestParseLabel(t *testing.T) {
	for _, l := range Canonical() {
		got, err := ParseLabel(string(l))
		require.NoError(t, err)
		assert.Equal(t, l, got)
	}

	_, err := ParseLabel("35D Call")
	assert.Error(t, err)
}
