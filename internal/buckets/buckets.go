// Package buckets maps (delta, IV) observations onto the canonical delta buckets shared
// by every volatility source, and averages the IVs inside each bucket.
package buckets

import (
	"fmt"
	"math"
)

// Label is a canonical delta-bucket key such as "25D Put" or "50D".
type Label string

const (
	Put10  Label = "10D Put"
	Put25  Label = "25D Put"
	ATM    Label = "50D"
	Call25 Label = "25D Call"
	Call10 Label = "10D Call"
)

// ATMDelta is the absolute delta treated as at-the-money.
const ATMDelta = 0.50

// ATMBand is the half-width around ATMDelta that maps to the 50D bucket.
const ATMBand = 0.05

// bandEps absorbs float noise at the band edges, e.g. 0.55-0.5 = 0.05000000000000004.
const bandEps = 1e-9

// DefaultTargets are the delta thresholds used by every source.
var DefaultTargets = []float64{0.10, 0.25, 0.50}

var canonical = []Label{Put10, Put25, ATM, Call25, Call10}

// Canonical returns the five bucket labels ordered from the put wing to the call wing.
func Canonical() []Label {
	out := make([]Label, len(canonical))
	copy(out, canonical)
	return out
}

// ParseLabel validates s against the canonical vocabulary.
func ParseLabel(s string) (Label, error) {
	for _, l := range canonical {
		if string(l) == s {
			return l, nil
		}
	}
	return "", fmt.Errorf("unknown delta bucket %q", s)
}

// Observation is one (delta, IV) reading derived from a quote, an exchange ticker or a
// surface cell.
type Observation struct {
	Delta float64 `json:"delta"`
	IV    float64 `json:"iv"`
}

// Buckets maps a label to the mean IV of its samples. A label with no samples is absent,
// which callers must read as "no data", never as zero volatility.
type Buckets map[Label]float64

// Get returns the mean IV for l and whether the bucket holds any data.
func (b Buckets) Get(l Label) (float64, bool) {
	v, ok := b[l]
	return v, ok
}

// DeltaLabel renders a threshold and side in the shared vocabulary:
// "{pct}D Call" for positive deltas, "{pct}D Put" for negative ones and a bare "{pct}D" for zero.
// pct is |round(delta*100)| with ties rounded to even.
func DeltaLabel(delta float64) string {
	pct := int(math.Abs(math.RoundToEven(delta * 100)))
	switch {
	case delta > 0:
		return fmt.Sprintf("%dD Call", pct)
	case delta < 0:
		return fmt.Sprintf("%dD Put", pct)
	default:
		return fmt.Sprintf("%dD", pct)
	}
}

// Classify returns the bucket for a signed delta.
//
// |delta| within ATMBand of 0.50 is 50D regardless of sign. Otherwise the nearest wing
// threshold (every target other than 0.50) wins, labelled Put for negative deltas and Call
// for the rest. With no wing thresholds every delta falls into 50D.
func Classify(delta float64, targets []float64) Label {
	absd := math.Abs(delta)
	if math.Abs(absd-ATMDelta) <= ATMBand+bandEps {
		return ATM
	}

	nearest, best := math.NaN(), math.Inf(1)
	for _, t := range targets {
		if t == ATMDelta {
			continue
		}
		if d := math.Abs(absd - t); d < best {
			nearest, best = t, d
		}
	}
	if math.IsNaN(nearest) {
		return ATM
	}

	side := "Call"
	if delta < 0 {
		side = "Put"
	}
	return Label(fmt.Sprintf("%dD %s", int(math.Round(nearest*100)), side))
}

type accumulator struct {
	sum   float64
	count int
}

// Sample is an IV whose bucket is already known, such as a surface cell labelled "25D Call".
type Sample struct {
	Label Label
	IV    float64
}

// Aggregate buckets every observation and returns the arithmetic mean IV per bucket.
// Nil targets means DefaultTargets. An empty input yields an empty, non-nil mapping.
// Observations with a non-finite delta or IV are skipped.
func Aggregate(observations []Observation, targets []float64) Buckets {
	return AggregateSamples(observations, nil, targets)
}

// AggregateSamples is Aggregate with pre-labelled samples averaged into the same buckets
// as the classified observations.
func AggregateSamples(observations []Observation, samples []Sample, targets []float64) Buckets {
	if targets == nil {
		targets = DefaultTargets
	}

	acc := make(map[Label]*accumulator)
	add := func(l Label, iv float64) {
		a, ok := acc[l]
		if !ok {
			a = &accumulator{}
			acc[l] = a
		}
		a.sum += iv
		a.count++
	}

	for _, o := range observations {
		if !finite(o.Delta) || !finite(o.IV) {
			continue
		}
		add(Classify(o.Delta, targets), o.IV)
	}
	for _, smp := range samples {
		if finite(smp.IV) {
			add(smp.Label, smp.IV)
		}
	}

	out := make(Buckets, len(acc))
	for l, a := range acc {
		if a.count > 0 {
			out[l] = a.sum / float64(a.count)
		}
	}
	return out
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
