// Package chain turns listed option quotes into (delta, IV) observations using the
// Black-Scholes pricer and the implied-vol solver.
package chain

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/contactkeval/btc-iv-compare/internal/buckets"
	"github.com/contactkeval/btc-iv-compare/internal/logger"
	"github.com/contactkeval/btc-iv-compare/internal/pricing"
)

// ErrInvalidQuote marks a quote with a non-positive price, strike, spot or time to expiry.
var ErrInvalidQuote = errors.New("invalid option quote")

// ExpiryLayout is the date layout of chain expiry labels.
const ExpiryLayout = "2006-01-02"

// minYears floors the time to expiry so same-day contracts still price.
const minYears = 0.0001

const yearSeconds = 365 * 24 * 60 * 60

// Record is one raw row of an options chain. Zero Bid, Ask, Last or IV means the field
// was not quoted.
type Record struct {
	Ticker string  `json:"ticker,omitempty"`
	Strike float64 `json:"strike"`
	Type   string  `json:"type"` // "call"/"put" (also accepts "C"/"P")
	Bid    float64 `json:"bid"`
	Ask    float64 `json:"ask"`
	Last   float64 `json:"last"`
	IV     float64 `json:"iv,omitempty"`
	Expiry string  `json:"expiry"`
}

// IsCall reports whether the record describes a call.
func (r Record) IsCall() bool {
	switch strings.ToLower(r.Type) {
	case "call", "c":
		return true
	}
	return false
}

// Mid returns (bid+ask)/2 with a missing side counted as zero.
func (r Record) Mid() float64 {
	return (r.Bid + r.Ask) / 2
}

// Quote is a validated, priced option ready for the solver.
type Quote struct {
	IsCall bool
	Spot   float64
	Strike float64
	Expiry time.Time
	T      float64
	Rate   float64
	Price  float64
	IV     float64 // pre-supplied IV, zero when absent
}

// TimeToExpiry returns (expiry - now) in years, floored at minYears.
func TimeToExpiry(expiry, now time.Time) float64 {
	t := expiry.Sub(now).Seconds() / yearSeconds
	if t < minYears {
		return minYears
	}
	return t
}

// NewQuote validates a record against the spot and expiry and picks its price: the mid
// when positive, otherwise the last trade.
func NewQuote(rec Record, spot float64, expiry, now time.Time, r float64) (Quote, error) {
	if spot <= 0 {
		return Quote{}, fmt.Errorf("%w: spot %.4f", ErrInvalidQuote, spot)
	}
	if rec.Strike <= 0 {
		return Quote{}, fmt.Errorf("%w: strike %.4f", ErrInvalidQuote, rec.Strike)
	}

	price := rec.Mid()
	if price <= 0 {
		price = rec.Last
	}
	if price <= 0 {
		return Quote{}, fmt.Errorf("%w: %s %.2f has no price", ErrInvalidQuote, rec.Type, rec.Strike)
	}

	return Quote{
		IsCall: rec.IsCall(),
		Spot:   spot,
		Strike: rec.Strike,
		Expiry: expiry,
		T:      TimeToExpiry(expiry, now),
		Rate:   r,
		Price:  price,
		IV:     rec.IV,
	}, nil
}

// Observe returns the (delta, IV) pair for q. A positive pre-supplied IV is used as is;
// otherwise the IV is solved from the quote price. Solver failures wrap pricing.ErrNoSolution.
func Observe(q Quote) (buckets.Observation, error) {
	if q.T <= 0 {
		return buckets.Observation{}, fmt.Errorf("%w: time to expiry %.6f", ErrInvalidQuote, q.T)
	}

	iv := q.IV
	if iv <= 0 {
		var err error
		iv, err = pricing.ImpliedVol(q.IsCall, q.Spot, q.Strike, q.T, q.Rate, q.Price)
		if err != nil {
			return buckets.Observation{}, fmt.Errorf("strike %.2f: %w", q.Strike, err)
		}
	}

	return buckets.Observation{
		Delta: pricing.BlackScholesDelta(q.IsCall, q.Spot, q.Strike, q.T, q.Rate, iv),
		IV:    iv,
	}, nil
}

// ObserveAll converts every record of one expiry into an observation. Records that fail
// validation or have no implied vol are skipped.
func ObserveAll(records []Record, spot float64, expiry, now time.Time, r float64) []buckets.Observation {
	out := make([]buckets.Observation, 0, len(records))
	skipped := 0
	for _, rec := range records {
		q, err := NewQuote(rec, spot, expiry, now, r)
		if err != nil {
			logger.Tracef("skip quote: %v", err)
			skipped++
			continue
		}
		o, err := Observe(q)
		if err != nil {
			logger.Tracef("skip quote: %v", err)
			skipped++
			continue
		}
		out = append(out, o)
	}

	logger.Debugf("chain observations: %d kept, %d skipped", len(out), skipped)
	return out
}

// ParseExpiry parses a chain expiry label as midnight UTC.
func ParseExpiry(label string) (time.Time, error) {
	t, err := time.ParseInLocation(ExpiryLayout, label, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse expiry %q: %w", label, err)
	}
	return t, nil
}
