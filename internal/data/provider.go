package data

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/contactkeval/btc-iv-compare/internal/buckets"
	"github.com/contactkeval/btc-iv-compare/internal/chain"
	"github.com/contactkeval/btc-iv-compare/internal/logger"
	"github.com/contactkeval/btc-iv-compare/internal/surface"
)

// ErrMissingData reports a source that answered but had nothing usable: no listed
// expirations, no instruments for the currency or an empty surface.
var ErrMissingData = errors.New("missing market data")

// ChainSnapshot is one expiry of a listed options chain plus the underlying price it was
// quoted against.
type ChainSnapshot struct {
	Symbol  string
	Expiry  time.Time
	Spot    float64
	Records []chain.Record
}

// ChainProvider supplies listed (ETF) option chains.
type ChainProvider interface {
	Expirations(ctx context.Context, symbol string) ([]time.Time, error)
	Chain(ctx context.Context, symbol string, expiry time.Time) (ChainSnapshot, error)
}

// Instrument is a listed exchange option.
type Instrument struct {
	Name                string  `json:"instrument_name"`
	Strike              float64 `json:"strike"`
	OptionType          string  `json:"option_type"`
	ExpirationTimestamp int64   `json:"expiration_timestamp"` // epoch millis
}

// Expiry returns the instrument expiration in UTC.
func (i Instrument) Expiry() time.Time {
	return time.UnixMilli(i.ExpirationTimestamp).UTC()
}

// Ticker is the mark data of one instrument. MarkIV is in percent; nil fields were not
// reported.
type Ticker struct {
	InstrumentName  string   `json:"instrument_name"`
	MarkPrice       float64  `json:"mark_price"`
	MarkIV          *float64 `json:"mark_iv"`
	UnderlyingPrice float64  `json:"underlying_price"`
	Greeks          *Greeks  `json:"greeks"`
}

// Greeks holds the ticker sensitivities used here.
type Greeks struct {
	Delta *float64 `json:"delta"`
}

// Observation converts the ticker to a (delta, IV) pair with IV as a decimal.
// ok is false when mark IV or delta is missing.
func (t Ticker) Observation() (buckets.Observation, bool) {
	if t.MarkIV == nil || t.Greeks == nil || t.Greeks.Delta == nil {
		return buckets.Observation{}, false
	}
	return buckets.Observation{Delta: *t.Greeks.Delta, IV: *t.MarkIV / 100}, true
}

// ExchangeProvider supplies exchange-listed options with their marks and greeks.
type ExchangeProvider interface {
	Instruments(ctx context.Context, currency string) ([]Instrument, error)
	Ticker(ctx context.Context, name string) (Ticker, error)
}

// SurfaceProvider supplies a pre-computed volatility surface.
type SurfaceProvider interface {
	Surface(ctx context.Context) (*surface.Grid, error)
}

// --------------------------------------------------------------------------------------------
// Helper functions
// --------------------------------------------------------------------------------------------

// NearestDate returns the date closest to target, or the zero time for an empty list.
// Ties go to the earlier date; dates need not be sorted.
func NearestDate(dates []time.Time, target time.Time) time.Time {
	var best time.Time
	bestDist := time.Duration(math.MaxInt64)
	for _, d := range dates {
		dist := d.Sub(target).Abs()
		if dist < bestDist || (dist == bestDist && d.Before(best)) {
			best, bestDist = d, dist
		}
	}
	return best
}

// NearestExpiry groups instruments by UTC expiration date and returns the group whose
// date (at 00:00 UTC) is closest to target, with that date.
func NearestExpiry(instruments []Instrument, target time.Time) ([]Instrument, time.Time, error) {
	if len(instruments) == 0 {
		return nil, time.Time{}, fmt.Errorf("%w: no instruments", ErrMissingData)
	}

	byDate := make(map[time.Time][]Instrument)
	dates := make([]time.Time, 0)
	for _, ins := range instruments {
		day := dateUTC(ins.Expiry())
		if _, ok := byDate[day]; !ok {
			dates = append(dates, day)
		}
		byDate[day] = append(byDate[day], ins)
	}

	best := NearestDate(dates, target)
	logger.Debugf("nearest exchange expiry to %s is %s (%d instruments)",
		target.Format(chain.ExpiryLayout), best.Format(chain.ExpiryLayout), len(byDate[best]))
	return byDate[best], best, nil
}

// ExchangeObservations fetches every instrument's ticker with at most concurrency requests
// in flight and returns the observations in instrument order. Tickers without mark IV or
// delta are skipped; any fetch error fails the whole call.
func ExchangeObservations(ctx context.Context, p ExchangeProvider, instruments []Instrument, concurrency int) ([]buckets.Observation, error) {
	if concurrency < 1 {
		concurrency = 1
	}

	results := make([]*buckets.Observation, len(instruments))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for i, ins := range instruments {
		g.Go(func() error {
			t, err := p.Ticker(ctx, ins.Name)
			if err != nil {
				return fmt.Errorf("ticker %s: %w", ins.Name, err)
			}
			if o, ok := t.Observation(); ok {
				results[i] = &o
			} else {
				logger.Tracef("ticker %s has no mark iv or delta", ins.Name)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]buckets.Observation, 0, len(results))
	for _, o := range results {
		if o != nil {
			out = append(out, *o)
		}
	}
	return out, nil
}

// newHTTPClient builds the client shared by the raw-HTTP sources.
func newHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			TLSHandshakeTimeout:   10 * time.Second,
			ResponseHeaderTimeout: timeout,
			ExpectContinueTimeout: 1 * time.Second,
			DisableCompression:    false, // must be false to enable gzip auto-decompression
			ForceAttemptHTTP2:     true,
			MaxIdleConns:          100,
			IdleConnTimeout:       90 * time.Second,
		},
	}
}

func round2(f float64) float64 { return math.Round(f*100) / 100 }
