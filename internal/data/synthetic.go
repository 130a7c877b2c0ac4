package data

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/contactkeval/btc-iv-compare/internal/chain"
	"github.com/contactkeval/btc-iv-compare/internal/pricing"
	"github.com/contactkeval/btc-iv-compare/internal/surface"
)

const (
	syntheticRate    = 0.04
	syntheticBTC     = 60000.0
	syntheticWeeks   = 8
	syntheticDays    = 90
	deribitMarkupPts = 1.0 // exchange marks sit one vol point above the model smile
)

// syntheticETFSpot holds a plausible share price per supported spot ETF.
var syntheticETFSpot = map[string]float64{
	"IBIT": 55.0,
	"FBTC": 85.0,
	"ARKB": 95.0,
	"BRRR": 30.0,
	"HODL": 27.0,
}

var surfaceDeltas = []float64{-0.10, -0.25, 0.50, 0.25, 0.10}

// Synthetic implements ChainProvider, ExchangeProvider and SurfaceProvider from one fixed
// smile and the Black-Scholes pricer. Its output depends only on Now.
type Synthetic struct {
	Now func() time.Time

	mu          sync.Mutex
	builtFor    time.Time
	instruments []Instrument
	byName      map[string]Instrument
}

// NewSynthetic returns a synthetic source anchored at now (time.Now when nil).
func NewSynthetic(now func() time.Time) *Synthetic {
	if now == nil {
		now = time.Now
	}
	return &Synthetic{Now: now}
}

// smile is the model IV for log-moneyness x and T years.
func smile(x, T float64) float64 {
	return 0.55 + 0.02*math.Sqrt(T) - 0.08*x + 0.35*x*x
}

// deltaSmile is the same smile expressed on the delta axis.
func deltaSmile(d, T float64) float64 {
	iv := 0.55 + 0.02*math.Sqrt(T) + 0.6*math.Pow(0.5-math.Abs(d), 2)
	if d < 0 {
		iv += 0.015
	}
	return iv
}

// expiries returns the next syntheticWeeks Fridays after today at 00:00 UTC.
func (s *Synthetic) expiries() []time.Time {
	d := dateUTC(s.Now()).AddDate(0, 0, 1)
	for d.Weekday() != time.Friday {
		d = d.AddDate(0, 0, 1)
	}
	out := make([]time.Time, syntheticWeeks)
	for i := range out {
		out[i] = d.AddDate(0, 0, 7*i)
	}
	return out
}

// Expirations implements ChainProvider.
func (s *Synthetic) Expirations(ctx context.Context, symbol string) ([]time.Time, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if _, ok := syntheticETFSpot[strings.ToUpper(symbol)]; !ok {
		return nil, fmt.Errorf("%w: no expirations listed for %s", ErrMissingData, symbol)
	}
	return s.expiries(), nil
}

// Chain implements ChainProvider. Quotes are the model price with a 2% half-spread;
// contracts worth less than a cent are not listed.
func (s *Synthetic) Chain(ctx context.Context, symbol string, expiry time.Time) (ChainSnapshot, error) {
	if err := ctx.Err(); err != nil {
		return ChainSnapshot{}, err
	}
	spot, ok := syntheticETFSpot[strings.ToUpper(symbol)]
	if !ok {
		return ChainSnapshot{}, fmt.Errorf("%w: no chain for %s", ErrMissingData, symbol)
	}

	expiry = dateUTC(expiry)
	T := chain.TimeToExpiry(expiry, s.Now())
	snap := ChainSnapshot{Symbol: symbol, Expiry: expiry, Spot: spot}

	for m := 0.60; m <= 1.40+1e-9; m += 0.025 {
		K := round2(spot * m)
		iv := smile(math.Log(K/spot), T)
		for _, isCall := range []bool{true, false} {
			px := pricing.BlackScholesPrice(isCall, spot, K, T, syntheticRate, iv)
			if px < 0.01 {
				continue
			}
			typ := "put"
			if isCall {
				typ = "call"
			}
			snap.Records = append(snap.Records, chain.Record{
				Strike: K,
				Type:   typ,
				Bid:    px * 0.98,
				Ask:    px * 1.02,
				Last:   px,
				Expiry: expiry.Format(chain.ExpiryLayout),
			})
		}
	}
	return snap, nil
}

// listing returns the instrument set for today's expiries, rebuilding it when the UTC
// date has moved on since the last call.
func (s *Synthetic) listing() ([]Instrument, map[string]Instrument) {
	s.mu.Lock()
	defer s.mu.Unlock()

	today := dateUTC(s.Now())
	if s.byName == nil || !s.builtFor.Equal(today) {
		s.build()
		s.builtFor = today
	}
	return s.instruments, s.byName
}

func (s *Synthetic) build() {
	s.instruments = nil
	s.byName = make(map[string]Instrument)
	for _, e := range s.expiries() {
		exp := e.Add(8 * time.Hour)
		code := strings.ToUpper(exp.Format("2Jan06"))
		for m := 0.60; m <= 1.40+1e-9; m += 0.05 {
			K := math.Round(syntheticBTC*m/1000) * 1000
			for _, side := range []struct{ code, typ string }{{"C", "call"}, {"P", "put"}} {
				ins := Instrument{
					Name:                fmt.Sprintf("BTC-%s-%.0f-%s", code, K, side.code),
					Strike:              K,
					OptionType:          side.typ,
					ExpirationTimestamp: exp.UnixMilli(),
				}
				s.instruments = append(s.instruments, ins)
				s.byName[ins.Name] = ins
			}
		}
	}
}

// Instruments implements ExchangeProvider.
func (s *Synthetic) Instruments(ctx context.Context, currency string) ([]Instrument, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !strings.EqualFold(currency, "BTC") {
		return nil, fmt.Errorf("%w: no %s options listed", ErrMissingData, currency)
	}
	instruments, _ := s.listing()
	out := make([]Instrument, len(instruments))
	copy(out, instruments)
	return out, nil
}

// Ticker implements ExchangeProvider. Mark IV is reported in percent.
func (s *Synthetic) Ticker(ctx context.Context, name string) (Ticker, error) {
	if err := ctx.Err(); err != nil {
		return Ticker{}, err
	}
	_, byName := s.listing()
	ins, ok := byName[name]
	if !ok {
		return Ticker{}, fmt.Errorf("unknown instrument %s", name)
	}

	isCall := ins.OptionType == "call"
	T := chain.TimeToExpiry(ins.Expiry(), s.Now())
	iv := smile(math.Log(ins.Strike/syntheticBTC), T)
	markIV := iv*100 + deribitMarkupPts
	delta := pricing.BlackScholesDelta(isCall, syntheticBTC, ins.Strike, T, 0, iv)

	return Ticker{
		InstrumentName:  name,
		MarkPrice:       pricing.BlackScholesPrice(isCall, syntheticBTC, ins.Strike, T, 0, iv) / syntheticBTC,
		MarkIV:          &markIV,
		UnderlyingPrice: syntheticBTC,
		Greeks:          &Greeks{Delta: &delta},
	}, nil
}

// Surface implements SurfaceProvider: a delta x tenor grid with daily 08:00 UTC tenors.
func (s *Synthetic) Surface(ctx context.Context) (*surface.Grid, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	now := s.Now()
	ref := surface.NearestDailyReference(now)

	x := surface.Axis{Type: "delta"}
	for _, d := range surfaceDeltas {
		x.Values = append(x.Values, surface.Number(d))
	}
	y := surface.Axis{Type: "tenor-floating"}
	years := make([]float64, syntheticDays)
	for j := range syntheticDays {
		ts := ref.AddDate(0, 0, j+1)
		y.Values = append(y.Values, surface.Int(ts.Unix()))
		years[j] = chain.TimeToExpiry(ts, now)
	}

	data := make([][]*float64, len(surfaceDeltas))
	for i, d := range surfaceDeltas {
		row := make([]*float64, syntheticDays)
		for j, T := range years {
			iv := deltaSmile(d, T)
			row[j] = &iv
		}
		data[i] = row
	}

	return surface.NewGrid(x, y, data)
}
