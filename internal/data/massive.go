// Package data provides the market data sources behind a comparison run.
//
// This file contains the Massive-backed ChainProvider. It reads the options chain
// snapshot and the contracts reference through the Massive SDK and turns them into
// chain records for one expiry.
package data

import (
	"context"
	"fmt"
	"sort"
	"time"

	massive "github.com/massive-com/client-go/v2/rest"
	"github.com/massive-com/client-go/v2/rest/models"
	"go.uber.org/zap"

	"github.com/contactkeval/btc-iv-compare/internal/chain"
	"github.com/contactkeval/btc-iv-compare/internal/logger"
)

// massiveAPI is the part of the Massive SDK used by MassiveChain.
type massiveAPI interface {
	// contracts lists the unexpired contracts of an underlying expiring on or after from.
	contracts(ctx context.Context, underlying string, from time.Time) ([]models.OptionsContract, error)
	// snapshot lists the chain snapshot of an underlying for one expiration date.
	snapshot(ctx context.Context, underlying string, expiry time.Time) ([]models.OptionContractSnapshot, error)
}

// sdkAPI adapts *massive.Client to massiveAPI, draining the SDK's paginated iterators.
type sdkAPI struct {
	client *massive.Client
}

func (s sdkAPI) contracts(ctx context.Context, underlying string, from time.Time) ([]models.OptionsContract, error) {
	params := models.ListOptionsContractsParams{}.
		WithUnderlyingTicker(models.EQ, underlying).
		WithExpirationDate(models.GTE, models.Date(from)).
		WithLimit(1000)

	var out []models.OptionsContract
	iter := s.client.ListOptionsContracts(ctx, params)
	for iter.Next() {
		out = append(out, iter.Item())
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s sdkAPI) snapshot(ctx context.Context, underlying string, expiry time.Time) ([]models.OptionContractSnapshot, error) {
	params := models.ListOptionsChainParams{UnderlyingAsset: underlying}.
		WithExpirationDate(models.EQ, models.Date(expiry)).
		WithLimit(250)

	var out []models.OptionContractSnapshot
	iter := s.client.ListOptionsChainSnapshot(ctx, params)
	for iter.Next() {
		out = append(out, iter.Item())
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// MassiveChain implements ChainProvider on top of the Massive options snapshot API.
type MassiveChain struct {
	api massiveAPI
	now func() time.Time
	log *logger.Logger
}

// NewMassiveChain constructs a Massive-backed chain provider.
//
// Parameters:
//   - apiKey: Massive API key for authentication
//
// Returns:
//   - *MassiveChain: initialized provider instance
func NewMassiveChain(apiKey string) *MassiveChain {
	logger.Infof("initializing Massive chain provider")
	return newMassiveChain(sdkAPI{client: massive.New(apiKey)}, time.Now)
}

func newMassiveChain(api massiveAPI, now func() time.Time) *MassiveChain {
	return &MassiveChain{
		api: api,
		now: now,
		log: logger.With(zap.String("source", "massive")),
	}
}

// Expirations returns the sorted, unique expiration dates (00:00 UTC) listed for symbol
// from today onward.
//
// Returns ErrMissingData when nothing is listed.
func (m *MassiveChain) Expirations(ctx context.Context, symbol string) ([]time.Time, error) {
	n := m.now().UTC()
	today := time.Date(n.Year(), n.Month(), n.Day(), 0, 0, 0, 0, time.UTC)

	contracts, err := m.api.contracts(ctx, symbol, today)
	if err != nil {
		return nil, fmt.Errorf("massive contracts %s: %w", symbol, err)
	}

	seen := map[time.Time]bool{}
	out := make([]time.Time, 0)
	for _, c := range contracts {
		e := dateUTC(time.Time(c.ExpirationDate))
		if !seen[e] {
			seen[e] = true
			out = append(out, e)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: no expirations listed for %s", ErrMissingData, symbol)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	m.log.Debugf("resolved %d expiries for %s", len(out), symbol)
	return out, nil
}

// Chain returns every contract of symbol expiring on expiry. The spot is the underlying
// price reported in the snapshot.
func (m *MassiveChain) Chain(ctx context.Context, symbol string, expiry time.Time) (ChainSnapshot, error) {
	expiry = dateUTC(expiry)
	m.log.Debugf("fetching chain snapshot %s %s", symbol, expiry.Format(chain.ExpiryLayout))

	items, err := m.api.snapshot(ctx, symbol, expiry)
	if err != nil {
		return ChainSnapshot{}, fmt.Errorf("massive snapshot %s: %w", symbol, err)
	}
	if len(items) == 0 {
		return ChainSnapshot{}, fmt.Errorf("%w: empty chain for %s %s",
			ErrMissingData, symbol, expiry.Format(chain.ExpiryLayout))
	}

	snap := ChainSnapshot{Symbol: symbol, Expiry: expiry, Records: make([]chain.Record, 0, len(items))}
	for _, it := range items {
		if snap.Spot == 0 && it.UnderlyingAsset.Price > 0 {
			snap.Spot = it.UnderlyingAsset.Price
		}
		snap.Records = append(snap.Records, chain.Record{
			Ticker: it.Details.Ticker,
			Strike: it.Details.StrikePrice,
			Type:   it.Details.ContractType,
			Bid:    it.LastQuote.Bid,
			Ask:    it.LastQuote.Ask,
			Last:   it.LastTrade.Price,
			IV:     it.ImpliedVolatility,
			Expiry: time.Time(it.Details.ExpirationDate).Format(chain.ExpiryLayout),
		})
	}

	if snap.Spot <= 0 {
		return ChainSnapshot{}, fmt.Errorf("%w: no underlying price for %s", ErrMissingData, symbol)
	}

	m.log.Tracef("received %d contracts, spot=%.2f", len(snap.Records), snap.Spot)
	return snap, nil
}

func dateUTC(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}
