// Package compare runs one cross-market comparison: it resolves the ETF expiry, fetches the
// three volatility sources concurrently, buckets each by delta and lines them up against
// the surface.
package compare

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/contactkeval/btc-iv-compare/internal/buckets"
	"github.com/contactkeval/btc-iv-compare/internal/chain"
	"github.com/contactkeval/btc-iv-compare/internal/data"
	"github.com/contactkeval/btc-iv-compare/internal/logger"
	"github.com/contactkeval/btc-iv-compare/internal/metrics"
	"github.com/contactkeval/btc-iv-compare/internal/surface"
)

// Source names used in results, logs and metrics.
const (
	SourceETF     = "etf"
	SourceDeribit = "deribit"
	SourceSurface = "surface"
)

// Request parameterises a run.
type Request struct {
	ETF         string
	Expiry      time.Time       // zero means the first listed expiry
	Rate        float64         // risk-free rate for the ETF solver
	Buckets     []buckets.Label // table rows; nil means all canonical buckets
	Threshold   float64         // divergence threshold in IV points (decimal)
	Currency    string          // exchange currency; BTC unless set
	Concurrency int             // max in-flight exchange ticker requests
}

// CrossSection is the surface slice used for the surface source.
type CrossSection struct {
	Target time.Time  `json:"target"`
	Labels []string   `json:"labels"`
	IVs    []*float64 `json:"ivs"`
}

// SourceResult is the outcome of one source. Buckets is empty, never nil, when Err is set.
type SourceResult struct {
	Name         string          `json:"name"`
	Expiry       time.Time       `json:"expiry,omitzero"`
	Observations int             `json:"observations"`
	Buckets      buckets.Buckets `json:"buckets"`
	CrossSection *CrossSection   `json:"cross_section,omitempty"`
	Err          error           `json:"-"`
	Error        string          `json:"error,omitempty"`
}

func (s *SourceResult) fail(err error) {
	s.Err = err
	s.Error = err.Error()
	s.Buckets = buckets.Buckets{}
}

// Report is the full result of a run.
type Report struct {
	RunID       string          `json:"run_id"`
	GeneratedAt time.Time       `json:"generated_at"`
	ETF         string          `json:"etf"`
	Expiry      time.Time       `json:"expiry"`
	Threshold   float64         `json:"threshold"`
	ETFSource   SourceResult    `json:"etf_source"`
	Deribit     SourceResult    `json:"deribit"`
	Surface     SourceResult    `json:"surface"`
	Rows        []Row           `json:"rows"`
	Divergences []Divergence    `json:"divergences"`
	Labels      []buckets.Label `json:"-"`
}

// Sources returns the three source results in display order.
func (r *Report) Sources() []SourceResult {
	return []SourceResult{r.ETFSource, r.Deribit, r.Surface}
}

// Runner wires the three sources together. Metrics may be nil.
type Runner struct {
	Chains   data.ChainProvider
	Exchange data.ExchangeProvider
	Surfaces data.SurfaceProvider
	Metrics  *metrics.Metrics
	Now      func() time.Time
}

// ResolveExpiry picks the ETF expiry for req: the first listed one when req.Expiry is zero,
// otherwise the listed expiry nearest to it.
func (r *Runner) ResolveExpiry(ctx context.Context, req Request) (time.Time, error) {
	listed, err := r.Chains.Expirations(ctx, req.ETF)
	if err != nil {
		return time.Time{}, fmt.Errorf("list %s expirations: %w", req.ETF, err)
	}
	if len(listed) == 0 {
		return time.Time{}, fmt.Errorf("%w: no expirations listed for %s", data.ErrMissingData, req.ETF)
	}
	if req.Expiry.IsZero() {
		return listed[0], nil
	}

	e := data.NearestDate(listed, req.Expiry)
	if !e.Equal(req.Expiry) {
		logger.Warnf("%s has no %s expiry, using %s", req.ETF,
			req.Expiry.Format(chain.ExpiryLayout), e.Format(chain.ExpiryLayout))
	}
	return e, nil
}

// Run resolves the expiry and fetches the three sources concurrently. A failing source is
// reported in its SourceResult and does not stop the others; only an unresolvable expiry
// fails the run.
func (r *Runner) Run(ctx context.Context, req Request) (*Report, error) {
	start := time.Now()
	if req.Currency == "" {
		req.Currency = "BTC"
	}
	labels := req.Buckets
	if labels == nil {
		labels = buckets.Canonical()
	}

	expiry, err := r.ResolveExpiry(ctx, req)
	if err != nil {
		return nil, err
	}

	rep := &Report{
		RunID:       uuid.NewString(),
		GeneratedAt: r.now().UTC(),
		ETF:         req.ETF,
		Expiry:      expiry,
		Threshold:   req.Threshold,
		Labels:      labels,
	}
	log := logger.With(zap.String("run_id", rep.RunID), zap.String("symbol", req.ETF),
		zap.String("expiry", expiry.Format(chain.ExpiryLayout)))
	log.Infof("comparison run started")

	var g errgroup.Group
	g.Go(func() error { rep.ETFSource = r.etf(ctx, req, expiry); return nil })
	g.Go(func() error { rep.Deribit = r.deribit(ctx, req, expiry); return nil })
	g.Go(func() error { rep.Surface = r.surface(ctx, expiry); return nil })
	_ = g.Wait()

	for _, s := range rep.Sources() {
		r.Metrics.ObserveSource(s.Name, s.Observations, s.Err)
		if s.Err != nil {
			log.Errorf("%s source failed: %v", s.Name, s.Err)
		} else {
			log.Debugf("%s source: %d observations, %d buckets", s.Name, s.Observations, len(s.Buckets))
		}
	}

	rep.Rows = Table(rep.ETFSource.Buckets, rep.Deribit.Buckets, rep.Surface.Buckets, labels)
	rep.Divergences = Divergences(rep.Rows, req.Threshold, req.ETF)

	r.Metrics.ObserveRun(time.Since(start), len(rep.Divergences))
	log.Infof("comparison run finished: %d divergences in %s", len(rep.Divergences), time.Since(start))
	return rep, nil
}

func (r *Runner) now() time.Time {
	if r.Now == nil {
		return time.Now()
	}
	return r.Now()
}

func (r *Runner) etf(ctx context.Context, req Request, expiry time.Time) SourceResult {
	res := SourceResult{Name: SourceETF, Expiry: expiry}

	snap, err := r.Chains.Chain(ctx, req.ETF, expiry)
	if err != nil {
		res.fail(err)
		return res
	}

	obs := chain.ObserveAll(snap.Records, snap.Spot, expiry, r.now(), req.Rate)
	res.Observations = len(obs)
	res.Buckets = buckets.Aggregate(obs, nil)
	return res
}

func (r *Runner) deribit(ctx context.Context, req Request, expiry time.Time) SourceResult {
	res := SourceResult{Name: SourceDeribit}

	instruments, err := r.Exchange.Instruments(ctx, req.Currency)
	if err != nil {
		res.fail(err)
		return res
	}
	group, date, err := data.NearestExpiry(instruments, expiry)
	if err != nil {
		res.fail(err)
		return res
	}
	res.Expiry = date

	obs, err := data.ExchangeObservations(ctx, r.Exchange, group, req.Concurrency)
	if err != nil {
		res.fail(err)
		return res
	}
	res.Observations = len(obs)
	res.Buckets = buckets.Aggregate(obs, nil)
	return res
}

func (r *Runner) surface(ctx context.Context, expiry time.Time) SourceResult {
	res := SourceResult{Name: SourceSurface}

	g, err := r.Surfaces.Surface(ctx)
	if err != nil {
		res.fail(err)
		return res
	}
	if g.Empty() {
		res.fail(fmt.Errorf("%w: empty volatility surface", data.ErrMissingData))
		return res
	}

	target := surface.NearestDailyReference(expiry.Add(surface.DailyReferenceHour * time.Hour))
	labels, ivs := g.Extract(target.Unix())
	points := g.Slice(target.Unix())

	res.Expiry = target
	res.CrossSection = &CrossSection{Target: target, Labels: labels, IVs: ivs}
	res.Buckets = surface.ToBuckets(points, nil)
	for _, iv := range ivs {
		if iv != nil {
			res.Observations++
		}
	}
	return res
}

// IsMissingData reports whether a source failed only because it had no data.
func IsMissingData(s SourceResult) bool {
	return errors.Is(s.Err, data.ErrMissingData)
}
