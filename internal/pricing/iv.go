package pricing

import (
	"errors"
	"fmt"
	"math"
)

// ErrNoSolution reports that no volatility reproduces the target price.
// It is an expected outcome for stale or crossed quotes; callers skip the observation.
var ErrNoSolution = errors.New("implied vol: no solution")

const (
	volLow       = 1e-6
	volHigh      = 5.0
	volCap       = 10.0
	expandFactor = 1.5
	maxExpand    = 25
	maxBisect    = 100
	priceTol     = 1e-6
)

// ImpliedVol recovers the Black-Scholes volatility that reproduces targetPrice using
// bounded bisection.
//
// Parameters:
//   - isCall: true for call option, false for put option
//   - S, K: spot and strike (must be > 0)
//   - T: time to expiry in years (must be > 0)
//   - r: risk-free rate
//   - targetPrice: observed option price (must be > 0)
//
// Returns:
//
//	The volatility, or ErrNoSolution when the preconditions fail or no bracket with a sign
//	change exists in [1e-6, 10]. A target below intrinsic value is lifted to intrinsic value
//	first. Once bracketed the solver always returns a value: the midpoint where the price
//	error falls under 1e-6, or the final midpoint after 100 halvings.
func ImpliedVol(
	isCall bool,
	S, K, T, r float64,
	targetPrice float64,
) (float64, error) {

	if T <= 0 || S <= 0 || K <= 0 || targetPrice <= 0 {
		return 0, fmt.Errorf("%w: invalid inputs S=%g K=%g T=%g price=%g", ErrNoSolution, S, K, T, targetPrice)
	}

	target := math.Max(targetPrice, Intrinsic(isCall, S, K))
	f := func(vol float64) float64 {
		return BlackScholesPrice(isCall, S, K, T, r, vol) - target
	}

	lo, hi := volLow, volHigh
	fLo, fHi := f(lo), f(hi)

	for i := 0; fLo*fHi > 0 && hi < volCap && i < maxExpand; i++ {
		hi = math.Min(hi*expandFactor, volCap)
		fHi = f(hi)
	}
	if fLo*fHi > 0 {
		return 0, fmt.Errorf("%w: no bracket for price=%g", ErrNoSolution, target)
	}

	for i := 0; i < maxBisect; i++ {
		mid := 0.5 * (lo + hi)
		fMid := f(mid)
		if math.Abs(fMid) < priceTol {
			return mid, nil
		}
		if fLo*fMid <= 0 {
			hi = mid
		} else {
			lo, fLo = mid, fMid
		}
	}

	return 0.5 * (lo + hi), nil
}
