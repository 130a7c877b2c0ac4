package pricing

import (
	"math"
)

// BlackScholesPrice calculates the price of a European option using the Black-Scholes model.
//
// Parameters:
//   - isCall: true for call option, false for put option
//   - S: spot price of the underlying asset
//   - K: strike price of the option
//   - T: time to expiry in years
//   - r: risk-free interest rate (annual, continuously compounded)
//   - sigma: volatility of the underlying asset (annual, as a decimal)
//
// Returns:
//
//	The theoretical price of the option. If any of T, sigma, S or K is zero or negative,
//	returns the intrinsic value of the option instead, so expiry-day and zero-vol
//	inputs never need special handling by the caller.
func BlackScholesPrice(
	isCall bool,
	S float64, // spot
	K float64, // strike
	T float64, // time to expiry in years
	r float64, // risk-free rate
	sigma float64, // volatility
) float64 {

	if degenerate(S, K, T, sigma) {
		return Intrinsic(isCall, S, K)
	}

	d1, d2 := d1d2(S, K, T, r, sigma)

	if isCall {
		return S*normCDF(d1) - K*math.Exp(-r*T)*normCDF(d2)
	}
	return K*math.Exp(-r*T)*normCDF(-d2) - S*normCDF(-d1)
}

// BlackScholesDelta calculates the delta of a European option using the Black-Scholes model.
//
// Call deltas lie in [0, 1] and put deltas in [-1, 0]. On degenerate inputs (same guard as
// BlackScholesPrice) the delta collapses to its directional limit: 1 for an in-the-money
// call, -1 for an in-the-money put, 0 otherwise.
func BlackScholesDelta(
	isCall bool,
	S float64,
	K float64,
	T float64,
	r float64,
	sigma float64,
) float64 {

	if degenerate(S, K, T, sigma) {
		if isCall {
			if S > K {
				return 1
			}
			return 0
		}
		if S < K {
			return -1
		}
		return 0
	}

	d1, _ := d1d2(S, K, T, r, sigma)
	if isCall {
		return normCDF(d1)
	}
	return normCDF(d1) - 1
}

// Intrinsic returns the exercise value of an option: max(0, S-K) for calls,
// max(0, K-S) for puts.
func Intrinsic(isCall bool, S, K float64) float64 {
	if isCall {
		return math.Max(0, S-K)
	}
	return math.Max(0, K-S)
}

func degenerate(S, K, T, sigma float64) bool {
	return T <= 0 || sigma <= 0 || S <= 0 || K <= 0
}

func d1d2(S, K, T, r, sigma float64) (float64, float64) {
	sqrtT := math.Sqrt(T)
	d1 := (math.Log(S/K) + (r+0.5*sigma*sigma)*T) / (sigma * sqrtT)
	return d1, d1 - sigma*sqrtT
}

// normCDF computes the cumulative distribution function of the standard normal distribution
// for a given value x using the error function.
// It returns a value between 0 and 1 representing the probability that a standard normal
// random variable is less than or equal to x.
func normCDF(x float64) float64 {
	return 0.5 * (1.0 + math.Erf(x/math.Sqrt2))
}
