// Package curve implements bonding-curve pricing: a deterministic map from
// token supply to price, its integral, and a bounded bisection that turns a
// payment into a token amount.
package curve

import (
	"errors"
	"fmt"
	"math"
)

// Bisection bounds.
const (
	MaxIterations = 100
	Tolerance     = 1e-4
)

// maxExpansions caps the doubling search for a bisection upper bound.
const maxExpansions = 64

// ErrNoConvergence is returned when the payment cannot be bracketed.
var ErrNoConvergence = errors.New("curve: payment cannot be bracketed")

// Curve is a monotonically increasing price function of supply.
type Curve interface {
	// Price is the marginal price at supply s.
	Price(s float64) float64
	// Integral is the cost of moving supply from a to b.
	Integral(a, b float64) float64
	// String describes the curve and its parameters.
	String() string
}

// Linear prices at K·s.
type Linear struct {
	K float64
}

func (c Linear) Price(s float64) float64 { return c.K * s }

func (c Linear) Integral(a, b float64) float64 {
	return c.K / 2 * (b*b - a*a)
}

func (c Linear) String() string { return fmt.Sprintf("linear(k=%g)", c.K) }

// Polynomial prices at K·s^N.
type Polynomial struct {
	K, N float64
}

func (c Polynomial) Price(s float64) float64 { return c.K * math.Pow(s, c.N) }

func (c Polynomial) Integral(a, b float64) float64 {
	n1 := c.N + 1
	return c.K / n1 * (math.Pow(b, n1) - math.Pow(a, n1))
}

func (c Polynomial) String() string { return fmt.Sprintf("polynomial(k=%g, n=%g)", c.K, c.N) }

// Exponential prices at K·e^(R·s).
type Exponential struct {
	K, R float64
}

func (c Exponential) Price(s float64) float64 { return c.K * math.Exp(c.R*s) }

func (c Exponential) Integral(a, b float64) float64 {
	return c.K / c.R * (math.Exp(c.R*b) - math.Exp(c.R*a))
}

func (c Exponential) String() string { return fmt.Sprintf("exponential(k=%g, r=%g)", c.K, c.R) }

// Validate checks c is strictly increasing on non-negative supply.
func Validate(c Curve) error {
	switch c := c.(type) {
	case Linear:
		if c.K <= 0 {
			return fmt.Errorf("%s: k must be positive", c)
		}
	case Polynomial:
		if c.K <= 0 || c.N <= 0 {
			return fmt.Errorf("%s: k and n must be positive", c)
		}
	case Exponential:
		if c.K <= 0 || c.R <= 0 {
			return fmt.Errorf("%s: k and r must be positive", c)
		}
	case nil:
		return errors.New("curve: nil")
	}
	return nil
}

// Cost returns the payment needed to mint tokens on top of supply.
func Cost(c Curve, supply, tokens float64) float64 {
	return c.Integral(supply, supply+tokens)
}

// Refund returns the payment released by burning tokens off supply.
func Refund(c Curve, supply, tokens float64) float64 {
	return c.Integral(supply-tokens, supply)
}

// TokensForPayment returns how many tokens payment buys at supply.
//
// The answer x solves Integral(supply, supply+x) = payment. It is found by
// doubling an upper bound until it brackets the payment and then bisecting
// at most MaxIterations times, stopping once the cost is within Tolerance
// of payment or the bracket is narrower than Tolerance.
func TokensForPayment(c Curve, supply, payment float64) (float64, error) {
	if payment <= 0 {
		return 0, nil
	}
	if math.IsNaN(payment) || math.IsInf(payment, 0) {
		return 0, fmt.Errorf("curve: invalid payment %v", payment)
	}

	lo, hi := 0.0, 1.0
	for i := 0; Cost(c, supply, hi) < payment; i++ {
		if i == maxExpansions {
			return 0, ErrNoConvergence
		}
		lo = hi
		hi *= 2
	}

	mid := lo
	for i := 0; i < MaxIterations; i++ {
		mid = lo + (hi-lo)/2
		cost := Cost(c, supply, mid)
		if math.Abs(cost-payment) < Tolerance || hi-lo < Tolerance {
			break
		}
		if cost < payment {
			lo = mid
		} else {
			hi = mid
		}
	}
	return mid, nil
}
