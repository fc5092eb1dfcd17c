// Package commission computes the platform's cut of a completed payment.
// All splits are integer minor-unit arithmetic: the commission is truncated
// to a whole minor unit and the net amount is the exact remainder, so
// commission + net == amount always holds with no rounding drift.
package commission

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/rentora/payments/internal/domain"
)

// DefaultFlatRate applies to any job type without an explicit rate.
var DefaultFlatRate = decimal.NewFromInt(8)

// FlatConfig holds the per-job-type commission percentages for flat mode.
type FlatConfig struct {
	Rates map[domain.JobType]decimal.Decimal
}

// Validate rejects rates outside [0,100].
func (c FlatConfig) Validate() error {
	for jt, rate := range c.Rates {
		if rate.IsNegative() || rate.GreaterThan(decimal.NewFromInt(100)) {
			return fmt.Errorf("flat rate for %s out of range [0,100]: %s", jt, rate)
		}
	}
	return nil
}

// Split is a commission/net pair in minor units.
type Split struct {
	Commission int64 `json:"commission"`
	NetAmount  int64 `json:"net_amount"`
}

// Engine evaluates both commission modes against its configured rates.
type Engine struct {
	flat   FlatConfig
	tiered TieredConfig
}

func NewEngine(flat FlatConfig, tiered TieredConfig) (*Engine, error) {
	if err := flat.Validate(); err != nil {
		return nil, err
	}
	if err := tiered.Validate(); err != nil {
		return nil, err
	}
	return &Engine{flat: flat, tiered: tiered}, nil
}

// FlatSplit computes the flat-mode split for a settled job payment.
func (e *Engine) FlatSplit(jobType domain.JobType, amount int64) (Split, error) {
	if amount <= 0 {
		return Split{}, fmt.Errorf("amount must be positive, got %d", amount)
	}

	rate, ok := e.flat.Rates[jobType]
	if !ok {
		rate = DefaultFlatRate
	}

	commission := percentOf(amount, rate)
	return Split{Commission: commission, NetAmount: amount - commission}, nil
}

// percentOf returns pct% of amount truncated to a whole minor unit. The
// multiply and shift are exact decimal operations; only the final truncation
// discards digits.
func percentOf(amount int64, pct decimal.Decimal) int64 {
	return decimal.NewFromInt(amount).Mul(pct).Shift(-2).IntPart()
}
