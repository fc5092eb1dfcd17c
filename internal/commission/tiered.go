package commission

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Tiered mode prices broker contract commissions: a base rate chosen by
// property type and a price breakpoint, then a fixed-order list of bonus and
// deduction rules, each expressed as a percentage of the base commission.
// The result carries an auditable breakdown of every rule that fired.

type PropertyType string

const (
	PropertyApartment  PropertyType = "APARTMENT"
	PropertyHouse      PropertyType = "HOUSE"
	PropertyOffice     PropertyType = "OFFICE"
	PropertyCommercial PropertyType = "COMMERCIAL"
)

// RatePair is the base percentage below and at-or-above the breakpoint.
type RatePair struct {
	Below decimal.Decimal
	Above decimal.Decimal
}

// TieredConfig holds the tiered-mode rate table and rule percentages.
type TieredConfig struct {
	// Breakpoint is the property value at which the lower base rate kicks in.
	Breakpoint int64
	// HighValueThreshold triggers the high-value bonus above it.
	HighValueThreshold int64
	// MinimumCommission floors the final commission (minor units).
	MinimumCommission int64

	BaseRates map[PropertyType]RatePair

	ExclusiveBonus       decimal.Decimal // % of base
	AdditionalSvcBonus   decimal.Decimal
	PremiumClientBonus   decimal.Decimal
	CorporateClientBonus decimal.Decimal
	HighValueBonus       decimal.Decimal
	PaymentDelayPenalty  decimal.Decimal
}

// DefaultTieredConfig mirrors the platform's standard brokerage rate card.
func DefaultTieredConfig() TieredConfig {
	return TieredConfig{
		Breakpoint:         10_000_000,
		HighValueThreshold: 50_000_000,
		MinimumCommission:  50_000,
		BaseRates: map[PropertyType]RatePair{
			PropertyApartment:  {Below: decimal.NewFromInt(5), Above: decimal.NewFromInt(4)},
			PropertyHouse:      {Below: decimal.NewFromFloat(4.5), Above: decimal.NewFromFloat(3.5)},
			PropertyOffice:     {Below: decimal.NewFromInt(4), Above: decimal.NewFromInt(3)},
			PropertyCommercial: {Below: decimal.NewFromFloat(3.5), Above: decimal.NewFromFloat(2.5)},
		},
		ExclusiveBonus:       decimal.NewFromInt(10),
		AdditionalSvcBonus:   decimal.NewFromInt(5),
		PremiumClientBonus:   decimal.NewFromInt(15),
		CorporateClientBonus: decimal.NewFromInt(20),
		HighValueBonus:       decimal.NewFromInt(5),
		PaymentDelayPenalty:  decimal.NewFromInt(10),
	}
}

func (c TieredConfig) Validate() error {
	if c.Breakpoint < 0 || c.HighValueThreshold < 0 || c.MinimumCommission < 0 {
		return fmt.Errorf("tiered thresholds must be non-negative")
	}
	hundred := decimal.NewFromInt(100)
	for pt, pair := range c.BaseRates {
		for _, rate := range []decimal.Decimal{pair.Below, pair.Above} {
			if rate.IsNegative() || rate.GreaterThan(hundred) {
				return fmt.Errorf("base rate for %s out of range [0,100]: %s", pt, rate)
			}
		}
	}
	return nil
}

// ContractInput describes the brokered contract being priced.
type ContractInput struct {
	PropertyType  PropertyType `json:"property_type"`
	PropertyValue int64        `json:"property_value"`

	ExclusiveContract  bool `json:"exclusive_contract"`
	AdditionalServices bool `json:"additional_services"`
	PremiumClient      bool `json:"premium_client"`
	CorporateClient    bool `json:"corporate_client"`
	PaymentDelays      bool `json:"payment_delays"`
}

// Adjustment records one rule that fired, for the audit breakdown.
type Adjustment struct {
	Code        string          `json:"code"`
	Description string          `json:"description"`
	Percent     decimal.Decimal `json:"percent"` // of base commission
	Amount      int64           `json:"amount"`  // signed, minor units
}

// TieredResult is the full auditable outcome of a tiered calculation.
type TieredResult struct {
	BaseRate       decimal.Decimal `json:"base_rate"`
	BaseCommission int64           `json:"base_commission"`
	Adjustments    []Adjustment    `json:"adjustments"`
	Commission     int64           `json:"commission"`
	FloorApplied   bool            `json:"floor_applied"`
	// EffectiveRate = commission / propertyValue * 100. Reported for audit
	// only; it never feeds back into the calculation.
	EffectiveRate decimal.Decimal `json:"effective_rate"`
}

// tieredRule is an explicit rule object: predicate + percentage + description,
// evaluated in a fixed order.
type tieredRule struct {
	code        string
	description string
	percent     func(TieredConfig) decimal.Decimal
	deduction   bool
	applies     func(ContractInput, TieredConfig) bool
}

var tieredRules = []tieredRule{
	{
		code:        "exclusive_contract",
		description: "exclusive brokerage contract",
		percent:     func(c TieredConfig) decimal.Decimal { return c.ExclusiveBonus },
		applies:     func(in ContractInput, _ TieredConfig) bool { return in.ExclusiveContract },
	},
	{
		code:        "additional_services",
		description: "additional services sold with the contract",
		percent:     func(c TieredConfig) decimal.Decimal { return c.AdditionalSvcBonus },
		applies:     func(in ContractInput, _ TieredConfig) bool { return in.AdditionalServices },
	},
	{
		code:        "premium_client",
		description: "premium client account",
		percent:     func(c TieredConfig) decimal.Decimal { return c.PremiumClientBonus },
		applies:     func(in ContractInput, _ TieredConfig) bool { return in.PremiumClient },
	},
	{
		code:        "corporate_client",
		description: "corporate client account",
		percent:     func(c TieredConfig) decimal.Decimal { return c.CorporateClientBonus },
		applies:     func(in ContractInput, _ TieredConfig) bool { return in.CorporateClient },
	},
	{
		code:        "high_value_property",
		description: "contract value above the high-value threshold",
		percent:     func(c TieredConfig) decimal.Decimal { return c.HighValueBonus },
		applies: func(in ContractInput, c TieredConfig) bool {
			return in.PropertyValue > c.HighValueThreshold
		},
	},
	{
		code:        "payment_delays",
		description: "recorded payment delays on the contract",
		percent:     func(c TieredConfig) decimal.Decimal { return c.PaymentDelayPenalty },
		deduction:   true,
		applies:     func(in ContractInput, _ TieredConfig) bool { return in.PaymentDelays },
	},
}

// TieredCommission prices a brokered contract.
func (e *Engine) TieredCommission(in ContractInput) (*TieredResult, error) {
	if in.PropertyValue <= 0 {
		return nil, fmt.Errorf("property value must be positive, got %d", in.PropertyValue)
	}
	pair, ok := e.tiered.BaseRates[in.PropertyType]
	if !ok {
		return nil, fmt.Errorf("no base rate for property type %q", in.PropertyType)
	}

	baseRate := pair.Below
	if in.PropertyValue >= e.tiered.Breakpoint {
		baseRate = pair.Above
	}
	base := percentOf(in.PropertyValue, baseRate)

	total := base
	var adjustments []Adjustment
	for _, rule := range tieredRules {
		if !rule.applies(in, e.tiered) {
			continue
		}
		pct := rule.percent(e.tiered)
		amount := percentOf(base, pct)
		if rule.deduction {
			amount = -amount
		}
		total += amount
		adjustments = append(adjustments, Adjustment{
			Code:        rule.code,
			Description: rule.description,
			Percent:     pct,
			Amount:      amount,
		})
	}

	floorApplied := false
	if total < e.tiered.MinimumCommission {
		total = e.tiered.MinimumCommission
		floorApplied = true
	}

	effective := decimal.NewFromInt(total).
		Div(decimal.NewFromInt(in.PropertyValue)).
		Mul(decimal.NewFromInt(100)).
		Round(4)

	return &TieredResult{
		BaseRate:       baseRate,
		BaseCommission: base,
		Adjustments:    adjustments,
		Commission:     total,
		FloorApplied:   floorApplied,
		EffectiveRate:  effective,
	}, nil
}
