package engine

import "github.com/shopspring/decimal"

// Profile is the capability set of one market. The engine and the sweep
// scheduler consult it instead of branching on a market name, so equity and
// derivatives venues run the same code with different features switched on.
type Profile struct {
	Name string

	// Order types
	PeggedOrders         bool
	HiddenLimitExclusion bool
	MarketToLimit        bool
	TrailingStops        bool

	// Hard validation bounds, applied by the create sweep when ValidateBounds
	// is set.
	ValidateBounds   bool
	MaxOrderQuantity decimal.Decimal
	MinLimitPrice    decimal.Decimal

	// Simulation triggers. Orders for the halted security are admin-rejected;
	// amending to the suspended price and cancelling at the cancel-reject
	// price produce their scripted rejections.
	HaltedSecurityID    string
	SuspendedAmendPrice decimal.Decimal
	CancelRejectPrice   decimal.Decimal
}

// EquityProfile is the cash equity venue: pegged orders and hidden-limit
// exclusion, no bound validation.
func EquityProfile() Profile {
	return Profile{
		Name:                 "equity",
		PeggedOrders:         true,
		HiddenLimitExclusion: true,
	}
}

// DerivativesProfile is the derivatives venue: market-to-limit restatement,
// trailing stops and hard bound validation with scripted reject triggers.
func DerivativesProfile() Profile {
	return Profile{
		Name:                "derivatives",
		MarketToLimit:       true,
		TrailingStops:       true,
		ValidateBounds:      true,
		MaxOrderQuantity:    decimal.NewFromInt(999999999),
		MinLimitPrice:       decimal.NewFromFloat(0.1),
		HaltedSecurityID:    "1003104",
		SuspendedAmendPrice: decimal.NewFromFloat(0.9999),
		CancelRejectPrice:   decimal.NewFromFloat(9.014),
	}
}

// ProfileFor resolves a configured market type to its profile; unknown types
// default to the equity profile.
func ProfileFor(marketType string) Profile {
	switch marketType {
	case "derivatives", "JSEDERIV":
		return DerivativesProfile()
	default:
		return EquityProfile()
	}
}
