// Package shipping derives shipping cost from a per-country rate table.
package shipping

import (
	"context"
	"strings"

	"kart-checkout/internal/model"

	"github.com/shopspring/decimal"
)

// DefaultCost applies to any country missing from the rate table.
var DefaultCost = decimal.RequireFromString("9.90")

// FallbackCountries is offered when the rate table is empty or unavailable.
var FallbackCountries = []string{
	"Österreich",
	"Deutschland",
	"Schweiz",
	"Italien",
	"Frankreich",
	"Niederlande",
	"Belgien",
}

// RateSource provides the current shipping rate table.
type RateSource interface {
	Rates(ctx context.Context) ([]model.ShippingRate, error)
}

// Resolve returns the shipping quote for country at the given subtotal.
// Countries are matched exactly.
func Resolve(rates []model.ShippingRate, country string, subtotal decimal.Decimal) model.ShippingQuote {
	for _, r := range rates {
		if r.Country != country {
			continue
		}
		free := r.FreeShippingThreshold.IsPositive() && subtotal.GreaterThanOrEqual(r.FreeShippingThreshold)
		cost := r.Rate
		if free {
			cost = decimal.Zero
		}
		return model.ShippingQuote{
			Country:       country,
			Cost:          cost,
			FreeThreshold: r.FreeShippingThreshold,
			IsFree:        free,
		}
	}
	return model.ShippingQuote{
		Country:       country,
		Cost:          DefaultCost,
		FreeThreshold: decimal.Zero,
		IsFree:        false,
	}
}

// Countries lists the destinations shoppers may choose, in table order.
func Countries(rates []model.ShippingRate) []string {
	if len(rates) == 0 {
		return append([]string(nil), FallbackCountries...)
	}
	seen := make(map[string]struct{}, len(rates))
	out := make([]string, 0, len(rates))
	for _, r := range rates {
		name := strings.TrimSpace(r.Country)
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	return out
}
