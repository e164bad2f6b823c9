// Package pricing resolves appointment types to their base price and looks
// up the read-only laboratory test catalog.
package pricing

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Default appointment prices.
var defaultPrices = map[string]decimal.Decimal{
	"consultation": decimal.RequireFromString("500.00"),
	"follow_up":    decimal.RequireFromString("300.00"),
	"check_up":     decimal.RequireFromString("400.00"),
	"vaccination":  decimal.RequireFromString("250.00"),
	"laboratory":   decimal.Zero,
}

// Resolver maps an appointment type to a price. It holds a static table and
// never performs I/O.
type Resolver struct {
	prices map[string]decimal.Decimal
}

func NewResolver() *Resolver {
	return WithPrices(nil)
}

// WithPrices returns a resolver over the default table extended or
// overridden by overrides.
func WithPrices(overrides map[string]decimal.Decimal) *Resolver {
	prices := make(map[string]decimal.Decimal, len(defaultPrices)+len(overrides))
	for k, v := range defaultPrices {
		prices[k] = v
	}
	for k, v := range overrides {
		prices[normalize(k)] = v
	}
	return &Resolver{prices: prices}
}

// Price returns the price for appointmentType. Unknown types cost zero;
// callers decide whether zero is acceptable.
func (r *Resolver) Price(appointmentType string) decimal.Decimal {
	if p, ok := r.prices[normalize(appointmentType)]; ok {
		return p
	}
	return decimal.Zero
}

// Known reports whether appointmentType is in the table.
func (r *Resolver) Known(appointmentType string) bool {
	_, ok := r.prices[normalize(appointmentType)]
	return ok
}

func normalize(t string) string {
	t = strings.ToLower(strings.TrimSpace(t))
	return strings.NewReplacer(" ", "_", "-", "_").Replace(t)
}
