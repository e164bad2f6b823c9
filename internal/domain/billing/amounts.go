package billing

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/clinicdesk/clinicdesk/internal/platform/apperror"
)

var hundred = decimal.NewFromInt(100)

// normalizeItems validates inputs and collapses repeats of the same
// (type, name) pair, keeping the first.
func normalizeItems(in []ItemInput) ([]ItemInput, error) {
	out := make([]ItemInput, 0, len(in))
	seen := make(map[string]bool, len(in))
	for i, it := range in {
		field := fmt.Sprintf("items[%d]", i)
		it.ItemName = strings.TrimSpace(it.ItemName)
		if !it.ItemType.Valid() {
			return nil, apperror.Validation(field+".item_type", fmt.Sprintf("unknown item type %q", it.ItemType))
		}
		if it.ItemName == "" {
			return nil, apperror.Validation(field+".item_name", "is required")
		}
		if it.Quantity == 0 {
			it.Quantity = 1
		}
		if it.Quantity < 0 {
			return nil, apperror.Validation(field+".quantity", "must be positive")
		}
		if it.UnitPrice.IsNegative() {
			return nil, apperror.Validation(field+".unit_price", "must not be negative")
		}
		key := string(it.ItemType) + "\x00" + it.ItemName
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, it)
	}
	return out, nil
}

func lineTotal(it ItemInput) decimal.Decimal {
	return it.UnitPrice.Mul(decimal.NewFromInt(int64(it.Quantity)))
}

func subtotal(items []ItemInput) decimal.Decimal {
	sum := decimal.Zero
	for _, it := range items {
		sum = sum.Add(lineTotal(it))
	}
	return sum
}

// discountAmount resolves d against the subtotal the bill opens with.
func discountAmount(sub decimal.Decimal, d Discount) (decimal.Decimal, error) {
	if d.Percentage != nil {
		p := *d.Percentage
		if p.IsNegative() || p.GreaterThan(hundred) {
			return decimal.Zero, apperror.Validation("discount.percentage", "must be between 0 and 100")
		}
		return sub.Mul(p).Div(hundred).Round(2), nil
	}
	if d.Amount.IsNegative() {
		return decimal.Zero, apperror.Validation("discount.amount", "must not be negative")
	}
	return d.Amount.Round(2), nil
}

// totalAfterDiscount never goes below zero.
func totalAfterDiscount(sub, discount decimal.Decimal) decimal.Decimal {
	t := sub.Sub(discount)
	if t.IsNegative() {
		return decimal.Zero
	}
	return t
}
