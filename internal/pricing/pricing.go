// Package pricing computes line, order and session amounts. It is pure: no
// store access, no clock, and no binary floating point.
package pricing

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"
	catalogdomain "github.com/smallbiznis/tabledesk/internal/catalog/domain"
)

// Epsilon absorbs rounding when deciding whether a balance is settled.
var Epsilon = decimal.New(1, -2)

type ModifierKind string

const (
	ModifierExtra  ModifierKind = "extra"
	ModifierRemove ModifierKind = "remove"
)

var (
	ErrInvalidProduct      = errors.New("invalid_product")
	ErrInvalidQuantity     = errors.New("invalid_quantity")
	ErrUnknownModifier     = errors.New("unknown_modifier")
	ErrDuplicateModifier   = errors.New("duplicate_modifier")
	ErrInvalidModifierKind = errors.New("invalid_modifier_kind")
)

// Selection is a modifier chosen by the patron. Any price the client sent is
// ignored; the product definition is the pricing authority.
type Selection struct {
	Label string
	Kind  ModifierKind
}

// PricedModifier is a selection resolved against the product definition.
type PricedModifier struct {
	Label string
	Kind  ModifierKind
	Price decimal.Decimal
}

type LinePrice struct {
	UnitPrice decimal.Decimal
	LineTotal decimal.Decimal
	Modifiers []PricedModifier
}

// PriceLine returns unitPrice = base + sum(deltas) and lineTotal = unitPrice * quantity.
func PriceLine(product catalogdomain.Product, quantity int, selections []Selection) (LinePrice, error) {
	if !product.Active || product.ID == 0 || product.Price.IsNegative() {
		return LinePrice{}, ErrInvalidProduct
	}
	if quantity < 1 {
		return LinePrice{}, ErrInvalidQuantity
	}

	seen := make(map[string]struct{}, len(selections))
	modifiers := make([]PricedModifier, 0, len(selections))
	unit := product.Price
	for _, sel := range selections {
		label := strings.TrimSpace(sel.Label)
		if label == "" {
			return LinePrice{}, ErrUnknownModifier
		}

		var (
			opt catalogdomain.ModifierOption
			ok  bool
		)
		switch sel.Kind {
		case ModifierExtra:
			opt, ok = product.FindExtra(label)
		case ModifierRemove:
			opt, ok = product.FindExclude(label)
		default:
			return LinePrice{}, ErrInvalidModifierKind
		}
		if !ok {
			return LinePrice{}, ErrUnknownModifier
		}

		key := string(sel.Kind) + "\x00" + strings.ToLower(opt.Label)
		if _, dup := seen[key]; dup {
			return LinePrice{}, ErrDuplicateModifier
		}
		seen[key] = struct{}{}

		delta := opt.Price
		if delta.IsNegative() {
			delta = decimal.Zero
		}
		unit = unit.Add(delta)
		modifiers = append(modifiers, PricedModifier{Label: opt.Label, Kind: sel.Kind, Price: delta})
	}

	return LinePrice{
		UnitPrice: unit,
		LineTotal: unit.Mul(decimal.NewFromInt(int64(quantity))),
		Modifiers: modifiers,
	}, nil
}

// OrderTotal sums line totals.
func OrderTotal(lines []LinePrice) decimal.Decimal {
	total := decimal.Zero
	for _, line := range lines {
		total = total.Add(line.LineTotal)
	}
	return total
}

// Remaining is max(0, total - paid).
func Remaining(total, paid decimal.Decimal) decimal.Decimal {
	remaining := total.Sub(paid)
	if remaining.IsNegative() {
		return decimal.Zero
	}
	return remaining
}

// IsSettled reports whether remaining is within Epsilon of zero.
func IsSettled(remaining decimal.Decimal) bool {
	return remaining.LessThanOrEqual(Epsilon)
}

// WithinBalance reports whether amount may be accepted against remaining.
// The tolerance is exclusive: with cent amounts, anything a full cent over is
// an overpayment.
func WithinBalance(amount, remaining decimal.Decimal) bool {
	return amount.LessThan(remaining.Add(Epsilon))
}

// ValidAmount accepts strictly positive amounts with at most two decimals.
func ValidAmount(amount decimal.Decimal) bool {
	return amount.IsPositive() && amount.Equal(amount.Round(2))
}
