package pricing

import (
	"math/rand"
	"testing"

	"github.com/shopspring/decimal"
	catalogdomain "github.com/smallbiznis/tabledesk/internal/catalog/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func burger() catalogdomain.Product {
	return catalogdomain.Product{
		ID:     1,
		Name:   "Burger",
		Price:  d("8.00"),
		Active: true,
		Extras: []catalogdomain.ModifierOption{
			{Label: "Bacon", Price: d("1.50")},
			{Label: "Cheese", Price: d("0.90")},
		},
		Excludes: []catalogdomain.ModifierOption{
			{Label: "Onion", Price: d("0")},
			{Label: "Bun", Price: d("0.30")},
		},
	}
}

func TestPriceLineAppliesServerSideDeltas(t *testing.T) {
	price, err := PriceLine(burger(), 2, []Selection{{Label: "bacon", Kind: ModifierExtra}})
	require.NoError(t, err)
	assert.True(t, price.UnitPrice.Equal(d("9.50")), price.UnitPrice.String())
	assert.True(t, price.LineTotal.Equal(d("19.00")), price.LineTotal.String())
	require.Len(t, price.Modifiers, 1)
	assert.Equal(t, "Bacon", price.Modifiers[0].Label)
}

func TestPriceLineRemoveMayCarryPrice(t *testing.T) {
	price, err := PriceLine(burger(), 1, []Selection{
		{Label: "Onion", Kind: ModifierRemove},
		{Label: "Bun", Kind: ModifierRemove},
	})
	require.NoError(t, err)
	assert.True(t, price.UnitPrice.Equal(d("8.30")))
}

func TestPriceLineErrors(t *testing.T) {
	inactive := burger()
	inactive.Active = false

	cases := []struct {
		name    string
		product catalogdomain.Product
		qty     int
		sel     []Selection
		want    error
	}{
		{"inactive", inactive, 1, nil, ErrInvalidProduct},
		{"zero_qty", burger(), 0, nil, ErrInvalidQuantity},
		{"negative_qty", burger(), -3, nil, ErrInvalidQuantity},
		{"unknown_label", burger(), 1, []Selection{{Label: "Truffle", Kind: ModifierExtra}}, ErrUnknownModifier},
		{"wrong_kind_list", burger(), 1, []Selection{{Label: "Onion", Kind: ModifierExtra}}, ErrUnknownModifier},
		{"bad_kind", burger(), 1, []Selection{{Label: "Bacon", Kind: "double"}}, ErrInvalidModifierKind},
		{"duplicate", burger(), 1, []Selection{{Label: "Bacon", Kind: ModifierExtra}, {Label: "BACON ", Kind: ModifierExtra}}, ErrDuplicateModifier},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := PriceLine(tc.product, tc.qty, tc.sel)
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestPriceLineNoDriftOverManyLines(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	product := burger()
	allSelections := []Selection{
		{Label: "Bacon", Kind: ModifierExtra},
		{Label: "Cheese", Kind: ModifierExtra},
		{Label: "Bun", Kind: ModifierRemove},
	}

	var lines []LinePrice
	referenceCents := int64(0)
	for i := 0; i < 10000; i++ {
		qty := rng.Intn(9) + 1
		var sel []Selection
		cents := int64(800)
		for j, s := range allSelections {
			if rng.Intn(2) == 0 {
				continue
			}
			sel = append(sel, s)
			cents += []int64{150, 90, 30}[j]
		}
		price, err := PriceLine(product, qty, sel)
		require.NoError(t, err)
		lines = append(lines, price)
		referenceCents += cents * int64(qty)
	}

	assert.True(t, OrderTotal(lines).Equal(decimal.New(referenceCents, -2)))
}

func TestSessionTotals(t *testing.T) {
	empty := SessionTotals(nil, nil)
	assert.True(t, empty.Remaining.IsZero())
	assert.Equal(t, 0, empty.OrderCount)

	totals := SessionTotals([]OrderAmount{
		{Total: d("30.00"), ItemCount: 2},
		{Total: d("20.00"), ItemCount: 1},
		{Total: d("99.00"), ItemCount: 5, Cancelled: true},
	}, []decimal.Decimal{d("10.00"), d("15.50")})

	assert.True(t, totals.Total.Equal(d("50.00")))
	assert.True(t, totals.PaidTotal.Equal(d("25.50")))
	assert.True(t, totals.Remaining.Equal(d("24.50")))
	assert.Equal(t, 3, totals.ItemCount)
	assert.Equal(t, 2, totals.OrderCount)

	over := SessionTotals([]OrderAmount{{Total: d("10.00")}}, []decimal.Decimal{d("10.005")})
	assert.True(t, over.Remaining.IsZero())
}

func TestBalanceHelpers(t *testing.T) {
	assert.True(t, IsSettled(d("0.01")))
	assert.False(t, IsSettled(d("0.02")))
	assert.True(t, WithinBalance(d("10.00"), d("10.00")))
	assert.True(t, WithinBalance(d("10.00"), d("9.995")))
	assert.False(t, WithinBalance(d("10.01"), d("10.00")))
	assert.True(t, ValidAmount(d("0.01")))
	assert.False(t, ValidAmount(d("0")))
	assert.False(t, ValidAmount(d("1.005")))
}

func TestEqualSplit(t *testing.T) {
	shares := EqualSplit(d("10.00"), 3)
	require.Len(t, shares, 3)
	assert.True(t, shares[0].Equal(d("3.33")))
	assert.True(t, shares[2].Equal(d("3.34")))

	sum := decimal.Zero
	for _, s := range shares {
		sum = sum.Add(s)
	}
	assert.True(t, sum.Equal(d("10.00")))

	assert.Nil(t, EqualSplit(d("10.00"), 0))
	assert.Nil(t, EqualSplit(decimal.Zero, 2))
}
