package billing

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestLineBreakdown(t *testing.T) {
	line := LineBreakdown(LineItem{
		ItemType:        ItemTreatment,
		Quantity:        2,
		UnitPrice:       d("100"),
		DiscountPercent: d("10"),
		TaxRate:         d("19"),
	})

	assert.True(t, d("200").Equal(line.Gross))
	assert.True(t, d("20").Equal(line.Discount))
	assert.True(t, d("180").Equal(line.AfterDiscount))
	assert.True(t, d("34.2").Equal(line.Tax))
	assert.True(t, d("214.2").Equal(line.Total), "got %s", line.Total)
	assert.Equal(t, "214.20", Display(line.Total))
}

func TestComputeTotals(t *testing.T) {
	items := []LineItem{
		{ItemType: ItemTreatment, Description: "Crown", Quantity: 1, UnitPrice: d("850"), DiscountPercent: d("5"), TaxRate: d("0")},
		{ItemType: ItemProduct, Description: "Floss", Quantity: 3, UnitPrice: d("4.99"), TaxRate: d("19")},
		{ItemType: ItemService, Description: "X-ray", Quantity: 1, UnitPrice: d("45"), DiscountPercent: d("100"), TaxRate: d("19")},
	}

	totals := ComputeTotals(items)
	assert.True(t, d("909.97").Equal(totals.Subtotal), "subtotal %s", totals.Subtotal)
	assert.True(t, d("87.5").Equal(totals.DiscountTotal), "discount %s", totals.DiscountTotal)
	assert.True(t, d("2.8443").Equal(totals.TaxTotal), "tax %s", totals.TaxTotal)
	assert.True(t, d("825.3143").Equal(totals.Total), "total %s", totals.Total)
	assert.Equal(t, "825.31", Display(totals.Total))
}

func TestComputeTotalsIsIdempotent(t *testing.T) {
	items := []LineItem{
		{ItemType: ItemTreatment, Description: "Filling", Quantity: 2, UnitPrice: d("120.10"), DiscountPercent: d("12.5"), TaxRate: d("7.7")},
		{ItemType: ItemProduct, Description: "Mouthwash", Quantity: 1, UnitPrice: d("9.95"), TaxRate: d("7.7")},
	}

	itemsStep := ComputeTotals(items)
	previewStep := ComputeTotals(items)
	assert.Equal(t, itemsStep, previewStep)

	sum := decimal.Zero
	for _, it := range items {
		sum = sum.Add(LineBreakdown(it).Total)
	}
	assert.True(t, sum.Equal(itemsStep.Total))
}

func TestComputeTotalsNoDrift(t *testing.T) {
	items := make([]LineItem, 1000)
	for i := range items {
		items[i] = LineItem{ItemType: ItemProduct, Description: "Glove", Quantity: 1, UnitPrice: d("0.1")}
	}
	assert.True(t, d("100").Equal(ComputeTotals(items).Total))
}

func TestValidateItems(t *testing.T) {
	err := ValidateItems(nil)
	require.Error(t, err)
	assert.True(t, IsValidation(err))

	err = ValidateItems([]LineItem{
		{ItemType: "gift", Description: "", Quantity: 0, UnitPrice: d("-1"), DiscountPercent: d("101"), TaxRate: d("-3")},
	})
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Len(t, ve.Issues, 6)

	assert.NoError(t, ValidateItems([]LineItem{
		{ItemType: ItemService, Description: "Consultation", Quantity: 1, UnitPrice: d("0"), DiscountPercent: d("0"), TaxRate: d("100")},
	}))
}
