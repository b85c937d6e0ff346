package cart

import "github.com/shopspring/decimal"

// Totals returns the item count (sum of quantities) and the subtotal
// (sum of unit price × quantity) of items.
func Totals(items []Item) (totalItems int, subtotal decimal.Decimal) {
	subtotal = decimal.Zero
	for _, it := range items {
		totalItems += it.Quantity
		subtotal = subtotal.Add(it.LineTotal())
	}
	return totalItems, subtotal
}
