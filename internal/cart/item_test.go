package cart

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize_CatalogPayload(t *testing.T) {
	rec := Record{
		"_id":         "p1",
		"name":        "Bananas",
		"price":       49.5,
		"images":      []any{"img/bananas.png", "img/other.png"},
		"category":    map[string]any{"_id": "fruit", "name": "Fruit"},
		"subcategory": "tropical",
	}

	it := Normalize(rec)

	assert.Equal(t, "p1", it.ID)
	assert.Equal(t, "Bananas", it.Name)
	assert.True(t, decimal.RequireFromString("49.5").Equal(it.UnitPrice))
	assert.Equal(t, 1, it.Quantity, "missing quantity defaults to 1")
	assert.Equal(t, "img/bananas.png", it.ImageRef)
	assert.Equal(t, "fruit", it.CategoryRef)
	assert.Equal(t, "tropical", it.SubcategoryRef)
	assert.Equal(t, rec, it.Origin)
}

func TestNormalize_ServerCartPayload(t *testing.T) {
	var rec Record
	dec := json.NewDecoder(stringsReader(`{
		"cartItemId": "line-9",
		"productId": "p2",
		"product": {"name": "Milk", "price": "1.20"},
		"displayQuantity": 3,
		"quantity": 7
	}`))
	dec.UseNumber()
	require.NoError(t, dec.Decode(&rec))

	it := Normalize(rec)

	assert.Equal(t, "p2", it.ID)
	assert.Equal(t, "Milk", it.Name)
	assert.True(t, decimal.RequireFromString("1.2").Equal(it.UnitPrice))
	assert.Equal(t, 3, it.Quantity, "displayQuantity wins over quantity")
	assert.Equal(t, "line-9", it.OriginString("cartItemId"))
}

func TestNormalize_FieldPrecedence(t *testing.T) {
	tests := []struct {
		name string
		rec  Record
		want func(t *testing.T, it Item)
	}{
		{
			name: "id before productId",
			rec:  Record{"id": "a", "productId": "b"},
			want: func(t *testing.T, it Item) { assert.Equal(t, "a", it.ID) },
		},
		{
			name: "nested product id",
			rec:  Record{"product": map[string]any{"_id": "nested"}},
			want: func(t *testing.T, it Item) { assert.Equal(t, "nested", it.ID) },
		},
		{
			name: "quantity falls back to generic field",
			rec:  Record{"id": "a", "quantity": 4},
			want: func(t *testing.T, it Item) { assert.Equal(t, 4, it.Quantity) },
		},
		{
			name: "unitPrice before price",
			rec:  Record{"id": "a", "unitPrice": 2, "price": 9},
			want: func(t *testing.T, it Item) { assert.True(t, decimal.NewFromInt(2).Equal(it.UnitPrice)) },
		},
		{
			name: "numeric id",
			rec:  Record{"id": json.Number("42")},
			want: func(t *testing.T, it Item) { assert.Equal(t, "42", it.ID) },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.want(t, Normalize(tt.rec))
		})
	}
}

func TestNormalize_UnresolvableFieldsDefault(t *testing.T) {
	tests := []struct {
		name string
		rec  Record
	}{
		{"nil record", nil},
		{"empty record", Record{}},
		{"garbage types", Record{"id": []int{1}, "price": "abc", "quantity": "many", "name": 3.5}},
		{"negative values", Record{"price": -10, "quantity": -2}},
		{"nan float64", Record{"price": math.NaN(), "quantity": math.NaN()}},
		{"infinite float64", Record{"unitPrice": math.Inf(1), "qty": math.Inf(-1)}},
		{"non-finite float32", Record{"salePrice": float32(math.Inf(-1)), "quantity": float32(math.NaN())}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var it Item
			require.NotPanics(t, func() { it = Normalize(tt.rec) })
			assert.Equal(t, "", it.ID)
			assert.True(t, it.UnitPrice.IsZero())
			assert.Equal(t, 1, it.Quantity)
		})
	}
}

func TestNormalize_NonFiniteFallsThrough(t *testing.T) {
	it := Normalize(Record{"id": "p1", "unitPrice": math.NaN(), "price": 2.5, "displayQuantity": math.Inf(1), "quantity": 3})

	assert.True(t, decimal.NewFromFloat(2.5).Equal(it.UnitPrice))
	assert.Equal(t, 3, it.Quantity)
}

func TestNormalize_Idempotent(t *testing.T) {
	first := Normalize(Record{
		"productId":       "p3",
		"productName":     "Eggs",
		"sellingPrice":    "3.99",
		"displayQuantity": 12,
		"imageUrl":        "eggs.jpg",
		"categoryId":      "dairy",
	})

	second := Normalize(first.Record())
	third := Normalize(second.Record())

	assert.Equal(t, first, second)
	assert.Equal(t, second, third)
}

func TestNormalizeItem_Clamps(t *testing.T) {
	it := NormalizeItem(Item{ID: "x", UnitPrice: decimal.NewFromInt(-1), Quantity: 0})
	assert.True(t, it.UnitPrice.IsZero())
	assert.Equal(t, 1, it.Quantity)
}

func TestTotals(t *testing.T) {
	items := []Item{
		{ID: "a", UnitPrice: decimal.RequireFromString("1.25"), Quantity: 4},
		{ID: "b", UnitPrice: decimal.NewFromInt(100), Quantity: 2},
	}

	count, subtotal := Totals(items)

	assert.Equal(t, 6, count)
	assert.True(t, decimal.NewFromInt(205).Equal(subtotal), "got %s", subtotal)
}

func TestTotals_Empty(t *testing.T) {
	count, subtotal := Totals(nil)
	assert.Equal(t, 0, count)
	assert.True(t, subtotal.IsZero())
}
