package cart

import (
	"io"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
)

func stringsReader(s string) io.Reader {
	return strings.NewReader(s)
}

func item(id string, price int64, qty int) Item {
	return Item{ID: id, Name: id, UnitPrice: decimal.NewFromInt(price), Quantity: qty}
}

// assertTotalsConsistent fails if the derived fields drifted from Items.
func assertTotalsConsistent(t *testing.T, s State) {
	t.Helper()
	count, subtotal := Totals(s.Items)
	if s.TotalItems != count {
		t.Fatalf("TotalItems = %d, want %d", s.TotalItems, count)
	}
	if !s.Subtotal.Equal(subtotal) {
		t.Fatalf("Subtotal = %s, want %s", s.Subtotal, subtotal)
	}
}
