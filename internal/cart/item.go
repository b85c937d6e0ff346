package cart

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Record is an item record as received from its origin (catalog payload,
// server-cart payload, persisted snapshot). Field names differ by origin.
type Record map[string]any

// Item is the canonical cart line.
type Item struct {
	ID             string
	Name           string
	UnitPrice      decimal.Decimal
	Quantity       int
	ImageRef       string
	CategoryRef    string
	SubcategoryRef string

	// Origin is the record the item was normalized from. It is only read to
	// address the remote service by its own identifiers.
	Origin Record
}

// Field precedence lists. Earlier names win.
var (
	idFields          = []string{"id", "productId", "product_id", "_id", "itemId"}
	nameFields        = []string{"name", "productName", "title"}
	priceFields       = []string{"unitPrice", "price", "salePrice", "sellingPrice"}
	quantityFields    = []string{"displayQuantity", "quantity", "qty"}
	imageFields       = []string{"imageRef", "image", "imageUrl"}
	categoryFields    = []string{"categoryRef", "category", "categoryId"}
	subcategoryFields = []string{"subcategoryRef", "subcategory", "subcategoryId"}
)

const originField = "originPayload"

// Normalize maps a record of any origin onto an Item. It never fails:
// missing or unusable fields fall back to defaults (quantity 1, price 0,
// empty strings). Normalizing the Record() of an Item returns that Item.
func Normalize(rec Record) Item {
	product, _ := asMap(rec["product"])

	it := Item{
		ID:             firstString(rec, idFields...),
		Name:           firstString(rec, nameFields...),
		ImageRef:       firstString(rec, imageFields...),
		CategoryRef:    firstRef(rec, categoryFields...),
		SubcategoryRef: firstRef(rec, subcategoryFields...),
	}
	if it.ID == "" && product != nil {
		it.ID = firstString(product, "id", "_id")
	}
	if it.Name == "" && product != nil {
		it.Name = firstString(product, nameFields...)
	}
	if it.ImageRef == "" {
		it.ImageRef = firstImage(rec)
	}

	price, ok := firstDecimal(rec, priceFields...)
	if !ok && product != nil {
		price, _ = firstDecimal(product, priceFields...)
	}
	it.UnitPrice = clampPrice(price)

	qty, _ := firstInt(rec, quantityFields...)
	it.Quantity = clampQuantity(qty)

	if v, ok := rec[originField]; ok {
		it.Origin, _ = asMap(v)
	} else {
		it.Origin = rec
	}
	return it
}

// NormalizeItem applies the normalizer's clamps to an already typed item.
func NormalizeItem(it Item) Item {
	it.UnitPrice = clampPrice(it.UnitPrice)
	it.Quantity = clampQuantity(it.Quantity)
	return it
}

// Record renders the item in canonical field names, carrying the origin
// payload along so that Normalize(it.Record()) == it.
func (it Item) Record() Record {
	return Record{
		"id":             it.ID,
		"name":           it.Name,
		"unitPrice":      it.UnitPrice,
		"quantity":       it.Quantity,
		"imageRef":       it.ImageRef,
		"categoryRef":    it.CategoryRef,
		"subcategoryRef": it.SubcategoryRef,
		originField:      it.Origin,
	}
}

// LineTotal is UnitPrice × Quantity.
func (it Item) LineTotal() decimal.Decimal {
	return it.UnitPrice.Mul(decimal.NewFromInt(int64(it.Quantity)))
}

// OriginString returns the first non-empty string among the origin fields.
func (it Item) OriginString(fields ...string) string {
	if it.Origin == nil {
		return ""
	}
	return firstString(it.Origin, fields...)
}

func clampPrice(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}

func clampQuantity(q int) int {
	if q < 1 {
		return 1
	}
	return q
}

func asMap(v any) (Record, bool) {
	switch m := v.(type) {
	case Record:
		return m, true
	case map[string]any:
		return Record(m), true
	}
	return nil, false
}

func firstString(rec Record, fields ...string) string {
	for _, f := range fields {
		if s, ok := stringValue(rec[f]); ok && s != "" {
			return s
		}
	}
	return ""
}

// firstRef accepts either a plain id string or a nested {_id|id} object.
func firstRef(rec Record, fields ...string) string {
	for _, f := range fields {
		v := rec[f]
		if s, ok := stringValue(v); ok && s != "" {
			return s
		}
		if m, ok := asMap(v); ok {
			if s := firstString(m, "_id", "id"); s != "" {
				return s
			}
		}
	}
	return ""
}

func firstImage(rec Record) string {
	switch imgs := rec["images"].(type) {
	case []string:
		if len(imgs) > 0 {
			return imgs[0]
		}
	case []any:
		if len(imgs) > 0 {
			s, _ := stringValue(imgs[0])
			return s
		}
	}
	return ""
}

func stringValue(v any) (string, bool) {
	switch s := v.(type) {
	case string:
		return strings.TrimSpace(s), true
	case json.Number:
		return s.String(), true
	case int:
		return strconv.Itoa(s), true
	case int64:
		return strconv.FormatInt(s, 10), true
	}
	return "", false
}

func firstDecimal(rec Record, fields ...string) (decimal.Decimal, bool) {
	for _, f := range fields {
		if d, ok := decimalValue(rec[f]); ok {
			return d, true
		}
	}
	return decimal.Zero, false
}

func firstInt(rec Record, fields ...string) (int, bool) {
	for _, f := range fields {
		if d, ok := decimalValue(rec[f]); ok {
			return int(d.IntPart()), true
		}
	}
	return 0, false
}

func decimalValue(v any) (decimal.Decimal, bool) {
	switch n := v.(type) {
	case decimal.Decimal:
		return n, true
	case int:
		return decimal.NewFromInt(int64(n)), true
	case int32:
		return decimal.NewFromInt32(n), true
	case int64:
		return decimal.NewFromInt(n), true
	case float32:
		if !finite(float64(n)) {
			return decimal.Zero, false
		}
		return decimal.NewFromFloat32(n), true
	case float64:
		if !finite(n) {
			return decimal.Zero, false
		}
		return decimal.NewFromFloat(n), true
	case json.Number:
		d, err := decimal.NewFromString(n.String())
		return d, err == nil
	case string:
		d, err := decimal.NewFromString(strings.TrimSpace(n))
		return d, err == nil
	}
	return decimal.Zero, false
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
