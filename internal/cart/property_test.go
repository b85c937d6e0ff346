package cart

import (
	"fmt"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/shopspring/decimal"
)

// opSpec is a generated reducer step: 0 add, 1 update, 2 remove.
type opSpec struct {
	Op    int
	ID    int
	Price int64
	Qty   int
}

func genOp() gopter.Gen {
	return gopter.CombineGens(
		gen.IntRange(0, 2),
		gen.IntRange(0, 4),
		gen.Int64Range(0, 10000),
		gen.IntRange(-3, 20),
	).Map(func(vals []interface{}) opSpec {
		return opSpec{Op: vals[0].(int), ID: vals[1].(int), Price: vals[2].(int64), Qty: vals[3].(int)}
	})
}

func (o opSpec) action() Action {
	id := fmt.Sprintf("p%d", o.ID)
	switch o.Op {
	case 0:
		return AddItem(Item{ID: id, UnitPrice: decimal.New(o.Price, -2), Quantity: o.Qty})
	case 1:
		return UpdateQuantity(id, o.Qty)
	default:
		return RemoveItem(id)
	}
}

func TestReduce_Properties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("totals always equal a recomputation from items", prop.ForAll(
		func(ops []opSpec) bool {
			s := Empty()
			for _, op := range ops {
				s = Reduce(s, op.action())
				count, subtotal := Totals(s.Items)
				if s.TotalItems != count || !s.Subtotal.Equal(subtotal) {
					return false
				}
			}
			return true
		},
		gen.SliceOf(genOp()),
	))

	properties.Property("ids are unique and quantities stay at least one", prop.ForAll(
		func(ops []opSpec) bool {
			s := Empty()
			for _, op := range ops {
				s = Reduce(s, op.action())
				seen := map[string]bool{}
				for _, it := range s.Items {
					if seen[it.ID] || it.Quantity < 1 {
						return false
					}
					seen[it.ID] = true
				}
			}
			return true
		},
		gen.SliceOf(genOp()),
	))

	properties.Property("adding an existing id sums quantities", prop.ForAll(
		func(a, b int) bool {
			s := Reduce(Empty(), AddItem(Item{ID: "x", Quantity: a}))
			s = Reduce(s, AddItem(Item{ID: "x", Quantity: b}))
			return len(s.Items) == 1 && s.Items[0].Quantity == a+b
		},
		gen.IntRange(1, 1000),
		gen.IntRange(1, 1000),
	))

	properties.TestingRun(t)
}

func TestReduce_TotalsAfterEveryDispatch(t *testing.T) {
	s := Empty()
	steps := []Action{
		AddItem(item("a", 3, 2)),
		AddItem(item("b", 4, 1)),
		UpdateQuantity("a", 7),
		AddItem(item("a", 3, 1)),
		RemoveItem("b"),
		UpdateQuantity("a", -5),
		ClearCart(),
	}
	for _, a := range steps {
		s = Reduce(s, a)
		assertTotalsConsistent(t, s)
	}
}
