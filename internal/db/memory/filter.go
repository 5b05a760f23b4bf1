package memory

import (
	"github.com/RoaringBitmap/roaring/v2"

	"github.com/kailas-cloud/beansack/internal/domain/search/filter"
)

// match returns the documents satisfying every condition of expr.
func (c *collection) match(expr filter.Expression) *roaring.Bitmap {
	out := c.all.Clone()
	for _, cond := range expr.Conditions() {
		if out.IsEmpty() {
			break
		}
		out.And(c.matchOne(cond, out))
	}
	return out
}

func (c *collection) matchOne(cond filter.Condition, within *roaring.Bitmap) *roaring.Bitmap {
	switch {
	case cond.Field() == filter.IDField:
		bm := roaring.New()
		for _, id := range cond.Values() {
			if ord, ok := c.ordinals[id]; ok {
				bm.Add(ord)
			}
		}
		return bm

	case cond.IsNumeric():
		bm := roaring.New()
		it := within.Iterator()
		for it.HasNext() {
			ord := it.Next()
			if v, ok := c.docs[ord].Number(cond.Field()); ok && cond.MatchNumber(v) {
				bm.Add(ord)
			}
		}
		return bm

	default:
		union := roaring.New()
		for _, v := range cond.Values() {
			if bm, ok := c.tags[cond.Field()][v]; ok {
				union.Or(bm)
			}
		}
		if cond.Op() == filter.OpNe {
			return roaring.AndNot(within, union)
		}
		return union
	}
}
