package filter

import "github.com/RoaringBitmap/roaring"

// Resolver is implemented by a FileIndex: it maps a field or field=value
// facet onto the set of entry indices carrying it.
type Resolver interface {
	ValueBitmap(field, value string) *roaring.Bitmap
	FieldBitmap(field string) *roaring.Bitmap
	Universe() *roaring.Bitmap
}

// BitmapExpr is a facet filter resolved entirely against a FileIndex's
// roaring bitmaps, without touching the mapped file.
type BitmapExpr interface {
	Resolve(r Resolver) *roaring.Bitmap
}

type noneBitmapExpr struct{}

func (noneBitmapExpr) Resolve(r Resolver) *roaring.Bitmap { return r.Universe().Clone() }

// NoneFilter matches every indexed entry.
var NoneFilter BitmapExpr = noneBitmapExpr{}

// MatchFieldValuePair matches entries carrying field=value.
type MatchFieldValuePair struct {
	Field string
	Value string
}

func (m MatchFieldValuePair) Resolve(r Resolver) *roaring.Bitmap {
	return r.ValueBitmap(m.Field, m.Value).Clone()
}

// MatchFieldName matches entries carrying field, regardless of value.
type MatchFieldName struct {
	Field string
}

func (m MatchFieldName) Resolve(r Resolver) *roaring.Bitmap {
	return r.FieldBitmap(m.Field).Clone()
}

// And is the bitmap intersection of its terms.
type And struct{ Terms []BitmapExpr }

func (a And) Resolve(r Resolver) *roaring.Bitmap {
	if len(a.Terms) == 0 {
		return r.Universe().Clone()
	}
	result := a.Terms[0].Resolve(r)
	for _, t := range a.Terms[1:] {
		result = roaring.And(result, t.Resolve(r))
	}
	return result
}

// Or is the bitmap union of its terms.
type Or struct{ Terms []BitmapExpr }

func (o Or) Resolve(r Resolver) *roaring.Bitmap {
	if len(o.Terms) == 0 {
		return roaring.New()
	}
	result := o.Terms[0].Resolve(r)
	for _, t := range o.Terms[1:] {
		result = roaring.Or(result, t.Resolve(r))
	}
	return result
}
