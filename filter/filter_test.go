package filter

import (
	"testing"

	"github.com/RoaringBitmap/roaring"
	"github.com/stretchr/testify/require"
)

func TestNoneMatchesEverything(t *testing.T) {
	require.True(t, None.Match(nil))
	require.True(t, None.Match([]uint64{1, 2, 3}))
}

func TestBuilderSameFieldOrs(t *testing.T) {
	b := NewBuilder()
	b.AddMatch("PRIORITY", "3", 100)
	b.AddMatch("PRIORITY", "4", 200)

	expr := b.Build()
	require.True(t, expr.Match([]uint64{100}))
	require.True(t, expr.Match([]uint64{200}))
	require.False(t, expr.Match([]uint64{300}))
}

func TestBuilderDifferentFieldsAnd(t *testing.T) {
	b := NewBuilder()
	b.AddMatch("PRIORITY", "3", 100)
	b.AddMatch("_SYSTEMD_UNIT", "sshd.service", 200)

	expr := b.Build()
	require.True(t, expr.Match([]uint64{100, 200}))
	require.False(t, expr.Match([]uint64{100}))
	require.False(t, expr.Match([]uint64{200}))
}

func TestBuilderConjunctionGroups(t *testing.T) {
	b := NewBuilder()
	b.AddMatch("PRIORITY", "3", 100)
	b.AddConjunction()
	b.AddMatch("PRIORITY", "6", 200)

	expr := b.Build()
	require.True(t, expr.Match([]uint64{100}))
	require.True(t, expr.Match([]uint64{200}))
	require.False(t, expr.Match([]uint64{999}))
}

func TestBuilderReset(t *testing.T) {
	b := NewBuilder()
	b.AddMatch("PRIORITY", "3", 100)
	b.Reset()

	expr := b.Build()
	require.Equal(t, None, expr)
}

type fakeResolver struct {
	values map[string]*roaring.Bitmap
	fields map[string]*roaring.Bitmap
	all    *roaring.Bitmap
}

func (f fakeResolver) ValueBitmap(field, value string) *roaring.Bitmap {
	if b, ok := f.values[field+"="+value]; ok {
		return b
	}
	return roaring.New()
}

func (f fakeResolver) FieldBitmap(field string) *roaring.Bitmap {
	if b, ok := f.fields[field]; ok {
		return b
	}
	return roaring.New()
}

func (f fakeResolver) Universe() *roaring.Bitmap { return f.all }

func TestBitmapAndOr(t *testing.T) {
	r := fakeResolver{
		values: map[string]*roaring.Bitmap{
			"PRIORITY=3":              roaring.BitmapOf(1, 2, 3),
			"_SYSTEMD_UNIT=sshd.service": roaring.BitmapOf(2, 3, 4),
		},
		all: roaring.BitmapOf(1, 2, 3, 4, 5),
	}

	and := And{Terms: []BitmapExpr{
		MatchFieldValuePair{Field: "PRIORITY", Value: "3"},
		MatchFieldValuePair{Field: "_SYSTEMD_UNIT", Value: "sshd.service"},
	}}
	require.Equal(t, roaring.BitmapOf(2, 3).ToArray(), and.Resolve(r).ToArray())

	or := Or{Terms: []BitmapExpr{
		MatchFieldValuePair{Field: "PRIORITY", Value: "3"},
		MatchFieldValuePair{Field: "_SYSTEMD_UNIT", Value: "sshd.service"},
	}}
	require.Equal(t, roaring.BitmapOf(1, 2, 3, 4).ToArray(), or.Resolve(r).ToArray())

	require.Equal(t, r.all.ToArray(), NoneFilter.Resolve(r).ToArray())
}
