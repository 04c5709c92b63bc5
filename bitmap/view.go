package bitmap

import "github.com/RoaringBitmap/roaring"

// View adapts a roaring.Bitmap of live leaf indices to segment.Bitmap,
// the minimal read surface segment proof reconstruction needs.
type View struct{ bm *roaring.Bitmap }

// NewView wraps bm for use as a segment.Bitmap.
func NewView(bm *roaring.Bitmap) View { return View{bm: bm} }

// Contains reports whether leafIdx is present in the wrapped bitmap.
func (v View) Contains(leafIdx uint64) bool { return v.bm.Contains(uint32(leafIdx)) }

// RangeCardinality counts members of the wrapped bitmap in [lo, hi).
func (v View) RangeCardinality(lo, hi uint64) uint64 {
	if hi <= lo {
		return 0
	}
	return v.bm.RangeCardinality(lo, hi)
}
