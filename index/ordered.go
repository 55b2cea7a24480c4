package index

import (
	"bufio"
	"encoding/binary"
	"math"
	"sort"
	"strings"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/hupe1980/docgo/document"
)

// sortKey is the total order used by the ordered index. Values of different
// kinds never compare against each other in queries, so rank only partitions
// the key space; within a rank, bools and numbers order numerically and
// strings order case-folded.
type sortKey struct {
	rank uint8 // 0 bool, 1 number, 2 string
	num  float64
	str  string
}

func sortKeyOf(v any) (sortKey, bool) {
	if b, ok := v.(bool); ok {
		n := 0.0
		if b {
			n = 1.0
		}
		return sortKey{rank: 0, num: n}, true
	}
	if f, ok := document.AsFloat(v); ok {
		return sortKey{rank: 1, num: f}, true
	}
	if s, ok := document.AsString(v); ok {
		return sortKey{rank: 2, str: strings.ToLower(s)}, true
	}
	return sortKey{}, false
}

func (k sortKey) less(other sortKey) bool {
	if k.rank != other.rank {
		return k.rank < other.rank
	}
	if k.rank == 2 {
		return k.str < other.str
	}
	return k.num < other.num
}

func (k sortKey) equal(other sortKey) bool {
	return k.rank == other.rank && k.num == other.num && k.str == other.str
}

type orderedEntry struct {
	key      sortKey
	postings *roaring.Bitmap
}

// orderedIndex keeps postings under sorted keys, enabling range lookups via
// binary search.
type orderedIndex struct {
	entries []orderedEntry
}

func newOrderedIndex() *orderedIndex {
	return &orderedIndex{}
}

// search returns the position of the first entry not less than key.
func (x *orderedIndex) search(key sortKey) int {
	return sort.Search(len(x.entries), func(i int) bool {
		return !x.entries[i].key.less(key)
	})
}

func (x *orderedIndex) add(ord uint32, v any) {
	key, ok := sortKeyOf(v)
	if !ok {
		return
	}
	i := x.search(key)
	if i < len(x.entries) && x.entries[i].key.equal(key) {
		x.entries[i].postings.Add(ord)
		return
	}
	x.entries = append(x.entries, orderedEntry{})
	copy(x.entries[i+1:], x.entries[i:])
	bm := roaring.New()
	bm.Add(ord)
	x.entries[i] = orderedEntry{key: key, postings: bm}
}

func (x *orderedIndex) remove(ord uint32, v any) {
	key, ok := sortKeyOf(v)
	if !ok {
		return
	}
	i := x.search(key)
	if i >= len(x.entries) || !x.entries[i].key.equal(key) {
		return
	}
	x.entries[i].postings.Remove(ord)
	if x.entries[i].postings.IsEmpty() {
		x.entries = append(x.entries[:i], x.entries[i+1:]...)
	}
}

// equal returns the postings for one scalar, or nil.
func (x *orderedIndex) equal(v any) *roaring.Bitmap {
	key, ok := sortKeyOf(v)
	if !ok {
		return nil
	}
	i := x.search(key)
	if i < len(x.entries) && x.entries[i].key.equal(key) {
		return x.entries[i].postings
	}
	return nil
}

// between unions the postings of every key within the given bounds. A nil
// bound is open; incLower/incUpper select closed bounds. Bounds of
// incomparable kinds yield an empty result.
func (x *orderedIndex) between(lower, upper any, incLower, incUpper bool) *roaring.Bitmap {
	out := roaring.New()

	lo := 0
	if lower != nil {
		key, ok := sortKeyOf(lower)
		if !ok {
			return out
		}
		lo = x.search(key)
		if !incLower {
			for lo < len(x.entries) && x.entries[lo].key.equal(key) {
				lo++
			}
		}
	}
	hi := len(x.entries)
	if upper != nil {
		key, ok := sortKeyOf(upper)
		if !ok {
			return out
		}
		hi = x.search(key)
		if incUpper {
			for hi < len(x.entries) && x.entries[hi].key.equal(key) {
				hi++
			}
		}
	}

	for i := lo; i < hi; i++ {
		out.Or(x.entries[i].postings)
	}
	return out
}

func (x *orderedIndex) writeTo(w *bufio.Writer) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(len(x.entries))); err != nil {
		return err
	}
	for _, e := range x.entries {
		if err := w.WriteByte(e.key.rank); err != nil {
			return err
		}
		if err := binary.Write(w, binary.LittleEndian, math.Float64bits(e.key.num)); err != nil {
			return err
		}
		if err := writeString(w, e.key.str); err != nil {
			return err
		}
		if err := writeBitmap(w, e.postings); err != nil {
			return err
		}
	}
	return nil
}

func (x *orderedIndex) readFrom(r *bufio.Reader) error {
	var count uint32
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return err
	}
	x.entries = make([]orderedEntry, 0, count)
	for i := uint32(0); i < count; i++ {
		rank, err := r.ReadByte()
		if err != nil {
			return err
		}
		var bits uint64
		if err := binary.Read(r, binary.LittleEndian, &bits); err != nil {
			return err
		}
		str, err := readString(r)
		if err != nil {
			return err
		}
		bm, err := readBitmap(r)
		if err != nil {
			return err
		}
		x.entries = append(x.entries, orderedEntry{
			key:      sortKey{rank: rank, num: math.Float64frombits(bits), str: str},
			postings: bm,
		})
	}
	return nil
}
