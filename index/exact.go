package index

import (
	"bufio"
	"encoding/binary"
	"io"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/hupe1980/docgo/document"
)

// exactIndex is a hash index: canonical value key to postings bitmap.
type exactIndex struct {
	postings map[string]*roaring.Bitmap
}

func newExactIndex() *exactIndex {
	return &exactIndex{postings: make(map[string]*roaring.Bitmap)}
}

func (x *exactIndex) add(ord uint32, v any) {
	key := document.Key(v)
	bm, ok := x.postings[key]
	if !ok {
		bm = roaring.New()
		x.postings[key] = bm
	}
	bm.Add(ord)
}

func (x *exactIndex) remove(ord uint32, v any) {
	key := document.Key(v)
	bm, ok := x.postings[key]
	if !ok {
		return
	}
	bm.Remove(ord)
	if bm.IsEmpty() {
		delete(x.postings, key)
	}
}

// equal returns the postings for one scalar, or nil.
func (x *exactIndex) equal(v any) *roaring.Bitmap {
	return x.postings[document.Key(v)]
}

func (x *exactIndex) writeTo(w *bufio.Writer) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(len(x.postings))); err != nil {
		return err
	}
	for key, bm := range x.postings {
		if err := writeString(w, key); err != nil {
			return err
		}
		if err := writeBitmap(w, bm); err != nil {
			return err
		}
	}
	return nil
}

func (x *exactIndex) readFrom(r *bufio.Reader) error {
	var count uint32
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return err
	}
	x.postings = make(map[string]*roaring.Bitmap, count)
	for i := uint32(0); i < count; i++ {
		key, err := readString(r)
		if err != nil {
			return err
		}
		bm, err := readBitmap(r)
		if err != nil {
			return err
		}
		x.postings[key] = bm
	}
	return nil
}

func writeBitmap(w *bufio.Writer, bm *roaring.Bitmap) error {
	data, err := bm.ToBytes()
	if err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(len(data))); err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

func readBitmap(r *bufio.Reader) (*roaring.Bitmap, error) {
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return nil, err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	bm := roaring.New()
	if err := bm.UnmarshalBinary(buf); err != nil {
		return nil, err
	}
	return bm, nil
}
