package index

import (
	"bufio"
	"encoding/binary"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/hupe1980/docgo/document"
)

// tokenIndex is an inverted index: case-folded token to postings bitmap.
// Non-string values are ignored.
type tokenIndex struct {
	postings map[string]*roaring.Bitmap
}

func newTokenIndex() *tokenIndex {
	return &tokenIndex{postings: make(map[string]*roaring.Bitmap)}
}

func (x *tokenIndex) add(ord uint32, v any) {
	s, ok := document.AsString(v)
	if !ok {
		return
	}
	for _, tok := range Tokenize(s) {
		bm, ok := x.postings[tok]
		if !ok {
			bm = roaring.New()
			x.postings[tok] = bm
		}
		bm.Add(ord)
	}
}

func (x *tokenIndex) remove(ord uint32, v any) {
	s, ok := document.AsString(v)
	if !ok {
		return
	}
	for _, tok := range Tokenize(s) {
		bm, ok := x.postings[tok]
		if !ok {
			continue
		}
		bm.Remove(ord)
		if bm.IsEmpty() {
			delete(x.postings, tok)
		}
	}
}

// equal intersects the postings of every token of v, matching documents whose
// indexed text contains all of them.
func (x *tokenIndex) equal(v any) *roaring.Bitmap {
	s, ok := document.AsString(v)
	if !ok {
		return nil
	}
	tokens := Tokenize(s)
	if len(tokens) == 0 {
		return nil
	}
	var out *roaring.Bitmap
	for _, tok := range tokens {
		bm, ok := x.postings[tok]
		if !ok {
			return nil
		}
		if out == nil {
			out = bm.Clone()
			continue
		}
		out.And(bm)
	}
	return out
}

// token returns the postings of a single token.
func (x *tokenIndex) token(tok string) *roaring.Bitmap {
	toks := Tokenize(tok)
	if len(toks) != 1 {
		return x.equal(tok)
	}
	return x.postings[toks[0]]
}

func (x *tokenIndex) writeTo(w *bufio.Writer) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(len(x.postings))); err != nil {
		return err
	}
	for tok, bm := range x.postings {
		if err := writeString(w, tok); err != nil {
			return err
		}
		if err := writeBitmap(w, bm); err != nil {
			return err
		}
	}
	return nil
}

func (x *tokenIndex) readFrom(r *bufio.Reader) error {
	var count uint32
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return err
	}
	x.postings = make(map[string]*roaring.Bitmap, count)
	for i := uint32(0); i < count; i++ {
		tok, err := readString(r)
		if err != nil {
			return err
		}
		bm, err := readBitmap(r)
		if err != nil {
			return err
		}
		x.postings[tok] = bm
	}
	return nil
}
