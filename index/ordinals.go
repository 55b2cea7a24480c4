package index

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
)

// ordinals maps document ids to dense uint32 ordinals used as bitmap bits.
// Ordinals are allocated monotonically and never reused, so persisted postings
// stay valid across deletes.
type ordinals struct {
	byID map[string]uint32
	ids  []string
}

func newOrdinals() *ordinals {
	return &ordinals{byID: make(map[string]uint32)}
}

// allocate returns the ordinal for id, assigning a fresh one if needed.
func (o *ordinals) allocate(id string) uint32 {
	if ord, ok := o.byID[id]; ok {
		return ord
	}
	ord := uint32(len(o.ids))
	o.byID[id] = ord
	o.ids = append(o.ids, id)
	return ord
}

// lookup returns the ordinal for id without allocating.
func (o *ordinals) lookup(id string) (uint32, bool) {
	ord, ok := o.byID[id]
	return ord, ok
}

// idOf returns the document id owning an ordinal.
func (o *ordinals) idOf(ord uint32) (string, bool) {
	if int(ord) >= len(o.ids) {
		return "", false
	}
	return o.ids[ord], true
}

func (o *ordinals) writeTo(w *bufio.Writer) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(len(o.ids))); err != nil {
		return err
	}
	for _, id := range o.ids {
		if err := writeString(w, id); err != nil {
			return err
		}
	}
	return nil
}

func (o *ordinals) readFrom(r *bufio.Reader) error {
	var count uint32
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return err
	}
	o.byID = make(map[string]uint32, count)
	o.ids = make([]string, 0, count)
	for i := uint32(0); i < count; i++ {
		id, err := readString(r)
		if err != nil {
			return err
		}
		o.byID[id] = uint32(len(o.ids))
		o.ids = append(o.ids, id)
	}
	return nil
}

func writeString(w *bufio.Writer, s string) error {
	if len(s) > 0xFFFF {
		return fmt.Errorf("string too long for index file: %d bytes", len(s))
	}
	if err := binary.Write(w, binary.LittleEndian, uint16(len(s))); err != nil {
		return err
	}
	_, err := w.WriteString(s)
	return err
}

func readString(r *bufio.Reader) (string, error) {
	var n uint16
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return "", err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}
