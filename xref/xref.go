// Package xref models the cross-reference information shared by the
// writer and the parser: per-object entries, the classic fixed-width
// table format, and the binary cross-reference stream format.
package xref

import (
	"bytes"
	"errors"
	"fmt"
	"sort"
)

// EntryType discriminates the three kinds of cross-reference entries.
type EntryType int

const (
	// Free marks a released object number.
	Free EntryType = iota
	// InUse points at a regular indirect object by byte offset.
	InUse
	// InStream places an object inside a compressed object stream.
	InStream
)

// Entry describes where one object lives.
type Entry struct {
	Type EntryType
	// Offset is the byte position of the object header (InUse).
	Offset int64
	// Gen is the generation number (InUse), or the next generation to
	// use after revival (Free).
	Gen int
	// StreamNum and StreamIdx locate an InStream object inside its
	// container stream.
	StreamNum int
	StreamIdx int
}

// Table maps object numbers to entries. Merging incremental sections
// is newest-first: Add keeps the existing entry when the number is
// already present.
type Table struct {
	entries map[int]Entry
}

func NewTable() *Table { return &Table{entries: make(map[int]Entry)} }

// Add records an entry unless one is already present. Sections are
// merged from the end of the file backwards, so the first definition
// seen is the authoritative one.
func (t *Table) Add(num int, e Entry) {
	if _, ok := t.entries[num]; !ok {
		t.entries[num] = e
	}
}

// Set records an entry unconditionally.
func (t *Table) Set(num int, e Entry) { t.entries[num] = e }

func (t *Table) Lookup(num int) (Entry, bool) {
	e, ok := t.entries[num]
	return e, ok
}

// Nums returns all known object numbers in ascending order.
func (t *Table) Nums() []int {
	out := make([]int, 0, len(t.entries))
	for n := range t.entries {
		out = append(out, n)
	}
	sort.Ints(out)
	return out
}

func (t *Table) Len() int { return len(t.entries) }

// MaxNum returns the highest known object number.
func (t *Table) MaxNum() int {
	max := 0
	for n := range t.entries {
		if n > max {
			max = n
		}
	}
	return max
}

// EncodeClassic renders a classic xref section covering objects 0
// through size-1. Missing numbers are written as free entries chained
// in ascending order, ending at object 0 with generation 65535.
func EncodeClassic(t *Table, size int) []byte {
	// Build the free list: entry 0 points at the first free number,
	// each free entry points at the next, the last points back to 0.
	free := []int{0}
	for n := 1; n < size; n++ {
		if e, ok := t.entries[n]; !ok || e.Type == Free {
			free = append(free, n)
		}
	}

	next := make(map[int]int, len(free))
	for i, n := range free {
		if i+1 < len(free) {
			next[n] = free[i+1]
		} else {
			next[n] = 0
		}
	}

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "xref\n0 %d\n", size)
	for n := 0; n < size; n++ {
		e, ok := t.entries[n]
		if n == 0 || !ok || e.Type != InUse {
			gen := 65535
			if n != 0 && ok && e.Type == Free {
				gen = e.Gen
			}
			fmt.Fprintf(&buf, "%010d %05d f \n", next[n], gen)
			continue
		}
		fmt.Fprintf(&buf, "%010d %05d n \n", e.Offset, e.Gen)
	}
	return buf.Bytes()
}

// EncodeStreamData renders the binary payload of a cross-reference
// stream covering objects 0 through size-1, returning the data, the
// field widths for the W entry, and the Index pairs (a single full
// span is used).
func EncodeStreamData(t *Table, size int) (data []byte, w [3]int, index [2]int) {
	maxOffset := int64(0)
	for _, e := range t.entries {
		if e.Type == InUse && e.Offset > maxOffset {
			maxOffset = e.Offset
		}
		if e.Type == InStream && int64(e.StreamNum) > maxOffset {
			maxOffset = int64(e.StreamNum)
		}
	}
	w = [3]int{1, byteWidth(maxOffset), 2}

	var buf bytes.Buffer
	writeField := func(v int64, width int) {
		for i := width - 1; i >= 0; i-- {
			buf.WriteByte(byte(v >> (8 * i)))
		}
	}
	for n := 0; n < size; n++ {
		e, ok := t.entries[n]
		switch {
		case n == 0 || !ok || e.Type == Free:
			gen := 65535
			if n != 0 && ok && e.Type == Free {
				gen = e.Gen
			}
			writeField(0, w[0])
			writeField(0, w[1])
			writeField(int64(gen), w[2])
		case e.Type == InUse:
			writeField(1, w[0])
			writeField(e.Offset, w[1])
			writeField(int64(e.Gen), w[2])
		case e.Type == InStream:
			writeField(2, w[0])
			writeField(int64(e.StreamNum), w[1])
			writeField(int64(e.StreamIdx), w[2])
		}
	}
	return buf.Bytes(), w, [2]int{0, size}
}

// DecodeStreamData parses the decoded payload of a cross-reference
// stream. w are the field widths from the W entry; index is the
// flattened list of (first, count) pairs from the Index entry.
func DecodeStreamData(data []byte, w []int64, index []int64) (*Table, error) {
	if len(w) != 3 {
		return nil, fmt.Errorf("W must have 3 elements, has %d", len(w))
	}
	rowLen := int(w[0] + w[1] + w[2])
	if rowLen <= 0 {
		return nil, errors.New("zero-width xref stream row")
	}
	if len(index)%2 != 0 {
		return nil, errors.New("Index must hold pairs")
	}
	total := int64(0)
	for i := 1; i < len(index); i += 2 {
		total += index[i]
	}
	if int64(len(data)) < total*int64(rowLen) {
		return nil, fmt.Errorf("xref stream holds %d bytes, need %d", len(data), total*int64(rowLen))
	}

	t := NewTable()
	pos := 0
	readField := func(width int64) int64 {
		v := int64(0)
		for i := int64(0); i < width; i++ {
			v = v<<8 | int64(data[pos])
			pos++
		}
		return v
	}
	for i := 0; i < len(index); i += 2 {
		first, count := index[i], index[i+1]
		for n := int64(0); n < count; n++ {
			num := int(first + n)
			ft := int64(1)
			if w[0] > 0 {
				ft = readField(w[0])
			}
			f2 := readField(w[1])
			f3 := readField(w[2])
			switch ft {
			case 0:
				t.Set(num, Entry{Type: Free, Gen: int(f3)})
			case 1:
				t.Set(num, Entry{Type: InUse, Offset: f2, Gen: int(f3)})
			case 2:
				t.Set(num, Entry{Type: InStream, StreamNum: int(f2), StreamIdx: int(f3)})
			default:
				// Unknown types are treated as references to null, the
				// ISO 32000 forward-compatibility rule.
			}
		}
	}
	return t, nil
}

// Merge folds the entries of newer into t, keeping t's entries where
// both define an object number. The receiver is expected to be the
// more recent section.
func (t *Table) Merge(older *Table) {
	for n, e := range older.entries {
		t.Add(n, e)
	}
}

func byteWidth(v int64) int {
	w := 1
	for v > 0xff {
		v >>= 8
		w++
	}
	return w
}
