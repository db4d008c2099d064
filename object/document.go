package object

import (
	"errors"
	"fmt"
)

// ErrDanglingRef is returned when a reference names an object that was
// never registered, or that has been freed.
var ErrDanglingRef = errors.New("dangling object reference")

type slot struct {
	obj  Object
	gen  int
	free bool
}

// Info holds the document information dictionary fields. Non-ASCII
// values are encoded as UTF-16BE text strings at serialization time.
type Info struct {
	Title    string
	Author   string
	Subject  string
	Keywords string
	Creator  string
	Producer string
}

// Document owns the complete set of indirect objects for one file.
// Object numbers are assigned sequentially starting at 1; number 0 is
// reserved for the head of the free list. A Document is built by a
// single goroutine and must not be mutated while a write is in
// progress.
type Document struct {
	slots   map[int]*slot
	next    int
	Root    Ref
	Info    Info
	Version string
	// ID is the two-element file identifier written to the trailer.
	// Left empty, the writer derives one.
	ID [2][]byte
}

// NewDocument returns an empty document with numbering starting at 1.
func NewDocument() *Document {
	return &Document{slots: make(map[int]*slot), next: 1, Version: "1.7"}
}

// Register stores obj as a new indirect object and returns its
// identity. Generation is always 0 for newly assigned numbers.
func (d *Document) Register(obj Object) Ref {
	ref := Ref{Num: d.next}
	d.slots[ref.Num] = &slot{obj: obj}
	d.next++
	return ref
}

// Reserve assigns the next object number without storing a value, so
// that objects containing references to each other can be built in any
// order. The slot must be filled with Replace before serialization.
func (d *Document) Reserve() Ref {
	ref := Ref{Num: d.next}
	d.slots[ref.Num] = &slot{obj: nil}
	d.next++
	return ref
}

// Replace updates the object stored under ref. Replacing a freed slot
// revives it with an incremented generation, mirroring the incremental
// update rules; the new identity is returned.
func (d *Document) Replace(ref Ref, obj Object) (Ref, error) {
	s, ok := d.slots[ref.Num]
	if !ok {
		return Ref{}, fmt.Errorf("replace %s: %w", ref, ErrDanglingRef)
	}
	if s.free {
		s.gen++
		s.free = false
	} else if s.gen != ref.Gen {
		return Ref{}, fmt.Errorf("replace %s: generation mismatch: %w", ref, ErrDanglingRef)
	}
	s.obj = obj
	return Ref{Num: ref.Num, Gen: s.gen}, nil
}

// Free releases the object stored under ref. The number joins the free
// list at serialization time and the slot can be revived by Replace.
func (d *Document) Free(ref Ref) error {
	s, ok := d.slots[ref.Num]
	if !ok || s.free {
		return fmt.Errorf("free %s: %w", ref, ErrDanglingRef)
	}
	s.obj = nil
	s.free = true
	return nil
}

// Resolve returns the object registered under ref.
func (d *Document) Resolve(ref Ref) (Object, error) {
	s, ok := d.slots[ref.Num]
	if !ok || s.free || s.obj == nil {
		return nil, fmt.Errorf("resolve %s: %w", ref, ErrDanglingRef)
	}
	if s.gen != ref.Gen {
		return nil, fmt.Errorf("resolve %s: generation is %d: %w", ref, s.gen, ErrDanglingRef)
	}
	return s.obj, nil
}

// Contains reports whether ref names a live registered object.
func (d *Document) Contains(ref Ref) bool {
	s, ok := d.slots[ref.Num]
	return ok && !s.free && s.obj != nil && s.gen == ref.Gen
}

// Refs returns the identities of all live objects in ascending number
// order.
func (d *Document) Refs() []Ref {
	out := make([]Ref, 0, len(d.slots))
	for num := 1; num < d.next; num++ {
		s, ok := d.slots[num]
		if !ok || s.free || s.obj == nil {
			continue
		}
		out = append(out, Ref{Num: num, Gen: s.gen})
	}
	return out
}

// FreeNums returns the numbers of freed slots in ascending order.
func (d *Document) FreeNums() []int {
	var out []int
	for num := 1; num < d.next; num++ {
		if s, ok := d.slots[num]; ok && s.free {
			out = append(out, num)
		}
	}
	return out
}

// MaxNum returns the highest assigned object number.
func (d *Document) MaxNum() int { return d.next - 1 }

// Walk visits every object reachable from start, following references
// through the document. Each indirect object is visited exactly once
// even when referenced multiple times or through cycles. fn receives
// the identity and value of each visited indirect object.
func (d *Document) Walk(start Ref, fn func(Ref, Object) error) error {
	visited := make(map[int]bool)
	var visit func(ref Ref) error
	visit = func(ref Ref) error {
		if visited[ref.Num] {
			return nil
		}
		visited[ref.Num] = true
		obj, err := d.Resolve(ref)
		if err != nil {
			return err
		}
		if err := fn(ref, obj); err != nil {
			return err
		}
		return d.walkValue(obj, visit)
	}
	return visit(start)
}

func (d *Document) walkValue(obj Object, visit func(Ref) error) error {
	switch v := obj.(type) {
	case Ref:
		return visit(v)
	case Array:
		for _, it := range v {
			if err := d.walkValue(it, visit); err != nil {
				return err
			}
		}
	case *Dict:
		for _, k := range v.Keys() {
			it, _ := v.Get(k)
			if err := d.walkValue(it, visit); err != nil {
				return err
			}
		}
	case *Stream:
		return d.walkValue(v.Dict, visit)
	}
	return nil
}
