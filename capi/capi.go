// Package capi exposes a handle based lifecycle suitable for foreign
// function bindings: a document is created once, its bytes read any
// number of times, and the handle freed exactly once. Handles are
// opaque integers, never pointers, so bindings cannot corrupt the
// registry.
package capi

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/quillpdf/quill/builder"
	"github.com/quillpdf/quill/font"
)

// LibraryVersion is reported to bindings through Version.
const LibraryVersion = "0.1.0"

// ErrInvalidHandle is returned for handles that were never issued or
// have already been freed.
var ErrInvalidHandle = errors.New("invalid document handle")

// Handle identifies one finished document. The zero Handle is never
// issued and is safe to Free.
type Handle uint64

var registry = struct {
	mu   sync.Mutex
	docs map[Handle][]byte
	next Handle
}{docs: make(map[Handle][]byte), next: 1}

func store(data []byte) Handle {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	h := registry.next
	registry.next++
	registry.docs[h] = data
	return h
}

// CreateSimple builds a one page A4 document showing text in Helvetica
// at the given size and returns its handle.
func CreateSimple(text string, fontSize float64) (Handle, error) {
	var out bytes.Buffer
	err := builder.New().
		AddPage(builder.NewPage(builder.A4).
			WithFont("F1", font.Helvetica).
			Text("F1", fontSize, 72, 750, text)).
		Save(&out)
	if err != nil {
		return 0, err
	}
	return store(out.Bytes()), nil
}

// CreateFrom finishes a prepared builder and returns a handle to the
// serialized bytes.
func CreateFrom(b *builder.Builder) (Handle, error) {
	var out bytes.Buffer
	if err := b.Save(&out); err != nil {
		return 0, err
	}
	return store(out.Bytes()), nil
}

// Data returns the document bytes. The slice must not be modified.
func Data(h Handle) ([]byte, error) {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	data, ok := registry.docs[h]
	if !ok {
		return nil, fmt.Errorf("data: %w", ErrInvalidHandle)
	}
	return data, nil
}

// SaveToFile writes the document bytes to path.
func SaveToFile(h Handle, path string) error {
	data, err := Data(h)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Free releases a handle. Freeing the zero handle or one already
// released is a no-op.
func Free(h Handle) {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	delete(registry.docs, h)
}

// Version returns the library version string.
func Version() string { return LibraryVersion }
