package recovery

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/quillpdf/quill/xref"
)

func TestScanFindsHeaders(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteString("%PDF-1.7\n")
	offsets := make(map[int]int64)
	for num := 1; num <= 3; num++ {
		offsets[num] = int64(buf.Len())
		fmt.Fprintf(&buf, "%d 0 obj\n<< /N %d >>\nendobj\n", num, num)
	}
	table := Scan(buf.Bytes())
	if table.Len() != 3 {
		t.Fatalf("entries = %d", table.Len())
	}
	for num, want := range offsets {
		e, ok := table.Lookup(num)
		if !ok || e.Type != xref.InUse {
			t.Fatalf("object %d missing", num)
		}
		if e.Offset != want {
			t.Errorf("object %d offset = %d, want %d", num, e.Offset, want)
		}
	}
}

func TestScanLastDefinitionWins(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteString("1 0 obj\n(old)\nendobj\n")
	later := int64(buf.Len())
	buf.WriteString("1 1 obj\n(new)\nendobj\n")
	table := Scan(buf.Bytes())
	e, ok := table.Lookup(1)
	if !ok {
		t.Fatal("object 1 missing")
	}
	if e.Offset != later || e.Gen != 1 {
		t.Errorf("entry = %+v, want offset %d gen 1", e, later)
	}
}

func TestScanIgnoresEmbeddedDigits(t *testing.T) {
	// "12 0 obj" inside a longer number must not match as object 2.
	table := Scan([]byte("912 0 obj\n<< >>\nendobj\n"))
	if _, ok := table.Lookup(12); ok {
		t.Error("matched header inside a longer number")
	}
	if _, ok := table.Lookup(912); !ok {
		t.Error("object 912 not found")
	}
}

func TestLastTrailer(t *testing.T) {
	data := []byte("trailer\n<< >>\nmore\ntrailer\n<< /Size 4 >>\n")
	off := LastTrailer(data)
	if off != int64(bytes.LastIndex(data, []byte("trailer"))) || off <= 0 {
		t.Errorf("offset = %d", off)
	}
	if LastTrailer([]byte("no keyword here")) != -1 {
		t.Error("expected -1 for missing trailer")
	}
}
