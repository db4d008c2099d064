package writer

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"testing"

	"github.com/quillpdf/quill/contentstream"
	"github.com/quillpdf/quill/object"
	"github.com/quillpdf/quill/security"
)

type seqReader struct{ n byte }

func (r *seqReader) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = r.n
		r.n++
	}
	return len(p), nil
}

// helloDocument builds the single-page document used across the writer
// tests: Helvetica, 24pt, "Hello, World!" at 72,720.
func helloDocument(t *testing.T) *object.Document {
	t.Helper()
	doc := object.NewDocument()

	font := object.NewDict()
	font.Set("Type", object.Name("Font"))
	font.Set("Subtype", object.Name("Type1"))
	font.Set("BaseFont", object.Name("Helvetica"))
	fontRef := doc.Register(font)

	enc := contentstream.NewEncoder()
	enc.BeginText().SetFont("F1", 24).MoveText(72, 720).ShowText("Hello, World!").EndText()
	content, err := enc.Bytes()
	if err != nil {
		t.Fatal(err)
	}
	contentRef := doc.Register(object.NewStream(object.NewDict(), content))

	pagesRef := doc.Reserve()

	page := object.NewDict()
	page.Set("Type", object.Name("Page"))
	page.Set("Parent", pagesRef)
	page.Set("MediaBox", object.Array{
		object.Integer(0), object.Integer(0), object.Integer(612), object.Integer(792),
	})
	fonts := object.NewDict()
	fonts.Set("F1", fontRef)
	res := object.NewDict()
	res.Set("Font", fonts)
	page.Set("Resources", res)
	page.Set("Contents", contentRef)
	pageRef := doc.Register(page)

	pages := object.NewDict()
	pages.Set("Type", object.Name("Pages"))
	pages.Set("Count", object.Integer(1))
	pages.Set("Kids", object.Array{pageRef})
	if _, err := doc.Replace(pagesRef, pages); err != nil {
		t.Fatal(err)
	}

	catalog := object.NewDict()
	catalog.Set("Type", object.Name("Catalog"))
	catalog.Set("Pages", pagesRef)
	doc.Root = doc.Register(catalog)
	return doc
}

func TestWriteMinimalDocument(t *testing.T) {
	doc := helloDocument(t)
	var out bytes.Buffer
	if err := Write(doc, &out, Config{Rand: &seqReader{}}); err != nil {
		t.Fatal(err)
	}
	pdf := out.String()

	if !strings.HasPrefix(pdf, "%PDF-1.7\n") {
		t.Errorf("header = %q", pdf[:16])
	}
	for _, want := range []string{"Hello, World!", "xref\n", "trailer\n", "startxref\n", "%%EOF\n"} {
		if !strings.Contains(pdf, want) {
			t.Errorf("output missing %q", want)
		}
	}

	// Every xref offset must point at the matching object header. The
	// section is searched before the startxref keyword, whose tail would
	// otherwise match first.
	startAt := strings.LastIndex(pdf, "startxref")
	xrefAt := strings.LastIndex(pdf[:startAt], "xref\n")
	lines := strings.Split(pdf[xrefAt:], "\n")
	for i, line := range lines[2:] {
		if !strings.HasSuffix(line, " n ") {
			continue
		}
		off, err := strconv.ParseInt(line[:10], 10, 64)
		if err != nil {
			t.Fatalf("bad xref line %q", line)
		}
		wantHeader := fmt.Sprintf("%d 0 obj", i)
		if !strings.HasPrefix(pdf[off:], wantHeader) {
			t.Errorf("offset %d for object %d points at %q", off, i, pdf[off:off+12])
		}
	}
}

func TestWriteDeterministic(t *testing.T) {
	var a, b bytes.Buffer
	if err := Write(helloDocument(t), &a, Config{Rand: &seqReader{}}); err != nil {
		t.Fatal(err)
	}
	if err := Write(helloDocument(t), &b, Config{Rand: &seqReader{}}); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(a.Bytes(), b.Bytes()) {
		t.Error("two writes with the same seed differ")
	}
}

func TestWriteXRefStream(t *testing.T) {
	var out bytes.Buffer
	if err := Write(helloDocument(t), &out, Config{Rand: &seqReader{}, XRefStreams: true}); err != nil {
		t.Fatal(err)
	}
	pdf := out.String()
	if !strings.Contains(pdf, "/Type /XRef") {
		t.Error("output has no cross-reference stream")
	}
	if strings.Contains(pdf, "trailer\n") {
		t.Error("xref stream output should not carry a classic trailer")
	}
}

func TestStreamLengthMismatch(t *testing.T) {
	doc := object.NewDocument()
	dict := object.NewDict()
	dict.Set("Length", object.Integer(999))
	doc.Register(&object.Stream{Dict: dict, Data: []byte("short")})
	catalog := object.NewDict()
	catalog.Set("Type", object.Name("Catalog"))
	doc.Root = doc.Register(catalog)

	err := Write(doc, &bytes.Buffer{}, Config{Rand: &seqReader{}})
	if !errors.Is(err, ErrStreamLength) {
		t.Errorf("err = %v, want ErrStreamLength", err)
	}
}

func TestUnresolvedReference(t *testing.T) {
	doc := object.NewDocument()
	catalog := object.NewDict()
	catalog.Set("Type", object.Name("Catalog"))
	catalog.Set("Pages", object.Ref{Num: 42})
	doc.Root = doc.Register(catalog)

	err := Write(doc, &bytes.Buffer{}, Config{Rand: &seqReader{}})
	if !errors.Is(err, ErrUnresolvedRef) {
		t.Errorf("err = %v, want ErrUnresolvedRef", err)
	}
}

func TestWriteEncrypted(t *testing.T) {
	doc := helloDocument(t)
	doc.Info.Title = "Classified"
	var out bytes.Buffer
	err := Write(doc, &out, Config{
		Rand: &seqReader{},
		Encryption: &security.Options{
			UserPassword:  "user123",
			OwnerPassword: "owner456",
			Permissions:   security.AllPermissions(),
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	pdf := out.String()
	if !strings.Contains(pdf, "/Encrypt") {
		t.Error("trailer has no Encrypt entry")
	}
	if strings.Contains(pdf, "Hello, World!") {
		t.Error("content stream left in plaintext")
	}
	if strings.Contains(pdf, "Classified") {
		t.Error("Info strings left in plaintext")
	}
}

func TestWriteDocumentInfo(t *testing.T) {
	// The Info dictionary gets a number past the document's own range;
	// the trailer reference to it must serialize all the same.
	for _, xrefStreams := range []bool{false, true} {
		doc := helloDocument(t)
		doc.Info.Title = "Quarterly Report"
		infoNum := doc.MaxNum() + 1
		var out bytes.Buffer
		if err := Write(doc, &out, Config{Rand: &seqReader{}, XRefStreams: xrefStreams}); err != nil {
			t.Fatalf("xrefStreams=%v: %v", xrefStreams, err)
		}
		pdf := out.String()
		if want := fmt.Sprintf("/Info %d 0 R", infoNum); !strings.Contains(pdf, want) {
			t.Errorf("xrefStreams=%v: trailer missing %q", xrefStreams, want)
		}
		if want := fmt.Sprintf("%d 0 obj", infoNum); !strings.Contains(pdf, want) {
			t.Errorf("xrefStreams=%v: Info object %q not emitted", xrefStreams, want)
		}
	}
}

func TestWriteFreeSlotInXref(t *testing.T) {
	doc := helloDocument(t)
	tmp := doc.Register(object.Integer(1))
	if err := doc.Free(tmp); err != nil {
		t.Fatal(err)
	}
	var out bytes.Buffer
	if err := Write(doc, &out, Config{Rand: &seqReader{}}); err != nil {
		t.Fatal(err)
	}
	// Entry 0 heads the free list and must point at the freed number.
	pdf := out.String()
	startAt := strings.LastIndex(pdf, "startxref")
	xrefAt := strings.LastIndex(pdf[:startAt], "xref\n")
	lines := strings.Split(pdf[xrefAt:], "\n")
	want := fmt.Sprintf("%010d 65535 f ", tmp.Num)
	if lines[2] != want {
		t.Errorf("free list head = %q, want %q", lines[2], want)
	}
}
