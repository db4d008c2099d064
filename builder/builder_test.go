package builder

import (
	"bytes"
	"compress/zlib"
	"image"
	"image/color"
	"io"
	"strings"
	"testing"

	"github.com/quillpdf/quill/font"
	"github.com/quillpdf/quill/imaging"
	"github.com/quillpdf/quill/object"
	"github.com/quillpdf/quill/parser"
	"github.com/quillpdf/quill/security"
)

// seqReader yields a deterministic byte sequence for reproducible
// file IDs and key material.
type seqReader struct{ n byte }

func (s *seqReader) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = s.n
		s.n++
	}
	return len(p), nil
}

func firstPage(t *testing.T, doc *object.Document) *object.Dict {
	t.Helper()
	catalog, err := doc.Resolve(doc.Root)
	if err != nil {
		t.Fatal(err)
	}
	pagesRef, ok := catalog.(*object.Dict).GetRef("Pages")
	if !ok {
		t.Fatal("catalog has no Pages")
	}
	pages, err := doc.Resolve(pagesRef)
	if err != nil {
		t.Fatal(err)
	}
	kids, ok := pages.(*object.Dict).GetArray("Kids")
	if !ok || len(kids) == 0 {
		t.Fatal("page tree has no kids")
	}
	page, err := doc.Resolve(kids[0].(object.Ref))
	if err != nil {
		t.Fatal(err)
	}
	return page.(*object.Dict)
}

func pageContent(t *testing.T, doc *object.Document, page *object.Dict) []byte {
	t.Helper()
	ref, ok := page.GetRef("Contents")
	if !ok {
		t.Fatal("page has no Contents")
	}
	obj, err := doc.Resolve(ref)
	if err != nil {
		t.Fatal(err)
	}
	return obj.(*object.Stream).Data
}

func TestBuildHelloWorld(t *testing.T) {
	doc, err := New().
		WithTitle("Greeting").
		AddPage(NewPage(A4).
			WithFont("F1", font.Helvetica).
			Text("F1", 24, 72, 720, "Hello, World!")).
		Build()
	if err != nil {
		t.Fatal(err)
	}
	if doc.Info.Title != "Greeting" {
		t.Errorf("Title = %q", doc.Info.Title)
	}

	page := firstPage(t, doc)
	box, ok := page.GetArray("MediaBox")
	if !ok || len(box) != 4 {
		t.Fatalf("MediaBox = %v", box)
	}
	if w := float64(box[2].(object.Real)); w != 595 {
		t.Errorf("page width = %v", w)
	}

	content := string(pageContent(t, doc, page))
	for _, want := range []string{"BT", "/F1 24 Tf", "72 720 Td", "(Hello, World!) Tj", "ET"} {
		if !strings.Contains(content, want) {
			t.Errorf("content missing %q:\n%s", want, content)
		}
	}
}

func TestSharedFontDict(t *testing.T) {
	doc, err := New().
		AddPage(NewPage(A4).WithFont("F1", font.Helvetica).Text("F1", 12, 72, 720, "one")).
		AddPage(NewPage(A4).WithFont("F1", font.Helvetica).Text("F1", 12, 72, 720, "two")).
		Build()
	if err != nil {
		t.Fatal(err)
	}
	var fontRefs []object.Ref
	for _, ref := range doc.Refs() {
		obj, _ := doc.Resolve(ref)
		if d, ok := obj.(*object.Dict); ok {
			if tp, _ := d.GetName("Type"); tp == "Font" {
				fontRefs = append(fontRefs, ref)
			}
		}
	}
	if len(fontRefs) != 1 {
		t.Errorf("font dictionaries = %d, want 1 shared", len(fontRefs))
	}
}

func TestUndefinedFontResource(t *testing.T) {
	_, err := New().
		AddPage(NewPage(A4).Text("F9", 12, 72, 720, "oops")).
		Build()
	if err == nil || !strings.Contains(err.Error(), "F9") {
		t.Errorf("err = %v", err)
	}
}

func TestNoPages(t *testing.T) {
	if _, err := New().Build(); err != ErrNoPages {
		t.Errorf("err = %v", err)
	}
}

func TestCompression(t *testing.T) {
	doc, err := New().
		WithCompression(true).
		AddPage(NewPage(Letter).
			WithFont("F1", font.Courier).
			Text("F1", 10, 50, 700, "compressed")).
		Build()
	if err != nil {
		t.Fatal(err)
	}
	page := firstPage(t, doc)
	ref, _ := page.GetRef("Contents")
	obj, _ := doc.Resolve(ref)
	st := obj.(*object.Stream)
	if f, _ := st.Dict.GetName("Filter"); f != "FlateDecode" {
		t.Fatalf("Filter = %q", f)
	}
	zr, err := zlib.NewReader(bytes.NewReader(st.Data))
	if err != nil {
		t.Fatal(err)
	}
	plain, err := io.ReadAll(zr)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(plain), "(compressed) Tj") {
		t.Errorf("decoded content = %q", plain)
	}
}

func TestDrawImage(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			img.Set(x, y, color.RGBA{R: 0x80, A: 0xFF})
		}
	}
	doc, err := New().
		AddPage(NewPage(A4).
			WithImage("Im1", imaging.FromImage(img)).
			DrawImage("Im1", 100, 100, 200, 200)).
		Build()
	if err != nil {
		t.Fatal(err)
	}
	page := firstPage(t, doc)
	res, _ := page.GetDict("Resources")
	xo, ok := res.GetDict("XObject")
	if !ok {
		t.Fatal("no XObject resources")
	}
	if _, ok := xo.GetRef("Im1"); !ok {
		t.Error("Im1 not registered")
	}
	content := string(pageContent(t, doc, page))
	for _, want := range []string{"200 0 0 200 100 100 cm", "/Im1 Do"} {
		if !strings.Contains(content, want) {
			t.Errorf("content missing %q:\n%s", want, content)
		}
	}
}

func TestDrawUndefinedImage(t *testing.T) {
	_, err := New().
		AddPage(NewPage(A4).DrawImage("Im9", 0, 0, 10, 10)).
		Build()
	if err == nil || !strings.Contains(err.Error(), "Im9") {
		t.Errorf("err = %v", err)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	var out bytes.Buffer
	err := New().
		WithAuthor("builder test").
		WithRandom(&seqReader{}).
		AddPage(NewPage(A4).
			WithFont("F1", font.Helvetica).
			Text("F1", 24, 72, 720, "Hello, World!").
			Line(72, 700, 300, 700, 1.5)).
		Save(&out)
	if err != nil {
		t.Fatal(err)
	}

	r, err := parser.Open(out.Bytes(), parser.Options{})
	if err != nil {
		t.Fatal(err)
	}
	root, ok := r.Root()
	if !ok {
		t.Fatal("no Root in trailer")
	}
	catalog, err := r.Resolve(root)
	if err != nil {
		t.Fatal(err)
	}
	pagesRef, _ := catalog.(*object.Dict).GetRef("Pages")
	pages, err := r.Resolve(pagesRef)
	if err != nil {
		t.Fatal(err)
	}
	kids, _ := pages.(*object.Dict).GetArray("Kids")
	page, err := r.Resolve(kids[0].(object.Ref))
	if err != nil {
		t.Fatal(err)
	}
	contentRef, _ := page.(*object.Dict).GetRef("Contents")
	content, err := r.StreamData(contentRef)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(content), "(Hello, World!) Tj") {
		t.Errorf("content = %q", content)
	}
}

func TestEncryptedSave(t *testing.T) {
	var out bytes.Buffer
	err := New().
		WithRandom(&seqReader{}).
		WithEncryption(security.Options{UserPassword: "user123"}).
		AddPage(NewPage(A4).
			WithFont("F1", font.Helvetica).
			Text("F1", 24, 72, 720, "Hello, World!")).
		Save(&out)
	if err != nil {
		t.Fatal(err)
	}
	if bytes.Contains(out.Bytes(), []byte("Hello, World!")) {
		t.Error("plaintext visible in encrypted output")
	}

	r, err := parser.Open(out.Bytes(), parser.Options{Password: "user123"})
	if err != nil {
		t.Fatal(err)
	}
	if !r.Encrypted() {
		t.Error("Encrypted() = false")
	}
	if _, err := parser.Open(out.Bytes(), parser.Options{Password: "wrong"}); err == nil {
		t.Error("wrong password accepted")
	}
}
