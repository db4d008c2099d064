package resources

import (
	"bytes"
	"testing"

	"github.com/quillpdf/quill/object"
	"github.com/quillpdf/quill/parser"
	"github.com/quillpdf/quill/writer"
)

// inheritedDoc builds a tree where Resources, MediaBox, and Rotate
// live on the Pages node while the page itself only overrides Rotate.
func inheritedDoc(t *testing.T) []byte {
	t.Helper()
	doc := object.NewDocument()

	font := object.NewDict()
	font.Set("Type", object.Name("Font"))
	font.Set("Subtype", object.Name("Type1"))
	font.Set("BaseFont", object.Name("Helvetica"))
	fontRef := doc.Register(font)

	pagesRef := doc.Reserve()
	page := object.NewDict()
	page.Set("Type", object.Name("Page"))
	page.Set("Parent", pagesRef)
	page.Set("Rotate", object.Integer(90))
	pageRef := doc.Register(page)

	fonts := object.NewDict()
	fonts.Set("F1", fontRef)
	res := object.NewDict()
	res.Set("Font", fonts)

	pages := object.NewDict()
	pages.Set("Type", object.Name("Pages"))
	pages.Set("Kids", object.Array{pageRef})
	pages.Set("Count", object.Integer(1))
	pages.Set("Resources", res)
	pages.Set("MediaBox", object.Array{
		object.Integer(0), object.Integer(0), object.Integer(612), object.Integer(792),
	})
	pages.Set("Rotate", object.Integer(180))
	if _, err := doc.Replace(pagesRef, pages); err != nil {
		t.Fatal(err)
	}

	catalog := object.NewDict()
	catalog.Set("Type", object.Name("Catalog"))
	catalog.Set("Pages", pagesRef)
	doc.Root = doc.Register(catalog)

	var buf bytes.Buffer
	if err := writer.Write(doc, &buf, writer.Config{}); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func openFirstPage(t *testing.T, pdf []byte) (*parser.Reader, object.Ref) {
	t.Helper()
	r, err := parser.Open(pdf, parser.Options{})
	if err != nil {
		t.Fatal(err)
	}
	root, _ := r.Root()
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
	return r, kids[0].(object.Ref)
}

func TestInheritedAttributes(t *testing.T) {
	r, pageRef := openFirstPage(t, inheritedDoc(t))
	attrs, err := Inherited(r, pageRef)
	if err != nil {
		t.Fatal(err)
	}
	if attrs.Resources == nil {
		t.Fatal("Resources not inherited from the Pages node")
	}
	fonts, ok := attrs.Resources.GetDict("Font")
	if !ok {
		t.Fatal("inherited Resources has no Font")
	}
	if _, ok := fonts.GetRef("F1"); !ok {
		t.Error("F1 missing from inherited fonts")
	}
	if len(attrs.MediaBox) != 4 {
		t.Errorf("MediaBox = %v", attrs.MediaBox)
	}
	// The page's own Rotate wins over the ancestor's.
	if attrs.Rotate != 90 {
		t.Errorf("Rotate = %d, want 90", attrs.Rotate)
	}
}

func TestParentCycle(t *testing.T) {
	doc := object.NewDocument()
	aRef := doc.Reserve()
	bRef := doc.Reserve()

	a := object.NewDict()
	a.Set("Type", object.Name("Page"))
	a.Set("Parent", bRef)
	if _, err := doc.Replace(aRef, a); err != nil {
		t.Fatal(err)
	}
	b := object.NewDict()
	b.Set("Type", object.Name("Pages"))
	b.Set("Kids", object.Array{aRef})
	b.Set("Count", object.Integer(1))
	b.Set("Parent", aRef)
	if _, err := doc.Replace(bRef, b); err != nil {
		t.Fatal(err)
	}
	catalog := object.NewDict()
	catalog.Set("Type", object.Name("Catalog"))
	catalog.Set("Pages", bRef)
	doc.Root = doc.Register(catalog)

	var buf bytes.Buffer
	if err := writer.Write(doc, &buf, writer.Config{}); err != nil {
		t.Fatal(err)
	}
	r, err := parser.Open(buf.Bytes(), parser.Options{})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := Inherited(r, aRef); err == nil {
		t.Error("cycle not detected")
	}
}
