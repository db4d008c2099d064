package parser

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/quillpdf/quill/contentstream"
	"github.com/quillpdf/quill/object"
	"github.com/quillpdf/quill/security"
	"github.com/quillpdf/quill/writer"
	"github.com/quillpdf/quill/xref"
)

type seqReader struct{ n byte }

func (r *seqReader) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = r.n
		r.n++
	}
	return len(p), nil
}

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

func writeHello(t *testing.T, cfg writer.Config) []byte {
	t.Helper()
	if cfg.Rand == nil {
		cfg.Rand = &seqReader{}
	}
	var buf bytes.Buffer
	if err := writer.Write(helloDocument(t), &buf, cfg); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

// followPage walks catalog -> pages -> first page and returns the page
// dictionary.
func followPage(t *testing.T, r *Reader) *object.Dict {
	t.Helper()
	root, ok := r.Root()
	if !ok {
		t.Fatal("trailer has no Root")
	}
	catalog, err := r.Resolve(root)
	if err != nil {
		t.Fatal(err)
	}
	pagesRef, ok := catalog.(*object.Dict).GetRef("Pages")
	if !ok {
		t.Fatal("catalog has no Pages")
	}
	pagesObj, err := r.Resolve(pagesRef)
	if err != nil {
		t.Fatal(err)
	}
	kids, _ := pagesObj.(*object.Dict).GetArray("Kids")
	if len(kids) != 1 {
		t.Fatalf("Kids = %v", kids)
	}
	pageObj, err := r.Resolve(kids[0].(object.Ref))
	if err != nil {
		t.Fatal(err)
	}
	return pageObj.(*object.Dict)
}

func TestOpenRoundTrip(t *testing.T) {
	pdf := writeHello(t, writer.Config{})
	r, err := Open(pdf, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if v := r.Version(); v != "1.7" {
		t.Errorf("Version = %q", v)
	}

	page := followPage(t, r)
	contentRef, _ := page.GetRef("Contents")
	data, err := r.StreamData(contentRef)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "(Hello, World!) Tj") {
		t.Errorf("content stream = %q", data)
	}
}

func TestXRefStreamRoundTrip(t *testing.T) {
	pdf := writeHello(t, writer.Config{XRefStreams: true})
	r, err := Open(pdf, Options{})
	if err != nil {
		t.Fatal(err)
	}
	page := followPage(t, r)
	if mb, ok := page.GetArray("MediaBox"); !ok || len(mb) != 4 {
		t.Errorf("MediaBox = %v", mb)
	}
}

func TestResolveMemoized(t *testing.T) {
	pdf := writeHello(t, writer.Config{})
	r, err := Open(pdf, Options{})
	if err != nil {
		t.Fatal(err)
	}
	root, _ := r.Root()
	a, err := r.Resolve(root)
	if err != nil {
		t.Fatal(err)
	}
	b, err := r.Resolve(root)
	if err != nil {
		t.Fatal(err)
	}
	if a.(*object.Dict) != b.(*object.Dict) {
		t.Error("second resolution returned a different object")
	}
}

func TestEncryptedRoundTrip(t *testing.T) {
	pdf := writeHello(t, writer.Config{
		Encryption: &security.Options{
			UserPassword:  "user123",
			OwnerPassword: "owner456",
			Permissions:   security.AllPermissions(),
		},
	})

	for _, pwd := range []string{"user123", "owner456"} {
		r, err := Open(pdf, Options{Password: pwd})
		if err != nil {
			t.Fatalf("Open with %q: %v", pwd, err)
		}
		if !r.Encrypted() {
			t.Fatal("reader does not report encryption")
		}
		page := followPage(t, r)
		contentRef, _ := page.GetRef("Contents")
		data, err := r.StreamData(contentRef)
		if err != nil {
			t.Fatal(err)
		}
		if !strings.Contains(string(data), "(Hello, World!) Tj") {
			t.Errorf("decrypted content = %q", data)
		}
	}

	if _, err := Open(pdf, Options{Password: "wrong"}); !errors.Is(err, security.ErrBadPassword) {
		t.Errorf("wrong password: err = %v, want ErrBadPassword", err)
	}
	if _, err := Open(pdf, Options{}); !errors.Is(err, security.ErrBadPassword) {
		t.Errorf("empty password: err = %v, want ErrBadPassword", err)
	}
}

func TestIncrementalUpdateChain(t *testing.T) {
	base := writeHello(t, writer.Config{})

	// Append a minimal update replacing nothing but adding an object.
	var buf bytes.Buffer
	buf.Write(base)
	objOff := buf.Len()
	newNum := 8
	fmt.Fprintf(&buf, "%d 0 obj\n(appended)\nendobj\n", newNum)
	xrefOff := buf.Len()
	prev, err := findStartXRef(base)
	if err != nil {
		t.Fatal(err)
	}
	fmt.Fprintf(&buf, "xref\n0 1\n0000000000 65535 f \n%d 1\n%010d 00000 n \n", newNum, objOff)
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 5 0 R /Prev %d >>\nstartxref\n%d\n%%%%EOF\n",
		newNum+1, prev, xrefOff)

	r, err := Open(buf.Bytes(), Options{})
	if err != nil {
		t.Fatal(err)
	}
	obj, err := r.Resolve(object.Ref{Num: newNum})
	if err != nil {
		t.Fatal(err)
	}
	if s, ok := obj.(object.String); !ok || string(s.Data) != "appended" {
		t.Errorf("appended object = %#v", obj)
	}
	// Objects from the base revision stay reachable.
	page := followPage(t, r)
	if _, ok := page.GetRef("Contents"); !ok {
		t.Error("base revision page lost after update")
	}
}

func TestObjectStreams(t *testing.T) {
	catalog := "<< /Type /Catalog /Pages 3 0 R >>"
	pages := "<< /Type /Pages /Kids [] /Count 0 >>"
	header := fmt.Sprintf("2 0 3 %d ", len(catalog)+1)
	content := header + catalog + " " + pages

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.5\n")
	off1 := buf.Len()
	fmt.Fprintf(&buf, "1 0 obj\n<< /Type /ObjStm /N 2 /First %d /Length %d >>\nstream\n%s\nendstream\nendobj\n",
		len(header), len(content), content)

	tab := xref.NewTable()
	tab.Set(1, xref.Entry{Type: xref.InUse, Offset: int64(off1)})
	tab.Set(2, xref.Entry{Type: xref.InStream, StreamNum: 1, StreamIdx: 0})
	tab.Set(3, xref.Entry{Type: xref.InStream, StreamNum: 1, StreamIdx: 1})
	off4 := buf.Len()
	tab.Set(4, xref.Entry{Type: xref.InUse, Offset: int64(off4)})
	data, w, index := xref.EncodeStreamData(tab, 5)
	fmt.Fprintf(&buf, "4 0 obj\n<< /Type /XRef /Size 5 /W [%d %d %d] /Index [%d %d] /Root 2 0 R /Length %d >>\nstream\n",
		w[0], w[1], w[2], index[0], index[1], len(data))
	buf.Write(data)
	buf.WriteString("\nendstream\nendobj\n")
	fmt.Fprintf(&buf, "startxref\n%d\n%%%%EOF\n", off4)

	r, err := Open(buf.Bytes(), Options{})
	if err != nil {
		t.Fatal(err)
	}
	root, _ := r.Root()
	obj, err := r.Resolve(root)
	if err != nil {
		t.Fatal(err)
	}
	dict, ok := obj.(*object.Dict)
	if !ok {
		t.Fatalf("catalog = %#v", obj)
	}
	if tp, _ := dict.GetName("Type"); tp != "Catalog" {
		t.Errorf("Type = %q", tp)
	}
	pagesObj, err := r.Resolve(object.Ref{Num: 3})
	if err != nil {
		t.Fatal(err)
	}
	if tp, _ := pagesObj.(*object.Dict).GetName("Type"); tp != "Pages" {
		t.Errorf("member 1 Type = %q", tp)
	}
}

func TestCircularXrefChain(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	xrefOff := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 1\n0000000000 65535 f \ntrailer\n<< /Size 1 /Prev %d >>\n", xrefOff)
	fmt.Fprintf(&buf, "startxref\n%d\n%%%%EOF\n", xrefOff)

	_, err := Open(buf.Bytes(), Options{})
	if !errors.Is(err, ErrCircularXref) {
		t.Errorf("err = %v, want ErrCircularXref", err)
	}
}

func TestCorruptStructure(t *testing.T) {
	cases := []struct {
		name string
		data string
	}{
		{"no eof", "%PDF-1.4\nxref\n"},
		{"offset outside file", "%PDF-1.4\nstartxref\n99999\n%%EOF\n"},
		{"junk at xref offset", "%PDF-1.4\ngarbage here\nstartxref\n9\n%%EOF\n"},
	}
	for _, c := range cases {
		if _, err := Open([]byte(c.data), Options{}); !errors.Is(err, ErrCorrupt) {
			t.Errorf("%s: err = %v, want ErrCorrupt", c.name, err)
		}
	}
}

func TestResolveFreeIsNull(t *testing.T) {
	pdf := writeHello(t, writer.Config{})
	r, err := Open(pdf, Options{})
	if err != nil {
		t.Fatal(err)
	}
	obj, err := r.Resolve(object.Ref{Num: 4000})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := obj.(object.Null); !ok {
		t.Errorf("unknown object resolved to %#v", obj)
	}
}

func TestTruncatedStream(t *testing.T) {
	pdf := writeHello(t, writer.Config{})
	cut := bytes.Index(pdf, []byte("endstream"))
	truncated := append([]byte{}, pdf[:cut-20]...)
	truncated = append(truncated, pdf[cut+len("endstream"):]...)

	r, err := Open(truncated, Options{})
	if err != nil {
		// The xref offsets moved; structural failure at open time is
		// an acceptable outcome for a truncated body.
		if !errors.Is(err, ErrCorrupt) {
			t.Errorf("err = %v, want ErrCorrupt", err)
		}
		return
	}
	page := followPage(t, r)
	contentRef, _ := page.GetRef("Contents")
	if _, err := r.StreamData(contentRef); !errors.Is(err, ErrCorrupt) {
		t.Errorf("err = %v, want ErrCorrupt", err)
	}
}

func TestIndirectLengthCycle(t *testing.T) {
	// Two streams whose Length entries reference each other must fail
	// with ErrCorrupt instead of recursing.
	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	off1 := buf.Len()
	buf.WriteString("1 0 obj\n<< /Length 2 0 R >>\nstream\nabc\nendstream\nendobj\n")
	off2 := buf.Len()
	buf.WriteString("2 0 obj\n<< /Length 1 0 R >>\nstream\nxyz\nendstream\nendobj\n")
	off3 := buf.Len()
	buf.WriteString("3 0 obj\n<< /Type /Catalog >>\nendobj\n")
	xrefOff := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 4\n0000000000 65535 f \n%010d 00000 n \n%010d 00000 n \n%010d 00000 n \n",
		off1, off2, off3)
	fmt.Fprintf(&buf, "trailer\n<< /Size 4 /Root 3 0 R >>\nstartxref\n%d\n%%%%EOF\n", xrefOff)

	r, err := Open(buf.Bytes(), Options{})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := r.Resolve(object.Ref{Num: 1}); !errors.Is(err, ErrCorrupt) {
		t.Errorf("err = %v, want ErrCorrupt", err)
	}
}

func TestObjectStreamContainerCycle(t *testing.T) {
	// An xref entry placing an object inside itself as its own object
	// stream container must fail with ErrCorrupt instead of recursing.
	var buf bytes.Buffer
	buf.WriteString("%PDF-1.5\n")
	xrefOff := buf.Len()

	tab := xref.NewTable()
	tab.Set(1, xref.Entry{Type: xref.InStream, StreamNum: 1, StreamIdx: 0})
	tab.Set(2, xref.Entry{Type: xref.InUse, Offset: int64(xrefOff)})
	data, w, index := xref.EncodeStreamData(tab, 3)
	fmt.Fprintf(&buf, "2 0 obj\n<< /Type /XRef /Size 3 /W [%d %d %d] /Index [%d %d] /Root 1 0 R /Length %d >>\nstream\n",
		w[0], w[1], w[2], index[0], index[1], len(data))
	buf.Write(data)
	buf.WriteString("\nendstream\nendobj\n")
	fmt.Fprintf(&buf, "startxref\n%d\n%%%%EOF\n", xrefOff)

	r, err := Open(buf.Bytes(), Options{})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := r.Resolve(object.Ref{Num: 1}); !errors.Is(err, ErrCorrupt) {
		t.Errorf("err = %v, want ErrCorrupt", err)
	}
}

func TestRecoverBrokenStartXRef(t *testing.T) {
	pdf := writeHello(t, writer.Config{})

	// Point startxref past the end of the file.
	i := bytes.LastIndex(pdf, []byte("startxref"))
	broken := append([]byte{}, pdf...)
	for j := i + len("startxref") + 1; j < len(broken) && broken[j] != '\n'; j++ {
		broken[j] = '9'
	}

	if _, err := Open(broken, Options{}); !errors.Is(err, ErrCorrupt) {
		t.Fatalf("err = %v, want ErrCorrupt without recovery", err)
	}

	r, err := Open(broken, Options{Recover: true})
	if err != nil {
		t.Fatal(err)
	}
	page := followPage(t, r)
	contentRef, _ := page.GetRef("Contents")
	content, err := r.StreamData(contentRef)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(content), "(Hello, World!) Tj") {
		t.Errorf("content = %q", content)
	}
}

func TestRecoverWithoutTrailer(t *testing.T) {
	pdf := writeHello(t, writer.Config{})

	// Damage both the startxref offset and the trailer keyword so the
	// catalog must be found by scanning recovered objects.
	broken := bytes.Replace(pdf, []byte("trailer"), []byte("misfire"), 1)
	i := bytes.LastIndex(broken, []byte("startxref"))
	for j := i + len("startxref") + 1; j < len(broken) && broken[j] != '\n'; j++ {
		broken[j] = '9'
	}

	r, err := Open(broken, Options{Recover: true})
	if err != nil {
		t.Fatal(err)
	}
	root, ok := r.Root()
	if !ok {
		t.Fatal("recovery did not find the catalog")
	}
	catalog, err := r.Resolve(root)
	if err != nil {
		t.Fatal(err)
	}
	if tp, _ := catalog.(*object.Dict).GetName("Type"); tp != "Catalog" {
		t.Errorf("Type = %q", tp)
	}
}
