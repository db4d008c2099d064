// Package builder assembles documents from high level drawing calls:
// pages, text in the standard fonts, paths, and images. The result is
// an object graph ready for the writer, so every serialization option
// (encryption, cross-reference streams) applies unchanged.
package builder

import (
	"bytes"
	"compress/zlib"
	"errors"
	"fmt"
	"io"

	"github.com/quillpdf/quill/font"
	"github.com/quillpdf/quill/object"
	"github.com/quillpdf/quill/security"
	"github.com/quillpdf/quill/writer"
)

// ErrNoPages is returned by Build for a document without any pages.
var ErrNoPages = errors.New("document has no pages")

// Builder accumulates pages and document options.
type Builder struct {
	info       object.Info
	version    string
	compress   bool
	encryption *security.Options
	rand       io.Reader
	pages      []*Page
}

func New() *Builder { return &Builder{} }

func (b *Builder) WithTitle(s string) *Builder    { b.info.Title = s; return b }
func (b *Builder) WithAuthor(s string) *Builder   { b.info.Author = s; return b }
func (b *Builder) WithSubject(s string) *Builder  { b.info.Subject = s; return b }
func (b *Builder) WithKeywords(s string) *Builder { b.info.Keywords = s; return b }
func (b *Builder) WithCreator(s string) *Builder  { b.info.Creator = s; return b }
func (b *Builder) WithProducer(s string) *Builder { b.info.Producer = s; return b }

// WithInfo replaces the whole information dictionary at once.
func (b *Builder) WithInfo(info object.Info) *Builder { b.info = info; return b }

// WithVersion overrides the header version, "1.7" by default.
func (b *Builder) WithVersion(v string) *Builder { b.version = v; return b }

// WithCompression deflates page content streams.
func (b *Builder) WithCompression(on bool) *Builder { b.compress = on; return b }

// WithEncryption encrypts the document when saved through Save.
func (b *Builder) WithEncryption(opts security.Options) *Builder {
	b.encryption = &opts
	return b
}

// WithRandom fixes the random source used by Save, making output
// reproducible.
func (b *Builder) WithRandom(r io.Reader) *Builder { b.rand = r; return b }

// AddPage appends a page. Pages appear in insertion order.
func (b *Builder) AddPage(p *Page) *Builder {
	b.pages = append(b.pages, p)
	return b
}

// Build assembles the object graph: one content stream and page
// dictionary per page, a shared font dictionary per standard face, the
// page tree, and the catalog.
func (b *Builder) Build() (*object.Document, error) {
	if len(b.pages) == 0 {
		return nil, ErrNoPages
	}
	doc := object.NewDocument()
	doc.Info = b.info
	if b.version != "" {
		doc.Version = b.version
	}

	fontRefs := make(map[font.Standard14]object.Ref)
	pagesRef := doc.Reserve()
	kids := make(object.Array, 0, len(b.pages))

	for i, p := range b.pages {
		if p.err != nil {
			return nil, fmt.Errorf("page %d: %w", i+1, p.err)
		}
		content, err := p.content.Bytes()
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", i+1, err)
		}
		contentDict := object.NewDict()
		if b.compress {
			var buf bytes.Buffer
			zw := zlib.NewWriter(&buf)
			if _, err := zw.Write(content); err != nil {
				return nil, err
			}
			if err := zw.Close(); err != nil {
				return nil, err
			}
			contentDict.Set("Filter", object.Name("FlateDecode"))
			content = buf.Bytes()
		}
		contentRef := doc.Register(object.NewStream(contentDict, content))

		resources := object.NewDict()
		if len(p.fonts) > 0 {
			fonts := object.NewDict()
			for _, f := range p.fonts {
				ref, ok := fontRefs[f.face]
				if !ok {
					ref = doc.Register(f.face.Dict())
					fontRefs[f.face] = ref
				}
				fonts.Set(resourceName(f.name), ref)
			}
			resources.Set("Font", fonts)
		}
		if len(p.images) > 0 {
			xobjects := object.NewDict()
			for _, im := range p.images {
				xo, err := im.img.XObject()
				if err != nil {
					return nil, fmt.Errorf("page %d image %q: %w", i+1, im.name, err)
				}
				xobjects.Set(resourceName(im.name), doc.Register(xo))
			}
			resources.Set("XObject", xobjects)
		}

		page := object.NewDict()
		page.Set("Type", object.Name("Page"))
		page.Set("Parent", pagesRef)
		page.Set("MediaBox", object.Array{
			object.Real(p.media.LLX), object.Real(p.media.LLY),
			object.Real(p.media.URX), object.Real(p.media.URY),
		})
		page.Set("Resources", resources)
		page.Set("Contents", contentRef)
		kids = append(kids, doc.Register(page))
	}

	pages := object.NewDict()
	pages.Set("Type", object.Name("Pages"))
	pages.Set("Kids", kids)
	pages.Set("Count", object.Integer(len(kids)))
	if _, err := doc.Replace(pagesRef, pages); err != nil {
		return nil, err
	}

	catalog := object.NewDict()
	catalog.Set("Type", object.Name("Catalog"))
	catalog.Set("Pages", pagesRef)
	doc.Root = doc.Register(catalog)
	return doc, nil
}

// Save builds the document and serializes it to out, applying the
// configured encryption.
func (b *Builder) Save(out io.Writer) error {
	doc, err := b.Build()
	if err != nil {
		return err
	}
	return writer.Write(doc, out, writer.Config{
		Version:    b.version,
		Encryption: b.encryption,
		Rand:       b.rand,
	})
}

func resourceName(s string) object.Name { return object.Name(s) }
