package builder

import (
	"fmt"

	"github.com/quillpdf/quill/contentstream"
	"github.com/quillpdf/quill/font"
	"github.com/quillpdf/quill/imaging"
)

// Rect is a rectangle in default user space, points with origin at the
// lower left.
type Rect struct {
	LLX, LLY, URX, URY float64
}

func (r Rect) Width() float64  { return r.URX - r.LLX }
func (r Rect) Height() float64 { return r.URY - r.LLY }

// Common paper sizes in points.
var (
	A4     = Rect{URX: 595, URY: 842}
	A3     = Rect{URX: 842, URY: 1191}
	A5     = Rect{URX: 420, URY: 595}
	Letter = Rect{URX: 612, URY: 792}
	Legal  = Rect{URX: 612, URY: 1008}
)

type fontResource struct {
	name string
	face font.Standard14
}

type imageResource struct {
	name string
	img  *imaging.Image
}

// Page accumulates resources and drawing operations for one page. All
// drawing methods return the receiver for chaining; the first error is
// sticky and surfaces from Builder.Build.
type Page struct {
	media   Rect
	fonts   []fontResource
	images  []imageResource
	content *contentstream.Encoder
	err     error
}

// NewPage returns an empty page with the given media box.
func NewPage(media Rect) *Page {
	return &Page{media: media, content: contentstream.NewEncoder()}
}

// WithFont registers a standard font under a resource name, available
// to Text from then on.
func (p *Page) WithFont(name string, face font.Standard14) *Page {
	for _, f := range p.fonts {
		if f.name == name {
			p.fail(fmt.Errorf("font resource %q already defined", name))
			return p
		}
	}
	p.fonts = append(p.fonts, fontResource{name: name, face: face})
	return p
}

// WithImage registers an image under a resource name, available to
// DrawImage from then on.
func (p *Page) WithImage(name string, img *imaging.Image) *Page {
	for _, im := range p.images {
		if im.name == name {
			p.fail(fmt.Errorf("image resource %q already defined", name))
			return p
		}
	}
	p.images = append(p.images, imageResource{name: name, img: img})
	return p
}

// Text draws a single line of text with its baseline origin at (x, y).
func (p *Page) Text(fontName string, size, x, y float64, text string) *Page {
	if p.err != nil {
		return p
	}
	if !p.hasFont(fontName) {
		p.fail(fmt.Errorf("text uses undefined font resource %q", fontName))
		return p
	}
	p.content.BeginText().
		SetFont(resourceName(fontName), size).
		MoveText(x, y).
		ShowText(text).
		EndText()
	return p
}

// Line strokes a straight line segment.
func (p *Page) Line(x1, y1, x2, y2, width float64) *Page {
	if p.err != nil {
		return p
	}
	p.content.SaveState().
		SetLineWidth(width).
		MoveTo(x1, y1).
		LineTo(x2, y2).
		Stroke().
		RestoreState()
	return p
}

// StrokeRect strokes a rectangle outline.
func (p *Page) StrokeRect(x, y, w, h, width float64) *Page {
	if p.err != nil {
		return p
	}
	p.content.SaveState().
		SetLineWidth(width).
		Rectangle(x, y, w, h).
		Stroke().
		RestoreState()
	return p
}

// FillRect fills a rectangle with an RGB color.
func (p *Page) FillRect(x, y, w, h, r, g, b float64) *Page {
	if p.err != nil {
		return p
	}
	p.content.SaveState().
		SetRGBFill(r, g, b).
		Rectangle(x, y, w, h).
		Fill().
		RestoreState()
	return p
}

// DrawImage places a registered image with its lower-left corner at
// (x, y), scaled to w by h points.
func (p *Page) DrawImage(name string, x, y, w, h float64) *Page {
	if p.err != nil {
		return p
	}
	if !p.hasImage(name) {
		p.fail(fmt.Errorf("draw uses undefined image resource %q", name))
		return p
	}
	p.content.SaveState().
		ConcatMatrix(w, 0, 0, h, x, y).
		DrawXObject(resourceName(name)).
		RestoreState()
	return p
}

// Content exposes the underlying encoder for operators the typed
// methods do not cover.
func (p *Page) Content() *contentstream.Encoder { return p.content }

func (p *Page) hasFont(name string) bool {
	for _, f := range p.fonts {
		if f.name == name {
			return true
		}
	}
	return false
}

func (p *Page) hasImage(name string) bool {
	for _, im := range p.images {
		if im.name == name {
			return true
		}
	}
	return false
}

func (p *Page) fail(err error) {
	if p.err == nil {
		p.err = err
	}
}
