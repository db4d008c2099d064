// Package font provides the 14 standard fonts every conforming reader
// ships with, along with the simplified metrics used for text
// measurement. None of these fonts require embedding.
package font

import "github.com/quillpdf/quill/object"

// Standard14 identifies one of the built-in fonts.
type Standard14 int

const (
	TimesRoman Standard14 = iota
	TimesBold
	TimesItalic
	TimesBoldItalic
	Helvetica
	HelveticaBold
	HelveticaOblique
	HelveticaBoldOblique
	Courier
	CourierBold
	CourierOblique
	CourierBoldOblique
	Symbol
	ZapfDingbats
)

var postScriptNames = [...]string{
	TimesRoman:           "Times-Roman",
	TimesBold:            "Times-Bold",
	TimesItalic:          "Times-Italic",
	TimesBoldItalic:      "Times-BoldItalic",
	Helvetica:            "Helvetica",
	HelveticaBold:        "Helvetica-Bold",
	HelveticaOblique:     "Helvetica-Oblique",
	HelveticaBoldOblique: "Helvetica-BoldOblique",
	Courier:              "Courier",
	CourierBold:          "Courier-Bold",
	CourierOblique:       "Courier-Oblique",
	CourierBoldOblique:   "Courier-BoldOblique",
	Symbol:               "Symbol",
	ZapfDingbats:         "ZapfDingbats",
}

// PostScriptName returns the BaseFont value for the font.
func (f Standard14) PostScriptName() string {
	if f < 0 || int(f) >= len(postScriptNames) {
		return ""
	}
	return postScriptNames[f]
}

// IsMonospace reports whether the font is fixed-width.
func (f Standard14) IsMonospace() bool {
	return f >= Courier && f <= CourierBoldOblique
}

// IsSerif reports whether the font is a serif face.
func (f Standard14) IsSerif() bool {
	return f >= TimesRoman && f <= TimesBoldItalic
}

// IsSymbolic reports whether the font uses a symbolic encoding.
func (f Standard14) IsSymbolic() bool {
	return f == Symbol || f == ZapfDingbats
}

// Dict builds the font dictionary for this font.
func (f Standard14) Dict() *object.Dict {
	d := object.NewDict()
	d.Set("Type", object.Name("Font"))
	d.Set("Subtype", object.Name("Type1"))
	d.Set("BaseFont", object.Name(f.PostScriptName()))
	return d
}

// All returns the complete set in declaration order.
func All() []Standard14 {
	out := make([]Standard14, 14)
	for i := range out {
		out[i] = Standard14(i)
	}
	return out
}

// ByName resolves a PostScript name back to its font.
func ByName(name string) (Standard14, bool) {
	for i, n := range postScriptNames {
		if n == name {
			return Standard14(i), true
		}
	}
	return 0, false
}
