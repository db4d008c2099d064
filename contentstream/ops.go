package contentstream

import "github.com/quillpdf/quill/object"

// Typed wrappers over Op for the operators the builder layer uses.

// SaveState emits q.
func (e *Encoder) SaveState() *Encoder { return e.Op("q") }

// RestoreState emits Q.
func (e *Encoder) RestoreState() *Encoder { return e.Op("Q") }

// ConcatMatrix emits cm.
func (e *Encoder) ConcatMatrix(a, b, c, d, tx, ty float64) *Encoder {
	return e.Op("cm", a, b, c, d, tx, ty)
}

// SetLineWidth emits w.
func (e *Encoder) SetLineWidth(width float64) *Encoder { return e.Op("w", width) }

// SetLineCap emits J.
func (e *Encoder) SetLineCap(style int) *Encoder { return e.Op("J", style) }

// SetLineJoin emits j.
func (e *Encoder) SetLineJoin(style int) *Encoder { return e.Op("j", style) }

// SetDashPattern emits d.
func (e *Encoder) SetDashPattern(pattern []float64, phase float64) *Encoder {
	return e.Op("d", pattern, phase)
}

// SetGrayStroke emits G; SetGrayFill emits g.
func (e *Encoder) SetGrayStroke(gray float64) *Encoder { return e.Op("G", gray) }
func (e *Encoder) SetGrayFill(gray float64) *Encoder   { return e.Op("g", gray) }

// SetRGBStroke emits RG; SetRGBFill emits rg.
func (e *Encoder) SetRGBStroke(r, g, b float64) *Encoder { return e.Op("RG", r, g, b) }
func (e *Encoder) SetRGBFill(r, g, b float64) *Encoder   { return e.Op("rg", r, g, b) }

// SetCMYKStroke emits K; SetCMYKFill emits k.
func (e *Encoder) SetCMYKStroke(c, m, y, k float64) *Encoder { return e.Op("K", c, m, y, k) }
func (e *Encoder) SetCMYKFill(c, m, y, k float64) *Encoder   { return e.Op("k", c, m, y, k) }

// MoveTo emits m.
func (e *Encoder) MoveTo(x, y float64) *Encoder { return e.Op("m", x, y) }

// LineTo emits l.
func (e *Encoder) LineTo(x, y float64) *Encoder { return e.Op("l", x, y) }

// CurveTo emits c.
func (e *Encoder) CurveTo(x1, y1, x2, y2, x3, y3 float64) *Encoder {
	return e.Op("c", x1, y1, x2, y2, x3, y3)
}

// ClosePath emits h.
func (e *Encoder) ClosePath() *Encoder { return e.Op("h") }

// Rectangle emits re.
func (e *Encoder) Rectangle(x, y, w, h float64) *Encoder { return e.Op("re", x, y, w, h) }

// Stroke emits S; Fill emits f; FillAndStroke emits B; EndPath emits n.
func (e *Encoder) Stroke() *Encoder        { return e.Op("S") }
func (e *Encoder) Fill() *Encoder          { return e.Op("f") }
func (e *Encoder) FillAndStroke() *Encoder { return e.Op("B") }
func (e *Encoder) EndPath() *Encoder       { return e.Op("n") }

// Clip emits W.
func (e *Encoder) Clip() *Encoder { return e.Op("W") }

// BeginText emits BT; EndText emits ET.
func (e *Encoder) BeginText() *Encoder { return e.Op("BT") }
func (e *Encoder) EndText() *Encoder   { return e.Op("ET") }

// SetFont emits Tf.
func (e *Encoder) SetFont(name object.Name, size float64) *Encoder {
	return e.Op("Tf", name, size)
}

// MoveText emits Td.
func (e *Encoder) MoveText(tx, ty float64) *Encoder { return e.Op("Td", tx, ty) }

// SetTextMatrix emits Tm.
func (e *Encoder) SetTextMatrix(a, b, c, d, tx, ty float64) *Encoder {
	return e.Op("Tm", a, b, c, d, tx, ty)
}

// NextLine emits T*.
func (e *Encoder) NextLine() *Encoder { return e.Op("T*") }

// SetLeading emits TL.
func (e *Encoder) SetLeading(leading float64) *Encoder { return e.Op("TL", leading) }

// SetCharSpacing emits Tc; SetWordSpacing emits Tw.
func (e *Encoder) SetCharSpacing(spacing float64) *Encoder { return e.Op("Tc", spacing) }
func (e *Encoder) SetWordSpacing(spacing float64) *Encoder { return e.Op("Tw", spacing) }

// SetTextRenderMode emits Tr.
func (e *Encoder) SetTextRenderMode(mode int) *Encoder { return e.Op("Tr", mode) }

// ShowText emits Tj.
func (e *Encoder) ShowText(text string) *Encoder { return e.Op("Tj", text) }

// DrawXObject emits Do.
func (e *Encoder) DrawXObject(name object.Name) *Encoder { return e.Op("Do", name) }
