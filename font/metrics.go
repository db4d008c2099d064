package font

// Metrics holds the simplified measurement model for the standard
// fonts: glyph-space units with 1000 units per em.
type Metrics struct {
	UnitsPerEm int
	Ascender   int
	Descender  int // negative
	LineGap    int
	// AvgWidth is the approximate average advance used by
	// EstimateWidth.
	AvgWidth int
}

// MetricsFor returns the approximate metrics of a standard font,
// suitable for basic layout.
func MetricsFor(f Standard14) Metrics {
	switch {
	case f.IsSerif():
		return Metrics{UnitsPerEm: 1000, Ascender: 683, Descender: -217, AvgWidth: 480}
	case f.IsMonospace():
		return Metrics{UnitsPerEm: 1000, Ascender: 629, Descender: -157, AvgWidth: 600}
	case f.IsSymbolic():
		return Metrics{UnitsPerEm: 1000, Ascender: 800, Descender: -200, AvgWidth: 500}
	}
	return Metrics{UnitsPerEm: 1000, Ascender: 718, Descender: -207, AvgWidth: 520}
}

// LineHeight returns the default line height at size points.
func (m Metrics) LineHeight(size float64) float64 {
	return size * float64(m.Ascender-m.Descender+m.LineGap) / float64(m.UnitsPerEm)
}

// EstimateWidth approximates the advance of text at size points using
// the average character width.
func (m Metrics) EstimateWidth(text string, size float64) float64 {
	count := 0
	for range text {
		count++
	}
	return size * float64(m.AvgWidth) * float64(count) / float64(m.UnitsPerEm)
}

// helveticaWidths maps printable ASCII to Helvetica advances in
// glyph-space units. Characters outside the table fall back to 556.
var helveticaWidths = map[rune]int{
	' ': 278, '!': 278, '"': 355, '#': 556, '$': 556, '%': 889,
	'&': 667, '\'': 191, '(': 333, ')': 333, '*': 389, '+': 584,
	',': 278, '-': 333, '.': 278, '/': 278,
	':': 278, ';': 278, '<': 584, '=': 584, '>': 584, '?': 556,
	'@': 1015,
	'I': 278, 'J': 500, 'M': 833, 'W': 833,
	'C': 722, 'D': 722, 'G': 722, 'O': 722, 'Q': 722,
	'i': 222, 'j': 222, 'l': 222, 'm': 833, 'w': 722,
	'f': 278, 't': 278, 'r': 333, 's': 500,
	'[': 278, ']': 278, '\\': 278, '^': 469, '_': 556, '`': 333,
	'{': 334, '}': 334, '|': 260, '~': 584,
}

// HelveticaCharWidth returns the advance of c in Helvetica,
// glyph-space units.
func HelveticaCharWidth(c rune) int {
	if w, ok := helveticaWidths[c]; ok {
		return w
	}
	switch {
	case c >= '0' && c <= '9':
		return 556
	case c >= 'A' && c <= 'Z':
		return 611
	case c >= 'a' && c <= 'z':
		return 556
	}
	return 556
}

// HelveticaTextWidth returns the exact advance of text in Helvetica at
// size points.
func HelveticaTextWidth(text string, size float64) float64 {
	total := 0
	for _, c := range text {
		total += HelveticaCharWidth(c)
	}
	return size * float64(total) / 1000
}
