package font

import "testing"

func TestPostScriptNames(t *testing.T) {
	cases := []struct {
		f    Standard14
		want string
	}{
		{Helvetica, "Helvetica"},
		{TimesRoman, "Times-Roman"},
		{CourierBoldOblique, "Courier-BoldOblique"},
		{ZapfDingbats, "ZapfDingbats"},
	}
	for _, c := range cases {
		if got := c.f.PostScriptName(); got != c.want {
			t.Errorf("PostScriptName = %q, want %q", got, c.want)
		}
		back, ok := ByName(c.want)
		if !ok || back != c.f {
			t.Errorf("ByName(%q) = %v, %v", c.want, back, ok)
		}
	}
}

func TestClassification(t *testing.T) {
	if !Courier.IsMonospace() || Helvetica.IsMonospace() {
		t.Error("monospace classification wrong")
	}
	if !TimesRoman.IsSerif() || Helvetica.IsSerif() {
		t.Error("serif classification wrong")
	}
	if !Symbol.IsSymbolic() || Helvetica.IsSymbolic() {
		t.Error("symbolic classification wrong")
	}
}

func TestDict(t *testing.T) {
	d := HelveticaBold.Dict()
	if tp, _ := d.GetName("Type"); tp != "Font" {
		t.Errorf("Type = %q", tp)
	}
	if st, _ := d.GetName("Subtype"); st != "Type1" {
		t.Errorf("Subtype = %q", st)
	}
	if bf, _ := d.GetName("BaseFont"); bf != "Helvetica-Bold" {
		t.Errorf("BaseFont = %q", bf)
	}
}

func TestAll(t *testing.T) {
	fonts := All()
	if len(fonts) != 14 {
		t.Fatalf("len = %d", len(fonts))
	}
	seen := map[string]bool{}
	for _, f := range fonts {
		name := f.PostScriptName()
		if name == "" || seen[name] {
			t.Errorf("bad or duplicate name %q", name)
		}
		seen[name] = true
	}
}

func TestMetrics(t *testing.T) {
	m := MetricsFor(Helvetica)
	if m.UnitsPerEm != 1000 || m.Ascender <= 0 || m.Descender >= 0 {
		t.Errorf("metrics = %+v", m)
	}
	if h := m.LineHeight(12); h <= 10 || h >= 15 {
		t.Errorf("LineHeight(12) = %v", h)
	}
	if w := m.EstimateWidth("Hello", 12); w <= 0 {
		t.Errorf("EstimateWidth = %v", w)
	}
}

func TestHelveticaWidths(t *testing.T) {
	if w := HelveticaCharWidth(' '); w != 278 {
		t.Errorf("space = %d", w)
	}
	if w := HelveticaCharWidth('I'); w != 278 {
		t.Errorf("I = %d", w)
	}
	if w := HelveticaCharWidth('M'); w != 833 {
		t.Errorf("M = %d", w)
	}
	// H e l l o = 611 + 556 + 222 + 222 + 556 = 2167 units.
	want := 12.0 * 2167 / 1000
	if got := HelveticaTextWidth("Hello", 12); got != want {
		t.Errorf("width = %v, want %v", got, want)
	}
}
