package filters

import (
	"bytes"
	"testing"

	"github.com/quillpdf/quill/object"
)

var samples = [][]byte{
	[]byte(""),
	[]byte("BT /F1 24 Tf 72 720 Td (Hello, World!) Tj ET"),
	bytes.Repeat([]byte{0xAB}, 1000),
	{0, 1, 2, 3, 255, 254, 128, 127},
}

func TestCodecRoundTrips(t *testing.T) {
	reg := NewRegistry(Limits{})
	for _, name := range []object.Name{"FlateDecode", "LZWDecode", "ASCIIHexDecode", "ASCII85Decode", "RunLengthDecode"} {
		c, ok := reg.Get(name)
		if !ok {
			t.Fatalf("codec %s not registered", name)
		}
		for _, in := range samples {
			enc, err := c.Encode(in)
			if err != nil {
				t.Fatalf("%s encode: %v", name, err)
			}
			dec, err := c.Decode(enc, nil)
			if err != nil {
				t.Fatalf("%s decode: %v", name, err)
			}
			if !bytes.Equal(dec, in) {
				t.Errorf("%s round trip changed %d bytes -> %d bytes", name, len(in), len(dec))
			}
		}
	}
}

func TestDecodeChain(t *testing.T) {
	reg := NewRegistry(Limits{})
	plain := []byte("chained filter payload")
	flate, _ := Flate{}.Encode(plain)
	hexed, _ := ASCIIHex{}.Encode(flate)

	// Filters are listed in decode order: hex first, then flate.
	out, err := reg.Decode(hexed, []object.Name{"ASCIIHexDecode", "FlateDecode"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(out, plain) {
		t.Errorf("chain decode = %q", out)
	}
}

func TestDecodeLimit(t *testing.T) {
	reg := NewRegistry(Limits{MaxDecodedSize: 16})
	big, _ := Flate{}.Encode(bytes.Repeat([]byte{'x'}, 4096))
	if _, err := reg.Decode(big, []object.Name{"FlateDecode"}, nil); err == nil {
		t.Error("expected size limit error")
	}
}

func TestPNGUpPredictor(t *testing.T) {
	// Two rows, 4 columns, 1 color, 8 bpc, filter type 2 (up).
	raw := []byte{
		0, 1, 2, 3, 4, // row 0: none
		2, 1, 1, 1, 1, // row 1: up
	}
	params := object.NewDict()
	params.Set("Predictor", object.Integer(12))
	params.Set("Columns", object.Integer(4))

	enc, _ := Flate{}.Encode(raw)
	out, err := Flate{}.Decode(enc, params)
	if err != nil {
		t.Fatal(err)
	}
	want := []byte{1, 2, 3, 4, 2, 3, 4, 5}
	if !bytes.Equal(out, want) {
		t.Errorf("predictor output = %v, want %v", out, want)
	}
}

// lzwSample generates varied data that grows the code table quickly.
func lzwSample(n int) []byte {
	out := make([]byte, n)
	state := uint32(0x2545F491)
	for i := range out {
		state = state*1664525 + 1013904223
		out[i] = byte(state >> 24)
	}
	return out
}

func TestLZWWidthChange(t *testing.T) {
	// Enough distinct sequences to push the code table past 511
	// entries, so the round trip only survives if both sides switch
	// code width before the same code.
	in := lzwSample(4096)
	enc, err := LZW{}.Encode(in)
	if err != nil {
		t.Fatal(err)
	}
	dec, err := LZW{}.Decode(enc, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(dec, in) {
		t.Errorf("round trip changed %d bytes -> %d bytes", len(in), len(dec))
	}
}

func TestLZWEarlyChangeParam(t *testing.T) {
	in := lzwSample(2048)
	enc := lzwEncode(in, 0)

	params := object.NewDict()
	params.Set("EarlyChange", object.Integer(0))
	dec, err := LZW{}.Decode(enc, params)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(dec, in) {
		t.Errorf("EarlyChange 0 round trip changed %d bytes -> %d bytes", len(in), len(dec))
	}

	// The default assumes the early width change; a stream written
	// without it must not decode to the same bytes.
	if dec, err := (LZW{}).Decode(enc, nil); err == nil && bytes.Equal(dec, in) {
		t.Error("stream without the early change decoded identically under the default")
	}
}

func TestASCIIHexOddDigits(t *testing.T) {
	out, err := ASCIIHex{}.Decode([]byte("48656C6C6F2"), nil)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(out, []byte("Hello ")) {
		t.Errorf("odd-length hex = %q", out)
	}
}

func TestRunLengthRuns(t *testing.T) {
	in := []byte("aaaaabcdeeeee")
	enc, err := RunLength{}.Encode(in)
	if err != nil {
		t.Fatal(err)
	}
	dec, err := RunLength{}.Decode(enc, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(dec, in) {
		t.Errorf("round trip = %q", dec)
	}
	if len(enc) >= len(in)+2 {
		t.Errorf("runs not compressed: %d -> %d", len(in), len(enc))
	}
}
