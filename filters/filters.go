// Package filters implements the stream encodings used by the
// serializer and parser: FlateDecode, LZWDecode, ASCIIHexDecode,
// ASCII85Decode, and RunLengthDecode, with PNG predictor support for
// Flate and LZW decode parameters.
package filters

import (
	"bytes"
	"compress/zlib"
	stdascii85 "encoding/ascii85"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"github.com/quillpdf/quill/object"
)

// Codec encodes and decodes one filter. Decode receives the decode
// parameter dictionary declared next to the filter name, which may be
// nil.
type Codec interface {
	Name() object.Name
	Encode(data []byte) ([]byte, error)
	Decode(data []byte, params *object.Dict) ([]byte, error)
}

// Limits bounds resource usage during decoding.
type Limits struct {
	// MaxDecodedSize caps the output of a single Decode call.
	// Zero means no limit.
	MaxDecodedSize int64
}

// Registry maps filter names to codecs.
type Registry struct {
	codecs map[object.Name]Codec
	limits Limits
}

// NewRegistry returns a registry preloaded with the standard codecs.
func NewRegistry(limits Limits) *Registry {
	r := &Registry{codecs: make(map[object.Name]Codec), limits: limits}
	r.Register(Flate{})
	r.Register(LZW{})
	r.Register(ASCIIHex{})
	r.Register(ASCII85{})
	r.Register(RunLength{})
	return r
}

func (r *Registry) Register(c Codec) { r.codecs[c.Name()] = c }

func (r *Registry) Get(name object.Name) (Codec, bool) {
	c, ok := r.codecs[name]
	return c, ok
}

// Decode runs data through the named filters in order, applying the
// matching decode parameter dictionary to each.
func (r *Registry) Decode(data []byte, names []object.Name, params []*object.Dict) ([]byte, error) {
	for i, name := range names {
		c, ok := r.codecs[name]
		if !ok {
			return nil, fmt.Errorf("unknown filter %s", name)
		}
		var p *object.Dict
		if i < len(params) {
			p = params[i]
		}
		out, err := c.Decode(data, p)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		if r.limits.MaxDecodedSize > 0 && int64(len(out)) > r.limits.MaxDecodedSize {
			return nil, fmt.Errorf("%s: decoded size %d exceeds limit", name, len(out))
		}
		data = out
	}
	return data, nil
}

// Flate implements FlateDecode using zlib streams, which is what the
// format requires despite the name.
type Flate struct{}

func (Flate) Name() object.Name { return "FlateDecode" }

func (Flate) Encode(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (Flate) Decode(data []byte, params *object.Dict) ([]byte, error) {
	zr, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer zr.Close()
	out, err := io.ReadAll(zr)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, err
	}
	return applyPredictor(out, params)
}

// LZW implements LZWDecode: MSB bit order, with the code width change
// one code early unless DecodeParms carries EarlyChange 0.
type LZW struct{}

func (LZW) Name() object.Name { return "LZWDecode" }

func (LZW) Encode(data []byte) ([]byte, error) {
	return lzwEncode(data, 1), nil
}

func (LZW) Decode(data []byte, params *object.Dict) ([]byte, error) {
	early := 1
	if params != nil {
		if v, ok := params.GetInt("EarlyChange"); ok && v == 0 {
			early = 0
		}
	}
	out, err := lzwDecode(data, early)
	if err != nil {
		return nil, err
	}
	return applyPredictor(out, params)
}

// ASCIIHex implements ASCIIHexDecode.
type ASCIIHex struct{}

func (ASCIIHex) Name() object.Name { return "ASCIIHexDecode" }

func (ASCIIHex) Encode(data []byte) ([]byte, error) {
	out := make([]byte, hex.EncodedLen(len(data))+1)
	hex.Encode(out, data)
	out[len(out)-1] = '>'
	return out, nil
}

func (ASCIIHex) Decode(data []byte, _ *object.Dict) ([]byte, error) {
	compact := make([]byte, 0, len(data))
	for _, b := range data {
		if b == '>' {
			break
		}
		if isHexDigit(b) {
			compact = append(compact, b)
		} else if !isSpace(b) {
			return nil, fmt.Errorf("invalid hex digit %q", b)
		}
	}
	if len(compact)%2 == 1 {
		compact = append(compact, '0')
	}
	out := make([]byte, hex.DecodedLen(len(compact)))
	if _, err := hex.Decode(out, compact); err != nil {
		return nil, err
	}
	return out, nil
}

// ASCII85 implements ASCII85Decode.
type ASCII85 struct{}

func (ASCII85) Name() object.Name { return "ASCII85Decode" }

func (ASCII85) Encode(data []byte) ([]byte, error) {
	out := make([]byte, stdascii85.MaxEncodedLen(len(data)))
	n := stdascii85.Encode(out, data)
	return append(out[:n], '~', '>'), nil
}

func (ASCII85) Decode(data []byte, _ *object.Dict) ([]byte, error) {
	trimmed := bytes.TrimSpace(data)
	trimmed = bytes.TrimPrefix(trimmed, []byte("<~"))
	trimmed = bytes.TrimSuffix(trimmed, []byte("~>"))
	out := make([]byte, len(trimmed)*4)
	n, _, err := stdascii85.Decode(out, trimmed, true)
	if err != nil {
		return nil, err
	}
	return out[:n], nil
}

// RunLength implements RunLengthDecode.
type RunLength struct{}

func (RunLength) Name() object.Name { return "RunLengthDecode" }

func (RunLength) Encode(data []byte) ([]byte, error) {
	var out bytes.Buffer
	for i := 0; i < len(data); {
		// Find run of identical bytes.
		j := i + 1
		for j < len(data) && j-i < 128 && data[j] == data[i] {
			j++
		}
		if j-i >= 2 {
			out.WriteByte(byte(257 - (j - i)))
			out.WriteByte(data[i])
			i = j
			continue
		}
		// Literal run up to the next repeat or 128 bytes.
		j = i + 1
		for j < len(data) && j-i < 128 {
			if j+1 < len(data) && data[j] == data[j+1] {
				break
			}
			j++
		}
		out.WriteByte(byte(j - i - 1))
		out.Write(data[i:j])
		i = j
	}
	out.WriteByte(128) // EOD
	return out.Bytes(), nil
}

func (RunLength) Decode(data []byte, _ *object.Dict) ([]byte, error) {
	var out bytes.Buffer
	for i := 0; i < len(data); {
		length := int(data[i])
		i++
		if length == 128 {
			break
		}
		if length < 128 {
			end := i + length + 1
			if end > len(data) {
				return nil, errors.New("truncated literal run")
			}
			out.Write(data[i:end])
			i = end
			continue
		}
		if i >= len(data) {
			return nil, errors.New("truncated repeat run")
		}
		for n := 0; n < 257-length; n++ {
			out.WriteByte(data[i])
		}
		i++
	}
	return out.Bytes(), nil
}

func isHexDigit(b byte) bool {
	return b >= '0' && b <= '9' || b >= 'a' && b <= 'f' || b >= 'A' && b <= 'F'
}

func isSpace(b byte) bool {
	switch b {
	case 0, '\t', '\n', '\f', '\r', ' ':
		return true
	}
	return false
}
