package writer

import (
	"bytes"
	"encoding/hex"
	"fmt"

	"github.com/quillpdf/quill/object"
	"github.com/quillpdf/quill/security"
)

// serializer renders objects into the output buffer, applying
// encryption to string and stream payloads as it goes. A nil document
// disables reference validation (used for trailer dictionaries).
type serializer struct {
	doc     *object.Document
	handler security.Handler
	// num and gen identify the indirect object being emitted; they
	// seed the per-object key derivation.
	num, gen int
	// plaintext suppresses encryption for exempt objects: the Encrypt
	// dictionary, cross-reference streams, and signature Contents.
	plaintext bool
	// synthFrom/synthTo delimit the object numbers the writer assigns
	// past the document's own range (Info, Encrypt, the xref stream).
	// References into that range are valid even though the document
	// does not contain them.
	synthFrom, synthTo int
	// spans collects signature placeholder positions during emission.
	spans *signSpans
}

// syntheticRef reports whether v names a writer-assigned object.
func (s *serializer) syntheticRef(v object.Ref) bool {
	return v.Gen == 0 && s.synthFrom > 0 && v.Num >= s.synthFrom && v.Num <= s.synthTo
}

// contentsPlaceholder reserves size bytes of signature space, emitted
// as an all-zero hex string of fixed width.
type contentsPlaceholder struct{ size int }

func (contentsPlaceholder) Type() string { return "string" }

// byteRangePlaceholder reserves a fixed-width ByteRange array that the
// signing pass patches without moving any bytes.
type byteRangePlaceholder struct{}

func (byteRangePlaceholder) Type() string { return "array" }

const byteRangeDigits = 10

func (s *serializer) writeContentsPlaceholder(buf *bytes.Buffer, p contentsPlaceholder) {
	if s.spans != nil {
		s.spans.contentsStart = buf.Len()
	}
	buf.WriteByte('<')
	for i := 0; i < p.size*2; i++ {
		buf.WriteByte('0')
	}
	buf.WriteByte('>')
	if s.spans != nil {
		s.spans.contentsEnd = buf.Len()
	}
}

func (s *serializer) writeByteRangePlaceholder(buf *bytes.Buffer) {
	if s.spans != nil {
		s.spans.byteRangeStart = buf.Len()
	}
	fmt.Fprintf(buf, "[0 %0*d %0*d %0*d]",
		byteRangeDigits, 0, byteRangeDigits, 0, byteRangeDigits, 0)
	if s.spans != nil {
		s.spans.byteRangeEnd = buf.Len()
	}
}

func (s *serializer) serialize(buf *bytes.Buffer, obj object.Object) error {
	switch v := obj.(type) {
	case nil, object.Null:
		buf.WriteString("null")
	case object.Boolean:
		if v {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case object.Integer:
		fmt.Fprintf(buf, "%d", int64(v))
	case object.Real:
		buf.WriteString(object.FormatNumber(float64(v)))
	case object.Name:
		writeName(buf, v)
	case object.String:
		return s.writeString(buf, v)
	case object.Ref:
		if s.doc != nil && !s.doc.Contains(v) && !s.syntheticRef(v) {
			return fmt.Errorf("%w: %s", ErrUnresolvedRef, v)
		}
		fmt.Fprintf(buf, "%d %d R", v.Num, v.Gen)
	case object.Array:
		buf.WriteByte('[')
		for i, item := range v {
			if i > 0 {
				buf.WriteByte(' ')
			}
			if err := s.serialize(buf, item); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case *object.Dict:
		return s.writeDict(buf, v)
	case *object.Stream:
		return s.writeStream(buf, v)
	case contentsPlaceholder:
		s.writeContentsPlaceholder(buf, v)
	case byteRangePlaceholder:
		s.writeByteRangePlaceholder(buf)
	default:
		return fmt.Errorf("cannot serialize %T", obj)
	}
	return nil
}

func (s *serializer) writeDict(buf *bytes.Buffer, d *object.Dict) error {
	buf.WriteString("<<")
	// Signature Contents stays plaintext so the byte range digest can
	// be computed over the final file.
	sigDict := false
	if t, ok := d.GetName("Type"); ok && t == "Sig" {
		sigDict = true
	}
	for _, key := range d.Keys() {
		val, _ := d.Get(key)
		buf.WriteByte(' ')
		writeName(buf, key)
		buf.WriteByte(' ')
		if sigDict && key == "Contents" {
			inner := *s
			inner.plaintext = true
			if err := inner.serialize(buf, val); err != nil {
				return err
			}
			continue
		}
		if err := s.serialize(buf, val); err != nil {
			return err
		}
	}
	buf.WriteString(" >>")
	return nil
}

func (s *serializer) writeStream(buf *bytes.Buffer, st *object.Stream) error {
	dict := st.Dict
	if dict == nil {
		dict = object.NewDict()
	}
	if n, ok := dict.GetInt("Length"); !ok || n != int64(len(st.Data)) {
		declared := int64(-1)
		if ok {
			declared = n
		}
		return fmt.Errorf("%w: object %d declares %d, payload is %d bytes",
			ErrStreamLength, s.num, declared, len(st.Data))
	}
	data := st.Data
	if s.encrypting() {
		enc, err := s.handler.Encrypt(s.num, s.gen, data, security.DataClassStream)
		if err != nil {
			return err
		}
		data = enc
		dict = dict.Clone()
		dict.Set("Length", object.Integer(len(data)))
	}
	// Payloads were transformed above; the dictionary itself still
	// needs its strings encrypted, which writeDict handles.
	if err := s.writeDict(buf, dict); err != nil {
		return err
	}
	buf.WriteString("\nstream\n")
	buf.Write(data)
	buf.WriteString("\nendstream")
	return nil
}

func (s *serializer) writeString(buf *bytes.Buffer, v object.String) error {
	data := v.Data
	if s.encrypting() {
		enc, err := s.handler.Encrypt(s.num, s.gen, data, security.DataClassString)
		if err != nil {
			return err
		}
		data = enc
		// Ciphertext is binary; hex form keeps the file readable.
		v.Hex = true
	}
	if v.Hex {
		buf.WriteByte('<')
		buf.WriteString(hex.EncodeToString(data))
		buf.WriteByte('>')
		return nil
	}
	buf.WriteByte('(')
	for _, c := range data {
		switch c {
		case '(', ')', '\\':
			buf.WriteByte('\\')
			buf.WriteByte(c)
		case '\n':
			buf.WriteString(`\n`)
		case '\r':
			buf.WriteString(`\r`)
		case '\t':
			buf.WriteString(`\t`)
		default:
			buf.WriteByte(c)
		}
	}
	buf.WriteByte(')')
	return nil
}

func (s *serializer) encrypting() bool {
	return !s.plaintext && s.handler != nil && s.handler.IsEncrypted()
}

// writeName emits a name with #xx escapes for delimiters, whitespace,
// and non-printable bytes.
func writeName(buf *bytes.Buffer, n object.Name) {
	buf.WriteByte('/')
	for _, c := range []byte(n) {
		if nameNeedsEscape(c) {
			fmt.Fprintf(buf, "#%02X", c)
		} else {
			buf.WriteByte(c)
		}
	}
}

func nameNeedsEscape(c byte) bool {
	if c <= 0x20 || c >= 0x7F || c == '#' {
		return true
	}
	switch c {
	case '(', ')', '<', '>', '[', ']', '{', '}', '/', '%':
		return true
	}
	return false
}
