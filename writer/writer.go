// Package writer serializes a Document into the PDF file format:
// header, indirect objects, cross-reference information, and trailer.
// Output is deterministic for a fixed random source, which also feeds
// encryption IVs and the file identifier.
package writer

import (
	"bytes"
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	"github.com/quillpdf/quill/object"
	"github.com/quillpdf/quill/observability"
	"github.com/quillpdf/quill/security"
	"github.com/quillpdf/quill/xref"
)

var (
	// ErrStreamLength is returned when a stream's declared Length does
	// not match its payload.
	ErrStreamLength = errors.New("stream Length does not match payload")
	// ErrUnresolvedRef is returned when a serialized reference names an
	// object the document does not contain.
	ErrUnresolvedRef = errors.New("reference to unregistered object")
	// ErrPlaceholderTooSmall is returned when an encoded signature does
	// not fit the reserved Contents placeholder. The output is not
	// written in that case.
	ErrPlaceholderTooSmall = errors.New("signature exceeds reserved placeholder")
)

// Config controls serialization.
type Config struct {
	// Version overrides the document's header version.
	Version string
	// XRefStreams selects a cross-reference stream instead of the
	// classic table.
	XRefStreams bool
	// Encryption, when set, encrypts all string and stream payloads.
	Encryption *security.Options
	// Rand supplies the file ID and encryption material. Defaults to
	// crypto/rand; fix it to make output reproducible.
	Rand   io.Reader
	Logger observability.Logger
}

func (cfg *Config) defaults() {
	if cfg.Rand == nil {
		cfg.Rand = rand.Reader
	}
	if cfg.Logger == nil {
		cfg.Logger = observability.NopLogger{}
	}
}

// Write serializes doc to out.
func Write(doc *object.Document, out io.Writer, cfg Config) error {
	buf, _, err := render(doc, cfg)
	if err != nil {
		return err
	}
	_, err = out.Write(buf)
	return err
}

// signSpans records where the signature placeholders landed in the
// output, so the second signing pass can patch them in place.
type signSpans struct {
	// contentsStart/End delimit the hex string including the angle
	// brackets.
	contentsStart, contentsEnd int
	// byteRangeStart/End delimit the ByteRange array including the
	// square brackets.
	byteRangeStart, byteRangeEnd int
}

func render(doc *object.Document, cfg Config) ([]byte, *signSpans, error) {
	cfg.defaults()
	if doc.Root.IsZero() {
		return nil, nil, errors.New("document has no catalog")
	}
	if !doc.Contains(doc.Root) {
		return nil, nil, fmt.Errorf("%w: catalog %s", ErrUnresolvedRef, doc.Root)
	}

	version := cfg.Version
	if version == "" {
		version = doc.Version
	}
	if version == "" {
		version = "1.7"
	}

	id := doc.ID
	if len(id[0]) == 0 {
		id[0] = make([]byte, 16)
		id[1] = make([]byte, 16)
		if _, err := io.ReadFull(cfg.Rand, id[0]); err != nil {
			return nil, nil, fmt.Errorf("derive file ID: %w", err)
		}
		copy(id[1], id[0])
	}

	handler := security.NoopHandler()
	var encryptDict *object.Dict
	if cfg.Encryption != nil {
		var err error
		handler, encryptDict, err = security.NewEncrypter(*cfg.Encryption, id[0], cfg.Rand)
		if err != nil {
			return nil, nil, err
		}
	}

	// Synthetic objects follow the document's own numbering.
	base := doc.MaxNum() + 1
	next := base
	infoNum, encryptNum := 0, 0
	if doc.Info != (object.Info{}) {
		infoNum = next
		next++
	}
	if encryptDict != nil {
		encryptNum = next
		next++
	}
	xrefNum := 0
	if cfg.XRefStreams {
		xrefNum = next
		next++
	}
	size := next

	var buf bytes.Buffer
	spans := &signSpans{}
	fmt.Fprintf(&buf, "%%PDF-%s\n%%\xE2\xE3\xCF\xD3\n", version)

	table := xref.NewTable()
	emit := func(num, gen int, obj object.Object, plaintext bool) error {
		table.Set(num, xref.Entry{Type: xref.InUse, Offset: int64(buf.Len()), Gen: gen})
		fmt.Fprintf(&buf, "%d %d obj\n", num, gen)
		s := &serializer{doc: doc, handler: handler, num: num, gen: gen, plaintext: plaintext,
			synthFrom: base, synthTo: size - 1, spans: spans}
		if err := s.serialize(&buf, obj); err != nil {
			return fmt.Errorf("object %d: %w", num, err)
		}
		buf.WriteString("\nendobj\n")
		return nil
	}

	for _, ref := range doc.Refs() {
		obj, err := doc.Resolve(ref)
		if err != nil {
			return nil, nil, err
		}
		if err := emit(ref.Num, ref.Gen, obj, false); err != nil {
			return nil, nil, err
		}
	}
	if infoNum != 0 {
		if err := emit(infoNum, 0, object.InfoDict(doc.Info), false); err != nil {
			return nil, nil, err
		}
	}
	if encryptNum != 0 {
		if err := emit(encryptNum, 0, encryptDict, true); err != nil {
			return nil, nil, err
		}
	}

	trailer := object.NewDict()
	trailer.Set("Size", object.Integer(size))
	trailer.Set("Root", doc.Root)
	if infoNum != 0 {
		trailer.Set("Info", object.Ref{Num: infoNum})
	}
	if encryptNum != 0 {
		trailer.Set("Encrypt", object.Ref{Num: encryptNum})
	}
	trailer.Set("ID", object.Array{
		object.String{Data: id[0], Hex: true},
		object.String{Data: id[1], Hex: true},
	})

	var startXRef int64
	if cfg.XRefStreams {
		startXRef = int64(buf.Len())
		table.Set(xrefNum, xref.Entry{Type: xref.InUse, Offset: startXRef})
		data, w, index := xref.EncodeStreamData(table, size)
		dict := trailer.Clone()
		dict.Set("Type", object.Name("XRef"))
		dict.Set("W", object.Array{object.Integer(w[0]), object.Integer(w[1]), object.Integer(w[2])})
		dict.Set("Index", object.Array{object.Integer(index[0]), object.Integer(index[1])})
		// Cross-reference streams are never encrypted.
		if err := emit(xrefNum, 0, object.NewStream(dict, data), true); err != nil {
			return nil, nil, err
		}
	} else {
		startXRef = int64(buf.Len())
		buf.Write(xref.EncodeClassic(table, size))
		buf.WriteString("trailer\n")
		s := &serializer{doc: doc, plaintext: true, synthFrom: base, synthTo: size - 1}
		if err := s.serialize(&buf, trailer); err != nil {
			return nil, nil, err
		}
		buf.WriteByte('\n')
	}
	fmt.Fprintf(&buf, "startxref\n%d\n%%%%EOF\n", startXRef)

	cfg.Logger.Debug("document serialized",
		observability.Int(observability.MetricObjectCount, size-1),
		observability.Int64(observability.MetricWriteBytes, int64(buf.Len())),
		observability.Bool("encrypted", encryptNum != 0))
	return buf.Bytes(), spans, nil
}
