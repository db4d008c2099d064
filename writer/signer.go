package writer

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/quillpdf/quill/object"
	"github.com/quillpdf/quill/scanner"
	"github.com/quillpdf/quill/security"
)

// SignConfig describes the signature dictionary.
type SignConfig struct {
	Reason      string
	Location    string
	ContactInfo string
	// PlaceholderSize is the number of bytes reserved for the DER
	// signature container. Defaults to 8192.
	PlaceholderSize int
	// Now is stubbed in tests to pin the M entry.
	Now func() time.Time
}

func (c *SignConfig) defaults() {
	if c.PlaceholderSize <= 0 {
		c.PlaceholderSize = 8192
	}
	if c.Now == nil {
		c.Now = time.Now
	}
}

// SignDocument serializes doc with an embedded signature. The first
// pass emits the signature dictionary with fixed-width placeholders for
// Contents and ByteRange; the second digests the surrounding byte
// ranges, signs, and patches both in place. Nothing is written to out
// until the signature is known to fit.
func SignDocument(doc *object.Document, out io.Writer, cfg Config, signer security.Signer, sig SignConfig) (object.Ref, error) {
	sig.defaults()

	sigDict := object.NewDict()
	sigDict.Set("Type", object.Name("Sig"))
	sigDict.Set("Filter", object.Name("Adobe.PPKLite"))
	sigDict.Set("SubFilter", object.Name("adbe.pkcs7.detached"))
	if sig.Reason != "" {
		sigDict.Set("Reason", object.TextString(sig.Reason))
	}
	if sig.Location != "" {
		sigDict.Set("Location", object.TextString(sig.Location))
	}
	if sig.ContactInfo != "" {
		sigDict.Set("ContactInfo", object.TextString(sig.ContactInfo))
	}
	sigDict.Set("M", object.Date(sig.Now()))
	sigDict.Set("ByteRange", byteRangePlaceholder{})
	sigDict.Set("Contents", contentsPlaceholder{size: sig.PlaceholderSize})
	sigRef := doc.Register(sigDict)

	buf, spans, err := render(doc, cfg)
	if err != nil {
		return object.Ref{}, err
	}
	if spans.contentsEnd == 0 || spans.byteRangeEnd == 0 {
		return object.Ref{}, errors.New("signature placeholders missing from output")
	}
	if err := patchSignature(buf, spans, signer); err != nil {
		return object.Ref{}, err
	}
	if _, err := out.Write(buf); err != nil {
		return object.Ref{}, err
	}
	return sigRef, nil
}

// patchSignature fills in ByteRange, digests the covered ranges, and
// writes the hex-encoded container into the Contents hole. buf is
// modified in place and its length never changes.
func patchSignature(buf []byte, spans *signSpans, signer security.Signer) error {
	holeStart, holeEnd := spans.contentsStart, spans.contentsEnd
	tailLen := len(buf) - holeEnd

	br := fmt.Sprintf("[0 %0*d %0*d %0*d]",
		byteRangeDigits, holeStart, byteRangeDigits, holeEnd, byteRangeDigits, tailLen)
	if len(br) != spans.byteRangeEnd-spans.byteRangeStart {
		return fmt.Errorf("ByteRange needs %d bytes, reserved %d",
			len(br), spans.byteRangeEnd-spans.byteRangeStart)
	}
	copy(buf[spans.byteRangeStart:], br)

	h := sha256.New()
	h.Write(buf[:holeStart])
	h.Write(buf[holeEnd:])
	digest := h.Sum(nil)

	container, err := signer.Sign(digest)
	if err != nil {
		return fmt.Errorf("sign: %w", err)
	}
	encoded := hex.EncodedLen(len(container))
	hole := holeEnd - holeStart - 2 // inside the angle brackets
	if encoded > hole {
		return fmt.Errorf("%w: need %d hex digits, reserved %d",
			ErrPlaceholderTooSmall, encoded, hole)
	}
	hex.Encode(buf[holeStart+1:], container)
	return nil
}

// SignIncremental appends a signed incremental update to an existing
// file: the signature object, a new xref section, and a trailer with a
// Prev link. The original bytes are not modified.
func SignIncremental(original []byte, out io.Writer, signer security.Signer, sig SignConfig) error {
	sig.defaults()

	prevXRef, err := findStartXRef(original)
	if err != nil {
		return err
	}
	root, err := findTrailerRef(original, "/Root")
	if err != nil {
		return err
	}
	size, err := findTrailerInt(original, "/Size")
	if err != nil {
		return err
	}
	sigNum := int(size)

	var update bytes.Buffer
	update.WriteByte('\n')
	objOffset := int64(len(original)) + int64(update.Len())
	fmt.Fprintf(&update, "%d 0 obj\n", sigNum)

	s := &serializer{spans: &signSpans{}}
	sigDict := object.NewDict()
	sigDict.Set("Type", object.Name("Sig"))
	sigDict.Set("Filter", object.Name("Adobe.PPKLite"))
	sigDict.Set("SubFilter", object.Name("adbe.pkcs7.detached"))
	if sig.Reason != "" {
		sigDict.Set("Reason", object.TextString(sig.Reason))
	}
	if sig.Location != "" {
		sigDict.Set("Location", object.TextString(sig.Location))
	}
	if sig.ContactInfo != "" {
		sigDict.Set("ContactInfo", object.TextString(sig.ContactInfo))
	}
	sigDict.Set("M", object.Date(sig.Now()))
	sigDict.Set("ByteRange", byteRangePlaceholder{})
	sigDict.Set("Contents", contentsPlaceholder{size: sig.PlaceholderSize})
	if err := s.serialize(&update, sigDict); err != nil {
		return err
	}
	update.WriteString("\nendobj\n")

	xrefOffset := int64(len(original)) + int64(update.Len())
	fmt.Fprintf(&update, "xref\n0 1\n0000000000 65535 f \n%d 1\n%010d 00000 n \n",
		sigNum, objOffset)
	fmt.Fprintf(&update, "trailer\n<< /Size %d /Root %d %d R /Prev %d >>\n",
		sigNum+1, root.Num, root.Gen, prevXRef)
	fmt.Fprintf(&update, "startxref\n%d\n%%%%EOF\n", xrefOffset)

	// Spans were recorded relative to the update; shift to file
	// coordinates over the concatenated buffer.
	buf := make([]byte, 0, len(original)+update.Len())
	buf = append(buf, original...)
	buf = append(buf, update.Bytes()...)
	spans := *s.spans
	spans.contentsStart += len(original)
	spans.contentsEnd += len(original)
	spans.byteRangeStart += len(original)
	spans.byteRangeEnd += len(original)

	if err := patchSignature(buf, &spans, signer); err != nil {
		return err
	}
	_, err = out.Write(buf)
	return err
}

// findStartXRef scans backwards from the end of the file for the
// startxref keyword and returns the offset it announces.
func findStartXRef(data []byte) (int64, error) {
	window := data
	if len(window) > 2048 {
		window = window[len(window)-2048:]
	}
	i := bytes.LastIndex(window, []byte("startxref"))
	if i < 0 {
		return 0, errors.New("startxref not found")
	}
	rest := window[i+len("startxref"):]
	fields := bytes.Fields(rest)
	if len(fields) == 0 {
		return 0, errors.New("startxref has no offset")
	}
	off, err := strconv.ParseInt(string(fields[0]), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("bad startxref offset: %w", err)
	}
	return off, nil
}

// findTrailerRef locates the last occurrence of a trailer key holding
// an indirect reference, which covers both classic trailers and xref
// stream dictionaries.
func findTrailerRef(data []byte, key string) (object.Ref, error) {
	i := bytes.LastIndex(data, []byte(key))
	if i < 0 {
		return object.Ref{}, fmt.Errorf("%s not found in trailer", key)
	}
	sc := scanner.New(data)
	if err := sc.Seek(int64(i + len(key))); err != nil {
		return object.Ref{}, err
	}
	num, err := sc.Next()
	if err != nil || num.Type != scanner.TokenInteger {
		return object.Ref{}, fmt.Errorf("%s is not a reference", key)
	}
	gen, err := sc.Next()
	if err != nil || gen.Type != scanner.TokenInteger {
		return object.Ref{}, fmt.Errorf("%s is not a reference", key)
	}
	return object.Ref{Num: int(num.Int), Gen: int(gen.Int)}, nil
}

func findTrailerInt(data []byte, key string) (int64, error) {
	i := bytes.LastIndex(data, []byte(key))
	if i < 0 {
		return 0, fmt.Errorf("%s not found in trailer", key)
	}
	sc := scanner.New(data)
	if err := sc.Seek(int64(i + len(key))); err != nil {
		return 0, err
	}
	tok, err := sc.Next()
	if err != nil || tok.Type != scanner.TokenInteger {
		return 0, fmt.Errorf("%s is not an integer", key)
	}
	return tok.Int, nil
}
