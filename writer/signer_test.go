package writer

import (
	"bytes"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/hex"
	"errors"
	"math/big"
	"regexp"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/quillpdf/quill/security"
)

func testSigner(t *testing.T) *security.RSASigner {
	t.Helper()
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(99),
		Subject:      pkix.Name{CommonName: "writer test"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &priv.PublicKey, priv)
	if err != nil {
		t.Fatal(err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		t.Fatal(err)
	}
	return security.NewRSASigner(priv, []*x509.Certificate{cert})
}

var byteRangeRe = regexp.MustCompile(`/ByteRange \[(\d+) (\d+) (\d+) (\d+)\]`)

// extractSignature pulls the ByteRange and DER container out of a
// signed file the way a validator would.
func extractSignature(t *testing.T, pdf []byte) (ranges [4]int64, container []byte) {
	t.Helper()
	m := byteRangeRe.FindSubmatch(pdf)
	if m == nil {
		t.Fatal("no ByteRange in output")
	}
	for i := 0; i < 4; i++ {
		v, err := strconv.ParseInt(string(m[i+1]), 10, 64)
		if err != nil {
			t.Fatal(err)
		}
		ranges[i] = v
	}
	holeStart, holeEnd := ranges[1], ranges[2]
	if pdf[holeStart] != '<' || pdf[holeEnd-1] != '>' {
		t.Fatalf("hole [%d,%d) is not a hex string", holeStart, holeEnd)
	}
	// Zero padding after the DER container is ignored by the ASN.1
	// parser, so the whole hole can be decoded as-is.
	hexSig := pdf[holeStart+1 : holeEnd-1]
	container = make([]byte, hex.DecodedLen(len(hexSig)))
	if _, err := hex.Decode(container, hexSig); err != nil {
		t.Fatalf("decode signature hex: %v", err)
	}
	return ranges, container
}

func rangeDigest(pdf []byte, ranges [4]int64) []byte {
	h := sha256.New()
	h.Write(pdf[ranges[0] : ranges[0]+ranges[1]])
	h.Write(pdf[ranges[2] : ranges[2]+ranges[3]])
	return h.Sum(nil)
}

func TestSignDocument(t *testing.T) {
	doc := helloDocument(t)
	var out bytes.Buffer
	_, err := SignDocument(doc, &out, Config{Rand: &seqReader{}}, testSigner(t), SignConfig{
		Reason: "approval",
		Now:    func() time.Time { return time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC) },
	})
	if err != nil {
		t.Fatal(err)
	}
	pdf := out.Bytes()

	ranges, container := extractSignature(t, pdf)
	if ranges[0] != 0 || ranges[2]+ranges[3] != int64(len(pdf)) {
		t.Errorf("ByteRange %v does not cover the file of %d bytes", ranges, len(pdf))
	}
	if _, err := security.VerifyPKCS7(container, rangeDigest(pdf, ranges)); err != nil {
		t.Errorf("signature does not verify: %v", err)
	}
}

func TestSignDocumentDetectsTampering(t *testing.T) {
	doc := helloDocument(t)
	var out bytes.Buffer
	if _, err := SignDocument(doc, &out, Config{Rand: &seqReader{}}, testSigner(t), SignConfig{}); err != nil {
		t.Fatal(err)
	}
	pdf := out.Bytes()
	i := bytes.Index(pdf, []byte("Hello, World!"))
	pdf[i] = 'J'

	ranges, container := extractSignature(t, pdf)
	if _, err := security.VerifyPKCS7(container, rangeDigest(pdf, ranges)); err == nil {
		t.Error("verification should fail after tampering")
	}
}

func TestSignPlaceholderTooSmall(t *testing.T) {
	doc := helloDocument(t)
	var out bytes.Buffer
	_, err := SignDocument(doc, &out, Config{Rand: &seqReader{}}, testSigner(t), SignConfig{
		PlaceholderSize: 64,
	})
	if !errors.Is(err, ErrPlaceholderTooSmall) {
		t.Fatalf("err = %v, want ErrPlaceholderTooSmall", err)
	}
	if out.Len() != 0 {
		t.Error("nothing should be written when the signature does not fit")
	}
}

func TestSignIncremental(t *testing.T) {
	var base bytes.Buffer
	if err := Write(helloDocument(t), &base, Config{Rand: &seqReader{}}); err != nil {
		t.Fatal(err)
	}
	var out bytes.Buffer
	if err := SignIncremental(base.Bytes(), &out, testSigner(t), SignConfig{Reason: "archive"}); err != nil {
		t.Fatal(err)
	}
	pdf := out.Bytes()

	if !bytes.HasPrefix(pdf, base.Bytes()) {
		t.Fatal("incremental update modified the original bytes")
	}
	if !strings.Contains(string(pdf), "/Prev ") {
		t.Error("update trailer has no Prev link")
	}
	ranges, container := extractSignature(t, pdf)
	if _, err := security.VerifyPKCS7(container, rangeDigest(pdf, ranges)); err != nil {
		t.Errorf("signature does not verify: %v", err)
	}
}
