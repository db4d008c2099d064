package security

import (
	"crypto/rsa"
	"crypto/x509"
	"errors"
	"time"
)

// Signer produces the CMS container embedded in a signature field.
// The input is the SHA-256 digest of the byte ranges covered by the
// signature, not the bytes themselves.
type Signer interface {
	Sign(digest []byte) ([]byte, error)
	Certificates() []*x509.Certificate
}

// RSASigner signs with an RSA key and a certificate chain whose first
// element is the signing certificate.
type RSASigner struct {
	priv  *rsa.PrivateKey
	chain []*x509.Certificate
	// Now is stubbed in tests to pin the SigningTime attribute.
	Now func() time.Time
}

func NewRSASigner(priv *rsa.PrivateKey, chain []*x509.Certificate) *RSASigner {
	return &RSASigner{priv: priv, chain: chain, Now: time.Now}
}

func (s *RSASigner) Sign(digest []byte) ([]byte, error) {
	if len(s.chain) == 0 {
		return nil, errors.New("signer certificate chain is empty")
	}
	return createPKCS7Signature(s.priv, s.chain[0], s.chain, digest, s.Now())
}

func (s *RSASigner) Certificates() []*x509.Certificate { return s.chain }
