package security

import (
	"bytes"
	"context"
	"crypto"
	"crypto/x509"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/crypto/ocsp"
)

// RevocationStatus is the outcome of a revocation check.
type RevocationStatus int

const (
	StatusGood RevocationStatus = iota
	StatusRevoked
	StatusUnknown
)

// RevocationChecker reports whether a certificate has been revoked.
type RevocationChecker interface {
	Check(ctx context.Context, cert, issuer *x509.Certificate) (RevocationStatus, error)
}

// LTVData collects the validation material gathered for a signature so
// it can be embedded for long-term validation.
type LTVData struct {
	OCSPResponses [][]byte
	CRLs          [][]byte
	Certificates  []*x509.Certificate
}

// OCSPChecker queries the certificate's OCSP responders.
type OCSPChecker struct {
	Client *http.Client
	// Responses keeps the raw DER responses for LTV embedding.
	Responses [][]byte
}

func NewOCSPChecker() *OCSPChecker {
	return &OCSPChecker{Client: &http.Client{Timeout: 10 * time.Second}}
}

func (c *OCSPChecker) Check(ctx context.Context, cert, issuer *x509.Certificate) (RevocationStatus, error) {
	if len(cert.OCSPServer) == 0 {
		return StatusUnknown, nil
	}
	var lastErr error
	for _, serverURL := range cert.OCSPServer {
		status, err := c.checkOne(ctx, serverURL, cert, issuer)
		if err == nil && status != StatusUnknown {
			return status, nil
		}
		if err != nil {
			lastErr = err
		}
	}
	return StatusUnknown, lastErr
}

func (c *OCSPChecker) checkOne(ctx context.Context, serverURL string, cert, issuer *x509.Certificate) (RevocationStatus, error) {
	req, err := ocsp.CreateRequest(cert, issuer, &ocsp.RequestOptions{Hash: crypto.SHA1})
	if err != nil {
		return StatusUnknown, fmt.Errorf("create OCSP request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, "POST", serverURL, bytes.NewReader(req))
	if err != nil {
		return StatusUnknown, err
	}
	httpReq.Header.Set("Content-Type", "application/ocsp-request")
	httpReq.Header.Set("Accept", "application/ocsp-response")

	resp, err := c.Client.Do(httpReq)
	if err != nil {
		return StatusUnknown, fmt.Errorf("OCSP request: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return StatusUnknown, fmt.Errorf("read OCSP response: %w", err)
	}
	ocspResp, err := ocsp.ParseResponse(body, issuer)
	if err != nil {
		return StatusUnknown, fmt.Errorf("parse OCSP response: %w", err)
	}
	c.Responses = append(c.Responses, body)
	switch ocspResp.Status {
	case ocsp.Good:
		return StatusGood, nil
	case ocsp.Revoked:
		return StatusRevoked, nil
	}
	return StatusUnknown, nil
}

// CRLChecker downloads and checks certificate revocation lists.
type CRLChecker struct {
	Client *http.Client
	Lists  [][]byte
}

func NewCRLChecker() *CRLChecker {
	return &CRLChecker{Client: &http.Client{Timeout: 30 * time.Second}}
}

func (c *CRLChecker) Check(ctx context.Context, cert, issuer *x509.Certificate) (RevocationStatus, error) {
	if len(cert.CRLDistributionPoints) == 0 {
		return StatusUnknown, nil
	}
	var lastErr error
	for _, crlURL := range cert.CRLDistributionPoints {
		status, err := c.checkOne(ctx, crlURL, cert, issuer)
		if err == nil && status != StatusUnknown {
			return status, nil
		}
		if err != nil {
			lastErr = err
		}
	}
	return StatusUnknown, lastErr
}

func (c *CRLChecker) checkOne(ctx context.Context, crlURL string, cert, issuer *x509.Certificate) (RevocationStatus, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", crlURL, nil)
	if err != nil {
		return StatusUnknown, err
	}
	resp, err := c.Client.Do(req)
	if err != nil {
		return StatusUnknown, fmt.Errorf("CRL request: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return StatusUnknown, fmt.Errorf("read CRL: %w", err)
	}
	crl, err := x509.ParseRevocationList(body)
	if err != nil {
		return StatusUnknown, fmt.Errorf("parse CRL: %w", err)
	}
	if err := crl.CheckSignatureFrom(issuer); err != nil {
		return StatusUnknown, fmt.Errorf("CRL signature: %w", err)
	}
	c.Lists = append(c.Lists, body)
	for _, revoked := range crl.RevokedCertificateEntries {
		if revoked.SerialNumber.Cmp(cert.SerialNumber) == 0 {
			return StatusRevoked, nil
		}
	}
	return StatusGood, nil
}

// CollectLTV runs revocation checks over a certificate chain and
// gathers the material needed to embed a DSS for long-term validation.
func CollectLTV(ctx context.Context, chain []*x509.Certificate) (*LTVData, error) {
	data := &LTVData{Certificates: chain}
	o := NewOCSPChecker()
	c := NewCRLChecker()
	for i := 0; i+1 < len(chain); i++ {
		cert, issuer := chain[i], chain[i+1]
		if status, err := o.Check(ctx, cert, issuer); err == nil && status == StatusRevoked {
			return nil, fmt.Errorf("certificate %s is revoked", cert.Subject.CommonName)
		}
		if status, err := c.Check(ctx, cert, issuer); err == nil && status == StatusRevoked {
			return nil, fmt.Errorf("certificate %s is revoked", cert.Subject.CommonName)
		}
	}
	data.OCSPResponses = o.Responses
	data.CRLs = c.Lists
	return data, nil
}
