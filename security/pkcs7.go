package security

import (
	"bytes"
	"crypto"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"fmt"
	"math/big"
	"time"
)

var (
	oidData                   = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 7, 1}
	oidSignedData             = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 7, 2}
	oidDigestAlgorithmSHA256  = asn1.ObjectIdentifier{2, 16, 840, 1, 101, 3, 4, 2, 1}
	oidEncryptionAlgorithmRSA = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 1, 1}
	oidAttributeContentType   = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 9, 3}
	oidAttributeMessageDigest = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 9, 4}
	oidAttributeSigningTime   = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 9, 5}
)

type contentInfo struct {
	ContentType asn1.ObjectIdentifier
	Content     asn1.RawValue `asn1:"explicit,tag:0"`
}

type signedData struct {
	Version          int
	DigestAlgorithms []pkix.AlgorithmIdentifier `asn1:"set"`
	EncapContentInfo encapsulatedContentInfo
	Certificates     []asn1.RawValue `asn1:"optional,tag:0,set"`
	CRLs             []asn1.RawValue `asn1:"optional,tag:1,set"`
	SignerInfos      []signerInfo    `asn1:"set"`
}

type encapsulatedContentInfo struct {
	EContentType asn1.ObjectIdentifier
	EContent     asn1.RawValue `asn1:"optional,explicit,tag:0"`
}

type signerInfo struct {
	Version                   int
	IssuerAndSerialNumber     issuerAndSerialNumber
	DigestAlgorithm           pkix.AlgorithmIdentifier
	AuthenticatedAttributes   []attribute `asn1:"optional,tag:0"`
	DigestEncryptionAlgorithm pkix.AlgorithmIdentifier
	EncryptedDigest           []byte
	UnauthenticatedAttributes []attribute `asn1:"optional,tag:1"`
}

type issuerAndSerialNumber struct {
	Issuer       asn1.RawValue
	SerialNumber *big.Int
}

type attribute struct {
	Type  asn1.ObjectIdentifier
	Value asn1.RawValue `asn1:"set"`
}

// createPKCS7Signature builds a detached CMS SignedData container over
// contentDigest with ContentType, SigningTime, and MessageDigest as
// authenticated attributes.
func createPKCS7Signature(priv *rsa.PrivateKey, cert *x509.Certificate, chain []*x509.Certificate, contentDigest []byte, signingTime time.Time) ([]byte, error) {
	if cert == nil {
		return nil, fmt.Errorf("%w: signer certificate is required", ErrCrypto)
	}

	attrs := []attribute{
		{
			Type:  oidAttributeContentType,
			Value: asn1.RawValue{Tag: asn1.TagOID, Bytes: oidContentBytes(oidData)},
		},
		{
			Type: oidAttributeSigningTime,
			Value: asn1.RawValue{
				Tag:   asn1.TagUTCTime,
				Bytes: []byte(signingTime.UTC().Format("060102150405Z")),
			},
		},
		{
			Type:  oidAttributeMessageDigest,
			Value: asn1.RawValue{Tag: asn1.TagOctetString, Bytes: contentDigest},
		},
	}

	// Signed bytes use the plain SET OF tag, not the [0] IMPLICIT tag
	// they carry inside SignerInfo.
	attrBytes, err := marshalAttributeSet(attrs)
	if err != nil {
		return nil, fmt.Errorf("marshal attributes: %w", err)
	}
	attrDigest := sha256.Sum256(attrBytes)
	signature, err := rsa.SignPKCS1v15(nil, priv, crypto.SHA256, attrDigest[:])
	if err != nil {
		return nil, fmt.Errorf("%w: sign attributes: %v", ErrCrypto, err)
	}

	nullParams := asn1.RawValue{Tag: asn1.TagNull}
	si := signerInfo{
		Version: 1,
		IssuerAndSerialNumber: issuerAndSerialNumber{
			Issuer:       asn1.RawValue{FullBytes: cert.RawIssuer},
			SerialNumber: cert.SerialNumber,
		},
		DigestAlgorithm:         pkix.AlgorithmIdentifier{Algorithm: oidDigestAlgorithmSHA256, Parameters: nullParams},
		AuthenticatedAttributes: attrs,
		DigestEncryptionAlgorithm: pkix.AlgorithmIdentifier{
			Algorithm:  oidEncryptionAlgorithmRSA,
			Parameters: nullParams,
		},
		EncryptedDigest: signature,
	}

	certs := []asn1.RawValue{{FullBytes: cert.Raw}}
	for _, c := range chain {
		if !c.Equal(cert) {
			certs = append(certs, asn1.RawValue{FullBytes: c.Raw})
		}
	}

	sd := signedData{
		Version: 1,
		DigestAlgorithms: []pkix.AlgorithmIdentifier{
			{Algorithm: oidDigestAlgorithmSHA256, Parameters: nullParams},
		},
		EncapContentInfo: encapsulatedContentInfo{EContentType: oidData},
		Certificates:     certs,
		SignerInfos:      []signerInfo{si},
	}
	sdBytes, err := asn1.Marshal(sd)
	if err != nil {
		return nil, fmt.Errorf("marshal signed data: %w", err)
	}

	return asn1.Marshal(contentInfo{
		ContentType: oidSignedData,
		Content: asn1.RawValue{
			Class:      asn1.ClassContextSpecific,
			Tag:        0,
			IsCompound: true,
			Bytes:      sdBytes,
		},
	})
}

// VerifyPKCS7 checks a detached SignedData container against the
// digest of the signed byte ranges: the MessageDigest attribute must
// match contentDigest and the RSA signature over the attributes must
// verify with the embedded signer certificate.
func VerifyPKCS7(der, contentDigest []byte) (*x509.Certificate, error) {
	var ci contentInfo
	if _, err := asn1.Unmarshal(der, &ci); err != nil {
		return nil, fmt.Errorf("%w: parse ContentInfo: %v", ErrCrypto, err)
	}
	if !ci.ContentType.Equal(oidSignedData) {
		return nil, fmt.Errorf("%w: content type %v is not SignedData", ErrCrypto, ci.ContentType)
	}
	var sd signedData
	if _, err := asn1.Unmarshal(ci.Content.Bytes, &sd); err != nil {
		return nil, fmt.Errorf("%w: parse SignedData: %v", ErrCrypto, err)
	}
	if len(sd.SignerInfos) == 0 {
		return nil, fmt.Errorf("%w: no signer info", ErrCrypto)
	}
	si := sd.SignerInfos[0]

	var signer *x509.Certificate
	for _, raw := range sd.Certificates {
		cert, err := x509.ParseCertificate(raw.FullBytes)
		if err != nil {
			continue
		}
		if cert.SerialNumber.Cmp(si.IssuerAndSerialNumber.SerialNumber) == 0 &&
			bytes.Equal(cert.RawIssuer, si.IssuerAndSerialNumber.Issuer.FullBytes) {
			signer = cert
			break
		}
	}
	if signer == nil {
		return nil, fmt.Errorf("%w: signer certificate not found in container", ErrCrypto)
	}

	var mdAttr []byte
	for _, a := range si.AuthenticatedAttributes {
		if a.Type.Equal(oidAttributeMessageDigest) {
			mdAttr = a.Value.Bytes
		}
	}
	if mdAttr == nil {
		return nil, fmt.Errorf("%w: missing MessageDigest attribute", ErrCrypto)
	}
	if !bytes.Equal(mdAttr, contentDigest) {
		return nil, fmt.Errorf("%w: MessageDigest does not match signed content", ErrCrypto)
	}

	attrBytes, err := marshalAttributeSet(si.AuthenticatedAttributes)
	if err != nil {
		return nil, fmt.Errorf("marshal attributes: %w", err)
	}
	attrDigest := sha256.Sum256(attrBytes)
	pub, ok := signer.PublicKey.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("%w: unsupported signer key type", ErrCrypto)
	}
	if err := rsa.VerifyPKCS1v15(pub, crypto.SHA256, attrDigest[:], si.EncryptedDigest); err != nil {
		return nil, fmt.Errorf("%w: signature verification failed", ErrCrypto)
	}
	return signer, nil
}

func oidContentBytes(oid asn1.ObjectIdentifier) []byte {
	b, _ := asn1.Marshal(oid)
	var raw asn1.RawValue
	asn1.Unmarshal(b, &raw)
	return raw.Bytes
}

func marshalAttributeSet(attrs []attribute) ([]byte, error) {
	wrapper := struct {
		Attrs []attribute `asn1:"set"`
	}{Attrs: attrs}
	b, err := asn1.Marshal(wrapper)
	if err != nil {
		return nil, err
	}
	// Strip the wrapper SEQUENCE, keeping the full SET OF encoding.
	var raw asn1.RawValue
	if _, err := asn1.Unmarshal(b, &raw); err != nil {
		return nil, err
	}
	return raw.Bytes, nil
}
