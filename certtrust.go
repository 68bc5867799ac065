// Package certtrust provides certificate identity, fingerprinting, parsing,
// and trust store encoding helpers shared by the trust evaluator, the
// decision coordinator, and the CLI.
package certtrust

import (
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	"errors"
	"fmt"
	"strings"
)

// ID identifies a certificate by the SHA-256 digest of its DER encoding.
// Two certificates parsed from the same bytes have the same ID, so ID is
// safe to use as a map key where pointer identity is not.
type ID [sha256.Size]byte

// IDOf returns the identity of cert.
func IDOf(cert *x509.Certificate) ID {
	return sha256.Sum256(cert.Raw)
}

// IDFromDER returns the identity of a DER-encoded certificate without
// parsing it.
func IDFromDER(der []byte) ID {
	return sha256.Sum256(der)
}

// String returns the lowercase hex form of the identity.
func (id ID) String() string {
	return hex.EncodeToString(id[:])
}

// Tag returns the uppercase SHA-512 hex digest of the certificate's DER
// encoding. It is the stable alias of a certificate in persisted stores and
// the correlation key for notifications about it.
func Tag(cert *x509.Certificate) string {
	sum := sha512.Sum512(cert.Raw)
	return strings.ToUpper(hex.EncodeToString(sum[:]))
}

// ParseDER parses a single DER-encoded certificate.
func ParseDER(der []byte) (*x509.Certificate, error) {
	if len(der) == 0 {
		return nil, errors.New("empty certificate data")
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, fmt.Errorf("parsing certificate: %w", err)
	}
	return cert, nil
}

// ParsePEMCertificates parses all certificates from a PEM bundle.
func ParsePEMCertificates(pemData []byte) ([]*x509.Certificate, error) {
	var certs []*x509.Certificate
	rest := pemData
	for {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			break
		}
		if block.Type != "CERTIFICATE" {
			continue
		}
		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("parsing certificate: %w", err)
		}
		certs = append(certs, cert)
	}
	if len(certs) == 0 {
		return nil, errors.New("no certificates found in PEM data")
	}
	return certs, nil
}

// ParseCertificatesAny attempts to parse certificates from raw bytes, trying
// DER encoding first, then PEM (may contain multiple certs), then PKCS#7.
func ParseCertificatesAny(data []byte) ([]*x509.Certificate, error) {
	cert, derErr := x509.ParseCertificate(data)
	if derErr == nil {
		return []*x509.Certificate{cert}, nil
	}
	certs, pemErr := ParsePEMCertificates(data)
	if pemErr == nil {
		return certs, nil
	}
	certs, p7Err := DecodePKCS7(data)
	if p7Err == nil {
		return certs, nil
	}
	return nil, fmt.Errorf("not DER (%v) or PEM (%v) or PKCS#7 (%v)", derErr, pemErr, p7Err)
}

// CertToPEM encodes a certificate as PEM.
func CertToPEM(cert *x509.Certificate) string {
	return string(pem.EncodeToMemory(&pem.Block{
		Type:  "CERTIFICATE",
		Bytes: cert.Raw,
	}))
}

// CertsToPEM encodes certificates as a concatenated PEM bundle.
func CertsToPEM(certs []*x509.Certificate) []byte {
	var sb strings.Builder
	for _, cert := range certs {
		sb.WriteString(CertToPEM(cert))
	}
	return []byte(sb.String())
}

// CertFingerprint returns the SHA-256 fingerprint of a certificate as a lowercase hex string.
func CertFingerprint(cert *x509.Certificate) string {
	hash := sha256.Sum256(cert.Raw)
	return hex.EncodeToString(hash[:])
}

// CertFingerprintColonSHA256 returns the SHA-256 fingerprint of a certificate
// in uppercase colon-separated hex format (AA:BB:CC:...), matching the format
// used by OpenSSL and browser certificate viewers.
func CertFingerprintColonSHA256(cert *x509.Certificate) string {
	hash := sha256.Sum256(cert.Raw)
	return strings.ToUpper(ColonHex(hash[:]))
}

// CertFingerprintColonSHA1 returns the SHA-1 fingerprint of a certificate
// in uppercase colon-separated hex format.
func CertFingerprintColonSHA1(cert *x509.Certificate) string {
	hash := sha1.Sum(cert.Raw)
	return strings.ToUpper(ColonHex(hash[:]))
}

// ColonHex formats a byte slice as colon-separated lowercase hex.
func ColonHex(b []byte) string {
	h := hex.EncodeToString(b)
	parts := make([]string, 0, len(h)/2)
	for i := 0; i < len(h); i += 2 {
		end := min(i+2, len(h))
		parts = append(parts, h[i:end])
	}
	return strings.Join(parts, ":")
}

// FormatCN returns the common name of the certificate for display. Falls back
// to the first DNS SAN, then to "serial:<n>" if no CN or SAN is present.
func FormatCN(cert *x509.Certificate) string {
	if cert.Subject.CommonName != "" {
		return cert.Subject.CommonName
	}
	if len(cert.DNSNames) > 0 {
		return cert.DNSNames[0]
	}
	return fmt.Sprintf("serial:%s", cert.SerialNumber.String())
}
