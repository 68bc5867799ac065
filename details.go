package certtrust

import (
	"crypto/x509"
	"log/slog"
	"strings"
	"time"

	ctx509 "github.com/google/certificate-transparency-go/x509"
)

// Details holds the human-facing summary of a certificate shown when asking
// whether to trust it.
type Details struct {
	Tag          string    `json:"tag"`
	IssuedFor    string    `json:"issued_for"`
	IssuedBy     string    `json:"issued_by"`
	NotBefore    time.Time `json:"not_before"`
	NotAfter     time.Time `json:"not_after"`
	SHA1         string    `json:"sha1"`
	SHA256       string    `json:"sha256"`
	EmbeddedSCTs int       `json:"embedded_scts"`
	Expired      bool      `json:"expired"`
}

// NewDetails summarizes cert. IssuedFor lists the subject alternative names
// when present and falls back to the subject DN.
func NewDetails(cert *x509.Certificate) Details {
	return Details{
		Tag:          Tag(cert),
		IssuedFor:    issuedFor(cert),
		IssuedBy:     cert.Issuer.String(),
		NotBefore:    cert.NotBefore,
		NotAfter:     cert.NotAfter,
		SHA1:         CertFingerprintColonSHA1(cert),
		SHA256:       CertFingerprintColonSHA256(cert),
		EmbeddedSCTs: countEmbeddedSCTs(cert.Raw),
		Expired:      time.Now().After(cert.NotAfter),
	}
}

func issuedFor(cert *x509.Certificate) string {
	var names []string
	for _, dns := range cert.DNSNames {
		names = append(names, "[DNS]"+dns)
	}
	for _, ip := range cert.IPAddresses {
		names = append(names, "[IP]"+ip.String())
	}
	for _, email := range cert.EmailAddresses {
		names = append(names, "[Email]"+email)
	}
	for _, uri := range cert.URIs {
		names = append(names, "[URI]"+uri.String())
	}
	if len(names) == 0 {
		return cert.Subject.String()
	}
	return strings.Join(names, " ")
}

// countEmbeddedSCTs returns the number of signed certificate timestamps
// embedded in the certificate's CT extension, or 0 if there are none or the
// certificate cannot be parsed by the CT parser.
func countEmbeddedSCTs(der []byte) int {
	cert, err := ctx509.ParseCertificate(der)
	if cert == nil {
		slog.Debug("parsing certificate for SCTs", "error", err)
		return 0
	}
	return len(cert.SCTList.SCTList)
}
