package certtrust

import (
	"bytes"
	"crypto/x509"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/pavlo-v-chernykh/keystore-go/v4"
)

// DecodeTrustedJKS decodes a Java KeyStore (JKS) and returns the
// certificates held in its trusted certificate entries. Private key entries
// are ignored. Individual entries that cannot be parsed are skipped. An
// empty store is valid and yields no certificates.
func DecodeTrustedJKS(data []byte, password string) ([]*x509.Certificate, error) {
	ks := keystore.New()
	if err := ks.Load(bytes.NewReader(data), []byte(password)); err != nil {
		return nil, fmt.Errorf("loading JKS: %w", err)
	}

	var certs []*x509.Certificate
	for _, alias := range ks.Aliases() {
		if !ks.IsTrustedCertificateEntry(alias) {
			continue
		}
		entry, err := ks.GetTrustedCertificateEntry(alias)
		if err != nil {
			slog.Debug("skipping unreadable JKS entry", "alias", alias, "error", err)
			continue
		}
		cert, err := x509.ParseCertificate(entry.Certificate.Content)
		if err != nil {
			slog.Debug("skipping JKS entry with invalid DER", "alias", alias, "error", err)
			continue
		}
		certs = append(certs, cert)
	}
	return certs, nil
}

// EncodeTrustedJKS creates a Java KeyStore holding one trusted certificate
// entry per certificate. Each entry's alias is the lowercase Tag of the
// certificate, so re-encoding the same set yields the same aliases.
func EncodeTrustedJKS(certs []*x509.Certificate, password string) ([]byte, error) {
	ks := keystore.New()
	now := time.Now()
	for _, cert := range certs {
		alias := strings.ToLower(Tag(cert))
		if err := ks.SetTrustedCertificateEntry(alias, keystore.TrustedCertificateEntry{
			CreationTime: now,
			Certificate: keystore.Certificate{
				Type:    "X.509",
				Content: cert.Raw,
			},
		}); err != nil {
			return nil, fmt.Errorf("setting JKS trusted entry %s: %w", alias, err)
		}
	}

	var buf bytes.Buffer
	if err := ks.Store(&buf, []byte(password)); err != nil {
		return nil, fmt.Errorf("storing JKS: %w", err)
	}
	return buf.Bytes(), nil
}
