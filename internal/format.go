package internal

import (
	"bytes"
	"crypto/x509"
	"fmt"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/sensiblebit/certtrust"
)

// expiringWindow marks certificates as expiring soon in listings.
const expiringWindow = 30 * 24 * time.Hour

// CertAnnotation returns a parenthetical annotation like " (2 expired, 1 expiring soon)"
// for non-zero counts, or an empty string if both are zero.
func CertAnnotation(expired, expiring int) string {
	var parts []string
	if expired > 0 {
		parts = append(parts, fmt.Sprintf("%d expired", expired))
	}
	if expiring > 0 {
		parts = append(parts, fmt.Sprintf("%d expiring soon", expiring))
	}
	if len(parts) == 0 {
		return ""
	}
	return " (" + strings.Join(parts, ", ") + ")"
}

// ExpiryCounts counts certificates already expired and expiring within 30
// days of now.
func ExpiryCounts(certs []*x509.Certificate, now time.Time) (expired, expiring int) {
	for _, cert := range certs {
		switch {
		case now.After(cert.NotAfter):
			expired++
		case cert.NotAfter.Sub(now) < expiringWindow:
			expiring++
		}
	}
	return expired, expiring
}

// RenderCertTable renders certificates as a table of name, issuer, expiry,
// and SHA-256 fingerprint.
func RenderCertTable(certs []*x509.Certificate) (string, error) {
	var buf bytes.Buffer
	table := tablewriter.NewTable(&buf)
	table.Header([]string{"Name", "Issuer", "Expires", "SHA-256"})

	rows := make([][]string, 0, len(certs))
	for _, cert := range certs {
		rows = append(rows, []string{
			certtrust.FormatCN(cert),
			cert.Issuer.CommonName,
			cert.NotAfter.UTC().Format(time.DateOnly),
			certtrust.CertFingerprint(cert)[:16],
		})
	}
	if err := table.Bulk(rows); err != nil {
		return "", fmt.Errorf("building table: %w", err)
	}
	if err := table.Render(); err != nil {
		return "", fmt.Errorf("rendering table: %w", err)
	}
	return buf.String(), nil
}
