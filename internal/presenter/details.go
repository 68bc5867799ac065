package presenter

import (
	"fmt"
	"io"
	"time"

	"github.com/sensiblebit/certtrust"
)

// WriteDetails writes a human-readable summary of a certificate.
func WriteDetails(w io.Writer, d certtrust.Details) error {
	status := ""
	if d.Expired {
		status = " (EXPIRED)"
	}
	_, err := fmt.Fprintf(w, "Certificate:\n"+
		"  Issued for:  %s\n"+
		"  Issued by:   %s\n"+
		"  Valid from:  %s\n"+
		"  Valid until: %s%s\n"+
		"  SHA-256:     %s\n"+
		"  SHA-1:       %s\n"+
		"  SCTs:        %d\n",
		d.IssuedFor,
		d.IssuedBy,
		d.NotBefore.UTC().Format(time.RFC3339),
		d.NotAfter.UTC().Format(time.RFC3339), status,
		d.SHA256,
		d.SHA1,
		d.EmbeddedSCTs,
	)
	return err
}
