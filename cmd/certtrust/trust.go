package main

import (
	"fmt"
	"os"

	"github.com/sensiblebit/certtrust"
	"github.com/spf13/cobra"
)

var trustCmd = &cobra.Command{
	Use:   "trust <file>...",
	Short: "Add certificates to the trust store",
	Long:  "Add every certificate found in the given DER, PEM, or PKCS#7 files to the trust store.",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runTrust,
}

func runTrust(_ *cobra.Command, args []string) error {
	store, err := openStore(true)
	if err != nil {
		return err
	}

	added := 0
	for _, path := range args {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading %s: %w", path, err)
		}
		certs, err := certtrust.ParseCertificatesAny(data)
		if err != nil {
			return fmt.Errorf("parsing %s: %w", path, err)
		}
		for _, cert := range certs {
			if store.Contains(cert) {
				logger.Debug("already trusted", "subject", cert.Subject.String())
				continue
			}
			if err := store.SetTrusted(cert); err != nil {
				return err
			}
			fmt.Fprintf(os.Stderr, "Trusted %s (%s)\n", certtrust.FormatCN(cert), certtrust.Tag(cert)[:16])
			added++
		}
	}
	fmt.Fprintf(os.Stderr, "%d certificate(s) added\n", added)
	return nil
}
