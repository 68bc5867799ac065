package main

import (
	"fmt"
	"os"

	"github.com/sensiblebit/certtrust"
	"github.com/sensiblebit/certtrust/internal"
	"github.com/sensiblebit/certtrust/internal/certstore"
	"github.com/spf13/cobra"
)

var (
	exportFormat       string
	exportPasswordFile string
)

var exportCmd = &cobra.Command{
	Use:   "export <file>",
	Short: "Write the trusted certificates to a file",
	Long:  "Write the trusted certificates as a PEM bundle, PKCS#7 bundle, JKS, or PKCS#12 trust store. Use - for stdout.",
	Args:  cobra.ExactArgs(1),
	RunE:  runExport,
}

func init() {
	exportCmd.Flags().StringVarP(&exportFormat, "format", "f", "pem", "Output format: pem, p7b, jks, p12")
	exportCmd.Flags().StringVar(&exportPasswordFile, "password-file", "", "File whose first line protects jks and p12 output (default: "+certstore.DefaultPassword+")")
	registerCompletion(exportCmd, completionInput{"format", fixedCompletion("pem", "p7b", "jks", "p12")})
	registerCompletion(exportCmd, completionInput{"password-file", fileCompletion})
}

func runExport(_ *cobra.Command, args []string) error {
	store, err := openStore(true)
	if err != nil {
		return err
	}
	certs := store.Trusted()

	var output []byte
	switch exportFormat {
	case "pem":
		output = certtrust.CertsToPEM(certs)
	case "p7b":
		output, err = certtrust.EncodePKCS7(certs)
	case "jks", "p12":
		password, perr := internal.ResolveStorePassword(exportPasswordFile, certstore.DefaultPassword)
		if perr != nil {
			return perr
		}
		if exportFormat == "jks" {
			output, err = certtrust.EncodeTrustedJKS(certs, password)
		} else {
			output, err = certtrust.EncodePKCS12TrustStore(certs, password)
		}
	default:
		return fmt.Errorf("unsupported format %q (use pem, p7b, jks, or p12)", exportFormat)
	}
	if err != nil {
		return err
	}

	if args[0] == "-" {
		_, err := os.Stdout.Write(output)
		return err
	}
	if err := os.WriteFile(args[0], output, 0o600); err != nil {
		return fmt.Errorf("writing %s: %w", args[0], err)
	}
	fmt.Fprintf(os.Stderr, "Wrote %d certificate(s) to %s (%d bytes)\n", len(certs), args[0], len(output))
	return nil
}
