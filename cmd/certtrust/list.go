package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/sensiblebit/certtrust"
	"github.com/sensiblebit/certtrust/internal"
	"github.com/spf13/cobra"
)

var listFormat string

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List certificates in the trust store",
	Args:  cobra.NoArgs,
	RunE:  runList,
}

func init() {
	listCmd.Flags().StringVarP(&listFormat, "format", "f", "table", "Output format: table, json, pem")
	registerCompletion(listCmd, completionInput{"format", fixedCompletion("table", "json", "pem")})
}

func runList(_ *cobra.Command, _ []string) error {
	store, err := openStore(true)
	if err != nil {
		return err
	}
	certs := store.Trusted()

	switch listFormat {
	case "json":
		out := make([]certtrust.Details, 0, len(certs))
		for _, cert := range certs {
			out = append(out, certtrust.NewDetails(cert))
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	case "pem":
		_, err := os.Stdout.Write(certtrust.CertsToPEM(certs))
		return err
	case "table":
	default:
		return fmt.Errorf("unsupported format %q (use table, json, or pem)", listFormat)
	}

	if len(certs) == 0 {
		fmt.Fprintf(os.Stderr, "No trusted certificates in %s\n", cfg.Store.ResolvedPath())
		return nil
	}
	table, err := internal.RenderCertTable(certs)
	if err != nil {
		return err
	}
	fmt.Print(table)
	expired, expiring := internal.ExpiryCounts(certs, time.Now())
	fmt.Printf("%d trusted certificate(s)%s\n", len(certs), internal.CertAnnotation(expired, expiring))
	return nil
}
