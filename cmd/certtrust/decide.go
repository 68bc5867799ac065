package main

import (
	"errors"
	"fmt"
	"net/http"
	"os"

	"github.com/sensiblebit/certtrust/internal/server"
	"github.com/spf13/cobra"
)

var (
	decideServer string
	decideTrust  bool
	decideReject bool
)

var decideCmd = &cobra.Command{
	Use:   "decide <tag>",
	Short: "Answer a pending decision on a running serve instance",
	Long: "Trust or reject the pending certificate identified by its tag, as shown by " +
		"the pending command. Every check waiting on it is answered.",
	Example: `  certtrust decide 3F2A...C9 --trust
  certtrust decide 3F2A...C9 --reject --server http://127.0.0.1:8453`,
	Args:              cobra.ExactArgs(1),
	ValidArgsFunction: noCompletion,
	RunE:              runDecide,
}

func init() {
	decideCmd.Flags().BoolVar(&decideTrust, "trust", false, "Trust the certificate")
	decideCmd.Flags().BoolVar(&decideReject, "reject", false, "Reject the certificate")
	decideCmd.MarkFlagsMutuallyExclusive("trust", "reject")
	decideCmd.MarkFlagsOneRequired("trust", "reject")
	addServerFlag(decideCmd, &decideServer)
}

func runDecide(cmd *cobra.Command, args []string) error {
	if decideTrust == decideReject {
		return errors.New("exactly one of --trust or --reject is required")
	}
	trusted := decideTrust
	req := server.DecisionRequest{Tag: args[0], Trusted: &trusted}
	status, err := remoteCall(cmd.Context(), http.MethodPost, serverBase(decideServer)+"/decisions", req, nil)
	if err != nil {
		if status == http.StatusNotFound {
			return fmt.Errorf("no pending decision for tag %s", args[0])
		}
		return err
	}
	verdict := "rejected"
	if trusted {
		verdict = "trusted"
	}
	fmt.Fprintf(os.Stderr, "Certificate %s\n", verdict)
	return nil
}
