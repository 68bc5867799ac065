package main

import (
	"fmt"
	"net/http"
	"os"

	"github.com/spf13/cobra"
)

var (
	resetServer string
	resetRemote bool
)

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Forget every trust decision",
	Long: "Empty the trust store. With --remote the running serve instance is reset instead, " +
		"which also forgets rejections made during its lifetime.",
	Args: cobra.NoArgs,
	RunE: runReset,
}

func init() {
	resetCmd.Flags().BoolVar(&resetRemote, "remote", false, "Reset the running serve instance")
	addServerFlag(resetCmd, &resetServer)
}

func runReset(cmd *cobra.Command, _ []string) error {
	if resetRemote || resetServer != "" {
		url := serverBase(resetServer) + "/reset"
		if _, err := remoteCall(cmd.Context(), http.MethodPost, url, nil, nil); err != nil {
			return err
		}
		fmt.Fprintln(os.Stderr, "Trust decisions reset")
		return nil
	}

	store, err := openStore(false)
	if err != nil {
		return err
	}
	trusted, _ := store.Len()
	if err := store.Reset(); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "Removed %d trusted certificate(s)\n", trusted)
	return nil
}
