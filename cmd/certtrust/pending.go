package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/sensiblebit/certtrust/internal/presenter"
	"github.com/sensiblebit/certtrust/internal/server"
	"github.com/spf13/cobra"
)

var (
	pendingServer string
	pendingJSON   bool
)

var pendingCmd = &cobra.Command{
	Use:   "pending",
	Short: "Show certificates waiting for a decision on a running serve instance",
	Args:  cobra.NoArgs,
	RunE:  runPending,
}

func init() {
	pendingCmd.Flags().BoolVar(&pendingJSON, "json", false, "Print the raw JSON listing")
	addServerFlag(pendingCmd, &pendingServer)
}

func runPending(cmd *cobra.Command, _ []string) error {
	var pending []server.PendingResponse
	if _, err := remoteCall(cmd.Context(), http.MethodGet, serverBase(pendingServer)+"/pending", nil, &pending); err != nil {
		return err
	}

	if pendingJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(pending)
	}
	if len(pending) == 0 {
		fmt.Fprintln(os.Stderr, "No pending decisions")
		return nil
	}
	for i, p := range pending {
		if i > 0 {
			fmt.Println()
		}
		if err := presenter.WriteDetails(os.Stdout, p.Details); err != nil {
			return err
		}
		fmt.Printf("  Tag:         %s\n", p.Tag)
		fmt.Printf("  Waiting:     %d check(s) for %s", p.Waiters, time.Since(p.Since).Round(time.Second))
		if p.Foreground {
			fmt.Print(", foreground")
		}
		fmt.Println()
	}
	return nil
}
