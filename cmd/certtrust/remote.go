package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

const remoteTimeout = 15 * time.Second

// addServerFlag registers --server on cmd.
func addServerFlag(cmd *cobra.Command, dst *string) {
	cmd.Flags().StringVar(dst, "server", "", "Base URL of a running serve instance (default: http://<listen>)")
	registerCompletion(cmd, completionInput{"server", noCompletion})
}

// serverBase returns the base URL for the serve instance, defaulting to the
// configured listen address.
func serverBase(flagValue string) string {
	if flagValue != "" {
		return strings.TrimRight(flagValue, "/")
	}
	return "http://" + cfg.Listen
}

// remoteCall sends a JSON request to url and decodes
// a JSON response into out when out is non-nil. Non-2xx responses become
// errors carrying the server's message.
func remoteCall(ctx context.Context, method, url string, body, out any) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, remoteTimeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("encoding request: %w", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return 0, fmt.Errorf("building request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%s %s: %w", method, url, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var e struct {
			Error string `json:"error"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&e); err != nil || e.Error == "" {
			return resp.StatusCode, fmt.Errorf("%s %s: %s", method, url, resp.Status)
		}
		return resp.StatusCode, fmt.Errorf("%s %s: %s", method, url, e.Error)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("decoding response: %w", err)
		}
	}
	return resp.StatusCode, nil
}
