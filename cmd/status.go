package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

const statusRequestTimeout = 5 * time.Second

var statusServerURL string

// newStatusCmd builds the "status" subcommand, which renders a running
// broker's /dicomweb-oauth/status response, including the server names it
// lists, as a table.
func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show a running broker's status and configured servers",
		Long: `Queries a running dicomweb-oauth-broker's admin endpoints and renders
its reported status and configured DICOMweb servers as a table.`,
		RunE: runStatus,
	}
	cmd.Flags().StringVar(&statusServerURL, "server", "http://localhost:8443", "Base URL of the running broker")
	return cmd
}

type statusResponse struct {
	PluginVersion string `json:"plugin_version"`
	APIVersion    string `json:"api_version"`
	Data          struct {
		Status            string   `json:"status"`
		TokenManagers     int      `json:"token_managers"`
		ServersConfigured int      `json:"servers_configured"`
		Servers           []string `json:"servers"`
	} `json:"data"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	status, err := fetchStatus(statusServerURL)
	if err != nil {
		return fmt.Errorf("could not reach broker at %s: %w", statusServerURL, err)
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"Field", "Value"})
	t.AppendRow(table.Row{"Status", status.Data.Status})
	t.AppendRow(table.Row{"Plugin Version", status.PluginVersion})
	t.AppendRow(table.Row{"API Version", status.APIVersion})
	t.AppendRow(table.Row{"Token Managers", status.Data.TokenManagers})
	t.AppendRow(table.Row{"Servers Configured", status.Data.ServersConfigured})
	t.AppendSeparator()
	for _, name := range status.Data.Servers {
		t.AppendRow(table.Row{"Server", name})
	}
	t.Render()
	return nil
}

func fetchStatus(baseURL string) (*statusResponse, error) {
	ctx, cancel := context.WithTimeout(context.Background(), statusRequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/dicomweb-oauth/status", nil)
	if err != nil {
		return nil, err
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var out statusResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	return &out, nil
}

func init() {
	rootCmd.AddCommand(newStatusCmd())
}
