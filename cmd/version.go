package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
)

const versionCheckTimeout = 5 * time.Second

var versionServerURL string

// newVersionCmd displays the CLI's build version and, if a running
// broker's admin address is supplied, the status it reports.
func newVersionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print the broker's version",
		Long: `Displays the dicomweb-oauth-broker CLI version and, when --server is
given, the status reported by a running broker's admin endpoint.`,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "dicomweb-oauth-broker version %s\n", rootCmd.Version)

			if versionServerURL == "" {
				return
			}

			status, err := fetchBrokerStatus(versionServerURL)
			if err != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "\nServer: (not reachable: %v)\n", err)
				return
			}
			fmt.Fprintf(cmd.OutOrStdout(), "\nServer: %s (api %s)\n", status.PluginVersion, status.APIVersion)
		},
	}
	cmd.Flags().StringVar(&versionServerURL, "server", "", "Base URL of a running broker to query for its reported version")
	return cmd
}

type brokerStatusEnvelope struct {
	PluginVersion string `json:"plugin_version"`
	APIVersion    string `json:"api_version"`
}

func fetchBrokerStatus(baseURL string) (*brokerStatusEnvelope, error) {
	ctx, cancel := context.WithTimeout(context.Background(), versionCheckTimeout)
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

	var envelope brokerStatusEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, err
	}
	return &envelope, nil
}
