// Package cmd implements the broker's command-line surface: serve, status,
// test-token, version, and self-update, all thin wrappers over
// internal/app.
package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// Exit codes for CLI commands.
const (
	ExitCodeSuccess = 0
	ExitCodeError   = 1
)

// rootCmd is the entry point when the broker binary is invoked without a
// subcommand.
var rootCmd = &cobra.Command{
	Use:   "dicomweb-oauth-broker",
	Short: "OAuth2 token broker and reverse proxy in front of DICOMweb servers",
	Long: `dicomweb-oauth-broker sits in front of one or more DICOMweb servers and
attaches OAuth2 client-credentials bearer tokens to requests the host
application forwards to it, so the host never holds IdP secrets itself.`,
	SilenceUsage: true,
}

// SetVersion injects the build-time version into the root command.
func SetVersion(v string) {
	rootCmd.Version = v
}

// GetVersion returns the current build version.
func GetVersion() string {
	return rootCmd.Version
}

// Execute runs the root command. Called by main.main().
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "dicomweb-oauth-broker version %s\n" .Version}}`)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(ExitCodeError)
	}
}

func init() {
	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newSelfUpdateCmd())
}

// status and test-token register themselves via their own init() functions
// in status.go and test_token.go, matching serve.go's pattern.
