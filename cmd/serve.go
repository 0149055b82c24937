package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rhavekost/dicomweb-oauth-broker/internal/app"

	"github.com/spf13/cobra"
)

var serveDebug bool
var serveConfigPath string
var serveListenAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the broker's admin and proxy HTTP server",
	Long: `Starts the admin and proxy HTTP server: exposes /dicomweb-oauth/status,
/dicomweb-oauth/servers, and the /oauth-dicom-web/servers/{name}/... proxy
path for every server configured in --config-path.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := app.NewConfig(serveDebug, false, serveConfigPath, serveListenAddr, rootCmd.Version)

	application, err := app.NewApplication(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if ctx == nil {
		ctx = context.Background()
	}
	return application.Run(ctx)
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().BoolVar(&serveDebug, "debug", false, "Enable debug logging regardless of configured LogLevel")
	serveCmd.Flags().StringVar(&serveConfigPath, "config-path", "", "Path to the broker's JSON or YAML configuration file")
	serveCmd.Flags().StringVar(&serveListenAddr, "listen", ":8443", "Address the admin and proxy HTTP server binds to")
	serveCmd.MarkFlagRequired("config-path")
}
