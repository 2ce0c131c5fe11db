// cmd_serve.go - Serve Command
// Hauptfunktionen: RunServer
package cmd

import (
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/7blacky7/rocal/envconfig"
	"github.com/7blacky7/rocal/server"
)

// RunServer - Startet den Status-Server
func RunServer(cmd *cobra.Command, _ []string) error {
	ln, err := net.Listen("tcp", envconfig.Host())
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return server.Serve(ctx, ln)
}

// newServeCmd - Erstellt den serve Command
func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "serve",
		Aliases: []string{"start"},
		Short:   "Start the pipeline status server",
		Args:    cobra.ExactArgs(0),
		RunE:    RunServer,
	}
}
