package commands

import (
	"github.com/spf13/cobra"

	"github.com/JonMunkholm/dbpipeline/internal/web"
)

// NewServeCommand creates the serve command.
func NewServeCommand() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		Long: `Start the HTTP API on SERVER_HOST:SERVER_PORT. Interrupt to stop; runs in
progress get SERVER_SHUTDOWN_TIMEOUT to finish.`,
		Example: `  dbpipeline serve --port 9090`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := appFromContext(cmd.Context())
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("port") {
				app.Config.Server.Port = port
			}
			return web.NewServer(app.Service, app.Config).Serve(cmd.Context())
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 0, "Port to listen on (default SERVER_PORT)")
	return cmd
}
