package cli

import (
	"net"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/uwflow/uwflow/internal/api"
)

func init() {
	serveCmd.Flags().StringVar(&serveHost, "host", "127.0.0.1", "Host to listen on")
	serveCmd.Flags().IntVar(&servePort, "port", 9470, "Port to listen on")
	serveCmd.Flags().BoolVar(&serveMetrics, "metrics", true, "Expose Prometheus metrics at /metrics")
	rootCmd.AddCommand(serveCmd)
}

var (
	serveHost    string
	servePort    int
	serveMetrics bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the read-only status server",
	Long: `Serve driver catalogs, recorded run history and metrics over HTTP.
The server never runs tasks.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	db, err := openHistory()
	if err != nil {
		return err
	}
	defer db.Close()

	s := api.NewServer(db, cmd.Root().Version, logger)
	if serveMetrics {
		s.EnableMetrics()
	}
	return s.ListenAndServe(cmd.Context(), net.JoinHostPort(serveHost, strconv.Itoa(servePort)))
}
