package commands

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/whiteboard-app/whiteboard-go/internal/logging"
	"github.com/whiteboard-app/whiteboard-go/internal/server"
)

// NewServeCmd constructs the `whiteboard serve` command, which starts the
// HTTP API server.
func NewServeCmd() *cobra.Command {
	var host string
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the whiteboard HTTP API server",
		Long: `Start the whiteboard HTTP server on localhost.

The server exposes the retrieval pipeline over a REST API:

  POST   /api/chunks          retrieve chunks (ingesting on first query)
  POST   /api/ingest          ingest a topic explicitly
  GET    /api/topics/{topic}  index status for a topic
  DELETE /api/topics/{topic}  purge a topic
  GET    /api/health          liveness
  GET    /api/ready           readiness (probes Qdrant and the embedder)
  GET    /metrics             Prometheus metrics

Set WHITEBOARD_API_KEY to require Bearer authentication on /api/ routes.

Examples:
  whiteboard serve
  whiteboard serve --port 9090
  WHITEBOARD_API_KEY=secret whiteboard serve`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			log.Info("serve starting", slog.String("provider", os.Getenv("MODEL_PROVIDER")))

			deps, err := buildService(ctx, log)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			defer deps.close()

			pingers := []server.Pinger{
				server.NewQdrantPinger(deps.store),
				server.NewEmbedderPinger(deps.embedder),
			}

			srv, err := server.New(deps.service, &server.Config{
				Host:    host,
				Port:    port,
				Logger:  log,
				Pingers: pingers,
				APIKey:  os.Getenv("WHITEBOARD_API_KEY"),
			})
			if err != nil {
				return fmt.Errorf("serve: failed to create server: %w", err)
			}

			return srv.Start(ctx)
		},
	}

	cmd.Flags().StringVar(&host, "host", "127.0.0.1", "Host address to bind to")
	cmd.Flags().IntVarP(&port, "port", "p", 8080, "TCP port to listen on")

	return cmd
}
