package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/whiteboard-app/whiteboard-go/internal/logging"
)

// NewPurgeCmd constructs the `whiteboard purge` command, which removes all
// indexed chunks for one or more topics.
func NewPurgeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "purge [topic]...",
		Short: "Remove all indexed chunks for a topic",
		Long: `Delete every indexed chunk belonging to the given topics.

The next query or ingest for a purged topic re-runs the full pipeline.

Examples:
  whiteboard purge "Linear algebra"
  whiteboard purge "Linear algebra" "Calculus"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.New()

			deps, err := buildService(ctx, log)
			if err != nil {
				return fmt.Errorf("purge: %w", err)
			}
			defer deps.close()

			for _, topic := range args {
				if err := deps.service.Purge(ctx, topic); err != nil {
					return fmt.Errorf("purge: %w", err)
				}
				fmt.Printf("%s: purged\n", topic)
			}
			return nil
		},
	}
}
