package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/whiteboard-app/whiteboard-go/internal/logging"
)

// NewStatusCmd constructs the `whiteboard status` command, which reports the
// index state of one or more topics.
func NewStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status [topic]...",
		Short: "Show the index state of a topic",
		Long: `Report whether each topic is indexed, how many chunks it holds, and which
embedding model the current configuration uses.

The chunk count is best-effort: when the count probe fails the topic is
still reported, with the failure reason instead of a number.

Examples:
  whiteboard status "Linear algebra"
  whiteboard status "Linear algebra" "Calculus"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.New()

			deps, err := buildService(ctx, log)
			if err != nil {
				return fmt.Errorf("status: %w", err)
			}
			defer deps.close()

			fmt.Printf("embedding model: %s\n\n", deps.service.EmbeddingModel())

			for _, topic := range args {
				indexed, err := deps.service.IsIndexed(ctx, topic)
				if err != nil {
					return fmt.Errorf("status: %w", err)
				}
				if !indexed {
					fmt.Printf("%s: not indexed\n", topic)
					continue
				}

				count := deps.service.CountChunks(ctx, topic)
				if count.OK {
					fmt.Printf("%s: indexed (%d chunks)\n", topic, count.Value)
				} else {
					fmt.Printf("%s: indexed (count unavailable: %s)\n", topic, count.Reason)
				}
			}
			return nil
		},
	}
}
