package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/whiteboard-app/whiteboard-go/internal/logging"
	"github.com/whiteboard-app/whiteboard-go/internal/rag"
)

// defaultTopK is the number of chunks returned when -k is not given.
const defaultTopK = 6

// NewQueryCmd constructs the `whiteboard query` command, which retrieves the
// most relevant chunks for a topic, ingesting the topic first if needed.
func NewQueryCmd() *cobra.Command {
	var question string
	var k int
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "query [topic]",
		Short: "Retrieve the most relevant article chunks for a topic",
		Long: `Retrieve the top-k most relevant chunks of a Wikipedia article.

If the topic has not been ingested yet, the full pipeline runs first:
fetch, clean, chunk, embed, and index. Subsequent queries hit the index
directly. When --question is omitted the topic itself is used as the query.

Examples:
  whiteboard query "Linear algebra"
  whiteboard query "Linear algebra" --question "what are eigenvalues?" -k 4
  whiteboard query "Photosynthesis" --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.New()

			deps, err := buildService(ctx, log)
			if err != nil {
				return fmt.Errorf("query: %w", err)
			}
			defer deps.close()

			chunks, err := deps.service.GetChunks(ctx, args[0], question, k)
			if err != nil {
				if errors.Is(err, rag.ErrNotFound) {
					return fmt.Errorf("query: no Wikipedia article found for %q", args[0])
				}
				return fmt.Errorf("query: %w", err)
			}

			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(chunks)
			}

			for i, c := range chunks {
				fmt.Printf("--- [%d] score=%.4f tokens=%d\n", i+1, c.Score, c.Tokens)
				if c.Source.Section != "" {
					fmt.Printf("    %s — %s\n", c.Source.Title, c.Source.Section)
				} else {
					fmt.Printf("    %s\n", c.Source.Title)
				}
				fmt.Printf("    %s\n\n%s\n\n", c.Source.URL, c.Text)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&question, "question", "q", "", "Question to search for (defaults to the topic)")
	cmd.Flags().IntVarP(&k, "top-k", "k", defaultTopK, "Number of chunks to retrieve")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit results as JSON")

	return cmd
}
