package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/whiteboard-app/whiteboard-go/internal/logging"
	"github.com/whiteboard-app/whiteboard-go/internal/rag"
)

// NewIngestCmd constructs the `whiteboard ingest` command, which runs the
// ingestion pipeline for one or more topics without querying.
func NewIngestCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "ingest [topic]...",
		Short: "Fetch and index Wikipedia articles into the vector store",
		Long: `Fetch one or more Wikipedia articles and index them into Qdrant.

Each topic runs through the full pipeline: fetch, clean, chunk, embed,
upsert. Topics that are already indexed are skipped unless --force is given,
in which case the pipeline re-runs and replaces matching chunks.

Required environment variables:
  QDRANT_HOST          Qdrant server hostname (default: localhost)
  QDRANT_PORT          Qdrant gRPC port (default: 6334)
  QDRANT_COLLECTION    Collection name (default: whiteboard-chunks)
  QDRANT_API_KEY       Optional API key for authenticated clusters
  MODEL_PROVIDER       Embedding backend: ollama, openai, azure (default: ollama)
  EMBEDDING_*          Provider-specific overrides (see README)

Examples:
  whiteboard ingest "Linear algebra"
  whiteboard ingest "Linear algebra" "Calculus" "Set theory"
  whiteboard ingest --force "Linear algebra"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.New()

			deps, err := buildService(ctx, log)
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}
			defer deps.close()

			var failed int
			for _, topic := range args {
				if !force {
					indexed, err := deps.service.IsIndexed(ctx, topic)
					if err != nil {
						return fmt.Errorf("ingest: %w", err)
					}
					if indexed {
						fmt.Printf("%s: already indexed (use --force to re-ingest)\n", topic)
						continue
					}
				}

				if err := deps.service.Reingest(ctx, topic); err != nil {
					failed++
					switch {
					case errors.Is(err, rag.ErrNotFound):
						fmt.Printf("%s: no Wikipedia article found\n", topic)
					case errors.Is(err, rag.ErrNoContent):
						fmt.Printf("%s: article has no ingestible content\n", topic)
					default:
						fmt.Printf("%s: ingest failed: %v\n", topic, err)
					}
					continue
				}

				count := deps.service.CountChunks(ctx, topic)
				if count.OK {
					fmt.Printf("%s: ingested (%d chunks)\n", topic, count.Value)
				} else {
					fmt.Printf("%s: ingested\n", topic)
				}
			}

			if failed > 0 {
				return fmt.Errorf("ingest: %d of %d topics failed", failed, len(args))
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Re-ingest even if the topic is already indexed")

	return cmd
}
