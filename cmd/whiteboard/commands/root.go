// Package commands defines all Cobra CLI commands for the whiteboard binary.
package commands

import (
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/whiteboard-app/whiteboard-go/internal/audit"
	"github.com/whiteboard-app/whiteboard-go/internal/config"
	"github.com/whiteboard-app/whiteboard-go/internal/logging"
)

// configPath holds the --config flag value for YAML config file override.
var configPath string

// loadedConfigPath stores the resolved config file path for audit logging.
var loadedConfigPath string

// NewRootCmd constructs the root Cobra command that all subcommands attach to.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "whiteboard",
		Short: "Whiteboard — learn any topic from Wikipedia with AI-generated lessons",
		Long: `Whiteboard is a local-first study assistant.

Given a topic, it fetches the Wikipedia article, chunks and embeds the text
into a Qdrant vector index, and retrieves the most relevant passages for any
question. On top of retrieval it generates structured lessons with quizzes
using a local or hosted LLM.

Model provider is selected via the MODEL_PROVIDER environment variable
or a YAML config file (~/.whiteboard/config.yaml).
See 'whiteboard --help' for available commands.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			// A missing .env file is the normal case, not an error.
			_ = godotenv.Load()

			log := logging.New()

			// Load YAML config (env vars always override YAML values).
			path, err := config.Load(configPath, log)
			if err != nil {
				return err
			}
			loadedConfigPath = path

			// Emit structured audit log for every command invocation.
			audit.LogCommandStart(log, cmd.Name(), loadedConfigPath)

			return nil
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file (default: ~/.whiteboard/config.yaml)")

	root.AddCommand(
		NewQueryCmd(),
		NewIngestCmd(),
		NewLessonCmd(),
		NewStatusCmd(),
		NewPurgeCmd(),
		NewServeCmd(),
		NewVersionCmd(),
	)

	return root
}
