package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/cloudwego/eino/callbacks"
	"github.com/spf13/cobra"

	"github.com/whiteboard-app/whiteboard-go/internal/lesson"
	"github.com/whiteboard-app/whiteboard-go/internal/logging"
	"github.com/whiteboard-app/whiteboard-go/internal/provider"
	"github.com/whiteboard-app/whiteboard-go/internal/rag"
	"github.com/whiteboard-app/whiteboard-go/internal/tracing"
)

// NewLessonCmd constructs the `whiteboard lesson` command group.
func NewLessonCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lesson",
		Short: "Generate and browse AI lessons with quizzes",
	}

	cmd.AddCommand(
		newLessonGenerateCmd(),
		newLessonListCmd(),
	)

	return cmd
}

// newLessonGenerateCmd constructs `whiteboard lesson generate`, which
// retrieves chunks for a topic and generates a structured lesson plus quiz.
func newLessonGenerateCmd() *cobra.Command {
	var question string
	var k int
	var asJSON bool
	var noSave bool

	cmd := &cobra.Command{
		Use:   "generate [topic]",
		Short: "Generate a lesson and quiz for a topic",
		Long: `Generate a structured lesson with a quiz for a Wikipedia topic.

The topic's most relevant chunks are retrieved (ingesting the article first
if needed) and passed as context to the configured chat model. The result is
persisted to the local lesson database unless --no-save is given.

Examples:
  whiteboard lesson generate "Photosynthesis"
  whiteboard lesson generate "Photosynthesis" --question "light reactions" -k 4
  MODEL_PROVIDER=openai whiteboard lesson generate "Photosynthesis" --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.New()

			// Setup Langfuse tracing — opt-in, no-op if keys are absent.
			handler, flush, ok := tracing.Setup()
			if ok {
				callbacks.AppendGlobalHandlers(handler)
				defer flush()
				log.Info("langfuse tracing enabled")
			}

			chatModel, err := provider.NewFromEnv(ctx)
			if err != nil {
				return fmt.Errorf("lesson generate: failed to initialise model provider: %w", err)
			}

			deps, err := buildService(ctx, log)
			if err != nil {
				return fmt.Errorf("lesson generate: %w", err)
			}
			defer deps.close()

			gen, err := lesson.NewGenerator(chatModel, deps.service, log)
			if err != nil {
				return fmt.Errorf("lesson generate: %w", err)
			}

			content, err := gen.Generate(ctx, args[0], question, k)
			if err != nil {
				if errors.Is(err, rag.ErrNotFound) {
					return fmt.Errorf("lesson generate: no Wikipedia article found for %q", args[0])
				}
				return fmt.Errorf("lesson generate: %w", err)
			}

			if !noSave {
				store, serr := openLessonStore(log)
				if serr != nil {
					log.Warn("lesson store unavailable, result not persisted", slog.Any("error", serr))
				} else {
					defer func() { _ = store.Close() }()
					id, serr := store.Save(ctx, content)
					if serr != nil {
						log.Warn("failed to persist lesson", slog.Any("error", serr))
					} else {
						log.Info("lesson saved", slog.Int64("id", id))
					}
				}
			}

			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(content)
			}

			printLesson(content)
			return nil
		},
	}

	cmd.Flags().StringVarP(&question, "question", "q", "", "Focus the lesson on a specific question")
	cmd.Flags().IntVarP(&k, "top-k", "k", lesson.DefaultK, "Number of chunks to ground the lesson on")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit the lesson as JSON")
	cmd.Flags().BoolVar(&noSave, "no-save", false, "Do not persist the lesson to the local database")

	return cmd
}

// newLessonListCmd constructs `whiteboard lesson list`, which prints recent
// lessons from the local database.
func newLessonListCmd() *cobra.Command {
	var topic string
	var n int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recently generated lessons",
		Long: `List recently generated lessons, newest first.

Examples:
  whiteboard lesson list
  whiteboard lesson list --topic "Photosynthesis" -n 5`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			log := logging.New()

			store, err := openLessonStore(log)
			if err != nil {
				return fmt.Errorf("lesson list: %w", err)
			}
			defer func() { _ = store.Close() }()

			lessons, err := store.List(ctx, topic, n)
			if err != nil {
				return fmt.Errorf("lesson list: %w", err)
			}
			if len(lessons) == 0 {
				fmt.Println("no lessons found")
				return nil
			}

			for _, l := range lessons {
				fmt.Printf("[%d] %s — %s (%d questions)\n",
					l.ID, l.CreatedAt.Format("2006-01-02 15:04"), l.Topic, len(l.Quiz.Questions))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&topic, "topic", "t", "", "Restrict the list to one topic")
	cmd.Flags().IntVarP(&n, "limit", "n", 10, "Maximum number of lessons to show")

	return cmd
}

// openLessonStore opens the lesson database. WHITEBOARD_LESSON_DB overrides
// the default path (~/.whiteboard/lessons.db).
func openLessonStore(log *slog.Logger) (*lesson.SQLiteStore, error) {
	path := os.Getenv("WHITEBOARD_LESSON_DB")
	if path == "" {
		var err error
		path, err = lesson.DefaultDBPath()
		if err != nil {
			return nil, err
		}
	}
	store, err := lesson.Open(path)
	if err != nil {
		return nil, err
	}
	log.Debug("lesson store opened", slog.String("path", path))
	return store, nil
}

// printLesson renders a generated lesson to stdout in a readable form.
func printLesson(c *lesson.Content) {
	fmt.Printf("# %s\n\n%s\n", c.Topic, c.Lesson)

	if len(c.Quiz.Questions) > 0 {
		fmt.Printf("\n## Quiz\n\n")
		for i, q := range c.Quiz.Questions {
			fmt.Printf("%d. %s\n", i+1, q.Question)
			for _, key := range []string{"A", "B", "C", "D"} {
				if opt, ok := q.Options[key]; ok {
					fmt.Printf("   %s) %s\n", key, opt)
				}
			}
			fmt.Printf("   Answer: %s\n\n", q.Answer)
		}
	}

	if len(c.Chunks) > 0 {
		fmt.Println("## Sources")
		for _, ch := range c.Chunks {
			if ch.Source.Section != "" {
				fmt.Printf("- %s — %s (%s)\n", ch.Source.Title, ch.Source.Section, ch.Source.URL)
			} else {
				fmt.Printf("- %s (%s)\n", ch.Source.Title, ch.Source.URL)
			}
		}
	}
}
