// Package lesson turns retrieved topic chunks into a generated lesson summary
// and quiz, and persists the results locally.
package lesson

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/whiteboard-app/whiteboard-go/internal/rag"
)

// maxContextChars bounds the chunk text passed into the lesson prompt so the
// request stays inside the model's context window.
const maxContextChars = 4000

// DefaultK is the number of chunks retrieved per lesson when the caller does
// not specify one.
const DefaultK = 6

const lessonPromptTemplate = `Synthesize the information from the context below into a detailed, clear, and engaging lesson summary of 300-500 words.
The lesson must include:
1. **Introduction**: A brief overview of the topic (3-4 sentences) that captures its importance and relevance.
2. **Main Points**: 3-5 key points explained logically in bullet points, using clear, simple language suitable for a student. Each point should be elaborated with sufficient detail to enhance understanding.
3. **Example**: A practical, relatable example that illustrates one or more of the main points, with enough context to make it engaging and clear.
4. **Sources**: List the sources of the information, including any available metadata (e.g., title, URL, section).
Do not invent information outside the provided context. Format the output clearly with markdown headers and bullet points for readability.

CONTEXT:
%s

SOURCES:
%s

LESSON:
`

const quizPromptTemplate = `Based ONLY on the following lesson, create exactly 3 multiple-choice questions and one open-ended question.

Rules:
- Each question MUST end with "|||"
- Use this format for MCQs:
  QUESTION: ...
  OPTIONS: A) ... B) ... C) ... D) ...
  ANSWER: ...
- Use this format for open-ended:
  QUESTION: ...
  ANSWER: ...
- Do NOT add extra text, JSON, or markdown.

Lesson:
%s
`

// ChunkRetriever is the slice of the retrieval service the generator needs.
type ChunkRetriever interface {
	GetChunks(ctx context.Context, topic, query string, k int) ([]rag.RetrievedChunk, error)
}

// Content is a fully generated lesson for one topic.
type Content struct {
	// Topic is the topic the lesson was generated for.
	Topic string `json:"topic"`
	// Lesson is the generated markdown lesson text.
	Lesson string `json:"lesson"`
	// Quiz holds the parsed quiz questions.
	Quiz Quiz `json:"quiz"`
	// Chunks are the retrieved chunks the lesson was grounded on.
	Chunks []rag.RetrievedChunk `json:"retrieved_chunks"`
}

// Generator produces lessons and quizzes from retrieved chunks.
type Generator struct {
	model     model.ToolCallingChatModel
	retriever ChunkRetriever
	log       *slog.Logger
}

// NewGenerator constructs a Generator.
func NewGenerator(chatModel model.ToolCallingChatModel, retriever ChunkRetriever, log *slog.Logger) (*Generator, error) {
	if chatModel == nil {
		return nil, fmt.Errorf("lesson: chat model must not be nil")
	}
	if retriever == nil {
		return nil, fmt.Errorf("lesson: retriever must not be nil")
	}
	if log == nil {
		log = slog.Default()
	}
	return &Generator{model: chatModel, retriever: retriever, log: log}, nil
}

// Generate retrieves the top-k chunks for topic, writes a lesson from them,
// and derives a quiz from the lesson. k defaults to DefaultK when
// non-positive; an optional query steers retrieval toward a subtopic.
func (g *Generator) Generate(ctx context.Context, topic, query string, k int) (*Content, error) {
	if k <= 0 {
		k = DefaultK
	}

	chunks, err := g.retriever.GetChunks(ctx, topic, query, k)
	if err != nil {
		return nil, fmt.Errorf("lesson: retrieving chunks: %w", err)
	}
	if len(chunks) == 0 {
		return nil, fmt.Errorf("lesson: no chunks retrieved for topic %q", topic)
	}
	g.log.Debug("chunks retrieved for lesson",
		slog.String("topic", topic),
		slog.Int("count", len(chunks)),
	)

	lessonText, err := g.generateLesson(ctx, chunks)
	if err != nil {
		return nil, err
	}

	quizText, err := g.generateText(ctx, fmt.Sprintf(quizPromptTemplate, lessonText))
	if err != nil {
		return nil, fmt.Errorf("lesson: generating quiz: %w", err)
	}
	quiz := ParseQuiz(quizText)
	if len(quiz.Questions) == 0 {
		g.log.Warn("quiz output produced no parseable questions",
			slog.String("topic", topic),
		)
	}

	return &Content{
		Topic:  topic,
		Lesson: lessonText,
		Quiz:   quiz,
		Chunks: chunks,
	}, nil
}

// generateLesson builds the lesson prompt from chunk text and source
// metadata, then runs one model call.
func (g *Generator) generateLesson(ctx context.Context, chunks []rag.RetrievedChunk) (string, error) {
	texts := make([]string, len(chunks))
	sources := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
		sources[i] = formatSource(c)
	}

	context := strings.Join(texts, "\n\n")
	if len(context) > maxContextChars {
		g.log.Warn("lesson context truncated",
			slog.Int("chars", len(context)),
			slog.Int("limit", maxContextChars),
		)
		context = context[:maxContextChars]
	}

	prompt := fmt.Sprintf(lessonPromptTemplate, context, strings.Join(sources, "\n"))
	text, err := g.generateText(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("lesson: generating lesson: %w", err)
	}
	return text, nil
}

// generateText runs a single user-turn completion and returns the trimmed
// response content.
func (g *Generator) generateText(ctx context.Context, prompt string) (string, error) {
	resp, err := g.model.Generate(ctx, []*schema.Message{schema.UserMessage(prompt)})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(resp.Content), nil
}

// formatSource renders one chunk's provenance as a prompt source line. Chunks
// without metadata fall back to a text snippet identifier.
func formatSource(c rag.RetrievedChunk) string {
	if c.Source.Title == "" && c.Source.URL == "" && c.Source.Section == "" {
		snippet := c.Text
		if len(snippet) > 50 {
			snippet = snippet[:50]
		}
		return fmt.Sprintf("- %s... (No source metadata provided)", strings.TrimSpace(snippet))
	}

	title := c.Source.Title
	if title == "" {
		title = "Unknown Title"
	}
	url := c.Source.URL
	if url == "" {
		url = "No URL provided"
	}
	line := fmt.Sprintf("- %s (%s)", title, url)
	if c.Source.Section != "" {
		line += ", Section: " + c.Source.Section
	}
	return line
}
