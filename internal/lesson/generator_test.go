package lesson

import (
	"strings"
	"testing"

	"github.com/whiteboard-app/whiteboard-go/internal/rag"
)

func TestFormatSource_FullMetadata(t *testing.T) {
	t.Parallel()
	got := formatSource(rag.RetrievedChunk{
		Text: "irrelevant",
		Source: rag.Source{
			Kind:    rag.SourceKindWikipedia,
			URL:     "https://en.wikipedia.org/wiki/Linear_algebra#History",
			Title:   "Linear algebra",
			Section: "History",
		},
	})
	want := "- Linear algebra (https://en.wikipedia.org/wiki/Linear_algebra#History), Section: History"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestFormatSource_LeadSection(t *testing.T) {
	t.Parallel()
	got := formatSource(rag.RetrievedChunk{
		Source: rag.Source{
			URL:   "https://en.wikipedia.org/wiki/Linear_algebra",
			Title: "Linear algebra",
		},
	})
	if strings.Contains(got, "Section:") {
		t.Errorf("lead section should carry no section suffix: %q", got)
	}
}

func TestFormatSource_NoMetadata(t *testing.T) {
	t.Parallel()
	got := formatSource(rag.RetrievedChunk{
		Text: strings.Repeat("The rank of a matrix equals the dimension of its column space. ", 3),
	})
	if !strings.Contains(got, "No source metadata provided") {
		t.Errorf("expected snippet fallback, got %q", got)
	}
	if len(got) > 120 {
		t.Errorf("snippet fallback too long: %d chars", len(got))
	}
}
