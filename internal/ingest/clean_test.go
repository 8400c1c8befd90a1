package ingest

import (
	"strings"
	"testing"

	"github.com/whiteboard-app/whiteboard-go/internal/rag"
)

func TestCleanText_Citations(t *testing.T) {
	t.Parallel()
	got := CleanText("Euler proved this.[12] Later work[citation needed] refined it.[3]")
	want := "Euler proved this. Later work refined it."
	if got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}

func TestCleanText_CitationCaseInsensitive(t *testing.T) {
	t.Parallel()
	got := CleanText("Disputed.[Citation Needed]")
	if got != "Disputed." {
		t.Errorf("expected citation marker stripped, got %q", got)
	}
}

func TestCleanText_Whitespace(t *testing.T) {
	t.Parallel()
	got := CleanText("a \t b c")
	if got != "a b c" {
		t.Errorf("expected horizontal runs collapsed, got %q", got)
	}
}

func TestCleanText_Newlines(t *testing.T) {
	t.Parallel()
	got := CleanText("para one\n\n\n\n\npara two")
	if got != "para one\n\npara two" {
		t.Errorf("expected newline runs collapsed to two, got %q", got)
	}
	got = CleanText("para one\n\npara two")
	if got != "para one\n\npara two" {
		t.Errorf("expected double newline preserved, got %q", got)
	}
}

func TestCleanText_Empty(t *testing.T) {
	t.Parallel()
	if got := CleanText(""); got != "" {
		t.Errorf("expected empty string, got %q", got)
	}
	if got := CleanText("   \n\t  "); got != "" {
		t.Errorf("expected whitespace-only input to clean to empty, got %q", got)
	}
}

func TestCleanSections_DropsShort(t *testing.T) {
	t.Parallel()
	long := strings.Repeat("mathematics is the study of structure ", 5)
	sections := []rag.Section{
		{Title: "History", Text: long, URL: "https://example.org/wiki/Math#History"},
		{Title: "Stub", Text: "too short", URL: "https://example.org/wiki/Math#Stub"},
		{Title: "Empty", Text: "[1][2][3]", URL: "https://example.org/wiki/Math#Empty"},
	}

	cleaned := CleanSections(sections)
	if len(cleaned) != 1 {
		t.Fatalf("expected 1 surviving section, got %d", len(cleaned))
	}
	if cleaned[0].Title != "History" {
		t.Errorf("expected History to survive, got %q", cleaned[0].Title)
	}
	if cleaned[0].URL != "https://example.org/wiki/Math#History" {
		t.Errorf("URL not preserved: %q", cleaned[0].URL)
	}
}

func TestCleanSections_MinLengthCountsRunes(t *testing.T) {
	t.Parallel()
	// 60 Cyrillic runes occupy 120 bytes; a byte-length check would wrongly
	// keep this sub-threshold fragment.
	short := strings.Repeat("й", 60)
	long := strings.Repeat("й", MinSectionChars)
	sections := []rag.Section{
		{Title: "Short", Text: short, URL: "https://ru.example.org/wiki/X#Short"},
		{Title: "Long", Text: long, URL: "https://ru.example.org/wiki/X#Long"},
	}

	cleaned := CleanSections(sections)
	if len(cleaned) != 1 {
		t.Fatalf("expected 1 surviving section, got %d", len(cleaned))
	}
	if cleaned[0].Title != "Long" {
		t.Errorf("expected Long to survive, got %q", cleaned[0].Title)
	}
}

func TestCleanSections_EmptyInput(t *testing.T) {
	t.Parallel()
	if got := CleanSections(nil); len(got) != 0 {
		t.Errorf("expected no sections, got %d", len(got))
	}
}
