// Package ingest implements the text-processing half of the pipeline:
// cleaning raw section text and windowing it into bounded token chunks with
// stable content-derived identifiers.
package ingest

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/whiteboard-app/whiteboard-go/internal/rag"
)

// MinSectionChars is the minimum cleaned-text length, in runes, a section
// must have to survive cleaning. Shorter fragments (captions, stray lines)
// are noise, not errors.
const MinSectionChars = 80

var (
	// citationPattern matches inline citation markers: [12], [citation needed].
	citationPattern = regexp.MustCompile(`(?i)\[(?:\d+|citation needed)\]`)

	// horizontalSpacePattern matches runs of spaces, tabs, and NBSPs.
	horizontalSpacePattern = regexp.MustCompile(`[ \t\x{00A0}]+`)

	// multiNewlinePattern matches three or more consecutive newlines.
	multiNewlinePattern = regexp.MustCompile(`\n{3,}`)
)

// CleanText normalises one block of raw section text: citation markers are
// stripped, horizontal whitespace runs collapse to a single space, three or
// more newlines collapse to exactly two, and outer whitespace is trimmed.
func CleanText(text string) string {
	if text == "" {
		return ""
	}
	text = citationPattern.ReplaceAllString(text, "")
	text = horizontalSpacePattern.ReplaceAllString(text, " ")
	text = multiNewlinePattern.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

// CleanSections returns the sections with cleaned text, dropping any section
// whose cleaned text is shorter than MinSectionChars. Title and URL pass
// through unchanged. Pure function, no side effects.
func CleanSections(sections []rag.Section) []rag.Section {
	cleaned := make([]rag.Section, 0, len(sections))
	for _, sec := range sections {
		text := CleanText(sec.Text)
		// Rune count, not bytes: non-Latin articles must not over-count.
		if utf8.RuneCountInString(text) < MinSectionChars {
			continue
		}
		cleaned = append(cleaned, rag.Section{
			Title: sec.Title,
			Text:  text,
			URL:   sec.URL,
		})
	}
	return cleaned
}
