package ingest

import (
	"crypto/sha256"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"

	"github.com/whiteboard-app/whiteboard-go/internal/rag"
)

// specialTokenReserve is the number of tokens reserved for the special
// tokens an encoder model prepends/appends at embed time. The recorded
// chunk token count includes it so it approximates the true embed-time
// length.
const specialTokenReserve = 2

// fallbackEncoding is used when the embedding model name is unknown to the
// tokenizer registry (local models such as nomic-embed-text).
const fallbackEncoding = "cl100k_base"

// ChunkerConfig holds the windowing parameters for a TokenChunker.
type ChunkerConfig struct {
	// ModelName selects the tokenizer vocabulary. It must match the
	// embedding model so windows don't silently truncate downstream.
	ModelName string

	// MaxTokens is the window size including the special-token reserve.
	// Must be greater than 8.
	MaxTokens int

	// Overlap is the number of tokens consecutive windows share. Must be
	// non-negative.
	Overlap int

	// MinChars drops decoded windows shorter than this many characters.
	// Defaults to MinSectionChars.
	MinChars int
}

// TokenChunker splits cleaned sections into fixed-size overlapping token
// windows and assigns each a stable content-derived identifier. It
// implements rag.Chunker.
type TokenChunker struct {
	cfg ChunkerConfig
	enc *tiktoken.Tiktoken
}

// NewTokenChunker constructs a TokenChunker, resolving the tokenizer for
// cfg.ModelName. Unknown model names fall back to the cl100k_base encoding.
func NewTokenChunker(cfg ChunkerConfig) (*TokenChunker, error) {
	if cfg.MaxTokens <= 8 {
		return nil, fmt.Errorf("ingest: max tokens must be greater than 8, got %d", cfg.MaxTokens)
	}
	if cfg.Overlap < 0 {
		return nil, fmt.Errorf("ingest: overlap must be non-negative, got %d", cfg.Overlap)
	}
	if cfg.MinChars <= 0 {
		cfg.MinChars = MinSectionChars
	}

	enc, err := tiktoken.EncodingForModel(cfg.ModelName)
	if err != nil {
		enc, err = tiktoken.GetEncoding(fallbackEncoding)
		if err != nil {
			return nil, fmt.Errorf("ingest: loading %s encoding: %w", fallbackEncoding, err)
		}
	}

	return &TokenChunker{cfg: cfg, enc: enc}, nil
}

// Chunk windows each section's token sequence and decodes the windows back
// to text. Sections yielding no usable windows contribute nothing; the
// overall result may be empty, which callers treat as "nothing ingestible".
func (c *TokenChunker) Chunk(sections []rag.Section) ([]rag.Chunk, error) {
	size := max(c.cfg.MaxTokens-specialTokenReserve, 1)

	var chunks []rag.Chunk
	for _, sec := range sections {
		raw := strings.TrimSpace(sec.Text)
		if utf8.RuneCountInString(raw) < c.cfg.MinChars {
			continue
		}

		// No special tokens here; windows are managed explicitly.
		ids := c.enc.Encode(raw, nil, nil)

		for _, span := range windowSpans(len(ids), size, c.cfg.Overlap) {
			text := strings.TrimSpace(c.enc.Decode(ids[span.start:span.end]))
			if utf8.RuneCountInString(text) < c.cfg.MinChars {
				continue
			}
			chunks = append(chunks, rag.Chunk{
				ID:      chunkID(sec.URL, sec.Title, span.start, span.end),
				Text:    text,
				Tokens:  span.end - span.start + specialTokenReserve,
				Section: sec.Title,
				URL:     sec.URL,
			})
		}
	}
	return chunks, nil
}

// span is a half-open token index range [start, end).
type span struct {
	start, end int
}

// windowSpans partitions a token sequence of length n into windows of at
// most size tokens, stepping by max(size-overlap, 1). Windows cover [0, n)
// with no gaps; consecutive windows overlap by exactly overlap tokens except
// possibly the final, truncated one. An empty sequence yields no windows.
func windowSpans(n, size, overlap int) []span {
	if n == 0 {
		return nil
	}
	if size <= 0 {
		return []span{{0, n}}
	}
	step := max(size-overlap, 1)

	var spans []span
	for start := 0; start < n; start += step {
		end := min(start+size, n)
		spans = append(spans, span{start, end})
		if end == n {
			break
		}
	}
	return spans
}

// chunkID derives the stable chunk identifier from the section URL, section
// title, and token window offsets. The first 16 bytes of the SHA-256 digest
// are formatted as a UUID because the vector store requires UUID point IDs;
// determinism is what makes re-ingestion idempotent.
func chunkID(url, title string, start, end int) string {
	sum := sha256.Sum256(fmt.Appendf(nil, "%s|%s|%d|%d", url, title, start, end))
	return fmt.Sprintf("%x-%x-%x-%x-%x", sum[0:4], sum[4:6], sum[6:8], sum[8:10], sum[10:16])
}
