// Package wiki fetches article text from the MediaWiki Action API and
// converts it into the section structure the ingest pipeline consumes.
package wiki

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"
	"unicode"

	"golang.org/x/time/rate"

	"github.com/whiteboard-app/whiteboard-go/internal/rag"
)

// defaultUserAgent identifies this client to Wikimedia servers, as their API
// etiquette requires.
const defaultUserAgent = "whiteboard-go/1.0 (https://github.com/whiteboard-app/whiteboard-go)"

// blacklistSections are boilerplate headings that carry citations and link
// farms rather than prose. A blacklisted section is dropped together with all
// of its subsections.
var blacklistSections = map[string]struct{}{
	"references":      {},
	"external links":  {},
	"see also":        {},
	"further reading": {},
	"notes":           {},
	"sources":         {},
	"bibliography":    {},
}

// headingPattern matches MediaWiki plaintext extract headings such as
// "== History ==" or "=== Early work ===". The number of equals signs is the
// nesting level.
var headingPattern = regexp.MustCompile(`^(={2,6})\s*(.*?)\s*=+\s*$`)

// Config holds the settings for a wiki Client.
type Config struct {
	// Language is the Wikipedia language subdomain (default: "en").
	Language string

	// UserAgent overrides the default User-Agent header.
	UserAgent string

	// RequestsPerSecond caps outbound API calls (default: 2). Wikimedia asks
	// automated clients to stay well below their hard limits.
	RequestsPerSecond float64

	// BaseURL overrides the API endpoint, used by tests.
	BaseURL string
}

// Client fetches Wikipedia articles. It implements rag.SourceFetcher and is
// safe for concurrent use.
type Client struct {
	apiURL    string
	pageBase  string
	userAgent string
	limiter   *rate.Limiter
	http      *http.Client
}

// NewClient constructs a Client from the given config. A nil config uses
// defaults throughout.
func NewClient(cfg *Config) *Client {
	if cfg == nil {
		cfg = &Config{}
	}
	lang := cfg.Language
	if lang == "" {
		lang = "en"
	}
	agent := cfg.UserAgent
	if agent == "" {
		agent = defaultUserAgent
	}
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 2
	}
	apiURL := cfg.BaseURL
	if apiURL == "" {
		apiURL = fmt.Sprintf("https://%s.wikipedia.org/w/api.php", lang)
	}

	return &Client{
		apiURL:    apiURL,
		pageBase:  fmt.Sprintf("https://%s.wikipedia.org/wiki/", lang),
		userAgent: agent,
		limiter:   rate.NewLimiter(rate.Limit(rps), 1),
		http:      &http.Client{Timeout: 30 * time.Second},
	}
}

// Fetch resolves topic to a Wikipedia article and returns its title, URL, and
// ordered sections. The lead section comes first with an empty title; the
// remaining sections follow in document order with blacklisted headings and
// their subsections removed. A missing page is retried once with the first
// letter capitalised before rag.ErrNotFound is returned.
func (c *Client) Fetch(ctx context.Context, topic string) (*rag.Article, error) {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return nil, fmt.Errorf("wiki: topic must be a non-empty string")
	}

	page, err := c.queryExtract(ctx, topic)
	if err != nil {
		return nil, err
	}
	if page == nil {
		if alt := capitalise(topic); alt != topic {
			if page, err = c.queryExtract(ctx, alt); err != nil {
				return nil, err
			}
		}
		if page == nil {
			return nil, fmt.Errorf("wiki: no page for topic %q: %w", topic, rag.ErrNotFound)
		}
	}

	pageURL := c.pageBase + url.PathEscape(strings.ReplaceAll(page.Title, " ", "_"))
	return &rag.Article{
		Title:    page.Title,
		URL:      pageURL,
		Sections: parseSections(page.Extract, pageURL),
	}, nil
}

// extractPage is the per-page subset of the Action API response we consume.
type extractPage struct {
	Title   string `json:"title"`
	Extract string `json:"extract"`
	Missing any    `json:"missing"`
}

type extractResponse struct {
	Query struct {
		Pages map[string]extractPage `json:"pages"`
	} `json:"query"`
	Error *struct {
		Info string `json:"info"`
	} `json:"error"`
}

// queryExtract fetches the plaintext extract for title. It returns nil with
// no error when the page does not exist.
func (c *Client) queryExtract(ctx context.Context, title string) (*extractPage, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("wiki: rate limit wait: %w", err)
	}

	params := url.Values{}
	params.Set("action", "query")
	params.Set("prop", "extracts")
	params.Set("explaintext", "1")
	params.Set("redirects", "1")
	params.Set("format", "json")
	params.Set("titles", title)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("wiki: create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("wiki: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("wiki: HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var result extractResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("wiki: decode response: %w", err)
	}
	if result.Error != nil {
		return nil, fmt.Errorf("wiki: API error: %s", result.Error.Info)
	}

	for _, page := range result.Query.Pages {
		if page.Missing != nil {
			return nil, nil
		}
		return &page, nil
	}
	return nil, nil
}

// parseSections splits a plaintext extract into ordered sections. Text before
// the first heading becomes the lead section with an empty title. Heading
// levels drive blacklist handling: once a blacklisted heading is seen, every
// deeper heading is dropped with it until a heading at the same or a
// shallower level resumes normal collection.
func parseSections(extract, pageURL string) []rag.Section {
	var sections []rag.Section
	var buf strings.Builder

	currentTitle := ""
	currentURL := pageURL
	collecting := true
	skipLevel := 0

	flush := func() {
		text := strings.TrimSpace(buf.String())
		buf.Reset()
		if !collecting || text == "" {
			return
		}
		sections = append(sections, rag.Section{
			Title: currentTitle,
			Text:  text,
			URL:   currentURL,
		})
	}

	for _, line := range strings.Split(extract, "\n") {
		m := headingPattern.FindStringSubmatch(line)
		if m == nil {
			if collecting {
				buf.WriteString(line)
				buf.WriteByte('\n')
			}
			continue
		}

		flush()
		level := len(m[1])
		title := strings.TrimSpace(m[2])

		if !collecting && level > skipLevel {
			continue
		}
		if _, banned := blacklistSections[strings.ToLower(title)]; banned {
			collecting = false
			skipLevel = level
			continue
		}

		collecting = true
		currentTitle = title
		currentURL = pageURL + sectionAnchor(title)
	}
	flush()

	return sections
}

// sectionAnchor builds the fragment linking directly to a section. Wikipedia
// anchors replace spaces with underscores.
func sectionAnchor(title string) string {
	return "#" + url.PathEscape(strings.ReplaceAll(title, " ", "_"))
}

// capitalise upper-cases the first rune, matching MediaWiki's default title
// normalisation for topics typed in lowercase.
func capitalise(s string) string {
	runes := []rune(s)
	if len(runes) == 0 {
		return s
	}
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}
