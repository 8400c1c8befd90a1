package wiki

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/whiteboard-app/whiteboard-go/internal/rag"
)

// fakeWiki serves canned Action API responses keyed by requested title.
func fakeWiki(t *testing.T, pages map[string]extractPage) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		title := r.URL.Query().Get("titles")
		page, ok := pages[title]
		if !ok {
			page = extractPage{Title: title, Missing: ""}
		}
		resp := extractResponse{}
		resp.Query.Pages = map[string]extractPage{"1": page}
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			t.Errorf("encode response: %v", err)
		}
	}))
}

func newTestClient(baseURL string) *Client {
	return NewClient(&Config{BaseURL: baseURL, RequestsPerSecond: 1000})
}

func TestFetch_LeadAndSections(t *testing.T) {
	t.Parallel()
	srv := fakeWiki(t, map[string]extractPage{
		"Linear algebra": {
			Title: "Linear algebra",
			Extract: "Linear algebra is the branch of mathematics concerning linear equations.\n" +
				"\n== History ==\nThe study of determinants came first.\n" +
				"\n=== Modern era ===\nMatrix theory matured in the 19th century.\n" +
				"\n== References ==\nIgnore me.\n",
		},
	})
	defer srv.Close()

	article, err := newTestClient(srv.URL).Fetch(context.Background(), "Linear algebra")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if article.Title != "Linear algebra" {
		t.Errorf("title = %q", article.Title)
	}
	if article.URL != "https://en.wikipedia.org/wiki/Linear_algebra" {
		t.Errorf("url = %q", article.URL)
	}
	if len(article.Sections) != 3 {
		t.Fatalf("expected 3 sections (lead, History, Modern era), got %d: %+v", len(article.Sections), article.Sections)
	}
	if article.Sections[0].Title != "" {
		t.Errorf("lead section has title %q", article.Sections[0].Title)
	}
	if article.Sections[0].URL != article.URL {
		t.Errorf("lead section URL = %q", article.Sections[0].URL)
	}
	if article.Sections[1].Title != "History" {
		t.Errorf("section 1 title = %q", article.Sections[1].Title)
	}
	if want := article.URL + "#Modern_era"; article.Sections[2].URL != want {
		t.Errorf("section 2 URL = %q, want %q", article.Sections[2].URL, want)
	}
}

func TestFetch_BlacklistDropsSubsections(t *testing.T) {
	t.Parallel()
	srv := fakeWiki(t, map[string]extractPage{
		"Graph theory": {
			Title: "Graph theory",
			Extract: "Graphs model pairwise relations.\n" +
				"\n== See also ==\nLinked topics.\n" +
				"\n=== Related fields ===\nStill inside the blacklisted tree.\n" +
				"\n== Applications ==\nNetworks, scheduling, and chemistry.\n",
		},
	})
	defer srv.Close()

	article, err := newTestClient(srv.URL).Fetch(context.Background(), "Graph theory")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(article.Sections) != 2 {
		t.Fatalf("expected 2 sections, got %d: %+v", len(article.Sections), article.Sections)
	}
	if article.Sections[1].Title != "Applications" {
		t.Errorf("expected Applications to survive, got %q", article.Sections[1].Title)
	}
}

func TestFetch_CapitalisationRetry(t *testing.T) {
	t.Parallel()
	srv := fakeWiki(t, map[string]extractPage{
		"Eigenvalues": {Title: "Eigenvalues", Extract: "The scalar factors of a linear map."},
	})
	defer srv.Close()

	article, err := newTestClient(srv.URL).Fetch(context.Background(), "eigenvalues")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if article.Title != "Eigenvalues" {
		t.Errorf("title = %q", article.Title)
	}
}

func TestFetch_NotFound(t *testing.T) {
	t.Parallel()
	srv := fakeWiki(t, nil)
	defer srv.Close()

	_, err := newTestClient(srv.URL).Fetch(context.Background(), "No such page xyz")
	if !errors.Is(err, rag.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestFetch_EmptyTopic(t *testing.T) {
	t.Parallel()
	_, err := NewClient(nil).Fetch(context.Background(), "   ")
	if err == nil {
		t.Error("expected error for blank topic")
	}
}

func TestParseSections_NoHeadings(t *testing.T) {
	t.Parallel()
	sections := parseSections("Just a lead paragraph.", "https://example.org/wiki/X")
	if len(sections) != 1 {
		t.Fatalf("expected 1 section, got %d", len(sections))
	}
	if sections[0].Title != "" || sections[0].Text != "Just a lead paragraph." {
		t.Errorf("unexpected section: %+v", sections[0])
	}
}

func TestParseSections_EmptyExtract(t *testing.T) {
	t.Parallel()
	if sections := parseSections("", "u"); len(sections) != 0 {
		t.Errorf("expected no sections, got %d", len(sections))
	}
}

func TestParseSections_BlacklistResumesAtSameLevel(t *testing.T) {
	t.Parallel()
	extract := "Lead.\n== Notes ==\nskip\n== Proof ==\nkeep this text\n"
	sections := parseSections(extract, "u")
	if len(sections) != 2 {
		t.Fatalf("expected 2 sections, got %d: %+v", len(sections), sections)
	}
	if sections[1].Title != "Proof" {
		t.Errorf("expected Proof, got %q", sections[1].Title)
	}
}

func TestCapitalise(t *testing.T) {
	t.Parallel()
	if got := capitalise("eigenvalues"); got != "Eigenvalues" {
		t.Errorf("got %q", got)
	}
	if got := capitalise(""); got != "" {
		t.Errorf("got %q", got)
	}
	if got := capitalise("Überlagerung"); got != "Überlagerung" {
		t.Errorf("got %q", got)
	}
}
