package retrieval

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/complai/complai/internal/knowledge"
	"github.com/complai/complai/internal/log"
)

type fakeIndex struct {
	hits    []knowledge.Result
	err     error
	pingErr error
	lastK   int
}

func (f *fakeIndex) Search(_ context.Context, _ string, k int) ([]knowledge.Result, error) {
	f.lastK = k
	if f.err != nil {
		return nil, f.err
	}
	return f.hits, nil
}

func (f *fakeIndex) Ping(context.Context) error { return f.pingErr }

func hit(source, content string) knowledge.Result {
	return knowledge.Result{
		Document:   knowledge.Document{Source: source, Content: content},
		Similarity: 0.9,
	}
}

func TestShouldRetrieve(t *testing.T) {
	g := New(&fakeIndex{}, Config{Logger: log.NewNop()})

	tests := []struct {
		query string
		want  bool
	}{
		{"What is GDPR article 5?", true},
		{"Explain the CSRD reporting requirement", true},
		{"Is this legal under EU law?", true},
		{"Which regulation covers data transfers?", true},
		{"hello", false},
		{"how are you today", false},
		{"", false},
		{"COMPLIANCE deadlines", true},
	}
	for _, tt := range tests {
		if got := g.ShouldRetrieve(tt.query); got != tt.want {
			t.Errorf("ShouldRetrieve(%q) = %v, want %v", tt.query, got, tt.want)
		}
	}
}

func TestRetrieveMapsHits(t *testing.T) {
	idx := &fakeIndex{hits: []knowledge.Result{
		hit("gdpr.md", "Article 5 sets out principles for processing personal data."),
		hit("csrd.md", "The CSRD expands sustainability reporting obligations."),
	}}
	g := New(idx, Config{Logger: log.NewNop()})

	res := g.Retrieve(context.Background(), "gdpr article 5", 3)

	if idx.lastK != 3 {
		t.Errorf("k = %d, want 3", idx.lastK)
	}
	if res.Degraded {
		t.Error("unexpected degraded result")
	}
	if len(res.Citations) != 2 {
		t.Fatalf("citations = %d, want 2", len(res.Citations))
	}
	if res.Citations[0].Source != "gdpr.md" {
		t.Errorf("citation source = %q", res.Citations[0].Source)
	}
	if !strings.Contains(res.Context, "Source: gdpr.md") {
		t.Errorf("context missing source header: %q", res.Context)
	}
	if !strings.Contains(res.Context, "Article 5") {
		t.Errorf("context missing document text: %q", res.Context)
	}
}

func TestRetrieveSnippetTruncation(t *testing.T) {
	long := strings.Repeat("x", 2000)
	idx := &fakeIndex{hits: []knowledge.Result{hit("big.md", long)}}
	g := New(idx, Config{Logger: log.NewNop()})

	res := g.Retrieve(context.Background(), "regulation", 1)

	snippet := res.Citations[0].Snippet
	if len(snippet) != maxSnippetLen+len("...") {
		t.Errorf("snippet len = %d, want %d", len(snippet), maxSnippetLen+3)
	}
	if !strings.HasSuffix(snippet, "...") {
		t.Error("truncated snippet missing ellipsis")
	}
}

func TestRetrieveContextBudget(t *testing.T) {
	var hits []knowledge.Result
	for range 10 {
		hits = append(hits, hit("doc.md", strings.Repeat("y", 700)))
	}
	g := New(&fakeIndex{hits: hits}, Config{
		ContextCharBudget: 1500,
		Logger:            log.NewNop(),
	})

	res := g.Retrieve(context.Background(), "article", 10)

	if len(res.Context) > 1500 {
		t.Errorf("context len = %d exceeds budget 1500", len(res.Context))
	}
	// All hits still get citations even when the context budget cuts off.
	if len(res.Citations) != 10 {
		t.Errorf("citations = %d, want 10", len(res.Citations))
	}
}

func TestRetrieveDegradesOnIndexFailure(t *testing.T) {
	idx := &fakeIndex{err: errors.New("connection refused")}
	g := New(idx, Config{Logger: log.NewNop()})

	res := g.Retrieve(context.Background(), "gdpr article 5", 3)

	if !res.Degraded {
		t.Error("expected degraded result")
	}
	if len(res.Citations) != 0 || res.Context != "" {
		t.Error("degraded result should be empty")
	}

	h := g.Health(context.Background())
	if h.Status != "degraded" || !h.Degraded {
		t.Errorf("health after failure = %+v", h)
	}

	// Recovery clears the degraded flag.
	idx.err = nil
	idx.hits = []knowledge.Result{hit("a.md", "text")}
	if res := g.Retrieve(context.Background(), "gdpr", 1); res.Degraded {
		t.Error("result still degraded after recovery")
	}
	if h := g.Health(context.Background()); h.Status != "healthy" {
		t.Errorf("health after recovery = %+v", h)
	}
}

func TestHealthUnreachable(t *testing.T) {
	g := New(&fakeIndex{pingErr: errors.New("down")}, Config{Logger: log.NewNop()})

	h := g.Health(context.Background())
	if h.Status != "unhealthy" || !h.Degraded {
		t.Errorf("health = %+v, want unhealthy", h)
	}
}

func TestRetrieveEmptyHits(t *testing.T) {
	g := New(&fakeIndex{}, Config{Logger: log.NewNop()})

	res := g.Retrieve(context.Background(), "gdpr", 3)
	if res.Degraded || len(res.Citations) != 0 || res.Context != "" {
		t.Errorf("want empty non-degraded result, got %+v", res)
	}
}
