// Package retrieval decides whether a query warrants knowledge lookup and,
// when it does, fetches and normalizes candidate documents with citations.
//
// Retrieval is a best-effort enhancement: index failures degrade to an empty
// result with a flag, never a request failure. The keyword classifier is
// deliberately simple; false negatives only mean the assistant answers from
// general knowledge, false positives only cost latency.
package retrieval

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/complai/complai/internal/config"
	"github.com/complai/complai/internal/knowledge"
)

// Citation is a document reference attached to an answer.
type Citation struct {
	Source  string `json:"source"`
	Snippet string `json:"snippet"`
}

// Result is the outcome of one retrieval pass. Empty when retrieval was
// skipped or returned nothing.
type Result struct {
	Citations []Citation `json:"citations"`
	// Context is the concatenated snippet text injected into the prompt,
	// ranked highest relevance first and capped at the char budget.
	Context string `json:"-"`
	// Degraded is set when the index was unreachable and the result is
	// empty for that reason rather than a true miss.
	Degraded bool `json:"-"`
}

// Index is the knowledge lookup capability the gate depends on.
// *knowledge.Store satisfies it.
type Index interface {
	Search(ctx context.Context, query string, k int) ([]knowledge.Result, error)
	Ping(ctx context.Context) error
}

// Caps applied while normalizing raw hits.
const (
	// maxSnippetLen bounds citation snippets.
	maxSnippetLen = 500

	// maxDocContextLen bounds the per-document slice of the prompt context.
	maxDocContextLen = 800
)

// keywords trigger knowledge lookup when present in the query.
var keywords = []string{
	"article", "section", "regulation", "requirement",
	"gdpr", "csrd", "compliance", "legal", "directive",
	"annex", "specific", "exact",
}

// Config contains gate tunables. Zero values use package defaults.
type Config struct {
	// ContextCharBudget caps the total concatenated context length.
	ContextCharBudget int

	Logger *slog.Logger
}

// Gate is the retrieval decision and normalization layer.
//
// Gate is safe for concurrent use.
type Gate struct {
	index  Index
	budget int
	logger *slog.Logger

	mu       sync.Mutex
	degraded bool // last observed index health
}

// New creates a Gate over the given index.
func New(index Index, cfg Config) *Gate {
	if cfg.ContextCharBudget <= 0 {
		cfg.ContextCharBudget = config.DefaultContextCharBudget
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Gate{
		index:  index,
		budget: cfg.ContextCharBudget,
		logger: cfg.Logger,
	}
}

// ShouldRetrieve reports whether the query contains a domain term that
// warrants knowledge lookup. Deterministic, case-insensitive.
func (g *Gate) ShouldRetrieve(query string) bool {
	lower := strings.ToLower(query)
	for _, kw := range keywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// Retrieve queries the index for the top-k matches and maps them into
// citations plus a budget-capped context string. Index unavailability yields
// an empty, degraded result; retrieval never fails the request.
func (g *Gate) Retrieve(ctx context.Context, query string, k int) Result {
	if k <= 0 {
		k = config.DefaultRetrievalK
	}

	hits, err := g.index.Search(ctx, query, k)
	if err != nil {
		g.setDegraded(true)
		g.logger.Warn("knowledge lookup failed, continuing without context",
			"error", err,
			"query_len", len(query),
		)
		return Result{Degraded: true}
	}
	g.setDegraded(false)

	if len(hits) == 0 {
		return Result{}
	}

	result := Result{Citations: make([]Citation, 0, len(hits))}
	var b strings.Builder
	for _, hit := range hits {
		result.Citations = append(result.Citations, Citation{
			Source:  hit.Document.Source,
			Snippet: truncate(hit.Document.Content, maxSnippetLen),
		})

		part := "Source: " + hit.Document.Source + "\n" +
			truncate(hit.Document.Content, maxDocContextLen)
		if b.Len() > 0 {
			if b.Len()+len(part)+2 > g.budget {
				break
			}
			b.WriteString("\n\n")
		} else if len(part) > g.budget {
			part = part[:g.budget]
		}
		b.WriteString(part)
	}
	result.Context = b.String()

	g.logger.Debug("retrieved knowledge context",
		"citations", len(result.Citations),
		"context_len", len(result.Context),
	)
	return result
}

// Health reports index reachability for the kb health endpoint.
type Health struct {
	Status   string `json:"status"`
	Degraded bool   `json:"degraded"`
}

// Health pings the index and combines it with the last observed state.
func (g *Gate) Health(ctx context.Context) Health {
	if err := g.index.Ping(ctx); err != nil {
		g.setDegraded(true)
		return Health{Status: "unhealthy", Degraded: true}
	}

	g.mu.Lock()
	degraded := g.degraded
	g.mu.Unlock()

	status := "healthy"
	if degraded {
		status = "degraded"
	}
	return Health{Status: status, Degraded: degraded}
}

func (g *Gate) setDegraded(v bool) {
	g.mu.Lock()
	g.degraded = v
	g.mu.Unlock()
}

// truncate cuts s at max bytes, appending an ellipsis when cut.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
