package knowledge

import (
	"errors"
	"time"
)

// VectorDimension is the embedding size stored in the documents table.
// Must match the vector(N) column in the schema.
const VectorDimension = 768

// EmbedTimeout bounds a single embedding call.
const EmbedTimeout = 15 * time.Second

// SearchTimeout bounds a vector similarity query.
const SearchTimeout = 10 * time.Second

var (
	// ErrEmptyContent indicates a document with no content to embed.
	ErrEmptyContent = errors.New("document content is empty")

	// ErrEmptyQuery indicates a search with an empty query string.
	ErrEmptyQuery = errors.New("search query is empty")
)

// Document is one indexed compliance source.
type Document struct {
	ID        string            `json:"id"`
	Source    string            `json:"source"`
	Content   string            `json:"content"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

// Result is a search hit with its similarity score in [0, 1].
type Result struct {
	Document   Document `json:"document"`
	Similarity float64  `json:"similarity"`
}
