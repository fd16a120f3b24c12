// Package knowledge stores and searches compliance documents using
// PostgreSQL with the pgvector extension. Documents are embedded at index
// time and retrieved by cosine similarity against an embedded query.
package knowledge
