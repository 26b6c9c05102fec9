// Package vectorstore defines the interface for vector storage operations.
package vectorstore

import (
	"context"
	"errors"
)

// Sentinel errors for vector store operations.
var (
	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrEmptyDocuments indicates empty or nil documents.
	ErrEmptyDocuments = errors.New("empty or nil documents")

	// ErrMissingEmbedding indicates a document without a precomputed
	// embedding.
	ErrMissingEmbedding = errors.New("document missing embedding")
)

// Store is the interface for vector storage operations.
//
// The store is a dumb persistence layer: documents arrive with their
// embeddings already computed, and queries are vectors, not text. This
// keeps the store oblivious to plaintext, so an encrypting caller can
// persist ciphertext while searching over plaintext embeddings.
type Store interface {
	// Add upserts documents. Every document must carry an embedding of
	// the configured dimension. Returns the stored document IDs.
	Add(ctx context.Context, docs []Document) ([]string, error)

	// Query returns up to k results ordered by similarity (highest
	// first). filters restrict results to documents whose metadata
	// matches every key-value pair; nil means no filtering.
	Query(ctx context.Context, embedding []float32, k int, filters map[string]string) ([]SearchResult, error)

	// Delete removes documents by ID. Missing IDs are not an error.
	Delete(ctx context.Context, ids []string) error

	// Count returns the number of stored documents.
	Count(ctx context.Context) (int, error)

	// Close releases store resources.
	Close() error
}
