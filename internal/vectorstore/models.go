package vectorstore

// Document is one stored item. Content arrives already prepared for
// persistence (the index encrypts it first) together with its
// precomputed embedding; the store never derives vectors from Content.
type Document struct {
	// ID is the unique identifier for the document.
	ID string

	// Content is the persisted text payload.
	Content string

	// Embedding is the precomputed vector for this document.
	Embedding []float32

	// Metadata holds key-value pairs for filtering. Common fields:
	// account, sender, date, thread_id.
	Metadata map[string]string
}

// SearchResult is one similarity-search hit.
type SearchResult struct {
	// ID is the document identifier.
	ID string

	// Content is the persisted text payload.
	Content string

	// Similarity is cosine similarity in [-1, 1]; higher is closer.
	Similarity float32

	// Metadata contains the document metadata.
	Metadata map[string]string
}
