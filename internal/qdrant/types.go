// Package qdrant provides a wrapper around the Qdrant Go client
// with simplified APIs for storing and searching labeled documents.
package qdrant

// CollectionConfig defines the configuration for creating a Qdrant collection.
type CollectionConfig struct {
	// Name is the collection name (will be prefixed).
	Name string

	// VectorSize is the embedding dimension.
	VectorSize uint64

	// OnDiskPayload stores payload on disk to save RAM.
	OnDiskPayload bool
}

// DefaultCollectionConfig returns defaults for a small evaluation corpus.
func DefaultCollectionConfig(name string, vectorSize int) CollectionConfig {
	return CollectionConfig{
		Name:       name,
		VectorSize: uint64(vectorSize),
	}
}

// Point represents a document to upsert into Qdrant.
type Point struct {
	// Vector is the document embedding.
	Vector []float32

	// Payload carries the document identity; the point ID is derived from
	// Payload.DocID.
	Payload PointPayload
}

// PointPayload contains the stored document fields.
type PointPayload struct {
	DocID string `json:"doc_id"`
	Text  string `json:"text"`
	Label string `json:"label"`
}

// SearchRequest defines parameters for a dense search.
type SearchRequest struct {
	// Vector is the query embedding.
	Vector []float32

	// Limit is the maximum number of results to return.
	Limit uint64

	// WithPayload includes payload in results.
	WithPayload bool

	// ScoreThreshold filters results below this score.
	ScoreThreshold *float32
}

// SearchResult represents a single search result.
type SearchResult struct {
	// ID is the point identifier.
	ID string

	// Score is the cosine similarity reported by Qdrant.
	Score float32

	// Payload contains the point metadata.
	Payload PointPayload
}

// CollectionInfo contains information about a collection.
type CollectionInfo struct {
	// Name is the collection name (without prefix).
	Name string

	// PointsCount is the total number of points.
	PointsCount uint64

	// Status is the collection health status.
	Status string

	// SegmentsCount is the number of segments.
	SegmentsCount uint64
}
