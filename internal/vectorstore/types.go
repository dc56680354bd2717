package vectorstore

import "time"

// ChunkMetadata is the full descriptor carried alongside every vector.
// ChunkText is authoritative for prompt grounding; TextPreview exists only
// for UI/log display.
type ChunkMetadata struct {
	FileName       string    `json:"fileName"`
	SourcePath     string    `json:"sourcePath"`
	ChunkIndex     int       `json:"chunkIndex"`
	ChunkText      string    `json:"chunkText"`
	TextPreview    string    `json:"textPreview"`
	HeaderContext  string    `json:"headerContext"`
	IngestedAt     time.Time `json:"ingestedAt"`
	EmbeddingModel string    `json:"embeddingModel"`
}

// Record is one row of the vector table: a stable id, its embedding, and
// the metadata needed to ground a prompt and cite a source.
type Record struct {
	ID       string
	Vector   []float32
	Metadata ChunkMetadata
}

// metadataEntry is the on-disk shape of one element in {collection}.metadata.json.
type metadataEntry struct {
	ID       string        `json:"id"`
	Metadata ChunkMetadata `json:"metadata"`
}

// SearchResult is one row returned by FindNearest.
type SearchResult struct {
	ID       string
	Score    float32
	Metadata ChunkMetadata
}

// Health is a coarse status reported via /api/index/metrics.
type Health string

const (
	HealthOK      Health = "OK"
	HealthEmpty   Health = "EMPTY"
	HealthCorrupt Health = "CORRUPT"
)

// Stats summarizes a collection without requiring the caller to walk items.
type Stats struct {
	VectorCount    int
	Dimension      int
	EmbeddingModel string
	TotalSizeBytes int64
	Health         Health
}
