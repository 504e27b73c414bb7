// Package domain defines core types and validation for the tiledocs
// pipeline. It acts as the validation gate at pipeline entry points.
package domain

import "time"

// SourceTag labels every chunk produced from the Tiled documentation corpus.
// Retrieval filters on it so unrelated collections never leak into answers.
const SourceTag = "tiled_docs"

// Page is a fetched documentation page ready for ingestion.
type Page struct {
	URL       string    `json:"url"`
	Content   string    `json:"content"`
	FetchedAt time.Time `json:"fetched_at"`
}

// ChunkMeta is the metadata stored alongside each chunk.
type ChunkMeta struct {
	Source    string    `json:"source"`
	ChunkSize int       `json:"chunk_size"`
	CrawledAt time.Time `json:"crawled_at"`
	URLPath   string    `json:"url_path"`
}
