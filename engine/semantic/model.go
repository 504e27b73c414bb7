package semantic

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/mapwright/tiledocs/engine/domain"
)

// ChunkRecord is one stored documentation chunk with its embedding.
type ChunkRecord struct {
	URL        string
	ChunkIndex int
	Title      string
	Summary    string
	Content    string
	Meta       domain.ChunkMeta
	Embedding  []float32
}

// ScoredChunk is a single similarity-search hit.
type ScoredChunk struct {
	URL        string  `json:"url"`
	ChunkIndex int     `json:"chunk_index"`
	Title      string  `json:"title"`
	Summary    string  `json:"summary"`
	Content    string  `json:"content"`
	Score      float32 `json:"similarity"`
}

// PointID derives the deterministic point UUID for a chunk. Re-inserting the
// same (url, chunk_index) overwrites the previous row, which makes re-crawls
// idempotent.
func PointID(url string, chunkIndex int) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(fmt.Sprintf("%s-%d", url, chunkIndex))).String()
}
