package ingest

import (
	"github.com/mapwright/tiledocs/engine/domain"
	"github.com/mapwright/tiledocs/engine/semantic"
)

// ChunkedPage is a validated page split into bounded-size chunks.
type ChunkedPage struct {
	domain.Page
	Chunks []string
}

// ProcessedPage carries the fully annotated and embedded chunk records,
// ready for storage. Record order matches chunk order; indexes are
// contiguous from zero.
type ProcessedPage struct {
	domain.Page
	Records []semantic.ChunkRecord
}
