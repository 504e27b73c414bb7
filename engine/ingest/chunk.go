package ingest

import "strings"

// DefaultChunkSize is the target chunk size in bytes.
const DefaultChunkSize = 5000

// boundaryFraction is how far into the window a break point must sit before
// it is preferred over a hard cut. Breaking earlier would produce tiny
// chunks whenever a boundary happens to sit near the window start.
const boundaryFraction = 0.3

// ChunkText splits text into chunks of at most maxSize bytes, preferring to
// break at structural boundaries. Within each window the last fenced
// code-block marker wins, then the last blank-line paragraph break, then the
// last sentence end (". ", cutting after the period); a boundary only
// qualifies past 30% of the window. With no qualifying boundary the window
// is hard-cut at maxSize. Chunks are whitespace-trimmed and empty chunks
// dropped. The function is pure: equal inputs yield equal output.
func ChunkText(text string, maxSize int) []string {
	if maxSize <= 0 {
		maxSize = DefaultChunkSize
	}

	var chunks []string
	start := 0
	n := len(text)

	for start < n {
		end := start + maxSize

		// Remaining text fits in one chunk.
		if end >= n {
			if c := strings.TrimSpace(text[start:]); c != "" {
				chunks = append(chunks, c)
			}
			break
		}

		window := text[start:end]
		min := boundaryFraction * float64(maxSize)

		if i := strings.LastIndex(window, "```"); i != -1 && float64(i) > min {
			end = start + i
		} else if i := strings.LastIndex(window, "\n\n"); i != -1 && float64(i) > min {
			end = start + i
		} else if i := strings.LastIndex(window, ". "); i != -1 && float64(i) > min {
			end = start + i + 1
		}

		if c := strings.TrimSpace(text[start:end]); c != "" {
			chunks = append(chunks, c)
		}

		// Advance at least one byte so the scan always terminates.
		if end <= start {
			start++
		} else {
			start = end
		}
	}
	return chunks
}
