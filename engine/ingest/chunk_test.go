package ingest

import (
	"strings"
	"testing"
)

func TestChunkText_ShortInput(t *testing.T) {
	chunks := ChunkText("short text", 5000)
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	if chunks[0] != "short text" {
		t.Errorf("unexpected chunk: %q", chunks[0])
	}
}

func TestChunkText_Empty(t *testing.T) {
	if got := ChunkText("", 5000); len(got) != 0 {
		t.Errorf("expected no chunks for empty input, got %d", len(got))
	}
	if got := ChunkText("   \n\n  ", 5000); len(got) != 0 {
		t.Errorf("expected no chunks for whitespace input, got %d", len(got))
	}
}

func TestChunkText_MaxSizeBound(t *testing.T) {
	text := strings.Repeat("abcdefghij", 300) // 3000 chars, no boundaries
	chunks := ChunkText(text, 500)
	if len(chunks) < 6 {
		t.Fatalf("expected at least 6 chunks, got %d", len(chunks))
	}
	for i, c := range chunks {
		if len(c) > 500 {
			t.Errorf("chunk %d exceeds max size: %d", i, len(c))
		}
	}
}

func TestChunkText_PrefersParagraphBreak(t *testing.T) {
	para1 := strings.Repeat("a", 300)
	para2 := strings.Repeat("b", 300)
	chunks := ChunkText(para1+"\n\n"+para2, 400)
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(chunks))
	}
	if chunks[0] != para1 {
		t.Errorf("first chunk should end at the paragraph break, got %d chars", len(chunks[0]))
	}
	if chunks[1] != para2 {
		t.Errorf("second chunk should be the second paragraph, got %d chars", len(chunks[1]))
	}
}

func TestChunkText_PrefersCodeFence(t *testing.T) {
	// A code fence past the 30% mark wins over a later paragraph break.
	head := strings.Repeat("x", 200) + "\n```\ncode\n```\n" + strings.Repeat("y", 100) + "\n\n" + strings.Repeat("z", 300)
	chunks := ChunkText(head, 400)
	if len(chunks) < 2 {
		t.Fatalf("expected at least 2 chunks, got %d", len(chunks))
	}
	if !strings.Contains(chunks[0], "```") {
		t.Errorf("first chunk should contain the code fence: %q", chunks[0])
	}
	if strings.Count(chunks[0], "z") > 0 {
		t.Errorf("first chunk should not reach into the last paragraph")
	}
}

func TestChunkText_SentenceBoundary(t *testing.T) {
	text := strings.Repeat("w", 200) + ". " + strings.Repeat("v", 300)
	chunks := ChunkText(text, 400)
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(chunks))
	}
	if !strings.HasSuffix(chunks[0], ".") {
		t.Errorf("first chunk should end at the sentence boundary: %q", chunks[0][len(chunks[0])-10:])
	}
}

func TestChunkText_EarlyBoundaryIgnored(t *testing.T) {
	// A paragraph break before the 30% mark must not produce a tiny chunk.
	text := strings.Repeat("a", 50) + "\n\n" + strings.Repeat("b", 1000)
	chunks := ChunkText(text, 500)
	for i, c := range chunks {
		if len(c) > 500 {
			t.Errorf("chunk %d exceeds max size: %d", i, len(c))
		}
	}
	if len(chunks[0]) <= 60 {
		t.Errorf("boundary before the 30%% mark should be skipped, got %d-char chunk", len(chunks[0]))
	}
}

func TestChunkText_ReconstructsContent(t *testing.T) {
	// Nothing but whitespace may be lost across chunking.
	text := strings.Repeat("The quick brown fox jumps over the lazy dog. ", 200)
	chunks := ChunkText(text, 300)

	joined := strings.Join(chunks, " ")
	squash := func(s string) string {
		return strings.Join(strings.Fields(s), " ")
	}
	if squash(joined) != squash(text) {
		t.Error("chunks do not reconstruct the original content")
	}
}

func TestChunkText_Terminates(t *testing.T) {
	// Pathological input: boundary strings only, tiny max size.
	text := strings.Repeat(". ", 500)
	chunks := ChunkText(text, 3)
	for _, c := range chunks {
		if len(c) > 3 {
			t.Fatalf("chunk exceeds max size: %q", c)
		}
	}
}

func TestChunkText_TrimsWhitespace(t *testing.T) {
	chunks := ChunkText("  padded  \n\n  more text  ", 5000)
	for i, c := range chunks {
		if c != strings.TrimSpace(c) {
			t.Errorf("chunk %d not trimmed: %q", i, c)
		}
	}
}

func TestChunkText_DefaultSizeOnZero(t *testing.T) {
	text := strings.Repeat("q", 12000)
	chunks := ChunkText(text, 0)
	if len(chunks) < 2 {
		t.Fatalf("expected the default max size to apply, got %d chunks", len(chunks))
	}
	for i, c := range chunks {
		if len(c) > DefaultChunkSize {
			t.Errorf("chunk %d exceeds default max size: %d", i, len(c))
		}
	}
}
