package rag

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/mapwright/tiledocs/engine/semantic"
)

// DefaultSystemPrompt is the persona and answering policy for the
// documentation expert. Overridable via Options.SystemPrompt.
const DefaultSystemPrompt = `You are an expert in Tiled Map Editor, a general purpose map editor.
You help users understand how to use Tiled to create and edit maps for their games and applications.
Always be specific and provide step-by-step instructions when explaining how to do something.
If you're not sure about something, say so rather than making assumptions.`

const chunkSeparator = "\n\n---\n\n"

// sourcePreviewBytes bounds the content excerpt in a formatted source line.
const sourcePreviewBytes = 200

// formatContext renders retrieved chunks into the context block placed in
// the user turn.
func formatContext(chunks []semantic.ScoredChunk) string {
	parts := make([]string, 0, len(chunks))
	for _, c := range chunks {
		parts = append(parts, fmt.Sprintf("# %s\n\n%s\n\nSource: %s\nSimilarity: %.2f",
			c.Title, c.Content, c.URL, c.Score))
	}
	return strings.Join(parts, chunkSeparator)
}

// buildUserPrompt assembles the user turn: retrieved context followed by
// the original question after a "Question:" marker.
func buildUserPrompt(context, question string) string {
	if context == "" {
		return fmt.Sprintf("Question: %s", question)
	}
	return fmt.Sprintf("Context from Tiled documentation:\n\n%s\n\nQuestion: %s", context, question)
}

// FormatSources renders the citation list returned alongside an answer:
// one formatted entry per source, newline-joined.
func FormatSources(sources []Source) string {
	lines := make([]string, 0, len(sources))
	for _, s := range sources {
		lines = append(lines, fmt.Sprintf("%s: %s (%s, similarity %.2f)",
			s.Title, truncate(s.Content, sourcePreviewBytes), s.URL, s.Similarity))
	}
	return strings.Join(lines, "\n")
}

// truncate cuts s to at most max bytes without splitting a UTF-8 sequence,
// appending an ellipsis when anything was dropped.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
