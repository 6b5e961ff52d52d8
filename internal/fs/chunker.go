package fs

import (
	"strings"
	"unicode"
)

// ChunkOptions configures TextChunker. Sizes count runes.
type ChunkOptions struct {
	ChunkSize    int
	ChunkOverlap int

	// BoundaryWindow is how far either side of the naive cut to search for
	// a sentence terminator.
	BoundaryWindow int

	// BoundarySlack is the fraction of ChunkSize a chunk may run past the
	// naive cut to finish its sentence.
	BoundarySlack float64
}

// DefaultChunkOptions returns the chunking used when nothing is configured.
func DefaultChunkOptions() ChunkOptions {
	return ChunkOptions{
		ChunkSize:      1000,
		ChunkOverlap:   200,
		BoundaryWindow: 100,
		BoundarySlack:  0.2,
	}
}

// TextChunker splits text into overlapping windows that prefer to end on
// sentence boundaries.
type TextChunker struct {
	opts ChunkOptions
}

// NewTextChunker creates a new text chunker.
func NewTextChunker(opts ChunkOptions) *TextChunker {
	// Apply defaults for zero values
	defaults := DefaultChunkOptions()
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = defaults.ChunkSize
	}
	if opts.ChunkOverlap < 0 {
		opts.ChunkOverlap = defaults.ChunkOverlap
	}
	if opts.BoundaryWindow <= 0 {
		opts.BoundaryWindow = defaults.BoundaryWindow
	}
	if opts.BoundarySlack <= 0 {
		opts.BoundarySlack = defaults.BoundarySlack
	}

	return &TextChunker{opts: opts}
}

// Options returns the effective chunking options.
func (c *TextChunker) Options() ChunkOptions {
	return c.opts
}

// Split splits text into chunks. Blank text yields no chunks.
func (c *TextChunker) Split(text string) []Chunk {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil
	}

	runes := []rune(text)
	total := len(runes)

	if total <= c.opts.ChunkSize {
		return []Chunk{{
			Content:     trimmed,
			StartChar:   0,
			EndChar:     total,
			ChunkIndex:  0,
			TotalChunks: 1,
		}}
	}

	var chunks []Chunk
	cursor := 0
	for cursor < total {
		end := cursor + c.opts.ChunkSize
		if end > total {
			end = total
		}

		// Try to end on a sentence boundary
		if end < total {
			if boundary := c.findSentenceEnd(runes, cursor, end); boundary > 0 {
				end = boundary
			}
		}

		content := strings.TrimSpace(string(runes[cursor:end]))
		if content != "" {
			chunks = append(chunks, Chunk{
				Content:    content,
				StartChar:  cursor,
				EndChar:    end,
				ChunkIndex: len(chunks),
			})
		}

		if end >= total {
			break
		}

		// Step back by the overlap, but always move forward
		next := end - c.opts.ChunkOverlap
		if next < cursor+1 {
			next = cursor + 1
		}
		cursor = next
	}

	for i := range chunks {
		chunks[i].TotalChunks = len(chunks)
	}

	return chunks
}

// findSentenceEnd looks around the naive boundary for the sentence
// terminator closest to it. It returns the exclusive end offset just past
// the terminator, or 0 when nothing usable is in range.
func (c *TextChunker) findSentenceEnd(runes []rune, cursor, naive int) int {
	from := naive - c.opts.BoundaryWindow
	if from < cursor {
		from = cursor
	}
	to := naive + c.opts.BoundaryWindow
	if to > len(runes)-1 {
		to = len(runes) - 1
	}

	maxEnd := cursor + int(float64(c.opts.ChunkSize)*(1+c.opts.BoundarySlack))

	best := 0
	bestDist := -1
	for i := from; i < to; i++ {
		if !isTerminator(runes[i]) || !unicode.IsSpace(runes[i+1]) {
			continue
		}
		end := i + 1
		if end <= cursor || end > maxEnd {
			continue
		}
		dist := end - naive
		if dist < 0 {
			dist = -dist
		}
		if bestDist < 0 || dist < bestDist {
			best = end
			bestDist = dist
		}
	}

	return best
}

// isTerminator reports whether r ends a sentence.
func isTerminator(r rune) bool {
	switch r {
	case '.', '!', '?', '。', '！', '？':
		return true
	}
	return false
}
