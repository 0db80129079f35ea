package retrieval

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200
)

var separators = []string{"\n\n", "\n", " "}

// Split cuts text into chunks of at most size runes. Each chunk after the first
// starts overlap runes before the previous one ended. Cuts prefer paragraph,
// then line, then word boundaries in the back half of a window.
func Split(text string, size, overlap int) []string {
	r := []rune(strings.TrimSpace(text))
	if len(r) == 0 {
		return nil
	}
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap < 0 || overlap >= size {
		overlap = 0
	}

	var chunks []string
	start := 0
	for {
		end := min(start+size, len(r))
		if end < len(r) {
			end = cutPoint(r, start, end, overlap)
		}

		if chunk := strings.TrimSpace(string(r[start:end])); chunk != "" {
			chunks = append(chunks, chunk)
		}
		if end >= len(r) {
			return chunks
		}

		next := end - overlap
		if next <= start {
			next = end
		}
		start = next
	}
}

func cutPoint(r []rune, start, end, overlap int) int {
	floor := max(start+overlap+1, start+(end-start)/2)
	if floor >= end {
		return end
	}

	window := string(r[floor:end])
	for _, sep := range separators {
		if i := strings.LastIndex(window, sep); i >= 0 {
			return floor + utf8.RuneCountInString(window[:i+len(sep)])
		}
	}
	return end
}

// ChunkDocument splits one source file into indexable chunks with stable ids,
// so re-ingesting the same file overwrites instead of duplicating.
func ChunkDocument(source, text string, size, overlap int) []Chunk {
	parts := Split(text, size, overlap)
	chunks := make([]Chunk, 0, len(parts))
	for i, p := range parts {
		chunks = append(chunks, Chunk{
			ID:      chunkID(source, i),
			Content: p,
			Source:  source,
			Index:   i,
		})
	}
	return chunks
}

func chunkID(source string, index int) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s#%d", source, index)))
	return hex.EncodeToString(sum[:])[:24]
}
