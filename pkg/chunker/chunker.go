// Package chunker splits text into overlapping chunks for embedding.
package chunker

import (
	"strings"
	"unicode/utf8"
)

type Options struct {
	ChunkSize    int    // target chunk size in characters
	ChunkOverlap int    // overlap between chunks
	Strategy     string // "fixed", "recursive", "sentence"
}

type TextChunk struct {
	Content string
	Index   int
}

func DefaultOptions() Options {
	return Options{
		ChunkSize:    1000,
		ChunkOverlap: 200,
		Strategy:     "recursive",
	}
}

// Split chunks text according to opts. Empty and whitespace-only chunks
// are never returned.
func Split(text string, opts Options) []TextChunk {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = 1000
	}
	if opts.ChunkOverlap < 0 {
		opts.ChunkOverlap = 0
	}

	switch opts.Strategy {
	case "sentence":
		return splitBySentence(text, opts)
	case "fixed":
		return splitFixed(text, opts)
	default:
		return splitRecursiveChunks(text, opts)
	}
}

func splitFixed(text string, opts Options) []TextChunk {
	var chunks []TextChunk
	runes := []rune(text)
	idx := 0

	for start := 0; start < len(runes); {
		end := start + opts.ChunkSize
		if end > len(runes) {
			end = len(runes)
		}

		content := string(runes[start:end])
		if strings.TrimSpace(content) != "" {
			chunks = append(chunks, TextChunk{Content: content, Index: idx})
			idx++
		}

		step := opts.ChunkSize - opts.ChunkOverlap
		if step <= 0 {
			step = opts.ChunkSize
		}
		start += step
	}

	return chunks
}

// recursiveSeparators orders split points from strongest to weakest.
// Markdown headings come first so documentation sections stay intact.
var recursiveSeparators = []string{"\n## ", "\n# ", "\n\n", "\n", ". ", " "}

func splitRecursiveChunks(text string, opts Options) []TextChunk {
	var chunks []TextChunk
	idx := 0

	for _, part := range splitRecursive(text, recursiveSeparators, opts.ChunkSize) {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		chunks = append(chunks, TextChunk{Content: part, Index: idx})
		idx++
	}

	return chunks
}

func splitRecursive(text string, separators []string, chunkSize int) []string {
	if utf8.RuneCountInString(text) <= chunkSize {
		return []string{text}
	}

	if len(separators) == 0 {
		// Fall back to fixed splitting
		var result []string
		runes := []rune(text)
		for i := 0; i < len(runes); i += chunkSize {
			end := i + chunkSize
			if end > len(runes) {
				end = len(runes)
			}
			result = append(result, string(runes[i:end]))
		}
		return result
	}

	sep := separators[0]
	parts := strings.Split(text, sep)
	var result []string
	var current strings.Builder

	for _, part := range parts {
		if current.Len() > 0 && utf8.RuneCountInString(current.String()+sep+part) > chunkSize {
			result = append(result, splitRecursive(current.String(), separators[1:], chunkSize)...)
			current.Reset()
		}
		if current.Len() > 0 {
			current.WriteString(sep)
		}
		current.WriteString(part)
	}

	if current.Len() > 0 {
		result = append(result, splitRecursive(current.String(), separators[1:], chunkSize)...)
	}

	return result
}

func splitBySentence(text string, opts Options) []TextChunk {
	sentences := splitSentences(text)

	var chunks []TextChunk
	var current strings.Builder
	idx := 0

	for _, s := range sentences {
		if current.Len() > 0 && utf8.RuneCountInString(current.String()+s) > opts.ChunkSize {
			chunks = append(chunks, TextChunk{
				Content: strings.TrimSpace(current.String()),
				Index:   idx,
			})
			idx++
			current.Reset()
		}
		current.WriteString(s)
	}

	if current.Len() > 0 && strings.TrimSpace(current.String()) != "" {
		chunks = append(chunks, TextChunk{
			Content: strings.TrimSpace(current.String()),
			Index:   idx,
		})
	}

	return chunks
}

func splitSentences(text string) []string {
	var sentences []string
	var current strings.Builder

	for i, r := range text {
		current.WriteRune(r)
		if (r == '.' || r == '!' || r == '?') && i+1 < len(text) && text[i+1] == ' ' {
			sentences = append(sentences, current.String())
			current.Reset()
		}
	}

	if current.Len() > 0 {
		sentences = append(sentences, current.String())
	}

	return sentences
}
