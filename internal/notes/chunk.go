package notes

import (
	"regexp"
	"unicode/utf8"
)

// Default chunk bounds, in characters.
const (
	DefaultChunkMin = 2000
	DefaultChunkMax = 3000
)

// paragraphHeader matches "**Name [MM:SS.mmm]:**" or "**Name [HH:MM:SS.mmm]:**"
// at the start of a line, for diarized ids and relabeled names alike.
var paragraphHeader = regexp.MustCompile(`(?m)^\*\*[^*\n]+?\s*\[(?:\d{1,2}:)?\d{2}:\d{2}\.\d{3}\]:\*\*`)

// Chunk splits notes into pieces that begin at paragraph headers. Segments
// are accumulated while the chunk stays under maxChars; a full chunk is only
// emitted once it exceeds minChars, otherwise the next segment is merged in
// regardless of size. Text before the first header joins the first chunk.
// Without any header the text is cut into maxChars slices.
func Chunk(text string, minChars, maxChars int) []string {
	if text == "" {
		return nil
	}
	locs := paragraphHeader.FindAllStringIndex(text, -1)
	if len(locs) == 0 {
		return sliceRunes(text, maxChars)
	}

	segments := make([]string, len(locs))
	for i, loc := range locs {
		end := len(text)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		segments[i] = text[loc[0]:end]
	}
	if locs[0][0] > 0 {
		segments[0] = text[:locs[0][0]] + segments[0]
	}

	var (
		chunks  []string
		current string
		size    int
	)
	for _, seg := range segments {
		n := utf8.RuneCountInString(seg)
		switch {
		case size+n < maxChars:
			current += seg
			size += n
		case size > minChars:
			chunks = append(chunks, current)
			current, size = seg, n
		default:
			current += seg
			size += n
		}
	}
	if current != "" {
		chunks = append(chunks, current)
	}
	return chunks
}

func sliceRunes(text string, size int) []string {
	if size <= 0 {
		return []string{text}
	}
	runes := []rune(text)
	out := make([]string, 0, len(runes)/size+1)
	for i := 0; i < len(runes); i += size {
		end := min(i+size, len(runes))
		out = append(out, string(runes[i:end]))
	}
	return out
}

// Truncate keeps the first limit characters of text; limit <= 0 keeps all.
func Truncate(text string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(text) <= limit {
		return text
	}
	return string([]rune(text)[:limit])
}
