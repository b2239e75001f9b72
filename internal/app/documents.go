package app

import "strings"

const maxChunkRunes = 1500

// chunkText groups blank-line separated paragraphs into chunks of at most
// limit runes. A paragraph longer than limit is cut at word boundaries.
func chunkText(content string, limit int) []string {
	var chunks []string
	var current []string
	size := 0
	flush := func() {
		if len(current) > 0 {
			chunks = append(chunks, strings.Join(current, "\n\n"))
			current = nil
			size = 0
		}
	}

	for _, paragraph := range strings.Split(strings.ReplaceAll(content, "\r\n", "\n"), "\n\n") {
		paragraph = strings.TrimSpace(paragraph)
		if paragraph == "" {
			continue
		}
		for _, piece := range splitLong(paragraph, limit) {
			n := len([]rune(piece))
			if size > 0 && size+n+2 > limit {
				flush()
			}
			current = append(current, piece)
			size += n
			if len(current) > 1 {
				size += 2
			}
		}
	}
	flush()
	return chunks
}

func splitLong(paragraph string, limit int) []string {
	if len([]rune(paragraph)) <= limit {
		return []string{paragraph}
	}
	var out []string
	var b strings.Builder
	size := 0
	for _, word := range strings.Fields(paragraph) {
		n := len([]rune(word))
		if size > 0 && size+1+n > limit {
			out = append(out, b.String())
			b.Reset()
			size = 0
		}
		if size > 0 {
			b.WriteByte(' ')
			size++
		}
		b.WriteString(word)
		size += n
	}
	if b.Len() > 0 {
		out = append(out, b.String())
	}
	return out
}
