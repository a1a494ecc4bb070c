package utils

const (
	// DefaultChunkSize is the target chunk length in characters.
	DefaultChunkSize = 500

	sentenceLookback = 100
	wordLookback     = 50
)

// ChunkText splits sanitized text into ordered, non-overlapping chunks of at
// most size characters. A cut prefers the last sentence terminator within
// the final 100 characters of the window, then the last space within the
// final 50, and otherwise falls at exactly size characters.
//
// Lengths are measured in runes so multi-byte text is never split inside a
// character.
func ChunkText(text string, size int) []string {
	if size <= 0 {
		size = DefaultChunkSize
	}

	text = Sanitize(text)
	if text == "" {
		return nil
	}

	runes := []rune(text)
	if len(runes) <= size {
		return []string{text}
	}

	var chunks []string
	start := 0
	for start < len(runes) {
		end := start + size
		if end >= len(runes) {
			end = len(runes)
		} else {
			end = cutPoint(runes, start, end)
		}

		if chunk := Sanitize(string(runes[start:end])); chunk != "" {
			chunks = append(chunks, chunk)
		}
		start = end
	}
	return chunks
}

// cutPoint searches backward from end for a sentence break, then a word
// break, returning end unchanged when neither exists.
func cutPoint(runes []rune, start, end int) int {
	floor := max(start, end-sentenceLookback)
	for i := end; i > floor; i-- {
		switch runes[i-1] {
		case '.', '!', '?':
			return i
		}
	}

	floor = max(start, end-wordLookback)
	for i := end; i > floor; i-- {
		if runes[i-1] == ' ' {
			return i
		}
	}
	return end
}
