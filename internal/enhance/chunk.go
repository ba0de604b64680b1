package enhance

import "strings"

// splitSentenceChunks splits text into chunks of at most maxChars characters,
// breaking only on sentence boundaries. A single sentence longer than
// maxChars is split on word boundaries as a last resort so the synthesis
// call never receives an oversized chunk.
func splitSentenceChunks(text string, maxChars int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if maxChars <= 0 {
		return []string{text}
	}

	var chunks []string
	var current strings.Builder
	for _, sentence := range splitSentences(text) {
		pieces := []string{sentence}
		if len([]rune(sentence)) > maxChars {
			pieces = splitWords(sentence, maxChars)
		}
		for _, piece := range pieces {
			if current.Len() == 0 {
				current.WriteString(piece)
				continue
			}
			if len([]rune(current.String()))+1+len([]rune(piece)) <= maxChars {
				current.WriteString(" ")
				current.WriteString(piece)
				continue
			}
			chunks = append(chunks, current.String())
			current.Reset()
			current.WriteString(piece)
		}
	}
	if current.Len() > 0 {
		chunks = append(chunks, current.String())
	}
	return chunks
}

// splitSentences breaks text after terminal punctuation followed by
// whitespace. Punctuation stays attached to its sentence.
func splitSentences(text string) []string {
	var sentences []string
	runes := []rune(text)
	start := 0
	for i := 0; i < len(runes); i++ {
		switch runes[i] {
		case '.', '!', '?':
			end := i + 1
			// Consume closing quotes and repeated punctuation.
			for end < len(runes) && (runes[end] == '.' || runes[end] == '!' || runes[end] == '?' || runes[end] == '"' || runes[end] == '\'') {
				end++
			}
			if end >= len(runes) || isSpace(runes[end]) {
				sentence := strings.TrimSpace(string(runes[start:end]))
				if sentence != "" {
					sentences = append(sentences, sentence)
				}
				start = end
				i = end - 1
			}
		}
	}
	if tail := strings.TrimSpace(string(runes[start:])); tail != "" {
		sentences = append(sentences, tail)
	}
	return sentences
}

func splitWords(sentence string, maxChars int) []string {
	words := strings.Fields(sentence)
	var pieces []string
	var current strings.Builder
	for _, word := range words {
		if current.Len() == 0 {
			current.WriteString(word)
			continue
		}
		if len([]rune(current.String()))+1+len([]rune(word)) <= maxChars {
			current.WriteString(" ")
			current.WriteString(word)
			continue
		}
		pieces = append(pieces, current.String())
		current.Reset()
		current.WriteString(word)
	}
	if current.Len() > 0 {
		pieces = append(pieces, current.String())
	}
	return pieces
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n' || r == '\r'
}
