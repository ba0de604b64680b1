package enhance

import (
	"strings"
	"testing"
)

func TestSplitSentenceChunksKeepsSentencesWhole(t *testing.T) {
	text := "The door opened. Nobody was there. The cold came in anyway."
	chunks := splitSentenceChunks(text, 40)
	if len(chunks) != 2 {
		t.Fatalf("chunks = %d, want 2: %#v", len(chunks), chunks)
	}
	if chunks[0] != "The door opened. Nobody was there." {
		t.Fatalf("first chunk = %q", chunks[0])
	}
	if chunks[1] != "The cold came in anyway." {
		t.Fatalf("second chunk = %q", chunks[1])
	}
	for _, chunk := range chunks {
		if len([]rune(chunk)) > 40 {
			t.Fatalf("chunk exceeds limit: %q", chunk)
		}
	}
}

func TestSplitSentenceChunksSingleChunk(t *testing.T) {
	text := "One short line."
	chunks := splitSentenceChunks(text, 2800)
	if len(chunks) != 1 || chunks[0] != text {
		t.Fatalf("chunks = %#v", chunks)
	}
}

func TestSplitSentenceChunksOversizedSentence(t *testing.T) {
	text := strings.Repeat("word ", 30)
	chunks := splitSentenceChunks(text, 50)
	if len(chunks) < 2 {
		t.Fatalf("expected word-boundary fallback, got %#v", chunks)
	}
	for _, chunk := range chunks {
		if len([]rune(chunk)) > 50 {
			t.Fatalf("chunk exceeds limit: %q", chunk)
		}
		if strings.HasPrefix(chunk, " ") || strings.HasSuffix(chunk, " ") {
			t.Fatalf("chunk has stray whitespace: %q", chunk)
		}
	}
}

func TestSplitSentenceChunksEmpty(t *testing.T) {
	if chunks := splitSentenceChunks("   ", 100); chunks != nil {
		t.Fatalf("expected nil for blank input, got %#v", chunks)
	}
}

func TestSplitSentencesPunctuation(t *testing.T) {
	sentences := splitSentences(`"Who is there?" she asked. Nothing answered!`)
	if len(sentences) != 3 {
		t.Fatalf("sentences = %#v", sentences)
	}
	if sentences[0] != `"Who is there?"` {
		t.Fatalf("first sentence = %q", sentences[0])
	}
	if sentences[2] != "Nothing answered!" {
		t.Fatalf("last sentence = %q", sentences[2])
	}
}
