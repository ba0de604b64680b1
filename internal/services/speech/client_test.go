package speech

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestSynthesizeReturnsAudio(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/audio/speech" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		var payload synthesizeRequest
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if payload.Voice != "midnight" {
			t.Fatalf("voice = %q", payload.Voice)
		}
		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = w.Write([]byte("mp3-bytes"))
	}))
	defer server.Close()

	client := NewClient(Config{APIKey: "test", BaseURL: server.URL, Voice: "midnight"})
	audio, err := client.Synthesize(context.Background(), "The house was quiet again.", "")
	if err != nil {
		t.Fatalf("Synthesize returned error: %v", err)
	}
	if string(audio) != "mp3-bytes" {
		t.Fatalf("audio = %q", audio)
	}
}

func TestSynthesizeEscapesMarkup(t *testing.T) {
	var received string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload synthesizeRequest
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		received = payload.Text
		_, _ = w.Write([]byte("audio"))
	}))
	defer server.Close()

	client := NewClient(Config{APIKey: "test", BaseURL: server.URL, Voice: "v"})
	if _, err := client.Synthesize(context.Background(), "cold & dark <basement>", ""); err != nil {
		t.Fatalf("Synthesize returned error: %v", err)
	}
	if received != "cold &amp; dark &lt;basement&gt;" {
		t.Fatalf("escaped text = %q", received)
	}
}

func TestSynthesizeRejectsOversizedChunk(t *testing.T) {
	client := NewClient(Config{APIKey: "test", BaseURL: "http://localhost", Voice: "v"})
	long := strings.Repeat("a", client.MaxChunkChars()+1)
	if _, err := client.Synthesize(context.Background(), long, ""); err == nil {
		t.Fatal("expected error for oversized text")
	}
}

func TestSynthesizeRequiresTextAndKey(t *testing.T) {
	client := NewClient(Config{APIKey: "test", BaseURL: "http://localhost", Voice: "v"})
	if _, err := client.Synthesize(context.Background(), "   ", ""); err == nil {
		t.Fatal("expected error for empty text")
	}
	noKey := NewClient(Config{BaseURL: "http://localhost", Voice: "v"})
	if _, err := noKey.Synthesize(context.Background(), "hello", ""); err == nil {
		t.Fatal("expected error for missing api key")
	}
}
