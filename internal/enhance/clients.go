package enhance

import (
	"context"

	"spectral/internal/services/imagegen"
)

// TextGenerator produces the enhanced narrative.
type TextGenerator interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// ImageGenerator produces one illustration per call.
type ImageGenerator interface {
	Generate(ctx context.Context, request imagegen.ImageRequest) ([]byte, error)
}

// SpeechSynthesizer converts narrative chunks to audio.
type SpeechSynthesizer interface {
	Synthesize(ctx context.Context, text, voice string) ([]byte, error)
	MaxChunkChars() int
}
