package enhance

import (
	"context"
	"fmt"
	"log/slog"

	"spectral/internal/blob"
	"spectral/internal/logging"
	"spectral/internal/services"
	"spectral/internal/services/imagegen"
	"spectral/internal/store"
	"spectral/internal/workqueue"
)

// NarrativeStage rewrites the witness account into an enhanced story.
type NarrativeStage struct {
	text TextGenerator
	log  *slog.Logger
}

// NewNarrativeStage builds the narrative stage.
func NewNarrativeStage(text TextGenerator, logger *slog.Logger) *NarrativeStage {
	return &NarrativeStage{text: text, log: componentLogger(logger, "enhance.narrative")}
}

// Run produces the enhanced narrative, capped at the story length limit.
func (s *NarrativeStage) Run(ctx context.Context, msg workqueue.EnhancementMessage) (string, error) {
	prompt := narrativeUserPrompt(msg.Story, msg.Address, msg.EncounterTime)
	content, err := s.text.Complete(ctx, narrativeSystemPrompt, prompt)
	if err != nil {
		return "", fmt.Errorf("narrative generation: %w", err)
	}
	if content == "" {
		return "", fmt.Errorf("narrative generation: empty narrative")
	}
	narrative := truncateNarrative(content)
	s.log.InfoContext(ctx, "narrative generated",
		logging.String(logging.FieldEncounterID, msg.EncounterID),
		logging.Int("chars", len([]rune(narrative))))
	return narrative, nil
}

// IllustrationStage generates illustrations from the enhanced narrative and
// stores them in the blob store. Seeds are derived from a fixed base plus the
// image index so re-runs stay visually coherent.
type IllustrationStage struct {
	images     ImageGenerator
	blobs      blob.Store
	seedBase   int64
	imageCount int
	log        *slog.Logger
}

// NewIllustrationStage builds the illustration stage.
func NewIllustrationStage(images ImageGenerator, blobs blob.Store, seedBase int64, imageCount int, logger *slog.Logger) *IllustrationStage {
	if imageCount <= 0 {
		imageCount = 1
	}
	return &IllustrationStage{
		images:     images,
		blobs:      blobs,
		seedBase:   seedBase,
		imageCount: imageCount,
		log:        componentLogger(logger, "enhance.illustration"),
	}
}

// Run generates up to imageCount illustrations. Individual failures are
// tolerated as long as at least one image lands; total failure fails the
// stage with the last error.
func (s *IllustrationStage) Run(ctx context.Context, encounterID, narrative, address string) ([]string, error) {
	prompt := visualPrompt(narrative, address)

	var keys []string
	var lastErr error
	for i := 0; i < s.imageCount; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		image, err := s.images.Generate(ctx, imagegen.ImageRequest{
			Prompt: prompt,
			Seed:   s.seedBase + int64(i),
		})
		if err != nil {
			lastErr = err
			s.log.WarnContext(ctx, "illustration generation failed",
				logging.String(logging.FieldEncounterID, encounterID),
				logging.Int("index", i),
				logging.Error(err))
			continue
		}
		key := blob.EncounterKey(encounterID, "illustrations", fmt.Sprintf("%d.png", i))
		if _, err := s.blobs.Put(ctx, key, image, "image/png"); err != nil {
			lastErr = err
			s.log.WarnContext(ctx, "illustration store failed",
				logging.String(logging.FieldEncounterID, encounterID),
				logging.Int("index", i),
				logging.Error(err))
			continue
		}
		keys = append(keys, key)
	}
	if len(keys) == 0 {
		if lastErr == nil {
			lastErr = fmt.Errorf("no images requested")
		}
		return nil, fmt.Errorf("illustration generation: %w", lastErr)
	}
	s.log.InfoContext(ctx, "illustrations stored",
		logging.String(logging.FieldEncounterID, encounterID),
		logging.Int("count", len(keys)))
	return keys, nil
}

// NarrationStage synthesizes the enhanced narrative to audio.
type NarrationStage struct {
	speech SpeechSynthesizer
	blobs  blob.Store
	voice  string
	log    *slog.Logger
}

// NewNarrationStage builds the narration stage.
func NewNarrationStage(speech SpeechSynthesizer, blobs blob.Store, voice string, logger *slog.Logger) *NarrationStage {
	return &NarrationStage{speech: speech, blobs: blobs, voice: voice, log: componentLogger(logger, "enhance.narration")}
}

// Run splits the narrative into sentence-boundary chunks within the service's
// per-call limit, synthesizes each, and stores the concatenated audio under a
// single key.
func (s *NarrationStage) Run(ctx context.Context, encounterID, narrative string) (string, error) {
	chunks := splitSentenceChunks(narrative, s.speech.MaxChunkChars())
	if len(chunks) == 0 {
		return "", fmt.Errorf("narration synthesis: empty narrative")
	}

	var audio []byte
	for i, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		part, err := s.speech.Synthesize(ctx, chunk, s.voice)
		if err != nil {
			return "", fmt.Errorf("narration synthesis (chunk %d of %d): %w", i+1, len(chunks), err)
		}
		audio = append(audio, part...)
	}

	key := blob.EncounterKey(encounterID, "narration", "story.mp3")
	if _, err := s.blobs.Put(ctx, key, audio, "audio/mpeg"); err != nil {
		return "", fmt.Errorf("narration store: %w", err)
	}
	s.log.InfoContext(ctx, "narration stored",
		logging.String(logging.FieldEncounterID, encounterID),
		logging.Int("chunks", len(chunks)),
		logging.Int("bytes", len(audio)))
	return key, nil
}

// PublishStage atomically writes the pipeline outputs and flips the
// encounter to enhanced.
type PublishStage struct {
	store *store.Store
	log   *slog.Logger
}

// NewPublishStage builds the publish stage.
func NewPublishStage(st *store.Store, logger *slog.Logger) *PublishStage {
	return &PublishStage{store: st, log: componentLogger(logger, "enhance.publish")}
}

// Run publishes the enhancement. Failing the conditional update means the
// encounter left the enhancing state underneath us.
func (s *PublishStage) Run(ctx context.Context, encounterID, narrative string, illustrations []string, narrationKey string) error {
	ok, err := s.store.PublishEnhancement(ctx, encounterID, narrative, illustrations, narrationKey)
	if err != nil {
		return fmt.Errorf("publish enhancement: %w", err)
	}
	if !ok {
		return services.Wrap(services.ErrInternal, "enhance", "publish", "encounter is no longer enhancing", nil)
	}
	s.log.InfoContext(ctx, "enhancement published",
		logging.String(logging.FieldEncounterID, encounterID))
	return nil
}

func componentLogger(logger *slog.Logger, component string) *slog.Logger {
	if logger == nil {
		logger = logging.NewNop()
	}
	return logger.With(logging.String(logging.FieldComponent, component))
}
