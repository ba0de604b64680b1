package enhance_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"spectral/internal/blob"
	"spectral/internal/config"
	"spectral/internal/enhance"
	"spectral/internal/encounter"
	"spectral/internal/services/imagegen"
	"spectral/internal/store"
	"spectral/internal/testsupport"
	"spectral/internal/workqueue"
)

type fakeText struct {
	calls    int
	err      error
	response string
}

func (f *fakeText) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return f.response, nil
}

type fakeImages struct {
	calls   int
	failAll bool
	failIdx map[int64]bool
}

func (f *fakeImages) Generate(ctx context.Context, request imagegen.ImageRequest) ([]byte, error) {
	f.calls++
	if f.failAll || f.failIdx[request.Seed] {
		return nil, errors.New("image service unavailable")
	}
	return []byte("png-bytes"), nil
}

type fakeSpeech struct {
	calls int
	err   error
}

func (f *fakeSpeech) Synthesize(ctx context.Context, text, voice string) ([]byte, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return []byte("audio:"), nil
}

func (f *fakeSpeech) MaxChunkChars() int { return 2800 }

type pipelineFixture struct {
	cfg    *config.Config
	store  *store.Store
	queue  *workqueue.Queue
	blobs  *blob.FileStore
	text   *fakeText
	images *fakeImages
	speech *fakeSpeech
	mgr    *enhance.Manager
}

func newPipelineFixture(t *testing.T) *pipelineFixture {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	queue, err := workqueue.New(st.DB(), workqueue.Options{VisibilityTimeout: time.Minute, MaxDeliveries: 3})
	if err != nil {
		t.Fatalf("workqueue.New: %v", err)
	}
	blobs, err := blob.NewFileStore(t.TempDir(), "")
	if err != nil {
		t.Fatalf("blob.NewFileStore: %v", err)
	}

	text := &fakeText{response: "The floorboards remembered every step ever taken on them."}
	images := &fakeImages{failIdx: map[int64]bool{}}
	speech := &fakeSpeech{}

	mgr := enhance.NewManager(
		cfg,
		st,
		queue,
		enhance.NewNarrativeStage(text, nil),
		enhance.NewIllustrationStage(images, blobs, cfg.ImageGen.SeedBase, cfg.ImageGen.ImageCount, nil),
		enhance.NewNarrationStage(speech, blobs, cfg.Speech.Voice, nil),
		enhance.NewPublishStage(st, nil),
		nil,
	)
	return &pipelineFixture{cfg: cfg, store: st, queue: queue, blobs: blobs, text: text, images: images, speech: speech, mgr: mgr}
}

func (f *pipelineFixture) approveAndEnqueue(t *testing.T) *encounter.Encounter {
	t.Helper()
	ctx := context.Background()
	enc := testsupport.NewEncounter(t, f.store, "pipeline", 40.7, -74.0)
	ok, err := f.store.UpdateStatusIf(ctx, enc.ID, encounter.StatusApproved, encounter.StatusPending)
	if err != nil || !ok {
		t.Fatalf("approve: ok=%v err=%v", ok, err)
	}
	_, err = f.queue.Enqueue(ctx, workqueue.EnhancementMessage{
		EncounterID:   enc.ID,
		Story:         enc.Story,
		Latitude:      enc.Latitude,
		Longitude:     enc.Longitude,
		EncounterTime: enc.EncounterTime,
	})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	return enc
}

func (f *pipelineFixture) receive(t *testing.T) *workqueue.Message {
	t.Helper()
	msg, err := f.queue.Receive(context.Background())
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if msg == nil {
		t.Fatal("expected a queued message")
	}
	return msg
}

func TestProcessPublishesEnhancement(t *testing.T) {
	f := newPipelineFixture(t)
	ctx := context.Background()
	enc := f.approveAndEnqueue(t)
	msg := f.receive(t)

	if err := f.mgr.Process(ctx, msg); err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	fetched, err := f.store.GetEncounter(ctx, enc.ID)
	if err != nil {
		t.Fatalf("GetEncounter: %v", err)
	}
	if fetched.Status != encounter.StatusEnhanced {
		t.Fatalf("status = %s, want enhanced", fetched.Status)
	}
	if fetched.EnhancedStory == "" {
		t.Fatal("enhanced story missing")
	}
	if len(fetched.Illustrations) != f.cfg.ImageGen.ImageCount {
		t.Fatalf("illustrations = %d, want %d", len(fetched.Illustrations), f.cfg.ImageGen.ImageCount)
	}
	if fetched.NarrationKey != blob.EncounterKey(enc.ID, "narration", "story.mp3") {
		t.Fatalf("narration key = %q", fetched.NarrationKey)
	}

	for _, key := range fetched.Illustrations {
		exists, err := f.blobs.Exists(ctx, key)
		if err != nil || !exists {
			t.Fatalf("illustration %q not stored: %v %v", key, exists, err)
		}
	}
	exists, err := f.blobs.Exists(ctx, fetched.NarrationKey)
	if err != nil || !exists {
		t.Fatalf("narration not stored: %v %v", exists, err)
	}

	stats, err := f.queue.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Ready != 0 || stats.Leased != 0 || stats.Dead != 0 {
		t.Fatalf("queue not drained: %#v", stats)
	}
}

func TestProcessNarrativeFailureSkipsLaterStages(t *testing.T) {
	f := newPipelineFixture(t)
	ctx := context.Background()
	enc := f.approveAndEnqueue(t)
	msg := f.receive(t)

	f.text.err = errors.New("narrative service failed after 3 attempt(s)")
	if err := f.mgr.Process(ctx, msg); err == nil {
		t.Fatal("expected pipeline failure")
	}

	fetched, err := f.store.GetEncounter(ctx, enc.ID)
	if err != nil {
		t.Fatalf("GetEncounter: %v", err)
	}
	if fetched.Status != encounter.StatusEnhancementFailed {
		t.Fatalf("status = %s, want enhancement_failed", fetched.Status)
	}
	if !strings.Contains(fetched.ErrorMessage, "narrative") {
		t.Fatalf("failure reason = %q", fetched.ErrorMessage)
	}
	if f.images.calls != 0 {
		t.Fatalf("illustration invoked %d times after narrative failure", f.images.calls)
	}
	if f.speech.calls != 0 {
		t.Fatalf("narration invoked %d times after narrative failure", f.speech.calls)
	}

	// The message went back to the queue for redelivery.
	stats, err := f.queue.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Ready != 1 {
		t.Fatalf("expected message released, got %#v", stats)
	}
}

func TestProcessToleratesPartialIllustrationFailure(t *testing.T) {
	f := newPipelineFixture(t)
	ctx := context.Background()
	enc := f.approveAndEnqueue(t)
	msg := f.receive(t)

	// First seed fails, the rest succeed.
	f.images.failIdx[f.cfg.ImageGen.SeedBase] = true
	if err := f.mgr.Process(ctx, msg); err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	fetched, err := f.store.GetEncounter(ctx, enc.ID)
	if err != nil {
		t.Fatalf("GetEncounter: %v", err)
	}
	if fetched.Status != encounter.StatusEnhanced {
		t.Fatalf("status = %s, want enhanced", fetched.Status)
	}
	if len(fetched.Illustrations) != f.cfg.ImageGen.ImageCount-1 {
		t.Fatalf("illustrations = %d, want %d", len(fetched.Illustrations), f.cfg.ImageGen.ImageCount-1)
	}
}

func TestProcessFailsWhenAllIllustrationsFail(t *testing.T) {
	f := newPipelineFixture(t)
	ctx := context.Background()
	enc := f.approveAndEnqueue(t)
	msg := f.receive(t)

	f.images.failAll = true
	if err := f.mgr.Process(ctx, msg); err == nil {
		t.Fatal("expected pipeline failure")
	}

	fetched, err := f.store.GetEncounter(ctx, enc.ID)
	if err != nil {
		t.Fatalf("GetEncounter: %v", err)
	}
	if fetched.Status != encounter.StatusEnhancementFailed {
		t.Fatalf("status = %s, want enhancement_failed", fetched.Status)
	}
	if f.speech.calls != 0 {
		t.Fatal("narration invoked after illustration failure")
	}
}

func TestProcessDropsMessageForIneligibleStatus(t *testing.T) {
	f := newPipelineFixture(t)
	ctx := context.Background()

	enc := testsupport.NewEncounter(t, f.store, "still-pending", 40.7, -74.0)
	if _, err := f.queue.Enqueue(ctx, workqueue.EnhancementMessage{EncounterID: enc.ID, Story: enc.Story}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	msg := f.receive(t)

	if err := f.mgr.Process(ctx, msg); err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	fetched, err := f.store.GetEncounter(ctx, enc.ID)
	if err != nil {
		t.Fatalf("GetEncounter: %v", err)
	}
	if fetched.Status != encounter.StatusPending {
		t.Fatalf("status = %s, want pending untouched", fetched.Status)
	}
	if f.text.calls != 0 {
		t.Fatal("pipeline ran for ineligible encounter")
	}
	stats, err := f.queue.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Ready != 0 || stats.Leased != 0 {
		t.Fatalf("message not acked: %#v", stats)
	}
}

func TestProcessDropsMessageForVanishedEncounter(t *testing.T) {
	f := newPipelineFixture(t)
	ctx := context.Background()

	if _, err := f.queue.Enqueue(ctx, workqueue.EnhancementMessage{EncounterID: "gone", Story: "x"}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	msg := f.receive(t)

	if err := f.mgr.Process(ctx, msg); err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	stats, err := f.queue.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Ready != 0 || stats.Leased != 0 || stats.Dead != 0 {
		t.Fatalf("message not acked: %#v", stats)
	}
}

func TestProcessResumesRedeliveredEnhancing(t *testing.T) {
	f := newPipelineFixture(t)
	ctx := context.Background()
	enc := f.approveAndEnqueue(t)

	// Simulate a crashed worker: status moved to enhancing, lease lapsed,
	// message redelivered.
	if ok, err := f.store.UpdateStatusIf(ctx, enc.ID, encounter.StatusEnhancing, encounter.StatusApproved); err != nil || !ok {
		t.Fatalf("move to enhancing: ok=%v err=%v", ok, err)
	}
	first := f.receive(t)
	if err := f.queue.Fail(ctx, first.ID, "worker crashed"); err != nil {
		t.Fatalf("Fail: %v", err)
	}
	second := f.receive(t)
	if second.DeliveryCount != 2 {
		t.Fatalf("delivery count = %d, want 2", second.DeliveryCount)
	}

	if err := f.mgr.Process(ctx, second); err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	fetched, err := f.store.GetEncounter(ctx, enc.ID)
	if err != nil {
		t.Fatalf("GetEncounter: %v", err)
	}
	if fetched.Status != encounter.StatusEnhanced {
		t.Fatalf("status = %s, want enhanced after resume", fetched.Status)
	}
}

func TestManagerStartStop(t *testing.T) {
	f := newPipelineFixture(t)
	enc := f.approveAndEnqueue(t)

	if err := f.mgr.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	deadline := time.After(5 * time.Second)
	for {
		fetched, err := f.store.GetEncounter(context.Background(), enc.ID)
		if err != nil {
			t.Fatalf("GetEncounter: %v", err)
		}
		if fetched.Status == encounter.StatusEnhanced {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("encounter never enhanced, status %s", fetched.Status)
		case <-time.After(20 * time.Millisecond):
		}
	}

	f.mgr.Stop()
	// Stop is idempotent.
	f.mgr.Stop()
}
