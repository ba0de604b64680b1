package daemon

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"spectral/internal/api"
	"spectral/internal/blob"
	"spectral/internal/config"
	"spectral/internal/encounter"
	"spectral/internal/enhance"
	"spectral/internal/logging"
	"spectral/internal/ratings"
	"spectral/internal/services/imagegen"
	"spectral/internal/services/speech"
	"spectral/internal/services/textgen"
	"spectral/internal/testsupport"
	"spectral/internal/workqueue"
)

const testModeratorToken = "test-moderator-token"

func newGenerationBackends(t *testing.T) (textURL, imageURL, speechURL string) {
	t.Helper()

	text := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"choices":[{"message":{"content":"The hallway breathed with a cold that had a direction."}}]}`)
	}))
	t.Cleanup(text.Close)

	image := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		payload := base64.StdEncoding.EncodeToString([]byte("png-bytes"))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"data":[{"b64_json":"%s"}]}`, payload)
	}))
	t.Cleanup(image.Close)

	audio := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "audio/mpeg")
		w.Write([]byte("mp3-bytes"))
	}))
	t.Cleanup(audio.Close)

	return text.URL, image.URL, audio.URL
}

func startTestDaemon(t *testing.T) (*Daemon, string) {
	t.Helper()

	cfg := testsupport.NewConfig(t, testsupport.WithEnhancer(func(e *config.Enhancer) {
		e.QueuePollInterval = 1
		e.ErrorRetryInterval = 1
	}))
	textURL, imageURL, speechURL := newGenerationBackends(t)
	cfg.TextGen.BaseURL = textURL
	cfg.TextGen.APIKey = "test-text-key"
	cfg.ImageGen.BaseURL = imageURL
	cfg.ImageGen.APIKey = "test-image-key"
	cfg.Speech.BaseURL = speechURL
	cfg.Speech.APIKey = "test-speech-key"

	st := testsupport.MustOpenStore(t, cfg)
	queue, err := workqueue.New(st.DB(), workqueue.Options{
		VisibilityTimeout: time.Minute,
		MaxDeliveries:     cfg.Enhancer.MaxDeliveries,
	})
	if err != nil {
		t.Fatalf("workqueue.New: %v", err)
	}
	blobs, err := blob.NewFileStore(cfg.Paths.MediaDir, mediaRoutePrefix)
	if err != nil {
		t.Fatalf("blob.NewFileStore: %v", err)
	}

	logger := logging.NewNop()
	text := textgen.NewClient(textgen.Config{APIKey: cfg.TextGen.APIKey, BaseURL: cfg.TextGen.BaseURL})
	images := imagegen.NewClient(imagegen.Config{APIKey: cfg.ImageGen.APIKey, BaseURL: cfg.ImageGen.BaseURL})
	voice := speech.NewClient(speech.Config{APIKey: cfg.Speech.APIKey, BaseURL: cfg.Speech.BaseURL})

	manager := enhance.NewManager(cfg, st, queue,
		enhance.NewNarrativeStage(text, logger),
		enhance.NewIllustrationStage(images, blobs, cfg.ImageGen.SeedBase, cfg.ImageGen.ImageCount, logger),
		enhance.NewNarrationStage(voice, blobs, voice.Voice(), logger),
		enhance.NewPublishStage(st, logger),
		logger,
	)
	engine := ratings.NewEngine(st, cfg, logger)
	svc := api.NewService(cfg, st, queue, engine, logger)

	d, err := New(cfg, st, queue, manager, svc, logger)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("daemon.Start: %v", err)
	}
	t.Cleanup(d.Stop)

	return d, "http://" + d.Addr()
}

func postJSON(t *testing.T, url, token string, body any) *http.Response {
	t.Helper()

	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	return resp
}

func getJSON(t *testing.T, url, token string) *http.Response {
	t.Helper()

	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()

	var out T
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return out
}

func submitBody() map[string]any {
	return map[string]any{
		"title":         "The Cold Hallway",
		"authorName":    "Mara",
		"deviceId":      "device-mara",
		"latitude":      40.7128,
		"longitude":     -74.0060,
		"address":       "Old Mill Road",
		"story":         "Footsteps crossed the attic above us even though the house was empty.",
		"encounterTime": time.Now().UTC().Add(-24 * time.Hour).Format(time.RFC3339),
		"public":        true,
		"imageCount":    0,
	}
}

func TestDaemonEndToEndEnhancement(t *testing.T) {
	_, base := startTestDaemon(t)

	resp := postJSON(t, base+"/api/v1/encounters", "", submitBody())
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("submit status = %d", resp.StatusCode)
	}
	created := decodeBody[submitResponse](t, resp)
	if created.ID == "" || created.Status != string(encounter.StatusPending) {
		t.Fatalf("submit response = %+v", created)
	}
	if len(created.UploadURLs) != 0 {
		t.Fatalf("upload urls = %v, want empty", created.UploadURLs)
	}

	encounterURL := base + "/api/v1/encounters/" + created.ID

	resp = getJSON(t, encounterURL, "")
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("pending fetch status = %d, want 403", resp.StatusCode)
	}
	envelope := decodeBody[errorEnvelope](t, resp)
	if envelope.Error.Code != "FORBIDDEN" {
		t.Fatalf("error code = %q, want FORBIDDEN", envelope.Error.Code)
	}

	resp = getJSON(t, base+"/api/v1/moderation/pending", "")
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("unauthenticated moderation status = %d, want 403", resp.StatusCode)
	}
	resp.Body.Close()

	resp = getJSON(t, base+"/api/v1/moderation/pending", testModeratorToken)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("moderation list status = %d", resp.StatusCode)
	}
	pending := decodeBody[listPendingResponse](t, resp)
	if pending.Count != 1 || pending.Encounters[0].ID != created.ID {
		t.Fatalf("pending backlog = %+v", pending)
	}

	resp = postJSON(t, base+"/api/v1/moderation/encounters/"+created.ID+"/approve", testModeratorToken, struct{}{})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("approve status = %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = getJSON(t, encounterURL, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("approved fetch status = %d", resp.StatusCode)
	}
	if cache := resp.Header.Get("Cache-Control"); cache != "max-age=86400" {
		t.Fatalf("Cache-Control = %q, want max-age=86400", cache)
	}
	approved := decodeBody[encounterView](t, resp)
	if approved.Status != string(encounter.StatusApproved) {
		t.Fatalf("status = %s, want approved", approved.Status)
	}

	var enhanced encounterView
	deadline := time.Now().Add(15 * time.Second)
	for {
		resp = getJSON(t, encounterURL, "")
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("fetch status = %d", resp.StatusCode)
		}
		enhanced = decodeBody[encounterView](t, resp)
		if enhanced.Status == string(encounter.StatusEnhanced) {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("encounter never enhanced, status = %s", enhanced.Status)
		}
		time.Sleep(100 * time.Millisecond)
	}

	if enhanced.EnhancedStory == "" {
		t.Fatal("enhanced story is empty")
	}
	if len(enhanced.Illustrations) != 3 {
		t.Fatalf("illustrations = %d, want 3", len(enhanced.Illustrations))
	}
	for _, url := range enhanced.Illustrations {
		if !strings.HasPrefix(url, mediaRoutePrefix+"/") {
			t.Fatalf("illustration url %q lacks media prefix", url)
		}
	}
	if enhanced.NarrationURL == "" {
		t.Fatal("narration url is empty")
	}

	resp = getJSON(t, base+enhanced.NarrationURL, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("narration fetch status = %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestDaemonRatingsAndVerifications(t *testing.T) {
	d, base := startTestDaemon(t)

	resp := postJSON(t, base+"/api/v1/encounters", "", submitBody())
	created := decodeBody[submitResponse](t, resp)
	resp = postJSON(t, base+"/api/v1/moderation/encounters/"+created.ID+"/approve", testModeratorToken, struct{}{})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("approve status = %d", resp.StatusCode)
	}
	resp.Body.Close()

	ratingsURL := base + "/api/v1/encounters/" + created.ID + "/ratings"
	resp = postJSON(t, ratingsURL, "", map[string]any{"deviceId": "device-a", "rating": 5})
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("rating status = %d, want 204", resp.StatusCode)
	}
	resp.Body.Close()

	resp = postJSON(t, ratingsURL, "", map[string]any{"deviceId": "device-a", "rating": 1})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("duplicate rating status = %d, want 409", resp.StatusCode)
	}
	envelope := decodeBody[errorEnvelope](t, resp)
	if envelope.Error.Code != "ALREADY_EXISTS" {
		t.Fatalf("error code = %q, want ALREADY_EXISTS", envelope.Error.Code)
	}

	verifyURL := base + "/api/v1/encounters/" + created.ID + "/verifications"
	resp = postJSON(t, verifyURL, "", map[string]any{
		"latitude": 40.7128, "longitude": -74.0060, "spookiness": 8.5, "note": "Still cold by the stairs.",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("verification status = %d, want 201", resp.StatusCode)
	}
	verified := decodeBody[verifyResponse](t, resp)
	if verified.ID == "" || verified.DistanceMeters > 1 {
		t.Fatalf("verification = %+v", verified)
	}

	resp = postJSON(t, verifyURL, "", map[string]any{
		"latitude": 40.7228, "longitude": -74.0060, "spookiness": 5,
	})
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("distant verification status = %d, want 422", resp.StatusCode)
	}
	envelope = decodeBody[errorEnvelope](t, resp)
	if envelope.Error.Code != "OUT_OF_RANGE" {
		t.Fatalf("error code = %q, want OUT_OF_RANGE", envelope.Error.Code)
	}

	status := d.Status(context.Background())
	if !status.Running {
		t.Fatal("daemon reports not running")
	}
}

func TestDaemonRejectFlow(t *testing.T) {
	_, base := startTestDaemon(t)

	resp := postJSON(t, base+"/api/v1/encounters", "", submitBody())
	created := decodeBody[submitResponse](t, resp)

	resp = postJSON(t, base+"/api/v1/moderation/encounters/"+created.ID+"/reject", testModeratorToken,
		map[string]any{"reason": "unverifiable location"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("reject status = %d", resp.StatusCode)
	}
	rejected := decodeBody[moderationResponse](t, resp)
	if rejected.Status != "rejected" {
		t.Fatalf("moderation response = %+v", rejected)
	}

	resp = getJSON(t, base+"/api/v1/encounters/"+created.ID, "")
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("rejected fetch status = %d, want 403", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestDaemonRequestIDAndHealth(t *testing.T) {
	_, base := startTestDaemon(t)

	resp := getJSON(t, base+"/api/v1/healthz", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz status = %d", resp.StatusCode)
	}
	if resp.Header.Get("X-Request-ID") == "" {
		t.Fatal("missing X-Request-ID header")
	}
	resp.Body.Close()

	req, err := http.NewRequest(http.MethodGet, base+"/api/v1/healthz", nil)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("X-Request-ID", "fixed-id-123")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET healthz: %v", err)
	}
	if got := resp.Header.Get("X-Request-ID"); got != "fixed-id-123" {
		t.Fatalf("X-Request-ID = %q, want fixed-id-123", got)
	}
	resp.Body.Close()
}

func TestDaemonSingleInstanceLock(t *testing.T) {
	d, _ := startTestDaemon(t)

	if err := d.Start(context.Background()); err == nil {
		t.Fatal("expected second Start to fail")
	}
}
