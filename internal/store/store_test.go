package store_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"spectral/internal/encounter"
	"spectral/internal/services"
	"spectral/internal/store"
	"spectral/internal/testsupport"
)

func TestCreateAndGetEncounter(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	enc := testsupport.NewEncounter(t, st, "edith", 40.7128, -74.0060)

	fetched, err := st.GetEncounter(ctx, enc.ID)
	if err != nil {
		t.Fatalf("GetEncounter failed: %v", err)
	}
	if fetched == nil {
		t.Fatal("expected encounter to be found")
	}
	if fetched.AuthorName != "edith" || fetched.Status != encounter.StatusPending {
		t.Fatalf("unexpected encounter: %#v", fetched)
	}
	if fetched.Geohash == "" {
		t.Fatal("expected geohash to be stored")
	}

	missing, err := st.GetEncounter(ctx, "no-such-id")
	if err != nil {
		t.Fatalf("GetEncounter missing failed: %v", err)
	}
	if missing != nil {
		t.Fatalf("expected nil for missing encounter, got %#v", missing)
	}
}

func TestCreateEncounterPersistsImageLists(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	enc := &encounter.Encounter{
		ID:             encounter.NewID(),
		AuthorName:     "morris",
		DeviceID:       "device-morris",
		Latitude:       51.5,
		Longitude:      -0.12,
		Geohash:        "gcpvj",
		Story:          "Footsteps circled the attic though the ladder was stowed.",
		EncounterTime:  time.Now().UTC(),
		Public:         true,
		UploadedImages: []string{"encounters/x/uploads/a.jpg", "encounters/x/uploads/b.jpg"},
		Status:         encounter.StatusPending,
	}
	if err := st.CreateEncounter(ctx, enc); err != nil {
		t.Fatalf("CreateEncounter failed: %v", err)
	}

	fetched, err := st.GetEncounter(ctx, enc.ID)
	if err != nil {
		t.Fatalf("GetEncounter failed: %v", err)
	}
	if len(fetched.UploadedImages) != 2 || fetched.UploadedImages[1] != "encounters/x/uploads/b.jpg" {
		t.Fatalf("unexpected uploaded images: %#v", fetched.UploadedImages)
	}
	if fetched.Illustrations != nil {
		t.Fatalf("expected no illustrations, got %#v", fetched.Illustrations)
	}
}

func TestCreateEncounterDuplicateID(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	enc := testsupport.NewEncounter(t, st, "ada", 48.85, 2.35)
	dup := *enc
	err := st.CreateEncounter(context.Background(), &dup)
	if !errors.Is(err, services.ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}
}

func TestListByStatusPagination(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	var ids []string
	for i := 0; i < 5; i++ {
		enc := &encounter.Encounter{
			ID:            fmt.Sprintf("enc-%02d", i),
			AuthorName:    "lister",
			DeviceID:      "device-lister",
			Latitude:      10,
			Longitude:     10,
			Geohash:       "s3y0z",
			Story:         "Every clock in the house stopped at the same minute.",
			EncounterTime: base,
			Public:        true,
			Status:        encounter.StatusPending,
			CreatedAt:     base.Add(time.Duration(i) * time.Minute),
		}
		if err := st.CreateEncounter(ctx, enc); err != nil {
			t.Fatalf("CreateEncounter failed: %v", err)
		}
		ids = append(ids, enc.ID)
	}

	first, err := st.ListByStatus(ctx, encounter.StatusPending, 2, store.Cursor{})
	if err != nil {
		t.Fatalf("ListByStatus failed: %v", err)
	}
	if len(first) != 2 || first[0].ID != ids[4] || first[1].ID != ids[3] {
		t.Fatalf("unexpected first page: %#v", first)
	}

	cursor := store.Cursor{CreatedAt: first[1].CreatedAt, ID: first[1].ID}
	second, err := st.ListByStatus(ctx, encounter.StatusPending, 10, cursor)
	if err != nil {
		t.Fatalf("ListByStatus page 2 failed: %v", err)
	}
	if len(second) != 3 || second[0].ID != ids[2] || second[2].ID != ids[0] {
		t.Fatalf("unexpected second page: %#v", second)
	}
}

func TestListByGeohashPrefixes(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	near := testsupport.NewEncounter(t, st, "near", 40.7128, -74.0060)
	far := testsupport.NewEncounter(t, st, "far", -33.86, 151.21)

	if ok, err := st.UpdateStatusIf(ctx, near.ID, encounter.StatusApproved, encounter.StatusPending); err != nil || !ok {
		t.Fatalf("approve near: ok=%v err=%v", ok, err)
	}
	if ok, err := st.UpdateStatusIf(ctx, far.ID, encounter.StatusApproved, encounter.StatusPending); err != nil || !ok {
		t.Fatalf("approve far: ok=%v err=%v", ok, err)
	}

	prefix := near.Geohash[:4]
	matches, err := st.ListByGeohashPrefixes(ctx, []string{prefix}, encounter.StatusApproved, encounter.StatusEnhanced)
	if err != nil {
		t.Fatalf("ListByGeohashPrefixes failed: %v", err)
	}
	if len(matches) != 1 || matches[0].ID != near.ID {
		t.Fatalf("expected only the nearby encounter, got %#v", matches)
	}

	// Pending rows never surface in search, whatever their geohash.
	pending := testsupport.NewEncounter(t, st, "pending", 40.7128, -74.0060)
	matches, err = st.ListByGeohashPrefixes(ctx, []string{prefix}, encounter.StatusApproved, encounter.StatusEnhanced)
	if err != nil {
		t.Fatalf("ListByGeohashPrefixes failed: %v", err)
	}
	for _, m := range matches {
		if m.ID == pending.ID {
			t.Fatal("pending encounter leaked into geohash listing")
		}
	}
}

func TestUpdateStatusIfGuardsTransitions(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	enc := testsupport.NewEncounter(t, st, "guard", 35.68, 139.69)

	ok, err := st.UpdateStatusIf(ctx, enc.ID, encounter.StatusEnhancing, encounter.StatusApproved, encounter.StatusEnhancementFailed)
	if err != nil {
		t.Fatalf("UpdateStatusIf failed: %v", err)
	}
	if ok {
		t.Fatal("pending encounter must not move to enhancing")
	}

	ok, err = st.UpdateStatusIf(ctx, enc.ID, encounter.StatusApproved, encounter.StatusPending)
	if err != nil || !ok {
		t.Fatalf("approve: ok=%v err=%v", ok, err)
	}

	ok, err = st.UpdateStatusIf(ctx, enc.ID, encounter.StatusEnhancing, encounter.StatusApproved, encounter.StatusEnhancementFailed)
	if err != nil || !ok {
		t.Fatalf("move to enhancing: ok=%v err=%v", ok, err)
	}

	// Losing a race is reported as false, not an error.
	ok, err = st.UpdateStatusIf(ctx, enc.ID, encounter.StatusApproved, encounter.StatusPending)
	if err != nil {
		t.Fatalf("UpdateStatusIf failed: %v", err)
	}
	if ok {
		t.Fatal("stale conditional update must not apply")
	}
}

func TestPublishEnhancement(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	enc := testsupport.NewEncounter(t, st, "publish", 59.33, 18.07)
	if _, err := st.UpdateStatusIf(ctx, enc.ID, encounter.StatusApproved, encounter.StatusPending); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if _, err := st.UpdateStatusIf(ctx, enc.ID, encounter.StatusEnhancing, encounter.StatusApproved); err != nil {
		t.Fatalf("start enhancing: %v", err)
	}

	illustrations := []string{"encounters/p/illustrations/0.png"}
	ok, err := st.PublishEnhancement(ctx, enc.ID, "The draft was no draft at all.", illustrations, "encounters/p/narration/story.mp3")
	if err != nil {
		t.Fatalf("PublishEnhancement failed: %v", err)
	}
	if !ok {
		t.Fatal("expected publish to apply")
	}

	fetched, err := st.GetEncounter(ctx, enc.ID)
	if err != nil {
		t.Fatalf("GetEncounter failed: %v", err)
	}
	if fetched.Status != encounter.StatusEnhanced {
		t.Fatalf("status = %s, want enhanced", fetched.Status)
	}
	if fetched.EnhancedStory == "" || fetched.NarrationKey == "" || len(fetched.Illustrations) != 1 {
		t.Fatalf("enhancement outputs not stored: %#v", fetched)
	}

	// Re-publishing a finished encounter does not apply.
	ok, err = st.PublishEnhancement(ctx, enc.ID, "again", nil, "")
	if err != nil {
		t.Fatalf("PublishEnhancement repeat failed: %v", err)
	}
	if ok {
		t.Fatal("publish must require enhancing status")
	}
}

func TestMarkEnhancementFailed(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	enc := testsupport.NewEncounter(t, st, "failure", 52.52, 13.40)
	if _, err := st.UpdateStatusIf(ctx, enc.ID, encounter.StatusApproved, encounter.StatusPending); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if _, err := st.UpdateStatusIf(ctx, enc.ID, encounter.StatusEnhancing, encounter.StatusApproved); err != nil {
		t.Fatalf("start enhancing: %v", err)
	}

	ok, err := st.MarkEnhancementFailed(ctx, enc.ID, "narrative generation failed after 3 attempts")
	if err != nil || !ok {
		t.Fatalf("MarkEnhancementFailed: ok=%v err=%v", ok, err)
	}

	fetched, err := st.GetEncounter(ctx, enc.ID)
	if err != nil {
		t.Fatalf("GetEncounter failed: %v", err)
	}
	if fetched.Status != encounter.StatusEnhancementFailed {
		t.Fatalf("status = %s, want enhancement_failed", fetched.Status)
	}
	if fetched.ErrorMessage == "" {
		t.Fatal("expected error message to be recorded")
	}

	// Re-triggering clears the previous failure reason.
	if _, err := st.UpdateStatusIf(ctx, enc.ID, encounter.StatusEnhancing, encounter.StatusEnhancementFailed); err != nil {
		t.Fatalf("re-trigger: %v", err)
	}
	fetched, err = st.GetEncounter(ctx, enc.ID)
	if err != nil {
		t.Fatalf("GetEncounter failed: %v", err)
	}
	if fetched.ErrorMessage != "" {
		t.Fatalf("expected error message cleared, got %q", fetched.ErrorMessage)
	}
}

func TestAddRating(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	enc := testsupport.NewEncounter(t, st, "rated", 37.77, -122.42)

	ratings := []struct {
		device string
		value  int
	}{
		{"device-a", 5},
		{"device-b", 4},
		{"device-c", 4},
	}
	for _, r := range ratings {
		err := st.AddRating(ctx, &encounter.Rating{EncounterID: enc.ID, DeviceID: r.device, Rating: r.value})
		if err != nil {
			t.Fatalf("AddRating(%s) failed: %v", r.device, err)
		}
	}

	err := st.AddRating(ctx, &encounter.Rating{EncounterID: enc.ID, DeviceID: "device-a", Rating: 1})
	if !errors.Is(err, services.ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}

	fetched, err := st.GetEncounter(ctx, enc.ID)
	if err != nil {
		t.Fatalf("GetEncounter failed: %v", err)
	}
	if fetched.RatingTotal != 13 || fetched.RatingCount != 3 {
		t.Fatalf("aggregate = %d/%d, want 13/3", fetched.RatingTotal, fetched.RatingCount)
	}
	if avg := fetched.RatingAverage(); avg != 4.3 {
		t.Fatalf("average = %v, want 4.3", avg)
	}

	stored, err := st.GetRating(ctx, enc.ID, "device-a")
	if err != nil {
		t.Fatalf("GetRating failed: %v", err)
	}
	if stored == nil || stored.Rating != 5 {
		t.Fatalf("duplicate must not overwrite: %#v", stored)
	}
}

func TestAddRatingMissingEncounter(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	err := st.AddRating(context.Background(), &encounter.Rating{EncounterID: "ghost", DeviceID: "device-x", Rating: 3})
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	// The failed aggregate update must roll the rating row back too.
	stored, err := st.GetRating(context.Background(), "ghost", "device-x")
	if err != nil {
		t.Fatalf("GetRating failed: %v", err)
	}
	if stored != nil {
		t.Fatalf("orphan rating row left behind: %#v", stored)
	}
}

func TestAddVerification(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	enc := testsupport.NewEncounter(t, st, "verified", 45.42, -75.69)

	scores := []float64{7.5, 6.0, 5.9}
	for i, score := range scores {
		v := &encounter.Verification{
			ID:             fmt.Sprintf("ver-%d", i),
			EncounterID:    enc.ID,
			Latitude:       enc.Latitude,
			Longitude:      enc.Longitude,
			Spookiness:     score,
			Note:           "still cold near the stairwell",
			TimeMatched:    i == 0,
			DistanceMeters: 12.5,
		}
		if err := st.AddVerification(ctx, v); err != nil {
			t.Fatalf("AddVerification failed: %v", err)
		}
	}

	fetched, err := st.GetEncounter(ctx, enc.ID)
	if err != nil {
		t.Fatalf("GetEncounter failed: %v", err)
	}
	if fetched.VerificationCount != 3 {
		t.Fatalf("verification count = %d, want 3", fetched.VerificationCount)
	}
	if avg := fetched.SpookinessAverage(); avg != 6.5 {
		t.Fatalf("spookiness average = %v, want 6.5", avg)
	}

	listed, err := st.ListVerifications(ctx, enc.ID)
	if err != nil {
		t.Fatalf("ListVerifications failed: %v", err)
	}
	if len(listed) != 3 {
		t.Fatalf("listed %d verifications, want 3", len(listed))
	}
	if !listed[0].TimeMatched || listed[0].Note == "" {
		t.Fatalf("unexpected first verification: %#v", listed[0])
	}
}

func TestStats(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	a := testsupport.NewEncounter(t, st, "one", 10, 10)
	testsupport.NewEncounter(t, st, "two", 11, 11)
	if _, err := st.UpdateStatusIf(ctx, a.ID, encounter.StatusApproved, encounter.StatusPending); err != nil {
		t.Fatalf("approve: %v", err)
	}

	stats, err := st.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats[encounter.StatusPending] != 1 || stats[encounter.StatusApproved] != 1 {
		t.Fatalf("unexpected stats: %#v", stats)
	}
}
