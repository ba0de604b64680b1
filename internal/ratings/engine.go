// Package ratings implements rating submission and on-site verification of
// encounters. Ratings are capped at one per device per encounter; running
// averages are maintained as total+count aggregates on the encounter row.
package ratings

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"spectral/internal/config"
	"spectral/internal/encounter"
	"spectral/internal/geo"
	"spectral/internal/logging"
	"spectral/internal/services"
	"spectral/internal/store"
)

// Engine validates and persists ratings and verifications.
type Engine struct {
	store *store.Store
	log   *slog.Logger

	maxDistanceMeters float64
	timeWindowMinutes int
	maxNoteChars      int

	now func() time.Time
}

// Option customizes engine construction.
type Option func(*Engine)

// WithClock overrides the wall clock used for time-of-day matching.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// NewEngine builds an engine bound to the given store and verification limits.
func NewEngine(st *store.Store, cfg *config.Config, logger *slog.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = logging.NewNop()
	}
	engine := &Engine{
		store:             st,
		log:               logger.With(logging.String(logging.FieldComponent, "ratings")),
		maxDistanceMeters: cfg.Verification.MaxDistanceMeters,
		timeWindowMinutes: cfg.Verification.TimeMatchWindowMinutes,
		maxNoteChars:      cfg.Verification.MaxNoteChars,
		now:               time.Now,
	}
	for _, opt := range opts {
		opt(engine)
	}
	return engine
}

// SubmitRating records one device's 1-5 score for an encounter. A device may
// rate an encounter once; duplicates fail with ErrAlreadyExists and leave the
// stored average untouched.
func (e *Engine) SubmitRating(ctx context.Context, encounterID, deviceID string, rating int) error {
	if encounterID == "" {
		return services.Wrap(services.ErrValidation, "ratings", "submit-rating", "encounter id is required", nil)
	}
	if deviceID == "" {
		return services.Wrap(services.ErrValidation, "ratings", "submit-rating", "device id is required", nil)
	}
	if rating < 1 || rating > 5 {
		return services.Wrap(services.ErrValidation, "ratings", "submit-rating",
			fmt.Sprintf("rating must be between 1 and 5, got %d", rating), nil)
	}

	enc, err := e.store.GetEncounter(ctx, encounterID)
	if err != nil {
		return err
	}
	if enc == nil {
		return services.Wrap(services.ErrNotFound, "ratings", "submit-rating", "encounter not found", nil)
	}

	if err := e.store.AddRating(ctx, &encounter.Rating{
		EncounterID: encounterID,
		DeviceID:    deviceID,
		Rating:      rating,
	}); err != nil {
		return err
	}

	e.log.InfoContext(ctx, "rating accepted",
		logging.String(logging.FieldEncounterID, encounterID),
		logging.Int("rating", rating))
	return nil
}

// VerificationInput carries one on-site verification attempt.
type VerificationInput struct {
	EncounterID string
	Latitude    float64
	Longitude   float64
	Spookiness  float64
	Note        string
}

// VerificationResult reports the stored verification's id and the computed
// proximity and time-of-day facts.
type VerificationResult struct {
	ID             string
	TimeMatched    bool
	DistanceMeters float64
}

// SubmitVerification validates a re-visit against the encounter's original
// location and time, then persists it. The visit must be within the proximity
// limit; time-of-day matching compares only minutes since midnight, using the
// shorter circular difference so a 23:00 encounter matches a 01:00 visit.
func (e *Engine) SubmitVerification(ctx context.Context, input VerificationInput) (VerificationResult, error) {
	if input.EncounterID == "" {
		return VerificationResult{}, services.Wrap(services.ErrValidation, "ratings", "submit-verification", "encounter id is required", nil)
	}

	enc, err := e.store.GetEncounter(ctx, input.EncounterID)
	if err != nil {
		return VerificationResult{}, err
	}
	if enc == nil {
		return VerificationResult{}, services.Wrap(services.ErrNotFound, "ratings", "submit-verification", "encounter not found", nil)
	}

	if !geo.ValidCoordinates(input.Latitude, input.Longitude) {
		return VerificationResult{}, services.Wrap(services.ErrValidation, "ratings", "submit-verification", "invalid coordinates", nil)
	}
	if input.Spookiness < 0 || input.Spookiness > 10 {
		return VerificationResult{}, services.Wrap(services.ErrValidation, "ratings", "submit-verification",
			fmt.Sprintf("spookiness must be between 0 and 10, got %g", input.Spookiness), nil)
	}
	if len([]rune(input.Note)) > e.maxNoteChars {
		return VerificationResult{}, services.Wrap(services.ErrValidation, "ratings", "submit-verification",
			fmt.Sprintf("note exceeds %d characters", e.maxNoteChars), nil)
	}

	distance := geo.DistanceMeters(input.Latitude, input.Longitude, enc.Latitude, enc.Longitude)
	if distance > e.maxDistanceMeters {
		return VerificationResult{}, services.Wrap(services.ErrOutOfRange, "ratings", "submit-verification",
			fmt.Sprintf("verification is %.2f m from the encounter, beyond the %.0f m limit", distance, e.maxDistanceMeters), nil)
	}

	timeMatched := timeOfDayMatched(enc.EncounterTime, e.now().UTC(), e.timeWindowMinutes)

	verification := &encounter.Verification{
		ID:             uuid.NewString(),
		EncounterID:    input.EncounterID,
		Latitude:       input.Latitude,
		Longitude:      input.Longitude,
		Spookiness:     input.Spookiness,
		Note:           input.Note,
		TimeMatched:    timeMatched,
		DistanceMeters: distance,
	}
	if err := e.store.AddVerification(ctx, verification); err != nil {
		return VerificationResult{}, err
	}

	e.log.InfoContext(ctx, "verification accepted",
		logging.String(logging.FieldEncounterID, input.EncounterID),
		logging.Float64("distance_meters", distance),
		logging.Bool("time_matched", timeMatched))
	return VerificationResult{
		ID:             verification.ID,
		TimeMatched:    timeMatched,
		DistanceMeters: distance,
	}, nil
}

// timeOfDayMatched compares two instants by minutes since midnight only.
// Calendar date is ignored; the circular difference handles the midnight
// wraparound so 23:30 and 00:30 are 60 minutes apart, not 1380.
func timeOfDayMatched(encounterTime, visitTime time.Time, windowMinutes int) bool {
	a := minutesSinceMidnight(encounterTime.UTC())
	b := minutesSinceMidnight(visitTime)
	diff := a - b
	if diff < 0 {
		diff = -diff
	}
	if diff > 720 {
		diff = 1440 - diff
	}
	return diff <= windowMinutes
}

func minutesSinceMidnight(t time.Time) int {
	return t.Hour()*60 + t.Minute()
}
