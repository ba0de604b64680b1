package api

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"spectral/internal/blob"
	"spectral/internal/config"
	"spectral/internal/encounter"
	"spectral/internal/geo"
	"spectral/internal/logging"
	"spectral/internal/ratings"
	"spectral/internal/services"
	"spectral/internal/store"
	"spectral/internal/workqueue"
)

const (
	minStoryChars = 10
	maxStoryChars = 5000
	maxTitleChars = 200
	maxImages     = 3

	defaultPageLimit = 20
)

// Service coordinates the store, the work queue, and the ratings engine
// behind every externally reachable operation.
type Service struct {
	store   *store.Store
	queue   *workqueue.Queue
	ratings *ratings.Engine
	log     *slog.Logger

	geohashPrecision int
	searchMaxLimit   int
	now              func() time.Time
}

// Option adjusts Service construction.
type Option func(*Service)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService builds the application service.
func NewService(
	cfg *config.Config,
	st *store.Store,
	queue *workqueue.Queue,
	engine *ratings.Engine,
	logger *slog.Logger,
	opts ...Option,
) *Service {
	svc := &Service{
		store:            st,
		queue:            queue,
		ratings:          engine,
		log:              logging.NewComponentLogger(logger, "api.service"),
		geohashPrecision: cfg.Geo.GeohashPrecision,
		searchMaxLimit:   cfg.API.SearchMaxLimit,
		now:              time.Now,
	}
	if svc.geohashPrecision <= 0 {
		svc.geohashPrecision = 7
	}
	if svc.searchMaxLimit <= 0 {
		svc.searchMaxLimit = 50
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// SubmitRequest carries a new encounter report.
type SubmitRequest struct {
	Title         string
	AuthorName    string
	DeviceID      string
	Latitude      float64
	Longitude     float64
	Address       string
	Story         string
	EncounterTime time.Time
	Public        bool
	ImageCount    int
}

// SubmitResponse returns the generated id and the blob keys the client may
// upload its photos to, one per requested image.
type SubmitResponse struct {
	ID         string
	Status     encounter.Status
	UploadKeys []string
}

// Submit validates and persists a new encounter in pending status.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (*SubmitResponse, error) {
	if err := validateSubmit(req, s.now().UTC()); err != nil {
		return nil, err
	}

	id := encounter.NewID()
	hash, err := geo.EncodeGeohash(req.Latitude, req.Longitude, s.geohashPrecision)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "api", "submit", "coordinates could not be indexed", err)
	}

	uploadKeys := make([]string, 0, req.ImageCount)
	for i := 0; i < req.ImageCount; i++ {
		uploadKeys = append(uploadKeys, blob.EncounterKey(id, "uploads", fmt.Sprintf("%d.jpg", i+1)))
	}

	enc := &encounter.Encounter{
		ID:             id,
		Title:          strings.TrimSpace(req.Title),
		AuthorName:     strings.TrimSpace(req.AuthorName),
		DeviceID:       strings.TrimSpace(req.DeviceID),
		Latitude:       req.Latitude,
		Longitude:      req.Longitude,
		Address:        strings.TrimSpace(req.Address),
		Geohash:        hash,
		Story:          strings.TrimSpace(req.Story),
		EncounterTime:  req.EncounterTime.UTC(),
		Public:         req.Public,
		UploadedImages: uploadKeys,
		Status:         encounter.StatusPending,
	}
	if err := s.store.CreateEncounter(ctx, enc); err != nil {
		return nil, err
	}

	s.log.InfoContext(ctx, "encounter submitted",
		logging.String(logging.FieldEncounterID, id),
		logging.Int("image_count", req.ImageCount),
		logging.String(logging.FieldEventType, "encounter_submitted"))
	return &SubmitResponse{ID: id, Status: enc.Status, UploadKeys: uploadKeys}, nil
}

func validateSubmit(req SubmitRequest, now time.Time) error {
	fail := func(message string) error {
		return services.Wrap(services.ErrValidation, "api", "submit", message, nil)
	}
	if strings.TrimSpace(req.AuthorName) == "" {
		return fail("author name is required")
	}
	if strings.TrimSpace(req.DeviceID) == "" {
		return fail("device id is required")
	}
	if len([]rune(strings.TrimSpace(req.Title))) > maxTitleChars {
		return fail(fmt.Sprintf("title must be at most %d characters", maxTitleChars))
	}
	story := strings.TrimSpace(req.Story)
	if n := len([]rune(story)); n < minStoryChars || n > maxStoryChars {
		return fail(fmt.Sprintf("story must be between %d and %d characters", minStoryChars, maxStoryChars))
	}
	if !geo.ValidCoordinates(req.Latitude, req.Longitude) {
		return fail("coordinates are out of range")
	}
	if req.EncounterTime.IsZero() {
		return fail("encounter time is required")
	}
	if req.EncounterTime.After(now.Add(time.Hour)) {
		return fail("encounter time cannot be in the future")
	}
	if req.ImageCount < 0 || req.ImageCount > maxImages {
		return fail(fmt.Sprintf("image count must be between 0 and %d", maxImages))
	}
	return nil
}

// Get returns an encounter for public consumption. Encounters that are not
// approved or enhanced are withheld regardless of whether they exist.
func (s *Service) Get(ctx context.Context, id string) (*encounter.Encounter, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, services.Wrap(services.ErrValidation, "api", "get", "encounter id is required", nil)
	}
	enc, err := s.store.GetEncounter(ctx, id)
	if err != nil {
		return nil, err
	}
	if enc == nil {
		return nil, services.Wrap(services.ErrNotFound, "api", "get", "encounter not found", nil)
	}
	if !encounter.IsPublic(enc.Status) {
		return nil, services.Wrap(services.ErrForbidden, "api", "get", "encounter is not public", nil)
	}
	return enc, nil
}

// Rate records a 1-5 rating for one (encounter, device) pair.
func (s *Service) Rate(ctx context.Context, encounterID, deviceID string, rating int) error {
	return s.ratings.SubmitRating(ctx, encounterID, deviceID, rating)
}

// Verify records an on-site verification visit.
func (s *Service) Verify(ctx context.Context, input ratings.VerificationInput) (ratings.VerificationResult, error) {
	return s.ratings.SubmitVerification(ctx, input)
}

func (s *Service) clampLimit(limit int) int {
	if limit <= 0 {
		limit = defaultPageLimit
	}
	if limit > s.searchMaxLimit {
		limit = s.searchMaxLimit
	}
	return limit
}
