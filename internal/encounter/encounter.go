package encounter

import (
	"crypto/rand"
	"math"
	"time"

	"github.com/oklog/ulid/v2"
)

// Encounter is the central aggregate: one submitted paranormal report and the
// state accumulated over its lifecycle.
type Encounter struct {
	ID             string
	Title          string
	AuthorName     string
	DeviceID       string
	Latitude       float64
	Longitude      float64
	Address        string
	Geohash        string
	Story          string
	EnhancedStory  string
	EncounterTime  time.Time
	Public         bool
	UploadedImages []string
	Illustrations  []string
	NarrationKey   string

	RatingTotal int
	RatingCount int

	SpookinessTotal   float64
	VerificationCount int

	CommentCount int

	Status       Status
	ErrorMessage string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Rating records one device's 1-5 score for an encounter. At most one rating
// exists per (encounter, device) pair; ratings are immutable once stored.
type Rating struct {
	EncounterID string
	DeviceID    string
	Rating      int
	CreatedAt   time.Time
}

// Verification records one on-site re-visit. Append-only, many per encounter.
type Verification struct {
	ID             string
	EncounterID    string
	Latitude       float64
	Longitude      float64
	Spookiness     float64
	Note           string
	TimeMatched    bool
	DistanceMeters float64
	CreatedAt      time.Time
}

// NewID returns a lexically sortable, collision-resistant encounter id.
func NewID() string {
	return ulid.MustNew(ulid.Timestamp(time.Now().UTC()), rand.Reader).String()
}

// RatingAverage returns the arithmetic mean of accepted ratings, rounded to
// one decimal. Zero when no ratings exist.
func (e *Encounter) RatingAverage() float64 {
	return round1(float64(e.RatingTotal), e.RatingCount)
}

// SpookinessAverage returns the mean spookiness across verifications,
// rounded to one decimal. Zero when no verifications exist.
func (e *Encounter) SpookinessAverage() float64 {
	return round1(e.SpookinessTotal, e.VerificationCount)
}

func round1(total float64, count int) float64 {
	if count <= 0 {
		return 0
	}
	return math.Round(total/float64(count)*10) / 10
}
