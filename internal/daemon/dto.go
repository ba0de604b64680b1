package daemon

import (
	"time"

	"spectral/internal/encounter"
)

type errorEnvelope struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type submitRequest struct {
	Title         string  `json:"title"`
	AuthorName    string  `json:"authorName"`
	DeviceID      string  `json:"deviceId"`
	Latitude      float64 `json:"latitude"`
	Longitude     float64 `json:"longitude"`
	Address       string  `json:"address"`
	Story         string  `json:"story"`
	EncounterTime string  `json:"encounterTime"`
	Public        bool    `json:"public"`
	ImageCount    int     `json:"imageCount"`
}

type submitResponse struct {
	ID         string   `json:"id"`
	Status     string   `json:"status"`
	UploadURLs []string `json:"uploadUrls"`
}

type rateRequest struct {
	DeviceID string `json:"deviceId"`
	Rating   int    `json:"rating"`
}

type verifyRequest struct {
	Latitude   float64 `json:"latitude"`
	Longitude  float64 `json:"longitude"`
	Spookiness float64 `json:"spookiness"`
	Note       string  `json:"note"`
}

type verifyResponse struct {
	ID             string  `json:"id"`
	TimeMatched    bool    `json:"timeMatched"`
	DistanceMeters float64 `json:"distanceMeters"`
}

type rejectRequest struct {
	Reason string `json:"reason"`
}

type moderationResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

type enhanceResponse struct {
	ID     string `json:"id"`
	Queued bool   `json:"queued"`
	Status string `json:"status"`
}

type statusResponse struct {
	Running      bool   `json:"running"`
	Address      string `json:"address"`
	QueueReady   int    `json:"queueReady"`
	QueueLeased  int    `json:"queueLeased"`
	QueueDead    int    `json:"queueDead"`
	DatabasePath string `json:"databasePath"`
}

type encounterView struct {
	ID                string    `json:"id"`
	Title             string    `json:"title,omitempty"`
	AuthorName        string    `json:"authorName"`
	Latitude          float64   `json:"latitude"`
	Longitude         float64   `json:"longitude"`
	Address           string    `json:"address,omitempty"`
	Story             string    `json:"story"`
	EnhancedStory     string    `json:"enhancedStory,omitempty"`
	EncounterTime     time.Time `json:"encounterTime"`
	UploadedImages    []string  `json:"uploadedImages"`
	Illustrations     []string  `json:"illustrations"`
	NarrationURL      string    `json:"narrationUrl,omitempty"`
	RatingAverage     float64   `json:"ratingAverage"`
	RatingCount       int       `json:"ratingCount"`
	SpookinessAverage float64   `json:"spookinessAverage"`
	VerificationCount int       `json:"verificationCount"`
	Status            string    `json:"status"`
	CreatedAt         time.Time `json:"createdAt"`
}

type searchResultView struct {
	Encounter      encounterView `json:"encounter"`
	DistanceMeters float64       `json:"distanceMeters"`
}

type searchResponse struct {
	Results   []searchResultView `json:"results"`
	Count     int                `json:"count"`
	NextToken string             `json:"nextToken,omitempty"`
}

type listPendingResponse struct {
	Encounters []encounterView `json:"encounters"`
	Count      int             `json:"count"`
	NextToken  string          `json:"nextToken,omitempty"`
}

func (s *httpServer) encounterView(enc *encounter.Encounter) encounterView {
	view := encounterView{
		ID:                enc.ID,
		Title:             enc.Title,
		AuthorName:        enc.AuthorName,
		Latitude:          enc.Latitude,
		Longitude:         enc.Longitude,
		Address:           enc.Address,
		Story:             enc.Story,
		EnhancedStory:     enc.EnhancedStory,
		EncounterTime:     enc.EncounterTime,
		UploadedImages:    s.keysToURLs(enc.UploadedImages),
		Illustrations:     s.keysToURLs(enc.Illustrations),
		RatingAverage:     enc.RatingAverage(),
		RatingCount:       enc.RatingCount,
		SpookinessAverage: enc.SpookinessAverage(),
		VerificationCount: enc.VerificationCount,
		Status:            string(enc.Status),
		CreatedAt:         enc.CreatedAt,
	}
	if enc.NarrationKey != "" && s.blobs != nil {
		view.NarrationURL = s.blobs.URL(enc.NarrationKey)
	}
	return view
}
