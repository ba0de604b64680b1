package api

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"

	"spectral/internal/services"
	"spectral/internal/store"
)

// Continuation tokens are opaque to clients: base64 over "lastValue|lastID",
// where lastValue is the sort key of the final row the client has seen.

func encodeListToken(cursor store.Cursor) string {
	raw := cursor.CreatedAt.UTC().Format(time.RFC3339Nano) + "|" + cursor.ID
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

func decodeListToken(token string) (store.Cursor, error) {
	if strings.TrimSpace(token) == "" {
		return store.Cursor{}, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return store.Cursor{}, services.Wrap(services.ErrValidation, "api", "decode-token", "malformed continuation token", err)
	}
	parts := strings.SplitN(string(raw), "|", 2)
	if len(parts) != 2 || parts[1] == "" {
		return store.Cursor{}, services.Wrap(services.ErrValidation, "api", "decode-token", "malformed continuation token", nil)
	}
	created, err := time.Parse(time.RFC3339Nano, parts[0])
	if err != nil {
		return store.Cursor{}, services.Wrap(services.ErrValidation, "api", "decode-token", "malformed continuation token", err)
	}
	return store.Cursor{CreatedAt: created, ID: parts[1]}, nil
}

func encodeSearchToken(distanceMeters float64, id string) string {
	raw := fmt.Sprintf("%.6f|%s", distanceMeters, id)
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// roundTokenDistance reduces a distance to the precision the token carries.
func roundTokenDistance(distanceMeters float64) float64 {
	rounded, err := strconv.ParseFloat(fmt.Sprintf("%.6f", distanceMeters), 64)
	if err != nil {
		return distanceMeters
	}
	return rounded
}

type searchCursor struct {
	DistanceMeters float64
	ID             string
}

func decodeSearchToken(token string) (searchCursor, bool, error) {
	if strings.TrimSpace(token) == "" {
		return searchCursor{}, false, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return searchCursor{}, false, services.Wrap(services.ErrValidation, "api", "decode-token", "malformed continuation token", err)
	}
	parts := strings.SplitN(string(raw), "|", 2)
	if len(parts) != 2 || parts[1] == "" {
		return searchCursor{}, false, services.Wrap(services.ErrValidation, "api", "decode-token", "malformed continuation token", nil)
	}
	distance, err := strconv.ParseFloat(parts[0], 64)
	if err != nil {
		return searchCursor{}, false, services.Wrap(services.ErrValidation, "api", "decode-token", "malformed continuation token", err)
	}
	return searchCursor{DistanceMeters: distance, ID: parts[1]}, true, nil
}
