package testsupport

import (
	"context"
	"testing"
	"time"

	"spectral/internal/config"
	"spectral/internal/encounter"
	"spectral/internal/geo"
	"spectral/internal/store"
)

// MustOpenStore opens a store.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *store.Store {
	t.Helper()

	st, err := store.Open(cfg)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() {
		st.Close()
	})
	return st
}

// NewEncounter inserts a pending encounter at the given location for tests
// and returns it. The geohash is derived at the default index precision.
func NewEncounter(t testing.TB, st *store.Store, authorName string, lat, lon float64) *encounter.Encounter {
	t.Helper()

	hash, err := geo.EncodeGeohash(lat, lon, config.Default().Geo.GeohashPrecision)
	if err != nil {
		t.Fatalf("geo.EncodeGeohash: %v", err)
	}
	enc := &encounter.Encounter{
		ID:            encounter.NewID(),
		AuthorName:    authorName,
		DeviceID:      "device-" + authorName,
		Latitude:      lat,
		Longitude:     lon,
		Geohash:       hash,
		Story:         "A cold draft moved through the hallway and the lights failed one by one.",
		EncounterTime: time.Now().UTC().Add(-24 * time.Hour),
		Public:        true,
		Status:        encounter.StatusPending,
	}
	if err := st.CreateEncounter(context.Background(), enc); err != nil {
		t.Fatalf("store.CreateEncounter: %v", err)
	}
	return enc
}
