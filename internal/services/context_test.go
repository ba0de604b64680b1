package services_test

import (
	"context"
	"testing"

	"spectral/internal/services"
)

func TestContextRoundTrip(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithEncounterID(ctx, "01JENC0UNTER")
	ctx = services.WithStage(ctx, "narrative")
	ctx = services.WithRequestID(ctx, "req-123")

	if id, ok := services.EncounterIDFromContext(ctx); !ok || id != "01JENC0UNTER" {
		t.Fatalf("encounter id = %q, %v", id, ok)
	}
	if stage, ok := services.StageFromContext(ctx); !ok || stage != "narrative" {
		t.Fatalf("stage = %q, %v", stage, ok)
	}
	if rid, ok := services.RequestIDFromContext(ctx); !ok || rid != "req-123" {
		t.Fatalf("request id = %q, %v", rid, ok)
	}
}

func TestContextEmptyValuesIgnored(t *testing.T) {
	ctx := services.WithStage(context.Background(), "")
	if _, ok := services.StageFromContext(ctx); ok {
		t.Fatal("empty stage should not be stored")
	}
	if _, ok := services.EncounterIDFromContext(context.Background()); ok {
		t.Fatal("missing encounter id should report false")
	}
}
