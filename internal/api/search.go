package api

import (
	"context"
	"sort"

	"spectral/internal/encounter"
	"spectral/internal/geo"
	"spectral/internal/services"
)

// SearchRequest asks for public encounters near a point.
type SearchRequest struct {
	Latitude  float64
	Longitude float64
	RadiusKm  float64
	Limit     int
	Token     string
}

// SearchResult pairs an encounter with its distance from the query point.
type SearchResult struct {
	Encounter      *encounter.Encounter
	DistanceMeters float64
}

// SearchResponse is one page of nearby encounters, ordered nearest first.
type SearchResponse struct {
	Results   []SearchResult
	Count     int
	NextToken string
}

// Search finds approved and enhanced encounters within the radius of the
// query point. The geohash index narrows the scan to the cell covering the
// radius plus its neighbors; exact distances filter and order the page.
func (s *Service) Search(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	if !geo.ValidCoordinates(req.Latitude, req.Longitude) {
		return nil, services.Wrap(services.ErrValidation, "api", "search", "coordinates are out of range", nil)
	}
	if req.RadiusKm <= 0 {
		return nil, services.Wrap(services.ErrValidation, "api", "search", "radius must be positive", nil)
	}
	after, hasCursor, err := decodeSearchToken(req.Token)
	if err != nil {
		return nil, err
	}
	limit := s.clampLimit(req.Limit)

	precision := geo.RadiusToPrecision(req.RadiusKm)
	if precision > s.geohashPrecision {
		precision = s.geohashPrecision
	}
	center, err := geo.EncodeGeohash(req.Latitude, req.Longitude, precision)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "api", "search", "coordinates could not be indexed", err)
	}
	neighbors, err := geo.Neighbors(center)
	if err != nil {
		return nil, services.Wrap(services.ErrInternal, "api", "search", "neighbor lookup failed", err)
	}
	prefixes := append([]string{center}, neighbors...)

	candidates, err := s.store.ListByGeohashPrefixes(ctx, prefixes,
		encounter.StatusApproved, encounter.StatusEnhanced)
	if err != nil {
		return nil, err
	}

	radiusMeters := req.RadiusKm * 1000
	matches := make([]SearchResult, 0, len(candidates))
	for _, enc := range candidates {
		distance := geo.DistanceMeters(req.Latitude, req.Longitude, enc.Latitude, enc.Longitude)
		if distance > radiusMeters {
			continue
		}
		matches = append(matches, SearchResult{Encounter: enc, DistanceMeters: distance})
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].DistanceMeters != matches[j].DistanceMeters {
			return matches[i].DistanceMeters < matches[j].DistanceMeters
		}
		return matches[i].Encounter.ID < matches[j].Encounter.ID
	})

	if hasCursor {
		matches = skipSeen(matches, after)
	}

	resp := &SearchResponse{Results: matches}
	if len(matches) > limit {
		resp.Results = matches[:limit]
		last := resp.Results[limit-1]
		resp.NextToken = encodeSearchToken(last.DistanceMeters, last.Encounter.ID)
	}
	resp.Count = len(resp.Results)
	return resp, nil
}

// skipSeen drops every result at or before the cursor position in the
// (distance, id) ordering. Distances are compared at token precision so the
// boundary row is neither repeated nor lost.
func skipSeen(matches []SearchResult, after searchCursor) []SearchResult {
	for i, match := range matches {
		distance := roundTokenDistance(match.DistanceMeters)
		if distance > after.DistanceMeters {
			return matches[i:]
		}
		if distance == after.DistanceMeters && match.Encounter.ID > after.ID {
			return matches[i:]
		}
	}
	return nil
}
