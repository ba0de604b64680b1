// Package geo provides the geospatial primitives used across submission,
// search, and verification: coordinate validation, Haversine distance,
// geohash encoding/decoding, and radius-to-precision selection for index
// scans. Geohash prefixes choose scan granularity only; inclusion is always
// re-checked with exact distance.
package geo
