// Package store persists encounters, ratings, and verifications in SQLite.
// It exposes point lookups, the two secondary access paths used by the API
// ((status, created_at) and (geohash, status)), conditional status updates
// for state machine enforcement, and single-statement aggregate updates so
// rating and spookiness averages never race across read-modify-write cycles.
package store
