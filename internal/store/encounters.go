package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"spectral/internal/encounter"
	"spectral/internal/services"
)

const encounterColumns = "id, title, author_name, device_id, latitude, longitude, address, geohash, " +
	"story, enhanced_story, encounter_time, public, uploaded_images, illustrations, narration_key, " +
	"rating_total, rating_count, spookiness_total, verification_count, comment_count, " +
	"status, error_message, created_at, updated_at"

// CreateEncounter inserts a new encounter. CreatedAt and UpdatedAt are set to
// the current time when zero.
func (s *Store) CreateEncounter(ctx context.Context, enc *encounter.Encounter) error {
	if enc == nil {
		return errors.New("encounter is nil")
	}
	now := time.Now().UTC()
	if enc.CreatedAt.IsZero() {
		enc.CreatedAt = now
	}
	if enc.UpdatedAt.IsZero() {
		enc.UpdatedAt = enc.CreatedAt
	}

	uploaded, err := marshalStringList(enc.UploadedImages)
	if err != nil {
		return fmt.Errorf("marshal uploaded images: %w", err)
	}
	illustrations, err := marshalStringList(enc.Illustrations)
	if err != nil {
		return fmt.Errorf("marshal illustrations: %w", err)
	}

	_, err = s.execWithRetry(
		ctx,
		`INSERT INTO encounters (
            id, title, author_name, device_id, latitude, longitude, address, geohash,
            story, enhanced_story, encounter_time, public, uploaded_images, illustrations, narration_key,
            rating_total, rating_count, spookiness_total, verification_count, comment_count,
            status, error_message, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		enc.ID,
		enc.Title,
		enc.AuthorName,
		enc.DeviceID,
		enc.Latitude,
		enc.Longitude,
		nullableString(enc.Address),
		enc.Geohash,
		enc.Story,
		nullableString(enc.EnhancedStory),
		formatTime(enc.EncounterTime),
		boolToInt(enc.Public),
		uploaded,
		illustrations,
		nullableString(enc.NarrationKey),
		enc.RatingTotal,
		enc.RatingCount,
		enc.SpookinessTotal,
		enc.VerificationCount,
		enc.CommentCount,
		enc.Status,
		nullableString(enc.ErrorMessage),
		formatTime(enc.CreatedAt),
		formatTime(enc.UpdatedAt),
	)
	if err != nil {
		if isConstraintViolation(err) {
			return services.Wrap(services.ErrAlreadyExists, "store", "create-encounter", "encounter id already exists", err)
		}
		return fmt.Errorf("insert encounter: %w", err)
	}
	return nil
}

// GetEncounter fetches an encounter by id. Returns (nil, nil) when absent.
func (s *Store) GetEncounter(ctx context.Context, id string) (*encounter.Encounter, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+encounterColumns+` FROM encounters WHERE id = ?`, id)
	enc, err := scanEncounter(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get encounter: %w", err)
	}
	return enc, nil
}

// Cursor addresses a position in the (created_at DESC, id DESC) ordering used
// by status listings. A zero Cursor means "from the newest".
type Cursor struct {
	CreatedAt time.Time
	ID        string
}

// IsZero reports whether the cursor addresses the start of the listing.
func (c Cursor) IsZero() bool {
	return c.CreatedAt.IsZero() && c.ID == ""
}

// ListByStatus returns up to limit encounters in the given status, newest
// first. A non-zero cursor resumes strictly after the addressed row.
func (s *Store) ListByStatus(ctx context.Context, status encounter.Status, limit int, after Cursor) ([]*encounter.Encounter, error) {
	if limit <= 0 {
		return nil, nil
	}

	query := `SELECT ` + encounterColumns + ` FROM encounters WHERE status = ?`
	args := []any{status}
	if !after.IsZero() {
		created := formatTime(after.CreatedAt)
		query += ` AND (created_at < ? OR (created_at = ? AND id < ?))`
		args = append(args, created, created, after.ID)
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list by status: %w", err)
	}
	defer rows.Close()

	var encounters []*encounter.Encounter
	for rows.Next() {
		enc, err := scanEncounter(rows)
		if err != nil {
			return nil, err
		}
		encounters = append(encounters, enc)
	}
	return encounters, rows.Err()
}

// ListByGeohashPrefixes returns encounters whose geohash starts with any of
// the given prefixes and whose status is in the given set. Callers filter the
// result by exact distance afterward.
func (s *Store) ListByGeohashPrefixes(ctx context.Context, prefixes []string, statuses ...encounter.Status) ([]*encounter.Encounter, error) {
	if len(prefixes) == 0 || len(statuses) == 0 {
		return nil, nil
	}

	args := make([]any, 0, len(statuses)+len(prefixes))
	for _, status := range statuses {
		args = append(args, status)
	}
	query := `SELECT ` + encounterColumns + ` FROM encounters WHERE status IN (` + makePlaceholders(len(statuses)) + `) AND (`
	for i, prefix := range prefixes {
		if i > 0 {
			query += ` OR `
		}
		query += `geohash LIKE ? || '%'`
		args = append(args, prefix)
	}
	query += `) ORDER BY created_at DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list by geohash: %w", err)
	}
	defer rows.Close()

	var encounters []*encounter.Encounter
	for rows.Next() {
		enc, err := scanEncounter(rows)
		if err != nil {
			return nil, err
		}
		encounters = append(encounters, enc)
	}
	return encounters, rows.Err()
}

// UpdateStatusIf moves an encounter to the given status only when its current
// status is one of from. Returns false when the row was missing or in another
// status, so callers can distinguish a lost race from success.
func (s *Store) UpdateStatusIf(ctx context.Context, id string, to encounter.Status, from ...encounter.Status) (bool, error) {
	if len(from) == 0 {
		return false, errors.New("no source statuses")
	}
	args := make([]any, 0, len(from)+3)
	args = append(args, to, formatTime(time.Now()), id)
	for _, status := range from {
		args = append(args, status)
	}
	res, err := s.execWithRetry(
		ctx,
		`UPDATE encounters SET status = ?, error_message = NULL, updated_at = ?
         WHERE id = ? AND status IN (`+makePlaceholders(len(from))+`)`,
		args...,
	)
	if err != nil {
		return false, fmt.Errorf("update status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// RejectEncounter moves a pending encounter to rejected and records the
// optional moderator reason. Returns false when the encounter was not pending.
func (s *Store) RejectEncounter(ctx context.Context, id, reason string) (bool, error) {
	res, err := s.execWithRetry(
		ctx,
		`UPDATE encounters SET status = ?, error_message = ?, updated_at = ?
         WHERE id = ? AND status = ?`,
		encounter.StatusRejected,
		nullableString(reason),
		formatTime(time.Now()),
		id,
		encounter.StatusPending,
	)
	if err != nil {
		return false, fmt.Errorf("reject encounter: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// PublishEnhancement atomically records the pipeline outputs and moves the
// encounter from enhancing to enhanced. Returns false when the encounter was
// not in enhancing.
func (s *Store) PublishEnhancement(ctx context.Context, id, enhancedStory string, illustrations []string, narrationKey string) (bool, error) {
	illustrationsJSON, err := marshalStringList(illustrations)
	if err != nil {
		return false, fmt.Errorf("marshal illustrations: %w", err)
	}
	res, err := s.execWithRetry(
		ctx,
		`UPDATE encounters
         SET status = ?, enhanced_story = ?, illustrations = ?, narration_key = ?,
             error_message = NULL, updated_at = ?
         WHERE id = ? AND status = ?`,
		encounter.StatusEnhanced,
		enhancedStory,
		illustrationsJSON,
		nullableString(narrationKey),
		formatTime(time.Now()),
		id,
		encounter.StatusEnhancing,
	)
	if err != nil {
		return false, fmt.Errorf("publish enhancement: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// MarkEnhancementFailed moves an enhancing encounter to enhancement_failed
// and records the failure reason.
func (s *Store) MarkEnhancementFailed(ctx context.Context, id, message string) (bool, error) {
	res, err := s.execWithRetry(
		ctx,
		`UPDATE encounters SET status = ?, error_message = ?, updated_at = ?
         WHERE id = ? AND status = ?`,
		encounter.StatusEnhancementFailed,
		nullableString(message),
		formatTime(time.Now()),
		id,
		encounter.StatusEnhancing,
	)
	if err != nil {
		return false, fmt.Errorf("mark enhancement failed: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// Stats returns a count of encounters grouped by status.
func (s *Store) Stats(ctx context.Context) (map[encounter.Status]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM encounters GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("encounter stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[encounter.Status]int)
	for rows.Next() {
		var status encounter.Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
	}
	return stats, rows.Err()
}

func scanEncounter(scanner interface{ Scan(dest ...any) error }) (*encounter.Encounter, error) {
	var (
		id                string
		title             string
		authorName        string
		deviceID          string
		latitude          float64
		longitude         float64
		address           sql.NullString
		geohash           string
		story             string
		enhancedStory     sql.NullString
		encounterTimeRaw  string
		public            int
		uploadedRaw       sql.NullString
		illustrationsRaw  sql.NullString
		narrationKey      sql.NullString
		ratingTotal       int
		ratingCount       int
		spookinessTotal   float64
		verificationCount int
		commentCount      int
		statusStr         string
		errorMessage      sql.NullString
		createdRaw        string
		updatedRaw        string
	)

	if err := scanner.Scan(
		&id,
		&title,
		&authorName,
		&deviceID,
		&latitude,
		&longitude,
		&address,
		&geohash,
		&story,
		&enhancedStory,
		&encounterTimeRaw,
		&public,
		&uploadedRaw,
		&illustrationsRaw,
		&narrationKey,
		&ratingTotal,
		&ratingCount,
		&spookinessTotal,
		&verificationCount,
		&commentCount,
		&statusStr,
		&errorMessage,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	enc := &encounter.Encounter{
		ID:                id,
		Title:             title,
		AuthorName:        authorName,
		DeviceID:          deviceID,
		Latitude:          latitude,
		Longitude:         longitude,
		Address:           address.String,
		Geohash:           geohash,
		Story:             story,
		EnhancedStory:     enhancedStory.String,
		Public:            public != 0,
		NarrationKey:      narrationKey.String,
		RatingTotal:       ratingTotal,
		RatingCount:       ratingCount,
		SpookinessTotal:   spookinessTotal,
		VerificationCount: verificationCount,
		CommentCount:      commentCount,
		Status:            encounter.Status(statusStr),
		ErrorMessage:      errorMessage.String,
	}

	var err error
	if enc.UploadedImages, err = unmarshalStringList(uploadedRaw.String); err != nil {
		return nil, fmt.Errorf("unmarshal uploaded images: %w", err)
	}
	if enc.Illustrations, err = unmarshalStringList(illustrationsRaw.String); err != nil {
		return nil, fmt.Errorf("unmarshal illustrations: %w", err)
	}

	if t, err := parseTimeString(encounterTimeRaw); err == nil {
		enc.EncounterTime = t
	}
	if t, err := parseTimeString(createdRaw); err == nil {
		enc.CreatedAt = t
	}
	if t, err := parseTimeString(updatedRaw); err == nil {
		enc.UpdatedAt = t
	}
	return enc, nil
}

func marshalStringList(values []string) (any, error) {
	if len(values) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(values)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func unmarshalStringList(raw string) ([]string, error) {
	if raw == "" {
		return nil, nil
	}
	var values []string
	if err := json.Unmarshal([]byte(raw), &values); err != nil {
		return nil, err
	}
	return values, nil
}
