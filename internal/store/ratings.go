package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"spectral/internal/encounter"
	"spectral/internal/services"
)

// AddRating records a device's rating and folds it into the encounter's
// aggregate in one transaction. A second rating from the same device fails
// with services.ErrAlreadyExists and leaves the aggregate untouched.
func (s *Store) AddRating(ctx context.Context, rating *encounter.Rating) error {
	if rating == nil {
		return errors.New("rating is nil")
	}
	if rating.CreatedAt.IsZero() {
		rating.CreatedAt = time.Now().UTC()
	}

	ctx = ensureContext(ctx)
	return retryOnBusy(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin rating tx: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		_, err = tx.ExecContext(
			ctx,
			`INSERT INTO ratings (encounter_id, device_id, rating, created_at) VALUES (?, ?, ?, ?)`,
			rating.EncounterID,
			rating.DeviceID,
			rating.Rating,
			formatTime(rating.CreatedAt),
		)
		if err != nil {
			if isConstraintViolation(err) {
				return services.Wrap(services.ErrAlreadyExists, "store", "add-rating", "device already rated this encounter", err)
			}
			return fmt.Errorf("insert rating: %w", err)
		}

		res, err := tx.ExecContext(
			ctx,
			`UPDATE encounters SET rating_total = rating_total + ?, rating_count = rating_count + 1, updated_at = ?
             WHERE id = ?`,
			rating.Rating,
			formatTime(time.Now()),
			rating.EncounterID,
		)
		if err != nil {
			return fmt.Errorf("apply rating aggregate: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		if affected == 0 {
			return services.Wrap(services.ErrNotFound, "store", "add-rating", "encounter not found", nil)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit rating: %w", err)
		}
		return nil
	})
}

// GetRating fetches a single device's rating for an encounter. Returns
// (nil, nil) when the device has not rated it.
func (s *Store) GetRating(ctx context.Context, encounterID, deviceID string) (*encounter.Rating, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT encounter_id, device_id, rating, created_at FROM ratings WHERE encounter_id = ? AND device_id = ?`,
		encounterID,
		deviceID,
	)
	var (
		rating     encounter.Rating
		createdRaw string
	)
	err := row.Scan(&rating.EncounterID, &rating.DeviceID, &rating.Rating, &createdRaw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get rating: %w", err)
	}
	if t, err := parseTimeString(createdRaw); err == nil {
		rating.CreatedAt = t
	}
	return &rating, nil
}
