package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"spectral/internal/encounter"
	"spectral/internal/services"
)

// AddVerification appends an on-site verification and folds its spookiness
// score into the encounter's aggregate in one transaction.
func (s *Store) AddVerification(ctx context.Context, verification *encounter.Verification) error {
	if verification == nil {
		return errors.New("verification is nil")
	}
	if verification.CreatedAt.IsZero() {
		verification.CreatedAt = time.Now().UTC()
	}

	ctx = ensureContext(ctx)
	return retryOnBusy(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin verification tx: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		_, err = tx.ExecContext(
			ctx,
			`INSERT INTO verifications (
                id, encounter_id, latitude, longitude, spookiness, note, time_matched, distance_meters, created_at
            ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			verification.ID,
			verification.EncounterID,
			verification.Latitude,
			verification.Longitude,
			verification.Spookiness,
			nullableString(verification.Note),
			boolToInt(verification.TimeMatched),
			verification.DistanceMeters,
			formatTime(verification.CreatedAt),
		)
		if err != nil {
			if isConstraintViolation(err) {
				return services.Wrap(services.ErrAlreadyExists, "store", "add-verification", "verification id already exists", err)
			}
			return fmt.Errorf("insert verification: %w", err)
		}

		res, err := tx.ExecContext(
			ctx,
			`UPDATE encounters
             SET spookiness_total = spookiness_total + ?, verification_count = verification_count + 1, updated_at = ?
             WHERE id = ?`,
			verification.Spookiness,
			formatTime(time.Now()),
			verification.EncounterID,
		)
		if err != nil {
			return fmt.Errorf("apply verification aggregate: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		if affected == 0 {
			return services.Wrap(services.ErrNotFound, "store", "add-verification", "encounter not found", nil)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit verification: %w", err)
		}
		return nil
	})
}

// ListVerifications returns an encounter's verifications oldest first.
func (s *Store) ListVerifications(ctx context.Context, encounterID string) ([]*encounter.Verification, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, encounter_id, latitude, longitude, spookiness, note, time_matched, distance_meters, created_at
         FROM verifications WHERE encounter_id = ? ORDER BY created_at, id`,
		encounterID,
	)
	if err != nil {
		return nil, fmt.Errorf("list verifications: %w", err)
	}
	defer rows.Close()

	var verifications []*encounter.Verification
	for rows.Next() {
		var (
			v           encounter.Verification
			note        *string
			timeMatched int
			createdRaw  string
		)
		if err := rows.Scan(
			&v.ID,
			&v.EncounterID,
			&v.Latitude,
			&v.Longitude,
			&v.Spookiness,
			&note,
			&timeMatched,
			&v.DistanceMeters,
			&createdRaw,
		); err != nil {
			return nil, err
		}
		if note != nil {
			v.Note = *note
		}
		v.TimeMatched = timeMatched != 0
		if t, err := parseTimeString(createdRaw); err == nil {
			v.CreatedAt = t
		}
		verifications = append(verifications, &v)
	}
	return verifications, rows.Err()
}
