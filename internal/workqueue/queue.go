// Package workqueue implements the at-least-once delivery queue feeding the
// enhancement orchestrator. Messages are leased with a visibility timeout
// rather than removed on receive, so a crashed worker's message becomes
// deliverable again once its lease lapses. Messages that keep failing move to
// a dead state instead of cycling forever.
package workqueue

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// State describes where a message is in its delivery lifecycle.
type State string

const (
	StateReady  State = "ready"
	StateLeased State = "leased"
	StateDead   State = "dead"
)

// EnhancementMessage is the payload carried per enqueued encounter. It holds
// everything the pipeline needs so stages do not re-read the encounter row.
type EnhancementMessage struct {
	EncounterID   string    `json:"encounter_id"`
	Story         string    `json:"story"`
	Latitude      float64   `json:"latitude"`
	Longitude     float64   `json:"longitude"`
	Address       string    `json:"address,omitempty"`
	EncounterTime time.Time `json:"encounter_time"`
}

// Message is a leased queue entry.
type Message struct {
	ID            int64
	Payload       EnhancementMessage
	State         State
	DeliveryCount int
	LeasedUntil   time.Time
	LastError     string
	CreatedAt     time.Time
}

// Stats summarizes queue depth per state.
type Stats struct {
	Ready  int
	Leased int
	Dead   int
}

// Options tunes lease duration and redelivery limits.
type Options struct {
	// VisibilityTimeout is how long a received message stays invisible
	// before it is considered abandoned.
	VisibilityTimeout time.Duration
	// MaxDeliveries is the delivery count at which a failing message is
	// dead-lettered instead of released for another attempt.
	MaxDeliveries int
}

// Queue is a SQLite-backed work queue sharing the encounter database.
type Queue struct {
	db   *sql.DB
	opts Options
}

// timeFormat pads the fraction to nine digits so the stored strings order
// lexically the same as the instants they encode; RFC3339Nano drops trailing
// zeros, which made a whole-second lease expiry sort after fractional
// timestamps in the same second.
const timeFormat = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeFormat)
}

const queueSchema = `
CREATE TABLE IF NOT EXISTS enhancement_jobs (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    encounter_id TEXT NOT NULL,
    payload TEXT NOT NULL,
    state TEXT NOT NULL DEFAULT 'ready',
    delivery_count INTEGER NOT NULL DEFAULT 0,
    leased_until TEXT,
    last_error TEXT,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_enhancement_jobs_state ON enhancement_jobs (state, id);
`

// New prepares the queue table on the given database connection.
func New(db *sql.DB, opts Options) (*Queue, error) {
	if db == nil {
		return nil, errors.New("db is nil")
	}
	if opts.VisibilityTimeout <= 0 {
		return nil, errors.New("visibility timeout must be positive")
	}
	if opts.MaxDeliveries <= 0 {
		return nil, errors.New("max deliveries must be positive")
	}
	if _, err := db.Exec(queueSchema); err != nil {
		return nil, fmt.Errorf("create queue schema: %w", err)
	}
	return &Queue{db: db, opts: opts}, nil
}

// Enqueue adds a message in the ready state and returns its id.
func (q *Queue) Enqueue(ctx context.Context, msg EnhancementMessage) (int64, error) {
	if msg.EncounterID == "" {
		return 0, errors.New("encounter id is empty")
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return 0, fmt.Errorf("marshal payload: %w", err)
	}
	now := formatTime(time.Now())
	res, err := q.db.ExecContext(
		ctx,
		`INSERT INTO enhancement_jobs (encounter_id, payload, state, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?)`,
		msg.EncounterID,
		string(payload),
		StateReady,
		now,
		now,
	)
	if err != nil {
		return 0, fmt.Errorf("enqueue: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}
	return id, nil
}

// Receive leases the oldest ready message for the visibility timeout and
// increments its delivery count. Returns (nil, nil) when the queue is empty.
// The lease is taken by a conditional update so concurrent receivers never
// double-lease a message.
func (q *Queue) Receive(ctx context.Context) (*Message, error) {
	for {
		var id int64
		err := q.db.QueryRowContext(
			ctx,
			`SELECT id FROM enhancement_jobs WHERE state = ? ORDER BY id LIMIT 1`,
			StateReady,
		).Scan(&id)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("find ready message: %w", err)
		}

		now := time.Now().UTC()
		res, err := q.db.ExecContext(
			ctx,
			`UPDATE enhancement_jobs
             SET state = ?, leased_until = ?, delivery_count = delivery_count + 1, updated_at = ?
             WHERE id = ? AND state = ?`,
			StateLeased,
			formatTime(now.Add(q.opts.VisibilityTimeout)),
			formatTime(now),
			id,
			StateReady,
		)
		if err != nil {
			return nil, fmt.Errorf("lease message: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return nil, fmt.Errorf("rows affected: %w", err)
		}
		if affected == 0 {
			// Another receiver took it first. Try the next candidate.
			continue
		}
		return q.getMessage(ctx, id)
	}
}

// Ack removes a delivered message.
func (q *Queue) Ack(ctx context.Context, id int64) error {
	res, err := q.db.ExecContext(ctx, `DELETE FROM enhancement_jobs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("ack message: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("ack message %d: not found", id)
	}
	return nil
}

// Fail releases a leased message for redelivery, recording the reason. A
// message that has reached the delivery limit is dead-lettered instead.
func (q *Queue) Fail(ctx context.Context, id int64, reason string) error {
	now := formatTime(time.Now())

	var deliveries int
	err := q.db.QueryRowContext(ctx, `SELECT delivery_count FROM enhancement_jobs WHERE id = ?`, id).Scan(&deliveries)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("fail message %d: not found", id)
	}
	if err != nil {
		return fmt.Errorf("read delivery count: %w", err)
	}

	next := StateReady
	if deliveries >= q.opts.MaxDeliveries {
		next = StateDead
	}
	_, err = q.db.ExecContext(
		ctx,
		`UPDATE enhancement_jobs SET state = ?, leased_until = NULL, last_error = ?, updated_at = ? WHERE id = ?`,
		next,
		reason,
		now,
		id,
	)
	if err != nil {
		return fmt.Errorf("fail message: %w", err)
	}
	return nil
}

// ReclaimExpired releases leased messages whose lease has lapsed, making them
// deliverable again. Returns the number of messages reclaimed. Reclaimed
// messages keep their delivery count so repeated crashes still dead-letter.
func (q *Queue) ReclaimExpired(ctx context.Context) (int64, error) {
	now := formatTime(time.Now())
	res, err := q.db.ExecContext(
		ctx,
		`UPDATE enhancement_jobs SET state = ?, leased_until = NULL, updated_at = ?
         WHERE state = ? AND leased_until IS NOT NULL AND leased_until < ?`,
		StateReady,
		now,
		StateLeased,
		now,
	)
	if err != nil {
		return 0, fmt.Errorf("reclaim expired leases: %w", err)
	}
	return res.RowsAffected()
}

// Stats returns queue depth per state.
func (q *Queue) Stats(ctx context.Context) (Stats, error) {
	rows, err := q.db.QueryContext(ctx, `SELECT state, COUNT(1) FROM enhancement_jobs GROUP BY state`)
	if err != nil {
		return Stats{}, fmt.Errorf("queue stats: %w", err)
	}
	defer rows.Close()

	var stats Stats
	for rows.Next() {
		var state State
		var count int
		if err := rows.Scan(&state, &count); err != nil {
			return Stats{}, err
		}
		switch state {
		case StateReady:
			stats.Ready = count
		case StateLeased:
			stats.Leased = count
		case StateDead:
			stats.Dead = count
		}
	}
	return stats, rows.Err()
}

// List returns up to limit messages in any state, oldest first, for operator
// inspection.
func (q *Queue) List(ctx context.Context, limit int) ([]*Message, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := q.db.QueryContext(
		ctx,
		`SELECT id, payload, state, delivery_count, leased_until, last_error, created_at
         FROM enhancement_jobs ORDER BY id LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var messages []*Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

// Dead returns dead-lettered messages oldest first, for operator inspection.
func (q *Queue) Dead(ctx context.Context) ([]*Message, error) {
	rows, err := q.db.QueryContext(
		ctx,
		`SELECT id, payload, state, delivery_count, leased_until, last_error, created_at
         FROM enhancement_jobs WHERE state = ? ORDER BY id`,
		StateDead,
	)
	if err != nil {
		return nil, fmt.Errorf("list dead messages: %w", err)
	}
	defer rows.Close()

	var messages []*Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

// RetryDead returns dead-lettered messages to ready with a fresh delivery
// budget. With no ids every dead message is retried. Returns the number of
// messages revived.
func (q *Queue) RetryDead(ctx context.Context, ids ...int64) (int64, error) {
	now := formatTime(time.Now())
	query := `UPDATE enhancement_jobs
         SET state = ?, delivery_count = 0, leased_until = NULL, last_error = NULL, updated_at = ?
         WHERE state = ?`
	args := []any{StateReady, now, StateDead}
	if len(ids) > 0 {
		placeholders := make([]string, len(ids))
		for i, id := range ids {
			placeholders[i] = "?"
			args = append(args, id)
		}
		query += ` AND id IN (` + strings.Join(placeholders, ", ") + `)`
	}
	res, err := q.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("retry dead messages: %w", err)
	}
	return res.RowsAffected()
}

// ClearDead deletes all dead-lettered messages. Returns the number removed.
func (q *Queue) ClearDead(ctx context.Context) (int64, error) {
	res, err := q.db.ExecContext(ctx, `DELETE FROM enhancement_jobs WHERE state = ?`, StateDead)
	if err != nil {
		return 0, fmt.Errorf("clear dead messages: %w", err)
	}
	return res.RowsAffected()
}

func (q *Queue) getMessage(ctx context.Context, id int64) (*Message, error) {
	row := q.db.QueryRowContext(
		ctx,
		`SELECT id, payload, state, delivery_count, leased_until, last_error, created_at
         FROM enhancement_jobs WHERE id = ?`,
		id,
	)
	msg, err := scanMessage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("message %d vanished after lease", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get message: %w", err)
	}
	return msg, nil
}

func scanMessage(scanner interface{ Scan(dest ...any) error }) (*Message, error) {
	var (
		msg        Message
		payloadRaw string
		stateStr   string
		leasedRaw  sql.NullString
		lastError  sql.NullString
		createdRaw string
	)
	if err := scanner.Scan(&msg.ID, &payloadRaw, &stateStr, &msg.DeliveryCount, &leasedRaw, &lastError, &createdRaw); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(payloadRaw), &msg.Payload); err != nil {
		return nil, fmt.Errorf("unmarshal payload: %w", err)
	}
	msg.State = State(stateStr)
	msg.LastError = lastError.String
	if leasedRaw.Valid {
		if t, err := time.Parse(time.RFC3339Nano, leasedRaw.String); err == nil {
			msg.LeasedUntil = t
		}
	}
	if t, err := time.Parse(time.RFC3339Nano, createdRaw); err == nil {
		msg.CreatedAt = t
	}
	return &msg, nil
}
