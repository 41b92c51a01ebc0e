package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/kozaktomas/lab-access/internal/constants"
	"github.com/kozaktomas/lab-access/internal/database"
	"github.com/kozaktomas/lab-access/internal/database/dbx"
)

// EventRepository provides the append-only access event log.
type EventRepository struct {
	pool *Pool
}

// NewEventRepository creates a new PostgreSQL event repository.
func NewEventRepository(pool *Pool) *EventRepository {
	return &EventRepository{pool: pool}
}

// RecordEvent appends an access event.
func (r *EventRepository) RecordEvent(ctx context.Context, e database.AccessEvent) error {
	_, err := r.pool.db.ExecContext(ctx, `
		INSERT INTO access_events (id, member_id, lab_id, occurred_at, decision, reason, distance)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		e.ID, dbx.NullInt64(e.MemberID), e.LabID, e.OccurredAt, e.Decision, e.Reason, dbx.NullFloat64(e.Distance))
	if err != nil {
		return fmt.Errorf("insert access event: %w", err)
	}
	return nil
}

// ListEvents returns events newest first.
func (r *EventRepository) ListEvents(ctx context.Context, f database.EventFilter) ([]database.AccessEvent, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = constants.DefaultEventLimit
	}
	limit = min(limit, constants.MaxEventLimit)

	rows, err := r.pool.db.QueryContext(ctx, `
		SELECT id, member_id, lab_id, occurred_at, decision, reason, distance
		FROM access_events
		WHERE ($1::bigint = 0 OR lab_id = $1) AND ($2::bigint = 0 OR member_id = $2)
		ORDER BY occurred_at DESC, id DESC
		LIMIT $3`,
		f.LabID, f.MemberID, limit)
	if err != nil {
		return nil, fmt.Errorf("query access events: %w", err)
	}
	defer rows.Close()

	var events []database.AccessEvent
	for rows.Next() {
		var e database.AccessEvent
		var memberID sql.NullInt64
		var distance sql.NullFloat64
		if err := rows.Scan(&e.ID, &memberID, &e.LabID, &e.OccurredAt, &e.Decision, &e.Reason, &distance); err != nil {
			return nil, fmt.Errorf("scan access event: %w", err)
		}
		e.MemberID = dbx.Int64Ptr(memberID)
		e.Distance = dbx.Float64Ptr(distance)
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate access events: %w", err)
	}
	return events, nil
}

// CountGranted returns how many granted events a member has in a lab.
func (r *EventRepository) CountGranted(ctx context.Context, labID, memberID int64) (int, error) {
	var count int
	err := r.pool.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM access_events WHERE lab_id = $1 AND member_id = $2 AND decision = $3`,
		labID, memberID, database.DecisionGranted).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count granted events: %w", err)
	}
	return count, nil
}
