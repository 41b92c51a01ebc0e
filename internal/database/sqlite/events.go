package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/kozaktomas/lab-access/internal/constants"
	"github.com/kozaktomas/lab-access/internal/database"
	"github.com/kozaktomas/lab-access/internal/database/dbx"
)

// RecordEvent appends an access event.
func (s *Store) RecordEvent(ctx context.Context, e database.AccessEvent) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO access_events (id, member_id, lab_id, occurred_at, decision, reason, distance)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID, dbx.NullInt64(e.MemberID), e.LabID, toUnix(e.OccurredAt), e.Decision, e.Reason, dbx.NullFloat64(e.Distance))
	if err != nil {
		return fmt.Errorf("insert access event: %w", err)
	}
	return nil
}

// ListEvents returns events newest first.
func (s *Store) ListEvents(ctx context.Context, f database.EventFilter) ([]database.AccessEvent, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = constants.DefaultEventLimit
	}
	limit = min(limit, constants.MaxEventLimit)

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, member_id, lab_id, occurred_at, decision, reason, distance
		FROM access_events
		WHERE (? = 0 OR lab_id = ?) AND (? = 0 OR member_id = ?)
		ORDER BY occurred_at DESC, rowid DESC
		LIMIT ?`,
		f.LabID, f.LabID, f.MemberID, f.MemberID, limit)
	if err != nil {
		return nil, fmt.Errorf("query access events: %w", err)
	}
	defer rows.Close()

	var events []database.AccessEvent
	for rows.Next() {
		var e database.AccessEvent
		var memberID sql.NullInt64
		var distance sql.NullFloat64
		var occurred int64
		if err := rows.Scan(&e.ID, &memberID, &e.LabID, &occurred, &e.Decision, &e.Reason, &distance); err != nil {
			return nil, fmt.Errorf("scan access event: %w", err)
		}
		e.MemberID = dbx.Int64Ptr(memberID)
		e.Distance = dbx.Float64Ptr(distance)
		e.OccurredAt = fromUnix(occurred)
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate access events: %w", err)
	}
	return events, nil
}

// CountGranted returns how many granted events a member has in a lab.
func (s *Store) CountGranted(ctx context.Context, labID, memberID int64) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM access_events WHERE lab_id = ? AND member_id = ? AND decision = ?`,
		labID, memberID, database.DecisionGranted).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count granted events: %w", err)
	}
	return count, nil
}
