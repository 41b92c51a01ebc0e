package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/kozaktomas/lab-access/internal/database"
)

// CreateLab inserts a lab and returns it with its assigned ID.
func (s *Store) CreateLab(ctx context.Context, lab database.Lab) (*database.Lab, error) {
	lab.CreatedAt = fromUnix(toUnix(time.Now()))
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO labs (name, building, room, created_at) VALUES (?, ?, ?, ?)`,
		lab.Name, lab.Building, lab.Room, toUnix(lab.CreatedAt))
	if err != nil {
		return nil, fmt.Errorf("insert lab: %w", err)
	}
	lab.ID, err = res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("lab id: %w", err)
	}
	return &lab, nil
}

// GetLab returns a lab by ID.
func (s *Store) GetLab(ctx context.Context, labID int64) (*database.Lab, error) {
	var lab database.Lab
	var created int64
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, building, room, created_at FROM labs WHERE id = ?`, labID).
		Scan(&lab.ID, &lab.Name, &lab.Building, &lab.Room, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("lab %d: %w", labID, database.ErrLabNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get lab: %w", err)
	}
	lab.CreatedAt = fromUnix(created)
	return &lab, nil
}

// ListLabs returns all labs ordered by ID.
func (s *Store) ListLabs(ctx context.Context) ([]database.Lab, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, building, room, created_at FROM labs ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query labs: %w", err)
	}
	defer rows.Close()

	var labs []database.Lab
	for rows.Next() {
		var lab database.Lab
		var created int64
		if err := rows.Scan(&lab.ID, &lab.Name, &lab.Building, &lab.Room, &created); err != nil {
			return nil, fmt.Errorf("scan lab: %w", err)
		}
		lab.CreatedAt = fromUnix(created)
		labs = append(labs, lab)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate labs: %w", err)
	}
	return labs, nil
}
