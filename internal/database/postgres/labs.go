package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/kozaktomas/lab-access/internal/database"
)

// LabRepository provides PostgreSQL-backed lab storage.
type LabRepository struct {
	pool *Pool
}

// NewLabRepository creates a new PostgreSQL lab repository.
func NewLabRepository(pool *Pool) *LabRepository {
	return &LabRepository{pool: pool}
}

// CreateLab inserts a lab and returns it with its assigned ID.
func (r *LabRepository) CreateLab(ctx context.Context, lab database.Lab) (*database.Lab, error) {
	err := r.pool.db.QueryRowContext(ctx,
		`INSERT INTO labs (name, building, room) VALUES ($1, $2, $3) RETURNING id, created_at`,
		lab.Name, lab.Building, lab.Room,
	).Scan(&lab.ID, &lab.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert lab: %w", err)
	}
	return &lab, nil
}

// GetLab returns a lab by ID.
func (r *LabRepository) GetLab(ctx context.Context, labID int64) (*database.Lab, error) {
	var lab database.Lab
	err := r.pool.db.QueryRowContext(ctx,
		`SELECT id, name, building, room, created_at FROM labs WHERE id = $1`, labID,
	).Scan(&lab.ID, &lab.Name, &lab.Building, &lab.Room, &lab.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("lab %d: %w", labID, database.ErrLabNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get lab: %w", err)
	}
	return &lab, nil
}

// ListLabs returns all labs ordered by ID.
func (r *LabRepository) ListLabs(ctx context.Context) ([]database.Lab, error) {
	rows, err := r.pool.db.QueryContext(ctx, `SELECT id, name, building, room, created_at FROM labs ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query labs: %w", err)
	}
	defer rows.Close()

	var labs []database.Lab
	for rows.Next() {
		var lab database.Lab
		if err := rows.Scan(&lab.ID, &lab.Name, &lab.Building, &lab.Room, &lab.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan lab: %w", err)
		}
		labs = append(labs, lab)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate labs: %w", err)
	}
	return labs, nil
}
