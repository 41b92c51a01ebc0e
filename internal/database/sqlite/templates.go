package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/kozaktomas/lab-access/internal/database"
	"github.com/kozaktomas/lab-access/internal/database/dbx"
	"github.com/kozaktomas/lab-access/internal/facematch"
)

const templateColumns = `id, first_name, last_name, lab_id, face, face_hash, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTemplate(row rowScanner) (*database.Template, error) {
	var t database.Template
	var created, updated int64
	if err := row.Scan(&t.MemberID, &t.FirstName, &t.LastName, &t.LabID, &t.Face, &t.FaceHash, &created, &updated); err != nil {
		return nil, err
	}
	t.CreatedAt = fromUnix(created)
	t.UpdatedAt = fromUnix(updated)
	return &t, nil
}

func scanTemplates(rows *sql.Rows) ([]database.Template, error) {
	defer rows.Close()
	var out []database.Template
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, fmt.Errorf("scan template: %w", err)
		}
		out = append(out, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate templates: %w", err)
	}
	return out, nil
}

func getTemplate(ctx context.Context, q dbx.DBTX, memberID int64) (*database.Template, error) {
	row := q.QueryRowContext(ctx, `SELECT `+templateColumns+` FROM members WHERE id = ?`, memberID)
	t, err := scanTemplate(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("member %d: %w", memberID, database.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get member: %w", err)
	}
	return t, nil
}

func labExists(ctx context.Context, q dbx.DBTX, labID int64) (bool, error) {
	var exists bool
	if err := q.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM labs WHERE id = ?)`, labID).Scan(&exists); err != nil {
		return false, fmt.Errorf("check lab exists: %w", err)
	}
	return exists, nil
}

// Get returns a template by member ID.
func (s *Store) Get(ctx context.Context, memberID int64) (*database.Template, error) {
	return getTemplate(ctx, s.db, memberID)
}

// ListByLab returns the templates enrolled in one lab.
func (s *Store) ListByLab(ctx context.Context, labID int64) ([]database.Template, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+templateColumns+` FROM members WHERE lab_id = ? ORDER BY id`, labID)
	if err != nil {
		return nil, fmt.Errorf("query members by lab: %w", err)
	}
	return scanTemplates(rows)
}

// List returns every template.
func (s *Store) List(ctx context.Context) ([]database.Template, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+templateColumns+` FROM members ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query members: %w", err)
	}
	return scanTemplates(rows)
}

// FindByName matches names in Go so diacritics are handled the same on every backend.
func (s *Store) FindByName(ctx context.Context, query string) ([]database.Template, error) {
	all, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	var out []database.Template
	for _, t := range all {
		if facematch.NameMatches(query, t.FirstName, t.LastName) {
			out = append(out, t)
		}
	}
	return out, nil
}

// Count returns the number of enrolled members.
func (s *Store) Count(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM members`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count members: %w", err)
	}
	return count, nil
}

// Enroll inserts a template in a single transaction.
func (s *Store) Enroll(ctx context.Context, nt database.NewTemplate) (*database.Template, error) {
	now := time.Now()
	hash := database.FaceHash(nt.Face)
	var memberID int64

	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		ok, err := labExists(ctx, tx, nt.LabID)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("lab %d: %w", nt.LabID, database.ErrLabNotFound)
		}

		if nt.MemberID > 0 {
			var taken bool
			if err := tx.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM members WHERE id = ?)`, nt.MemberID).Scan(&taken); err != nil {
				return fmt.Errorf("check member exists: %w", err)
			}
			if taken {
				return fmt.Errorf("member %d: %w", nt.MemberID, database.ErrDuplicateMember)
			}
		}

		var id any
		if nt.MemberID > 0 {
			id = nt.MemberID
		}
		res, err := tx.ExecContext(ctx, `
			INSERT INTO members (id, first_name, last_name, lab_id, face, face_hash, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			id, nt.FirstName, nt.LastName, nt.LabID, nt.Face, hash, toUnix(now), toUnix(now))
		if err != nil {
			return fmt.Errorf("insert member: %w", err)
		}
		memberID, err = res.LastInsertId()
		if err != nil {
			return fmt.Errorf("member id: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &database.Template{
		MemberID:  memberID,
		FirstName: nt.FirstName,
		LastName:  nt.LastName,
		LabID:     nt.LabID,
		Face:      nt.Face,
		FaceHash:  hash,
		CreatedAt: fromUnix(toUnix(now)),
		UpdatedAt: fromUnix(toUnix(now)),
	}, nil
}

// Update changes the editable member fields.
func (s *Store) Update(ctx context.Context, memberID int64, u database.MemberUpdate) (*database.Template, error) {
	var updated *database.Template
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		t, err := getTemplate(ctx, tx, memberID)
		if err != nil {
			return err
		}
		if u.FirstName != nil {
			t.FirstName = *u.FirstName
		}
		if u.LastName != nil {
			t.LastName = *u.LastName
		}
		if u.LabID != nil && *u.LabID != t.LabID {
			ok, err := labExists(ctx, tx, *u.LabID)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("lab %d: %w", *u.LabID, database.ErrLabNotFound)
			}
			t.LabID = *u.LabID
		}
		t.UpdatedAt = fromUnix(toUnix(time.Now()))

		if _, err := tx.ExecContext(ctx,
			`UPDATE members SET first_name = ?, last_name = ?, lab_id = ?, updated_at = ? WHERE id = ?`,
			t.FirstName, t.LastName, t.LabID, toUnix(t.UpdatedAt), memberID); err != nil {
			return fmt.Errorf("update member: %w", err)
		}
		updated = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Remove deletes a member. Removing an absent member is a no-op.
func (s *Store) Remove(ctx context.Context, memberID int64) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM members WHERE id = ?`, memberID); err != nil {
		return fmt.Errorf("delete member: %w", err)
	}
	return nil
}
