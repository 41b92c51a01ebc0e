package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/kozaktomas/lab-access/internal/database"
	"github.com/kozaktomas/lab-access/internal/database/dbx"
	"github.com/kozaktomas/lab-access/internal/facematch"
)

const templateColumns = `id, first_name, last_name, lab_id, face, face_hash, created_at, updated_at`

// TemplateRepository provides PostgreSQL-backed roster storage.
type TemplateRepository struct {
	pool *Pool
}

// NewTemplateRepository creates a new PostgreSQL template repository.
func NewTemplateRepository(pool *Pool) *TemplateRepository {
	return &TemplateRepository{pool: pool}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTemplate(row rowScanner) (*database.Template, error) {
	var t database.Template
	if err := row.Scan(&t.MemberID, &t.FirstName, &t.LastName, &t.LabID, &t.Face, &t.FaceHash, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
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

// Get returns a template by member ID.
func (r *TemplateRepository) Get(ctx context.Context, memberID int64) (*database.Template, error) {
	row := r.pool.db.QueryRowContext(ctx, `SELECT `+templateColumns+` FROM members WHERE id = $1`, memberID)
	t, err := scanTemplate(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("member %d: %w", memberID, database.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get member: %w", err)
	}
	return t, nil
}

// ListByLab returns the templates enrolled in one lab.
func (r *TemplateRepository) ListByLab(ctx context.Context, labID int64) ([]database.Template, error) {
	rows, err := r.pool.db.QueryContext(ctx, `SELECT `+templateColumns+` FROM members WHERE lab_id = $1 ORDER BY id`, labID)
	if err != nil {
		return nil, fmt.Errorf("query members by lab: %w", err)
	}
	return scanTemplates(rows)
}

// List returns every template.
func (r *TemplateRepository) List(ctx context.Context) ([]database.Template, error) {
	rows, err := r.pool.db.QueryContext(ctx, `SELECT `+templateColumns+` FROM members ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query members: %w", err)
	}
	return scanTemplates(rows)
}

// FindByName filters in Go (matches facematch.NameMatches on every backend).
func (r *TemplateRepository) FindByName(ctx context.Context, query string) ([]database.Template, error) {
	all, err := r.List(ctx)
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
func (r *TemplateRepository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.pool.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM members").Scan(&count); err != nil {
		return 0, fmt.Errorf("count members: %w", err)
	}
	return count, nil
}

// Enroll inserts a template. With an explicit member ID the insert is
// ON CONFLICT DO NOTHING and the id sequence is moved past it.
func (r *TemplateRepository) Enroll(ctx context.Context, nt database.NewTemplate) (*database.Template, error) {
	t := &database.Template{
		MemberID:  nt.MemberID,
		FirstName: nt.FirstName,
		LastName:  nt.LastName,
		LabID:     nt.LabID,
		Face:      nt.Face,
		FaceHash:  database.FaceHash(nt.Face),
	}

	err := dbx.WithTx(ctx, r.pool.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if nt.MemberID <= 0 {
			return tx.QueryRowContext(ctx, `
				INSERT INTO members (first_name, last_name, lab_id, face, face_hash)
				VALUES ($1, $2, $3, $4, $5)
				RETURNING id, created_at, updated_at`,
				t.FirstName, t.LastName, t.LabID, t.Face, t.FaceHash,
			).Scan(&t.MemberID, &t.CreatedAt, &t.UpdatedAt)
		}

		err := tx.QueryRowContext(ctx, `
			INSERT INTO members (id, first_name, last_name, lab_id, face, face_hash)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (id) DO NOTHING
			RETURNING id, created_at, updated_at`,
			t.MemberID, t.FirstName, t.LastName, t.LabID, t.Face, t.FaceHash,
		).Scan(&t.MemberID, &t.CreatedAt, &t.UpdatedAt)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("member %d: %w", nt.MemberID, database.ErrDuplicateMember)
		}
		if err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx,
			`SELECT setval(pg_get_serial_sequence('members', 'id'), GREATEST((SELECT MAX(id) FROM members), 1))`)
		return err
	})

	switch {
	case err == nil:
		return t, nil
	case errors.Is(err, database.ErrDuplicateMember):
		return nil, err
	case pqCode(err) == codeForeignKeyViolation:
		return nil, fmt.Errorf("lab %d: %w", nt.LabID, database.ErrLabNotFound)
	case pqCode(err) == codeUniqueViolation:
		return nil, fmt.Errorf("member %d: %w", nt.MemberID, database.ErrDuplicateMember)
	default:
		return nil, fmt.Errorf("insert member: %w", err)
	}
}

// Update changes the editable member fields. Nil fields keep their value.
func (r *TemplateRepository) Update(ctx context.Context, memberID int64, u database.MemberUpdate) (*database.Template, error) {
	row := r.pool.db.QueryRowContext(ctx, `
		UPDATE members SET
			first_name = COALESCE($2, first_name),
			last_name  = COALESCE($3, last_name),
			lab_id     = COALESCE($4, lab_id),
			updated_at = NOW()
		WHERE id = $1
		RETURNING `+templateColumns,
		memberID, u.FirstName, u.LastName, u.LabID)

	t, err := scanTemplate(row)
	switch {
	case err == nil:
		return t, nil
	case errors.Is(err, sql.ErrNoRows):
		return nil, fmt.Errorf("member %d: %w", memberID, database.ErrNotFound)
	case pqCode(err) == codeForeignKeyViolation && u.LabID != nil:
		return nil, fmt.Errorf("lab %d: %w", *u.LabID, database.ErrLabNotFound)
	default:
		return nil, fmt.Errorf("update member: %w", err)
	}
}

// Remove deletes a member. Removing an absent member is a no-op.
func (r *TemplateRepository) Remove(ctx context.Context, memberID int64) error {
	if _, err := r.pool.db.ExecContext(ctx, "DELETE FROM members WHERE id = $1", memberID); err != nil {
		return fmt.Errorf("delete member: %w", err)
	}
	return nil
}
