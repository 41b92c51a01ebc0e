package dbx

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"

	"github.com/kozaktomas/lab-access/internal/logger"
	"go.uber.org/zap"
)

// Migrations applies embedded *.sql files in lexical order, recording each
// applied file in schema_migrations. Every file runs in its own transaction.
type Migrations struct {
	Backend   string
	FS        fs.FS
	Dir       string
	CreateSQL string // creates schema_migrations if missing
	RecordSQL string // inserts one version, single placeholder
}

// Applied returns the recorded versions in order.
func (m Migrations) Applied(ctx context.Context, db *sql.DB) ([]string, error) {
	if _, err := db.ExecContext(ctx, m.CreateSQL); err != nil {
		return nil, fmt.Errorf("create migrations table: %w", err)
	}

	rows, err := db.QueryContext(ctx, "SELECT version FROM schema_migrations ORDER BY version")
	if err != nil {
		return nil, fmt.Errorf("query applied migrations: %w", err)
	}
	defer rows.Close()

	var versions []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan migration version: %w", err)
		}
		versions = append(versions, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate applied migrations: %w", err)
	}
	return versions, nil
}

// pending returns sorted migration file names not yet applied.
func (m Migrations) pending(applied []string) ([]string, error) {
	done := make(map[string]bool, len(applied))
	for _, v := range applied {
		done[v] = true
	}

	entries, err := fs.ReadDir(m.FS, m.Dir)
	if err != nil {
		return nil, fmt.Errorf("read migrations directory: %w", err)
	}
	var files []string
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".sql") && !done[e.Name()] {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)
	return files, nil
}

// Apply runs all pending migrations and returns the names it applied.
func (m Migrations) Apply(ctx context.Context, db *sql.DB) ([]string, error) {
	applied, err := m.Applied(ctx, db)
	if err != nil {
		return nil, err
	}
	files, err := m.pending(applied)
	if err != nil {
		return nil, err
	}

	for _, file := range files {
		content, err := fs.ReadFile(m.FS, path.Join(m.Dir, file))
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", file, err)
		}

		err = WithTx(ctx, db, nil, func(ctx context.Context, tx DBTX) error {
			if _, err := tx.ExecContext(ctx, string(content)); err != nil {
				return fmt.Errorf("execute migration %s: %w", file, err)
			}
			if _, err := tx.ExecContext(ctx, m.RecordSQL, file); err != nil {
				return fmt.Errorf("record migration %s: %w", file, err)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
		logger.Info("applied migration", zap.String("backend", m.Backend), zap.String("file", file))
	}
	return files, nil
}
