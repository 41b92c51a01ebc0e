package database

import (
	"context"
)

// TemplateReader provides read-only access to enrolled templates
type TemplateReader interface {
	// Get returns a template by member ID, or ErrNotFound
	Get(ctx context.Context, memberID int64) (*Template, error)
	// ListByLab returns exactly the templates whose LabID equals labID
	ListByLab(ctx context.Context, labID int64) ([]Template, error)
	// List returns every template
	List(ctx context.Context) ([]Template, error)
	// FindByName returns templates whose name matches query, ignoring case and diacritics
	FindByName(ctx context.Context, query string) ([]Template, error)
	// Count returns the number of enrolled members
	Count(ctx context.Context) (int, error)
}

// TemplateWriter provides write access to the roster
type TemplateWriter interface {
	TemplateReader

	// Enroll persists a new template atomically. Fails with ErrDuplicateMember
	// when the member ID exists and ErrLabNotFound when the lab does not.
	Enroll(ctx context.Context, t NewTemplate) (*Template, error)
	// Update changes names or lab. The stored face is never modified.
	Update(ctx context.Context, memberID int64, u MemberUpdate) (*Template, error)
	// Remove deletes a template. Removing an absent member is a no-op.
	Remove(ctx context.Context, memberID int64) error
}

// LabReader provides read-only access to labs
type LabReader interface {
	GetLab(ctx context.Context, labID int64) (*Lab, error)
	ListLabs(ctx context.Context) ([]Lab, error)
}

// LabWriter provides write access to labs
type LabWriter interface {
	LabReader

	CreateLab(ctx context.Context, lab Lab) (*Lab, error)
}

// EventWriter appends access events. Events are never updated or deleted.
type EventWriter interface {
	RecordEvent(ctx context.Context, e AccessEvent) error
}

// EventReader reads the audit trail
type EventReader interface {
	// ListEvents returns events newest first
	ListEvents(ctx context.Context, f EventFilter) ([]AccessEvent, error)
	// CountGranted returns how many granted events a member has in a lab
	CountGranted(ctx context.Context, labID, memberID int64) (int, error)
}

// EmbeddingCacheStore persists derived embeddings keyed by face hash and model
type EmbeddingCacheStore interface {
	GetEmbedding(ctx context.Context, faceHash, model string) ([]float32, error)
	SaveEmbedding(ctx context.Context, e CachedEmbedding) error
}

// Store is the full persistence surface of a backend.
type Store interface {
	TemplateWriter
	LabWriter
	EventWriter
	EventReader
	Close() error
}
