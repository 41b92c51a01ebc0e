package database

import (
	"errors"
	"strings"
	"time"
)

var (
	// ErrDuplicateMember is returned by Enroll when the member ID is taken.
	ErrDuplicateMember = errors.New("duplicate member")
	// ErrNotFound is returned when a member or event does not exist.
	ErrNotFound = errors.New("not found")
	// ErrLabNotFound is returned when a referenced lab does not exist.
	ErrLabNotFound = errors.New("lab not found")
)

// Lab is an access scope. Building and room identify it physically.
type Lab struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Building  string    `json:"building"`
	Room      string    `json:"room"`
	CreatedAt time.Time `json:"created_at"`
}

// Template is an enrolled lab member together with the stored canonical face.
// Embeddings are never stored here; they are derived from Face on demand.
type Template struct {
	MemberID  int64     `json:"member_id"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	LabID     int64     `json:"lab_id"`
	Face      []byte    `json:"-"`
	FaceHash  string    `json:"face_hash"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DisplayName returns "First Last".
func (t Template) DisplayName() string {
	return strings.TrimSpace(t.FirstName + " " + t.LastName)
}

// NewTemplate is the input to Enroll. MemberID 0 lets the store assign one.
type NewTemplate struct {
	MemberID  int64
	FirstName string
	LastName  string
	LabID     int64
	Face      []byte
}

// MemberUpdate changes the editable member fields. Nil fields are left as is.
type MemberUpdate struct {
	FirstName *string `json:"first_name,omitempty"`
	LastName  *string `json:"last_name,omitempty"`
	LabID     *int64  `json:"lab_id,omitempty"`
}

// Decision values recorded on access events.
const (
	DecisionGranted = "granted"
	DecisionDenied  = "denied"
)

// AccessEvent is one immutable audit record per scan.
type AccessEvent struct {
	ID         string    `json:"id"`
	MemberID   *int64    `json:"member_id,omitempty"`
	LabID      int64     `json:"lab_id"`
	OccurredAt time.Time `json:"occurred_at"`
	Decision   string    `json:"decision"`
	Reason     string    `json:"reason"`
	Distance   *float64  `json:"distance,omitempty"`
}

// EventFilter narrows ListEvents. Zero values mean "any".
type EventFilter struct {
	LabID    int64
	MemberID int64
	Limit    int
}

// CachedEmbedding is a derived embedding keyed by the stored face hash.
type CachedEmbedding struct {
	FaceHash  string
	Model     string
	Embedding []float32
}
