// Package mock provides mock implementations of database interfaces for testing.
package mock

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/kozaktomas/lab-access/internal/constants"
	"github.com/kozaktomas/lab-access/internal/database"
	"github.com/kozaktomas/lab-access/internal/facematch"
)

// MockStore is an in-memory implementation of database.Store
type MockStore struct {
	mu      sync.RWMutex
	labs    map[int64]*database.Lab
	members map[int64]*database.Template
	events  []database.AccessEvent
	nextLab int64
	nextID  int64
	closed  bool

	// Now is used for timestamps; defaults to time.Now
	Now func() time.Time

	// Error injection
	GetError        error
	ListError       error
	EnrollError     error
	UpdateError     error
	RemoveError     error
	LabError        error
	RecordError     error
	ListEventsError error
	CountGrantedErr error
}

var _ database.Store = (*MockStore)(nil)

// NewMockStore creates a new empty mock store
func NewMockStore() *MockStore {
	return &MockStore{
		labs:    make(map[int64]*database.Lab),
		members: make(map[int64]*database.Template),
		Now:     time.Now,
	}
}

func (m *MockStore) now() time.Time {
	if m.Now == nil {
		return time.Now().UTC()
	}
	return m.Now().UTC()
}

// AddLab adds a lab with a fixed ID
func (m *MockStore) AddLab(lab database.Lab) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l := lab
	m.labs[l.ID] = &l
	m.nextLab = max(m.nextLab, l.ID)
}

// Events returns a copy of every recorded event in insertion order
func (m *MockStore) Events() []database.AccessEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.events)
}

// Closed reports whether Close was called
func (m *MockStore) Closed() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.closed
}

// Get returns a template by member ID
func (m *MockStore) Get(ctx context.Context, memberID int64) (*database.Template, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.members[memberID]
	if !ok {
		return nil, fmt.Errorf("member %d: %w", memberID, database.ErrNotFound)
	}
	cp := *t
	return &cp, nil
}

func (m *MockStore) sorted(keep func(*database.Template) bool) []database.Template {
	var out []database.Template
	for _, t := range m.members {
		if keep(t) {
			out = append(out, *t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MemberID < out[j].MemberID })
	return out
}

// ListByLab returns the templates of one lab ordered by member ID
func (m *MockStore) ListByLab(ctx context.Context, labID int64) ([]database.Template, error) {
	if m.ListError != nil {
		return nil, m.ListError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sorted(func(t *database.Template) bool { return t.LabID == labID }), nil
}

// List returns every template ordered by member ID
func (m *MockStore) List(ctx context.Context) ([]database.Template, error) {
	if m.ListError != nil {
		return nil, m.ListError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sorted(func(*database.Template) bool { return true }), nil
}

// FindByName returns templates whose name matches query
func (m *MockStore) FindByName(ctx context.Context, query string) ([]database.Template, error) {
	if m.ListError != nil {
		return nil, m.ListError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sorted(func(t *database.Template) bool {
		return facematch.NameMatches(query, t.FirstName, t.LastName)
	}), nil
}

// Count returns the number of members
func (m *MockStore) Count(ctx context.Context) (int, error) {
	if m.ListError != nil {
		return 0, m.ListError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.members), nil
}

// Enroll stores a new template
func (m *MockStore) Enroll(ctx context.Context, nt database.NewTemplate) (*database.Template, error) {
	if m.EnrollError != nil {
		return nil, m.EnrollError
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.labs[nt.LabID]; !ok {
		return nil, fmt.Errorf("lab %d: %w", nt.LabID, database.ErrLabNotFound)
	}
	id := nt.MemberID
	if id > 0 {
		if _, ok := m.members[id]; ok {
			return nil, fmt.Errorf("member %d: %w", id, database.ErrDuplicateMember)
		}
	} else {
		id = m.nextID + 1
	}
	m.nextID = max(m.nextID, id)

	now := m.now()
	t := &database.Template{
		MemberID:  id,
		FirstName: nt.FirstName,
		LastName:  nt.LastName,
		LabID:     nt.LabID,
		Face:      slices.Clone(nt.Face),
		FaceHash:  database.FaceHash(nt.Face),
		CreatedAt: now,
		UpdatedAt: now,
	}
	m.members[id] = t
	cp := *t
	return &cp, nil
}

// Update changes editable member fields
func (m *MockStore) Update(ctx context.Context, memberID int64, u database.MemberUpdate) (*database.Template, error) {
	if m.UpdateError != nil {
		return nil, m.UpdateError
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.members[memberID]
	if !ok {
		return nil, fmt.Errorf("member %d: %w", memberID, database.ErrNotFound)
	}
	if u.LabID != nil {
		if _, ok := m.labs[*u.LabID]; !ok {
			return nil, fmt.Errorf("lab %d: %w", *u.LabID, database.ErrLabNotFound)
		}
		t.LabID = *u.LabID
	}
	if u.FirstName != nil {
		t.FirstName = *u.FirstName
	}
	if u.LastName != nil {
		t.LastName = *u.LastName
	}
	t.UpdatedAt = m.now()
	cp := *t
	return &cp, nil
}

// Remove deletes a member; absent members are ignored
func (m *MockStore) Remove(ctx context.Context, memberID int64) error {
	if m.RemoveError != nil {
		return m.RemoveError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.members, memberID)
	return nil
}

// GetLab returns a lab by ID
func (m *MockStore) GetLab(ctx context.Context, labID int64) (*database.Lab, error) {
	if m.LabError != nil {
		return nil, m.LabError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	lab, ok := m.labs[labID]
	if !ok {
		return nil, fmt.Errorf("lab %d: %w", labID, database.ErrLabNotFound)
	}
	cp := *lab
	return &cp, nil
}

// ListLabs returns all labs ordered by ID
func (m *MockStore) ListLabs(ctx context.Context) ([]database.Lab, error) {
	if m.LabError != nil {
		return nil, m.LabError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]database.Lab, 0, len(m.labs))
	for _, l := range m.labs {
		out = append(out, *l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// CreateLab stores a new lab
func (m *MockStore) CreateLab(ctx context.Context, lab database.Lab) (*database.Lab, error) {
	if m.LabError != nil {
		return nil, m.LabError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextLab++
	lab.ID = m.nextLab
	lab.CreatedAt = m.now()
	m.labs[lab.ID] = &lab
	cp := lab
	return &cp, nil
}

// RecordEvent appends an event
func (m *MockStore) RecordEvent(ctx context.Context, e database.AccessEvent) error {
	if m.RecordError != nil {
		return m.RecordError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, e)
	return nil
}

// ListEvents returns matching events newest first
func (m *MockStore) ListEvents(ctx context.Context, f database.EventFilter) ([]database.AccessEvent, error) {
	if m.ListEventsError != nil {
		return nil, m.ListEventsError
	}
	limit := f.Limit
	if limit <= 0 {
		limit = constants.DefaultEventLimit
	}
	limit = min(limit, constants.MaxEventLimit)

	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []database.AccessEvent
	for i := len(m.events) - 1; i >= 0; i-- {
		e := m.events[i]
		if f.LabID != 0 && e.LabID != f.LabID {
			continue
		}
		if f.MemberID != 0 && (e.MemberID == nil || *e.MemberID != f.MemberID) {
			continue
		}
		out = append(out, e)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].OccurredAt.After(out[j].OccurredAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// CountGranted counts granted events for a member in a lab
func (m *MockStore) CountGranted(ctx context.Context, labID, memberID int64) (int, error) {
	if m.CountGrantedErr != nil {
		return 0, m.CountGrantedErr
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, e := range m.events {
		if e.LabID == labID && e.Decision == database.DecisionGranted && e.MemberID != nil && *e.MemberID == memberID {
			n++
		}
	}
	return n, nil
}

// Close marks the store closed
func (m *MockStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

type cacheKey struct {
	hash  string
	model string
}

// MockEmbeddingCache is an in-memory database.EmbeddingCacheStore
type MockEmbeddingCache struct {
	mu    sync.RWMutex
	items map[cacheKey][]float32

	// Gets counts GetEmbedding calls
	Gets int

	// Error injection
	GetError  error
	SaveError error
}

var _ database.EmbeddingCacheStore = (*MockEmbeddingCache)(nil)

// NewMockEmbeddingCache creates a new empty cache
func NewMockEmbeddingCache() *MockEmbeddingCache {
	return &MockEmbeddingCache{items: make(map[cacheKey][]float32)}
}

// GetEmbedding returns a cached embedding or database.ErrNotFound
func (m *MockEmbeddingCache) GetEmbedding(ctx context.Context, faceHash, model string) ([]float32, error) {
	m.mu.Lock()
	m.Gets++
	m.mu.Unlock()
	if m.GetError != nil {
		return nil, m.GetError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	emb, ok := m.items[cacheKey{faceHash, model}]
	if !ok {
		return nil, database.ErrNotFound
	}
	return slices.Clone(emb), nil
}

// SaveEmbedding stores an embedding
func (m *MockEmbeddingCache) SaveEmbedding(ctx context.Context, e database.CachedEmbedding) error {
	if m.SaveError != nil {
		return m.SaveError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[cacheKey{e.FaceHash, e.Model}] = slices.Clone(e.Embedding)
	return nil
}

// Len returns the number of cached embeddings
func (m *MockEmbeddingCache) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.items)
}
