package database

import (
	"bytes"
	"encoding/gob"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/coder/hnsw"
)

// ErrIndexStale is returned by Load when the saved index was built for another model.
var ErrIndexStale = errors.New("saved index does not match model")

// HNSWIndexMetadata stores metadata for validating cached HNSW indexes.
type HNSWIndexMetadata struct {
	Count     int       `json:"count"`
	Model     string    `json:"model"`
	BuildTime time.Time `json:"build_time"`
	Version   int       `json:"version"`
}

const hnswMetadataVersion = 1

// IndexEntry is one template embedding held by the index.
type IndexEntry struct {
	MemberID  int64
	LabID     int64
	FaceHash  string
	Embedding []float32
}

// IndexHit is a search result with its exact L2 distance to the query.
type IndexHit struct {
	MemberID int64
	Distance float64
}

// TemplateIndex keeps one HNSW graph per lab over template embeddings.
// Graphs are rebuilt lazily on the next search after a lab changes.
type TemplateIndex struct {
	mu      sync.RWMutex
	model   string
	dim     int
	entries map[int64]*IndexEntry
	graphs  map[int64]*hnsw.Graph[int64]
	dirty   map[int64]bool
	path    string
}

// NewTemplateIndex creates an empty index for embeddings of the given model.
func NewTemplateIndex(model string) *TemplateIndex {
	return &TemplateIndex{
		model:   model,
		entries: make(map[int64]*IndexEntry),
		graphs:  make(map[int64]*hnsw.Graph[int64]),
		dirty:   make(map[int64]bool),
	}
}

func newGraph() *hnsw.Graph[int64] {
	g := hnsw.NewGraph[int64]()
	g.M = HNSWMaxNeighbors
	g.Ml = 1.0 / float64(HNSWMaxNeighbors) // Standard HNSW formula
	g.Distance = hnsw.EuclideanDistance
	return g
}

// Upsert adds or replaces the embedding of a member.
func (x *TemplateIndex) Upsert(e IndexEntry) error {
	if len(e.Embedding) == 0 {
		return errors.New("empty embedding")
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	if x.dim != 0 && len(e.Embedding) != x.dim {
		return fmt.Errorf("embedding has %d dimensions, index holds %d", len(e.Embedding), x.dim)
	}
	x.dim = len(e.Embedding)

	if prev, ok := x.entries[e.MemberID]; ok {
		x.dirty[prev.LabID] = true
	}
	entry := e
	x.entries[e.MemberID] = &entry
	x.dirty[e.LabID] = true
	return nil
}

// Remove drops a member from the index. Unknown members are ignored.
func (x *TemplateIndex) Remove(memberID int64) {
	x.mu.Lock()
	defer x.mu.Unlock()

	if prev, ok := x.entries[memberID]; ok {
		delete(x.entries, memberID)
		x.dirty[prev.LabID] = true
	}
}

// Lookup returns the indexed entry of a member.
func (x *TemplateIndex) Lookup(memberID int64) (IndexEntry, bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	e, ok := x.entries[memberID]
	if !ok {
		return IndexEntry{}, false
	}
	return *e, true
}

// Count returns the number of indexed templates.
func (x *TemplateIndex) Count() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.entries)
}

// rebuildLocked recreates the graph of one lab. Caller holds the write lock.
func (x *TemplateIndex) rebuildLocked(labID int64) {
	delete(x.dirty, labID)

	var nodes []hnsw.Node[int64]
	for _, e := range x.entries {
		if e.LabID == labID {
			nodes = append(nodes, hnsw.MakeNode(e.MemberID, e.Embedding))
		}
	}
	if len(nodes) == 0 {
		delete(x.graphs, labID)
		return
	}
	g := newGraph()
	g.Add(nodes...)
	x.graphs[labID] = g
}

// Search returns up to k templates of one lab near query, each with its
// exact L2 distance. Results come in graph order, not sorted by distance.
func (x *TemplateIndex) Search(labID int64, query []float32, k int) ([]IndexHit, error) {
	if k <= 0 {
		return nil, nil
	}

	x.mu.RLock()
	needsRebuild := x.dirty[labID]
	x.mu.RUnlock()
	if needsRebuild {
		x.mu.Lock()
		if x.dirty[labID] {
			x.rebuildLocked(labID)
		}
		x.mu.Unlock()
	}

	x.mu.RLock()
	defer x.mu.RUnlock()

	g := x.graphs[labID]
	if g == nil {
		return nil, nil
	}
	if x.dim != 0 && len(query) != x.dim {
		return nil, fmt.Errorf("query has %d dimensions, index holds %d", len(query), x.dim)
	}

	neighbors := g.Search(query, k)
	hits := make([]IndexHit, 0, len(neighbors))
	for _, n := range neighbors {
		e, ok := x.entries[n.Key]
		if !ok || e.LabID != labID {
			continue
		}
		hits = append(hits, IndexHit{MemberID: n.Key, Distance: EuclideanDistance(query, e.Embedding)})
	}
	return hits, nil
}

// SetPath sets the path used by Save.
func (x *TemplateIndex) SetPath(path string) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.path = path
}

// Save persists the indexed embeddings and a metadata file next to them.
// Graphs are not written; they are rebuilt from the entries on load.
func (x *TemplateIndex) Save() error {
	x.mu.RLock()
	defer x.mu.RUnlock()

	if x.path == "" {
		return nil // No path set
	}

	entries := make([]IndexEntry, 0, len(x.entries))
	for _, e := range x.entries {
		entries = append(entries, *e)
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(entries); err != nil {
		return fmt.Errorf("failed to encode index entries: %w", err)
	}
	if err := os.WriteFile(x.path, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("failed to write index file: %w", err)
	}

	meta, err := json.Marshal(HNSWIndexMetadata{
		Count:     len(entries),
		Model:     x.model,
		BuildTime: time.Now().UTC(),
		Version:   hnswMetadataVersion,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}
	if err := os.WriteFile(x.path+".meta", meta, 0600); err != nil {
		return fmt.Errorf("failed to write metadata file: %w", err)
	}
	return nil
}

// LoadHNSWMetadata loads metadata from a separate .meta file.
func LoadHNSWMetadata(path string) (HNSWIndexMetadata, error) {
	var metadata HNSWIndexMetadata

	data, err := os.ReadFile(path + ".meta") //nolint:gosec // path is from trusted config
	if err != nil {
		return metadata, fmt.Errorf("failed to read metadata file: %w", err)
	}
	if err := json.Unmarshal(data, &metadata); err != nil {
		return metadata, fmt.Errorf("failed to unmarshal metadata: %w", err)
	}
	return metadata, nil
}

// Load replaces the index contents with a saved index. A missing file is not an error.
func (x *TemplateIndex) Load(path string) error {
	x.SetPath(path)

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil // No index file, will be filled on demand
	}

	meta, err := LoadHNSWMetadata(path)
	if err != nil {
		return err
	}
	if meta.Version != hnswMetadataVersion || meta.Model != x.model {
		return fmt.Errorf("%w: saved %q v%d, want %q v%d",
			ErrIndexStale, meta.Model, meta.Version, x.model, hnswMetadataVersion)
	}

	data, err := os.ReadFile(path) //nolint:gosec // path is from trusted config
	if err != nil {
		return fmt.Errorf("failed to read index file: %w", err)
	}
	var entries []IndexEntry
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&entries); err != nil {
		return fmt.Errorf("failed to decode index entries: %w", err)
	}

	x.mu.Lock()
	defer x.mu.Unlock()
	x.entries = make(map[int64]*IndexEntry, len(entries))
	x.graphs = make(map[int64]*hnsw.Graph[int64])
	x.dirty = make(map[int64]bool)
	x.dim = 0
	for i := range entries {
		e := entries[i]
		if x.dim == 0 {
			x.dim = len(e.Embedding)
		}
		if len(e.Embedding) != x.dim {
			continue
		}
		x.entries[e.MemberID] = &e
		x.dirty[e.LabID] = true
	}
	return nil
}
