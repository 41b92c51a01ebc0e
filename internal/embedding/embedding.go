// Package embedding turns canonical faces into fixed-length identity vectors.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/kozaktomas/lab-access/internal/config"
	"github.com/kozaktomas/lab-access/internal/database"
	"github.com/kozaktomas/lab-access/internal/logger"
	"github.com/kozaktomas/lab-access/internal/vision"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

var (
	// ErrInference wraps every failure of the underlying model.
	ErrInference = errors.New("inference failed")

	// ErrDimension is returned when the model output has the wrong length.
	ErrDimension = errors.New("unexpected embedding dimension")
)

// Model is a face embedding backend.
type Model interface {
	// Name identifies the model; it is part of every cache key
	Name() string
	// Dim is the output length
	Dim() int
	// Embed computes the embedding of one canonical face
	Embed(ctx context.Context, face *vision.CanonicalFace) ([]float32, error)
}

// Extractor wraps a Model and enforces the embedding contract:
// output length equals the profile dimension, every value is finite,
// and identical input gives identical output.
type Extractor struct {
	mu    sync.Mutex // serializes calls into the shared model
	model Model
	dim   int
	size  int
	l2    bool

	cache  *Cache
	store  database.EmbeddingCacheStore
	flight singleflight.Group
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithCache sets the in-memory embedding cache.
func WithCache(c *Cache) Option {
	return func(e *Extractor) { e.cache = c }
}

// WithStore adds a persistent cache tier consulted after the in-memory one.
func WithStore(s database.EmbeddingCacheStore) Option {
	return func(e *Extractor) { e.store = s }
}

// NewExtractor creates an extractor for the given profile.
func NewExtractor(model Model, profile config.ModelProfile, opts ...Option) (*Extractor, error) {
	if model == nil {
		return nil, errors.New("embedding model is required")
	}
	if profile.EmbeddingDim <= 0 || profile.InputSize <= 0 {
		return nil, fmt.Errorf("invalid model profile %q", profile.Name)
	}
	if model.Dim() != profile.EmbeddingDim {
		return nil, fmt.Errorf("model %s produces %d-d embeddings, profile %q expects %d: %w",
			model.Name(), model.Dim(), profile.Name, profile.EmbeddingDim, ErrDimension)
	}

	e := &Extractor{
		model: model,
		dim:   profile.EmbeddingDim,
		size:  profile.InputSize,
		l2:    profile.L2Normalize,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.cache == nil {
		e.cache = NewCache(0)
	}
	return e, nil
}

// Model returns the model name.
func (e *Extractor) Model() string {
	return e.model.Name()
}

// Dim returns the embedding length.
func (e *Extractor) Dim() int {
	return e.dim
}

// InputSize returns the canonical face edge length the model expects.
func (e *Extractor) InputSize() int {
	return e.size
}

// Embed computes the embedding of a canonical face.
func (e *Extractor) Embed(ctx context.Context, face *vision.CanonicalFace) ([]float32, error) {
	if face == nil {
		return nil, fmt.Errorf("%w: nil face", ErrInference)
	}

	e.mu.Lock()
	out, err := e.model.Embed(ctx, face)
	e.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInference, e.model.Name(), err)
	}
	if len(out) != e.dim {
		return nil, fmt.Errorf("%w: %w: got %d, want %d", ErrInference, ErrDimension, len(out), e.dim)
	}

	var sum float64
	for i, v := range out {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, fmt.Errorf("%w: non-finite value at index %d", ErrInference, i)
		}
		sum += f * f
	}

	if e.l2 {
		norm := math.Sqrt(sum)
		if norm == 0 {
			return nil, fmt.Errorf("%w: zero-norm embedding", ErrInference)
		}
		normalized := make([]float32, len(out))
		for i, v := range out {
			normalized[i] = float32(float64(v) / norm)
		}
		out = normalized
	}
	return out, nil
}

// EmbedTemplate returns the embedding of a template's stored face.
// Results are cached by face hash and model; concurrent calls for the same
// face share one model invocation.
func (e *Extractor) EmbedTemplate(ctx context.Context, t database.Template) ([]float32, error) {
	hash := t.FaceHash
	if hash == "" {
		hash = database.FaceHash(t.Face)
	}
	model := e.model.Name()

	if emb, ok := e.cache.Get(hash, model); ok {
		return emb, nil
	}

	v, err, _ := e.flight.Do(hash, func() (any, error) {
		if emb, ok := e.cache.Get(hash, model); ok {
			return emb, nil
		}

		if e.store != nil {
			emb, err := e.store.GetEmbedding(ctx, hash, model)
			switch {
			case err == nil && len(emb) == e.dim:
				e.cache.Put(hash, model, emb)
				return emb, nil
			case err != nil && !errors.Is(err, database.ErrNotFound):
				logger.Warning("embedding cache lookup failed", zap.String("face_hash", hash), zap.Error(err))
			}
		}

		face, err := vision.DecodeCanonical(t.Face, e.size)
		if err != nil {
			return nil, fmt.Errorf("decode stored face of member %d: %w", t.MemberID, err)
		}
		emb, err := e.Embed(ctx, face)
		if err != nil {
			return nil, err
		}
		e.cache.Put(hash, model, emb)

		if e.store != nil {
			if err := e.store.SaveEmbedding(ctx, database.CachedEmbedding{FaceHash: hash, Model: model, Embedding: emb}); err != nil {
				logger.Warning("failed to persist embedding", zap.String("face_hash", hash), zap.Error(err))
			}
		}
		return emb, nil
	})
	if err != nil {
		return nil, err
	}
	return clone(v.([]float32)), nil
}
