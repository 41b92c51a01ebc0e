// Package matcher identifies a probe embedding among a lab's enrolled templates.
package matcher

import (
	"context"
	"fmt"

	"github.com/kozaktomas/lab-access/internal/constants"
	"github.com/kozaktomas/lab-access/internal/database"
)

// MatchResult is the outcome of one identification.
// MemberID is set only when Matched. Distance is the best distance found
// and is meaningful only when HasDistance reports true.
type MatchResult struct {
	MemberID int64   `json:"member_id,omitempty"`
	Matched  bool    `json:"matched"`
	Distance float64 `json:"distance"`
	Compared int     `json:"compared"`
}

// HasDistance reports whether at least one candidate was compared.
func (r MatchResult) HasDistance() bool {
	return r.Compared > 0
}

// Matcher finds the enrolled template nearest to a probe embedding.
// It never looks at templates outside the supplied candidate set.
type Matcher interface {
	Identify(ctx context.Context, probe []float32, candidates []database.Template) (MatchResult, error)
}

// TemplateEmbedder derives the embedding of a stored template.
type TemplateEmbedder interface {
	EmbedTemplate(ctx context.Context, t database.Template) ([]float32, error)
}

func normalizeThreshold(threshold float64) float64 {
	if threshold <= 0 {
		return constants.DefaultDistanceThreshold
	}
	return threshold
}

// Linear compares the probe with every candidate.
type Linear struct {
	embedder  TemplateEmbedder
	threshold float64
}

// NewLinear creates a linear matcher. A non-positive threshold selects the default.
func NewLinear(embedder TemplateEmbedder, threshold float64) *Linear {
	return &Linear{embedder: embedder, threshold: normalizeThreshold(threshold)}
}

// Threshold returns the strict distance threshold.
func (m *Linear) Threshold() float64 {
	return m.threshold
}

// Identify returns the candidate with the minimal L2 distance when that
// distance is strictly below the threshold. Ties keep the first candidate.
func (m *Linear) Identify(ctx context.Context, probe []float32, candidates []database.Template) (MatchResult, error) {
	var (
		result MatchResult
		bestID int64
	)
	for _, c := range candidates {
		emb, err := m.embedder.EmbedTemplate(ctx, c)
		if err != nil {
			return MatchResult{}, fmt.Errorf("embed template of member %d: %w", c.MemberID, err)
		}
		d := database.EuclideanDistance(probe, emb)
		if result.Compared == 0 || d < result.Distance {
			result.Distance = d
			bestID = c.MemberID
		}
		result.Compared++
	}
	return decide(result, bestID, m.threshold), nil
}

func decide(r MatchResult, bestID int64, threshold float64) MatchResult {
	if r.Compared > 0 && r.Distance < threshold {
		r.Matched = true
		r.MemberID = bestID
	}
	return r
}
