package matcher

import (
	"context"
	"fmt"

	"github.com/kozaktomas/lab-access/internal/database"
	"github.com/kozaktomas/lab-access/internal/logger"
	"go.uber.org/zap"
)

// Indexed answers identification through per-lab HNSW graphs. Hits are
// restricted to the candidate set and carry exact L2 distances, so the
// threshold and tie-break rules are the same as Linear's. When the graph
// yields no candidate it falls back to a linear scan.
type Indexed struct {
	index    *database.TemplateIndex
	embedder TemplateEmbedder
	linear   *Linear
}

// NewIndexed creates an index-backed matcher.
func NewIndexed(index *database.TemplateIndex, embedder TemplateEmbedder, threshold float64) *Indexed {
	return &Indexed{
		index:    index,
		embedder: embedder,
		linear:   NewLinear(embedder, threshold),
	}
}

// Threshold returns the strict distance threshold.
func (m *Indexed) Threshold() float64 {
	return m.linear.threshold
}

// Sync makes sure every candidate is indexed with its current stored face.
func (m *Indexed) Sync(ctx context.Context, candidates []database.Template) error {
	for _, c := range candidates {
		if e, ok := m.index.Lookup(c.MemberID); ok && e.FaceHash == c.FaceHash && e.LabID == c.LabID {
			continue
		}
		emb, err := m.embedder.EmbedTemplate(ctx, c)
		if err != nil {
			return fmt.Errorf("embed template of member %d: %w", c.MemberID, err)
		}
		if err := m.index.Upsert(database.IndexEntry{
			MemberID:  c.MemberID,
			LabID:     c.LabID,
			FaceHash:  c.FaceHash,
			Embedding: emb,
		}); err != nil {
			return fmt.Errorf("index member %d: %w", c.MemberID, err)
		}
	}
	return nil
}

// Identify implements Matcher.
func (m *Indexed) Identify(ctx context.Context, probe []float32, candidates []database.Template) (MatchResult, error) {
	if len(candidates) == 0 {
		return MatchResult{}, nil
	}
	if err := m.Sync(ctx, candidates); err != nil {
		return MatchResult{}, err
	}

	position := make(map[int64]int, len(candidates))
	var labs []int64
	seenLab := make(map[int64]bool)
	for i, c := range candidates {
		if _, dup := position[c.MemberID]; !dup {
			position[c.MemberID] = i
		}
		if !seenLab[c.LabID] {
			seenLab[c.LabID] = true
			labs = append(labs, c.LabID)
		}
	}

	// hits outside the candidate set are discarded, so ask for more than needed
	k := min(len(candidates), database.HNSWMinSearch) * database.HNSWSearchMultiplier

	var (
		result  MatchResult
		bestID  int64
		bestPos int
	)
	for _, lab := range labs {
		hits, err := m.index.Search(lab, probe, k)
		if err != nil {
			return MatchResult{}, fmt.Errorf("search lab %d: %w", lab, err)
		}
		for _, h := range hits {
			pos, ok := position[h.MemberID]
			if !ok {
				continue
			}
			if result.Compared == 0 || h.Distance < result.Distance || (h.Distance == result.Distance && pos < bestPos) {
				result.Distance = h.Distance
				bestID = h.MemberID
				bestPos = pos
			}
			result.Compared++
		}
	}

	if result.Compared == 0 {
		logger.Debug("index returned no in-scope hits, scanning linearly", zap.Int("candidates", len(candidates)))
		return m.linear.Identify(ctx, probe, candidates)
	}
	return decide(result, bestID, m.linear.threshold), nil
}
