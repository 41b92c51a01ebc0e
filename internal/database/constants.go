package database

// HNSW index parameters for face templates
const (
	// HNSWMaxNeighbors (M) is the maximum number of neighbors per node.
	// Higher values improve recall but increase memory and build time.
	HNSWMaxNeighbors = 16

	// HNSWSearchMultiplier is the factor to request more candidates from HNSW
	// so enough remain after restricting results to the candidate set.
	HNSWSearchMultiplier = 3

	// HNSWMinSearch caps the base neighbor count requested from a lab graph
	// before HNSWSearchMultiplier is applied.
	HNSWMinSearch = 10
)
