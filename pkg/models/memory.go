package models

// FileSnapshot is one workspace file tracked by project memory. The pair
// (MTimeNS, SizeBytes) is the content-change fingerprint: any change to
// either value means the summary and embedding are stale and must be
// recomputed on the next refresh.
type FileSnapshot struct {
	RelativePath string    `json:"relative_path"`
	MTimeNS      int64     `json:"mtime_ns"`
	SizeBytes    int64     `json:"size_bytes"`
	Summary      string    `json:"summary"`
	Embedding    []float32 `json:"embedding"`
	TouchedCount int       `json:"touched_count"`
	ChangeCount  int       `json:"change_count"`
}

// RetrievalHit pairs a FileSnapshot with its base and touch-boosted
// cosine-similarity scores against a query embedding.
type RetrievalHit struct {
	Snapshot   FileSnapshot `json:"snapshot"`
	BaseScore  float64      `json:"base_score"`
	BoostScore float64      `json:"boost_score"`
}

// ToolCatalogEntry is one persisted (name, embedding) pair in the
// embedding cache, keyed by tool name.
type ToolCatalogEntry struct {
	Name      string    `json:"name"`
	Embedding []float32 `json:"embedding_vector"`
}

// ToolCandidate pairs a tool name with its retrieval and (optionally)
// rerank score, used between the Embedding Cache and the Reranker.
type ToolCandidate struct {
	Name        string  `json:"name"`
	BaseScore   float64 `json:"base_score"`
	RerankScore float64 `json:"rerank_score,omitempty"`
	Description string  `json:"description,omitempty"`
}
