// Package toolcache is the Embedding Cache / Tool Pruner: a persistent
// map from tool identity to embedding vector, with query-time cosine
// scoring used to shrink a tool catalog to a small ranked candidate set.
package toolcache

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"sort"

	"github.com/lemonjerome/low-cortisol-html/internal/llm"
	"github.com/lemonjerome/low-cortisol-html/pkg/models"
)

// Embedder is the subset of the LLM Client the cache needs.
type Embedder interface {
	Embed(ctx context.Context, model, text string) ([]float32, error)
}

// file is the on-disk persisted shape: the embedding-model identifier
// plus one vector per tool name. A mismatch between the stored and
// current model identifier invalidates every vector.
type file struct {
	EmbeddingModel string                     `json:"embedding_model"`
	Vectors        map[string]models.ToolCatalogEntry `json:"vectors"`
}

// Cache is the in-memory, disk-backed tool embedding store.
type Cache struct {
	path           string
	embeddingModel string
	vectors        map[string]models.ToolCatalogEntry
	embedder       Embedder
}

// Load reads path (if present) and validates its embedding-model
// identifier against embeddingModel; a mismatch discards all vectors.
func Load(path, embeddingModel string, embedder Embedder) (*Cache, error) {
	c := &Cache{
		path:           path,
		embeddingModel: embeddingModel,
		vectors:        map[string]models.ToolCatalogEntry{},
		embedder:       embedder,
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return c, nil
		}
		return nil, fmt.Errorf("read embedding cache: %w", err)
	}
	var f file
	if err := json.Unmarshal(raw, &f); err != nil {
		// Corrupt cache file: behave as if it were absent.
		return c, nil
	}
	if f.EmbeddingModel != embeddingModel {
		return c, nil
	}
	if f.Vectors != nil {
		c.vectors = f.Vectors
	}
	return c, nil
}

// save atomically rewrites the cache file with the full current state.
func (c *Cache) save() error {
	f := file{EmbeddingModel: c.embeddingModel, Vectors: c.vectors}
	raw, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal embedding cache: %w", err)
	}
	tmp := c.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("write embedding cache: %w", err)
	}
	return os.Rename(tmp, c.path)
}

// toolText renders the synthesized text an uncached tool's embedding is
// computed from: "name: {name}\ndescription: {desc}\nparameters: {schema}".
func toolText(t models.ToolDefinition) string {
	schemaJSON := "{}"
	if t.InputSchema != nil {
		if b, err := json.Marshal(t.InputSchema); err == nil {
			schemaJSON = string(b)
		}
	}
	return fmt.Sprintf("name: %s\ndescription: %s\nparameters: %s", t.Name, t.Description, schemaJSON)
}

// EnsureVectors computes and persists an embedding for every tool in
// tools that is not already cached.
func (c *Cache) EnsureVectors(ctx context.Context, tools []models.ToolDefinition) error {
	dirty := false
	for _, t := range tools {
		if _, ok := c.vectors[t.Name]; ok {
			continue
		}
		vec, err := c.embedder.Embed(ctx, c.embeddingModel, toolText(t))
		if err != nil {
			return fmt.Errorf("embed tool %q: %w", t.Name, err)
		}
		c.vectors[t.Name] = models.ToolCatalogEntry{Name: t.Name, Embedding: vec}
		dirty = true
	}
	if dirty {
		return c.save()
	}
	return nil
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// RetrieveCandidates embeds query and scores every tool by cosine
// similarity against its cached vector, returning the top_n (lower
// bounded at 1) in descending score order. Tools lacking a cached vector
// score zero. Retrieval is deterministic for a fixed catalog, embedding
// model, and query embedding.
func (c *Cache) RetrieveCandidates(ctx context.Context, query string, tools []models.ToolDefinition, topN int) ([]models.ToolCandidate, error) {
	if topN < 1 {
		topN = 1
	}
	queryVec, err := c.embedder.Embed(ctx, c.embeddingModel, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	candidates := make([]models.ToolCandidate, 0, len(tools))
	for _, t := range tools {
		entry, ok := c.vectors[t.Name]
		var score float64
		if ok {
			score = cosineSimilarity(queryVec, entry.Embedding)
		}
		candidates = append(candidates, models.ToolCandidate{
			Name:        t.Name,
			BaseScore:   score,
			Description: t.Description,
		})
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].BaseScore > candidates[j].BaseScore
	})
	if len(candidates) > topN {
		candidates = candidates[:topN]
	}
	return candidates, nil
}

var _ Embedder = (*llm.OllamaClient)(nil)
