// Package projectmemory is the file-level snapshot and embedding index
// kept fresh over the workspace: refresh walks the tree, re-embeds only
// changed files, and retrieve serves semantic lookups with a small
// recency/touch boost.
package projectmemory

import (
	"context"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/lemonjerome/low-cortisol-html/pkg/models"
)

// Embedder is the subset of the LLM Client project memory needs.
type Embedder interface {
	Embed(ctx context.Context, model, text string) ([]float32, error)
}

const (
	maxReadBytes     = 200_000
	maxExcerptChars  = 5000
	maxSummaryChars  = 180
	queryCacheSize   = 32
	touchBonusCap    = 0.12
	touchBonusScale  = 0.02
	trimMarker       = "\n…[content trimmed]…\n"
)

var ignoredDirs = map[string]bool{
	".git":                       true,
	"node_modules":               true,
	"dist":                       true,
	"build":                      true,
	".low-cortisol-html-logs":    true,
}

// Memory owns one run's file index. It is not shared across runs.
type Memory struct {
	Root           string
	EmbeddingModel string
	embedder       Embedder

	mu        sync.Mutex
	snapshots map[string]models.FileSnapshot

	queryCacheMu   sync.Mutex
	queryCacheKeys []string
	queryCache     map[string][]float32
}

// New builds an empty Memory bound to root.
func New(root, embeddingModel string, embedder Embedder) *Memory {
	return &Memory{
		Root:           root,
		EmbeddingModel: embeddingModel,
		embedder:       embedder,
		snapshots:      map[string]models.FileSnapshot{},
		queryCache:     map[string][]float32{},
	}
}

func isIgnored(rel string) bool {
	for _, part := range strings.Split(rel, string(os.PathSeparator)) {
		if part == "" {
			continue
		}
		if strings.HasPrefix(part, ".") && part != "." {
			return true
		}
		if ignoredDirs[part] {
			return true
		}
	}
	return false
}

func summarize(content string) string {
	var lines []string
	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		lines = append(lines, trimmed)
		if len(lines) == 3 {
			break
		}
	}
	joined := strings.Join(lines, " ")
	if len(joined) > maxSummaryChars {
		joined = joined[:maxSummaryChars]
	}
	return joined
}

func excerpt(content string) string {
	if len(content) <= maxExcerptChars {
		return content
	}
	return content[:maxExcerptChars] + trimMarker
}

// Refresh walks the workspace, skipping hidden and ignored directories.
// Unchanged files (same mtime_ns and size_bytes) reuse their snapshot;
// changed or new files are re-read (capped at 200KB), summarized, and
// re-embedded. Snapshots whose files have disappeared are dropped.
func (m *Memory) Refresh(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	seen := map[string]bool{}

	err := filepath.WalkDir(m.Root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		rel, relErr := filepath.Rel(m.Root, path)
		if relErr != nil || rel == "." {
			return nil
		}
		if d.IsDir() {
			if isIgnored(rel) {
				return filepath.SkipDir
			}
			return nil
		}
		if isIgnored(rel) {
			return nil
		}

		info, statErr := d.Info()
		if statErr != nil {
			return nil
		}
		mtimeNS := info.ModTime().UnixNano()
		sizeBytes := info.Size()
		seen[rel] = true

		existing, had := m.snapshots[rel]
		if had && existing.MTimeNS == mtimeNS && existing.SizeBytes == sizeBytes {
			return nil
		}

		raw, readErr := os.ReadFile(path)
		if readErr != nil {
			return nil
		}
		content := string(raw)
		if len(content) > maxReadBytes {
			content = content[:maxReadBytes]
		}
		summary := summarize(content)
		composite := fmt.Sprintf("path:%s summary:%s content_excerpt:%s", rel, summary, excerpt(content))

		vec, embedErr := m.embedder.Embed(ctx, m.EmbeddingModel, composite)
		if embedErr != nil {
			// Keep the file absent from the index this round; it will be
			// retried on the next refresh rather than aborting the whole walk.
			return nil
		}

		snap := models.FileSnapshot{
			RelativePath: rel,
			MTimeNS:      mtimeNS,
			SizeBytes:    sizeBytes,
			Summary:      summary,
			Embedding:    vec,
			TouchedCount: 0,
			ChangeCount:  1,
		}
		if had {
			snap.TouchedCount = existing.TouchedCount
			snap.ChangeCount = existing.ChangeCount + 1
		}
		m.snapshots[rel] = snap
		return nil
	})
	if err != nil {
		return fmt.Errorf("refresh project memory: %w", err)
	}

	for rel := range m.snapshots {
		if !seen[rel] {
			delete(m.snapshots, rel)
		}
	}
	return nil
}

// MarkTouched increments the retrieval tiebreaker counter for rel.
func (m *Memory) MarkTouched(rel string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap, ok := m.snapshots[rel]
	if !ok {
		return
	}
	snap.TouchedCount++
	m.snapshots[rel] = snap
}

func (m *Memory) cachedQueryEmbedding(ctx context.Context, query string) ([]float32, error) {
	m.queryCacheMu.Lock()
	if vec, ok := m.queryCache[query]; ok {
		for i, k := range m.queryCacheKeys {
			if k == query {
				keys := append([]string(nil), m.queryCacheKeys[:i]...)
				keys = append(keys, m.queryCacheKeys[i+1:]...)
				m.queryCacheKeys = append(keys, query)
				break
			}
		}
		m.queryCacheMu.Unlock()
		return vec, nil
	}
	m.queryCacheMu.Unlock()

	vec, err := m.embedder.Embed(ctx, m.EmbeddingModel, query)
	if err != nil {
		return nil, err
	}

	m.queryCacheMu.Lock()
	defer m.queryCacheMu.Unlock()
	if _, ok := m.queryCache[query]; !ok {
		if len(m.queryCacheKeys) >= queryCacheSize {
			oldest := m.queryCacheKeys[0]
			m.queryCacheKeys = m.queryCacheKeys[1:]
			delete(m.queryCache, oldest)
		}
		m.queryCacheKeys = append(m.queryCacheKeys, query)
		m.queryCache[query] = vec
	}
	return vec, nil
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

// Retrieve embeds query (via a small LRU cache), scores every snapshot by
// cosine similarity plus a touch bonus of min(touched_count*0.02, 0.12),
// and returns the top_k hits in descending boosted-score order.
func (m *Memory) Retrieve(ctx context.Context, query string, topK int) ([]models.RetrievalHit, error) {
	if topK < 1 {
		topK = 1
	}
	queryVec, err := m.cachedQueryEmbedding(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed retrieval query: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	hits := make([]models.RetrievalHit, 0, len(m.snapshots))
	for _, snap := range m.snapshots {
		base := cosineSimilarity(queryVec, snap.Embedding)
		bonus := math.Min(float64(snap.TouchedCount)*touchBonusScale, touchBonusCap)
		hits = append(hits, models.RetrievalHit{Snapshot: snap, BaseScore: base, BoostScore: base + bonus})
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].BoostScore > hits[j].BoostScore })
	if len(hits) > topK {
		hits = hits[:topK]
	}
	return hits, nil
}

// BuildRetrievalContext renders a human-readable listing of retrieved
// hits plus the full (possibly trimmed) content of the top includeFullTopN.
func BuildRetrievalContext(root string, retrieved []models.RetrievalHit, includeFullTopN, maxFullChars int) string {
	var sb strings.Builder
	sb.WriteString("Retrieved files:\n")
	for i, hit := range retrieved {
		fmt.Fprintf(&sb, "%d. %s (score=%.3f) — %s\n", i+1, hit.Snapshot.RelativePath, hit.BoostScore, hit.Snapshot.Summary)
	}
	for i, hit := range retrieved {
		if i >= includeFullTopN {
			break
		}
		raw, err := os.ReadFile(filepath.Join(root, hit.Snapshot.RelativePath))
		if err != nil {
			continue
		}
		content := string(raw)
		if maxFullChars > 0 && len(content) > maxFullChars {
			content = content[:maxFullChars] + trimMarker
		}
		fmt.Fprintf(&sb, "\n--- %s ---\n%s\n", hit.Snapshot.RelativePath, content)
	}
	return sb.String()
}
