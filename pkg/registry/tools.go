package registry

import (
	"context"
	"fmt"
	"regexp"
	"runtime"
	"sort"
	"strings"
	"sync"

	"github.com/philippgille/chromem-go"

	"github.com/queryflowhq/queryflow/pkg/tool"
)

// Embedder produces a vector embedding for a piece of text. A nil Embedder
// makes the ToolRegistry fall back to token-overlap ranking for every
// query.
type Embedder func(ctx context.Context, text string) ([]float32, error)

// RegistryError is returned by ToolRegistry operations.
type RegistryError struct {
	Code    string
	Message string
}

func (e *RegistryError) Error() string { return e.Code + ": " + e.Message }

const (
	ErrDuplicateName = "DUPLICATE_NAME"
	ErrUnknownName   = "UNKNOWN_NAME"
)

// Ranked pairs a descriptor with its similarity score in [0,1].
type Ranked struct {
	Descriptor *tool.Descriptor
	Score      float64
}

// ToolRegistry holds ToolDescriptors and answers ranked lookups (§4.A).
// Writes only happen at startup; reads never mutate and are safe for
// concurrent use from agents running across sessions.
type ToolRegistry struct {
	mu       sync.RWMutex
	byName   map[string]*tool.Descriptor
	order    []string // registration order
	embedder Embedder
	db       *chromem.DB
	coll     *chromem.Collection
}

// NewToolRegistry creates an empty registry. If embedder is nil, ranking
// always uses the deterministic Jaccard token-overlap fallback.
func NewToolRegistry(embedder Embedder) (*ToolRegistry, error) {
	r := &ToolRegistry{
		byName:   make(map[string]*tool.Descriptor),
		embedder: embedder,
	}
	if embedder != nil {
		r.db = chromem.NewDB()
		// No EmbeddingFunc on the collection: this registry always computes
		// embeddings itself so Rank can fall back to Jaccard on a per-call
		// basis without depending on chromem's internal embedding path.
		coll, err := r.db.GetOrCreateCollection("tools", nil, nil)
		if err != nil {
			return nil, fmt.Errorf("create embedding collection: %w", err)
		}
		r.coll = coll
	}
	return r, nil
}

// Register adds a descriptor. name must be unique across the registry.
func (r *ToolRegistry) Register(d *tool.Descriptor) error {
	if d.Name == "" {
		return &RegistryError{Code: ErrUnknownName, Message: "tool name cannot be empty"}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byName[d.Name]; exists {
		return &RegistryError{Code: ErrDuplicateName, Message: fmt.Sprintf("tool %q already registered", d.Name)}
	}

	r.byName[d.Name] = d
	r.order = append(r.order, d.Name)

	if r.coll != nil && r.embedder != nil {
		vec, err := r.embedder(context.Background(), d.SearchText())
		if err == nil {
			_ = r.coll.AddDocuments(context.Background(), []chromem.Document{{
				ID:        d.Name,
				Content:   d.SearchText(),
				Metadata:  map[string]string{"class": string(d.DataSourceClass)},
				Embedding: vec,
			}}, runtime.NumCPU())
		}
		// Embedding failure does not abort registration; it leaves this
		// descriptor out of the embedding index, so an embedding-based Rank
		// gives it no score (Get and List still return it).
	}
	return nil
}

// Get returns the descriptor registered under name.
func (r *ToolRegistry) Get(name string) (*tool.Descriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.byName[name]
	if !ok {
		return nil, &RegistryError{Code: ErrUnknownName, Message: fmt.Sprintf("tool %q not found", name)}
	}
	return d, nil
}

// ListByClass returns every descriptor registered under the given class, in
// registration order.
func (r *ToolRegistry) ListByClass(class tool.DataSourceClass) []*tool.Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*tool.Descriptor
	for _, name := range r.order {
		d := r.byName[name]
		if d.DataSourceClass == class {
			out = append(out, d)
		}
	}
	return out
}

// List returns every descriptor in registration order.
func (r *ToolRegistry) List() []*tool.Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*tool.Descriptor, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.byName[name])
	}
	return out
}

// scoreFloor is the minimum similarity score (§4.A) below which a candidate
// is dropped from ranked results.
const scoreFloor = 0.10

// Rank returns descriptors matching queryText ordered by similarity, highest
// first. When filter is non-empty, only descriptors of that class are
// considered. Ties are broken by (1) descending priority, then (2)
// ascending name — so identical descriptors registered twice rank
// identically regardless of insertion order (property 7, §8).
func (r *ToolRegistry) Rank(ctx context.Context, queryText string, filter tool.DataSourceClass) ([]Ranked, error) {
	r.mu.RLock()
	candidates := make([]*tool.Descriptor, 0, len(r.order))
	for _, name := range r.order {
		d := r.byName[name]
		if filter != "" && d.DataSourceClass != filter {
			continue
		}
		candidates = append(candidates, d)
	}
	embedder := r.embedder
	coll := r.coll
	r.mu.RUnlock()

	if len(candidates) == 0 {
		return nil, nil
	}

	var scores map[string]float64
	if embedder != nil && coll != nil {
		if s, err := r.rankByEmbedding(ctx, queryText, candidates); err == nil {
			scores = s
		}
	}
	if scores == nil {
		scores = rankByJaccard(queryText, candidates)
	}

	ranked := make([]Ranked, 0, len(candidates))
	for _, d := range candidates {
		score := scores[d.Name]
		if score < scoreFloor {
			continue
		}
		ranked = append(ranked, Ranked{Descriptor: d, Score: score})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		if ranked[i].Descriptor.Priority != ranked[j].Descriptor.Priority {
			return ranked[i].Descriptor.Priority > ranked[j].Descriptor.Priority
		}
		return ranked[i].Descriptor.Name < ranked[j].Descriptor.Name
	})

	return ranked, nil
}

// TopK is a convenience wrapper around Rank that truncates to k results.
func (r *ToolRegistry) TopK(ctx context.Context, queryText string, filter tool.DataSourceClass, k int) ([]Ranked, error) {
	ranked, err := r.Rank(ctx, queryText, filter)
	if err != nil {
		return nil, err
	}
	if len(ranked) > k {
		ranked = ranked[:k]
	}
	return ranked, nil
}

func (r *ToolRegistry) rankByEmbedding(ctx context.Context, queryText string, candidates []*tool.Descriptor) (map[string]float64, error) {
	vec, err := r.embedder(ctx, queryText)
	if err != nil {
		return nil, err
	}
	results, err := r.coll.QueryEmbedding(ctx, vec, len(candidates), nil, nil)
	if err != nil {
		return nil, err
	}
	scores := make(map[string]float64, len(results))
	for _, res := range results {
		scores[res.ID] = float64(res.Similarity)
	}
	return scores, nil
}

var tokenPattern = regexp.MustCompile(`[a-z0-9]+`)

func tokenize(s string) map[string]struct{} {
	tokens := tokenPattern.FindAllString(strings.ToLower(s), -1)
	set := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		set[t] = struct{}{}
	}
	return set
}

// jaccard is the deterministic fallback ranking: Jaccard similarity over
// lowercased alphanumeric tokens (§4.A).
func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	intersection := 0
	for t := range a {
		if _, ok := b[t]; ok {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

func rankByJaccard(queryText string, candidates []*tool.Descriptor) map[string]float64 {
	queryTokens := tokenize(queryText)
	scores := make(map[string]float64, len(candidates))
	for _, d := range candidates {
		scores[d.Name] = jaccard(queryTokens, tokenize(d.SearchText()))
	}
	return scores
}
