// Package knowledge adapts the external vector store for tenant-isolated
// similarity retrieval.
//
// Isolation model: each tenant's documents live in collections named
// "<collection>_<tenantID>". Collection names are always derived from the
// caller's own tenant id, so no query can touch another tenant's partition.
// Shared collections (no tenant suffix) hold only operator-curated content
// and are read-only from a tenant's perspective.
package knowledge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"time"
)

// Result is one retrieved snippet with its similarity distance (lower is
// more similar) and origin ("user" or "shared").
type Result struct {
	ID       string
	Text     string
	Metadata map[string]any
	Distance float64
	Source   string
}

// Embedder turns text into a vector. The embedding provider is an opaque
// external collaborator.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}

// Base retrieves and stores documents against the vector store over HTTP.
type Base struct {
	baseURL    string
	httpClient *http.Client
	embedder   Embedder
	logger     *slog.Logger
}

// New constructs a knowledge base client.
func New(baseURL string, embedder Embedder, logger *slog.Logger) *Base {
	return &Base{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		embedder:   embedder,
		logger:     logger,
	}
}

// collectionName returns the tenant-scoped collection name, or the shared
// name when tenantID is empty.
func collectionName(base, tenantID string) string {
	if tenantID == "" {
		return base
	}
	return base + "_" + tenantID
}

// Retrieve returns up to topN snippets ranked by ascending distance. The
// tenant's own collection is queried first when tenantID is set; the shared
// collection is always queried too. Results are merged de-duplicated by id,
// with tenant hits winning conflicts. A missing tenant collection yields an
// empty result set, not an error.
func (b *Base) Retrieve(ctx context.Context, collection, tenantID, query string, topN int) ([]Result, error) {
	if topN <= 0 {
		topN = 3
	}

	embedding, err := b.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	var results []Result
	seen := make(map[string]bool)

	if tenantID != "" {
		tenantResults, err := b.queryCollection(ctx, collectionName(collection, tenantID), embedding, topN, "user")
		if err != nil {
			// An absent or empty tenant collection is routine.
			b.logger.DebugContext(ctx, "tenant collection query failed",
				"collection", collection,
				"error", err.Error(),
			)
		}
		for _, r := range tenantResults {
			results = append(results, r)
			seen[r.ID] = true
		}
	}

	sharedResults, err := b.queryCollection(ctx, collection, embedding, topN, "shared")
	if err != nil {
		b.logger.DebugContext(ctx, "shared collection query failed",
			"collection", collection,
			"error", err.Error(),
		)
	}
	for _, r := range sharedResults {
		if !seen[r.ID] {
			results = append(results, r)
		}
	}

	sort.SliceStable(results, func(i, j int) bool { return results[i].Distance < results[j].Distance })
	if len(results) > topN {
		results = results[:topN]
	}
	return results, nil
}

// AddDocument stores a document in the caller's own collection.
func (b *Base) AddDocument(ctx context.Context, collection, tenantID, docID, text string, metadata map[string]any) error {
	embedding, err := b.embedder.Embed(ctx, text)
	if err != nil {
		return fmt.Errorf("embed document: %w", err)
	}

	name := collectionName(collection, tenantID)
	body := map[string]any{
		"ids":        []string{docID},
		"embeddings": [][]float64{embedding},
		"documents":  []string{text},
		"metadatas":  []map[string]any{metadata},
	}
	if err := b.post(ctx, fmt.Sprintf("/api/v1/collections/%s/add", name), body, nil); err != nil {
		return fmt.Errorf("add document to %s: %w", name, err)
	}
	b.logger.InfoContext(ctx, "added document", "collection", name, "doc_id", docID)
	return nil
}

// Health pings the vector store.
func (b *Base) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.baseURL+"/api/v1/heartbeat", nil)
	if err != nil {
		return fmt.Errorf("build heartbeat request: %w", err)
	}
	resp, err := b.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("vector store heartbeat: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("vector store heartbeat: status %d", resp.StatusCode)
	}
	return nil
}

type queryResponse struct {
	IDs       [][]string         `json:"ids"`
	Documents [][]string         `json:"documents"`
	Metadatas [][]map[string]any `json:"metadatas"`
	Distances [][]float64        `json:"distances"`
}

func (b *Base) queryCollection(ctx context.Context, name string, embedding []float64, topN int, source string) ([]Result, error) {
	body := map[string]any{
		"query_embeddings": [][]float64{embedding},
		"n_results":        topN,
		"include":          []string{"documents", "metadatas", "distances"},
	}
	var resp queryResponse
	if err := b.post(ctx, fmt.Sprintf("/api/v1/collections/%s/query", name), body, &resp); err != nil {
		return nil, err
	}
	if len(resp.IDs) == 0 {
		return nil, nil
	}

	out := make([]Result, 0, len(resp.IDs[0]))
	for i, id := range resp.IDs[0] {
		r := Result{ID: id, Source: source}
		if len(resp.Documents) > 0 && i < len(resp.Documents[0]) {
			r.Text = resp.Documents[0][i]
		}
		if len(resp.Metadatas) > 0 && i < len(resp.Metadatas[0]) {
			r.Metadata = resp.Metadatas[0][i]
		}
		if len(resp.Distances) > 0 && i < len(resp.Distances[0]) {
			r.Distance = resp.Distances[0][i]
		}
		out = append(out, r)
	}
	return out, nil
}

func (b *Base) post(ctx context.Context, path string, body any, out any) error {
	encoded, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+path, bytes.NewReader(encoded))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("vector store request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read vector store response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("vector store returned status %d", resp.StatusCode)
	}
	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("decode vector store response: %w", err)
		}
	}
	return nil
}
