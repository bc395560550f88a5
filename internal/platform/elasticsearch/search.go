package elasticsearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/elastic/go-elasticsearch/v8/esapi"
	"go.uber.org/zap"
)

// ContentHit is one search result.
type ContentHit struct {
	ID     string                 `json:"id"`
	Kind   string                 `json:"kind"`
	Score  float64                `json:"score"`
	Source map[string]interface{} `json:"source"`
}

// ContentDoc is a document queued for bulk indexing.
type ContentDoc struct {
	ID     string
	Source map[string]interface{}
}

// ContentIndex writes and queries the content index.
type ContentIndex struct {
	client  *ESClientWrapper
	refresh string
	logger  *zap.Logger
}

// NewContentIndex creates a ContentIndex. It returns nil when client is nil.
func NewContentIndex(client *ESClientWrapper, logger *zap.Logger) *ContentIndex {
	if client == nil {
		return nil
	}
	return &ContentIndex{client: client, logger: logger.Named("content_index")}
}

// WithRefresh sets the refresh policy used on writes ("true", "false" or "wait_for").
func (ix *ContentIndex) WithRefresh(policy string) *ContentIndex {
	ix.refresh = policy
	return ix
}

// IndexContent upserts one document under id.
func (ix *ContentIndex) IndexContent(ctx context.Context, id string, source map[string]interface{}) error {
	body, err := json.Marshal(source)
	if err != nil {
		return fmt.Errorf("marshalling content %s: %w", id, err)
	}
	req := esapi.IndexRequest{
		Index:      ContentIndexName,
		DocumentID: id,
		Body:       bytes.NewReader(body),
		Refresh:    ix.refresh,
	}
	res, err := req.Do(ctx, ix.client.Client)
	if err != nil {
		return fmt.Errorf("indexing content %s: %w", id, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("indexing content %s: status %s", id, res.Status())
	}
	return nil
}

// BulkIndex writes docs in one request and returns how many items failed.
func (ix *ContentIndex) BulkIndex(ctx context.Context, docs []ContentDoc) (int, error) {
	if len(docs) == 0 {
		return 0, nil
	}
	var buf bytes.Buffer
	for _, d := range docs {
		source, err := json.Marshal(d.Source)
		if err != nil {
			return 0, fmt.Errorf("marshalling content %s: %w", d.ID, err)
		}
		fmt.Fprintf(&buf, `{ "index" : { "_index" : %q, "_id" : %q } }%s`, ContentIndexName, d.ID, "\n")
		buf.Write(source)
		buf.WriteByte('\n')
	}

	req := esapi.BulkRequest{
		Body:    &buf,
		Refresh: ix.refresh,
	}
	res, err := req.Do(ctx, ix.client.Client)
	if err != nil {
		return 0, fmt.Errorf("bulk indexing content: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return 0, fmt.Errorf("bulk indexing content: status %s", res.Status())
	}

	var parsed struct {
		Errors bool `json:"errors"`
		Items  []map[string]struct {
			ID     string `json:"_id"`
			Status int    `json:"status"`
		} `json:"items"`
	}
	if err := decodeJSONBody(res.Body, &parsed); err != nil {
		return 0, err
	}
	failed := 0
	if parsed.Errors {
		for _, item := range parsed.Items {
			for _, result := range item {
				if result.Status > 299 {
					failed++
					ix.logger.Warn("Bulk item failed", zap.String("id", result.ID), zap.Int("status", result.Status))
				}
			}
		}
	}
	return failed, nil
}

// SearchContent runs a multi-match query over the text fields, optionally
// restricted to kinds, and returns the hits with the total match count.
func (ix *ContentIndex) SearchContent(ctx context.Context, query string, kinds []string, from, size int) ([]ContentHit, int64, error) {
	must := []interface{}{}
	if q := strings.TrimSpace(query); q != "" {
		must = append(must, map[string]interface{}{
			"multi_match": map[string]interface{}{
				"query":     q,
				"fields":    []string{"title^3", "description", "category", "subject", "type", "creatorName"},
				"fuzziness": "AUTO",
			},
		})
	} else {
		must = append(must, map[string]interface{}{"match_all": map[string]interface{}{}})
	}
	boolQuery := map[string]interface{}{"must": must}
	if len(kinds) > 0 {
		boolQuery["filter"] = []interface{}{
			map[string]interface{}{"terms": map[string]interface{}{"kind": kinds}},
		}
	}
	body, err := json.Marshal(map[string]interface{}{
		"query": map[string]interface{}{"bool": boolQuery},
		"sort":  []interface{}{"_score", map[string]interface{}{"createdAt": "desc"}},
	})
	if err != nil {
		return nil, 0, fmt.Errorf("marshalling search query: %w", err)
	}

	req := esapi.SearchRequest{
		Index: []string{ContentIndexName},
		Body:  bytes.NewReader(body),
		From:  &from,
		Size:  &size,
	}
	res, err := req.Do(ctx, ix.client.Client)
	if err != nil {
		return nil, 0, fmt.Errorf("searching content: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return nil, 0, fmt.Errorf("searching content: status %s", res.Status())
	}

	var parsed struct {
		Hits struct {
			Total struct {
				Value int64 `json:"value"`
			} `json:"total"`
			Hits []struct {
				ID     string                 `json:"_id"`
				Score  float64                `json:"_score"`
				Source map[string]interface{} `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := decodeJSONBody(res.Body, &parsed); err != nil {
		return nil, 0, err
	}

	hits := make([]ContentHit, 0, len(parsed.Hits.Hits))
	for _, h := range parsed.Hits.Hits {
		kind, _ := h.Source["kind"].(string)
		hits = append(hits, ContentHit{ID: h.ID, Kind: kind, Score: h.Score, Source: h.Source})
	}
	return hits, parsed.Hits.Total.Value, nil
}
