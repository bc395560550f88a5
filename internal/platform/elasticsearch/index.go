package elasticsearch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/elastic/go-elasticsearch/v8/esapi"
	"go.uber.org/zap"
)

// ContentIndexName holds every content kind; documents carry their kind as a keyword.
const ContentIndexName = "content"

var textWithKeyword = map[string]interface{}{
	"type": "text",
	"fields": map[string]interface{}{
		"keyword": map[string]interface{}{"type": "keyword", "ignore_above": 256},
	},
}

// defineContentMapping returns the JSON string for the content index mapping.
func defineContentMapping() (string, error) {
	mapping := map[string]interface{}{
		"mappings": map[string]interface{}{
			"properties": map[string]interface{}{
				"kind":        map[string]interface{}{"type": "keyword"},
				"slug":        map[string]interface{}{"type": "keyword"},
				"status":      map[string]interface{}{"type": "keyword"},
				"title":       textWithKeyword,
				"description": map[string]interface{}{"type": "text"},
				"category":    textWithKeyword,
				"subject":     textWithKeyword,
				"type":        textWithKeyword,
				"creatorUid":  map[string]interface{}{"type": "keyword"},
				"creatorName": textWithKeyword,
				"date":        map[string]interface{}{"type": "keyword"},
				"time":        map[string]interface{}{"type": "keyword"},
				"deadline":    map[string]interface{}{"type": "keyword"},
				"createdAt":   map[string]interface{}{"type": "date"},
			},
		},
	}
	mappingBytes, err := json.Marshal(mapping)
	if err != nil {
		return "", fmt.Errorf("error marshalling content mapping to JSON: %w", err)
	}
	return string(mappingBytes), nil
}

// CreateContentIndexIfNotExists creates the content index with the defined mapping
// if it does not already exist.
func CreateContentIndexIfNotExists(ctx context.Context, client *ESClientWrapper, logger *zap.Logger) error {
	log := logger.Named("elasticsearch_index_setup")

	req := esapi.IndicesExistsRequest{
		Index: []string{ContentIndexName},
	}
	res, err := req.Do(ctx, client.Client)
	if err != nil {
		log.Error("Error checking if content index exists", zap.Error(err))
		return fmt.Errorf("error checking if content index exists: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusOK {
		log.Info("Content index already exists", zap.String("index_name", ContentIndexName))
		return nil
	}
	if res.StatusCode != http.StatusNotFound {
		log.Error("Error checking if content index exists, unexpected status",
			zap.String("status", res.Status()),
			zap.String("index_name", ContentIndexName),
		)
		return fmt.Errorf("error checking if content index exists: status %s", res.Status())
	}

	mappingJSON, err := defineContentMapping()
	if err != nil {
		log.Error("Failed to define content mapping", zap.Error(err))
		return err
	}

	createReq := esapi.IndicesCreateRequest{
		Index: ContentIndexName,
		Body:  strings.NewReader(mappingJSON),
	}
	createRes, err := createReq.Do(ctx, client.Client)
	if err != nil {
		log.Error("Error creating content index", zap.Error(err), zap.String("index_name", ContentIndexName))
		return fmt.Errorf("error creating content index %s: %w", ContentIndexName, err)
	}
	defer createRes.Body.Close()

	if createRes.IsError() {
		var errorBody map[string]interface{}
		if err := decodeJSONBody(createRes.Body, &errorBody); err != nil {
			log.Error("Failed to parse content index creation error response body", zap.Error(err), zap.String("status", createRes.Status()))
		} else {
			log.Error("Failed to create content index",
				zap.String("status", createRes.Status()),
				zap.Any("error_details", errorBody),
				zap.String("index_name", ContentIndexName),
			)
		}
		return fmt.Errorf("failed to create content index %s: status %s", ContentIndexName, createRes.Status())
	}

	log.Info("Content index created successfully", zap.String("index_name", ContentIndexName))
	return nil
}
