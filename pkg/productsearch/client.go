package productsearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"

	"github.com/elastic/go-elasticsearch/v8"

	"shopmate-be/pkg/convo/extract"
)

// Product is one search hit with a stable id.
type Product struct {
	ID         string            `json:"id"`
	Name       string            `json:"name"`
	Brand      string            `json:"brand"`
	Price      int64             `json:"price"`
	Rating     float64           `json:"rating"`
	Categories []string          `json:"categories,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// Client executes product searches against an Elasticsearch index.
type Client struct {
	es     *elasticsearch.Client
	index  string
	limit  int
	logger *log.Logger
}

// NewClient builds a search client for the given index.
func NewClient(addresses []string, index string, limit int, logger *log.Logger) (*Client, error) {
	es, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: addresses,
	})
	if err != nil {
		return nil, fmt.Errorf("productsearch: create client: %w", err)
	}
	if limit <= 0 {
		limit = 10
	}
	return &Client{es: es, index: index, limit: limit, logger: logger}, nil
}

type searchHit struct {
	ID     string  `json:"_id"`
	Score  float64 `json:"_score"`
	Source struct {
		Name       string            `json:"name"`
		Brand      string            `json:"brand"`
		Price      int64             `json:"price"`
		Rating     float64           `json:"rating"`
		Categories []string          `json:"categories"`
		Attributes map[string]string `json:"attributes"`
	} `json:"_source"`
}

type searchResponse struct {
	Hits struct {
		Hits []searchHit `json:"hits"`
	} `json:"hits"`
	Error *struct {
		Type   string `json:"type"`
		Reason string `json:"reason"`
	} `json:"error,omitempty"`
}

// Search runs the constraints as a bool query and returns matching products.
func (c *Client) Search(ctx context.Context, cons *extract.Constraints) ([]Product, error) {
	query := BuildQuery(cons, c.limit)

	var body bytes.Buffer
	if err := json.NewEncoder(&body).Encode(query); err != nil {
		return nil, fmt.Errorf("productsearch: encode query: %w", err)
	}

	res, err := c.es.Search(
		c.es.Search.WithContext(ctx),
		c.es.Search.WithIndex(c.index),
		c.es.Search.WithBody(&body),
	)
	if err != nil {
		return nil, fmt.Errorf("productsearch: search: %w", err)
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("productsearch: read response: %w", err)
	}
	if res.IsError() {
		return nil, fmt.Errorf("productsearch: search error: status %s, body: %s", res.Status(), string(raw))
	}

	var parsed searchResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("productsearch: decode response: %w", err)
	}

	products := make([]Product, 0, len(parsed.Hits.Hits))
	for _, hit := range parsed.Hits.Hits {
		products = append(products, Product{
			ID:         hit.ID,
			Name:       hit.Source.Name,
			Brand:      hit.Source.Brand,
			Price:      hit.Source.Price,
			Rating:     hit.Source.Rating,
			Categories: hit.Source.Categories,
			Attributes: hit.Source.Attributes,
		})
	}

	c.logger.Printf("[SEARCH] query=%q hits=%d", cons.Query, len(products))
	return products, nil
}
