// Package lawstore looks up law articles relevant to a piece of content in a
// weaviate class populated with the regulation corpus.
package lawstore

import (
	"context"
	"fmt"

	"github.com/thep200/content-radar/cfg"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"
)

type LawArticle struct {
	Code     string  `json:"code"`
	Title    string  `json:"title"`
	Content  string  `json:"content"`
	Distance float64 `json:"distance"`
}

// Searcher is what the justification classifier depends on.
type Searcher interface {
	Search(ctx context.Context, query string, limit int) ([]LawArticle, error)
}

type Retriever struct {
	client    *weaviate.Client
	className string
	limit     int
}

func NewRetriever(config *cfg.Config) (*Retriever, error) {
	if config.Weaviate.Host == "" {
		return nil, fmt.Errorf("weaviate host is not configured")
	}
	scheme := config.Weaviate.Scheme
	if scheme == "" {
		scheme = "http"
	}
	client, err := weaviate.NewClient(weaviate.Config{
		Host:   config.Weaviate.Host,
		Scheme: scheme,
	})
	if err != nil {
		return nil, fmt.Errorf("create weaviate client: %w", err)
	}
	return &Retriever{
		client:    client,
		className: config.Weaviate.LawClass,
		limit:     config.Weaviate.Limit,
	}, nil
}

func (r *Retriever) Search(ctx context.Context, query string, limit int) ([]LawArticle, error) {
	if limit <= 0 {
		limit = r.limit
	}
	if limit <= 0 {
		limit = 5
	}

	nearText := r.client.GraphQL().NearTextArgBuilder().
		WithConcepts([]string{query})

	fields := []graphql.Field{
		{Name: "code"},
		{Name: "title"},
		{Name: "content"},
		{Name: "_additional { distance }"},
	}

	result, err := r.client.GraphQL().Get().
		WithClassName(r.className).
		WithFields(fields...).
		WithNearText(nearText).
		WithLimit(limit).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("law search: %w", err)
	}
	if len(result.Errors) > 0 {
		return nil, fmt.Errorf("law search error: %s", result.Errors[0].Message)
	}
	return parseArticles(result, r.className), nil
}

func parseArticles(result *models.GraphQLResponse, className string) []LawArticle {
	get, ok := result.Data["Get"].(map[string]interface{})
	if !ok {
		return nil
	}
	items, ok := get[className].([]interface{})
	if !ok {
		return nil
	}

	articles := make([]LawArticle, 0, len(items))
	for _, item := range items {
		obj, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		article := LawArticle{
			Code:    stringField(obj, "code"),
			Title:   stringField(obj, "title"),
			Content: stringField(obj, "content"),
		}
		if add, ok := obj["_additional"].(map[string]interface{}); ok {
			if d, ok := add["distance"].(float64); ok {
				article.Distance = d
			}
		}
		articles = append(articles, article)
	}
	return articles
}

func stringField(obj map[string]interface{}, key string) string {
	if v, ok := obj[key].(string); ok {
		return v
	}
	return ""
}
