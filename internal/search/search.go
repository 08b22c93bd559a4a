// Package search indexes posted annotations so reviewers can find comments and
// suggestions across sessions.
package search

import "context"

// AnnotationRecord is what gets indexed for one posted annotation.
type AnnotationRecord struct {
	ID         string `json:"id"`
	SessionKey string `json:"sessionKey"`
	Kind       string `json:"kind"`
	Title      string `json:"title"`
	Body       string `json:"body"`
	Quote      string `json:"quote"`
	Author     string `json:"author"`
}

// Result is a single search hit returned to the caller.
type Result struct {
	ID         string `json:"id"`
	SessionKey string `json:"sessionKey"`
	Kind       string `json:"kind"`
	Title      string `json:"title"`
	Snippet    string `json:"snippet"`
	Author     string `json:"author,omitempty"`
}

// Query describes a search request.
type Query struct {
	Text       string
	Kind       string // empty = all kinds
	SessionKey string
	Limit      int
	Offset     int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a full-text search.
type Searcher interface {
	Search(ctx context.Context, q Query) ([]Result, int, error)
	Healthy() bool
}

// Indexer can push annotations into a search index.
type Indexer interface {
	IndexAnnotations(ctx context.Context, records []AnnotationRecord) error
	DeleteAnnotation(ctx context.Context, id string) error
}

func (q Query) limit() int {
	if q.Limit <= 0 {
		return 20
	}
	return q.Limit
}

func (q Query) offset() int {
	if q.Offset < 0 {
		return 0
	}
	return q.Offset
}
