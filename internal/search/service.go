package search

import (
	"context"

	"github.com/rs/zerolog/log"
)

// Service is the facade that tries Meilisearch first and falls back to a
// secondary searcher (PostgreSQL FTS or the in-memory index).
type Service struct {
	meili    *Meili
	fallback Searcher
}

// NewService creates a search service. meili may be nil if Meilisearch is not configured.
func NewService(meili *Meili, fallback Searcher) *Service {
	return &Service{meili: meili, fallback: fallback}
}

// Search tries Meilisearch if healthy, otherwise falls back.
func (s *Service) Search(ctx context.Context, q Query) Response {
	if s.meili != nil && s.meili.Healthy() {
		results, total, err := s.meili.Search(ctx, q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text}
		}
		log.Warn().Err(err).Msg("search: meilisearch error, falling back")
	}

	if s.fallback == nil {
		return Response{Results: []Result{}, Total: 0, Query: q.Text}
	}
	results, total, err := s.fallback.Search(ctx, q)
	if err != nil {
		log.Error().Err(err).Msg("search: fallback error")
		return Response{Results: []Result{}, Total: 0, Query: q.Text}
	}
	return Response{Results: nonNil(results), Total: total, Query: q.Text}
}

// IndexAnnotations pushes records to every index that accepts writes.
func (s *Service) IndexAnnotations(ctx context.Context, records []AnnotationRecord) error {
	if len(records) == 0 {
		return nil
	}
	if idx, ok := s.fallback.(Indexer); ok {
		if err := idx.IndexAnnotations(ctx, records); err != nil {
			return err
		}
	}
	if s.meili == nil || !s.meili.Healthy() {
		return nil
	}
	return s.meili.IndexAnnotations(ctx, records)
}

// DeleteAnnotation removes an annotation from every index that accepts writes.
func (s *Service) DeleteAnnotation(ctx context.Context, id string) error {
	if idx, ok := s.fallback.(Indexer); ok {
		if err := idx.DeleteAnnotation(ctx, id); err != nil {
			return err
		}
	}
	if s.meili == nil || !s.meili.Healthy() {
		return nil
	}
	return s.meili.DeleteAnnotation(ctx, id)
}

// Healthy reports whether any backend can answer queries.
func (s *Service) Healthy() bool {
	if s.meili != nil && s.meili.Healthy() {
		return true
	}
	return s.fallback != nil && s.fallback.Healthy()
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}
