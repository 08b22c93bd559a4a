package search

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// Memory is an in-process index used when neither Meilisearch nor
// PostgreSQL is configured.
type Memory struct {
	mu      sync.RWMutex
	records map[string]AnnotationRecord
}

func NewMemory() *Memory {
	return &Memory{records: map[string]AnnotationRecord{}}
}

func (m *Memory) Healthy() bool {
	return true
}

func (m *Memory) IndexAnnotations(_ context.Context, records []AnnotationRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range records {
		m.records[r.ID] = r
	}
	return nil
}

func (m *Memory) DeleteAnnotation(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, id)
	return nil
}

// Search matches every query word case-insensitively against body, quote and
// title.
func (m *Memory) Search(_ context.Context, q Query) ([]Result, int, error) {
	words := strings.Fields(strings.ToLower(q.Text))
	if len(words) == 0 {
		return nil, 0, nil
	}

	m.mu.RLock()
	var hits []Result
	for _, r := range m.records {
		if q.Kind != "" && r.Kind != q.Kind {
			continue
		}
		if q.SessionKey != "" && r.SessionKey != q.SessionKey {
			continue
		}
		haystack := strings.ToLower(r.Body + " " + r.Quote + " " + r.Title)
		if !containsAll(haystack, words) {
			continue
		}
		hits = append(hits, Result{
			ID:         r.ID,
			SessionKey: r.SessionKey,
			Kind:       r.Kind,
			Title:      r.Title,
			Snippet:    r.Body,
			Author:     r.Author,
		})
	}
	m.mu.RUnlock()

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].SessionKey != hits[j].SessionKey {
			return hits[i].SessionKey < hits[j].SessionKey
		}
		return hits[i].ID < hits[j].ID
	})

	total := len(hits)
	start := min(q.offset(), total)
	end := min(start+q.limit(), total)
	return hits[start:end], total, nil
}

func containsAll(haystack string, words []string) bool {
	for _, w := range words {
		if !strings.Contains(haystack, w) {
			return false
		}
	}
	return true
}
