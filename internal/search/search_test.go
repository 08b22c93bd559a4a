package search

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	meili "github.com/meilisearch/meilisearch-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedMemory(t *testing.T) *Memory {
	t.Helper()
	m := NewMemory()
	require.NoError(t, m.IndexAnnotations(context.Background(), []AnnotationRecord{
		{ID: "a1", SessionKey: "s1", Kind: "comment", Title: "Essay", Body: "Tighten this opening sentence", Quote: "Once upon", Author: "ana"},
		{ID: "a2", SessionKey: "s1", Kind: "suggestion", Title: "Essay", Body: "earth", Quote: "world", Author: "ben"},
		{ID: "a3", SessionKey: "s2", Kind: "comment", Title: "Memo", Body: "The opening is strong", Author: "ana"},
	}))
	return m
}

func TestMemorySearchMatchesAllWords(t *testing.T) {
	m := seedMemory(t)

	results, total, err := m.Search(context.Background(), Query{Text: "OPENING sentence"})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, results, 1)
	assert.Equal(t, "a1", results[0].ID)
	assert.Equal(t, "Essay", results[0].Title)
}

func TestMemorySearchFilters(t *testing.T) {
	m := seedMemory(t)
	ctx := context.Background()

	_, total, err := m.Search(ctx, Query{Text: "opening"})
	require.NoError(t, err)
	assert.Equal(t, 2, total)

	results, total, err := m.Search(ctx, Query{Text: "opening", SessionKey: "s2"})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, "a3", results[0].ID)

	results, _, err = m.Search(ctx, Query{Text: "world", Kind: "suggestion"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "a2", results[0].ID)

	results, _, err = m.Search(ctx, Query{Text: "world", Kind: "comment"})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestMemorySearchPaginates(t *testing.T) {
	m := seedMemory(t)
	results, total, err := m.Search(context.Background(), Query{Text: "opening", Limit: 1, Offset: 1})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	require.Len(t, results, 1)
	assert.Equal(t, "a3", results[0].ID)

	results, _, err = m.Search(context.Background(), Query{Text: "opening", Offset: 10})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestMemoryDeleteAndBlankQuery(t *testing.T) {
	m := seedMemory(t)
	ctx := context.Background()
	require.NoError(t, m.DeleteAnnotation(ctx, "a1"))

	_, total, err := m.Search(ctx, Query{Text: "sentence"})
	require.NoError(t, err)
	assert.Zero(t, total)

	results, total, err := m.Search(ctx, Query{Text: "   "})
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, results)
}

func TestServiceWithoutBackends(t *testing.T) {
	s := NewService(nil, nil)
	resp := s.Search(context.Background(), Query{Text: "anything"})
	assert.NotNil(t, resp.Results)
	assert.Zero(t, resp.Total)
	assert.Equal(t, "anything", resp.Query)
	assert.False(t, s.Healthy())
	assert.NoError(t, s.IndexAnnotations(context.Background(), []AnnotationRecord{{ID: "x"}}))
}

func TestServiceFallsBackWhenMeiliUnhealthy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	m := newMeili(meili.New(srv.URL))
	defer m.Close()
	require.False(t, m.Healthy())

	_, _, err := m.Search(context.Background(), Query{Text: "earth"})
	assert.ErrorIs(t, err, errUnhealthy)

	mem := NewMemory()
	s := NewService(m, mem)
	ctx := context.Background()
	require.NoError(t, s.IndexAnnotations(ctx, []AnnotationRecord{
		{ID: "a2", SessionKey: "s1", Kind: "suggestion", Body: "earth", Quote: "world"},
	}))

	resp := s.Search(ctx, Query{Text: "earth"})
	assert.Equal(t, 1, resp.Total)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "a2", resp.Results[0].ID)
	assert.True(t, s.Healthy())

	require.NoError(t, s.DeleteAnnotation(ctx, "a2"))
	assert.Zero(t, s.Search(ctx, Query{Text: "earth"}).Total)
}

func TestHitToResultPrefersHighlightedBody(t *testing.T) {
	hit := meili.Hit{
		"id":         []byte(`"a1"`),
		"sessionKey": []byte(`"s1"`),
		"kind":       []byte(`"comment"`),
		"title":      []byte(`"Essay"`),
		"body":       []byte(`"fix the opening"`),
		"author":     []byte(`"ana"`),
		"_formatted": []byte(`{"body":"fix the <mark>opening</mark>","id":"a1"}`),
	}
	r := hitToResult(hit)
	assert.Equal(t, Result{
		ID:         "a1",
		SessionKey: "s1",
		Kind:       "comment",
		Title:      "Essay",
		Snippet:    "fix the <mark>opening</mark>",
		Author:     "ana",
	}, r)
}
