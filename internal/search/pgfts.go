package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// PgFTS implements Searcher using PostgreSQL full-text search over the
// comments array of every stored session blob.
type PgFTS struct {
	db *sql.DB
}

func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

// Healthy always returns true. Sessions live in the same database, so a
// Postgres outage fails requests before they reach search.
func (p *PgFTS) Healthy() bool {
	return true
}

const annotationsFrom = `
	FROM sessions s
	CROSS JOIN LATERAL jsonb_array_elements(coalesce(s.blob->'comments', '[]'::jsonb)) AS c`

const annotationVector = `to_tsvector('english', coalesce(c->>'text', '') || ' ' || coalesce(c->>'originalText', ''))`

func (p *PgFTS) Search(ctx context.Context, q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, 0, nil
	}

	tsQuery := "plainto_tsquery('english', $1)"
	args := []any{q.Text}
	argN := 2

	where := []string{
		annotationVector + " @@ " + tsQuery,
		"coalesce((c->>'isTyping')::boolean, false) = false",
	}
	if q.Kind != "" {
		where = append(where, fmt.Sprintf("coalesce(c->>'kind', 'comment') = $%d", argN))
		args = append(args, q.Kind)
		argN++
	}
	if q.SessionKey != "" {
		where = append(where, fmt.Sprintf("s.key = $%d", argN))
		args = append(args, q.SessionKey)
	}
	whereSQL := strings.Join(where, " AND ")

	var total int
	countSQL := "SELECT count(*)" + annotationsFrom + " WHERE " + whereSQL
	if err := p.db.QueryRowContext(ctx, countSQL, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("pgfts count: %w", err)
	}

	dataSQL := fmt.Sprintf(`SELECT coalesce(c->>'id', ''), s.key, coalesce(c->>'kind', 'comment'),
			coalesce(s.blob->>'title', ''),
			ts_headline('english', coalesce(c->>'text', ''), %s, 'MaxFragments=1,MaxWords=30'),
			coalesce(c->>'user', '')
		%s
		WHERE %s
		ORDER BY ts_rank(%s, %s) DESC, s.key, c->>'id'
		LIMIT %d OFFSET %d`,
		tsQuery, annotationsFrom, whereSQL, annotationVector, tsQuery, q.limit(), q.offset())

	rows, err := p.db.QueryContext(ctx, dataSQL, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("pgfts query: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		if err := rows.Scan(&r.ID, &r.SessionKey, &r.Kind, &r.Title, &r.Snippet, &r.Author); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		results = append(results, r)
	}
	return results, total, rows.Err()
}

// LoadAllRecords returns every posted annotation for a full reindex.
func (p *PgFTS) LoadAllRecords(ctx context.Context) ([]AnnotationRecord, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT coalesce(c->>'id', ''), s.key, coalesce(c->>'kind', 'comment'),
			coalesce(s.blob->>'title', ''), coalesce(c->>'text', ''), coalesce(c->>'originalText', ''),
			coalesce(c->>'user', '')`+annotationsFrom+`
		WHERE coalesce((c->>'isTyping')::boolean, false) = false
		ORDER BY s.key`)
	if err != nil {
		return nil, fmt.Errorf("load annotations: %w", err)
	}
	defer rows.Close()

	var out []AnnotationRecord
	for rows.Next() {
		var r AnnotationRecord
		if err := rows.Scan(&r.ID, &r.SessionKey, &r.Kind, &r.Title, &r.Body, &r.Quote, &r.Author); err != nil {
			return nil, fmt.Errorf("scan annotation: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
