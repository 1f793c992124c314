package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// PgFTS implements Searcher using PostgreSQL full-text search as a
// fallback when Meilisearch is unavailable.
type PgFTS struct {
	db *sql.DB
}

func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

// Healthy always returns true; if Postgres is down, the whole app is down.
func (p *PgFTS) Healthy() bool {
	return true
}

// Search runs a UNION ALL query across processes, risks, and controls
// using plainto_tsquery over the generated fts columns.
func (p *PgFTS) Search(q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, 0, nil
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	tsQuery := "plainto_tsquery('simple', $1)"
	args := []any{q.Text}
	argN := 2

	projectFilter := ""
	if q.ProjectID != "" {
		projectFilter = fmt.Sprintf(" AND project_id = $%d", argN)
		args = append(args, q.ProjectID)
		argN++
	}

	var subQueries []string
	if q.FilterType == "" || q.FilterType == ResultProcess {
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'process'::text AS type, id, code, name, macro_process, project_id,
				ts_rank(fts, %s) AS rank
			FROM processes
			WHERE fts @@ %s%s`, tsQuery, tsQuery, projectFilter))
	}
	if q.FilterType == "" || q.FilterType == ResultRisk {
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'risk'::text AS type, id, code, name, ''::text AS macro_process, project_id,
				ts_rank(fts, %s) AS rank
			FROM risks
			WHERE fts @@ %s%s`, tsQuery, tsQuery, projectFilter))
	}
	if q.FilterType == "" || q.FilterType == ResultControl {
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'control'::text AS type, id, code, name, ''::text AS macro_process, project_id,
				ts_rank(fts, %s) AS rank
			FROM controls
			WHERE fts @@ %s%s`, tsQuery, tsQuery, projectFilter))
	}
	if len(subQueries) == 0 {
		return nil, 0, nil
	}

	union := strings.Join(subQueries, " UNION ALL ")
	query := fmt.Sprintf(`
		WITH hits AS (%s)
		SELECT type, id, code, name, macro_process, project_id, COUNT(*) OVER() AS total
		FROM hits
		ORDER BY rank DESC
		LIMIT $%d OFFSET $%d
	`, union, argN, argN+1)
	args = append(args, limit, offset)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("pgfts search: %w", err)
	}
	defer rows.Close()

	var results []Result
	total := 0
	for rows.Next() {
		var r Result
		var rtyp string
		if err := rows.Scan(&rtyp, &r.ID, &r.Code, &r.Name, &r.MacroProcess, &r.ProjectID, &total); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		r.Type = ResultType(rtyp)
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("pgfts iterate: %w", err)
	}
	return results, total, nil
}
