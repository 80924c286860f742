package search

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
)

// PgFTS searches the generated documents.fts column.
type PgFTS struct {
	db *sqlx.DB
}

func NewPgFTS(db *sqlx.DB) *PgFTS {
	return &PgFTS{db: db}
}

// Healthy is always true; if Postgres is down the whole app is down.
func (p *PgFTS) Healthy() bool {
	return true
}

const ftsWhere = `d.fts @@ plainto_tsquery('english', $1)
	AND (d.owner_id = $2 OR d.collaborators @> jsonb_build_array(jsonb_build_object('user_id', $2::text)))`

type ftsRow struct {
	ID      string `db:"id"`
	Title   string `db:"title"`
	Type    string `db:"type"`
	Status  string `db:"status"`
	Snippet string `db:"snippet"`
}

func (p *PgFTS) Search(ctx context.Context, q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, 0, nil
	}

	var total int
	if err := p.db.GetContext(ctx, &total, `SELECT count(*) FROM documents d WHERE `+ftsWhere, q.Text, q.UserID); err != nil {
		return nil, 0, fmt.Errorf("pgfts count: %w", err)
	}

	var rows []ftsRow
	err := p.db.SelectContext(ctx, &rows, `
		SELECT d.id, d.title, d.type, d.status,
			ts_headline('english',
				coalesce((SELECT string_agg(p->>'content', ' ') FROM jsonb_array_elements(d.pages) p), ''),
				plainto_tsquery('english', $1),
				'MaxFragments=1,MaxWords=30,StartSel=<mark>,StopSel=</mark>') AS snippet
		FROM documents d
		WHERE `+ftsWhere+`
		ORDER BY ts_rank(d.fts, plainto_tsquery('english', $1)) DESC, d.updated_at DESC
		LIMIT $3 OFFSET $4`, q.Text, q.UserID, q.Limit, q.Offset)
	if err != nil {
		return nil, 0, fmt.Errorf("pgfts query: %w", err)
	}

	results := make([]Result, 0, len(rows))
	for _, row := range rows {
		results = append(results, Result{
			ID:      row.ID,
			Title:   row.Title,
			Type:    row.Type,
			Status:  row.Status,
			Snippet: row.Snippet,
		})
	}
	return results, total, nil
}
