package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// ErrSessionMismatch is returned when a session id already belongs to another document.
var ErrSessionMismatch = errors.New("session belongs to another document")

const viewColumns = `id, document_id, session_id, viewer_info, pages_viewed, total_time_spent, current_page,
	max_page_reached, completed_viewing, downloaded, signed, created_at, updated_at`

type viewRow struct {
	ID               string    `db:"id"`
	DocumentID       string    `db:"document_id"`
	SessionID        *string   `db:"session_id"`
	ViewerInfo       []byte    `db:"viewer_info"`
	PagesViewed      []byte    `db:"pages_viewed"`
	TotalTimeSpent   int       `db:"total_time_spent"`
	CurrentPage      int       `db:"current_page"`
	MaxPageReached   int       `db:"max_page_reached"`
	CompletedViewing bool      `db:"completed_viewing"`
	Downloaded       bool      `db:"downloaded"`
	Signed           bool      `db:"signed"`
	CreatedAt        time.Time `db:"created_at"`
	UpdatedAt        time.Time `db:"updated_at"`
}

func (r viewRow) toView() (DocumentView, error) {
	view := DocumentView{
		ID:               r.ID,
		DocumentID:       r.DocumentID,
		TotalTimeSpent:   r.TotalTimeSpent,
		CurrentPage:      r.CurrentPage,
		MaxPageReached:   r.MaxPageReached,
		CompletedViewing: r.CompletedViewing,
		Downloaded:       r.Downloaded,
		Signed:           r.Signed,
		CreatedAt:        r.CreatedAt,
		UpdatedAt:        r.UpdatedAt,
	}
	if r.SessionID != nil {
		view.SessionID = *r.SessionID
	}
	if err := unmarshalJSON(r.ViewerInfo, &view.ViewerInfo); err != nil {
		return DocumentView{}, err
	}
	if err := unmarshalJSON(r.PagesViewed, &view.PagesViewed); err != nil {
		return DocumentView{}, err
	}
	if view.PagesViewed == nil {
		view.PagesViewed = []PageView{}
	}
	return view, nil
}

func nullableSession(sessionID string) *string {
	if sessionID == "" {
		return nil
	}
	return &sessionID
}

// InsertView records a one-shot view without a tracking session.
func (s *PostgresStore) InsertView(ctx context.Context, view DocumentView) error {
	info, err := marshalJSON(view.ViewerInfo)
	if err != nil {
		return err
	}
	pages := view.PagesViewed
	if pages == nil {
		pages = []PageView{}
	}
	pagesJSON, err := marshalJSON(pages)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO document_views (id, document_id, session_id, viewer_info, pages_viewed, total_time_spent,
			current_page, max_page_reached, completed_viewing, downloaded, signed, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`, view.ID, view.DocumentID, nullableSession(view.SessionID), info, pagesJSON, view.TotalTimeSpent,
		view.CurrentPage, view.MaxPageReached, view.CompletedViewing, view.Downloaded, view.Signed,
		view.CreatedAt, view.UpdatedAt)
	if isUniqueViolation(err) {
		return ErrConflict
	}
	if err != nil {
		return fmt.Errorf("insert view: %w", err)
	}
	return nil
}

// UpsertSession creates the session row when absent, then locks it and
// applies merge. Concurrent events for one session serialize on the row lock.
func (s *PostgresStore) UpsertSession(ctx context.Context, seed DocumentView, merge func(*DocumentView)) (DocumentView, error) {
	if seed.SessionID == "" {
		return DocumentView{}, errors.New("session id is required")
	}
	info, err := marshalJSON(seed.ViewerInfo)
	if err != nil {
		return DocumentView{}, err
	}

	var merged DocumentView
	err = s.withTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO document_views (id, document_id, session_id, viewer_info, pages_viewed, created_at, updated_at)
			VALUES ($1, $2, $3, $4, '[]', $5, $5)
			ON CONFLICT (session_id) DO NOTHING
		`, seed.ID, seed.DocumentID, seed.SessionID, info, seed.CreatedAt); err != nil {
			return fmt.Errorf("seed session: %w", err)
		}

		var row viewRow
		if err := tx.GetContext(ctx, &row, `SELECT `+viewColumns+` FROM document_views WHERE session_id = $1 FOR UPDATE`, seed.SessionID); err != nil {
			return err
		}
		if row.DocumentID != seed.DocumentID {
			return ErrSessionMismatch
		}
		view, err := row.toView()
		if err != nil {
			return err
		}
		merge(&view)

		pagesJSON, err := marshalJSON(view.PagesViewed)
		if err != nil {
			return err
		}
		infoJSON, err := marshalJSON(view.ViewerInfo)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE document_views SET
				viewer_info = $2, pages_viewed = $3, total_time_spent = $4, current_page = $5,
				max_page_reached = $6, completed_viewing = $7, downloaded = $8, signed = $9, updated_at = $10
			WHERE id = $1
		`, view.ID, infoJSON, pagesJSON, view.TotalTimeSpent, view.CurrentPage, view.MaxPageReached,
			view.CompletedViewing, view.Downloaded, view.Signed, view.UpdatedAt); err != nil {
			return fmt.Errorf("update session: %w", err)
		}
		merged = view
		return nil
	})
	if err != nil {
		return DocumentView{}, err
	}
	return merged, nil
}

func (s *PostgresStore) ListViews(ctx context.Context, documentID string) ([]DocumentView, error) {
	var rows []viewRow
	if err := s.db.SelectContext(ctx, &rows, `
		SELECT `+viewColumns+` FROM document_views
		WHERE document_id = $1 AND NOT orphaned
		ORDER BY created_at
	`, documentID); err != nil {
		return nil, fmt.Errorf("list views: %w", err)
	}
	views := make([]DocumentView, 0, len(rows))
	for _, row := range rows {
		view, err := row.toView()
		if err != nil {
			return nil, err
		}
		views = append(views, view)
	}
	return views, nil
}
