package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
)

const documentColumns = `id, title, type, status, owner_id, organization, sections, pages, comments,
	collaborators, tags, metadata, current_version, shared_link, original_key, created_at, updated_at`

type documentRow struct {
	ID             string         `db:"id"`
	Title          string         `db:"title"`
	Type           string         `db:"type"`
	Status         string         `db:"status"`
	OwnerID        string         `db:"owner_id"`
	Organization   string         `db:"organization"`
	Sections       []byte         `db:"sections"`
	Pages          []byte         `db:"pages"`
	Comments       []byte         `db:"comments"`
	Collaborators  []byte         `db:"collaborators"`
	Tags           []byte         `db:"tags"`
	Metadata       []byte         `db:"metadata"`
	CurrentVersion int            `db:"current_version"`
	SharedLink     sql.NullString `db:"shared_link"`
	OriginalKey    sql.NullString `db:"original_key"`
	CreatedAt      time.Time      `db:"created_at"`
	UpdatedAt      time.Time      `db:"updated_at"`
}

func (r documentRow) toDocument() (Document, error) {
	doc := Document{
		ID:             r.ID,
		Title:          r.Title,
		Type:           r.Type,
		Status:         r.Status,
		OwnerID:        r.OwnerID,
		Organization:   r.Organization,
		CurrentVersion: r.CurrentVersion,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
	if r.SharedLink.Valid {
		doc.SharedLink = &r.SharedLink.String
	}
	if r.OriginalKey.Valid {
		doc.OriginalKey = &r.OriginalKey.String
	}
	columns := []struct {
		raw    []byte
		target any
	}{
		{r.Sections, &doc.Sections},
		{r.Pages, &doc.Pages},
		{r.Comments, &doc.Comments},
		{r.Collaborators, &doc.Collaborators},
		{r.Tags, &doc.Tags},
		{r.Metadata, &doc.Metadata},
	}
	for _, column := range columns {
		if err := unmarshalJSON(column.raw, column.target); err != nil {
			return Document{}, fmt.Errorf("document %s: %w", r.ID, err)
		}
	}
	normalizeDocument(&doc)
	return doc, nil
}

func normalizeDocument(doc *Document) {
	if doc.Sections == nil {
		doc.Sections = []Section{}
	}
	if doc.Pages == nil {
		doc.Pages = []Page{}
	}
	if doc.Comments == nil {
		doc.Comments = []Comment{}
	}
	if doc.Collaborators == nil {
		doc.Collaborators = []Collaborator{}
	}
	if doc.Tags == nil {
		doc.Tags = []string{}
	}
	if doc.Metadata == nil {
		doc.Metadata = map[string]any{}
	}
}

type documentJSON struct {
	sections, pages, comments, collaborators, tags, metadata []byte
}

func encodeDocument(doc Document) (documentJSON, error) {
	normalizeDocument(&doc)
	var out documentJSON
	var err error
	if out.sections, err = marshalJSON(doc.Sections); err != nil {
		return out, err
	}
	if out.pages, err = marshalJSON(doc.Pages); err != nil {
		return out, err
	}
	if out.comments, err = marshalJSON(doc.Comments); err != nil {
		return out, err
	}
	if out.collaborators, err = marshalJSON(doc.Collaborators); err != nil {
		return out, err
	}
	if out.tags, err = marshalJSON(doc.Tags); err != nil {
		return out, err
	}
	if out.metadata, err = marshalJSON(doc.Metadata); err != nil {
		return out, err
	}
	return out, nil
}

func (s *PostgresStore) InsertDocument(ctx context.Context, doc Document) error {
	encoded, err := encodeDocument(doc)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO documents (id, title, type, status, owner_id, organization, sections, pages, comments,
			collaborators, tags, metadata, current_version, shared_link, original_key, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`, doc.ID, doc.Title, doc.Type, doc.Status, doc.OwnerID, doc.Organization,
		encoded.sections, encoded.pages, encoded.comments, encoded.collaborators, encoded.tags, encoded.metadata,
		doc.CurrentVersion, doc.SharedLink, doc.OriginalKey, doc.CreatedAt, doc.UpdatedAt)
	if isUniqueViolation(err) {
		return ErrConflict
	}
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetDocument(ctx context.Context, id string) (Document, error) {
	var row documentRow
	if err := s.db.GetContext(ctx, &row, `SELECT `+documentColumns+` FROM documents WHERE id = $1`, id); err != nil {
		return Document{}, err
	}
	return row.toDocument()
}

func (s *PostgresStore) GetDocumentBySharedLink(ctx context.Context, token string) (Document, error) {
	var row documentRow
	if err := s.db.GetContext(ctx, &row, `SELECT `+documentColumns+` FROM documents WHERE shared_link = $1`, token); err != nil {
		return Document{}, err
	}
	return row.toDocument()
}

// ListDocuments returns documents the user owns or collaborates on.
func (s *PostgresStore) ListDocuments(ctx context.Context, filter DocumentFilter) ([]Document, error) {
	var where []string
	args := []any{filter.UserID}
	where = append(where, `(owner_id = $1 OR collaborators @> jsonb_build_array(jsonb_build_object('user_id', $1::text)))`)
	if filter.Type != "" {
		args = append(args, filter.Type)
		where = append(where, fmt.Sprintf("type = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	query := `SELECT ` + documentColumns + ` FROM documents WHERE ` + strings.Join(where, " AND ") + ` ORDER BY updated_at DESC, id`
	if filter.Limit > 0 {
		args = append(args, filter.Limit, max(filter.Offset, 0))
		query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)-1, len(args))
	}

	var rows []documentRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	documents := make([]Document, 0, len(rows))
	for _, row := range rows {
		doc, err := row.toDocument()
		if err != nil {
			return nil, err
		}
		documents = append(documents, doc)
	}
	return documents, nil
}

// MutateDocument applies fn to the row under a FOR UPDATE lock and writes
// every mutable column back in the same transaction.
func (s *PostgresStore) MutateDocument(ctx context.Context, id string, fn func(*Document) error) (Document, error) {
	var updated Document
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		var row documentRow
		if err := tx.GetContext(ctx, &row, `SELECT `+documentColumns+` FROM documents WHERE id = $1 FOR UPDATE`, id); err != nil {
			return err
		}
		doc, err := row.toDocument()
		if err != nil {
			return err
		}
		if err := fn(&doc); err != nil {
			return err
		}
		encoded, err := encodeDocument(doc)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
			UPDATE documents SET
				title = $2, type = $3, status = $4, sections = $5, pages = $6, comments = $7,
				collaborators = $8, tags = $9, metadata = $10, current_version = $11,
				shared_link = $12, original_key = $13, updated_at = $14
			WHERE id = $1
		`, doc.ID, doc.Title, doc.Type, doc.Status, encoded.sections, encoded.pages, encoded.comments,
			encoded.collaborators, encoded.tags, encoded.metadata, doc.CurrentVersion,
			doc.SharedLink, doc.OriginalKey, doc.UpdatedAt)
		if isUniqueViolation(err) {
			return ErrConflict
		}
		if err != nil {
			return fmt.Errorf("update document: %w", err)
		}
		updated = doc
		return nil
	})
	if err != nil {
		return Document{}, err
	}
	return updated, nil
}

// AppendComment pushes one comment onto the document's list in a single statement.
func (s *PostgresStore) AppendComment(ctx context.Context, documentID string, comment Comment) error {
	encoded, err := marshalJSON([]Comment{comment})
	if err != nil {
		return err
	}
	result, err := s.db.ExecContext(ctx, `
		UPDATE documents SET comments = comments || $2::jsonb, updated_at = $3 WHERE id = $1
	`, documentID, encoded, s.now())
	if err != nil {
		return fmt.Errorf("append comment: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// DeleteDocument removes the row and marks its analytics and activity
// records as orphaned in the same transaction.
func (s *PostgresStore) DeleteDocument(ctx context.Context, id string) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		result, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE id = $1`, id)
		if err != nil {
			return fmt.Errorf("delete document: %w", err)
		}
		if n, _ := result.RowsAffected(); n == 0 {
			return sql.ErrNoRows
		}
		if _, err := tx.ExecContext(ctx, `UPDATE document_views SET orphaned = TRUE WHERE document_id = $1`, id); err != nil {
			return fmt.Errorf("orphan views: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `UPDATE activity_logs SET orphaned = TRUE WHERE document_id = $1`, id); err != nil {
			return fmt.Errorf("orphan activity: %w", err)
		}
		return nil
	})
}

// ListAllDocuments feeds search reindexing.
func (s *PostgresStore) ListAllDocuments(ctx context.Context) ([]Document, error) {
	var rows []documentRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT `+documentColumns+` FROM documents ORDER BY updated_at DESC, id`); err != nil {
		return nil, fmt.Errorf("list all documents: %w", err)
	}
	documents := make([]Document, 0, len(rows))
	for _, row := range rows {
		doc, err := row.toDocument()
		if err != nil {
			return nil, err
		}
		documents = append(documents, doc)
	}
	return documents, nil
}

func (s *PostgresStore) InsertActivity(ctx context.Context, entry ActivityLog) error {
	details, err := marshalJSON(entry.Details)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO activity_logs (id, user_id, user_name, document_id, action, details, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, entry.ID, entry.UserID, entry.UserName, entry.DocumentID, entry.Action, details, entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert activity: %w", err)
	}
	return nil
}
