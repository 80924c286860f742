package search

import (
	"context"
	"log/slog"

	"pageforge/api/internal/store"
)

const (
	defaultLimit = 20
	maxLimit     = 100
)

type engine interface {
	Healthy() bool
	Search(q Query) ([]Result, int, error)
	IndexDocuments(records []DocumentRecord) error
	DeleteDocument(id string) error
}

type fallback interface {
	Search(ctx context.Context, q Query) ([]Result, int, error)
}

// Loader supplies every document for a full reindex.
type Loader interface {
	ListAllDocuments(ctx context.Context) ([]store.Document, error)
}

// Service tries Meilisearch first and falls back to Postgres FTS.
type Service struct {
	meili  engine
	pgfts  fallback
	logger *slog.Logger
}

// NewService accepts a nil meili when Meilisearch is not configured.
func NewService(m *Meili, pgfts *PgFTS, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{logger: logger}
	if m != nil {
		s.meili = m
	}
	if pgfts != nil {
		s.pgfts = pgfts
	}
	return s
}

func (s *Service) Search(ctx context.Context, q Query) Response {
	if q.Limit <= 0 {
		q.Limit = defaultLimit
	}
	if q.Limit > maxLimit {
		q.Limit = maxLimit
	}
	if q.Offset < 0 {
		q.Offset = 0
	}

	if s.meili != nil && s.meili.Healthy() {
		results, total, err := s.meili.Search(q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text}
		}
		s.logger.Warn("meilisearch error, falling back to pgfts", slog.Any("error", err))
	}

	if s.pgfts == nil {
		return Response{Results: []Result{}, Query: q.Text}
	}
	results, total, err := s.pgfts.Search(ctx, q)
	if err != nil {
		s.logger.Error("pgfts search failed", slog.Any("error", err))
		return Response{Results: []Result{}, Query: q.Text}
	}
	return Response{Results: nonNil(results), Total: total, Query: q.Text}
}

// IndexDocument pushes the document to Meilisearch in the background.
func (s *Service) IndexDocument(doc store.Document) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	record := RecordFromDocument(doc)
	go func() {
		if err := s.meili.IndexDocuments([]DocumentRecord{record}); err != nil {
			s.logger.Warn("index document", slog.String("document_id", record.ID), slog.Any("error", err))
		}
	}()
}

func (s *Service) DeleteDocument(id string) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.DeleteDocument(id); err != nil {
			s.logger.Warn("delete document from index", slog.String("document_id", id), slog.Any("error", err))
		}
	}()
}

// ReindexAll loads every document and pushes it to Meilisearch.
func (s *Service) ReindexAll(ctx context.Context, loader Loader) {
	if s.meili == nil || !s.meili.Healthy() || loader == nil {
		return
	}
	documents, err := loader.ListAllDocuments(ctx)
	if err != nil {
		s.logger.Error("reindex load failed", slog.Any("error", err))
		return
	}
	records := make([]DocumentRecord, 0, len(documents))
	for _, doc := range documents {
		records = append(records, RecordFromDocument(doc))
	}
	if err := s.meili.IndexDocuments(records); err != nil {
		s.logger.Error("reindex documents", slog.Any("error", err))
		return
	}
	s.logger.Info("search reindexed", slog.Int("documents", len(records)))
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}
