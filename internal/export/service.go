package export

import (
	"context"
	"fmt"
	"html/template"
	"log/slog"
	"time"
)

type converter func(ctx context.Context, html, title string) (*Result, error)

// Service turns documents into downloadable files.
type Service struct {
	pdf     converter
	docx    converter
	timeout time.Duration
	logger  *slog.Logger
}

func NewService(logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		pdf:     exportPDF,
		docx:    exportDOCX,
		timeout: 30 * time.Second,
		logger:  logger,
	}
}

// Export renders doc to HTML and converts it to the requested format.
func (s *Service) Export(ctx context.Context, doc Document, format Format) (*Result, error) {
	var convert converter
	switch format {
	case FormatPDF:
		convert = s.pdf
	case FormatDOCX:
		convert = s.docx
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}

	html, err := RenderDocumentHTML(templateDataFor(doc))
	if err != nil {
		return nil, fmt.Errorf("render template: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	started := time.Now()
	result, err := convert(ctx, html, doc.Title)
	if err != nil {
		return nil, err
	}
	s.logger.Info("document exported",
		slog.String("format", string(format)),
		slog.Int("pages", len(doc.Pages)),
		slog.Int("bytes", len(result.Data)),
		slog.Duration("elapsed", time.Since(started)),
	)
	return result, nil
}

func templateDataFor(doc Document) TemplateData {
	data := TemplateData{
		Title:     doc.Title,
		Type:      doc.Type,
		Status:    doc.Status,
		Author:    doc.Author,
		UpdatedAt: doc.UpdatedAt,
		Pages:     make([]TemplatePage, 0, len(doc.Pages)),
	}
	for _, page := range doc.Pages {
		data.Pages = append(data.Pages, TemplatePage{
			Number:  page.Number,
			Title:   page.Title,
			Content: template.HTML(page.Content),
		})
	}
	return data
}
