// Package export renders documents to PDF and DOCX.
package export

import (
	"errors"
	"time"
)

type Format string

const (
	FormatPDF  Format = "pdf"
	FormatDOCX Format = "docx"
)

func ParseFormat(raw string) (Format, bool) {
	switch Format(raw) {
	case FormatPDF, FormatDOCX:
		return Format(raw), true
	case "":
		return FormatPDF, true
	}
	return "", false
}

// Document is the exportable view of a stored document.
type Document struct {
	Title     string
	Type      string
	Status    string
	Author    string
	UpdatedAt time.Time
	Pages     []Page
}

type Page struct {
	Number  int
	Title   string
	Content string
}

type Result struct {
	Data     []byte
	Filename string
	MimeType string
}

var (
	ErrUnsupportedFormat     = errors.New("unsupported export format")
	ErrPDFDependencyMissing  = errors.New("export pdf dependency missing")
	ErrDOCXDependencyMissing = errors.New("export docx dependency missing")
)
