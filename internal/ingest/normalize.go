// Package ingest turns uploaded files into ordered HTML pages.
package ingest

import (
	"bytes"
	"errors"
	"fmt"
	"mime"
	"strings"

	"pageforge/api/internal/store"
	"pageforge/api/internal/util"
)

const (
	MIMEText = "text/plain"
	MIMEPDF  = "application/pdf"
	MIMEDOCX = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
)

const (
	MethodTextWrap    = "text_wrap"
	MethodDOCX        = "docx_conversion"
	MethodPDFPreserve = "pdf_preserve"
	MethodPDFExtract  = "page_wise_extraction"
)

var (
	ErrUnsupportedType = errors.New("unsupported file type")
	ErrMalformed       = errors.New("malformed document")
)

type Upload struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Preference selects how PDFs are handled. The zero value extracts text.
type Preference struct {
	PreservePDF bool
}

type Result struct {
	Pages    []store.Page
	Sections []store.Section
	Metadata map[string]any
	Method   string
}

// Supported reports whether the declared content type is on the allow-list.
func Supported(contentType string) bool {
	switch mediaType(contentType) {
	case MIMEText, MIMEPDF, MIMEDOCX:
		return true
	}
	return false
}

func mediaType(contentType string) string {
	parsed, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		parsed = strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0])
	}
	return strings.ToLower(parsed)
}

func methodFor(kind string, pref Preference) string {
	switch {
	case kind == MIMEText:
		return MethodTextWrap
	case kind == MIMEDOCX:
		return MethodDOCX
	case pref.PreservePDF:
		return MethodPDFPreserve
	}
	return MethodPDFExtract
}

// Normalize converts the upload into pages numbered 1..N. It never returns
// zero pages, and an empty file of any supported type yields one placeholder.
func Normalize(upload Upload, pref Preference) (Result, error) {
	kind := mediaType(upload.ContentType)
	if !Supported(kind) {
		return Result{}, fmt.Errorf("%w: %s", ErrUnsupportedType, kind)
	}
	method := methodFor(kind, pref)
	empty := len(bytes.TrimSpace(upload.Data)) == 0

	var (
		bodies []string
		err    error
	)
	switch {
	case empty:
		bodies = []string{placeholderPage("This file is empty.")}
	case method == MethodTextWrap:
		bodies = textPages(upload.Data)
	case method == MethodPDFPreserve:
		bodies = []string{preservePDF(upload.Data)}
	case method == MethodPDFExtract:
		bodies = extractPDFPages(upload.Data)
	case method == MethodDOCX:
		if bodies, err = convertDOCX(upload.Data); err != nil {
			return Result{}, err
		}
	}

	if len(bodies) == 0 {
		bodies = []string{placeholderPage("No content could be extracted from this file.")}
	}

	result := Result{
		Pages:    make([]store.Page, 0, len(bodies)),
		Sections: make([]store.Section, 0, len(bodies)),
		Method:   method,
	}
	for i, body := range bodies {
		n := i + 1
		title := fmt.Sprintf("Page %d", n)
		result.Pages = append(result.Pages, store.Page{
			ID:                  util.NewID("page"),
			PageNumber:          n,
			Title:               title,
			Content:             body,
			MultimediaElements:  []store.MultimediaElement{},
			InteractiveElements: []store.InteractiveElement{},
		})
		result.Sections = append(result.Sections, store.Section{
			ID:                  util.NewID("section"),
			Title:               title,
			Content:             body,
			Order:               n,
			MultimediaElements:  []store.MultimediaElement{},
			InteractiveElements: []store.InteractiveElement{},
			Version:             1,
		})
	}
	result.Metadata = map[string]any{
		"original_filename":   upload.Filename,
		"content_type":        kind,
		"contains_formatting": !empty && (method == MethodDOCX || method == MethodPDFExtract),
		"page_count":          len(result.Pages),
		"processing_method":   method,
	}
	return result, nil
}
