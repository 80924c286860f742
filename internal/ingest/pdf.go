package ingest

import (
	"bytes"
	"fmt"

	"github.com/ledongthuc/pdf"
)

// extractPDFPages yields one page per native page. A failing page becomes a
// placeholder and an unreadable file collapses to a single placeholder.
func extractPDFPages(data []byte) (pages []string) {
	if len(data) == 0 {
		return nil
	}
	reader, err := openPDF(data)
	if err != nil {
		return []string{placeholderPage("Could not read PDF: " + err.Error())}
	}

	total := reader.NumPage()
	for i := 1; i <= total; i++ {
		text, err := pageText(reader, i)
		if err != nil {
			pages = append(pages, placeholderPage(fmt.Sprintf("Could not extract page %d: %v", i, err)))
			continue
		}
		pages = append(pages, paragraphs(text))
	}
	return pages
}

func openPDF(data []byte) (reader *pdf.Reader, err error) {
	defer func() {
		if r := recover(); r != nil {
			reader, err = nil, fmt.Errorf("%v", r)
		}
	}()
	return pdf.NewReader(bytes.NewReader(data), int64(len(data)))
}

func pageText(reader *pdf.Reader, n int) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("%v", r)
		}
	}()
	page := reader.Page(n)
	if page.V.IsNull() {
		return "", fmt.Errorf("page object missing")
	}
	return page.GetPlainText(nil)
}
