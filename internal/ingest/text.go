package ingest

import (
	"bytes"
	"encoding/base64"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"
)

const textContainer = `<div class="document-text" style="white-space: pre-wrap; font-family: Georgia, serif; line-height: 1.6;">`

func textPages(data []byte) []string {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	text := string(data)
	if !utf8.ValidString(text) {
		text = strings.ToValidUTF8(text, "�")
	}
	return []string{textContainer + html.EscapeString(text) + `</div>`}
}

// preservePDF embeds the original file so the browser's own viewer renders it.
func preservePDF(data []byte) string {
	src := "data:application/pdf;base64," + base64.StdEncoding.EncodeToString(data)
	var b strings.Builder
	b.WriteString(`<div class="pdf-preserved">`)
	b.WriteString(`<object data="` + src + `" type="application/pdf" width="100%" height="800px">`)
	b.WriteString(`<embed src="` + src + `" type="application/pdf" width="100%" height="800px"/>`)
	b.WriteString(`</object></div>`)
	return b.String()
}

func placeholderPage(message string) string {
	return `<div class="page-placeholder"><p>` + html.EscapeString(message) + `</p></div>`
}

// paragraphs wraps blank-line separated blocks of extracted text in <p> tags.
func paragraphs(text string) string {
	var b strings.Builder
	b.WriteString(`<div class="pdf-page">`)
	wrote := false
	for _, block := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n\n") {
		lines := strings.Fields(strings.ReplaceAll(block, "\n", " "))
		if len(lines) == 0 {
			continue
		}
		b.WriteString("<p>")
		b.WriteString(html.EscapeString(strings.Join(lines, " ")))
		b.WriteString("</p>")
		wrote = true
	}
	if !wrote {
		b.WriteString(`<p class="empty-page">This page has no extractable text.</p>`)
	}
	b.WriteString(`</div>`)
	return b.String()
}
