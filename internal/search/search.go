// Package search indexes documents in Meilisearch with a Postgres
// full-text fallback.
package search

import (
	"strings"

	"golang.org/x/net/html"

	"pageforge/api/internal/store"
)

type Result struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Type    string `json:"type"`
	Status  string `json:"status"`
	Snippet string `json:"snippet"`
}

// Query is always scoped to the documents UserID can see.
type Query struct {
	Text   string
	UserID string
	Limit  int
	Offset int
}

type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// DocumentRecord is the data we index for a document. Members holds the owner
// and every collaborator so visibility can be filtered in the index.
type DocumentRecord struct {
	ID      string   `json:"id"`
	Title   string   `json:"title"`
	Type    string   `json:"type"`
	Status  string   `json:"status"`
	Tags    []string `json:"tags"`
	Text    string   `json:"text"`
	Members []string `json:"members"`
}

const maxIndexedText = 20000

func RecordFromDocument(doc store.Document) DocumentRecord {
	members := []string{doc.OwnerID}
	for _, c := range doc.Collaborators {
		members = append(members, c.UserID)
	}
	parts := make([]string, 0, len(doc.Pages))
	for _, page := range doc.Pages {
		if text := PlainText(page.Content); text != "" {
			parts = append(parts, text)
		}
	}
	text := strings.Join(parts, "\n")
	if len(text) > maxIndexedText {
		text = text[:maxIndexedText]
	}
	tags := doc.Tags
	if tags == nil {
		tags = []string{}
	}
	return DocumentRecord{
		ID:      doc.ID,
		Title:   doc.Title,
		Type:    doc.Type,
		Status:  doc.Status,
		Tags:    tags,
		Text:    text,
		Members: members,
	}
}

// PlainText strips markup from a page fragment and collapses whitespace.
func PlainText(fragment string) string {
	tokenizer := html.NewTokenizer(strings.NewReader(fragment))
	var b strings.Builder
	skip := 0
	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			return strings.Join(strings.Fields(b.String()), " ")
		case html.StartTagToken:
			name, _ := tokenizer.TagName()
			if tag := string(name); tag == "script" || tag == "style" {
				skip++
			}
			b.WriteByte(' ')
		case html.EndTagToken:
			name, _ := tokenizer.TagName()
			if tag := string(name); (tag == "script" || tag == "style") && skip > 0 {
				skip--
			}
			b.WriteByte(' ')
		case html.TextToken:
			if skip == 0 {
				b.Write(tokenizer.Text())
			}
		}
	}
}
