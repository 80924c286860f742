package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"sort"
	"strings"

	"pageforge/api/internal/blob"
	"pageforge/api/internal/email"
	"pageforge/api/internal/export"
	"pageforge/api/internal/gitrepo"
	"pageforge/api/internal/ingest"
	"pageforge/api/internal/rbac"
	"pageforge/api/internal/search"
	"pageforge/api/internal/store"
	"pageforge/api/internal/util"
)

const (
	maxListLimit   = 200
	historyLimit   = 50
	statusDraft    = "draft"
	statusSent     = "sent"
	statusViewed   = "viewed"
	anonymousActor = "anonymous"
)

var allowedDocumentTypes = map[string]struct{}{
	"rfp":          {},
	"proposal":     {},
	"contract":     {},
	"presentation": {},
	"other":        {},
}

var allowedDocumentStatuses = map[string]struct{}{
	"draft":        {},
	"under_review": {},
	"approved":     {},
	"sent":         {},
	"viewed":       {},
	"signed":       {},
}

var allowedMultimediaTypes = map[string]struct{}{
	"video": {},
	"audio": {},
	"image": {},
}

var allowedInteractiveTypes = map[string]struct{}{
	"button":          {},
	"signature_field": {},
	"input_field":     {},
	"checkbox":        {},
	"date_field":      {},
}

func grantsOf(doc store.Document) []rbac.Grant {
	grants := make([]rbac.Grant, 0, len(doc.Collaborators))
	for _, c := range doc.Collaborators {
		grants = append(grants, rbac.Grant{UserID: c.UserID, Role: c.Role})
	}
	return grants
}

// authorize loads the document and checks capability. A missing document is
// reported before any permission evaluation.
func (s *Service) authorize(ctx context.Context, sess Session, documentID string, capability rbac.Capability) (store.Document, error) {
	doc, err := s.store.GetDocument(ctx, documentID)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Document{}, notFound("Document not found")
	}
	if err != nil {
		return store.Document{}, err
	}
	subject := rbac.Subject{UserID: sess.UserID, Role: sess.Role}
	if err := rbac.Authorize(doc.OwnerID, grantsOf(doc), subject, capability); err != nil {
		return store.Document{}, forbidden("Insufficient permissions", map[string]any{
			"capability": string(capability),
		})
	}
	return doc, nil
}

// renumberPages restores the dense 1..N page sequence.
func renumberPages(pages []store.Page) []store.Page {
	out := make([]store.Page, 0, len(pages))
	for i, page := range pages {
		page.PageNumber = i + 1
		if page.ID == "" {
			page.ID = util.NewID("page")
		}
		if page.MultimediaElements == nil {
			page.MultimediaElements = []store.MultimediaElement{}
		}
		if page.InteractiveElements == nil {
			page.InteractiveElements = []store.InteractiveElement{}
		}
		out = append(out, page)
	}
	return out
}

func renumberSections(sections []store.Section) []store.Section {
	out := make([]store.Section, 0, len(sections))
	for i, section := range sections {
		section.Order = i + 1
		if section.ID == "" {
			section.ID = util.NewID("section")
		}
		if section.Version == 0 {
			section.Version = 1
		}
		out = append(out, section)
	}
	return out
}

type CreateDocumentInput struct {
	Title         string               `json:"title"`
	Type          string               `json:"type"`
	Organization  string               `json:"organization"`
	Sections      []store.Section      `json:"sections"`
	Pages         []store.Page         `json:"pages"`
	Collaborators []store.Collaborator `json:"collaborators"`
	Tags          []string             `json:"tags"`
	Metadata      map[string]any       `json:"metadata"`
}

func (s *Service) CreateDocument(ctx context.Context, sess Session, input CreateDocumentInput) (store.Document, error) {
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return store.Document{}, validationError("title is required")
	}
	if _, ok := allowedDocumentTypes[input.Type]; !ok {
		return store.Document{}, validationError(fmt.Sprintf("unknown document type %q", input.Type))
	}
	collaborators, err := s.validCollaborators(input.Collaborators, sess.UserID)
	if err != nil {
		return store.Document{}, err
	}

	now := s.now()
	doc := store.Document{
		ID:             util.NewID("doc"),
		Title:          title,
		Type:           input.Type,
		Status:         statusDraft,
		OwnerID:        sess.UserID,
		Organization:   firstNonBlank(sess.Tenant, input.Organization),
		Sections:       renumberSections(input.Sections),
		Pages:          renumberPages(input.Pages),
		Comments:       []store.Comment{},
		Collaborators:  collaborators,
		Tags:           input.Tags,
		Metadata:       input.Metadata,
		CurrentVersion: 1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.store.InsertDocument(ctx, doc); err != nil {
		return store.Document{}, err
	}

	s.snapshot(doc, sess, "Create document")
	s.indexDocument(doc)
	s.logActivity(ctx, sess, doc.ID, "create", map[string]any{"title": doc.Title, "type": doc.Type})
	return doc, nil
}

func (s *Service) validCollaborators(collaborators []store.Collaborator, ownerID string) ([]store.Collaborator, error) {
	out := make([]store.Collaborator, 0, len(collaborators))
	seen := map[string]struct{}{}
	for _, c := range collaborators {
		if strings.TrimSpace(c.UserID) == "" {
			return nil, validationError("collaborator user_id is required")
		}
		if !rbac.Valid(c.Role) {
			return nil, validationError(fmt.Sprintf("unknown collaborator role %q", c.Role))
		}
		if c.UserID == ownerID {
			continue
		}
		if _, dup := seen[c.UserID]; dup {
			continue
		}
		seen[c.UserID] = struct{}{}
		if c.AddedAt.IsZero() {
			c.AddedAt = s.now()
		}
		out = append(out, c)
	}
	return out, nil
}

type UploadInput struct {
	Filename    string
	ContentType string
	Data        []byte
	Title       string
	Type        string
	ExtractText bool
}

// UploadDocument normalizes the file into pages and stores it as a new draft.
func (s *Service) UploadDocument(ctx context.Context, sess Session, input UploadInput) (store.Document, ingest.Result, error) {
	if !ingest.Supported(input.ContentType) {
		return store.Document{}, ingest.Result{}, domainError(http.StatusBadRequest, "UNSUPPORTED_MEDIA",
			"Unsupported file type. Please upload PDF, DOCX, or TXT files.", map[string]any{"content_type": input.ContentType})
	}
	docType := firstNonBlank(input.Type, "other")
	if _, ok := allowedDocumentTypes[docType]; !ok {
		return store.Document{}, ingest.Result{}, validationError(fmt.Sprintf("unknown document type %q", docType))
	}

	result, err := ingest.Normalize(ingest.Upload{
		Filename:    input.Filename,
		ContentType: input.ContentType,
		Data:        input.Data,
	}, ingest.Preference{PreservePDF: !input.ExtractText})
	if errors.Is(err, ingest.ErrMalformed) {
		return store.Document{}, ingest.Result{}, validationError(err.Error())
	}
	if err != nil {
		return store.Document{}, ingest.Result{}, err
	}

	title := strings.TrimSpace(input.Title)
	if title == "" {
		title = strings.TrimSuffix(input.Filename, extOf(input.Filename))
	}
	if title == "" {
		title = "Untitled document"
	}

	now := s.now()
	doc := store.Document{
		ID:             util.NewID("doc"),
		Title:          title,
		Type:           docType,
		Status:         statusDraft,
		OwnerID:        sess.UserID,
		Organization:   sess.Tenant,
		Sections:       result.Sections,
		Pages:          result.Pages,
		Comments:       []store.Comment{},
		Collaborators:  []store.Collaborator{},
		Tags:           []string{},
		Metadata:       result.Metadata,
		CurrentVersion: 1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if s.blobs != nil {
		key := blob.ObjectKey(doc.ID, input.Filename)
		if err := s.blobs.Put(ctx, key, input.ContentType, input.Data); err != nil {
			s.logger.Warn("store original upload", slog.String("document_id", doc.ID), slog.Any("error", err))
		} else {
			doc.OriginalKey = &key
		}
	}

	if err := s.store.InsertDocument(ctx, doc); err != nil {
		return store.Document{}, ingest.Result{}, err
	}

	s.snapshot(doc, sess, "Upload "+input.Filename)
	s.indexDocument(doc)
	s.logActivity(ctx, sess, doc.ID, "upload", map[string]any{
		"filename":          input.Filename,
		"content_type":      input.ContentType,
		"total_pages":       len(doc.Pages),
		"processing_method": result.Method,
	})
	return doc, result, nil
}

func extOf(filename string) string {
	if i := strings.LastIndex(filename, "."); i > 0 {
		return filename[i:]
	}
	return ""
}

type ListDocumentsInput struct {
	Type   string
	Status string
	Limit  int
	Offset int
}

func (s *Service) ListDocuments(ctx context.Context, sess Session, input ListDocumentsInput) ([]store.Document, error) {
	if input.Limit > maxListLimit {
		input.Limit = maxListLimit
	}
	documents, err := s.store.ListDocuments(ctx, store.DocumentFilter{
		UserID: sess.UserID,
		Type:   input.Type,
		Status: input.Status,
		Limit:  input.Limit,
		Offset: input.Offset,
	})
	if err != nil {
		return nil, err
	}
	for i := range documents {
		documents[i].Comments = commentTree(documents[i].Comments)
	}
	return documents, nil
}

func (s *Service) GetDocument(ctx context.Context, sess Session, documentID string) (store.Document, error) {
	doc, err := s.authorize(ctx, sess, documentID, rbac.CapView)
	if err != nil {
		return store.Document{}, err
	}
	doc.Comments = commentTree(doc.Comments)
	return doc, nil
}

// UpdateDocumentInput holds the fields of a partial update. Nil means the
// field was not supplied.
type UpdateDocumentInput struct {
	Title         *string               `json:"title"`
	Status        *string               `json:"status"`
	Sections      *[]store.Section      `json:"sections"`
	Pages         *[]store.Page         `json:"pages"`
	Collaborators *[]store.Collaborator `json:"collaborators"`
	Tags          *[]string             `json:"tags"`
	Metadata      map[string]any        `json:"metadata"`
}

func (s *Service) UpdateDocument(ctx context.Context, sess Session, documentID string, input UpdateDocumentInput) (store.Document, error) {
	capability := rbac.CapEdit
	if input.Collaborators != nil {
		capability = rbac.CapAdmin
	}
	current, err := s.authorize(ctx, sess, documentID, capability)
	if err != nil {
		return store.Document{}, err
	}
	if input.Title != nil && strings.TrimSpace(*input.Title) == "" {
		return store.Document{}, validationError("title cannot be empty")
	}
	if input.Status != nil {
		if _, ok := allowedDocumentStatuses[*input.Status]; !ok {
			return store.Document{}, validationError(fmt.Sprintf("unknown status %q", *input.Status))
		}
	}
	var collaborators []store.Collaborator
	if input.Collaborators != nil {
		if collaborators, err = s.validCollaborators(*input.Collaborators, current.OwnerID); err != nil {
			return store.Document{}, err
		}
	}

	updated, err := s.store.MutateDocument(ctx, documentID, func(doc *store.Document) error {
		if input.Title != nil {
			doc.Title = strings.TrimSpace(*input.Title)
		}
		if input.Status != nil {
			doc.Status = *input.Status
		}
		if input.Sections != nil {
			doc.Sections = renumberSections(*input.Sections)
		}
		if input.Pages != nil {
			doc.Pages = renumberPages(*input.Pages)
		}
		if input.Collaborators != nil {
			doc.Collaborators = collaborators
		}
		if input.Tags != nil {
			doc.Tags = *input.Tags
		}
		if input.Metadata != nil {
			doc.Metadata = input.Metadata
		}
		doc.CurrentVersion++
		doc.UpdatedAt = s.now()
		return nil
	})
	if err != nil {
		return store.Document{}, err
	}

	changed := gitrepo.ChangedFields(gitrepo.ContentOf(current), gitrepo.ContentOf(updated))
	s.snapshot(updated, sess, "Update "+strings.Join(changed, ", "))
	s.indexDocument(updated)
	s.logActivity(ctx, sess, documentID, "edit", map[string]any{"fields": changed, "version": updated.CurrentVersion})
	updated.Comments = commentTree(updated.Comments)
	return updated, nil
}

func (s *Service) DeleteDocument(ctx context.Context, sess Session, documentID string) error {
	doc, err := s.authorize(ctx, sess, documentID, rbac.CapAdmin)
	if err != nil {
		return err
	}
	// Logged first so the entry is orphaned together with the rest.
	s.logActivity(ctx, sess, documentID, "delete", map[string]any{"title": doc.Title})
	if err := s.store.DeleteDocument(ctx, documentID); err != nil {
		return err
	}

	if s.search != nil {
		s.search.DeleteDocument(documentID)
	}
	if s.blobs != nil && doc.OriginalKey != nil {
		if err := s.blobs.Remove(ctx, *doc.OriginalKey); err != nil {
			s.logger.Warn("remove original upload", slog.String("document_id", documentID), slog.Any("error", err))
		}
	}
	if s.git != nil {
		if err := s.git.Remove(documentID); err != nil {
			s.logger.Warn("remove document history", slog.String("document_id", documentID), slog.Any("error", err))
		}
	}
	return nil
}

type SectionInput struct {
	Title   *string `json:"title"`
	Content *string `json:"content"`
}

func (s *Service) UpdateSection(ctx context.Context, sess Session, documentID, sectionID string, input SectionInput) (store.Section, error) {
	if _, err := s.authorize(ctx, sess, documentID, rbac.CapEdit); err != nil {
		return store.Section{}, err
	}
	var section store.Section
	updated, err := s.store.MutateDocument(ctx, documentID, func(doc *store.Document) error {
		for i := range doc.Sections {
			if doc.Sections[i].ID != sectionID {
				continue
			}
			if input.Title != nil {
				doc.Sections[i].Title = *input.Title
			}
			if input.Content != nil {
				doc.Sections[i].Content = *input.Content
			}
			doc.Sections[i].Version++
			doc.UpdatedAt = s.now()
			section = doc.Sections[i]
			return nil
		}
		return notFound("Section not found")
	})
	if err != nil {
		return store.Section{}, err
	}
	s.snapshot(updated, sess, "Update section "+section.Title)
	s.indexDocument(updated)
	s.logActivity(ctx, sess, documentID, "edit", map[string]any{"section_id": sectionID})
	return section, nil
}

type PageInput struct {
	Title   *string `json:"title"`
	Content *string `json:"content"`
}

func (s *Service) UpdatePage(ctx context.Context, sess Session, documentID string, pageNumber int, input PageInput) (store.Page, error) {
	if _, err := s.authorize(ctx, sess, documentID, rbac.CapEdit); err != nil {
		return store.Page{}, err
	}
	var page store.Page
	updated, err := s.mutatePage(ctx, documentID, pageNumber, func(p *store.Page) {
		if input.Title != nil {
			p.Title = *input.Title
		}
		if input.Content != nil {
			p.Content = *input.Content
		}
		page = *p
	})
	if err != nil {
		return store.Page{}, err
	}
	s.snapshot(updated, sess, fmt.Sprintf("Update page %d", pageNumber))
	s.indexDocument(updated)
	s.logActivity(ctx, sess, documentID, "edit", map[string]any{"page_number": pageNumber})
	return page, nil
}

// mutatePage edits the page with pageNumber under the document row lock.
func (s *Service) mutatePage(ctx context.Context, documentID string, pageNumber int, fn func(*store.Page)) (store.Document, error) {
	return s.store.MutateDocument(ctx, documentID, func(doc *store.Document) error {
		for i := range doc.Pages {
			if doc.Pages[i].PageNumber == pageNumber {
				fn(&doc.Pages[i])
				doc.UpdatedAt = s.now()
				return nil
			}
		}
		return notFound("Page not found")
	})
}

func (s *Service) AddMultimedia(ctx context.Context, sess Session, documentID string, pageNumber int, element store.MultimediaElement) (store.MultimediaElement, error) {
	if _, ok := allowedMultimediaTypes[element.Type]; !ok {
		return store.MultimediaElement{}, validationError(fmt.Sprintf("unknown multimedia type %q", element.Type))
	}
	if strings.TrimSpace(element.URL) == "" {
		return store.MultimediaElement{}, validationError("url is required")
	}
	if _, err := s.authorize(ctx, sess, documentID, rbac.CapEdit); err != nil {
		return store.MultimediaElement{}, err
	}
	element.ID = util.NewID("media")
	updated, err := s.mutatePage(ctx, documentID, pageNumber, func(p *store.Page) {
		p.MultimediaElements = append(p.MultimediaElements, element)
	})
	if err != nil {
		return store.MultimediaElement{}, err
	}
	s.snapshot(updated, sess, fmt.Sprintf("Add %s to page %d", element.Type, pageNumber))
	s.logActivity(ctx, sess, documentID, "edit", map[string]any{"page_number": pageNumber, "multimedia_id": element.ID})
	return element, nil
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Min(1, math.Max(0, v))
}

func (s *Service) AddInteractive(ctx context.Context, sess Session, documentID string, pageNumber int, element store.InteractiveElement) (store.InteractiveElement, error) {
	if _, ok := allowedInteractiveTypes[element.Type]; !ok {
		return store.InteractiveElement{}, validationError(fmt.Sprintf("unknown interactive type %q", element.Type))
	}
	if _, err := s.authorize(ctx, sess, documentID, rbac.CapEdit); err != nil {
		return store.InteractiveElement{}, err
	}
	element.ID = util.NewID("interactive")
	element.Position = store.Position{
		X:    clamp01(element.Position.X),
		Y:    clamp01(element.Position.Y),
		Page: pageNumber,
	}
	updated, err := s.mutatePage(ctx, documentID, pageNumber, func(p *store.Page) {
		p.InteractiveElements = append(p.InteractiveElements, element)
	})
	if err != nil {
		return store.InteractiveElement{}, err
	}
	s.snapshot(updated, sess, fmt.Sprintf("Add %s to page %d", element.Type, pageNumber))
	s.logActivity(ctx, sess, documentID, "edit", map[string]any{"page_number": pageNumber, "interactive_id": element.ID})
	return element, nil
}

type CommentInput struct {
	Content   string       `json:"content"`
	ParentID  string       `json:"parent_id"`
	SectionID string       `json:"section_id"`
	Position  *store.Point `json:"position"`
}

func (s *Service) AddComment(ctx context.Context, sess Session, documentID string, input CommentInput) (store.Comment, error) {
	content := strings.TrimSpace(input.Content)
	if content == "" {
		return store.Comment{}, validationError("content is required")
	}
	doc, err := s.authorize(ctx, sess, documentID, rbac.CapComment)
	if err != nil {
		return store.Comment{}, err
	}
	if input.ParentID != "" && !hasComment(doc.Comments, input.ParentID) {
		return store.Comment{}, notFound("Parent comment not found")
	}

	comment := store.Comment{
		ID:        util.NewID("comment"),
		ParentID:  input.ParentID,
		UserID:    sess.UserID,
		UserName:  sess.UserName,
		Content:   content,
		SectionID: input.SectionID,
		Position:  input.Position,
		Timestamp: s.now(),
	}
	if err := s.store.AppendComment(ctx, documentID, comment); err != nil {
		return store.Comment{}, err
	}
	s.logActivity(ctx, sess, documentID, "comment", map[string]any{"comment_id": comment.ID, "parent_id": comment.ParentID})
	return comment, nil
}

func hasComment(comments []store.Comment, id string) bool {
	for _, c := range comments {
		if c.ID == id {
			return true
		}
	}
	return false
}

func (s *Service) ListComments(ctx context.Context, sess Session, documentID string) ([]store.Comment, error) {
	doc, err := s.authorize(ctx, sess, documentID, rbac.CapView)
	if err != nil {
		return nil, err
	}
	return commentTree(doc.Comments), nil
}

func (s *Service) ResolveComment(ctx context.Context, sess Session, documentID, commentID string) (store.Comment, error) {
	if _, err := s.authorize(ctx, sess, documentID, rbac.CapComment); err != nil {
		return store.Comment{}, err
	}
	var resolved store.Comment
	_, err := s.store.MutateDocument(ctx, documentID, func(doc *store.Document) error {
		for i := range doc.Comments {
			if doc.Comments[i].ID == commentID {
				doc.Comments[i].Resolved = true
				resolved = doc.Comments[i]
				return nil
			}
		}
		return notFound("Comment not found")
	})
	if err != nil {
		return store.Comment{}, err
	}
	s.logActivity(ctx, sess, documentID, "comment", map[string]any{"comment_id": commentID, "resolved": true})
	return resolved, nil
}

// commentTree nests replies under their parents, each level ordered by
// timestamp. Replies to unknown parents are promoted to the top level.
func commentTree(flat []store.Comment) []store.Comment {
	known := make(map[string]struct{}, len(flat))
	for _, c := range flat {
		known[c.ID] = struct{}{}
	}
	children := map[string][]store.Comment{}
	for _, c := range flat {
		parent := c.ParentID
		if _, ok := known[parent]; !ok || parent == c.ID {
			parent = ""
		}
		c.Replies = nil
		children[parent] = append(children[parent], c)
	}

	var build func(parent string) []store.Comment
	build = func(parent string) []store.Comment {
		level := children[parent]
		sort.SliceStable(level, func(i, j int) bool { return level[i].Timestamp.Before(level[j].Timestamp) })
		out := make([]store.Comment, 0, len(level))
		for _, c := range level {
			if replies := build(c.ID); len(replies) > 0 {
				c.Replies = replies
			}
			out = append(out, c)
		}
		return out
	}
	return build("")
}

type CollaboratorInput struct {
	Email string `json:"email"`
	Role  string `json:"role"`
}

func (s *Service) AddCollaborator(ctx context.Context, sess Session, documentID string, input CollaboratorInput) (store.Collaborator, error) {
	if !rbac.Valid(input.Role) {
		return store.Collaborator{}, validationError(fmt.Sprintf("unknown collaborator role %q", input.Role))
	}
	doc, err := s.authorize(ctx, sess, documentID, rbac.CapAdmin)
	if err != nil {
		return store.Collaborator{}, err
	}
	user, err := s.store.GetUserByEmail(ctx, strings.ToLower(strings.TrimSpace(input.Email)))
	if errors.Is(err, sql.ErrNoRows) {
		return store.Collaborator{}, notFound("User not found")
	}
	if err != nil {
		return store.Collaborator{}, err
	}
	if user.ID == doc.OwnerID {
		return store.Collaborator{}, validationError("the owner cannot be added as a collaborator")
	}

	binding := store.Collaborator{UserID: user.ID, Role: input.Role, AddedAt: s.now()}
	updated, err := s.store.MutateDocument(ctx, documentID, func(d *store.Document) error {
		kept := d.Collaborators[:0]
		for _, c := range d.Collaborators {
			if c.UserID != user.ID {
				kept = append(kept, c)
			}
		}
		d.Collaborators = append(kept, binding)
		d.UpdatedAt = s.now()
		return nil
	})
	if err != nil {
		return store.Collaborator{}, err
	}

	s.indexDocument(updated)
	s.logActivity(ctx, sess, documentID, "share", map[string]any{"user_id": user.ID, "role": input.Role})
	s.sendInvitation(user, doc, sess, input.Role)
	return binding, nil
}

func (s *Service) sendInvitation(user store.User, doc store.Document, sess Session, role string) {
	if !s.mailer.IsConfigured() {
		return
	}
	data := email.InvitationData{
		AppName:       "Pageforge",
		InviteeName:   user.FullName,
		InviterName:   sess.UserName,
		DocumentTitle: doc.Title,
		Role:          role,
		DocumentURL:   strings.TrimRight(s.cfg.PublicURL, "/") + "/documents/" + doc.ID,
	}
	go func() {
		if err := s.mailer.SendCollaboratorInvitation(user.Email, data); err != nil {
			s.logger.Warn("send invitation", slog.String("document_id", doc.ID), slog.Any("error", err))
		}
	}()
}

func (s *Service) RemoveCollaborator(ctx context.Context, sess Session, documentID, userID string) error {
	if _, err := s.authorize(ctx, sess, documentID, rbac.CapAdmin); err != nil {
		return err
	}
	updated, err := s.store.MutateDocument(ctx, documentID, func(d *store.Document) error {
		kept := make([]store.Collaborator, 0, len(d.Collaborators))
		for _, c := range d.Collaborators {
			if c.UserID != userID {
				kept = append(kept, c)
			}
		}
		if len(kept) == len(d.Collaborators) {
			return notFound("Collaborator not found")
		}
		d.Collaborators = kept
		d.UpdatedAt = s.now()
		return nil
	})
	if err != nil {
		return err
	}
	s.indexDocument(updated)
	s.logActivity(ctx, sess, documentID, "share", map[string]any{"removed_user_id": userID})
	return nil
}

type ShareLink struct {
	Token string `json:"shared_link"`
	URL   string `json:"url"`
}

// ShareDocument returns the document's shared link, creating it on first use.
func (s *Service) ShareDocument(ctx context.Context, sess Session, documentID string) (ShareLink, error) {
	if _, err := s.authorize(ctx, sess, documentID, rbac.CapAdmin); err != nil {
		return ShareLink{}, err
	}
	updated, err := s.store.MutateDocument(ctx, documentID, func(d *store.Document) error {
		if d.SharedLink == nil {
			token := util.NewID("")
			d.SharedLink = &token
			d.UpdatedAt = s.now()
		}
		return nil
	})
	if err != nil {
		return ShareLink{}, err
	}
	token := *updated.SharedLink
	s.logActivity(ctx, sess, documentID, "share", map[string]any{"shared_link": true})
	return ShareLink{
		Token: token,
		URL:   strings.TrimRight(s.cfg.PublicURL, "/") + "/shared/" + token,
	}, nil
}

type SharedDocument struct {
	ID     string       `json:"id"`
	Title  string       `json:"title"`
	Type   string       `json:"type"`
	Status string       `json:"status"`
	Pages  []store.Page `json:"pages"`
}

// OpenSharedDocument serves anonymous recipients. A sent document becomes viewed.
func (s *Service) OpenSharedDocument(ctx context.Context, token string) (SharedDocument, error) {
	if strings.TrimSpace(token) == "" {
		return SharedDocument{}, notFound("Shared document not found")
	}
	doc, err := s.store.GetDocumentBySharedLink(ctx, token)
	if errors.Is(err, sql.ErrNoRows) {
		return SharedDocument{}, notFound("Shared document not found")
	}
	if err != nil {
		return SharedDocument{}, err
	}
	if doc.Status == statusSent {
		doc, err = s.store.MutateDocument(ctx, doc.ID, func(d *store.Document) error {
			if d.Status == statusSent {
				d.Status = statusViewed
				d.UpdatedAt = s.now()
			}
			return nil
		})
		if err != nil {
			return SharedDocument{}, err
		}
	}
	s.logActivity(ctx, Session{UserName: anonymousActor}, doc.ID, "view", map[string]any{"via": "shared_link"})
	return SharedDocument{ID: doc.ID, Title: doc.Title, Type: doc.Type, Status: doc.Status, Pages: doc.Pages}, nil
}

func (s *Service) ListVersions(ctx context.Context, sess Session, documentID string) ([]gitrepo.Snapshot, error) {
	if _, err := s.authorize(ctx, sess, documentID, rbac.CapView); err != nil {
		return nil, err
	}
	if s.git == nil {
		return []gitrepo.Snapshot{}, nil
	}
	history, err := s.git.History(documentID, historyLimit)
	if errors.Is(err, gitrepo.ErrNoHistory) {
		return []gitrepo.Snapshot{}, nil
	}
	if err != nil {
		return nil, err
	}
	return history, nil
}

func (s *Service) GetVersion(ctx context.Context, sess Session, documentID, hash string) (gitrepo.Content, gitrepo.Snapshot, error) {
	if _, err := s.authorize(ctx, sess, documentID, rbac.CapView); err != nil {
		return gitrepo.Content{}, gitrepo.Snapshot{}, err
	}
	if s.git == nil {
		return gitrepo.Content{}, gitrepo.Snapshot{}, notFound("Version not found")
	}
	content, snap, err := s.git.GetContentByHash(documentID, hash)
	if err != nil {
		s.logger.Debug("version lookup failed", slog.String("document_id", documentID), slog.String("hash", hash), slog.Any("error", err))
		return gitrepo.Content{}, gitrepo.Snapshot{}, notFound("Version not found")
	}
	return content, snap, nil
}

// snapshot commits the document content to its history. History is an
// auxiliary record, so failures are only logged.
func (s *Service) snapshot(doc store.Document, sess Session, message string) {
	if s.git == nil {
		return
	}
	if _, err := s.git.CommitContent(doc.ID, gitrepo.ContentOf(doc), firstNonBlank(sess.UserName, sess.UserID), message); err != nil {
		s.logger.Warn("commit document snapshot", slog.String("document_id", doc.ID), slog.Any("error", err))
	}
}

func (s *Service) indexDocument(doc store.Document) {
	if s.search != nil {
		s.search.IndexDocument(doc)
	}
}

func (s *Service) ExportDocument(ctx context.Context, sess Session, documentID string, format export.Format) (*export.Result, error) {
	doc, err := s.authorize(ctx, sess, documentID, rbac.CapView)
	if err != nil {
		return nil, err
	}
	author := doc.OwnerID
	if owner, err := s.store.GetUserByID(ctx, doc.OwnerID); err == nil {
		author = owner.FullName
	}

	payload := export.Document{
		Title:     doc.Title,
		Type:      doc.Type,
		Status:    doc.Status,
		Author:    author,
		UpdatedAt: doc.UpdatedAt,
		Pages:     make([]export.Page, 0, len(doc.Pages)),
	}
	for _, page := range doc.Pages {
		payload.Pages = append(payload.Pages, export.Page{Number: page.PageNumber, Title: page.Title, Content: page.Content})
	}

	if s.exporter == nil {
		return nil, domainError(http.StatusServiceUnavailable, "EXPORT_UNAVAILABLE", "Export is not configured", nil)
	}
	result, err := s.exporter.Export(ctx, payload, format)
	switch {
	case errors.Is(err, export.ErrUnsupportedFormat):
		return nil, validationError("format must be pdf or docx")
	case errors.Is(err, export.ErrPDFDependencyMissing), errors.Is(err, export.ErrDOCXDependencyMissing):
		return nil, domainError(http.StatusServiceUnavailable, "EXPORT_UNAVAILABLE", "Export converter is not installed", map[string]any{
			"format": string(format),
		})
	case err != nil:
		return nil, err
	}
	s.logActivity(ctx, sess, documentID, "download", map[string]any{"format": string(format)})
	return result, nil
}

type Original struct {
	Filename    string
	ContentType string
	Data        []byte
}

func (s *Service) DownloadOriginal(ctx context.Context, sess Session, documentID string) (Original, error) {
	doc, err := s.authorize(ctx, sess, documentID, rbac.CapView)
	if err != nil {
		return Original{}, err
	}
	if s.blobs == nil || doc.OriginalKey == nil {
		return Original{}, notFound("Original file not available")
	}
	data, contentType, err := s.blobs.Get(ctx, *doc.OriginalKey)
	if errors.Is(err, blob.ErrNotFound) {
		return Original{}, notFound("Original file not available")
	}
	if err != nil {
		return Original{}, err
	}
	s.logActivity(ctx, sess, documentID, "download", map[string]any{"original": true})
	key := *doc.OriginalKey
	return Original{
		Filename:    key[strings.LastIndex(key, "/")+1:],
		ContentType: firstNonBlank(contentType, "application/octet-stream"),
		Data:        data,
	}, nil
}

func (s *Service) Search(ctx context.Context, sess Session, text string, limit, offset int) search.Response {
	if s.search == nil {
		return search.Response{Results: []search.Result{}, Query: text}
	}
	return s.search.Search(ctx, search.Query{Text: text, UserID: sess.UserID, Limit: limit, Offset: offset})
}

// AuthorizeLive checks that the caller may watch a document's live feed.
func (s *Service) AuthorizeLive(ctx context.Context, sess Session, documentID string) error {
	_, err := s.authorize(ctx, sess, documentID, rbac.CapView)
	return err
}

func firstNonBlank(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
