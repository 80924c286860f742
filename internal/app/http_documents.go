package app

import (
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"pageforge/api/internal/auth"
	"pageforge/api/internal/authpw"
	"pageforge/api/internal/export"
	"pageforge/api/internal/store"
)

func tokenResponse(sess Session) map[string]any {
	return map[string]any{
		"access_token":  sess.Token,
		"token_type":    "bearer",
		"refresh_token": sess.RefreshToken,
		"expires_in":    int(time.Until(sess.ExpiresAt).Seconds()),
	}
}

func (s *HTTPServer) handleRegister(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email        string `json:"email"`
		FullName     string `json:"full_name"`
		Password     string `json:"password"`
		Role         string `json:"role"`
		Organization string `json:"organization"`
	}
	if !bind(w, r, &body) {
		return
	}
	sess, user, err := s.service.Register(r.Context(), authpw.RegisterRequest{
		Email:        body.Email,
		FullName:     body.FullName,
		Password:     body.Password,
		Role:         body.Role,
		Organization: body.Organization,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	response := tokenResponse(sess)
	response["user"] = user
	writeJSON(w, http.StatusCreated, response)
}

func (s *HTTPServer) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if !bind(w, r, &body) {
		return
	}
	sess, user, err := s.service.Login(r.Context(), body.Email, body.Password)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	response := tokenResponse(sess)
	response["user"] = user
	writeJSON(w, http.StatusOK, response)
}

func (s *HTTPServer) handleRefresh(scope string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			RefreshToken string `json:"refresh_token"`
		}
		if !bind(w, r, &body) {
			return
		}
		if strings.TrimSpace(body.RefreshToken) == "" {
			writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "refresh_token is required", nil)
			return
		}
		sess, err := s.service.Refresh(r.Context(), body.RefreshToken, scope)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, tokenResponse(sess))
	}
}

func (s *HTTPServer) handleLogout(w http.ResponseWriter, r *http.Request) {
	var body struct {
		RefreshToken string `json:"refresh_token"`
	}
	if r.ContentLength != 0 && !bind(w, r, &body) {
		return
	}
	if err := s.service.Logout(r.Context(), sessionFrom(r), body.RefreshToken); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "Logged out"})
}

func (s *HTTPServer) handleMe(w http.ResponseWriter, r *http.Request) {
	user, err := s.service.Me(r.Context(), sessionFrom(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (s *HTTPServer) handleUpdateMe(w http.ResponseWriter, r *http.Request) {
	var body UpdateProfileInput
	if !bind(w, r, &body) {
		return
	}
	user, err := s.service.UpdateProfile(r.Context(), sessionFrom(r), body)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (s *HTTPServer) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	documents, err := s.service.ListDocuments(r.Context(), sessionFrom(r), ListDocumentsInput{
		Type:   strings.TrimSpace(query.Get("type")),
		Status: strings.TrimSpace(query.Get("status")),
		Limit:  queryInt(r, "limit"),
		Offset: queryInt(r, "offset"),
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, documents)
}

func (s *HTTPServer) handleCreateDocument(w http.ResponseWriter, r *http.Request) {
	var body CreateDocumentInput
	if !bind(w, r, &body) {
		return
	}
	doc, err := s.service.CreateDocument(r.Context(), sessionFrom(r), body)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, doc)
}

func (s *HTTPServer) handleUploadDocument(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.service.cfg.MaxUpload)
	if err := r.ParseMultipartForm(8 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "VALIDATION_ERROR",
				fmt.Sprintf("file exceeds the %d byte upload limit", tooLarge.Limit), nil)
			return
		}
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "multipart form expected", nil)
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "file is required", nil)
		return
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	extractText := true
	if raw := strings.TrimSpace(r.FormValue("extract_text")); raw != "" {
		if extractText, err = strconv.ParseBool(raw); err != nil {
			writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "extract_text must be a boolean", nil)
			return
		}
	}

	doc, result, err := s.service.UploadDocument(r.Context(), sessionFrom(r), UploadInput{
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Data:        data,
		Title:       r.FormValue("title"),
		Type:        r.FormValue("document_type"),
		ExtractText: extractText,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"message":           "Document uploaded and processed successfully",
		"document":          doc,
		"total_pages":       len(doc.Pages),
		"processing_method": result.Method,
	})
}

func (s *HTTPServer) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := s.service.GetDocument(r.Context(), sessionFrom(r), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (s *HTTPServer) handleUpdateDocument(w http.ResponseWriter, r *http.Request) {
	var body UpdateDocumentInput
	if !bind(w, r, &body) {
		return
	}
	doc, err := s.service.UpdateDocument(r.Context(), sessionFrom(r), chi.URLParam(r, "id"), body)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (s *HTTPServer) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	if err := s.service.DeleteDocument(r.Context(), sessionFrom(r), chi.URLParam(r, "id")); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "Document deleted successfully"})
}

func (s *HTTPServer) handleUpdateSection(w http.ResponseWriter, r *http.Request) {
	var body SectionInput
	if !bind(w, r, &body) {
		return
	}
	section, err := s.service.UpdateSection(r.Context(), sessionFrom(r), chi.URLParam(r, "id"), chi.URLParam(r, "sectionID"), body)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "Section updated successfully", "section": section})
}

func (s *HTTPServer) handleUpdatePage(w http.ResponseWriter, r *http.Request) {
	n, ok := pageParam(w, r)
	if !ok {
		return
	}
	var body PageInput
	if !bind(w, r, &body) {
		return
	}
	page, err := s.service.UpdatePage(r.Context(), sessionFrom(r), chi.URLParam(r, "id"), n, body)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "Page updated successfully", "page": page})
}

func (s *HTTPServer) handleAddMultimedia(w http.ResponseWriter, r *http.Request) {
	n, ok := pageParam(w, r)
	if !ok {
		return
	}
	var body store.MultimediaElement
	if !bind(w, r, &body) {
		return
	}
	element, err := s.service.AddMultimedia(r.Context(), sessionFrom(r), chi.URLParam(r, "id"), n, body)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "Multimedia element added to page successfully", "element": element})
}

func (s *HTTPServer) handleAddInteractive(w http.ResponseWriter, r *http.Request) {
	n, ok := pageParam(w, r)
	if !ok {
		return
	}
	var body store.InteractiveElement
	if !bind(w, r, &body) {
		return
	}
	element, err := s.service.AddInteractive(r.Context(), sessionFrom(r), chi.URLParam(r, "id"), n, body)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "Interactive element added to page successfully", "element": element})
}

func (s *HTTPServer) handleListComments(w http.ResponseWriter, r *http.Request) {
	comments, err := s.service.ListComments(r.Context(), sessionFrom(r), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, comments)
}

func (s *HTTPServer) handleAddComment(w http.ResponseWriter, r *http.Request) {
	var body CommentInput
	if !bind(w, r, &body) {
		return
	}
	comment, err := s.service.AddComment(r.Context(), sessionFrom(r), chi.URLParam(r, "id"), body)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, comment)
}

func (s *HTTPServer) handleResolveComment(w http.ResponseWriter, r *http.Request) {
	comment, err := s.service.ResolveComment(r.Context(), sessionFrom(r), chi.URLParam(r, "id"), chi.URLParam(r, "commentID"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, comment)
}

func (s *HTTPServer) handleAddCollaborator(w http.ResponseWriter, r *http.Request) {
	var body CollaboratorInput
	if !bind(w, r, &body) {
		return
	}
	collaborator, err := s.service.AddCollaborator(r.Context(), sessionFrom(r), chi.URLParam(r, "id"), body)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "Collaborator added successfully", "collaborator": collaborator})
}

func (s *HTTPServer) handleRemoveCollaborator(w http.ResponseWriter, r *http.Request) {
	if err := s.service.RemoveCollaborator(r.Context(), sessionFrom(r), chi.URLParam(r, "id"), chi.URLParam(r, "userID")); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "Collaborator removed successfully"})
}

func (s *HTTPServer) handleShareDocument(w http.ResponseWriter, r *http.Request) {
	link, err := s.service.ShareDocument(r.Context(), sessionFrom(r), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, link)
}

func (s *HTTPServer) handleSharedDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := s.service.OpenSharedDocument(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (s *HTTPServer) handleListVersions(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	versions, err := s.service.ListVersions(r.Context(), sessionFrom(r), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"document_id": id, "versions": versions})
}

func (s *HTTPServer) handleGetVersion(w http.ResponseWriter, r *http.Request) {
	content, snapshot, err := s.service.GetVersion(r.Context(), sessionFrom(r), chi.URLParam(r, "id"), chi.URLParam(r, "hash"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"version": snapshot, "content": content})
}

func (s *HTTPServer) handleExport(w http.ResponseWriter, r *http.Request) {
	format, ok := export.ParseFormat(strings.ToLower(strings.TrimSpace(r.URL.Query().Get("format"))))
	if !ok {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "format must be pdf or docx", nil)
		return
	}
	result, err := s.service.ExportDocument(r.Context(), sessionFrom(r), chi.URLParam(r, "id"), format)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeFile(w, result.MimeType, result.Filename, result.Data)
}

func (s *HTTPServer) handleOriginal(w http.ResponseWriter, r *http.Request) {
	original, err := s.service.DownloadOriginal(r.Context(), sessionFrom(r), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeFile(w, original.ContentType, original.Filename, original.Data)
}

func writeFile(w http.ResponseWriter, contentType, filename string, data []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (s *HTTPServer) handleSearch(w http.ResponseWriter, r *http.Request) {
	text := strings.TrimSpace(r.URL.Query().Get("q"))
	if text == "" {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "q is required", nil)
		return
	}
	writeJSON(w, http.StatusOK, s.service.Search(r.Context(), sessionFrom(r), text, queryInt(r, "limit"), queryInt(r, "offset")))
}

func (s *HTTPServer) handleLive(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if token == "" {
		token = strings.TrimSpace(r.URL.Query().Get("token"))
	}
	sess, ok := s.authenticate(w, r, token, auth.ScopeDocuments)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")
	if err := s.service.AuthorizeLive(r.Context(), sess, id); err != nil {
		s.fail(w, r, err)
		return
	}
	if s.service.live == nil {
		writeError(w, http.StatusServiceUnavailable, "LIVE_UNAVAILABLE", "Live updates are disabled", nil)
		return
	}
	s.service.live.Serve(w, r, id)
}

// remoteIP strips the port from the connection's remote address. Forwarded
// headers only count when middleware.RealIP is mounted for a trusted proxy.
func remoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
