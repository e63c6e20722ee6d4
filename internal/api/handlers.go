package api

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/starford/refdeck/internal/draft"
	"github.com/starford/refdeck/internal/refservice"
)

// Handler holds API route handlers.
type Handler struct {
	svc *refservice.Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *refservice.Service) *Handler {
	return &Handler{svc: svc}
}

// docPath extracts the document path from the URL wildcard.
// Supports encoded slashes from OpenAPI clients (e.g. topics%2Fnote.md).
func docPath(r *http.Request) string {
	raw := strings.TrimPrefix(chi.URLParam(r, "*"), "/")
	if raw == "" {
		return ""
	}
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return raw
	}
	return decoded
}

// SearchDocuments handles GET /api/documents.
//
//	@Summary		Fuzzy search vault documents by path and title
//	@Tags			documents
//	@Produce		json
//	@Param			q		query		string	false	"Search query (empty lists all)"
//	@Param			limit	query		int		false	"Max results"
//	@Success		200		{object}	DocumentSearchResponse
//	@Security		BearerAuth
//	@Router			/documents [get]
func (h *Handler) SearchDocuments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	docs, err := h.svc.SearchDocuments(r.Context(), q, limit)
	if err != nil {
		writeError(w, "search documents", err)
		return
	}
	if docs == nil {
		docs = []DocumentMatch{}
	}
	writeJSON(w, http.StatusOK, DocumentSearchResponse{Documents: docs})
}

// SearchText handles GET /api/search.
//
//	@Summary		Full-text search over document titles, bodies and tags
//	@Tags			documents
//	@Produce		json
//	@Param			q		query		string	true	"Search query"
//	@Param			limit	query		int		false	"Max results"
//	@Success		200		{object}	TextSearchResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/search [get]
func (h *Handler) SearchText(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	results, err := h.svc.SearchText(r.Context(), q, limit)
	if err != nil {
		writeError(w, "search text", err)
		return
	}
	if results == nil {
		results = []TextMatch{}
	}
	writeJSON(w, http.StatusOK, TextSearchResponse{Results: results})
}

// GetPanel handles GET /api/references/*.
//
//	@Summary		Get the reference panel of a document
//	@Tags			references
//	@Produce		json
//	@Param			path	path		string	true	"Document path"
//	@Success		200		{object}	Panel
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/references/{path} [get]
func (h *Handler) GetPanel(w http.ResponseWriter, r *http.Request) {
	path := docPath(r)
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	p, err := h.svc.Panel(r.Context(), path)
	if err != nil {
		writeError(w, "get panel", err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// ToggleCollapse handles POST /api/collapse.
//
//	@Summary		Toggle the collapsed state of a panel entry
//	@Tags			references
//	@Accept			json
//	@Produce		json
//	@Param			body	body		CollapseRequest	true	"Entry to toggle"
//	@Success		200		{object}	CollapseResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/collapse [post]
func (h *Handler) ToggleCollapse(w http.ResponseWriter, r *http.Request) {
	var req CollapseRequest
	if !decodeBody(w, r, &req) {
		return
	}
	collapsed, err := h.svc.ToggleCollapse(r.Context(), req.Path, req.Key)
	if err != nil {
		writeError(w, "toggle collapse", err)
		return
	}
	writeJSON(w, http.StatusOK, CollapseResponse{Key: req.Key, Collapsed: collapsed})
}

// Referrers handles GET /api/referrers.
//
//	@Summary		List every reference pointing at an entry
//	@Tags			references
//	@Produce		json
//	@Param			entry	query		string	true	"Raw entry or document path"
//	@Success		200		{object}	ReferrersResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/referrers [get]
func (h *Handler) Referrers(w http.ResponseWriter, r *http.Request) {
	entry := r.URL.Query().Get("entry")
	if entry == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'entry' is required"))
		return
	}
	rr, err := h.svc.Referrers(r.Context(), entry)
	if err != nil {
		writeError(w, "referrers", err)
		return
	}
	if rr == nil {
		rr = []Referrer{}
	}
	writeJSON(w, http.StatusOK, ReferrersResponse{Entry: entry, Referrers: rr})
}

// Preview handles GET /api/preview.
//
//	@Summary		Render the content a reference points at
//	@Tags			references
//	@Produce		json
//	@Param			entry	query		string	true	"Raw entry"
//	@Param			source	query		string	false	"Document the entry belongs to"
//	@Success		200		{object}	preview.Result
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/preview [get]
func (h *Handler) Preview(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("entry") == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'entry' is required"))
		return
	}
	res, err := h.svc.Preview(r.Context(), q.Get("entry"), q.Get("source"))
	if err != nil {
		writeError(w, "preview", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// OpenSession handles POST /api/sessions.
//
//	@Summary		Open an editing session on a document
//	@Tags			sessions
//	@Accept			json
//	@Produce		json
//	@Param			body	body		OpenSessionRequest	true	"Document and initial field"
//	@Success		201		{object}	SessionView
//	@Failure		404		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/sessions [post]
func (h *Handler) OpenSession(w http.ResponseWriter, r *http.Request) {
	var req OpenSessionRequest
	if !decodeBody(w, r, &req) {
		return
	}
	sv, err := h.svc.OpenSession(r.Context(), req.Path, req.Field)
	if err != nil {
		writeError(w, "open session", err)
		return
	}
	writeJSON(w, http.StatusCreated, sv)
}

// GetSession handles GET /api/sessions/{id}.
//
//	@Summary		Get the state of an editing session
//	@Tags			sessions
//	@Produce		json
//	@Param			id	path		string	true	"Session id"
//	@Success		200	{object}	SessionView
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/sessions/{id} [get]
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	sv, err := h.svc.Session(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, "get session", err)
		return
	}
	writeJSON(w, http.StatusOK, sv)
}

// SwitchField handles POST /api/sessions/{id}/field.
//
//	@Summary		Switch the active field
//	@Tags			sessions
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string			true	"Session id"
//	@Param			body	body		FieldRequest	true	"Field"
//	@Success		200		{object}	SessionView
//	@Security		BearerAuth
//	@Router			/sessions/{id}/field [post]
func (h *Handler) SwitchField(w http.ResponseWriter, r *http.Request) {
	var req FieldRequest
	if !decodeBody(w, r, &req) {
		return
	}
	h.respond(w, "switch field")(h.svc.SwitchField(chi.URLParam(r, "id"), req.Field))
}

// Append handles POST /api/sessions/{id}/append.
//
//	@Summary		Append a raw entry to the active field
//	@Tags			sessions
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string			true	"Session id"
//	@Param			body	body		AppendRequest	true	"Entry"
//	@Success		200		{object}	SessionView
//	@Security		BearerAuth
//	@Router			/sessions/{id}/append [post]
func (h *Handler) Append(w http.ResponseWriter, r *http.Request) {
	var req AppendRequest
	if !decodeBody(w, r, &req) {
		return
	}
	h.respond(w, "append")(h.svc.Append(chi.URLParam(r, "id"), req.Entry))
}

// AppendNote handles POST /api/sessions/{id}/append-note.
//
//	@Summary		Append a link to a vault document
//	@Tags			sessions
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string				true	"Session id"
//	@Param			body	body		AppendNoteRequest	true	"Target and optional subpath"
//	@Success		200		{object}	SessionView
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/sessions/{id}/append-note [post]
func (h *Handler) AppendNote(w http.ResponseWriter, r *http.Request) {
	var req AppendNoteRequest
	if !decodeBody(w, r, &req) {
		return
	}
	h.respond(w, "append note")(h.svc.AppendNote(r.Context(), chi.URLParam(r, "id"), req.Target, req.Subpath))
}

// AppendURL handles POST /api/sessions/{id}/append-url.
//
//	@Summary		Append a URL to the active field
//	@Tags			sessions
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string				true	"Session id"
//	@Param			body	body		AppendURLRequest	true	"URL"
//	@Success		200		{object}	AppendURLResponse
//	@Security		BearerAuth
//	@Router			/sessions/{id}/append-url [post]
func (h *Handler) AppendURL(w http.ResponseWriter, r *http.Request) {
	var req AppendURLRequest
	if !decodeBody(w, r, &req) {
		return
	}
	sv, added, err := h.svc.AppendURL(r.Context(), chi.URLParam(r, "id"), req.URL)
	if err != nil {
		writeError(w, "append url", err)
		return
	}
	writeJSON(w, http.StatusOK, AppendURLResponse{Added: added, Session: sv})
}

// Reorder handles POST /api/sessions/{id}/reorder.
//
//	@Summary		Set the displayed order of the active field
//	@Tags			sessions
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string			true	"Session id"
//	@Param			body	body		ReorderRequest	true	"New order"
//	@Success		200		{object}	SessionView
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/sessions/{id}/reorder [post]
func (h *Handler) Reorder(w http.ResponseWriter, r *http.Request) {
	var req ReorderRequest
	if !decodeBody(w, r, &req) {
		return
	}
	h.respond(w, "reorder")(h.svc.Reorder(chi.URLParam(r, "id"), req.Order))
}

// Move handles POST /api/sessions/{id}/move.
//
//	@Summary		Move one entry of the active field
//	@Tags			sessions
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string		true	"Session id"
//	@Param			body	body		MoveRequest	true	"Positions"
//	@Success		200		{object}	SessionView
//	@Security		BearerAuth
//	@Router			/sessions/{id}/move [post]
func (h *Handler) Move(w http.ResponseWriter, r *http.Request) {
	var req MoveRequest
	if !decodeBody(w, r, &req) {
		return
	}
	h.respond(w, "move")(h.svc.Move(chi.URLParam(r, "id"), req.From, req.To))
}

// Remove handles POST /api/sessions/{id}/remove.
//
//	@Summary		Remove one entry of the active field
//	@Tags			sessions
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string			true	"Session id"
//	@Param			body	body		RemoveRequest	true	"Position"
//	@Success		200		{object}	SessionView
//	@Security		BearerAuth
//	@Router			/sessions/{id}/remove [post]
func (h *Handler) Remove(w http.ResponseWriter, r *http.Request) {
	var req RemoveRequest
	if !decodeBody(w, r, &req) {
		return
	}
	h.respond(w, "remove")(h.svc.Remove(chi.URLParam(r, "id"), req.Position))
}

// Commit handles POST /api/sessions/{id}/commit.
//
//	@Summary		Write the session back to its document
//	@Tags			sessions
//	@Produce		json
//	@Param			id	path		string	true	"Session id"
//	@Success		200	{object}	CommitView
//	@Failure		404	{object}	errResponse
//	@Failure		500	{object}	commitFailure
//	@Security		BearerAuth
//	@Router			/sessions/{id}/commit [post]
func (h *Handler) Commit(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	cv, err := h.svc.Commit(r.Context(), id)
	var commitErr *draft.CommitError
	if errors.As(err, &commitErr) {
		slog.Error("commit failed",
			slog.String("session", id),
			slog.String("field", commitErr.Field),
			slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, commitFailure{
			Error:  "write failed",
			Field:  commitErr.Field,
			Result: cv.Result,
		})
		return
	}
	if err != nil {
		writeError(w, "commit", err)
		return
	}
	writeJSON(w, http.StatusOK, cv)
}

// Cancel handles POST /api/sessions/{id}/cancel.
//
//	@Summary		Discard an editing session
//	@Tags			sessions
//	@Param			id	path	string	true	"Session id"
//	@Success		204	"Session cancelled"
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/sessions/{id}/cancel [post]
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Cancel(chi.URLParam(r, "id")); err != nil {
		writeError(w, "cancel", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// commitFailure describes a commit that stopped part-way. Fields in
// Result.Written were stored; the session stays open for a retry.
type commitFailure struct {
	Error  string             `json:"error"`
	Field  string             `json:"field"`
	Result draft.CommitResult `json:"result"`
}

func (h *Handler) respond(w http.ResponseWriter, op string) func(SessionView, error) {
	return func(sv SessionView, err error) {
		if err != nil {
			writeError(w, op, err)
			return
		}
		writeJSON(w, http.StatusOK, sv)
	}
}
