package api

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/plumehq/plume/internal/apperr"
	"github.com/plumehq/plume/internal/models"
	"github.com/plumehq/plume/internal/mutate"
	"github.com/plumehq/plume/internal/paragraph"
	"github.com/plumehq/plume/internal/resolver"
	"github.com/plumehq/plume/internal/search"
)

// Handler holds API route handlers.
type Handler struct {
	resolver *resolver.Resolver
	agg      *search.Aggregator
	orch     *mutate.Orchestrator
	listing  *search.Listing
}

// NewHandler creates a new Handler.
func NewHandler(res *resolver.Resolver, agg *search.Aggregator, orch *mutate.Orchestrator, listing *search.Listing) *Handler {
	return &Handler{resolver: res, agg: agg, orch: orch, listing: listing}
}

// notePath extracts the note path from the URL (everything after /notes/).
// Supports encoded slashes from generated clients (e.g. work%2Fplan.md).
func notePath(r *http.Request) string {
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

// target builds the mutation target from the path wildcard; a space note
// id in the "id" query parameter takes precedence.
func target(r *http.Request) (mutate.Target, error) {
	t := mutate.Target{ID: r.URL.Query().Get("id"), Filename: notePath(r)}
	if t.ID == "" && t.Filename == "" {
		return t, apperr.New(apperr.CodeInvalidArgument, "note path or id is required")
	}
	return t, nil
}

func scope(q url.Values) search.ListFilter {
	return search.ListFilter{
		Folder:  q.Get("folder"),
		SpaceID: q.Get("spaceId"),
		Source:  models.Source(q.Get("source")),
		Type:    models.NoteType(q.Get("type")),
	}
}

// Resolve handles GET /resolve. kind=folder resolves a folder reference;
// anything else resolves a note.
func (h *Handler) Resolve(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	ref := resolver.Ref{
		ID:       q.Get("id"),
		Filename: q.Get("filename"),
		Date:     q.Get("date"),
		Query:    q.Get("query"),
	}

	var (
		res *resolver.Resolution
		err error
	)
	if q.Get("kind") == "folder" {
		res, err = h.resolver.ResolveFolder(r.Context(), ref, scope(q), resolver.Options{})
	} else {
		res, err = h.resolver.ResolveNote(r.Context(), ref, scope(q), resolver.Options{})
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Search handles GET /search.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := q.Get("q")
	if query == "" {
		writeError(w, apperr.New(apperr.CodeInvalidArgument, "query parameter 'q' is required"))
		return
	}

	limit, _ := strconv.Atoi(q.Get("limit"))
	opts := search.Options{
		Field:         search.Field(q.Get("field")),
		Mode:          search.QueryMode(q.Get("mode")),
		CaseSensitive: q.Get("caseSensitive") == "true",
		Fuzzy:         q.Get("fuzzy") == "true",
		Folder:        q.Get("folder"),
		SpaceID:       q.Get("spaceId"),
		Source:        models.Source(q.Get("source")),
		Type:          models.NoteType(q.Get("type")),
		Limit:         limit,
	}

	var err error
	opts.Modified.After, err = queryDate(q, "modifiedAfter", err)
	opts.Modified.Before, err = queryDate(q, "modifiedBefore", err)
	opts.Created.After, err = queryDate(q, "createdAfter", err)
	opts.Created.Before, err = queryDate(q, "createdBefore", err)
	if err != nil {
		writeError(w, err)
		return
	}

	resp, err := h.agg.Search(r.Context(), query, opts)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// ListNotes handles GET /notes.
func (h *Handler) ListNotes(w http.ResponseWriter, r *http.Request) {
	notes, err := h.listing.Notes(scope(r.URL.Query()))
	if err != nil {
		writeError(w, err)
		return
	}
	// Listings stay lightweight; content is served per note.
	items := make([]models.Note, len(notes))
	for i, n := range notes {
		n.Content = ""
		items[i] = n
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"notes": items,
		"total": len(items),
	})
}

// ListFolders handles GET /folders.
func (h *Handler) ListFolders(w http.ResponseWriter, r *http.Request) {
	folders, err := h.listing.Folders(scope(r.URL.Query()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"folders": folders})
}

// GetNote handles GET /notes/*. It returns the note's typed line window;
// startLine/endLine/offset/limit select the range.
func (h *Handler) GetNote(w http.ResponseWriter, r *http.Request) {
	t, err := target(r)
	if err != nil {
		writeError(w, err)
		return
	}
	q := r.URL.Query()
	atoi := func(key string) int {
		v, _ := strconv.Atoi(q.Get(key))
		return v
	}
	win, err := h.orch.GetParagraphs(r.Context(), t,
		atoi("startLine"), atoi("endLine"), atoi("offset"), atoi("limit"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, win)
}

// ReplaceNote handles PUT /notes/*.
func (h *Handler) ReplaceNote(w http.ResponseWriter, r *http.Request) {
	t, err := target(r)
	if err != nil {
		writeError(w, err)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, 10<<20)
	var req ReplaceNoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperr.New(apperr.CodeInvalidArgument, "invalid JSON body"))
		return
	}

	res, err := h.orch.ReplaceNote(r.Context(), t, req.Content, mutate.WriteOptions{
		DryRun:       req.DryRun,
		ConfirmToken: req.ConfirmToken,
		AllowEmpty:   req.AllowEmpty,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// PatchNote handles PATCH /notes/*: line edits, range edits, inserts,
// moves, and restores, selected by the op field.
func (h *Handler) PatchNote(w http.ResponseWriter, r *http.Request) {
	t, err := target(r)
	if err != nil {
		writeError(w, err)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, 10<<20)
	var req PatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperr.New(apperr.CodeInvalidArgument, "invalid JSON body"))
		return
	}
	opts := mutate.WriteOptions{
		DryRun:       req.DryRun,
		ConfirmToken: req.ConfirmToken,
		AllowEmpty:   req.AllowEmpty,
	}

	var res *mutate.Result
	ctx := r.Context()
	switch req.Op {
	case "edit_line":
		res, err = h.orch.EditLine(ctx, t, req.Line, req.Text, opts)
	case "replace_lines":
		res, err = h.orch.ReplaceLines(ctx, t, req.StartLine, req.EndLine, req.Content, opts)
	case "delete_lines":
		res, err = h.orch.DeleteLines(ctx, t, req.StartLine, req.EndLine, opts)
	case "insert":
		res, err = h.orch.InsertContent(ctx, t, req.Content, mutate.Position(req.Position), req.Anchor, req.Line, opts)
	case "append":
		res, err = h.orch.AppendContent(ctx, t, req.Content, opts)
	case "move":
		res, err = h.orch.MoveNote(ctx, t, req.Folder, opts)
	case "restore":
		res, err = h.orch.RestoreNote(ctx, t, req.Folder)
	default:
		err = apperr.New(apperr.CodeInvalidArgument, "unknown op %q", req.Op)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// DeleteNote handles DELETE /notes/*. The confirmation flow rides on
// query parameters: ?dryRun=true previews, ?confirmToken=... applies.
func (h *Handler) DeleteNote(w http.ResponseWriter, r *http.Request) {
	t, err := target(r)
	if err != nil {
		writeError(w, err)
		return
	}
	q := r.URL.Query()
	res, err := h.orch.DeleteNote(r.Context(), t, mutate.WriteOptions{
		DryRun:       q.Get("dryRun") == "true",
		ConfirmToken: q.Get("confirmToken"),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// SearchParagraphs handles GET /paragraphs. The note is named by the
// id or filename query parameter.
func (h *Handler) SearchParagraphs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	t := mutate.Target{ID: q.Get("id"), Filename: q.Get("filename")}
	if t.ID == "" && t.Filename == "" {
		writeError(w, apperr.New(apperr.CodeInvalidArgument, "id or filename is required"))
		return
	}
	lines, err := h.orch.SearchParagraphs(r.Context(), t, q.Get("q"), paragraph.Type(q.Get("type")))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"lines": lines, "count": len(lines)})
}

// queryDate parses YYYY-MM-DD or RFC3339, threading an error across calls.
func queryDate(q url.Values, key string, prev error) (time.Time, error) {
	if prev != nil {
		return time.Time{}, prev
	}
	s := q.Get(key)
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, apperr.New(apperr.CodeInvalidArgument,
			"%s: want YYYY-MM-DD or RFC3339, got %q", key, s)
	}
	return t, nil
}
