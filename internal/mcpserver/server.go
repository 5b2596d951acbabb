// Package mcpserver provides an MCP (Model Context Protocol) server that
// exposes the Plume note tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/plumehq/plume/internal/apperr"
	"github.com/plumehq/plume/internal/models"
	"github.com/plumehq/plume/internal/mutate"
	"github.com/plumehq/plume/internal/paragraph"
	"github.com/plumehq/plume/internal/resolver"
	"github.com/plumehq/plume/internal/search"
)

// Server wraps the MCP server with the Plume tools.
type Server struct {
	mcp      *server.MCPServer
	resolver *resolver.Resolver
	agg      *search.Aggregator
	orch     *mutate.Orchestrator
	listing  *search.Listing
}

// New creates an MCP server with all tools registered.
func New(res *resolver.Resolver, agg *search.Aggregator, orch *mutate.Orchestrator, listing *search.Listing) *Server {
	s := &Server{resolver: res, agg: agg, orch: orch, listing: listing}

	s.mcp = server.NewMCPServer(
		"Plume",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("resolve_note",
		mcp.WithDescription("Resolve a loose note reference (id, filename, date, or free text) "+
			"to exactly one note, or report candidates when the reference is ambiguous. "+
			"Call this before any mutation tool."),
		mcp.WithString("query", mcp.Description("Free-text reference (title, partial filename)")),
		mcp.WithString("id", mcp.Description("Space note id (exact)")),
		mcp.WithString("filename", mcp.Description("Vault-relative filename (exact)")),
		mcp.WithString("date", mcp.Description("Calendar date YYYY-MM-DD or YYYYMMDD")),
		mcp.WithString("folder", mcp.Description("Restrict to a folder subtree")),
		mcp.WithString("spaceId", mcp.Description("Restrict to one space")),
		mcp.WithString("source", mcp.Description("Restrict to 'local' or 'space'")),
	), s.resolveNote)

	s.mcp.AddTool(mcp.NewTool("resolve_folder",
		mcp.WithDescription("Resolve a folder reference to exactly one folder."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Folder name or path fragment")),
		mcp.WithString("spaceId", mcp.Description("Restrict to one space")),
		mcp.WithString("source", mcp.Description("Restrict to 'local' or 'space'")),
	), s.resolveFolder)

	s.mcp.AddTool(mcp.NewTool("search_notes",
		mcp.WithDescription("Search notes across the vault and spaces. Content search uses "+
			"ripgrep when available and reports which backend served the query."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query; supports 'a|b' OR terms")),
		mcp.WithString("field", mcp.Description("content (default), title, filename, or title_or_filename")),
		mcp.WithString("mode", mcp.Description("smart (default), phrase, any, or all")),
		mcp.WithBoolean("caseSensitive", mcp.Description("Match case (default false)")),
		mcp.WithBoolean("fuzzy", mcp.Description("Fuzzy re-rank results (tolerates typos)")),
		mcp.WithString("folder", mcp.Description("Restrict to a folder subtree")),
		mcp.WithString("spaceId", mcp.Description("Restrict to one space")),
		mcp.WithString("source", mcp.Description("Restrict to 'local' or 'space'")),
		mcp.WithString("type", mcp.Description("Restrict to 'note', 'calendar', or 'trash'")),
		mcp.WithObject("properties", mcp.Description("Frontmatter property filters, key to expected value")),
		mcp.WithBoolean("propertyCaseSensitive", mcp.Description("Match property values case-sensitively")),
		mcp.WithString("modifiedAfter", mcp.Description("Only notes modified after this date (YYYY-MM-DD or RFC3339)")),
		mcp.WithString("modifiedBefore", mcp.Description("Only notes modified before this date")),
		mcp.WithString("createdAfter", mcp.Description("Only notes created after this date")),
		mcp.WithString("createdBefore", mcp.Description("Only notes created before this date")),
		mcp.WithNumber("limit", mcp.Description("Maximum results (default 20)")),
	), s.searchNotes)

	s.mcp.AddTool(mcp.NewTool("list_folders",
		mcp.WithDescription("List folders across the vault and spaces."),
		mcp.WithString("spaceId", mcp.Description("Restrict to one space")),
		mcp.WithString("source", mcp.Description("Restrict to 'local' or 'space'")),
	), s.listFolders)

	s.mcp.AddTool(mcp.NewTool("get_paragraphs",
		mcp.WithDescription("Read a note as typed, line-numbered paragraphs with pagination. "+
			"Line numbers are 1-indexed and required by the line editing tools."),
		mcp.WithString("id", mcp.Description("Space note id")),
		mcp.WithString("filename", mcp.Description("Vault-relative filename")),
		mcp.WithNumber("startLine", mcp.Description("First line of the range (1-indexed, 0 = start)")),
		mcp.WithNumber("endLine", mcp.Description("Last line of the range (inclusive, 0 = end)")),
		mcp.WithNumber("offset", mcp.Description("Lines to skip inside the range")),
		mcp.WithNumber("limit", mcp.Description("Maximum lines returned (default 100)")),
	), s.getParagraphs)

	s.mcp.AddTool(mcp.NewTool("search_paragraphs",
		mcp.WithDescription("Find lines inside one note, optionally restricted to a paragraph type "+
			"(task, checklist, bullet, heading, ...)."),
		mcp.WithString("id", mcp.Description("Space note id")),
		mcp.WithString("filename", mcp.Description("Vault-relative filename")),
		mcp.WithString("query", mcp.Description("Substring to look for (empty matches all)")),
		mcp.WithString("type", mcp.Description("Restrict to one paragraph type")),
	), s.searchParagraphs)

	s.mcp.AddTool(mcp.NewTool("insert_content",
		mcp.WithDescription("Insert content into a note at a position: start, end, after-heading, "+
			"in-section, or at-line."),
		mcp.WithString("id", mcp.Description("Space note id")),
		mcp.WithString("filename", mcp.Description("Vault-relative filename")),
		mcp.WithString("content", mcp.Required(), mcp.Description("Lines to insert")),
		mcp.WithString("position", mcp.Description("start, end (default), after-heading, in-section, at-line")),
		mcp.WithString("anchor", mcp.Description("Heading text for after-heading / in-section")),
		mcp.WithNumber("line", mcp.Description("Line number for at-line")),
	), s.insertContent)

	s.mcp.AddTool(mcp.NewTool("append_content",
		mcp.WithDescription("Append content at the end of a note."),
		mcp.WithString("id", mcp.Description("Space note id")),
		mcp.WithString("filename", mcp.Description("Vault-relative filename")),
		mcp.WithString("content", mcp.Required(), mcp.Description("Lines to append")),
	), s.appendContent)

	s.mcp.AddTool(mcp.NewTool("edit_line",
		mcp.WithDescription("Replace a single line of a note. Line numbers come from get_paragraphs "+
			"and go stale after any edit that changes the line count."),
		mcp.WithString("id", mcp.Description("Space note id")),
		mcp.WithString("filename", mcp.Description("Vault-relative filename")),
		mcp.WithNumber("line", mcp.Required(), mcp.Description("1-indexed line number")),
		mcp.WithString("text", mcp.Required(), mcp.Description("New line text")),
		mcp.WithBoolean("allowEmpty", mcp.Description("Allow the edit to leave the note empty")),
	), s.editLine)

	s.mcp.AddTool(mcp.NewTool("replace_lines",
		mcp.WithDescription("Replace an inclusive line range. Destructive: call with dryRun=true "+
			"first to preview and obtain a single-use confirmation token."),
		mcp.WithString("id", mcp.Description("Space note id")),
		mcp.WithString("filename", mcp.Description("Vault-relative filename")),
		mcp.WithNumber("startLine", mcp.Required(), mcp.Description("First line of the range")),
		mcp.WithNumber("endLine", mcp.Required(), mcp.Description("Last line of the range (inclusive)")),
		mcp.WithString("content", mcp.Required(), mcp.Description("Replacement lines")),
		mcp.WithBoolean("dryRun", mcp.Description("Preview and obtain a confirmation token")),
		mcp.WithString("confirmToken", mcp.Description("Token from the dry run")),
		mcp.WithBoolean("allowEmpty", mcp.Description("Allow the edit to leave the note empty")),
	), s.replaceLines)

	s.mcp.AddTool(mcp.NewTool("delete_lines",
		mcp.WithDescription("Delete an inclusive line range. Destructive: call with dryRun=true "+
			"first to preview and obtain a single-use confirmation token."),
		mcp.WithString("id", mcp.Description("Space note id")),
		mcp.WithString("filename", mcp.Description("Vault-relative filename")),
		mcp.WithNumber("startLine", mcp.Required(), mcp.Description("First line of the range")),
		mcp.WithNumber("endLine", mcp.Required(), mcp.Description("Last line of the range (inclusive)")),
		mcp.WithBoolean("dryRun", mcp.Description("Preview and obtain a confirmation token")),
		mcp.WithString("confirmToken", mcp.Description("Token from the dry run")),
		mcp.WithBoolean("allowEmpty", mcp.Description("Allow the edit to leave the note empty")),
	), s.deleteLines)

	s.mcp.AddTool(mcp.NewTool("replace_note",
		mcp.WithDescription("Replace the whole note body. Destructive: requires the dry-run "+
			"confirmation flow."),
		mcp.WithString("id", mcp.Description("Space note id")),
		mcp.WithString("filename", mcp.Description("Vault-relative filename")),
		mcp.WithString("content", mcp.Required(), mcp.Description("New note content")),
		mcp.WithBoolean("dryRun", mcp.Description("Preview and obtain a confirmation token")),
		mcp.WithString("confirmToken", mcp.Description("Token from the dry run")),
		mcp.WithBoolean("allowEmpty", mcp.Description("Allow replacing with empty content")),
	), s.replaceNote)

	s.mcp.AddTool(mcp.NewTool("delete_note",
		mcp.WithDescription("Move a note to the trash. Destructive: requires the dry-run "+
			"confirmation flow. Trashed notes can be brought back with restore_note."),
		mcp.WithString("id", mcp.Description("Space note id")),
		mcp.WithString("filename", mcp.Description("Vault-relative filename")),
		mcp.WithBoolean("dryRun", mcp.Description("Preview and obtain a confirmation token")),
		mcp.WithString("confirmToken", mcp.Description("Token from the dry run")),
	), s.deleteNote)

	s.mcp.AddTool(mcp.NewTool("move_note",
		mcp.WithDescription("Move a note into another folder. Requires the dry-run confirmation flow."),
		mcp.WithString("id", mcp.Description("Space note id")),
		mcp.WithString("filename", mcp.Description("Vault-relative filename")),
		mcp.WithString("folder", mcp.Required(), mcp.Description("Destination folder")),
		mcp.WithBoolean("dryRun", mcp.Description("Preview and obtain a confirmation token")),
		mcp.WithString("confirmToken", mcp.Description("Token from the dry run")),
	), s.moveNote)

	s.mcp.AddTool(mcp.NewTool("restore_note",
		mcp.WithDescription("Restore a trashed note into a folder."),
		mcp.WithString("id", mcp.Description("Space note id")),
		mcp.WithString("filename", mcp.Description("Trashed path, e.g. @Trash/plan.md")),
		mcp.WithString("folder", mcp.Description("Destination folder (default vault root)")),
	), s.restoreNote)

	// Resource: line format contract for agents that write note content.
	s.mcp.AddResource(
		mcp.NewResource("plume://line-format", "Line Format Contract",
			mcp.WithResourceDescription("Paragraph line syntax recognized by the editing tools."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readLineFormatResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func (s *Server) resolveNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ref := resolver.Ref{
		ID:       argString(req, "id"),
		Filename: argString(req, "filename"),
		Date:     argString(req, "date"),
		Query:    argString(req, "query"),
	}
	res, err := s.resolver.ResolveNote(ctx, ref, scopeArgs(req), resolver.Options{})
	if err != nil {
		return fail(err), nil
	}
	return ok(res), nil
}

func (s *Server) resolveFolder(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return fail(apperr.New(apperr.CodeInvalidArgument, "%s", err.Error())), nil
	}
	res, err := s.resolver.ResolveFolder(ctx, resolver.Ref{Query: query}, scopeArgs(req), resolver.Options{})
	if err != nil {
		return fail(err), nil
	}
	return ok(res), nil
}

func (s *Server) searchNotes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return fail(apperr.New(apperr.CodeInvalidArgument, "%s", err.Error())), nil
	}

	opts := search.Options{
		Field:                 search.Field(argString(req, "field")),
		Mode:                  search.QueryMode(argString(req, "mode")),
		CaseSensitive:         argBool(req, "caseSensitive"),
		Fuzzy:                 argBool(req, "fuzzy"),
		Folder:                argString(req, "folder"),
		SpaceID:               argString(req, "spaceId"),
		Source:                models.Source(argString(req, "source")),
		Type:                  models.NoteType(argString(req, "type")),
		Properties:            argStringMap(req, "properties"),
		PropertyCaseSensitive: argBool(req, "propertyCaseSensitive"),
		Limit:                 argInt(req, "limit"),
	}

	var derr error
	opts.Modified.After, derr = argDate(req, "modifiedAfter", derr)
	opts.Modified.Before, derr = argDate(req, "modifiedBefore", derr)
	opts.Created.After, derr = argDate(req, "createdAfter", derr)
	opts.Created.Before, derr = argDate(req, "createdBefore", derr)
	if derr != nil {
		return fail(derr), nil
	}

	resp, err := s.agg.Search(ctx, query, opts)
	if err != nil {
		return fail(err), nil
	}
	return ok(resp), nil
}

func (s *Server) listFolders(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	folders, err := s.listing.Folders(scopeArgs(req))
	if err != nil {
		return fail(err), nil
	}
	return ok(map[string]any{"folders": folders}), nil
}

func (s *Server) getParagraphs(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	target, err := targetArgs(req)
	if err != nil {
		return fail(err), nil
	}
	w, err := s.orch.GetParagraphs(ctx, target,
		argInt(req, "startLine"), argInt(req, "endLine"),
		argInt(req, "offset"), argInt(req, "limit"))
	if err != nil {
		return fail(err), nil
	}
	return ok(w), nil
}

func (s *Server) searchParagraphs(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	target, err := targetArgs(req)
	if err != nil {
		return fail(err), nil
	}
	lines, err := s.orch.SearchParagraphs(ctx, target,
		argString(req, "query"), paragraph.Type(argString(req, "type")))
	if err != nil {
		return fail(err), nil
	}
	return ok(map[string]any{"lines": lines, "count": len(lines)}), nil
}

func (s *Server) insertContent(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	target, err := targetArgs(req)
	if err != nil {
		return fail(err), nil
	}
	content, err := req.RequireString("content")
	if err != nil {
		return fail(apperr.New(apperr.CodeInvalidArgument, "%s", err.Error())), nil
	}
	res, err := s.orch.InsertContent(ctx, target, content,
		mutate.Position(argString(req, "position")), argString(req, "anchor"),
		argInt(req, "line"), writeArgs(req))
	if err != nil {
		return fail(err), nil
	}
	return ok(res), nil
}

func (s *Server) appendContent(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	target, err := targetArgs(req)
	if err != nil {
		return fail(err), nil
	}
	content, err := req.RequireString("content")
	if err != nil {
		return fail(apperr.New(apperr.CodeInvalidArgument, "%s", err.Error())), nil
	}
	res, err := s.orch.AppendContent(ctx, target, content, writeArgs(req))
	if err != nil {
		return fail(err), nil
	}
	return ok(res), nil
}

func (s *Server) editLine(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	target, err := targetArgs(req)
	if err != nil {
		return fail(err), nil
	}
	text, err := req.RequireString("text")
	if err != nil {
		return fail(apperr.New(apperr.CodeInvalidArgument, "%s", err.Error())), nil
	}
	res, err := s.orch.EditLine(ctx, target, argInt(req, "line"), text, writeArgs(req))
	if err != nil {
		return fail(err), nil
	}
	return ok(res), nil
}

func (s *Server) replaceLines(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	target, err := targetArgs(req)
	if err != nil {
		return fail(err), nil
	}
	content, err := req.RequireString("content")
	if err != nil {
		return fail(apperr.New(apperr.CodeInvalidArgument, "%s", err.Error())), nil
	}
	res, err := s.orch.ReplaceLines(ctx, target,
		argInt(req, "startLine"), argInt(req, "endLine"), content, writeArgs(req))
	if err != nil {
		return fail(err), nil
	}
	return ok(res), nil
}

func (s *Server) deleteLines(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	target, err := targetArgs(req)
	if err != nil {
		return fail(err), nil
	}
	res, err := s.orch.DeleteLines(ctx, target,
		argInt(req, "startLine"), argInt(req, "endLine"), writeArgs(req))
	if err != nil {
		return fail(err), nil
	}
	return ok(res), nil
}

func (s *Server) replaceNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	target, err := targetArgs(req)
	if err != nil {
		return fail(err), nil
	}
	content, err := req.RequireString("content")
	if err != nil {
		return fail(apperr.New(apperr.CodeInvalidArgument, "%s", err.Error())), nil
	}
	res, err := s.orch.ReplaceNote(ctx, target, content, writeArgs(req))
	if err != nil {
		return fail(err), nil
	}
	return ok(res), nil
}

func (s *Server) deleteNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	target, err := targetArgs(req)
	if err != nil {
		return fail(err), nil
	}
	res, err := s.orch.DeleteNote(ctx, target, writeArgs(req))
	if err != nil {
		return fail(err), nil
	}
	return ok(res), nil
}

func (s *Server) moveNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	target, err := targetArgs(req)
	if err != nil {
		return fail(err), nil
	}
	folder, err := req.RequireString("folder")
	if err != nil {
		return fail(apperr.New(apperr.CodeInvalidArgument, "%s", err.Error())), nil
	}
	res, err := s.orch.MoveNote(ctx, target, folder, writeArgs(req))
	if err != nil {
		return fail(err), nil
	}
	return ok(res), nil
}

func (s *Server) restoreNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	target, err := targetArgs(req)
	if err != nil {
		return fail(err), nil
	}
	res, err := s.orch.RestoreNote(ctx, target, argString(req, "folder"))
	if err != nil {
		return fail(err), nil
	}
	return ok(res), nil
}

func (s *Server) readLineFormatResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      "plume://line-format",
			MIMEType: "text/markdown",
			Text:     LineFormatContract,
		},
	}, nil
}

// envelope is the uniform tool response shape. Every handler returns it;
// nothing escapes the tool boundary unwrapped.
type envelope struct {
	Success       bool   `json:"success"`
	Data          any    `json:"data,omitempty"`
	Error         string `json:"error,omitempty"`
	Code          string `json:"code,omitempty"`
	Hint          string `json:"hint,omitempty"`
	SuggestedTool string `json:"suggestedTool,omitempty"`
	Retryable     bool   `json:"retryable,omitempty"`
}

func ok(data any) *mcp.CallToolResult {
	out, _ := json.MarshalIndent(envelope{Success: true, Data: data}, "", "  ")
	return mcp.NewToolResultText(string(out))
}

func fail(err error) *mcp.CallToolResult {
	ae := apperr.Classify(err)
	out, _ := json.Marshal(envelope{
		Error:         ae.Message,
		Code:          string(ae.Code),
		Hint:          ae.Hint,
		SuggestedTool: ae.SuggestedTool,
		Retryable:     ae.Retryable,
	})
	return mcp.NewToolResultError(string(out))
}

func targetArgs(req mcp.CallToolRequest) (mutate.Target, error) {
	t := mutate.Target{ID: argString(req, "id"), Filename: argString(req, "filename")}
	if t.ID == "" && t.Filename == "" {
		return t, apperr.New(apperr.CodeInvalidArgument, "either id or filename is required").
			WithTool("resolve_note")
	}
	return t, nil
}

func scopeArgs(req mcp.CallToolRequest) search.ListFilter {
	return search.ListFilter{
		Folder:  argString(req, "folder"),
		SpaceID: argString(req, "spaceId"),
		Source:  models.Source(argString(req, "source")),
	}
}

func writeArgs(req mcp.CallToolRequest) mutate.WriteOptions {
	return mutate.WriteOptions{
		DryRun:       argBool(req, "dryRun"),
		ConfirmToken: argString(req, "confirmToken"),
		AllowEmpty:   argBool(req, "allowEmpty"),
	}
}

func argString(req mcp.CallToolRequest, key string) string {
	if v, ok := req.GetArguments()[key].(string); ok {
		return v
	}
	return ""
}

func argBool(req mcp.CallToolRequest, key string) bool {
	if v, ok := req.GetArguments()[key].(bool); ok {
		return v
	}
	return false
}

func argInt(req mcp.CallToolRequest, key string) int {
	switch v := req.GetArguments()[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return 0
}

func argStringMap(req mcp.CallToolRequest, key string) map[string]string {
	raw, ok := req.GetArguments()[key].(map[string]any)
	if !ok || len(raw) == 0 {
		return nil
	}
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		if s, ok := v.(string); ok {
			out[k] = s
		}
	}
	return out
}

// argDate parses YYYY-MM-DD or RFC3339. It threads an error so a handler
// can parse four date args and check once.
func argDate(req mcp.CallToolRequest, key string, prev error) (time.Time, error) {
	if prev != nil {
		return time.Time{}, prev
	}
	s := argString(req, key)
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
