package mcpserver

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/plumehq/plume/internal/confirm"
	"github.com/plumehq/plume/internal/mutate"
	"github.com/plumehq/plume/internal/resolver"
	"github.com/plumehq/plume/internal/ripgrep"
	"github.com/plumehq/plume/internal/search"
	"github.com/plumehq/plume/internal/storage"
	"github.com/plumehq/plume/internal/testutil"
)

func testServer(t *testing.T) (*Server, *storage.FS) {
	t.Helper()

	vaultDir, vault := testutil.TestVault(t)
	store := testutil.TestStore(t)

	listing := search.NewListing(vault, store, time.Minute, time.Minute, time.Now)
	agg := search.NewAggregator(vault, vaultDir, store, ripgrep.New("", 0), listing, nil)
	gate := confirm.NewGate(time.Minute, time.Now)
	orch := mutate.New(vault, store, listing, gate, nil, nil)

	srv := New(resolver.New(listing, resolver.Options{}), agg, orch, listing)
	return srv, vault
}

func callTool(t *testing.T, srv *Server, name string, args map[string]interface{}) *mcp.CallToolResult {
	t.Helper()
	ctx := context.Background()
	req := mcp.CallToolRequest{}
	req.Method = "tools/call"
	req.Params.Name = name
	req.Params.Arguments = args

	var result *mcp.CallToolResult
	var err error

	switch name {
	case "resolve_note":
		result, err = srv.resolveNote(ctx, req)
	case "resolve_folder":
		result, err = srv.resolveFolder(ctx, req)
	case "search_notes":
		result, err = srv.searchNotes(ctx, req)
	case "list_folders":
		result, err = srv.listFolders(ctx, req)
	case "get_paragraphs":
		result, err = srv.getParagraphs(ctx, req)
	case "search_paragraphs":
		result, err = srv.searchParagraphs(ctx, req)
	case "insert_content":
		result, err = srv.insertContent(ctx, req)
	case "append_content":
		result, err = srv.appendContent(ctx, req)
	case "edit_line":
		result, err = srv.editLine(ctx, req)
	case "replace_lines":
		result, err = srv.replaceLines(ctx, req)
	case "delete_lines":
		result, err = srv.deleteLines(ctx, req)
	case "replace_note":
		result, err = srv.replaceNote(ctx, req)
	case "delete_note":
		result, err = srv.deleteNote(ctx, req)
	case "move_note":
		result, err = srv.moveNote(ctx, req)
	case "restore_note":
		result, err = srv.restoreNote(ctx, req)
	default:
		t.Fatalf("unknown tool: %s", name)
	}

	if err != nil {
		t.Fatalf("tool %s error: %v", name, err)
	}
	return result
}

func resultText(r *mcp.CallToolResult) string {
	if len(r.Content) > 0 {
		if tc, ok := r.Content[0].(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func decodeEnvelope(t *testing.T, r *mcp.CallToolResult) map[string]interface{} {
	t.Helper()
	var env map[string]interface{}
	if err := json.Unmarshal([]byte(resultText(r)), &env); err != nil {
		t.Fatalf("envelope decode: %v in %q", err, resultText(r))
	}
	return env
}

func TestResolveNoteTool(t *testing.T) {
	srv, vault := testServer(t)
	_ = vault.Write("work/plan.md", []byte("# Plan"))

	r := callTool(t, srv, "resolve_note", map[string]interface{}{"query": "plan"})
	if r.IsError {
		t.Fatalf("unexpected error: %s", resultText(r))
	}
	env := decodeEnvelope(t, r)
	if env["success"] != true {
		t.Fatalf("envelope = %v", env)
	}
	data := env["data"].(map[string]interface{})
	note := data["note"].(map[string]interface{})
	if note["filename"] != "work/plan.md" {
		t.Errorf("resolved filename = %v", note["filename"])
	}
}

func TestResolveNoteTool_MissingTargetEnvelope(t *testing.T) {
	srv, _ := testServer(t)

	r := callTool(t, srv, "get_paragraphs", map[string]interface{}{})
	if !r.IsError {
		t.Fatal("expected error result")
	}
	env := decodeEnvelope(t, r)
	if env["code"] != "INVALID_ARGUMENT" {
		t.Errorf("code = %v", env["code"])
	}
	if env["suggestedTool"] != "resolve_note" {
		t.Errorf("suggestedTool = %v", env["suggestedTool"])
	}
}

func TestSearchNotesTool(t *testing.T) {
	srv, vault := testServer(t)
	_ = vault.Write("a.md", []byte("weekly meeting agenda"))
	_ = vault.Write("b.md", []byte("unrelated"))

	r := callTool(t, srv, "search_notes", map[string]interface{}{"query": "meeting"})
	env := decodeEnvelope(t, r)
	data := env["data"].(map[string]interface{})
	results := data["results"].([]interface{})
	if len(results) != 1 {
		t.Fatalf("results = %d, want 1", len(results))
	}
	if data["backend"] == "" {
		t.Error("backend not reported")
	}
}

func TestSearchNotesTool_BadDate(t *testing.T) {
	srv, _ := testServer(t)
	r := callTool(t, srv, "search_notes", map[string]interface{}{
		"query":         "x",
		"modifiedAfter": "last tuesday",
	})
	if !r.IsError {
		t.Fatal("expected error for unparseable date")
	}
	env := decodeEnvelope(t, r)
	if env["code"] != "INVALID_ARGUMENT" {
		t.Errorf("code = %v", env["code"])
	}
}

func TestDeleteLinesTool_ConfirmationFlow(t *testing.T) {
	srv, vault := testServer(t)
	lines := make([]string, 20)
	for i := range lines {
		lines[i] = "line"
	}
	_ = vault.Write("plan.md", []byte(strings.Join(lines, "\n")))

	args := map[string]interface{}{
		"filename":  "plan.md",
		"startLine": float64(10),
		"endLine":   float64(12),
	}

	r := callTool(t, srv, "delete_lines", args)
	if !r.IsError {
		t.Fatal("expected CONFIRMATION_REQUIRED")
	}
	if env := decodeEnvelope(t, r); env["code"] != "CONFIRMATION_REQUIRED" {
		t.Fatalf("code = %v", env["code"])
	}

	args["dryRun"] = true
	env := decodeEnvelope(t, callTool(t, srv, "delete_lines", args))
	data := env["data"].(map[string]interface{})
	token, _ := data["confirmToken"].(string)
	if token == "" {
		t.Fatalf("dry run returned no token: %v", env)
	}

	delete(args, "dryRun")
	args["confirmToken"] = token
	env = decodeEnvelope(t, callTool(t, srv, "delete_lines", args))
	data = env["data"].(map[string]interface{})
	if data["totalLines"] != float64(17) {
		t.Errorf("totalLines = %v, want 17", data["totalLines"])
	}
}

func TestGetParagraphsTool(t *testing.T) {
	srv, vault := testServer(t)
	_ = vault.Write("a.md", []byte("# Title\n* [ ] task one\n- bullet"))

	env := decodeEnvelope(t, callTool(t, srv, "get_paragraphs", map[string]interface{}{
		"filename": "a.md",
	}))
	data := env["data"].(map[string]interface{})
	lines := data["lines"].([]interface{})
	if len(lines) != 3 {
		t.Fatalf("lines = %d, want 3", len(lines))
	}
	first := lines[0].(map[string]interface{})
	if first["type"] != "title" {
		t.Errorf("first line type = %v", first["type"])
	}
}

func TestEditLineTool(t *testing.T) {
	srv, vault := testServer(t)
	_ = vault.Write("a.md", []byte("one\ntwo"))

	env := decodeEnvelope(t, callTool(t, srv, "edit_line", map[string]interface{}{
		"filename": "a.md",
		"line":     float64(2),
		"text":     "TWO",
	}))
	if env["success"] != true {
		t.Fatalf("envelope = %v", env)
	}
	n, err := vault.Read("a.md")
	if err != nil {
		t.Fatal(err)
	}
	if n.Content != "one\nTWO" {
		t.Errorf("content = %q", n.Content)
	}
}

func TestMoveAndRestoreTools(t *testing.T) {
	srv, vault := testServer(t)
	_ = vault.Write("inbox/a.md", []byte("text"))

	env := decodeEnvelope(t, callTool(t, srv, "delete_note", map[string]interface{}{
		"filename": "inbox/a.md",
		"dryRun":   true,
	}))
	token := env["data"].(map[string]interface{})["confirmToken"].(string)

	env = decodeEnvelope(t, callTool(t, srv, "delete_note", map[string]interface{}{
		"filename":     "inbox/a.md",
		"confirmToken": token,
	}))
	trashed := env["data"].(map[string]interface{})["newPath"].(string)
	if !strings.HasPrefix(trashed, "@Trash/") {
		t.Fatalf("trashed path = %q", trashed)
	}

	env = decodeEnvelope(t, callTool(t, srv, "restore_note", map[string]interface{}{
		"filename": trashed,
		"folder":   "inbox",
	}))
	restored := env["data"].(map[string]interface{})["newPath"].(string)
	if restored != "inbox/a.md" {
		t.Errorf("restored path = %q", restored)
	}
}

func TestListFoldersTool(t *testing.T) {
	srv, vault := testServer(t)
	_ = vault.Write("work/reports/q1.md", []byte("x"))

	env := decodeEnvelope(t, callTool(t, srv, "list_folders", map[string]interface{}{
		"source": "local",
	}))
	data := env["data"].(map[string]interface{})
	folders := data["folders"].([]interface{})
	var paths []string
	for _, f := range folders {
		paths = append(paths, f.(map[string]interface{})["path"].(string))
	}
	joined := strings.Join(paths, ",")
	if !strings.Contains(joined, "work") || !strings.Contains(joined, "work/reports") {
		t.Errorf("folders = %v", paths)
	}
}

func TestLineFormatContract_CheckboxLegend(t *testing.T) {
	for _, want := range []string{"[x]=done", "[-]=cancelled", "[>]=scheduled"} {
		if !strings.Contains(LineFormatContract, want) {
			t.Errorf("line-format contract missing %q", want)
		}
	}
}
