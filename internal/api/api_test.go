package api

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/plumehq/plume/internal/confirm"
	"github.com/plumehq/plume/internal/mutate"
	"github.com/plumehq/plume/internal/resolver"
	"github.com/plumehq/plume/internal/ripgrep"
	"github.com/plumehq/plume/internal/search"
	"github.com/plumehq/plume/internal/storage"
	"github.com/plumehq/plume/internal/testutil"
)

// testEnv sets up a temp vault, space store, services, and router.
// authToken "" means auth disabled.
func testEnv(t *testing.T, authToken string) (*storage.FS, http.Handler) {
	t.Helper()
	vault, router, _ := testEnvWithVault(t, authToken)
	return vault, router
}

func testEnvWithVault(t *testing.T, authToken string) (*storage.FS, http.Handler, string) {
	t.Helper()

	vaultDir, vault := testutil.TestVault(t)
	store := testutil.TestStore(t)

	listing := search.NewListing(vault, store, time.Minute, time.Minute, time.Now)
	agg := search.NewAggregator(vault, vaultDir, store, ripgrep.New("", 0), listing, nil)
	orch := mutate.New(vault, store, listing, confirm.NewGate(time.Minute, time.Now), nil, nil)

	h := NewHandler(resolver.New(listing, resolver.Options{}), agg, orch, listing)
	router := NewRouter(h, authToken != "", authToken, nil, vaultDir)
	return vault, router, vaultDir
}

func do(t *testing.T, router http.Handler, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, target, reader)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v in %q", err, w.Body.String())
	}
	return out
}

func TestAuthMiddleware(t *testing.T) {
	vault, router := testEnv(t, "secret")
	_ = vault.Write("a.md", []byte("x"))

	w := do(t, router, http.MethodGet, "/notes", nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/notes", nil)
	req.Header.Set("Authorization", "Bearer secret")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status with token = %d, want 200", w.Code)
	}
}

func TestResolveEndpoint(t *testing.T) {
	vault, router := testEnv(t, "")
	_ = vault.Write("work/plan.md", []byte("# Plan"))

	w := do(t, router, http.MethodGet, "/resolve?query=plan", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	out := decode(t, w)
	note, _ := out["note"].(map[string]any)
	if note == nil || note["filename"] != "work/plan.md" {
		t.Errorf("resolution = %v", out)
	}
}

func TestResolveEndpoint_AmbiguousIsNotAnError(t *testing.T) {
	vault, router := testEnv(t, "")
	_ = vault.Write("x/standup.md", []byte("a"))
	_ = vault.Write("y/standup.md", []byte("b"))

	w := do(t, router, http.MethodGet, "/resolve?query=standup", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	out := decode(t, w)
	if out["ambiguous"] != true {
		t.Errorf("ambiguous = %v", out["ambiguous"])
	}
	if cands, _ := out["candidates"].([]any); len(cands) != 2 {
		t.Errorf("candidates = %v", out["candidates"])
	}
}

func TestSearchEndpoint(t *testing.T) {
	vault, router := testEnv(t, "")
	_ = vault.Write("a.md", []byte("weekly meeting agenda"))
	_ = vault.Write("b.md", []byte("unrelated"))

	w := do(t, router, http.MethodGet, "/search?q=meeting", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	out := decode(t, w)
	results, _ := out["results"].([]any)
	if len(results) != 1 {
		t.Fatalf("results = %d, want 1", len(results))
	}
	if out["backend"] == "" {
		t.Error("backend not reported")
	}
}

func TestSearchEndpoint_MissingQuery(t *testing.T) {
	_, router := testEnv(t, "")
	w := do(t, router, http.MethodGet, "/search", nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	if out := decode(t, w); out["code"] != "INVALID_ARGUMENT" {
		t.Errorf("code = %v", out["code"])
	}
}

func TestListNotes_OmitsContent(t *testing.T) {
	vault, router := testEnv(t, "")
	_ = vault.Write("a.md", []byte("# Title\nbody text"))

	out := decode(t, do(t, router, http.MethodGet, "/notes", nil))
	notes, _ := out["notes"].([]any)
	if len(notes) != 1 {
		t.Fatalf("notes = %d", len(notes))
	}
	if c, ok := notes[0].(map[string]any)["content"]; ok && c != "" {
		t.Errorf("listing should omit content, got %v", c)
	}
	if out["total"] != float64(1) {
		t.Errorf("total = %v", out["total"])
	}
}

func TestGetNoteWindow(t *testing.T) {
	vault, router := testEnv(t, "")
	_ = vault.Write("a.md", []byte("# Title\n* [ ] task\n- bullet"))

	out := decode(t, do(t, router, http.MethodGet, "/notes/a.md", nil))
	if out["totalLines"] != float64(3) {
		t.Fatalf("totalLines = %v", out["totalLines"])
	}
	lines, _ := out["lines"].([]any)
	if len(lines) != 3 {
		t.Fatalf("lines = %d", len(lines))
	}

	// Range request.
	out = decode(t, do(t, router, http.MethodGet, "/notes/a.md?startLine=2&endLine=3", nil))
	lines, _ = out["lines"].([]any)
	if len(lines) != 2 {
		t.Errorf("range lines = %d, want 2", len(lines))
	}
}

func TestGetNote_NotFound(t *testing.T) {
	_, router := testEnv(t, "")
	w := do(t, router, http.MethodGet, "/notes/nope.md", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
	if out := decode(t, w); out["code"] != "NOT_FOUND" {
		t.Errorf("code = %v", out["code"])
	}
}

func TestPatchEditLine(t *testing.T) {
	vault, router := testEnv(t, "")
	_ = vault.Write("a.md", []byte("one\ntwo"))

	w := do(t, router, http.MethodPatch, "/notes/a.md", PatchRequest{
		Op: "edit_line", Line: 2, Text: "TWO",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	n, _ := vault.Read("a.md")
	if n.Content != "one\nTWO" {
		t.Errorf("content = %q", n.Content)
	}
}

func TestDeleteNote_ConfirmationFlow(t *testing.T) {
	vault, router := testEnv(t, "")
	_ = vault.Write("a.md", []byte("x"))

	// Without token: 428 Precondition Required.
	w := do(t, router, http.MethodDelete, "/notes/a.md", nil)
	if w.Code != http.StatusPreconditionRequired {
		t.Fatalf("status = %d, want 428", w.Code)
	}
	if out := decode(t, w); out["code"] != "CONFIRMATION_REQUIRED" {
		t.Errorf("code = %v", out["code"])
	}

	// Dry run issues a token.
	out := decode(t, do(t, router, http.MethodDelete, "/notes/a.md?dryRun=true", nil))
	token, _ := out["confirmToken"].(string)
	if token == "" {
		t.Fatalf("no token in %v", out)
	}

	// Token applies the delete.
	w = do(t, router, http.MethodDelete, "/notes/a.md?confirmToken="+token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if _, err := vault.Read("a.md"); err == nil {
		t.Error("note still readable after delete")
	}
}

func TestPatchDeleteLines_InvalidRange(t *testing.T) {
	vault, router := testEnv(t, "")
	_ = vault.Write("a.md", []byte("one\ntwo"))

	w := do(t, router, http.MethodPatch, "/notes/a.md", PatchRequest{
		Op: "delete_lines", StartLine: 5, EndLine: 9, DryRun: true,
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	if out := decode(t, w); out["code"] != "INVALID_LINE_REFERENCE" {
		t.Errorf("code = %v", out["code"])
	}
}

func TestPutReplaceNote_Gated(t *testing.T) {
	vault, router := testEnv(t, "")
	_ = vault.Write("a.md", []byte("old"))

	w := do(t, router, http.MethodPut, "/notes/a.md", ReplaceNoteRequest{Content: "new"})
	if w.Code != http.StatusPreconditionRequired {
		t.Fatalf("status = %d, want 428", w.Code)
	}

	out := decode(t, do(t, router, http.MethodPut, "/notes/a.md",
		ReplaceNoteRequest{Content: "new", DryRun: true}))
	token, _ := out["confirmToken"].(string)

	w = do(t, router, http.MethodPut, "/notes/a.md",
		ReplaceNoteRequest{Content: "new", ConfirmToken: token})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	n, _ := vault.Read("a.md")
	if n.Content != "new" {
		t.Errorf("content = %q", n.Content)
	}
}

func TestSearchParagraphsEndpoint(t *testing.T) {
	vault, router := testEnv(t, "")
	_ = vault.Write("a.md", []byte("# Title\n* [ ] call Alice\ncall notes"))

	out := decode(t, do(t, router, http.MethodGet, "/paragraphs?filename=a.md&q=call&type=task", nil))
	if out["count"] != float64(1) {
		t.Errorf("count = %v", out["count"])
	}
}

func TestAttachmentUploadAndServe(t *testing.T) {
	_, router, vaultDir := testEnvWithVault(t, "")

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "shot.png")
	if err != nil {
		t.Fatal(err)
	}
	fw.Write([]byte{0x89, 0x50, 0x4e, 0x47})
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/attachments", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusCreated {
		t.Fatalf("upload status = %d, body = %s", w.Code, w.Body.String())
	}
	if _, err := os.Stat(filepath.Join(vaultDir, "attachments", "shot.png")); err != nil {
		t.Fatalf("uploaded file missing: %v", err)
	}

	w = do(t, router, http.MethodGet, "/attachments/shot.png", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("serve status = %d", w.Code)
	}
}

func TestAttachmentUpload_RejectsBadExtension(t *testing.T) {
	_, router := testEnv(t, "")

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, _ := mw.CreateFormFile("file", "evil.sh")
	fw.Write([]byte("#!/bin/sh"))
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/attachments", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}
