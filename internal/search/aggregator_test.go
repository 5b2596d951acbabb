package search

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"github.com/plumehq/plume/internal/models"
	"github.com/plumehq/plume/internal/ripgrep"
	"github.com/plumehq/plume/internal/testutil"
)

func testAggregator(t *testing.T) (*Aggregator, string) {
	t.Helper()
	root, vault := testutil.TestVault(t)
	store := testutil.TestStore(t)
	listing := NewListing(vault, store, time.Second, 10*time.Second, nil)
	// nil ripgrep client forces the deterministic scan backend in tests.
	agg := NewAggregator(vault, root, store, nil, listing, nil)
	return agg, root
}

func write(t *testing.T, agg *Aggregator, path, content string) {
	t.Helper()
	if err := agg.vault.Write(path, []byte(content)); err != nil {
		t.Fatal(err)
	}
	agg.listing.Invalidate()
}

func TestSearch_ContentScanBackend(t *testing.T) {
	agg, _ := testAggregator(t)
	write(t, agg, "work/plan.md", "# Plan\ndiscuss the meeting agenda\n")
	write(t, agg, "home/recipes.md", "# Recipes\npasta with garlic\n")

	resp, err := agg.Search(context.Background(), "meeting", Options{})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Backend != BackendScan {
		t.Errorf("backend = %s, want scan", resp.Backend)
	}
	if len(resp.Results) != 1 {
		t.Fatalf("results = %d, want 1", len(resp.Results))
	}
	r := resp.Results[0]
	if r.Note.Filename != "work/plan.md" {
		t.Errorf("hit = %q", r.Note.Filename)
	}
	if len(r.Matches) != 1 || r.Matches[0].Line != 2 {
		t.Errorf("matches = %v", r.Matches)
	}
}

func TestSearch_OrTermsDeduplicated(t *testing.T) {
	agg, _ := testAggregator(t)
	write(t, agg, "a.md", "daily standup notes\n")
	write(t, agg, "b.md", "meeting minutes\n")
	write(t, agg, "c.md", "meeting then standup\n")
	write(t, agg, "d.md", "nothing relevant\n")

	resp, err := agg.Search(context.Background(), "meeting|standup", Options{})
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Results) != 3 {
		t.Fatalf("results = %d, want 3 (deduplicated per note)", len(resp.Results))
	}
}

func TestSearch_MergesSpaceNotes(t *testing.T) {
	agg, _ := testAggregator(t)
	write(t, agg, "a.md", "local meeting\n")
	if _, err := agg.spaces.CreateNote("s1", "Standup", "work", "space meeting notes\n"); err != nil {
		t.Fatal(err)
	}
	agg.listing.Invalidate()

	resp, err := agg.Search(context.Background(), "meeting", Options{})
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Results) != 2 {
		t.Fatalf("results = %d, want 2", len(resp.Results))
	}
	sources := map[models.Source]bool{}
	for _, r := range resp.Results {
		sources[r.Note.Source] = true
	}
	if !sources[models.SourceLocal] || !sources[models.SourceSpace] {
		t.Errorf("sources = %v, want both backends", sources)
	}
}

func TestSearch_MetadataField(t *testing.T) {
	agg, _ := testAggregator(t)
	write(t, agg, "projects/kickoff.md", "# Kickoff\nirrelevant body meeting\n")
	write(t, agg, "notes/other.md", "# Other\nbody\n")

	resp, err := agg.Search(context.Background(), "kickoff", Options{Field: FieldTitleOrFilename})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Backend != BackendMetadata {
		t.Errorf("backend = %s, want metadata", resp.Backend)
	}
	if len(resp.Results) != 1 || resp.Results[0].Note.Filename != "projects/kickoff.md" {
		t.Errorf("results = %v", resp.Results)
	}
	if len(resp.Warnings) == 0 {
		t.Error("metadata search should carry a labeling warning")
	}
}

func TestSearch_PropertyFilter(t *testing.T) {
	agg, _ := testAggregator(t)
	write(t, agg, "a.md", "---\nstatus: active\n---\nproject meeting\n")
	write(t, agg, "b.md", "---\nstatus: done; archived\n---\nproject meeting\n")
	write(t, agg, "c.md", "project meeting\n")

	resp, err := agg.Search(context.Background(), "meeting", Options{
		Properties: map[string]string{"status": "archived"},
	})
	if err != nil {
		t.Fatal(err)
	}
	// b matches via list membership; c fails on the missing key.
	if len(resp.Results) != 1 || resp.Results[0].Note.Filename != "b.md" {
		t.Errorf("results = %v", resp.Results)
	}
}

func TestSearch_DateFilter(t *testing.T) {
	agg, _ := testAggregator(t)
	write(t, agg, "old.md", "meeting\n")
	write(t, agg, "new.md", "meeting\n")

	cutoff := time.Now().Add(-time.Hour)
	resp, err := agg.Search(context.Background(), "meeting", Options{
		Modified: DateRange{After: cutoff},
	})
	if err != nil {
		t.Fatal(err)
	}
	// Both were just written, so both pass the provided filter.
	if len(resp.Results) != 2 {
		t.Errorf("results = %d, want 2", len(resp.Results))
	}

	resp, err = agg.Search(context.Background(), "meeting", Options{
		Modified: DateRange{Before: cutoff},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Results) != 0 {
		t.Errorf("results = %d, want 0 before cutoff", len(resp.Results))
	}
}

func TestSearch_ArchivePenalty(t *testing.T) {
	agg, _ := testAggregator(t)
	write(t, agg, "active.md", "meeting\n")
	write(t, agg, "@Trash/stale.md", "meeting meeting meeting\n")

	resp, err := agg.Search(context.Background(), "meeting", Options{})
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Results) != 2 {
		t.Fatalf("results = %d, want 2", len(resp.Results))
	}
	if resp.Results[0].Note.Filename != "active.md" {
		t.Errorf("trashed note outranked active note: %v", resp.Results[0].Note.Filename)
	}
}

func TestSearch_LimitAndOrdering(t *testing.T) {
	agg, _ := testAggregator(t)
	write(t, agg, "a.md", "meeting\n")
	write(t, agg, "b.md", "meeting\n")
	write(t, agg, "c.md", "meeting\n")

	resp, err := agg.Search(context.Background(), "meeting", Options{Limit: 2})
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Results) != 2 {
		t.Fatalf("results = %d, want limit 2", len(resp.Results))
	}
	// Equal scores break ties by filename.
	if resp.Results[0].Note.Filename != "a.md" || resp.Results[1].Note.Filename != "b.md" {
		t.Errorf("tie-break ordering = %q, %q", resp.Results[0].Note.Filename, resp.Results[1].Note.Filename)
	}
}

func TestSearch_FuzzyRerank(t *testing.T) {
	agg, _ := testAggregator(t)
	write(t, agg, "meeting-notes.md", "# Meeting Notes\nagenda meeting\n")
	write(t, agg, "misc.md", "a meeting too\n")

	resp, err := agg.Search(context.Background(), "meetng", Options{
		Field: FieldTitleOrFilename,
		Fuzzy: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	// Fuzzy replaces the metadata ranking, so the typo'd query still
	// reaches its target.
	if len(resp.Results) == 0 {
		t.Fatal("fuzzy search found nothing")
	}
	if resp.Results[0].Note.Filename != "meeting-notes.md" {
		t.Errorf("fuzzy top = %q", resp.Results[0].Note.Filename)
	}
}

// fakeRipgrep installs a shell stand-in for rg that greps the search root
// and emits rg-style JSON match events.
func fakeRipgrep(t *testing.T) *ripgrep.Client {
	t.Helper()
	bin := filepath.Join(t.TempDir(), "rg")
	script := `#!/bin/sh
for a in "$@"; do q="$a"; done
grep -rn -i -- "$q" . 2>/dev/null | while IFS=: read -r file line text; do
	printf '{"type":"match","data":{"path":{"text":"%s"},"line_number":%s,"lines":{"text":"%s"},"submatches":[{"start":0,"end":1}]}}\n' "${file#./}" "$line" "$text"
done
exit 0
`
	if err := os.WriteFile(bin, []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}
	return ripgrep.New(bin, time.Second)
}

func resultFiles(resp *Response) []string {
	files := make([]string, 0, len(resp.Results))
	for _, r := range resp.Results {
		files = append(files, r.Note.Filename)
	}
	slices.Sort(files)
	return files
}

func TestSearch_RipgrepBackendHonorsQueryMode(t *testing.T) {
	root, vault := testutil.TestVault(t)
	store := testutil.TestStore(t)
	listing := NewListing(vault, store, time.Second, 10*time.Second, nil)
	agg := NewAggregator(vault, root, store, fakeRipgrep(t), listing, nil)

	write(t, agg, "a.md", "alpha only here\n")
	write(t, agg, "b.md", "beta only here\n")
	write(t, agg, "c.md", "alpha beta together\n")

	cases := []struct {
		mode QueryMode
		want []string
	}{
		{ModeAny, []string{"a.md", "b.md", "c.md"}},
		{ModeAll, []string{"c.md"}},
		{ModePhrase, []string{"c.md"}},
	}
	for _, tc := range cases {
		resp, err := agg.Search(context.Background(), "alpha beta", Options{Mode: tc.mode})
		if err != nil {
			t.Fatal(err)
		}
		if resp.Backend != BackendRipgrep {
			t.Fatalf("mode %s: backend = %s, want ripgrep", tc.mode, resp.Backend)
		}
		if got := resultFiles(resp); !slices.Equal(got, tc.want) {
			t.Errorf("mode %s: hits = %v, want %v", tc.mode, got, tc.want)
		}
	}

	// Smart mode with no phrase hit anywhere falls back to all-words.
	resp, err := agg.Search(context.Background(), "beta together", Options{})
	if err != nil {
		t.Fatal(err)
	}
	if got := resultFiles(resp); !slices.Equal(got, []string{"c.md"}) {
		t.Errorf("smart fallback hits = %v, want [c.md]", got)
	}
}

func TestSearch_BackendsAgreeOnMultiWordQueries(t *testing.T) {
	root, vault := testutil.TestVault(t)
	store := testutil.TestStore(t)
	listing := NewListing(vault, store, time.Second, 10*time.Second, nil)
	rgAgg := NewAggregator(vault, root, store, fakeRipgrep(t), listing, nil)
	scanAgg := NewAggregator(vault, root, store, nil, listing, nil)

	write(t, rgAgg, "a.md", "alpha only here\n")
	write(t, rgAgg, "b.md", "beta only here\n")
	write(t, rgAgg, "c.md", "alpha beta together\n")

	for _, mode := range []QueryMode{ModeAny, ModeAll, ModeSmart, ModePhrase} {
		fromRg, err := rgAgg.Search(context.Background(), "alpha beta", Options{Mode: mode})
		if err != nil {
			t.Fatal(err)
		}
		fromScan, err := scanAgg.Search(context.Background(), "alpha beta", Options{Mode: mode})
		if err != nil {
			t.Fatal(err)
		}
		if fromRg.Backend != BackendRipgrep || fromScan.Backend != BackendScan {
			t.Fatalf("mode %s: backends = %s/%s", mode, fromRg.Backend, fromScan.Backend)
		}
		if got, want := resultFiles(fromRg), resultFiles(fromScan); !slices.Equal(got, want) {
			t.Errorf("mode %s: ripgrep hits %v, scan hits %v", mode, got, want)
		}
	}
}
