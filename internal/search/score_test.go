package search

import (
	"testing"
	"time"

	"github.com/plumehq/plume/internal/models"
)

func TestFieldScore_Tiers(t *testing.T) {
	cases := []struct {
		value string
		term  string
		want  float64
	}{
		{"meeting notes", "meeting notes", scoreExactField},
		{"meeting notes", "meeting", scorePrefix},
		{"work/meeting.md", "meeting", scorePathSegment},
		{"the meeting room", "meeting", scoreSubstring},
		{"unrelated", "meeting", 0},
	}
	for _, c := range cases {
		if got := fieldScore(c.value, c.term, false); got != c.want {
			t.Errorf("fieldScore(%q, %q) = %v, want %v", c.value, c.term, got, c.want)
		}
	}
}

func TestMetadataScore_OrTermsTakeMax(t *testing.T) {
	n := models.Note{Title: "standup", Filename: "daily/standup.md"}
	got := metadataScore(n, "meeting|standup", FieldTitleOrFilename, false)
	if got != scoreExactField {
		t.Errorf("score = %v, want exact-match tier", got)
	}
}

func TestScoreResult_TitleAndRecency(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	fresh := models.SearchResult{
		Note: models.Note{
			Title:      "standup",
			ModifiedAt: now.Add(-2 * time.Hour),
			CreatedAt:  now.Add(-2 * time.Hour),
		},
		Matches: []models.LineMatch{{Line: 1}},
	}
	// 1 match + 30 exact title + 20 same-day + 5 created-this-week.
	if got := scoreResult(&fresh, "standup", now); got != 56 {
		t.Errorf("fresh score = %v, want 56", got)
	}

	stale := models.SearchResult{
		Note: models.Note{
			Title:      "standup archive",
			Folder:     "work/@Archive/2023",
			ModifiedAt: now.Add(-200 * 24 * time.Hour),
			CreatedAt:  now.Add(-200 * 24 * time.Hour),
		},
		Matches: []models.LineMatch{{Line: 1}, {Line: 2}},
	}
	// 2 matches + 15 partial title - 50 archive penalty.
	if got := scoreResult(&stale, "standup", now); got != -33 {
		t.Errorf("stale score = %v, want -33", got)
	}
}

func TestMatchContent_Modes(t *testing.T) {
	content := "alpha beta\ngamma\nbeta alpha together\n"

	if hits := matchContent(content, "alpha beta", ModePhrase, false); len(hits) != 1 || hits[0].Line != 1 {
		t.Errorf("phrase hits = %v", hits)
	}
	if hits := matchContent(content, "alpha gamma", ModeAny, false); len(hits) != 3 {
		t.Errorf("any hits = %v", hits)
	}
	if hits := matchContent(content, "alpha gamma", ModeAll, false); len(hits) != 2 {
		// both words occur somewhere; hits come from the first word
		t.Errorf("all hits = %v", hits)
	}
	if hits := matchContent(content, "alpha missing", ModeAll, false); hits != nil {
		t.Errorf("all with missing word = %v, want nil", hits)
	}
	// smart: phrase match wins when present, else all-words fallback.
	if hits := matchContent(content, "beta alpha", ModeSmart, false); len(hits) != 1 || hits[0].Line != 3 {
		t.Errorf("smart phrase hits = %v", hits)
	}
	if hits := matchContent(content, "gamma alpha", ModeSmart, false); len(hits) != 1 || hits[0].Line != 2 {
		t.Errorf("smart fallback hits = %v", hits)
	}
}

func TestPropertyValueMatches(t *testing.T) {
	if !propertyValueMatches("Active", "active", false) {
		t.Error("case-insensitive equality failed")
	}
	if propertyValueMatches("Active", "active", true) {
		t.Error("case-sensitive equality should fail")
	}
	if !propertyValueMatches("a; b, c", "b", false) {
		t.Error("list membership failed")
	}
	if propertyValueMatches("ab", "a", false) {
		t.Error("partial value must not match")
	}
}
