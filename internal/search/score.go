package search

import (
	"path"
	"sort"
	"strings"
	"time"

	"github.com/sahilm/fuzzy"

	"github.com/plumehq/plume/internal/models"
)

// Metadata match tiers for non-content searches.
const (
	scoreExactField  = 120
	scorePrefix      = 100
	scorePathSegment = 95
	scoreSubstring   = 80
)

// scoreResult computes the full-text ranking score: raw match count plus
// title and recency bonuses, minus the archive penalty.
func scoreResult(r *models.SearchResult, query string, now time.Time) float64 {
	score := float64(len(r.Matches))

	qt := strings.ToLower(strings.TrimSpace(query))
	title := strings.ToLower(r.Note.Title)
	switch {
	case title != "" && title == qt:
		score += 30
	case title != "" && strings.Contains(title, qt):
		score += 15
	}

	score += recencyBonus(now, r.Note.ModifiedAt)
	score += creationBonus(now, r.Note.CreatedAt)

	if inArchive(r.Note) {
		score -= 50
	}
	return score
}

func recencyBonus(now, modified time.Time) float64 {
	if modified.IsZero() {
		return 0
	}
	age := now.Sub(modified)
	switch {
	case age < 24*time.Hour:
		return 20
	case age < 7*24*time.Hour:
		return 15
	case age < 30*24*time.Hour:
		return 8
	case age < 90*24*time.Hour:
		return 3
	}
	return 0
}

func creationBonus(now, created time.Time) float64 {
	if created.IsZero() {
		return 0
	}
	age := now.Sub(created)
	switch {
	case age < 7*24*time.Hour:
		return 5
	case age < 30*24*time.Hour:
		return 2
	}
	return 0
}

func inArchive(n models.Note) bool {
	if n.Type == models.TypeTrash {
		return true
	}
	folder := strings.ToLower(n.Folder)
	return strings.Contains(folder, "@archive") || strings.Contains(folder, "@trash")
}

// metadataScore rates a note's title/filename against the query for
// non-content search fields. OR-separated terms (a|b) are scored
// independently and the maximum wins.
func metadataScore(n models.Note, query string, field Field, caseSensitive bool) float64 {
	best := 0.0
	for _, term := range splitOrTerms(query) {
		if s := metadataTermScore(n, term, field, caseSensitive); s > best {
			best = s
		}
	}
	return best
}

func metadataTermScore(n models.Note, term string, field Field, caseSensitive bool) float64 {
	var values []string
	switch field {
	case FieldTitle:
		values = []string{n.Title}
	case FieldFilename:
		values = []string{n.Filename}
	default: // title_or_filename
		values = []string{n.Title, n.Filename}
	}

	best := 0.0
	for _, v := range values {
		if v == "" {
			continue
		}
		if s := fieldScore(v, term, caseSensitive); s > best {
			best = s
		}
	}
	return best
}

func fieldScore(value, term string, caseSensitive bool) float64 {
	if !caseSensitive {
		value = strings.ToLower(value)
		term = strings.ToLower(term)
	}
	term = strings.TrimSpace(term)
	if term == "" {
		return 0
	}
	switch {
	case value == term:
		return scoreExactField
	case strings.HasPrefix(value, term):
		return scorePrefix
	case segmentEquals(value, term):
		return scorePathSegment
	case strings.Contains(value, term):
		return scoreSubstring
	}
	return 0
}

// segmentEquals reports whether any slash-separated path segment of value
// (including its extension-stripped basename) equals term exactly.
func segmentEquals(value, term string) bool {
	for _, seg := range strings.Split(value, "/") {
		if seg == term {
			return true
		}
		if strings.TrimSuffix(seg, path.Ext(seg)) == term {
			return true
		}
	}
	return false
}

// splitOrTerms splits a|b|c queries into independent terms.
func splitOrTerms(query string) []string {
	parts := strings.Split(query, "|")
	out := parts[:0]
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return []string{""}
	}
	return out
}

// fuzzySource adapts results for sahilm/fuzzy.
type fuzzySource []models.SearchResult

func (s fuzzySource) String(i int) string {
	r := s[i]
	if r.Note.Filename != "" {
		return r.Note.Title + " " + r.Note.Filename
	}
	return r.Note.Title
}

func (s fuzzySource) Len() int { return len(s) }

// fuzzyRerank replaces the final ranking with a fuzzy-distance ordering
// over the already-filtered candidate set. Candidates the fuzzy matcher
// rejects outright are dropped.
func fuzzyRerank(results []models.SearchResult, query string) []models.SearchResult {
	matches := fuzzy.FindFrom(query, fuzzySource(results))
	out := make([]models.SearchResult, 0, len(matches))
	for _, m := range matches {
		r := results[m.Index]
		r.Score = float64(m.Score)
		out = append(out, r)
	}
	return out
}

// sortResults orders by score descending with filename as the stable tie
// break, so merged backends produce a deterministic ordering.
func sortResults(results []models.SearchResult) {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return resultName(results[i]) < resultName(results[j])
	})
}

func resultName(r models.SearchResult) string {
	if r.Note.Filename != "" {
		return r.Note.Filename
	}
	return r.Note.Title
}
