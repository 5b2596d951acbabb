package search

import (
	"strings"
	"time"

	"github.com/plumehq/plume/internal/models"
	"github.com/plumehq/plume/internal/parser"
)

// DateRange bounds a timestamp filter; zero ends are open.
type DateRange struct {
	After  time.Time
	Before time.Time
}

func (r DateRange) empty() bool {
	return r.After.IsZero() && r.Before.IsZero()
}

func (r DateRange) contains(t time.Time) bool {
	if !r.After.IsZero() && t.Before(r.After) {
		return false
	}
	if !r.Before.IsZero() && t.After(r.Before) {
		return false
	}
	return true
}

// passesDateFilters applies the modified and created range filters. A
// result passes only when every provided filter kind passes; absent kinds
// are not evaluated.
func passesDateFilters(n models.Note, modified, created DateRange) bool {
	if !modified.empty() && !modified.contains(n.ModifiedAt) {
		return false
	}
	if !created.empty() && !created.contains(n.CreatedAt) {
		return false
	}
	return true
}

// passesPropertyFilters parses the note's frontmatter and requires every
// requested key to equal the requested value or to be one element of a
// semicolon/comma-delimited list value. A missing key fails the note.
func passesPropertyFilters(n models.Note, props map[string]string, caseSensitive bool) bool {
	if len(props) == 0 {
		return true
	}
	res := parser.Parse([]byte(n.Content))
	for key, want := range props {
		got, ok := res.Property(key, caseSensitive)
		if !ok {
			return false
		}
		if !propertyValueMatches(got, want, caseSensitive) {
			return false
		}
	}
	return true
}

func propertyValueMatches(got, want string, caseSensitive bool) bool {
	eq := func(a, b string) bool {
		a = strings.TrimSpace(a)
		b = strings.TrimSpace(b)
		if caseSensitive {
			return a == b
		}
		return strings.EqualFold(a, b)
	}
	if eq(got, want) {
		return true
	}
	for _, part := range strings.FieldsFunc(got, func(r rune) bool { return r == ';' || r == ',' }) {
		if eq(part, want) {
			return true
		}
	}
	return false
}

// matchLines finds term occurrences in content line by line, reporting
// every line that contains the term with the first occurrence's offsets.
func matchLines(content, term string, caseSensitive bool) []models.LineMatch {
	haystackAll := content
	needle := term
	if !caseSensitive {
		haystackAll = strings.ToLower(content)
		needle = strings.ToLower(term)
	}
	if needle == "" {
		return nil
	}

	var out []models.LineMatch
	lines := strings.Split(content, "\n")
	folded := strings.Split(haystackAll, "\n")
	for i := range lines {
		idx := strings.Index(folded[i], needle)
		if idx < 0 {
			continue
		}
		out = append(out, models.LineMatch{
			Line:  i + 1,
			Text:  lines[i],
			Start: idx,
			End:   idx + len(needle),
		})
	}
	return out
}

// matchContent applies the multi-word query mode to one note's content and
// returns its line matches (nil when the note does not match).
//
//	phrase: the exact phrase must occur
//	any:    any word matching produces hits
//	all:    every word must occur somewhere; hits come from the first word
//	smart:  phrase hits when present, otherwise fall back to all-words
func matchContent(content, term string, mode QueryMode, caseSensitive bool) []models.LineMatch {
	words := strings.Fields(term)
	if len(words) <= 1 {
		return matchLines(content, term, caseSensitive)
	}

	switch mode {
	case ModeAny:
		var out []models.LineMatch
		seen := make(map[int]struct{})
		for _, w := range words {
			for _, m := range matchLines(content, w, caseSensitive) {
				if _, dup := seen[m.Line]; dup {
					continue
				}
				seen[m.Line] = struct{}{}
				out = append(out, m)
			}
		}
		return out
	case ModeAll:
		return matchAllWords(content, words, caseSensitive)
	case ModePhrase:
		return matchLines(content, term, caseSensitive)
	default: // smart
		if hits := matchLines(content, term, caseSensitive); len(hits) > 0 {
			return hits
		}
		return matchAllWords(content, words, caseSensitive)
	}
}

func matchAllWords(content string, words []string, caseSensitive bool) []models.LineMatch {
	for _, w := range words[1:] {
		if len(matchLines(content, w, caseSensitive)) == 0 {
			return nil
		}
	}
	return matchLines(content, words[0], caseSensitive)
}
