package paragraph

import "github.com/plumehq/plume/internal/apperr"

// Window is a paginated slice of a note's line range.
type Window struct {
	Lines         []Line `json:"lines"`
	StartLine     int    `json:"startLine"`
	EndLine       int    `json:"endLine"`
	TotalLines    int    `json:"totalLines"`
	ReturnedLines int    `json:"returnedLines"`
	HasMore       bool   `json:"hasMore"`
	NextOffset    int    `json:"nextOffset"`
}

// BuildLineWindow selects lines[start-1:end] (1-indexed inclusive bounds,
// zero meaning unbounded) and pages through the selection with offset and
// limit. TotalLines counts the bounded range, not the whole note, so
// HasMore is false exactly when the next offset would reach the range end.
func BuildLineWindow(lines []Line, start, end, offset, limit int) (Window, error) {
	total := len(lines)

	if start == 0 {
		start = 1
	}
	if end == 0 || end > total {
		end = total
	}
	if start < 1 || start > total {
		return Window{}, apperr.New(apperr.CodeInvalidLineReference,
			"start line %d is out of range 1..%d", start, total).
			WithHint("re-read the note to refresh line numbers")
	}
	if end < start {
		return Window{}, apperr.New(apperr.CodeInvalidLineReference,
			"end line %d precedes start line %d", end, start)
	}
	if offset < 0 {
		return Window{}, apperr.New(apperr.CodeInvalidLineReference, "offset must be >= 0, got %d", offset)
	}
	if limit <= 0 {
		limit = 100
	}

	ranged := lines[start-1 : end]
	rangeTotal := len(ranged)

	if offset > rangeTotal {
		offset = rangeTotal
	}
	page := ranged[offset:]
	if len(page) > limit {
		page = page[:limit]
	}

	w := Window{
		Lines:         page,
		TotalLines:    rangeTotal,
		ReturnedLines: len(page),
		NextOffset:    offset + len(page),
	}
	w.HasMore = w.NextOffset < rangeTotal
	if len(page) > 0 {
		w.StartLine = start + offset
		w.EndLine = start + offset + len(page) - 1
	}
	return w, nil
}
