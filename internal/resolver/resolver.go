// Package resolver turns loosely specified references (ids, filenames,
// dates, titles, free text) into exactly one canonical note or folder, or
// an explicit ambiguity signal. An automated caller must never silently
// act on a guess, so near-ties are reported instead of picked.
package resolver

import (
	"context"
	"path"
	"regexp"
	"sort"
	"strings"

	"github.com/plumehq/plume/internal/models"
	"github.com/plumehq/plume/internal/search"
)

// Identity score tiers. Exact identity always outranks partial matches.
const (
	scoreExactID       = 1.0
	scoreExactFilename = 0.99
	scoreExactBasename = 0.97
	scoreExactTitle    = 0.96
	scoreExactDate     = 0.95
	scoreTitlePrefix   = 0.90
	scoreBasePrefix    = 0.88
	scoreSegment       = 0.83
	scoreCombined      = 0.76
)

// Defaults for the decision rule.
const (
	DefaultMinScore       = 0.70
	DefaultAmbiguityDelta = 0.05
	DefaultLimit          = 5
)

var dateTokenRe = regexp.MustCompile(`^(\d{4})-?(\d{2})-?(\d{2})$`)

// Ref is the tagged union of optional reference fields a caller may
// supply. Priority is a single documented contract: id > filename > date >
// title/query.
type Ref struct {
	ID       string
	Filename string
	Date     string
	Query    string
}

// Query returns the highest-priority populated field and its kind.
func (r Ref) pick() (string, string) {
	switch {
	case r.ID != "":
		return r.ID, "id"
	case r.Filename != "":
		return r.Filename, "filename"
	case r.Date != "":
		return r.Date, "date"
	default:
		return r.Query, "query"
	}
}

// Options tune the decision rule.
type Options struct {
	Limit          int
	MinScore       float64
	AmbiguityDelta float64
}

// withDefaults fills unset knobs from base, then from the package
// constants. base carries the resolver's configured defaults so per-call
// options only need to name what they override.
func (o Options) withDefaults(base Options) Options {
	if o.Limit <= 0 {
		o.Limit = base.Limit
	}
	if o.MinScore <= 0 {
		o.MinScore = base.MinScore
	}
	if o.AmbiguityDelta <= 0 {
		o.AmbiguityDelta = base.AmbiguityDelta
	}
	if o.Limit <= 0 {
		o.Limit = DefaultLimit
	}
	if o.MinScore <= 0 {
		o.MinScore = DefaultMinScore
	}
	if o.AmbiguityDelta <= 0 {
		o.AmbiguityDelta = DefaultAmbiguityDelta
	}
	return o
}

// Resolution is the outcome of one resolve call. When Ambiguous is set a
// close second exists and no target is chosen; Candidates carry what the
// caller needs to disambiguate.
type Resolution struct {
	Note       *models.Note       `json:"note,omitempty"`
	Folder     *models.Folder     `json:"folder,omitempty"`
	ExactMatch bool               `json:"exactMatch"`
	Ambiguous  bool               `json:"ambiguous"`
	Confidence float64            `json:"confidence"`
	Candidates []models.Candidate `json:"candidates,omitempty"`
	// Suggested holds canonical arguments for the follow-up call.
	Suggested map[string]string `json:"suggested,omitempty"`
}

// Resolver scores the listed note/folder universe against references.
// It reads through the same listing path as the search aggregator so
// scope filters apply identically.
type Resolver struct {
	listing  *search.Listing
	defaults Options
}

// New creates a resolver over the shared listing. defaults seed every
// resolve call's unset options; zero fields fall back to the package
// constants.
func New(listing *search.Listing, defaults Options) *Resolver {
	return &Resolver{listing: listing, defaults: defaults}
}

// ResolveNote resolves ref against the note universe under scope.
func (r *Resolver) ResolveNote(ctx context.Context, ref Ref, scope search.ListFilter, opts Options) (*Resolution, error) {
	opts = opts.withDefaults(r.defaults)
	query, kind := ref.pick()
	query = strings.TrimSpace(query)

	notes, err := r.listing.Notes(scope)
	if err != nil {
		return nil, err
	}

	candidates := make([]models.Candidate, 0, 8)
	for i := range notes {
		s := noteScore(notes[i], query, kind)
		if s <= 0 {
			continue
		}
		candidates = append(candidates, models.Candidate{Note: &notes[i], Score: s})
	}

	res := decide(candidates, opts)
	if res.Note != nil {
		res.Suggested = suggestNote(*res.Note)
	}
	return res, nil
}

// ResolveFolder resolves ref against the folder universe under scope.
func (r *Resolver) ResolveFolder(ctx context.Context, ref Ref, scope search.ListFilter, opts Options) (*Resolution, error) {
	opts = opts.withDefaults(r.defaults)
	query, _ := ref.pick()
	query = strings.TrimSpace(query)

	folders, err := r.listing.Folders(scope)
	if err != nil {
		return nil, err
	}

	candidates := make([]models.Candidate, 0, 8)
	for i := range folders {
		s := folderScore(folders[i], query)
		if s <= 0 {
			continue
		}
		candidates = append(candidates, models.Candidate{Folder: &folders[i], Score: s})
	}

	return decide(candidates, opts), nil
}

// decide applies the threshold/delta rule over sorted candidates.
func decide(candidates []models.Candidate, opts Options) *Resolution {
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Score != candidates[j].Score {
			return candidates[i].Score > candidates[j].Score
		}
		return candidates[i].Label() < candidates[j].Label()
	})

	res := &Resolution{}
	if len(candidates) > opts.Limit {
		res.Candidates = candidates[:opts.Limit]
	} else {
		res.Candidates = candidates
	}
	if len(candidates) == 0 {
		return res
	}

	top := candidates[0]
	res.Confidence = top.Score

	confident := top.Score >= opts.MinScore
	clearWinner := len(candidates) == 1 || top.Score-candidates[1].Score >= opts.AmbiguityDelta

	switch {
	case confident && clearWinner:
		res.Note = top.Note
		res.Folder = top.Folder
		res.ExactMatch = top.Score >= scoreExactTitle
	case confident && !clearWinner:
		res.Ambiguous = true
	}
	return res
}

// noteScore is the identity-oriented scorer, distinct from full-text
// scoring.
func noteScore(n models.Note, query, kind string) float64 {
	if query == "" {
		return 0
	}
	q := strings.ToLower(query)

	if kind == "id" || n.ID != "" {
		if strings.EqualFold(n.ID, query) {
			return scoreExactID
		}
		if kind == "id" {
			return 0
		}
	}

	filename := strings.ToLower(n.Filename)
	base := strings.TrimSuffix(path.Base(filename), path.Ext(filename))
	title := strings.ToLower(n.Title)

	if filename != "" && filename == q {
		return scoreExactFilename
	}
	// Calendar notes resolve by date token (both sides normalized to 8
	// digits), so an exact-title match elsewhere can still outrank them.
	if qd := normalizeDate(q); qd != "" && n.Type == models.TypeCalendar {
		if normalizeDate(base) == qd {
			return scoreExactDate
		}
	}
	if base != "" && base == q {
		return scoreExactBasename
	}
	if title != "" && title == q {
		return scoreExactTitle
	}
	if qd := normalizeDate(q); qd != "" {
		if nd := normalizeDate(base); nd == qd {
			return scoreExactDate
		}
	}
	if title != "" && strings.HasPrefix(title, q) {
		return scoreTitlePrefix
	}
	if base != "" && strings.HasPrefix(base, q) {
		return scoreBasePrefix
	}
	if segmentOrSubstring(filename, q) {
		return scoreSegment
	}
	// The combined tier needs containment in both title and filename; a
	// title-only substring stays below the confidence floor.
	if title != "" && filename != "" &&
		strings.Contains(title, q) && strings.Contains(filename, q) {
		return scoreCombined
	}
	return 0
}

func folderScore(f models.Folder, query string) float64 {
	if query == "" {
		return 0
	}
	q := strings.ToLower(query)
	p := strings.ToLower(f.Path)
	name := strings.ToLower(f.Name)

	switch {
	case p == q:
		return scoreExactFilename
	case name == q:
		return scoreExactBasename
	case strings.HasPrefix(name, q):
		return scoreBasePrefix
	case segmentOrSubstring(p, q):
		return scoreSegment
	}
	return 0
}

func segmentOrSubstring(value, q string) bool {
	if value == "" {
		return false
	}
	for _, seg := range strings.Split(value, "/") {
		if seg == q || strings.TrimSuffix(seg, path.Ext(seg)) == q {
			return true
		}
	}
	return strings.Contains(value, q)
}

// normalizeDate reduces YYYY-MM-DD or YYYYMMDD tokens to 8 digits; other
// strings normalize to empty.
func normalizeDate(s string) string {
	m := dateTokenRe.FindStringSubmatch(s)
	if m == nil {
		return ""
	}
	return m[1] + m[2] + m[3]
}

// suggestNote emits the canonical argument set a follow-up call should
// use for this note.
func suggestNote(n models.Note) map[string]string {
	out := map[string]string{"source": string(n.Source)}
	if n.Source == models.SourceSpace {
		out["id"] = n.ID
		out["space"] = n.SpaceID
	} else {
		out["filename"] = n.Filename
	}
	return out
}
