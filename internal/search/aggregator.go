package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/plumehq/plume/internal/models"
	"github.com/plumehq/plume/internal/ripgrep"
	"github.com/plumehq/plume/internal/spacestore"
	"github.com/plumehq/plume/internal/storage"
)

// Field selects what part of a note a search runs against.
type Field string

const (
	FieldContent         Field = "content"
	FieldTitle           Field = "title"
	FieldFilename        Field = "filename"
	FieldTitleOrFilename Field = "title_or_filename"
)

// QueryMode controls multi-word query interpretation.
type QueryMode string

const (
	ModePhrase QueryMode = "phrase"
	ModeSmart  QueryMode = "smart"
	ModeAny    QueryMode = "any"
	ModeAll    QueryMode = "all"
)

// Backend tags which implementation actually served a content search.
const (
	BackendRipgrep  = "ripgrep"
	BackendScan     = "scan"
	BackendMetadata = "metadata"
)

// Options are the knobs of one search call.
type Options struct {
	Field         Field
	Mode          QueryMode
	CaseSensitive bool
	Fuzzy         bool

	Folder  string
	SpaceID string
	Source  models.Source
	Type    models.NoteType

	Properties            map[string]string
	PropertyCaseSensitive bool

	Modified DateRange
	Created  DateRange

	Limit int
}

// Response is the aggregated search outcome. Backend reports which
// implementation served a content query so callers can tell a full-text
// result from a degraded or metadata-only one.
type Response struct {
	Results        []models.SearchResult `json:"results"`
	PartialResults bool                  `json:"partialResults"`
	Backend        string                `json:"backend"`
	Warnings       []string              `json:"warnings,omitempty"`
}

// Aggregator merges the content backends and the metadata listing under
// one scoring model.
type Aggregator struct {
	vault     storage.Provider
	vaultRoot string
	spaces    spacestore.NoteStore
	rg        *ripgrep.Client
	listing   *Listing
	logger    *slog.Logger
	now       func() time.Time
}

// NewAggregator wires the backends together. rg may be nil when the host
// has no ripgrep; content searches then always use the naive scan.
func NewAggregator(vault storage.Provider, vaultRoot string, spaces spacestore.NoteStore, rg *ripgrep.Client, listing *Listing, logger *slog.Logger) *Aggregator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{
		vault:     vault,
		vaultRoot: vaultRoot,
		spaces:    spaces,
		rg:        rg,
		listing:   listing,
		logger:    logger,
		now:       time.Now,
	}
}

// Listing exposes the shared listing path so the resolver scopes its
// candidate universe identically.
func (a *Aggregator) Listing() *Listing {
	return a.listing
}

// Search runs one aggregated query. Content searches merge ripgrep (or
// the scan fallback) with the space store's full-text index; other fields
// score the metadata listing.
func (a *Aggregator) Search(ctx context.Context, query string, opts Options) (*Response, error) {
	if opts.Limit <= 0 {
		opts.Limit = 20
	}
	if opts.Field == "" {
		opts.Field = FieldContent
	}
	if opts.Mode == "" {
		opts.Mode = ModeSmart
	}

	filter := ListFilter{Folder: opts.Folder, SpaceID: opts.SpaceID, Source: opts.Source, Type: opts.Type}
	notes, err := a.listing.Notes(filter)
	if err != nil {
		return nil, fmt.Errorf("search: listing: %w", err)
	}

	resp := &Response{}

	var results []models.SearchResult
	if opts.Field == FieldContent {
		results = a.searchContent(ctx, notes, query, opts, resp)
	} else {
		resp.Backend = BackendMetadata
		resp.Warnings = append(resp.Warnings,
			"metadata listing match, not full-text search")
		results = a.searchMetadata(notes, query, opts)
		if opts.Fuzzy {
			// Fuzzy mode re-ranks the whole listed universe so typo'd
			// queries can still reach their target.
			results = allAsCandidates(notes)
		}
	}

	// Filters run after the backends so both paths share them.
	filtered := results[:0]
	for _, r := range results {
		if !passesDateFilters(r.Note, opts.Modified, opts.Created) {
			continue
		}
		if !passesPropertyFilters(r.Note, opts.Properties, opts.PropertyCaseSensitive) {
			continue
		}
		filtered = append(filtered, r)
	}
	results = filtered

	if opts.Field == FieldContent {
		now := a.now()
		for i := range results {
			results[i].Score = scoreResult(&results[i], query, now)
		}
	}

	if opts.Fuzzy {
		results = fuzzyRerank(results, query)
	}

	sortResults(results)
	if len(results) > opts.Limit {
		results = results[:opts.Limit]
	}
	resp.Results = results
	return resp, nil
}

// searchContent merges the fastest available text backend over local notes
// with the space store's full-text index, deduplicating by note identity.
func (a *Aggregator) searchContent(ctx context.Context, notes []models.Note, query string, opts Options, resp *Response) []models.SearchResult {
	byKey := make(map[string]int)
	var results []models.SearchResult

	local := make(map[string]models.Note)
	for _, n := range notes {
		if n.Source == models.SourceLocal {
			local[n.Filename] = n
		}
	}

	terms := splitOrTerms(query)

	resp.Backend = BackendRipgrep
	served := a.searchLocalRipgrep(ctx, local, terms, opts, resp, byKey, &results)
	if !served {
		resp.Backend = BackendScan
		a.searchLocalScan(local, terms, opts, byKey, &results)
	}

	// Space notes: full-text index per space, merged by note identity so
	// the same note is never double-counted.
	a.searchSpaces(notes, terms, opts, byKey, &results)

	return results
}

func (a *Aggregator) searchLocalRipgrep(ctx context.Context, local map[string]models.Note, terms []string, opts Options, resp *Response, byKey map[string]int, results *[]models.SearchResult) bool {
	if a.rg == nil {
		resp.Warnings = append(resp.Warnings, "ripgrep not configured; using naive scan")
		return false
	}

	for _, term := range terms {
		// Multi-word modes other than phrase run one rg pass per word to
		// find candidate files, then share line extraction with the scan
		// backend so results do not depend on which backend served.
		words := strings.Fields(term)
		patterns := []string{term}
		perWord := len(words) > 1 && opts.Mode != ModePhrase
		if perWord {
			patterns = words
		}

		candidates := make(map[string]models.Note)
		for _, p := range patterns {
			res, err := a.rg.Search(ctx, a.vaultRoot, p, ripgrep.Options{
				CaseSensitive: opts.CaseSensitive,
				Folder:        opts.Folder,
			})
			if err != nil {
				if errors.Is(err, ripgrep.ErrUnavailable) {
					resp.Warnings = append(resp.Warnings, "ripgrep unavailable on this host; using naive scan")
				} else {
					a.logger.Warn("ripgrep failed, falling back to scan", slog.String("error", err.Error()))
					resp.Warnings = append(resp.Warnings, "ripgrep failed ("+err.Error()+"); using naive scan")
				}
				// Drop partial ripgrep output; the scan redoes all terms.
				*results = (*results)[:0]
				clear(byKey)
				return false
			}
			if res.Partial {
				resp.PartialResults = true
				resp.Warnings = append(resp.Warnings, res.Warning)
			}
			for _, m := range res.Matches {
				n, ok := local[m.File]
				if !ok {
					// rg saw a file the filtered listing excluded.
					continue
				}
				if perWord {
					candidates[m.File] = n
					continue
				}
				addMatch(byKey, results, n, models.LineMatch{
					Line: m.Line, Text: m.Text, Start: m.Start, End: m.End,
				})
			}
		}
		for _, n := range candidates {
			for _, m := range matchContent(n.Content, term, opts.Mode, opts.CaseSensitive) {
				addMatch(byKey, results, n, m)
			}
		}
	}
	return true
}

func (a *Aggregator) searchLocalScan(local map[string]models.Note, terms []string, opts Options, byKey map[string]int, results *[]models.SearchResult) {
	for _, n := range local {
		for _, term := range terms {
			hits := matchContent(n.Content, term, opts.Mode, opts.CaseSensitive)
			for _, m := range hits {
				addMatch(byKey, results, n, m)
			}
		}
	}
}

func (a *Aggregator) searchSpaces(notes []models.Note, terms []string, opts Options, byKey map[string]int, results *[]models.SearchResult) {
	if a.spaces == nil {
		return
	}
	spaceIDs := make(map[string]struct{})
	for _, n := range notes {
		if n.Source == models.SourceSpace {
			spaceIDs[n.SpaceID] = struct{}{}
		}
	}
	listed := make(map[string]models.Note)
	for _, n := range notes {
		if n.Source == models.SourceSpace {
			listed[n.Key()] = n
		}
	}

	for id := range spaceIDs {
		for _, term := range terms {
			hits, err := a.spaces.SearchFullText(term, id, opts.Limit*4)
			if err != nil {
				a.logger.Warn("space search failed", slog.String("space", id), slog.String("error", err.Error()))
				continue
			}
			for _, n := range hits {
				// Respect the listing's scope filters.
				scoped, ok := listed[n.Key()]
				if !ok {
					continue
				}
				for _, m := range matchContent(scoped.Content, term, opts.Mode, opts.CaseSensitive) {
					addMatch(byKey, results, scoped, m)
				}
			}
		}
	}
}

// addMatch appends a line match to the note's result, creating the result
// on first sight and deduplicating identical lines.
func addMatch(byKey map[string]int, results *[]models.SearchResult, n models.Note, m models.LineMatch) {
	idx, ok := byKey[n.Key()]
	if !ok {
		*results = append(*results, models.SearchResult{Note: n})
		idx = len(*results) - 1
		byKey[n.Key()] = idx
	}
	for _, existing := range (*results)[idx].Matches {
		if existing.Line == m.Line && existing.Start == m.Start {
			return
		}
	}
	(*results)[idx].Matches = append((*results)[idx].Matches, m)
}

func allAsCandidates(notes []models.Note) []models.SearchResult {
	out := make([]models.SearchResult, 0, len(notes))
	for _, n := range notes {
		out = append(out, models.SearchResult{Note: n})
	}
	return out
}

// searchMetadata scores every listed note's title/filename against the
// query. This is a metadata listing, not full-text search.
func (a *Aggregator) searchMetadata(notes []models.Note, query string, opts Options) []models.SearchResult {
	var out []models.SearchResult
	for _, n := range notes {
		s := metadataScore(n, query, opts.Field, opts.CaseSensitive)
		if s <= 0 {
			continue
		}
		out = append(out, models.SearchResult{Note: n, Score: s})
	}
	return out
}
