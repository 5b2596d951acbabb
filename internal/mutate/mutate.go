// Package mutate orchestrates note content mutation: range-bounded reads
// and writes over the paragraph model, gated by the confirmation-token
// protocol for destructive operations, with coarse cache invalidation on
// every successful write.
package mutate

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"strings"

	"github.com/plumehq/plume/internal/apperr"
	"github.com/plumehq/plume/internal/confirm"
	"github.com/plumehq/plume/internal/models"
	"github.com/plumehq/plume/internal/paragraph"
	"github.com/plumehq/plume/internal/parser"
	"github.com/plumehq/plume/internal/search"
	"github.com/plumehq/plume/internal/spacestore"
	"github.com/plumehq/plume/internal/storage"
)

// Target names one note in either backend. ID takes precedence over
// Filename, mirroring the reference priority contract.
type Target struct {
	ID       string
	Filename string
}

func (t Target) key() string {
	if t.ID != "" {
		return "id:" + t.ID
	}
	return "file:" + t.Filename
}

// EventFunc is notified after each successful mutation ("updated",
// "deleted", "moved", "restored") so transports can publish change feeds.
type EventFunc func(kind, target string)

// Orchestrator performs all note mutations.
type Orchestrator struct {
	vault   storage.Provider
	spaces  spacestore.NoteStore
	listing *search.Listing
	gate    *confirm.Gate
	logger  *slog.Logger
	events  EventFunc
}

// New creates an orchestrator. events may be nil.
func New(vault storage.Provider, spaces spacestore.NoteStore, listing *search.Listing, gate *confirm.Gate, logger *slog.Logger, events EventFunc) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		vault:   vault,
		spaces:  spaces,
		listing: listing,
		gate:    gate,
		logger:  logger,
		events:  events,
	}
}

// WriteOptions carry the mutation safety knobs shared by all writes.
type WriteOptions struct {
	// DryRun previews the change and issues a confirmation token
	// instead of applying anything.
	DryRun bool
	// ConfirmToken proves a prior dry run for gated operations.
	ConfirmToken string
	// AllowEmpty overrides the empty-result block.
	AllowEmpty bool
}

// Result reports a mutation outcome or dry-run preview.
type Result struct {
	DryRun       bool     `json:"dryRun,omitempty"`
	ConfirmToken string   `json:"confirmToken,omitempty"`
	Preview      string   `json:"preview,omitempty"`
	LineDelta    int      `json:"lineDelta"`
	TotalLines   int      `json:"totalLines"`
	NewPath      string   `json:"newPath,omitempty"`
	Warnings     []string `json:"warnings,omitempty"`
}

// load fetches the target note from the right backend.
func (o *Orchestrator) load(t Target) (*models.Note, error) {
	if t.ID != "" {
		if o.spaces == nil {
			return nil, apperr.New(apperr.CodeUnsupportedTarget, "no space store configured")
		}
		n, err := o.spaces.GetNote(t.ID)
		if err != nil {
			return nil, apperr.NotFound(t.ID)
		}
		return n, nil
	}
	if t.Filename == "" {
		return nil, apperr.New(apperr.CodeInvalidArgument, "target needs an id or filename").
			WithTool("resolve_note")
	}
	n, err := o.vault.Read(t.Filename)
	if err != nil {
		hit, lerr := o.findByBasename(t.Filename)
		if lerr != nil {
			return nil, lerr
		}
		if hit != nil {
			return hit, nil
		}
		return nil, apperr.NotFound(t.Filename)
	}
	return n, nil
}

// findByBasename resolves a bare filename against the local listing when
// no note exists at the literal path. A name matching notes in several
// folders is ambiguous, never a guess.
func (o *Orchestrator) findByBasename(filename string) (*models.Note, error) {
	if strings.Contains(filename, "/") {
		return nil, nil
	}
	notes, err := o.listing.Notes(search.ListFilter{Source: models.SourceLocal})
	if err != nil {
		return nil, nil
	}
	var hits []string
	for _, n := range notes {
		if n.Type == models.TypeTrash {
			continue
		}
		if strings.EqualFold(path.Base(n.Filename), filename) {
			hits = append(hits, n.Filename)
		}
	}
	switch len(hits) {
	case 0:
		return nil, nil
	case 1:
		n, err := o.vault.Read(hits[0])
		if err != nil {
			return nil, nil
		}
		return n, nil
	default:
		return nil, apperr.New(apperr.CodeAmbiguousTarget,
			"%s matches %d notes: %s", filename, len(hits), strings.Join(hits, ", ")).
			WithHint("pass the full path of the intended note").
			WithTool("resolve_note")
	}
}

// save writes new content back to the target's backend, invalidates the
// listing cache, and publishes the change event.
func (o *Orchestrator) save(n *models.Note, content string) error {
	var err error
	if n.Source == models.SourceSpace {
		err = o.spaces.UpdateNote(n.ID, content)
	} else {
		err = o.vault.Write(n.Filename, []byte(content))
	}
	if err != nil {
		return err
	}
	o.listing.Invalidate()
	o.publish("updated", n)
	return nil
}

func (o *Orchestrator) publish(kind string, n *models.Note) {
	if o.events == nil {
		return
	}
	target := n.Filename
	if target == "" {
		target = n.ID
	}
	o.events(kind, target)
}

// GetParagraphs returns a typed, paginated window of the note's lines.
func (o *Orchestrator) GetParagraphs(ctx context.Context, t Target, start, end, offset, limit int) (*paragraph.Window, error) {
	n, err := o.load(t)
	if err != nil {
		return nil, err
	}
	lines := paragraph.ParseLines(n.Content)
	w, err := paragraph.BuildLineWindow(lines, start, end, offset, limit)
	if err != nil {
		return nil, err
	}
	return &w, nil
}

// SearchParagraphs returns the note's lines whose text contains query,
// optionally restricted to one paragraph type.
func (o *Orchestrator) SearchParagraphs(ctx context.Context, t Target, query string, typ paragraph.Type) ([]paragraph.Line, error) {
	n, err := o.load(t)
	if err != nil {
		return nil, err
	}
	q := strings.ToLower(query)
	var out []paragraph.Line
	for _, line := range paragraph.ParseLines(n.Content) {
		if typ != "" && line.Type != typ {
			continue
		}
		if q != "" && !strings.Contains(strings.ToLower(line.Text), q) {
			continue
		}
		out = append(out, line)
	}
	return out, nil
}

// EditLine replaces a single 1-indexed line. Single-line edits are not
// gated; the blast radius is one line.
func (o *Orchestrator) EditLine(ctx context.Context, t Target, lineNo int, newText string, opts WriteOptions) (*Result, error) {
	n, err := o.loadWritable(t)
	if err != nil {
		return nil, err
	}
	lines := splitLines(n.Content)
	if lineNo < 1 || lineNo > len(lines) {
		return nil, apperr.New(apperr.CodeInvalidLineReference,
			"line %d is out of range 1..%d", lineNo, len(lines)).
			WithHint("re-read the note to refresh line numbers")
	}

	after := make([]string, len(lines))
	copy(after, lines)
	after[lineNo-1] = newText

	return o.apply(n, lines, after, opts, nil)
}

// ReplaceLines replaces the inclusive range start..end with replacement
// content. Range rewrites are gated by a confirmation token.
func (o *Orchestrator) ReplaceLines(ctx context.Context, t Target, start, end int, replacement string, opts WriteOptions) (*Result, error) {
	n, err := o.loadWritable(t)
	if err != nil {
		return nil, err
	}
	lines := splitLines(n.Content)
	if err := checkRange(start, end, len(lines)); err != nil {
		return nil, err
	}

	repl := splitLines(replacement)
	after := make([]string, 0, len(lines)-(end-start+1)+len(repl))
	after = append(after, lines[:start-1]...)
	after = append(after, repl...)
	after = append(after, lines[end:]...)

	sig := confirm.Signature{
		Tool:   "replace_lines",
		Target: fmt.Sprintf("%s:%d-%d:len=%d", t.key(), start, end, len(replacement)),
		Action: "replace",
	}
	return o.apply(n, lines, after, opts, &sig)
}

// DeleteLines removes the inclusive range start..end. Destructive, so it
// is gated by a confirmation token.
func (o *Orchestrator) DeleteLines(ctx context.Context, t Target, start, end int, opts WriteOptions) (*Result, error) {
	n, err := o.loadWritable(t)
	if err != nil {
		return nil, err
	}
	lines := splitLines(n.Content)
	if err := checkRange(start, end, len(lines)); err != nil {
		return nil, err
	}

	after := make([]string, 0, len(lines)-(end-start+1))
	after = append(after, lines[:start-1]...)
	after = append(after, lines[end:]...)

	sig := confirm.Signature{
		Tool:   "delete_lines",
		Target: fmt.Sprintf("%s:%d-%d", t.key(), start, end),
		Action: "delete",
	}
	return o.apply(n, lines, after, opts, &sig)
}

// ReplaceNote rewrites the whole note. Full rewrites are gated.
func (o *Orchestrator) ReplaceNote(ctx context.Context, t Target, content string, opts WriteOptions) (*Result, error) {
	n, err := o.loadWritable(t)
	if err != nil {
		return nil, err
	}
	lines := splitLines(n.Content)
	after := splitLines(content)

	sig := confirm.Signature{
		Tool:   "replace_note",
		Target: fmt.Sprintf("%s:len=%d", t.key(), len(content)),
		Action: "replace_all",
	}
	return o.apply(n, lines, after, opts, &sig)
}

// Position selects where InsertContent places new lines.
type Position string

const (
	PosStart        Position = "start"
	PosEnd          Position = "end"
	PosAfterHeading Position = "after-heading"
	PosAtLine       Position = "at-line"
	PosInSection    Position = "in-section"
)

// InsertContent inserts content at the given position. Anchor names the
// heading for after-heading/in-section; line is used by at-line.
func (o *Orchestrator) InsertContent(ctx context.Context, t Target, content string, pos Position, anchor string, line int, opts WriteOptions) (*Result, error) {
	n, err := o.loadWritable(t)
	if err != nil {
		return nil, err
	}
	lines := splitLines(n.Content)
	insert := splitLines(content)

	at, err := insertionIndex(lines, pos, anchor, line)
	if err != nil {
		return nil, err
	}

	after := make([]string, 0, len(lines)+len(insert))
	after = append(after, lines[:at]...)
	after = append(after, insert...)
	after = append(after, lines[at:]...)

	return o.apply(n, lines, after, opts, nil)
}

// AppendContent adds content at the end of the note.
func (o *Orchestrator) AppendContent(ctx context.Context, t Target, content string, opts WriteOptions) (*Result, error) {
	return o.InsertContent(ctx, t, content, PosEnd, "", 0, opts)
}

// DeleteNote moves the note to the trash (local) or marks it trashed
// (space). Gated.
func (o *Orchestrator) DeleteNote(ctx context.Context, t Target, opts WriteOptions) (*Result, error) {
	n, err := o.loadWritable(t)
	if err != nil {
		return nil, err
	}

	sig := confirm.Signature{Tool: "delete_note", Target: t.key(), Action: "delete"}
	res := &Result{TotalLines: len(splitLines(n.Content))}

	if opts.DryRun {
		res.DryRun = true
		res.ConfirmToken = o.gate.Issue(sig)
		res.Preview = fmt.Sprintf("would move %q to trash", t.key())
		return res, nil
	}
	if err := o.requireToken(opts, sig); err != nil {
		return nil, err
	}

	if n.Source == models.SourceSpace {
		if err := o.spaces.TrashNote(n.ID); err != nil {
			return nil, err
		}
		res.NewPath = n.ID
	} else {
		trashed, err := o.vault.Delete(n.Filename)
		if err != nil {
			return nil, err
		}
		res.NewPath = trashed
	}
	o.listing.Invalidate()
	o.publish("deleted", n)
	return res, nil
}

// MoveNote relocates the note into destFolder. Gated.
func (o *Orchestrator) MoveNote(ctx context.Context, t Target, destFolder string, opts WriteOptions) (*Result, error) {
	n, err := o.loadWritable(t)
	if err != nil {
		return nil, err
	}

	sig := confirm.Signature{
		Tool:   "move_note",
		Target: t.key() + "->" + destFolder,
		Action: "move",
	}
	res := &Result{}

	if opts.DryRun {
		res.DryRun = true
		res.ConfirmToken = o.gate.Issue(sig)
		res.Preview = fmt.Sprintf("would move %q into %q", t.key(), destFolder)
		return res, nil
	}
	if err := o.requireToken(opts, sig); err != nil {
		return nil, err
	}

	if n.Source == models.SourceSpace {
		if err := o.spaces.MoveNote(n.ID, destFolder); err != nil {
			return nil, err
		}
		res.NewPath = n.ID
	} else {
		newPath, err := o.vault.Move(n.Filename, destFolder)
		if err != nil {
			return nil, err
		}
		res.NewPath = newPath
	}
	o.listing.Invalidate()
	o.publish("moved", n)
	return res, nil
}

// RestoreNote brings a trashed note back. Not gated: it reverses damage
// rather than causing it.
func (o *Orchestrator) RestoreNote(ctx context.Context, t Target, destFolder string) (*Result, error) {
	n, err := o.load(t)
	if err != nil {
		return nil, err
	}
	if n.Type != models.TypeTrash {
		return nil, apperr.New(apperr.CodeInvalidArgument, "%s is not in the trash", t.key())
	}

	res := &Result{}
	if n.Source == models.SourceSpace {
		if err := o.spaces.RestoreNote(n.ID); err != nil {
			return nil, err
		}
		res.NewPath = n.ID
	} else {
		restored, err := o.vault.Restore(n.Filename, destFolder)
		if err != nil {
			return nil, err
		}
		res.NewPath = restored
	}
	o.listing.Invalidate()
	o.publish("restored", n)
	return res, nil
}

// loadWritable loads the target and rejects trashed notes.
func (o *Orchestrator) loadWritable(t Target) (*models.Note, error) {
	n, err := o.load(t)
	if err != nil {
		return nil, err
	}
	if n.Type == models.TypeTrash {
		return nil, apperr.New(apperr.CodeNoteInTrash, "%s is in the trash", t.key()).
			WithHint("restore the note before editing it").
			WithTool("restore_note")
	}
	return n, nil
}

// apply runs the shared write path: empty block, gating, warnings, save.
// sig is nil for ungated writes.
func (o *Orchestrator) apply(n *models.Note, before, after []string, opts WriteOptions, sig *confirm.Signature) (*Result, error) {
	newContent := strings.Join(after, "\n")

	if strings.TrimSpace(newContent) == "" && !opts.AllowEmpty {
		return nil, apperr.New(apperr.CodeEmptyContentBlocked,
			"the edit would leave the note empty").
			WithHint("pass allowEmpty=true if clearing the note is intended")
	}

	res := &Result{
		LineDelta:  len(after) - len(before),
		TotalLines: len(after),
		Warnings:   mutationWarnings(before, after),
	}

	if sig != nil {
		if opts.DryRun {
			res.DryRun = true
			res.ConfirmToken = o.gate.Issue(*sig)
			res.Preview = fmt.Sprintf("%d lines -> %d lines", len(before), len(after))
			return res, nil
		}
		if err := o.requireToken(opts, *sig); err != nil {
			return nil, err
		}
	} else if opts.DryRun {
		res.DryRun = true
		res.Preview = fmt.Sprintf("%d lines -> %d lines", len(before), len(after))
		return res, nil
	}

	if err := o.save(n, newContent); err != nil {
		return nil, apperr.Classify(err)
	}
	return res, nil
}

func (o *Orchestrator) requireToken(opts WriteOptions, sig confirm.Signature) error {
	if opts.ConfirmToken == "" {
		return apperr.New(apperr.CodeConfirmationRequired,
			"this operation needs a confirmation token").
			WithHint("call again with dryRun=true to preview and obtain a token")
	}
	return o.gate.Validate(opts.ConfirmToken, sig)
}

// mutationWarnings reports the stale-line-number warning on any line-count
// change and the dropped-attachment warning, since the underlying store
// auto-trashes orphaned attachments.
func mutationWarnings(before, after []string) []string {
	var warnings []string

	if len(after) != len(before) {
		warnings = append(warnings, fmt.Sprintf(
			"line count changed by %+d; previously cached line numbers are stale", len(after)-len(before)))
	}

	removed := droppedAttachments(strings.Join(before, "\n"), strings.Join(after, "\n"))
	if len(removed) > 0 {
		warnings = append(warnings, fmt.Sprintf(
			"edit removed attachment references (%s); orphaned attachments are auto-trashed",
			strings.Join(removed, ", ")))
	}
	return warnings
}

func droppedAttachments(before, after string) []string {
	kept := make(map[string]struct{})
	for _, ref := range parser.AttachmentRefs(after) {
		kept[ref] = struct{}{}
	}
	var removed []string
	for _, ref := range parser.AttachmentRefs(before) {
		if _, ok := kept[ref]; !ok {
			removed = append(removed, ref)
		}
	}
	return removed
}

func checkRange(start, end, total int) error {
	if start < 1 || start > total {
		return apperr.New(apperr.CodeInvalidLineReference,
			"start line %d is out of range 1..%d", start, total).
			WithHint("re-read the note to refresh line numbers")
	}
	if end < start || end > total {
		return apperr.New(apperr.CodeInvalidLineReference,
			"end line %d is invalid for range 1..%d", end, total)
	}
	return nil
}

// insertionIndex maps a Position to the slice index new lines go before.
func insertionIndex(lines []string, pos Position, anchor string, line int) (int, error) {
	switch pos {
	case PosStart:
		// Keep a leading title line in place.
		if len(lines) > 0 && paragraph.ParseLine(lines[0], 0, true).Type == paragraph.TypeTitle {
			return 1, nil
		}
		return 0, nil
	case PosEnd, "":
		return len(lines), nil
	case PosAtLine:
		if line < 1 || line > len(lines)+1 {
			return 0, apperr.New(apperr.CodeInvalidLineReference,
				"line %d is out of range 1..%d", line, len(lines)+1)
		}
		return line - 1, nil
	case PosAfterHeading:
		idx := findHeading(lines, anchor)
		if idx < 0 {
			return 0, apperr.New(apperr.CodeNotFound, "heading %q not found", anchor).
				WithTool("get_paragraphs")
		}
		return idx + 1, nil
	case PosInSection:
		idx := findHeading(lines, anchor)
		if idx < 0 {
			return 0, apperr.New(apperr.CodeNotFound, "heading %q not found", anchor).
				WithTool("get_paragraphs")
		}
		return sectionEnd(lines, idx), nil
	default:
		return 0, apperr.New(apperr.CodeInvalidArgument, "unknown position %q", pos)
	}
}

func findHeading(lines []string, anchor string) int {
	want := strings.ToLower(strings.TrimSpace(anchor))
	for i, raw := range lines {
		l := paragraph.ParseLine(raw, i, i == 0)
		if l.Type != paragraph.TypeHeading && l.Type != paragraph.TypeTitle {
			continue
		}
		if strings.ToLower(strings.TrimSpace(l.Content)) == want {
			return i
		}
	}
	return -1
}

// sectionEnd returns the index just past the last line of the section
// started by the heading at headingIdx (exclusive of the next heading of
// the same or higher level).
func sectionEnd(lines []string, headingIdx int) int {
	level := paragraph.ParseLine(lines[headingIdx], headingIdx, headingIdx == 0).HeadingLevel
	for i := headingIdx + 1; i < len(lines); i++ {
		l := paragraph.ParseLine(lines[i], i, false)
		if l.Type == paragraph.TypeHeading && l.HeadingLevel <= level {
			return i
		}
	}
	return len(lines)
}

func splitLines(content string) []string {
	return strings.Split(content, "\n")
}
