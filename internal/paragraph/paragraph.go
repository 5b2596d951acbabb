// Package paragraph implements the line-addressable note model: it
// classifies raw markdown lines into typed paragraphs and renders typed
// paragraphs back into correctly formatted lines. All functions are pure;
// callers hold the content and derive structure on demand.
package paragraph

import (
	"regexp"
	"strings"
)

// Type classifies a single line of note content.
type Type string

const (
	TypeTitle     Type = "title"
	TypeHeading   Type = "heading"
	TypeSeparator Type = "separator"
	TypeEmpty     Type = "empty"
	TypeTask      Type = "task"
	TypeChecklist Type = "checklist"
	TypeBullet    Type = "bullet"
	TypeQuote     Type = "quote"
	TypeText      Type = "text"
)

// Status is the completion state of a task or checklist item.
type Status string

const (
	StatusOpen      Status = "open"
	StatusDone      Status = "done"
	StatusCancelled Status = "cancelled"
	StatusScheduled Status = "scheduled"
)

var (
	headingRe   = regexp.MustCompile(`^(#{1,6})\s+(.*)$`)
	markerRe    = regexp.MustCompile(`^([*+-])\s+(.*)$`)
	checkboxRe  = regexp.MustCompile(`^\[([ x\->])\]\s*(.*)$`)
	tagRe       = regexp.MustCompile(`(?:^|\s)#([A-Za-z][A-Za-z0-9_/-]*)`)
	mentionRe   = regexp.MustCompile(`(?:^|\s)@([A-Za-z0-9][A-Za-z0-9_/-]*)`)
	schedDateRe = regexp.MustCompile(`>(\d{4}-\d{2}-\d{2})\s*$`)
	priorityRe  = regexp.MustCompile(`^(!{1,4})\s*`)
)

// Line is the typed representation of one line of note content.
// Index is 0-based. Indent counts leading tab characters only; space
// indentation is a non-canonical form the editors normalize away.
type Line struct {
	Index         int      `json:"index"`
	Text          string   `json:"text"`
	Type          Type     `json:"type"`
	Indent        int      `json:"indent"`
	HeadingLevel  int      `json:"headingLevel,omitempty"`
	Status        Status   `json:"status,omitempty"`
	Priority      int      `json:"priority,omitempty"`
	Marker        string   `json:"marker,omitempty"`
	HasCheckbox   bool     `json:"hasCheckbox,omitempty"`
	Content       string   `json:"content,omitempty"`
	Tags          []string `json:"tags,omitempty"`
	Mentions      []string `json:"mentions,omitempty"`
	ScheduledDate string   `json:"scheduledDate,omitempty"`
}

// ParseLine classifies one line. Classification priority: title (line 0,
// single #), heading, separator, empty, task/checklist/bullet, quote, text.
// The caller is responsible for excluding frontmatter lines, so a bare
// "---" here is always a separator.
func ParseLine(text string, index int, isFirst bool) Line {
	line := Line{Index: index, Text: text, Type: TypeText}

	line.Indent = countTabs(text)
	body := strings.TrimLeft(text, "\t ")

	if m := headingRe.FindStringSubmatch(body); m != nil {
		level := len(m[1])
		if isFirst && index == 0 && level == 1 {
			line.Type = TypeTitle
		} else {
			line.Type = TypeHeading
		}
		line.HeadingLevel = level
		line.Content = m[2]
		line.fillInline(m[2])
		return line
	}

	if strings.TrimSpace(text) == "---" {
		line.Type = TypeSeparator
		return line
	}

	if strings.TrimSpace(text) == "" {
		line.Type = TypeEmpty
		return line
	}

	if m := markerRe.FindStringSubmatch(body); m != nil {
		line.Marker = m[1]
		rest := m[2]
		if cb := checkboxRe.FindStringSubmatch(rest); cb != nil {
			line.HasCheckbox = true
			line.Status = statusFromChar(cb[1])
			rest = cb[2]
		}
		switch {
		case line.Marker == "+":
			line.Type = TypeChecklist
		case line.HasCheckbox || line.Marker == "*":
			line.Type = TypeTask
		default:
			line.Type = TypeBullet
		}
		if (line.Type == TypeTask || line.Type == TypeChecklist) && line.Status == "" {
			line.Status = StatusOpen
		}
		if pm := priorityRe.FindStringSubmatch(rest); pm != nil {
			line.Priority = len(pm[1])
			rest = rest[len(pm[0]):]
		}
		line.Content = rest
		line.fillInline(rest)
		return line
	}

	if strings.HasPrefix(body, ">") {
		line.Type = TypeQuote
		line.Content = strings.TrimPrefix(strings.TrimPrefix(body, ">"), " ")
		line.fillInline(line.Content)
		return line
	}

	line.Content = body
	line.fillInline(body)
	return line
}

// ParseLines splits content and classifies every line.
func ParseLines(content string) []Line {
	raw := strings.Split(content, "\n")
	out := make([]Line, len(raw))
	for i, text := range raw {
		out[i] = ParseLine(text, i, i == 0)
	}
	return out
}

// fillInline extracts tags, mentions, and a trailing scheduled-date token
// from the line's content portion.
func (l *Line) fillInline(content string) {
	for _, m := range tagRe.FindAllStringSubmatch(content, -1) {
		l.Tags = append(l.Tags, m[1])
	}
	for _, m := range mentionRe.FindAllStringSubmatch(content, -1) {
		l.Mentions = append(l.Mentions, m[1])
	}
	if m := schedDateRe.FindStringSubmatch(content); m != nil {
		l.ScheduledDate = m[1]
	}
}

func statusFromChar(c string) Status {
	switch c {
	case "x":
		return StatusDone
	case "-":
		return StatusCancelled
	case ">":
		return StatusScheduled
	default:
		return StatusOpen
	}
}

func statusChar(s Status) string {
	switch s {
	case StatusDone:
		return "x"
	case StatusCancelled:
		return "-"
	case StatusScheduled:
		return ">"
	default:
		return " "
	}
}

// RenderOptions carries the type-conditional fields for RenderLine.
type RenderOptions struct {
	HeadingLevel int
	Status       Status
	Priority     int
	Indent       int
	Marker       string
}

// RenderLine produces a formatted line that reparses to the same type,
// status, and priority. The round-trip property is a contract: edits go
// through render so that rewritten lines stay canonical.
func RenderLine(text string, typ Type, opts RenderOptions) string {
	indent := strings.Repeat("\t", opts.Indent)

	switch typ {
	case TypeTitle:
		return "# " + text
	case TypeHeading:
		level := opts.HeadingLevel
		if level < 1 {
			level = 2
		}
		if level > 6 {
			level = 6
		}
		return strings.Repeat("#", level) + " " + text
	case TypeSeparator:
		return "---"
	case TypeEmpty:
		return ""
	case TypeQuote:
		return indent + "> " + text
	case TypeBullet:
		marker := opts.Marker
		if marker == "" || marker == "*" || marker == "+" {
			marker = "-"
		}
		return indent + marker + " " + text
	case TypeTask:
		marker := opts.Marker
		if marker == "" || marker == "+" {
			marker = "*"
		}
		return indent + marker + " [" + statusChar(opts.Status) + "] " + priorityPrefix(opts.Priority) + text
	case TypeChecklist:
		return indent + "+ [" + statusChar(opts.Status) + "] " + priorityPrefix(opts.Priority) + text
	default:
		return indent + text
	}
}

func priorityPrefix(p int) string {
	if p <= 0 {
		return ""
	}
	if p > 4 {
		p = 4
	}
	return strings.Repeat("!", p) + " "
}

func countTabs(s string) int {
	n := 0
	for _, r := range s {
		if r != '\t' {
			break
		}
		n++
	}
	return n
}
