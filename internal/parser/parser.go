// Package parser extracts frontmatter, tags, and attachment references
// from raw markdown note content.
package parser

import (
	"bytes"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

var (
	tagRe        = regexp.MustCompile(`(?:^|\s)#([A-Za-z][A-Za-z0-9_/-]*)`)
	attachmentRe = regexp.MustCompile(`!?\[[^\]]*\]\(([^)]+)\)`)
)

// Result holds the output of parsing a markdown note.
type Result struct {
	Frontmatter map[string]any
	Body        string
	Tags        []string
	Title       string
}

// Parse extracts frontmatter, body, tags, and title from raw note content.
func Parse(data []byte) *Result {
	fm, body := splitFrontmatter(data)
	return &Result{
		Frontmatter: fm,
		Body:        body,
		Tags:        extractTags(body, fm),
		Title:       deriveTitle(fm, body),
	}
}

// splitFrontmatter separates YAML frontmatter (between leading ---
// delimiters) from the markdown body. Invalid or absent frontmatter means
// the entire content is body.
func splitFrontmatter(data []byte) (map[string]any, string) {
	const delim = "---"
	trimmed := bytes.TrimLeft(data, "\n\r")

	if !bytes.HasPrefix(trimmed, []byte(delim)) {
		return nil, string(data)
	}

	rest := trimmed[len(delim):]
	idx := bytes.Index(rest, []byte("\n"+delim))
	if idx < 0 {
		return nil, string(data)
	}

	yamlBlock := rest[:idx]
	afterDelim := rest[idx+1+len(delim):]
	body := strings.TrimLeft(string(afterDelim), "\n\r")

	var fm map[string]any
	if err := yaml.Unmarshal(yamlBlock, &fm); err != nil {
		return nil, string(data)
	}
	return fm, body
}

// extractTags collects #tags from the body and the frontmatter "tags" field.
func extractTags(body string, fm map[string]any) []string {
	seen := make(map[string]struct{})
	var out []string

	add := func(s string) {
		s = strings.TrimSpace(s)
		if s == "" {
			return
		}
		if _, dup := seen[s]; dup {
			return
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}

	if fm != nil {
		if raw, ok := fm["tags"]; ok {
			if list, ok := raw.([]any); ok {
				for _, item := range list {
					if s, ok := item.(string); ok {
						add(s)
					}
				}
			}
		}
	}

	for _, m := range tagRe.FindAllStringSubmatch(body, -1) {
		add(m[1])
	}
	return out
}

// deriveTitle returns the frontmatter "title" if present, otherwise the
// first H1 heading, otherwise empty string.
func deriveTitle(fm map[string]any, body string) string {
	if fm != nil {
		if t, ok := fm["title"]; ok {
			if s, ok := t.(string); ok && s != "" {
				return s
			}
		}
	}
	for _, line := range strings.Split(body, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "# ") {
			return strings.TrimSpace(trimmed[2:])
		}
	}
	return ""
}

// Property returns the frontmatter value for key as a string. When
// caseSensitive is false the key is matched case-insensitively. The second
// return reports whether the key exists at all.
func (r *Result) Property(key string, caseSensitive bool) (string, bool) {
	if r.Frontmatter == nil {
		return "", false
	}
	for k, v := range r.Frontmatter {
		match := k == key
		if !caseSensitive {
			match = strings.EqualFold(k, key)
		}
		if !match {
			continue
		}
		switch t := v.(type) {
		case string:
			return t, true
		case []any:
			parts := make([]string, 0, len(t))
			for _, item := range t {
				parts = append(parts, strings.TrimSpace(stringify(item)))
			}
			return strings.Join(parts, ","), true
		default:
			return stringify(v), true
		}
	}
	return "", false
}

func stringify(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	b, err := yaml.Marshal(v)
	if err != nil {
		return ""
	}
	return strings.TrimRight(string(b), "\n")
}

// AttachmentRefs returns every markdown link or image target in content
// that points into an attachments directory. Used by the mutation layer to
// warn when an edit drops the last reference to an attachment, since the
// underlying store auto-trashes orphaned attachments.
func AttachmentRefs(content string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, m := range attachmentRe.FindAllStringSubmatch(content, -1) {
		target := strings.TrimSpace(m[1])
		if target == "" {
			continue
		}
		lower := strings.ToLower(target)
		if !strings.Contains(lower, "attachments/") && !strings.HasPrefix(lower, "file://") {
			continue
		}
		if _, dup := seen[target]; dup {
			continue
		}
		seen[target] = struct{}{}
		out = append(out, target)
	}
	return out
}
