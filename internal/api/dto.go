package api

// ReplaceNoteRequest is the request body for PUT /notes/*.
type ReplaceNoteRequest struct {
	Content      string `json:"content"`
	DryRun       bool   `json:"dryRun,omitempty"`
	ConfirmToken string `json:"confirmToken,omitempty"`
	AllowEmpty   bool   `json:"allowEmpty,omitempty"`
}

// PatchRequest is the request body for PATCH /notes/*. Op selects the
// mutation; the remaining fields are op-specific.
type PatchRequest struct {
	Op string `json:"op"` // edit_line, replace_lines, delete_lines, insert, append, move, restore

	Line      int    `json:"line,omitempty"`
	Text      string `json:"text,omitempty"`
	StartLine int    `json:"startLine,omitempty"`
	EndLine   int    `json:"endLine,omitempty"`
	Content   string `json:"content,omitempty"`
	Position  string `json:"position,omitempty"`
	Anchor    string `json:"anchor,omitempty"`
	Folder    string `json:"folder,omitempty"`

	DryRun       bool   `json:"dryRun,omitempty"`
	ConfirmToken string `json:"confirmToken,omitempty"`
	AllowEmpty   bool   `json:"allowEmpty,omitempty"`
}
