package mcpserver

// LineFormatContract describes the line syntax the paragraph model
// recognizes. Agents that write note content should follow it so their
// lines classify and render the way they intend.
const LineFormatContract = `# Plume Line Format Contract

Plume treats a note as a list of typed lines. The editing tools
(` + "`edit_line`" + `, ` + "`insert_content`" + `, ...) accept plain text; this contract
describes how each line is classified and which markers carry meaning.

## Line types

` + "```" + `markdown
# Title                     first line only; a single # heading
## Heading                  2-6 # characters
---                         separator
* task                      tasks use the * marker
* [ ] open task             optional checkbox; [x]=done, [-]=cancelled, [>]=scheduled
+ checklist item            checklists use the + marker
- bullet point              plain bullets use the - marker
- [x] done task             a - with a checkbox is a task, not a bullet
> quoted text               quote
anything else               text
` + "```" + `

## Rules

1. **Indentation is tabs.** One tab per nesting level. Spaces are not
   counted as indentation.
2. **Priority** is written as leading bangs in the item body: ` + "`* !!! urgent`" + `
   (1-4 bangs, more is higher).
3. **Tags** are inline ` + "`#tag`" + ` tokens; **mentions** are ` + "`@name`" + ` tokens.
4. **Scheduled dates** go at the end of a task line: ` + "`* call Alice >2025-03-01`" + `.
5. **Line numbers are 1-indexed** and come from ` + "`get_paragraphs`" + `. Any edit
   that changes the line count makes previously read numbers stale; re-read
   before editing again.
6. **Attachments** are referenced as Markdown links into ` + "`attachments/`" + `.
   Removing the last reference to an attachment orphans it.

## Example

` + "```" + `markdown
# Weekly standup
## Action items
* [ ] !! review the design doc @alice >2025-03-01
	* [ ] collect comments #project-x
+ book the meeting room
- notes from last week
` + "```" + `
`
