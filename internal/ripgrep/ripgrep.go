// Package ripgrep shells out to rg for fast full-text search over the
// local vault. The binary is treated as fallible and possibly absent: the
// search aggregator falls back to a naive scan when this adapter fails.
package ripgrep

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// ErrUnavailable is returned when the rg binary cannot be found.
var ErrUnavailable = errors.New("ripgrep: binary not available")

// Client runs ripgrep searches with a bounded timeout.
type Client struct {
	bin     string
	timeout time.Duration
}

// New creates a client for the given binary name ("rg" by default).
func New(bin string, timeout time.Duration) *Client {
	if bin == "" {
		bin = "rg"
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{bin: bin, timeout: timeout}
}

// Available reports whether the rg binary can be resolved on this host.
func (c *Client) Available() bool {
	_, err := exec.LookPath(c.bin)
	return err == nil
}

// Options control a single search invocation.
type Options struct {
	CaseSensitive bool
	Folder        string // restrict to a vault subfolder
}

// Match is one line-level hit reported by rg.
type Match struct {
	File  string
	Line  int
	Text  string
	Start int
	End   int
}

// Result carries matches plus degradation metadata. Partial is set when
// the process was cut off by the timeout; the matches gathered so far are
// still returned.
type Result struct {
	Matches []Match
	Partial bool
	Warning string
}

// Search runs rg --json under root and parses its event stream. A timeout
// yields a partial result with a warning rather than an error; a missing
// binary yields ErrUnavailable.
func (c *Client) Search(ctx context.Context, root, query string, opts Options) (*Result, error) {
	if _, err := exec.LookPath(c.bin); err != nil {
		return nil, ErrUnavailable
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	args := []string{"--json", "--fixed-strings"}
	if !opts.CaseSensitive {
		args = append(args, "--ignore-case")
	}
	args = append(args, "--", query)
	if opts.Folder != "" {
		args = append(args, opts.Folder)
	}

	cmd := exec.CommandContext(ctx, c.bin, args...)
	cmd.Dir = root

	var stdout bytes.Buffer
	cmd.Stdout = &stdout

	runErr := cmd.Run()

	matches, parseErr := parseJSONLines(stdout.Bytes())
	if parseErr != nil {
		return nil, parseErr
	}

	res := &Result{Matches: matches}

	if ctx.Err() != nil {
		res.Partial = true
		res.Warning = fmt.Sprintf("ripgrep timed out after %s; results may be incomplete", c.timeout)
		return res, nil
	}
	if runErr != nil {
		// Exit code 1 means no matches, which is a normal outcome.
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) && exitErr.ExitCode() == 1 {
			return res, nil
		}
		return nil, fmt.Errorf("ripgrep: run: %w", runErr)
	}
	return res, nil
}

// rg --json event envelope; only "match" events are consumed.
type rgEvent struct {
	Type string `json:"type"`
	Data struct {
		Path struct {
			Text string `json:"text"`
		} `json:"path"`
		LineNumber int `json:"line_number"`
		Lines      struct {
			Text string `json:"text"`
		} `json:"lines"`
		Submatches []struct {
			Start int `json:"start"`
			End   int `json:"end"`
		} `json:"submatches"`
	} `json:"data"`
}

func parseJSONLines(out []byte) ([]Match, error) {
	var matches []Match
	sc := bufio.NewScanner(bytes.NewReader(out))
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		line := sc.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		var ev rgEvent
		if err := json.Unmarshal(line, &ev); err != nil {
			// Skip malformed events; rg mixes summary objects into
			// the stream.
			continue
		}
		if ev.Type != "match" {
			continue
		}
		m := Match{
			File: strings.TrimPrefix(ev.Data.Path.Text, "./"),
			Line: ev.Data.LineNumber,
			Text: trimNewline(ev.Data.Lines.Text),
		}
		if len(ev.Data.Submatches) > 0 {
			m.Start = ev.Data.Submatches[0].Start
			m.End = ev.Data.Submatches[0].End
		}
		matches = append(matches, m)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("ripgrep: scan output: %w", err)
	}
	return matches, nil
}

func trimNewline(s string) string {
	for len(s) > 0 && (s[len(s)-1] == '\n' || s[len(s)-1] == '\r') {
		s = s[:len(s)-1]
	}
	return s
}
