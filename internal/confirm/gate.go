// Package confirm implements the confirmation-token protocol that gates
// destructive and full-rewrite operations. A dry-run issues a single-use
// token bound to the exact operation signature; execution must present the
// token against the identical signature before its TTL elapses.
package confirm

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/plumehq/plume/internal/apperr"
)

// Signature uniquely encodes an operation: which tool, against which
// target, doing what. Target must include the salient parameters (line
// range, replacement length) so a token issued for one edit cannot be
// replayed against a different edit of the same note.
type Signature struct {
	Tool   string
	Target string
	Action string
}

// String returns the normalized form used for comparison.
func (s Signature) String() string {
	return strings.ToLower(strings.TrimSpace(s.Tool)) + "|" +
		strings.TrimSpace(s.Target) + "|" +
		strings.ToLower(strings.TrimSpace(s.Action))
}

type record struct {
	sig      string
	expireAt time.Time
}

// Gate is the in-memory token store. Shared process-wide and guarded by a
// single mutex; tokens do not survive a restart.
type Gate struct {
	mu     sync.Mutex
	tokens map[string]record
	ttl    time.Duration
	now    func() time.Time
}

// NewGate creates a gate with the given token TTL (nil clock means
// time.Now).
func NewGate(ttl time.Duration, now func() time.Time) *Gate {
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	if now == nil {
		now = time.Now
	}
	return &Gate{
		tokens: make(map[string]record),
		ttl:    ttl,
		now:    now,
	}
}

// Issue creates a token bound to sig. Expired tokens are garbage-collected
// lazily on each issue.
func (g *Gate) Issue(sig Signature) string {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	for t, r := range g.tokens {
		if !now.Before(r.expireAt) {
			delete(g.tokens, t)
		}
	}

	token := newToken()
	g.tokens[token] = record{sig: sig.String(), expireAt: now.Add(g.ttl)}
	return token
}

// Validate consumes token against sig. The token is deleted on first
// presentation regardless of outcome, so a mismatched presentation cannot
// be used to probe for a still-valid signature.
func (g *Gate) Validate(token string, sig Signature) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	r, ok := g.tokens[token]
	if !ok {
		return apperr.New(apperr.CodeConfirmationInvalid,
			"confirmation token is unknown or already used").
			WithHint("run the operation with dryRun=true to obtain a fresh token")
	}
	delete(g.tokens, token)

	if !g.now().Before(r.expireAt) {
		return apperr.New(apperr.CodeConfirmationInvalid, "confirmation token has expired").
			WithHint("run the operation with dryRun=true to obtain a fresh token")
	}
	if r.sig != sig.String() {
		return apperr.New(apperr.CodeConfirmationInvalid,
			"confirmation token was issued for a different operation").
			WithHint("the target or parameters changed since the dry run; preview again")
	}
	return nil
}

// Pending returns the number of live tokens, for observability.
func (g *Gate) Pending() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.tokens)
}

func newToken() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		// crypto/rand failure is unrecoverable for token issuance.
		panic(fmt.Sprintf("confirm: rand: %v", err))
	}
	return hex.EncodeToString(b)
}
