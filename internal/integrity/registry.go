// Package integrity guards tool arguments against hallucinated resource
// identifiers.
//
// The remote model periodically produces email IDs from pattern-memory rather
// than from an actual prior listing. The [Registry] is a strict allow-list of
// identifiers legitimately issued by earlier list-type tool results: any
// identifier-sensitive tool call is checked against it before the backend is
// contacted, and an unknown identifier never reaches the backend.
//
// Mutation entry points are deliberately few: Populate (wholesale replace
// from a list result), Consume (one-time-use removal after a successful
// single-resource fetch), and Clear (session disconnect). No fuzzy matching
// is applied to identifiers — similarity scoring is for wake words, not
// resource references.
package integrity

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// Violation codes, returned to the model as the "error" field of a tool
// result so it can be steered to re-list rather than retry verbatim.
const (
	// CodeInvalidRequest: the identifier argument is absent or not a string.
	CodeInvalidRequest = "INVALID_REQUEST"

	// CodeNeverListed: no list call has populated the registry yet.
	CodeNeverListed = "NO_EMAILS_FETCHED"

	// CodeFabricated: the identifier is not a member of the current set.
	CodeFabricated = "FABRICATED_IDENTIFIER"
)

// hintLimit caps how many valid identifiers are sampled into a
// FABRICATED_IDENTIFIER payload.
const hintLimit = 5

// Violation describes a rejected identifier. It is returned to the model as
// a structured tool result, distinguishable from a generic tool failure.
type Violation struct {
	Code           string
	Message        string
	ActionRequired string
	ValidIDsHint   []string
	Reminder       string
}

// Error implements the error interface.
func (v *Violation) Error() string {
	return fmt.Sprintf("integrity: %s: %s", v.Code, v.Message)
}

// Payload renders the violation as the JSON object sent back as the
// function-call output.
func (v *Violation) Payload() map[string]any {
	p := map[string]any{
		"error":   v.Code,
		"message": v.Message,
	}
	if v.ActionRequired != "" {
		p["action_required"] = v.ActionRequired
	}
	if len(v.ValidIDsHint) > 0 {
		p["valid_ids_hint"] = v.ValidIDsHint
	}
	if v.Reminder != "" {
		p["reminder"] = v.Reminder
	}
	return p
}

// Registry is the session-scoped identifier allow-list. The zero value is
// not usable; create instances with [NewRegistry]. All methods are safe for
// concurrent use.
type Registry struct {
	mu            sync.Mutex
	ids           map[string]struct{}
	populated     bool
	lastPopulated time.Time
}

// NewRegistry returns an empty, never-populated Registry.
func NewRegistry() *Registry {
	return &Registry{ids: make(map[string]struct{})}
}

// Populate replaces the entire identifier set with ids and records the
// population time. Listing always replaces, never merges: identifiers from
// an earlier listing become invalid.
func (r *Registry) Populate(ids []string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.ids = make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		r.ids[id] = struct{}{}
	}
	r.populated = true
	r.lastPopulated = time.Now()
}

// Validate checks a raw identifier argument (as decoded from tool-call JSON)
// against the registry. It returns nil when the identifier is a known member,
// otherwise a *Violation describing why the call must not proceed.
func (r *Registry) Validate(raw any) *Violation {
	id, ok := raw.(string)
	if !ok || id == "" {
		return &Violation{
			Code:           CodeInvalidRequest,
			Message:        "the identifier argument is missing or not a string",
			ActionRequired: "call the listing tool first and use an id from its result",
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.populated {
		return &Violation{
			Code:           CodeNeverListed,
			Message:        "no listing has occurred in this session, so no identifiers are known",
			ActionRequired: "call the listing tool first and use an id from its result",
		}
	}
	if _, member := r.ids[id]; !member {
		return &Violation{
			Code:         CodeFabricated,
			Message:      fmt.Sprintf("identifier %q was not issued by any prior listing", id),
			ValidIDsHint: r.sampleLocked(hintLimit),
			Reminder:     "do not guess identifiers; re-run the listing tool and pick an id from its result",
		}
	}
	return nil
}

// Consume removes id from the set. Called after a single-resource fetch
// succeeds so each identifier is one-time-use, forcing periodic re-listing
// and bounding staleness.
func (r *Registry) Consume(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.ids, id)
}

// Clear empties the set and forgets that any listing ever happened. Called at
// session disconnect.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ids = make(map[string]struct{})
	r.populated = false
	r.lastPopulated = time.Time{}
}

// Contains reports whether id is currently a member.
func (r *Registry) Contains(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.ids[id]
	return ok
}

// Len returns the number of identifiers currently in the set.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.ids)
}

// LastPopulated returns when the set was last replaced by a listing, or the
// zero time if never.
func (r *Registry) LastPopulated() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastPopulated
}

// sampleLocked returns up to n members in sorted order. Caller must hold
// r.mu.
func (r *Registry) sampleLocked(n int) []string {
	out := make([]string, 0, min(n, len(r.ids)))
	for id := range r.ids {
		out = append(out, id)
	}
	sort.Strings(out)
	if len(out) > n {
		out = out[:n]
	}
	return out
}
