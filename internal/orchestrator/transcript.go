package orchestrator

import (
	"strings"
	"sync"
	"time"
)

// Roles used in transcript entries.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Entry is one finalized utterance.
type Entry struct {
	Role string
	Text string
	At   time.Time
}

// Transcript accumulates the conversation as four buffers: an interim and a
// final buffer per side. Deltas append to the interim buffer in arrival
// order; a completion event moves the text to the finals and clears the
// interim. Safe for concurrent use; the pump writes, anyone may Snapshot.
type Transcript struct {
	mu           sync.Mutex
	userInterim  strings.Builder
	agentInterim strings.Builder
	finals       []Entry
}

// AppendUserInterim adds a user transcription delta.
func (t *Transcript) AppendUserInterim(delta string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.userInterim.WriteString(delta)
}

// AppendAgentInterim adds an assistant transcript delta.
func (t *Transcript) AppendAgentInterim(delta string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.agentInterim.WriteString(delta)
}

// FinalizeUser moves the user's utterance into the finals. The completed text
// wins when present; an empty completion falls back to the accumulated
// interim buffer. Returns the recorded entry.
func (t *Transcript) FinalizeUser(text string) Entry {
	t.mu.Lock()
	defer t.mu.Unlock()
	if text == "" {
		text = t.userInterim.String()
	}
	t.userInterim.Reset()
	return t.appendFinalLocked(RoleUser, text)
}

// FinalizeAgent moves the assistant's utterance into the finals, same
// fallback rule as [Transcript.FinalizeUser].
func (t *Transcript) FinalizeAgent(text string) Entry {
	t.mu.Lock()
	defer t.mu.Unlock()
	if text == "" {
		text = t.agentInterim.String()
	}
	t.agentInterim.Reset()
	return t.appendFinalLocked(RoleAssistant, text)
}

// ClearAgentInterim drops any unfinalized assistant text, used when a
// response ends without a done transcript (barge-in).
func (t *Transcript) ClearAgentInterim() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.agentInterim.Reset()
}

func (t *Transcript) appendFinalLocked(role, text string) Entry {
	e := Entry{Role: role, Text: text, At: time.Now()}
	if text != "" {
		t.finals = append(t.finals, e)
	}
	return e
}

// Snapshot returns a copy of the finals plus the current interim buffers.
func (t *Transcript) Snapshot() (finals []Entry, userInterim, agentInterim string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	finals = make([]Entry, len(t.finals))
	copy(finals, t.finals)
	return finals, t.userInterim.String(), t.agentInterim.String()
}

// Reset clears everything, used when a new session starts.
func (t *Transcript) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.userInterim.Reset()
	t.agentInterim.Reset()
	t.finals = nil
}
