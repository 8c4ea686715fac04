package orchestrator

import (
	"context"
	"strings"
	"sync"

	"github.com/maylavoice/mayla/pkg/realtime"
)

// pendingCall accumulates one function call announced by the model: argument
// fragments arrive as deltas keyed by call ID, and the output-item done event
// triggers dispatch exactly once.
type pendingCall struct {
	name       string
	args       strings.Builder
	dispatched bool
}

// pump processes one connection's inbound events strictly in arrival order.
// All fields below ready/done are owned by the run goroutine; ordered
// handling is a property of the single event channel, not of locking.
type pump struct {
	s    *Session
	conn Conn

	ready     chan struct{}
	readyOnce sync.Once
	done      chan struct{}

	responseID     string
	responseActive bool
	cancelled      map[string]struct{}
	pending        map[string]*pendingCall
}

func newPump(s *Session, conn Conn) *pump {
	return &pump{
		s:         s,
		conn:      conn,
		ready:     make(chan struct{}),
		done:      make(chan struct{}),
		cancelled: make(map[string]struct{}),
		pending:   make(map[string]*pendingCall),
	}
}

// run drains the event channel until the connection ends, then reports the
// end to the session.
func (p *pump) run() {
	defer close(p.done)
	for evt := range p.conn.Events() {
		p.handle(evt)
	}
	p.s.connectionEnded(p.conn)
}

func (p *pump) handle(evt realtime.Event) {
	s := p.s
	s.metrics.RecordPumpEvent(context.Background(), evt.EventType())

	switch e := evt.(type) {
	case realtime.ErrorEvent:
		// Surfaced only; the connection stays up unless the remote side
		// drops it.
		s.log.Warn("model reported error", "code", e.Code, "message", e.Message)

	case realtime.SessionCreatedEvent, realtime.SessionUpdatedEvent:
		p.readyOnce.Do(func() { close(p.ready) })

	case realtime.SpeechStartedEvent:
		s.listening.Store(true)
		if p.responseActive {
			// Barge-in: cancel before any later event for this response is
			// processed, and discard its stragglers.
			if err := p.conn.Send(realtime.ResponseCancel()); err != nil {
				s.log.Warn("response cancel failed", "error", err)
			}
			p.cancelled[p.responseID] = struct{}{}
			p.responseActive = false
			s.transcript.ClearAgentInterim()
			s.log.Debug("barge-in", "response_id", p.responseID)
		}

	case realtime.SpeechStoppedEvent:
		// Server VAD triggers generation on its own; nothing to request.
		s.listening.Store(false)

	case realtime.ResponseCreatedEvent:
		p.responseID = e.ResponseID
		p.responseActive = true

	case realtime.ResponseDoneEvent:
		if e.ResponseID == "" || e.ResponseID == p.responseID {
			p.responseActive = false
		}
		delete(p.cancelled, e.ResponseID)
		s.transcript.ClearAgentInterim()

	case realtime.AudioDeltaEvent:
		if p.isCancelled(e.ResponseID) {
			return
		}
		s.level.Feed(e.PCM)
		select {
		case s.audioOut <- e.PCM:
		default:
			// Playback is behind; dropping beats stalling the pump.
		}

	case realtime.AudioTranscriptDeltaEvent:
		if p.isCancelled(e.ResponseID) {
			return
		}
		s.transcript.AppendAgentInterim(e.Delta)

	case realtime.AudioTranscriptDoneEvent:
		if p.isCancelled(e.ResponseID) {
			return
		}
		p.finalizeAgent(e.Transcript)

	case realtime.TextDeltaEvent:
		if p.isCancelled(e.ResponseID) {
			return
		}
		s.transcript.AppendAgentInterim(e.Delta)

	case realtime.TextDoneEvent:
		if p.isCancelled(e.ResponseID) {
			return
		}
		p.finalizeAgent(e.Text)

	case realtime.InputTranscriptionDeltaEvent:
		s.transcript.AppendUserInterim(e.Delta)

	case realtime.InputTranscriptionCompletedEvent:
		entry := s.transcript.FinalizeUser(e.Transcript)
		if entry.Text != "" && s.onUserFinal != nil {
			s.onUserFinal(entry.Text)
		}

	case realtime.OutputItemAddedEvent:
		if e.Item.Type != "function_call" || e.Item.CallID == "" {
			return
		}
		pc := p.call(e.Item.CallID)
		pc.name = e.Item.Name
		if e.Item.Arguments != "" && pc.args.Len() == 0 {
			pc.args.WriteString(e.Item.Arguments)
		}

	case realtime.FunctionCallArgumentsDeltaEvent:
		p.call(e.CallID).args.WriteString(e.Delta)

	case realtime.OutputItemDoneEvent:
		if e.Item.Type != "function_call" || e.Item.CallID == "" {
			return
		}
		pc := p.call(e.Item.CallID)
		if pc.dispatched {
			return
		}
		pc.dispatched = true
		if e.Item.Name != "" {
			pc.name = e.Item.Name
		}
		// The done item carries the complete argument string; the delta
		// buffer is the fallback when it is absent.
		args := e.Item.Arguments
		if args == "" {
			args = pc.args.String()
		}
		go s.dispatchCall(p.conn, e.Item.CallID, pc.name, args)

	case realtime.ConversationItemCreatedEvent:
		s.log.Debug("conversation item acknowledged", "item_id", e.ItemID)

	case realtime.UnknownEvent:
		s.log.Debug("unhandled event", "type", e.Type)
	}
}

func (p *pump) isCancelled(responseID string) bool {
	_, ok := p.cancelled[responseID]
	return ok
}

func (p *pump) call(callID string) *pendingCall {
	pc, ok := p.pending[callID]
	if !ok {
		pc = &pendingCall{}
		p.pending[callID] = pc
	}
	return pc
}

func (p *pump) finalizeAgent(text string) {
	entry := p.s.transcript.FinalizeAgent(text)
	if entry.Text != "" && p.s.onAgentFinal != nil {
		p.s.onAgentFinal(entry.Text)
	}
}
