package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/maylavoice/mayla/internal/integrity"
	"github.com/maylavoice/mayla/internal/observe"
	"github.com/maylavoice/mayla/pkg/realtime"
)

// Metrics receives dispatch telemetry. internal/observe provides the real
// implementation; a no-op is used when none is supplied.
type Metrics interface {
	RecordToolCall(ctx context.Context, tool string, d time.Duration, ok bool)
	RecordIntegrityRejection(ctx context.Context, code string)
}

type nopMetrics struct{}

func (nopMetrics) RecordToolCall(context.Context, string, time.Duration, bool) {}
func (nopMetrics) RecordIntegrityRejection(context.Context, string)            {}

// Dispatcher executes tool calls against a registry, running the identifier
// integrity guard around identifier-sensitive tools. One Dispatcher serves
// one session; the guard it holds is cleared on disconnect.
type Dispatcher struct {
	reg     *Registry
	guard   *integrity.Registry
	log     *slog.Logger
	metrics Metrics
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithLogger sets the dispatch logger. Default: slog.Default().
func WithLogger(l *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) { d.log = l }
}

// WithMetrics sets the telemetry sink.
func WithMetrics(m Metrics) DispatcherOption {
	return func(d *Dispatcher) { d.metrics = m }
}

// NewDispatcher wires a registry and an integrity guard together.
func NewDispatcher(reg *Registry, guard *integrity.Registry, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		reg:     reg,
		guard:   guard,
		log:     slog.Default(),
		metrics: nopMetrics{},
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Guard exposes the integrity registry so the session can clear it on
// disconnect.
func (d *Dispatcher) Guard() *integrity.Registry { return d.guard }

// Schemas lists the session-configuration entries for every registered tool.
func (d *Dispatcher) Schemas() []realtime.ToolSchema {
	return d.reg.Schemas()
}

// Execute runs the named tool with the model-supplied argument JSON and
// returns the result as a JSON string. It never returns an error: unknown
// tools, guard violations, handler failures, and marshalling problems all
// come back as {"error": ...} payloads for the model to read.
func (d *Dispatcher) Execute(ctx context.Context, name, argsJSON string) string {
	start := time.Now()

	ctx, span := observe.StartSpan(ctx, "tool "+name,
		trace.WithAttributes(attribute.String("tool", name)),
	)
	defer span.End()

	tool := d.reg.Lookup(name)
	if tool == nil {
		d.log.Warn("unknown tool requested", "tool", name)
		d.metrics.RecordToolCall(ctx, name, time.Since(start), false)
		return mustJSON(map[string]any{"error": "Unknown tool: " + name})
	}

	args := parseArgs(argsJSON)

	if tool.IDArg != "" {
		if v := d.guard.Validate(args[tool.IDArg]); v != nil {
			d.log.Warn("identifier rejected",
				"tool", name, "arg", tool.IDArg, "code", v.Code)
			d.metrics.RecordIntegrityRejection(ctx, v.Code)
			d.metrics.RecordToolCall(ctx, name, time.Since(start), false)
			return mustJSON(v.Payload())
		}
	}

	result, err := tool.Handler(ctx, args)
	elapsed := time.Since(start)
	if err != nil {
		d.log.Error("tool call failed",
			"tool", name, "duration", elapsed, "error", err)
		d.metrics.RecordToolCall(ctx, name, elapsed, false)
		return mustJSON(map[string]any{"error": err.Error()})
	}

	if tool.ExtractIDs != nil {
		ids := tool.ExtractIDs(result)
		d.guard.Populate(ids)
		d.log.Debug("identifier registry repopulated",
			"tool", name, "count", len(ids))
	}
	if tool.IDArg != "" && tool.ConsumeID {
		if id, ok := args[tool.IDArg].(string); ok {
			d.guard.Consume(id)
		}
	}

	d.log.Info("tool call completed", "tool", name, "duration", elapsed)
	d.metrics.RecordToolCall(ctx, name, elapsed, true)

	out, err := json.Marshal(result)
	if err != nil {
		return mustJSON(map[string]any{
			"error": fmt.Sprintf("could not encode tool result: %v", err),
		})
	}
	return string(out)
}

// parseArgs decodes the model's argument buffer. A malformed buffer is wrapped
// as a single _raw field so the call still reaches the handler and the model
// sees its own input echoed back in any error.
func parseArgs(argsJSON string) map[string]any {
	if argsJSON == "" {
		return map[string]any{}
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(argsJSON), &args); err != nil || args == nil {
		return map[string]any{"_raw": argsJSON}
	}
	return args
}

func mustJSON(v map[string]any) string {
	out, err := json.Marshal(v)
	if err != nil {
		return `{"error":"internal encoding failure"}`
	}
	return string(out)
}

// ── Shared handler helpers ────────────────────────────────────────────────────

// stringArg reads a string argument, returning "" when absent or mistyped.
func stringArg(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return s
}

// intArg reads a numeric argument. JSON numbers decode as float64.
func intArg(args map[string]any, key string) int {
	switch n := args[key].(type) {
	case float64:
		return int(n)
	case int:
		return n
	default:
		return 0
	}
}

// stringSliceArg reads an array-of-strings argument, skipping mistyped
// elements.
func stringSliceArg(args map[string]any, key string) []string {
	raw, ok := args[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// decodeResult turns a backend response into a generic value for the model.
func decodeResult(raw json.RawMessage, err error) (any, error) {
	if err != nil {
		return nil, err
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("decode backend response: %w", err)
	}
	return v, nil
}

// emailIDsFrom walks a decoded {emails: [{id: ...}]} result and collects every
// id value.
func emailIDsFrom(result any) []string {
	obj, ok := result.(map[string]any)
	if !ok {
		return nil
	}
	list, ok := obj["emails"].([]any)
	if !ok {
		return nil
	}
	ids := make([]string, 0, len(list))
	for _, entry := range list {
		email, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		if id, ok := email["id"].(string); ok && id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}
