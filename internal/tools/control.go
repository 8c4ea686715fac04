package tools

import (
	"context"
	"fmt"
)

// EndConversationTool is the name the session special-cases: after sending
// this tool's output it schedules a real teardown, leaving the model a moment
// to speak its goodbye.
const EndConversationTool = "end_conversation"

// RegisterControlTools adds session control tools.
func RegisterControlTools(reg *Registry) error {
	t := &Tool{
		Name:        EndConversationTool,
		Description: "End the current voice conversation. Call this when the user says goodbye or asks you to stop listening. Say a brief farewell after calling it.",
		Parameters:  schemaObject(map[string]any{}),
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			return map[string]any{
				"status":  "ending",
				"message": "The conversation will close after your farewell.",
			}, nil
		},
	}
	if err := reg.Register(t); err != nil {
		return fmt.Errorf("control tools: %w", err)
	}
	return nil
}
