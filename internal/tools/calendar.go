package tools

import (
	"context"
	"fmt"

	"github.com/maylavoice/mayla/internal/backend"
)

// RegisterCalendarTools adds calendar event management and the action-item
// reminder tool.
func RegisterCalendarTools(reg *Registry, be *backend.Client) error {
	defs := []*Tool{
		{
			Name:        "create_calendar_event",
			Description: "Create a calendar event. Times are RFC 3339 timestamps in the user's timezone.",
			Parameters: schemaObject(map[string]any{
				"summary":     schemaString("Event title"),
				"start":       schemaString("Start time, RFC 3339"),
				"end":         schemaString("End time, RFC 3339"),
				"description": schemaString("Optional event description"),
				"location":    schemaString("Optional location"),
				"attendees":   schemaStringArray("Optional attendee email addresses"),
			}, "summary", "start", "end"),
			Handler: func(ctx context.Context, args map[string]any) (any, error) {
				return decodeResult(be.CreateEvent(ctx, eventFromArgs(args)))
			},
		},
		{
			Name:        "get_calendar_events",
			Description: "List calendar events, optionally within a time window or matching a query.",
			Parameters: schemaObject(map[string]any{
				"timeMin": schemaString("Earliest start time to include, RFC 3339"),
				"timeMax": schemaString("Latest start time to include, RFC 3339"),
				"query":   schemaString("Optional free-text filter"),
			}),
			Handler: func(ctx context.Context, args map[string]any) (any, error) {
				return decodeResult(be.ListEvents(ctx,
					stringArg(args, "timeMin"),
					stringArg(args, "timeMax"),
					stringArg(args, "query")))
			},
		},
		{
			Name:        "update_calendar_event",
			Description: "Update an existing calendar event. Only the supplied fields are changed.",
			Parameters: schemaObject(map[string]any{
				"eventId":     schemaString("The id of the event, from get_calendar_events"),
				"summary":     schemaString("New event title"),
				"start":       schemaString("New start time, RFC 3339"),
				"end":         schemaString("New end time, RFC 3339"),
				"description": schemaString("New description"),
				"location":    schemaString("New location"),
			}, "eventId"),
			Handler: func(ctx context.Context, args map[string]any) (any, error) {
				return decodeResult(be.UpdateEvent(ctx, stringArg(args, "eventId"), eventFromArgs(args)))
			},
		},
		{
			Name:        "delete_calendar_event",
			Description: "Delete a calendar event.",
			Parameters: schemaObject(map[string]any{
				"eventId": schemaString("The id of the event to delete"),
			}, "eventId"),
			Handler: func(ctx context.Context, args map[string]any) (any, error) {
				return decodeResult(be.DeleteEvent(ctx, stringArg(args, "eventId")))
			},
		},
		{
			Name:        "create_action_item",
			Description: "Record a reminder or to-do for the user as a calendar action item.",
			Parameters: schemaObject(map[string]any{
				"actionItem": schemaString("What the user needs to do"),
				"dueDate":    schemaString("Optional due date, RFC 3339"),
				"priority":   schemaEnum("Optional priority", "low", "medium", "high"),
			}, "actionItem"),
			Handler: func(ctx context.Context, args map[string]any) (any, error) {
				return decodeResult(be.CreateActionItem(ctx,
					stringArg(args, "actionItem"),
					stringArg(args, "dueDate"),
					stringArg(args, "priority")))
			},
		},
	}

	for _, t := range defs {
		if err := reg.Register(t); err != nil {
			return fmt.Errorf("calendar tools: %w", err)
		}
	}
	return nil
}

func eventFromArgs(args map[string]any) backend.EventRequest {
	return backend.EventRequest{
		Summary:     stringArg(args, "summary"),
		Start:       stringArg(args, "start"),
		End:         stringArg(args, "end"),
		Description: stringArg(args, "description"),
		Location:    stringArg(args, "location"),
		Attendees:   stringSliceArg(args, "attendees"),
	}
}
