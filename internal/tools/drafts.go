package tools

import (
	"context"
	"fmt"

	"github.com/maylavoice/mayla/internal/backend"
)

// RegisterDraftTools adds draft composition, reply and forward tools. There is
// no direct send-email tool: outgoing mail always goes through a draft the
// user can review, so the only way to send is send_draft.
func RegisterDraftTools(reg *Registry, be *backend.Client) error {
	defs := []*Tool{
		{
			Name:        "create_draft",
			Description: "Create a new email draft for the user to review. This does not send anything.",
			Parameters: schemaObject(map[string]any{
				"to":      schemaString("Recipient email address"),
				"subject": schemaString("Email subject line"),
				"text":    schemaString("Plain-text body of the email"),
				"cc":      schemaString("Optional CC address"),
				"bcc":     schemaString("Optional BCC address"),
			}, "to", "subject", "text"),
			Handler: func(ctx context.Context, args map[string]any) (any, error) {
				return decodeResult(be.CreateDraft(ctx, draftFromArgs(args)))
			},
		},
		{
			Name:        "list_drafts",
			Description: "List the user's current email drafts.",
			Parameters:  schemaObject(map[string]any{}),
			Handler: func(ctx context.Context, args map[string]any) (any, error) {
				return decodeResult(be.ListDrafts(ctx))
			},
		},
		{
			Name:        "update_draft",
			Description: "Update an existing draft. Only the supplied fields are changed.",
			Parameters: schemaObject(map[string]any{
				"draftId": schemaString("The id of the draft, from create_draft or list_drafts"),
				"to":      schemaString("New recipient address"),
				"subject": schemaString("New subject line"),
				"text":    schemaString("New body text"),
				"cc":      schemaString("New CC address"),
				"bcc":     schemaString("New BCC address"),
			}, "draftId"),
			Handler: func(ctx context.Context, args map[string]any) (any, error) {
				return decodeResult(be.UpdateDraft(ctx, stringArg(args, "draftId"), draftFromArgs(args)))
			},
		},
		{
			Name:        "send_draft",
			Description: "Send a draft the user has confirmed. Always read the draft back to the user before calling this.",
			Parameters: schemaObject(map[string]any{
				"draftId": schemaString("The id of the draft to send"),
			}, "draftId"),
			Handler: func(ctx context.Context, args map[string]any) (any, error) {
				return decodeResult(be.SendDraft(ctx, stringArg(args, "draftId")))
			},
		},
		{
			Name:        "delete_draft",
			Description: "Discard a draft without sending it.",
			Parameters: schemaObject(map[string]any{
				"draftId": schemaString("The id of the draft to delete"),
			}, "draftId"),
			Handler: func(ctx context.Context, args map[string]any) (any, error) {
				return decodeResult(be.DeleteDraft(ctx, stringArg(args, "draftId")))
			},
		},
		{
			Name:        "reply_to_email",
			Description: "Reply to an email. The emailId must come from a previous listing.",
			Parameters: schemaObject(map[string]any{
				"emailId": schemaString("The id of the email being answered"),
				"text":    schemaString("Plain-text reply body"),
				"html":    schemaString("Optional HTML reply body"),
			}, "emailId", "text"),
			IDArg: "emailId",
			Handler: func(ctx context.Context, args map[string]any) (any, error) {
				return decodeResult(be.Reply(ctx,
					stringArg(args, "emailId"),
					stringArg(args, "text"),
					stringArg(args, "html")))
			},
		},
		{
			Name:        "forward_email",
			Description: "Forward an email to another address. The emailId must come from a previous listing.",
			Parameters: schemaObject(map[string]any{
				"emailId": schemaString("The id of the email to forward"),
				"to":      schemaString("Recipient email address"),
				"text":    schemaString("Optional note to include above the forwarded content"),
			}, "emailId", "to"),
			IDArg: "emailId",
			Handler: func(ctx context.Context, args map[string]any) (any, error) {
				return decodeResult(be.Forward(ctx,
					stringArg(args, "emailId"),
					stringArg(args, "to"),
					stringArg(args, "text")))
			},
		},
	}

	for _, t := range defs {
		if err := reg.Register(t); err != nil {
			return fmt.Errorf("draft tools: %w", err)
		}
	}
	return nil
}

func draftFromArgs(args map[string]any) backend.DraftRequest {
	return backend.DraftRequest{
		To:      stringArg(args, "to"),
		Subject: stringArg(args, "subject"),
		Text:    stringArg(args, "text"),
		CC:      stringArg(args, "cc"),
		BCC:     stringArg(args, "bcc"),
	}
}
