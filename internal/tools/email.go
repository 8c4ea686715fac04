package tools

import (
	"context"
	"fmt"

	"github.com/maylavoice/mayla/internal/backend"
)

// RegisterEmailTools adds the inbox tools: listing, fetching, searching, and
// mailbox state changes. Every tool taking an emailId is guarded by the
// identifier integrity registry; get_email_by_id additionally consumes the
// identifier on success so a stale id cannot be reused without re-listing.
func RegisterEmailTools(reg *Registry, be *backend.Client) error {
	defs := []*Tool{
		{
			Name:        "get_emails",
			Description: "Fetch the most recent emails from the user's inbox. Returns id, subject, sender, date and snippet for each.",
			Parameters: schemaObject(map[string]any{
				"maxResults": schemaNumber("How many emails to fetch (default 10)"),
			}),
			Handler: func(ctx context.Context, args map[string]any) (any, error) {
				max := intArg(args, "maxResults")
				if max <= 0 {
					max = 10
				}
				return decodeResult(be.ListEmails(ctx, max))
			},
			ExtractIDs: emailIDsFrom,
		},
		{
			Name:        "get_email_by_id",
			Description: "Fetch the full content of one email. The emailId must come from a previous get_emails or search_emails result.",
			Parameters: schemaObject(map[string]any{
				"emailId": schemaString("The id of the email to fetch"),
			}, "emailId"),
			IDArg:     "emailId",
			ConsumeID: true,
			Handler: func(ctx context.Context, args map[string]any) (any, error) {
				return decodeResult(be.GetEmail(ctx, stringArg(args, "emailId")))
			},
		},
		{
			Name:        "search_emails",
			Description: "Search the user's mailbox. Supports sender, subject and free-text queries.",
			Parameters: schemaObject(map[string]any{
				"query":      schemaString("The search query, e.g. \"from:alice invoices\""),
				"maxResults": schemaNumber("How many results to return (default 10)"),
			}, "query"),
			Handler: func(ctx context.Context, args map[string]any) (any, error) {
				max := intArg(args, "maxResults")
				if max <= 0 {
					max = 10
				}
				return decodeResult(be.SearchEmails(ctx, stringArg(args, "query"), max))
			},
			ExtractIDs: emailIDsFrom,
		},
	}

	actions := []struct {
		name, action, desc string
	}{
		{"mark_email_read", "mark-read", "Mark an email as read."},
		{"mark_email_unread", "mark-unread", "Mark an email as unread."},
		{"star_email", "star", "Star an email so it is easy to find later."},
		{"archive_email", "archive", "Move an email out of the inbox into the archive."},
		{"delete_email", "delete", "Move an email to the trash."},
	}
	for _, a := range actions {
		action := a.action
		t := &Tool{
			Name:        a.name,
			Description: a.desc + " The emailId must come from a previous listing.",
			Parameters: schemaObject(map[string]any{
				"emailId": schemaString("The id of the email"),
			}, "emailId"),
			IDArg:     "emailId",
			ConsumeID: action == "delete",
			Handler: func(ctx context.Context, args map[string]any) (any, error) {
				return decodeResult(be.EmailAction(ctx, action, stringArg(args, "emailId")))
			},
		}
		defs = append(defs, t)
	}

	for _, t := range defs {
		if err := reg.Register(t); err != nil {
			return fmt.Errorf("email tools: %w", err)
		}
	}
	return nil
}
