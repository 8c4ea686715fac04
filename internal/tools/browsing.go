package tools

import (
	"context"
	"fmt"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"

	"github.com/maylavoice/mayla/internal/backend"
)

// Pages can be enormous; cap what goes back to the model.
const maxPageContent = 16 * 1024

// RegisterBrowsingTools adds web page fetching and structured extraction.
// Fetched page content is converted from HTML to markdown before it reaches
// the model, which reads far better over a voice channel than raw markup.
func RegisterBrowsingTools(reg *Registry, be *backend.Client) error {
	defs := []*Tool{
		{
			Name:        "browse_url",
			Description: "Fetch a web page and return its readable content.",
			Parameters: schemaObject(map[string]any{
				"url": schemaString("The full URL to fetch, including the scheme"),
			}, "url"),
			Handler: func(ctx context.Context, args map[string]any) (any, error) {
				result, err := decodeResult(be.Browse(ctx, stringArg(args, "url")))
				if err != nil {
					return nil, err
				}
				page, ok := result.(map[string]any)
				if !ok {
					return result, nil
				}
				if html, ok := page["content"].(string); ok {
					page["content"] = clampContent(toMarkdown(html))
				}
				return page, nil
			},
		},
		{
			Name:        "extract_structured_data",
			Description: "Extract structured data (tables, listings, prices) from a web page.",
			Parameters: schemaObject(map[string]any{
				"url":      schemaString("The full URL to extract from"),
				"selector": schemaString("Optional CSS selector narrowing the extraction"),
			}, "url"),
			Handler: func(ctx context.Context, args map[string]any) (any, error) {
				return decodeResult(be.ExtractStructured(ctx,
					stringArg(args, "url"),
					stringArg(args, "selector")))
			},
		},
	}

	for _, t := range defs {
		if err := reg.Register(t); err != nil {
			return fmt.Errorf("browsing tools: %w", err)
		}
	}
	return nil
}

// toMarkdown converts HTML page content to markdown, falling back to the
// original text when conversion fails.
func toMarkdown(html string) string {
	md, err := htmltomarkdown.ConvertString(html)
	if err != nil {
		return html
	}
	return md
}

func clampContent(s string) string {
	if len(s) <= maxPageContent {
		return s
	}
	return s[:maxPageContent] + "\n\n[content truncated]"
}
