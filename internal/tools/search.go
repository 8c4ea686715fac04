package tools

import (
	"context"
	"fmt"

	"github.com/maylavoice/mayla/internal/backend"
)

// RegisterSearchTools adds the web search family. Each tool maps to one
// backend search endpoint; the backend normalizes provider responses.
func RegisterSearchTools(reg *Registry, be *backend.Client) error {
	simple := []struct {
		name, path, desc string
	}{
		{"search_web", "/search", "Search the web for current information."},
		{"search_news", "/search/news", "Search recent news articles."},
		{"search_images", "/search/images", "Search for images."},
		{"search_videos", "/search/videos", "Search for videos."},
	}

	defs := make([]*Tool, 0, len(simple)+1)
	for _, s := range simple {
		path := s.path
		defs = append(defs, &Tool{
			Name:        s.name,
			Description: s.desc,
			Parameters: schemaObject(map[string]any{
				"query":      schemaString("The search query"),
				"maxResults": schemaNumber("How many results to return (default 5)"),
			}, "query"),
			Handler: func(ctx context.Context, args map[string]any) (any, error) {
				body := map[string]any{"query": stringArg(args, "query")}
				if max := intArg(args, "maxResults"); max > 0 {
					body["maxResults"] = max
				}
				return decodeResult(be.Search(ctx, path, body))
			},
		})
	}

	defs = append(defs, &Tool{
		Name:        "advanced_search",
		Description: "Search with filters: restrict by topic, site, or time range.",
		Parameters: schemaObject(map[string]any{
			"query":      schemaString("The search query"),
			"topic":      schemaEnum("Result category", "general", "news", "finance"),
			"site":       schemaString("Restrict results to one site, e.g. \"nytimes.com\""),
			"timeRange":  schemaEnum("How recent results must be", "day", "week", "month", "year"),
			"maxResults": schemaNumber("How many results to return (default 5)"),
		}, "query"),
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			body := map[string]any{"query": stringArg(args, "query")}
			for _, key := range []string{"topic", "site", "timeRange"} {
				if v := stringArg(args, key); v != "" {
					body[key] = v
				}
			}
			if max := intArg(args, "maxResults"); max > 0 {
				body["maxResults"] = max
			}
			return decodeResult(be.Search(ctx, "/search/advanced", body))
		},
	})

	for _, t := range defs {
		if err := reg.Register(t); err != nil {
			return fmt.Errorf("search tools: %w", err)
		}
	}
	return nil
}
