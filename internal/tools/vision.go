package tools

import (
	"context"
	"errors"
	"fmt"

	"github.com/maylavoice/mayla/internal/backend"
)

// RegisterVisionTools adds document image analysis.
func RegisterVisionTools(reg *Registry, be *backend.Client) error {
	t := &Tool{
		Name:        "analyze_documents",
		Description: "Analyze photographed documents or screenshots the user has shared and answer a question about them.",
		Parameters: schemaObject(map[string]any{
			"images": schemaStringArray("Base64-encoded images to analyze"),
			"query":  schemaString("What the user wants to know about the documents"),
		}, "images", "query"),
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			images := stringSliceArg(args, "images")
			if len(images) == 0 {
				return nil, errors.New("no images supplied")
			}
			return decodeResult(be.AnalyzeDocuments(ctx, images, stringArg(args, "query")))
		},
	}
	if err := reg.Register(t); err != nil {
		return fmt.Errorf("vision tools: %w", err)
	}
	return nil
}
