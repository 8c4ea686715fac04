package tools

import (
	"context"
	"errors"
	"fmt"

	"github.com/maylavoice/mayla/internal/backend"
)

// RegisterAuthTools adds the Google account connection tool. It only hands
// back the authorization URL with instructions; completing the flow happens
// out of band in the user's browser, and later tool calls will simply start
// succeeding once the backend holds valid credentials.
func RegisterAuthTools(reg *Registry, be *backend.Client) error {
	t := &Tool{
		Name:        "google_auth_setup",
		Description: "Begin connecting the user's Google account so email and calendar tools work. Returns a URL the user must open.",
		Parameters:  schemaObject(map[string]any{}),
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			result, err := decodeResult(be.AuthURL(ctx))
			if err != nil {
				return nil, err
			}
			obj, ok := result.(map[string]any)
			if !ok {
				return nil, errors.New("authorization endpoint returned an unexpected shape")
			}
			authURL, _ := obj["authUrl"].(string)
			if authURL == "" {
				return nil, errors.New("authorization endpoint returned no URL")
			}
			return map[string]any{
				"success":      true,
				"authUrl":      authURL,
				"instructions": "Ask the user to open the authorization link on their screen and approve access. Once they confirm, their email and calendar are available.",
			}, nil
		},
	}
	if err := reg.Register(t); err != nil {
		return fmt.Errorf("auth tools: %w", err)
	}
	return nil
}
