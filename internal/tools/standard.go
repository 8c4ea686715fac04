package tools

import (
	"fmt"

	"github.com/maylavoice/mayla/internal/backend"
)

// NewStandardRegistry builds a registry with the full built-in tool set
// wired to the given backend client.
func NewStandardRegistry(be *backend.Client) (*Registry, error) {
	reg := NewRegistry()
	registrations := []func() error{
		func() error { return RegisterEmailTools(reg, be) },
		func() error { return RegisterDraftTools(reg, be) },
		func() error { return RegisterCalendarTools(reg, be) },
		func() error { return RegisterSearchTools(reg, be) },
		func() error { return RegisterUtilityTools(reg, be) },
		func() error { return RegisterBrowsingTools(reg, be) },
		func() error { return RegisterVisionTools(reg, be) },
		func() error { return RegisterAuthTools(reg, be) },
		func() error { return RegisterControlTools(reg) },
	}
	for _, register := range registrations {
		if err := register(); err != nil {
			return nil, fmt.Errorf("build tool registry: %w", err)
		}
	}
	return reg, nil
}
