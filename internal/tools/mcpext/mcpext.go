// Package mcpext imports extension tools from Model Context Protocol servers
// into the assistant's tool registry. Servers are connected over stdio or
// streamable-HTTP using the official MCP Go SDK; every discovered tool is
// registered as an identifier-insensitive registry entry whose handler proxies
// the call to the owning server.
package mcpext

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"sync"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/maylavoice/mayla/internal/tools"
)

// Transport names accepted in server configuration.
const (
	TransportStdio = "stdio"
	TransportHTTP  = "streamable-http"
)

// ServerConfig describes one external MCP server.
type ServerConfig struct {
	// Name identifies the server in logs and tool attribution.
	Name string `yaml:"name"`

	// Transport is "stdio" or "streamable-http".
	Transport string `yaml:"transport"`

	// Command is the executable plus arguments for stdio servers,
	// split on whitespace.
	Command string `yaml:"command"`

	// URL is the endpoint for streamable-http servers.
	URL string `yaml:"url"`

	// Env holds additional environment variables for stdio servers.
	Env map[string]string `yaml:"env"`
}

// Host owns the live MCP server sessions behind the imported tools.
type Host struct {
	log    *slog.Logger
	client *mcpsdk.Client

	mu       sync.Mutex
	sessions map[string]*mcpsdk.ClientSession
}

// NewHost creates a host with no connected servers.
func NewHost(log *slog.Logger) *Host {
	if log == nil {
		log = slog.Default()
	}
	return &Host{
		log: log,
		client: mcpsdk.NewClient(
			&mcpsdk.Implementation{Name: "mayla", Version: "1.0.0"},
			nil,
		),
		sessions: make(map[string]*mcpsdk.ClientSession),
	}
}

// Connect establishes a session to every configured server and registers its
// discovered tools into reg. A server that fails to connect is logged and
// skipped; extension tools are additive and must not block startup.
func (h *Host) Connect(ctx context.Context, reg *tools.Registry, servers []ServerConfig) {
	for _, cfg := range servers {
		if err := h.connectOne(ctx, reg, cfg); err != nil {
			h.log.Warn("skipping MCP server", "server", cfg.Name, "error", err)
		}
	}
}

func (h *Host) connectOne(ctx context.Context, reg *tools.Registry, cfg ServerConfig) error {
	if cfg.Name == "" {
		return fmt.Errorf("server config must have a name")
	}

	var transport mcpsdk.Transport
	switch cfg.Transport {
	case TransportStdio:
		parts := strings.Fields(cfg.Command)
		if len(parts) == 0 {
			return fmt.Errorf("stdio server %q requires a command", cfg.Name)
		}
		cmd := exec.CommandContext(ctx, parts[0], parts[1:]...)
		for k, v := range cfg.Env {
			cmd.Env = append(cmd.Env, k+"="+v)
		}
		transport = &mcpsdk.CommandTransport{Command: cmd}
	case TransportHTTP:
		if cfg.URL == "" {
			return fmt.Errorf("streamable-http server %q requires a URL", cfg.Name)
		}
		transport = &mcpsdk.StreamableClientTransport{Endpoint: cfg.URL}
	default:
		return fmt.Errorf("unknown transport %q for server %q", cfg.Transport, cfg.Name)
	}

	session, err := h.client.Connect(ctx, transport, nil)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}

	count := 0
	for tool, err := range session.Tools(ctx, nil) {
		if err != nil {
			_ = session.Close()
			return fmt.Errorf("list tools: %w", err)
		}
		if err := reg.Register(h.importTool(session, cfg.Name, *tool)); err != nil {
			h.log.Warn("extension tool not imported",
				"server", cfg.Name, "tool", tool.Name, "error", err)
			continue
		}
		count++
	}

	h.mu.Lock()
	if old, ok := h.sessions[cfg.Name]; ok {
		_ = old.Close()
	}
	h.sessions[cfg.Name] = session
	h.mu.Unlock()

	h.log.Info("MCP server connected", "server", cfg.Name, "tools", count)
	return nil
}

// importTool wraps one discovered MCP tool as a registry entry.
func (h *Host) importTool(session *mcpsdk.ClientSession, server string, t mcpsdk.Tool) *tools.Tool {
	return &tools.Tool{
		Name:        t.Name,
		Description: t.Description,
		Parameters:  schemaToMap(t.InputSchema),
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			result, err := session.CallTool(ctx, &mcpsdk.CallToolParams{
				Name:      t.Name,
				Arguments: args,
			})
			if err != nil {
				return nil, fmt.Errorf("extension tool %s/%s: %w", server, t.Name, err)
			}
			var sb strings.Builder
			for _, c := range result.Content {
				if tc, ok := c.(*mcpsdk.TextContent); ok {
					sb.WriteString(tc.Text)
				}
			}
			if result.IsError {
				return map[string]any{"error": sb.String()}, nil
			}
			return map[string]any{"content": sb.String()}, nil
		},
	}
}

// Close shuts down every server session. The registry entries remain but
// their handlers will fail; call only at application shutdown.
func (h *Host) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	var firstErr error
	for name, session := range h.sessions {
		if err := session.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close MCP server %q: %w", name, err)
		}
		delete(h.sessions, name)
	}
	return firstErr
}

// schemaToMap normalizes whatever schema shape the SDK hands back into the
// map form the session configuration expects.
func schemaToMap(schema any) map[string]any {
	if schema == nil {
		return map[string]any{"type": "object"}
	}
	if m, ok := schema.(map[string]any); ok {
		return m
	}
	data, err := json.Marshal(schema)
	if err != nil {
		return map[string]any{"type": "object"}
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return map[string]any{"type": "object"}
	}
	return m
}
