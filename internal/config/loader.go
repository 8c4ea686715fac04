package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/maylavoice/mayla/internal/tools/mcpext"
	"gopkg.in/yaml.v3"
)

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Backend
	if cfg.Backend.BaseURL == "" {
		errs = append(errs, errors.New("backend.base_url is required"))
	}
	if cfg.Backend.TimeoutSeconds < 0 {
		errs = append(errs, fmt.Errorf("backend.timeout_seconds %d must not be negative", cfg.Backend.TimeoutSeconds))
	}

	// Realtime
	if cfg.Realtime.GoodbyeDelayMS < 0 {
		errs = append(errs, fmt.Errorf("realtime.goodbye_delay_ms %d must not be negative", cfg.Realtime.GoodbyeDelayMS))
	}

	// Wake
	if cfg.Wake.Threshold != 0 && (cfg.Wake.Threshold <= 0 || cfg.Wake.Threshold > 1) {
		errs = append(errs, fmt.Errorf("wake.threshold %.2f is out of range (0, 1]", cfg.Wake.Threshold))
	}
	if cfg.Wake.ConfidenceFloor < 0 || cfg.Wake.ConfidenceFloor > 1 {
		errs = append(errs, fmt.Errorf("wake.confidence_floor %.2f is out of range [0, 1]", cfg.Wake.ConfidenceFloor))
	}
	if cfg.Wake.DebounceMS < 0 {
		errs = append(errs, fmt.Errorf("wake.debounce_ms %d must not be negative", cfg.Wake.DebounceMS))
	}
	if cfg.Wake.Enabled && cfg.STT.APIKey == "" {
		errs = append(errs, errors.New("wake.enabled requires stt.api_key to be set"))
	}

	// Availability warnings
	if cfg.Chime.APIKey == "" && cfg.Chime.Greeting != "" {
		slog.Warn("chime.greeting is set but chime.api_key is empty; the spoken greeting will not be synthesized")
	}
	if cfg.Archive.PostgresDSN == "" {
		slog.Warn("archive.postgres_dsn is empty; conversation transcripts will not be persisted")
	}

	// MCP servers
	serverNamesSeen := make(map[string]int, len(cfg.MCP.Servers))
	for i, srv := range cfg.MCP.Servers {
		prefix := fmt.Sprintf("mcp.servers[%d]", i)
		if srv.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
		} else {
			if prev, ok := serverNamesSeen[srv.Name]; ok {
				errs = append(errs, fmt.Errorf("%s.name %q is a duplicate of mcp.servers[%d]", prefix, srv.Name, prev))
			}
			serverNamesSeen[srv.Name] = i
		}
		switch srv.Transport {
		case "", mcpext.TransportStdio, mcpext.TransportHTTP:
		default:
			errs = append(errs, fmt.Errorf("%s.transport %q is invalid; valid values: stdio, streamable-http", prefix, srv.Transport))
		}
		if srv.Transport == mcpext.TransportStdio && srv.Command == "" {
			errs = append(errs, fmt.Errorf("%s.command is required when transport is stdio", prefix))
		}
		if srv.Transport == mcpext.TransportHTTP && srv.URL == "" {
			errs = append(errs, fmt.Errorf("%s.url is required when transport is streamable-http", prefix))
		}
	}

	return errors.Join(errs...)
}
