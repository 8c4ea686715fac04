package tools

import (
	"context"
	"fmt"

	"github.com/maylavoice/mayla/internal/backend"
)

// utilityDef describes one single-purpose backend endpoint. args maps schema
// field name to description; required lists the mandatory ones.
type utilityDef struct {
	name     string
	path     string
	desc     string
	args     map[string]string
	required []string
}

// RegisterUtilityTools adds the everyday "ask the assistant" tools: weather,
// math, conversions, lookups, timers and notes. Each forwards its scalar
// arguments as-is to one backend endpoint.
func RegisterUtilityTools(reg *Registry, be *backend.Client) error {
	defs := []utilityDef{
		{
			name: "get_weather", path: "/weather",
			desc:     "Get the current weather and forecast for a location.",
			args:     map[string]string{"location": "City or place name", "units": "metric or imperial"},
			required: []string{"location"},
		},
		{
			name: "calculate", path: "/calculate",
			desc:     "Evaluate a mathematical expression.",
			args:     map[string]string{"expression": "The expression, e.g. \"12.5 * 17\""},
			required: []string{"expression"},
		},
		{
			name: "convert_units", path: "/convert-units",
			desc:     "Convert a value between measurement units.",
			args:     map[string]string{"value": "The numeric value", "from": "Source unit, e.g. \"miles\"", "to": "Target unit, e.g. \"kilometers\""},
			required: []string{"value", "from", "to"},
		},
		{
			name: "convert_currency", path: "/convert-currency",
			desc:     "Convert an amount between currencies at the current rate.",
			args:     map[string]string{"amount": "The amount to convert", "from": "Source currency code, e.g. \"USD\"", "to": "Target currency code, e.g. \"EUR\""},
			required: []string{"amount", "from", "to"},
		},
		{
			name: "get_time", path: "/time",
			desc:     "Get the current time in a timezone or city.",
			args:     map[string]string{"location": "City or timezone name"},
			required: []string{"location"},
		},
		{
			name: "get_definition", path: "/define",
			desc:     "Look up the dictionary definition of a word.",
			args:     map[string]string{"word": "The word to define"},
			required: []string{"word"},
		},
		{
			name: "search_wikipedia", path: "/wikipedia",
			desc:     "Get a summary of a topic from Wikipedia.",
			args:     map[string]string{"topic": "The topic to look up"},
			required: []string{"topic"},
		},
		{
			name: "get_stock_price", path: "/stock",
			desc:     "Get the current price of a stock.",
			args:     map[string]string{"symbol": "Ticker symbol, e.g. \"AAPL\""},
			required: []string{"symbol"},
		},
		{
			name: "get_crypto_price", path: "/crypto",
			desc:     "Get the current price of a cryptocurrency.",
			args:     map[string]string{"symbol": "Coin symbol, e.g. \"BTC\""},
			required: []string{"symbol"},
		},
		{
			name: "translate_text", path: "/translate",
			desc:     "Translate text into another language.",
			args:     map[string]string{"text": "The text to translate", "targetLanguage": "Target language, e.g. \"French\""},
			required: []string{"text", "targetLanguage"},
		},
		{
			name: "set_timer", path: "/timer",
			desc:     "Set a timer or reminder for the user.",
			args:     map[string]string{"duration": "Timer length, e.g. \"10 minutes\"", "label": "Optional label for the timer"},
			required: []string{"duration"},
		},
		{
			name: "create_note", path: "/note",
			desc:     "Save a quick note for the user.",
			args:     map[string]string{"content": "The note text", "title": "Optional note title"},
			required: []string{"content"},
		},
	}

	for _, def := range defs {
		def := def
		props := make(map[string]any, len(def.args))
		for field, desc := range def.args {
			if field == "value" || field == "amount" {
				props[field] = schemaNumber(desc)
				continue
			}
			props[field] = schemaString(desc)
		}
		t := &Tool{
			Name:        def.name,
			Description: def.desc,
			Parameters:  schemaObject(props, def.required...),
			Handler: func(ctx context.Context, args map[string]any) (any, error) {
				body := make(map[string]any, len(def.args))
				for field := range def.args {
					if v, ok := args[field]; ok {
						body[field] = v
					}
				}
				return decodeResult(be.Utility(ctx, def.path, body))
			},
		}
		if err := reg.Register(t); err != nil {
			return fmt.Errorf("utility tools: %w", err)
		}
	}
	return nil
}
