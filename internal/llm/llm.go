// Package llm abstracts the language-model provider behind a Generator
// interface so the pipeline and its tests never depend on a live API.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// Request is one structured generation call. Schema, when set, is a
// JSON schema the provider enforces on the output.
type Request struct {
	System string
	User   string
	Schema map[string]any
}

// Generator produces a structured JSON payload for a request.
type Generator interface {
	Generate(ctx context.Context, req Request) (json.RawMessage, error)
}

// Static returns canned payloads keyed by a substring of the system
// prompt. Used in tests and in deployments without an API key.
type Static struct {
	// Responses maps a system-prompt substring to the payload returned
	// for it. The Default payload is returned when nothing matches.
	Responses map[string]json.RawMessage
	Default   json.RawMessage
	// Err, when set, fails every call.
	Err error
}

func (s *Static) Generate(ctx context.Context, req Request) (json.RawMessage, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	for marker, payload := range s.Responses {
		if marker != "" && strings.Contains(req.System, marker) {
			return payload, nil
		}
	}
	if s.Default != nil {
		return s.Default, nil
	}
	return nil, fmt.Errorf("llm: no static response configured")
}
