// Package agents defines the boundary to the content-generating
// collaborators. The pipeline treats an agent as opaque: it receives parsed
// event fields and either returns a structured result or fails.
package agents

import (
	"context"
	"encoding/json"
)

// Input carries the parsed event fields an agent needs.
type Input struct {
	Repo          string
	Number        int
	Title         string
	Body          string
	Diff          string
	TenantID      string
	CorrelationID string
}

// Result is the structured outcome of one agent invocation.
type Result struct {
	FormattedComment string
	SuggestedLabels  []string
	TokensUsed       int
	Raw              json.RawMessage
}

// Agent processes one event and produces a postable result.
type Agent interface {
	Name() string
	Process(ctx context.Context, in Input) (*Result, error)
}
