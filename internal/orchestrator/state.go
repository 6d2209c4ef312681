package orchestrator

import (
	"encoding/json"

	"repogator/internal/agents"
)

// state is the mutable context threaded through the pipeline steps. Each step
// records its own failure in Err instead of aborting, so the finalize step
// always runs and every routed event reaches a terminal status.
type state struct {
	EventID       string
	CorrelationID string
	EventType     string
	Action        string
	RepoFullName  string
	Payload       json.RawMessage

	Route      Route
	ItemNumber int
	TenantID   string

	Result *agents.Result
	Posted bool
	Err    error
}

// setErr records the first failure; later failures never overwrite it.
func (s *state) setErr(err error) {
	if s.Err == nil {
		s.Err = err
	}
}

// payloadFields is the subset of the provider payload the router needs.
type payloadFields struct {
	Action string `json:"action"`
	Issue  *struct {
		Number int    `json:"number"`
		Title  string `json:"title"`
		Body   string `json:"body"`
	} `json:"issue"`
	PullRequest *struct {
		Number int    `json:"number"`
		Title  string `json:"title"`
		Body   string `json:"body"`
		Merged bool   `json:"merged"`
	} `json:"pull_request"`
}
