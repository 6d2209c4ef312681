package event

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a webhook event. It only ever advances
// forward: received -> processing -> completed | failed.
type Status string

const (
	StatusReceived   Status = "received"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Terminal reports whether no further transition is allowed from s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// ActionStatus is the write-once outcome of a single agent invocation.
type ActionStatus string

const (
	ActionCompleted ActionStatus = "completed"
	ActionError     ActionStatus = "error"
)

// Event is one inbound provider notification. Created at ingress with
// StatusReceived and finalized exactly once by the orchestrator.
type Event struct {
	ID            string
	CorrelationID string
	EventType     string
	Action        string
	RepoFullName  string
	Payload       json.RawMessage
	Status        Status
	CreatedAt     time.Time
	ProcessedAt   *time.Time
}

// NewEvent constructs a received event with fresh identifiers.
func NewEvent(correlationID, eventType, action, repoFullName string, payload json.RawMessage) *Event {
	return &Event{
		ID:            uuid.NewString(),
		CorrelationID: correlationID,
		EventType:     eventType,
		Action:        action,
		RepoFullName:  repoFullName,
		Payload:       payload,
		Status:        StatusReceived,
		CreatedAt:     time.Now().UTC(),
	}
}

// AgentAction is the audit record of one agent invocation tied to an event.
// It is created only by the orchestrator's finalize step and never updated.
type AgentAction struct {
	ID            string
	CorrelationID string
	EventID       string
	AgentName     string
	Input         json.RawMessage
	Output        json.RawMessage
	Posted        bool
	TokensUsed    *int
	Status        ActionStatus
	ErrorMessage  string
	CreatedAt     time.Time
	CompletedAt   *time.Time
}
