// Package orchestrator routes each queued event through exactly one handler
// branch, publishes the result back to the provider, and records a terminal
// outcome. The pipeline is an explicit state machine:
//
//	Start -> Routed(handler) -> HandlerRan -> Published -> Finalized
//
// with an immediate Start -> Terminal edge when no route matches. Failures in
// the handler or publish steps are stored in the shared state and the machine
// continues to finalize regardless, so a routed event always acquires exactly
// one action record and a terminal event status.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"repogator/internal/agents"
	"repogator/internal/audit"
	"repogator/internal/event"
	"repogator/internal/platform/metrics"
	"repogator/internal/queue"
	derrors "repogator/pkg/domain-errors"
	"repogator/pkg/requestcontext"
)

// Publisher posts handler results back to the provider.
type Publisher interface {
	PostComment(ctx context.Context, repo string, number int, body string) error
	AddLabels(ctx context.Context, repo string, number int, labels []string) error
}

// Orchestrator wires the handler branches, the result publisher, and the
// event store into the dispatch state machine.
type Orchestrator struct {
	requirements agents.Agent
	codeReview   agents.Agent
	docs         agents.Agent
	publisher    Publisher
	store        event.Store
	audit        *audit.Publisher
	metrics      *metrics.Metrics
	logger       *slog.Logger
	tracer       trace.Tracer
}

// New constructs an orchestrator.
func New(
	requirements agents.Agent,
	codeReview agents.Agent,
	docs agents.Agent,
	publisher Publisher,
	store event.Store,
	auditPub *audit.Publisher,
	m *metrics.Metrics,
	logger *slog.Logger,
) *Orchestrator {
	return &Orchestrator{
		requirements: requirements,
		codeReview:   codeReview,
		docs:         docs,
		publisher:    publisher,
		store:        store,
		audit:        auditPub,
		metrics:      m,
		logger:       logger,
		tracer:       otel.Tracer("repogator/orchestrator"),
	}
}

// Dispatch processes one queued message end to end. It is the queue worker's
// callback and never panics past its own frame.
func (o *Orchestrator) Dispatch(ctx context.Context, msg queue.Message) error {
	ctx = requestcontext.WithCorrelationID(ctx, msg.CorrelationID)
	ctx, span := o.tracer.Start(ctx, "orchestrator.dispatch",
		trace.WithAttributes(
			attribute.String("event.id", msg.EventID),
			attribute.String("event.type", msg.EventType),
		))
	defer span.End()

	start := time.Now()
	defer func() {
		o.metrics.DispatchDuration.Observe(time.Since(start).Seconds())
	}()

	st := newState(msg)

	if st.Route == RouteUnknown {
		return o.finalizeUnknown(ctx, st)
	}

	if err := o.store.MarkProcessing(ctx, st.EventID); err != nil {
		// A terminal row means this is a stale duplicate; drop it.
		if derrors.Is(err, derrors.CodeConflict) {
			o.logger.InfoContext(ctx, "skipping already-finalized event",
				"event_id", st.EventID,
				"correlation_id", st.CorrelationID,
			)
			return nil
		}
		o.logger.WarnContext(ctx, "could not mark event processing",
			"event_id", st.EventID,
			"error", err.Error(),
		)
	}

	o.runHandler(ctx, st)
	o.publish(ctx, st)
	return o.finalize(ctx, st)
}

// newState parses the message payload and resolves the route. A payload that
// fails to parse is carried as a state error rather than an abort: the route
// falls back to the message's own type and action fields so the event still
// flows through finalize and reaches a terminal status instead of being
// re-enqueued by recovery forever.
func newState(msg queue.Message) *state {
	st := &state{
		EventID:       msg.EventID,
		CorrelationID: msg.CorrelationID,
		EventType:     msg.EventType,
		Action:        msg.Action,
		RepoFullName:  msg.RepoFullName,
		Payload:       msg.Payload,
	}
	if msg.Overrides != nil {
		st.TenantID = msg.Overrides.TenantID
	}

	var fields payloadFields
	if err := json.Unmarshal(msg.Payload, &fields); err != nil {
		st.setErr(fmt.Errorf("parse payload for event %s: %w", msg.EventID, err))
		st.Route = Resolve(msg.EventType, msg.Action, false)
		return st
	}

	merged := fields.PullRequest != nil && fields.PullRequest.Merged
	st.Route = Resolve(msg.EventType, msg.Action, merged)

	switch {
	case fields.Issue != nil:
		st.ItemNumber = fields.Issue.Number
	case fields.PullRequest != nil:
		st.ItemNumber = fields.PullRequest.Number
	}
	return st
}

// runHandler invokes the routed agent and stores its result or failure. It
// short-circuits when an earlier step already failed.
func (o *Orchestrator) runHandler(ctx context.Context, st *state) {
	if st.Err != nil {
		return
	}

	ctx, span := o.tracer.Start(ctx, "orchestrator.handler",
		trace.WithAttributes(attribute.String("handler", string(st.Route))))
	defer span.End()

	agent := o.agentFor(st.Route)
	in, err := o.agentInput(st)
	if err != nil {
		st.setErr(err)
		return
	}

	result, err := agent.Process(ctx, in)
	if err != nil {
		o.logger.ErrorContext(ctx, "handler failed",
			"handler", agent.Name(),
			"correlation_id", st.CorrelationID,
			"error", err.Error(),
		)
		st.setErr(err)
		return
	}
	st.Result = result
}

// publish posts the handler result to the provider. It short-circuits when an
// earlier step already failed, and records its own failure without
// overwriting one.
func (o *Orchestrator) publish(ctx context.Context, st *state) {
	ctx, span := o.tracer.Start(ctx, "orchestrator.publish")
	defer span.End()

	if st.Err != nil || st.Result == nil {
		st.Posted = false
		return
	}

	if err := o.publisher.PostComment(ctx, st.RepoFullName, st.ItemNumber, st.Result.FormattedComment); err != nil {
		o.logger.ErrorContext(ctx, "failed to post result",
			"correlation_id", st.CorrelationID,
			"error", err.Error(),
		)
		st.setErr(err)
		st.Posted = false
		return
	}

	if st.Route == RouteRequirements && len(st.Result.SuggestedLabels) > 0 {
		if err := o.publisher.AddLabels(ctx, st.RepoFullName, st.ItemNumber, st.Result.SuggestedLabels); err != nil {
			o.logger.ErrorContext(ctx, "failed to add labels",
				"correlation_id", st.CorrelationID,
				"error", err.Error(),
			)
			st.setErr(err)
			st.Posted = false
			return
		}
	}
	st.Posted = true
}

// finalize writes the write-once action record and moves the event to its
// terminal status. Its own failure is logged and surfaced to the worker; the
// stale sweep re-enqueues events left in processing by such failures.
func (o *Orchestrator) finalize(ctx context.Context, st *state) error {
	ctx, span := o.tracer.Start(ctx, "orchestrator.finalize")
	defer span.End()

	now := time.Now().UTC()

	action := &event.AgentAction{
		ID:            uuid.NewString(),
		CorrelationID: st.CorrelationID,
		EventID:       st.EventID,
		AgentName:     string(st.Route),
		Input:         st.Payload,
		Posted:        st.Posted,
		Status:        event.ActionCompleted,
		CreatedAt:     now,
		CompletedAt:   &now,
	}
	if st.Result != nil {
		action.Output = st.Result.Raw
		if st.Result.TokensUsed > 0 {
			tokens := st.Result.TokensUsed
			action.TokensUsed = &tokens
		}
	}
	if st.Err != nil {
		action.Status = event.ActionError
		action.ErrorMessage = st.Err.Error()
	}

	if err := o.store.CreateAction(ctx, action); err != nil {
		o.logger.ErrorContext(ctx, "failed to record agent action",
			"event_id", st.EventID,
			"correlation_id", st.CorrelationID,
			"error", err.Error(),
		)
		return fmt.Errorf("record action for event %s: %w", st.EventID, err)
	}

	terminal := event.StatusCompleted
	if st.Err != nil {
		terminal = event.StatusFailed
	}
	if err := o.store.FinalizeEvent(ctx, st.EventID, terminal, now); err != nil {
		o.logger.ErrorContext(ctx, "failed to finalize event",
			"event_id", st.EventID,
			"correlation_id", st.CorrelationID,
			"error", err.Error(),
		)
		return fmt.Errorf("finalize event %s: %w", st.EventID, err)
	}

	o.metrics.EventsProcessed.WithLabelValues(string(terminal)).Inc()
	o.emitAudit(ctx, st, string(terminal))

	o.logger.InfoContext(ctx, "event finalized",
		"event_id", st.EventID,
		"correlation_id", st.CorrelationID,
		"handler", string(st.Route),
		"status", string(terminal),
		"posted", st.Posted,
	)
	return nil
}

// finalizeUnknown closes out an event no route matched. No handler runs and
// no action record is written; the event itself still reaches a terminal
// status so it is never re-enqueued by recovery.
func (o *Orchestrator) finalizeUnknown(ctx context.Context, st *state) error {
	o.logger.InfoContext(ctx, "no route for event, finalizing",
		"event_id", st.EventID,
		"event_type", st.EventType,
		"action", st.Action,
		"correlation_id", st.CorrelationID,
	)
	if err := o.store.FinalizeEvent(ctx, st.EventID, event.StatusCompleted, time.Now().UTC()); err != nil {
		return fmt.Errorf("finalize unroutable event %s: %w", st.EventID, err)
	}
	o.metrics.EventsProcessed.WithLabelValues(string(event.StatusCompleted)).Inc()
	return nil
}

func (o *Orchestrator) agentFor(r Route) agents.Agent {
	switch r {
	case RouteRequirements:
		return o.requirements
	case RouteCodeReview:
		return o.codeReview
	default:
		return o.docs
	}
}

func (o *Orchestrator) agentInput(st *state) (agents.Input, error) {
	var fields payloadFields
	if err := json.Unmarshal(st.Payload, &fields); err != nil {
		return agents.Input{}, fmt.Errorf("parse payload: %w", err)
	}

	in := agents.Input{
		Repo:          st.RepoFullName,
		Number:        st.ItemNumber,
		TenantID:      st.TenantID,
		CorrelationID: st.CorrelationID,
	}
	switch {
	case st.Route == RouteRequirements && fields.Issue != nil:
		in.Title = fields.Issue.Title
		in.Body = fields.Issue.Body
	case fields.PullRequest != nil:
		in.Title = fields.PullRequest.Title
		in.Body = fields.PullRequest.Body
	}
	return in, nil
}

func (o *Orchestrator) emitAudit(ctx context.Context, st *state, terminal string) {
	err := o.audit.Emit(ctx, audit.Entry{
		CorrelationID: st.CorrelationID,
		Level:         "info",
		Message:       "event finalized",
		Context: map[string]any{
			"event_id": st.EventID,
			"handler":  string(st.Route),
			"status":   terminal,
			"posted":   st.Posted,
		},
	})
	if err != nil {
		o.logger.WarnContext(ctx, "failed to emit audit entry",
			"correlation_id", st.CorrelationID,
			"error", err.Error(),
		)
	}
}
