package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/suite"

	"repogator/internal/agents"
	"repogator/internal/audit"
	"repogator/internal/event"
	"repogator/internal/platform/metrics"
	"repogator/internal/queue"
)

type stubAgent struct {
	name   string
	result *agents.Result
	err    error
	calls  int
	lastIn agents.Input
}

func (a *stubAgent) Name() string { return a.name }

func (a *stubAgent) Process(ctx context.Context, in agents.Input) (*agents.Result, error) {
	a.calls++
	a.lastIn = in
	if a.err != nil {
		return nil, a.err
	}
	return a.result, nil
}

type stubPublisher struct {
	comments   []string
	labels     [][]string
	commentErr error
	labelErr   error
}

func (p *stubPublisher) PostComment(ctx context.Context, repo string, number int, body string) error {
	if p.commentErr != nil {
		return p.commentErr
	}
	p.comments = append(p.comments, body)
	return nil
}

func (p *stubPublisher) AddLabels(ctx context.Context, repo string, number int, labels []string) error {
	if p.labelErr != nil {
		return p.labelErr
	}
	p.labels = append(p.labels, labels)
	return nil
}

type OrchestratorSuite struct {
	suite.Suite
	store        *event.MemoryStore
	auditStore   *audit.MemoryStore
	publisher    *stubPublisher
	requirements *stubAgent
	codeReview   *stubAgent
	docs         *stubAgent
	orch         *Orchestrator
}

func TestOrchestratorSuite(t *testing.T) {
	suite.Run(t, new(OrchestratorSuite))
}

func (s *OrchestratorSuite) SetupTest() {
	s.store = event.NewMemoryStore()
	s.auditStore = audit.NewMemoryStore()
	s.publisher = &stubPublisher{}
	s.requirements = &stubAgent{
		name:   string(RouteRequirements),
		result: &agents.Result{FormattedComment: "requirements", SuggestedLabels: []string{"bug"}},
	}
	s.codeReview = &stubAgent{
		name:   string(RouteCodeReview),
		result: &agents.Result{FormattedComment: "review", TokensUsed: 128, Raw: json.RawMessage(`{"verdict":"lgtm"}`)},
	}
	s.docs = &stubAgent{
		name:   string(RouteDocs),
		result: &agents.Result{FormattedComment: "docs"},
	}

	s.orch = New(
		s.requirements,
		s.codeReview,
		s.docs,
		s.publisher,
		s.store,
		audit.NewPublisher(s.auditStore),
		metrics.NewWith(prometheus.NewRegistry()),
		slog.New(slog.NewTextHandler(io.Discard, nil)),
	)
}

// seed persists a received event and returns the matching queue message.
func (s *OrchestratorSuite) seed(eventType, action string, payload string) queue.Message {
	e := event.NewEvent("corr-1", eventType, action, "acme/widgets", json.RawMessage(payload))
	s.Require().NoError(s.store.CreateEvent(context.Background(), e))
	return queue.Message{
		EventID:       e.ID,
		CorrelationID: e.CorrelationID,
		EventType:     eventType,
		Action:        action,
		RepoFullName:  "acme/widgets",
		Payload:       json.RawMessage(payload),
	}
}

func (s *OrchestratorSuite) eventStatus(id string) event.Status {
	e, err := s.store.GetEvent(context.Background(), id)
	s.Require().NoError(err)
	return e.Status
}

func (s *OrchestratorSuite) actions(id string) []*event.AgentAction {
	actions, err := s.store.ListActionsByEvent(context.Background(), id)
	s.Require().NoError(err)
	return actions
}

func (s *OrchestratorSuite) TestPullRequestOpenedHappyPath() {
	msg := s.seed("pull_request", "opened",
		`{"action":"opened","pull_request":{"number":42,"title":"add cache","body":"speeds things up"}}`)

	s.Require().NoError(s.orch.Dispatch(context.Background(), msg))

	s.Equal(event.StatusCompleted, s.eventStatus(msg.EventID))
	s.Equal(1, s.codeReview.calls)
	s.Equal(0, s.requirements.calls)
	s.Equal(42, s.codeReview.lastIn.Number)
	s.Equal("add cache", s.codeReview.lastIn.Title)
	s.Equal([]string{"review"}, s.publisher.comments)
	s.Empty(s.publisher.labels)

	actions := s.actions(msg.EventID)
	s.Require().Len(actions, 1)
	a := actions[0]
	s.Equal(string(RouteCodeReview), a.AgentName)
	s.Equal(event.ActionCompleted, a.Status)
	s.True(a.Posted)
	s.Require().NotNil(a.TokensUsed)
	s.Equal(128, *a.TokensUsed)
	s.JSONEq(`{"verdict":"lgtm"}`, string(a.Output))
}

func (s *OrchestratorSuite) TestIssueOpenedAddsLabels() {
	msg := s.seed("issues", "opened",
		`{"action":"opened","issue":{"number":7,"title":"crash on start","body":"stack trace attached"}}`)

	s.Require().NoError(s.orch.Dispatch(context.Background(), msg))

	s.Equal(event.StatusCompleted, s.eventStatus(msg.EventID))
	s.Equal(1, s.requirements.calls)
	s.Equal([]string{"requirements"}, s.publisher.comments)
	s.Require().Len(s.publisher.labels, 1)
	s.Equal([]string{"bug"}, s.publisher.labels[0])
}

func (s *OrchestratorSuite) TestMergedPullRequestRoutesToDocs() {
	msg := s.seed("pull_request", "closed",
		`{"action":"closed","pull_request":{"number":9,"title":"rewrite parser","merged":true}}`)

	s.Require().NoError(s.orch.Dispatch(context.Background(), msg))

	s.Equal(1, s.docs.calls)
	s.Equal(0, s.codeReview.calls)
	s.Equal(event.StatusCompleted, s.eventStatus(msg.EventID))
}

func (s *OrchestratorSuite) TestHandlerFailureFinalizesFailed() {
	s.codeReview.err = errors.New("model unavailable")
	msg := s.seed("pull_request", "opened",
		`{"action":"opened","pull_request":{"number":42,"title":"add cache"}}`)

	s.Require().NoError(s.orch.Dispatch(context.Background(), msg))

	s.Equal(event.StatusFailed, s.eventStatus(msg.EventID))
	s.Empty(s.publisher.comments)

	actions := s.actions(msg.EventID)
	s.Require().Len(actions, 1)
	s.Equal(event.ActionError, actions[0].Status)
	s.False(actions[0].Posted)
	s.Contains(actions[0].ErrorMessage, "model unavailable")
}

func (s *OrchestratorSuite) TestPublishFailureFinalizesFailed() {
	s.publisher.commentErr = errors.New("provider 502")
	msg := s.seed("pull_request", "opened",
		`{"action":"opened","pull_request":{"number":42,"title":"add cache"}}`)

	s.Require().NoError(s.orch.Dispatch(context.Background(), msg))

	s.Equal(event.StatusFailed, s.eventStatus(msg.EventID))
	s.Equal(1, s.codeReview.calls)

	actions := s.actions(msg.EventID)
	s.Require().Len(actions, 1)
	s.Equal(event.ActionError, actions[0].Status)
	s.False(actions[0].Posted)
}

func (s *OrchestratorSuite) TestLabelFailureFinalizesFailed() {
	s.publisher.labelErr = errors.New("provider 502")
	msg := s.seed("issues", "opened",
		`{"action":"opened","issue":{"number":7,"title":"crash"}}`)

	s.Require().NoError(s.orch.Dispatch(context.Background(), msg))

	s.Equal(event.StatusFailed, s.eventStatus(msg.EventID))
	actions := s.actions(msg.EventID)
	s.Require().Len(actions, 1)
	s.False(actions[0].Posted)
}

func (s *OrchestratorSuite) TestUnknownRouteFinalizesWithoutAction() {
	msg := s.seed("push", "unknown", `{"ref":"refs/heads/main"}`)

	s.Require().NoError(s.orch.Dispatch(context.Background(), msg))

	s.Equal(event.StatusCompleted, s.eventStatus(msg.EventID))
	s.Empty(s.actions(msg.EventID))
	s.Equal(0, s.requirements.calls+s.codeReview.calls+s.docs.calls)
	s.Empty(s.publisher.comments)
}

func (s *OrchestratorSuite) TestDuplicateOfFinalizedEventIsDropped() {
	msg := s.seed("pull_request", "opened",
		`{"action":"opened","pull_request":{"number":42,"title":"add cache"}}`)
	s.Require().NoError(s.store.FinalizeEvent(context.Background(), msg.EventID, event.StatusCompleted, time.Now().UTC()))

	s.Require().NoError(s.orch.Dispatch(context.Background(), msg))

	s.Equal(0, s.codeReview.calls)
	s.Empty(s.actions(msg.EventID))
	s.Empty(s.publisher.comments)
}

func (s *OrchestratorSuite) TestUnparsablePayloadFinalizesFailed() {
	// Valid JSON at the ingress but type-mismatched for the handler fields.
	msg := s.seed("pull_request", "opened",
		`{"action":"opened","pull_request":"oops"}`)

	s.Require().NoError(s.orch.Dispatch(context.Background(), msg))

	s.Equal(event.StatusFailed, s.eventStatus(msg.EventID))
	s.Equal(0, s.codeReview.calls)
	s.Empty(s.publisher.comments)

	actions := s.actions(msg.EventID)
	s.Require().Len(actions, 1)
	s.Equal(event.ActionError, actions[0].Status)
	s.False(actions[0].Posted)
	s.Contains(actions[0].ErrorMessage, "parse payload")

	// Terminal status means recovery has nothing left to re-enqueue.
	received, err := s.store.ListEventsByStatus(context.Background(), event.StatusReceived)
	s.Require().NoError(err)
	s.Empty(received)
}

func (s *OrchestratorSuite) TestUnparsableUnroutablePayloadCompletes() {
	msg := s.seed("push", "unknown", `{"ref":`)

	s.Require().NoError(s.orch.Dispatch(context.Background(), msg))

	s.Equal(event.StatusCompleted, s.eventStatus(msg.EventID))
	s.Empty(s.actions(msg.EventID))
}

func (s *OrchestratorSuite) TestAuditEntryWrittenOnFinalize() {
	msg := s.seed("issues", "opened",
		`{"action":"opened","issue":{"number":7,"title":"crash"}}`)

	s.Require().NoError(s.orch.Dispatch(context.Background(), msg))

	entries, err := s.auditStore.ListByCorrelation(context.Background(), msg.CorrelationID)
	s.Require().NoError(err)
	s.Require().Len(entries, 1)
	s.Equal("event finalized", entries[0].Message)
}

func TestResolve(t *testing.T) {
	cases := []struct {
		name      string
		eventType string
		action    string
		merged    bool
		want      Route
	}{
		{"issue opened", "issues", "opened", false, RouteRequirements},
		{"issue closed", "issues", "closed", false, RouteUnknown},
		{"pr opened", "pull_request", "opened", false, RouteCodeReview},
		{"pr merged", "pull_request", "closed", true, RouteDocs},
		{"pr closed unmerged", "pull_request", "closed", false, RouteUnknown},
		{"pr synchronized", "pull_request", "synchronize", false, RouteUnknown},
		{"push", "push", "", false, RouteUnknown},
		{"empty", "", "", false, RouteUnknown},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Resolve(tc.eventType, tc.action, tc.merged); got != tc.want {
				t.Fatalf("Resolve(%q, %q, %v) = %q, want %q", tc.eventType, tc.action, tc.merged, got, tc.want)
			}
		})
	}
}
