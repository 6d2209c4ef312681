//go:build integration

package event_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"repogator/internal/event"
	"repogator/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *event.PostgresStore
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.postgres = containers.NewPostgresContainer(s.T())
	s.Require().NoError(event.Migrate(context.Background(), s.postgres.DB))
	s.store = event.NewPostgresStore(s.postgres.DB)
}

func (s *PostgresStoreSuite) SetupTest() {
	err := s.postgres.TruncateTables(context.Background(), "agent_actions", "webhook_events")
	s.Require().NoError(err)
}

func (s *PostgresStoreSuite) create(correlationID string, age time.Duration) *event.Event {
	e := event.NewEvent(correlationID, "issues", "opened", "acme/widgets", json.RawMessage(`{"action":"opened"}`))
	e.CreatedAt = time.Now().UTC().Add(-age)
	s.Require().NoError(s.store.CreateEvent(context.Background(), e))
	return e
}

func (s *PostgresStoreSuite) TestCreateAndGetRoundTrip() {
	ctx := context.Background()
	e := s.create("corr-1", 0)

	got, err := s.store.GetEvent(ctx, e.ID)
	s.Require().NoError(err)
	s.Equal(e.ID, got.ID)
	s.Equal("corr-1", got.CorrelationID)
	s.Equal(event.StatusReceived, got.Status)
	s.JSONEq(`{"action":"opened"}`, string(got.Payload))
	s.Nil(got.ProcessedAt)

	_, err = s.store.GetEvent(ctx, "missing")
	s.ErrorIs(err, event.ErrNotFound)
}

func (s *PostgresStoreSuite) TestStatusTransitions() {
	ctx := context.Background()
	e := s.create("corr-1", 0)

	s.Require().NoError(s.store.MarkProcessing(ctx, e.ID))
	s.Require().NoError(s.store.MarkProcessing(ctx, e.ID))

	now := time.Now().UTC()
	s.Require().NoError(s.store.FinalizeEvent(ctx, e.ID, event.StatusCompleted, now))

	got, err := s.store.GetEvent(ctx, e.ID)
	s.Require().NoError(err)
	s.Equal(event.StatusCompleted, got.Status)
	s.Require().NotNil(got.ProcessedAt)
	s.WithinDuration(now, *got.ProcessedAt, time.Second)

	s.ErrorIs(s.store.MarkProcessing(ctx, e.ID), event.ErrFinalized)
	s.ErrorIs(s.store.FinalizeEvent(ctx, e.ID, event.StatusFailed, time.Now().UTC()), event.ErrFinalized)

	s.ErrorIs(s.store.MarkProcessing(ctx, "missing"), event.ErrNotFound)
}

func (s *PostgresStoreSuite) TestListEventsByStatus() {
	ctx := context.Background()

	older := s.create("corr-old", time.Hour)
	newer := s.create("corr-new", 0)
	done := s.create("corr-done", 0)
	s.Require().NoError(s.store.FinalizeEvent(ctx, done.ID, event.StatusCompleted, time.Now().UTC()))

	received, err := s.store.ListEventsByStatus(ctx, event.StatusReceived)
	s.Require().NoError(err)
	s.Require().Len(received, 2)
	s.Equal(older.ID, received[0].ID)
	s.Equal(newer.ID, received[1].ID)
}

func (s *PostgresStoreSuite) TestListStaleProcessing() {
	ctx := context.Background()

	stale := s.create("corr-stale", time.Hour)
	s.Require().NoError(s.store.MarkProcessing(ctx, stale.ID))

	fresh := s.create("corr-fresh", 0)
	s.Require().NoError(s.store.MarkProcessing(ctx, fresh.ID))

	got, err := s.store.ListStaleProcessing(ctx, time.Now().UTC().Add(-30*time.Minute))
	s.Require().NoError(err)
	s.Require().Len(got, 1)
	s.Equal(stale.ID, got[0].ID)
}

func (s *PostgresStoreSuite) TestActionsRoundTrip() {
	ctx := context.Background()
	e := s.create("corr-1", 0)

	now := time.Now().UTC()
	tokens := 256
	action := &event.AgentAction{
		ID:            "act-1",
		CorrelationID: "corr-1",
		EventID:       e.ID,
		AgentName:     "code_review_agent",
		Input:         json.RawMessage(`{"action":"opened"}`),
		Output:        json.RawMessage(`{"verdict":"lgtm"}`),
		Posted:        true,
		TokensUsed:    &tokens,
		Status:        event.ActionCompleted,
		CreatedAt:     now,
		CompletedAt:   &now,
	}
	s.Require().NoError(s.store.CreateAction(ctx, action))

	s.Require().NoError(s.store.CreateAction(ctx, &event.AgentAction{
		ID:            "act-2",
		CorrelationID: "corr-1",
		EventID:       e.ID,
		AgentName:     "code_review_agent",
		Input:         json.RawMessage(`{}`),
		Status:        event.ActionError,
		ErrorMessage:  "provider 502",
		CreatedAt:     now.Add(time.Second),
	}))

	actions, err := s.store.ListActionsByEvent(ctx, e.ID)
	s.Require().NoError(err)
	s.Require().Len(actions, 2)

	first := actions[0]
	s.Equal("act-1", first.ID)
	s.True(first.Posted)
	s.Require().NotNil(first.TokensUsed)
	s.Equal(256, *first.TokensUsed)
	s.JSONEq(`{"verdict":"lgtm"}`, string(first.Output))
	s.Empty(first.ErrorMessage)

	second := actions[1]
	s.Equal(event.ActionError, second.Status)
	s.Equal("provider 502", second.ErrorMessage)
	s.Nil(second.Output)
	s.Nil(second.TokensUsed)
}

func (s *PostgresStoreSuite) TestDeleteTerminalBeforeCascades() {
	ctx := context.Background()

	oldDone := s.create("corr-done", 2*time.Hour)
	s.Require().NoError(s.store.FinalizeEvent(ctx, oldDone.ID, event.StatusCompleted, time.Now().UTC()))
	s.Require().NoError(s.store.CreateAction(ctx, &event.AgentAction{
		ID:        "act-old",
		EventID:   oldDone.ID,
		AgentName: "docs_agent",
		Input:     json.RawMessage(`{}`),
		Status:    event.ActionCompleted,
		CreatedAt: time.Now().UTC(),
	}))

	oldLive := s.create("corr-live", 2*time.Hour)
	recentDone := s.create("corr-recent", 0)
	s.Require().NoError(s.store.FinalizeEvent(ctx, recentDone.ID, event.StatusFailed, time.Now().UTC()))

	n, err := s.store.DeleteTerminalBefore(ctx, time.Now().UTC().Add(-time.Hour))
	s.Require().NoError(err)
	s.Equal(int64(1), n)

	_, err = s.store.GetEvent(ctx, oldDone.ID)
	s.ErrorIs(err, event.ErrNotFound)

	actions, err := s.store.ListActionsByEvent(ctx, oldDone.ID)
	s.Require().NoError(err)
	s.Empty(actions)

	_, err = s.store.GetEvent(ctx, oldLive.ID)
	s.NoError(err)
	_, err = s.store.GetEvent(ctx, recentDone.ID)
	s.NoError(err)
}
