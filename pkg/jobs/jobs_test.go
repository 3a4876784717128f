package jobs

import (
	"context"
	"errors"
	"testing"

	"cloud.google.com/go/pubsub"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spawn-mcp/adshipper/pkg/docstore"
	pipeerrors "github.com/spawn-mcp/adshipper/pkg/errors"
	"github.com/spawn-mcp/adshipper/pkg/logger"
	"github.com/spawn-mcp/adshipper/pkg/types"
)

func newStore(t *testing.T) (*Store, *docstore.Memory) {
	t.Helper()
	docs := docstore.NewMemory()
	return NewStore(docs, "pipeline_jobs", 2, logger.NewNop()), docs
}

func TestStore_LifecycleIsMonotonic(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()
	var seen []types.JobStatus
	s.OnTransition(func(st types.JobStatus) { seen = append(seen, st) })

	job, err := s.Create(ctx, "camp-1", types.Row{ID: "row-1", Link: "https://cdn.test/a.mp4"})
	require.NoError(t, err)
	assert.Equal(t, types.JobQueued, job.Status)

	require.NoError(t, s.Transition(ctx, job.ID, types.JobStaging))
	require.NoError(t, s.Transition(ctx, job.ID, types.JobDrafting))
	err = s.Transition(ctx, job.ID, types.JobAnalyzing)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	require.NoError(t, s.Complete(ctx, job.ID, types.RowResult{
		AdID:           "ad_1",
		AnalysisCached: true,
		Copy:           &types.CopyResult{Review: types.ReviewLog{Revised: true}},
	}))
	got, err := s.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, types.JobCompleted, got.Status)
	assert.Equal(t, "ad_1", got.AdID)
	assert.True(t, got.AnalysisCached)
	assert.True(t, got.CopyRevised)

	assert.ErrorIs(t, s.Transition(ctx, job.ID, types.JobFailed), ErrInvalidTransition)
	assert.Equal(t, []types.JobStatus{types.JobQueued, types.JobStaging, types.JobDrafting, types.JobCompleted}, seen)
}

func TestStore_RetryBound(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()
	transient := pipeerrors.New(pipeerrors.ErrRateLimit, "slow down")

	job, err := s.Create(ctx, "g", types.Row{ID: "r"})
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		require.NoError(t, s.Transition(ctx, job.ID, types.JobStaging))
		retry, err := s.Fail(ctx, job.ID, transient)
		require.NoError(t, err)
		require.True(t, retry, "attempt %d", i)
		require.NoError(t, s.Requeue(ctx, job.ID))
	}

	require.NoError(t, s.Transition(ctx, job.ID, types.JobStaging))
	retry, err := s.Fail(ctx, job.ID, transient)
	require.NoError(t, err)
	assert.False(t, retry)
	assert.ErrorIs(t, s.Requeue(ctx, job.ID), ErrRetriesExhausted)

	got, err := s.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.RetryCount)
	assert.Equal(t, types.JobFailed, got.Status)
	assert.True(t, got.Terminal(s.MaxRetries()))
	assert.Contains(t, got.LastError, "slow down")
}

func TestStore_PermanentErrorsAreNotRetried(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()
	job, err := s.Create(ctx, "g", types.Row{ID: "r"})
	require.NoError(t, err)

	retry, err := s.Fail(ctx, job.ID, pipeerrors.Validation("bad link"))
	require.NoError(t, err)
	assert.False(t, retry)
}

func TestStore_FindByRowAndList(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()

	a, err := s.Create(ctx, "g1", types.Row{ID: "row-a"})
	require.NoError(t, err)
	_, err = s.Create(ctx, "g2", types.Row{ID: "row-a"})
	require.NoError(t, err)
	require.NoError(t, s.Skip(ctx, a.ID, "already shipped"))

	found, err := s.FindByRow(ctx, "g1", "row-a")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, a.ID, found.ID)

	missing, err := s.FindByRow(ctx, "g1", "row-z")
	require.NoError(t, err)
	assert.Nil(t, missing)

	queued, err := s.ListByStatus(ctx, types.JobQueued)
	require.NoError(t, err)
	require.Len(t, queued, 1)
	assert.Equal(t, "g2", queued[0].GroupID)
}

func TestStore_PropagatesBackendErrors(t *testing.T) {
	s, docs := newStore(t)
	docs.SetFault(func(op, collection string) error {
		if op == "set" {
			return errors.New("firestore unavailable")
		}
		return nil
	})
	_, err := s.Create(context.Background(), "g", types.Row{ID: "r"})
	assert.ErrorContains(t, err, "firestore unavailable")

	_, err = s.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, docstore.ErrNotFound)
}

func TestDecode(t *testing.T) {
	data, err := Encode(Message{JobID: "j1", GroupID: "g", Attempt: 2})
	require.NoError(t, err)
	msg, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, Message{JobID: "j1", GroupID: "g", Attempt: 2}, msg)

	_, err = Decode([]byte(`{"groupId":"g"}`))
	assert.True(t, pipeerrors.IsCode(err, pipeerrors.ErrMalformedResponse))
	_, err = Decode([]byte(`not json`))
	assert.True(t, pipeerrors.IsCode(err, pipeerrors.ErrMalformedResponse))
}

type fakePubSub struct {
	published []*pubsub.Message
	topic     string
	inbound   []*pubsub.Message
}

func (f *fakePubSub) PublishMessage(ctx context.Context, topic string, data []byte, attrs map[string]string) error {
	f.topic = topic
	f.published = append(f.published, &pubsub.Message{Data: data, Attributes: attrs})
	return nil
}

func (f *fakePubSub) SubscribeToTopic(ctx context.Context, sub string, max int, cb func(context.Context, *pubsub.Message)) error {
	for _, m := range f.inbound {
		cb(ctx, m)
	}
	return nil
}

func TestPubSubQueue(t *testing.T) {
	client := &fakePubSub{}
	q := NewPubSubQueue(client, "jobs", "jobs-worker", 4, logger.NewNop())
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, Message{JobID: "j1", Attempt: 1}))
	require.Len(t, client.published, 1)
	assert.Equal(t, "jobs", client.topic)
	assert.Equal(t, "j1", client.published[0].Attributes["job_id"])
	assert.Equal(t, "1", client.published[0].Attributes["attempt"])

	client.inbound = []*pubsub.Message{
		{ID: "m1", Data: []byte("garbage")},
		client.published[0],
	}
	var handled []string
	require.NoError(t, q.Receive(ctx, func(ctx context.Context, msg Message) error {
		handled = append(handled, msg.JobID)
		return nil
	}))
	assert.Equal(t, []string{"j1"}, handled)
}

func TestMemoryQueueDrains(t *testing.T) {
	q := NewMemoryQueue(4)
	ctx := context.Background()
	require.NoError(t, q.Enqueue(ctx, Message{JobID: "a"}))
	require.NoError(t, q.Enqueue(ctx, Message{JobID: "b"}))

	var got []string
	require.NoError(t, q.Receive(ctx, func(ctx context.Context, msg Message) error {
		got = append(got, msg.JobID)
		if msg.JobID == "a" {
			return q.Enqueue(ctx, Message{JobID: "a-retry"})
		}
		return nil
	}))
	assert.Equal(t, []string{"a", "b", "a-retry"}, got)
	assert.Zero(t, q.Len())
}
