package tasks

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hpungsan/salon/internal/config"
	"github.com/hpungsan/salon/internal/db"
	"github.com/hpungsan/salon/internal/discussion"
	"github.com/hpungsan/salon/internal/errors"
	"github.com/hpungsan/salon/internal/ops"
	"github.com/hpungsan/salon/internal/persona"
)

type echoParams struct {
	Value string `json:"value"`
}

func (p echoParams) Validate() error {
	if p.Value == "" {
		return errors.NewInvalidInput("value is required")
	}
	return nil
}

func newTestManager(t *testing.T, workers int) *Manager {
	t.Helper()
	m := NewManager(workers)
	t.Cleanup(m.Close)
	m.Register("echo", HandlerFunc[echoParams](func(ctx context.Context, p echoParams, progress Progress) (any, error) {
		progress(50)
		return p.Value, nil
	}))
	return m
}

// blocking registers a kind whose tasks wait until released or cancelled.
func blocking(m *Manager, started chan<- string, release <-chan struct{}) {
	m.Register("block", HandlerFunc[echoParams](func(ctx context.Context, p echoParams, progress Progress) (any, error) {
		started <- p.Value
		progress(30)
		select {
		case <-release:
			return p.Value, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}))
}

func waitTerminal(t *testing.T, m *Manager, id string) Task {
	t.Helper()
	var task Task
	require.Eventually(t, func() bool {
		var err error
		task, err = m.Poll(id)
		require.NoError(t, err)
		return task.Status.Terminal()
	}, 5*time.Second, 5*time.Millisecond)
	return task
}

func raw(t *testing.T, v any) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}

func TestSubmit_RunsToDone(t *testing.T) {
	m := newTestManager(t, 2)

	id, err := m.Submit("echo", raw(t, echoParams{Value: "hi"}))
	require.NoError(t, err)
	require.NotEmpty(t, id)

	task := waitTerminal(t, m, id)
	require.Equal(t, StatusDone, task.Status)
	require.Equal(t, 100, task.Progress)
	require.Equal(t, "hi", task.Result)
	require.Equal(t, "echo", task.Kind)
	require.NotZero(t, task.FinishedAt)
	require.Empty(t, task.Error)
}

func TestSubmit_Rejects(t *testing.T) {
	m := newTestManager(t, 1)

	tests := []struct {
		name   string
		kind   string
		params json.RawMessage
	}{
		{"unknown kind", "nope", nil},
		{"malformed params", "echo", json.RawMessage(`{"value":`)},
		{"wrong type", "echo", json.RawMessage(`{"value":3}`)},
		{"failed validation", "echo", json.RawMessage(`{}`)},
		{"null params", "echo", json.RawMessage(`null`)},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := m.Submit(tc.kind, tc.params)
			require.True(t, errors.Is(err, errors.ErrInvalidInput), "got %v", err)
		})
	}
	require.Empty(t, m.List())
}

func TestSubmit_AfterClose(t *testing.T) {
	m := NewManager(1)
	m.Register("echo", HandlerFunc[echoParams](func(ctx context.Context, p echoParams, progress Progress) (any, error) {
		return nil, nil
	}))
	m.Close()

	_, err := m.Submit("echo", raw(t, echoParams{Value: "x"}))
	require.True(t, errors.Is(err, errors.ErrPreconditionFailed), "got %v", err)
}

func TestFailedTaskKeepsError(t *testing.T) {
	m := newTestManager(t, 1)
	m.Register("fail", HandlerFunc[echoParams](func(ctx context.Context, p echoParams, progress Progress) (any, error) {
		return nil, errors.NewNotFound("topic", p.Value)
	}))

	id, err := m.Submit("fail", raw(t, echoParams{Value: "t1"}))
	require.NoError(t, err)
	task := waitTerminal(t, m, id)
	require.Equal(t, StatusFailed, task.Status)
	require.Contains(t, task.Error, "t1")
}

func TestPoll_Unknown(t *testing.T) {
	m := newTestManager(t, 1)
	_, err := m.Poll("missing")
	require.True(t, errors.Is(err, errors.ErrNotFound))
}

func TestCancel(t *testing.T) {
	m := newTestManager(t, 1)
	started := make(chan string, 4)
	release := make(chan struct{})
	blocking(m, started, release)

	running, err := m.Submit("block", raw(t, echoParams{Value: "a"}))
	require.NoError(t, err)
	require.Equal(t, "a", <-started)

	// One worker: the second task waits on the first.
	pending, err := m.Submit("block", raw(t, echoParams{Value: "b"}))
	require.NoError(t, err)
	task, err := m.Poll(pending)
	require.NoError(t, err)
	require.Equal(t, StatusPending, task.Status)

	require.True(t, m.Cancel(pending))
	task, err = m.Poll(pending)
	require.NoError(t, err)
	require.Equal(t, StatusCancelled, task.Status)

	task, err = m.Poll(running)
	require.NoError(t, err)
	require.Equal(t, StatusRunning, task.Status)
	require.Equal(t, 30, task.Progress)

	require.True(t, m.Cancel(running))
	task = waitTerminal(t, m, running)
	require.Equal(t, StatusCancelled, task.Status)

	require.False(t, m.Cancel(running), "terminal task")
	require.False(t, m.Cancel("missing"), "unknown task")

	m.Wait()
	select {
	case v := <-started:
		t.Fatalf("cancelled pending task ran: %s", v)
	default:
	}
}

func TestWorkerLimit(t *testing.T) {
	m := newTestManager(t, 2)
	var active, peak atomic.Int32
	release := make(chan struct{})
	m.Register("count", HandlerFunc[echoParams](func(ctx context.Context, p echoParams, progress Progress) (any, error) {
		n := active.Add(1)
		defer active.Add(-1)
		for {
			old := peak.Load()
			if n <= old || peak.CompareAndSwap(old, n) {
				break
			}
		}
		<-release
		return nil, nil
	}))

	ids := make([]string, 5)
	for i := range ids {
		var err error
		ids[i], err = m.Submit("count", raw(t, echoParams{Value: "x"}))
		require.NoError(t, err)
	}
	require.Eventually(t, func() bool { return active.Load() == 2 }, 5*time.Second, 5*time.Millisecond)
	close(release)
	m.Wait()

	require.Equal(t, int32(2), peak.Load())
	for _, id := range ids {
		task, err := m.Poll(id)
		require.NoError(t, err)
		require.Equal(t, StatusDone, task.Status)
	}
}

func TestList_OldestFirst(t *testing.T) {
	m := newTestManager(t, 1)
	var ids []string
	for _, v := range []string{"a", "b", "c"} {
		id, err := m.Submit("echo", raw(t, echoParams{Value: v}))
		require.NoError(t, err)
		ids = append(ids, id)
	}
	m.Wait()

	list := m.List()
	require.Len(t, list, 3)
	for i, task := range list {
		require.Equal(t, ids[i], task.ID)
	}
	require.Equal(t, []string{"echo"}, m.Kinds())
}

func TestNewManager_MinimumOneWorker(t *testing.T) {
	m := NewManager(0)
	defer m.Close()
	require.Equal(t, 1, m.Workers())
}

func setupDeps(t *testing.T) (*Manager, Deps) {
	t.Helper()
	database, err := db.Init(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	catalog, err := persona.LoadCatalog("")
	require.NoError(t, err)

	deps := Deps{
		DB:         database,
		Config:     config.DefaultConfig(),
		Discussion: ops.Discussion{Catalog: catalog},
	}
	m := NewManager(2)
	t.Cleanup(m.Close)
	RegisterDefaults(m, deps)
	return m, deps
}

func TestCreateTopics(t *testing.T) {
	m, deps := setupDeps(t)
	ctx := context.Background()

	id, err := m.Submit(KindCreateTopics, raw(t, CreateTopicsParams{Topics: []ops.CreateTopicInput{
		{Title: "Dark matter", Category: "natural_science"},
		{Title: "Civic trust"},
	}}))
	require.NoError(t, err)
	task := waitTerminal(t, m, id)
	require.Equal(t, StatusDone, task.Status, task.Error)

	res, ok := task.Result.(*CreateTopicsResult)
	require.True(t, ok)
	require.Len(t, res.Created, 2)
	topic, err := ops.GetTopic(ctx, deps.DB, deps.Config, ops.TopicInput{TopicID: res.Created[1]})
	require.NoError(t, err)
	require.Equal(t, "Civic trust", topic.Title)
	require.Equal(t, discussion.PhaseSetup, topic.Phase)

	_, err = m.Submit(KindCreateTopics, raw(t, CreateTopicsParams{Topics: []ops.CreateTopicInput{{Title: " "}}}))
	require.True(t, errors.Is(err, errors.ErrInvalidInput))
	_, err = m.Submit(KindCreateTopics, json.RawMessage(`{"topics":[]}`))
	require.True(t, errors.Is(err, errors.ErrInvalidInput))
}

func TestRunDiscussionThenExtract(t *testing.T) {
	m, deps := setupDeps(t)
	ctx := context.Background()

	topic, err := ops.CreateTopic(ctx, deps.DB, deps.Config, ops.CreateTopicInput{
		Title: "Gravity waves", Category: "natural_science", MaxParticipants: 2, MaxRounds: 2,
	})
	require.NoError(t, err)

	id, err := m.Submit(KindRunDiscussion, raw(t, map[string]string{"topic_id": topic.ID}))
	require.NoError(t, err)
	task := waitTerminal(t, m, id)
	require.Equal(t, StatusDone, task.Status, task.Error)
	out, ok := task.Result.(*ops.RunDiscussionOutput)
	require.True(t, ok)
	require.Equal(t, 4, out.Contributions)
	require.Equal(t, discussion.PhaseConclusion, out.Phase)

	id, err = m.Submit(KindExtractInsights, raw(t, ExtractInsightsParams{TopicIDs: []string{topic.ID, "missing"}}))
	require.NoError(t, err)
	task = waitTerminal(t, m, id)
	require.Equal(t, StatusDone, task.Status, task.Error)
	res, ok := task.Result.(*ExtractInsightsResult)
	require.True(t, ok)
	require.Equal(t, 2, res.TopicCount)
	require.Equal(t, out.Insights, res.PerTopic[topic.ID])
	require.Equal(t, out.Insights, res.InsightsCount)
	require.Contains(t, res.Failed, "missing")

	_, err = m.Submit(KindRunDiscussion, json.RawMessage(`{}`))
	require.True(t, errors.Is(err, errors.ErrInvalidInput))
	_, err = m.Submit(KindExtractInsights, json.RawMessage(`{"topic_ids":[]}`))
	require.True(t, errors.Is(err, errors.ErrInvalidInput))
}
