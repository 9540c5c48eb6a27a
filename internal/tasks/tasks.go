// Package tasks runs bulk operations in the background. Callers submit a
// kind and JSON params, then poll or cancel by task id. Records live in
// process memory only.
package tasks

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"

	"github.com/hpungsan/salon/internal/errors"
)

// Status is the lifecycle state of a task.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusDone      Status = "done"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether the status is final.
func (s Status) Terminal() bool {
	return s == StatusDone || s == StatusFailed || s == StatusCancelled
}

// Task is a point-in-time view of one submitted task.
type Task struct {
	ID         string `json:"id"`
	Kind       string `json:"kind"`
	Status     Status `json:"status"`
	Progress   int    `json:"progress"`
	Result     any    `json:"result,omitempty"`
	Error      string `json:"error,omitempty"`
	CreatedAt  int64  `json:"created_at"`
	StartedAt  int64  `json:"started_at,omitempty"`
	FinishedAt int64  `json:"finished_at,omitempty"`
}

// Progress receives completion percentages in [0,100].
type Progress func(pct int)

// Handler decodes params at submit time and returns the work to run.
type Handler interface {
	prepare(raw json.RawMessage) (func(ctx context.Context, progress Progress) (any, error), error)
}

// HandlerFunc is a Handler over typed params. Params implementing
// Validate() error are validated before the task is accepted.
type HandlerFunc[P any] func(ctx context.Context, params P, progress Progress) (any, error)

func (f HandlerFunc[P]) prepare(raw json.RawMessage) (func(context.Context, Progress) (any, error), error) {
	var params P
	if len(raw) > 0 && string(raw) != "null" {
		if err := json.Unmarshal(raw, &params); err != nil {
			return nil, errors.NewInvalidInput(fmt.Sprintf("invalid params: %v", err))
		}
	}
	if v, ok := any(params).(interface{ Validate() error }); ok {
		if err := v.Validate(); err != nil {
			return nil, err
		}
	}
	return func(ctx context.Context, progress Progress) (any, error) {
		return f(ctx, params, progress)
	}, nil
}

type entry struct {
	task   Task
	cancel context.CancelFunc
}

// Manager owns the task table and the worker limit.
type Manager struct {
	mu       sync.Mutex
	tasks    map[string]*entry
	handlers map[string]Handler
	sem      *semaphore.Weighted
	workers  int

	base context.Context
	stop context.CancelFunc
	wg   sync.WaitGroup
}

// NewManager returns a manager running at most workers tasks at once
// (minimum 1).
func NewManager(workers int) *Manager {
	if workers < 1 {
		workers = 1
	}
	base, stop := context.WithCancel(context.Background())
	return &Manager{
		tasks:    make(map[string]*entry),
		handlers: make(map[string]Handler),
		sem:      semaphore.NewWeighted(int64(workers)),
		workers:  workers,
		base:     base,
		stop:     stop,
	}
}

// Workers is the concurrency limit.
func (m *Manager) Workers() int { return m.workers }

// Register installs the handler for kind, replacing any earlier one.
func (m *Manager) Register(kind string, h Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[kind] = h
}

// Kinds returns the registered kinds, sorted.
func (m *Manager) Kinds() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	kinds := make([]string, 0, len(m.handlers))
	for k := range m.handlers {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// Submit validates params and queues a task. It returns the task id at once.
func (m *Manager) Submit(kind string, params json.RawMessage) (string, error) {
	kind = strings.TrimSpace(kind)
	m.mu.Lock()
	h, ok := m.handlers[kind]
	m.mu.Unlock()
	if !ok {
		return "", errors.NewInvalidInput(fmt.Sprintf("unknown task kind %q; must be one of: %s",
			kind, strings.Join(m.Kinds(), ", ")))
	}
	run, err := h.prepare(params)
	if err != nil {
		return "", err
	}
	if err := m.base.Err(); err != nil {
		return "", errors.NewPreconditionFailed("task manager is closed", nil)
	}

	id := ulid.Make().String()
	ctx, cancel := context.WithCancel(m.base)
	e := &entry{
		task: Task{
			ID:        id,
			Kind:      kind,
			Status:    StatusPending,
			CreatedAt: time.Now().Unix(),
		},
		cancel: cancel,
	}
	m.mu.Lock()
	m.tasks[id] = e
	m.mu.Unlock()

	log.Info().Str("task_id", id).Str("kind", kind).Msg("task submitted")

	m.wg.Add(1)
	go m.run(ctx, e, run)
	return id, nil
}

func (m *Manager) run(ctx context.Context, e *entry, work func(context.Context, Progress) (any, error)) {
	defer m.wg.Done()
	defer e.cancel()

	if err := m.sem.Acquire(ctx, 1); err != nil {
		m.finish(e, nil, err)
		return
	}
	defer m.sem.Release(1)

	m.mu.Lock()
	if e.task.Status.Terminal() {
		m.mu.Unlock()
		return
	}
	e.task.Status = StatusRunning
	e.task.StartedAt = time.Now().Unix()
	m.mu.Unlock()
	log.Debug().Str("task_id", e.task.ID).Str("kind", e.task.Kind).Msg("task running")

	result, err := work(ctx, func(pct int) { m.setProgress(e, pct) })
	// Store errors caused by cancellation count as cancellation.
	if ctx.Err() != nil {
		err = ctx.Err()
	}
	m.finish(e, result, err)
}

func (m *Manager) setProgress(e *entry, pct int) {
	pct = max(0, min(100, pct))
	m.mu.Lock()
	defer m.mu.Unlock()
	if e.task.Status == StatusRunning && pct > e.task.Progress {
		e.task.Progress = pct
	}
}

func (m *Manager) finish(e *entry, result any, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e.task.Status.Terminal() {
		return
	}
	e.task.FinishedAt = time.Now().Unix()
	e.task.Result = result
	switch {
	case err == nil:
		e.task.Status = StatusDone
		e.task.Progress = 100
	case e.task.Status == StatusPending || stderrors.Is(err, context.Canceled):
		e.task.Status = StatusCancelled
	default:
		e.task.Status = StatusFailed
		e.task.Error = err.Error()
	}

	ev := log.Info()
	if e.task.Status == StatusFailed {
		ev = log.Warn().Str("error", e.task.Error)
	}
	ev.Str("task_id", e.task.ID).Str("kind", e.task.Kind).Str("status", string(e.task.Status)).Msg("task finished")
}

// Poll returns a snapshot of one task.
func (m *Manager) Poll(id string) (Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.tasks[id]
	if !ok {
		return Task{}, errors.NewNotFound("task", id)
	}
	return e.task, nil
}

// Cancel requests cancellation. It returns false for unknown tasks and tasks
// already finished. Writes a running task has made are kept.
func (m *Manager) Cancel(id string) bool {
	m.mu.Lock()
	e, ok := m.tasks[id]
	if !ok || e.task.Status.Terminal() {
		m.mu.Unlock()
		return false
	}
	if e.task.Status == StatusPending {
		e.task.Status = StatusCancelled
		e.task.FinishedAt = time.Now().Unix()
	}
	m.mu.Unlock()

	e.cancel()
	log.Info().Str("task_id", id).Msg("task cancel requested")
	return true
}

// List returns every task, oldest first.
func (m *Manager) List() []Task {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Task, 0, len(m.tasks))
	for _, e := range m.tasks {
		out = append(out, e.task)
	}
	// ULIDs sort by creation time.
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Close cancels every unfinished task and waits for their goroutines.
func (m *Manager) Close() {
	m.stop()
	m.wg.Wait()
}

// Wait blocks until every submitted task has finished.
func (m *Manager) Wait() {
	m.wg.Wait()
}
