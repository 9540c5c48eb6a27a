package tasks

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/hpungsan/salon/internal/config"
	"github.com/hpungsan/salon/internal/errors"
	"github.com/hpungsan/salon/internal/ops"
)

// Task kinds.
const (
	KindCreateTopics    = "create_topics"
	KindExtractInsights = "extract_insights"
	KindRunDiscussion   = "run_discussion"
)

// CreateTopicsParams are the params of create_topics.
type CreateTopicsParams struct {
	Topics []ops.CreateTopicInput `json:"topics"`
}

// Validate implements the submit-time check.
func (p CreateTopicsParams) Validate() error {
	if len(p.Topics) == 0 {
		return errors.NewInvalidInput("topics must not be empty")
	}
	for i, t := range p.Topics {
		if strings.TrimSpace(t.Title) == "" {
			return errors.NewInvalidInput(fmt.Sprintf("topics[%d]: title is required", i))
		}
	}
	return nil
}

// CreateTopicsResult is the result of create_topics.
type CreateTopicsResult struct {
	Created []string `json:"created"`
}

// ExtractInsightsParams are the params of extract_insights.
type ExtractInsightsParams struct {
	TopicIDs []string `json:"topic_ids"`
}

// Validate implements the submit-time check.
func (p ExtractInsightsParams) Validate() error {
	if len(p.TopicIDs) == 0 {
		return errors.NewInvalidInput("topic_ids must not be empty")
	}
	return nil
}

// ExtractInsightsResult is the result of extract_insights. Failed maps topic
// id to error message; one failing topic does not stop the others.
type ExtractInsightsResult struct {
	TopicCount    int               `json:"topic_count"`
	InsightsCount int               `json:"insights_count"`
	PerTopic      map[string]int    `json:"per_topic"`
	Failed        map[string]string `json:"failed,omitempty"`
}

// RunDiscussionParams are the params of run_discussion.
type RunDiscussionParams struct {
	ops.RunDiscussionInput
}

// Validate implements the submit-time check.
func (p RunDiscussionParams) Validate() error {
	if strings.TrimSpace(p.TopicID) == "" {
		return errors.NewInvalidInput("topic_id is required")
	}
	return nil
}

// Deps is what the built-in kinds run against.
type Deps struct {
	DB         *sql.DB
	Config     *config.Config
	Discussion ops.Discussion
}

// RegisterDefaults installs create_topics, extract_insights and run_discussion.
func RegisterDefaults(m *Manager, deps Deps) {
	m.Register(KindCreateTopics, HandlerFunc[CreateTopicsParams](func(ctx context.Context, p CreateTopicsParams, progress Progress) (any, error) {
		return createTopics(ctx, deps, p, progress)
	}))
	m.Register(KindExtractInsights, HandlerFunc[ExtractInsightsParams](func(ctx context.Context, p ExtractInsightsParams, progress Progress) (any, error) {
		return extractInsights(ctx, deps, m.Workers(), p, progress)
	}))
	m.Register(KindRunDiscussion, HandlerFunc[RunDiscussionParams](func(ctx context.Context, p RunDiscussionParams, progress Progress) (any, error) {
		return ops.RunDiscussion(ctx, deps.DB, deps.Config, deps.Discussion, p.RunDiscussionInput, progress)
	}))
}

// createTopics creates topics in order. Topics created before a failure or
// cancellation stay created.
func createTopics(ctx context.Context, deps Deps, p CreateTopicsParams, progress Progress) (*CreateTopicsResult, error) {
	res := &CreateTopicsResult{Created: make([]string, 0, len(p.Topics))}
	for i, in := range p.Topics {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		t, err := ops.CreateTopic(ctx, deps.DB, deps.Config, in)
		if err != nil {
			return res, fmt.Errorf("topics[%d]: %w", i, err)
		}
		res.Created = append(res.Created, t.ID)
		progress((i + 1) * 100 / len(p.Topics))
	}
	return res, nil
}

// extractInsights fans out over topics, at most workers at a time.
func extractInsights(ctx context.Context, deps Deps, workers int, p ExtractInsightsParams, progress Progress) (*ExtractInsightsResult, error) {
	res := &ExtractInsightsResult{
		TopicCount: len(p.TopicIDs),
		PerTopic:   make(map[string]int, len(p.TopicIDs)),
	}
	var (
		mu   sync.Mutex
		done int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, raw := range p.TopicIDs {
		id := strings.TrimSpace(raw)
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			insights, err := ops.ExtractInsights(gctx, deps.DB, deps.Config, deps.Discussion.Extractor, ops.TopicInput{TopicID: id})

			mu.Lock()
			defer mu.Unlock()
			done++
			progress(done * 100 / len(p.TopicIDs))
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				if res.Failed == nil {
					res.Failed = make(map[string]string)
				}
				res.Failed[id] = err.Error()
				return nil
			}
			res.PerTopic[id] = len(insights)
			res.InsightsCount += len(insights)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return res, err
	}
	return res, nil
}
