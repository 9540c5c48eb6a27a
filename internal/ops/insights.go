package ops

import (
	"context"
	"database/sql"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/hpungsan/salon/internal/config"
	"github.com/hpungsan/salon/internal/db"
	"github.com/hpungsan/salon/internal/discussion"
)

// topicWithContributions is one consistent read of a topic and its contributions.
type topicWithContributions struct {
	topic    *discussion.Topic
	contribs []discussion.Contribution
}

func loadTopicContributions(ctx context.Context, database *sql.DB, cfg *config.Config, topicID string) (topicWithContributions, error) {
	return read(ctx, cfg, func(ctx context.Context) (topicWithContributions, error) {
		t, err := db.GetTopic(ctx, database, topicID)
		if err != nil {
			return topicWithContributions{}, err
		}
		contribs, err := db.ListContributions(ctx, database, topicID)
		if err != nil {
			return topicWithContributions{}, err
		}
		return topicWithContributions{topic: t, contribs: contribs}, nil
	})
}

// ExtractInsights runs the extractor over every contribution of a topic and
// stores the result, replacing insights from any earlier extraction.
func ExtractInsights(ctx context.Context, database *sql.DB, cfg *config.Config, extractor *discussion.Extractor, input TopicInput) ([]discussion.Insight, error) {
	topicID, err := requireID("topic_id", input.TopicID)
	if err != nil {
		return nil, err
	}
	if extractor == nil {
		extractor = discussion.NewExtractor(nil)
	}

	loaded, err := loadTopicContributions(ctx, database, cfg, topicID)
	if err != nil {
		return nil, err
	}

	insights := extractor.Extract(topicID, loaded.contribs)
	now := time.Now().Unix()
	for i := range insights {
		if insights[i].ID, err = newID(); err != nil {
			return nil, err
		}
		insights[i].CreatedAt = now
	}

	sctx, cancel := storeCtx(ctx, cfg)
	defer cancel()
	err = db.WithTx(sctx, database, func(tx *sql.Tx) error {
		return db.ReplaceInsights(sctx, tx, topicID, insights)
	})
	if err != nil {
		return nil, err
	}

	log.Info().Str("topic_id", topicID).Int("insights", len(insights)).Msg("insights extracted")
	return insights, nil
}

// ListInsights returns a topic's stored insights.
func ListInsights(ctx context.Context, database *sql.DB, cfg *config.Config, input TopicInput) ([]discussion.Insight, error) {
	topicID, err := requireID("topic_id", input.TopicID)
	if err != nil {
		return nil, err
	}
	return read(ctx, cfg, func(ctx context.Context) ([]discussion.Insight, error) {
		if _, err := db.GetTopic(ctx, database, topicID); err != nil {
			return nil, err
		}
		return db.ListInsights(ctx, database, topicID)
	})
}

// SummarizeTopic returns the topic's phase, contribution counts per phase and
// per contributor, and insight count.
func SummarizeTopic(ctx context.Context, database *sql.DB, cfg *config.Config, input TopicInput) (*discussion.Summary, error) {
	topicID, err := requireID("topic_id", input.TopicID)
	if err != nil {
		return nil, err
	}
	loaded, err := loadTopicContributions(ctx, database, cfg, topicID)
	if err != nil {
		return nil, err
	}
	count, err := read(ctx, cfg, func(ctx context.Context) (int, error) {
		return db.CountInsights(ctx, database, topicID)
	})
	if err != nil {
		return nil, err
	}
	s := discussion.Summarize(loaded.topic, loaded.contribs, count)
	return &s, nil
}
