package ops

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/hpungsan/salon/internal/config"
	"github.com/hpungsan/salon/internal/db"
	"github.com/hpungsan/salon/internal/discussion"
	"github.com/hpungsan/salon/internal/errors"
)

// RecordContributionInput contains parameters for the RecordContribution operation.
type RecordContributionInput struct {
	TopicID       string `json:"topic_id"`
	ContributorID string `json:"contributor_id"`
	Text          string `json:"text"`
	Role          string `json:"role,omitempty"`  // default: the participant's role
	Round         int    `json:"round,omitempty"` // default: max(1, current round)
}

// RecordContribution appends an immutable contribution stamped with the
// topic's current phase and the contributor's score snapshot. A round past
// the topic's current round advances the counter.
func RecordContribution(ctx context.Context, database *sql.DB, cfg *config.Config, input RecordContributionInput) (*discussion.Contribution, error) {
	topicID, err := requireID("topic_id", input.TopicID)
	if err != nil {
		return nil, err
	}
	contributorID, err := requireID("contributor_id", input.ContributorID)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(input.Text) == "" {
		return nil, errors.NewInvalidInput("text is required")
	}
	if input.Round < 0 {
		return nil, errors.NewInvalidInput("round must be at least 1")
	}
	role := strings.TrimSpace(input.Role)
	if role != "" && !discussion.ValidRole(role) {
		return nil, errors.NewInvalidInput(fmt.Sprintf("invalid role %q; must be one of: %s", role, strings.Join(discussion.Roles, ", ")))
	}

	id, err := newID()
	if err != nil {
		return nil, err
	}

	var c *discussion.Contribution
	sctx, cancel := storeCtx(ctx, cfg)
	defer cancel()
	err = db.WithTx(sctx, database, func(tx *sql.Tx) error {
		t, err := db.GetTopic(sctx, tx, topicID)
		if err != nil {
			return err
		}
		if !t.Phase.AcceptsContributions() {
			return errors.NewPreconditionFailed("topic is not accepting contributions", map[string]any{
				"topic_id": topicID,
				"phase":    string(t.Phase),
			})
		}
		p, ok := t.Participant(contributorID)
		if !ok {
			return errors.NewNotFound("participant", contributorID)
		}

		round := input.Round
		if round == 0 {
			round = max(1, t.CurrentRound)
		}
		if round < t.CurrentRound {
			return errors.NewInvalidInput(fmt.Sprintf("round %d is behind the current round %d", round, t.CurrentRound))
		}
		if t.MaxRounds > 0 && round > t.MaxRounds {
			return errors.NewInvalidInput(fmt.Sprintf("round %d exceeds max_rounds %d", round, t.MaxRounds))
		}

		if role == "" {
			role = p.Role
		}
		now := time.Now().Unix()
		c = &discussion.Contribution{
			ID:              id,
			TopicID:         topicID,
			ContributorID:   p.ID,
			ContributorName: p.Name,
			Role:            role,
			Round:           round,
			Phase:           t.Phase,
			Text:            input.Text,
			Scores:          p.Scores,
			CreatedAt:       now,
		}
		if err := db.InsertContribution(sctx, tx, c); err != nil {
			return err
		}
		if round > t.CurrentRound {
			return db.UpdateTopicRound(sctx, tx, topicID, round, now)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Debug().Str("topic_id", topicID).Str("contributor", c.ContributorName).Str("phase", string(c.Phase)).
		Int("round", c.Round).Msg("contribution recorded")
	return c, nil
}

// ListContributions returns a topic's contributions in recorded order.
func ListContributions(ctx context.Context, database *sql.DB, cfg *config.Config, input TopicInput) ([]discussion.Contribution, error) {
	topicID, err := requireID("topic_id", input.TopicID)
	if err != nil {
		return nil, err
	}
	return read(ctx, cfg, func(ctx context.Context) ([]discussion.Contribution, error) {
		if _, err := db.GetTopic(ctx, database, topicID); err != nil {
			return nil, err
		}
		return db.ListContributions(ctx, database, topicID)
	})
}
