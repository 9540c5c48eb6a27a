package ops

import (
	"context"
	"database/sql"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/hpungsan/salon/internal/config"
	"github.com/hpungsan/salon/internal/db"
	"github.com/hpungsan/salon/internal/discussion"
	"github.com/hpungsan/salon/internal/errors"
)

// PhaseOutput reports a topic's phase after a transition.
type PhaseOutput struct {
	TopicID  string           `json:"topic_id"`
	Previous discussion.Phase `json:"previous_phase"`
	Phase    discussion.Phase `json:"phase"`
	Lector   string           `json:"lector,omitempty"`
	Changed  bool             `json:"changed"`
}

// StartTopic moves a topic from SETUP to INTRODUCTION. It needs at least one
// participant.
func StartTopic(ctx context.Context, database *sql.DB, cfg *config.Config, input TopicInput) (*PhaseOutput, error) {
	topicID, err := requireID("topic_id", input.TopicID)
	if err != nil {
		return nil, err
	}

	var out *PhaseOutput
	sctx, cancel := storeCtx(ctx, cfg)
	defer cancel()
	err = db.WithTx(sctx, database, func(tx *sql.Tx) error {
		t, err := db.GetTopic(sctx, tx, topicID)
		if err != nil {
			return err
		}
		if t.Phase != discussion.PhaseSetup {
			return errors.NewPreconditionFailed("topic has already started", map[string]any{
				"topic_id": topicID,
				"phase":    string(t.Phase),
			})
		}
		if err := requireParticipants(t); err != nil {
			return err
		}
		if err := db.UpdateTopicPhase(sctx, tx, topicID, discussion.PhaseIntroduction, time.Now().Unix()); err != nil {
			return err
		}
		out = &PhaseOutput{
			TopicID:  topicID,
			Previous: t.Phase,
			Phase:    discussion.PhaseIntroduction,
			Lector:   lectorName(t),
			Changed:  true,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Info().Str("topic_id", topicID).Str("lector", out.Lector).Msg("topic started")
	return out, nil
}

// AdvancePhase moves a topic to the next phase. CLOSED is terminal: advancing
// it returns CLOSED with Changed false and writes nothing.
func AdvancePhase(ctx context.Context, database *sql.DB, cfg *config.Config, input TopicInput) (*PhaseOutput, error) {
	topicID, err := requireID("topic_id", input.TopicID)
	if err != nil {
		return nil, err
	}

	var out *PhaseOutput
	sctx, cancel := storeCtx(ctx, cfg)
	defer cancel()
	err = db.WithTx(sctx, database, func(tx *sql.Tx) error {
		t, err := db.GetTopic(sctx, tx, topicID)
		if err != nil {
			return err
		}
		out = &PhaseOutput{TopicID: topicID, Previous: t.Phase, Phase: t.Phase, Lector: lectorName(t)}
		if t.Phase == discussion.PhaseClosed {
			return nil
		}
		if t.Phase == discussion.PhaseSetup {
			if err := requireParticipants(t); err != nil {
				return err
			}
		}
		next := t.Phase.Next()
		if err := db.UpdateTopicPhase(sctx, tx, topicID, next, time.Now().Unix()); err != nil {
			return err
		}
		out.Phase = next
		out.Changed = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	if out.Changed {
		log.Info().Str("topic_id", topicID).Str("from", string(out.Previous)).Str("to", string(out.Phase)).
			Msg("phase advanced")
	}
	return out, nil
}

func requireParticipants(t *discussion.Topic) error {
	if len(t.Participants) == 0 {
		return errors.NewPreconditionFailed("topic has no participants", map[string]any{"topic_id": t.ID})
	}
	return nil
}

func lectorName(t *discussion.Topic) string {
	if p, ok := t.Participant(t.LectorID); ok {
		return p.Name
	}
	return ""
}
