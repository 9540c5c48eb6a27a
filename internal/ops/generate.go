package ops

import (
	"context"
	"database/sql"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/hpungsan/salon/internal/capsule"
	"github.com/hpungsan/salon/internal/config"
	"github.com/hpungsan/salon/internal/db"
	"github.com/hpungsan/salon/internal/discussion"
	"github.com/hpungsan/salon/internal/errors"
)

// Initial version row written by GenerateCapsule.
const (
	InitialVersionChanges = "initial version"
	SystemEditor          = "system"
)

// GenerateCapsuleOutput contains the result of the GenerateCapsule operation.
type GenerateCapsuleOutput struct {
	Capsule    *capsule.Capsule   `json:"capsule"`
	Evaluation capsule.Evaluation `json:"evaluation"`
}

// GenerateCapsule synthesizes a capsule from a topic's contributions, grades
// it, and stores it together with its first version row in one transaction.
// The topic must have left SETUP.
func GenerateCapsule(ctx context.Context, database *sql.DB, cfg *config.Config, gen *capsule.Generator, input TopicInput) (*GenerateCapsuleOutput, error) {
	topicID, err := requireID("topic_id", input.TopicID)
	if err != nil {
		return nil, err
	}
	if gen == nil {
		gen = capsule.NewGenerator(nil)
	}

	loaded, err := loadTopicContributions(ctx, database, cfg, topicID)
	if err != nil {
		return nil, err
	}
	t := loaded.topic
	if t.Phase == discussion.PhaseSetup {
		return nil, errors.NewPreconditionFailed("topic has not started", map[string]any{
			"topic_id": topicID,
			"phase":    string(t.Phase),
		})
	}

	c := gen.Generate(capsule.GenerateInput{
		TopicID:          t.ID,
		TopicTitle:       t.Title,
		TopicDescription: t.Description,
		Contributions:    discussion.Sources(loaded.contribs),
		Participants:     t.ParticipantNames(),
	})
	if c.ID, err = newID(); err != nil {
		return nil, err
	}
	c.Version = 1

	sctx, cancel := storeCtx(ctx, cfg)
	defer cancel()
	err = db.WithTx(sctx, database, func(tx *sql.Tx) error {
		if err := db.UpsertCapsule(sctx, tx, c); err != nil {
			return err
		}
		v := &capsule.Version{
			CapsuleID: c.ID,
			Changes:   InitialVersionChanges,
			Editor:    SystemEditor,
			EditedAt:  time.Now().Unix(),
			Snapshot:  c.Snapshot(),
		}
		n, err := db.InsertNextVersion(sctx, tx, v)
		if err != nil {
			return err
		}
		c.Version = n
		return db.SetCapsuleVersion(sctx, tx, c.ID, n)
	})
	if err != nil {
		return nil, err
	}

	eval := capsule.Evaluate(c)
	log.Info().Str("topic_id", topicID).Str("capsule_id", c.ID).Float64("quality", c.QualityScore).
		Str("grade", string(c.Grade)).Msg("capsule generated")
	return &GenerateCapsuleOutput{Capsule: c, Evaluation: eval}, nil
}

// CapsuleInput addresses a single capsule.
type CapsuleInput struct {
	ID string `json:"id"`
}

// EvaluateCapsule grades a stored capsule without modifying it.
func EvaluateCapsule(ctx context.Context, database *sql.DB, cfg *config.Config, input CapsuleInput) (*capsule.Evaluation, error) {
	c, err := GetCapsule(ctx, database, cfg, input)
	if err != nil {
		return nil, err
	}
	eval := capsule.Evaluate(c)
	return &eval, nil
}
