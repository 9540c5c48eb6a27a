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
	"github.com/hpungsan/salon/internal/persona"
)

// AssignParticipantsInput contains parameters for the AssignParticipants operation.
type AssignParticipantsInput struct {
	TopicID        string            `json:"topic_id"`
	ParticipantIDs []string          `json:"participant_ids,omitempty"` // persona ids, used first
	AutoFill       bool              `json:"auto_fill,omitempty"`       // top up from the catalog
	Roles          map[string]string `json:"roles,omitempty"`           // persona id -> role
}

// AssignParticipants resolves explicit persona ids, optionally tops up from
// the catalog by category, and replaces the topic's participant set. The
// first participant becomes the lector.
func AssignParticipants(ctx context.Context, database *sql.DB, cfg *config.Config, catalog persona.Catalog, input AssignParticipantsInput) (*discussion.Topic, error) {
	topicID, err := requireID("topic_id", input.TopicID)
	if err != nil {
		return nil, err
	}
	for id, role := range input.Roles {
		if !discussion.ValidRole(role) {
			return nil, errors.NewInvalidInput(fmt.Sprintf("invalid role %q for %s; must be one of: %s",
				role, id, strings.Join(discussion.Roles, ", ")))
		}
	}

	topic, err := read(ctx, cfg, func(ctx context.Context) (*discussion.Topic, error) {
		return db.GetTopic(ctx, database, topicID)
	})
	if err != nil {
		return nil, err
	}
	if err := requireSetup(topic); err != nil {
		return nil, err
	}
	input.ParticipantIDs = uniqueIDs(input.ParticipantIDs)
	if len(input.ParticipantIDs) > topic.MaxParticipants {
		return nil, errors.NewInvalidInput(fmt.Sprintf("%d participants requested but topic allows %d",
			len(input.ParticipantIDs), topic.MaxParticipants))
	}

	chosen, err := resolveParticipants(ctx, catalog, topic, input)
	if err != nil {
		return nil, err
	}
	if len(chosen) == 0 {
		return nil, errors.NewPreconditionFailed("no participants could be resolved", map[string]any{
			"topic_id": topicID,
			"category": topic.Category,
		})
	}

	participants := make([]discussion.Participant, 0, len(chosen))
	for i, p := range chosen {
		role := input.Roles[p.ID]
		if role == "" {
			role = discussion.DefaultRole
			if i == 0 {
				role = discussion.RoleLector
			}
		}
		participants = append(participants, discussion.Participant{
			ID:        p.ID,
			Name:      p.Name,
			Domain:    p.Domain,
			Expertise: p.Expertise,
			Role:      role,
			Scores:    p.Scores,
		})
	}
	now := time.Now().Unix()

	sctx, cancel := storeCtx(ctx, cfg)
	defer cancel()
	err = db.WithTx(sctx, database, func(tx *sql.Tx) error {
		current, err := db.GetTopic(sctx, tx, topicID)
		if err != nil {
			return err
		}
		if err := requireSetup(current); err != nil {
			return err
		}
		return db.ReplaceParticipants(sctx, tx, topicID, participants, participants[0].ID, now)
	})
	if err != nil {
		return nil, err
	}

	topic.Participants = participants
	topic.LectorID = participants[0].ID
	topic.UpdatedAt = now

	log.Info().Str("topic_id", topicID).Int("participants", len(participants)).Str("lector", participants[0].Name).
		Msg("participants assigned")
	return topic, nil
}

// resolveParticipants returns explicit personas first, then catalog
// candidates when auto-filling, skipping names already chosen.
func resolveParticipants(ctx context.Context, catalog persona.Catalog, topic *discussion.Topic, input AssignParticipantsInput) ([]persona.Persona, error) {
	var chosen []persona.Persona
	seenID := map[string]bool{}
	seenName := map[string]bool{}
	add := func(p persona.Persona) {
		chosen = append(chosen, p)
		seenID[p.ID] = true
		seenName[p.Name] = true
	}

	for _, id := range input.ParticipantIDs {
		if catalog == nil {
			return nil, errors.NewNotFound("persona", id)
		}
		p, ok, err := catalog.Get(ctx, id)
		if err != nil {
			return nil, errors.NewInternal(err)
		}
		if !ok {
			return nil, errors.NewNotFound("persona", id)
		}
		add(p)
	}

	if !input.AutoFill || catalog == nil || len(chosen) >= topic.MaxParticipants {
		return chosen, nil
	}
	candidates, err := catalog.FindCandidates(ctx, topic.Category)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	for _, p := range candidates {
		if len(chosen) >= topic.MaxParticipants {
			break
		}
		if seenID[p.ID] || seenName[p.Name] {
			continue
		}
		add(p)
	}
	return chosen, nil
}

// uniqueIDs trims ids and drops blanks and repeats, keeping first-seen order.
func uniqueIDs(raw []string) []string {
	seen := make(map[string]bool, len(raw))
	out := make([]string, 0, len(raw))
	for _, id := range raw {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

func requireSetup(t *discussion.Topic) error {
	if t.Phase != discussion.PhaseSetup {
		return errors.NewPreconditionFailed("participants can only be assigned during setup", map[string]any{
			"topic_id": t.ID,
			"phase":    string(t.Phase),
		})
	}
	return nil
}
