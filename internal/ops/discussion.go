package ops

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/hpungsan/salon/internal/config"
	"github.com/hpungsan/salon/internal/discussion"
	"github.com/hpungsan/salon/internal/errors"
	"github.com/hpungsan/salon/internal/persona"
)

// RunDiscussionInput contains parameters for the RunDiscussion operation.
type RunDiscussionInput struct {
	TopicID string `json:"topic_id"`
	Prompt  string `json:"prompt,omitempty"` // default: topic title and description
}

// RunDiscussionOutput contains the result of the RunDiscussion operation.
type RunDiscussionOutput struct {
	TopicID       string           `json:"topic_id"`
	Rounds        int              `json:"rounds"`
	Contributions int              `json:"contributions"`
	Insights      int              `json:"insights"`
	Phase         discussion.Phase `json:"phase"`
}

// Discussion bundles what RunDiscussion needs besides the store.
type Discussion struct {
	Catalog   persona.Catalog
	Voices    persona.Voices
	Extractor *discussion.Extractor
}

// RunDiscussion drives a topic through its rounds. A topic still in SETUP
// with no participants is auto-filled from the catalog and started. Each
// round asks every participant's text source for one contribution; the phase
// moves forward after each round and ends at CONCLUSION. Insights are
// extracted at the end.
//
// ctx is checked before every contribution, so a cancelled run leaves the
// contributions recorded so far. progress, if set, receives 0-100.
func RunDiscussion(ctx context.Context, database *sql.DB, cfg *config.Config, deps Discussion, input RunDiscussionInput, progress func(int)) (*RunDiscussionOutput, error) {
	topicID, err := requireID("topic_id", input.TopicID)
	if err != nil {
		return nil, err
	}
	if deps.Voices == nil {
		deps.Voices = persona.ScriptedVoices()
	}
	if progress == nil {
		progress = func(int) {}
	}

	t, err := GetTopic(ctx, database, cfg, TopicInput{TopicID: topicID})
	if err != nil {
		return nil, err
	}
	if t.Phase == discussion.PhaseClosed {
		return nil, errors.NewPreconditionFailed("topic is closed", map[string]any{"topic_id": topicID})
	}
	if t.Phase == discussion.PhaseSetup {
		if len(t.Participants) == 0 {
			if _, err := AssignParticipants(ctx, database, cfg, deps.Catalog, AssignParticipantsInput{
				TopicID:  topicID,
				AutoFill: true,
			}); err != nil {
				return nil, err
			}
		}
		if _, err := StartTopic(ctx, database, cfg, TopicInput{TopicID: topicID}); err != nil {
			return nil, err
		}
		if t, err = GetTopic(ctx, database, cfg, TopicInput{TopicID: topicID}); err != nil {
			return nil, err
		}
	}

	prompt := strings.TrimSpace(input.Prompt)
	if prompt == "" {
		prompt = strings.TrimSpace(t.Title + "\n\n" + t.Description)
	}

	first := max(1, t.CurrentRound)
	last := max(first, t.MaxRounds)
	total := (last - first + 1) * len(t.Participants)
	out := &RunDiscussionOutput{TopicID: topicID, Phase: t.Phase}
	done := 0
	progress(0)

	for round := first; round <= last; round++ {
		for _, p := range t.Participants {
			if err := ctx.Err(); err != nil {
				return out, err
			}
			text, err := deps.Voices.For(personaOf(p)).ProduceText(ctx, roundPrompt(prompt, t, p, round))
			if ctx.Err() != nil {
				return out, ctx.Err()
			}
			if err != nil {
				return out, errors.NewInternal(fmt.Errorf("text source for %s: %w", p.Name, err))
			}
			if strings.TrimSpace(text) == "" {
				log.Warn().Str("topic_id", topicID).Str("contributor", p.Name).Int("round", round).
					Msg("empty contribution skipped")
			} else {
				if _, err := RecordContribution(ctx, database, cfg, RecordContributionInput{
					TopicID:       topicID,
					ContributorID: p.ID,
					Text:          text,
					Round:         round,
				}); err != nil {
					return out, err
				}
				out.Contributions++
			}
			done++
			if total > 0 {
				progress(done * 100 / total)
			}
		}
		out.Rounds++

		// One phase per round, keeping CONCLUSION for the final round.
		for t.Phase.Index() < discussion.PhaseConclusion.Index() {
			if round < last && t.Phase.Next() == discussion.PhaseConclusion {
				break
			}
			res, err := AdvancePhase(ctx, database, cfg, TopicInput{TopicID: topicID})
			if err != nil {
				return out, err
			}
			t.Phase = res.Phase
			if round < last {
				break
			}
		}
		out.Phase = t.Phase
	}

	insights, err := ExtractInsights(ctx, database, cfg, deps.Extractor, TopicInput{TopicID: topicID})
	if err != nil {
		return out, err
	}
	out.Insights = len(insights)
	progress(100)

	log.Info().Str("topic_id", topicID).Int("rounds", out.Rounds).Int("contributions", out.Contributions).
		Int("insights", out.Insights).Msg("discussion finished")
	return out, nil
}

func personaOf(p discussion.Participant) persona.Persona {
	return persona.Persona{
		ID:        p.ID,
		Name:      p.Name,
		Domain:    p.Domain,
		Expertise: p.Expertise,
		Scores:    p.Scores,
	}
}

func roundPrompt(prompt string, t *discussion.Topic, p discussion.Participant, round int) string {
	return fmt.Sprintf("%s\n\nRound %d of %d, phase %s. You are %s, speaking as %s.",
		prompt, round, max(round, t.MaxRounds), t.Phase, p.Name, p.Role)
}
