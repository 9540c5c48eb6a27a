package ops

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/hpungsan/salon/internal/config"
	"github.com/hpungsan/salon/internal/db"
	"github.com/hpungsan/salon/internal/discussion"
	"github.com/hpungsan/salon/internal/errors"
)

// CreateTopicInput contains parameters for the CreateTopic operation.
type CreateTopicInput struct {
	Title           string `json:"title"`
	Description     string `json:"description,omitempty"`
	Category        string `json:"category,omitempty"`         // default: interdisciplinary
	MaxParticipants int    `json:"max_participants,omitempty"` // default: 5
	MaxRounds       int    `json:"max_rounds,omitempty"`       // default: 3
}

// CreateTopic creates a topic in the SETUP phase.
func CreateTopic(ctx context.Context, database *sql.DB, cfg *config.Config, input CreateTopicInput) (*discussion.Topic, error) {
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, errors.NewInvalidInput("title is required")
	}
	if input.MaxParticipants < 0 {
		return nil, errors.NewInvalidInput("max_participants must be at least 1")
	}
	if input.MaxParticipants == 0 {
		input.MaxParticipants = discussion.DefaultMaxParticipants
	}
	if input.MaxRounds < 0 {
		return nil, errors.NewInvalidInput("max_rounds must not be negative")
	}
	if input.MaxRounds == 0 {
		input.MaxRounds = discussion.DefaultMaxRounds
	}
	category := strings.ToLower(strings.TrimSpace(input.Category))
	if category == "" {
		category = discussion.DefaultCategory
	}

	id, err := newID()
	if err != nil {
		return nil, err
	}
	now := time.Now().Unix()
	t := &discussion.Topic{
		ID:              id,
		Title:           title,
		Description:     strings.TrimSpace(input.Description),
		Category:        category,
		MaxParticipants: input.MaxParticipants,
		MaxRounds:       input.MaxRounds,
		Phase:           discussion.PhaseSetup,
		Participants:    []discussion.Participant{},
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	sctx, cancel := storeCtx(ctx, cfg)
	defer cancel()
	if err := db.InsertTopic(sctx, database, t); err != nil {
		return nil, err
	}

	log.Info().Str("topic_id", t.ID).Str("category", t.Category).Msg("topic created")
	return t, nil
}

// GetTopic returns a topic with its participants.
func GetTopic(ctx context.Context, database *sql.DB, cfg *config.Config, input TopicInput) (*discussion.Topic, error) {
	id, err := requireID("topic_id", input.TopicID)
	if err != nil {
		return nil, err
	}
	return read(ctx, cfg, func(ctx context.Context) (*discussion.Topic, error) {
		return db.GetTopic(ctx, database, id)
	})
}

// ListTopicsInput contains parameters for the ListTopics operation.
type ListTopicsInput struct {
	Phase  string `json:"phase,omitempty"`
	Limit  int    `json:"limit,omitempty"`
	Offset int    `json:"offset,omitempty"`
}

// ListTopicsOutput contains the result of the ListTopics operation.
type ListTopicsOutput struct {
	Items      []discussion.Topic `json:"items"`
	Pagination Pagination         `json:"pagination"`
}

// ListTopics lists topics newest first.
func ListTopics(ctx context.Context, database *sql.DB, cfg *config.Config, input ListTopicsInput) (*ListTopicsOutput, error) {
	var phase discussion.Phase
	if strings.TrimSpace(input.Phase) != "" {
		p, err := discussion.ParsePhase(input.Phase)
		if err != nil {
			return nil, errors.NewInvalidInput(err.Error())
		}
		phase = p
	}
	limit, offset := normalizePage(input.Limit, input.Offset, DefaultListLimit, MaxListLimit)

	type page struct {
		items []discussion.Topic
		total int
	}
	res, err := read(ctx, cfg, func(ctx context.Context) (page, error) {
		items, total, err := db.ListTopics(ctx, database, phase, limit, offset)
		return page{items, total}, err
	})
	if err != nil {
		return nil, err
	}

	return &ListTopicsOutput{
		Items:      res.items,
		Pagination: newPagination(limit, offset, len(res.items), res.total),
	}, nil
}

// DeleteTopicOutput contains the result of the DeleteTopic operation.
type DeleteTopicOutput struct {
	TopicID string `json:"topic_id"`
	Deleted bool   `json:"deleted"`
}

// DeleteTopic removes a topic with its participants, contributions and
// insights. Capsules generated from it are kept.
func DeleteTopic(ctx context.Context, database *sql.DB, cfg *config.Config, input TopicInput) (*DeleteTopicOutput, error) {
	id, err := requireID("topic_id", input.TopicID)
	if err != nil {
		return nil, err
	}

	sctx, cancel := storeCtx(ctx, cfg)
	defer cancel()
	if err := db.DeleteTopic(sctx, database, id); err != nil {
		return nil, err
	}

	log.Info().Str("topic_id", id).Msg("topic deleted")
	return &DeleteTopicOutput{TopicID: id, Deleted: true}, nil
}
