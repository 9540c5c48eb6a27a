package ops

import (
	"context"
	"database/sql"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/hpungsan/salon/internal/capsule"
	"github.com/hpungsan/salon/internal/config"
	"github.com/hpungsan/salon/internal/db"
	"github.com/hpungsan/salon/internal/errors"
	"github.com/hpungsan/salon/internal/lexicon"
)

// SaveCapsule inserts or replaces a capsule by id. A missing id gets a new
// ULID, a missing status becomes draft, dimension scores are clamped and
// quality and grade are recomputed from dimensions and confidence. Saving
// never writes a version row.
func SaveCapsule(ctx context.Context, database *sql.DB, cfg *config.Config, input capsule.Capsule) (*capsule.Capsule, error) {
	c := input
	c.ID = strings.TrimSpace(c.ID)
	if strings.TrimSpace(c.Title) == "" {
		return nil, errors.NewInvalidInput("title is required")
	}
	if c.Confidence < 0 || c.Confidence > 1 {
		return nil, errors.NewInvalidInput("confidence must be between 0 and 1")
	}
	if c.Status == "" {
		c.Status = capsule.StatusDraft
	}
	status, err := capsule.ParseStatus(string(c.Status))
	if err != nil {
		return nil, errors.NewInvalidInput(err.Error())
	}
	c.Status = status
	if strings.TrimSpace(c.Category) == "" {
		c.Category = lexicon.DefaultCategory
	}
	if c.ID == "" {
		if c.ID, err = newID(); err != nil {
			return nil, err
		}
	}
	c.Score()

	sctx, cancel := storeCtx(ctx, cfg)
	defer cancel()
	if err := db.UpsertCapsule(sctx, database, &c); err != nil {
		return nil, err
	}

	log.Debug().Str("capsule_id", c.ID).Int("version", c.Version).Msg("capsule saved")
	return &c, nil
}

// GetCapsule loads a capsule by id.
func GetCapsule(ctx context.Context, database *sql.DB, cfg *config.Config, input CapsuleInput) (*capsule.Capsule, error) {
	id, err := requireID("id", input.ID)
	if err != nil {
		return nil, err
	}
	return read(ctx, cfg, func(ctx context.Context) (*capsule.Capsule, error) {
		return db.GetCapsule(ctx, database, id)
	})
}

// ListCapsulesInput contains parameters for the ListCapsules operation.
type ListCapsulesInput struct {
	Status     string  `json:"status,omitempty"`
	Category   string  `json:"category,omitempty"`
	MinQuality float64 `json:"min_quality,omitempty"`
	Limit      int     `json:"limit,omitempty"`
	Offset     int     `json:"offset,omitempty"`
}

// ListCapsulesOutput contains the result of the ListCapsules operation.
type ListCapsulesOutput struct {
	Items      []capsule.CapsuleSummary `json:"items"`
	Pagination Pagination               `json:"pagination"`
}

// ListCapsules returns capsule summaries by quality desc, then newest first.
func ListCapsules(ctx context.Context, database *sql.DB, cfg *config.Config, input ListCapsulesInput) (*ListCapsulesOutput, error) {
	f := db.ListFilter{
		Category:   strings.TrimSpace(input.Category),
		MinQuality: input.MinQuality,
	}
	if strings.TrimSpace(input.Status) != "" {
		status, err := capsule.ParseStatus(input.Status)
		if err != nil {
			return nil, errors.NewInvalidInput(err.Error())
		}
		f.Status = status
	}
	if input.MinQuality < 0 || input.MinQuality > 100 {
		return nil, errors.NewInvalidInput("min_quality must be between 0 and 100")
	}
	f.Limit, f.Offset = normalizePage(input.Limit, input.Offset, DefaultListLimit, MaxListLimit)

	type page struct {
		items []capsule.Capsule
		total int
	}
	res, err := read(ctx, cfg, func(ctx context.Context) (page, error) {
		items, total, err := db.ListCapsules(ctx, database, f)
		return page{items, total}, err
	})
	if err != nil {
		return nil, err
	}

	return &ListCapsulesOutput{
		Items:      summaries(res.items),
		Pagination: newPagination(f.Limit, f.Offset, len(res.items), res.total),
	}, nil
}

// SearchCapsulesInput contains parameters for the SearchCapsules operation.
type SearchCapsulesInput struct {
	Query string `json:"query"`
	Limit int    `json:"limit,omitempty"`
}

// SearchCapsulesOutput contains the result of the SearchCapsules operation.
type SearchCapsulesOutput struct {
	Query string                   `json:"query"`
	Items []capsule.CapsuleSummary `json:"items"`
}

// SearchCapsules runs a full-text search. Every query term must match.
func SearchCapsules(ctx context.Context, database *sql.DB, cfg *config.Config, input SearchCapsulesInput) (*SearchCapsulesOutput, error) {
	query := strings.TrimSpace(input.Query)
	if query == "" {
		return nil, errors.NewInvalidInput("query is required")
	}
	limit, _ := normalizePage(input.Limit, 0, DefaultSearchLimit, MaxSearchLimit)

	items, err := read(ctx, cfg, func(ctx context.Context) ([]capsule.Capsule, error) {
		return db.SearchCapsules(ctx, database, query, limit)
	})
	if err != nil {
		return nil, err
	}
	return &SearchCapsulesOutput{Query: query, Items: summaries(items)}, nil
}

// UpdateStatusInput contains parameters for the UpdateStatus operation.
type UpdateStatusInput struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// UpdateStatusOutput contains the result of the UpdateStatus operation.
type UpdateStatusOutput struct {
	ID        string         `json:"id"`
	Status    capsule.Status `json:"status"`
	UpdatedAt int64          `json:"updated_at"`
}

// UpdateStatus changes a capsule's review status. The version counter is untouched.
func UpdateStatus(ctx context.Context, database *sql.DB, cfg *config.Config, input UpdateStatusInput) (*UpdateStatusOutput, error) {
	id, err := requireID("id", input.ID)
	if err != nil {
		return nil, err
	}
	status, err := capsule.ParseStatus(input.Status)
	if err != nil {
		return nil, errors.NewInvalidInput(err.Error())
	}

	sctx, cancel := storeCtx(ctx, cfg)
	defer cancel()
	updatedAt, err := db.UpdateCapsuleStatus(sctx, database, id, status)
	if err != nil {
		return nil, err
	}

	log.Info().Str("capsule_id", id).Str("status", string(status)).Msg("capsule status updated")
	return &UpdateStatusOutput{ID: id, Status: status, UpdatedAt: updatedAt}, nil
}

// Stats returns aggregate counts over the capsule store.
func Stats(ctx context.Context, database *sql.DB, cfg *config.Config) (*db.Stats, error) {
	return read(ctx, cfg, func(ctx context.Context) (*db.Stats, error) {
		return db.CapsuleStats(ctx, database)
	})
}

func summaries(items []capsule.Capsule) []capsule.CapsuleSummary {
	out := make([]capsule.CapsuleSummary, 0, len(items))
	for i := range items {
		out = append(out, items[i].ToSummary())
	}
	return out
}
