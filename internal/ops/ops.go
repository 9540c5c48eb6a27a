package ops

import (
	"context"
	"crypto/rand"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/hpungsan/salon/internal/config"
	"github.com/hpungsan/salon/internal/errors"
	"github.com/hpungsan/salon/internal/retry"
)

// Pagination limits
const (
	DefaultListLimit   = 20
	MaxListLimit       = 100
	DefaultSearchLimit = 10
	MaxSearchLimit     = 100
)

// Pagination contains pagination metadata for list operations.
type Pagination struct {
	Limit   int  `json:"limit"`
	Offset  int  `json:"offset"`
	HasMore bool `json:"has_more"`
	Total   int  `json:"total"`
}

// TopicInput addresses a single topic.
type TopicInput struct {
	TopicID string `json:"topic_id"`
}

// newPagination fills HasMore from the page size and total.
func newPagination(limit, offset, returned, total int) Pagination {
	return Pagination{
		Limit:   limit,
		Offset:  offset,
		HasMore: offset+returned < total,
		Total:   total,
	}
}

// normalizePage applies default and maximum to limit and floors offset at 0.
func normalizePage(limit, offset, def, max int) (int, int) {
	if limit <= 0 {
		limit = def
	}
	if limit > max {
		limit = max
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

// requireID trims an identifier and rejects empty ones.
func requireID(field, value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", errors.NewInvalidInput(field + " is required")
	}
	return value, nil
}

// storeCtx bounds one store round trip by the configured timeout.
func storeCtx(ctx context.Context, cfg *config.Config) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, cfg.StoreTimeout())
}

// read runs a read-only store call with a per-attempt timeout, retrying
// STORAGE_IO failures with backoff. Writes never go through here.
func read[T any](ctx context.Context, cfg *config.Config, op func(context.Context) (T, error)) (T, error) {
	retries := config.DefaultConfig().ReadRetries
	if cfg != nil {
		retries = cfg.ReadRetries
	}
	return retry.Do(ctx, retry.DefaultRetryConfig().WithMaxRetries(retries), func(ctx context.Context) (T, error) {
		attemptCtx, cancel := storeCtx(ctx, cfg)
		defer cancel()
		return op(attemptCtx)
	})
}

// generateULID generates a new ULID.
func generateULID() (string, error) {
	entropy := ulid.Monotonic(rand.Reader, 0)
	id, err := ulid.New(ulid.Timestamp(time.Now()), entropy)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// newID is generateULID with the error mapped to INTERNAL.
func newID() (string, error) {
	id, err := generateULID()
	if err != nil {
		return "", errors.NewInternal(err)
	}
	return id, nil
}
