package ops

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/hpungsan/salon/internal/capsule"
	"github.com/hpungsan/salon/internal/config"
	"github.com/hpungsan/salon/internal/db"
	"github.com/hpungsan/salon/internal/errors"
)

// CreateVersionInput contains parameters for the CreateVersion operation.
type CreateVersionInput struct {
	ID      string `json:"id"`
	Changes string `json:"changes,omitempty"`
	Editor  string `json:"editor,omitempty"`
}

// CreateVersion snapshots the live capsule into a new history row numbered
// one past the highest existing version, and bumps the capsule's version
// counter to match. No other capsule field changes.
func CreateVersion(ctx context.Context, database *sql.DB, cfg *config.Config, input CreateVersionInput) (*capsule.Version, error) {
	id, err := requireID("id", input.ID)
	if err != nil {
		return nil, err
	}

	var v *capsule.Version
	sctx, cancel := storeCtx(ctx, cfg)
	defer cancel()
	err = db.WithTx(sctx, database, func(tx *sql.Tx) error {
		c, err := db.GetCapsule(sctx, tx, id)
		if err != nil {
			return err
		}
		v = &capsule.Version{
			CapsuleID: id,
			Changes:   strings.TrimSpace(input.Changes),
			Editor:    strings.TrimSpace(input.Editor),
			EditedAt:  time.Now().Unix(),
			Snapshot:  c.Snapshot(),
		}
		n, err := db.InsertNextVersion(sctx, tx, v)
		if err != nil {
			return err
		}
		return db.SetCapsuleVersion(sctx, tx, id, n)
	})
	if err != nil {
		return nil, err
	}

	log.Info().Str("capsule_id", id).Int("version", v.Version).Str("editor", v.Editor).Msg("version created")
	return v, nil
}

// VersionHistoryOutput contains the result of the VersionHistory operation.
type VersionHistoryOutput struct {
	ID       string            `json:"id"`
	Current  int               `json:"current_version"`
	Versions []capsule.Version `json:"versions"`
}

// VersionHistory returns a capsule's history rows, newest first.
func VersionHistory(ctx context.Context, database *sql.DB, cfg *config.Config, input CapsuleInput) (*VersionHistoryOutput, error) {
	id, err := requireID("id", input.ID)
	if err != nil {
		return nil, err
	}
	return read(ctx, cfg, func(ctx context.Context) (*VersionHistoryOutput, error) {
		c, err := db.GetCapsule(ctx, database, id)
		if err != nil {
			return nil, err
		}
		versions, err := db.ListVersions(ctx, database, id)
		if err != nil {
			return nil, err
		}
		return &VersionHistoryOutput{ID: id, Current: c.Version, Versions: versions}, nil
	})
}

// RollbackInput contains parameters for the Rollback operation.
type RollbackInput struct {
	ID      string `json:"id"`
	Version int    `json:"version"`
	Editor  string `json:"editor,omitempty"`
}

// Rollback restores the content of an earlier version onto the live capsule
// and records the result as a new version. History is never rewritten.
func Rollback(ctx context.Context, database *sql.DB, cfg *config.Config, input RollbackInput) (*capsule.Capsule, error) {
	id, err := requireID("id", input.ID)
	if err != nil {
		return nil, err
	}
	if input.Version < 1 {
		return nil, errors.NewInvalidInput("version must be at least 1")
	}
	editor := strings.TrimSpace(input.Editor)
	if editor == "" {
		editor = SystemEditor
	}

	var c *capsule.Capsule
	sctx, cancel := storeCtx(ctx, cfg)
	defer cancel()
	err = db.WithTx(sctx, database, func(tx *sql.Tx) error {
		var err error
		c, err = db.GetCapsule(sctx, tx, id)
		if err != nil {
			return err
		}
		target, err := db.GetVersion(sctx, tx, id, input.Version)
		if err != nil {
			return err
		}
		c.Restore(target.Snapshot)
		if err := db.UpsertCapsule(sctx, tx, c); err != nil {
			return err
		}
		v := &capsule.Version{
			CapsuleID: id,
			Changes:   fmt.Sprintf("rollback to version %d", input.Version),
			Editor:    editor,
			EditedAt:  time.Now().Unix(),
			Snapshot:  c.Snapshot(),
		}
		n, err := db.InsertNextVersion(sctx, tx, v)
		if err != nil {
			return err
		}
		c.Version = n
		return db.SetCapsuleVersion(sctx, tx, id, n)
	})
	if err != nil {
		return nil, err
	}

	log.Info().Str("capsule_id", id).Int("restored", input.Version).Int("version", c.Version).Msg("capsule rolled back")
	return c, nil
}
