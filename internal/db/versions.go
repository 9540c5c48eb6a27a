package db

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hpungsan/salon/internal/capsule"
	"github.com/hpungsan/salon/internal/errors"
)

// InsertNextVersion appends a history row numbered one past the capsule's
// highest existing version and returns that number. The MAX read and the
// insert happen in a single statement, and (capsule_id, version) is the
// primary key, so two writers can never be handed the same number.
func InsertNextVersion(ctx context.Context, q Querier, v *capsule.Version) (int, error) {
	snapshot, err := encodeJSON(v.Snapshot)
	if err != nil {
		return 0, err
	}
	var version int
	err = q.QueryRowContext(ctx, `
		INSERT INTO capsule_versions (capsule_id, version, changes, editor, edited_at, snapshot_json)
		SELECT ?, COALESCE(MAX(version), 0) + 1, ?, ?, ?, ?
		FROM capsule_versions
		WHERE capsule_id = ?
		RETURNING version
	`, v.CapsuleID, v.Changes, v.Editor, v.EditedAt, snapshot, v.CapsuleID).Scan(&version)
	if err != nil {
		return 0, storeErr(err)
	}
	v.Version = version
	return version, nil
}

// ListVersions returns a capsule's history, newest first.
func ListVersions(ctx context.Context, q Querier, capsuleID string) ([]capsule.Version, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT capsule_id, version, changes, editor, edited_at, snapshot_json
		FROM capsule_versions
		WHERE capsule_id = ?
		ORDER BY version DESC
	`, capsuleID)
	if err != nil {
		return nil, storeErr(err)
	}
	defer rows.Close()

	out := []capsule.Version{}
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, storeErr(err)
		}
		out = append(out, *v)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr(err)
	}
	return out, nil
}

// GetVersion loads one history row.
func GetVersion(ctx context.Context, q Querier, capsuleID string, version int) (*capsule.Version, error) {
	row := q.QueryRowContext(ctx, `
		SELECT capsule_id, version, changes, editor, edited_at, snapshot_json
		FROM capsule_versions
		WHERE capsule_id = ? AND version = ?
	`, capsuleID, version)
	v, err := scanVersion(row)
	if err != nil {
		return nil, notFoundOr(err, "version", fmt.Sprintf("%s@%d", capsuleID, version))
	}
	return v, nil
}

func scanVersion(row scanner) (*capsule.Version, error) {
	var (
		v        capsule.Version
		snapshot string
	)
	if err := row.Scan(&v.CapsuleID, &v.Version, &v.Changes, &v.Editor, &v.EditedAt, &snapshot); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(snapshot), &v.Snapshot); err != nil {
		return nil, errors.NewInternal(err)
	}
	return &v, nil
}
