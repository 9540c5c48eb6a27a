package db

import (
	"bytes"
	"database/sql"
	"encoding/json"
	stderrors "errors"

	"github.com/hpungsan/salon/internal/errors"
)

// encodeJSON marshals v without HTML escaping so stored text matches what
// was written.
func encodeJSON(v any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "", errors.NewInternal(err)
	}
	return string(bytes.TrimRight(buf.Bytes(), "\n")), nil
}

// encodeList stores a nil slice as an empty JSON array.
func encodeList(items []string) (string, error) {
	if items == nil {
		items = []string{}
	}
	return encodeJSON(items)
}

func decodeList(raw string) ([]string, error) {
	out := []string{}
	if raw == "" {
		return out, nil
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, err
	}
	return out, nil
}

// storeErr maps a driver error into a SalonError. SalonErrors pass through.
func storeErr(err error) error {
	if err == nil {
		return nil
	}
	var sErr *errors.SalonError
	if stderrors.As(err, &sErr) {
		return err
	}
	return errors.NewStorageIO(err)
}

// notFoundOr maps sql.ErrNoRows to a NOT_FOUND error for kind/id.
func notFoundOr(err error, kind, id string) error {
	if stderrors.Is(err, sql.ErrNoRows) {
		return errors.NewNotFound(kind, id)
	}
	return storeErr(err)
}

func toNullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}
