package db

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/hpungsan/salon/internal/discussion"
	"github.com/hpungsan/salon/internal/errors"
)

const topicColumns = `id, title, description, category, max_participants, max_rounds,
	current_round, phase, lector_id, created_at, updated_at`

// InsertTopic inserts a new topic row. Participants are written separately.
func InsertTopic(ctx context.Context, q Querier, t *discussion.Topic) error {
	query := `
		INSERT INTO topics (` + topicColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := q.ExecContext(ctx, query,
		t.ID, t.Title, t.Description, t.Category, t.MaxParticipants, t.MaxRounds,
		t.CurrentRound, string(t.Phase), toNullString(t.LectorID), t.CreatedAt, t.UpdatedAt,
	)
	return storeErr(err)
}

// GetTopic loads a topic and its participants in assignment order.
func GetTopic(ctx context.Context, q Querier, id string) (*discussion.Topic, error) {
	row := q.QueryRowContext(ctx, `SELECT `+topicColumns+` FROM topics WHERE id = ?`, id)
	t, err := scanTopic(row)
	if err != nil {
		return nil, notFoundOr(err, "topic", id)
	}
	if t.Participants, err = listParticipants(ctx, q, id); err != nil {
		return nil, err
	}
	return t, nil
}

// ListTopics returns topics newest first, optionally filtered by phase,
// plus the total number of matching rows.
func ListTopics(ctx context.Context, q Querier, phase discussion.Phase, limit, offset int) ([]discussion.Topic, int, error) {
	where := ""
	args := []any{}
	if phase != "" {
		where = " WHERE phase = ?"
		args = append(args, string(phase))
	}

	var total int
	if err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM topics`+where, args...).Scan(&total); err != nil {
		return nil, 0, storeErr(err)
	}

	query := `SELECT ` + topicColumns + ` FROM topics` + where +
		` ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`
	rows, err := q.QueryContext(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, storeErr(err)
	}
	defer rows.Close()

	topics := []discussion.Topic{}
	for rows.Next() {
		t, err := scanTopic(rows)
		if err != nil {
			return nil, 0, storeErr(err)
		}
		topics = append(topics, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, storeErr(err)
	}

	for i := range topics {
		if topics[i].Participants, err = listParticipants(ctx, q, topics[i].ID); err != nil {
			return nil, 0, err
		}
	}
	return topics, total, nil
}

// UpdateTopicPhase sets phase and updated_at.
func UpdateTopicPhase(ctx context.Context, q Querier, id string, phase discussion.Phase, now int64) error {
	res, err := q.ExecContext(ctx, `UPDATE topics SET phase = ?, updated_at = ? WHERE id = ?`, string(phase), now, id)
	return checkAffected(res, err, "topic", id)
}

// UpdateTopicRound raises current_round to round if it is higher.
func UpdateTopicRound(ctx context.Context, q Querier, id string, round int, now int64) error {
	_, err := q.ExecContext(ctx, `
		UPDATE topics SET current_round = ?, updated_at = ?
		WHERE id = ? AND current_round < ?
	`, round, now, id, round)
	return storeErr(err)
}

// ReplaceParticipants swaps the topic's participant set and lector in one go.
// Callers wrap it in a transaction.
func ReplaceParticipants(ctx context.Context, q Querier, topicID string, participants []discussion.Participant, lectorID string, now int64) error {
	if _, err := q.ExecContext(ctx, `DELETE FROM topic_participants WHERE topic_id = ?`, topicID); err != nil {
		return storeErr(err)
	}

	for i, p := range participants {
		expertise, err := encodeList(p.Expertise)
		if err != nil {
			return err
		}
		scores, err := encodeJSON(p.Scores)
		if err != nil {
			return err
		}
		_, err = q.ExecContext(ctx, `
			INSERT INTO topic_participants
				(topic_id, participant_id, position, name, domain, expertise_json, role, scores_json)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, topicID, p.ID, i, p.Name, toNullString(p.Domain), expertise, p.Role, scores)
		if err != nil {
			return storeErr(err)
		}
	}

	res, err := q.ExecContext(ctx, `UPDATE topics SET lector_id = ?, updated_at = ? WHERE id = ?`,
		toNullString(lectorID), now, topicID)
	return checkAffected(res, err, "topic", topicID)
}

// DeleteTopic removes a topic. Participants, contributions and insights go
// with it through ON DELETE CASCADE; capsules are kept.
func DeleteTopic(ctx context.Context, q Querier, id string) error {
	res, err := q.ExecContext(ctx, `DELETE FROM topics WHERE id = ?`, id)
	return checkAffected(res, err, "topic", id)
}

func listParticipants(ctx context.Context, q Querier, topicID string) ([]discussion.Participant, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT participant_id, name, domain, expertise_json, role, scores_json
		FROM topic_participants
		WHERE topic_id = ?
		ORDER BY position
	`, topicID)
	if err != nil {
		return nil, storeErr(err)
	}
	defer rows.Close()

	out := []discussion.Participant{}
	for rows.Next() {
		var (
			p         discussion.Participant
			domain    sql.NullString
			expertise sql.NullString
			scores    string
		)
		if err := rows.Scan(&p.ID, &p.Name, &domain, &expertise, &p.Role, &scores); err != nil {
			return nil, storeErr(err)
		}
		p.Domain = domain.String
		if p.Expertise, err = decodeList(expertise.String); err != nil {
			return nil, errors.NewInternal(err)
		}
		if err := json.Unmarshal([]byte(scores), &p.Scores); err != nil {
			return nil, errors.NewInternal(err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr(err)
	}
	return out, nil
}

func scanTopic(row scanner) (*discussion.Topic, error) {
	var (
		t      discussion.Topic
		phase  string
		lector sql.NullString
	)
	err := row.Scan(
		&t.ID, &t.Title, &t.Description, &t.Category, &t.MaxParticipants, &t.MaxRounds,
		&t.CurrentRound, &phase, &lector, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	t.Phase = discussion.Phase(phase)
	t.LectorID = lector.String
	t.Participants = []discussion.Participant{}
	return &t, nil
}

func checkAffected(res sql.Result, err error, kind, id string) error {
	if err != nil {
		return storeErr(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return storeErr(err)
	}
	if n == 0 {
		return errors.NewNotFound(kind, id)
	}
	return nil
}
