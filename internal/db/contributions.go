package db

import (
	"context"
	"encoding/json"

	"github.com/hpungsan/salon/internal/discussion"
	"github.com/hpungsan/salon/internal/errors"
)

// InsertContribution appends a contribution. Contributions are never updated.
func InsertContribution(ctx context.Context, q Querier, c *discussion.Contribution) error {
	scores, err := encodeJSON(c.Scores)
	if err != nil {
		return err
	}
	_, err = q.ExecContext(ctx, `
		INSERT INTO contributions
			(id, topic_id, contributor_id, contributor_name, role, round, phase, text, scores_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, c.ID, c.TopicID, c.ContributorID, c.ContributorName, c.Role, c.Round,
		string(c.Phase), c.Text, scores, c.CreatedAt)
	return storeErr(err)
}

// ListContributions returns a topic's contributions in the order they were recorded.
func ListContributions(ctx context.Context, q Querier, topicID string) ([]discussion.Contribution, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, topic_id, contributor_id, contributor_name, role, round, phase, text, scores_json, created_at
		FROM contributions
		WHERE topic_id = ?
		ORDER BY rowid
	`, topicID)
	if err != nil {
		return nil, storeErr(err)
	}
	defer rows.Close()

	out := []discussion.Contribution{}
	for rows.Next() {
		var (
			c      discussion.Contribution
			phase  string
			scores string
		)
		if err := rows.Scan(&c.ID, &c.TopicID, &c.ContributorID, &c.ContributorName, &c.Role,
			&c.Round, &phase, &c.Text, &scores, &c.CreatedAt); err != nil {
			return nil, storeErr(err)
		}
		c.Phase = discussion.Phase(phase)
		if err := json.Unmarshal([]byte(scores), &c.Scores); err != nil {
			return nil, errors.NewInternal(err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr(err)
	}
	return out, nil
}

// ReplaceInsights drops the topic's previous insights and writes the new set.
// Callers wrap it in a transaction.
func ReplaceInsights(ctx context.Context, q Querier, topicID string, insights []discussion.Insight) error {
	if _, err := q.ExecContext(ctx, `DELETE FROM insights WHERE topic_id = ?`, topicID); err != nil {
		return storeErr(err)
	}
	for _, in := range insights {
		sources, err := encodeList(in.SourceIDs)
		if err != nil {
			return err
		}
		_, err = q.ExecContext(ctx, `
			INSERT INTO insights (id, topic_id, text, source_ids_json, insight_type, confidence, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, in.ID, topicID, in.Text, sources, string(in.Type), in.Confidence, in.CreatedAt)
		if err != nil {
			return storeErr(err)
		}
	}
	return nil
}

// ListInsights returns a topic's insights in extraction order.
func ListInsights(ctx context.Context, q Querier, topicID string) ([]discussion.Insight, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, topic_id, text, source_ids_json, insight_type, confidence, created_at
		FROM insights
		WHERE topic_id = ?
		ORDER BY rowid
	`, topicID)
	if err != nil {
		return nil, storeErr(err)
	}
	defer rows.Close()

	out := []discussion.Insight{}
	for rows.Next() {
		var (
			in      discussion.Insight
			sources string
			typ     string
		)
		if err := rows.Scan(&in.ID, &in.TopicID, &in.Text, &sources, &typ, &in.Confidence, &in.CreatedAt); err != nil {
			return nil, storeErr(err)
		}
		in.Type = discussion.InsightType(typ)
		if in.SourceIDs, err = decodeList(sources); err != nil {
			return nil, errors.NewInternal(err)
		}
		out = append(out, in)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr(err)
	}
	return out, nil
}

// CountInsights returns how many insights a topic currently has.
func CountInsights(ctx context.Context, q Querier, topicID string) (int, error) {
	var n int
	if err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM insights WHERE topic_id = ?`, topicID).Scan(&n); err != nil {
		return 0, storeErr(err)
	}
	return n, nil
}
