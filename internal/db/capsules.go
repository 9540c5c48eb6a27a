package db

import (
	"context"
	"math"
	"strings"
	"time"
	"unicode"

	"github.com/hpungsan/salon/internal/capsule"
	"github.com/hpungsan/salon/internal/errors"
)

const capsuleColumns = `id, topic_id, title, summary, insight,
	evidence_json, action_items_json, questions_json,
	truth_score, goodness_score, beauty_score, intelligence_score,
	confidence, quality_score, grade,
	source_agents_json, source_contributions_json, keywords_json,
	category, status, version, created_at, updated_at`

// ListFilter narrows ListCapsules. Zero values mean "no filter".
type ListFilter struct {
	Status     capsule.Status
	Category   string
	MinQuality float64
	Limit      int
	Offset     int
}

// Stats aggregates the whole capsule store.
type Stats struct {
	Count          int            `json:"count"`
	AverageQuality float64        `json:"average_quality"`
	ByCategory     map[string]int `json:"by_category"`
	ByStatus       map[string]int `json:"by_status"`
}

// UpsertCapsule inserts or replaces a capsule by id.
//
// created_at is kept from the first save and updated_at is always refreshed.
// The stored version counter is never changed here: a new row starts at
// c.Version (or 1) and an existing row keeps its own. c is updated with the
// stored version and timestamps.
func UpsertCapsule(ctx context.Context, q Querier, c *capsule.Capsule) error {
	now := time.Now().Unix()
	if c.CreatedAt == 0 {
		c.CreatedAt = now
	}
	if c.Version < 1 {
		c.Version = 1
	}

	lists := make([]string, 0, 6)
	for _, items := range [][]string{c.Evidence, c.ActionItems, c.Questions, c.SourceAgents, c.SourceContributions, c.Keywords} {
		encoded, err := encodeList(items)
		if err != nil {
			return err
		}
		lists = append(lists, encoded)
	}

	query := `
		INSERT INTO capsules (` + capsuleColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			topic_id = excluded.topic_id,
			title = excluded.title,
			summary = excluded.summary,
			insight = excluded.insight,
			evidence_json = excluded.evidence_json,
			action_items_json = excluded.action_items_json,
			questions_json = excluded.questions_json,
			truth_score = excluded.truth_score,
			goodness_score = excluded.goodness_score,
			beauty_score = excluded.beauty_score,
			intelligence_score = excluded.intelligence_score,
			confidence = excluded.confidence,
			quality_score = excluded.quality_score,
			grade = excluded.grade,
			source_agents_json = excluded.source_agents_json,
			source_contributions_json = excluded.source_contributions_json,
			keywords_json = excluded.keywords_json,
			category = excluded.category,
			status = excluded.status,
			updated_at = excluded.updated_at
		RETURNING version, created_at, updated_at
	`
	err := q.QueryRowContext(ctx, query,
		c.ID, c.TopicID, c.Title, c.Summary, c.Insight,
		lists[0], lists[1], lists[2],
		c.Dimensions.Truth, c.Dimensions.Goodness, c.Dimensions.Beauty, c.Dimensions.Intelligence,
		c.Confidence, c.QualityScore, string(c.Grade),
		lists[3], lists[4], lists[5],
		c.Category, string(c.Status), c.Version, c.CreatedAt, now,
	).Scan(&c.Version, &c.CreatedAt, &c.UpdatedAt)
	return storeErr(err)
}

// GetCapsule loads a capsule by id.
func GetCapsule(ctx context.Context, q Querier, id string) (*capsule.Capsule, error) {
	row := q.QueryRowContext(ctx, `SELECT `+capsuleColumns+` FROM capsules WHERE id = ?`, id)
	c, err := scanCapsule(row)
	if err != nil {
		return nil, notFoundOr(err, "capsule", id)
	}
	return c, nil
}

// ListCapsules returns capsules ordered by quality then recency, plus the
// total count matching the filter.
func ListCapsules(ctx context.Context, q Querier, f ListFilter) ([]capsule.Capsule, int, error) {
	var (
		conds []string
		args  []any
	)
	if f.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, string(f.Status))
	}
	if f.Category != "" {
		conds = append(conds, "category = ?")
		args = append(args, f.Category)
	}
	if f.MinQuality > 0 {
		conds = append(conds, "quality_score >= ?")
		args = append(args, f.MinQuality)
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM capsules`+where, args...).Scan(&total); err != nil {
		return nil, 0, storeErr(err)
	}

	query := `SELECT ` + capsuleColumns + ` FROM capsules` + where +
		` ORDER BY quality_score DESC, created_at DESC, id DESC LIMIT ? OFFSET ?`
	items, err := queryCapsules(ctx, q, query, append(args, f.Limit, f.Offset)...)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// SearchCapsules runs a full-text query over title, insight, evidence,
// action items, questions and keywords. Every whitespace-separated term must
// match. Results are ranked by bm25 with title weighted highest, then by
// quality.
func SearchCapsules(ctx context.Context, q Querier, text string, limit int) ([]capsule.Capsule, error) {
	match := MatchExpression(text)
	if match == "" {
		return []capsule.Capsule{}, nil
	}
	query := `
		SELECT ` + prefixed("c.", capsuleColumns) + `
		FROM capsules_fts fts
		JOIN capsules c ON c.rowid = fts.rowid
		WHERE capsules_fts MATCH ?
		ORDER BY bm25(capsules_fts, 5.0, 2.0, 1.0, 1.0, 1.0, 3.0), c.quality_score DESC, c.id
		LIMIT ?
	`
	return queryCapsules(ctx, q, query, match, limit)
}

// MatchExpression turns free text into an FTS5 query: each term becomes a
// quoted phrase so operators and punctuation in user input are inert.
// Terms without a letter or digit are dropped.
func MatchExpression(text string) string {
	var phrases []string
	for _, term := range strings.Fields(text) {
		if !strings.ContainsFunc(term, func(r rune) bool { return unicode.IsLetter(r) || unicode.IsDigit(r) }) {
			continue
		}
		phrases = append(phrases, `"`+strings.ReplaceAll(term, `"`, `""`)+`"`)
	}
	return strings.Join(phrases, " ")
}

// UpdateCapsuleStatus changes only status and updated_at.
func UpdateCapsuleStatus(ctx context.Context, q Querier, id string, status capsule.Status) (int64, error) {
	now := time.Now().Unix()
	res, err := q.ExecContext(ctx, `UPDATE capsules SET status = ?, updated_at = ? WHERE id = ?`, string(status), now, id)
	if err := checkAffected(res, err, "capsule", id); err != nil {
		return 0, err
	}
	return now, nil
}

// SetCapsuleVersion sets the live version counter.
func SetCapsuleVersion(ctx context.Context, q Querier, id string, version int) error {
	res, err := q.ExecContext(ctx, `UPDATE capsules SET version = ? WHERE id = ?`, version, id)
	return checkAffected(res, err, "capsule", id)
}

// CapsuleStats returns count, mean quality (2 decimals) and per-category and
// per-status counts.
func CapsuleStats(ctx context.Context, q Querier) (*Stats, error) {
	s := &Stats{ByCategory: map[string]int{}, ByStatus: map[string]int{}}

	var avg float64
	err := q.QueryRowContext(ctx, `SELECT COUNT(*), COALESCE(AVG(quality_score), 0) FROM capsules`).Scan(&s.Count, &avg)
	if err != nil {
		return nil, storeErr(err)
	}
	s.AverageQuality = math.Round(avg*100) / 100

	if err := countBy(ctx, q, "category", s.ByCategory); err != nil {
		return nil, err
	}
	if err := countBy(ctx, q, "status", s.ByStatus); err != nil {
		return nil, err
	}
	return s, nil
}

// countBy fills out with COUNT(*) grouped by a fixed column name.
func countBy(ctx context.Context, q Querier, column string, out map[string]int) error {
	rows, err := q.QueryContext(ctx, `SELECT `+column+`, COUNT(*) FROM capsules GROUP BY `+column)
	if err != nil {
		return storeErr(err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			key string
			n   int
		)
		if err := rows.Scan(&key, &n); err != nil {
			return storeErr(err)
		}
		out[key] = n
	}
	return storeErr(rows.Err())
}

func queryCapsules(ctx context.Context, q Querier, query string, args ...any) ([]capsule.Capsule, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storeErr(err)
	}
	defer rows.Close()

	out := []capsule.Capsule{}
	for rows.Next() {
		c, err := scanCapsule(rows)
		if err != nil {
			return nil, storeErr(err)
		}
		out = append(out, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr(err)
	}
	return out, nil
}

func scanCapsule(row scanner) (*capsule.Capsule, error) {
	var (
		c                               capsule.Capsule
		evidence, actions, questions    string
		agents, contributions, keywords string
		grade, status                   string
	)
	err := row.Scan(
		&c.ID, &c.TopicID, &c.Title, &c.Summary, &c.Insight,
		&evidence, &actions, &questions,
		&c.Dimensions.Truth, &c.Dimensions.Goodness, &c.Dimensions.Beauty, &c.Dimensions.Intelligence,
		&c.Confidence, &c.QualityScore, &grade,
		&agents, &contributions, &keywords,
		&c.Category, &status, &c.Version, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	c.Grade = capsule.Grade(grade)
	c.Status = capsule.Status(status)

	for _, f := range []struct {
		raw string
		dst *[]string
	}{
		{evidence, &c.Evidence},
		{actions, &c.ActionItems},
		{questions, &c.Questions},
		{agents, &c.SourceAgents},
		{contributions, &c.SourceContributions},
		{keywords, &c.Keywords},
	} {
		list, err := decodeList(f.raw)
		if err != nil {
			return nil, errors.NewInternal(err)
		}
		*f.dst = list
	}
	return &c, nil
}

func prefixed(prefix, columns string) string {
	parts := strings.Split(columns, ",")
	for i, p := range parts {
		parts[i] = prefix + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}
