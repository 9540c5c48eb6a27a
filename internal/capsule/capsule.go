package capsule

import "fmt"

// Status is the editorial state of a capsule.
type Status string

const (
	StatusDraft    Status = "draft"
	StatusReview   Status = "review"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// ValidStatuses lists every status in workflow order.
var ValidStatuses = []Status{StatusDraft, StatusReview, StatusApproved, StatusRejected}

// ParseStatus validates a status string (case and surrounding space ignored).
func ParseStatus(s string) (Status, error) {
	norm := Status(Normalize(s))
	for _, v := range ValidStatuses {
		if norm == v {
			return v, nil
		}
	}
	return "", fmt.Errorf("invalid status %q: must be one of draft, review, approved, rejected", s)
}

// Grade is the letter verdict derived from quality_score.
type Grade string

const (
	GradeA Grade = "A"
	GradeB Grade = "B"
	GradeC Grade = "C"
	GradeD Grade = "D"
)

// Dimensions are the four DATM scores, each in [0,100].
type Dimensions struct {
	Truth        int `json:"truth"`
	Goodness     int `json:"goodness"`
	Beauty       int `json:"beauty"`
	Intelligence int `json:"intelligence"`
}

// Clamp returns a copy with every score forced into [0,100].
func (d Dimensions) Clamp() Dimensions {
	return Dimensions{
		Truth:        clampScore(d.Truth),
		Goodness:     clampScore(d.Goodness),
		Beauty:       clampScore(d.Beauty),
		Intelligence: clampScore(d.Intelligence),
	}
}

// Total is the arithmetic mean of the four scores.
func (d Dimensions) Total() float64 {
	return float64(d.Truth+d.Goodness+d.Beauty+d.Intelligence) / 4
}

func clampScore(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

// Capsule is the scored knowledge artifact synthesized from a topic's contributions.
// The JSON shape is the persisted record shape.
type Capsule struct {
	ID      string `json:"id"`
	TopicID string `json:"topic_id"`
	Title   string `json:"title"`
	Summary string `json:"summary"`

	// Insight is the single headline finding, not an extractor Insight record.
	Insight     string   `json:"insight"`
	Evidence    []string `json:"evidence"`
	ActionItems []string `json:"action_items"`
	Questions   []string `json:"questions"`

	Dimensions   Dimensions `json:"dimensions"`
	Confidence   float64    `json:"confidence"`
	QualityScore float64    `json:"quality_score"`
	Grade        Grade      `json:"grade"`

	SourceAgents []string `json:"source_agents"`
	// SourceContributions weakly references contribution IDs; they may be deleted later.
	SourceContributions []string `json:"source_contributions"`
	Keywords            []string `json:"keywords"`
	Category            string   `json:"category"`

	Status    Status `json:"status"`
	Version   int    `json:"version"`
	CreatedAt int64  `json:"created_at"`
	UpdatedAt int64  `json:"updated_at"`
}

// Score recomputes QualityScore and Grade from Dimensions and Confidence.
func (c *Capsule) Score() {
	c.Dimensions = c.Dimensions.Clamp()
	c.QualityScore = Quality(c.Dimensions, c.Confidence)
	c.Grade = GradeFor(c.QualityScore)
}

// Content is the versioned part of a capsule: everything a rollback restores.
type Content struct {
	Title               string     `json:"title"`
	Summary             string     `json:"summary"`
	Insight             string     `json:"insight"`
	Evidence            []string   `json:"evidence"`
	ActionItems         []string   `json:"action_items"`
	Questions           []string   `json:"questions"`
	Dimensions          Dimensions `json:"dimensions"`
	Confidence          float64    `json:"confidence"`
	QualityScore        float64    `json:"quality_score"`
	Grade               Grade      `json:"grade"`
	SourceAgents        []string   `json:"source_agents"`
	SourceContributions []string   `json:"source_contributions"`
	Keywords            []string   `json:"keywords"`
	Category            string     `json:"category"`
	Status              Status     `json:"status"`
}

// Snapshot captures the current content fields.
func (c *Capsule) Snapshot() Content {
	return Content{
		Title:               c.Title,
		Summary:             c.Summary,
		Insight:             c.Insight,
		Evidence:            cloneStrings(c.Evidence),
		ActionItems:         cloneStrings(c.ActionItems),
		Questions:           cloneStrings(c.Questions),
		Dimensions:          c.Dimensions,
		Confidence:          c.Confidence,
		QualityScore:        c.QualityScore,
		Grade:               c.Grade,
		SourceAgents:        cloneStrings(c.SourceAgents),
		SourceContributions: cloneStrings(c.SourceContributions),
		Keywords:            cloneStrings(c.Keywords),
		Category:            c.Category,
		Status:              c.Status,
	}
}

// Restore overwrites content fields from a snapshot. ID, TopicID, Version and
// timestamps are left alone.
func (c *Capsule) Restore(s Content) {
	c.Title = s.Title
	c.Summary = s.Summary
	c.Insight = s.Insight
	c.Evidence = cloneStrings(s.Evidence)
	c.ActionItems = cloneStrings(s.ActionItems)
	c.Questions = cloneStrings(s.Questions)
	c.Dimensions = s.Dimensions
	c.Confidence = s.Confidence
	c.QualityScore = s.QualityScore
	c.Grade = s.Grade
	c.SourceAgents = cloneStrings(s.SourceAgents)
	c.SourceContributions = cloneStrings(s.SourceContributions)
	c.Keywords = cloneStrings(s.Keywords)
	c.Category = s.Category
	c.Status = s.Status
}

// Version is one immutable history row.
type Version struct {
	CapsuleID string  `json:"capsule_id"`
	Version   int     `json:"version"`
	Changes   string  `json:"changes"`
	Editor    string  `json:"editor"`
	EditedAt  int64   `json:"edited_at"`
	Snapshot  Content `json:"content_snapshot"`
}

func cloneStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	out := make([]string, len(s))
	copy(out, s)
	return out
}
