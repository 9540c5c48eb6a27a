package capsule

// CapsuleSummary is a capsule without its list bodies.
// Used by list and search to keep responses small.
type CapsuleSummary struct {
	ID           string  `json:"id"`
	TopicID      string  `json:"topic_id"`
	Title        string  `json:"title"`
	Summary      string  `json:"summary"`
	Category     string  `json:"category"`
	Status       Status  `json:"status"`
	Grade        Grade   `json:"grade"`
	QualityScore float64 `json:"quality_score"`
	Confidence   float64 `json:"confidence"`
	Version      int     `json:"version"`
	CreatedAt    int64   `json:"created_at"`
	UpdatedAt    int64   `json:"updated_at"`
}

// ToSummary converts a Capsule to a CapsuleSummary.
func (c *Capsule) ToSummary() CapsuleSummary {
	return CapsuleSummary{
		ID:           c.ID,
		TopicID:      c.TopicID,
		Title:        c.Title,
		Summary:      c.Summary,
		Category:     c.Category,
		Status:       c.Status,
		Grade:        c.Grade,
		QualityScore: c.QualityScore,
		Confidence:   c.Confidence,
		Version:      c.Version,
		CreatedAt:    c.CreatedAt,
		UpdatedAt:    c.UpdatedAt,
	}
}
