package discussion

// Summary is the read model returned by summarize.
type Summary struct {
	TopicID            string         `json:"topic_id"`
	Title              string         `json:"title"`
	Phase              Phase          `json:"phase"`
	CurrentRound       int            `json:"current_round"`
	Participants       int            `json:"participants"`
	TotalContributions int            `json:"total_contributions"`
	ByPhase            map[Phase]int  `json:"by_phase"`
	ByContributor      map[string]int `json:"by_contributor"`
	InsightCount       int            `json:"insight_count"`
	Phases             []Phase        `json:"phases"`
}

// Summarize counts contributions per phase and per contributor name.
func Summarize(t *Topic, contribs []Contribution, insightCount int) Summary {
	s := Summary{
		TopicID:            t.ID,
		Title:              t.Title,
		Phase:              t.Phase,
		CurrentRound:       t.CurrentRound,
		Participants:       len(t.Participants),
		TotalContributions: len(contribs),
		ByPhase:            make(map[Phase]int),
		ByContributor:      make(map[string]int),
		InsightCount:       insightCount,
		Phases:             Phases,
	}
	for _, c := range contribs {
		s.ByPhase[c.Phase]++
		s.ByContributor[c.ContributorName]++
	}
	return s
}
