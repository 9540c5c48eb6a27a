package discussion

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/hpungsan/salon/internal/capsule"
	"github.com/hpungsan/salon/internal/lexicon"
)

const (
	synthesisMinChars  = 20
	synthesisViewChars = 100
	innovationCap      = 3
	questionCap        = 5
	questionMinChars   = 10
	questionMaxChars   = 200
)

// Extractor classifies contributions into insight records.
type Extractor struct {
	lex *lexicon.Lexicon
}

// NewExtractor returns an extractor over the given tables (nil means built-in).
func NewExtractor(lex *lexicon.Lexicon) *Extractor {
	if lex == nil {
		lex = lexicon.Default()
	}
	return &Extractor{lex: lex}
}

// Extract runs the pattern, synthesis, innovation and question passes in that
// order over contributions. The returned insights carry topicID but no ID or
// timestamp; the caller assigns those when persisting.
func (e *Extractor) Extract(topicID string, contribs []Contribution) []Insight {
	if len(contribs) == 0 {
		return []Insight{}
	}

	out := make([]Insight, 0)
	out = append(out, e.patterns(topicID, contribs)...)
	out = append(out, e.synthesis(topicID, contribs)...)
	out = append(out, e.innovations(topicID, contribs)...)
	out = append(out, e.questions(topicID, contribs)...)

	log.Debug().
		Str("topic_id", topicID).
		Int("contributions", len(contribs)).
		Int("insights", len(out)).
		Msg("insights extracted")

	return out
}

func (e *Extractor) patterns(topicID string, contribs []Contribution) []Insight {
	type group struct {
		name string
		ids  []string
		text []string
	}
	var order []*group
	byName := make(map[string]*group)
	for _, c := range contribs {
		g, ok := byName[c.ContributorName]
		if !ok {
			g = &group{name: c.ContributorName}
			byName[c.ContributorName] = g
			order = append(order, g)
		}
		g.ids = append(g.ids, c.ID)
		g.text = append(g.text, c.Text)
	}

	var out []Insight
	for _, g := range order {
		full := strings.Join(g.text, " ")
		if e.lex.Consensus.Any(full) {
			out = append(out, newInsight(topicID, InsightPattern, ConfidencePattern,
				fmt.Sprintf("%s aligns with the group", g.name), g.ids))
		}
		if e.lex.Dissent.Any(full) {
			out = append(out, newInsight(topicID, InsightPattern, ConfidencePattern,
				fmt.Sprintf("%s raises a divergent view", g.name), g.ids))
		}
	}
	return out
}

func (e *Extractor) synthesis(topicID string, contribs []Contribution) []Insight {
	views := make(map[string]bool)
	var ids []string
	for _, c := range contribs {
		if capsule.CountChars(c.Text) <= synthesisMinChars {
			continue
		}
		views[capsule.Truncate(c.Text, synthesisViewChars)] = true
		ids = append(ids, c.ID)
	}
	if len(views) == 0 {
		return nil
	}
	noun := "viewpoints"
	if len(views) == 1 {
		noun = "viewpoint"
	}
	text := fmt.Sprintf("The discussion covers %d distinct %s from across the participants' disciplines.", len(views), noun)
	return []Insight{newInsight(topicID, InsightSynthesis, ConfidenceSynthesis, text, ids)}
}

func (e *Extractor) innovations(topicID string, contribs []Contribution) []Insight {
	var out []Insight
	for _, c := range contribs {
		if !e.lex.Innovation.Any(c.Text) {
			continue
		}
		for _, sent := range splitSentences(c.Text) {
			if !e.lex.Innovation.Any(sent) {
				continue
			}
			out = append(out, newInsight(topicID, InsightInnovation, ConfidenceInnovation,
				fmt.Sprintf("%s proposes: %s", c.ContributorName, sent), []string{c.ID}))
			if len(out) == innovationCap {
				return out
			}
		}
	}
	return out
}

func (e *Extractor) questions(topicID string, contribs []Contribution) []Insight {
	var out []Insight
	for _, c := range contribs {
		hasMark := strings.ContainsAny(c.Text, "?？")
		if !hasMark && !e.lex.Interrogative.Any(c.Text) {
			continue
		}
		parts := strings.Split(strings.ReplaceAll(c.Text, "？", "?"), "?")
		for i, part := range parts {
			part = strings.TrimSpace(part)
			asked := i < len(parts)-1
			if !asked && !e.lex.Interrogative.Any(part) {
				continue
			}
			n := capsule.CountChars(part)
			if n <= questionMinChars || n >= questionMaxChars {
				continue
			}
			out = append(out, newInsight(topicID, InsightQuestion, ConfidenceQuestion,
				fmt.Sprintf("%s asks: %s?", c.ContributorName, part), []string{c.ID}))
			if len(out) == questionCap {
				return out
			}
		}
	}
	return out
}

// splitSentences breaks text on sentence punctuation and newlines.
func splitSentences(text string) []string {
	raw := strings.FieldsFunc(text, func(r rune) bool {
		switch r {
		case '.', '!', '?', '。', '！', '？', '\n':
			return true
		}
		return false
	})
	out := make([]string, 0, len(raw))
	for _, s := range raw {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func newInsight(topicID string, typ InsightType, confidence float64, text string, ids []string) Insight {
	src := make([]string, len(ids))
	copy(src, ids)
	return Insight{
		TopicID:    topicID,
		Text:       text,
		SourceIDs:  src,
		Type:       typ,
		Confidence: confidence,
	}
}
