package capsule

import (
	"math"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/hpungsan/salon/internal/lexicon"
)

// NoInsightSentinel is the insight text when there are no contributions.
const NoInsightSentinel = "No clear insight emerged from the discussion."

const (
	summarySourceCount  = 3
	summaryMaxChars     = 100
	insightMaxChars     = 500
	itemMaxChars        = 150
	itemCap             = 5
	keywordTokensPerRow = 5
	keywordMinLen       = 3
	keywordCap          = 10
)

// Source is one contribution as seen by the generator.
type Source struct {
	ID          string
	Contributor string
	Text        string
}

// GenerateInput is everything the generator reads.
type GenerateInput struct {
	TopicID          string
	TopicTitle       string
	TopicDescription string
	Contributions    []Source
	Participants     []string
}

// Generator turns a contribution set into an unsaved capsule.
type Generator struct {
	lex *lexicon.Lexicon
}

// NewGenerator returns a generator over the given tables (nil means the built-in ones).
func NewGenerator(lex *lexicon.Lexicon) *Generator {
	if lex == nil {
		lex = lexicon.Default()
	}
	return &Generator{lex: lex}
}

// Generate builds a capsule. It never fails: degenerate input yields the
// documented sentinel values. The result has no ID, status draft, version 0.
func (g *Generator) Generate(in GenerateInput) *Capsule {
	c := &Capsule{
		TopicID:     in.TopicID,
		Title:       "Knowledge capsule: " + strings.TrimSpace(in.TopicTitle),
		Summary:     g.summary(in.Contributions),
		Insight:     g.insight(in.Contributions),
		Evidence:    g.collect(in.Contributions, g.lex.Justification.Any),
		ActionItems: g.collect(in.Contributions, g.lex.Prescriptive.Any),
		Questions:   g.collect(in.Contributions, g.isQuestion),
		Dimensions:  g.dimensions(in.Contributions),
		Keywords:    keywords(in.Contributions),
		Category:    g.lex.Categorize(in.TopicTitle + " " + in.TopicDescription),
		Status:      StatusDraft,
	}
	c.SourceAgents = sourceAgents(in.Participants, in.Contributions)
	c.SourceContributions = make([]string, 0, len(in.Contributions))
	for _, s := range in.Contributions {
		if s.ID != "" {
			c.SourceContributions = append(c.SourceContributions, s.ID)
		}
	}

	c.Confidence = Confidence(len(in.Contributions), len(in.Participants), c.Dimensions.Total())
	c.Score()

	log.Debug().
		Str("topic_id", in.TopicID).
		Int("contributions", len(in.Contributions)).
		Int("evidence", len(c.Evidence)).
		Int("actions", len(c.ActionItems)).
		Int("questions", len(c.Questions)).
		Float64("quality", c.QualityScore).
		Str("grade", string(c.Grade)).
		Msg("capsule generated")

	return c
}

func (g *Generator) summary(contribs []Source) string {
	parts := make([]string, 0, summarySourceCount)
	for i, s := range contribs {
		if i == summarySourceCount {
			break
		}
		if p := Truncate(s.Text, summaryMaxChars); p != "" {
			parts = append(parts, p)
		}
	}
	return TruncateEllipsis(strings.Join(parts, " "), summaryMaxChars)
}

func (g *Generator) insight(contribs []Source) string {
	if len(contribs) == 0 {
		return NoInsightSentinel
	}
	best := ""
	found := false
	for _, s := range contribs {
		if !g.lex.Significance.Any(s.Text) {
			continue
		}
		if !found || CountChars(s.Text) > CountChars(best) {
			best = s.Text
			found = true
		}
	}
	if found {
		return Truncate(best, insightMaxChars)
	}
	return Truncate(contribs[0].Text, insightMaxChars)
}

func (g *Generator) collect(contribs []Source, match func(string) bool) []string {
	out := []string{}
	for _, s := range contribs {
		if len(out) == itemCap {
			break
		}
		if match(s.Text) {
			out = append(out, Truncate(s.Text, itemMaxChars))
		}
	}
	return out
}

func (g *Generator) isQuestion(text string) bool {
	return hasQuestionMark(text) || g.lex.Interrogative.Any(text)
}

func hasQuestionMark(text string) bool {
	return strings.ContainsAny(text, "?？")
}

// dimensions counts, per contribution, how many distinct terms of each list
// it contains, then scales by contribution count.
func (g *Generator) dimensions(contribs []Source) Dimensions {
	var truth, goodness, beauty, intelligence int
	for _, s := range contribs {
		truth += g.lex.Dimensions.Truth.Count(s.Text)
		goodness += g.lex.Dimensions.Goodness.Count(s.Text)
		beauty += g.lex.Dimensions.Beauty.Count(s.Text)
		intelligence += g.lex.Dimensions.Intelligence.Count(s.Text)
	}
	total := len(contribs)
	if total == 0 {
		total = 1
	}
	scale := func(n int) int {
		return clampScore(int(float64(n) / float64(total) * 100))
	}
	return Dimensions{
		Truth:        scale(truth),
		Goodness:     scale(goodness),
		Beauty:       scale(beauty),
		Intelligence: scale(intelligence),
	}
}

func keywords(contribs []Source) []string {
	seen := make(map[string]bool)
	out := []string{}
	for _, s := range contribs {
		fields := strings.Fields(s.Text)
		if len(fields) > keywordTokensPerRow {
			fields = fields[:keywordTokensPerRow]
		}
		for _, w := range fields {
			if CountChars(w) < keywordMinLen || seen[w] {
				continue
			}
			seen[w] = true
			out = append(out, w)
			if len(out) == keywordCap {
				return out
			}
		}
	}
	return out
}

func sourceAgents(participants []string, contribs []Source) []string {
	seen := make(map[string]bool)
	out := []string{}
	add := func(name string) {
		name = strings.TrimSpace(name)
		if name == "" || seen[name] {
			return
		}
		seen[name] = true
		out = append(out, name)
	}
	for _, p := range participants {
		add(p)
	}
	for _, s := range contribs {
		add(s.Contributor)
	}
	return out
}

// Confidence combines participation with the dimension total:
// clamp(0, 1, participation*0.6 + total/100*0.4), rounded to 2 decimals.
// No contributions means nothing to be confident about, so the result is 0.
func Confidence(contributionCount, participantCount int, dimensionTotal float64) float64 {
	if contributionCount <= 0 {
		return 0
	}
	participation := math.Min(1, float64(contributionCount)/10*0.5+float64(participantCount)/5*0.3)
	conf := participation*0.6 + dimensionTotal/100*0.4
	conf = math.Max(0, math.Min(1, conf))
	return math.Round(conf*100) / 100
}

// Quality is dimension total times confidence, rounded to 2 decimals.
func Quality(d Dimensions, confidence float64) float64 {
	return math.Round(d.Total()*confidence*100) / 100
}
