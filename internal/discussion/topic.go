// Package discussion models topics, their phase machine, contributions and the
// insight extractor that runs over them.
package discussion

import (
	"fmt"
	"strings"

	"github.com/hpungsan/salon/internal/capsule"
	"github.com/hpungsan/salon/internal/lexicon"
)

// Phase is a step in the fixed, forward-only topic sequence.
type Phase string

const (
	PhaseSetup        Phase = "setup"
	PhaseIntroduction Phase = "introduction"
	PhasePerspectives Phase = "perspectives"
	PhaseDebate       Phase = "debate"
	PhaseSynthesis    Phase = "synthesis"
	PhaseConclusion   Phase = "conclusion"
	PhaseClosed       Phase = "closed"
)

// Phases is the full sequence in order.
var Phases = []Phase{
	PhaseSetup, PhaseIntroduction, PhasePerspectives, PhaseDebate,
	PhaseSynthesis, PhaseConclusion, PhaseClosed,
}

// ParsePhase validates a phase name.
func ParsePhase(s string) (Phase, error) {
	p := Phase(strings.ToLower(strings.TrimSpace(s)))
	if p.Index() < 0 {
		return "", fmt.Errorf("invalid phase %q", s)
	}
	return p, nil
}

// Index is the position in Phases, or -1 for an unknown phase.
func (p Phase) Index() int {
	for i, v := range Phases {
		if v == p {
			return i
		}
	}
	return -1
}

// Next returns the following phase. CLOSED is terminal and maps to itself.
func (p Phase) Next() Phase {
	i := p.Index()
	if i < 0 || i+1 >= len(Phases) {
		return PhaseClosed
	}
	return Phases[i+1]
}

// AcceptsContributions is true between INTRODUCTION and CONCLUSION inclusive.
func (p Phase) AcceptsContributions() bool {
	return p != PhaseSetup && p != PhaseClosed && p.Index() >= 0
}

// Participant roles.
const (
	RoleLector      = "lector"
	RoleCommentator = "commentator"
	RoleCritic      = "critic"
	RoleSynthesizer = "synthesizer"
	RoleQuestioner  = "questioner"
)

// DefaultRole is assigned when none is given.
const DefaultRole = RoleCommentator

// Roles lists every participant role.
var Roles = []string{RoleLector, RoleCommentator, RoleCritic, RoleSynthesizer, RoleQuestioner}

// ValidRole reports whether role is one of Roles.
func ValidRole(role string) bool {
	for _, r := range Roles {
		if r == role {
			return true
		}
	}
	return false
}

// Topic defaults.
const (
	DefaultMaxParticipants = 5
	DefaultMaxRounds       = 3
	DefaultCategory        = lexicon.DefaultCategory
)

// Participant is a contributor assigned to a topic.
type Participant struct {
	ID        string             `json:"id"`
	Name      string             `json:"name"`
	Domain    string             `json:"domain,omitempty"`
	Expertise []string           `json:"expertise,omitempty"`
	Role      string             `json:"role"`
	Scores    capsule.Dimensions `json:"scores"`
}

// Topic is a bounded discussion unit.
type Topic struct {
	ID              string        `json:"id"`
	Title           string        `json:"title"`
	Description     string        `json:"description"`
	Category        string        `json:"category"`
	MaxParticipants int           `json:"max_participants"`
	MaxRounds       int           `json:"max_rounds"`
	CurrentRound    int           `json:"current_round"`
	Phase           Phase         `json:"phase"`
	LectorID        string        `json:"lector_id,omitempty"`
	Participants    []Participant `json:"participants"`
	CreatedAt       int64         `json:"created_at"`
	UpdatedAt       int64         `json:"updated_at"`
}

// Participant looks up an assigned participant by id.
func (t *Topic) Participant(id string) (Participant, bool) {
	for _, p := range t.Participants {
		if p.ID == id {
			return p, true
		}
	}
	return Participant{}, false
}

// ParticipantNames returns participant names in assignment order.
func (t *Topic) ParticipantNames() []string {
	names := make([]string, 0, len(t.Participants))
	for _, p := range t.Participants {
		names = append(names, p.Name)
	}
	return names
}

// Contribution is one immutable piece of text from one participant in one round.
type Contribution struct {
	ID              string             `json:"id"`
	TopicID         string             `json:"topic_id"`
	ContributorID   string             `json:"contributor_id"`
	ContributorName string             `json:"contributor_name"`
	Role            string             `json:"role"`
	Round           int                `json:"round"`
	Phase           Phase              `json:"phase"`
	Text            string             `json:"text"`
	Scores          capsule.Dimensions `json:"scores"`
	CreatedAt       int64              `json:"created_at"`
}

// InsightType classifies an extracted insight.
type InsightType string

const (
	InsightPattern    InsightType = "pattern"
	InsightSynthesis  InsightType = "synthesis"
	InsightInnovation InsightType = "innovation"
	InsightQuestion   InsightType = "question"
)

// Fixed confidence per extraction pass.
const (
	ConfidencePattern    = 0.7
	ConfidenceSynthesis  = 0.6
	ConfidenceInnovation = 0.5
	ConfidenceQuestion   = 0.5
)

// Insight is a short classified observation extracted from contributions.
type Insight struct {
	ID         string      `json:"id"`
	TopicID    string      `json:"topic_id"`
	Text       string      `json:"text"`
	SourceIDs  []string    `json:"source_ids"`
	Type       InsightType `json:"insight_type"`
	Confidence float64     `json:"confidence"`
	CreatedAt  int64       `json:"created_at"`
}

// Sources converts contributions into generator input, preserving order.
func Sources(contribs []Contribution) []capsule.Source {
	out := make([]capsule.Source, 0, len(contribs))
	for _, c := range contribs {
		out = append(out, capsule.Source{ID: c.ID, Contributor: c.ContributorName, Text: c.Text})
	}
	return out
}
