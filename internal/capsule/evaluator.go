package capsule

// Grade thresholds on quality_score.
const (
	ThresholdA       = 80.0
	ThresholdB       = 60.0
	ThresholdC       = 40.0
	PublishThreshold = ThresholdB

	dimensionFloor  = 60
	confidenceFloor = 0.6
)

// Improvement suggestions, one per weak dimension plus one for low confidence.
const (
	SuggestTruth        = "Strengthen truth: add supporting data, research, and evidence."
	SuggestGoodness     = "Strengthen goodness: address values, ethics, and social impact."
	SuggestBeauty       = "Strengthen beauty: improve expression, culture, and emotional resonance."
	SuggestIntelligence = "Strengthen intelligence: add innovative and forward-looking ideas."
	SuggestParticipants = "Broaden participation: invite more experts into the discussion."
)

// Evaluation is the verdict on a generated capsule.
type Evaluation struct {
	CapsuleID     string     `json:"capsule_id,omitempty"`
	QualityScore  float64    `json:"quality_score"`
	TotalScore    float64    `json:"total_score"`
	Grade         Grade      `json:"grade"`
	Level         string     `json:"level"`
	Dimensions    Dimensions `json:"dimensions"`
	Confidence    float64    `json:"confidence"`
	Suggestions   []string   `json:"suggestions"`
	IsPublishable bool       `json:"is_publishable"`
}

// GradeFor maps quality to a letter: A >= 80, B >= 60, C >= 40, else D.
func GradeFor(quality float64) Grade {
	switch {
	case quality >= ThresholdA:
		return GradeA
	case quality >= ThresholdB:
		return GradeB
	case quality >= ThresholdC:
		return GradeC
	default:
		return GradeD
	}
}

// Level is the human label for a grade.
func (g Grade) Level() string {
	switch g {
	case GradeA:
		return "excellent"
	case GradeB:
		return "good"
	case GradeC:
		return "fair"
	default:
		return "needs improvement"
	}
}

// Evaluate grades a capsule. Pure: the capsule is not modified. Quality,
// grade and publishability come from the same value the capsule stores.
func Evaluate(c *Capsule) Evaluation {
	dims := c.Dimensions.Clamp()
	quality := Quality(dims, c.Confidence)
	grade := GradeFor(quality)

	suggestions := []string{}
	if dims.Truth < dimensionFloor {
		suggestions = append(suggestions, SuggestTruth)
	}
	if dims.Goodness < dimensionFloor {
		suggestions = append(suggestions, SuggestGoodness)
	}
	if dims.Beauty < dimensionFloor {
		suggestions = append(suggestions, SuggestBeauty)
	}
	if dims.Intelligence < dimensionFloor {
		suggestions = append(suggestions, SuggestIntelligence)
	}
	if c.Confidence < confidenceFloor {
		suggestions = append(suggestions, SuggestParticipants)
	}

	return Evaluation{
		CapsuleID:     c.ID,
		QualityScore:  quality,
		TotalScore:    dims.Total(),
		Grade:         grade,
		Level:         grade.Level(),
		Dimensions:    dims,
		Confidence:    c.Confidence,
		Suggestions:   suggestions,
		IsPublishable: quality >= PublishThreshold,
	}
}
