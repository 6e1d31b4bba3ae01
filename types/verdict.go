package types

import (
	"encoding/json"
	"strings"
)

// EvaluationType marks a message payload as a structured quality verdict.
// The supervisor uses it to recognise evaluator output inside the message
// log and to scrub those messages before final delivery.
const EvaluationType = "quality_assessment"

// Verdict 质量评估结论。评估器对最后一条 worker 回答打分，
// supervisor 根据 ShouldRetry 与重试预算决定是否回环。
type Verdict struct {
	EvaluationType         string   `json:"evaluation_type"`
	ShouldRetry            bool     `json:"should_retry"`
	OverallScore           float64  `json:"overall_score"`
	QualityLevel           string   `json:"quality_level,omitempty"`
	ImprovementSuggestions []string `json:"improvement_suggestions"`
}

// NeutralVerdict returns the explicit default used when evaluator output
// cannot be parsed: no retry, zero score, no suggestions.
func NeutralVerdict() Verdict {
	return Verdict{
		EvaluationType:         EvaluationType,
		ShouldRetry:            false,
		OverallScore:           0,
		QualityLevel:           "fair",
		ImprovementSuggestions: []string{},
	}
}

// Marshal serialises the verdict to its canonical JSON message payload.
func (v Verdict) Marshal() string {
	v.EvaluationType = EvaluationType
	data, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return string(data)
}

// IsVerdictPayload reports whether content parses as a structured quality
// verdict. Used by the termination scrub and by history reconstruction.
func IsVerdictPayload(content string) bool {
	trimmed := strings.TrimSpace(content)
	if !strings.HasPrefix(trimmed, "{") || !strings.Contains(trimmed, `"evaluation_type"`) {
		return false
	}
	var v Verdict
	if err := json.Unmarshal([]byte(trimmed), &v); err != nil {
		return false
	}
	return v.EvaluationType == EvaluationType
}
