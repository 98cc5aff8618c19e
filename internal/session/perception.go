package session

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// PerceptionSnapshot is a verdict about current progress.
//
// OriginalGoalAchieved should imply LocalGoalAchieved, but nothing here enforces it.
type PerceptionSnapshot struct {
	OriginalGoalAchieved bool       `json:"original_goal_achieved"`
	LocalGoalAchieved    bool       `json:"local_goal_achieved"`
	Confidence           Confidence `json:"confidence"`
	Reasoning            string     `json:"reasoning"`
	SolutionSummary      string     `json:"solution_summary"`
}

// Confidence accepts both numbers and numeric strings when decoded.
type Confidence float64

func (c *Confidence) UnmarshalJSON(data []byte) error {
	var f float64
	if err := json.Unmarshal(data, &f); err == nil {
		*c = Confidence(f)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("confidence must be a number: %w", err)
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return fmt.Errorf("confidence must be a number: %w", err)
	}
	*c = Confidence(f)
	return nil
}

var perceptionFields = []string{
	"original_goal_achieved",
	"local_goal_achieved",
	"confidence",
	"reasoning",
	"solution_summary",
}

// ParsePerception decodes a perception verdict, failing when any required key is absent.
func ParsePerception(data []byte) (PerceptionSnapshot, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return PerceptionSnapshot{}, fmt.Errorf("invalid perception verdict: %w", err)
	}

	var missing []string
	for _, f := range perceptionFields {
		if v, ok := raw[f]; !ok || string(v) == "null" {
			missing = append(missing, f)
		}
	}
	if len(missing) > 0 {
		return PerceptionSnapshot{}, fmt.Errorf("invalid perception verdict: missing %s", strings.Join(missing, ", "))
	}

	var p PerceptionSnapshot
	if err := json.Unmarshal(data, &p); err != nil {
		return PerceptionSnapshot{}, fmt.Errorf("invalid perception verdict: %w", err)
	}
	return p, nil
}
