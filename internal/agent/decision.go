package agent

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rahul/stepwise/internal/session"
)

// DecisionOutput is the planner's verdict: the full plan text and the one step to run next.
type DecisionOutput struct {
	PlanText    []string          `json:"plan_text"`
	StepIndex   int               `json:"step_index"`
	Description string            `json:"description"`
	Type        session.StepType  `json:"type"`
	Code        *session.ToolCode `json:"code,omitempty"`
	Conclusion  string            `json:"conclusion,omitempty"`
}

// ParseDecision decodes and validates a planner verdict. Fields nested under "next_step" are
// lifted to the top level and an empty "code" string is treated as absent.
func ParseDecision(data []byte) (DecisionOutput, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return DecisionOutput{}, fmt.Errorf("invalid decision: %w", err)
	}
	if nested, ok := raw["next_step"]; ok {
		var inner map[string]json.RawMessage
		if err := json.Unmarshal(nested, &inner); err != nil {
			return DecisionOutput{}, fmt.Errorf("invalid decision: next_step: %w", err)
		}
		delete(raw, "next_step")
		for k, v := range inner {
			if _, exists := raw[k]; !exists {
				raw[k] = v
			}
		}
	}

	if c, ok := raw["code"]; ok && (string(c) == `""` || string(c) == "null") {
		delete(raw, "code")
	}

	flat, err := json.Marshal(raw)
	if err != nil {
		return DecisionOutput{}, err
	}
	var out DecisionOutput
	if err := json.Unmarshal(flat, &out); err != nil {
		return DecisionOutput{}, fmt.Errorf("invalid decision: %w", err)
	}
	if err := out.Validate(); err != nil {
		return DecisionOutput{}, err
	}
	return out, nil
}

// Validate checks that the step carries exactly the payload its type needs.
func (d DecisionOutput) Validate() error {
	var errs []error
	if len(d.PlanText) == 0 {
		errs = append(errs, errors.New("plan_text is empty"))
	}
	if !d.Type.Valid() {
		errs = append(errs, fmt.Errorf("unknown step type %q", d.Type))
	}
	hasCode := d.Code != nil && d.Code.ToolName != ""
	switch {
	case d.Type == session.StepCode && !hasCode:
		errs = append(errs, errors.New("CODE step without code.tool_name"))
	case d.Type != session.StepCode && d.Code != nil:
		errs = append(errs, fmt.Errorf("%s step must not carry code", d.Type))
	}
	switch {
	case d.Type == session.StepConclude && d.Conclusion == "":
		errs = append(errs, errors.New("CONCLUDE step without conclusion"))
	case d.Type != session.StepConclude && d.Conclusion != "":
		errs = append(errs, fmt.Errorf("%s step must not carry a conclusion", d.Type))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid decision: %w", errors.Join(errs...))
	}
	return nil
}

// NewStep builds the pending step described by the verdict.
func (d DecisionOutput) NewStep() *session.Step {
	st := &session.Step{
		Index:       d.StepIndex,
		Description: d.Description,
		Type:        d.Type,
		Conclusion:  d.Conclusion,
		Status:      session.StatusPending,
	}
	if d.Code != nil {
		args := make(map[string]any, len(d.Code.ToolArguments))
		for k, v := range d.Code.ToolArguments {
			args[k] = v
		}
		st.Code = &session.ToolCode{ToolName: d.Code.ToolName, ToolArguments: args}
	}
	return st
}
