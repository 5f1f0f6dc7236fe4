package engine

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrReasonRequired = errors.New("cancellation reason is required")
	ErrNotActionable  = errors.New("flow is not actionable")
	ErrNoTagPairs     = errors.New("no tag pairs match the policy scope")
)

// Steps of Process and Cancel, used in StepError and step metrics.
const (
	StepValidate      = "validate"
	StepComplete      = "complete_flow"
	StepCancel        = "cancel_flow"
	StepResolvePolicy = "resolve_policy"
	StepSideEffects   = "side_effects"
	StepLogs          = "update_logs"
	StepResources     = "update_resources"
	StepNotify        = "notify"
)

// StepError reports which step failed. FlowCompleted is true when the flow
// was already written as terminal before the failure; nothing is rolled back.
type StepError struct {
	Step          string
	FlowID        int64
	FlowCompleted bool
	Err           error
}

func (e *StepError) Error() string {
	msg := fmt.Sprintf("flow %d: %s: %v", e.FlowID, e.Step, e.Err)
	if e.FlowCompleted {
		msg += " (flow already terminal)"
	}
	return msg
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// VerificationError lists log rows that did not reach the target status.
type VerificationError struct {
	FlowID int64
	Status string
	LogIDs []int64
	Err    error
}

func (e *VerificationError) Error() string {
	ids := make([]string, 0, len(e.LogIDs))
	for _, id := range e.LogIDs {
		ids = append(ids, fmt.Sprintf("%d", id))
	}
	msg := fmt.Sprintf("flow %d: logs [%s] not %s after update", e.FlowID, strings.Join(ids, ","), e.Status)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *VerificationError) Unwrap() error {
	return e.Err
}
