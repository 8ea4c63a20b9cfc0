package chronicle

import "fmt"

// ChronicleError reports an invalid scene spec. StepIndex is -1 for problems
// outside the step list.
type ChronicleError struct {
	StepIndex int32  `json:"step_index"`
	Reason    string `json:"reason"`
	Message   string `json:"message"`
}

func (e *ChronicleError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("chronicle error(step=%d reason=%s): %s", e.StepIndex, e.Reason, e.Message)
}
