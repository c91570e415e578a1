package pipeline

import (
	"errors"
	"fmt"
)

// Rejection codes for RejectedInputError.
const (
	CodeEmptyInput       = "EMPTY_INPUT"
	CodeInputTooLong     = "INPUT_TOO_LONG"
	CodePromptInjection  = "PROMPT_INJECTION_DETECTED"
	CodeMalformedRequest = "MALFORMED_REQUEST"
)

// RejectedInputError means the incoming message failed validation. The turn
// is terminal before any thread state is touched.
type RejectedInputError struct {
	Code    string
	Message string
}

func (e *RejectedInputError) Error() string {
	return fmt.Sprintf("input rejected (%s): %s", e.Code, e.Message)
}

// IsRejectedInput reports whether err wraps a RejectedInputError.
func IsRejectedInput(err error) bool {
	var re *RejectedInputError
	return errors.As(err, &re)
}
