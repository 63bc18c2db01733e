package survey

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrTaskNotFound     = errors.New("task not found")
	ErrTaskUnavailable  = errors.New("task is not available")
	ErrWrongModuleType  = errors.New("module does not run in the survey engine")
	ErrNotActive        = errors.New("survey is no longer active")
	ErrUnknownQuestion  = errors.New("question is not on the current section")
	ErrNotAnswerable    = errors.New("question does not take an answer")
	ErrUnknownOption    = errors.New("option is not offered by this question")
	ErrUnsupportedShape = errors.New("unsupported question type")
)

// ValidationError lists visible required questions left unanswered on the
// current section. It blocks the advance and nothing else.
type ValidationError struct {
	Missing []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("required questions unanswered: %s", strings.Join(e.Missing, ", "))
}

func IsValidationError(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}
