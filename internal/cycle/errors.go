package cycle

import (
	"errors"
	"fmt"

	"github.com/banabets/else/internal/model"
)

// StepError tags a failure with the step it happened in.
type StepError struct {
	Step model.Step
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

func stepErr(step model.Step, err error) error {
	if err == nil {
		return nil
	}
	var se *StepError
	if errors.As(err, &se) {
		return err
	}
	return &StepError{Step: step, Err: err}
}
