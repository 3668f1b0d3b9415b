// Package saga runs a fixed list of named steps, undoing the completed
// ones in reverse order when a later step fails.
package saga

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// Step is one unit of a Sequence. Backward may be nil for steps with
// nothing to undo.
type Step struct {
	Name     string
	Forward  func(ctx context.Context) error
	Backward func(ctx context.Context) error
}

// StepError reports the step whose forward action failed.
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %q: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// Sequence is an ordered list of steps.
type Sequence struct {
	name  string
	steps []Step
}

func New(name string, steps ...Step) *Sequence {
	return &Sequence{name: name, steps: steps}
}

// Add appends a step and returns the sequence for chaining.
func (s *Sequence) Add(step Step) *Sequence {
	s.steps = append(s.steps, step)
	return s
}

// Run executes forward steps in order. On the first failure it runs the
// backward actions of every completed step in reverse, then returns the
// step failure joined with any rollback failures.
func (s *Sequence) Run(ctx context.Context) error {
	for i, step := range s.steps {
		err := step.Forward(ctx)
		if err == nil {
			continue
		}

		failure := &StepError{Step: step.Name, Err: err}
		rollbackErrs := s.rollback(ctx, i)
		if len(rollbackErrs) == 0 {
			return fmt.Errorf("%s: %w", s.name, failure)
		}
		return fmt.Errorf("%s: %w", s.name, errors.Join(append([]error{failure}, rollbackErrs...)...))
	}
	return nil
}

// rollback undoes steps[0:failed] in reverse order.
func (s *Sequence) rollback(ctx context.Context, failed int) []error {
	// Compensation must run even if the request was canceled.
	ctx = context.WithoutCancel(ctx)

	var errs []error
	for i := failed - 1; i >= 0; i-- {
		step := s.steps[i]
		if step.Backward == nil {
			continue
		}
		if err := step.Backward(ctx); err != nil {
			slog.ErrorContext(ctx, "compensation step failed",
				"sequence", s.name,
				"step", step.Name,
				"error", err,
			)
			errs = append(errs, fmt.Errorf("undo %q: %w", step.Name, err))
		}
	}
	return errs
}
