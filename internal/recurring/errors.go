package recurring

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Pipeline steps
const (
	StepPrecondition = "precondition"
	StepIdea         = "idea"
	StepVideo        = "video"
	StepCaption      = "caption"
	StepPublish      = "publish"
)

// Error kinds used to classify a failed step.
const (
	KindConfiguration = "configuration"
	KindProvider      = "provider"
	KindTransient     = "transient"
)

var (
	// ErrSkipped is returned when a rule is not processed because its
	// preconditions are not met. It is not a failure.
	ErrSkipped = errors.New("rule skipped")

	ErrConfiguration = errors.New("configuration error")
	ErrProvider      = errors.New("provider error")
	ErrTransient     = errors.New("transient error")

	// ErrNoIntegrations means none of the rule's integration IDs matched a
	// live integration of its organization.
	ErrNoIntegrations = errors.New("no valid integrations found")

	// ErrMalformedSchedule marks a rule whose schedule or schedule time
	// cannot be interpreted.
	ErrMalformedSchedule = errors.New("malformed schedule")

	// ErrCycleInProgress is returned when a cycle is started while another
	// one is still running.
	ErrCycleInProgress = errors.New("recurring cycle already in progress")
)

// StepError reports which pipeline step failed for a rule and how the
// failure is classified.
type StepError struct {
	RuleID string
	Step   string
	Kind   string
	Err    error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("rule %s: %s step failed (%s): %v", e.RuleID, e.Step, e.Kind, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is match a StepError against the kind sentinels.
func (e *StepError) Is(target error) bool {
	switch target {
	case ErrConfiguration:
		return e.Kind == KindConfiguration
	case ErrProvider:
		return e.Kind == KindProvider
	case ErrTransient:
		return e.Kind == KindTransient
	}
	return false
}

// KindOf returns the classification of err, or "" if err is not a StepError.
func KindOf(err error) string {
	var stepErr *StepError
	if errors.As(err, &stepErr) {
		return stepErr.Kind
	}
	return ""
}

// StepOf returns the step at which err occurred, or "" if unknown.
func StepOf(err error) string {
	var stepErr *StepError
	if errors.As(err, &stepErr) {
		return stepErr.Step
	}
	return ""
}

// classify picks the error kind for a step failure. Timeouts and network
// failures are transient regardless of the step's default kind.
func classify(err error, defaultKind string) string {
	if errors.Is(err, ErrConfiguration) {
		return KindConfiguration
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return KindTransient
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return KindTransient
	}
	return defaultKind
}
