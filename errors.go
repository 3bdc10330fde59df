package hsm

import (
	"github.com/cockroachdb/errors"
)

var (
	// ErrInvariant marks a transition request that contradicts the current
	// tree, such as a source state that is not active. Nothing was mutated.
	ErrInvariant = errors.New("state machine invariant violated")
	// ErrActivityFailed marks a transition aborted by a failing enter or exit
	// activity. The machine stays faulted until Recover.
	ErrActivityFailed = errors.New("activity failed")
	// ErrLifecycle marks a gate phase change that was refused. The machine
	// faults as it would for a failed activity.
	ErrLifecycle          = errors.New("lifecycle event refused")
	ErrNotStarted         = errors.New("state machine not started")
	ErrTransitionInFlight = errors.New("transition in flight")
)

func invariantf(format string, args ...any) error {
	return errors.Mark(errors.AssertionFailedWithDepthf(1, format, args...), ErrInvariant)
}

func activityFailed(err error, phase, from, to string) error {
	return errors.Mark(errors.Wrapf(err, "%s activities for %s -> %s", phase, from, to), ErrActivityFailed)
}

func lifecycleFailed(err error, event, phase string) error {
	return errors.Mark(errors.Wrapf(err, "lifecycle event %s in phase %s", event, phase), ErrLifecycle)
}
