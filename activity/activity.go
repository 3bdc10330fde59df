// Package activity holds the asynchronous side effects a state runs while it is
// being entered or exited, and the Sequencer that runs them in order.
package activity

import (
	"context"
	"fmt"
	"time"

	"github.com/stateforward/go-hfsm/clock"
)

// Activity is a unit of work that must finish before the state it is attached
// to counts as entered or exited.
type Activity interface {
	Perform(ctx context.Context) error
}

type Func func(ctx context.Context) error

func (fn Func) Perform(ctx context.Context) error {
	if fn == nil {
		return nil
	}
	return fn(ctx)
}

type nop struct{}

func (nop) Perform(context.Context) error { return nil }

func (nop) String() string { return "nop" }

// Nop completes immediately.
var Nop Activity = nop{}

type delay struct {
	clock    clock.Clock
	duration time.Duration
}

// Delay waits out d on clk.
func Delay(clk clock.Clock, d time.Duration) Activity {
	return &delay{clock: clk, duration: d}
}

func (d *delay) Perform(ctx context.Context) error {
	return d.clock.Sleep(ctx, d.duration)
}

func (d *delay) String() string {
	return fmt.Sprintf("delay(%s)", d.duration)
}

const DefaultStep = time.Second / 60

// Tween moves a value from whatever Get reports when it starts to To, over
// Duration, advancing once per Step.
type Tween struct {
	Name     string
	Clock    clock.Clock
	Get      func() float64
	Set      func(float64)
	To       float64
	Duration time.Duration
	Ease     Ease
	Step     time.Duration
}

func (t *Tween) Perform(ctx context.Context) error {
	from := t.Get()
	if t.Duration <= 0 {
		t.Set(t.To)
		return nil
	}
	ease := t.Ease
	if ease == nil {
		ease = Linear
	}
	step := t.Step
	if step <= 0 {
		step = DefaultStep
	}
	for elapsed := time.Duration(0); elapsed < t.Duration; {
		next := min(step, t.Duration-elapsed)
		if err := t.Clock.Sleep(ctx, next); err != nil {
			return err
		}
		elapsed += next
		progress := float64(elapsed) / float64(t.Duration)
		t.Set(from + (t.To-from)*ease(progress))
	}
	return nil
}

func (t *Tween) String() string {
	if t.Name != "" {
		return t.Name
	}
	return fmt.Sprintf("tween(%g over %s)", t.To, t.Duration)
}

// Name returns a printable name for an activity.
func Name(a Activity) string {
	if s, ok := a.(fmt.Stringer); ok {
		return s.String()
	}
	return fmt.Sprintf("%T", a)
}
