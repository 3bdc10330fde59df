package player

import (
	"context"

	hsm "github.com/stateforward/go-hfsm"
	"github.com/stateforward/go-hfsm/activity"
)

// Qualified names of the player states.
const (
	Root     = "/"
	Grounded = "/grounded"
	Idle     = "/grounded/idle"
	Walking  = "/grounded/walking"
	Running  = "/grounded/running"
	Crouch   = "/grounded/crouch"
	Airborne = "/airborne"
)

func crouched(c *Context) bool { return c.Input().Crouch }

func standing(c *Context) bool { return !c.Input().Crouch }

func moving(c *Context) bool { return c.moving() }

func still(c *Context) bool { return !c.moving() }

func sprinting(c *Context) bool { return c.Input().Sprint }

func strolling(c *Context) bool { return !c.Input().Sprint }

func falling(c *Context) bool { return !c.Grounded() }

func landed(c *Context) bool { return c.Grounded() }

// Model declares the player state tree. Transitions are listed in the order
// they take priority.
func Model() hsm.Model {
	return hsm.Define("player",
		hsm.Initial("grounded"),
		hsm.State("grounded",
			hsm.Initial("idle"),
			hsm.Transition(hsm.Target(Airborne), hsm.Guard(falling)),
			hsm.State("idle",
				hsm.Entry(func(c *Context) { c.SetSpeed(0) }),
				hsm.Transition(hsm.Target("../crouch"), hsm.Guard(crouched)),
				hsm.Transition(hsm.Target("../walking"), hsm.Guard(moving)),
			),
			hsm.State("walking",
				hsm.Entry(func(c *Context) { c.SetSpeed(c.Config.WalkSpeed) }),
				hsm.Transition(hsm.Target("../crouch"), hsm.Guard(crouched)),
				hsm.Transition(hsm.Target("../idle"), hsm.Guard(still)),
				hsm.Transition(hsm.Target("../running"), hsm.Guard(sprinting)),
			),
			hsm.State("running",
				hsm.Entry(func(c *Context) { c.SetSpeed(c.Config.SprintSpeed) }),
				hsm.Transition(hsm.Target("../crouch"), hsm.Guard(crouched)),
				hsm.Transition(hsm.Target("../idle"), hsm.Guard(still)),
				hsm.Transition(hsm.Target("../walking"), hsm.Guard(strolling)),
			),
			hsm.State("crouch",
				hsm.EnterActivity(func(c *Context) activity.Activity { return &crouchActivity{player: c, down: true} }),
				hsm.ExitActivity(func(c *Context) activity.Activity { return &crouchActivity{player: c} }),
				hsm.Entry(func(c *Context) { c.SetSpeed(c.Config.WalkSpeed * 0.5) }),
				hsm.Exit(func(c *Context) { c.SetSpeed(c.Config.WalkSpeed) }),
				hsm.Transition(hsm.Target("../idle"), hsm.Guard(standing)),
			),
		),
		hsm.State("airborne",
			hsm.Entry(func(c *Context) { c.SetSpeed(c.Config.AirborneSpeed) }),
			hsm.Transition(hsm.Target(Grounded), hsm.Guard(landed)),
		),
	)
}

// crouchActivity lowers the camera to the crouch height, or raises it back to
// standing height.
type crouchActivity struct {
	player *Context
	down   bool
}

func (a *crouchActivity) Perform(ctx context.Context) error {
	to := a.player.Config.StandingHeight
	if a.down {
		a.player.SetSpeed(a.player.Config.CrouchSpeed)
		to = a.player.Config.CrouchHeight
	}
	tween := activity.Tween{
		Name:     a.String(),
		Clock:    a.player.Clock,
		Get:      a.player.CameraHeight,
		Set:      a.player.SetCameraHeight,
		To:       to,
		Duration: a.player.Config.CrouchDuration,
		Ease:     a.player.ease,
		Step:     a.player.Config.Step,
	}
	return tween.Perform(ctx)
}

func (a *crouchActivity) String() string {
	if a.down {
		return "crouch down"
	}
	return "stand up"
}
