// Package player drives a first-person character through a hierarchical state
// machine: grounded locomotion (idle, walking, running, crouch) and airborne.
package player

import (
	"sync"

	"gonum.org/v1/gonum/spatial/r2"

	"github.com/stateforward/go-hfsm/activity"
	"github.com/stateforward/go-hfsm/clock"
)

// Input is the per-frame control snapshot. Move.X strafes and Move.Y moves
// forward.
type Input struct {
	Move   r2.Vec
	Sprint bool
	// Crouch flips on every crouch press.
	Crouch bool
}

// Context is the storage of a player machine. Fields written by activities
// run on transition goroutines, so all access goes through the mutex.
type Context struct {
	Config Config
	Clock  clock.Clock

	ease activity.Ease

	mu           sync.RWMutex
	speed        float64
	cameraHeight float64
	grounded     bool
	input        Input
}

func NewContext(config Config, clk clock.Clock) (*Context, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	ease, err := activity.Easing(config.CrouchEasing)
	if err != nil {
		return nil, err
	}
	if clk == nil {
		clk = clock.Make()
	}
	return &Context{
		Config:       config,
		Clock:        clk,
		ease:         ease,
		speed:        config.WalkSpeed,
		cameraHeight: config.StandingHeight,
		grounded:     true,
	}, nil
}

func (c *Context) Speed() float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.speed
}

func (c *Context) SetSpeed(speed float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.speed = speed
}

func (c *Context) CameraHeight() float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cameraHeight
}

func (c *Context) SetCameraHeight(height float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cameraHeight = height
}

func (c *Context) Grounded() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.grounded
}

func (c *Context) SetGrounded(grounded bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.grounded = grounded
}

func (c *Context) Input() Input {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.input
}

func (c *Context) SetMove(move r2.Vec) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.input.Move = move
}

func (c *Context) SetSprint(sprint bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.input.Sprint = sprint
}

func (c *Context) ToggleCrouch() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.input.Crouch = !c.input.Crouch
}

const moveThreshold = 0.01

func (c *Context) moving() bool {
	return r2.Norm(c.Input().Move) > moveThreshold
}
