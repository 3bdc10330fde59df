package player

import (
	"context"
	"os"

	"github.com/cockroachdb/errors"
	"gonum.org/v1/gonum/spatial/r2"
	"gopkg.in/yaml.v3"
)

// Step is one scripted input change, held for Frames frames.
type Step struct {
	Frames int `yaml:"frames"`
	// Move is [x, y]; omitted keeps the previous value.
	Move     []float64 `yaml:"move"`
	Sprint   *bool     `yaml:"sprint"`
	Grounded *bool     `yaml:"grounded"`
	// Crouch presses the crouch toggle on the first frame of the step.
	Crouch bool `yaml:"crouch"`
	// Settle waits for any transition in flight after the last frame.
	Settle bool `yaml:"settle"`
}

type Script struct {
	Name  string `yaml:"name"`
	Steps []Step `yaml:"steps"`
}

func ParseScript(data []byte) (Script, error) {
	var script Script
	if err := yaml.Unmarshal(data, &script); err != nil {
		return Script{}, errors.Wrap(err, "parsing input script")
	}
	for i := range script.Steps {
		step := &script.Steps[i]
		if step.Frames == 0 {
			step.Frames = 1
		}
		if step.Frames < 0 {
			return Script{}, errors.Newf("step %d: frames must be positive, got %d", i, step.Frames)
		}
		if step.Move != nil && len(step.Move) != 2 {
			return Script{}, errors.Newf("step %d: move needs two components, got %d", i, len(step.Move))
		}
	}
	return script, nil
}

func LoadScript(path string) (Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Script{}, errors.Wrapf(err, "reading input script %s", path)
	}
	return ParseScript(data)
}

func (s Step) apply(player *Context) {
	if s.Move != nil {
		player.SetMove(r2.Vec{X: s.Move[0], Y: s.Move[1]})
	}
	if s.Sprint != nil {
		player.SetSprint(*s.Sprint)
	}
	if s.Grounded != nil {
		player.SetGrounded(*s.Grounded)
	}
	if s.Crouch {
		player.ToggleCrouch()
	}
}

// Replay feeds script to the driver at dt seconds per frame and hands every
// snapshot to observe. pace, when set, runs between frames.
func Replay(ctx context.Context, driver *Driver, script Script, dt float64, pace func(context.Context) error, observe func(Snapshot)) error {
	for i, step := range script.Steps {
		for frame := 0; frame < step.Frames; frame++ {
			if err := ctx.Err(); err != nil {
				return err
			}
			if frame == 0 {
				step.apply(driver.Context())
			}
			snapshot := driver.Frame(dt)
			if observe != nil {
				observe(snapshot)
			}
			if pace != nil {
				if err := pace(ctx); err != nil {
					return err
				}
			}
		}
		if step.Settle {
			if err := driver.Machine.Wait(ctx); err != nil {
				return errors.Wrapf(err, "step %d", i)
			}
		}
	}
	return nil
}
