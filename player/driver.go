package player

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/spatial/r3"

	hsm "github.com/stateforward/go-hfsm"
	"github.com/stateforward/go-hfsm/clock"
	"github.com/stateforward/go-hfsm/pkg/logger"
)

// New builds a player machine over a fresh Context.
func New(config Config, clk clock.Clock, opts ...hsm.Option) (*hsm.Machine[*Context], error) {
	player, err := NewContext(config, clk)
	if err != nil {
		return nil, err
	}
	model := Model()
	return hsm.New(&model, player, opts...), nil
}

// Snapshot is what a frame leaves behind.
type Snapshot struct {
	Frame        int        `json:"frame"`
	State        string     `json:"state"`
	States       string     `json:"states"`
	Phase        string     `json:"phase"`
	Speed        float64    `json:"speed"`
	CameraHeight float64    `json:"camera_height"`
	Grounded     bool       `json:"grounded"`
	Position     [3]float64 `json:"position"`
	Changed      bool       `json:"changed"`
	// At is the player clock when the frame ended.
	At time.Time `json:"at"`
}

// Driver advances a player machine one frame at a time: it reports state
// changes, ticks the machine and moves the character.
type Driver struct {
	Machine *hsm.Machine[*Context]

	logger *zap.Logger

	mu       sync.Mutex
	frame    int
	last     string
	position r3.Vec
}

func NewDriver(machine *hsm.Machine[*Context], log *zap.Logger) *Driver {
	if log == nil {
		log = logger.Nop()
	}
	return &Driver{Machine: machine, logger: log.Named(logger.ComponentDriver)}
}

func (d *Driver) Context() *Context {
	return d.Machine.Storage
}

func (d *Driver) Start(ctx context.Context) {
	d.Machine.Start(ctx)
}

// Frame runs one frame of dt seconds.
func (d *Driver) Frame(dt float64) Snapshot {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.frame++
	states := d.Machine.CurrentStateLog()
	changed := states != d.last
	if changed {
		d.logger.Info(states, zap.Int("frame", d.frame))
		d.last = states
	}

	d.Machine.Tick(dt)

	player := d.Machine.Storage
	raw := player.Input().Move
	direction := r3.Vec{X: raw.X, Z: raw.Y}
	d.position = r3.Add(d.position, r3.Scale(player.Speed()*dt, direction))
	return d.snapshot(states, changed)
}

func (d *Driver) Snapshot() Snapshot {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.snapshot(d.Machine.CurrentStateLog(), false)
}

func (d *Driver) snapshot(states string, changed bool) Snapshot {
	player := d.Machine.Storage
	return Snapshot{
		Frame:        d.frame,
		State:        d.Machine.State(),
		States:       states,
		Phase:        d.Machine.Phase(),
		Speed:        player.Speed(),
		CameraHeight: player.CameraHeight(),
		Grounded:     player.Grounded(),
		Position:     [3]float64{d.position.X, d.position.Y, d.position.Z},
		Changed:      changed,
		At:           player.Clock.Now(),
	}
}
