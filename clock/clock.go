package clock

import (
	"context"
	"sync"
	"time"
)

// Clock is the time source for timed activities.
type Clock interface {
	Now() time.Time
	// Sleep blocks for d or until ctx is done.
	Sleep(ctx context.Context, d time.Duration) error
}

type Config struct {
	// Multiplier scales the passage of time; 2 makes sleeps take half as long.
	Multiplier float64
}

var DefaultConfig = Config{
	Multiplier: 1,
}

type clock struct {
	epoch      time.Time
	multiplier float64
}

// Now runs from the moment the clock was made, scaled like Sleep.
func (c *clock) Now() time.Time {
	return c.epoch.Add(time.Duration(float64(time.Since(c.epoch)) * c.multiplier))
}

func (c *clock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(time.Duration(float64(d) / c.multiplier))
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Make returns a wall clock.
func Make(config ...Config) Clock {
	cfg := DefaultConfig
	if len(config) > 0 {
		cfg = config[0]
	}
	if cfg.Multiplier <= 0 {
		cfg.Multiplier = DefaultConfig.Multiplier
	}
	return &clock{epoch: time.Now(), multiplier: cfg.Multiplier}
}

// Virtual is a clock whose Sleep returns immediately after advancing virtual time.
type Virtual struct {
	mu    sync.Mutex
	epoch time.Time
	delta time.Duration
	slept int
}

func NewVirtual(epoch time.Time) *Virtual {
	return &Virtual{epoch: epoch}
}

func (v *Virtual) Now() time.Time {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.epoch.Add(v.delta)
}

func (v *Virtual) Advance(d time.Duration) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.delta += d
}

func (v *Virtual) Reset() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.delta = 0
	v.slept = 0
}

func (v *Virtual) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if d > 0 {
		v.delta += d
	}
	v.slept++
	return nil
}

// Sleeps reports how many times Sleep was called since the last Reset.
func (v *Virtual) Sleeps() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.slept
}
