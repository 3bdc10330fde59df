package player

import (
	"os"
	"time"

	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"

	"github.com/stateforward/go-hfsm/activity"
)

// Config holds the tunables of a player character.
type Config struct {
	WalkSpeed      float64       `yaml:"walk_speed"`
	SprintSpeed    float64       `yaml:"sprint_speed"`
	AirborneSpeed  float64       `yaml:"airborne_speed"`
	CrouchSpeed    float64       `yaml:"crouch_speed"`
	StandingHeight float64       `yaml:"standing_height"`
	CrouchHeight   float64       `yaml:"crouch_height"`
	CrouchDuration time.Duration `yaml:"crouch_duration"`
	CrouchEasing   string        `yaml:"crouch_easing"`
	// Step is the frame interval the crouch tween advances by.
	Step time.Duration `yaml:"step"`
}

var DefaultConfig = Config{
	WalkSpeed:      3,
	SprintSpeed:    7,
	AirborneSpeed:  2,
	CrouchSpeed:    1,
	StandingHeight: 1.7,
	CrouchHeight:   1,
	CrouchDuration: 1500 * time.Millisecond,
	CrouchEasing:   "InOutQuad",
	Step:           activity.DefaultStep,
}

func (c Config) Validate() error {
	var errs []error
	for _, speed := range []struct {
		name  string
		value float64
	}{
		{"walk_speed", c.WalkSpeed},
		{"sprint_speed", c.SprintSpeed},
		{"airborne_speed", c.AirborneSpeed},
		{"crouch_speed", c.CrouchSpeed},
	} {
		if speed.value < 0 {
			errs = append(errs, errors.Newf("%s must not be negative, got %g", speed.name, speed.value))
		}
	}
	if c.CrouchHeight > c.StandingHeight {
		errs = append(errs, errors.Newf("crouch_height %g is above standing_height %g", c.CrouchHeight, c.StandingHeight))
	}
	if c.CrouchDuration < 0 {
		errs = append(errs, errors.Newf("crouch_duration must not be negative, got %s", c.CrouchDuration))
	}
	if c.Step <= 0 {
		errs = append(errs, errors.Newf("step must be positive, got %s", c.Step))
	}
	if _, err := activity.Easing(c.CrouchEasing); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// ParseConfig reads YAML over DefaultConfig, so omitted keys keep their
// defaults.
func ParseConfig(data []byte) (Config, error) {
	config := DefaultConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return Config{}, errors.Wrap(err, "parsing player config")
	}
	if err := config.Validate(); err != nil {
		return Config{}, errors.Wrap(err, "invalid player config")
	}
	return config, nil
}

func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrapf(err, "reading player config %s", path)
	}
	return ParseConfig(data)
}
