package activity

import (
	"math"
	"sort"

	"github.com/cockroachdb/errors"
)

// Ease maps linear progress in [0,1] to eased progress.
type Ease func(t float64) float64

func Linear(t float64) float64 { return t }

func InQuad(t float64) float64 { return t * t }

func OutQuad(t float64) float64 { return t * (2 - t) }

func InOutQuad(t float64) float64 {
	if t < 0.5 {
		return 2 * t * t
	}
	return -1 + (4-2*t)*t
}

func InSine(t float64) float64 { return 1 - math.Cos(t*math.Pi/2) }

func OutSine(t float64) float64 { return math.Sin(t * math.Pi / 2) }

func InOutSine(t float64) float64 { return -(math.Cos(math.Pi*t) - 1) / 2 }

func InCubic(t float64) float64 { return t * t * t }

func OutCubic(t float64) float64 {
	u := t - 1
	return u*u*u + 1
}

func InOutCubic(t float64) float64 {
	if t < 0.5 {
		return 4 * t * t * t
	}
	u := 2*t - 2
	return u*u*u/2 + 1
}

var eases = map[string]Ease{
	"Linear":     Linear,
	"InQuad":     InQuad,
	"OutQuad":    OutQuad,
	"InOutQuad":  InOutQuad,
	"InSine":     InSine,
	"OutSine":    OutSine,
	"InOutSine":  InOutSine,
	"InCubic":    InCubic,
	"OutCubic":   OutCubic,
	"InOutCubic": InOutCubic,
}

var ErrUnknownEase = errors.New("unknown ease")

// Easing looks up an ease by name. The empty name is Linear.
func Easing(name string) (Ease, error) {
	if name == "" {
		return Linear, nil
	}
	ease, ok := eases[name]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownEase, "%q (known: %v)", name, EaseNames())
	}
	return ease, nil
}

func EaseNames() []string {
	names := make([]string, 0, len(eases))
	for name := range eases {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
