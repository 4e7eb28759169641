package tween

import "math"

// Easing maps linear progress in [0,1] to eased progress.
type Easing func(t float64) float64

// Linear is the identity easing.
func Linear(t float64) float64 { return t }

// InOutSine accelerates and decelerates along a half cosine.
func InOutSine(t float64) float64 {
	return -(math.Cos(math.Pi*t) - 1) / 2
}

// InOutQuad accelerates and decelerates quadratically.
func InOutQuad(t float64) float64 {
	if t < 0.5 {
		return 2 * t * t
	}
	return 1 - math.Pow(-2*t+2, 2)/2
}

var easings = map[string]Easing{
	"linear":        Linear,
	"easeInOutSine": InOutSine,
	"easeInOutQuad": InOutQuad,
}

// EasingByName looks up an easing by its conventional name.
func EasingByName(name string) (Easing, bool) {
	e, ok := easings[name]
	return e, ok
}
