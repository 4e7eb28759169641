package animation

import (
	"time"

	"github.com/normanking/meetavatar/internal/tween"
)

// MouthElement is the scene element the talking animation drives.
const MouthElement = "Mouth/Smile"

const (
	MouthDuration     = 600 * time.Millisecond
	AccessoryDuration = 5000 * time.Millisecond
)

// Talking mouth shapes. First and last are the closed rest shape.
var mouthKeyframes = tween.PathTrack{
	tween.MustParsePath("M 43 15 C 43 15 43 17 54 16 C 65 17 64 15 65 15 Z"),
	tween.MustParsePath("M 43 15 C 43 15 41 25 54 29 C 67 25 64 15 65 15 Z"),
	tween.MustParsePath("M 43 15 C 43 15 48 19 54 18 C 61 19 65 15 65 15 Z"),
	tween.MustParsePath("M 43 15 C 43 15 39 26 49 26 C 68 26 65 15 65 15 Z"),
	tween.MustParsePath("M 43 15 C 43 15 48 17 54 16 C 61 17 65 15 65 15 Z"),
	tween.MustParsePath("M 43 15 C 43 15 39 31 54 32 C 69 31 65 15 65 15 Z"),
	tween.MustParsePath("M 43 15 C 43 15 43 17 54 16 C 65 17 64 15 65 15 Z"),
}

var accessoryKeyframes = tween.AxisOffsets(
	tween.TranslateY(3),
	tween.TranslateX(6),
	tween.TranslateY(-3),
	tween.TranslateX(-6),
)

// MouthRest returns the closed mouth shape a scene mounts with.
func MouthRest() tween.Path {
	return mouthKeyframes[0]
}

// MouthTimeline describes the talking animation for scope.
func MouthTimeline(scope Scope) tween.Spec {
	return tween.Spec{
		Target:   scope.selector(MouthElement),
		Track:    mouthKeyframes,
		Easing:   tween.InOutSine,
		Duration: MouthDuration,
	}
}

// AccessoryTimeline describes the accessory sway for scope. A scope without
// an accessory variant yields a selector that resolves nothing.
func AccessoryTimeline(scope Scope) tween.Spec {
	return tween.Spec{
		Target:    scope.selector(scope.Accessory()),
		Track:     accessoryKeyframes,
		Easing:    tween.InOutSine,
		Duration:  AccessoryDuration,
		Direction: tween.DirectionAlternate,
	}
}
