package tween

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// Selector addresses one element inside one rendered avatar. View and
// Participant together scope the lookup so that two avatars never share
// targets.
type Selector struct {
	View        string `json:"view"`
	Participant string `json:"participant"`
	Element     string `json:"element"`
}

// Target is an animatable element.
type Target interface {
	SetPath(Path)
	SetOffset(mgl32.Vec2)
}

// Resolver finds the targets a selector addresses. An unresolved selector
// yields no targets.
type Resolver interface {
	Resolve(Selector) []Target
}

// Track is a keyframed property.
type Track interface {
	// Len is the number of keyframes.
	Len() int
	apply(targets []Target, progress float64, ease Easing)
}

// PathTrack animates an element's path data through each keyframe shape.
type PathTrack []Path

// Len implements Track
func (tr PathTrack) Len() int { return len(tr) }

func (tr PathTrack) apply(targets []Target, progress float64, ease Easing) {
	if len(tr) == 0 {
		return
	}
	i, local := segment(progress, len(tr), ease)
	var p Path
	if i+1 < len(tr) {
		p = tr[i].Lerp(tr[i+1], local)
	} else {
		p = tr[i]
	}
	for _, t := range targets {
		t.SetPath(p)
	}
}

// OffsetTrack animates an element's translation through absolute offsets.
type OffsetTrack []mgl32.Vec2

// Len implements Track
func (tr OffsetTrack) Len() int { return len(tr) }

func (tr OffsetTrack) apply(targets []Target, progress float64, ease Easing) {
	if len(tr) == 0 {
		return
	}
	i, local := segment(progress, len(tr), ease)
	v := tr[i]
	if i+1 < len(tr) {
		v = lerpVec(tr[i], tr[i+1], local)
	}
	for _, t := range targets {
		t.SetOffset(v)
	}
}

// Axis names one translation axis.
type Axis int

const (
	AxisX Axis = iota
	AxisY
)

// AxisKey moves a single axis to an absolute value.
type AxisKey struct {
	Axis  Axis
	Value float32
}

// TranslateX is an AxisKey on the x axis.
func TranslateX(v float32) AxisKey { return AxisKey{Axis: AxisX, Value: v} }

// TranslateY is an AxisKey on the y axis.
func TranslateY(v float32) AxisKey { return AxisKey{Axis: AxisY, Value: v} }

// AxisOffsets builds an OffsetTrack starting at the origin. Each key sets
// one axis and the other axis holds its previous value.
func AxisOffsets(keys ...AxisKey) OffsetTrack {
	tr := make(OffsetTrack, 0, len(keys)+1)
	pos := mgl32.Vec2{}
	tr = append(tr, pos)
	for _, k := range keys {
		pos[k.Axis] = k.Value
		tr = append(tr, pos)
	}
	return tr
}

// segment splits overall progress evenly across keyframe intervals and
// eases within the active interval.
func segment(progress float64, frames int, ease Easing) (int, float32) {
	if frames <= 1 {
		return 0, 0
	}
	if ease == nil {
		ease = Linear
	}
	progress = math.Max(0, math.Min(1, progress))
	pos := progress * float64(frames-1)
	i := int(math.Floor(pos))
	if i >= frames-1 {
		return frames - 2, 1
	}
	return i, float32(ease(pos - float64(i)))
}
