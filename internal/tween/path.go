// Package tween animates keyframed properties of scene elements over time.
package tween

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-gl/mathgl/mgl32"
)

// ErrInvalidPath is returned for path data outside the supported M/C/Z subset.
var ErrInvalidPath = errors.New("invalid path data")

// Segment is one cubic Bézier curve ending at To.
type Segment struct {
	C1 mgl32.Vec2
	C2 mgl32.Vec2
	To mgl32.Vec2
}

// Path is an absolute SVG path made of a move and cubic curves.
type Path struct {
	Start    mgl32.Vec2
	Segments []Segment
	Closed   bool
}

// ParsePath parses "M x y C x1 y1 x2 y2 x y ... [Z]".
func ParsePath(d string) (Path, error) {
	tokens := strings.Fields(strings.ReplaceAll(d, ",", " "))
	var p Path
	if len(tokens) < 3 || tokens[0] != "M" {
		return p, fmt.Errorf("%w: must start with M", ErrInvalidPath)
	}

	nums, err := parseFloats(tokens[1:3])
	if err != nil {
		return p, err
	}
	p.Start = mgl32.Vec2{nums[0], nums[1]}

	i := 3
	for i < len(tokens) {
		switch tokens[i] {
		case "Z", "z":
			if i != len(tokens)-1 {
				return p, fmt.Errorf("%w: Z must be last", ErrInvalidPath)
			}
			p.Closed = true
			i++
		case "C":
			i++
			for i+6 <= len(tokens) && !isCommand(tokens[i]) {
				nums, err := parseFloats(tokens[i : i+6])
				if err != nil {
					return p, err
				}
				p.Segments = append(p.Segments, Segment{
					C1: mgl32.Vec2{nums[0], nums[1]},
					C2: mgl32.Vec2{nums[2], nums[3]},
					To: mgl32.Vec2{nums[4], nums[5]},
				})
				i += 6
			}
			if i < len(tokens) && !isCommand(tokens[i]) {
				return p, fmt.Errorf("%w: incomplete curve", ErrInvalidPath)
			}
		default:
			return p, fmt.Errorf("%w: unsupported command %q", ErrInvalidPath, tokens[i])
		}
	}
	return p, nil
}

// MustParsePath is ParsePath for package-level keyframe tables.
func MustParsePath(d string) Path {
	p, err := ParsePath(d)
	if err != nil {
		panic(err)
	}
	return p
}

// String renders p back to SVG path data.
func (p Path) String() string {
	var b strings.Builder
	b.WriteString("M ")
	writeVec(&b, p.Start)
	for _, s := range p.Segments {
		b.WriteString(" C ")
		writeVec(&b, s.C1)
		b.WriteByte(' ')
		writeVec(&b, s.C2)
		b.WriteByte(' ')
		writeVec(&b, s.To)
	}
	if p.Closed {
		b.WriteString(" Z")
	}
	return b.String()
}

// Compatible reports whether p and q can be interpolated point by point.
func (p Path) Compatible(q Path) bool {
	return len(p.Segments) == len(q.Segments) && p.Closed == q.Closed
}

// Lerp interpolates from p to q. Incompatible paths switch at the midpoint.
func (p Path) Lerp(q Path, t float32) Path {
	if !p.Compatible(q) {
		if t < 0.5 {
			return p
		}
		return q
	}
	out := Path{
		Start:    lerpVec(p.Start, q.Start, t),
		Segments: make([]Segment, len(p.Segments)),
		Closed:   p.Closed,
	}
	for i := range p.Segments {
		a, b := p.Segments[i], q.Segments[i]
		out.Segments[i] = Segment{
			C1: lerpVec(a.C1, b.C1, t),
			C2: lerpVec(a.C2, b.C2, t),
			To: lerpVec(a.To, b.To, t),
		}
	}
	return out
}

func lerpVec(a, b mgl32.Vec2, t float32) mgl32.Vec2 {
	return a.Add(b.Sub(a).Mul(t))
}

func isCommand(tok string) bool {
	switch tok {
	case "M", "C", "Z", "z":
		return true
	}
	return false
}

func parseFloats(tokens []string) ([]float32, error) {
	out := make([]float32, len(tokens))
	for i, tok := range tokens {
		v, err := strconv.ParseFloat(tok, 32)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPath, err)
		}
		out[i] = float32(v)
	}
	return out, nil
}

func writeVec(b *strings.Builder, v mgl32.Vec2) {
	b.WriteString(strconv.FormatFloat(float64(v.X()), 'f', -1, 32))
	b.WriteByte(' ')
	b.WriteString(strconv.FormatFloat(float64(v.Y()), 'f', -1, 32))
}
