package tween

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Direction controls how a timeline traverses its keyframes.
type Direction int

const (
	// DirectionNormal plays first to last keyframe once.
	DirectionNormal Direction = iota
	// DirectionAlternate plays forward, then back to the first keyframe.
	DirectionAlternate
)

// Spec describes one animation.
type Spec struct {
	Target    Selector
	Track     Track
	Easing    Easing
	Duration  time.Duration
	Direction Direction
}

// Handle controls a created animation.
type Handle interface {
	Play()
	Pause()
	Stop()
	IsPlaying() bool
}

// Animator creates animations. Engine is the production implementation.
type Animator interface {
	Animate(spec Spec) Handle
}

// Engine owns all live timelines and advances them on a shared clock.
type Engine struct {
	mu        sync.Mutex
	resolver  Resolver
	timelines map[*Timeline]struct{}
	logger    zerolog.Logger
}

// NewEngine creates an engine that resolves targets through resolver
func NewEngine(resolver Resolver, logger zerolog.Logger) *Engine {
	return &Engine{
		resolver:  resolver,
		timelines: make(map[*Timeline]struct{}),
		logger:    logger.With().Str("component", "tween").Logger(),
	}
}

// Animate registers a paused timeline for spec.
func (e *Engine) Animate(spec Spec) Handle {
	if spec.Easing == nil {
		spec.Easing = Linear
	}
	tl := &Timeline{engine: e, spec: spec}

	e.mu.Lock()
	e.timelines[tl] = struct{}{}
	e.mu.Unlock()

	return tl
}

// Advance moves every playing timeline forward by dt and applies the
// resulting values. Finished timelines are released.
func (e *Engine) Advance(dt time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for tl := range e.timelines {
		if !tl.playing {
			continue
		}
		tl.elapsed += dt
		total := tl.total()
		if tl.elapsed >= total {
			tl.elapsed = total
			tl.playing = false
			tl.finished = true
		}
		e.applyLocked(tl)
		if tl.finished {
			delete(e.timelines, tl)
		}
	}
}

// Run advances the engine at frameRate until ctx is cancelled.
func (e *Engine) Run(ctx context.Context, frameRate int) error {
	if frameRate <= 0 {
		frameRate = 30
	}
	interval := time.Second / time.Duration(frameRate)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	e.logger.Info().Int("fps", frameRate).Msg("Animation engine started")
	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			e.logger.Info().Msg("Animation engine stopped")
			return ctx.Err()
		case now := <-ticker.C:
			e.Advance(now.Sub(last))
			last = now
		}
	}
}

// Active returns the number of registered timelines, playing or paused.
func (e *Engine) Active() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.timelines)
}

// Playing returns the number of timelines currently playing.
func (e *Engine) Playing() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for tl := range e.timelines {
		if tl.playing {
			n++
		}
	}
	return n
}

func (e *Engine) applyLocked(tl *Timeline) {
	if e.resolver == nil || tl.spec.Track == nil {
		return
	}
	targets := e.resolver.Resolve(tl.spec.Target)
	if len(targets) == 0 {
		return
	}
	tl.spec.Track.apply(targets, tl.progress(), tl.spec.Easing)
}

// Timeline is one animation instance. All state is guarded by the owning
// engine's lock.
type Timeline struct {
	engine   *Engine
	spec     Spec
	elapsed  time.Duration
	playing  bool
	finished bool
}

// Play starts or resumes the timeline. A finished or stopped timeline
// restarts from the beginning.
func (t *Timeline) Play() {
	e := t.engine
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, live := e.timelines[t]; !live || t.finished {
		t.elapsed = 0
		t.finished = false
		e.timelines[t] = struct{}{}
	}
	t.playing = true
}

// Pause freezes the timeline at its current position.
func (t *Timeline) Pause() {
	t.engine.mu.Lock()
	defer t.engine.mu.Unlock()
	t.playing = false
}

// Stop rewinds targets to the first keyframe and releases the timeline
// from the engine.
func (t *Timeline) Stop() {
	e := t.engine
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, live := e.timelines[t]; !live && t.elapsed == 0 {
		return
	}
	t.playing = false
	t.elapsed = 0
	e.applyLocked(t)
	delete(e.timelines, t)
}

// IsPlaying reports whether the timeline is advancing.
func (t *Timeline) IsPlaying() bool {
	t.engine.mu.Lock()
	defer t.engine.mu.Unlock()
	return t.playing
}

// Spec returns the timeline's animation spec.
func (t *Timeline) Spec() Spec {
	return t.spec
}

func (t *Timeline) total() time.Duration {
	if t.spec.Direction == DirectionAlternate {
		return 2 * t.spec.Duration
	}
	return t.spec.Duration
}

// progress returns the keyframe position in [0,1].
func (t *Timeline) progress() float64 {
	d := t.spec.Duration
	if d <= 0 {
		if t.finished {
			if t.spec.Direction == DirectionAlternate {
				return 0
			}
			return 1
		}
		return 0
	}
	p := float64(t.elapsed) / float64(d)
	if t.spec.Direction == DirectionAlternate && p > 1 {
		p = 2 - p
	}
	if p < 0 {
		return 0
	}
	if p > 1 {
		return 1
	}
	return p
}
