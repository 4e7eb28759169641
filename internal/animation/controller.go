// Package animation drives an avatar's talking animation from a
// participant's audio level.
package animation

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/normanking/meetavatar/internal/audio"
	"github.com/normanking/meetavatar/internal/bus"
	"github.com/normanking/meetavatar/internal/identity"
	"github.com/normanking/meetavatar/internal/tween"
)

// DefaultThreshold is the audio level above which an avatar is talking.
const DefaultThreshold = 0.015

// AudioSource emits audio level samples. audio.Track implements it.
type AudioSource interface {
	On(event bus.EventType, handler audio.LevelHandler) audio.ListenerID
	Off(event bus.EventType, id audio.ListenerID)
}

// Scope identifies the rendered avatar a controller animates.
type Scope struct {
	View          string            `json:"view"`
	ParticipantID string            `json:"participantId"`
	Variants      map[string]string `json:"variants,omitempty"`
}

// Accessory returns the resolved accessory variant, or "".
func (s Scope) Accessory() string {
	return s.Variants[identity.CatalogAccessoriesName]
}

func (s Scope) selector(element string) tween.Selector {
	return tween.Selector{View: s.View, Participant: s.ParticipantID, Element: element}
}

// State is the controller lifecycle state.
type State int

const (
	StateIdle State = iota
	StateBound
	StateAnimating
)

func (s State) String() string {
	switch s {
	case StateBound:
		return "bound"
	case StateAnimating:
		return "animating"
	default:
		return "idle"
	}
}

// MarshalText renders the state name in JSON.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Config tunes the controller.
type Config struct {
	// Threshold is exclusive: a level equal to it is silence.
	Threshold float64
	// StopOnSilence stops running animations on a silent sample.
	StopOnSilence bool
}

// DefaultConfig returns the stock tuning.
func DefaultConfig() Config {
	return Config{Threshold: DefaultThreshold}
}

// Option configures a Controller.
type Option func(*Controller)

// WithConfig replaces the controller tuning.
func WithConfig(cfg Config) Option {
	return func(c *Controller) { c.cfg = cfg }
}

// WithBus publishes lifecycle events on b.
func WithBus(b *bus.EventBus) Option {
	return func(c *Controller) { c.bus = b }
}

// WithLogger sets the controller logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Controller) { c.logger = logger.With().Str("component", "animation").Logger() }
}

// Controller binds one avatar's animations to one audio source. At most one
// pair of animation handles is live at a time.
type Controller struct {
	mu       sync.Mutex
	source   AudioSource
	scope    Scope
	animator tween.Animator
	cfg      Config
	bus      *bus.EventBus
	logger   zerolog.Logger

	mounted  bool
	listener audio.ListenerID
	bound    bool
	// gen is bumped on every detach. Samples carry the generation they were
	// subscribed under and are dropped when it is stale.
	gen     uint64
	handles []tween.Handle
	state   State
}

// New creates an unmounted controller.
func New(source AudioSource, scope Scope, animator tween.Animator, opts ...Option) *Controller {
	c := &Controller{
		source:   source,
		scope:    scope,
		animator: animator,
		cfg:      DefaultConfig(),
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Mount subscribes to the audio source. With no source the controller stays
// idle.
func (c *Controller) Mount() {
	c.mu.Lock()
	if c.mounted {
		c.mu.Unlock()
		return
	}
	c.mounted = true
	events := c.attachLocked()
	c.mu.Unlock()

	c.publish(events)
}

// Unmount unsubscribes and stops any running animation. No sample delivered
// after Unmount returns has any effect.
func (c *Controller) Unmount() {
	c.mu.Lock()
	if !c.mounted {
		c.mu.Unlock()
		return
	}
	c.mounted = false
	events := c.detachLocked()
	c.mu.Unlock()

	c.publish(events)
}

// Rebind switches the controller to a new source and scope. A mounted
// controller detaches from the old source before attaching to the new one.
func (c *Controller) Rebind(source AudioSource, scope Scope) {
	c.mu.Lock()
	var events []bus.Event
	if c.mounted {
		events = c.detachLocked()
	}
	c.source = source
	c.scope = scope
	if c.mounted {
		events = append(events, c.attachLocked()...)
	}
	c.mu.Unlock()

	c.publish(events)
}

// State returns the lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Scope returns the scope currently targeted.
func (c *Controller) Scope() Scope {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.scope
}

func (c *Controller) attachLocked() []bus.Event {
	if c.source == nil {
		c.state = StateIdle
		c.logger.Debug().Str("participant", c.scope.ParticipantID).Msg("No audio source, staying idle")
		return nil
	}

	gen := c.gen
	id := c.source.On(audio.EventLevelChanged, func(level float64) {
		c.onLevel(gen, level)
	})
	if id == 0 {
		c.state = StateIdle
		c.logger.Warn().Str("participant", c.scope.ParticipantID).Msg("Audio source rejected listener")
		return nil
	}

	c.listener = id
	c.bound = true
	c.state = StateBound
	c.logger.Debug().
		Str("view", c.scope.View).
		Str("participant", c.scope.ParticipantID).
		Msg("Bound to audio source")
	return []bus.Event{c.event(bus.EventTypeAvatarBound, nil)}
}

func (c *Controller) detachLocked() []bus.Event {
	c.gen++
	var events []bus.Event
	if c.releaseLocked() {
		events = append(events, c.event(bus.EventTypeAvatarAnimationStopped, nil))
	}
	if c.bound {
		c.source.Off(audio.EventLevelChanged, c.listener)
		c.bound = false
		c.listener = 0
		events = append(events, c.event(bus.EventTypeAvatarUnbound, nil))
	}
	c.state = StateIdle
	return events
}

// releaseLocked stops and drops live handles. It reports whether any existed.
func (c *Controller) releaseLocked() bool {
	if len(c.handles) == 0 {
		return false
	}
	for _, h := range c.handles {
		h.Stop()
	}
	c.handles = nil
	return true
}

func (c *Controller) onLevel(gen uint64, level float64) {
	c.mu.Lock()
	if gen != c.gen || !c.bound {
		c.mu.Unlock()
		return
	}

	var events []bus.Event
	switch {
	case level > c.cfg.Threshold:
		c.releaseLocked()
		mouth := c.animator.Animate(MouthTimeline(c.scope))
		accessory := c.animator.Animate(AccessoryTimeline(c.scope))
		c.handles = []tween.Handle{mouth, accessory}
		mouth.Play()
		accessory.Play()
		c.state = StateAnimating
		events = append(events, c.event(bus.EventTypeAvatarAnimationStarted, map[string]any{"level": level}))
	case c.cfg.StopOnSilence:
		if c.releaseLocked() {
			c.state = StateBound
			events = append(events, c.event(bus.EventTypeAvatarAnimationStopped, map[string]any{"level": level}))
		}
	}
	c.mu.Unlock()

	c.publish(events)
}

func (c *Controller) event(t bus.EventType, data map[string]any) bus.Event {
	if data == nil {
		data = make(map[string]any, 2)
	}
	data["view"] = c.scope.View
	data["participant"] = c.scope.ParticipantID
	return bus.Event{Type: t, Data: data}
}

func (c *Controller) publish(events []bus.Event) {
	if c.bus == nil {
		return
	}
	for _, e := range events {
		c.bus.Publish(e)
	}
}
