package audio

import (
	"math"

	"github.com/normanking/meetavatar/internal/bus"
	"github.com/rs/zerolog"
)

// Track is the audio-level source of one participant. Levels are delivered
// synchronously on the emitting goroutine, in emission order.
type Track struct {
	participantID string
	events        *bus.EventBus
	meter         *Meter
	logger        zerolog.Logger
}

// NewTrack creates a track for participantID
func NewTrack(participantID string, meter *MeterConfig, logger zerolog.Logger) *Track {
	return &Track{
		participantID: participantID,
		events:        bus.NewEventBus(),
		meter:         NewMeter(meter),
		logger: logger.With().
			Str("component", "audio-track").
			Str("participant", participantID).
			Logger(),
	}
}

// ParticipantID returns the owning participant
func (t *Track) ParticipantID() string {
	return t.participantID
}

// On registers handler for event. Unknown events register nothing and
// return a zero ListenerID.
func (t *Track) On(event bus.EventType, handler LevelHandler) ListenerID {
	if event != EventLevelChanged || handler == nil {
		t.logger.Debug().Str("event", string(event)).Msg("Ignoring listener for unsupported event")
		return 0
	}
	return t.events.Subscribe(event, func(e bus.Event) {
		if level, ok := e.Data["level"].(float64); ok {
			handler(level)
		}
	})
}

// Off removes a listener registered with On. Removing an unknown listener
// is a no-op.
func (t *Track) Off(event bus.EventType, id ListenerID) {
	if id == 0 {
		return
	}
	if err := t.events.Unsubscribe(event, id); err != nil {
		t.logger.Debug().Err(err).Msg("Listener already removed")
	}
}

// Listeners returns the number of attached level listeners
func (t *Track) Listeners() int {
	return t.events.Count(EventLevelChanged)
}

// EmitLevel publishes a level, clamped to [0,1]
func (t *Track) EmitLevel(level float64) {
	if math.IsNaN(level) {
		level = 0
	}
	level = math.Max(0, math.Min(1, level))
	t.events.Publish(bus.Event{
		Type: EventLevelChanged,
		Data: map[string]any{
			"participant": t.participantID,
			"level":       level,
		},
	})
}

// WritePCM meters a PCM chunk and emits the resulting level
func (t *Track) WritePCM(data []byte, bitDepth int) (float64, error) {
	level, err := t.meter.Process(data, bitDepth)
	if err != nil {
		return 0, err
	}
	t.EmitLevel(level)
	return level, nil
}

// Close detaches every listener
func (t *Track) Close() {
	t.events.Clear()
	t.meter.Reset()
}
