// Package audio provides per-participant audio-level sources.
package audio

import (
	"errors"

	"github.com/normanking/meetavatar/internal/bus"
)

// Common errors
var (
	ErrInvalidFormat    = errors.New("invalid audio format")
	ErrTrackNotFound    = errors.New("audio track not found")
	ErrEmptyParticipant = errors.New("participant id is required")
)

// EventLevelChanged is the only event a Track emits.
const EventLevelChanged = bus.EventTypeAudioLevelChanged

// LevelHandler receives a loudness level in [0,1].
type LevelHandler func(level float64)

// ListenerID identifies a registered LevelHandler.
type ListenerID = bus.SubscriptionID

// MeterConfig configures PCM level metering.
type MeterConfig struct {
	BitDepth        int `json:"bit_depth" mapstructure:"bit_depth"`               // 8, 16 or 32 (float)
	SmoothingFrames int `json:"smoothing_frames" mapstructure:"smoothing_frames"` // Default: 3
}

// DefaultMeterConfig returns sensible defaults
func DefaultMeterConfig() *MeterConfig {
	return &MeterConfig{
		BitDepth:        16,
		SmoothingFrames: 3,
	}
}
