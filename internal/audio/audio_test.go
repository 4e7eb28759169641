package audio

import (
	"encoding/binary"
	"fmt"
	"math"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pcm16(samples ...int16) []byte {
	buf := make([]byte, 2*len(samples))
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[2*i:], uint16(s))
	}
	return buf
}

func TestRMS(t *testing.T) {
	tests := []struct {
		name     string
		data     []byte
		bitDepth int
		want     float64
		wantErr  bool
	}{
		{name: "empty", data: nil, bitDepth: 16, want: 0},
		{name: "silence 16 bit", data: pcm16(0, 0, 0, 0), bitDepth: 16, want: 0},
		{name: "half scale 16 bit", data: pcm16(16384, -16384), bitDepth: 16, want: 0.5},
		{name: "silence 8 bit", data: []byte{128, 128}, bitDepth: 8, want: 0},
		{name: "unsupported depth", data: []byte{1, 2, 3}, bitDepth: 24, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := RMS(tt.data, tt.bitDepth)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidFormat)
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestRMS_Float32(t *testing.T) {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint32(buf, math.Float32bits(0.25))
	binary.LittleEndian.PutUint32(buf[4:], math.Float32bits(-0.25))

	got, err := RMS(buf, 32)
	require.NoError(t, err)
	assert.InDelta(t, 0.25, got, 1e-6)
}

func float32PCM(samples ...float32) []byte {
	buf := make([]byte, 4*len(samples))
	for i, s := range samples {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(s))
	}
	return buf
}

func TestRMS_Float32SkipsNonFinite(t *testing.T) {
	got, err := RMS(float32PCM(float32(math.NaN()), 0.5, float32(math.Inf(1)), -0.5), 32)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, got, 1e-6)

	got, err = RMS(float32PCM(float32(math.NaN())), 32)
	require.NoError(t, err)
	assert.Zero(t, got)
}

func TestMeter_NonFiniteChunkKeepsLevelsFinite(t *testing.T) {
	m := NewMeter(&MeterConfig{BitDepth: 32, SmoothingFrames: 3})

	first, err := m.Process(float32PCM(float32(math.NaN()), float32(math.NaN())), 0)
	require.NoError(t, err)
	assert.False(t, math.IsNaN(first))

	for i := 0; i < 2; i++ {
		level, err := m.Process(float32PCM(0.9, -0.9), 0)
		require.NoError(t, err)
		assert.False(t, math.IsNaN(level))
		assert.Greater(t, level, 0.25)
	}
}

func TestMeter_Smoothing(t *testing.T) {
	m := NewMeter(&MeterConfig{BitDepth: 16, SmoothingFrames: 2})

	first, err := m.Process(pcm16(16384, -16384), 0)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, first, 1e-9)

	second, err := m.Process(pcm16(0, 0), 0)
	require.NoError(t, err)
	assert.InDelta(t, 0.25, second, 1e-9)

	m.Reset()
	third, err := m.Process(pcm16(0, 0), 0)
	require.NoError(t, err)
	assert.InDelta(t, 0, third, 1e-9)
}

func TestTrack_OnOff(t *testing.T) {
	track := NewTrack("alice", nil, zerolog.Nop())

	var got []float64
	id := track.On(EventLevelChanged, func(level float64) { got = append(got, level) })
	require.NotZero(t, id)
	assert.Equal(t, 1, track.Listeners())

	track.EmitLevel(0.2)
	track.EmitLevel(1.7)
	track.EmitLevel(-3)
	track.EmitLevel(math.NaN())

	track.Off(EventLevelChanged, id)
	track.EmitLevel(0.9)

	assert.Equal(t, []float64{0.2, 1, 0, 0}, got)
	assert.Equal(t, 0, track.Listeners())

	// Removing twice is harmless.
	track.Off(EventLevelChanged, id)
}

func TestTrack_UnknownEvent(t *testing.T) {
	track := NewTrack("alice", nil, zerolog.Nop())

	id := track.On("audio.muted", func(float64) {})
	assert.Zero(t, id)
	assert.Equal(t, 0, track.Listeners())
}

func TestTrack_WritePCM(t *testing.T) {
	track := NewTrack("bob", &MeterConfig{BitDepth: 16, SmoothingFrames: 1}, zerolog.Nop())

	var got float64
	track.On(EventLevelChanged, func(level float64) { got = level })

	level, err := track.WritePCM(pcm16(16384, -16384), 16)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, level, 1e-9)
	assert.InDelta(t, 0.5, got, 1e-9)

	_, err = track.WritePCM([]byte{1}, 12)
	assert.ErrorIs(t, err, ErrInvalidFormat)
}

func TestRegistry(t *testing.T) {
	r := NewRegistry(nil, zerolog.Nop())

	_, err := r.Acquire("")
	assert.ErrorIs(t, err, ErrEmptyParticipant)

	a, err := r.Acquire("alice")
	require.NoError(t, err)
	again, err := r.Acquire("alice")
	require.NoError(t, err)
	assert.Same(t, a, again)

	_, err = r.Acquire("bob")
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "bob"}, r.IDs())

	found, err := r.Lookup("alice")
	require.NoError(t, err)
	assert.Same(t, a, found)

	a.On(EventLevelChanged, func(float64) {})
	r.Release("alice")
	assert.Equal(t, 1, a.Listeners(), "one holder left")

	r.Release("alice")
	assert.Equal(t, 0, a.Listeners())
	_, err = r.Lookup("alice")
	assert.ErrorIs(t, err, ErrTrackNotFound)
	assert.Equal(t, []string{"bob"}, r.IDs())

	// Releasing an unknown track is harmless.
	r.Release("carol")
}

func TestRegistry_LookupDoesNotCreate(t *testing.T) {
	r := NewRegistry(nil, zerolog.Nop())
	for i := 0; i < 100; i++ {
		_, err := r.Lookup(fmt.Sprintf("p%d", i))
		assert.ErrorIs(t, err, ErrTrackNotFound)
	}
	assert.Empty(t, r.IDs())
}
