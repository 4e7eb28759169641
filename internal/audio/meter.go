package audio

import (
	"math"
	"sync"
)

// Meter converts raw PCM chunks into smoothed RMS loudness levels.
type Meter struct {
	config *MeterConfig
	mu     sync.Mutex

	history      []float64
	historyIndex int
	filled       int
}

// NewMeter creates a new Meter instance
func NewMeter(config *MeterConfig) *Meter {
	if config == nil {
		config = DefaultMeterConfig()
	}
	frames := config.SmoothingFrames
	if frames < 1 {
		frames = 1
	}

	return &Meter{
		config:  config,
		history: make([]float64, frames),
	}
}

// Process returns the smoothed level for one chunk. A bitDepth of 0 uses the
// configured default.
func (m *Meter) Process(data []byte, bitDepth int) (float64, error) {
	if bitDepth == 0 {
		bitDepth = m.config.BitDepth
	}
	rms, err := RMS(data, bitDepth)
	if err != nil {
		return 0, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.history[m.historyIndex] = rms
	m.historyIndex = (m.historyIndex + 1) % len(m.history)
	if m.filled < len(m.history) {
		m.filled++
	}

	var sum float64
	for i := 0; i < m.filled; i++ {
		sum += m.history[i]
	}
	return sum / float64(m.filled), nil
}

// Reset clears smoothing state
func (m *Meter) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.historyIndex = 0
	m.filled = 0
	for i := range m.history {
		m.history[i] = 0
	}
}

// RMS computes the root mean square energy of little-endian PCM data,
// normalized to [0,1].
func RMS(data []byte, bitDepth int) (float64, error) {
	if len(data) == 0 {
		return 0, nil
	}

	var sum float64
	var count int

	switch bitDepth {
	case 8:
		// unsigned PCM
		for _, b := range data {
			normalized := (float64(b) - 128.0) / 128.0
			sum += normalized * normalized
			count++
		}
	case 16:
		// signed PCM
		for i := 0; i+1 < len(data); i += 2 {
			sample := int16(uint16(data[i]) | uint16(data[i+1])<<8)
			normalized := float64(sample) / 32768.0
			sum += normalized * normalized
			count++
		}
	case 32:
		// float PCM
		for i := 0; i+3 < len(data); i += 4 {
			bits := uint32(data[i]) | uint32(data[i+1])<<8 | uint32(data[i+2])<<16 | uint32(data[i+3])<<24
			sample := float64(math.Float32frombits(bits))
			// NaN or Inf would poison the smoothing window.
			if math.IsNaN(sample) || math.IsInf(sample, 0) {
				continue
			}
			sum += sample * sample
			count++
		}
	default:
		return 0, ErrInvalidFormat
	}

	if count == 0 {
		return 0, nil
	}

	return math.Min(1, math.Sqrt(sum/float64(count))), nil
}
