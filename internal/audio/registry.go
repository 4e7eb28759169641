package audio

import (
	"sort"
	"sync"

	"github.com/rs/zerolog"
)

// Registry owns the audio tracks of all participants in a conference. A
// track lives while at least one holder has acquired it.
type Registry struct {
	mu     sync.Mutex
	tracks map[string]*entry
	meter  *MeterConfig
	logger zerolog.Logger
}

type entry struct {
	track *Track
	refs  int
}

// NewRegistry creates an empty registry
func NewRegistry(meter *MeterConfig, logger zerolog.Logger) *Registry {
	return &Registry{
		tracks: make(map[string]*entry),
		meter:  meter,
		logger: logger,
	}
}

// Acquire returns the track for participantID, creating it on first use.
// Every Acquire must be paired with a Release.
func (r *Registry) Acquire(participantID string) (*Track, error) {
	if participantID == "" {
		return nil, ErrEmptyParticipant
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.tracks[participantID]
	if !ok {
		e = &entry{track: NewTrack(participantID, r.meter, r.logger)}
		r.tracks[participantID] = e
	}
	e.refs++
	return e.track, nil
}

// Release drops one hold on a track. The last release closes it.
func (r *Registry) Release(participantID string) {
	r.mu.Lock()
	e, ok := r.tracks[participantID]
	if !ok {
		r.mu.Unlock()
		return
	}
	e.refs--
	last := e.refs <= 0
	if last {
		delete(r.tracks, participantID)
	}
	r.mu.Unlock()

	if last {
		e.track.Close()
	}
}

// Lookup returns an existing track without taking a hold on it.
func (r *Registry) Lookup(participantID string) (*Track, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.tracks[participantID]
	if !ok {
		return nil, ErrTrackNotFound
	}
	return e.track, nil
}

// IDs returns the registered participant ids, sorted
func (r *Registry) IDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.tracks))
	for id := range r.tracks {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
