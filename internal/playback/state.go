package playback

import "time"

// MediaType classifies what the room is playing.
type MediaType string

const (
	MediaNone   MediaType = "none"
	MediaStream MediaType = "stream" // remote stream referenced by extracted id
	MediaVideo  MediaType = "video"  // local catalog entry
	MediaAudio  MediaType = "audio"  // local catalog entry
)

// State is the authoritative playback record pushed to every session.
// Position is authoritative only at the moment of the last mutation; the
// server does not interpolate it forward between commands.
type State struct {
	MediaType   MediaType `json:"mediaType"`
	Source      string    `json:"source,omitempty"`
	DisplayName string    `json:"displayName,omitempty"`
	Position    float64   `json:"position"`
	Playing     bool      `json:"playing"`
	Volume      int       `json:"volume"`
	Muted       bool      `json:"muted"`
	LastUpdate  time.Time `json:"lastUpdate"`
}

// Store holds the single authoritative State. It carries no locks: every
// mutation runs on the hub's serial loop.
type Store struct {
	cur State
}

// NewStore returns a store in the empty state at full volume.
func NewStore() *Store {
	return &Store{cur: State{MediaType: MediaNone, Volume: 100}}
}

// Snapshot returns an immutable copy of the current state.
func (s *Store) Snapshot() State {
	return s.cur
}

// Load switches to a new source: position resets to 0, playback starts,
// volume and mute carry over from the prior state.
func (s *Store) Load(mt MediaType, source, displayName string) State {
	s.cur.MediaType = mt
	s.cur.Source = source
	s.cur.DisplayName = displayName
	s.cur.Position = 0
	s.cur.Playing = true
	return s.stamp()
}

// Play resumes playback.
func (s *Store) Play() State {
	s.cur.Playing = true
	return s.stamp()
}

// Pause suspends playback.
func (s *Store) Pause() State {
	s.cur.Playing = false
	return s.stamp()
}

// Seek moves to the given offset in seconds; negative values clamp to 0.
func (s *Store) Seek(position float64) State {
	if position < 0 {
		position = 0
	}
	s.cur.Position = position
	return s.stamp()
}

// Restart rewinds to the beginning and resumes playback.
func (s *Store) Restart() State {
	s.cur.Position = 0
	s.cur.Playing = true
	return s.stamp()
}

// SetVolume applies a volume clamped to [0,100].
func (s *Store) SetVolume(v int) State {
	if v < 0 {
		v = 0
	} else if v > 100 {
		v = 100
	}
	s.cur.Volume = v
	return s.stamp()
}

// SetMuted applies the mute flag.
func (s *Store) SetMuted(m bool) State {
	s.cur.Muted = m
	return s.stamp()
}

// Stop clears the source and halts playback; volume and mute are preserved.
func (s *Store) Stop() State {
	s.cur.MediaType = MediaNone
	s.cur.Source = ""
	s.cur.DisplayName = ""
	s.cur.Position = 0
	s.cur.Playing = false
	return s.stamp()
}

// Touch stamps the state clock without changing anything else. Used for
// command types with no semantic effect.
func (s *Store) Touch() State {
	return s.stamp()
}

func (s *Store) stamp() State {
	s.cur.LastUpdate = time.Now()
	return s.cur
}
