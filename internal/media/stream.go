package media

import "github.com/google/uuid"

// Stream is an ordered, immutable set of tracks with a stable identity.
type Stream struct {
	id     string
	tracks []Track
}

// NewStream returns a stream holding tracks with a fresh identity.
func NewStream(tracks ...Track) *Stream {
	return &Stream{
		id:     uuid.New().String(),
		tracks: tracks,
	}
}

// ID returns the stream identity.
func (s *Stream) ID() string {
	if s == nil {
		return ""
	}
	return s.id
}

// Tracks returns a copy of all tracks.
func (s *Stream) Tracks() []Track {
	if s == nil {
		return nil
	}
	return append([]Track(nil), s.tracks...)
}

// AudioTracks returns the audio tracks in stream order.
func (s *Stream) AudioTracks() []Track {
	if s == nil {
		return nil
	}
	var audio []Track
	for _, t := range s.tracks {
		if t.Kind() == KindAudio {
			audio = append(audio, t)
		}
	}
	return audio
}

// SameStream reports whether a and b have the same identity. Two nil streams are the same.
func SameStream(a, b *Stream) bool {
	return a.ID() == b.ID()
}
