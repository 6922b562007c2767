package media

import (
	"context"
	"io"
)

// Streams is a live capture handed to the session orchestrator: the analyser
// view of the microphone, the raw voice byte stream (16-bit PCM) consumed by
// the AI link and the speech side channel, and the detector's face frames.
type Streams struct {
	Audio      Analyser
	Voice      io.ReadCloser
	Faces      <-chan FaceFrame
	SampleRate int

	release func()
}

// NewStreams builds a Streams value with an optional release hook invoked
// exactly once on Close.
func NewStreams(audio Analyser, voice io.ReadCloser, faces <-chan FaceFrame, sampleRate int, release func()) *Streams {
	return &Streams{
		Audio:      audio,
		Voice:      voice,
		Faces:      faces,
		SampleRate: sampleRate,
		release:    release,
	}
}

// Close releases the capture. Safe to call more than once.
func (s *Streams) Close() error {
	if s.Voice != nil {
		s.Voice.Close()
	}
	if s.Audio != nil {
		s.Audio.Close()
	}
	if s.release != nil {
		s.release()
		s.release = nil
	}
	return nil
}

// Acquirer obtains live media for an interview session. Acquisition failure
// (denied permission, no attached device, timeout) is fatal to session start
// and is never retried internally.
type Acquirer interface {
	Acquire(ctx context.Context, sessionID string) (*Streams, error)
}
