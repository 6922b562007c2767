package stt

import (
	"context"
	"io"
	"strings"

	"github.com/sirupsen/logrus"
)

// MockProvider is a deterministic speech-to-text provider for tests and
// credential-free local runs. It reads the audio stream to completion and
// emits canned answers, one final fragment per answersEveryBytes of audio.
type MockProvider struct {
	logger *logrus.Logger

	callback TranscriptCallback

	// Answers cycles through these; overridable in tests.
	Answers []string

	// AnswerEveryBytes controls how much audio triggers one fragment.
	AnswerEveryBytes int
}

// NewMockProvider creates a mock provider.
func NewMockProvider(logger *logrus.Logger) *MockProvider {
	return &MockProvider{
		logger: logger,
		Answers: []string{
			"I led the migration of our billing system to a managed queue.",
			"My biggest strength is staying calm when production is on fire.",
			"I would start by clarifying the requirements with the stakeholder.",
		},
		AnswerEveryBytes: 32000,
	}
}

// Name returns the provider name.
func (p *MockProvider) Name() string {
	return "mock"
}

// Initialize initializes the mock provider.
func (p *MockProvider) Initialize() error {
	p.logger.Info("Mock STT provider initialized")
	return nil
}

// StreamToText drains the audio stream, emitting a canned final transcript
// for every AnswerEveryBytes bytes consumed and one on EOF if audio arrived
// since the last emission.
func (p *MockProvider) StreamToText(ctx context.Context, audioStream io.Reader, sessionID string) error {
	p.logger.WithField("session_id", sessionID).Info("Mock STT provider processing audio stream")

	buffer := make([]byte, 1024)
	consumed := 0
	sinceEmit := 0
	answerIndex := 0

	emit := func() {
		if p.callback == nil || len(p.Answers) == 0 {
			return
		}
		answer := p.Answers[answerIndex%len(p.Answers)]
		answerIndex++

		// Interim half first, then the final fragment, mirroring how real
		// vendors revise in-flight results.
		words := strings.Fields(answer)
		if len(words) > 3 {
			p.callback(sessionID, strings.Join(words[:len(words)/2], " "), false, map[string]interface{}{
				"provider": p.Name(),
				"interim":  true,
			})
		}
		p.callback(sessionID, answer, true, map[string]interface{}{
			"provider":   p.Name(),
			"confidence": 0.95,
		})
	}

	for {
		select {
		case <-ctx.Done():
			p.logger.WithField("session_id", sessionID).Info("Mock STT processing stopped")
			return nil
		default:
		}

		n, err := audioStream.Read(buffer)
		consumed += n
		sinceEmit += n

		for sinceEmit >= p.AnswerEveryBytes {
			sinceEmit -= p.AnswerEveryBytes
			emit()
		}

		if err == io.EOF {
			if sinceEmit > 0 {
				emit()
			}
			p.logger.WithFields(logrus.Fields{
				"session_id": sessionID,
				"bytes":      consumed,
			}).Info("Mock STT stream finished")
			return nil
		}
		if err != nil {
			p.logger.WithError(err).WithField("session_id", sessionID).Error("Error reading audio stream")
			return err
		}
	}
}

// SetCallback sets the callback for transcription results.
func (p *MockProvider) SetCallback(callback TranscriptCallback) {
	p.callback = callback
}
