package stt

import (
	"context"
	"fmt"
	"io"
	"strings"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
	"github.com/sirupsen/logrus"
	"google.golang.org/api/option"

	"hireprep-server/pkg/config"
	apperrors "hireprep-server/pkg/errors"
	"hireprep-server/pkg/metrics"
)

// GoogleProvider implements the Provider interface for Google Cloud
// Speech-to-Text streaming recognition over 16kHz LINEAR16 audio.
type GoogleProvider struct {
	logger *logrus.Logger
	client *speech.Client
	cfg    *config.Configuration

	callback TranscriptCallback
}

// NewGoogleProvider creates a Google Speech-to-Text provider.
func NewGoogleProvider(logger *logrus.Logger, cfg *config.Configuration) *GoogleProvider {
	return &GoogleProvider{
		logger: logger,
		cfg:    cfg,
	}
}

// Name returns the provider name.
func (p *GoogleProvider) Name() string {
	return "google"
}

// Initialize creates the Google Speech client.
func (p *GoogleProvider) Initialize() error {
	var clientOptions []option.ClientOption

	switch {
	case p.cfg.GoogleAPIKey != "":
		clientOptions = append(clientOptions, option.WithAPIKey(p.cfg.GoogleAPIKey))
		p.logger.Debug("Using Google STT API key authentication")
	case p.cfg.GoogleCredsFile != "":
		clientOptions = append(clientOptions, option.WithCredentialsFile(p.cfg.GoogleCredsFile))
		p.logger.WithField("credentials_file", p.cfg.GoogleCredsFile).Debug("Using Google STT credentials file")
	default:
		return fmt.Errorf("google STT requires either an API key or a credentials file")
	}

	var err error
	p.client, err = speech.NewClient(context.Background(), clientOptions...)
	if err != nil {
		p.logger.WithError(err).Error("Failed to create Google Speech client")
		return fmt.Errorf("failed to create Google Speech client: %w", err)
	}

	p.logger.WithFields(logrus.Fields{
		"language":    p.cfg.STTLanguage,
		"sample_rate": transcribeSampleRate,
	}).Info("Google Speech-to-Text client initialized")
	return nil
}

// transcribeSampleRate is the rate of the audio fed to recognition. The
// interview voice channel is downsampled to this rate before streaming.
const transcribeSampleRate = 16000

// StreamToText streams audio to Google Speech-to-Text until the stream ends.
func (p *GoogleProvider) StreamToText(ctx context.Context, audioStream io.Reader, sessionID string) error {
	if p.client == nil {
		return apperrors.ErrTranscriptionFailed
	}

	stream, err := p.client.StreamingRecognize(ctx)
	if err != nil {
		p.logger.WithError(err).WithField("session_id", sessionID).Error("Failed to start Google Speech-to-Text stream")
		return err
	}

	recognitionConfig := &speechpb.RecognitionConfig{
		Encoding:                   speechpb.RecognitionConfig_LINEAR16,
		SampleRateHertz:            transcribeSampleRate,
		LanguageCode:               p.cfg.STTLanguage,
		EnableAutomaticPunctuation: true,
	}

	streamingConfig := &speechpb.StreamingRecognitionConfig{
		Config:         recognitionConfig,
		InterimResults: true,
	}

	if err := stream.Send(&speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_StreamingConfig{
			StreamingConfig: streamingConfig,
		},
	}); err != nil {
		p.logger.WithError(err).WithField("session_id", sessionID).Error("Failed to send streaming config")
		return err
	}

	errChan := make(chan error, 2)
	doneChan := make(chan struct{})

	// Pump the audio into the recognition stream.
	go func() {
		defer close(doneChan)
		buffer := make([]byte, 1024)
		for {
			select {
			case <-ctx.Done():
				stream.CloseSend()
				return
			default:
				n, err := audioStream.Read(buffer)
				if err == io.EOF {
					stream.CloseSend()
					return
				}
				if err != nil {
					p.logger.WithError(err).WithField("session_id", sessionID).Error("Failed to read audio stream")
					errChan <- err
					return
				}

				if err := stream.Send(&speechpb.StreamingRecognizeRequest{
					StreamingRequest: &speechpb.StreamingRecognizeRequest_AudioContent{
						AudioContent: buffer[:n],
					},
				}); err != nil {
					p.logger.WithError(err).WithField("session_id", sessionID).Error("Failed to send audio content")
					errChan <- err
					return
				}
			}
		}
	}()

	// Drain recognition results.
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-doneChan:
				return
			default:
				resp, err := stream.Recv()
				if err == io.EOF {
					return
				}
				if err != nil {
					p.logger.WithError(err).WithField("session_id", sessionID).Error("Error receiving streaming response")
					metrics.STTErrors.WithLabelValues(p.Name()).Inc()
					errChan <- err
					return
				}

				for _, result := range resp.Results {
					for _, alt := range result.Alternatives {
						transcript := alt.Transcript
						metadata := map[string]interface{}{
							"provider":   p.Name(),
							"confidence": alt.Confidence,
						}

						if result.IsFinal {
							metrics.STTWordsTranscribed.WithLabelValues(p.Name()).Add(float64(len(strings.Fields(transcript))))
							p.logger.WithFields(logrus.Fields{
								"session_id": sessionID,
								"transcript": transcript,
							}).Debug("Received final transcript")
						}

						if p.callback != nil {
							p.callback(sessionID, transcript, result.IsFinal, metadata)
						}
					}
				}
			}
		}
	}()

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-doneChan:
		return nil
	}
}

// SetCallback sets the callback for transcription results.
func (p *GoogleProvider) SetCallback(callback TranscriptCallback) {
	p.callback = callback
}
