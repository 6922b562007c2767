package analysis

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	apperrors "hireprep-server/pkg/errors"
	"hireprep-server/pkg/media"
	"hireprep-server/pkg/metrics"
)

// Detector is the external facial landmark model boundary. Ready reports
// whether the model has finished loading; Detect blocks until the next
// detection result is available and returns the landmark mesh together with
// whether a face was found. A closed feed surfaces io.EOF.
type Detector interface {
	Ready() bool
	Detect(ctx context.Context) (media.Landmarks, bool, error)
}

// Config tunes the service loops. Zero values fall back to defaults.
type Config struct {
	// FrameInterval is the cadence of the audio processing loop and the
	// detector submission pacing, nominally the display refresh rate.
	FrameInterval time.Duration

	// DetectorRetryInterval is the poll interval while waiting for a
	// late-loading detector. Retries are unbounded: a detector that never
	// loads blocks the video path silently while audio metrics continue.
	DetectorRetryInterval time.Duration

	// Clock overrides the time source. Tests inject a simulated clock.
	Clock func() time.Time
}

func (c *Config) applyDefaults() {
	if c.FrameInterval <= 0 {
		c.FrameInterval = 16 * time.Millisecond
	}
	if c.DetectorRetryInterval <= 0 {
		c.DetectorRetryInterval = 250 * time.Millisecond
	}
	if c.Clock == nil {
		c.Clock = time.Now
	}
}

// Service owns the full multimodal analysis pipeline: the audio and visual
// feature extractors, their rolling histories, and the shared metrics
// snapshot. It is constructed per interview session and discarded at session
// stop; the extractor callbacks are its only metric writers.
type Service struct {
	logger *logrus.Entry
	cfg    Config

	mu      sync.Mutex
	metrics Metrics
	audio   *AudioFeatureExtractor
	visual  *VisualFeatureExtractor

	analyser media.Analyser
	freqData []byte
	timeData []float64

	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopped  bool
	videoOn  bool
}

// NewService creates an analysis service with neutral default metrics.
func NewService(logger *logrus.Logger, cfg Config) *Service {
	cfg.applyDefaults()
	ctx, cancel := context.WithCancel(context.Background())

	return &Service{
		logger:  logger.WithField("component", "analysis"),
		cfg:     cfg,
		metrics: defaultMetrics(),
		visual:  NewVisualFeatureExtractor(),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// InitAudio attaches the audio analyser and starts the continuous processing
// loop. Calling it again once initialized is a no-op.
func (s *Service) InitAudio(an media.Analyser) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return apperrors.ErrAnalysisStopped
	}
	if s.analyser != nil {
		s.mu.Unlock()
		return nil
	}
	s.analyser = an
	s.audio = NewAudioFeatureExtractor(an.SampleRate())
	s.freqData = make([]byte, media.AnalyserBinCount)
	s.timeData = make([]float64, media.AnalyserFFTSize)
	s.mu.Unlock()

	s.wg.Add(1)
	go s.audioLoop()

	s.logger.WithField("sample_rate", an.SampleRate()).Info("Audio analysis started")
	return nil
}

// InitVideo attaches the landmark detector and starts the detection loop.
// A detector that is not ready yet is polled at the configured retry interval
// before submission begins. Calling it again once initialized is a no-op.
func (s *Service) InitVideo(det Detector) error {
	if det == nil {
		return apperrors.ErrDetectorUnavailable
	}

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return apperrors.ErrAnalysisStopped
	}
	if s.videoOn {
		s.mu.Unlock()
		return nil
	}
	s.videoOn = true
	s.mu.Unlock()

	s.wg.Add(1)
	go s.videoLoop(det)
	return nil
}

// audioLoop drives the audio extractor at the frame interval until stopped.
func (s *Service) audioLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.FrameInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.processTick(s.cfg.Clock())
		}
	}
}

// processTick runs one audio analysis pass over the current analyser buffers.
func (s *Service) processTick(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.audio == nil || s.stopped {
		return
	}

	s.analyser.ByteFrequencyData(s.freqData)
	s.analyser.FloatTimeDomainData(s.timeData)
	s.audio.ProcessTick(s.freqData, s.timeData, now, &s.metrics)

	metrics.AudioTicksProcessed.Inc()
}

// videoLoop waits for the detector to become ready, then submits frames at
// the display cadence. Per-frame detection errors are logged and skipped so
// one bad frame never halts the loop.
func (s *Service) videoLoop(det Detector) {
	defer s.wg.Done()

	for !det.Ready() {
		metrics.DetectorRetries.Inc()
		select {
		case <-s.ctx.Done():
			return
		case <-time.After(s.cfg.DetectorRetryInterval):
		}
	}

	s.logger.Info("Landmark detector ready, starting face analysis")

	for {
		select {
		case <-s.ctx.Done():
			return
		default:
		}

		lm, detected, err := det.Detect(s.ctx)
		if err != nil {
			if err == io.EOF || s.ctx.Err() != nil {
				return
			}
			s.logger.WithError(err).Debug("Landmark detection failed, skipping frame")
			select {
			case <-s.ctx.Done():
				return
			case <-time.After(s.cfg.FrameInterval):
			}
			continue
		}

		s.OnFaceFrame(media.FaceFrame{Landmarks: lm, Detected: detected, At: s.cfg.Clock()})
	}
}

// OnFaceFrame consumes one detector result and updates the visual metrics.
// An absent face is a definitive disengagement signal: eye contact and
// confidence reset to zero immediately, bypassing smoothing. A malformed mesh
// is treated the same way.
func (s *Service) OnFaceFrame(frame media.FaceFrame) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return
	}

	if !frame.Detected {
		s.metrics.EyeContact = 0
		s.metrics.Confidence = 0
		metrics.FaceFramesProcessed.WithLabelValues("none").Inc()
		return
	}

	if err := frame.Landmarks.Validate(); err != nil {
		s.logger.WithError(err).Debug("Rejected landmark frame")
		s.metrics.EyeContact = 0
		s.metrics.Confidence = 0
		metrics.FaceFramesProcessed.WithLabelValues("invalid").Inc()
		return
	}

	deviation := s.visual.GazeDeviation(frame.Landmarks)
	smoothed := s.visual.Smooth(deviation)
	s.metrics.EyeContact = EyeContactScore(smoothed)

	pitchStability := 1.0
	if s.audio != nil {
		pitchStability = s.audio.PitchStability()
	}

	pace := ClassifyPace(s.metrics.SpeechRate)
	s.metrics.Confidence = FuseConfidence(s.metrics.EyeContact, s.metrics.VolumeStability, pitchStability, pace)

	metrics.FaceFramesProcessed.WithLabelValues("detected").Inc()
}

// Snapshot returns a copy of the current metrics record.
func (s *Service) Snapshot() Metrics {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.metrics
}

// Stop halts both loops, releases the audio resource and clears every rolling
// history. It is idempotent and leaves no background callback alive.
func (s *Service) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	analyser := s.analyser
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()

	if analyser != nil {
		if err := analyser.Close(); err != nil {
			s.logger.WithError(err).Warn("Failed to close audio analyser")
		}
	}

	s.mu.Lock()
	if s.audio != nil {
		s.audio.Reset()
	}
	s.visual.Reset()
	s.mu.Unlock()

	s.logger.Info("Analysis service stopped")
}

// ChannelDetector adapts a stream of detector results into the Detector
// interface. It reports ready immediately; Detect blocks for the next frame.
type ChannelDetector struct {
	frames <-chan media.FaceFrame
}

// NewChannelDetector wraps a face frame channel.
func NewChannelDetector(frames <-chan media.FaceFrame) *ChannelDetector {
	return &ChannelDetector{frames: frames}
}

// Ready implements Detector.
func (d *ChannelDetector) Ready() bool { return true }

// Detect implements Detector. Returns io.EOF when the feed closes.
func (d *ChannelDetector) Detect(ctx context.Context) (media.Landmarks, bool, error) {
	select {
	case <-ctx.Done():
		return nil, false, ctx.Err()
	case frame, ok := <-d.frames:
		if !ok {
			return nil, false, io.EOF
		}
		return frame.Landmarks, frame.Detected, nil
	}
}
