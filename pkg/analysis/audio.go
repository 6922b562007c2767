package analysis

import (
	"math"
	"time"
)

const (
	// historyNoiseFloor gates which RMS readings enter the stability history.
	historyNoiseFloor = 5.0

	// silenceThreshold is the RMS level above which a tick counts as speech.
	silenceThreshold = 15.0

	// speechHangover is how long after the last speech tick the subject is
	// still considered speaking, preventing flapping during natural pauses.
	speechHangover = 500 * time.Millisecond

	// activityWindowSpan is the trailing span of the speech-activity window.
	activityWindowSpan = 500 * time.Millisecond

	// assumedTickRate is the assumed cadence of audio ticks. Speech-rate math
	// converts window entry counts to seconds with this fixed rate.
	assumedTickRate = 60.0

	// wordsPerSecond is the coarse average rate of continuous speech used to
	// estimate words from active time.
	wordsPerSecond = 2.5

	// Autocorrelation pitch search bounds, in sample lags.
	minPitchLag = 20
	maxPitchLag = 200

	// Accepted pitch band in Hz; estimates outside it are discarded as
	// silence or noise.
	minPitchHz = 50.0
	maxPitchHz = 400.0

	rmsHistoryCapacity   = 10
	pitchHistoryCapacity = 20

	// minPitchSamples is the history size below which pitch stability
	// defaults to perfectly stable.
	minPitchSamples = 5
)

// AudioFeatureExtractor computes per-tick loudness, pitch and speech-activity
// features and maintains the rolling histories behind the stability metrics.
// It is driven once per audio tick by the owning service.
type AudioFeatureExtractor struct {
	sampleRate int

	rmsHistory   *RollingHistory
	pitchHistory *RollingHistory
	speechWindow *SpeechActivityWindow

	lastSpeech time.Time
	haveSpeech bool
}

// NewAudioFeatureExtractor creates an extractor for streams at the given
// sample rate.
func NewAudioFeatureExtractor(sampleRate int) *AudioFeatureExtractor {
	return &AudioFeatureExtractor{
		sampleRate:   sampleRate,
		rmsHistory:   NewRollingHistory(rmsHistoryCapacity),
		pitchHistory: NewRollingHistory(pitchHistoryCapacity),
		speechWindow: NewSpeechActivityWindow(activityWindowSpan),
	}
}

// ProcessTick consumes one raw audio frame and updates the snapshot in place.
// freq carries byte frequency magnitudes, samples the time-domain signal.
func (e *AudioFeatureExtractor) ProcessTick(freq []byte, samples []float64, now time.Time, m *Metrics) {
	rms := byteRMS(freq)

	// Perceptual audio level for UI meters. Square-root compression boosts
	// quiet speech visibility; not used in any derived score.
	normalized := rms / 255
	level := math.Round(math.Sqrt(normalized) * 150)
	m.AudioLevel = int(math.Max(0, math.Min(100, level)))

	if rms > historyNoiseFloor {
		e.rmsHistory.Push(rms)
	}

	if pitch := e.estimatePitch(samples); pitch > minPitchHz && pitch < maxPitchHz {
		e.pitchHistory.Push(pitch)
	}

	isSpeech := rms > silenceThreshold
	if isSpeech {
		e.lastSpeech = now
		e.haveSpeech = true
	}
	e.speechWindow.Append(now, isSpeech)

	e.updateDerived(now, m)
}

// updateDerived recomputes volume stability, speech rate and pause ratio.
func (e *AudioFeatureExtractor) updateDerived(now time.Time, m *Metrics) {
	stability := 10.0
	if e.rmsHistory.Len() > 1 {
		stability = math.Max(0, 10-e.rmsHistory.StdDev()/5)
	}
	m.VolumeStability = roundTo1(stability)

	speaking := e.haveSpeech && now.Sub(e.lastSpeech) < speechHangover
	if !speaking {
		m.SpeechRate = 0
		m.PauseRatio = 100
		return
	}

	speechTicks, totalTicks := e.speechWindow.Counts()
	if totalTicks == 0 {
		totalTicks = 1
	}

	windowSeconds := float64(totalTicks) / assumedTickRate
	activeSeconds := float64(speechTicks) / assumedTickRate
	estimatedWords := activeSeconds * wordsPerSecond

	if windowSeconds > 0 {
		m.SpeechRate = int(math.Round(estimatedWords * 60 / windowSeconds))
	} else {
		m.SpeechRate = 0
	}
	m.PauseRatio = roundTo1((1 - float64(speechTicks)/float64(totalTicks)) * 100)
}

// estimatePitch runs a lag-based autocorrelation over the time-domain signal
// and converts the best lag to Hz. Returns 0 when no positive correlation is
// found.
func (e *AudioFeatureExtractor) estimatePitch(samples []float64) float64 {
	bestLag := 0
	maxCorr := 0.0

	for lag := minPitchLag; lag < maxPitchLag; lag++ {
		corr := 0.0
		for i := 0; i < len(samples)-lag; i++ {
			corr += samples[i] * samples[i+lag]
		}
		if corr > maxCorr {
			maxCorr = corr
			bestLag = lag
		}
	}

	if bestLag == 0 {
		return 0
	}
	return float64(e.sampleRate) / float64(bestLag)
}

// PitchStability scores pitch steadiness in 0..1. Fewer than five retained
// pitch samples means no evidence of instability, so the score defaults to 1.
func (e *AudioFeatureExtractor) PitchStability() float64 {
	if e.pitchHistory.Len() < minPitchSamples {
		return 1
	}
	mean := e.pitchHistory.Mean()
	if mean == 0 {
		return 1
	}
	return math.Max(0, 1-e.pitchHistory.StdDev()/mean)
}

// Reset clears every rolling history and the speech window.
func (e *AudioFeatureExtractor) Reset() {
	e.rmsHistory.Reset()
	e.pitchHistory.Reset()
	e.speechWindow.Reset()
	e.haveSpeech = false
}

// byteRMS computes root-mean-square loudness over byte magnitudes.
func byteRMS(freq []byte) float64 {
	if len(freq) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range freq {
		f := float64(v)
		sum += f * f
	}
	return math.Sqrt(sum / float64(len(freq)))
}

// roundTo1 rounds to one decimal place.
func roundTo1(v float64) float64 {
	return math.Round(v*10) / 10
}
