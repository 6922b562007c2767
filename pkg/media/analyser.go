package media

import (
	"math"
	"sync"
)

const (
	// AnalyserFFTSize is the number of time-domain samples exposed per tick
	AnalyserFFTSize = 512

	// AnalyserBinCount is the number of frequency-domain magnitude bins
	AnalyserBinCount = AnalyserFFTSize / 2
)

// Analyser exposes the raw per-tick audio buffers the analysis pipeline
// consumes: frequency-domain byte magnitudes and time-domain float samples.
// Implementations must tolerate being read before any audio has arrived
// (buffers are zero-filled).
type Analyser interface {
	// ByteFrequencyData fills dst with the current magnitude spectrum,
	// one byte per bin in the 0..255 range.
	ByteFrequencyData(dst []byte)

	// FloatTimeDomainData fills dst with the most recent time-domain samples.
	FloatTimeDomainData(dst []float64)

	// SampleRate returns the sample rate of the underlying stream in Hz.
	SampleRate() int

	// Close releases the underlying audio resource. Must be idempotent.
	Close() error
}

// PCMAnalyser adapts a stream of raw PCM float chunks into the Analyser
// contract. Incoming chunks overwrite a ring buffer; each read computes a
// windowed DFT magnitude spectrum over the latest full window.
type PCMAnalyser struct {
	mutex      sync.Mutex
	sampleRate int
	ring       []float64
	writePos   int
	filled     int
	window     []float64
	closed     bool
}

// NewPCMAnalyser creates an analyser for a PCM stream at the given sample rate.
func NewPCMAnalyser(sampleRate int) *PCMAnalyser {
	a := &PCMAnalyser{
		sampleRate: sampleRate,
		ring:       make([]float64, AnalyserFFTSize),
		window:     make([]float64, AnalyserFFTSize),
	}

	// Hamming window
	for i := 0; i < AnalyserFFTSize; i++ {
		a.window[i] = 0.54 - 0.46*math.Cos(2*math.Pi*float64(i)/float64(AnalyserFFTSize-1))
	}

	return a
}

// Write appends a chunk of PCM float samples in the -1..1 range.
func (a *PCMAnalyser) Write(samples []float64) {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	if a.closed {
		return
	}

	for _, s := range samples {
		a.ring[a.writePos] = s
		a.writePos = (a.writePos + 1) % len(a.ring)
		if a.filled < len(a.ring) {
			a.filled++
		}
	}
}

// FloatTimeDomainData fills dst with the most recent samples, oldest first.
func (a *PCMAnalyser) FloatTimeDomainData(dst []float64) {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	n := len(dst)
	if n > len(a.ring) {
		n = len(a.ring)
	}

	start := (a.writePos - n + len(a.ring)) % len(a.ring)
	for i := 0; i < n; i++ {
		dst[i] = a.ring[(start+i)%len(a.ring)]
	}
	for i := n; i < len(dst); i++ {
		dst[i] = 0
	}
}

// ByteFrequencyData fills dst with the current magnitude spectrum scaled to
// bytes. Magnitudes are normalized against half the window length, which maps
// a full-scale sine close to 255.
func (a *PCMAnalyser) ByteFrequencyData(dst []byte) {
	frame := make([]float64, AnalyserFFTSize)
	a.FloatTimeDomainData(frame)

	a.mutex.Lock()
	window := a.window
	a.mutex.Unlock()

	bins := len(dst)
	if bins > AnalyserBinCount {
		bins = AnalyserBinCount
	}

	n := len(frame)
	norm := float64(n) / 2

	for k := 0; k < bins; k++ {
		var re, im float64
		for i := 0; i < n; i++ {
			angle := -2 * math.Pi * float64(k) * float64(i) / float64(n)
			v := frame[i] * window[i]
			re += v * math.Cos(angle)
			im += v * math.Sin(angle)
		}
		mag := math.Sqrt(re*re+im*im) / norm

		scaled := mag * 255
		if scaled > 255 {
			scaled = 255
		}
		dst[k] = byte(scaled)
	}
	for k := bins; k < len(dst); k++ {
		dst[k] = 0
	}
}

// SampleRate returns the stream sample rate in Hz.
func (a *PCMAnalyser) SampleRate() int {
	return a.sampleRate
}

// Close marks the analyser closed; subsequent writes are dropped.
func (a *PCMAnalyser) Close() error {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	a.closed = true
	return nil
}
