package analysis

import (
	"math"
	"time"
)

// RollingHistory is a fixed-capacity FIFO of recent scalar samples. Pushing
// beyond capacity evicts the oldest sample, so length never exceeds capacity
// and insertion order is chronological order. It exists only to feed windowed
// mean/variance computations.
type RollingHistory struct {
	capacity int
	values   []float64
}

// NewRollingHistory creates a history holding at most capacity samples.
func NewRollingHistory(capacity int) *RollingHistory {
	return &RollingHistory{
		capacity: capacity,
		values:   make([]float64, 0, capacity),
	}
}

// Push appends a sample, evicting the oldest when full.
func (h *RollingHistory) Push(v float64) {
	if len(h.values) == h.capacity {
		copy(h.values, h.values[1:])
		h.values = h.values[:len(h.values)-1]
	}
	h.values = append(h.values, v)
}

// Len returns the number of retained samples.
func (h *RollingHistory) Len() int {
	return len(h.values)
}

// Mean returns the arithmetic mean of retained samples, 0 when empty.
func (h *RollingHistory) Mean() float64 {
	if len(h.values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range h.values {
		sum += v
	}
	return sum / float64(len(h.values))
}

// Variance returns the population variance of retained samples, 0 when empty.
func (h *RollingHistory) Variance() float64 {
	if len(h.values) == 0 {
		return 0
	}
	mean := h.Mean()
	sum := 0.0
	for _, v := range h.values {
		diff := v - mean
		sum += diff * diff
	}
	return sum / float64(len(h.values))
}

// StdDev returns the population standard deviation of retained samples.
func (h *RollingHistory) StdDev() float64 {
	return math.Sqrt(h.Variance())
}

// Reset discards all samples.
func (h *RollingHistory) Reset() {
	h.values = h.values[:0]
}

// speechSample is one speech-activity observation.
type speechSample struct {
	at       time.Time
	isSpeech bool
}

// SpeechActivityWindow holds speech-activity observations for a trailing time
// span. Eviction is time-based: after Evict(now), every retained entry
// satisfies now - at <= span. Entries must be appended in non-decreasing
// timestamp order.
type SpeechActivityWindow struct {
	span    time.Duration
	samples []speechSample
}

// NewSpeechActivityWindow creates a window spanning the given duration.
func NewSpeechActivityWindow(span time.Duration) *SpeechActivityWindow {
	return &SpeechActivityWindow{span: span}
}

// Append records one observation and evicts expired entries.
func (w *SpeechActivityWindow) Append(at time.Time, isSpeech bool) {
	w.samples = append(w.samples, speechSample{at: at, isSpeech: isSpeech})
	w.Evict(at)
}

// Evict drops entries older than the window span relative to now.
func (w *SpeechActivityWindow) Evict(now time.Time) {
	cut := 0
	for cut < len(w.samples) && now.Sub(w.samples[cut].at) > w.span {
		cut++
	}
	if cut > 0 {
		w.samples = append(w.samples[:0], w.samples[cut:]...)
	}
}

// Counts returns the number of speech-positive entries and the total number
// of retained entries.
func (w *SpeechActivityWindow) Counts() (speech, total int) {
	for _, s := range w.samples {
		if s.isSpeech {
			speech++
		}
	}
	return speech, len(w.samples)
}

// Len returns the number of retained entries.
func (w *SpeechActivityWindow) Len() int {
	return len(w.samples)
}

// Reset discards all entries.
func (w *SpeechActivityWindow) Reset() {
	w.samples = w.samples[:0]
}
