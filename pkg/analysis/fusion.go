package analysis

import "math"

// Pace is a coarse three-level classification of speech rate.
type Pace int

const (
	PaceNormal Pace = iota
	PaceFast
	PaceSlow
)

const (
	// fastPaceWPM is the words-per-minute above which speech counts as too fast.
	fastPaceWPM = 180

	// slowPaceWPM is the words-per-minute below which speech counts as too slow.
	slowPaceWPM = 80
)

// Confidence fusion weights. Gaze is the strongest single signal, vocal
// steadiness and pitch stability share equal secondary weight, pace is a
// minor tertiary correction.
const (
	eyeContactWeight      = 0.35
	volumeStabilityWeight = 0.25
	pitchStabilityWeight  = 0.25
	paceWeight            = 0.15
)

// ClassifyPace buckets a speech rate into slow/normal/fast. The bands cannot
// overlap: anything above 180 WPM is fast, anything below 80 is slow.
func ClassifyPace(speechRate int) Pace {
	switch {
	case speechRate > fastPaceWPM:
		return PaceFast
	case speechRate < slowPaceWPM:
		return PaceSlow
	default:
		return PaceNormal
	}
}

// Score returns the pace contribution to the confidence composite.
func (p Pace) Score() float64 {
	switch p {
	case PaceFast:
		return 70
	case PaceSlow:
		return 60
	default:
		return 100
	}
}

// String implements fmt.Stringer.
func (p Pace) String() string {
	switch p {
	case PaceFast:
		return "fast"
	case PaceSlow:
		return "slow"
	default:
		return "normal"
	}
}

// FuseConfidence combines the individual signals into the weighted composite
// confidence score. eyeContact is 0-100, volumeStability 0-10, pitchStability
// 0-1.
func FuseConfidence(eyeContact int, volumeStability, pitchStability float64, pace Pace) int {
	composite := float64(eyeContact)*eyeContactWeight +
		volumeStability*10*volumeStabilityWeight +
		pitchStability*100*pitchStabilityWeight +
		pace.Score()*paceWeight
	return int(math.Round(composite))
}
