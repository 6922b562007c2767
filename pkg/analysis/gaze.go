package analysis

import (
	"math"

	"hireprep-server/pkg/media"
)

const (
	gazeHistoryCapacity = 15

	// centeredGazeRatio is the iris position ratio when looking straight at
	// the camera.
	centeredGazeRatio = 0.5

	// headYawPenalty scales how strongly head rotation compounds apparent
	// gaze offset.
	headYawPenalty = 0.8

	// gazeFalloff is the linear falloff slope of the eye-contact score; a
	// smoothed deviation of 1/3 or more drives the score to zero.
	gazeFalloff = 3.0
)

// VisualFeatureExtractor derives gaze deviation and head yaw from facial
// landmark geometry, with temporal smoothing over a rolling history.
type VisualFeatureExtractor struct {
	gazeHistory *RollingHistory
}

// NewVisualFeatureExtractor creates a gaze extractor.
func NewVisualFeatureExtractor() *VisualFeatureExtractor {
	return &VisualFeatureExtractor{
		gazeHistory: NewRollingHistory(gazeHistoryCapacity),
	}
}

// HeadYaw estimates horizontal head rotation as the nose tip offset from the
// midpoint between the outer eye corners. Zero when facing the camera.
func (e *VisualFeatureExtractor) HeadYaw(lm media.Landmarks) float64 {
	left := lm[media.LandmarkLeftEyeOuter]
	right := lm[media.LandmarkRightEyeOuter]
	nose := lm[media.LandmarkNoseTip]
	return nose.X - (left.X+right.X)/2
}

// GazeDeviation computes the raw (unsmoothed) gaze deviation: the averaged
// iris offset of both eyes from center plus a head-yaw penalty.
func (e *VisualFeatureExtractor) GazeDeviation(lm media.Landmarks) float64 {
	left := irisRatio(lm[media.LandmarkLeftEyeOuter], lm[media.LandmarkLeftEyeInner], lm[media.LandmarkLeftIris])
	right := irisRatio(lm[media.LandmarkRightEyeInner], lm[media.LandmarkRightEyeOuter], lm[media.LandmarkRightIris])

	gazeCenter := (left + right) / 2
	deviation := math.Abs(gazeCenter - centeredGazeRatio)

	return deviation + math.Abs(e.HeadYaw(lm))*headYawPenalty
}

// Smooth pushes a raw deviation value through the rolling history and returns
// the windowed mean.
func (e *VisualFeatureExtractor) Smooth(deviation float64) float64 {
	e.gazeHistory.Push(deviation)
	return e.gazeHistory.Mean()
}

// EyeContactScore maps a smoothed deviation to a 0-100 eye-contact score with
// linear falloff.
func EyeContactScore(smoothedDeviation float64) int {
	score := math.Max(0, 100*(1-smoothedDeviation*gazeFalloff))
	return int(math.Round(score))
}

// Reset clears the smoothing history.
func (e *VisualFeatureExtractor) Reset() {
	e.gazeHistory.Reset()
}

// irisRatio measures where the iris sits between two eye corners as a 0..1
// ratio of the eye width. A degenerate zero-width eye reads as centered.
func irisRatio(corner, other, iris media.Point) float64 {
	width := math.Abs(other.X - corner.X)
	if width <= 0 {
		return centeredGazeRatio
	}
	return math.Abs(iris.X-corner.X) / width
}
