package media

import (
	"time"

	"hireprep-server/pkg/errors"
)

// Semantic landmark indices within a face mesh result. The external detector
// emits the full refined mesh (468 face points plus 10 iris points); only
// these indices are consumed by the gaze estimator.
const (
	LandmarkNoseTip       = 1
	LandmarkLeftEyeOuter  = 33
	LandmarkLeftEyeInner  = 133
	LandmarkRightEyeInner = 362
	LandmarkRightEyeOuter = 263
	LandmarkLeftIris      = 468
	LandmarkRightIris     = 473

	// MinLandmarkCount is the smallest mesh that carries every index above.
	// The refined mesh has 478 points; anything shorter is malformed.
	MinLandmarkCount = 478
)

// Point is a single normalized landmark position.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Landmarks is an ordered face mesh as produced by the external detector.
type Landmarks []Point

// Validate checks that the mesh carries every semantic index the gaze
// estimator reads. Malformed frames are rejected at the ingestion boundary
// rather than deep inside the pipeline.
func (l Landmarks) Validate() error {
	if len(l) < MinLandmarkCount {
		return errors.Wrap(errors.ErrInvalidLandmarks, "landmark mesh too short").
			WithField("count", len(l))
	}
	return nil
}

// FaceFrame is one detector result: either a validated mesh or an explicit
// "no face" observation. Both are meaningful to the pipeline.
type FaceFrame struct {
	Landmarks Landmarks
	Detected  bool
	At        time.Time
}
