package analysis

// Metrics is the continuously updated behavioral snapshot shared with the
// session orchestrator. The analysis service is its only writer; everyone
// else reads copies via Service.Snapshot.
type Metrics struct {
	// SpeechRate is the estimated words per minute, 0 when silent.
	SpeechRate int `json:"speech_rate"`

	// PauseRatio is the percentage of silence in the trailing window, 0-100.
	PauseRatio float64 `json:"pause_ratio"`

	// VolumeStability scores loudness steadiness 0-10 from RMS variance.
	VolumeStability float64 `json:"volume_stability"`

	// EyeContact is the percentage of gaze held on camera, 0-100.
	EyeContact int `json:"eye_contact"`

	// Confidence is the fused composite score, 0-100.
	Confidence int `json:"confidence"`

	// Clarity is a 0-10 articulation score. Currently static.
	Clarity float64 `json:"clarity"`

	// AudioLevel is the perceptually scaled live input level for UI meters,
	// 0-100. Not used in any derived score.
	AudioLevel int `json:"audio_level"`
}

// defaultMetrics returns the neutral snapshot a fresh service starts with.
func defaultMetrics() Metrics {
	return Metrics{
		SpeechRate:      0,
		PauseRatio:      0,
		VolumeStability: 10,
		EyeContact:      100,
		Confidence:      100,
		Clarity:         8,
		AudioLevel:      0,
	}
}
