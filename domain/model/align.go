package model

// AlignmentResult is the per-job, temporary output of the Aligner.
type AlignmentResult struct {
	LagSamples    int     `json:"lag_samples"` // signed; positive means B trails A
	LagSeconds    float64 `json:"lag_seconds"`
	Confidence    float64 `json:"confidence"` // clamped to [0,1]
	SampleRate    int     `json:"sample_rate"`
	AlignedAPath  string  `json:"aligned_a_path"`
	AlignedBPath  string  `json:"aligned_b_path"`
	LowConfidence bool    `json:"low_confidence"` // true when lag was forced to 0
}
