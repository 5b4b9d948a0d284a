package simulate

import "time"

// Worker configuration constants.
const (
	WorkerChannelMultiplier = 2
	progressInterval        = time.Second
)

// Confidence range of generated readings.
const (
	minConfidence = 0.30
	maxConfidence = 0.99
)

// PercentageMultiplier turns ratios into percentages.
const PercentageMultiplier = 100
