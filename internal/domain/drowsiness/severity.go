package drowsiness

import "time"

// Severity grades a finished alarm session.
type Severity string

const (
	// SeverityNone is reported when the eyes were never below the threshold.
	SeverityNone Severity = "none"
	// SeverityLow is a closure shorter than LowSeverityLimit.
	SeverityLow Severity = "low"
	// SeverityMedium is a closure shorter than MediumSeverityLimit.
	SeverityMedium Severity = "medium"
	// SeverityHigh is anything longer.
	SeverityHigh Severity = "high"
)

const (
	// LowSeverityLimit bounds low-severity closures.
	LowSeverityLimit = 2 * time.Second
	// MediumSeverityLimit bounds medium-severity closures.
	MediumSeverityLimit = 5 * time.Second
)

// Classify grades a closure by its lowest ratio and its duration.
func Classify(minScore, earThreshold float64, duration time.Duration) Severity {
	switch {
	case minScore > earThreshold:
		return SeverityNone
	case duration < LowSeverityLimit:
		return SeverityLow
	case duration < MediumSeverityLimit:
		return SeverityMedium
	default:
		return SeverityHigh
	}
}
