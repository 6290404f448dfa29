package iot

import "liyu1981.xyz/seizure-alert-service/pkg/models"

const (
	mediumThreshold = 0.5
	highThreshold   = 0.8

	// NotifyThreshold is inclusive: a reading of exactly 0.8 is "medium" yet still pushes a notification.
	NotifyThreshold = 0.8
)

// Classify maps a probability onto a severity band. Boundaries belong to the lower band.
func Classify(probability float64) models.Severity {
	if probability <= mediumThreshold {
		return models.SeverityLow
	}
	if probability <= highThreshold {
		return models.SeverityMedium
	}
	return models.SeverityHigh
}

func ShouldNotify(probability float64) bool {
	return probability >= NotifyThreshold
}
