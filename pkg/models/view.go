package models

import (
	"time"

	"liyu1981.xyz/seizure-alert-service/pkg/common"
)

// isoLayout matches the millisecond ISO-8601 form clients already parse, e.g. 2024-05-01T12:00:00.000Z.
const isoLayout = "2006-01-02T15:04:05.000Z"

// FormatTime renders t as ISO-8601 UTC, or nil when t is unset.
func FormatTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC().Format(isoLayout)
}

// View is the response projection of a reading. Values are plain JSON types so the same map can
// back a JSON body and a protobuf Struct.
func (r Reading) View() map[string]any {
	return map[string]any{
		"timestamp":   FormatTime(r.Timestamp),
		"probability": r.Probability,
	}
}

func (a Alert) View() map[string]any {
	return map[string]any{
		"id":            a.ID,
		"alert_time":    FormatTime(a.AlertTime),
		"probability":   a.Probability,
		"acknowledged":  a.Acknowledged,
		"alert_message": string(a.AlertMessage),
	}
}

func ReadingViews(readings []Reading) []any {
	return common.Mapper(readings, func(r Reading) any { return r.View() })
}

func AlertViews(alerts []Alert) []any {
	return common.Mapper(alerts, func(a Alert) any { return a.View() })
}
