// Package notify delivers push notifications to devices through a pluggable Dispatcher.
package notify

import (
	"context"
	"fmt"
	"strconv"
)

const (
	AlertTitle = "⚠️ Seizure Risk Detected"

	AndroidChannelID = "seizure_alerts"
	AndroidSound     = "alert_sound"
)

// AndroidHint carries platform-specific delivery overrides.
type AndroidHint struct {
	ChannelID string
	Sound     string
}

type Message struct {
	Token string
	Title string
	Body  string
	Data  map[string]string
	// CollapseKey lets the delivery layer fold repeated sends for the same alert into one.
	CollapseKey string
	Android     *AndroidHint
}

type Dispatcher interface {
	Send(ctx context.Context, msg *Message) error
}

// NewAlertMessage builds the high-risk notification for an alert.
func NewAlertMessage(token, deviceID, alertID string, probability float64) *Message {
	return &Message{
		Token: token,
		Title: AlertTitle,
		Body:  fmt.Sprintf("High seizure probability: %.1f%%", probability*100),
		Data: map[string]string{
			"alert_id":    alertID,
			"device_id":   deviceID,
			"probability": strconv.FormatFloat(probability, 'f', -1, 64),
		},
		CollapseKey: alertID,
	}
}

// WithAndroidHint adds the channel and sound used by the mobile app for alert notifications.
func (m *Message) WithAndroidHint() *Message {
	m.Android = &AndroidHint{ChannelID: AndroidChannelID, Sound: AndroidSound}
	return m
}
