package models

import "time"

type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Device is created implicitly by the first merge-upsert touching it and is never deleted.
type Device struct {
	ID                string    `gorm:"primaryKey" firestore:"-"`
	LatestProbability float64   `gorm:"not null;default:0" firestore:"latest_probability"`
	FCMToken          string    `gorm:"column:fcm_token;not null;default:''" firestore:"fcm_token"`
	UpdatedAt         time.Time `firestore:"-"`
}

// HasDeliveryToken reports whether a push notification can be delivered to the device.
func (d *Device) HasDeliveryToken() bool {
	return d != nil && d.FCMToken != ""
}

type Reading struct {
	ID          uint      `gorm:"primaryKey" firestore:"-"`
	DeviceID    string    `gorm:"index:idx_readings_device_time,priority:1" firestore:"-"`
	Timestamp   time.Time `gorm:"index:idx_readings_device_time,priority:2" firestore:"timestamp"`
	Probability float64   `firestore:"probability"`
}

type Alert struct {
	ID           string    `gorm:"primaryKey" firestore:"-"`
	DeviceID     string    `gorm:"index:idx_alerts_device_time,priority:1" firestore:"-"`
	AlertTime    time.Time `gorm:"index:idx_alerts_device_time,priority:2" firestore:"alert_time"`
	Probability  float64   `firestore:"probability"`
	Acknowledged bool      `gorm:"not null;default:false" firestore:"acknowledged"`
	AlertMessage Severity  `gorm:"type:varchar(10);check:alert_message IN ('low','medium','high')" firestore:"alert_message"`
}

// AlertCreated is published by the store's change feed for every newly created alert.
type AlertCreated struct {
	DeviceID string
	AlertID  string
	Alert    Alert
}
