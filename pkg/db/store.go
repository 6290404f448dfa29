package db

import (
	"context"

	"liyu1981.xyz/seizure-alert-service/pkg/models"
)

// Store is the data-access layer behind every endpoint. Writes are merge-upserts: touching a
// device that does not exist creates it without clobbering fields the write does not name.
// Reads apply explicit defaults for absent optional fields.
type Store interface {
	// AppendReading stores a reading stamped with the store's clock and returns it.
	AppendReading(ctx context.Context, deviceID string, probability float64) (*models.Reading, error)
	SetLatestProbability(ctx context.Context, deviceID string, probability float64) error
	SetDeliveryToken(ctx context.Context, deviceID string, token string) error
	// AppendAlert assigns alert.ID and alert.DeviceID and publishes an AlertCreated change.
	AppendAlert(ctx context.Context, deviceID string, alert *models.Alert) error
	// AcknowledgeAlert returns common.ErrNotFound when the alert does not exist under the device.
	AcknowledgeAlert(ctx context.Context, deviceID string, alertID string) error

	// GetDevice returns common.ErrNotFound when the device document does not exist.
	GetDevice(ctx context.Context, deviceID string) (*models.Device, error)
	// RecentReadings returns up to count readings, newest first. A negative count means no limit.
	RecentReadings(ctx context.Context, deviceID string, count int) ([]models.Reading, error)
	// AlertHistory returns up to limit alerts, newest first. A negative limit means no limit.
	AlertHistory(ctx context.Context, deviceID string, limit int) ([]models.Alert, error)

	// Subscribe returns the alert-created change feed. The channel is closed once ctx is done.
	Subscribe(ctx context.Context) <-chan models.AlertCreated

	Close() error
}

var (
	_ Store = (*SqlStore)(nil)
	_ Store = (*FirestoreStore)(nil)
)
