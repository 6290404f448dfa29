package iot

import (
	"context"

	"liyu1981.xyz/seizure-alert-service/pkg/db"
	"liyu1981.xyz/seizure-alert-service/pkg/models"
	"liyu1981.xyz/seizure-alert-service/pkg/notify"
)

type IReading interface {
	PostReading(ctx context.Context, deviceID string, probability float64) (*models.Alert, error)
	GetRecentReadings(ctx context.Context, deviceID string, count int) ([]models.Reading, error)
}

type IAlert interface {
	GetAlertHistory(ctx context.Context, deviceID string, limit int) ([]models.Alert, error)
	AcknowledgeAlert(ctx context.Context, deviceID string, alertID string) error
}

type IDevice interface {
	GetLatestProbability(ctx context.Context, deviceID string) (float64, error)
	UpdateDeliveryToken(ctx context.Context, deviceID string, token string) error
}

const (
	DefaultReadingsCount = 20
	DefaultAlertsLimit   = 50
)

type IOT struct {
	Store      db.Store
	Dispatcher notify.Dispatcher
	// DirectDispatch makes PostReading push high-risk alerts itself, in addition to the
	// change-feed notifier reacting to the same alert.
	DirectDispatch bool

	Reading IReading
	Alert   IAlert
	Device  IDevice
}

type ServiceOpts struct {
	Reading IReading
	Alert   IAlert
	Device  IDevice
}

// New wires the default service implementations on top of store and dispatcher.
func New(store db.Store, dispatcher notify.Dispatcher) *IOT {
	i := &IOT{
		Store:          store,
		Dispatcher:     dispatcher,
		DirectDispatch: true,
	}
	return i.WithServices(ServiceOpts{
		Reading: i.GetIReading(),
		Alert:   i.GetIAlert(),
		Device:  i.GetIDevice(),
	})
}

func (i *IOT) WithServices(opts ServiceOpts) *IOT {
	if opts.Reading != nil {
		i.Reading = opts.Reading
	}
	if opts.Alert != nil {
		i.Alert = opts.Alert
	}
	if opts.Device != nil {
		i.Device = opts.Device
	}
	return i
}
