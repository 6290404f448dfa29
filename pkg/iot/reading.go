package iot

import (
	"context"
	"fmt"
	"math"

	"go.uber.org/zap"
	"liyu1981.xyz/seizure-alert-service/pkg/common"
	"liyu1981.xyz/seizure-alert-service/pkg/models"
	"liyu1981.xyz/seizure-alert-service/pkg/notify"
)

func validateReading(deviceID string, probability float64) error {
	if deviceID == "" {
		return common.InvalidArgument("device_id is required")
	}
	if math.IsNaN(probability) || math.IsInf(probability, 0) {
		return common.InvalidArgument("probability must be a number")
	}
	return nil
}

// postReading runs the ingestion steps one after another without a transaction; a failing step
// leaves the earlier writes in place. A caller going away does not stop the chain once it has started.
func (i *IOT) postReading(ctx context.Context, deviceID string, probability float64) (*models.Alert, error) {
	if err := validateReading(deviceID, probability); err != nil {
		return nil, err
	}
	ctx = context.WithoutCancel(ctx)

	logger := common.GetLoggerWith(
		common.LoggerNameIOTCore,
		zap.String(common.LoggerFieldIOTCategory, common.LoggerCategoryIOTReading),
		zap.String("device_id", deviceID),
	)

	logger.Info("Received reading for device", zap.Float64("probability", probability))

	reading, err := i.Store.AppendReading(ctx, deviceID, probability)
	if err != nil {
		logger.Error("Ingestion failed", zap.String("step", "append_reading"), zap.Error(err))
		return nil, err
	}

	if err := i.Store.SetLatestProbability(ctx, deviceID, probability); err != nil {
		logger.Error("Ingestion failed", zap.String("step", "update_latest"), zap.Error(err))
		return nil, err
	}

	alert := models.Alert{
		AlertTime:    reading.Timestamp,
		Probability:  probability,
		Acknowledged: false,
		AlertMessage: Classify(probability),
	}

	if err := i.Store.AppendAlert(ctx, deviceID, &alert); err != nil {
		logger.Error("Ingestion failed", zap.String("step", "append_alert"), zap.Error(err))
		return nil, err
	}

	logger.Info("Alert saved", zap.Reflect("alert", alert))

	if i.DirectDispatch && ShouldNotify(probability) {
		i.dispatchDirect(ctx, &alert)
	}

	return &alert, nil
}

// dispatchDirect is best effort: every failure is logged and swallowed.
func (i *IOT) dispatchDirect(ctx context.Context, alert *models.Alert) {
	logger := common.GetLoggerWith(
		common.LoggerNameIOTCore,
		zap.String(common.LoggerFieldIOTCategory, common.LoggerCategoryIOTDispatch),
		zap.String("device_id", alert.DeviceID),
		zap.String("alert_id", alert.ID),
	)

	if i.Dispatcher == nil {
		logger.Warn("No dispatcher configured, skipping notification")
		return
	}

	device, err := i.Store.GetDevice(ctx, alert.DeviceID)
	if err != nil {
		logger.Error("Error reading device for notification", zap.Error(err))
		return
	}

	if !device.HasDeliveryToken() {
		logger.Info("Device has no FCM token")
		return
	}

	msg := notify.NewAlertMessage(device.FCMToken, alert.DeviceID, alert.ID, alert.Probability)
	if err := i.Dispatcher.Send(ctx, msg); err != nil {
		logger.Error("Error sending notification", zap.Error(err))
		return
	}

	logger.Info("Push notification sent")
}

func (i *IOT) getRecentReadings(ctx context.Context, deviceID string, count int) ([]models.Reading, error) {
	if deviceID == "" {
		return nil, common.InvalidArgument("device_id is required")
	}

	readings, err := i.Store.RecentReadings(ctx, deviceID, count)
	if err != nil {
		return nil, fmt.Errorf("fetching readings of %s: %w", deviceID, err)
	}
	return readings, nil
}

type IReadingImpl struct {
	iot *IOT
}

func (ir *IReadingImpl) PostReading(ctx context.Context, deviceID string, probability float64) (*models.Alert, error) {
	return ir.iot.postReading(ctx, deviceID, probability)
}

func (ir *IReadingImpl) GetRecentReadings(ctx context.Context, deviceID string, count int) ([]models.Reading, error) {
	return ir.iot.getRecentReadings(ctx, deviceID, count)
}

func (i *IOT) GetIReading() IReading {
	return &IReadingImpl{iot: i}
}
