package iot

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"liyu1981.xyz/seizure-alert-service/pkg/common"
	"liyu1981.xyz/seizure-alert-service/pkg/models"
)

func (i *IOT) getAlertHistory(ctx context.Context, deviceID string, limit int) ([]models.Alert, error) {
	if deviceID == "" {
		return nil, common.InvalidArgument("device_id is required")
	}

	alerts, err := i.Store.AlertHistory(ctx, deviceID, limit)
	if err != nil {
		return nil, fmt.Errorf("fetching alerts of %s: %w", deviceID, err)
	}
	return alerts, nil
}

// acknowledgeAlert flips acknowledged to true; acknowledging twice succeeds.
func (i *IOT) acknowledgeAlert(ctx context.Context, deviceID string, alertID string) error {
	if deviceID == "" || alertID == "" {
		return common.InvalidArgument("device_id and alert_id are required")
	}

	logger := common.GetLoggerWith(
		common.LoggerNameIOTCore,
		zap.String(common.LoggerFieldIOTCategory, common.LoggerCategoryIOTAlert),
	)

	if err := i.Store.AcknowledgeAlert(ctx, deviceID, alertID); err != nil {
		return err
	}

	logger.Info("Alert acknowledged", zap.String("device_id", deviceID), zap.String("alert_id", alertID))
	return nil
}

type IAlertImpl struct {
	iot *IOT
}

func (ia *IAlertImpl) GetAlertHistory(ctx context.Context, deviceID string, limit int) ([]models.Alert, error) {
	return ia.iot.getAlertHistory(ctx, deviceID, limit)
}

func (ia *IAlertImpl) AcknowledgeAlert(ctx context.Context, deviceID string, alertID string) error {
	return ia.iot.acknowledgeAlert(ctx, deviceID, alertID)
}

func (i *IOT) GetIAlert() IAlert {
	return &IAlertImpl{iot: i}
}
