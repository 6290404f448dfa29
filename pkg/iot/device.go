package iot

import (
	"context"

	"go.uber.org/zap"
	"liyu1981.xyz/seizure-alert-service/pkg/common"
)

// getLatestProbability returns 0 for a device that exists but has never had a reading.
func (i *IOT) getLatestProbability(ctx context.Context, deviceID string) (float64, error) {
	if deviceID == "" {
		return 0, common.InvalidArgument("device_id is required")
	}

	device, err := i.Store.GetDevice(ctx, deviceID)
	if err != nil {
		return 0, err
	}
	return device.LatestProbability, nil
}

func (i *IOT) updateDeliveryToken(ctx context.Context, deviceID string, token string) error {
	if deviceID == "" || token == "" {
		return common.InvalidArgument("device_id and fcm_token are required")
	}

	logger := common.GetLoggerWith(
		common.LoggerNameIOTCore,
		zap.String(common.LoggerFieldIOTCategory, common.LoggerCategoryIOTDevice),
	)

	if err := i.Store.SetDeliveryToken(ctx, deviceID, token); err != nil {
		return err
	}

	// the token itself is a credential and stays out of the logs
	logger.Info("Updated delivery token for device", zap.String("device_id", deviceID))
	return nil
}

type IDeviceImpl struct {
	iot *IOT
}

func (id *IDeviceImpl) GetLatestProbability(ctx context.Context, deviceID string) (float64, error) {
	return id.iot.getLatestProbability(ctx, deviceID)
}

func (id *IDeviceImpl) UpdateDeliveryToken(ctx context.Context, deviceID string, token string) error {
	return id.iot.updateDeliveryToken(ctx, deviceID, token)
}

func (i *IOT) GetIDevice() IDevice {
	return &IDeviceImpl{iot: i}
}
