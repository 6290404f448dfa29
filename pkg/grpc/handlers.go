package grpc

import (
	"context"
	"math"

	z "github.com/Oudwins/zog"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
	"liyu1981.xyz/seizure-alert-service/pkg/common"
	"liyu1981.xyz/seizure-alert-service/pkg/iot"
	"liyu1981.xyz/seizure-alert-service/pkg/models"
)

func validateRequired(values ...*string) bool {
	var requiredValidator = z.String().Min(1).Required()
	for _, v := range values {
		if errs := requiredValidator.Validate(v); errs != nil {
			return false
		}
	}
	return true
}

func stringField(req *structpb.Struct, key string) string {
	return req.GetFields()[key].GetStringValue()
}

// numberField reports false when key is absent or not a number.
func numberField(req *structpb.Struct, key string) (float64, bool) {
	v, ok := req.GetFields()[key]
	if !ok {
		return 0, false
	}
	n, ok := v.GetKind().(*structpb.Value_NumberValue)
	if !ok {
		return 0, false
	}
	return n.NumberValue, true
}

// intField accepts a number or a numeric string and falls back to def otherwise.
func intField(req *structpb.Struct, key string, def int) int {
	if n, ok := numberField(req, key); ok && !math.IsNaN(n) && !math.IsInf(n, 0) {
		return int(n)
	}
	return common.ParseIntOr(stringField(req, key), def)
}

// internalError logs err and hides it behind message.
func internalError(message string, err error) error {
	common.GetLoggerWith(common.LoggerNameGrpcServer).Error(message, zap.Error(err))
	return status.Error(codes.Internal, message)
}

func reply(fields map[string]any) (*structpb.Struct, error) {
	resp, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, internalError("Error encoding response", err)
	}
	return resp, nil
}

func success() (*structpb.Struct, error) {
	return reply(map[string]any{"success": true})
}

func (s *DeviceServer) PostReading(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	const invalid = "Missing or invalid device_id or probability"

	deviceID := stringField(req, "device_id")
	probability, ok := numberField(req, "probability")
	if !validateRequired(&deviceID) || !ok {
		return nil, status.Error(codes.InvalidArgument, invalid)
	}

	alert, err := s.Iot.Reading.PostReading(ctx, deviceID, probability)
	if common.IsInvalidArgument(err) {
		return nil, status.Error(codes.InvalidArgument, invalid)
	}
	if err != nil {
		return nil, internalError("Error posting reading", err)
	}

	return reply(map[string]any{
		"success":       true,
		"alert_id":      alert.ID,
		"alert_message": string(alert.AlertMessage),
	})
}

func (s *DeviceServer) GetLatestProbability(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	deviceID := stringField(req, "device_id")
	if !validateRequired(&deviceID) {
		return nil, status.Error(codes.InvalidArgument, "Missing deviceId")
	}

	probability, err := s.Iot.Device.GetLatestProbability(ctx, deviceID)
	if common.IsNotFound(err) {
		return nil, status.Error(codes.NotFound, "Device not found")
	}
	if err != nil {
		return nil, internalError("Error getting latest probability", err)
	}

	return reply(map[string]any{"probability": probability})
}

func (s *DeviceServer) GetRecentReadings(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	deviceID := stringField(req, "device_id")
	if !validateRequired(&deviceID) {
		return nil, status.Error(codes.InvalidArgument, "Missing deviceId")
	}

	count := intField(req, "count", iot.DefaultReadingsCount)
	readings, err := s.Iot.Reading.GetRecentReadings(ctx, deviceID, count)
	if err != nil {
		return nil, internalError("Error fetching readings", err)
	}

	return reply(map[string]any{"readings": models.ReadingViews(readings)})
}

func (s *DeviceServer) GetAlertHistory(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	deviceID := stringField(req, "device_id")
	if !validateRequired(&deviceID) {
		return nil, status.Error(codes.InvalidArgument, "Missing deviceId")
	}

	limit := intField(req, "limit", iot.DefaultAlertsLimit)
	alerts, err := s.Iot.Alert.GetAlertHistory(ctx, deviceID, limit)
	if err != nil {
		return nil, internalError("Error fetching alerts", err)
	}

	return reply(map[string]any{"alerts": models.AlertViews(alerts)})
}

func (s *DeviceServer) UpdateDeliveryToken(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	deviceID := stringField(req, "device_id")
	token := stringField(req, "fcm_token")
	if !validateRequired(&deviceID, &token) {
		return nil, status.Error(codes.InvalidArgument, "Missing device_id or fcm_token")
	}

	if err := s.Iot.Device.UpdateDeliveryToken(ctx, deviceID, token); err != nil {
		return nil, internalError("Error updating FCM token", err)
	}

	return success()
}

func (s *DeviceServer) AcknowledgeAlert(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	deviceID := stringField(req, "device_id")
	alertID := stringField(req, "alert_id")
	if !validateRequired(&deviceID, &alertID) {
		return nil, status.Error(codes.InvalidArgument, "Missing device_id or alert_id")
	}

	err := s.Iot.Alert.AcknowledgeAlert(ctx, deviceID, alertID)
	if common.IsNotFound(err) {
		return nil, status.Error(codes.NotFound, "Alert not found")
	}
	if err != nil {
		return nil, internalError("Error acknowledging alert", err)
	}

	return success()
}

func (s *DeviceServer) SetLimiter(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	const invalid = "Missing or invalid device_id, rate or burst"

	deviceID := stringField(req, "device_id")
	if !validateRequired(&deviceID) {
		return nil, status.Error(codes.InvalidArgument, invalid)
	}

	deviceRate, ok := numberField(req, "rate")
	if !ok {
		return nil, status.Error(codes.InvalidArgument, invalid)
	}
	var rateValidator = z.Float64().Required().GT(0)
	if errs := rateValidator.Validate(&deviceRate); errs != nil {
		return nil, status.Error(codes.InvalidArgument, invalid)
	}

	deviceBurst := intField(req, "burst", 0)
	var burstValidator = z.Int().Required().GT(0)
	if errs := burstValidator.Validate(&deviceBurst); errs != nil {
		return nil, status.Error(codes.InvalidArgument, invalid)
	}

	if s.RateLimiterStore == nil {
		return nil, status.Error(codes.FailedPrecondition, "RateLimiterStore is not used. No effect.")
	}

	s.RateLimiterStore.SetLimiter(deviceID, rate.Limit(deviceRate), deviceBurst)
	return success()
}
