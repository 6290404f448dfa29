package grpc

import (
	"context"
	"fmt"
	"net"
	"testing"

	"go.uber.org/mock/gomock"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"liyu1981.xyz/seizure-alert-service/pkg/common"
	"liyu1981.xyz/seizure-alert-service/pkg/db"
	"liyu1981.xyz/seizure-alert-service/pkg/iot"
	"liyu1981.xyz/seizure-alert-service/pkg/notify"
	_ "liyu1981.xyz/seizure-alert-service/pkg/testing"

	"liyu1981.xyz/seizure-alert-service/pkg/iot/mocks"
)

const bufSize = 1024 * 1024

func newTestIOT(t *testing.T) *iot.IOT {
	instance, err := db.Open(db.UseIsolatedMemorySqliteDialector())
	require.NoError(t, err)
	t.Cleanup(func() { _ = instance.Close() })

	return iot.New(db.NewSqlStore(instance), notify.LogDispatcher{})
}

func startTestServerWith(t *testing.T, deviceServer *DeviceServer) *DeviceServiceClient {
	listener := bufconn.Listen(bufSize)

	server := deviceServer.NewServer()
	go func() {
		_ = server.Serve(listener)
	}()
	t.Cleanup(server.Stop)

	conn, err := grpc.DialContext(context.Background(), "bufnet",
		grpc.WithContextDialer(func(ctx context.Context, s string) (net.Conn, error) {
			return listener.Dial()
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	return NewDeviceServiceClient(conn)
}

func startTestServer(t *testing.T) *DeviceServiceClient {
	return startTestServerWith(t, &DeviceServer{Iot: newTestIOT(t)})
}

func startTestServerWithMocks(t *testing.T) (
	*gomock.Controller,
	*DeviceServiceClient,
	*mocks.MockIReading,
	*mocks.MockIAlert,
	*mocks.MockIDevice,
) {
	ctrl := gomock.NewController(t)

	mockIReading := mocks.NewMockIReading(ctrl)
	mockIAlert := mocks.NewMockIAlert(ctrl)
	mockIDevice := mocks.NewMockIDevice(ctrl)

	iotCore := newTestIOT(t).WithServices(iot.ServiceOpts{
		Reading: mockIReading,
		Alert:   mockIAlert,
		Device:  mockIDevice,
	})

	client := startTestServerWith(t, &DeviceServer{Iot: iotCore})
	return ctrl, client, mockIReading, mockIAlert, mockIDevice
}

func requireCode(t *testing.T, err error, code codes.Code, message string) {
	t.Helper()
	require.Error(t, err)
	st, ok := status.FromError(err)
	require.True(t, ok, "expected gRPC status error")
	assert.Equal(t, code, st.Code())
	if message != "" {
		assert.Equal(t, message, st.Message())
	}
}

func TestPostReadingAndQueries(t *testing.T) {
	common.SetTestLoggerNop()
	client := startTestServer(t)

	ctx := context.Background()
	deviceID := uuid.NewString()

	resp, err := client.UpdateDeliveryToken(ctx, deviceID, "tok1")
	require.NoError(t, err)
	assert.True(t, resp.GetFields()["success"].GetBoolValue())

	resp, err = client.PostReading(ctx, deviceID, 0.3)
	require.NoError(t, err)
	assert.Equal(t, "low", resp.GetFields()["alert_message"].GetStringValue())
	firstAlertID := resp.GetFields()["alert_id"].GetStringValue()
	assert.NotEmpty(t, firstAlertID)

	resp, err = client.PostReading(ctx, deviceID, 0.95)
	require.NoError(t, err)
	assert.Equal(t, "high", resp.GetFields()["alert_message"].GetStringValue())

	resp, err = client.GetLatestProbability(ctx, deviceID)
	require.NoError(t, err)
	assert.Equal(t, 0.95, resp.GetFields()["probability"].GetNumberValue())

	resp, err = client.GetRecentReadings(ctx, deviceID, 1)
	require.NoError(t, err)
	readings := resp.GetFields()["readings"].GetListValue().GetValues()
	require.Len(t, readings, 1)
	reading := readings[0].GetStructValue().GetFields()
	assert.Equal(t, 0.95, reading["probability"].GetNumberValue())
	assert.NotEmpty(t, reading["timestamp"].GetStringValue())

	resp, err = client.GetAlertHistory(ctx, deviceID, iot.DefaultAlertsLimit)
	require.NoError(t, err)
	alerts := resp.GetFields()["alerts"].GetListValue().GetValues()
	require.Len(t, alerts, 2)
	oldest := alerts[1].GetStructValue().GetFields()
	assert.Equal(t, firstAlertID, oldest["id"].GetStringValue())
	assert.False(t, oldest["acknowledged"].GetBoolValue())

	_, err = client.AcknowledgeAlert(ctx, deviceID, firstAlertID)
	require.NoError(t, err)
	_, err = client.AcknowledgeAlert(ctx, deviceID, firstAlertID)
	require.NoError(t, err)

	resp, err = client.GetAlertHistory(ctx, deviceID, iot.DefaultAlertsLimit)
	require.NoError(t, err)
	oldest = resp.GetFields()["alerts"].GetListValue().GetValues()[1].GetStructValue().GetFields()
	assert.True(t, oldest["acknowledged"].GetBoolValue())
}

func TestQueries_EdgeCases(t *testing.T) {
	common.SetTestLoggerNop()
	client := startTestServer(t)

	ctx := context.Background()
	deviceID := uuid.NewString()

	_, err := client.GetLatestProbability(ctx, "")
	requireCode(t, err, codes.InvalidArgument, "Missing deviceId")
	_, err = client.GetRecentReadings(ctx, "", 1)
	requireCode(t, err, codes.InvalidArgument, "Missing deviceId")
	_, err = client.GetAlertHistory(ctx, "", 1)
	requireCode(t, err, codes.InvalidArgument, "Missing deviceId")

	_, err = client.GetLatestProbability(ctx, deviceID)
	requireCode(t, err, codes.NotFound, "Device not found")

	for range 3 {
		_, err = client.PostReading(ctx, deviceID, 0.5)
		require.NoError(t, err)
	}

	// a non-numeric count falls back to the default
	resp, err := client.Call(ctx, MethodGetRecentReadings, map[string]any{"device_id": deviceID, "count": "abc"})
	require.NoError(t, err)
	assert.Len(t, resp.GetFields()["readings"].GetListValue().GetValues(), 3)

	// a numeric string is accepted
	resp, err = client.Call(ctx, MethodGetAlertHistory, map[string]any{"device_id": deviceID, "limit": "2"})
	require.NoError(t, err)
	assert.Len(t, resp.GetFields()["alerts"].GetListValue().GetValues(), 2)

	resp, err = client.GetRecentReadings(ctx, deviceID, 0)
	require.NoError(t, err)
	assert.Len(t, resp.GetFields()["readings"].GetListValue().GetValues(), 0)
}

func TestMutations_EdgeCases(t *testing.T) {
	common.SetTestLoggerNop()
	client := startTestServer(t)

	ctx := context.Background()
	deviceID := uuid.NewString()

	_, err := client.PostReading(ctx, "", 0.5)
	requireCode(t, err, codes.InvalidArgument, "Missing or invalid device_id or probability")
	_, err = client.Call(ctx, MethodPostReading, map[string]any{"device_id": deviceID})
	requireCode(t, err, codes.InvalidArgument, "Missing or invalid device_id or probability")
	_, err = client.Call(ctx, MethodPostReading, map[string]any{"device_id": deviceID, "probability": "0.5"})
	requireCode(t, err, codes.InvalidArgument, "Missing or invalid device_id or probability")

	_, err = client.UpdateDeliveryToken(ctx, deviceID, "")
	requireCode(t, err, codes.InvalidArgument, "Missing device_id or fcm_token")

	_, err = client.AcknowledgeAlert(ctx, deviceID, "")
	requireCode(t, err, codes.InvalidArgument, "Missing device_id or alert_id")
	_, err = client.AcknowledgeAlert(ctx, deviceID, uuid.NewString())
	requireCode(t, err, codes.NotFound, "Alert not found")

	// nothing was written by the rejected calls
	_, err = client.GetLatestProbability(ctx, deviceID)
	requireCode(t, err, codes.NotFound, "")
}

func TestInternalErrors(t *testing.T) {
	common.SetTestLoggerNop()

	ctrl, client, mockIReading, mockIAlert, mockIDevice := startTestServerWithMocks(t)
	defer ctrl.Finish()

	ctx := context.Background()
	deviceID := uuid.NewString()

	mockIReading.EXPECT().
		PostReading(gomock.Any(), gomock.Eq(deviceID), gomock.Eq(0.9)).
		Return(nil, fmt.Errorf("test error")).
		Times(1)
	mockIReading.EXPECT().
		GetRecentReadings(gomock.Any(), gomock.Eq(deviceID), gomock.Eq(iot.DefaultReadingsCount)).
		Return(nil, fmt.Errorf("test error")).
		Times(1)
	mockIAlert.EXPECT().
		GetAlertHistory(gomock.Any(), gomock.Eq(deviceID), gomock.Eq(5)).
		Return(nil, fmt.Errorf("test error")).
		Times(1)
	mockIAlert.EXPECT().
		AcknowledgeAlert(gomock.Any(), gomock.Eq(deviceID), gomock.Eq("a1")).
		Return(fmt.Errorf("test error")).
		Times(1)
	mockIDevice.EXPECT().
		GetLatestProbability(gomock.Any(), gomock.Eq(deviceID)).
		Return(0.0, fmt.Errorf("test error")).
		Times(1)
	mockIDevice.EXPECT().
		UpdateDeliveryToken(gomock.Any(), gomock.Eq(deviceID), gomock.Eq("tok1")).
		Return(fmt.Errorf("test error")).
		Times(1)

	_, err := client.PostReading(ctx, deviceID, 0.9)
	requireCode(t, err, codes.Internal, "Error posting reading")
	_, err = client.Call(ctx, MethodGetRecentReadings, map[string]any{"device_id": deviceID})
	requireCode(t, err, codes.Internal, "Error fetching readings")
	_, err = client.GetAlertHistory(ctx, deviceID, 5)
	requireCode(t, err, codes.Internal, "Error fetching alerts")
	_, err = client.AcknowledgeAlert(ctx, deviceID, "a1")
	requireCode(t, err, codes.Internal, "Error acknowledging alert")
	_, err = client.GetLatestProbability(ctx, deviceID)
	requireCode(t, err, codes.Internal, "Error getting latest probability")
	_, err = client.UpdateDeliveryToken(ctx, deviceID, "tok1")
	requireCode(t, err, codes.Internal, "Error updating FCM token")
}

func TestRateLimitInterceptor_PostReading(t *testing.T) {
	common.SetTestLoggerNop()

	limiterStore := iot.NewRateLimiterStore(1, 2)
	client := startTestServerWith(t, &DeviceServer{Iot: newTestIOT(t), RateLimiterStore: limiterStore})

	ctx := context.Background()
	deviceID := uuid.NewString()

	// First 2 requests should pass
	for i := range 2 {
		_, err := client.PostReading(ctx, deviceID, 0.2)
		require.NoError(t, err, "expected request %d to pass", i+1)
	}

	// 3rd request should fail immediately
	_, err := client.PostReading(ctx, deviceID, 0.2)
	requireCode(t, err, codes.ResourceExhausted, "")

	// queries of the same device share the limiter
	_, err = client.GetLatestProbability(ctx, deviceID)
	requireCode(t, err, codes.ResourceExhausted, "")

	// the admin call is not limited, and raises the limit
	_, err = client.SetLimiter(ctx, deviceID, 10, 5)
	require.NoError(t, err)

	_, err = client.PostReading(ctx, deviceID, 0.2)
	require.NoError(t, err, "expected request after raising the limit to pass")
}

func TestSetLimiter_EdgeCases(t *testing.T) {
	common.SetTestLoggerNop()

	{
		client := startTestServerWith(t, &DeviceServer{Iot: newTestIOT(t), RateLimiterStore: iot.NewRateLimiterStore(1, 1)})
		ctx := context.Background()
		deviceID := uuid.NewString()

		_, err := client.SetLimiter(ctx, "", 3, 2)
		requireCode(t, err, codes.InvalidArgument, "")
		_, err = client.Call(ctx, MethodSetLimiter, map[string]any{"device_id": deviceID})
		requireCode(t, err, codes.InvalidArgument, "")
		_, err = client.SetLimiter(ctx, deviceID, 3, 0)
		requireCode(t, err, codes.InvalidArgument, "")
		_, err = client.SetLimiter(ctx, deviceID, 0, 2)
		requireCode(t, err, codes.InvalidArgument, "")
	}

	{
		// default there is no rate limiter so setting a rate has no effect
		client := startTestServer(t)
		_, err := client.SetLimiter(context.Background(), uuid.NewString(), 3, 2)
		requireCode(t, err, codes.FailedPrecondition, "RateLimiterStore is not used. No effect.")
	}
}
