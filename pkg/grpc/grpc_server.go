package grpc

import (
	"google.golang.org/grpc"
	"liyu1981.xyz/seizure-alert-service/pkg/iot"
)

type DeviceServer struct {
	Iot              *iot.IOT
	RateLimiterStore *iot.RateLimiterStore
}

func (s *DeviceServer) CheckDeviceLimiter(deviceID string) bool {
	return s.RateLimiterStore.Allow(deviceID)
}

// rateLimitedMethods are all calls made on behalf of a device; SetLimiter is the admin call.
var rateLimitedMethods = []string{
	MethodPostReading,
	MethodGetLatestProbability,
	MethodGetRecentReadings,
	MethodGetAlertHistory,
	MethodUpdateDeliveryToken,
	MethodAcknowledgeAlert,
}

// NewServer builds a grpc.Server with the device service registered behind the logging and rate
// limit interceptors.
func (s *DeviceServer) NewServer(opts ...grpc.ServerOption) *grpc.Server {
	opts = append(opts, grpc.ChainUnaryInterceptor(
		LoggingInterceptor(),
		s.CreateRateLimitInterceptor(rateLimitedMethods),
	))
	server := grpc.NewServer(opts...)
	RegisterDeviceServiceServer(server, s)
	return server
}
