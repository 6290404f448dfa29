package grpc

import (
	"context"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
	"liyu1981.xyz/seizure-alert-service/pkg/common"
)

func (s *DeviceServer) CreateRateLimitInterceptor(methods []string) grpc.UnaryServerInterceptor {
	targetMethods := common.Reducer(methods,
		func(m map[string]bool, method string) map[string]bool {
			m[FullMethod(method)] = true
			return m
		},
		map[string]bool{},
	)

	return func(
		ctx context.Context,
		req any,
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (any, error) {
		if _, ok := targetMethods[info.FullMethod]; ok {
			if r, ok := req.(*structpb.Struct); ok {
				deviceID := r.GetFields()["device_id"].GetStringValue()
				if !s.CheckDeviceLimiter(deviceID) {
					return nil, status.Errorf(codes.ResourceExhausted, "rate limit exceeded")
				}
			}
		}

		return handler(ctx, req)
	}
}

// LoggingInterceptor logs every call with its status code; internal failures are logged as errors.
func LoggingInterceptor() grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req any,
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)

		code := status.Code(err)
		fields := []zap.Field{
			zap.String("method", info.FullMethod),
			zap.String("code", code.String()),
			zap.Duration("elapsed", time.Since(start)),
		}

		logger := common.GetLoggerWith(common.LoggerNameGrpcServer)
		if code == codes.Internal || code == codes.Unknown {
			logger.Error("gRPC call failed", append(fields, zap.Error(err))...)
		} else {
			logger.Info("gRPC call", fields...)
		}

		return resp, err
	}
}
