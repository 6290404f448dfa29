package grpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// The service speaks google.protobuf.Struct on both sides so that it carries the same JSON-shaped
// payloads as the REST surface without a generated package.

const ServiceName = "seizurealert.v1.DeviceService"

const (
	MethodPostReading          = "PostReading"
	MethodGetLatestProbability = "GetLatestProbability"
	MethodGetRecentReadings    = "GetRecentReadings"
	MethodGetAlertHistory      = "GetAlertHistory"
	MethodUpdateDeliveryToken  = "UpdateDeliveryToken"
	MethodAcknowledgeAlert     = "AcknowledgeAlert"
	MethodSetLimiter           = "SetLimiter"
)

func FullMethod(method string) string {
	return "/" + ServiceName + "/" + method
}

type DeviceServiceServer interface {
	PostReading(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetLatestProbability(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetRecentReadings(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetAlertHistory(context.Context, *structpb.Struct) (*structpb.Struct, error)
	UpdateDeliveryToken(context.Context, *structpb.Struct) (*structpb.Struct, error)
	AcknowledgeAlert(context.Context, *structpb.Struct) (*structpb.Struct, error)
	SetLimiter(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type unaryCall func(DeviceServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(method string, call unaryCall) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(DeviceServiceServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{
				Server:     srv,
				FullMethod: FullMethod(method),
			}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(DeviceServiceServer), ctx, req.(*structpb.Struct))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

var DeviceServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*DeviceServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryHandler(MethodPostReading, DeviceServiceServer.PostReading),
		unaryHandler(MethodGetLatestProbability, DeviceServiceServer.GetLatestProbability),
		unaryHandler(MethodGetRecentReadings, DeviceServiceServer.GetRecentReadings),
		unaryHandler(MethodGetAlertHistory, DeviceServiceServer.GetAlertHistory),
		unaryHandler(MethodUpdateDeliveryToken, DeviceServiceServer.UpdateDeliveryToken),
		unaryHandler(MethodAcknowledgeAlert, DeviceServiceServer.AcknowledgeAlert),
		unaryHandler(MethodSetLimiter, DeviceServiceServer.SetLimiter),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "seizurealert/v1/device_service.proto",
}

func RegisterDeviceServiceServer(s grpc.ServiceRegistrar, srv DeviceServiceServer) {
	s.RegisterService(&DeviceServiceDesc, srv)
}

type DeviceServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewDeviceServiceClient(cc grpc.ClientConnInterface) *DeviceServiceClient {
	return &DeviceServiceClient{cc: cc}
}

// Call invokes method with a request built from fields.
func (c *DeviceServiceClient) Call(ctx context.Context, method string, fields map[string]any, opts ...grpc.CallOption) (*structpb.Struct, error) {
	in, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, err
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, FullMethod(method), in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *DeviceServiceClient) PostReading(ctx context.Context, deviceID string, probability float64, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.Call(ctx, MethodPostReading, map[string]any{"device_id": deviceID, "probability": probability}, opts...)
}

func (c *DeviceServiceClient) GetLatestProbability(ctx context.Context, deviceID string, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.Call(ctx, MethodGetLatestProbability, map[string]any{"device_id": deviceID}, opts...)
}

func (c *DeviceServiceClient) GetRecentReadings(ctx context.Context, deviceID string, count int, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.Call(ctx, MethodGetRecentReadings, map[string]any{"device_id": deviceID, "count": count}, opts...)
}

func (c *DeviceServiceClient) GetAlertHistory(ctx context.Context, deviceID string, limit int, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.Call(ctx, MethodGetAlertHistory, map[string]any{"device_id": deviceID, "limit": limit}, opts...)
}

func (c *DeviceServiceClient) UpdateDeliveryToken(ctx context.Context, deviceID string, token string, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.Call(ctx, MethodUpdateDeliveryToken, map[string]any{"device_id": deviceID, "fcm_token": token}, opts...)
}

func (c *DeviceServiceClient) AcknowledgeAlert(ctx context.Context, deviceID string, alertID string, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.Call(ctx, MethodAcknowledgeAlert, map[string]any{"device_id": deviceID, "alert_id": alertID}, opts...)
}

func (c *DeviceServiceClient) SetLimiter(ctx context.Context, deviceID string, deviceRate float64, deviceBurst int, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.Call(ctx, MethodSetLimiter, map[string]any{"device_id": deviceID, "rate": deviceRate, "burst": deviceBurst}, opts...)
}
