package grpcserver

import (
	"context"
	"encoding/json"
	"math"
	"strings"

	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"letDrone/internal/auth"
	"letDrone/internal/geo"
	"letDrone/internal/service"
	"letDrone/models"
)

const FleetServiceName = "letdrone.fleet.v1.FleetService"

// FleetServiceServer is the telemetry and dispatch API used by drones and
// the fleet dispatcher. Messages are google.protobuf.Struct so the service
// needs no generated code.
type FleetServiceServer interface {
	ReportTelemetry(context.Context, *structpb.Struct) (*emptypb.Empty, error)
	AdvanceDelivery(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// FleetServer implements FleetServiceServer on top of the service layer.
type FleetServer struct {
	Fleet      *service.FleetService
	Deliveries *service.DeliveryService
}

// ReportTelemetry updates a drone's battery and position. A drone may only
// report for itself; the dispatcher may report for any drone.
func (s *FleetServer) ReportTelemetry(ctx context.Context, req *structpb.Struct) (*emptypb.Empty, error) {
	fields := req.GetFields()
	droneID := stringField(fields, "drone_id")
	if droneID == "" {
		return nil, status.Error(codes.InvalidArgument, "drone_id is required")
	}
	if _, err := auth.RequireDroneFor(ctx, droneID); err != nil {
		return nil, err
	}

	t := service.Telemetry{DroneID: droneID}
	var err error
	if t.BatteryLevel, err = intField(fields, "battery_level"); err != nil {
		return nil, err
	}
	lat, latOK := numberField(fields, "latitude")
	lng, lngOK := numberField(fields, "longitude")
	switch {
	case latOK && lngOK:
		t.Position = &geo.Point{Lat: lat, Lng: lng}
	case latOK || lngOK:
		return nil, status.Error(codes.InvalidArgument, "latitude and longitude must be sent together")
	}
	if alt, ok := numberField(fields, "altitude"); ok {
		t.Altitude = &alt
	}

	if _, err := s.Fleet.ReportTelemetry(ctx, t); err != nil {
		return nil, toStatus(err)
	}
	return &emptypb.Empty{}, nil
}

// AdvanceDelivery moves a delivery to the requested status. Dispatcher only.
func (s *FleetServer) AdvanceDelivery(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	p, err := auth.RequireDispatch(ctx)
	if err != nil {
		return nil, err
	}
	fields := req.GetFields()
	id := stringField(fields, "delivery_id")
	to := models.DeliveryStatus(strings.ToUpper(stringField(fields, "status")))
	if id == "" || to == "" {
		return nil, status.Error(codes.InvalidArgument, "delivery_id and status are required")
	}
	d, err := s.Deliveries.Transition(ctx, id, to)
	if err != nil {
		return nil, toStatus(err)
	}
	log.Info().Str("delivery_id", d.ID).Str("status", string(d.Status)).Str("dispatcher", p.Name).Msg("delivery advanced by dispatcher")
	return deliveryStruct(d)
}

func deliveryStruct(d *models.Delivery) (*structpb.Struct, error) {
	raw, err := json.Marshal(d)
	if err != nil {
		return nil, status.Error(codes.Internal, "encode delivery")
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, status.Error(codes.Internal, "encode delivery")
	}
	out, err := structpb.NewStruct(m)
	if err != nil {
		return nil, status.Error(codes.Internal, "encode delivery")
	}
	return out, nil
}

func stringField(fields map[string]*structpb.Value, key string) string {
	return strings.TrimSpace(fields[key].GetStringValue())
}

func numberField(fields map[string]*structpb.Value, key string) (float64, bool) {
	v, ok := fields[key]
	if !ok {
		return 0, false
	}
	n, ok := v.GetKind().(*structpb.Value_NumberValue)
	if !ok {
		return 0, false
	}
	return n.NumberValue, true
}

func intField(fields map[string]*structpb.Value, key string) (*int, error) {
	f, ok := numberField(fields, key)
	if !ok {
		if v, present := fields[key]; present {
			if _, isNull := v.GetKind().(*structpb.Value_NullValue); !isNull {
				return nil, status.Errorf(codes.InvalidArgument, "%s must be a number", key)
			}
		}
		return nil, nil
	}
	if f != math.Trunc(f) {
		return nil, status.Errorf(codes.InvalidArgument, "%s must be a whole number", key)
	}
	n := int(f)
	return &n, nil
}

// RegisterFleetServiceServer registers impl on s.
func RegisterFleetServiceServer(s grpc.ServiceRegistrar, impl FleetServiceServer) {
	s.RegisterService(&fleetServiceDesc, impl)
}

var fleetServiceDesc = grpc.ServiceDesc{
	ServiceName: FleetServiceName,
	HandlerType: (*FleetServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "ReportTelemetry", Handler: reportTelemetryHandler},
		{MethodName: "AdvanceDelivery", Handler: advanceDeliveryHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "letdrone/fleet/v1/fleet.proto",
}

func reportTelemetryHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(FleetServiceServer).ReportTelemetry(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + FleetServiceName + "/ReportTelemetry"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(FleetServiceServer).ReportTelemetry(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func advanceDeliveryHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(FleetServiceServer).AdvanceDelivery(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + FleetServiceName + "/AdvanceDelivery"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(FleetServiceServer).AdvanceDelivery(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}
