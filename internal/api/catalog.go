package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"carrental/internal/domain"
	"carrental/internal/models"
	"carrental/internal/service"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

const catalogServiceName = "carrental.catalog.v1.CatalogService"

const (
	methodCheckAvailability = "/" + catalogServiceName + "/CheckAvailability"
	methodListCars          = "/" + catalogServiceName + "/ListCars"
	methodGetCar            = "/" + catalogServiceName + "/GetCar"
)

// CatalogServer is the partner-facing read API. Requests and responses are
// google.protobuf.Struct values carrying the same fields as the JSON API.
type CatalogServer interface {
	CheckAvailability(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	ListCars(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	GetCar(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

var catalogServiceDesc = grpc.ServiceDesc{
	ServiceName: catalogServiceName,
	HandlerType: (*CatalogServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "CheckAvailability", Handler: catalogHandler(methodCheckAvailability, CatalogServer.CheckAvailability)},
		{MethodName: "ListCars", Handler: catalogHandler(methodListCars, CatalogServer.ListCars)},
		{MethodName: "GetCar", Handler: catalogHandler(methodGetCar, CatalogServer.GetCar)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "carrental/catalog/v1/catalog.proto",
}

func RegisterCatalogServer(s grpc.ServiceRegistrar, srv CatalogServer) {
	s.RegisterService(&catalogServiceDesc, srv)
}

type catalogCall func(CatalogServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func catalogHandler(fullMethod string, call catalogCall) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(CatalogServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(CatalogServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

type CatalogService struct {
	cars     domain.CarService
	bookings domain.BookingService
}

func NewCatalogService(cars domain.CarService, bookings domain.BookingService) *CatalogService {
	return &CatalogService{cars: cars, bookings: bookings}
}

func (s *CatalogService) CheckAvailability(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	cars, err := s.bookings.CheckAvailability(ctx,
		stringField(req, "pickupLocation"), stringField(req, "pickupDate"), stringField(req, "returnDate"))
	if err != nil {
		return nil, grpcError(err)
	}
	return toStruct(map[string]any{"success": true, "availableCars": cars})
}

func (s *CatalogService) ListCars(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	cars, err := s.cars.ListAvailable(ctx, models.CarFilter{
		Location: stringField(req, "location"),
		Category: stringField(req, "category"),
	})
	if err != nil {
		return nil, grpcError(err)
	}
	if cars == nil {
		cars = []*models.Car{}
	}
	return toStruct(map[string]any{"success": true, "cars": cars})
}

func (s *CatalogService) GetCar(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	idValue, ok := req.GetFields()["id"]
	if !ok {
		return nil, status.Error(codes.InvalidArgument, "id is required")
	}
	id := int64(idValue.GetNumberValue())
	if id <= 0 || float64(id) != idValue.GetNumberValue() {
		return nil, status.Error(codes.InvalidArgument, "id must be a positive integer")
	}

	car, err := s.cars.GetByID(ctx, id)
	if err != nil {
		return nil, grpcError(err)
	}
	return toStruct(map[string]any{"success": true, "car": car})
}

func stringField(s *structpb.Struct, key string) string {
	return strings.TrimSpace(s.GetFields()[key].GetStringValue())
}

// toStruct converts a JSON-tagged value into a Struct through its JSON form.
func toStruct(v any) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, status.Error(codes.Internal, "encode response")
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, status.Error(codes.Internal, "encode response")
	}
	out, err := structpb.NewStruct(m)
	if err != nil {
		return nil, status.Error(codes.Internal, fmt.Sprintf("encode response: %v", err))
	}
	return out, nil
}

func grpcError(err error) error {
	switch {
	case errors.Is(err, service.ErrInvalidDateRange), errors.Is(err, service.ErrInvalidInput):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, service.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, service.ErrForbidden):
		return status.Error(codes.PermissionDenied, err.Error())
	}
	return status.Error(codes.Internal, "internal error")
}
