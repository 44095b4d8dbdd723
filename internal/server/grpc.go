package server

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/alfredjeanlab/docq/internal/auth"
	"github.com/alfredjeanlab/docq/internal/model"
	"google.golang.org/grpc"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// queryServiceName is the fully qualified gRPC service name. Requests and
// responses are google.protobuf.Struct values shaped like the HTTP bodies.
const queryServiceName = "docq.v1.QueryService"

// QueryServiceServer is the server API for docq.v1.QueryService.
//
//	ListDocuments     {collection, query}            -> {data, metadata}
//	ExecuteNamedQuery {name, params, options}        -> {result, metadata}
//	Health            {}                             -> {status}
type QueryServiceServer interface {
	ListDocuments(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ExecuteNamedQuery(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Health(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

var queryServiceDesc = grpc.ServiceDesc{
	ServiceName: queryServiceName,
	HandlerType: (*QueryServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "ListDocuments", Handler: unaryHandler(QueryServiceServer.ListDocuments, "ListDocuments")},
		{MethodName: "ExecuteNamedQuery", Handler: unaryHandler(QueryServiceServer.ExecuteNamedQuery, "ExecuteNamedQuery")},
		{MethodName: "Health", Handler: unaryHandler(QueryServiceServer.Health, "Health")},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "docq/v1/query.proto",
}

type structMethod func(QueryServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

// unaryHandler adapts a Struct-to-Struct method to grpc's method handler
// signature, the same shape protoc-gen-go-grpc emits.
func unaryHandler(m structMethod, name string) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
	fullMethod := "/" + queryServiceName + "/" + name
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return m(srv.(QueryServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return m(srv.(QueryServiceServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// NewGRPCServer creates a gRPC server with standard interceptors,
// registers the QueryService and reflection, and returns it ready to serve.
func NewGRPCServer(s *Server) *grpc.Server {
	srv := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			RecoveryInterceptor(s.logger),
			LoggingInterceptor(s.logger),
			s.AuthInterceptor,
		),
	)
	srv.RegisterService(&queryServiceDesc, grpcService{s})
	reflection.Register(srv)
	return srv
}

// grpcService adapts Server to QueryServiceServer.
type grpcService struct {
	s *Server
}

func (g grpcService) ListDocuments(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	fields := in.GetFields()
	queryText := ""
	if v, ok := fields["query"]; ok {
		switch kind := v.GetKind().(type) {
		case *structpb.Value_StringValue:
			queryText = kind.StringValue
		case *structpb.Value_StructValue:
			b, err := kind.StructValue.MarshalJSON()
			if err != nil {
				return nil, grpcError(inputError("invalid query: " + err.Error()))
			}
			queryText = string(b)
		}
	}
	p, _ := auth.PrincipalFrom(ctx)
	res, err := g.s.listDocuments(ctx, p, fields["collection"].GetStringValue(), queryText)
	if err != nil {
		return nil, grpcError(err)
	}
	return toStruct(res)
}

func (g grpcService) ExecuteNamedQuery(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	name := in.GetFields()["name"].GetStringValue()
	if name == "" {
		return nil, grpcError(inputError("name is required"))
	}
	var req model.ExecutionRequest
	if err := fromStruct(in, &req); err != nil {
		return nil, grpcError(inputError("invalid request: " + err.Error()))
	}
	p, _ := auth.PrincipalFrom(ctx)
	res, err := g.s.executeQuery(ctx, p, name, req)
	if err != nil {
		return nil, grpcError(err)
	}
	return toStruct(res)
}

func (g grpcService) Health(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{"status": "ok"})
}

func grpcError(err error) error {
	return status.Error(grpcCode(err), errorMessage(err))
}

// toStruct converts a JSON-encodable value to a Struct via its JSON form,
// so custom marshalers such as ordered sort specs are honoured.
func toStruct(v any) (*structpb.Struct, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encoding response: %w", err)
	}
	out := new(structpb.Struct)
	if err := out.UnmarshalJSON(b); err != nil {
		return nil, fmt.Errorf("encoding response: %w", err)
	}
	return out, nil
}

func fromStruct(in *structpb.Struct, v any) error {
	b, err := in.MarshalJSON()
	if err != nil {
		return err
	}
	return json.Unmarshal(b, v)
}
