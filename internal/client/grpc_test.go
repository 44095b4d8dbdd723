package client

import (
	"context"
	"net"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/alfredjeanlab/docq/internal/model"
)

// fakeQueryService records the last request and replies with a canned Struct.
type fakeQueryService struct {
	method string
	in     *structpb.Struct
	auth   []string
	reply  map[string]any
	err    error
}

func (f *fakeQueryService) handle(method string) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
	return func(_ any, ctx context.Context, dec func(any) error, _ grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		f.method = method
		f.in = in
		md, _ := metadata.FromIncomingContext(ctx)
		f.auth = md.Get("authorization")
		if f.err != nil {
			return nil, f.err
		}
		return structpb.NewStruct(f.reply)
	}
}

func newFakeGRPC(t *testing.T, token string) (*GRPCClient, *fakeQueryService) {
	t.Helper()
	fake := &fakeQueryService{}
	desc := grpc.ServiceDesc{
		ServiceName: "docq.v1.QueryService",
		HandlerType: (*any)(nil),
		Methods: []grpc.MethodDesc{
			{MethodName: "ListDocuments", Handler: fake.handle("ListDocuments")},
			{MethodName: "ExecuteNamedQuery", Handler: fake.handle("ExecuteNamedQuery")},
			{MethodName: "Health", Handler: fake.handle("Health")},
		},
	}

	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	srv.RegisterService(&desc, fake)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	c, err := NewGRPCClient("passthrough:///bufnet", token,
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("NewGRPCClient: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c, fake
}

func TestGRPCClient_Health(t *testing.T) {
	c, fake := newFakeGRPC(t, "")
	fake.reply = map[string]any{"status": "ok"}

	status, err := c.Health(context.Background())
	if err != nil {
		t.Fatalf("Health: %v", err)
	}
	if status != "ok" || fake.method != "Health" {
		t.Errorf("status=%q method=%q", status, fake.method)
	}
	if len(fake.auth) != 0 {
		t.Errorf("unexpected authorization metadata %v", fake.auth)
	}
}

func TestGRPCClient_ListDocuments(t *testing.T) {
	c, fake := newFakeGRPC(t, "secret")
	fake.reply = map[string]any{
		"data":     []any{map[string]any{"id": "n1", "title": "a"}},
		"metadata": map[string]any{"total": 3, "limit": 1, "offset": 0},
	}

	q := `{"$query":{},"$orderby":{"b":1,"a":-1}}`
	res, err := c.ListDocuments(context.Background(), "notes", q)
	if err != nil {
		t.Fatalf("ListDocuments: %v", err)
	}
	fields := fake.in.GetFields()
	if fields["collection"].GetStringValue() != "notes" || fields["query"].GetStringValue() != q {
		t.Errorf("request = %v", fake.in)
	}
	if len(fake.auth) != 1 || fake.auth[0] != "Bearer secret" {
		t.Errorf("authorization = %v", fake.auth)
	}
	if len(res.Data) != 1 || res.Data[0].ID() != "n1" {
		t.Errorf("data = %v", res.Data)
	}
	if res.Metadata != (model.ListMetadata{Total: 3, Limit: 1}) {
		t.Errorf("metadata = %+v", res.Metadata)
	}
}

func TestGRPCClient_ExecuteNamedQuery(t *testing.T) {
	c, fake := newFakeGRPC(t, "")
	fake.reply = map[string]any{
		"result":   []any{map[string]any{"id": "t1", "balance": 10.5}},
		"metadata": map[string]any{"total": 1, "queryName": "byAccount", "executedPipeline": []any{}},
	}

	skip := 5
	req := &model.ExecutionRequest{
		Params:  map[string]any{"account": "acc-1", "min": 3},
		Options: model.ExecutionOptions{Skip: &skip},
	}
	res, err := c.ExecuteNamedQuery(context.Background(), "byAccount", req)
	if err != nil {
		t.Fatalf("ExecuteNamedQuery: %v", err)
	}
	fields := fake.in.GetFields()
	if fields["name"].GetStringValue() != "byAccount" {
		t.Errorf("name = %v", fields["name"])
	}
	params := fields["params"].GetStructValue().GetFields()
	if params["account"].GetStringValue() != "acc-1" || params["min"].GetNumberValue() != 3 {
		t.Errorf("params = %v", params)
	}
	if fields["options"].GetStructValue().GetFields()["skip"].GetNumberValue() != 5 {
		t.Errorf("options = %v", fields["options"])
	}
	if res.Metadata.QueryName != "byAccount" || res.Result[0]["balance"] != 10.5 {
		t.Errorf("result = %+v", res)
	}
}

func TestGRPCClient_Error(t *testing.T) {
	c, fake := newFakeGRPC(t, "")
	fake.err = status.Error(codes.NotFound, "not found")

	_, err := c.ExecuteNamedQuery(context.Background(), "missing", nil)
	if status.Code(err) != codes.NotFound {
		t.Fatalf("code = %v, err = %v", status.Code(err), err)
	}
}
