package client

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/alfredjeanlab/docq/internal/model"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/structpb"
)

const queryService = "/docq.v1.QueryService/"

// GRPCClient implements Querier over the docq.v1.QueryService gRPC API.
type GRPCClient struct {
	conn  *grpc.ClientConn
	token string
}

// NewGRPCClient connects to the given gRPC address and returns a client.
func NewGRPCClient(addr, token string, opts ...grpc.DialOption) (*GRPCClient, error) {
	if len(opts) == 0 {
		opts = []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}
	}
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("grpc dial: %w", err)
	}
	return &GRPCClient{conn: conn, token: token}, nil
}

func (c *GRPCClient) Close() error {
	return c.conn.Close()
}

// ListDocuments sends the query as its raw JSON text so key order in
// $orderby survives the trip.
func (c *GRPCClient) ListDocuments(ctx context.Context, collection, query string) (*model.ListResult, error) {
	in, err := structpb.NewStruct(map[string]any{"collection": collection, "query": query})
	if err != nil {
		return nil, err
	}
	var res model.ListResult
	if err := c.invoke(ctx, "ListDocuments", in, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *GRPCClient) ExecuteNamedQuery(ctx context.Context, name string, req *model.ExecutionRequest) (*model.ExecutionResult, error) {
	if req == nil {
		req = &model.ExecutionRequest{}
	}
	b, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}
	in := new(structpb.Struct)
	if err := in.UnmarshalJSON(b); err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}
	if in.Fields == nil {
		in.Fields = map[string]*structpb.Value{}
	}
	in.Fields["name"] = structpb.NewStringValue(name)

	var res model.ExecutionResult
	if err := c.invoke(ctx, "ExecuteNamedQuery", in, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *GRPCClient) Health(ctx context.Context) (string, error) {
	var resp struct {
		Status string `json:"status"`
	}
	if err := c.invoke(ctx, "Health", &structpb.Struct{}, &resp); err != nil {
		return "", err
	}
	return resp.Status, nil
}

// invoke calls a QueryService method and decodes the Struct response into out
// through its JSON form.
func (c *GRPCClient) invoke(ctx context.Context, method string, in *structpb.Struct, out any) error {
	if c.token != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+c.token)
	}
	resp := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, queryService+method, in, resp); err != nil {
		return err
	}
	b, err := resp.MarshalJSON()
	if err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	if err := json.Unmarshal(b, out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
