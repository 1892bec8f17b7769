package grpc

import (
	"context"
	"encoding/json"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// CommandServiceClient is the hand-written counterpart to
// CommandServiceServer: it invokes the Submit RPC through a plain
// *grpc.ClientConn, the same way the server's ServiceDesc was hand-built
// instead of generated from a .proto file (spec's "Command payload
// encoding (no .proto compile step required)" domain-stack entry).
type CommandServiceClient struct {
	conn *grpc.ClientConn
}

// NewCommandServiceClient wraps an established connection. Callers own
// the connection's lifecycle (conn.Close()).
func NewCommandServiceClient(conn *grpc.ClientConn) *CommandServiceClient {
	return &CommandServiceClient{conn: conn}
}

// Submit invokes the CommandService.Submit RPC with a {"kind", "params"}
// request struct, mirroring CommandServer.Submit's decode shape. params
// may be any JSON-marshalable value — a bare id for Get*/Delete*
// commands, or a struct for the rest — since decodeParams on the server
// side round-trips through JSON regardless of shape.
func (c *CommandServiceClient) Submit(ctx context.Context, kind string, params any) (*structpb.Struct, error) {
	paramsValue, err := toStructValue(params)
	if err != nil {
		return nil, err
	}
	req, err := structpb.NewStruct(map[string]any{
		"kind":   kind,
		"params": paramsValue.AsInterface(),
	})
	if err != nil {
		return nil, err
	}

	reply := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, "/acs.v1.CommandService/Submit", req, reply); err != nil {
		return nil, err
	}
	return reply, nil
}

// toStructValue round-trips params through JSON into the plain
// string/float64/bool/map/slice shape structpb.NewValue accepts, so
// callers can pass Go structs (domain.UserAttrs, dispatch.EdgeParams,
// ...) or bare scalars (an int64 id) without hand-building protobuf
// values.
func toStructValue(params any) (*structpb.Value, error) {
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, err
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, err
	}
	return structpb.NewValue(generic)
}
