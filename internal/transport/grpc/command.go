// Package grpc is the gRPC transport (spec §1: out of core scope): a
// health service reporting the Resilience & Health surface plus a single
// generic command RPC accepting structpb.Struct payloads, so the command
// surface needs no .proto compile step (spec's "Command payload encoding"
// domain-stack entry).
package grpc

import (
	"context"
	"encoding/json"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/mvaleed/acs/internal/dispatch"
	"github.com/mvaleed/acs/internal/domain"
)

// CommandServiceServer is the hand-written server interface the manually
// built ServiceDesc below dispatches to, mirroring what protoc-gen-go-grpc
// would emit for a one-method "submit a command" service.
type CommandServiceServer interface {
	Submit(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

var CommandService_ServiceDesc = grpc.ServiceDesc{
	ServiceName: "acs.v1.CommandService",
	HandlerType: (*CommandServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Submit", Handler: commandServiceSubmitHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "internal/transport/grpc/command.go",
}

func commandServiceSubmitHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(CommandServiceServer).Submit(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/acs.v1.CommandService/Submit"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(CommandServiceServer).Submit(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// CommandServer adapts dispatch.Dispatcher to the generic Submit RPC.
type CommandServer struct {
	dispatcher *dispatch.Dispatcher
}

func NewCommandServer(d *dispatch.Dispatcher) *CommandServer {
	return &CommandServer{dispatcher: d}
}

var kindByName = map[string]dispatch.Kind{
	"CreateUser": dispatch.CreateUser, "CreateGroup": dispatch.CreateGroup, "CreateRole": dispatch.CreateRole,
	"GetUser": dispatch.GetUser, "GetGroup": dispatch.GetGroup, "GetRole": dispatch.GetRole, "GetEntity": dispatch.GetEntity,
	"UpdateUser": dispatch.UpdateUser, "UpdateGroup": dispatch.UpdateGroup, "UpdateRole": dispatch.UpdateRole,
	"DeleteUser": dispatch.DeleteUser, "DeleteGroup": dispatch.DeleteGroup, "DeleteRole": dispatch.DeleteRole,
	"AddUserToGroup": dispatch.AddUserToGroup, "RemoveUserFromGroup": dispatch.RemoveUserFromGroup,
	"AssignUserToRole": dispatch.AssignUserToRole, "UnassignUserFromRole": dispatch.UnassignUserFromRole,
	"AddRoleToGroup": dispatch.AddRoleToGroup, "RemoveRoleFromGroup": dispatch.RemoveRoleFromGroup,
	"AddGroupToGroup": dispatch.AddGroupToGroup, "RemoveGroupFromGroup": dispatch.RemoveGroupFromGroup,
	"AddPermissionToEntity": dispatch.AddPermissionToEntity, "RemovePermissionFromEntity": dispatch.RemovePermissionFromEntity,
	"CheckPermission": dispatch.CheckPermission,
	"VerifyPassword": dispatch.VerifyPassword,
}

// Submit implements CommandServiceServer. req carries two fields: "kind"
// (a command name from kindByName) and "params" (a nested struct/value
// shaped like the matching dispatch.*Params type). Both directions
// round-trip through JSON since structpb.Struct's value model (the proto3
// JSON-mapping types) has no direct conversion to arbitrary Go structs.
func (s *CommandServer) Submit(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	fields := req.GetFields()
	kindName := fields["kind"].GetStringValue()
	kind, ok := kindByName[kindName]
	if !ok {
		return nil, status.Errorf(codes.InvalidArgument, "unknown command kind %q", kindName)
	}

	params, err := decodeParams(kind, fields["params"])
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "decoding params: %v", err)
	}

	result, err := s.dispatcher.Submit(ctx, kind, params)
	if err != nil {
		return nil, toGRPCError(err)
	}

	return encodeResult(result)
}

func decodeParams(kind dispatch.Kind, v *structpb.Value) (any, error) {
	raw, err := json.Marshal(v.AsInterface())
	if err != nil {
		return nil, err
	}

	switch kind {
	case dispatch.CreateUser:
		var p domain.UserAttrs
		err := jsonInto(raw, &p)
		return p, err
	case dispatch.CreateGroup:
		var p domain.GroupAttrs
		err := jsonInto(raw, &p)
		return p, err
	case dispatch.CreateRole:
		var p domain.RoleAttrs
		err := jsonInto(raw, &p)
		return p, err
	case dispatch.GetUser, dispatch.GetGroup, dispatch.GetRole, dispatch.GetEntity,
		dispatch.DeleteUser, dispatch.DeleteGroup, dispatch.DeleteRole:
		var p int64
		err := jsonInto(raw, &p)
		return p, err
	case dispatch.UpdateUser:
		var p dispatch.UpdateUserParams
		err := jsonInto(raw, &p)
		return p, err
	case dispatch.UpdateGroup:
		var p dispatch.UpdateGroupParams
		err := jsonInto(raw, &p)
		return p, err
	case dispatch.UpdateRole:
		var p dispatch.UpdateRoleParams
		err := jsonInto(raw, &p)
		return p, err
	case dispatch.AddUserToGroup, dispatch.RemoveUserFromGroup, dispatch.AssignUserToRole, dispatch.UnassignUserFromRole,
		dispatch.AddRoleToGroup, dispatch.RemoveRoleFromGroup, dispatch.AddGroupToGroup, dispatch.RemoveGroupFromGroup:
		var p dispatch.EdgeParams
		err := jsonInto(raw, &p)
		return p, err
	case dispatch.AddPermissionToEntity, dispatch.RemovePermissionFromEntity:
		var p dispatch.PermissionParams
		err := jsonInto(raw, &p)
		return p, err
	case dispatch.CheckPermission:
		var p dispatch.CheckParams
		err := jsonInto(raw, &p)
		return p, err
	case dispatch.VerifyPassword:
		var p dispatch.VerifyPasswordParams
		err := jsonInto(raw, &p)
		return p, err
	default:
		return nil, fmt.Errorf("%w: unsupported command kind", domain.ErrNotSupported)
	}
}

func jsonInto(raw []byte, dst any) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	return json.Unmarshal(raw, dst)
}

func encodeResult(v any) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encoding result: %v", err)
	}
	var asMap map[string]any
	if err := json.Unmarshal(raw, &asMap); err != nil {
		// v did not marshal to a JSON object (e.g. a bare int64 id or bool);
		// wrap it so the response is always a Struct.
		var asValue any
		if err := json.Unmarshal(raw, &asValue); err != nil {
			return nil, status.Errorf(codes.Internal, "decoding result: %v", err)
		}
		asMap = map[string]any{"value": asValue}
	}
	out, err := structpb.NewStruct(asMap)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "building response struct: %v", err)
	}
	return out, nil
}

func toGRPCError(err error) error {
	switch domain.ClassifyError(err) {
	case domain.KindNotFound:
		return status.Error(codes.NotFound, err.Error())
	case domain.KindAlreadyExists, domain.KindConflict, domain.KindWouldCreateCycle:
		return status.Error(codes.AlreadyExists, err.Error())
	case domain.KindInvalidArgument:
		return status.Error(codes.InvalidArgument, err.Error())
	case domain.KindUnauthorized:
		return status.Error(codes.PermissionDenied, err.Error())
	case domain.KindNotSupported:
		return status.Error(codes.Unimplemented, err.Error())
	case domain.KindCircuitOpen, domain.KindShuttingDown:
		return status.Error(codes.Unavailable, err.Error())
	case domain.KindTimeout:
		return status.Error(codes.DeadlineExceeded, err.Error())
	case domain.KindCanceled:
		return status.Error(codes.Canceled, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}
