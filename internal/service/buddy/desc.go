package buddy

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "buddy.v1.BuddyService"

// FullMethod returns the "/service/method" path interceptors see.
func FullMethod(method string) string { return "/" + ServiceName + "/" + method }

// BuddyServiceServer is the server API. Every method takes and returns a
// google.protobuf.Struct so clients can call it with any JSON-capable tool.
type BuddyServiceServer interface {
	LogMood(context.Context, *structpb.Struct) (*structpb.Struct, error)
	SetInstantMatching(context.Context, *structpb.Struct) (*structpb.Struct, error)
	UpdatePreferences(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetMoodHistory(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetPoolStats(context.Context, *structpb.Struct) (*structpb.Struct, error)
	CreateGroupChat(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListChats(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetChatMembers(context.Context, *structpb.Struct) (*structpb.Struct, error)
	SendMessage(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListMessages(context.Context, *structpb.Struct) (*structpb.Struct, error)
	LeaveChat(context.Context, *structpb.Struct) (*structpb.Struct, error)
	RemoveMember(context.Context, *structpb.Struct) (*structpb.Struct, error)
	RenameChat(context.Context, *structpb.Struct) (*structpb.Struct, error)
	TransferAdmin(context.Context, *structpb.Struct) (*structpb.Struct, error)
	DeleteAccount(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

var _ BuddyServiceServer = (*Service)(nil)

type unaryMethod func(BuddyServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

// handler adapts a method to grpc's MethodHandler, running the server's
// interceptor chain the same way generated code does.
func handler(name string, call unaryMethod) grpc.MethodDesc {
	full := FullMethod(name)
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			impl := srv.(BuddyServiceServer)
			if interceptor == nil {
				return call(impl, ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: full}
			return interceptor(ctx, in, info, func(ctx context.Context, req interface{}) (interface{}, error) {
				return call(impl, ctx, req.(*structpb.Struct))
			})
		},
	}
}

// ServiceDesc describes BuddyService to grpc.Server.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*BuddyServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		handler("LogMood", BuddyServiceServer.LogMood),
		handler("SetInstantMatching", BuddyServiceServer.SetInstantMatching),
		handler("UpdatePreferences", BuddyServiceServer.UpdatePreferences),
		handler("GetMoodHistory", BuddyServiceServer.GetMoodHistory),
		handler("GetPoolStats", BuddyServiceServer.GetPoolStats),
		handler("CreateGroupChat", BuddyServiceServer.CreateGroupChat),
		handler("ListChats", BuddyServiceServer.ListChats),
		handler("GetChatMembers", BuddyServiceServer.GetChatMembers),
		handler("SendMessage", BuddyServiceServer.SendMessage),
		handler("ListMessages", BuddyServiceServer.ListMessages),
		handler("LeaveChat", BuddyServiceServer.LeaveChat),
		handler("RemoveMember", BuddyServiceServer.RemoveMember),
		handler("RenameChat", BuddyServiceServer.RenameChat),
		handler("TransferAdmin", BuddyServiceServer.TransferAdmin),
		handler("DeleteAccount", BuddyServiceServer.DeleteAccount),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "buddy/v1/buddy.proto",
}

// RegisterBuddyServiceServer attaches srv to s.
func RegisterBuddyServiceServer(s grpc.ServiceRegistrar, srv BuddyServiceServer) {
	s.RegisterService(&ServiceDesc, srv)
}
