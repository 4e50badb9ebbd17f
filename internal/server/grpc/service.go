package grpcserver

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name of the reporting API.
const ServiceName = "sitetime.v1.Reports"

// Method names.
const (
	MethodLogin            = "Login"
	MethodAllUsers         = "AllUsers"
	MethodTaskCatalog      = "TaskCatalog"
	MethodJobAddresses     = "JobAddresses"
	MethodUserStats        = "UserStats"
	MethodEntryGroups      = "EntryGroups"
	MethodCreateEntry      = "CreateEntry"
	MethodUpdateEntry      = "UpdateEntry"
	MethodDeleteEntry      = "DeleteEntry"
	MethodCreateJobAddress = "CreateJobAddress"
	MethodUpdateJobAddress = "UpdateJobAddress"
	MethodDeleteJobAddress = "DeleteJobAddress"
	MethodCreateTask       = "CreateTask"
	MethodRenameTask       = "RenameTask"
	MethodDeleteTask       = "DeleteTask"
)

// FullMethod returns the wire path of a method.
func FullMethod(name string) string { return "/" + ServiceName + "/" + name }

// ReportsServer is the server API of sitetime.v1.Reports. Every method exchanges
// google.protobuf.Struct messages.
type ReportsServer interface {
	Login(context.Context, *structpb.Struct) (*structpb.Struct, error)
	AllUsers(context.Context, *structpb.Struct) (*structpb.Struct, error)
	TaskCatalog(context.Context, *structpb.Struct) (*structpb.Struct, error)
	JobAddresses(context.Context, *structpb.Struct) (*structpb.Struct, error)
	UserStats(context.Context, *structpb.Struct) (*structpb.Struct, error)
	EntryGroups(context.Context, *structpb.Struct) (*structpb.Struct, error)
	CreateEntry(context.Context, *structpb.Struct) (*structpb.Struct, error)
	UpdateEntry(context.Context, *structpb.Struct) (*structpb.Struct, error)
	DeleteEntry(context.Context, *structpb.Struct) (*structpb.Struct, error)
	CreateJobAddress(context.Context, *structpb.Struct) (*structpb.Struct, error)
	UpdateJobAddress(context.Context, *structpb.Struct) (*structpb.Struct, error)
	DeleteJobAddress(context.Context, *structpb.Struct) (*structpb.Struct, error)
	CreateTask(context.Context, *structpb.Struct) (*structpb.Struct, error)
	RenameTask(context.Context, *structpb.Struct) (*structpb.Struct, error)
	DeleteTask(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type structHandler func(ReportsServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unary(name string, h structHandler) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, ic grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			rs := srv.(ReportsServer)
			if ic == nil {
				return h(rs, ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: FullMethod(name)}
			return ic(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return h(rs, ctx, req.(*structpb.Struct))
			})
		},
	}
}

// ServiceDesc describes sitetime.v1.Reports for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ReportsServer)(nil),
	Methods: []grpc.MethodDesc{
		unary(MethodLogin, ReportsServer.Login),
		unary(MethodAllUsers, ReportsServer.AllUsers),
		unary(MethodTaskCatalog, ReportsServer.TaskCatalog),
		unary(MethodJobAddresses, ReportsServer.JobAddresses),
		unary(MethodUserStats, ReportsServer.UserStats),
		unary(MethodEntryGroups, ReportsServer.EntryGroups),
		unary(MethodCreateEntry, ReportsServer.CreateEntry),
		unary(MethodUpdateEntry, ReportsServer.UpdateEntry),
		unary(MethodDeleteEntry, ReportsServer.DeleteEntry),
		unary(MethodCreateJobAddress, ReportsServer.CreateJobAddress),
		unary(MethodUpdateJobAddress, ReportsServer.UpdateJobAddress),
		unary(MethodDeleteJobAddress, ReportsServer.DeleteJobAddress),
		unary(MethodCreateTask, ReportsServer.CreateTask),
		unary(MethodRenameTask, ReportsServer.RenameTask),
		unary(MethodDeleteTask, ReportsServer.DeleteTask),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "sitetime/v1/reports.proto",
}

// Register attaches srv to s.
func Register(s grpc.ServiceRegistrar, srv ReportsServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// Client calls sitetime.v1.Reports methods by name.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient wraps a connection.
func NewClient(cc grpc.ClientConnInterface) *Client { return &Client{cc: cc} }

// Call invokes method with in and returns the response message.
func (c *Client) Call(ctx context.Context, method string, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	if in == nil {
		in = &structpb.Struct{}
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, FullMethod(method), in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
