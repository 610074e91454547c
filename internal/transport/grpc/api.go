package grpcx

import (
	"context"
	"time"

	"google.golang.org/grpc"
)

const (
	ServiceName          = "planchat.v1.ChatHistory"
	GetHistoryFullMethod = "/" + ServiceName + "/GetHistory"
)

type GetHistoryRequest struct {
	PlanID string `json:"plan_id"`
	After  string `json:"after,omitempty"`
	Limit  int32  `json:"limit,omitempty"`
}

type Sender struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

type Message struct {
	ID        string    `json:"id"`
	PlanID    string    `json:"plan_id"`
	Sender    Sender    `json:"sender"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

type GetHistoryResponse struct {
	Items      []Message `json:"items"`
	NextCursor string    `json:"next_cursor,omitempty"`
}

type ChatHistoryServer interface {
	GetHistory(ctx context.Context, in *GetHistoryRequest) (*GetHistoryResponse, error)
}

func getHistoryHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(GetHistoryRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ChatHistoryServer).GetHistory(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: GetHistoryFullMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ChatHistoryServer).GetHistory(ctx, req.(*GetHistoryRequest))
	}
	return interceptor(ctx, in, info, handler)
}

// ChatHistoryServiceDesc is registered by hand; messages travel as JSON.
var ChatHistoryServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ChatHistoryServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetHistory", Handler: getHistoryHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "planchat/v1/history",
}

func RegisterChatHistoryServer(s grpc.ServiceRegistrar, srv ChatHistoryServer) {
	s.RegisterService(&ChatHistoryServiceDesc, srv)
}

type ChatHistoryClient struct {
	cc grpc.ClientConnInterface
}

func NewChatHistoryClient(cc grpc.ClientConnInterface) *ChatHistoryClient {
	return &ChatHistoryClient{cc: cc}
}

func (c *ChatHistoryClient) GetHistory(ctx context.Context, in *GetHistoryRequest, opts ...grpc.CallOption) (*GetHistoryResponse, error) {
	out := new(GetHistoryResponse)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := c.cc.Invoke(ctx, GetHistoryFullMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
