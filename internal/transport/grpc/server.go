package grpcx

import (
	"context"
	"errors"
	"strings"

	"github.com/cwrk-planet/plan-chat/internal/domain"
	"github.com/cwrk-planet/plan-chat/internal/postgres"
	"github.com/cwrk-planet/plan-chat/internal/service"

	"github.com/samber/lo"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

const mdAuthorization = "authorization"

type Authenticator interface {
	Authenticate(ctx context.Context, token string) (domain.Identity, error)
}

type Server struct {
	auth    Authenticator
	history *service.HistoryService
}

func NewServer(auth Authenticator, history *service.HistoryService) *Server {
	return &Server{auth: auth, history: history}
}

// New builds a grpc.Server with the interceptors and the history service.
func New(s *Server, opts ...grpc.ServerOption) *grpc.Server {
	opts = append([]grpc.ServerOption{grpc.ChainUnaryInterceptor(UnaryServerInterceptor())}, opts...)
	gs := grpc.NewServer(opts...)
	RegisterChatHistoryServer(gs, s)
	return gs
}

func (s *Server) GetHistory(ctx context.Context, in *GetHistoryRequest) (*GetHistoryResponse, error) {
	id, err := s.identity(ctx)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.PlanID) == "" {
		return nil, status.Error(codes.InvalidArgument, "plan_id is required")
	}

	if in.Limit < 0 {
		return nil, status.Error(codes.InvalidArgument, "limit must be non-negative")
	}

	cur, err := postgres.DecodeCursor(in.After)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	var after *domain.Position
	if cur != nil {
		after = cur.Position()
	}

	msgs, err := s.history.GetHistoryAfter(ctx, in.PlanID, id, after, int(in.Limit))
	if err != nil {
		return nil, mapErr(err)
	}
	next := postgres.NextCursor(msgs)
	if next == "" {
		next = in.After
	}
	return &GetHistoryResponse{Items: lo.Map(msgs, mapMessage), NextCursor: next}, nil
}

func (s *Server) identity(ctx context.Context) (domain.Identity, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return domain.Identity{}, status.Error(codes.Unauthenticated, "missing metadata")
	}
	auth := first(md.Get(mdAuthorization))
	if len(auth) <= 7 || !strings.EqualFold(auth[:7], "bearer ") {
		return domain.Identity{}, status.Error(codes.Unauthenticated, "invalid authorization")
	}
	id, err := s.auth.Authenticate(ctx, auth[7:])
	if err != nil {
		return domain.Identity{}, mapErr(err)
	}
	return id, nil
}

func first(ss []string) string {
	if len(ss) == 0 {
		return ""
	}
	return ss[0]
}

func mapErr(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, domain.ErrUnauthenticated):
		return status.Error(codes.Unauthenticated, "invalid or missing access token")
	case errors.Is(err, domain.ErrForbidden), errors.Is(err, domain.ErrPlanNotFound):
		return status.Error(codes.PermissionDenied, "not a member of this plan")
	case errors.Is(err, postgres.ErrInvalidCursor), errors.Is(err, domain.ErrInvalidArgument):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, domain.ErrPersistence):
		return status.Error(codes.Unavailable, "message store unavailable")
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	default:
		return status.Error(codes.Internal, "internal error")
	}
}

func mapMessage(m domain.Message, _ int) Message {
	return Message{
		ID:        m.ID,
		PlanID:    m.PlanID,
		Sender:    Sender{ID: m.Sender.ID, Username: m.Sender.Username},
		Content:   m.Body,
		CreatedAt: m.CreatedAt,
	}
}
