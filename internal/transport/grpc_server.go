package transport

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"distributed-actor-learner/internal/learner"
	"distributed-actor-learner/internal/metrics"
	"distributed-actor-learner/internal/tracing"
)

const (
	ServiceName = "actorlearner." + ProtocolVersion + ".Information"

	getParamsMethod        = "/" + ServiceName + "/GetParams"
	insertTrajectoryMethod = "/" + ServiceName + "/InsertTrajectory"
)

// InformationServer is the server API of actorlearner.v1.Information.
type InformationServer interface {
	GetParams(context.Context, *GetParamsRequest) (*GetParamsResponse, error)
	InsertTrajectory(context.Context, *InsertTrajectoryRequest) (*InsertTrajectoryResponse, error)
}

var informationServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*InformationServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetParams", Handler: getParamsHandler},
		{MethodName: "InsertTrajectory", Handler: insertTrajectoryHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "actorlearner/v1/information",
}

func getParamsHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(GetParamsRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(InformationServer).GetParams(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: getParamsMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(InformationServer).GetParams(ctx, req.(*GetParamsRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func insertTrajectoryHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(InsertTrajectoryRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(InformationServer).InsertTrajectory(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: insertTrajectoryMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(InformationServer).InsertTrajectory(ctx, req.(*InsertTrajectoryRequest))
	}
	return interceptor(ctx, in, info, handler)
}

// GRPCServer adapts a learner.Service to actorlearner.v1.Information.
type GRPCServer struct {
	svc *learner.Service
}

func NewGRPCServer(svc *learner.Service) *GRPCServer {
	return &GRPCServer{svc: svc}
}

func (s *GRPCServer) Register(gs *grpc.Server) {
	gs.RegisterService(&informationServiceDesc, s)
}

func (s *GRPCServer) GetParams(ctx context.Context, _ *GetParamsRequest) (*GetParamsResponse, error) {
	frameCount, params, err := s.svc.GetParams(ctx)
	if err != nil {
		return nil, toStatus(err)
	}
	return &GetParamsResponse{FrameCount: frameCount, Params: params}, nil
}

func (s *GRPCServer) InsertTrajectory(ctx context.Context, req *InsertTrajectoryRequest) (*InsertTrajectoryResponse, error) {
	if len(req.Trajectory) == 0 {
		return nil, status.Error(codes.InvalidArgument, "trajectory required")
	}
	err := s.svc.InsertTrajectory(ctx, learner.Submission{
		ActorID:    req.ActorID,
		FrameCount: req.FrameCount,
		Trajectory: req.Trajectory,
	})
	if err != nil {
		return nil, toStatus(err)
	}
	return &InsertTrajectoryResponse{}, nil
}

// NewServer builds a grpc.Server with tracing, metrics and logging on every
// unary call. Message limits default to DefaultMaxMessageBytes; a
// grpc.MaxRecvMsgSize or grpc.MaxSendMsgSize in opts wins.
func NewServer(logger *slog.Logger, opts ...grpc.ServerOption) *grpc.Server {
	if logger == nil {
		logger = slog.Default()
	}
	opts = append([]grpc.ServerOption{
		grpc.ChainUnaryInterceptor(observeUnary(logger)),
		grpc.MaxRecvMsgSize(DefaultMaxMessageBytes),
		grpc.MaxSendMsgSize(DefaultMaxMessageBytes),
	}, opts...)
	return grpc.NewServer(opts...)
}

func observeUnary(logger *slog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		method := info.FullMethod[strings.LastIndex(info.FullMethod, "/")+1:]
		ctx, span := tracing.StartRPCSpan(ctx, method)
		defer span.End()

		start := time.Now()
		resp, err := handler(ctx, req)
		metrics.RPCDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())
		if err != nil {
			span.RecordError(err)
			logger.Debug("rpc failed", "method", method, "code", status.Code(err).String(), "error", err)
		}
		return resp, err
	}
}
