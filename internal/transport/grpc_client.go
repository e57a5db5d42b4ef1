package transport

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"distributed-actor-learner/internal/buffer"
	"distributed-actor-learner/internal/learner"
)

type GRPCClient struct {
	conn *grpc.ClientConn
}

// DialGRPC creates a client for addr (host:port). The connection is
// established lazily; calls fail fast with ErrTransportUnavailable while the
// learner is unreachable. Messages up to DefaultMaxMessageBytes are accepted
// unless opts carry a MessageLimit.
func DialGRPC(addr string, opts ...grpc.DialOption) (*GRPCClient, error) {
	base := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(jsonCodecName)),
		MessageLimit(DefaultMaxMessageBytes),
	}
	conn, err := grpc.NewClient(addr, append(base, opts...)...)
	if err != nil {
		return nil, err
	}
	return &GRPCClient{conn: conn}, nil
}

func (c *GRPCClient) GetParams(ctx context.Context) (int64, []byte, error) {
	out := new(GetParamsResponse)
	if err := c.conn.Invoke(ctx, getParamsMethod, &GetParamsRequest{}, out); err != nil {
		return 0, nil, fromStatus(err, ErrMessageTooLarge)
	}
	return out.FrameCount, out.Params, nil
}

func (c *GRPCClient) InsertTrajectory(ctx context.Context, sub learner.Submission) error {
	in := &InsertTrajectoryRequest{
		Trajectory: sub.Trajectory,
		ActorID:    sub.ActorID,
		FrameCount: sub.FrameCount,
	}
	if err := c.conn.Invoke(ctx, insertTrajectoryMethod, in, new(InsertTrajectoryResponse)); err != nil {
		return fromStatus(err, buffer.ErrBufferFull)
	}
	return nil
}

func (c *GRPCClient) Close() error {
	return c.conn.Close()
}

// MessageLimit sets the client's send and receive limits to n bytes.
func MessageLimit(n int) grpc.DialOption {
	return grpc.WithDefaultCallOptions(grpc.MaxCallRecvMsgSize(n), grpc.MaxCallSendMsgSize(n))
}
