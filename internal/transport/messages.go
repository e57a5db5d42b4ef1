// Package transport carries the actor/learner protocol between processes.
//
// Two operations make up protocol version v1:
//
//	GetParams()                 -> {frame_count, params}
//	InsertTrajectory(trajectory) -> {}
//
// Both are exposed over gRPC (service actorlearner.v1.Information, JSON
// message codec) and over HTTP (/v1/params, /v1/trajectories). Parameters and
// trajectories travel as opaque codec payloads.
package transport

import (
	"context"
	"errors"

	"distributed-actor-learner/internal/learner"
)

const ProtocolVersion = "v1"

// DefaultMaxMessageBytes bounds a single gRPC message in either direction.
// Parameter snapshots travel base64'd inside JSON, so this must leave room
// for roughly 4/3 of the encoded snapshot.
const DefaultMaxMessageBytes = 256 << 20

var (
	ErrTransportUnavailable = errors.New("transport unavailable")
	ErrMessageTooLarge      = errors.New("message exceeds transport limit")
)

type GetParamsRequest struct{}

type GetParamsResponse struct {
	FrameCount int64  `json:"frame_count"`
	Params     []byte `json:"params"`
}

type InsertTrajectoryRequest struct {
	Trajectory []byte `json:"trajectory"`
	ActorID    string `json:"actor_id,omitempty"`
	FrameCount int64  `json:"frame_count,omitempty"`
}

type InsertTrajectoryResponse struct{}

// Client is the actor's view of a remote learner.
type Client interface {
	GetParams(ctx context.Context) (int64, []byte, error)
	InsertTrajectory(ctx context.Context, sub learner.Submission) error
	Close() error
}
