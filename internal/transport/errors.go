package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"distributed-actor-learner/internal/buffer"
	"distributed-actor-learner/internal/codec"
	"distributed-actor-learner/internal/learner"
)

func toStatus(err error) error {
	switch {
	case errors.Is(err, codec.ErrMalformedTrajectory):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, buffer.ErrBufferFull):
		return status.Error(codes.ResourceExhausted, err.Error())
	case errors.Is(err, learner.ErrNoSnapshot):
		return status.Error(codes.Unavailable, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

// fromStatus maps a gRPC status back onto the domain errors. ResourceExhausted
// is either an oversized message or whatever exhausted names for the call;
// only InsertTrajectory passes buffer.ErrBufferFull.
func fromStatus(err error, exhausted error) error {
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	switch st.Code() {
	case codes.Unavailable, codes.DeadlineExceeded:
		return fmt.Errorf("%w: %s", ErrTransportUnavailable, st.Message())
	case codes.InvalidArgument:
		return fmt.Errorf("%w: %s", codec.ErrMalformedTrajectory, st.Message())
	case codes.ResourceExhausted:
		if strings.Contains(st.Message(), "larger than max") {
			return fmt.Errorf("%w: %s", ErrMessageTooLarge, st.Message())
		}
		return fmt.Errorf("%w: %s", exhausted, st.Message())
	case codes.Canceled:
		return fmt.Errorf("%w: %s", context.Canceled, st.Message())
	default:
		return err
	}
}

func toHTTPStatus(err error) int {
	switch {
	case errors.Is(err, codec.ErrMalformedTrajectory):
		return http.StatusBadRequest
	case errors.Is(err, buffer.ErrBufferFull):
		return http.StatusTooManyRequests
	case errors.Is(err, learner.ErrNoSnapshot):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func fromHTTPStatus(code int, msg string) error {
	switch code {
	case http.StatusBadRequest:
		return fmt.Errorf("%w: %s", codec.ErrMalformedTrajectory, msg)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", buffer.ErrBufferFull, msg)
	case http.StatusServiceUnavailable, http.StatusBadGateway, http.StatusGatewayTimeout:
		return fmt.Errorf("%w: %s", ErrTransportUnavailable, msg)
	default:
		return fmt.Errorf("learner returned %d: %s", code, msg)
	}
}
