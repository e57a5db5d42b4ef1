package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"distributed-actor-learner/internal/learner"
)

type HTTPClient struct {
	client *resty.Client
}

// NewHTTPClient talks to a learner's HTTP endpoint. addr may be host:port or
// a full base URL.
func NewHTTPClient(addr string, timeout time.Duration) *HTTPClient {
	if !strings.HasPrefix(addr, "http://") && !strings.HasPrefix(addr, "https://") {
		addr = "http://" + addr
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPClient{
		client: resty.New().
			SetBaseURL(addr).
			SetTimeout(timeout).
			SetHeader("Content-Type", "application/json"),
	}
}

func (c *HTTPClient) GetParams(ctx context.Context) (int64, []byte, error) {
	var out GetParamsResponse
	resp, err := c.client.R().
		SetContext(ctx).
		SetResult(&out).
		SetError(&errorBody{}).
		Get("/" + ProtocolVersion + "/params")
	if err != nil {
		return 0, nil, requestError(ctx, err)
	}
	if resp.StatusCode() != http.StatusOK {
		return 0, nil, responseError(resp)
	}
	return out.FrameCount, out.Params, nil
}

func (c *HTTPClient) InsertTrajectory(ctx context.Context, sub learner.Submission) error {
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(InsertTrajectoryRequest{
			Trajectory: sub.Trajectory,
			ActorID:    sub.ActorID,
			FrameCount: sub.FrameCount,
		}).
		SetError(&errorBody{}).
		Post("/" + ProtocolVersion + "/trajectories")
	if err != nil {
		return requestError(ctx, err)
	}
	if resp.StatusCode() != http.StatusAccepted {
		return responseError(resp)
	}
	return nil
}

func (c *HTTPClient) Close() error {
	return nil
}

func requestError(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
		return ctxErr
	}
	return fmt.Errorf("%w: %v", ErrTransportUnavailable, err)
}

func responseError(resp *resty.Response) error {
	msg := resp.String()
	if body, ok := resp.Error().(*errorBody); ok && body.Error != "" {
		msg = body.Error
	}
	return fromHTTPStatus(resp.StatusCode(), msg)
}
