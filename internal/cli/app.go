package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/viper"
	"golang.org/x/time/rate"
	"google.golang.org/grpc"

	"distributed-actor-learner/internal/buffer"
	"distributed-actor-learner/internal/config"
	"distributed-actor-learner/internal/learner"
	"distributed-actor-learner/internal/logging"
	"distributed-actor-learner/internal/metrics"
	"distributed-actor-learner/internal/policy"
	"distributed-actor-learner/internal/supervisor"
	"distributed-actor-learner/internal/tracing"
	"distributed-actor-learner/internal/transport"
	"distributed-actor-learner/internal/worker"
)

// app holds what every command needs: validated config, logger, run id and
// the tracing shutdown hook.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	runID    string
	shutdown []func(context.Context) error
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	runID := uuid.NewString()
	logger := logging.New(cfg.Log).With("run_id", runID)
	slog.SetDefault(logger)

	a := &app{cfg: cfg, logger: logger, runID: runID}
	stopTracing, err := tracing.Init(ctx, cfg.Tracing)
	if err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}
	a.shutdown = append(a.shutdown, stopTracing)

	if cfg.Metrics.Addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		a.serveHTTP(transport.NewHTTPServer(cfg.Metrics.Addr, mux), "metrics")
	}
	return a, nil
}

// close runs shutdown hooks in reverse order.
func (a *app) close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for i := len(a.shutdown) - 1; i >= 0; i-- {
		if err := a.shutdown[i](ctx); err != nil {
			a.logger.Warn("shutdown hook failed", "error", err)
		}
	}
}

func (a *app) serveHTTP(srv *http.Server, name string) {
	go func() {
		a.logger.Info("http server listening", "server", name, "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("http server failed", "server", name, "error", err)
		}
	}()
	a.shutdown = append(a.shutdown, srv.Shutdown)
}

// serveHTTPOn is serveHTTP on an already bound listener.
func (a *app) serveHTTPOn(lis net.Listener, srv *http.Server, name string) {
	go func() {
		a.logger.Info("http server listening", "server", name, "addr", lis.Addr().String())
		if err := srv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("http server failed", "server", name, "error", err)
		}
	}()
	a.shutdown = append(a.shutdown, srv.Shutdown)
}

// learnerSide is the in-process learner: queue, parameter store, service and
// the built-in policy-gradient learner.
type learnerSide struct {
	queue   buffer.Queue
	store   *learner.ParamStore
	service *learner.Service
	learner *learner.PolicyGradient
}

func (a *app) newLearnerSide(ctx context.Context) (*learnerSide, error) {
	queue, err := buffer.New(ctx, a.cfg.QueueSettings())
	if err != nil {
		return nil, fmt.Errorf("open queue: %w", err)
	}
	a.shutdown = append(a.shutdown, func(context.Context) error { return queue.Close() })

	store := learner.NewParamStore()
	pg, err := learner.NewPolicyGradient(a.cfg.LearnerSettings(), store, queue, policy.DefaultWeights(),
		a.logger.With("component", "learner"), logging.NewSlogSink(a.logger, "learner update"))
	if err != nil {
		return nil, err
	}
	return &learnerSide{
		queue:   queue,
		store:   store,
		service: learner.NewService(store, queue, a.logger.With("component", "service")),
		learner: pg,
	}, nil
}

// serve exposes svc over gRPC on transport.address and over HTTP on
// transport.http_address. Both addresses are rewritten to the bound ones so a
// later dial in the same process reaches them even when port 0 was asked for.
func (a *app) serve(svc *learner.Service) error {
	lis, err := net.Listen("tcp", a.cfg.Transport.Address)
	if err != nil {
		return fmt.Errorf("listen %s: %w", a.cfg.Transport.Address, err)
	}
	httpLis, err := net.Listen("tcp", a.cfg.Transport.HTTPAddress)
	if err != nil {
		_ = lis.Close()
		return fmt.Errorf("listen %s: %w", a.cfg.Transport.HTTPAddress, err)
	}
	a.cfg.Transport.Address = lis.Addr().String()
	a.cfg.Transport.HTTPAddress = httpLis.Addr().String()

	limit := a.cfg.Transport.MaxMessageBytes
	gs := transport.NewServer(a.logger.With("component", "grpc"),
		grpc.MaxRecvMsgSize(limit), grpc.MaxSendMsgSize(limit))
	transport.NewGRPCServer(svc).Register(gs)
	go func() {
		a.logger.Info("grpc server listening", "addr", lis.Addr().String())
		if err := gs.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			a.logger.Error("grpc server failed", "error", err)
		}
	}()
	a.shutdown = append(a.shutdown, func(context.Context) error {
		gs.GracefulStop()
		return nil
	})

	handler := transport.NewHTTPHandler(svc, a.logger.With("component", "http"))
	a.serveHTTPOn(httpLis, transport.NewHTTPServer(a.cfg.Transport.HTTPAddress, handler), "learner")
	return nil
}

// dial connects to the learner over the configured transport.
func (a *app) dial() (transport.Client, error) {
	addr := a.cfg.Transport.Address
	if a.cfg.Transport.Kind == "http" {
		addr = a.cfg.Transport.HTTPAddress
	}
	client, err := transport.Dial(a.cfg.Transport.Kind, addr, a.cfg.Transport.RPCTimeout, a.cfg.Transport.MaxMessageBytes)
	if err != nil {
		return nil, err
	}
	a.shutdown = append(a.shutdown, func(context.Context) error { return client.Close() })
	a.logger.Info("connected to learner", "transport", a.cfg.Transport.Kind, "addr", addr)
	return client, nil
}

// runnerFactory builds CartPole actors that talk to client.
func (a *app) runnerFactory(client worker.Client) supervisor.RunnerFactory {
	actor := a.cfg.Actor
	return func(i int, stop *worker.StopSignal) (*worker.Runner, error) {
		id := fmt.Sprintf("%s-%d", a.runID[:8], i)
		logger := a.logger.With("component", "actor")
		gen, err := worker.NewCartPoleGenerator(worker.GeneratorConfig{
			ActorID:         id,
			Index:           i,
			UnrollLength:    actor.UnrollLength,
			ActionRepeat:    actor.ActionRepeat,
			MaxEpisodeSteps: actor.MaxEpisodeSteps,
			Seed:            actor.Seed + int64(i),
			Sink:            logging.NewSlogSink(logger, "episode"),
		})
		if err != nil {
			return nil, err
		}
		r := &worker.Runner{
			ID:         id,
			Client:     client,
			Generator:  gen,
			Stop:       stop,
			RPCTimeout: a.cfg.Transport.RPCTimeout,
			Logger:     logger,
			Sink:       logging.NewSlogSink(logger, "trajectory submitted"),
		}
		if actor.MaxRolloutsPerSec > 0 {
			r.Limiter = rate.NewLimiter(rate.Limit(actor.MaxRolloutsPerSec), 1)
		}
		return r, nil
	}
}

func (a *app) report(rep supervisor.Report) {
	for _, actor := range rep.Actors {
		if actor.Err != nil {
			a.logger.Error("actor failed", "actor_id", actor.ID, "iterations", actor.Iterations, "error", actor.Err)
			continue
		}
		a.logger.Info("actor finished", "actor_id", actor.ID, "iterations", actor.Iterations)
	}
	a.logger.Info("pool drained", "duration", rep.Duration.String(), "failed", len(rep.Failed()))
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
