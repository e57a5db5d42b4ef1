package transport

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"distributed-actor-learner/internal/buffer"
	"distributed-actor-learner/internal/learner"
	"distributed-actor-learner/internal/metrics"
	"distributed-actor-learner/internal/tracing"
)

type errorBody struct {
	Error string `json:"error"`
}

// NewHTTPHandler serves the protocol plus operational endpoints:
// /healthz, /stats, /config (queue policy) and /metrics.
func NewHTTPHandler(svc *learner.Service, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/stats", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		writeJSON(w, http.StatusOK, svc.Stats(r.Context()))
	})
	mux.HandleFunc("/config", func(w http.ResponseWriter, r *http.Request) {
		setter, ok := svc.Queue().(buffer.PolicySetter)
		if !ok {
			w.WriteHeader(http.StatusNotImplemented)
			return
		}
		switch r.Method {
		case http.MethodGet:
			writeJSON(w, http.StatusOK, map[string]any{"policy": setter.Policy()})
		case http.MethodPost:
			var payload struct {
				Policy *string `json:"policy"`
			}
			if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			if payload.Policy != nil {
				if err := setter.SetPolicy(*payload.Policy); err != nil {
					writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
					return
				}
			}
			w.WriteHeader(http.StatusNoContent)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	})
	mux.HandleFunc("/"+ProtocolVersion+"/params", observeHTTP("GetParams", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		frameCount, params, err := svc.GetParams(r.Context())
		if err != nil {
			writeJSON(w, toHTTPStatus(err), errorBody{Error: err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, GetParamsResponse{FrameCount: frameCount, Params: params})
	}))
	mux.HandleFunc("/"+ProtocolVersion+"/trajectories", observeHTTP("InsertTrajectory", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		var req InsertTrajectoryRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request body: " + err.Error()})
			return
		}
		if len(req.Trajectory) == 0 {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "trajectory required"})
			return
		}
		err := svc.InsertTrajectory(r.Context(), learner.Submission{
			ActorID:    req.ActorID,
			FrameCount: req.FrameCount,
			Trajectory: req.Trajectory,
		})
		if err != nil {
			logger.Debug("insert trajectory failed", "actor_id", req.ActorID, "error", err)
			writeJSON(w, toHTTPStatus(err), errorBody{Error: err.Error()})
			return
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	mux.Handle("/metrics", metrics.Handler())
	return mux
}

func NewHTTPServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

func observeHTTP(method string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracing.StartRPCSpan(r.Context(), method)
		defer span.End()
		start := time.Now()
		next(w, r.WithContext(ctx))
		metrics.RPCDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())
	}
}

func writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}
