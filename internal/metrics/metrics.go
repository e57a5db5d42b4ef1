package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var Registry = prometheus.NewRegistry()

func init() {
	Registry.MustRegister(
		ParamsRequests, TrajectoriesInserted, TrajectoriesRejected,
		ActorIterations, ActorFailures, ParamsRegressions,
		LearnerFrameCount, LearnerUpdates, QueueLength,
		RolloutDuration, RPCDuration,
	)
}

var ParamsRequests = prometheus.NewCounter(prometheus.CounterOpts{
	Name: "actorlearner_params_requests_total",
	Help: "GetParams calls served.",
})

var TrajectoriesInserted = prometheus.NewCounter(prometheus.CounterOpts{
	Name: "actorlearner_trajectories_inserted_total",
	Help: "Trajectories accepted into the ingestion queue.",
})

var TrajectoriesRejected = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "actorlearner_trajectories_rejected_total",
		Help: "Trajectories refused by the sink.",
	},
	[]string{"reason"}, // malformed | full | error | corrupt
)

var ActorIterations = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "actorlearner_actor_iterations_total",
		Help: "Completed fetch/rollout/submit cycles.",
	},
	[]string{"actor_id"},
)

var ActorFailures = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "actorlearner_actor_failures_total",
		Help: "Actor loops terminated by an error.",
	},
	[]string{"kind"}, // transport | snapshot | trajectory | rollout | other
)

var ParamsRegressions = prometheus.NewCounter(prometheus.CounterOpts{
	Name: "actorlearner_params_regressions_total",
	Help: "Fetches that returned an older frame count than the previous fetch of the same actor.",
})

var LearnerFrameCount = prometheus.NewGauge(prometheus.GaugeOpts{
	Name: "actorlearner_learner_frame_count",
	Help: "Frame count of the most recently published snapshot.",
})

var LearnerUpdates = prometheus.NewCounter(prometheus.CounterOpts{
	Name: "actorlearner_learner_updates_total",
	Help: "Parameter updates completed by the learner.",
})

var QueueLength = prometheus.NewGauge(prometheus.GaugeOpts{
	Name: "actorlearner_ingest_queue_length",
	Help: "Trajectories waiting in the ingestion queue.",
})

var RolloutDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
	Name:    "actorlearner_rollout_duration_seconds",
	Help:    "Wall time of one rollout generation.",
	Buckets: prometheus.DefBuckets,
})

var RPCDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "actorlearner_rpc_duration_seconds",
		Help:    "Server-side RPC handling time.",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"method"},
)

func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}
