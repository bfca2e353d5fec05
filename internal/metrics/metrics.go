package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	OnlineSessions = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "messenger_online_sessions",
		Help: "Number of sessions whose status is not offline",
	})

	KnownSessions = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "messenger_known_sessions",
		Help: "Number of sessions held by the directory",
	})

	PendingMessages = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "messenger_pending_messages",
		Help: "Messages waiting in the offline store",
	})

	MessagesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "messenger_messages_total",
		Help: "Inbound messages handled by type and result",
	}, []string{"type", "result"})

	HandleDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "messenger_handle_seconds",
		Help:    "Time to route each inbound message type",
		Buckets: prometheus.DefBuckets,
	}, []string{"type"})

	FramesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "messenger_fanout_frames_total",
		Help: "Frames published on the fan-out channel by kind",
	}, []string{"kind"})

	OfflineDelivered = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "messenger_offline_delivered_total",
		Help: "Offline messages delivered on login",
	})

	EvictedSessions = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "messenger_evicted_sessions_total",
		Help: "Sessions removed for inactivity",
	})

	ExpiredMessages = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "messenger_expired_messages_total",
		Help: "Offline messages dropped by the retention sweep",
	})

	TransportErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "messenger_transport_errors_total",
		Help: "Transport failures by operation",
	}, []string{"op"})
)

func init() {
	prometheus.MustRegister(OnlineSessions)
	prometheus.MustRegister(KnownSessions)
	prometheus.MustRegister(PendingMessages)
	prometheus.MustRegister(MessagesTotal)
	prometheus.MustRegister(HandleDuration)
	prometheus.MustRegister(FramesTotal)
	prometheus.MustRegister(OfflineDelivered)
	prometheus.MustRegister(EvictedSessions)
	prometheus.MustRegister(ExpiredMessages)
	prometheus.MustRegister(TransportErrors)
}
