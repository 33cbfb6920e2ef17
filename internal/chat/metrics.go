package chat

import "github.com/prometheus/client_golang/prometheus"

var (
	ConnectedClients = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "bookstore_chat_connected_clients",
		Help: "Number of currently connected chat clients",
	})

	EventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bookstore_chat_events_total",
		Help: "Total registry events processed by type",
	}, []string{"type"})

	EventProcessingDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "bookstore_chat_event_processing_seconds",
		Help:    "Time to process each registry event type",
		Buckets: prometheus.DefBuckets,
	}, []string{"type"})

	MessagesDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bookstore_chat_messages_dropped_total",
		Help: "Messages dropped because a recipient queue was full",
	})
)

func init() {
	prometheus.MustRegister(ConnectedClients)
	prometheus.MustRegister(EventsTotal)
	prometheus.MustRegister(EventProcessingDuration)
	prometheus.MustRegister(MessagesDropped)
}
