package feed

import "github.com/prometheus/client_golang/prometheus"

var Subscribers = prometheus.NewGauge(prometheus.GaugeOpts{
	Name: "bookstore_feed_subscribers",
	Help: "Number of live new-book subscribers",
})

func init() {
	prometheus.MustRegister(Subscribers)
}
