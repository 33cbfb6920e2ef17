package catalog

import "github.com/prometheus/client_golang/prometheus"

var BooksTotal = prometheus.NewGauge(prometheus.GaugeOpts{
	Name: "bookstore_catalog_books",
	Help: "Number of books currently in the catalog",
})

func init() {
	prometheus.MustRegister(BooksTotal)
}
