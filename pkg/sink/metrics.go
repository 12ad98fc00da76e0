package sink

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var sinkWritesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "quotefeed_sink_writes_total",
	Help: "Sink write attempts by sink type and outcome",
}, []string{"sink", "outcome"})
