package forward

import "github.com/prometheus/client_golang/prometheus"

var forwardedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "fpbridge",
		Subsystem: "forward",
		Name:      "messages_total",
		Help:      "Forwarded result events by sink and outcome",
	},
	[]string{"sink", "outcome"},
)

func init() {
	prometheus.MustRegister(forwardedTotal)
}
