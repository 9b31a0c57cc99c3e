package engine

import (
	"github.com/prometheus/client_golang/prometheus"
)

type serviceMetrics struct {
	outcomes *prometheus.CounterVec
}

func newServiceMetrics() *serviceMetrics {
	return &serviceMetrics{
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "airtime_checkout_outcomes_total",
			Help: "Outcomes of checkout steps.",
		}, []string{"mode", "status"}),
	}
}

func (s *Service) Describe(ch chan<- *prometheus.Desc) {
	s.m.outcomes.Describe(ch)
}

func (s *Service) Collect(ch chan<- prometheus.Metric) {
	s.m.outcomes.Collect(ch)
}

// check interfaces
var (
	_ prometheus.Collector = (*Service)(nil)
)
