package httputils

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opencensus.io/zpages"
	"go.uber.org/zap"
)

type logFunc func(v ...interface{})

func (l logFunc) Println(v ...interface{}) {
	l(v...)
}

// RunDebugMux handler of the debug listener: prometheus metrics, liveness and sampled traces under /debug/tracez.
func RunDebugMux() http.Handler {
	l := zap.L().Named("debugMux")
	sugar := l.Sugar()

	s := http.NewServeMux()

	s.Handle("/metrics", promhttp.HandlerFor(prometheus.DefaultGatherer, promhttp.HandlerOpts{
		ErrorLog:      logFunc(sugar.Warn),
		ErrorHandling: promhttp.HTTPErrorOnError,
	}))

	zpages.Handle(s, "/debug")

	s.HandleFunc("/-/live", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	return s
}
