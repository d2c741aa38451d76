package obs

import (
	"runtime"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	buildInfoOnce sync.Once

	// build_info: константа 1, метки версии, коммита и Go.
	buildInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "build_info",
			Help: "brdconsole build information.",
		},
		[]string{"component", "version", "commit", "goversion"},
	)
)

// InitBuildInfo registers build_info once and sets it for the component.
func InitBuildInfo(component, version, commit string) {
	buildInfoOnce.Do(func() {
		prometheus.MustRegister(buildInfo)
	})
	buildInfo.WithLabelValues(component, version, commit, runtime.Version()).Set(1)
}
