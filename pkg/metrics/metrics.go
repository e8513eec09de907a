package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"net/http"
)

var (
	ProbeTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{Name: "rpcf_probe_endpoints_total", Help: "Endpoints probed in the last cycle per network"},
		[]string{"network"},
	)
	ProbeHealthy = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{Name: "rpcf_probe_endpoints_healthy", Help: "Endpoints that passed the last probe cycle per network"},
		[]string{"network"},
	)
	ProxySuccess = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "rpcf_proxy_success_total", Help: "Successful proxy calls"},
		[]string{"network"},
	)
	ProxyFail = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "rpcf_proxy_fail_total", Help: "Proxy calls that exhausted every endpoint"},
		[]string{"network"},
	)
	ConsensusRounds = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "rpcf_consensus_rounds_total", Help: "Consensus rounds started"},
		[]string{"network", "mode"},
	)
	ConsensusAgreed = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "rpcf_consensus_agreed_total", Help: "Consensus rounds that reached quorum"},
		[]string{"network", "mode"},
	)
	ConsensusFailed = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "rpcf_consensus_failed_total", Help: "Consensus rounds that did not reach quorum"},
		[]string{"network", "mode"},
	)
	CooldownStrikes = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "rpcf_cooldown_strikes_total", Help: "Provider failures that triggered a cooldown"},
	)
)

func Init() {
	prometheus.MustRegister(ProbeTotal, ProbeHealthy, ProxySuccess, ProxyFail)
	prometheus.MustRegister(ConsensusRounds, ConsensusAgreed, ConsensusFailed, CooldownStrikes)
}

func Handler() http.Handler {
	return promhttp.Handler()
}
