package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	DeviceFlowOutcomes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "devicelogin_flows_total",
		Help: "Total number of device login flows by terminal outcome",
	}, []string{"outcome"})
	DeviceFlowDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name: "devicelogin_flow_duration_seconds",
		Help: "Wall time from flow start until the flow reached a terminal state",
		// Device codes commonly live 5 to 30 minutes.
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 900, 1800},
	})
	DiscoveryAttempts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "devicelogin_discovery_attempts_total",
		Help: "Total number of metadata discovery attempts by source and result",
	}, []string{"source", "result"})
	RegistrationAttempts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "devicelogin_registration_attempts_total",
		Help: "Total number of dynamic client registration attempts by result",
	}, []string{"result"})
	ClientIdentityFallbacks = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "devicelogin_client_identity_fallbacks_total",
		Help: "Total number of flows that fell back to a configured client ID after registration failed",
	})
	// Poll results: pending, slow_down, success, denied, expired,
	// transient_error, server_error, protocol_error.
	TokenPollRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "devicelogin_token_poll_requests_total",
		Help: "Total number of token endpoint polls by result",
	}, []string{"result"})
)

func init() {
	prometheus.MustRegister(DeviceFlowOutcomes)
	prometheus.MustRegister(DeviceFlowDuration)
	prometheus.MustRegister(DiscoveryAttempts)
	prometheus.MustRegister(RegistrationAttempts)
	prometheus.MustRegister(ClientIdentityFallbacks)
	prometheus.MustRegister(TokenPollRequests)
}

// WriteTextfile dumps the default registry in the text exposition format for
// the node-exporter textfile collector. Short-lived CLIs have no scrape port.
func WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, prometheus.DefaultGatherer); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	return nil
}
