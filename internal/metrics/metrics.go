package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Frame cycle metrics
var (
	// FramesTotal counts frame phases by outcome.
	FramesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hwcd_frames_total",
			Help: "Frame phases by phase (prepare/commit/flush) and result",
		},
		[]string{"phase", "result"},
	)

	// FrameDuration tracks prepare+commit latency for one frame.
	FrameDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "hwcd_frame_duration_seconds",
			Help:    "Duration of one full frame cycle in seconds",
			Buckets: []float64{.0001, .0005, .001, .002, .004, .008, .016, .033},
		},
	)

	// GPULayers is the number of GPU-composed app layers in the last prepared frame.
	GPULayers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "hwcd_gpu_layers",
			Help: "GPU-composed application layers in the last prepared frame",
		},
	)

	// FencesOutstanding is the number of fence descriptors currently owned.
	FencesOutstanding = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "hwcd_fences_outstanding",
			Help: "Fence descriptors currently owned by the controller",
		},
	)
)

// Refresh-rate metrics
var (
	// RefreshRate is the last successfully applied refresh rate.
	RefreshRate = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "hwcd_refresh_rate_hz",
			Help: "Current display refresh rate in Hz",
		},
	)

	// ForceRefreshRate is the active client override, 0 when unset.
	ForceRefreshRate = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "hwcd_force_refresh_rate_hz",
			Help: "Client forced refresh rate in Hz (0 = unset)",
		},
	)

	// InvalidatesTotal counts invalidate requests sent to the client.
	InvalidatesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "hwcd_invalidates_total",
			Help: "Asynchronous invalidate requests sent to the compositing client",
		},
	)

	// RefreshRequestsTotal counts out-of-band refresh requests by result.
	RefreshRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hwcd_refresh_requests_total",
			Help: "Out-of-band refresh requests by result",
		},
		[]string{"result"},
	)
)

// Session metrics
var (
	// OperationsTotal counts dispatched operations by name and status.
	OperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hwcd_operations_total",
			Help: "Dispatched display operations by operation and status",
		},
		[]string{"operation", "status"},
	)

	// SessionFlag exposes the session flags (1 = set).
	SessionFlag = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "hwcd_session_flag",
			Help: "Display session flags (1 = set)",
		},
		[]string{"flag"},
	)

	// CPUHintActive is 1 while the CPU performance hint is held.
	CPUHintActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "hwcd_cpu_hint_active",
			Help: "1 while the CPU performance hint is held",
		},
	)
)

// Bool converts a flag into a gauge value.
func Bool(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// Event and API metrics
var (
	// EventsDroppedTotal counts events not delivered to a slow subscriber.
	EventsDroppedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "hwcd_events_dropped_total",
			Help: "Events dropped because a subscriber buffer was full",
		},
	)

	// APIRequestsTotal counts API requests by route and status code.
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hwcd_api_requests_total",
			Help: "HTTP API requests by route and status code",
		},
		[]string{"route", "code"},
	)
)
