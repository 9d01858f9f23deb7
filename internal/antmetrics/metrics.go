// Package antmetrics exposes Prometheus counters/gauges for the ANT host
// library plus cheap in-process atomic mirrors for logging without a scrape.
package antmetrics

import (
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/prograhamer/go-anthostd/internal/logging"
)

var (
	FramesDecoded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ant_frames_decoded_total",
		Help: "Total ANT frames decoded from the modem, by message id.",
	}, []string{"message_id"})
	StreamResyncs = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ant_stream_resyncs_total",
		Help: "Total times the stream parser discarded bytes to realign on SYNC.",
	})
	StreamDiscardedBytes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ant_stream_discarded_bytes_total",
		Help: "Total pre-sync bytes discarded by the stream parser.",
	})
	MalformedFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ant_malformed_frames_total",
		Help: "Total frames rejected by the frame codec (bad checksum, id, or enum value).",
	})
	ChannelsAssigned = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ant_channels_assigned_total",
		Help: "Total channel assignments allocated.",
	})
	ChannelsOpened = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ant_channels_opened_total",
		Help: "Total channels that completed the open sequence.",
	})
	ChannelsClosed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ant_channels_closed_total",
		Help: "Total channels that reached Closed.",
	})
	ChannelsOpen = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ant_channels_open",
		Help: "Current number of channels in the Open state.",
	})
	NotifierTimeouts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ant_notifier_timeouts_total",
		Help: "Total wait_for_message_after calls that timed out.",
	})
	SearchDiscoveries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ant_search_discoveries_total",
		Help: "Total distinct channel ids discovered by the search processor.",
	})
	USBReadErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ant_usb_read_errors_total",
		Help: "Total non-timeout errors from the USB bulk IN endpoint.",
	})
	USBWriteErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ant_usb_write_errors_total",
		Help: "Total errors from the USB bulk OUT endpoint.",
	})
	BuildInfo = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "build_info",
		Help: "Build metadata (value is always 1).",
	}, []string{"version", "commit", "date"})
	Errors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "errors_total",
		Help: "Error counters by subsystem.",
	}, []string{"where"})

	readinessMu sync.RWMutex
	readinessFn func() bool
)

// Error label constants (stable values to bound cardinality).
const (
	ErrUSBRead      = "usb_read"
	ErrUSBWrite     = "usb_write"
	ErrOpenSequence = "open_sequence"
	ErrChannelSetup = "channel_setup"
	ErrCloseChannel = "close_channel"
	ErrDispatch     = "dispatch"
)

func AddStreamDiscarded(n int) {
	if n <= 0 {
		return
	}
	StreamResyncs.Inc()
	StreamDiscardedBytes.Add(float64(n))
	atomic.AddUint64(&localDiscarded, uint64(n))
	atomic.AddUint64(&localResyncs, 1)
}

func IncFramesDecoded(messageID string) {
	FramesDecoded.WithLabelValues(messageID).Inc()
	atomic.AddUint64(&localFrames, 1)
}

func IncMalformed() {
	MalformedFrames.Inc()
	atomic.AddUint64(&localMalformed, 1)
}

func IncChannelsAssigned() { ChannelsAssigned.Inc() }
func IncChannelsOpened()   { ChannelsOpened.Inc(); ChannelsOpen.Inc() }
func IncChannelsClosed()   { ChannelsClosed.Inc(); ChannelsOpen.Dec() }
func IncNotifierTimeout()  { NotifierTimeouts.Inc() }
func IncSearchDiscovery()  { SearchDiscoveries.Inc() }
func IncUSBReadError()     { USBReadErrors.Inc() }
func IncUSBWriteError()    { USBWriteErrors.Inc() }

func IncError(label string) {
	Errors.WithLabelValues(label).Inc()
	atomic.AddUint64(&localErrors, 1)
}

var (
	localFrames    uint64
	localDiscarded uint64
	localResyncs   uint64
	localMalformed uint64
	localErrors    uint64
)

// Snapshot is a cheap copy of the local atomic mirrors, for log lines that
// shouldn't pay the cost of a Prometheus scrape.
type Snapshot struct {
	FramesDecoded   uint64
	DiscardedBytes  uint64
	Resyncs         uint64
	MalformedFrames uint64
	Errors          uint64
}

func Snap() Snapshot {
	return Snapshot{
		FramesDecoded:   atomic.LoadUint64(&localFrames),
		DiscardedBytes:  atomic.LoadUint64(&localDiscarded),
		Resyncs:         atomic.LoadUint64(&localResyncs),
		MalformedFrames: atomic.LoadUint64(&localMalformed),
		Errors:          atomic.LoadUint64(&localErrors),
	}
}

// InitBuildInfo sets the build info gauge and pre-registers error label
// series so the first error of each kind doesn't pay registration latency.
func InitBuildInfo(version, commit, date string) {
	BuildInfo.WithLabelValues(version, commit, date).Set(1)
	for _, lbl := range []string{ErrUSBRead, ErrUSBWrite, ErrOpenSequence, ErrChannelSetup, ErrCloseChannel, ErrDispatch} {
		Errors.WithLabelValues(lbl).Add(0)
	}
}

// SetReadinessFunc registers a function used by /ready and IsReady.
func SetReadinessFunc(fn func() bool) { readinessMu.Lock(); readinessFn = fn; readinessMu.Unlock() }

func IsReady() bool {
	readinessMu.RLock()
	fn := readinessFn
	readinessMu.RUnlock()
	if fn == nil {
		return true
	}
	return fn()
}

// StartHTTP serves Prometheus metrics at /metrics and readiness at /ready.
func StartHTTP(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		if IsReady() {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ready\n"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("not ready\n"))
	})

	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		logging.L().Info("metrics_listen", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.L().Error("metrics_http_error", "error", err)
		}
	}()
	return srv
}
