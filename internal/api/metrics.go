package api

import (
	"fmt"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/AaronLay10/ARTutor/internal/events"
	"github.com/AaronLay10/ARTutor/internal/orchestrator"
	"github.com/AaronLay10/ARTutor/internal/scene"
	"github.com/AaronLay10/ARTutor/internal/version"
)

// Metrics state
var (
	metricsState = &MetricsState{}
	counters     = &SessionCounters{}
)

// MetricsState holds runtime metrics for the /metrics endpoint.
type MetricsState struct {
	mu           sync.RWMutex
	startTime    time.Time
	instanceName string
}

// InitMetrics initializes the metrics system. Must be called at startup.
func InitMetrics(instance string) {
	metricsState.mu.Lock()
	defer metricsState.mu.Unlock()
	metricsState.startTime = time.Now()
	metricsState.instanceName = instance
}

// SessionCounters counts session outcomes. It implements
// orchestrator.Observer.
type SessionCounters struct {
	started       atomic.Int64
	activeAR      atomic.Int64
	activeFB      atomic.Int64
	errors        atomic.Int64
	markersFound  atomic.Int64
	notifications atomic.Int64
}

// Counters returns the process-wide observer to register with the orchestrator.
func Counters() *SessionCounters {
	return counters
}

func (c *SessionCounters) StateChanged(st orchestrator.Status) {
	switch st.State {
	case orchestrator.StateLoadingEngine:
		c.started.Add(1)
	case orchestrator.StateActive:
		if st.Mode == scene.ModeAR {
			c.activeAR.Add(1)
		} else {
			c.activeFB.Add(1)
		}
	case orchestrator.StateError:
		c.errors.Add(1)
	}
}

func (c *SessionCounters) Notify(n orchestrator.Notification) {
	c.notifications.Add(1)
	if n.Kind == orchestrator.NotifyMarkerFound {
		c.markersFound.Add(1)
	}
}

func boolGauge(b bool) int {
	if b {
		return 1
	}
	return 0
}

// metricsHandler returns Prometheus-compatible metrics in text format.
func metricsHandler(o *orchestrator.Orchestrator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}

		metricsState.mu.RLock()
		startTime := metricsState.startTime
		instanceName := metricsState.instanceName
		metricsState.mu.RUnlock()

		readiness.mu.RLock()
		mqttConnected := readiness.mqttConnected
		postgresConnected := readiness.postgresConnected
		readiness.mu.RUnlock()

		var st orchestrator.Status
		if o != nil {
			st = o.Status()
		}

		hostname, _ := os.Hostname()
		if hostname == "" {
			hostname = "unknown"
		}

		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

		writeMetric := func(name, mtype, help string, value interface{}, labels string) {
			fmt.Fprintf(w, "# HELP %s %s\n", name, help)
			fmt.Fprintf(w, "# TYPE %s %s\n", name, mtype)
			fmt.Fprintf(w, "%s{%s} %v\n", name, labels, value)
		}

		labels := fmt.Sprintf(`instance="%s",host="%s",version="%s"`, instanceName, hostname, version.Version)

		writeMetric("artutor_uptime_seconds", "gauge",
			"Number of seconds since the service started", time.Since(startTime).Seconds(), labels)
		writeMetric("artutor_events_total", "counter",
			"Total number of events emitted since startup", events.TotalCount(), labels)
		writeMetric("artutor_sessions_started_total", "counter",
			"Sessions that began loading the engine", counters.started.Load(), labels)
		writeMetric("artutor_sessions_ar_total", "counter",
			"Sessions that reached active AR mode", counters.activeAR.Load(), labels)
		writeMetric("artutor_sessions_fallback_total", "counter",
			"Sessions that reached the 3D viewer fallback", counters.activeFB.Load(), labels)
		writeMetric("artutor_sessions_error_total", "counter",
			"Sessions that ended in the error state", counters.errors.Load(), labels)
		writeMetric("artutor_markers_found_total", "counter",
			"Marker found notifications raised", counters.markersFound.Load(), labels)
		writeMetric("artutor_notifications_total", "counter",
			"User-facing notifications raised", counters.notifications.Load(), labels)
		writeMetric("artutor_session_active", "gauge",
			"Whether a session is active (1) or not (0)", boolGauge(st.State == orchestrator.StateActive), labels)
		writeMetric("artutor_session_ar", "gauge",
			"Whether the active session is tracking markers (1) or not (0)",
			boolGauge(st.State == orchestrator.StateActive && st.Mode == scene.ModeAR), labels)
		writeMetric("artutor_mqtt_connected", "gauge",
			"Whether MQTT broker is connected (1) or not (0)", boolGauge(mqttConnected), labels)
		writeMetric("artutor_postgres_connected", "gauge",
			"Whether PostgreSQL is connected (1) or not (0)", boolGauge(postgresConnected), labels)
		writeMetric("artutor_events_dropped_total", "counter",
			"Event deliveries skipped for slow subscribers", events.DroppedCount(), labels)
		writeMetric("artutor_events_persist_dropped_total", "counter",
			"Events not stored because the persist queue was full", events.PersistDroppedCount(), labels)
		writeMetric("artutor_ws_clients", "gauge",
			"Number of active event stream subscribers", events.SubscriberCount(), labels)
	}
}
