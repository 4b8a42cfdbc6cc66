package api

import (
	"net/http"
	"sync"

	"github.com/AaronLay10/ARTutor/internal/engine"
)

// readinessState tracks the optional transports. A disabled transport
// never blocks readiness.
type readinessState struct {
	mu                sync.RWMutex
	mqttEnabled       bool
	mqttConnected     bool
	postgresEnabled   bool
	postgresConnected bool
}

var readiness = &readinessState{}

// SetMQTTState records whether MQTT is configured and connected.
func SetMQTTState(enabled, connected bool) {
	readiness.mu.Lock()
	defer readiness.mu.Unlock()
	readiness.mqttEnabled = enabled
	readiness.mqttConnected = connected
}

// SetPostgresState records whether Postgres is configured and connected.
func SetPostgresState(enabled, connected bool) {
	readiness.mu.Lock()
	defer readiness.mu.Unlock()
	readiness.postgresEnabled = enabled
	readiness.postgresConnected = connected
}

type CheckResult struct {
	Status string `json:"status"`
}

type ReadinessResponse struct {
	Ready       bool                   `json:"ready"`
	Checks      map[string]CheckResult `json:"checks"`
	NotReadyMsg string                 `json:"message,omitempty"`
}

func transportCheck(enabled, connected bool) CheckResult {
	switch {
	case !enabled:
		return CheckResult{Status: "disabled"}
	case connected:
		return CheckResult{Status: "ok"}
	default:
		return CheckResult{Status: "not_ready"}
	}
}

// readinessHandler reports whether the configured transports are up. The
// engine is loaded lazily by the first session, so its check is informational.
func readinessHandler(loader *engine.Loader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		readiness.mu.RLock()
		mqtt := transportCheck(readiness.mqttEnabled, readiness.mqttConnected)
		pg := transportCheck(readiness.postgresEnabled, readiness.postgresConnected)
		readiness.mu.RUnlock()

		eng := CheckResult{Status: "not_loaded"}
		if loader != nil && loader.Ready() {
			eng.Status = "loaded"
		}

		resp := ReadinessResponse{
			Ready: mqtt.Status != "not_ready" && pg.Status != "not_ready",
			Checks: map[string]CheckResult{
				"engine":   eng,
				"mqtt":     mqtt,
				"postgres": pg,
			},
		}
		code := http.StatusOK
		if !resp.Ready {
			code = http.StatusServiceUnavailable
			resp.NotReadyMsg = "configured transport not connected"
		}
		writeJSON(w, code, resp)
	}
}
