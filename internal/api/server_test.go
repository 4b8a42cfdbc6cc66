package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/AaronLay10/ARTutor/internal/catalog"
	"github.com/AaronLay10/ARTutor/internal/engine"
	"github.com/AaronLay10/ARTutor/internal/events"
	"github.com/AaronLay10/ARTutor/internal/orchestrator"
	"github.com/AaronLay10/ARTutor/internal/presentation"
	"github.com/AaronLay10/ARTutor/internal/scene"
	"github.com/AaronLay10/ARTutor/internal/surface"
)

type stubFetcher struct {
	body []byte
	err  error
}

func (f stubFetcher) Fetch(ctx context.Context, src engine.Source) ([]byte, error) {
	return f.body, f.err
}

type testEnv struct {
	server *httptest.Server
	orch   *orchestrator.Orchestrator
	surf   *surface.Memory
	loader *engine.Loader
}

func newTestEnv(t *testing.T, fetchErr error) *testEnv {
	t.Helper()
	resetAuth()
	SetTLSConfigForTest(nil)

	loader := engine.NewLoader(engine.Source{Name: "aframe", Version: "1.4.2", URL: "https://cdn.example/aframe.js"},
		stubFetcher{body: []byte("/* aframe */"), err: fetchErr})
	cat := catalog.New()
	surf := surface.NewMemory()
	orch := orchestrator.New(orchestrator.DefaultConfig(), loader, cat, scene.NewBuilder(scene.DefaultOptions()), surf)
	orch.AddObserver(Counters())

	srv := httptest.NewServer(NewMux(Deps{Orchestrator: orch, Engine: loader, Catalog: cat, Surface: surf}))
	t.Cleanup(func() {
		orch.Teardown()
		srv.Close()
	})
	return &testEnv{server: srv, orch: orch, surf: surf, loader: loader}
}

func (e *testEnv) post(t *testing.T, path string, body interface{}) *http.Response {
	t.Helper()
	b, _ := json.Marshal(body)
	resp, err := http.Post(e.server.URL+path, "application/json", bytes.NewReader(b))
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	return resp
}

func (e *testEnv) get(t *testing.T, path string) *http.Response {
	t.Helper()
	resp, err := http.Get(e.server.URL + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	return resp
}

func decode(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode: %v", err)
	}
}

func TestHealthEndpoint(t *testing.T) {
	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()

	healthHandler(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}

	var resp HealthResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Status != "ok" || resp.Service != "artutord" {
		t.Errorf("unexpected health response %+v", resp)
	}
}

func TestReadyEndpoint_DisabledTransportsAreReady(t *testing.T) {
	SetMQTTState(false, false)
	SetPostgresState(false, false)

	w := httptest.NewRecorder()
	readinessHandler(nil)(w, httptest.NewRequest("GET", "/ready", nil))

	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}
	var resp ReadinessResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if !resp.Ready || resp.Checks["mqtt"].Status != "disabled" || resp.Checks["engine"].Status != "not_loaded" {
		t.Errorf("unexpected readiness %+v", resp)
	}
}

func TestReadyEndpoint_EnabledTransportDown(t *testing.T) {
	SetMQTTState(true, false)
	SetPostgresState(true, true)
	defer SetMQTTState(false, false)
	defer SetPostgresState(false, false)

	w := httptest.NewRecorder()
	readinessHandler(nil)(w, httptest.NewRequest("GET", "/ready", nil))

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected status 503, got %d", w.Code)
	}
	var resp ReadinessResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Ready || resp.Checks["mqtt"].Status != "not_ready" || resp.Checks["postgres"].Status != "ok" {
		t.Errorf("unexpected readiness %+v", resp)
	}
	if resp.NotReadyMsg == "" {
		t.Error("expected non-empty message")
	}
}

func TestSessionLifecycleOverHTTP(t *testing.T) {
	env := newTestEnv(t, nil)

	resp := env.post(t, "/session/start", StartRequest{Model: "DNA Helix", Subject: "Biology", Camera: true})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("start: expected 200, got %d", resp.StatusCode)
	}
	var started SessionResponse
	decode(t, resp, &started)
	if started.Status.State != orchestrator.StateAwaitingSceneReady || started.View.Phase != presentation.PhaseLoading {
		t.Fatalf("unexpected start response %+v", started)
	}

	var sc struct {
		Version int `json:"version"`
		Scene   struct {
			Mode    string `json:"mode"`
			Markers []struct {
				ID string `json:"id"`
			} `json:"markers"`
		} `json:"scene"`
	}
	decode(t, env.get(t, "/session/scene"), &sc)
	if sc.Scene.Mode != "ar" || len(sc.Scene.Markers) != 3 {
		t.Fatalf("expected AR scene with 3 markers, got %+v", sc)
	}

	ids := make([]string, 0, 3)
	for _, m := range sc.Scene.Markers {
		ids = append(ids, m.ID)
	}
	resp = env.post(t, "/session/elements", ElementsRequest{Version: sc.Version, Scene: true, Markers: ids})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("elements: expected 200, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	var ready ReadyResponse
	decode(t, env.post(t, "/session/ready", nil), &ready)
	if !ready.Accepted {
		t.Fatal("scene-ready was not accepted")
	}

	var live SessionResponse
	decode(t, env.get(t, "/session"), &live)
	if live.Status.State != orchestrator.StateActive || live.Status.Mode != scene.ModeAR {
		t.Fatalf("expected active(ar), got %s/%s", live.Status.State, live.Status.Mode)
	}
	if live.View.Indicator != presentation.IndicatorAR {
		t.Errorf("expected AR indicator, got %q", live.View.Indicator)
	}
	if got := live.Transitions[len(live.Transitions)-1]; got != "active(ar)" {
		t.Errorf("expected last transition active(ar), got %s", got)
	}

	var marker MarkerResponse
	decode(t, env.post(t, "/session/marker", MarkerRequest{MarkerID: ids[0], Type: surface.MarkerFound}), &marker)
	if marker.Delivered != 1 {
		t.Errorf("expected marker event delivered to 1 listener, got %d", marker.Delivered)
	}

	var ended SessionResponse
	decode(t, env.post(t, "/session/end", nil), &ended)
	if ended.Status.State != orchestrator.StateIdle {
		t.Errorf("expected idle after end, got %s", ended.Status.State)
	}
	if !env.surf.Empty() {
		t.Error("session end must clear the surface")
	}

	resp = env.get(t, "/session/scene")
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404 without scene, got %d", resp.StatusCode)
	}
}

func TestStaleElementReportRejected(t *testing.T) {
	env := newTestEnv(t, nil)
	env.post(t, "/session/start", StartRequest{Model: "Atom", Camera: true}).Body.Close()

	resp := env.post(t, "/session/elements", ElementsRequest{Version: 99, Scene: true})
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("expected 409 for stale report, got %d", resp.StatusCode)
	}
	if _, err := env.surf.Markers(); !errors.Is(err, surface.ErrSceneLoading) {
		t.Errorf("stale report was applied: %v", err)
	}

	_, v := env.surf.Scene()
	resp = env.post(t, "/session/elements", ElementsRequest{Version: v, Scene: true})
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200 for current report, got %d", resp.StatusCode)
	}
}

func TestReadyWithoutElementReportActivatesAR(t *testing.T) {
	env := newTestEnv(t, nil)
	env.post(t, "/session/start", StartRequest{Model: "Atom", Camera: true}).Body.Close()

	var ready ReadyResponse
	decode(t, env.post(t, "/session/ready", nil), &ready)
	if !ready.Accepted {
		t.Fatal("scene-ready was not accepted")
	}

	var live SessionResponse
	decode(t, env.get(t, "/session"), &live)
	if live.Status.State != orchestrator.StateActive || live.Status.Mode != scene.ModeAR {
		t.Fatalf("expected active(ar), got %s/%s", live.Status.State, live.Status.Mode)
	}
}

func TestEngineFailureSurfacesErrorView(t *testing.T) {
	env := newTestEnv(t, errors.New("cdn unreachable"))

	resp := env.post(t, "/session/start", StartRequest{Model: "Atom", Camera: true})
	if resp.StatusCode != http.StatusBadGateway {
		t.Errorf("expected 502, got %d", resp.StatusCode)
	}
	var body SessionResponse
	decode(t, resp, &body)
	if body.OK || body.Status.State != orchestrator.StateError {
		t.Fatalf("expected error state, got %+v", body.Status)
	}
	if len(body.View.Actions) != 1 || body.View.Actions[0].ID != presentation.ActionGoBack {
		t.Errorf("expected single go_back action, got %+v", body.View.Actions)
	}

	resp = env.get(t, "/session/scene")
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("no scene may exist after engine failure, got %d", resp.StatusCode)
	}
}

func TestEngineAssetServedAfterLoad(t *testing.T) {
	env := newTestEnv(t, nil)

	resp := env.get(t, "/engine/asset")
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("expected 503 before load, got %d", resp.StatusCode)
	}

	env.post(t, "/session/start", StartRequest{Model: "Atom"}).Body.Close()

	resp = env.get(t, "/engine/asset")
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK || string(body) != "/* aframe */" {
		t.Errorf("unexpected asset response %d %q", resp.StatusCode, body)
	}
	if got := resp.Header.Get("X-Engine-Version"); got != "aframe@1.4.2" {
		t.Errorf("expected engine version header, got %q", got)
	}
}

func TestSessionEndpointsRejectWrongMethod(t *testing.T) {
	env := newTestEnv(t, nil)

	for _, path := range []string{"/session/start", "/session/select", "/session/end", "/session/ready", "/session/marker"} {
		resp := env.get(t, path)
		resp.Body.Close()
		if resp.StatusCode != http.StatusMethodNotAllowed {
			t.Errorf("GET %s: expected 405, got %d", path, resp.StatusCode)
		}
	}
}

func TestMarkerReportValidation(t *testing.T) {
	env := newTestEnv(t, nil)

	resp := env.post(t, "/session/marker", MarkerRequest{MarkerID: "marker-hiro", Type: "wobble"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", resp.StatusCode)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	InitMetrics("lab-1")
	env := newTestEnv(t, nil)
	env.post(t, "/session/start", StartRequest{Model: "Atom"}).Body.Close()

	resp := env.get(t, "/metrics")
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	for _, want := range []string{
		"artutor_uptime_seconds",
		"artutor_sessions_started_total",
		"artutor_session_active",
		`instance="lab-1"`,
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("metrics missing %s", want)
		}
	}
}

func TestUIServedAtRootOnly(t *testing.T) {
	env := newTestEnv(t, nil)

	resp := env.get(t, "/")
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), "ARTutor") {
		t.Errorf("unexpected root response %d", resp.StatusCode)
	}

	resp = env.get(t, "/nope")
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404 for unknown path, got %d", resp.StatusCode)
	}
}

func TestModelsListsCatalog(t *testing.T) {
	env := newTestEnv(t, nil)

	var keys []string
	decode(t, env.get(t, "/models"), &keys)
	if len(keys) != 4 || keys[0] != "Atom" {
		t.Errorf("unexpected model keys %v", keys)
	}
}

func TestSessionHistoryRequiresEventStore(t *testing.T) {
	env := newTestEnv(t, nil)

	resp := env.get(t, "/sessions")
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("expected 503 without an event store, got %d", resp.StatusCode)
	}
}

func TestSessionEventsFromBufferWithoutEventStore(t *testing.T) {
	env := newTestEnv(t, nil)

	var st SessionResponse
	decode(t, env.post(t, "/session/start", StartRequest{Model: "Atom", Camera: false}), &st)
	sid := st.Status.SessionID
	if sid == "" {
		t.Fatal("expected a session id")
	}

	var evs []events.Event
	decode(t, env.get(t, "/events?session="+sid), &evs)
	if len(evs) == 0 {
		t.Fatal("expected buffered events for the session")
	}
	for _, e := range evs {
		if e.SessionID() != sid {
			t.Errorf("event %s belongs to session %q", e.Name, e.SessionID())
		}
	}
}
