package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/AaronLay10/ARTutor/internal/capability"
	"github.com/AaronLay10/ARTutor/internal/catalog"
	"github.com/AaronLay10/ARTutor/internal/engine"
	"github.com/AaronLay10/ARTutor/internal/events"
	"github.com/AaronLay10/ARTutor/internal/orchestrator"
	"github.com/AaronLay10/ARTutor/internal/presentation"
	"github.com/AaronLay10/ARTutor/internal/scene"
	"github.com/AaronLay10/ARTutor/internal/surface"
	"github.com/AaronLay10/ARTutor/internal/version"
)

// Deps are the running components the API drives.
type Deps struct {
	Orchestrator *orchestrator.Orchestrator
	Engine       *engine.Loader
	Catalog      *catalog.Catalog
	// Surface is the in-process surface fed by HTTP reports. Nil when
	// reports arrive over MQTT instead.
	Surface *surface.Memory
}

type server struct {
	Deps
}

type HealthResponse struct {
	Status    string `json:"status"`
	Service   string `json:"service"`
	Version   string `json:"version"`
	Hostname  string `json:"hostname"`
	Timestamp string `json:"ts"`
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	host, _ := os.Hostname()
	resp := HealthResponse{
		Status:    "ok",
		Service:   version.Service,
		Version:   version.Version,
		Hostname:  host,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	}
	writeJSON(w, http.StatusOK, resp)
}

// eventsHandler returns the ring buffer. With ?session=<id> it returns the
// stored history of one session, or the buffered part of it when no event
// store is configured.
func eventsHandler(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session")
	if sessionID == "" {
		writeJSON(w, http.StatusOK, events.Snapshot())
		return
	}

	pg := events.GetPostgresClient()
	if pg == nil {
		writeJSON(w, http.StatusOK, events.SessionEvents(sessionID))
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	rows, err := pg.QuerySession(sessionID, limit)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

// historyHandler replays stored events into per-session summaries.
func historyHandler(w http.ResponseWriter, r *http.Request) {
	pg := events.GetPostgresClient()
	if pg == nil {
		writeJSON(w, http.StatusServiceUnavailable, ErrorResponse{Error: "event store not configured"})
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	recs, _, err := orchestrator.LoadHistory(pg, limit)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}
	if recs == nil {
		recs = []orchestrator.SessionRecord{}
	}
	writeJSON(w, http.StatusOK, recs)
}

type ErrorResponse struct {
	Error string `json:"error"`
}

// SessionResponse describes the session after a control request.
type SessionResponse struct {
	OK          bool                `json:"ok"`
	Error       string              `json:"error,omitempty"`
	Status      orchestrator.Status `json:"status"`
	View        presentation.View   `json:"view"`
	Transitions []string            `json:"transitions,omitempty"`
}

type StartRequest struct {
	Model   string `json:"model"`
	Subject string `json:"subject"`
	Camera  bool   `json:"camera"`
	XR      bool   `json:"xr"`
}

type SelectRequest struct {
	Model string `json:"model"`
}

type ReadyResponse struct {
	Accepted bool `json:"accepted"`
}

// ElementsRequest reports which elements of scene Version the client found.
type ElementsRequest struct {
	Version int      `json:"version"`
	Scene   bool     `json:"scene"`
	Markers []string `json:"markers"`
}

type MarkerRequest struct {
	MarkerID string                  `json:"marker_id"`
	Type     surface.MarkerEventType `json:"type"`
}

type SceneResponse struct {
	Version int               `json:"version"`
	Scene   scene.Description `json:"scene"`
}

func (s *server) sessionResponse(err error) SessionResponse {
	st := s.Orchestrator.Status()
	steps := s.Orchestrator.Transitions()
	resp := SessionResponse{
		OK:          err == nil,
		Status:      st,
		View:        presentation.Render(st),
		Transitions: make([]string, 0, len(steps)),
	}
	for _, step := range steps {
		resp.Transitions = append(resp.Transitions, step.String())
	}
	if err != nil {
		resp.Error = err.Error()
	}
	return resp
}

func (s *server) sessionHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, ErrorResponse{Error: "method not allowed"})
		return
	}
	writeJSON(w, http.StatusOK, s.sessionResponse(nil))
}

func (s *server) startHandler(w http.ResponseWriter, r *http.Request) {
	var req StartRequest
	if !decodePost(w, r, &req) {
		return
	}
	// The session outlives the request.
	ctx := context.WithoutCancel(r.Context())
	err := s.Orchestrator.Start(ctx, req.Model, req.Subject, capability.Flags{Camera: req.Camera, XR: req.XR})
	writeJSON(w, sessionStatusCode(err), s.sessionResponse(err))
}

func (s *server) selectHandler(w http.ResponseWriter, r *http.Request) {
	var req SelectRequest
	if !decodePost(w, r, &req) {
		return
	}
	err := s.Orchestrator.SelectModel(context.WithoutCancel(r.Context()), req.Model)
	writeJSON(w, sessionStatusCode(err), s.sessionResponse(err))
}

func (s *server) endHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, ErrorResponse{Error: "method not allowed"})
		return
	}
	s.Orchestrator.EndSession()
	writeJSON(w, http.StatusOK, s.sessionResponse(nil))
}

func (s *server) readyHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, ErrorResponse{Error: "method not allowed"})
		return
	}
	writeJSON(w, http.StatusOK, ReadyResponse{Accepted: s.Orchestrator.SceneReady()})
}

func (s *server) elementsHandler(w http.ResponseWriter, r *http.Request) {
	var req ElementsRequest
	if !decodePost(w, r, &req) {
		return
	}
	if s.Surface == nil {
		writeJSON(w, http.StatusConflict, ErrorResponse{Error: "element reports are handled over MQTT"})
		return
	}
	if !s.Surface.Report(req.Version, req.Scene, req.Markers) {
		_, v := s.Surface.Scene()
		writeJSON(w, http.StatusConflict, ErrorResponse{Error: fmt.Sprintf("stale report for scene %d, current is %d", req.Version, v)})
		return
	}
	writeJSON(w, http.StatusOK, OKResponse{OK: true})
}

func (s *server) markerHandler(w http.ResponseWriter, r *http.Request) {
	var req MarkerRequest
	if !decodePost(w, r, &req) {
		return
	}
	if req.MarkerID == "" || (req.Type != surface.MarkerFound && req.Type != surface.MarkerLost) {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "marker_id and type found|lost required"})
		return
	}
	if s.Surface == nil {
		writeJSON(w, http.StatusConflict, ErrorResponse{Error: "marker reports are handled over MQTT"})
		return
	}
	delivered := s.Surface.Fire(req.MarkerID, req.Type)
	writeJSON(w, http.StatusOK, MarkerResponse{OK: true, Delivered: delivered})
}

type OKResponse struct {
	OK bool `json:"ok"`
}

type MarkerResponse struct {
	OK        bool `json:"ok"`
	Delivered int  `json:"delivered"`
}

func (s *server) sceneHandler(w http.ResponseWriter, r *http.Request) {
	var (
		desc scene.Description
		v    int
	)
	if s.Surface != nil {
		desc, v = s.Surface.Scene()
	} else {
		desc = s.Orchestrator.Scene()
	}
	if desc == nil {
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "no scene"})
		return
	}
	writeJSON(w, http.StatusOK, SceneResponse{Version: v, Scene: desc})
}

func (s *server) modelsHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Catalog.Keys())
}

// engineAssetHandler serves the pinned engine bytes once loaded.
func (s *server) engineAssetHandler(w http.ResponseWriter, r *http.Request) {
	asset := s.Engine.Asset()
	if asset == nil {
		writeJSON(w, http.StatusServiceUnavailable, ErrorResponse{Error: "engine not loaded"})
		return
	}
	src := s.Engine.Source()
	w.Header().Set("Content-Type", "application/javascript")
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	w.Header().Set("X-Engine-Version", src.ID())
	http.ServeContent(w, r, src.Name+".js", s.Engine.LoadedAt(), bytes.NewReader(asset))
}

func sessionStatusCode(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, orchestrator.ErrSuperseded):
		return http.StatusConflict
	case errors.Is(err, engine.ErrLoadFailure), errors.Is(err, engine.ErrLoadTimeout):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func decodePost(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, ErrorResponse{Error: "method not allowed"})
		return false
	}
	if r.ContentLength == 0 {
		return true
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid JSON"})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// NewMux builds the HTTP routes. Session control and reports require any
// role; the event log requires admin.
func NewMux(d Deps) *http.ServeMux {
	s := &server{Deps: d}
	mux := http.NewServeMux()
	mux.HandleFunc("/health", healthHandler)
	mux.HandleFunc("/ready", readinessHandler(d.Engine))
	mux.HandleFunc("/metrics", metricsHandler(d.Orchestrator))
	mux.HandleFunc("/events", RequireAdmin(eventsHandler))
	mux.HandleFunc("/ws/events", RequireAdmin(wsEventsHandler))
	mux.HandleFunc("/sessions", RequireAdmin(historyHandler))
	mux.HandleFunc("/engine/asset", s.engineAssetHandler)
	mux.HandleFunc("/models", s.modelsHandler)
	mux.HandleFunc("/session", s.sessionHandler)
	mux.HandleFunc("/session/scene", s.sceneHandler)
	mux.HandleFunc("/session/start", RequireAnyRole(s.startHandler))
	mux.HandleFunc("/session/select", RequireAnyRole(s.selectHandler))
	mux.HandleFunc("/session/end", RequireAnyRole(s.endHandler))
	mux.HandleFunc("/session/ready", RequireAnyRole(s.readyHandler))
	mux.HandleFunc("/session/elements", RequireAnyRole(s.elementsHandler))
	mux.HandleFunc("/session/marker", RequireAnyRole(s.markerHandler))
	mux.HandleFunc("/", uiHandler)
	return mux
}

// NewServer builds the API server for port.
func NewServer(port int, d Deps) *http.Server {
	return &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           NewMux(d),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// Serve runs srv, with TLS when configured. It blocks until the server
// exits and returns nil after a graceful shutdown.
func Serve(srv *http.Server) error {
	tlsCfg, err := serverTLSConfig()
	if err != nil {
		return err
	}
	if tlsCfg != nil {
		srv.TLSConfig = tlsCfg
		log.Printf("API listening on %s (TLS)\n", srv.Addr)
		err = srv.ListenAndServeTLS("", "")
	} else {
		log.Printf("API listening on %s\n", srv.Addr)
		err = srv.ListenAndServe()
	}
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Start serves srv in a goroutine.
// Errors are logged but do not stop the caller.
func Start(srv *http.Server) {
	go func() {
		if err := Serve(srv); err != nil {
			log.Printf("api server error: %v", err)
		}
	}()
}
