// Package orchestrator drives the AR bootstrap sequence and its fallback.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/AaronLay10/ARTutor/internal/capability"
	"github.com/AaronLay10/ARTutor/internal/catalog"
	"github.com/AaronLay10/ARTutor/internal/events"
	"github.com/AaronLay10/ARTutor/internal/scene"
	"github.com/AaronLay10/ARTutor/internal/surface"
)

// ErrSuperseded is returned by Start when a teardown or a newer session
// replaced the session while the engine was loading.
var ErrSuperseded = errors.New("session superseded")

// EngineLoader ensures the rendering engine is usable.
type EngineLoader interface {
	EnsureLoaded(ctx context.Context) error
}

// Config holds the session timings.
type Config struct {
	SceneReadyTimeout time.Duration
	SettleDelay       time.Duration
	DefaultModel      string
}

// DefaultConfig returns 8s/4s timings and the Atom model.
func DefaultConfig() Config {
	return Config{
		SceneReadyTimeout: 8 * time.Second,
		SettleDelay:       4 * time.Second,
		DefaultModel:      catalog.DefaultKey,
	}
}

// Orchestrator owns one mounted session: its state, its scene description
// and the rendering surface.
type Orchestrator struct {
	cfg       Config
	loader    EngineLoader
	catalog   *catalog.Catalog
	builder   *scene.Builder
	surface   surface.Surface
	sched     Scheduler
	observers []Observer
	onEnd     func()

	mu     sync.Mutex
	status Status
	host   capability.Host
	spec   catalog.ModelSpec
	desc   scene.Description
	timers []Timer
	detach []func()
	cancel context.CancelFunc
	steps  []Step
}

// New creates an idle orchestrator.
func New(cfg Config, loader EngineLoader, cat *catalog.Catalog, builder *scene.Builder, surf surface.Surface) *Orchestrator {
	def := DefaultConfig()
	if cfg.SceneReadyTimeout <= 0 {
		cfg.SceneReadyTimeout = def.SceneReadyTimeout
	}
	if cfg.SettleDelay <= 0 {
		cfg.SettleDelay = def.SettleDelay
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = def.DefaultModel
	}
	return &Orchestrator{
		cfg:     cfg,
		loader:  loader,
		catalog: cat,
		builder: builder,
		surface: surf,
		sched:   RealScheduler(),
		status:  Status{State: StateIdle},
	}
}

// SetScheduler replaces the timer source. Call before Start.
func (o *Orchestrator) SetScheduler(s Scheduler) {
	o.sched = s
}

// AddObserver registers an observer. Call before Start.
func (o *Orchestrator) AddObserver(obs Observer) {
	o.observers = append(o.observers, obs)
}

// SetSessionEndHandler sets the host callback invoked by EndSession.
func (o *Orchestrator) SetSessionEndHandler(fn func()) {
	o.onEnd = fn
}

// Start runs the bootstrap sequence up to awaiting_scene_ready, or to a
// terminal state when the engine fails or the AR scene cannot be injected.
// A live session is torn down first. Start blocks while the engine loads.
func (o *Orchestrator) Start(ctx context.Context, modelKey, subject string, host capability.Host) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	o.mu.Lock()
	if o.status.State != StateIdle {
		o.teardownLocked()
	}
	if modelKey == "" {
		modelKey = o.cfg.DefaultModel
	}
	sid := uuid.NewString()
	o.status = Status{State: StateIdle, ModelKey: modelKey, Subject: subject, SessionID: sid}
	o.host = host
	o.cancel = cancel
	o.steps = []Step{{State: StateIdle}}
	o.emit("info", "session.started", "", map[string]interface{}{"subject": subject})
	o.setState(StateLoadingEngine, "", "Loading 3D engine...")
	o.emit("info", "engine.loading", "", nil)
	o.mu.Unlock()

	loadErr := o.loader.EnsureLoaded(ctx)

	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.current(sid, StateLoadingEngine) {
		return ErrSuperseded
	}
	o.cancel = nil
	if loadErr != nil {
		o.emit("error", "engine.failed", loadErr.Error(), nil)
		o.failLocked("Could not load the 3D engine. Please go back and try again.")
		return fmt.Errorf("load engine: %w", loadErr)
	}
	o.emit("info", "engine.ready", "", nil)

	o.setState(StateProbingCapability, "", "Checking camera access...")
	v := capability.Probe(host)
	o.status.Verdict = &v
	o.emit("info", "capability.probed", "", map[string]interface{}{
		"camera": v.CameraAvailable,
		"xr":     v.XRAvailable,
	})

	o.spec = o.catalog.Lookup(modelKey)
	o.setState(StateBuildingScene, "", fmt.Sprintf("Preparing %s...", o.spec.Label))
	desc := o.builder.Build(v, o.spec)
	o.emit("info", "scene.built", "", map[string]interface{}{"mode": string(desc.Mode())})

	if err := o.inject(desc); err != nil {
		if desc.Mode() == scene.ModeAR {
			o.forceFallbackLocked("scene.init_failed", err.Error(),
				"AR could not start, showing the 3D viewer instead.")
			return nil
		}
		o.failLocked("The 3D viewer could not be started.")
		return fmt.Errorf("inject fallback scene: %w", err)
	}
	o.desc = desc
	o.emit("info", "scene.injected", "", map[string]interface{}{"mode": string(desc.Mode())})

	msg := "Starting AR camera..."
	if desc.Mode() == scene.ModeFallback {
		msg = "Starting 3D viewer..."
	}
	o.setState(StateAwaitingSceneReady, "", msg)
	o.timers = append(o.timers,
		o.sched.AfterFunc(o.cfg.SettleDelay, func() { o.onSettle(sid) }),
		o.sched.AfterFunc(o.cfg.SceneReadyTimeout, func() { o.onTimeout(sid) }),
	)
	return nil
}

// SceneReady delivers the scene-ready signal. It returns false when the
// session is not awaiting one, in which case the signal is ignored.
func (o *Orchestrator) SceneReady() bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.status.State != StateAwaitingSceneReady {
		return false
	}
	o.emit("info", "scene.ready", "", nil)
	if o.desc == nil || o.desc.Mode() != scene.ModeAR {
		o.activateLocked()
		return true
	}
	if err := o.ready(); err != nil {
		o.forceFallbackLocked("scene.init_failed", err.Error(),
			"AR could not start, showing the 3D viewer instead.")
		return true
	}
	o.activateLocked()
	return true
}

// SelectModel switches the session to key. A different key, or any key
// while idle or failed, resets and restarts the whole sequence.
func (o *Orchestrator) SelectModel(ctx context.Context, key string) error {
	o.mu.Lock()
	if key == "" {
		key = o.cfg.DefaultModel
	}
	st := o.status
	host := o.host
	o.mu.Unlock()

	if key == st.ModelKey && st.State != StateIdle && st.State != StateError {
		return nil
	}
	return o.Start(ctx, key, st.Subject, host)
}

// Teardown releases the surface and returns to idle from any state.
// Pending timers become no-ops.
func (o *Orchestrator) Teardown() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.teardownLocked()
}

// EndSession tears down and then invokes the session-end handler.
func (o *Orchestrator) EndSession() {
	o.mu.Lock()
	sid := o.status.SessionID
	o.teardownLocked()
	onEnd := o.onEnd
	o.mu.Unlock()

	events.Emit("info", "session.ended", "", map[string]interface{}{"session_id": sid})
	if onEnd != nil {
		onEnd()
	}
}

// Status returns a copy of the current status.
func (o *Orchestrator) Status() Status {
	o.mu.Lock()
	defer o.mu.Unlock()
	st := o.status
	if st.Verdict != nil {
		v := *st.Verdict
		st.Verdict = &v
	}
	return st
}

// Scene returns the active scene description, or nil.
func (o *Orchestrator) Scene() scene.Description {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.desc
}

// Transitions returns the state history of the current session.
func (o *Orchestrator) Transitions() []Step {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]Step(nil), o.steps...)
}

func (o *Orchestrator) onSettle(sid string) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.current(sid, StateAwaitingSceneReady) {
		return
	}

	_, err := o.markers()
	switch {
	case err == nil:
		o.activateLocked()
	case errors.Is(err, surface.ErrSceneLoading):
		// The timeout decides.
	default:
		o.forceFallbackLocked("scene.init_failed", err.Error(),
			"AR could not start, showing the 3D viewer instead.")
	}
}

func (o *Orchestrator) onTimeout(sid string) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.current(sid, StateAwaitingSceneReady) {
		return
	}
	o.forceFallbackLocked("scene.timeout", fmt.Sprintf("scene not ready after %s", o.cfg.SceneReadyTimeout),
		"AR is taking too long, showing the 3D viewer instead.")
}

// activateLocked enters active for the injected scene. An AR scene whose
// markers cannot be queried is replaced by the fallback viewer. Reported
// markers short of the scene's variants still activate AR with a warning.
func (o *Orchestrator) activateLocked() {
	if o.desc == nil || o.desc.Mode() == scene.ModeFallback {
		o.enterActiveLocked(scene.ModeFallback, "Camera not available, showing the 3D viewer.")
		return
	}

	markers, err := o.markers()
	if err == nil && len(markers) == 0 {
		err = errors.New("scene has no marker elements")
	}
	if err != nil {
		o.forceFallbackLocked("scene.init_failed", err.Error(),
			"AR could not start, showing the 3D viewer instead.")
		return
	}

	sid := o.status.SessionID
	ids := make([]string, 0, len(markers))
	for _, m := range markers {
		o.detach = append(o.detach,
			m.On(surface.MarkerFound, func(e surface.MarkerEvent) { o.onMarker(sid, e) }),
			m.On(surface.MarkerLost, func(e surface.MarkerEvent) { o.onMarker(sid, e) }),
		)
		ids = append(ids, m.ID())
	}
	o.emit("info", "marker.attached", "", map[string]interface{}{"markers": ids})
	if ar, ok := o.desc.(*scene.ARScene); ok {
		if missing := missingMarkers(ar.MarkerIDs(), ids); len(missing) > 0 {
			o.emit("warn", "marker.missing", "scene variants not reported by the client",
				map[string]interface{}{"missing": missing})
		}
	}
	o.enterActiveLocked(scene.ModeAR, "AR active: point your camera at a marker.")
}

func (o *Orchestrator) onMarker(sid string, e surface.MarkerEvent) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.current(sid, StateActive) || o.status.Mode != scene.ModeAR {
		return
	}

	fields := map[string]interface{}{"marker_id": e.MarkerID}
	if e.Type == surface.MarkerLost {
		o.emit("info", "marker.lost", "", fields)
		return
	}

	o.emit("info", "marker.found", "", fields)
	desc := fmt.Sprintf("Showing %s", o.spec.Label)
	if o.status.Subject != "" {
		desc += " for " + o.status.Subject
	}
	o.notifyLocked(Notification{
		Kind:        NotifyMarkerFound,
		Title:       "Marker detected",
		Description: desc,
	})
}

// forceFallbackLocked discards the current scene and enters active(fallback)
// with a freshly built viewer scene.
func (o *Orchestrator) forceFallbackLocked(event, cause, message string) {
	o.emit("warn", event, cause, nil)
	o.stopTimersLocked()
	o.detachLocked()
	o.surface.Clear()
	o.desc = nil

	fb := o.builder.BuildFallback(o.spec)
	if err := o.inject(fb); err != nil {
		o.failLocked("The 3D viewer could not be started.")
		return
	}
	o.desc = fb
	o.emit("info", "scene.injected", "", map[string]interface{}{"mode": string(scene.ModeFallback), "forced": true})
	o.enterActiveLocked(scene.ModeFallback, message)
}

func (o *Orchestrator) enterActiveLocked(mode scene.Mode, message string) {
	o.stopTimersLocked()
	o.setState(StateActive, mode, message)

	if mode == scene.ModeAR {
		o.emit("info", "mode.ar", "", nil)
		return
	}
	o.emit("info", "mode.fallback", message, nil)
	o.notifyLocked(Notification{
		Kind:        NotifyFallback,
		Title:       "3D viewer mode",
		Description: message,
	})
}

func (o *Orchestrator) failLocked(message string) {
	o.stopTimersLocked()
	o.detachLocked()
	o.setState(StateError, "", message)
}

func (o *Orchestrator) teardownLocked() {
	if o.cancel != nil {
		o.cancel()
		o.cancel = nil
	}
	o.stopTimersLocked()
	o.detachLocked()
	o.surface.Clear()
	o.desc = nil

	prev := o.status
	if prev.State != StateIdle {
		o.emit("info", "session.reset", "", map[string]interface{}{"from": string(prev.State)})
		o.emit("info", "scene.cleared", "", nil)
		o.setState(StateIdle, "", "")
	}
	o.status = Status{State: StateIdle, ModelKey: prev.ModelKey, Subject: prev.Subject}
}

// current reports whether sid is still the live session and in state s.
func (o *Orchestrator) current(sid string, s State) bool {
	return o.status.SessionID == sid && o.status.State == s
}

func (o *Orchestrator) setState(s State, mode scene.Mode, message string) {
	from := o.status.State
	o.status.State = s
	o.status.Mode = mode
	o.status.Message = message
	o.steps = append(o.steps, Step{State: s, Mode: mode})

	fields := map[string]interface{}{"from": string(from), "to": string(s)}
	if mode != "" {
		fields["mode"] = string(mode)
	}
	level := "info"
	if s == StateError {
		level = "error"
	}
	o.emit(level, "state.changed", message, fields)

	st := o.status
	for _, obs := range o.observers {
		obs.StateChanged(st)
	}
}

func (o *Orchestrator) notifyLocked(n Notification) {
	n.SessionID = o.status.SessionID
	o.emit("info", "notify.toast", n.Title, map[string]interface{}{
		"kind":        n.Kind,
		"title":       n.Title,
		"description": n.Description,
	})
	for _, obs := range o.observers {
		obs.Notify(n)
	}
}

func (o *Orchestrator) stopTimersLocked() {
	for _, t := range o.timers {
		t.Stop()
	}
	o.timers = nil
}

func (o *Orchestrator) detachLocked() {
	for _, off := range o.detach {
		off()
	}
	o.detach = nil
}

// inject hands desc to the surface, converting a panic into an error.
func (o *Orchestrator) inject(desc scene.Description) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("surface panic: %v", r)
		}
	}()
	return o.surface.Inject(desc)
}

func (o *Orchestrator) ready() (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("surface panic: %v", r)
		}
	}()
	o.surface.Ready()
	return nil
}

func (o *Orchestrator) markers() (ms []surface.Marker, err error) {
	defer func() {
		if r := recover(); r != nil {
			ms, err = nil, fmt.Errorf("surface panic: %v", r)
		}
	}()
	return o.surface.Markers()
}

// missingMarkers returns the ids in want that are absent from got.
func missingMarkers(want, got []string) []string {
	seen := make(map[string]bool, len(got))
	for _, id := range got {
		seen[id] = true
	}
	var out []string
	for _, id := range want {
		if !seen[id] {
			out = append(out, id)
		}
	}
	return out
}

func (o *Orchestrator) emit(level, name, msg string, fields map[string]interface{}) {
	if fields == nil {
		fields = make(map[string]interface{}, 2)
	}
	fields["session_id"] = o.status.SessionID
	fields["model"] = o.status.ModelKey
	events.Emit(level, name, msg, fields)
}
