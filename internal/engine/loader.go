// Package engine loads the external rendering engine asset once per process.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// DefaultLoadTimeout bounds a single fetch-and-verify attempt.
const DefaultLoadTimeout = 30 * time.Second

var (
	// ErrLoadFailure matches any fetch or verification failure.
	ErrLoadFailure = errors.New("engine load failed")
	// ErrLoadTimeout is returned when the load exceeds its timeout.
	ErrLoadTimeout = errors.New("engine load timed out")
)

// LoadError wraps the underlying cause of a failed load.
type LoadError struct {
	Engine string
	Err    error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("engine %s: load failed: %v", e.Engine, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrLoadFailure) match any LoadError.
func (e *LoadError) Is(target error) bool { return target == ErrLoadFailure }

// Source pins the engine asset to fetch.
type Source struct {
	Name    string
	Version string
	URL     string
	SHA256  string // hex digest; empty skips the integrity check
}

// ID is the engine identity used to key loads.
func (s Source) ID() string {
	return s.Name + "@" + s.Version
}

// Fetcher retrieves and verifies the engine asset.
type Fetcher interface {
	Fetch(ctx context.Context, src Source) ([]byte, error)
}

// Loader ensures the engine is present, fetching it at most once at a time.
type Loader struct {
	src     Source
	fetcher Fetcher
	timeout time.Duration

	group singleflight.Group

	mu     sync.RWMutex
	ready  bool
	asset  []byte
	loaded time.Time
}

// NewLoader creates a loader for src.
func NewLoader(src Source, fetcher Fetcher) *Loader {
	return &Loader{
		src:     src,
		fetcher: fetcher,
		timeout: DefaultLoadTimeout,
	}
}

// SetTimeout overrides the per-attempt load timeout.
func (l *Loader) SetTimeout(d time.Duration) {
	if d > 0 {
		l.timeout = d
	}
}

// Source returns the pinned engine source.
func (l *Loader) Source() Source {
	return l.src
}

// Ready reports whether the engine has been loaded in this process.
func (l *Loader) Ready() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.ready
}

// Asset returns the loaded engine bytes, or nil before the first success.
func (l *Loader) Asset() []byte {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.asset
}

// LoadedAt returns when the engine became ready.
func (l *Loader) LoadedAt() time.Time {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.loaded
}

// EnsureLoaded resolves once the engine is usable.
// Concurrent callers share one in-flight fetch. The fetch runs under the
// loader's own timeout, so a caller giving up does not fail the others.
// Failures are not cached; the next call retries.
func (l *Loader) EnsureLoaded(ctx context.Context) error {
	if l.Ready() {
		return nil
	}

	ch := l.group.DoChan(l.src.ID(), func() (interface{}, error) {
		// Another flight may have finished between Ready and DoChan.
		if l.Ready() {
			return nil, nil
		}
		return nil, l.load()
	})

	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *Loader) load() error {
	ctx, cancel := context.WithTimeout(context.Background(), l.timeout)
	defer cancel()

	asset, err := l.fetcher.Fetch(ctx, l.src)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || ctx.Err() == context.DeadlineExceeded {
			return fmt.Errorf("engine %s: %w after %s", l.src.ID(), ErrLoadTimeout, l.timeout)
		}
		return &LoadError{Engine: l.src.ID(), Err: err}
	}

	l.mu.Lock()
	l.ready = true
	l.asset = asset
	l.loaded = time.Now()
	l.mu.Unlock()
	return nil
}
