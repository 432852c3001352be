package export

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Codec names an optional encoding module loaded on first use.
type Codec string

const (
	CodecWorkbook    Codec = "workbook"
	CodecDocument    Codec = "document"
	CodecTableLayout Codec = "table-layout"
)

// CodecState is the load state of a codec.
type CodecState int

const (
	StateUnset CodecState = iota
	StateLoading
	StateLoaded
	StateUnavailable
)

func (s CodecState) String() string {
	switch s {
	case StateUnset:
		return "unset"
	case StateLoading:
		return "loading"
	case StateLoaded:
		return "loaded"
	case StateUnavailable:
		return "unavailable"
	}
	return fmt.Sprintf("CodecState(%d)", int(s))
}

// LoaderFunc loads a codec module and returns the handle encoders use.
type LoaderFunc func(ctx context.Context) (any, error)

type codecEntry struct {
	state  CodecState
	module any
	err    error
}

// CodecRegistry tracks which codecs are available.
//
// Each codec is loaded at most once: concurrent callers share the in-flight
// attempt, a successful module is cached, and a failure is remembered until
// Reset or SetLoader is called.
type CodecRegistry struct {
	mu      sync.RWMutex
	loaders map[Codec]LoaderFunc
	entries map[Codec]*codecEntry
	group   singleflight.Group
	logger  *slog.Logger
}

var (
	defaultRegistry     *CodecRegistry
	defaultRegistryOnce sync.Once
)

// Default returns the process-wide registry backed by DefaultLoaders.
func Default() *CodecRegistry {
	defaultRegistryOnce.Do(func() {
		defaultRegistry = NewCodecRegistry(DefaultLoaders())
	})
	return defaultRegistry
}

// NewCodecRegistry creates a registry with the given loaders.
func NewCodecRegistry(loaders map[Codec]LoaderFunc) *CodecRegistry {
	r := &CodecRegistry{
		loaders: make(map[Codec]LoaderFunc, len(loaders)),
		entries: make(map[Codec]*codecEntry),
		logger:  slog.Default(),
	}
	for c, fn := range loaders {
		r.loaders[c] = fn
	}
	return r
}

// WithLogger sets the logger used for load diagnostics.
func (r *CodecRegistry) WithLogger(logger *slog.Logger) *CodecRegistry {
	if logger != nil {
		r.logger = logger
	}
	return r
}

// SetLoader replaces the loader for a codec and forgets its cached state.
func (r *CodecRegistry) SetLoader(c Codec, fn LoaderFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.loaders[c] = fn
	delete(r.entries, c)
	r.group.Forget(string(c))
}

// Reset forgets every cached module and failure.
func (r *CodecRegistry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for c := range r.entries {
		r.group.Forget(string(c))
	}
	r.entries = make(map[Codec]*codecEntry)
}

// State reports the current state of a codec.
func (r *CodecRegistry) State(c Codec) CodecState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.entries[c]; ok {
		return e.state
	}
	return StateUnset
}

// States returns a snapshot of every known codec state.
func (r *CodecRegistry) States() map[Codec]CodecState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[Codec]CodecState, len(r.loaders))
	for c := range r.loaders {
		out[c] = StateUnset
	}
	for c, e := range r.entries {
		out[c] = e.state
	}
	return out
}

// Load returns the module for a codec, loading it on first use. A loader
// failure is returned as a *CodecError matching ErrCodecUnavailable and is
// remembered. A done ctx returns ctx.Err() and leaves the state untouched.
func (r *CodecRegistry) Load(ctx context.Context, c Codec) (any, error) {
	if module, done, err := r.cached(c); done {
		return module, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// The shared load outlives any one caller; callers waiting on it may
	// carry unrelated deadlines.
	loadCtx := context.WithoutCancel(ctx)
	v, err, _ := r.group.Do(string(c), func() (any, error) {
		// A concurrent call may have finished while we waited for the group.
		if module, done, err := r.cached(c); done {
			return module, err
		}

		r.mu.Lock()
		fn := r.loaders[c]
		r.entries[c] = &codecEntry{state: StateLoading}
		r.mu.Unlock()

		module, err := r.runLoader(loadCtx, c, fn)

		r.mu.Lock()
		defer r.mu.Unlock()
		if cerr := contextErr(err); cerr != nil {
			// A loader's own timeout says nothing about the codec; retry later.
			delete(r.entries, c)
			return nil, cerr
		}
		if err != nil {
			r.entries[c] = &codecEntry{state: StateUnavailable, err: err}
			r.logger.Warn("codec unavailable", "codec", string(c), "error", err)
			return nil, err
		}
		r.entries[c] = &codecEntry{state: StateLoaded, module: module}
		r.logger.Debug("codec loaded", "codec", string(c))
		return module, nil
	})
	return v, err
}

// MarkUnavailable records a codec as unavailable without loading it.
func (r *CodecRegistry) MarkUnavailable(c Codec, cause error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[c] = &codecEntry{state: StateUnavailable, err: &CodecError{Codec: c, Cause: cause}}
}

// contextErr returns the context sentinel wrapped in err, if any.
func contextErr(err error) error {
	for _, target := range []error{context.Canceled, context.DeadlineExceeded} {
		if errors.Is(err, target) {
			return target
		}
	}
	return nil
}

func (r *CodecRegistry) cached(c Codec) (any, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[c]
	if !ok {
		return nil, false, nil
	}
	switch e.state {
	case StateLoaded:
		return e.module, true, nil
	case StateUnavailable:
		return nil, true, e.err
	}
	return nil, false, nil
}

func (r *CodecRegistry) runLoader(ctx context.Context, c Codec, fn LoaderFunc) (module any, err error) {
	if fn == nil {
		return nil, &CodecError{Codec: c, Cause: errors.New("no loader registered")}
	}

	defer func() {
		if rec := recover(); rec != nil {
			module = nil
			err = &CodecError{Codec: c, Cause: fmt.Errorf("loader panic: %v", rec)}
		}
	}()

	module, err = fn(ctx)
	if err != nil {
		return nil, &CodecError{Codec: c, Cause: err}
	}
	if module == nil {
		return nil, &CodecError{Codec: c, Cause: errors.New("loader returned no module")}
	}
	return module, nil
}
