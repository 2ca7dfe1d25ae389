// Package sources is the Source Registry: the configured set of LogSources
// (file directories, syslog listeners, HTTP intake endpoints), persisted to
// data/sources.json and responsible for starting/stopping the concrete
// internal/scanner and internal/listener instances backing each one.
package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/ozkanpakdil/grepwise-sub005/internal/buffer"
	"github.com/ozkanpakdil/grepwise-sub005/internal/errors"
	"github.com/ozkanpakdil/grepwise-sub005/internal/listener"
	"github.com/ozkanpakdil/grepwise-sub005/internal/logging"
	"github.com/ozkanpakdil/grepwise-sub005/internal/metrics"
	"github.com/ozkanpakdil/grepwise-sub005/internal/record"
	"github.com/ozkanpakdil/grepwise-sub005/internal/scanner"
)

// Kind is a LogSource's ingestion mechanism.
type Kind string

const (
	KindFile   Kind = "FILE"
	KindSyslog Kind = "SYSLOG"
	KindHTTP   Kind = "HTTP"
)

// LogSource is one configured ingestion source.
type LogSource struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Kind    Kind   `json:"kind"`
	Enabled bool   `json:"enabled"`

	// FILE
	Directory string `json:"directory,omitempty"`
	Glob      string `json:"glob,omitempty"`
	Recursive bool   `json:"recursive,omitempty"`

	// SYSLOG
	Port     int    `json:"port,omitempty"`
	Proto    string `json:"proto,omitempty"` // TCP or UDP
	Format   string `json:"format,omitempty"` // RFC5424 or RFC3164

	// HTTP
	RequireAuth bool   `json:"requireAuth,omitempty"`
	Token       string `json:"token,omitempty"`
}

// running holds the live scanner/listener for a started source, if any.
type running struct {
	scanner *scanner.Scanner
	udp     *listener.UDPListener
	tcp     *listener.TCPListener
}

// Registry owns the configured LogSources and their running ingestion
// components. File sources get their own scanner; syslog sources get their
// own UDP or TCP listener bound to the configured port; HTTP sources have no
// dedicated listener of their own, they are served by the intake routes
// mounted on the main API router (see internal/httpapi), which consults
// Registry.Auth for the token check.
type Registry struct {
	mu      sync.RWMutex
	sources map[string]*LogSource
	live    map[string]*running

	path string // persisted snapshot path, "" disables persistence

	buf     *buffer.Buffer
	log     *logging.Logger
	metrics *metrics.Metrics
}

// New creates a Registry. path, if non-empty, is the JSON snapshot file
// (data/sources.json) that Save/Load operate on.
func New(buf *buffer.Buffer, log *logging.Logger, m *metrics.Metrics, path string) *Registry {
	return &Registry{
		sources: make(map[string]*LogSource),
		live:    make(map[string]*running),
		path:    path,
		buf:     buf,
		log:     log,
		metrics: m,
	}
}

// Load reads the persisted snapshot, if present, replacing the in-memory
// configuration. It does not start any sources; call StartAll afterward.
func (r *Registry) Load() error {
	if r.path == "" {
		return nil
	}
	raw, err := os.ReadFile(r.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return errors.StorageError("sources.load", err)
	}
	var list []*LogSource
	if err := json.Unmarshal(raw, &list); err != nil {
		return errors.Internal("unmarshal sources snapshot", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sources = make(map[string]*LogSource, len(list))
	for _, s := range list {
		r.sources[s.ID] = s
	}
	return nil
}

// save atomically writes the current configuration (temp file + rename).
func (r *Registry) save() error {
	if r.path == "" {
		return nil
	}
	r.mu.RLock()
	list := make([]*LogSource, 0, len(r.sources))
	for _, s := range r.sources {
		list = append(list, s)
	}
	r.mu.RUnlock()

	raw, err := json.MarshalIndent(list, "", "  ")
	if err != nil {
		return errors.Internal("marshal sources snapshot", err)
	}
	if err := os.MkdirAll(filepath.Dir(r.path), 0o755); err != nil {
		return errors.StorageError("sources.save.mkdir", err)
	}
	tmp := r.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return errors.StorageError("sources.save.write", err)
	}
	return os.Rename(tmp, r.path)
}

// List returns every configured source.
func (r *Registry) List() []*LogSource {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*LogSource, 0, len(r.sources))
	for _, s := range r.sources {
		cp := *s
		out = append(out, &cp)
	}
	return out
}

// Get returns one source by id.
func (r *Registry) Get(id string) (*LogSource, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sources[id]
	if !ok {
		return nil, false
	}
	cp := *s
	return &cp, true
}

// Create registers a new source and, if s.Enabled, starts it.
func (r *Registry) Create(ctx context.Context, s LogSource) (*LogSource, error) {
	if s.ID == "" {
		s.ID = record.NewID()
	}
	r.mu.Lock()
	if _, exists := r.sources[s.ID]; exists {
		r.mu.Unlock()
		return nil, errors.AlreadyExists("source", s.ID)
	}
	cp := s
	r.sources[s.ID] = &cp
	r.mu.Unlock()

	if err := r.save(); err != nil {
		return nil, err
	}
	if s.Enabled {
		if err := r.Start(ctx, s.ID); err != nil {
			return nil, err
		}
	}
	out := s
	return &out, nil
}

// Delete stops (if running) and removes a source.
func (r *Registry) Delete(ctx context.Context, id string) error {
	_ = r.Stop(ctx, id)

	r.mu.Lock()
	_, ok := r.sources[id]
	delete(r.sources, id)
	r.mu.Unlock()
	if !ok {
		return errors.NotFound("source", id)
	}
	return r.save()
}

// Auth resolves the intake auth requirement for a source, used as the
// listener.SourceAuthLookup backing the main router's HTTP intake routes.
func (r *Registry) Auth(sourceID string) listener.SourceAuth {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sources[sourceID]
	if !ok {
		return listener.SourceAuth{RequireAuth: true, Token: ""}
	}
	return listener.SourceAuth{RequireAuth: s.RequireAuth, Token: s.Token}
}

// Start brings up the scanner or listener backing a configured source. HTTP
// sources have nothing to start; their traffic flows through the main API
// router.
func (r *Registry) Start(ctx context.Context, id string) error {
	r.mu.Lock()
	s, ok := r.sources[id]
	if !ok {
		r.mu.Unlock()
		return errors.NotFound("source", id)
	}
	if _, already := r.live[id]; already {
		r.mu.Unlock()
		return nil
	}
	cp := *s
	r.mu.Unlock()

	switch cp.Kind {
	case KindFile:
		sc := scanner.New(scanner.Config{
			Sources:    []scanner.Source{{Dir: cp.Directory, Glob: cp.Glob, Recursive: cp.Recursive}},
			ScanPeriod: scanner.DefaultConfig().ScanPeriod,
		}, r.buf, r.log)
		if err := sc.Load(); err != nil {
			return err
		}
		go sc.Run(ctx)
		r.mu.Lock()
		r.live[id] = &running{scanner: sc}
		r.mu.Unlock()

	case KindSyslog:
		switch cp.Proto {
		case "UDP":
			l := listener.NewUDPListener(listener.UDPConfig{
				Addr: fmt.Sprintf(":%d", cp.Port), SourceID: cp.ID,
			}, r.buf, r.log, r.metrics)
			if err := l.Start(ctx); err != nil {
				return err
			}
			r.mu.Lock()
			r.live[id] = &running{udp: l}
			r.mu.Unlock()
		case "TCP":
			l := listener.NewTCPListener(listener.TCPConfig{
				Addr: fmt.Sprintf(":%d", cp.Port), SourceID: cp.ID,
			}, r.buf, r.log, r.metrics)
			if err := l.Start(ctx); err != nil {
				return err
			}
			r.mu.Lock()
			r.live[id] = &running{tcp: l}
			r.mu.Unlock()
		default:
			return errors.InvalidInput("proto", "must be TCP or UDP")
		}

	case KindHTTP:
		r.mu.Lock()
		r.live[id] = &running{}
		r.mu.Unlock()

	default:
		return errors.InvalidInput("kind", "must be FILE, SYSLOG, or HTTP")
	}

	r.mu.Lock()
	s.Enabled = true
	r.mu.Unlock()
	return r.save()
}

// Stop tears down the running scanner/listener for a source, if any.
func (r *Registry) Stop(ctx context.Context, id string) error {
	r.mu.Lock()
	run, ok := r.live[id]
	delete(r.live, id)
	s := r.sources[id]
	if s != nil {
		s.Enabled = false
	}
	r.mu.Unlock()
	if !ok || run == nil {
		return nil
	}

	var err error
	switch {
	case run.udp != nil:
		err = run.udp.Stop(ctx)
	case run.tcp != nil:
		err = run.tcp.Stop(ctx)
	}
	if err != nil {
		return err
	}
	return r.save()
}

// StartAll starts every enabled source, used on process startup after Load.
func (r *Registry) StartAll(ctx context.Context) error {
	for _, s := range r.List() {
		if !s.Enabled {
			continue
		}
		if err := r.Start(ctx, s.ID); err != nil {
			return err
		}
	}
	return nil
}

// StopAll tears down every running source, used on graceful shutdown.
func (r *Registry) StopAll(ctx context.Context) {
	for id := range r.live {
		_ = r.Stop(ctx, id)
	}
}
