// Package sessions maintains the server-side registry of browser sessions.
// Each session pairs a shared state record with its own backend client, so
// credentials never leak across visitors.
package sessions

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/portalkit/auth-portal/internal/api/metrics"
	"github.com/portalkit/auth-portal/internal/core/domain"
	"github.com/portalkit/auth-portal/internal/core/ports"
	"github.com/portalkit/auth-portal/internal/core/service"
)

const (
	defaultTTL = 30 * time.Minute
)

// Client is the per-session backend client the registry provisions: identity
// operations plus credential snapshot/restore for persistence.
type Client interface {
	ports.IdentityProvider
	TokenSnapshot() (access, refresh string)
	RestoreTokens(access, refresh string)
	// TokenExpiry returns the held access token's expiry when one is
	// decodable; display only.
	TokenExpiry() (time.Time, bool)
}

// ClientFactory builds a fresh backend client for a new browser session.
type ClientFactory func() (Client, error)

// Snapshot is the persisted credential record for one session.
type Snapshot struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

// SnapshotStore persists session credentials so a restarted or scaled-out
// portal can rebuild a session from its cookie. Identity is never persisted;
// a rebuilt session re-fetches it from the backend.
type SnapshotStore interface {
	Save(ctx context.Context, id string, snap Snapshot) error
	Load(ctx context.Context, id string) (Snapshot, bool, error)
	Delete(ctx context.Context, id string) error
}

// Handle bundles everything one browser session owns.
type Handle struct {
	ID    string
	State *domain.Session
	Auth  *service.SessionService
	API   Client
}

type entry struct {
	handle   *Handle
	lastSeen time.Time
}

// Options configures a Registry.
type Options struct {
	// TTL is how long an idle session survives before eviction.
	TTL time.Duration
	// Snapshots enables credential persistence when non-nil.
	Snapshots SnapshotStore
	Log       zerolog.Logger
}

// Registry maps browser cookies to session handles.
type Registry struct {
	mu      sync.Mutex
	handles map[string]*entry
	factory ClientFactory
	store   SnapshotStore
	ttl     time.Duration
	log     zerolog.Logger
}

func NewRegistry(factory ClientFactory, opts Options) *Registry {
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Registry{
		handles: make(map[string]*entry),
		factory: factory,
		store:   opts.Snapshots,
		ttl:     ttl,
		log:     opts.Log,
	}
}

// Start launches the idle-session sweeper. It stops when ctx is cancelled.
func (r *Registry) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(r.ttl / 2)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				if n := r.evictIdle(now); n > 0 {
					r.log.Debug().Int("evicted", n).Msg("idle sessions swept")
				}
			}
		}
	}()
}

// Create provisions a handle for a new visitor. The session starts in the
// loading state and its initial identity fetch runs in the background.
func (r *Registry) Create(ctx context.Context) (*Handle, error) {
	return r.spawn(ctx, uuid.NewString(), "", "")
}

// Resolve returns the handle for a known session id. A miss on the in-memory
// map falls back to the snapshot store, rebuilding the session from its
// persisted credentials. Returns nil when the id is unknown everywhere.
func (r *Registry) Resolve(ctx context.Context, id string) *Handle {
	r.mu.Lock()
	if e, ok := r.handles[id]; ok {
		e.lastSeen = time.Now()
		r.mu.Unlock()
		return e.handle
	}
	r.mu.Unlock()

	if r.store == nil {
		return nil
	}
	snap, ok, err := r.store.Load(ctx, id)
	if err != nil {
		r.log.Warn().Err(err).Str("session_id", id).Msg("snapshot load failed")
		return nil
	}
	if !ok {
		return nil
	}

	h, err := r.spawn(ctx, id, snap.Access, snap.Refresh)
	if err != nil {
		return nil
	}
	return h
}

// Persist writes the session's current credentials to the snapshot store.
// Sessions without credentials are deleted rather than stored.
func (r *Registry) Persist(ctx context.Context, h *Handle) {
	if r.store == nil || h == nil {
		return
	}
	access, refresh := h.API.TokenSnapshot()
	if access == "" && refresh == "" {
		if err := r.store.Delete(ctx, h.ID); err != nil {
			r.log.Warn().Err(err).Str("session_id", h.ID).Msg("snapshot delete failed")
		}
		return
	}
	if err := r.store.Save(ctx, h.ID, Snapshot{Access: access, Refresh: refresh}); err != nil {
		r.log.Warn().Err(err).Str("session_id", h.ID).Msg("snapshot save failed")
	}
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.handles)
}

func (r *Registry) spawn(ctx context.Context, id, access, refresh string) (*Handle, error) {
	client, err := r.factory()
	if err != nil {
		return nil, err
	}
	if access != "" || refresh != "" {
		client.RestoreTokens(access, refresh)
	}

	state := domain.NewSession()
	h := &Handle{
		ID:    id,
		State: state,
		API:   client,
		Auth:  service.NewSessionService(client, state, r.log.With().Str("session_id", id).Logger()),
	}

	r.mu.Lock()
	r.handles[id] = &entry{handle: h, lastSeen: time.Now()}
	r.mu.Unlock()
	metrics.ActiveSessions.Inc()

	// The identity fetch outlives the request that created the session.
	go h.Auth.Bootstrap(context.WithoutCancel(ctx))

	return h, nil
}

func (r *Registry) evictIdle(now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	evicted := 0
	for id, e := range r.handles {
		if now.Sub(e.lastSeen) > r.ttl {
			delete(r.handles, id)
			evicted++
		}
	}
	metrics.ActiveSessions.Sub(float64(evicted))
	return evicted
}
