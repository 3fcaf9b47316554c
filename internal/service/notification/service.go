package notification

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"

	"github.com/jwalitptl/travel-notifications/internal/model"
	"github.com/jwalitptl/travel-notifications/internal/viewmodel"
	"github.com/jwalitptl/travel-notifications/pkg/logger"
	"github.com/jwalitptl/travel-notifications/pkg/metrics"
)

const (
	defaultSessionTTL  = 30 * time.Minute
	defaultCleanup     = 5 * time.Minute
	defaultToastBuffer = 20
)

type Config struct {
	SessionTTL     time.Duration
	SessionCleanup time.Duration
	ToastBuffer    int
}

// Session is one viewer's live feed plus the toasts it has raised.
type Session struct {
	Viewer model.Viewer
	Feed   *viewmodel.ViewModel
	Toasts *ToastQueue
}

// Service keeps a view model per signed-in viewer. Idle sessions expire and
// are closed, which cancels their subscriptions.
type Service interface {
	Session(ctx context.Context, viewer model.Viewer) (*Session, error)
	End(viewerID uuid.UUID)
	Active() int
	Close()
}

type service struct {
	deps    viewmodel.Deps
	opts    viewmodel.Options
	cfg     Config
	logger  *logger.Logger
	metrics *metrics.Metrics

	// mu guards sessions and starting. Session start-up runs outside it, and
	// starting gates concurrent first requests for the same viewer.
	mu       sync.Mutex
	sessions *cache.Cache
	starting map[string]*pendingSession
}

type pendingSession struct {
	done chan struct{}
	sess *Session
	err  error
}

// NewService builds sessions from deps; Identity and Toaster are filled in per
// viewer.
func NewService(deps viewmodel.Deps, opts viewmodel.Options, cfg Config) Service {
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = defaultSessionTTL
	}
	if cfg.SessionCleanup <= 0 {
		cfg.SessionCleanup = defaultCleanup
	}
	if cfg.ToastBuffer <= 0 {
		cfg.ToastBuffer = defaultToastBuffer
	}
	if deps.Logger == nil {
		deps.Logger = logger.Nop()
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.New("notifications")
	}

	s := &service{
		deps:     deps,
		opts:     opts,
		cfg:      cfg,
		logger:   deps.Logger,
		metrics:  deps.Metrics,
		sessions: cache.New(cfg.SessionTTL, cfg.SessionCleanup),
		starting: make(map[string]*pendingSession),
	}
	s.sessions.OnEvicted(s.evicted)
	return s
}

func (s *service) Session(ctx context.Context, viewer model.Viewer) (*Session, error) {
	key := viewer.ID.String()

	s.mu.Lock()
	if v, ok := s.sessions.Get(key); ok {
		// Touch to push the expiry back.
		s.sessions.SetDefault(key, v)
		s.mu.Unlock()
		return v.(*Session), nil
	}
	if p, ok := s.starting[key]; ok {
		s.mu.Unlock()
		select {
		case <-p.done:
			return p.sess, p.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	p := &pendingSession{done: make(chan struct{})}
	s.starting[key] = p
	// An expired entry the janitor has not reached yet still holds live
	// subscriptions; evicting it closes them before the replacement starts.
	s.sessions.Delete(key)
	s.mu.Unlock()

	p.sess, p.err = s.start(ctx, viewer)

	s.mu.Lock()
	if p.err == nil {
		s.sessions.SetDefault(key, p.sess)
		s.metrics.ActiveSessions.Inc()
	}
	delete(s.starting, key)
	s.mu.Unlock()
	close(p.done)

	if p.err != nil {
		return nil, p.err
	}
	s.logger.Debug("notification session started", "viewer_id", key)
	return p.sess, nil
}

func (s *service) start(ctx context.Context, viewer model.Viewer) (*Session, error) {
	sess := &Session{Viewer: viewer, Toasts: NewToastQueue(s.cfg.ToastBuffer)}
	deps := s.deps
	deps.Identity = viewmodel.StaticIdentity{Current: &sess.Viewer}
	deps.Toaster = sess.Toasts
	sess.Feed = viewmodel.New(deps, s.opts)

	if err := sess.Feed.Start(ctx); err != nil {
		sess.Feed.Close()
		return nil, fmt.Errorf("failed to start notification session: %w", err)
	}
	return sess, nil
}

// End closes the viewer's session, if any.
func (s *service) End(viewerID uuid.UUID) {
	s.sessions.Delete(viewerID.String())
}

func (s *service) Active() int {
	return s.sessions.ItemCount()
}

// Close ends every session.
func (s *service) Close() {
	s.sessions.DeleteExpired()
	for key := range s.sessions.Items() {
		s.sessions.Delete(key)
	}
}

func (s *service) evicted(key string, v interface{}) {
	sess, ok := v.(*Session)
	if !ok {
		return
	}
	sess.Feed.Close()
	s.metrics.ActiveSessions.Dec()
	s.logger.Debug("notification session closed", "viewer_id", key)
}
