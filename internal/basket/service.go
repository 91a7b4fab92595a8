package basket

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"

	pkgerrors "github.com/healthplusinnovation/storefront/pkg/errors"
	"github.com/healthplusinnovation/storefront/pkg/logger"
	"github.com/healthplusinnovation/storefront/pkg/metrics"
)

// lockIdleTTL bounds how long a session lock outlives its last command when store caching is off.
const lockIdleTTL = time.Minute

// Service hands out ready basket stores per browser session and serializes the commands of
// each session.
type Service interface {
	// Do runs fn against the ready store of sessionID while holding the session lock and
	// returns the basket as it stands once fn returns.
	Do(ctx context.Context, sessionID string, fn func(ctx context.Context, store *Store) error) (View, error)
	// View returns the current basket of sessionID.
	View(ctx context.Context, sessionID string) (View, error)
	// Ping checks the backing storage, when it is remote.
	Ping(ctx context.Context) error
	// Close stops the session cache.
	Close()
}

// ServiceOptions configures the session service.
type ServiceOptions struct {
	Storage    Storage
	StorageKey string
	// CacheTTL is how long an idle session keeps its restored store in memory. Zero reloads
	// the snapshot from storage on every command.
	CacheTTL time.Duration
	Logger   *logger.Logger
	Metrics  *metrics.BasketMetrics
}

type session struct {
	mu    sync.Mutex
	store *Store
}

type service struct {
	storage  Storage
	key      string
	cacheTTL time.Duration
	logg     *logger.Logger
	metrics  *metrics.BasketMetrics

	mu       sync.Mutex
	sessions *ttlcache.Cache[string, *session]
}

// NewService builds a basket session service backed by the provided storage.
func NewService(opts ServiceOptions) (Service, error) {
	if opts.Storage == nil {
		return nil, fmt.Errorf("basket storage required")
	}
	if opts.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	key := strings.TrimSpace(opts.StorageKey)
	if key == "" {
		key = DefaultStorageKey
	}
	ttl := opts.CacheTTL
	if ttl <= 0 {
		ttl = lockIdleTTL
	}
	sessions := ttlcache.New[string, *session](ttlcache.WithTTL[string, *session](ttl))
	go sessions.Start()

	return &service{
		storage:  opts.Storage,
		key:      key,
		cacheTTL: opts.CacheTTL,
		logg:     opts.Logger,
		metrics:  opts.Metrics,
		sessions: sessions,
	}, nil
}

func (s *service) session(sessionID string) *session {
	s.mu.Lock()
	defer s.mu.Unlock()
	if item := s.sessions.Get(sessionID); item != nil {
		return item.Value()
	}
	sess := &session{}
	s.sessions.Set(sessionID, sess, ttlcache.DefaultTTL)
	return sess
}

// ready returns the session's store, restoring it from storage when it is not cached.
// The caller holds sess.mu.
func (s *service) ready(ctx context.Context, sessionID string, sess *session) *Store {
	if sess.store != nil && s.cacheTTL > 0 {
		return sess.store
	}
	store := NewStore(StoreOptions{
		Scope:   sessionID,
		Key:     s.key,
		Storage: s.storage,
		Logger:  s.logg,
		Metrics: s.metrics,
	})
	store.Init(ctx)
	sess.store = store
	return store
}

func (s *service) Do(ctx context.Context, sessionID string, fn func(ctx context.Context, store *Store) error) (View, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return View{}, pkgerrors.New(pkgerrors.CodeValidation, "basket session is required")
	}
	ctx = s.logg.WithSessionID(ctx, sessionID)

	sess := s.session(sessionID)
	sess.mu.Lock()
	defer sess.mu.Unlock()

	store := s.ready(ctx, sessionID, sess)
	if fn != nil {
		if err := fn(ctx, store); err != nil {
			return store.Snapshot(), err
		}
	}
	return store.Snapshot(), nil
}

func (s *service) View(ctx context.Context, sessionID string) (View, error) {
	return s.Do(ctx, sessionID, nil)
}

func (s *service) Ping(ctx context.Context) error {
	if p, ok := s.storage.(Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

func (s *service) Close() {
	s.sessions.Stop()
}
