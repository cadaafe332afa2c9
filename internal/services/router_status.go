package services

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/ispanel/backend/internal/database"
	"github.com/ispanel/backend/internal/mikrotik"
)

// RouterStatus is the network page summary. Online false with Error set is
// a normal result, not a failure.
type RouterStatus struct {
	Online         bool                     `json:"online"`
	Configured     bool                     `json:"configured"`
	Resource       *mikrotik.SystemResource `json:"resource,omitempty"`
	RouterBoard    *mikrotik.RouterBoard    `json:"routerboard,omitempty"`
	ActiveSessions int                      `json:"active_sessions"`
	Error          string                   `json:"error,omitempty"`
	CheckedAt      time.Time                `json:"checked_at"`
	Cached         bool                     `json:"cached"`
}

// StatusCache is the subset of database.Cache RouterStatusService needs.
type StatusCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

type RouterStatusService struct {
	router Router
	cache  StatusCache
	ttl    time.Duration
	log    *zap.Logger
	now    func() time.Time
}

// NewRouterStatusService caches results for ttl when cache is non-nil and ttl > 0.
func NewRouterStatusService(router Router, cache StatusCache, ttl time.Duration, log *zap.Logger) *RouterStatusService {
	return &RouterStatusService{router: router, cache: cache, ttl: ttl, log: log, now: time.Now}
}

func (s *RouterStatusService) Status(ctx context.Context) *RouterStatus {
	if s.cache != nil && s.ttl > 0 {
		var cached RouterStatus
		if err := s.cache.Get(ctx, database.CacheKeyRouterStatus, &cached); err == nil {
			cached.Cached = true
			return &cached
		}
	}

	st := &RouterStatus{Configured: true, CheckedAt: s.now().UTC()}
	err := s.router.WithConnection(ctx, func(cmd mikrotik.Commands) error {
		res, err := cmd.SystemResource()
		if err != nil {
			return err
		}
		st.Resource = res
		if rb, err := cmd.RouterBoard(); err == nil {
			st.RouterBoard = rb
		} else {
			s.log.Debug("RouterStatus: routerboard unavailable", zap.Error(err))
		}
		active, err := cmd.ListActive("")
		if err != nil {
			return err
		}
		st.ActiveSessions = len(active)
		return nil
	})
	if err != nil {
		st.Online = false
		st.Configured = !mikrotik.IsNotConfigured(err)
		st.Resource = nil
		st.RouterBoard = nil
		st.Error = err.Error()
		s.log.Warn("RouterStatus: router offline", zap.Error(err))
		return st
	}
	st.Online = true

	if s.cache != nil && s.ttl > 0 {
		if err := s.cache.Set(ctx, database.CacheKeyRouterStatus, st, s.ttl); err != nil {
			s.log.Debug("RouterStatus: cache write failed", zap.Error(err))
		}
	}
	return st
}
