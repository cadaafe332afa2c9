package services

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/ispanel/backend/internal/metrics"
	"github.com/ispanel/backend/internal/mikrotik"
	"github.com/ispanel/backend/internal/models"
	"github.com/ispanel/backend/internal/store"
)

// SyncResult summarises one reconciliation pass.
type SyncResult struct {
	Secrets   int `json:"secrets"`
	Online    int `json:"online"`
	Created   int `json:"created"`
	Updated   int `json:"updated"`
	Unchanged int `json:"unchanged"`
	// Failed counts secrets whose upsert hit a store error.
	Failed          int       `json:"failed"`
	RouterAvailable bool      `json:"router_available"`
	Warning         string    `json:"warning,omitempty"`
	StartedAt       time.Time `json:"started_at"`
}

// SubscriberSync mirrors router PPP secrets into the subscriber store.
type SubscriberSync struct {
	store  store.SubscriberStore
	router Router
	log    *zap.Logger
	now    func() time.Time
}

func NewSubscriberSync(st store.SubscriberStore, router Router, log *zap.Logger) *SubscriberSync {
	return &SubscriberSync{store: st, router: router, log: log, now: time.Now}
}

// SyncSubscribers upserts one subscriber per router secret, keyed by username.
//
// Existing subscribers get package, connection type, disabled and online
// refreshed; counters and credentials are left alone. A subscriber whose
// fields already match is not written, so a repeated pass with unchanged
// router state performs no writes. An unreachable router yields a result with
// a warning rather than an error. A missing configuration or a store failure
// is returned.
func (s *SubscriberSync) SyncSubscribers(ctx context.Context) (*SyncResult, error) {
	res := &SyncResult{StartedAt: s.now().UTC()}

	var secrets []mikrotik.Secret
	online := map[string]bool{}
	err := s.router.WithConnection(ctx, func(cmd mikrotik.Commands) error {
		var err error
		if secrets, err = cmd.ListSecrets(""); err != nil {
			return err
		}
		active, err := cmd.ListActive("")
		if err != nil {
			return err
		}
		for _, a := range active {
			online[a.Name] = true
		}
		return nil
	})
	switch {
	case errors.Is(err, mikrotik.ErrNotConfigured):
		metrics.SyncPassesTotal.WithLabelValues("error").Inc()
		return nil, err
	case mikrotik.IsUnavailable(err):
		metrics.SyncPassesTotal.WithLabelValues("router_unavailable").Inc()
		s.log.Warn("Sync: router unavailable, nothing synced", zap.Error(err))
		res.Warning = "router unavailable: " + err.Error()
		return res, nil
	case err != nil:
		metrics.SyncPassesTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	res.RouterAvailable = true
	res.Secrets = len(secrets)
	res.Online = len(online)
	now := s.now().UTC()

	for _, sec := range secrets {
		if sec.Name == "" {
			continue
		}
		if err := s.upsert(ctx, sec, online[sec.Name], now, res); err != nil {
			metrics.SyncPassesTotal.WithLabelValues("error").Inc()
			s.log.Error("Sync: store write failed", zap.String("username", sec.Name), zap.Error(err))
			return res, err
		}
	}

	metrics.SyncPassesTotal.WithLabelValues("ok").Inc()
	s.log.Info("Sync: pass complete",
		zap.Int("secrets", res.Secrets),
		zap.Int("created", res.Created),
		zap.Int("updated", res.Updated),
		zap.Int("unchanged", res.Unchanged))
	return res, nil
}

// RouterImportSalesperson marks subscribers that sync created from router
// secrets rather than the panel.
const RouterImportSalesperson = "mikrotik"

func (s *SubscriberSync) upsert(ctx context.Context, sec mikrotik.Secret, online bool, now time.Time, res *SyncResult) error {
	connection := sec.Service
	if connection == "" {
		connection = "pppoe"
	}

	existing, err := s.store.GetByUsername(ctx, sec.Name)
	if store.IsNotFound(err) {
		sub := &models.Subscriber{
			Username:       sec.Name,
			Name:           sec.Name,
			Password:       "",
			Package:        sec.Profile,
			ConnectionType: connection,
			Salesperson:    RouterImportSalesperson,
			Disabled:       sec.Disabled,
			Online:         online,
			LastSync:       &now,
		}
		if err := s.store.Create(ctx, sub); err != nil {
			res.Failed++
			return err
		}
		res.Created++
		metrics.SyncWritesTotal.WithLabelValues("created").Inc()
		return nil
	}
	if err != nil {
		res.Failed++
		return err
	}

	if existing.Package == sec.Profile &&
		existing.ConnectionType == connection &&
		existing.Disabled == sec.Disabled &&
		existing.Online == online {
		res.Unchanged++
		return nil
	}

	patch := &models.SubscriberPatch{
		Package:        &sec.Profile,
		ConnectionType: &connection,
		Disabled:       &sec.Disabled,
		Online:         &online,
		LastSync:       &now,
	}
	if _, err := s.store.Update(ctx, existing.ID, patch); err != nil {
		res.Failed++
		return err
	}
	res.Updated++
	metrics.SyncWritesTotal.WithLabelValues("updated").Inc()
	return nil
}
