package services

import (
	"context"

	"go.uber.org/zap"

	"github.com/ispanel/backend/internal/mikrotik"
	"github.com/ispanel/backend/internal/models"
	"github.com/ispanel/backend/internal/store"
)

// UserStats feeds the dashboard cards. Online is nil when the router could
// not be asked.
type UserStats struct {
	Total     int64                 `json:"total"`
	Active    int64                 `json:"active"`
	Disabled  int64                 `json:"disabled"`
	Online    *int                  `json:"online"`
	ByPackage []models.PackageCount `json:"by_package"`
	Warning   string                `json:"warning,omitempty"`
}

type DashboardService struct {
	store  store.SubscriberStore
	router Router
	log    *zap.Logger
}

func NewDashboardService(st store.SubscriberStore, router Router, log *zap.Logger) *DashboardService {
	return &DashboardService{store: st, router: router, log: log}
}

func (d *DashboardService) UserStats(ctx context.Context) (*UserStats, error) {
	stats := &UserStats{}
	var err error
	if stats.Total, err = d.store.Count(ctx, store.SubscriberFilter{}); err != nil {
		return nil, err
	}
	disabled := true
	if stats.Disabled, err = d.store.Count(ctx, store.SubscriberFilter{Disabled: &disabled}); err != nil {
		return nil, err
	}
	stats.Active = stats.Total - stats.Disabled
	if stats.ByPackage, err = d.store.GroupByPackage(ctx); err != nil {
		return nil, err
	}

	err = d.router.WithConnection(ctx, func(cmd mikrotik.Commands) error {
		active, err := cmd.ListActive("")
		if err != nil {
			return err
		}
		n := len(active)
		stats.Online = &n
		return nil
	})
	if err != nil {
		stats.Online = nil
		stats.Warning = "online count unavailable: " + err.Error()
		d.log.Warn("Dashboard: router unavailable", zap.Error(err))
	}
	return stats, nil
}
