package services

import (
	"context"

	"go.uber.org/zap"

	"github.com/ispanel/backend/internal/database"
	"github.com/ispanel/backend/internal/models"
	"github.com/ispanel/backend/internal/store"
)

// SettingsView is the settings row as shown to admins. The router password is
// never returned.
type SettingsView struct {
	CompanyName       string `json:"company_name"`
	MikrotikHost      string `json:"mikrotik_host"`
	MikrotikUser      string `json:"mikrotik_user"`
	MikrotikTimeoutMs int    `json:"mikrotik_timeout_ms"`
	HasRouterPassword bool   `json:"has_router_password"`
	RouterConfigured  bool   `json:"router_configured"`
}

type UpdateSettingsInput struct {
	CompanyName  *string `json:"company_name" validate:"omitempty,max=255"`
	MikrotikHost *string `json:"mikrotik_host" validate:"omitempty,max=255"`
	MikrotikUser *string `json:"mikrotik_user" validate:"omitempty,max=100"`
	// MikrotikPassword nil keeps the stored password; "" clears it.
	MikrotikPassword  *string `json:"mikrotik_password" validate:"omitempty,max=255"`
	MikrotikTimeoutMs *int    `json:"mikrotik_timeout_ms" validate:"omitempty,gte=0,lte=120000"`
}

// CacheInvalidator drops cached router snapshots after credentials change.
type CacheInvalidator interface {
	Delete(ctx context.Context, keys ...string) error
}

// PasswordSealer encrypts the router password before it is stored.
type PasswordSealer interface {
	Seal(plaintext string) (string, error)
}

type SettingsService struct {
	store  store.SettingsStore
	cache  CacheInvalidator
	sealer PasswordSealer
	log    *zap.Logger
}

func NewSettingsService(st store.SettingsStore, cache CacheInvalidator, log *zap.Logger) *SettingsService {
	return &SettingsService{store: st, cache: cache, log: log}
}

// SetSealer stores new router passwords in sealed form.
func (s *SettingsService) SetSealer(sealer PasswordSealer) {
	s.sealer = sealer
}

func (s *SettingsService) Get(ctx context.Context) (*SettingsView, error) {
	st, err := s.store.GetSettings(ctx)
	if store.IsNotFound(err) {
		return &SettingsView{}, nil
	}
	if err != nil {
		return nil, err
	}
	return settingsView(st), nil
}

// Update applies the non-nil fields to the newest settings row, creating it
// when none exists. The next router connection picks the change up.
func (s *SettingsService) Update(ctx context.Context, in UpdateSettingsInput) (*SettingsView, error) {
	if err := validateStruct(in); err != nil {
		return nil, err
	}
	st, err := s.store.GetSettings(ctx)
	if store.IsNotFound(err) {
		st = &models.Setting{}
	} else if err != nil {
		return nil, err
	}

	routerChanged := false
	if in.CompanyName != nil {
		st.CompanyName = *in.CompanyName
	}
	if in.MikrotikHost != nil {
		st.MikrotikHost = *in.MikrotikHost
		routerChanged = true
	}
	if in.MikrotikUser != nil {
		st.MikrotikUser = *in.MikrotikUser
		routerChanged = true
	}
	if in.MikrotikPassword != nil {
		password := *in.MikrotikPassword
		if s.sealer != nil {
			if password, err = s.sealer.Seal(password); err != nil {
				return nil, err
			}
		}
		st.MikrotikPassword = password
		routerChanged = true
	}
	if in.MikrotikTimeoutMs != nil {
		st.MikrotikTimeoutMs = *in.MikrotikTimeoutMs
	}

	if err := s.store.SaveSettings(ctx, st); err != nil {
		return nil, err
	}
	if routerChanged && s.cache != nil {
		if err := s.cache.Delete(ctx, database.CacheKeyRouterStatus); err != nil {
			s.log.Warn("Settings: failed to drop cached router status", zap.Error(err))
		}
	}
	s.log.Info("Settings: updated", zap.Bool("router_changed", routerChanged))
	return settingsView(st), nil
}

func settingsView(st *models.Setting) *SettingsView {
	return &SettingsView{
		CompanyName:       st.CompanyName,
		MikrotikHost:      st.MikrotikHost,
		MikrotikUser:      st.MikrotikUser,
		MikrotikTimeoutMs: st.MikrotikTimeoutMs,
		HasRouterPassword: st.MikrotikPassword != "",
		RouterConfigured:  st.HasRouter(),
	}
}
