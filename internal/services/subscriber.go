package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/ispanel/backend/internal/mikrotik"
	"github.com/ispanel/backend/internal/models"
	"github.com/ispanel/backend/internal/store"
)

// RenewPolicy controls renew: how far the expiry moves and how long to wait
// for the router to drop the old session.
type RenewPolicy struct {
	Period       time.Duration
	PollAttempts int
	PollDelay    time.Duration
}

// DefaultRenewPolicy is 30 days with six checks half a second apart.
var DefaultRenewPolicy = RenewPolicy{
	Period:       30 * 24 * time.Hour,
	PollAttempts: 6,
	PollDelay:    500 * time.Millisecond,
}

// Result is returned by every transition: the store record as it is now and,
// when the router could not be brought in line, a warning.
type Result struct {
	Subscriber *models.Subscriber `json:"subscriber,omitempty"`
	Warning    string             `json:"warning,omitempty"`
}

type CreateSubscriberInput struct {
	Username       string           `json:"username" validate:"required,max=100,routeros_name"`
	Password       string           `json:"password" validate:"required,max=255"`
	Name           string           `json:"name" validate:"max=255"`
	Mobile         string           `json:"mobile" validate:"max=50"`
	Email          string           `json:"email" validate:"omitempty,email,max=255"`
	Address        string           `json:"address" validate:"max=500"`
	Salesperson    string           `json:"salesperson" validate:"max=100"`
	Package        string           `json:"package" validate:"max=100"`
	PackagePrice   *decimal.Decimal `json:"package_price"`
	ConnectionType string           `json:"connection_type" validate:"omitempty,oneof=pppoe hotspot static"`
	ExpiryDate     *time.Time       `json:"expiry_date"`
	DataLimitGB    *float64         `json:"data_limit_gb" validate:"omitempty,gte=0,lte=1000000"`
}

type UpdateSubscriberInput struct {
	Password       *string          `json:"password" validate:"omitempty,min=1,max=255"`
	Name           *string          `json:"name" validate:"omitempty,max=255"`
	Mobile         *string          `json:"mobile" validate:"omitempty,max=50"`
	Email          *string          `json:"email" validate:"omitempty,email,max=255"`
	Address        *string          `json:"address" validate:"omitempty,max=500"`
	Salesperson    *string          `json:"salesperson" validate:"omitempty,max=100"`
	Package        *string          `json:"package" validate:"omitempty,max=100"`
	PackagePrice   *decimal.Decimal `json:"package_price"`
	ConnectionType *string          `json:"connection_type" validate:"omitempty,oneof=pppoe hotspot static"`
	ExpiryDate     *time.Time       `json:"expiry_date"`
	ClearExpiry    bool             `json:"clear_expiry"`
	// DataLimitGB 0 removes the limit.
	DataLimitGB *float64 `json:"data_limit_gb" validate:"omitempty,gte=0,lte=1000000"`
}

// GBToBytes converts a quota entered in GB (1024^3 bytes).
func GBToBytes(gb float64) uint64 {
	return uint64(math.Floor(gb * float64(models.GB)))
}

// SubscriberService applies administrator actions: the store first, then a
// best-effort mirror on the router.
type SubscriberService struct {
	store  store.SubscriberStore
	router Router
	usage  *UsageTracker
	policy RenewPolicy
	log    *zap.Logger
	now    func() time.Time
	sleep  func(ctx context.Context, d time.Duration) error
}

func NewSubscriberService(st store.SubscriberStore, router Router, usage *UsageTracker, policy RenewPolicy, log *zap.Logger) *SubscriberService {
	if policy.Period <= 0 {
		policy.Period = DefaultRenewPolicy.Period
	}
	if policy.PollAttempts < 0 {
		policy.PollAttempts = 0
	}
	return &SubscriberService{
		store:  st,
		router: router,
		usage:  usage,
		policy: policy,
		log:    log,
		now:    time.Now,
		sleep:  sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func validID(id uint) error {
	if id == 0 {
		return &ValidationError{Field: "id", Message: "invalid id"}
	}
	return nil
}

// SubscriberDetail is a subscriber with its live router view.
type SubscriberDetail struct {
	Subscriber *models.Subscriber `json:"subscriber"`
	Metrics    *LiveMetrics       `json:"metrics"`
}

// Get returns the subscriber and its live metrics, recording any new usage.
func (s *SubscriberService) Get(ctx context.Context, id uint) (*SubscriberDetail, error) {
	if err := validID(id); err != nil {
		return nil, err
	}
	sub, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	m, err := s.usage.GetLiveMetrics(ctx, sub)
	if err != nil {
		return nil, err
	}
	if fresh, err := s.store.Get(ctx, id); err == nil {
		sub = fresh
	}
	return &SubscriberDetail{Subscriber: sub, Metrics: m}, nil
}

func (s *SubscriberService) Create(ctx context.Context, in CreateSubscriberInput) (*Result, error) {
	if err := validateStruct(in); err != nil {
		return nil, err
	}
	connection := in.ConnectionType
	if connection == "" {
		connection = "pppoe"
	}
	sub := &models.Subscriber{
		Username:       in.Username,
		Password:       in.Password,
		Name:           in.Name,
		Mobile:         in.Mobile,
		Email:          in.Email,
		Address:        in.Address,
		Salesperson:    in.Salesperson,
		Package:        in.Package,
		PackagePrice:   in.PackagePrice,
		ConnectionType: connection,
		ExpiryDate:     in.ExpiryDate,
	}
	if in.Name == "" {
		sub.Name = in.Username
	}
	if in.DataLimitGB != nil {
		sub.DataLimitBytes = GBToBytes(*in.DataLimitGB)
	}
	if err := s.store.Create(ctx, sub); err != nil {
		return nil, err
	}

	res := &Result{Subscriber: sub}
	err := s.router.WithConnection(ctx, func(cmd mikrotik.Commands) error {
		return cmd.AddSecret(mikrotik.SecretSpec{
			Name:     sub.Username,
			Password: sub.Password,
			Service:  connection,
			Profile:  sub.Package,
		})
	})
	if err != nil {
		res.Warning = routerWarning("add secret", err)
		s.log.Warn("Subscribers: secret not added on router", zap.String("username", sub.Username), zap.Error(err))
	}
	return res, nil
}

func (s *SubscriberService) Update(ctx context.Context, id uint, in UpdateSubscriberInput) (*Result, error) {
	if err := validID(id); err != nil {
		return nil, err
	}
	if err := validateStruct(in); err != nil {
		return nil, err
	}
	patch := &models.SubscriberPatch{
		Password:       in.Password,
		Name:           in.Name,
		Mobile:         in.Mobile,
		Email:          in.Email,
		Address:        in.Address,
		Salesperson:    in.Salesperson,
		Package:        in.Package,
		PackagePrice:   in.PackagePrice,
		ConnectionType: in.ConnectionType,
		ExpiryDate:     in.ExpiryDate,
		ClearExpiry:    in.ClearExpiry,
	}
	if in.DataLimitGB != nil {
		limit := GBToBytes(*in.DataLimitGB)
		patch.DataLimitBytes = &limit
	}
	sub, err := s.store.Update(ctx, id, patch)
	if err != nil {
		return nil, err
	}

	res := &Result{Subscriber: sub}
	fields := map[string]string{}
	if in.Password != nil {
		fields["password"] = *in.Password
	}
	if in.Package != nil && *in.Package != "" {
		fields["profile"] = *in.Package
	}
	if len(fields) == 0 {
		return res, nil
	}
	err = s.router.WithConnection(ctx, func(cmd mikrotik.Commands) error {
		_, err := mikrotik.SetSecretByName(cmd, sub.Username, fields)
		return err
	})
	if err != nil {
		res.Warning = routerWarning("update secret", err)
		s.log.Warn("Subscribers: secret not updated on router", zap.String("username", sub.Username), zap.Error(err))
	}
	return res, nil
}

// Enable clears the disabled flag and re-enables the router secret.
func (s *SubscriberService) Enable(ctx context.Context, id uint) (*Result, error) {
	if err := validID(id); err != nil {
		return nil, err
	}
	enabled := false
	sub, err := s.store.Update(ctx, id, &models.SubscriberPatch{Disabled: &enabled})
	if err != nil {
		return nil, err
	}
	res := &Result{Subscriber: sub}
	err = s.router.WithConnection(ctx, func(cmd mikrotik.Commands) error {
		_, err := mikrotik.SetSecretDisabled(cmd, sub.Username, false)
		return err
	})
	if err != nil {
		res.Warning = routerWarning("enable secret", err)
		s.log.Warn("Subscribers: secret not enabled on router", zap.String("username", sub.Username), zap.Error(err))
	}
	return res, nil
}

// Disable sets the disabled flag, disables the secret and kicks the session.
func (s *SubscriberService) Disable(ctx context.Context, id uint) (*Result, error) {
	if err := validID(id); err != nil {
		return nil, err
	}
	disabled := true
	sub, err := s.store.Update(ctx, id, &models.SubscriberPatch{Disabled: &disabled})
	if err != nil {
		return nil, err
	}
	res := &Result{Subscriber: sub}
	if w := disableOnRouter(ctx, s.router, sub.Username); w != "" {
		res.Warning = w
		s.log.Warn("Subscribers: router not updated on disable", zap.String("username", sub.Username), zap.String("warning", w))
	}
	return res, nil
}

// Renew resets usage, extends expiry and re-enables the subscriber. The old
// session is killed so the next login starts from a zero counter, and the
// router is polled until that session is gone or the attempts run out.
func (s *SubscriberService) Renew(ctx context.Context, id uint) (*Result, error) {
	if err := validID(id); err != nil {
		return nil, err
	}
	now := s.now().UTC()
	expiry := now.Add(s.policy.Period)
	var zero uint64
	enabled := false
	sub, err := s.store.Update(ctx, id, &models.SubscriberPatch{
		UsedBytesTotal:    &zero,
		LastBytesSnapshot: &zero,
		Disabled:          &enabled,
		ExpiryDate:        &expiry,
	})
	if err != nil {
		return nil, err
	}

	res := &Result{Subscriber: sub}
	var warnings []string
	err = s.router.WithConnection(ctx, func(cmd mikrotik.Commands) error {
		if _, err := mikrotik.SetSecretDisabled(cmd, sub.Username, false); err != nil {
			warnings = append(warnings, routerWarning("enable secret", err))
		}
		killed, err := mikrotik.RemoveActiveByName(cmd, sub.Username)
		if err != nil {
			warnings = append(warnings, routerWarning("disconnect session", err))
		}
		if killed {
			if w := s.waitSessionGone(ctx, cmd, sub.Username); w != "" {
				warnings = append(warnings, w)
			}
		}
		return nil
	})
	if err != nil {
		warnings = append(warnings, routerWarning("renew", err))
	}
	if res.Warning = joinWarnings(warnings...); res.Warning != "" {
		s.log.Warn("Subscribers: renew not fully applied on router", zap.String("username", sub.Username), zap.String("warning", res.Warning))
	}
	return res, nil
}

func (s *SubscriberService) waitSessionGone(ctx context.Context, cmd mikrotik.Commands, username string) string {
	for i := 0; i < s.policy.PollAttempts; i++ {
		if err := s.sleep(ctx, s.policy.PollDelay); err != nil {
			return routerWarning("wait for session end", err)
		}
		active, err := cmd.ListActive(username)
		if err != nil {
			return routerWarning("wait for session end", err)
		}
		if len(active) == 0 {
			return ""
		}
	}
	if s.policy.PollAttempts == 0 {
		return ""
	}
	return fmt.Sprintf("session for %s still active after %d checks", username, s.policy.PollAttempts)
}

// Delete removes the router artifacts best effort, then the store record.
// Router cleanup failures are reported as a warning; the store delete still runs.
func (s *SubscriberService) Delete(ctx context.Context, id uint) (*Result, error) {
	if err := validID(id); err != nil {
		return nil, err
	}
	sub, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	var warnings []string
	err = s.router.WithConnection(ctx, func(cmd mikrotik.Commands) error {
		if _, err := mikrotik.RemoveActiveByName(cmd, sub.Username); err != nil {
			warnings = append(warnings, routerWarning("disconnect session", err))
		}
		if _, err := mikrotik.RemoveInterfaceByName(cmd, mikrotik.PPPoEInterfaceName(sub.Username)); err != nil {
			warnings = append(warnings, routerWarning("remove interface", err))
		}
		if _, err := mikrotik.RemoveSecretByName(cmd, sub.Username); err != nil {
			warnings = append(warnings, routerWarning("remove secret", err))
		}
		return nil
	})
	if err != nil {
		warnings = append(warnings, routerWarning("delete", err))
	}

	if err := s.store.Delete(ctx, id); err != nil {
		return nil, err
	}
	res := &Result{Subscriber: sub, Warning: joinWarnings(warnings...)}
	if res.Warning != "" {
		s.log.Warn("Subscribers: router cleanup incomplete on delete", zap.String("username", sub.Username), zap.String("warning", res.Warning))
	}
	return res, nil
}

// ListQuery drives the subscriber table.
type ListQuery struct {
	Search   string
	SortBy   string
	SortDesc bool
	Page     int
	Limit    int
	// Online is "all", "online" or "offline".
	Online string
}

// SubscriberView is a stored subscriber with its merged live status.
type SubscriberView struct {
	models.Subscriber
	Online        bool      `json:"online"`
	DisableReason string    `json:"disable_reason,omitempty"`
	Remaining     Remaining `json:"remaining"`
}

type ListResult struct {
	Subscribers []SubscriberView `json:"subscribers"`
	Total       int64            `json:"total"`
	Page        int              `json:"page"`
	Limit       int              `json:"limit"`
	OnlineKnown bool             `json:"online_known"`
	Warning     string           `json:"warning,omitempty"`
}

// List reads the store and merges one active-session snapshot. When the
// router cannot be asked the stored online flags are used and OnlineKnown is false.
func (s *SubscriberService) List(ctx context.Context, q ListQuery) (*ListResult, error) {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.Limit < 1 || q.Limit > 100 {
		q.Limit = 10
	}
	switch q.Online {
	case "", "all", "online", "offline":
	default:
		return nil, &ValidationError{Field: "online", Message: "must be one of all online offline"}
	}

	opts := store.ListOptions{
		Filter:   store.SubscriberFilter{Search: q.Search},
		SortBy:   q.SortBy,
		SortDesc: q.SortDesc,
		Page:     q.Page,
		Limit:    q.Limit,
	}
	filterOnline := q.Online == "online" || q.Online == "offline"
	if filterOnline {
		// filter after the merge, so page in memory
		opts.Page, opts.Limit = 0, 0
	}
	subs, total, err := s.store.List(ctx, opts)
	if err != nil {
		return nil, err
	}

	res := &ListResult{Page: q.Page, Limit: q.Limit, Total: total}
	online, err := s.activeSet(ctx)
	if err != nil {
		res.Warning = "live status unavailable: " + err.Error()
		s.log.Warn("Subscribers: active sessions unavailable, using stored status", zap.Error(err))
	} else {
		res.OnlineKnown = true
	}

	now := s.now()
	views := make([]SubscriberView, 0, len(subs))
	for i := range subs {
		sub := subs[i]
		isOnline := sub.Online
		if online != nil {
			isOnline = online[sub.Username]
		}
		if q.Online == "online" && !isOnline || q.Online == "offline" && isOnline {
			continue
		}
		views = append(views, SubscriberView{
			Subscriber:    sub,
			Online:        isOnline,
			DisableReason: sub.DisableReason(now),
			Remaining:     RemainingFor(&sub),
		})
	}

	if filterOnline {
		res.Total = int64(len(views))
		start := (q.Page - 1) * q.Limit
		if start > len(views) {
			start = len(views)
		}
		end := start + q.Limit
		if end > len(views) {
			end = len(views)
		}
		views = views[start:end]
	}
	res.Subscribers = views
	return res, nil
}

// activeSet returns the usernames with an active session.
func (s *SubscriberService) activeSet(ctx context.Context) (map[string]bool, error) {
	var active []mikrotik.ActiveSession
	err := s.router.WithConnection(ctx, func(cmd mikrotik.Commands) error {
		var err error
		active, err = cmd.ListActive("")
		return err
	})
	if err != nil {
		return nil, err
	}
	set := make(map[string]bool, len(active))
	for _, a := range active {
		set[a.Name] = true
	}
	return set, nil
}

// IsRouterError reports whether err came from the router side.
func IsRouterError(err error) bool {
	return errors.Is(err, mikrotik.ErrNotConfigured) || mikrotik.IsUnavailable(err)
}
