package services

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ispanel/backend/internal/database"
	"github.com/ispanel/backend/internal/metrics"
	"github.com/ispanel/backend/internal/models"
	"github.com/ispanel/backend/internal/store"
)

// Reasons reported when the enforcer disables a subscriber.
const (
	ReasonLimitReached = "limit reached"
	ReasonExpired      = "expired"
)

// Evaluate decides whether an enabled subscriber must be disabled. When both
// rules match, expiry is reported.
func Evaluate(sub *models.Subscriber, now time.Time) (string, bool) {
	reason := ""
	if sub.QuotaExceeded() {
		reason = ReasonLimitReached
	}
	if sub.IsExpired(now) {
		reason = ReasonExpired
	}
	return reason, reason != ""
}

// PassLocker serialises enforcement passes across processes.
type PassLocker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (bool, func(), error)
}

type EnforcementAction struct {
	SubscriberID uint   `json:"subscriber_id"`
	Username     string `json:"username"`
	Reason       string `json:"reason"`
	Warning      string `json:"warning,omitempty"`
}

type EnforcementReport struct {
	StartedAt time.Time           `json:"started_at"`
	Checked   int                 `json:"checked"`
	Disabled  []EnforcementAction `json:"disabled"`
	// Failures counts subscribers whose store update failed.
	Failures int `json:"failures"`
	// Accounted is how many subscribers the usage sweep updated.
	Accounted         int    `json:"accounted"`
	AccountingWarning string `json:"accounting_warning,omitempty"`
	// Skipped is set when another pass was already running.
	Skipped bool `json:"skipped"`
}

// Warning joins the accounting warning with every per-subscriber router
// warning. Empty means the pass fully succeeded on both sides.
func (r *EnforcementReport) Warning() string {
	ws := []string{r.AccountingWarning}
	for _, a := range r.Disabled {
		if a.Warning != "" {
			ws = append(ws, a.Username+": "+a.Warning)
		}
	}
	return joinWarnings(ws...)
}

// QuotaEnforcer periodically disables subscribers over quota or past expiry.
// The store is updated first and is authoritative; router actions are best
// effort and get retried by the next pass.
type QuotaEnforcer struct {
	store    store.SubscriberStore
	router   Router
	usage    *UsageTracker
	locker   PassLocker
	interval time.Duration
	log      *zap.Logger
	now      func() time.Time

	stopChan chan struct{}
	wg       sync.WaitGroup
	runMu    sync.Mutex // prevents overlapping passes in this process
}

// DefaultQuotaCheckInterval is used when the configured interval is not positive.
const DefaultQuotaCheckInterval = 5 * time.Minute

func NewQuotaEnforcer(st store.SubscriberStore, router Router, interval time.Duration, log *zap.Logger) *QuotaEnforcer {
	if interval <= 0 {
		log.Warn("QuotaEnforcer: non-positive interval, using default",
			zap.Duration("interval", interval), zap.Duration("default", DefaultQuotaCheckInterval))
		interval = DefaultQuotaCheckInterval
	}
	return &QuotaEnforcer{
		store:    st,
		router:   router,
		interval: interval,
		log:      log,
		now:      time.Now,
		stopChan: make(chan struct{}),
	}
}

// SetUsageTracker enables the accounting sweep before every pass.
func (e *QuotaEnforcer) SetUsageTracker(t *UsageTracker) {
	e.usage = t
}

// SetPassLock makes concurrent instances skip a pass another one is running.
func (e *QuotaEnforcer) SetPassLock(l PassLocker) {
	e.locker = l
}

// Start begins the enforcement loop. The first pass runs immediately.
func (e *QuotaEnforcer) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer cancel()
		e.log.Info("QuotaEnforcer started", zap.Duration("interval", e.interval))

		e.runPass(ctx)

		ticker := time.NewTicker(e.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				e.runPass(ctx)
			case <-e.stopChan:
				e.log.Info("QuotaEnforcer stopped")
				return
			}
		}
	}()
}

// Stop ends the loop and waits for a running pass to finish.
func (e *QuotaEnforcer) Stop() {
	close(e.stopChan)
	e.wg.Wait()
}

func (e *QuotaEnforcer) runPass(ctx context.Context) {
	report, err := e.CheckQuotas(ctx)
	if err != nil {
		e.log.Error("QuotaEnforcer: pass failed", zap.Error(err))
		return
	}
	if len(report.Disabled) > 0 || report.Failures > 0 {
		e.log.Info("QuotaEnforcer: pass complete",
			zap.Int("checked", report.Checked),
			zap.Int("disabled", len(report.Disabled)),
			zap.Int("failures", report.Failures))
	}
}

// CheckQuotas runs one pass over every enabled subscriber. One subscriber's
// failure never stops the others; only failing to list subscribers is an error.
func (e *QuotaEnforcer) CheckQuotas(ctx context.Context) (*EnforcementReport, error) {
	report := &EnforcementReport{StartedAt: e.now().UTC(), Disabled: []EnforcementAction{}}

	if !e.runMu.TryLock() {
		e.log.Info("QuotaEnforcer: previous pass still running, skipping")
		report.Skipped = true
		return report, nil
	}
	defer e.runMu.Unlock()

	if e.locker != nil {
		ok, release, err := e.locker.TryLock(ctx, database.LockKeyQuotaPass, e.lockTTL())
		if err != nil {
			e.log.Warn("QuotaEnforcer: pass lock unavailable, running anyway", zap.Error(err))
		} else if !ok {
			report.Skipped = true
			return report, nil
		}
		if release != nil {
			defer release()
		}
	}

	metrics.EnforcementPassesTotal.Inc()

	if e.usage != nil {
		n, err := e.usage.CollectAll(ctx)
		if err != nil {
			report.AccountingWarning = "usage sweep skipped: " + err.Error()
			e.log.Warn("QuotaEnforcer: usage sweep failed", zap.Error(err))
		}
		report.Accounted = n
	}

	enabled := false
	subs, _, err := e.store.List(ctx, store.ListOptions{Filter: store.SubscriberFilter{Disabled: &enabled}})
	if err != nil {
		return nil, err
	}

	now := e.now()
	for i := range subs {
		sub := &subs[i]
		report.Checked++
		reason, violated := Evaluate(sub, now)
		if !violated {
			continue
		}
		action, err := e.disable(ctx, sub, reason)
		if err != nil {
			report.Failures++
			e.log.Error("QuotaEnforcer: failed to disable subscriber",
				zap.String("username", sub.Username), zap.String("reason", reason), zap.Error(err))
			continue
		}
		report.Disabled = append(report.Disabled, *action)
	}
	return report, nil
}

func (e *QuotaEnforcer) disable(ctx context.Context, sub *models.Subscriber, reason string) (*EnforcementAction, error) {
	disabled := true
	if _, err := e.store.Update(ctx, sub.ID, &models.SubscriberPatch{Disabled: &disabled}); err != nil {
		return nil, err
	}
	metrics.EnforcementDisablesTotal.WithLabelValues(reason).Inc()
	e.log.Info("QuotaEnforcer: disabled subscriber", zap.String("username", sub.Username), zap.String("reason", reason))

	action := &EnforcementAction{SubscriberID: sub.ID, Username: sub.Username, Reason: reason}
	if w := disableOnRouter(ctx, e.router, sub.Username); w != "" {
		metrics.EnforcementRouterFailures.Inc()
		e.log.Warn("QuotaEnforcer: router not updated", zap.String("username", sub.Username), zap.String("warning", w))
		action.Warning = w
	}
	return action, nil
}

func (e *QuotaEnforcer) lockTTL() time.Duration {
	if e.interval > time.Second {
		return e.interval - time.Second
	}
	return time.Minute
}
