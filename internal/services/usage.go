package services

import (
	"context"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ispanel/backend/internal/metrics"
	"github.com/ispanel/backend/internal/mikrotik"
	"github.com/ispanel/backend/internal/models"
	"github.com/ispanel/backend/internal/store"
)

// Accumulate folds one live interface reading into the lifetime total.
//
// The live counter restarts at zero with every PPPoE session. A reading below
// the previous snapshot is taken as such a reset and only moves the snapshot;
// otherwise the difference is added. total never decreases. Traffic that
// overtakes the old snapshot between two reads after a reset is not counted.
func Accumulate(total, last, live uint64) (newTotal, newLast uint64) {
	if live < last {
		return total, live
	}
	return total + (live - last), live
}

// Remaining is the quota left, or unlimited for subscribers without a limit.
type Remaining struct {
	Unlimited bool
	Bytes     uint64
}

func RemainingFor(sub *models.Subscriber) Remaining {
	if !sub.HasQuota() {
		return Remaining{Unlimited: true}
	}
	return Remaining{Bytes: sub.QuotaRemaining()}
}

func (r Remaining) MarshalJSON() ([]byte, error) {
	if r.Unlimited {
		return []byte(`"unlimited"`), nil
	}
	return strconv.AppendUint(nil, r.Bytes, 10), nil
}

func (r Remaining) String() string {
	if r.Unlimited {
		return "unlimited"
	}
	return strconv.FormatUint(r.Bytes, 10)
}

// LiveMetrics merges router state for one subscriber with its stored usage.
type LiveMetrics struct {
	Online bool `json:"online"`
	// OnlineKnown is false when the router could not be asked.
	OnlineKnown bool `json:"online_known"`

	Uptime        string `json:"uptime,omitempty"`
	Address       string `json:"address,omitempty"`
	CallerID      string `json:"caller_id,omitempty"`
	SessionID     string `json:"session_id,omitempty"`
	Service       string `json:"service,omitempty"`
	Encoding      string `json:"encoding,omitempty"`
	InterfaceName string `json:"interface_name,omitempty"`
	Profile       string `json:"profile,omitempty"`
	RemoteAddress string `json:"remote_address,omitempty"`
	LastLogin     string `json:"last_login,omitempty"`
	LastLoggedOut string `json:"last_logged_out,omitempty"`
	// ConnectedPort is the bridge port the caller's MAC was learned on, nil if unknown.
	ConnectedPort *string `json:"connected_port"`

	SessionTxBytes uint64                `json:"session_tx_bytes"`
	SessionRxBytes uint64                `json:"session_rx_bytes"`
	Traffic        *mikrotik.TrafficRate `json:"traffic,omitempty"`

	UsedBytesTotal uint64    `json:"used_bytes_total"`
	DataLimitBytes uint64    `json:"data_limit_bytes"`
	Remaining      Remaining `json:"remaining"`

	Disabled      bool   `json:"disabled"`
	DisableReason string `json:"disable_reason,omitempty"`
	Warning       string `json:"warning,omitempty"`
}

// UsageTracker reads live counters and keeps UsedBytesTotal current.
type UsageTracker struct {
	store  store.SubscriberStore
	router Router
	log    *zap.Logger
	now    func() time.Time
}

func NewUsageTracker(st store.SubscriberStore, router Router, log *zap.Logger) *UsageTracker {
	return &UsageTracker{store: st, router: router, log: log, now: time.Now}
}

type routerView struct {
	active *mikrotik.ActiveSession
	secret *mikrotik.Secret
	iface  *mikrotik.Interface
	rate   *mikrotik.TrafficRate
	port   *string
}

// GetLiveMetrics queries the router for sub and records any new usage.
// Router failures degrade to the stored view with a warning; store failures
// are returned.
func (t *UsageTracker) GetLiveMetrics(ctx context.Context, sub *models.Subscriber) (*LiveMetrics, error) {
	var view routerView
	err := t.router.WithConnection(ctx, func(cmd mikrotik.Commands) error {
		active, err := cmd.ListActive(sub.Username)
		if err != nil {
			return err
		}
		if len(active) > 0 {
			view.active = &active[0]
		}

		secrets, err := cmd.ListSecrets(sub.Username)
		if err != nil {
			return err
		}
		if len(secrets) > 0 {
			view.secret = &secrets[0]
		}

		ifaceName := interfaceFor(sub.Username, view.active)
		view.iface, err = mikrotik.InterfaceCounters(cmd, ifaceName)
		if err != nil {
			return err
		}

		if view.active == nil {
			return nil
		}
		if rate, err := cmd.MonitorTraffic(ifaceName); err == nil {
			view.rate = rate
		} else {
			t.log.Debug("LiveMetrics: monitor-traffic failed", zap.String("username", sub.Username), zap.Error(err))
		}
		view.port = t.lookupPort(cmd, view.active.CallerID)
		return nil
	})

	if err != nil {
		t.log.Warn("LiveMetrics: router unavailable, returning stored usage",
			zap.String("username", sub.Username), zap.Error(err))
		m := storedMetrics(sub, t.now())
		m.Warning = "live status unavailable: " + err.Error()
		return m, nil
	}

	var live uint64
	if view.iface != nil {
		live = view.iface.Total()
	}
	updated, err := t.record(ctx, sub.ID, live)
	if err != nil {
		return nil, err
	}

	m := storedMetrics(updated, t.now())
	m.OnlineKnown = true
	m.InterfaceName = interfaceFor(sub.Username, view.active)
	m.ConnectedPort = view.port
	m.Traffic = view.rate
	if view.iface != nil {
		m.SessionTxBytes = view.iface.TxBytes
		m.SessionRxBytes = view.iface.RxBytes
	}
	if a := view.active; a != nil {
		m.Online = true
		m.Uptime = a.Uptime
		m.Address = a.Address
		m.CallerID = a.CallerID
		m.SessionID = a.SessionID
		m.Service = a.Service
		m.Encoding = a.Encoding
		m.LastLogin = a.LastLinkUp
	}
	if s := view.secret; s != nil {
		m.Profile = s.Profile
		m.RemoteAddress = s.RemoteAddress
		m.LastLoggedOut = s.LastLoggedOut
		if m.LastLogin == "" {
			m.LastLogin = s.LastLoggedIn
		}
	}
	return m, nil
}

// usageWriteAttempts bounds the compare-and-swap retries in record.
const usageWriteAttempts = 2

// record re-reads the subscriber, applies Accumulate and writes both counters
// only if nobody changed them in between (a renew reset or another reader).
// On a lost race it starts over from the fresh row.
func (t *UsageTracker) record(ctx context.Context, id uint, live uint64) (*models.Subscriber, error) {
	for attempt := 1; ; attempt++ {
		fresh, err := t.store.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		total, last := Accumulate(fresh.UsedBytesTotal, fresh.LastBytesSnapshot, live)
		if total == fresh.UsedBytesTotal && last == fresh.LastBytesSnapshot {
			return fresh, nil
		}

		updated, ok, err := t.store.UpdateUsage(ctx, id,
			store.UsageCounters{Total: fresh.UsedBytesTotal, Last: fresh.LastBytesSnapshot},
			store.UsageCounters{Total: total, Last: last})
		if err != nil {
			return nil, err
		}
		if ok {
			if live < fresh.LastBytesSnapshot {
				metrics.CounterResetsTotal.Inc()
			}
			metrics.AccountedBytesTotal.Add(float64(total - fresh.UsedBytesTotal))
			return updated, nil
		}
		if attempt >= usageWriteAttempts {
			t.log.Debug("Usage: counters kept changing, skipping this reading",
				zap.Uint("subscriber_id", id), zap.Int("attempts", attempt))
			return updated, nil
		}
	}
}

func (t *UsageTracker) lookupPort(cmd mikrotik.Commands, mac string) *string {
	if mac == "" {
		return nil
	}
	hosts, err := cmd.BridgeHosts()
	if err != nil {
		t.log.Debug("LiveMetrics: bridge host lookup failed", zap.Error(err))
		return nil
	}
	for _, h := range hosts {
		if strings.EqualFold(h.MACAddress, mac) && h.Port() != "" {
			port := h.Port()
			return &port
		}
	}
	return nil
}

// CollectAll runs the accumulation for every subscriber with a live interface,
// plus every subscriber whose snapshot is non-zero but who is no longer
// connected, in a single router session. It returns how many were updated.
func (t *UsageTracker) CollectAll(ctx context.Context) (int, error) {
	subs, _, err := t.store.List(ctx, store.ListOptions{})
	if err != nil {
		return 0, err
	}
	if len(subs) == 0 {
		return 0, nil
	}

	counters := map[string]uint64{}
	err = t.router.WithConnection(ctx, func(cmd mikrotik.Commands) error {
		ifaces, err := cmd.ListInterfaces("")
		if err != nil {
			return err
		}
		for _, i := range ifaces {
			if name, ok := pppoeUsername(i.Name); ok {
				counters[name] = i.Total()
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	updated := 0
	for _, sub := range subs {
		live, ok := counters[sub.Username]
		if !ok && sub.LastBytesSnapshot == 0 {
			continue
		}
		before := sub.UsedBytesTotal
		after, err := t.record(ctx, sub.ID, live)
		if err != nil {
			t.log.Error("Usage: failed to record usage", zap.String("username", sub.Username), zap.Error(err))
			continue
		}
		if after.UsedBytesTotal != before || after.LastBytesSnapshot != sub.LastBytesSnapshot {
			updated++
		}
	}
	return updated, nil
}

func storedMetrics(sub *models.Subscriber, now time.Time) *LiveMetrics {
	return &LiveMetrics{
		UsedBytesTotal: sub.UsedBytesTotal,
		DataLimitBytes: sub.DataLimitBytes,
		Remaining:      RemainingFor(sub),
		Disabled:       sub.Disabled,
		DisableReason:  sub.DisableReason(now),
		InterfaceName:  mikrotik.PPPoEInterfaceName(sub.Username),
	}
}

func interfaceFor(username string, active *mikrotik.ActiveSession) string {
	if active != nil && active.Interface != "" {
		return active.Interface
	}
	return mikrotik.PPPoEInterfaceName(username)
}

func pppoeUsername(iface string) (string, bool) {
	if !strings.HasPrefix(iface, "<pppoe-") || !strings.HasSuffix(iface, ">") {
		return "", false
	}
	return iface[len("<pppoe-") : len(iface)-1], true
}
