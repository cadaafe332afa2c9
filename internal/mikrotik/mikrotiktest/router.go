// Package mikrotiktest provides an in-memory router for exercising code that
// drives RouterOS through mikrotik.Commands.
package mikrotiktest

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ispanel/backend/internal/mikrotik"
)

// ErrInjected is the default error returned by a method listed in Router.Fail.
var ErrInjected = errors.New("injected failure")

// Router is a fake device. The zero value is not usable; call New.
type Router struct {
	mu sync.Mutex

	// Down makes every WithConnection fail as if the device were unreachable.
	Down bool
	// NotConfigured makes every WithConnection fail with ErrNotConfigured.
	NotConfigured bool
	// Fail maps a Commands method name to the error it should return.
	// Errors are wrapped in UnavailableError like real device traps.
	Fail map[string]error
	// LingerPolls keeps a removed active session visible to that many
	// subsequent ListActive calls, like a device that is slow to tear it down.
	LingerPolls int

	secrets    []mikrotik.Secret
	active     []mikrotik.ActiveSession
	lingering  map[string]int
	profiles   []mikrotik.Profile
	interfaces []mikrotik.Interface
	hosts      []mikrotik.BridgeHost
	rates      map[string]mikrotik.TrafficRate
	resource   mikrotik.SystemResource
	board      mikrotik.RouterBoard

	nextID      int
	calls       []string
	connections int
}

// New returns an empty, reachable router.
func New() *Router {
	return &Router{
		Fail:      map[string]error{},
		lingering: map[string]int{},
		rates:     map[string]mikrotik.TrafficRate{},
		resource:  mikrotik.SystemResource{Version: "7.14", BoardName: "CCR2004-16G-2S+", Uptime: "1d2h"},
		board:     mikrotik.RouterBoard{Model: "CCR2004-16G-2S+", SerialNumber: "HF00000001"},
	}
}

// WithConnection runs fn against the fake device.
func (r *Router) WithConnection(ctx context.Context, fn func(mikrotik.Commands) error) error {
	r.mu.Lock()
	notConfigured, down := r.NotConfigured, r.Down
	r.connections++
	r.mu.Unlock()

	if notConfigured {
		return mikrotik.ErrNotConfigured
	}
	if down {
		return &mikrotik.UnavailableError{Op: "connect", Err: errors.New("dial tcp 192.0.2.1:8728: connect: connection refused")}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(r)
}

// SetDown toggles reachability.
func (r *Router) SetDown(down bool) {
	r.mu.Lock()
	r.Down = down
	r.mu.Unlock()
}

// FailOn makes method fail with err (ErrInjected when nil).
func (r *Router) FailOn(method string, err error) {
	if err == nil {
		err = ErrInjected
	}
	r.mu.Lock()
	r.Fail[method] = err
	r.mu.Unlock()
}

// Connections reports how many sessions were opened.
func (r *Router) Connections() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.connections
}

// Calls returns the Commands methods invoked so far, in order.
func (r *Router) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

// CallCount counts invocations of method.
func (r *Router) CallCount(method string) int {
	n := 0
	for _, c := range r.Calls() {
		if c == method {
			n++
		}
	}
	return n
}

// PutSecret inserts a secret row and returns its record id.
func (r *Router) PutSecret(s mikrotik.Secret) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	s.ID = r.newID()
	if s.Service == "" {
		s.Service = "pppoe"
	}
	r.secrets = append(r.secrets, s)
	return s.ID
}

// Connect simulates a subscriber dialing in: it adds an active session and the
// dynamic PPPoE interface with the given counters.
func (r *Router) Connect(name, address string, tx, rx uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.active = append(r.active, mikrotik.ActiveSession{
		ID:       r.newID(),
		Name:     name,
		Service:  "pppoe",
		Address:  address,
		CallerID: "AA:BB:CC:00:00:01",
		Uptime:   "1h",
	})
	r.interfaces = append(r.interfaces, mikrotik.Interface{
		ID:      r.newID(),
		Name:    mikrotik.PPPoEInterfaceName(name),
		Type:    "pppoe-in",
		Running: true,
		TxBytes: tx,
		RxBytes: rx,
	})
}

// SetCounters overwrites the live byte counters of an interface.
func (r *Router) SetCounters(iface string, tx, rx uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.interfaces {
		if r.interfaces[i].Name == iface {
			r.interfaces[i].TxBytes = tx
			r.interfaces[i].RxBytes = rx
			return
		}
	}
	r.interfaces = append(r.interfaces, mikrotik.Interface{ID: r.newID(), Name: iface, Type: "pppoe-in", TxBytes: tx, RxBytes: rx})
}

// PutProfile inserts a PPP profile.
func (r *Router) PutProfile(p mikrotik.Profile) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p.ID = r.newID()
	r.profiles = append(r.profiles, p)
}

// PutBridgeHost inserts a bridge host table entry.
func (r *Router) PutBridgeHost(h mikrotik.BridgeHost) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hosts = append(r.hosts, h)
}

// SetTraffic sets the monitor-traffic sample for an interface.
func (r *Router) SetTraffic(iface string, rate mikrotik.TrafficRate) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rates[iface] = rate
}

// Secret returns the secret named name.
func (r *Router) Secret(name string) (mikrotik.Secret, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.secrets {
		if s.Name == name {
			return s, true
		}
	}
	return mikrotik.Secret{}, false
}

// IsOnline reports whether an active session exists for name.
func (r *Router) IsOnline(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.active {
		if a.Name == name {
			return true
		}
	}
	return false
}

// HasInterface reports whether an interface named name exists.
func (r *Router) HasInterface(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, i := range r.interfaces {
		if i.Name == name {
			return true
		}
	}
	return false
}

func (r *Router) newID() string {
	r.nextID++
	return fmt.Sprintf("*%X", r.nextID)
}

// enter records the call and returns the injected failure for method, if any.
func (r *Router) enter(method string) error {
	r.calls = append(r.calls, method)
	if err, ok := r.Fail[method]; ok {
		return &mikrotik.UnavailableError{Op: method, Err: err}
	}
	return nil
}

func noSuchItem(op string) error {
	return &mikrotik.UnavailableError{Op: op, Err: &mikrotik.DeviceError{Message: "no such item"}}
}

func (r *Router) ListSecrets(name string) ([]mikrotik.Secret, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.enter("ListSecrets"); err != nil {
		return nil, err
	}
	var out []mikrotik.Secret
	for _, s := range r.secrets {
		if name == "" || s.Name == name {
			out = append(out, s)
		}
	}
	return out, nil
}

func (r *Router) AddSecret(spec mikrotik.SecretSpec) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.enter("AddSecret"); err != nil {
		return err
	}
	for _, s := range r.secrets {
		if s.Name == spec.Name {
			return &mikrotik.UnavailableError{Op: "/ppp/secret/add", Err: &mikrotik.DeviceError{Message: "failure: secret with the same name already exists"}}
		}
	}
	service := spec.Service
	if service == "" {
		service = "pppoe"
	}
	r.secrets = append(r.secrets, mikrotik.Secret{
		ID:       r.newID(),
		Name:     spec.Name,
		Password: spec.Password,
		Profile:  spec.Profile,
		Service:  service,
		Disabled: spec.Disabled,
	})
	return nil
}

func (r *Router) SetSecret(id string, fields map[string]string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.enter("SetSecret"); err != nil {
		return err
	}
	for i := range r.secrets {
		if r.secrets[i].ID != id {
			continue
		}
		for k, v := range fields {
			switch k {
			case "disabled":
				r.secrets[i].Disabled = v == "yes" || v == "true"
			case "password":
				r.secrets[i].Password = v
			case "profile":
				r.secrets[i].Profile = v
			case "name":
				r.secrets[i].Name = v
			case "remote-address":
				r.secrets[i].RemoteAddress = v
			}
		}
		return nil
	}
	return noSuchItem("/ppp/secret/set")
}

func (r *Router) RemoveSecret(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.enter("RemoveSecret"); err != nil {
		return err
	}
	for i := range r.secrets {
		if r.secrets[i].ID == id {
			r.secrets = append(r.secrets[:i], r.secrets[i+1:]...)
			return nil
		}
	}
	return noSuchItem("/ppp/secret/remove")
}

func (r *Router) ListActive(name string) ([]mikrotik.ActiveSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.enter("ListActive"); err != nil {
		return nil, err
	}
	var out []mikrotik.ActiveSession
	for _, a := range r.active {
		if name == "" || a.Name == name {
			out = append(out, a)
		}
	}
	// sessions being torn down stay visible for a few polls
	for i := 0; i < len(r.active); i++ {
		a := r.active[i]
		left, ok := r.lingering[a.ID]
		if !ok {
			continue
		}
		if left <= 1 {
			delete(r.lingering, a.ID)
			r.active = append(r.active[:i], r.active[i+1:]...)
			i--
			continue
		}
		r.lingering[a.ID] = left - 1
	}
	return out, nil
}

func (r *Router) RemoveActive(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.enter("RemoveActive"); err != nil {
		return err
	}
	for i := range r.active {
		if r.active[i].ID != id {
			continue
		}
		if r.LingerPolls > 0 {
			if _, ok := r.lingering[id]; !ok {
				r.lingering[id] = r.LingerPolls
			}
			return nil
		}
		r.active = append(r.active[:i], r.active[i+1:]...)
		return nil
	}
	return noSuchItem("/ppp/active/remove")
}

func (r *Router) ListProfiles() ([]mikrotik.Profile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.enter("ListProfiles"); err != nil {
		return nil, err
	}
	return append([]mikrotik.Profile(nil), r.profiles...), nil
}

func (r *Router) ListInterfaces(name string) ([]mikrotik.Interface, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.enter("ListInterfaces"); err != nil {
		return nil, err
	}
	var out []mikrotik.Interface
	for _, i := range r.interfaces {
		if name == "" || i.Name == name {
			out = append(out, i)
		}
	}
	return out, nil
}

func (r *Router) RemoveInterface(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.enter("RemoveInterface"); err != nil {
		return err
	}
	for i := range r.interfaces {
		if r.interfaces[i].ID == id {
			r.interfaces = append(r.interfaces[:i], r.interfaces[i+1:]...)
			return nil
		}
	}
	return noSuchItem("/interface/remove")
}

func (r *Router) MonitorTraffic(iface string) (*mikrotik.TrafficRate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.enter("MonitorTraffic"); err != nil {
		return nil, err
	}
	rate := r.rates[iface]
	return &rate, nil
}

func (r *Router) BridgeHosts() ([]mikrotik.BridgeHost, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.enter("BridgeHosts"); err != nil {
		return nil, err
	}
	return append([]mikrotik.BridgeHost(nil), r.hosts...), nil
}

func (r *Router) SystemResource() (*mikrotik.SystemResource, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.enter("SystemResource"); err != nil {
		return nil, err
	}
	res := r.resource
	return &res, nil
}

func (r *Router) RouterBoard() (*mikrotik.RouterBoard, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.enter("RouterBoard"); err != nil {
		return nil, err
	}
	b := r.board
	return &b, nil
}

var _ mikrotik.Commands = (*Router)(nil)
