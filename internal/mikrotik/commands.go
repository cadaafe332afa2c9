package mikrotik

import (
	"fmt"
	"sort"
	"time"

	"github.com/ispanel/backend/internal/metrics"
)

// Commands is the typed command surface available inside WithConnection.
// Each method issues exactly one API command.
type Commands interface {
	ListSecrets(name string) ([]Secret, error)
	AddSecret(spec SecretSpec) error
	SetSecret(id string, fields map[string]string) error
	RemoveSecret(id string) error

	ListActive(name string) ([]ActiveSession, error)
	RemoveActive(id string) error

	ListProfiles() ([]Profile, error)

	ListInterfaces(name string) ([]Interface, error)
	RemoveInterface(id string) error
	MonitorTraffic(iface string) (*TrafficRate, error)
	BridgeHosts() ([]BridgeHost, error)

	SystemResource() (*SystemResource, error)
	RouterBoard() (*RouterBoard, error)
}

type runner interface {
	Run(command string, args ...string) ([]Row, error)
	Close() error
}

// session implements Commands over one open connection.
type session struct {
	conn runner
}

func (s *session) run(command string, args ...string) ([]Row, error) {
	start := time.Now()
	rows, err := s.conn.Run(command, args...)
	metrics.RouterCommandDuration.WithLabelValues(command).Observe(time.Since(start).Seconds())
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	metrics.RouterCommandsTotal.WithLabelValues(command, outcome).Inc()
	return rows, err
}

func nameQuery(name string) []string {
	if name == "" {
		return nil
	}
	return []string{"?name=" + name}
}

func (s *session) ListSecrets(name string) ([]Secret, error) {
	rows, err := s.run("/ppp/secret/print", nameQuery(name)...)
	if err != nil {
		return nil, err
	}
	secrets := make([]Secret, 0, len(rows))
	for _, r := range rows {
		secrets = append(secrets, secretFromRow(r))
	}
	return secrets, nil
}

func (s *session) AddSecret(spec SecretSpec) error {
	service := spec.Service
	if service == "" {
		service = "pppoe"
	}
	args := []string{
		"=name=" + spec.Name,
		"=password=" + spec.Password,
		"=service=" + service,
	}
	if spec.Profile != "" {
		args = append(args, "=profile="+spec.Profile)
	}
	if spec.Disabled {
		args = append(args, "=disabled=yes")
	}
	_, err := s.run("/ppp/secret/add", args...)
	return err
}

func (s *session) SetSecret(id string, fields map[string]string) error {
	if id == "" {
		return &UnavailableError{Op: "/ppp/secret/set", Err: fmt.Errorf("empty record id")}
	}
	args := []string{"=.id=" + id}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		args = append(args, "="+k+"="+fields[k])
	}
	_, err := s.run("/ppp/secret/set", args...)
	return err
}

func (s *session) RemoveSecret(id string) error {
	_, err := s.run("/ppp/secret/remove", "=.id="+id)
	return err
}

func (s *session) ListActive(name string) ([]ActiveSession, error) {
	rows, err := s.run("/ppp/active/print", nameQuery(name)...)
	if err != nil {
		return nil, err
	}
	sessions := make([]ActiveSession, 0, len(rows))
	for _, r := range rows {
		sessions = append(sessions, activeFromRow(r))
	}
	return sessions, nil
}

func (s *session) RemoveActive(id string) error {
	_, err := s.run("/ppp/active/remove", "=.id="+id)
	return err
}

func (s *session) ListProfiles() ([]Profile, error) {
	rows, err := s.run("/ppp/profile/print")
	if err != nil {
		return nil, err
	}
	profiles := make([]Profile, 0, len(rows))
	for _, r := range rows {
		profiles = append(profiles, profileFromRow(r))
	}
	return profiles, nil
}

func (s *session) ListInterfaces(name string) ([]Interface, error) {
	rows, err := s.run("/interface/print", nameQuery(name)...)
	if err != nil {
		return nil, err
	}
	ifaces := make([]Interface, 0, len(rows))
	for _, r := range rows {
		ifaces = append(ifaces, interfaceFromRow(r))
	}
	return ifaces, nil
}

func (s *session) RemoveInterface(id string) error {
	_, err := s.run("/interface/remove", "=.id="+id)
	return err
}

func (s *session) MonitorTraffic(iface string) (*TrafficRate, error) {
	rows, err := s.run("/interface/monitor-traffic", "=interface="+iface, "=once=")
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return &TrafficRate{}, nil
	}
	return &TrafficRate{
		TxBitsPerSecond: parseUint(rows[0]["tx-bits-per-second"]),
		RxBitsPerSecond: parseUint(rows[0]["rx-bits-per-second"]),
	}, nil
}

func (s *session) BridgeHosts() ([]BridgeHost, error) {
	rows, err := s.run("/interface/bridge/host/print")
	if err != nil {
		return nil, err
	}
	hosts := make([]BridgeHost, 0, len(rows))
	for _, r := range rows {
		hosts = append(hosts, BridgeHost{
			MACAddress:  r["mac-address"],
			Interface:   r["interface"],
			OnInterface: r["on-interface"],
			Bridge:      r["bridge"],
		})
	}
	return hosts, nil
}

func (s *session) SystemResource() (*SystemResource, error) {
	rows, err := s.run("/system/resource/print")
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, &UnavailableError{Op: "/system/resource/print", Err: fmt.Errorf("no resource data")}
	}
	return resourceFromRow(rows[0]), nil
}

func (s *session) RouterBoard() (*RouterBoard, error) {
	rows, err := s.run("/system/routerboard/print")
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		// CHR and x86 installs have no routerboard
		return &RouterBoard{}, nil
	}
	return routerBoardFromRow(rows[0]), nil
}
