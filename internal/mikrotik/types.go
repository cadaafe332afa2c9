package mikrotik

import (
	"strconv"
	"strings"
)

// Secret is a row of /ppp/secret.
type Secret struct {
	ID                   string `json:"id"`
	Name                 string `json:"name"`
	Password             string `json:"-"`
	Profile              string `json:"profile"`
	Service              string `json:"service"`
	Disabled             bool   `json:"disabled"`
	RemoteAddress        string `json:"remote_address,omitempty"`
	LastLoggedIn         string `json:"last_logged_in,omitempty"`
	LastLoggedOut        string `json:"last_logged_out,omitempty"`
	LastCallerID         string `json:"last_caller_id,omitempty"`
	LastDisconnectReason string `json:"last_disconnect_reason,omitempty"`
}

// SecretSpec is the payload for /ppp/secret/add.
type SecretSpec struct {
	Name     string
	Password string
	Service  string
	Profile  string
	Disabled bool
}

// ActiveSession is a row of /ppp/active. Its presence is what "online" means.
type ActiveSession struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Service    string `json:"service"`
	CallerID   string `json:"caller_id,omitempty"`
	Address    string `json:"address,omitempty"`
	Uptime     string `json:"uptime,omitempty"`
	Encoding   string `json:"encoding,omitempty"`
	SessionID  string `json:"session_id,omitempty"`
	Interface  string `json:"interface,omitempty"`
	LastLinkUp string `json:"last_link_up,omitempty"`
}

// Profile is a row of /ppp/profile.
type Profile struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	RateLimit     string `json:"rate_limit,omitempty"`
	LocalAddress  string `json:"local_address,omitempty"`
	RemoteAddress string `json:"remote_address,omitempty"`
}

// Interface is a row of /interface with its byte counters.
type Interface struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Type       string `json:"type"`
	MACAddress string `json:"mac_address,omitempty"`
	Running    bool   `json:"running"`
	Disabled   bool   `json:"disabled"`
	TxBytes    uint64 `json:"tx_bytes"`
	RxBytes    uint64 `json:"rx_bytes"`
	LastLinkUp string `json:"last_link_up,omitempty"`
}

// Total is the live counter used for usage accounting.
func (i *Interface) Total() uint64 {
	return i.TxBytes + i.RxBytes
}

// SystemResource is /system/resource/print.
type SystemResource struct {
	Uptime       string `json:"uptime"`
	Version      string `json:"version"`
	BuildTime    string `json:"build_time"`
	FreeMemory   int64  `json:"free_memory"`
	TotalMemory  int64  `json:"total_memory"`
	CPU          string `json:"cpu"`
	CPUCount     int    `json:"cpu_count"`
	CPUFrequency int    `json:"cpu_frequency"`
	CPULoad      int    `json:"cpu_load"`
	FreeHDD      int64  `json:"free_hdd"`
	TotalHDD     int64  `json:"total_hdd"`
	Architecture string `json:"architecture"`
	BoardName    string `json:"board_name"`
	Platform     string `json:"platform"`
}

// RouterBoard is /system/routerboard/print.
type RouterBoard struct {
	Model           string `json:"model"`
	SerialNumber    string `json:"serial_number"`
	FirmwareType    string `json:"firmware_type"`
	CurrentFirmware string `json:"current_firmware"`
	UpgradeFirmware string `json:"upgrade_firmware"`
}

// BridgeHost is a row of the bridge host table. RouterOS v7 reports the port
// as interface, v6 as on-interface.
type BridgeHost struct {
	MACAddress  string `json:"mac_address"`
	Interface   string `json:"interface,omitempty"`
	OnInterface string `json:"on_interface,omitempty"`
	Bridge      string `json:"bridge"`
}

// Port returns the bridge port the host was learned on.
func (h BridgeHost) Port() string {
	if h.Interface != "" {
		return h.Interface
	}
	return h.OnInterface
}

// TrafficRate is one /interface/monitor-traffic sample.
type TrafficRate struct {
	TxBitsPerSecond uint64 `json:"tx_bps"`
	RxBitsPerSecond uint64 `json:"rx_bps"`
}

// PPPoEInterfaceName is the dynamic interface RouterOS creates for a PPPoE session.
func PPPoEInterfaceName(username string) string {
	return "<pppoe-" + username + ">"
}

func secretFromRow(r Row) Secret {
	return Secret{
		ID:                   r[".id"],
		Name:                 r["name"],
		Password:             r["password"],
		Profile:              r["profile"],
		Service:              r["service"],
		Disabled:             parseBool(r["disabled"]),
		RemoteAddress:        r["remote-address"],
		LastLoggedIn:         r["last-logged-in"],
		LastLoggedOut:        r["last-logged-out"],
		LastCallerID:         r["last-caller-id"],
		LastDisconnectReason: r["last-disconnect-reason"],
	}
}

func activeFromRow(r Row) ActiveSession {
	return ActiveSession{
		ID:         r[".id"],
		Name:       r["name"],
		Service:    r["service"],
		CallerID:   r["caller-id"],
		Address:    r["address"],
		Uptime:     r["uptime"],
		Encoding:   r["encoding"],
		SessionID:  r["session-id"],
		Interface:  r["interface"],
		LastLinkUp: r["last-link-up-time"],
	}
}

func profileFromRow(r Row) Profile {
	return Profile{
		ID:            r[".id"],
		Name:          r["name"],
		RateLimit:     r["rate-limit"],
		LocalAddress:  r["local-address"],
		RemoteAddress: r["remote-address"],
	}
}

func interfaceFromRow(r Row) Interface {
	return Interface{
		ID:         r[".id"],
		Name:       r["name"],
		Type:       r["type"],
		MACAddress: r["mac-address"],
		Running:    parseBool(r["running"]),
		Disabled:   parseBool(r["disabled"]),
		TxBytes:    firstUint(r, "tx-byte", "tx-bytes", "tx-byte-count"),
		RxBytes:    firstUint(r, "rx-byte", "rx-bytes", "rx-byte-count"),
		LastLinkUp: r["last-link-up-time"],
	}
}

func resourceFromRow(r Row) *SystemResource {
	return &SystemResource{
		Uptime:       r["uptime"],
		Version:      r["version"],
		BuildTime:    r["build-time"],
		FreeMemory:   parseInt64(r["free-memory"]),
		TotalMemory:  parseInt64(r["total-memory"]),
		CPU:          r["cpu"],
		CPUCount:     int(parseInt64(r["cpu-count"])),
		CPUFrequency: int(parseInt64(r["cpu-frequency"])),
		CPULoad:      int(parseInt64(r["cpu-load"])),
		FreeHDD:      parseInt64(r["free-hdd-space"]),
		TotalHDD:     parseInt64(r["total-hdd-space"]),
		Architecture: r["architecture-name"],
		BoardName:    r["board-name"],
		Platform:     r["platform"],
	}
}

func routerBoardFromRow(r Row) *RouterBoard {
	return &RouterBoard{
		Model:           r["model"],
		SerialNumber:    r["serial-number"],
		FirmwareType:    r["firmware-type"],
		CurrentFirmware: r["current-firmware"],
		UpgradeFirmware: r["upgrade-firmware"],
	}
}

func parseBool(s string) bool {
	switch strings.ToLower(s) {
	case "true", "yes":
		return true
	}
	return false
}

func formatBool(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func parseInt64(s string) int64 {
	v, _ := strconv.ParseInt(s, 10, 64)
	return v
}

func parseUint(s string) uint64 {
	v, _ := strconv.ParseUint(s, 10, 64)
	return v
}

func firstUint(r Row, keys ...string) uint64 {
	for _, k := range keys {
		if v, ok := r[k]; ok && v != "" {
			return parseUint(v)
		}
	}
	return 0
}
