package mikrotik

import (
	"bufio"
	"context"
	"crypto/md5"
	"encoding/hex"
	"io"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-routeros/routeros/v3/proto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDevice is a minimal RouterOS API endpoint over TCP. received holds every
// sentence exactly as sent.
type fakeDevice struct {
	t        *testing.T
	ln       net.Listener
	user     string
	password string
	// challenge enables the pre-6.43 MD5 login flow.
	challenge string
	// replies maps a command word to the sentences sent back.
	replies map[string][][]string

	mu       sync.Mutex
	received [][]string
	closed   int
}

func newFakeDevice(t *testing.T) *fakeDevice {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	d := &fakeDevice{t: t, ln: ln, user: "admin", password: "secret", replies: map[string][][]string{}}
	t.Cleanup(func() { ln.Close() })
	go d.serve()
	return d
}

func (d *fakeDevice) config() Config {
	addr := d.ln.Addr().(*net.TCPAddr)
	return Config{Host: "127.0.0.1", Port: addr.Port, Username: d.user, Password: d.password, Timeout: 2 * time.Second}
}

func (d *fakeDevice) serve() {
	for {
		c, err := d.ln.Accept()
		if err != nil {
			return
		}
		go d.handle(c)
	}
}

func (d *fakeDevice) handle(c net.Conn) {
	defer func() {
		c.Close()
		d.mu.Lock()
		d.closed++
		d.mu.Unlock()
	}()
	r := bufio.NewReader(c)
	w := proto.NewWriter(c)
	for {
		words, err := readSentence(r)
		if err != nil {
			return
		}
		d.mu.Lock()
		d.received = append(d.received, words)
		d.mu.Unlock()

		for _, reply := range d.reply(words) {
			w.BeginSentence()
			for _, word := range reply {
				w.WriteWord(word)
			}
			if err := w.EndSentence(); err != nil {
				return
			}
		}
	}
}

// readSentence reads raw words up to the empty terminator. Query words
// (?key=value) are kept as sent.
func readSentence(r *bufio.Reader) ([]string, error) {
	var words []string
	for {
		n, err := readLength(r)
		if err != nil {
			return nil, err
		}
		if n == 0 {
			if len(words) == 0 {
				continue
			}
			return words, nil
		}
		buf := make([]byte, n)
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, err
		}
		words = append(words, string(buf))
	}
}

func readLength(r *bufio.Reader) (int, error) {
	first, err := r.ReadByte()
	if err != nil {
		return 0, err
	}
	var extra, value int
	switch {
	case first&0x80 == 0:
		return int(first), nil
	case first&0xC0 == 0x80:
		extra, value = 1, int(first&0x3F)
	case first&0xE0 == 0xC0:
		extra, value = 2, int(first&0x1F)
	case first&0xF0 == 0xE0:
		extra, value = 3, int(first&0x0F)
	default:
		extra = 4
	}
	for i := 0; i < extra; i++ {
		b, err := r.ReadByte()
		if err != nil {
			return 0, err
		}
		value = value<<8 | int(b)
	}
	return value, nil
}

// attributes splits words of the form <prefix>key=value.
func attributes(words []string, prefix byte) map[string]string {
	out := map[string]string{}
	for _, w := range words[1:] {
		if len(w) < 2 || w[0] != prefix {
			continue
		}
		k, v, _ := strings.Cut(w[1:], "=")
		out[k] = v
	}
	return out
}

func (d *fakeDevice) reply(words []string) [][]string {
	attrs := attributes(words, '=')

	if words[0] == "/login" {
		if d.challenge != "" {
			if resp, ok := attrs["response"]; ok {
				raw, _ := hex.DecodeString(d.challenge)
				h := md5.New()
				h.Write([]byte{0})
				h.Write([]byte(d.password))
				h.Write(raw)
				if resp == "00"+hex.EncodeToString(h.Sum(nil)) && attrs["name"] == d.user {
					return [][]string{{"!done"}}
				}
				return [][]string{{"!trap", "=message=invalid user name or password (6)"}, {"!done"}}
			}
			return [][]string{{"!done", "=ret=" + d.challenge}}
		}
		if attrs["name"] == d.user && attrs["password"] == d.password {
			return [][]string{{"!done"}}
		}
		return [][]string{{"!trap", "=message=invalid user name or password (6)"}, {"!done"}}
	}

	rs, ok := d.replies[words[0]]
	if !ok {
		return [][]string{{"!trap", "=category=0", "=message=no such command"}, {"!done"}}
	}
	// honour ?name= filters on print commands the way the router does
	if name, filtered := attributes(words, '?')["name"]; filtered {
		var out [][]string
		for _, s := range rs {
			if s[0] == "!re" && attributes(s, '=')["name"] != name {
				continue
			}
			out = append(out, s)
		}
		return out
	}
	return rs
}

// commands returns every sentence received after login.
func (d *fakeDevice) commands() [][]string {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out [][]string
	for _, s := range d.received {
		if s[0] != "/login" {
			out = append(out, s)
		}
	}
	return out
}

func (d *fakeDevice) closedCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

func (d *fakeDevice) lastReceived() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.received[len(d.received)-1]
}

func TestDialPlainLoginAndRun(t *testing.T) {
	d := newFakeDevice(t)
	d.replies["/ppp/secret/print"] = [][]string{
		{"!re", "=.id=*1", "=name=alice", "=profile=10M", "=service=pppoe", "=disabled=false"},
		{"!re", "=.id=*2", "=name=bob", "=profile=20M", "=service=pppoe", "=disabled=true"},
		{"!done"},
	}

	c, err := Dial(context.Background(), d.config())
	require.NoError(t, err)
	defer c.Close()

	rows, err := c.Run("/ppp/secret/print")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "*1", rows[0][".id"])
	assert.Equal(t, "bob", rows[1]["name"])
	assert.Equal(t, "true", rows[1]["disabled"])
}

func TestDialChallengeLogin(t *testing.T) {
	d := newFakeDevice(t)
	d.challenge = "9c1d2f6a7e0b3c4d5e6f708192a3b4c5"
	d.replies["/system/identity/print"] = [][]string{{"!re", "=name=core"}, {"!done"}}

	c, err := Dial(context.Background(), d.config())
	require.NoError(t, err)
	defer c.Close()

	rows, err := c.Run("/system/identity/print")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "core", rows[0]["name"])
}

func TestDialBadCredentials(t *testing.T) {
	d := newFakeDevice(t)
	cfg := d.config()
	cfg.Password = "wrong"

	_, err := Dial(context.Background(), cfg)
	require.Error(t, err)
	assert.True(t, IsUnavailable(err))
	assert.Contains(t, err.Error(), "invalid user name or password")
}

func TestDialUnreachable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().(*net.TCPAddr)
	ln.Close()

	_, err = Dial(context.Background(), Config{Host: "127.0.0.1", Port: addr.Port, Timeout: time.Second})
	require.Error(t, err)
	var ue *UnavailableError
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, "connect", ue.Op)
}

func TestRunTrapBecomesUnavailable(t *testing.T) {
	d := newFakeDevice(t)
	d.replies["/ppp/secret/remove"] = [][]string{{"!trap", "=message=no such item"}, {"!done"}}

	c, err := Dial(context.Background(), d.config())
	require.NoError(t, err)
	defer c.Close()

	_, err = c.Run("/ppp/secret/remove", "=.id=*99")
	require.Error(t, err)
	assert.True(t, IsUnavailable(err))
	assert.True(t, IsDeviceError(err))
	assert.Contains(t, err.Error(), "no such item")
	assert.Equal(t, []string{"/ppp/secret/remove", "=.id=*99"}, d.lastReceived())
}

type staticSource struct {
	cfg *Config
	err error
}

func (s staticSource) RouterConfig(context.Context) (*Config, error) {
	return s.cfg, s.err
}

func TestWithConnectionNotConfigured(t *testing.T) {
	tr := NewTransport(staticSource{err: ErrNotConfigured}, nil, time.Second)
	dialed := false
	tr.dial = func(context.Context, Config) (runner, error) {
		dialed = true
		return nil, nil
	}

	err := tr.WithConnection(context.Background(), func(Commands) error { return nil })
	assert.ErrorIs(t, err, ErrNotConfigured)
	assert.False(t, dialed)

	tr = NewTransport(staticSource{cfg: &Config{}}, nil, time.Second)
	err = tr.WithConnection(context.Background(), func(Commands) error { return nil })
	assert.True(t, IsNotConfigured(err))
}

type closeRecorder struct {
	closed   int
	closeErr error
}

func (c *closeRecorder) Run(string, ...string) ([]Row, error) { return nil, nil }
func (c *closeRecorder) Close() error {
	c.closed++
	return c.closeErr
}

func TestWithConnectionAlwaysCloses(t *testing.T) {
	rec := &closeRecorder{closeErr: net.ErrClosed}
	tr := NewTransport(staticSource{cfg: &Config{Host: "10.0.0.1"}}, nil, time.Second)
	tr.dial = func(_ context.Context, cfg Config) (runner, error) {
		assert.Equal(t, time.Second, cfg.Timeout)
		return rec, nil
	}

	err := tr.WithConnection(context.Background(), func(Commands) error { return nil })
	require.NoError(t, err, "close error must not surface")
	assert.Equal(t, 1, rec.closed)

	handlerErr := &UnavailableError{Op: "/ppp/secret/set", Err: &DeviceError{Message: "no such item"}}
	err = tr.WithConnection(context.Background(), func(Commands) error { return handlerErr })
	assert.Same(t, handlerErr, err)
	assert.Equal(t, 2, rec.closed)

	assert.Panics(t, func() {
		_ = tr.WithConnection(context.Background(), func(Commands) error { panic("boom") })
	})
	assert.Equal(t, 3, rec.closed)
}

func TestWithConnectionAgainstDevice(t *testing.T) {
	d := newFakeDevice(t)
	d.replies["/ppp/secret/print"] = [][]string{
		{"!re", "=.id=*6", "=name=bob", "=disabled=no"},
		{"!re", "=.id=*7", "=name=alice", "=disabled=no"},
		{"!done"},
	}
	d.replies["/ppp/secret/set"] = [][]string{{"!done"}}
	cfg := d.config()

	tr := NewTransport(staticSource{cfg: &cfg}, nil, time.Second)
	var found bool
	err := tr.WithConnection(context.Background(), func(cmd Commands) error {
		var err error
		found, err = SetSecretDisabled(cmd, "alice", true)
		return err
	})
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, [][]string{
		{"/ppp/secret/print", "?name=alice"},
		{"/ppp/secret/set", "=.id=*7", "=disabled=yes"},
	}, d.commands())

	found = true
	err = tr.WithConnection(context.Background(), func(cmd Commands) error {
		var err error
		found, err = SetSecretDisabled(cmd, "carol", true)
		return err
	})
	require.NoError(t, err)
	assert.False(t, found)
	assert.Equal(t, []string{"/ppp/secret/print", "?name=carol"}, d.lastReceived(), "no set without a match")

	require.Eventually(t, func() bool { return d.closedCount() == 2 }, time.Second, 10*time.Millisecond)
}

func TestInterfaceCountersParsing(t *testing.T) {
	d := newFakeDevice(t)
	d.replies["/interface/print"] = [][]string{
		{"!re", "=.id=*A", "=name=<pppoe-alice>", "=type=pppoe-in", "=tx-byte=1500", "=rx-byte=2500", "=running=true"},
		{"!done"},
	}
	cfg := d.config()
	tr := NewTransport(staticSource{cfg: &cfg}, nil, time.Second)

	var iface *Interface
	err := tr.WithConnection(context.Background(), func(cmd Commands) error {
		var err error
		iface, err = InterfaceCounters(cmd, PPPoEInterfaceName("alice"))
		return err
	})
	require.NoError(t, err)
	require.NotNil(t, iface)
	assert.Equal(t, uint64(4000), iface.Total())
	assert.True(t, iface.Running)
	assert.Equal(t, []string{"/interface/print", "?name=<pppoe-alice>"}, d.lastReceived())
}

func TestBridgeHostsPortColumns(t *testing.T) {
	d := newFakeDevice(t)
	d.replies["/interface/bridge/host/print"] = [][]string{
		{"!re", "=mac-address=AA:BB:CC:00:00:01", "=interface=ether7", "=bridge=bridge1"},
		{"!re", "=mac-address=AA:BB:CC:00:00:02", "=on-interface=ether2", "=bridge=bridge1"},
		{"!done"},
	}
	cfg := d.config()
	tr := NewTransport(staticSource{cfg: &cfg}, nil, time.Second)

	var hosts []BridgeHost
	err := tr.WithConnection(context.Background(), func(cmd Commands) error {
		var err error
		hosts, err = cmd.BridgeHosts()
		return err
	})
	require.NoError(t, err)
	require.Len(t, hosts, 2)
	assert.Equal(t, "ether7", hosts[0].Port())
	assert.Equal(t, "ether2", hosts[1].Port())
}
