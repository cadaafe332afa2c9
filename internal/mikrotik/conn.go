package mikrotik

import (
	"context"
	"errors"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/go-routeros/routeros/v3"
)

// DefaultPort is the plain-text RouterOS API port.
const DefaultPort = 8728

// DefaultTimeout bounds connect and every command round-trip when settings leave it unset.
const DefaultTimeout = 10 * time.Second

// Config holds the connection parameters for one router.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	Timeout  time.Duration
}

// Address returns host:port, defaulting the port to the API port.
func (c Config) Address() string {
	port := c.Port
	if port <= 0 {
		port = DefaultPort
	}
	return net.JoinHostPort(c.Host, strconv.Itoa(port))
}

// ParseHost splits a "host" or "host:port" setting.
func ParseHost(value string) (string, int) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", DefaultPort
	}
	host, portStr, err := net.SplitHostPort(value)
	if err != nil {
		return value, DefaultPort
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port <= 0 || port > 65535 {
		return host, DefaultPort
	}
	return host, port
}

// Row is one !re reply: attribute name to value, without the leading '='.
type Row map[string]string

// Conn is a single authenticated API session. It is not safe for concurrent use.
type Conn struct {
	nc      net.Conn
	client  *routeros.Client
	timeout time.Duration
}

// Dial connects to the router and logs in. All failures are UnavailableErrors.
// Routers older than 6.43 get the MD5 challenge login.
func Dial(ctx context.Context, cfg Config) (*Conn, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	dialer := &net.Dialer{Timeout: timeout}
	nc, err := dialer.DialContext(ctx, "tcp", cfg.Address())
	if err != nil {
		return nil, &UnavailableError{Op: "connect", Err: err}
	}
	if err := nc.SetDeadline(time.Now().Add(timeout)); err != nil {
		nc.Close()
		return nil, &UnavailableError{Op: "connect", Err: err}
	}

	client, err := routeros.NewClient(nc)
	if err != nil {
		nc.Close()
		return nil, &UnavailableError{Op: "login", Err: err}
	}
	if err := client.Login(cfg.Username, cfg.Password); err != nil {
		client.Close()
		return nil, &UnavailableError{Op: "login", Err: deviceError(err)}
	}
	return &Conn{nc: nc, client: client, timeout: timeout}, nil
}

// Run sends a command and collects its !re rows. A !trap reply becomes an UnavailableError.
func (c *Conn) Run(command string, args ...string) ([]Row, error) {
	if err := c.nc.SetDeadline(time.Now().Add(c.timeout)); err != nil {
		return nil, &UnavailableError{Op: command, Err: err}
	}
	reply, err := c.client.RunArgs(append([]string{command}, args...))
	if err != nil {
		return nil, &UnavailableError{Op: command, Err: deviceError(err)}
	}

	rows := make([]Row, 0, len(reply.Re))
	for _, re := range reply.Re {
		rows = append(rows, Row(re.Map))
	}
	return rows, nil
}

// Close ends the session. The connection is closed even if it is already broken.
func (c *Conn) Close() error {
	return c.client.Close()
}

// deviceError converts a !trap reply into a DeviceError and passes anything
// else through.
func deviceError(err error) error {
	var de *routeros.DeviceError
	if !errors.As(err, &de) || de.Sentence == nil {
		return err
	}
	out := &DeviceError{
		Message:  de.Sentence.Map["message"],
		Category: de.Sentence.Map["category"],
	}
	if out.Message == "" {
		out.Message = strings.TrimPrefix(de.Sentence.Word, "!")
	}
	return out
}

// IsDeviceError reports whether the router answered with !trap.
func IsDeviceError(err error) bool {
	var de *DeviceError
	return errors.As(err, &de)
}
