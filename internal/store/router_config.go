package store

import (
	"context"
	"time"

	"github.com/ispanel/backend/internal/mikrotik"
)

// RouterConfigSource reads router credentials from the newest settings row on
// every call, so edits apply to the next connection.
type RouterConfigSource struct {
	settings SettingsStore
	opener   PasswordOpener
}

// PasswordOpener recovers a router password stored in sealed form.
type PasswordOpener interface {
	Open(value string) (string, error)
}

func NewRouterConfigSource(settings SettingsStore) *RouterConfigSource {
	return &RouterConfigSource{settings: settings}
}

// WithOpener decrypts the stored router password before use.
func (r *RouterConfigSource) WithOpener(o PasswordOpener) *RouterConfigSource {
	r.opener = o
	return r
}

func (r *RouterConfigSource) RouterConfig(ctx context.Context) (*mikrotik.Config, error) {
	st, err := r.settings.GetSettings(ctx)
	if IsNotFound(err) {
		return nil, mikrotik.ErrNotConfigured
	}
	if err != nil {
		return nil, err
	}
	if !st.HasRouter() {
		return nil, mikrotik.ErrNotConfigured
	}

	password := st.MikrotikPassword
	if r.opener != nil {
		if password, err = r.opener.Open(password); err != nil {
			return nil, err
		}
	}

	host, port := mikrotik.ParseHost(st.MikrotikHost)
	return &mikrotik.Config{
		Host:     host,
		Port:     port,
		Username: st.MikrotikUser,
		Password: password,
		Timeout:  time.Duration(st.MikrotikTimeoutMs) * time.Millisecond,
	}, nil
}

var _ mikrotik.ConfigSource = (*RouterConfigSource)(nil)
