package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ispanel/backend/internal/mikrotik"
	"github.com/ispanel/backend/internal/models"
)

func TestRouterConfigSource(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	src := NewRouterConfigSource(m)

	_, err := src.RouterConfig(ctx)
	assert.ErrorIs(t, err, mikrotik.ErrNotConfigured)

	require.NoError(t, m.SaveSettings(ctx, &models.Setting{CompanyName: "ISP"}))
	_, err = src.RouterConfig(ctx)
	assert.ErrorIs(t, err, mikrotik.ErrNotConfigured, "settings without router credentials")

	st := &models.Setting{MikrotikHost: "10.1.1.1:8729", MikrotikUser: "api", MikrotikPassword: "pw", MikrotikTimeoutMs: 3000}
	require.NoError(t, m.SaveSettings(ctx, st))
	cfg, err := src.RouterConfig(ctx)
	require.NoError(t, err)
	assert.Equal(t, "10.1.1.1", cfg.Host)
	assert.Equal(t, 8729, cfg.Port)
	assert.Equal(t, 3*time.Second, cfg.Timeout)

	// edits apply on the next read
	st.MikrotikHost = "10.1.1.2"
	require.NoError(t, m.SaveSettings(ctx, st))
	cfg, err = src.RouterConfig(ctx)
	require.NoError(t, err)
	assert.Equal(t, "10.1.1.2", cfg.Host)
	assert.Equal(t, mikrotik.DefaultPort, cfg.Port)
}

type prefixOpener struct{}

func (prefixOpener) Open(v string) (string, error) {
	if v == "bad" {
		return "", assert.AnError
	}
	return "open:" + v, nil
}

func TestRouterConfigSourceOpensPassword(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	src := NewRouterConfigSource(m).WithOpener(prefixOpener{})

	require.NoError(t, m.SaveSettings(ctx, &models.Setting{MikrotikHost: "10.1.1.1", MikrotikUser: "api", MikrotikPassword: "pw"}))
	cfg, err := src.RouterConfig(ctx)
	require.NoError(t, err)
	assert.Equal(t, "open:pw", cfg.Password)

	require.NoError(t, m.SaveSettings(ctx, &models.Setting{MikrotikHost: "10.1.1.1", MikrotikUser: "api", MikrotikPassword: "bad"}))
	_, err = src.RouterConfig(ctx)
	assert.ErrorIs(t, err, assert.AnError)
}
