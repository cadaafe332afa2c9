package services

import (
	"context"

	"github.com/ispanel/backend/internal/mikrotik"
)

// PPPoEService exposes raw router tables. Unlike the write paths, a router
// failure here is returned to the caller.
type PPPoEService struct {
	router Router
}

func NewPPPoEService(router Router) *PPPoEService {
	return &PPPoEService{router: router}
}

func (p *PPPoEService) Secrets(ctx context.Context, name string) ([]mikrotik.Secret, error) {
	var out []mikrotik.Secret
	err := p.router.WithConnection(ctx, func(cmd mikrotik.Commands) error {
		var err error
		out, err = cmd.ListSecrets(name)
		return err
	})
	return out, err
}

func (p *PPPoEService) Active(ctx context.Context, name string) ([]mikrotik.ActiveSession, error) {
	var out []mikrotik.ActiveSession
	err := p.router.WithConnection(ctx, func(cmd mikrotik.Commands) error {
		var err error
		out, err = cmd.ListActive(name)
		return err
	})
	return out, err
}

func (p *PPPoEService) Profiles(ctx context.Context) ([]mikrotik.Profile, error) {
	var out []mikrotik.Profile
	err := p.router.WithConnection(ctx, func(cmd mikrotik.Commands) error {
		var err error
		out, err = cmd.ListProfiles()
		return err
	})
	return out, err
}

func (p *PPPoEService) Interfaces(ctx context.Context, name string) ([]mikrotik.Interface, error) {
	var out []mikrotik.Interface
	err := p.router.WithConnection(ctx, func(cmd mikrotik.Commands) error {
		var err error
		out, err = cmd.ListInterfaces(name)
		return err
	})
	return out, err
}
