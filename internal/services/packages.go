package services

import (
	"context"
	"regexp"

	"go.uber.org/zap"

	"github.com/ispanel/backend/internal/mikrotik"
	"github.com/ispanel/backend/internal/models"
	"github.com/ispanel/backend/internal/store"
)

// rateLimitPattern matches plain "10M/20M" style profile rate limits.
var rateLimitPattern = regexp.MustCompile(`^\d+M/\d+M$`)

type PackageSyncResult struct {
	TotalProfiles int `json:"total_profiles"`
	Inserted      int `json:"inserted"`
	Skipped       int `json:"skipped"`
}

// PackageService imports PPP profiles as sellable packages.
type PackageService struct {
	store  store.PackageStore
	router Router
	log    *zap.Logger
}

func NewPackageService(st store.PackageStore, router Router, log *zap.Logger) *PackageService {
	return &PackageService{store: st, router: router, log: log}
}

func (p *PackageService) List(ctx context.Context) ([]models.Package, error) {
	return p.store.ListPackages(ctx)
}

// SyncFromProfiles inserts one package per profile with a plain M/M rate
// limit, unless a package with that rate limit already exists. The default
// profile is never imported. Router failures are returned.
func (p *PackageService) SyncFromProfiles(ctx context.Context) (*PackageSyncResult, error) {
	var profiles []mikrotik.Profile
	err := p.router.WithConnection(ctx, func(cmd mikrotik.Commands) error {
		var err error
		profiles, err = cmd.ListProfiles()
		return err
	})
	if err != nil {
		return nil, err
	}

	existing, err := p.store.ListPackages(ctx)
	if err != nil {
		return nil, err
	}
	known := make(map[string]bool, len(existing))
	for _, pkg := range existing {
		known[pkg.RateLimit] = true
	}

	res := &PackageSyncResult{TotalProfiles: len(profiles)}
	for _, prof := range profiles {
		if prof.Name == "default" || !rateLimitPattern.MatchString(prof.RateLimit) || known[prof.RateLimit] {
			res.Skipped++
			continue
		}
		pkg := &models.Package{Name: prof.Name, RateLimit: prof.RateLimit}
		if err := p.store.CreatePackage(ctx, pkg); err != nil {
			if store.IsConflict(err) {
				res.Skipped++
				continue
			}
			return res, err
		}
		known[prof.RateLimit] = true
		res.Inserted++
	}
	p.log.Info("Packages: profiles imported",
		zap.Int("profiles", res.TotalProfiles),
		zap.Int("inserted", res.Inserted),
		zap.Int("skipped", res.Skipped))
	return res, nil
}
