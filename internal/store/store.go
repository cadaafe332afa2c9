// Package store persists subscribers, packages, settings and admin users.
//
// Two implementations share the interfaces below: GormStore for PostgreSQL or
// MySQL, and MemoryStore for tests and DB_DRIVER=memory.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ispanel/backend/internal/models"
)

var (
	ErrNotFound       = errors.New("record not found")
	ErrUsernameExists = errors.New("username already exists")
	ErrAlreadyExists  = errors.New("record already exists")
)

// Error is a persistence failure. It always wraps the cause, which is one of
// the sentinels above when the failure is actionable.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("store: %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsNotFound reports whether err wraps ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsConflict reports whether err is a uniqueness violation.
func IsConflict(err error) bool {
	return errors.Is(err, ErrUsernameExists) || errors.Is(err, ErrAlreadyExists)
}

// SubscriberFilter narrows List and Count. Zero values match everything.
type SubscriberFilter struct {
	// Search matches username, name, mobile, email or salesperson by substring.
	Search        string
	Disabled      *bool
	Online        *bool
	Package       string
	ExpiresBefore *time.Time
}

// ListOptions controls sorting and pagination. Limit 0 returns every row.
type ListOptions struct {
	Filter   SubscriberFilter
	SortBy   string
	SortDesc bool
	Page     int
	Limit    int
}

// SortableColumns whitelists sort keys.
var SortableColumns = map[string]bool{
	"id":               true,
	"name":             true,
	"username":         true,
	"mobile":           true,
	"package":          true,
	"connection_type":  true,
	"salesperson":      true,
	"disabled":         true,
	"created_at":       true,
	"expiry_date":      true,
	"used_bytes_total": true,
}

func (o ListOptions) sortColumn() string {
	if SortableColumns[o.SortBy] {
		return o.SortBy
	}
	return "id"
}

func (o ListOptions) offset() int {
	if o.Page <= 1 || o.Limit <= 0 {
		return 0
	}
	return (o.Page - 1) * o.Limit
}

type SubscriberStore interface {
	Get(ctx context.Context, id uint) (*models.Subscriber, error)
	GetByUsername(ctx context.Context, username string) (*models.Subscriber, error)
	List(ctx context.Context, opts ListOptions) ([]models.Subscriber, int64, error)
	Create(ctx context.Context, sub *models.Subscriber) error
	Update(ctx context.Context, id uint, patch *models.SubscriberPatch) (*models.Subscriber, error)
	// UpdateUsage writes both usage counters only while they still hold
	// expect. ok is false when another writer changed them first; the
	// returned row is current either way.
	UpdateUsage(ctx context.Context, id uint, expect, next UsageCounters) (sub *models.Subscriber, ok bool, err error)
	Delete(ctx context.Context, id uint) error
	Count(ctx context.Context, filter SubscriberFilter) (int64, error)
	GroupByPackage(ctx context.Context) ([]models.PackageCount, error)
}

// UsageCounters is the pair of byte counters kept per subscriber.
type UsageCounters struct {
	Total uint64
	Last  uint64
}

type PackageStore interface {
	ListPackages(ctx context.Context) ([]models.Package, error)
	CreatePackage(ctx context.Context, pkg *models.Package) error
}

type SettingsStore interface {
	// GetSettings returns the newest settings row or ErrNotFound.
	GetSettings(ctx context.Context) (*models.Setting, error)
	SaveSettings(ctx context.Context, s *models.Setting) error
}

type UserStore interface {
	GetUser(ctx context.Context, id uint) (*models.User, error)
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	CreateUser(ctx context.Context, u *models.User) error
	CountUsers(ctx context.Context) (int64, error)
	TouchLogin(ctx context.Context, id uint, at time.Time) error
}

// Store is everything the panel persists.
type Store interface {
	SubscriberStore
	PackageStore
	SettingsStore
	UserStore
}
