package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ispanel/backend/internal/models"
)

// MemoryStore is a process-local Store. Every method copies values in and out
// so callers never share memory with the store.
type MemoryStore struct {
	mu sync.RWMutex

	subscribers map[uint]models.Subscriber
	packages    []models.Package
	settings    []models.Setting
	users       map[uint]models.User
	nextID      uint

	// writes counts successful subscriber mutations, for tests asserting idempotency.
	writes int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		subscribers: map[uint]models.Subscriber{},
		users:       map[uint]models.User{},
	}
}

func (m *MemoryStore) id() uint {
	m.nextID++
	return m.nextID
}

// SubscriberWrites reports how many subscriber creates, updates and deletes succeeded.
func (m *MemoryStore) SubscriberWrites() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.writes
}

func matches(s *models.Subscriber, f SubscriberFilter) bool {
	if f.Search != "" {
		hit := false
		for _, v := range []string{s.Username, s.Name, s.Mobile, s.Email, s.Salesperson} {
			if strings.Contains(v, f.Search) {
				hit = true
				break
			}
		}
		if !hit {
			return false
		}
	}
	if f.Disabled != nil && s.Disabled != *f.Disabled {
		return false
	}
	if f.Online != nil && s.Online != *f.Online {
		return false
	}
	if f.Package != "" && s.Package != f.Package {
		return false
	}
	if f.ExpiresBefore != nil && (s.ExpiryDate == nil || !s.ExpiryDate.Before(*f.ExpiresBefore)) {
		return false
	}
	return true
}

func lessBy(column string) func(a, b *models.Subscriber) bool {
	switch column {
	case "name":
		return func(a, b *models.Subscriber) bool { return a.Name < b.Name }
	case "username":
		return func(a, b *models.Subscriber) bool { return a.Username < b.Username }
	case "mobile":
		return func(a, b *models.Subscriber) bool { return a.Mobile < b.Mobile }
	case "package":
		return func(a, b *models.Subscriber) bool { return a.Package < b.Package }
	case "connection_type":
		return func(a, b *models.Subscriber) bool { return a.ConnectionType < b.ConnectionType }
	case "salesperson":
		return func(a, b *models.Subscriber) bool { return a.Salesperson < b.Salesperson }
	case "disabled":
		return func(a, b *models.Subscriber) bool { return !a.Disabled && b.Disabled }
	case "created_at":
		return func(a, b *models.Subscriber) bool { return a.CreatedAt.Before(b.CreatedAt) }
	case "used_bytes_total":
		return func(a, b *models.Subscriber) bool { return a.UsedBytesTotal < b.UsedBytesTotal }
	case "expiry_date":
		return func(a, b *models.Subscriber) bool {
			if a.ExpiryDate == nil || b.ExpiryDate == nil {
				return a.ExpiryDate == nil && b.ExpiryDate != nil
			}
			return a.ExpiryDate.Before(*b.ExpiryDate)
		}
	}
	return func(a, b *models.Subscriber) bool { return a.ID < b.ID }
}

func (m *MemoryStore) Get(_ context.Context, id uint) (*models.Subscriber, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.subscribers[id]
	if !ok {
		return nil, &Error{Op: "get subscriber", Err: ErrNotFound}
	}
	return &s, nil
}

func (m *MemoryStore) GetByUsername(_ context.Context, username string) (*models.Subscriber, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, s := range m.subscribers {
		if s.Username == username {
			s := s
			return &s, nil
		}
	}
	return nil, &Error{Op: "get subscriber by username", Err: ErrNotFound}
}

func (m *MemoryStore) List(_ context.Context, opts ListOptions) ([]models.Subscriber, int64, error) {
	m.mu.RLock()
	var all []models.Subscriber
	for _, s := range m.subscribers {
		s := s
		if matches(&s, opts.Filter) {
			all = append(all, s)
		}
	}
	m.mu.RUnlock()

	less := lessBy(opts.sortColumn())
	sort.SliceStable(all, func(i, j int) bool {
		if opts.SortDesc {
			return less(&all[j], &all[i])
		}
		return less(&all[i], &all[j])
	})

	total := int64(len(all))
	if opts.Limit > 0 {
		start := opts.offset()
		if start >= len(all) {
			return []models.Subscriber{}, total, nil
		}
		end := start + opts.Limit
		if end > len(all) {
			end = len(all)
		}
		all = all[start:end]
	}
	return all, total, nil
}

func (m *MemoryStore) Create(_ context.Context, sub *models.Subscriber) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.subscribers {
		if s.Username == sub.Username {
			return &Error{Op: "create subscriber", Err: ErrUsernameExists}
		}
	}
	now := time.Now().UTC()
	sub.ID = m.id()
	sub.CreatedAt, sub.UpdatedAt = now, now
	if sub.ConnectionType == "" {
		sub.ConnectionType = "pppoe"
	}
	m.subscribers[sub.ID] = *sub
	m.writes++
	return nil
}

func (m *MemoryStore) Update(_ context.Context, id uint, patch *models.SubscriberPatch) (*models.Subscriber, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.subscribers[id]
	if !ok {
		return nil, &Error{Op: "update subscriber", Err: ErrNotFound}
	}
	if !patch.IsEmpty() {
		patch.Apply(&s)
		s.UpdatedAt = time.Now().UTC()
		m.subscribers[id] = s
		m.writes++
	}
	return &s, nil
}

func (m *MemoryStore) UpdateUsage(_ context.Context, id uint, expect, next UsageCounters) (*models.Subscriber, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.subscribers[id]
	if !ok {
		return nil, false, &Error{Op: "update usage", Err: ErrNotFound}
	}
	if s.UsedBytesTotal != expect.Total || s.LastBytesSnapshot != expect.Last {
		return &s, false, nil
	}
	s.UsedBytesTotal = next.Total
	s.LastBytesSnapshot = next.Last
	s.UpdatedAt = time.Now().UTC()
	m.subscribers[id] = s
	m.writes++
	return &s, true, nil
}

func (m *MemoryStore) Delete(_ context.Context, id uint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.subscribers[id]; !ok {
		return &Error{Op: "delete subscriber", Err: ErrNotFound}
	}
	delete(m.subscribers, id)
	m.writes++
	return nil
}

func (m *MemoryStore) Count(_ context.Context, filter SubscriberFilter) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var n int64
	for _, s := range m.subscribers {
		s := s
		if matches(&s, filter) {
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) GroupByPackage(_ context.Context) ([]models.PackageCount, error) {
	m.mu.RLock()
	counts := map[string]int64{}
	for _, s := range m.subscribers {
		counts[s.Package]++
	}
	m.mu.RUnlock()

	rows := make([]models.PackageCount, 0, len(counts))
	for pkg, n := range counts {
		rows = append(rows, models.PackageCount{Package: pkg, Count: n})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Package < rows[j].Package })
	return rows, nil
}

func (m *MemoryStore) ListPackages(_ context.Context) ([]models.Package, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := append([]models.Package(nil), m.packages...)
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *MemoryStore) CreatePackage(_ context.Context, pkg *models.Package) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.packages {
		if p.Name == pkg.Name {
			return &Error{Op: "create package", Err: ErrAlreadyExists}
		}
	}
	now := time.Now().UTC()
	pkg.ID = m.id()
	pkg.CreatedAt, pkg.UpdatedAt = now, now
	m.packages = append(m.packages, *pkg)
	return nil
}

func (m *MemoryStore) GetSettings(_ context.Context) (*models.Setting, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.settings) == 0 {
		return nil, &Error{Op: "get settings", Err: ErrNotFound}
	}
	st := m.settings[len(m.settings)-1]
	return &st, nil
}

func (m *MemoryStore) SaveSettings(_ context.Context, st *models.Setting) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	st.UpdatedAt = now
	for i := range m.settings {
		if m.settings[i].ID == st.ID && st.ID != 0 {
			m.settings[i] = *st
			return nil
		}
	}
	st.ID = m.id()
	st.CreatedAt = now
	m.settings = append(m.settings, *st)
	return nil
}

func (m *MemoryStore) GetUser(_ context.Context, id uint) (*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	if !ok {
		return nil, &Error{Op: "get user", Err: ErrNotFound}
	}
	return &u, nil
}

func (m *MemoryStore) GetUserByUsername(_ context.Context, username string) (*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, u := range m.users {
		if u.Username == username {
			u := u
			return &u, nil
		}
	}
	return nil, &Error{Op: "get user by username", Err: ErrNotFound}
}

func (m *MemoryStore) CreateUser(_ context.Context, u *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.users {
		if existing.Username == u.Username {
			return &Error{Op: "create user", Err: ErrUsernameExists}
		}
	}
	now := time.Now().UTC()
	u.ID = m.id()
	u.CreatedAt, u.UpdatedAt = now, now
	m.users[u.ID] = *u
	return nil
}

func (m *MemoryStore) CountUsers(_ context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.users)), nil
}

func (m *MemoryStore) TouchLogin(_ context.Context, id uint, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return &Error{Op: "touch login", Err: ErrNotFound}
	}
	u.LastLogin = &at
	m.users[id] = u
	return nil
}

var _ Store = (*MemoryStore)(nil)
