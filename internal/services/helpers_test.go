package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ispanel/backend/internal/mikrotik"
	"github.com/ispanel/backend/internal/mikrotik/mikrotiktest"
	"github.com/ispanel/backend/internal/models"
	"github.com/ispanel/backend/internal/store"
)

type fixture struct {
	ctx    context.Context
	store  *store.MemoryStore
	router *mikrotiktest.Router
	log    *zap.Logger
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return &fixture{
		ctx:    context.Background(),
		store:  store.NewMemoryStore(),
		router: mikrotiktest.New(),
		log:    zap.NewNop(),
	}
}

// addSubscriber stores a subscriber and the matching router secret.
func (f *fixture) addSubscriber(t *testing.T, sub models.Subscriber) *models.Subscriber {
	t.Helper()
	require.NoError(t, f.store.Create(f.ctx, &sub))
	f.router.PutSecret(mikrotik.Secret{Name: sub.Username, Profile: sub.Package, Disabled: sub.Disabled})
	return &sub
}

func (f *fixture) get(t *testing.T, id uint) *models.Subscriber {
	t.Helper()
	sub, err := f.store.Get(f.ctx, id)
	require.NoError(t, err)
	return sub
}

func (f *fixture) subscribers() *SubscriberService {
	svc := NewSubscriberService(f.store, f.router, NewUsageTracker(f.store, f.router, f.log), RenewPolicy{
		Period:       30 * 24 * time.Hour,
		PollAttempts: 4,
		PollDelay:    time.Millisecond,
	}, f.log)
	svc.sleep = func(context.Context, time.Duration) error { return nil }
	return svc
}

// failingStore fails Update for one subscriber.
type failingStore struct {
	*store.MemoryStore
	failID uint
}

func (s *failingStore) Update(ctx context.Context, id uint, patch *models.SubscriberPatch) (*models.Subscriber, error) {
	if id == s.failID {
		return nil, &store.Error{Op: "update subscriber", Err: context.DeadlineExceeded}
	}
	return s.MemoryStore.Update(ctx, id, patch)
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}
