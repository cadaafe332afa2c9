package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ispanel/backend/internal/mikrotik"
	"github.com/ispanel/backend/internal/models"
	"github.com/ispanel/backend/internal/store"
)

func TestCreateSubscriber(t *testing.T) {
	f := newFixture(t)
	svc := f.subscribers()
	gb := 1.5

	res, err := svc.Create(f.ctx, CreateSubscriberInput{
		Username:    "alice",
		Password:    "s3cret",
		Package:     "10M",
		DataLimitGB: &gb,
	})
	require.NoError(t, err)
	assert.Empty(t, res.Warning)
	assert.Equal(t, "alice", res.Subscriber.Name)
	assert.Equal(t, uint64(1610612736), res.Subscriber.DataLimitBytes)

	secret, ok := f.router.Secret("alice")
	require.True(t, ok)
	assert.Equal(t, "10M", secret.Profile)
	assert.Equal(t, "s3cret", secret.Password)
	assert.Equal(t, "pppoe", secret.Service)
}

func TestCreateSubscriberUniqueUsername(t *testing.T) {
	f := newFixture(t)
	svc := f.subscribers()
	_, err := svc.Create(f.ctx, CreateSubscriberInput{Username: "alice", Password: "x"})
	require.NoError(t, err)

	_, err = svc.Create(f.ctx, CreateSubscriberInput{Username: "alice", Password: "y"})
	require.Error(t, err)
	assert.True(t, store.IsConflict(err))
	assert.Equal(t, 1, f.router.CallCount("AddSecret"))
}

func TestCreateSubscriberValidation(t *testing.T) {
	f := newFixture(t)
	svc := f.subscribers()

	_, err := svc.Create(f.ctx, CreateSubscriberInput{Password: "x"})
	require.Error(t, err)
	assert.True(t, IsValidation(err))
	assert.Contains(t, err.Error(), "username")

	_, err = svc.Create(f.ctx, CreateSubscriberInput{Username: "bad name", Password: "x"})
	assert.True(t, IsValidation(err))

	_, err = svc.Create(f.ctx, CreateSubscriberInput{Username: "ok", Password: "x", Email: "nope"})
	assert.True(t, IsValidation(err))

	assert.Zero(t, f.store.SubscriberWrites())
	assert.Zero(t, f.router.Connections())
}

func TestCreateSubscriberRouterNotConfigured(t *testing.T) {
	f := newFixture(t)
	f.router.NotConfigured = true

	res, err := f.subscribers().Create(f.ctx, CreateSubscriberInput{Username: "alice", Password: "x"})
	require.NoError(t, err)
	assert.Contains(t, res.Warning, "not configured")
	_, err = f.store.GetByUsername(f.ctx, "alice")
	assert.NoError(t, err)
}

func TestUpdateSubscriberPushesPasswordAndProfile(t *testing.T) {
	f := newFixture(t)
	sub := f.addSubscriber(t, models.Subscriber{Username: "alice", Package: "10M"})
	pw, pkg := "new-pass", "20M"

	res, err := f.subscribers().Update(f.ctx, sub.ID, UpdateSubscriberInput{Password: &pw, Package: &pkg})
	require.NoError(t, err)
	assert.Empty(t, res.Warning)
	assert.Equal(t, "20M", res.Subscriber.Package)

	secret, _ := f.router.Secret("alice")
	assert.Equal(t, "new-pass", secret.Password)
	assert.Equal(t, "20M", secret.Profile)
}

func TestUpdateSubscriberWithoutRouterFields(t *testing.T) {
	f := newFixture(t)
	sub := f.addSubscriber(t, models.Subscriber{Username: "alice"})
	name := "Alice A."

	res, err := f.subscribers().Update(f.ctx, sub.ID, UpdateSubscriberInput{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, "Alice A.", res.Subscriber.Name)
	assert.Zero(t, f.router.Connections())
}

func TestUpdateSubscriberNotFound(t *testing.T) {
	f := newFixture(t)
	name := "x"
	_, err := f.subscribers().Update(f.ctx, 42, UpdateSubscriberInput{Name: &name})
	assert.True(t, store.IsNotFound(err))
}

func TestDisableAndEnable(t *testing.T) {
	f := newFixture(t)
	sub := f.addSubscriber(t, models.Subscriber{Username: "alice"})
	f.router.Connect("alice", "10.0.0.2", 0, 0)
	svc := f.subscribers()

	res, err := svc.Disable(f.ctx, sub.ID)
	require.NoError(t, err)
	assert.Empty(t, res.Warning)
	assert.True(t, res.Subscriber.Disabled)
	secret, _ := f.router.Secret("alice")
	assert.True(t, secret.Disabled)
	assert.False(t, f.router.IsOnline("alice"))

	res, err = svc.Enable(f.ctx, sub.ID)
	require.NoError(t, err)
	assert.False(t, res.Subscriber.Disabled)
	secret, _ = f.router.Secret("alice")
	assert.False(t, secret.Disabled)
}

func TestDisableRouterFailureKeepsStoreChange(t *testing.T) {
	f := newFixture(t)
	sub := f.addSubscriber(t, models.Subscriber{Username: "alice"})
	f.router.Connect("alice", "10.0.0.2", 0, 0)
	f.router.FailOn("SetSecret", nil)

	res, err := f.subscribers().Disable(f.ctx, sub.ID)
	require.NoError(t, err)
	assert.Contains(t, res.Warning, "disable secret failed")
	assert.True(t, f.get(t, sub.ID).Disabled)
	// the session kill is still attempted
	assert.False(t, f.router.IsOnline("alice"))
}

func TestRenewResetsState(t *testing.T) {
	f := newFixture(t)
	past := time.Now().Add(-48 * time.Hour)
	sub := f.addSubscriber(t, models.Subscriber{
		Username:          "alice",
		Disabled:          true,
		ExpiryDate:        &past,
		DataLimitBytes:    1000,
		UsedBytesTotal:    5000,
		LastBytesSnapshot: 1200,
	})
	f.router.Connect("alice", "10.0.0.2", 600, 600)
	f.router.LingerPolls = 2

	svc := f.subscribers()
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	svc.now = fixedClock(now)

	res, err := svc.Renew(f.ctx, sub.ID)
	require.NoError(t, err)
	assert.Empty(t, res.Warning)

	got := f.get(t, sub.ID)
	assert.Zero(t, got.UsedBytesTotal)
	assert.Zero(t, got.LastBytesSnapshot)
	assert.False(t, got.Disabled)
	require.NotNil(t, got.ExpiryDate)
	assert.True(t, got.ExpiryDate.Equal(now.Add(30*24*time.Hour)))

	secret, _ := f.router.Secret("alice")
	assert.False(t, secret.Disabled)
	assert.False(t, f.router.IsOnline("alice"))
}

func TestRenewWarnsWhenSessionLingers(t *testing.T) {
	f := newFixture(t)
	sub := f.addSubscriber(t, models.Subscriber{Username: "alice"})
	f.router.Connect("alice", "10.0.0.2", 0, 0)
	f.router.LingerPolls = 100

	res, err := f.subscribers().Renew(f.ctx, sub.ID)
	require.NoError(t, err)
	assert.Contains(t, res.Warning, "still active after 4 checks")
	assert.False(t, f.get(t, sub.ID).Disabled)
}

func TestDeleteRemovesRouterArtifactsFirst(t *testing.T) {
	f := newFixture(t)
	sub := f.addSubscriber(t, models.Subscriber{Username: "alice"})
	f.router.Connect("alice", "10.0.0.2", 10, 10)

	res, err := f.subscribers().Delete(f.ctx, sub.ID)
	require.NoError(t, err)
	assert.Empty(t, res.Warning)

	assert.Equal(t, []string{
		"ListActive", "RemoveActive",
		"ListInterfaces", "RemoveInterface",
		"ListSecrets", "RemoveSecret",
	}, f.router.Calls())
	assert.False(t, f.router.IsOnline("alice"))
	assert.False(t, f.router.HasInterface(mikrotik.PPPoEInterfaceName("alice")))
	_, ok := f.router.Secret("alice")
	assert.False(t, ok)

	_, err = f.store.Get(f.ctx, sub.ID)
	assert.True(t, store.IsNotFound(err))
}

func TestDeleteRouterDownStillDeletes(t *testing.T) {
	f := newFixture(t)
	sub := f.addSubscriber(t, models.Subscriber{Username: "alice"})
	f.router.SetDown(true)

	res, err := f.subscribers().Delete(f.ctx, sub.ID)
	require.NoError(t, err)
	assert.Contains(t, res.Warning, "router out of sync")
	_, err = f.store.Get(f.ctx, sub.ID)
	assert.True(t, store.IsNotFound(err))
}

func TestDeleteInvalidID(t *testing.T) {
	f := newFixture(t)
	_, err := f.subscribers().Delete(f.ctx, 0)
	assert.True(t, IsValidation(err))
}

func TestListMergesOnlineStatus(t *testing.T) {
	f := newFixture(t)
	f.addSubscriber(t, models.Subscriber{Username: "alice", Online: false})
	f.addSubscriber(t, models.Subscriber{Username: "bob", Online: true})
	f.addSubscriber(t, models.Subscriber{Username: "carol"})
	f.router.Connect("alice", "10.0.0.2", 0, 0)
	svc := f.subscribers()

	res, err := svc.List(f.ctx, ListQuery{SortBy: "username"})
	require.NoError(t, err)
	assert.True(t, res.OnlineKnown)
	assert.Equal(t, int64(3), res.Total)
	require.Len(t, res.Subscribers, 3)
	assert.True(t, res.Subscribers[0].Online)
	assert.False(t, res.Subscribers[1].Online, "stored flag is overridden by the router")

	res, err = svc.List(f.ctx, ListQuery{Online: "offline", SortBy: "username", Limit: 1, Page: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.Total)
	require.Len(t, res.Subscribers, 1)
	assert.Equal(t, "carol", res.Subscribers[0].Username)
}

func TestListRouterDownUsesStoredStatus(t *testing.T) {
	f := newFixture(t)
	f.addSubscriber(t, models.Subscriber{Username: "bob", Online: true})
	f.router.SetDown(true)

	res, err := f.subscribers().List(f.ctx, ListQuery{})
	require.NoError(t, err)
	assert.False(t, res.OnlineKnown)
	assert.NotEmpty(t, res.Warning)
	require.Len(t, res.Subscribers, 1)
	assert.True(t, res.Subscribers[0].Online)
}

func TestGetSubscriberDetail(t *testing.T) {
	f := newFixture(t)
	sub := f.addSubscriber(t, models.Subscriber{Username: "alice"})
	f.router.Connect("alice", "10.0.0.2", 100, 50)

	d, err := f.subscribers().Get(f.ctx, sub.ID)
	require.NoError(t, err)
	assert.True(t, d.Metrics.Online)
	assert.Equal(t, uint64(150), d.Subscriber.UsedBytesTotal)
}
