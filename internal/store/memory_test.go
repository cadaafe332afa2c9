package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ispanel/backend/internal/models"
)

func TestMemoryUniqueUsername(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()

	first := &models.Subscriber{Username: "alice", Name: "Alice"}
	require.NoError(t, m.Create(ctx, first))

	err := m.Create(ctx, &models.Subscriber{Username: "alice", Name: "Impostor"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUsernameExists)

	got, err := m.GetByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, first.ID, got.ID)
	assert.Equal(t, "Alice", got.Name)
}

func TestMemoryListFilterSortPaginate(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	for _, u := range []string{"dave", "alice", "carol", "bob"} {
		require.NoError(t, m.Create(ctx, &models.Subscriber{Username: u, Name: u, Package: "10M"}))
	}
	disabled := true
	_, err := m.Update(ctx, 1, &models.SubscriberPatch{Disabled: &disabled})
	require.NoError(t, err)

	subs, total, err := m.List(ctx, ListOptions{SortBy: "username", Page: 2, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(4), total)
	require.Len(t, subs, 2)
	assert.Equal(t, "carol", subs[0].Username)
	assert.Equal(t, "dave", subs[1].Username)

	subs, total, err = m.List(ctx, ListOptions{Filter: SubscriberFilter{Disabled: &disabled}})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, "dave", subs[0].Username)

	subs, _, err = m.List(ctx, ListOptions{Filter: SubscriberFilter{Search: "aro"}})
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, "carol", subs[0].Username)

	subs, _, err = m.List(ctx, ListOptions{SortBy: "not-a-column; DROP", SortDesc: true})
	require.NoError(t, err)
	assert.Equal(t, uint(4), subs[0].ID)
}

func TestMemoryUpdateAndDelete(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	sub := &models.Subscriber{Username: "alice"}
	require.NoError(t, m.Create(ctx, sub))
	assert.Equal(t, "pppoe", sub.ConnectionType)

	writes := m.SubscriberWrites()
	_, err := m.Update(ctx, sub.ID, &models.SubscriberPatch{})
	require.NoError(t, err)
	assert.Equal(t, writes, m.SubscriberWrites(), "empty patch is not a write")

	_, err = m.Update(ctx, 999, &models.SubscriberPatch{})
	assert.True(t, IsNotFound(err))

	require.NoError(t, m.Delete(ctx, sub.ID))
	assert.True(t, IsNotFound(m.Delete(ctx, sub.ID)))
}

func TestMemoryUpdateUsageCompareAndSwap(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	sub := &models.Subscriber{Username: "alice", UsedBytesTotal: 100, LastBytesSnapshot: 40}
	require.NoError(t, m.Create(ctx, sub))

	got, ok, err := m.UpdateUsage(ctx, sub.ID, UsageCounters{Total: 100, Last: 40}, UsageCounters{Total: 160, Last: 100})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, uint64(160), got.UsedBytesTotal)

	// stale expectation leaves the row alone and returns the current values
	got, ok, err = m.UpdateUsage(ctx, sub.ID, UsageCounters{Total: 100, Last: 40}, UsageCounters{Total: 999, Last: 999})
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, uint64(160), got.UsedBytesTotal)
	assert.Equal(t, uint64(100), got.LastBytesSnapshot)

	_, _, err = m.UpdateUsage(ctx, 999, UsageCounters{}, UsageCounters{Total: 1})
	assert.True(t, IsNotFound(err))
}

func TestMemoryCountAndGroup(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	past := time.Now().Add(-time.Hour)
	require.NoError(t, m.Create(ctx, &models.Subscriber{Username: "a", Package: "10M", ExpiryDate: &past}))
	require.NoError(t, m.Create(ctx, &models.Subscriber{Username: "b", Package: "10M"}))
	require.NoError(t, m.Create(ctx, &models.Subscriber{Username: "c", Package: "20M"}))

	now := time.Now()
	n, err := m.Count(ctx, SubscriberFilter{ExpiresBefore: &now})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	rows, err := m.GroupByPackage(ctx)
	require.NoError(t, err)
	assert.Equal(t, []models.PackageCount{{Package: "10M", Count: 2}, {Package: "20M", Count: 1}}, rows)
}

func TestMemorySettingsNewestWins(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	_, err := m.GetSettings(ctx)
	assert.True(t, IsNotFound(err))

	require.NoError(t, m.SaveSettings(ctx, &models.Setting{CompanyName: "old"}))
	require.NoError(t, m.SaveSettings(ctx, &models.Setting{CompanyName: "new"}))
	st, err := m.GetSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, "new", st.CompanyName)
}
