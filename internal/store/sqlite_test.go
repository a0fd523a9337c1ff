package store_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amrut/notifydesk/internal/model"
	"github.com/amrut/notifydesk/internal/store"
	"github.com/amrut/notifydesk/tests/testutil"
)

func seed(t *testing.T, s store.Store, userID string, ns ...model.Notification) {
	t.Helper()
	require.NoError(t, s.UpsertNotifications(context.Background(), userID, ns))
}

func TestUpsertAndGetNewestFirst(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()
	created := time.Date(2025, 2, 1, 9, 0, 0, 0, time.UTC)

	seed(t, s, "42",
		model.Notification{ID: 1, Type: model.TypeNewOrder, Title: "Order #1", CreatedAt: created},
		model.Notification{
			ID: 3, Type: model.TypeLoginRequest, Title: "Login",
			Data:      map[string]any{"phoneNumber": "9999"},
			CreatedAt: created.Add(time.Hour),
		},
		model.Notification{ID: 2, Type: model.TypeGeneral, Title: "Hello", Read: true, CreatedAt: created},
	)
	seed(t, s, "7", model.Notification{ID: 1, Title: "other user"})

	got, err := s.GetNotifications(ctx, store.NotificationFilter{UserID: "42"})
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []int64{3, 2, 1}, []int64{got[0].ID, got[1].ID, got[2].ID})
	assert.Equal(t, "9999", got[0].DataString("phoneNumber"))
	assert.True(t, got[0].CreatedAt.Equal(created.Add(time.Hour)))
	assert.True(t, got[1].Read)

	count, err := s.GetUnreadCount(ctx, "42")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestUpsertKeepsLocalRead(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	seed(t, s, "42", model.Notification{ID: 5, Title: "first"})
	require.NoError(t, s.MarkNotificationRead(ctx, "42", 5))

	seed(t, s, "42", model.Notification{ID: 5, Title: "edited"})

	got, err := s.GetNotifications(ctx, store.NotificationFilter{UserID: "42"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "edited", got[0].Title)
	assert.True(t, got[0].Read)
}

func TestGetNotificationsFilters(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	seed(t, s, "42",
		model.Notification{ID: 1, Type: model.TypeNewOrder, Title: "Order placed", Body: "gold ring"},
		model.Notification{ID: 2, Type: model.TypeSystemAlert, Title: "Maintenance"},
		model.Notification{ID: 3, Type: model.TypeNewOrder, Title: "Order placed", Body: "silver chain", Read: true},
		model.Notification{ID: 4, Type: model.TypeGeneral, Title: "Welcome"},
	)

	query := "chain"
	tests := []struct {
		name   string
		filter store.NotificationFilter
		want   []int64
	}{
		{"unread only", store.NotificationFilter{UnreadOnly: true}, []int64{4, 2, 1}},
		{"by type", store.NotificationFilter{Types: []model.NotificationType{model.TypeNewOrder, model.TypeSystemAlert}}, []int64{3, 2, 1}},
		{"search body", store.NotificationFilter{Query: &query}, []int64{3}},
		{"paged", store.NotificationFilter{Limit: 2, Offset: 1}, []int64{3, 2}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.filter.UserID = "42"
			got, err := s.GetNotifications(ctx, tt.filter)
			require.NoError(t, err)

			ids := make([]int64, len(got))
			for i, n := range got {
				ids[i] = n.ID
			}
			assert.Equal(t, tt.want, ids)
		})
	}
}

func TestMarkRead(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	seed(t, s, "42",
		model.Notification{ID: 1},
		model.Notification{ID: 2},
		model.Notification{ID: 3, Read: true},
	)

	err := s.MarkNotificationRead(ctx, "42", 99)
	assert.ErrorIs(t, err, store.ErrNotFound)

	require.NoError(t, s.MarkNotificationRead(ctx, "42", 1))
	count, err := s.GetUnreadCount(ctx, "42")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	changed, err := s.MarkAllRead(ctx, "42")
	require.NoError(t, err)
	assert.Equal(t, int64(1), changed)

	count, err = s.GetUnreadCount(ctx, "42")
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestPruneOlderThan(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	seed(t, s, "42",
		model.Notification{ID: 1, CreatedAt: now.Add(-48 * time.Hour)},
		model.Notification{ID: 2, CreatedAt: now.Add(-time.Hour)},
	)

	removed, err := s.PruneOlderThan(ctx, now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	got, err := s.GetNotifications(ctx, store.NotificationFilter{UserID: "42"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, int64(2), got[0].ID)
}

func TestMissingUser(t *testing.T) {
	s := testutil.NewTestStore(t)

	err := s.UpsertNotifications(context.Background(), "", []model.Notification{{ID: 1}})
	assert.ErrorIs(t, err, store.ErrMissingUser)

	_, err = s.GetNotifications(context.Background(), store.NotificationFilter{})
	assert.ErrorIs(t, err, store.ErrMissingUser)
}

func TestReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")

	s, err := store.NewSQLiteStore(path)
	require.NoError(t, err)
	seed(t, s, "42", model.Notification{ID: 9, Title: "persisted"})
	require.NoError(t, s.Close())

	s, err = store.NewSQLiteStore(path)
	require.NoError(t, err)
	defer s.Close()

	count, err := s.GetUnreadCount(context.Background(), "42")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
