package sync

import (
	"context"
	"errors"
	"net/http"
	gosync "sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amrut/notifydesk/internal/api"
	"github.com/amrut/notifydesk/internal/bus"
	"github.com/amrut/notifydesk/internal/model"
)

type fakeGate struct {
	mu          gosync.Mutex
	authed      bool
	invalidated int
}

func (g *fakeGate) Validate() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.authed
}

func (g *fakeGate) Credentials() (model.Credentials, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return model.Credentials{UserID: "42", Token: "tok"}, g.authed
}

func (g *fakeGate) Invalidate(string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.authed = false
	g.invalidated++
}

type fakeFetcher struct {
	mu       gosync.Mutex
	count    int
	list     []model.Notification
	countErr error
	listErr  error

	// When hold is non-nil, GetUserNotifications signals entered and
	// waits for hold to be closed.
	hold    chan struct{}
	entered chan struct{}
}

func (f *fakeFetcher) set(count int, list ...model.Notification) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.count = count
	f.list = list
}

func (f *fakeFetcher) GetUnreadCount(context.Context, model.Credentials) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.count, f.countErr
}

func (f *fakeFetcher) GetUserNotifications(context.Context, model.Credentials) ([]model.Notification, error) {
	f.mu.Lock()
	hold, entered := f.hold, f.entered
	f.mu.Unlock()

	if hold != nil {
		entered <- struct{}{}
		<-hold
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]model.Notification, len(f.list))
	copy(out, f.list)
	return out, f.listErr
}

type recorder struct {
	mu      gosync.Mutex
	newIDs  []int64
	toasts  []int64
	logins  []bus.LoginRequestEvent
	updated int
}

func (r *recorder) attach(e *bus.Events) {
	e.NewNotification.Subscribe(bus.TopicNewNotification, func(n model.Notification, _ bus.PublishOptions) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.newIDs = append(r.newIDs, n.ID)
	}, bus.Options{})
	e.ShowToast.Subscribe(bus.TopicShowToast, func(n model.Notification, _ bus.PublishOptions) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.toasts = append(r.toasts, n.ID)
	}, bus.Options{})
	e.LoginRequest.Subscribe(bus.TopicLoginRequest, func(ev bus.LoginRequestEvent, _ bus.PublishOptions) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.logins = append(r.logins, ev)
	}, bus.Options{})
	e.NotificationUpdated.Subscribe(bus.TopicNotificationUpdated, func(struct{}, bus.PublishOptions) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.updated++
	}, bus.Options{})
}

func (r *recorder) ids() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int64(nil), r.newIDs...)
}

func unread(id int64, typ model.NotificationType) model.Notification {
	return model.Notification{ID: id, Type: typ, Title: "n"}
}

func newTestPoller(cfg Config) (*Poller, *fakeFetcher, *fakeGate, *recorder) {
	if cfg.Interval == 0 {
		cfg.Interval = time.Hour
	}
	f := &fakeFetcher{}
	g := &fakeGate{authed: true}
	events := bus.NewEvents()
	r := &recorder{}
	r.attach(events)
	return New(f, g, events, nil, cfg), f, g, r
}

func TestNewNotificationsEmittedNewestFirstOnce(t *testing.T) {
	p, f, _, r := newTestPoller(Config{})
	ctx := context.Background()

	f.set(3,
		unread(101, model.TypeGeneral),
		unread(102, model.TypeGeneral),
		unread(103, model.TypeGeneral),
	)

	res, err := p.CheckOnce(ctx)
	require.NoError(t, err)
	assert.Len(t, res.New, 3)
	assert.Equal(t, []int64{103, 102, 101}, r.ids())

	res, err = p.CheckOnce(ctx)
	require.NoError(t, err)
	assert.Empty(t, res.New)
	assert.Equal(t, []int64{103, 102, 101}, r.ids(), "same server state fires nothing")

	st := p.Status()
	assert.Equal(t, int64(103), st.HighestID)
	assert.Equal(t, 3, st.UnreadCount)
}

func TestCountIncreaseYieldsAtLeastDelta(t *testing.T) {
	p, f, _, r := newTestPoller(Config{})
	ctx := context.Background()

	f.set(1, unread(1, model.TypeGeneral))
	_, err := p.CheckOnce(ctx)
	require.NoError(t, err)

	f.set(4,
		unread(1, model.TypeGeneral),
		unread(2, model.TypeGeneral),
		unread(3, model.TypeGeneral),
		unread(4, model.TypeGeneral),
	)
	res, err := p.CheckOnce(ctx)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(res.New), 3)
	assert.Equal(t, []int64{1, 4, 3, 2}, r.ids())
}

func TestReadAndNewSwapWithUnchangedCount(t *testing.T) {
	p, f, _, r := newTestPoller(Config{})
	ctx := context.Background()

	f.set(1, unread(10, model.TypeGeneral))
	_, err := p.CheckOnce(ctx)
	require.NoError(t, err)

	read := unread(10, model.TypeGeneral)
	read.Read = true
	f.set(1, unread(11, model.TypeGeneral), read)

	res, err := p.CheckOnce(ctx)
	require.NoError(t, err)
	require.Len(t, res.New, 1)
	assert.Equal(t, int64(11), res.New[0].ID)
	assert.Equal(t, []int64{10, 11}, r.ids())
}

func TestOverlappingChecksDeliverOnce(t *testing.T) {
	p, f, _, r := newTestPoller(Config{})
	ctx := context.Background()

	f.set(3,
		unread(1, model.TypeGeneral),
		unread(2, model.TypeGeneral),
		unread(3, model.TypeGeneral),
	)

	var wg gosync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := p.CheckOnce(ctx)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.ElementsMatch(t, []int64{1, 2, 3}, r.ids())
}

func TestProcessedSetIsBounded(t *testing.T) {
	p, f, _, r := newTestPoller(Config{DedupCapacity: 3})

	var list []model.Notification
	for id := int64(1); id <= 10; id++ {
		list = append(list, unread(id, model.TypeGeneral))
	}
	f.set(len(list), list...)

	res, err := p.CheckOnce(context.Background())
	require.NoError(t, err)
	assert.Len(t, res.New, 10)

	st := p.Status()
	assert.Equal(t, 3, st.Processed)
	assert.Equal(t, int64(10), st.HighestID)

	// Evicted IDs stay delivered on later polls of the same feed.
	for i := 0; i < 2; i++ {
		res, err = p.CheckOnce(context.Background())
		require.NoError(t, err)
		assert.Empty(t, res.New)
	}
	assert.Len(t, r.ids(), 10)

	f.set(11, append(list, unread(11, model.TypeGeneral))...)
	res, err = p.CheckOnce(context.Background())
	require.NoError(t, err)
	require.Len(t, res.New, 1)
	assert.Equal(t, int64(11), res.New[0].ID)
}

func TestStartRefusesWhenUnauthenticated(t *testing.T) {
	p, _, g, _ := newTestPoller(Config{})
	g.authed = false

	err := p.Start(context.Background())
	assert.ErrorIs(t, err, ErrNotAuthenticated)
	assert.False(t, p.IsRunning())
}

func TestStartIsIdempotentAndStopRestartKeepsState(t *testing.T) {
	p, f, _, r := newTestPoller(Config{})
	ctx := context.Background()

	f.set(2, unread(5, model.TypeGeneral), unread(6, model.TypeGeneral))

	require.NoError(t, p.Start(ctx))
	require.NoError(t, p.Start(ctx))
	assert.True(t, p.IsRunning())
	assert.Equal(t, []int64{6, 5}, r.ids())

	p.Stop()
	p.Stop()
	assert.False(t, p.IsRunning())

	require.NoError(t, p.Start(ctx))
	assert.Equal(t, []int64{6, 5}, r.ids(), "restart must not re-deliver")
	p.Stop()
}

func TestAuthFailureStopsAndInvalidates(t *testing.T) {
	p, f, g, r := newTestPoller(Config{})
	ctx := context.Background()

	f.set(1, unread(1, model.TypeGeneral))
	require.NoError(t, p.Start(ctx))

	f.mu.Lock()
	f.countErr = &api.AuthError{StatusCode: http.StatusUnauthorized, Message: "jwt expired"}
	f.mu.Unlock()

	_, err := p.CheckOnce(ctx)
	require.Error(t, err)
	assert.True(t, api.IsAuthError(err))
	assert.False(t, p.IsRunning())
	assert.Equal(t, 1, g.invalidated)
	assert.False(t, g.Validate())

	_, err = p.CheckOnce(ctx)
	assert.ErrorIs(t, err, ErrNotAuthenticated)
	assert.Equal(t, []int64{1}, r.ids())
}

func TestStartReturnsAuthError(t *testing.T) {
	p, f, g, _ := newTestPoller(Config{})
	f.countErr = &api.AuthError{StatusCode: http.StatusForbidden}

	err := p.Start(context.Background())
	assert.True(t, api.IsAuthError(err))
	assert.False(t, p.IsRunning())
	assert.Equal(t, 1, g.invalidated)
}

func TestTransientFailureKeepsRunning(t *testing.T) {
	p, f, g, _ := newTestPoller(Config{})
	f.countErr = errors.New("connection reset")

	require.NoError(t, p.Start(context.Background()))
	assert.True(t, p.IsRunning())
	assert.Equal(t, 0, g.invalidated)

	st := p.Status()
	assert.Equal(t, PollError, st.State)
	assert.Error(t, st.Error)
	p.Stop()
}

func TestStopDiscardsInFlightResult(t *testing.T) {
	p, f, _, r := newTestPoller(Config{})
	ctx := context.Background()

	require.NoError(t, p.Start(ctx))

	f.mu.Lock()
	f.count = 1
	f.list = []model.Notification{unread(77, model.TypeGeneral)}
	f.hold = make(chan struct{})
	f.entered = make(chan struct{}, 1)
	f.mu.Unlock()

	done := make(chan Result, 1)
	go func() {
		res, _ := p.CheckOnce(ctx)
		done <- res
	}()

	<-f.entered
	p.Stop()
	close(f.hold)

	res := <-done
	assert.True(t, res.Discarded)
	assert.Empty(t, r.ids())
	assert.Equal(t, 0, p.Status().Processed)
}

func TestClearCacheAllowsRedelivery(t *testing.T) {
	p, f, _, r := newTestPoller(Config{})
	ctx := context.Background()

	f.set(1, unread(3, model.TypeGeneral))
	_, err := p.CheckOnce(ctx)
	require.NoError(t, err)

	p.ClearCache()
	assert.Equal(t, int64(0), p.Status().HighestID)

	_, err = p.CheckOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{3, 3}, r.ids())
}

func TestMaxToastsPerPollSurfacesNewest(t *testing.T) {
	p, f, _, r := newTestPoller(Config{MaxToastsPerPoll: 1})

	f.set(3,
		unread(1, model.TypeGeneral),
		unread(2, model.TypeGeneral),
		unread(3, model.TypeGeneral),
	)
	_, err := p.CheckOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []int64{3, 2, 1}, r.ids())
	assert.Equal(t, []int64{3}, r.toasts)
	assert.Equal(t, 1, r.updated)
}

func TestLoginRequestEvent(t *testing.T) {
	p, f, _, r := newTestPoller(Config{Filter: ProfileFilter(model.ProfileAdmin)})

	req := unread(20, model.TypeLoginRequest)
	req.Data = map[string]any{"phoneNumber": "9999", "categoryIds": []any{"1", "2"}}
	f.set(2, req, unread(21, model.TypeLoginApproved))

	_, err := p.CheckOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []int64{20}, r.ids(), "login_approved is mobile-only")
	require.Len(t, r.logins, 1)
	assert.Equal(t, "9999", r.logins[0].PhoneNumber)
	assert.Equal(t, []string{"1", "2"}, r.logins[0].CategoryIDs)
}

func TestZeroUnreadSkipsListFetch(t *testing.T) {
	p, f, _, r := newTestPoller(Config{})
	f.set(0, unread(1, model.TypeGeneral))

	res, err := p.CheckOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, res.Fetched)
	assert.Empty(t, r.ids())
}

type fakeCache struct {
	mu      gosync.Mutex
	upserts [][]int64
}

func (c *fakeCache) UpsertNotifications(_ context.Context, _ string, ns []model.Notification) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := make([]int64, len(ns))
	for i, n := range ns {
		ids[i] = n.ID
	}
	c.upserts = append(c.upserts, ids)
	return nil
}

func TestCacheRefreshedWhenNothingUnread(t *testing.T) {
	f := &fakeFetcher{}
	events := bus.NewEvents()
	r := &recorder{}
	r.attach(events)
	cache := &fakeCache{}
	p := New(f, &fakeGate{authed: true}, events, cache, Config{Interval: time.Hour})
	ctx := context.Background()

	read := model.Notification{ID: 1, Title: "old", Read: true}
	f.set(0, read)

	// First cycle caches the list even though nothing is unread.
	res, err := p.CheckOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Fetched)
	assert.Equal(t, [][]int64{{1}}, cache.upserts)

	// Unchanged zero count: no refetch.
	_, err = p.CheckOnce(ctx)
	require.NoError(t, err)
	assert.Len(t, cache.upserts, 1)

	f.set(1, unread(2, model.TypeGeneral), read)
	_, err = p.CheckOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{2}, r.ids())

	// Everything read elsewhere: the count drop refreshes the cache once.
	n2 := unread(2, model.TypeGeneral)
	n2.Read = true
	f.set(0, n2, read)
	res, err = p.CheckOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Fetched)
	assert.Empty(t, res.New)
	assert.Equal(t, []int64{2, 1}, cache.upserts[len(cache.upserts)-1])

	_, err = p.CheckOnce(ctx)
	require.NoError(t, err)
	assert.Len(t, cache.upserts, 3)
}
