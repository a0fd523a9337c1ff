package session

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/99designs/keyring"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amrut/notifydesk/internal/api"
	"github.com/amrut/notifydesk/internal/bus"
	"github.com/amrut/notifydesk/internal/credential"
	"github.com/amrut/notifydesk/internal/model"
)

type fakePoller struct {
	mu          sync.Mutex
	running     bool
	starts      int
	stops       int
	unreadClear int
	cacheClear  int
}

func (p *fakePoller) Start(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.running = true
	p.starts++
	return nil
}

func (p *fakePoller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.running = false
	p.stops++
}

func (p *fakePoller) ClearUnread() { p.unreadClear++ }
func (p *fakePoller) ClearCache()  { p.cacheClear++ }

type fakeValidator struct{ err error }

func (v fakeValidator) ValidateSession(context.Context, string) error { return v.err }

func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "42",
		"exp": exp.Unix(),
	})
	s, err := tok.SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return s
}

func newTestGate(t *testing.T, opts ...Option) (*Gate, *fakePoller, *bus.Events, credential.Store) {
	t.Helper()
	store := credential.NewKeyringStore(keyring.NewArrayKeyring(nil))
	events := bus.NewEvents()
	g := New(store, events, opts...)
	p := &fakePoller{}
	g.Attach(p)
	return g, p, events, store
}

func TestLoginStartsAndLogoutStops(t *testing.T) {
	g, p, _, store := newTestGate(t)
	ctx := context.Background()

	require.NoError(t, g.OnLogin(ctx, model.Credentials{UserID: "42", Token: "opaque"}))
	assert.True(t, g.Authenticated())
	assert.True(t, g.Validate())
	assert.True(t, p.running)

	creds, ok := g.Credentials()
	require.True(t, ok)
	assert.Equal(t, "42", creds.UserID)

	require.NoError(t, g.OnLogout(ctx))
	assert.False(t, g.Authenticated())
	assert.False(t, p.running)
	assert.Equal(t, 1, p.unreadClear)

	stored, err := credential.LoadSession(store)
	require.NoError(t, err)
	assert.False(t, stored.Valid())
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	g, p, _, _ := newTestGate(t)

	err := g.OnLogin(context.Background(), model.Credentials{UserID: "42"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	expired := signedToken(t, time.Now().Add(-time.Minute))
	err = g.OnLogin(context.Background(), model.Credentials{UserID: "42", Token: expired})
	assert.ErrorIs(t, err, ErrTokenExpired)

	assert.Equal(t, 0, p.starts)
	assert.False(t, g.Authenticated())
}

func TestLoginRejectedByBackend(t *testing.T) {
	g, p, _, _ := newTestGate(t, WithValidator(fakeValidator{
		err: &api.AuthError{StatusCode: http.StatusUnauthorized, Message: "revoked"},
	}))

	err := g.OnLogin(context.Background(), model.Credentials{UserID: "42", Token: "opaque"})
	require.Error(t, err)
	assert.True(t, api.IsAuthError(err))
	assert.Equal(t, 0, p.starts)
}

func TestLoginToleratesValidatorTransportError(t *testing.T) {
	g, p, _, _ := newTestGate(t, WithValidator(fakeValidator{err: errors.New("dial tcp: refused")}))

	require.NoError(t, g.OnLogin(context.Background(), model.Credentials{UserID: "42", Token: "opaque"}))
	assert.Equal(t, 1, p.starts)
}

func TestValidateNoticesExpiryMidSession(t *testing.T) {
	now := time.Now()
	clock := func() time.Time { return now }
	g, _, events, _ := newTestGate(t, WithClock(clock))

	var expired []bus.SessionEvent
	events.SessionExpired.Subscribe(bus.TopicSessionExpired, func(ev bus.SessionEvent, _ bus.PublishOptions) {
		expired = append(expired, ev)
	}, bus.Options{})

	token := signedToken(t, now.Add(time.Minute))
	require.NoError(t, g.OnLogin(context.Background(), model.Credentials{UserID: "42", Token: token}))
	assert.True(t, g.Validate())

	now = now.Add(2 * time.Minute)
	assert.False(t, g.Validate())
	assert.False(t, g.Validate())
	assert.Len(t, expired, 1, "expiry is reported once")
}

func TestInvalidateStopsPollerOnce(t *testing.T) {
	g, p, events, _ := newTestGate(t)

	count := 0
	events.SessionExpired.Subscribe(bus.TopicSessionExpired, func(bus.SessionEvent, bus.PublishOptions) {
		count++
	}, bus.Options{})

	require.NoError(t, g.OnLogin(context.Background(), model.Credentials{UserID: "42", Token: "opaque"}))
	g.Invalidate("401 from backend")
	g.Invalidate("401 from backend")

	assert.False(t, g.Authenticated())
	assert.False(t, g.Validate(), "token is dropped on invalidation")
	assert.False(t, p.running)
	assert.Equal(t, 1, count)

	require.NoError(t, g.OnLogin(context.Background(), model.Credentials{UserID: "42", Token: "fresh"}))
	assert.True(t, p.running)
	assert.Equal(t, 0, p.cacheClear, "same user keeps the dedup state")
}

func TestUserSwitchClearsPollerCache(t *testing.T) {
	g, p, _, _ := newTestGate(t)
	ctx := context.Background()

	require.NoError(t, g.OnLogin(ctx, model.Credentials{UserID: "1", Token: "a"}))
	require.NoError(t, g.OnLogout(ctx))
	require.NoError(t, g.OnLogin(ctx, model.Credentials{UserID: "2", Token: "b"}))

	assert.Equal(t, 1, p.cacheClear)
}

func TestRestore(t *testing.T) {
	g, p, _, store := newTestGate(t)

	ok, err := g.Restore(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, credential.SaveSession(store, model.Credentials{UserID: "42", Token: "opaque"}))
	ok, err = g.Restore(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, p.running)
}
