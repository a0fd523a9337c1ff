// Package session is the single source of truth for whether
// notification polling is permitted. The authenticated flag is always
// re-derived from the stored token, so an expired token stops polling
// even without an explicit logout.
package session

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/amrut/notifydesk/internal/api"
	"github.com/amrut/notifydesk/internal/bus"
	"github.com/amrut/notifydesk/internal/credential"
	"github.com/amrut/notifydesk/internal/model"
)

// Poller is the part of the notification poller the gate drives.
type Poller interface {
	Start(ctx context.Context) error
	Stop()
	ClearUnread()
	ClearCache()
}

// Validator checks a token against the backend at login time.
type Validator interface {
	ValidateSession(ctx context.Context, token string) error
}

// Option customizes a Gate.
type Option func(*Gate)

// WithValidator makes OnLogin confirm the token with the backend.
// Only an auth rejection fails the login; transport errors are logged.
func WithValidator(v Validator) Option {
	return func(g *Gate) {
		g.validator = v
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(g *Gate) {
		g.now = now
	}
}

// Gate tracks the authentication state and starts or stops the poller
// to match it.
type Gate struct {
	store     credential.Store
	events    *bus.Events
	validator Validator
	now       func() time.Time

	mu            sync.Mutex
	poller        Poller
	authenticated bool
	expiryHandled bool
	lastUserID    string
}

// New creates a Gate backed by the given credential store.
func New(store credential.Store, events *bus.Events, opts ...Option) *Gate {
	g := &Gate{
		store:  store,
		events: events,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Attach wires the poller the gate controls.
func (g *Gate) Attach(p Poller) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.poller = p
}

// Restore starts polling at boot if a still valid session is stored.
// It returns false when the user must log in.
func (g *Gate) Restore(ctx context.Context) (bool, error) {
	creds, err := credential.LoadSession(g.store)
	if err != nil {
		return false, fmt.Errorf("restoring session: %w", err)
	}
	if !creds.Valid() {
		log.Printf("[Session] no stored session, login required")
		return false, nil
	}
	if err := checkToken(creds.Token, g.now()); err != nil {
		log.Printf("[Session] stored session unusable: %v", err)
		if clearErr := credential.ClearSession(g.store); clearErr != nil {
			log.Printf("[Session] clearing stale session: %v", clearErr)
		}
		return false, nil
	}

	g.mu.Lock()
	g.authenticated = true
	g.expiryHandled = false
	g.lastUserID = creds.UserID
	p := g.poller
	g.mu.Unlock()

	log.Printf("[Session] restored session for user %s", creds.UserID)
	if p != nil {
		if err := p.Start(ctx); err != nil {
			return true, fmt.Errorf("starting poller: %w", err)
		}
	}
	return true, nil
}

// OnLogin records a successful login and starts the poller.
func (g *Gate) OnLogin(ctx context.Context, creds model.Credentials) error {
	if !creds.Valid() {
		return ErrInvalidCredentials
	}
	if err := checkToken(creds.Token, g.now()); err != nil {
		return err
	}

	if g.validator != nil {
		if err := g.validator.ValidateSession(ctx, creds.Token); err != nil {
			if api.IsAuthError(err) {
				return fmt.Errorf("login rejected: %w", err)
			}
			log.Printf("[Session] could not confirm session with backend: %v", err)
		}
	}

	if err := credential.SaveSession(g.store, creds); err != nil {
		return fmt.Errorf("saving session: %w", err)
	}

	g.mu.Lock()
	userChanged := g.lastUserID != "" && g.lastUserID != creds.UserID
	g.authenticated = true
	g.expiryHandled = false
	g.lastUserID = creds.UserID
	p := g.poller
	g.mu.Unlock()

	log.Printf("[Session] user %s logged in", creds.UserID)
	if p == nil {
		return nil
	}
	if userChanged {
		p.ClearCache()
	}
	if err := p.Start(ctx); err != nil {
		return fmt.Errorf("starting poller: %w", err)
	}
	return nil
}

// OnLogout stops the poller, clears cached unread state, and forgets
// the stored session.
func (g *Gate) OnLogout(ctx context.Context) error {
	g.mu.Lock()
	g.authenticated = false
	g.expiryHandled = true
	p := g.poller
	g.mu.Unlock()

	if p != nil {
		p.Stop()
		p.ClearUnread()
	}

	log.Printf("[Session] user logged out")
	if err := credential.ClearSession(g.store); err != nil {
		return fmt.Errorf("clearing session: %w", err)
	}
	return nil
}

// Validate re-derives the authenticated flag from the stored token. A
// transition to unauthenticated that was not caused by a logout is
// reported once on the session-expired topic.
func (g *Gate) Validate() bool {
	creds, err := credential.LoadSession(g.store)
	ok := err == nil && creds.Valid() && checkToken(creds.Token, g.now()) == nil

	g.mu.Lock()
	wasAuthenticated := g.authenticated
	g.authenticated = ok
	notify := wasAuthenticated && !ok && !g.expiryHandled
	if notify {
		g.expiryHandled = true
	}
	g.mu.Unlock()

	if notify {
		reason := "session expired"
		if err != nil {
			reason = err.Error()
		}
		g.publishExpired(reason)
	}
	return ok
}

// Authenticated returns the last derived flag without touching the store.
func (g *Gate) Authenticated() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.authenticated
}

// Credentials returns the stored session when the gate is authenticated.
func (g *Gate) Credentials() (model.Credentials, bool) {
	if !g.Authenticated() {
		return model.Credentials{}, false
	}
	creds, err := credential.LoadSession(g.store)
	if err != nil || !creds.Valid() {
		return model.Credentials{}, false
	}
	return creds, true
}

// Invalidate is called when the backend rejects the token. It flips the
// gate to unauthenticated, stops the poller, drops the token, and
// reports the expiry once per session.
func (g *Gate) Invalidate(reason string) {
	g.mu.Lock()
	notify := !g.expiryHandled
	g.authenticated = false
	g.expiryHandled = true
	p := g.poller
	g.mu.Unlock()

	if p != nil {
		p.Stop()
	}

	if err := g.store.Delete(credential.KeyAccessToken); err != nil {
		log.Printf("[Session] dropping rejected token: %v", err)
	}

	if notify {
		log.Printf("[Session] session invalidated: %s", reason)
		g.publishExpired(reason)
	}
}

func (g *Gate) publishExpired(reason string) {
	if g.events == nil {
		return
	}
	g.events.SessionExpired.Publish(bus.TopicSessionExpired, bus.SessionEvent{
		Reason: reason,
		At:     g.now(),
	}, bus.PublishOptions{})
}
