package present

import (
	"context"
	"errors"
	"fmt"
	"log"
	gosync "sync"
	"time"

	"github.com/amrut/notifydesk/internal/bus"
	"github.com/amrut/notifydesk/internal/model"
)

// DefaultToastDuration is how long a toast stays up when unconfigured.
const DefaultToastDuration = 5 * time.Second

// ErrNoSession is returned by Acknowledge without valid credentials.
var ErrNoSession = errors.New("no active session")

// Category is the visual treatment of a toast.
type Category int

const (
	CategoryInfo Category = iota
	CategorySuccess
	CategoryWarning
	CategoryError
)

func (c Category) String() string {
	switch c {
	case CategorySuccess:
		return "success"
	case CategoryWarning:
		return "warning"
	case CategoryError:
		return "error"
	default:
		return "info"
	}
}

// CategoryFor maps a notification type to its toast category.
func CategoryFor(t model.NotificationType) Category {
	switch t {
	case model.TypeLoginApproved:
		return CategorySuccess
	case model.TypeLoginRejected:
		return CategoryError
	case model.TypeSystemAlert:
		return CategoryWarning
	default:
		return CategoryInfo
	}
}

// Toast is one transient notification surface.
type Toast struct {
	Notification model.Notification
	Category     Category
	Title        string
	Body         string
	ShownAt      time.Time
	ExpiresAt    time.Time
}

// Expired reports whether the toast should no longer be shown at now.
func (t Toast) Expired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

// Sink renders toasts.
type Sink interface {
	ShowToast(Toast)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Toast)

func (f SinkFunc) ShowToast(t Toast) { f(t) }

// Marker marks notifications read on the backend.
type Marker interface {
	MarkNotificationRead(ctx context.Context, token string, id int64) error
}

// CredentialSource supplies the active session credentials.
type CredentialSource interface {
	Credentials() (model.Credentials, bool)
}

// Option configures a Presenter.
type Option func(*Presenter)

// WithSink sets where toasts are rendered.
func WithSink(s Sink) Option {
	return func(p *Presenter) { p.sink = s }
}

// WithSoundPlayer replaces the cue player.
func WithSoundPlayer(sp SoundPlayer) Option {
	return func(p *Presenter) { p.sound = sp }
}

// WithMarker enables Acknowledge.
func WithMarker(m Marker, creds CredentialSource) Option {
	return func(p *Presenter) {
		p.marker = m
		p.creds = creds
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(p *Presenter) { p.now = now }
}

// Presenter turns new notifications into toasts with an audible cue.
type Presenter struct {
	duration time.Duration
	sink     Sink
	sound    SoundPlayer
	marker   Marker
	creds    CredentialSource
	now      func() time.Time

	mu     gosync.Mutex
	events *bus.Events
	subID  bus.SubscriptionID
}

// New creates a Presenter. Without WithSoundPlayer it plays cues
// through a Sound built from cfg.
func New(cfg model.PresenterConfig, opts ...Option) *Presenter {
	p := &Presenter{
		duration: cfg.ToastDuration,
		now:      time.Now,
	}
	if p.duration <= 0 {
		p.duration = DefaultToastDuration
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.sound == nil {
		p.sound = NewSound(cfg)
	}
	return p
}

// Duration returns how long each toast is shown.
func (p *Presenter) Duration() time.Duration {
	return p.duration
}

// Attach subscribes the presenter to show-toast events. Calling it again
// moves the subscription to events.
func (p *Presenter) Attach(events *bus.Events) {
	p.Detach()

	id := events.ShowToast.Subscribe(bus.TopicShowToast, func(n model.Notification, _ bus.PublishOptions) {
		p.Present(context.Background(), n)
	}, bus.Options{})

	p.mu.Lock()
	p.events = events
	p.subID = id
	p.mu.Unlock()
}

// Detach removes the show-toast subscription.
func (p *Presenter) Detach() {
	p.mu.Lock()
	events, id := p.events, p.subID
	p.events, p.subID = nil, ""
	p.mu.Unlock()

	if events != nil {
		events.ShowToast.Unsubscribe(bus.TopicShowToast, id)
	}
}

// Present shows n as a toast and plays its cue. A failing cue is logged
// and never affects the toast.
func (p *Presenter) Present(ctx context.Context, n model.Notification) Toast {
	now := p.now()
	t := Toast{
		Notification: n,
		Category:     CategoryFor(n.EffectiveType()),
		Title:        n.Title,
		Body:         n.Body,
		ShownAt:      now,
		ExpiresAt:    now.Add(p.duration),
	}
	if t.Title == "" {
		t.Title = model.DefaultTitle
	}

	if p.sink != nil {
		p.sink.ShowToast(t)
	}

	if err := p.sound.Play(ctx, n.EffectiveType()); err != nil {
		log.Printf("[Presenter] sound for notification %d: %v", n.ID, err)
	}
	return t
}

// Acknowledge marks a toast's notification read after user interaction
// and tells badge consumers to refetch.
func (p *Presenter) Acknowledge(ctx context.Context, id int64) error {
	if p.marker == nil || p.creds == nil {
		return ErrNoSession
	}
	creds, ok := p.creds.Credentials()
	if !ok {
		return ErrNoSession
	}
	if err := p.marker.MarkNotificationRead(ctx, creds.Token, id); err != nil {
		return fmt.Errorf("acknowledging notification %d: %w", id, err)
	}

	p.mu.Lock()
	events := p.events
	p.mu.Unlock()
	if events != nil {
		events.NotificationUpdated.Publish(bus.TopicNotificationUpdated, struct{}{}, bus.PublishOptions{})
	}
	return nil
}
