package sync

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	gosync "sync"
	"time"

	"github.com/amrut/notifydesk/internal/api"
	"github.com/amrut/notifydesk/internal/bus"
	"github.com/amrut/notifydesk/internal/model"
)

// ErrNotAuthenticated is returned when the session gate does not permit
// polling.
var ErrNotAuthenticated = errors.New("not authenticated")

// PollState represents the current state of the poller.
type PollState int

const (
	PollIdle PollState = iota
	PollRunning
	PollError
)

func (s PollState) String() string {
	switch s {
	case PollRunning:
		return "polling"
	case PollError:
		return "error"
	default:
		return "idle"
	}
}

// Status is a snapshot of the poller for status bars and logs.
type Status struct {
	Running     bool
	State       PollState
	LastPoll    time.Time
	Error       error
	UnreadCount int
	HighestID   int64
	Processed   int
}

// Result describes one fetch-and-compare cycle.
type Result struct {
	UnreadCount int
	Fetched     int
	New         []model.Notification
	// Discarded is set when the poller was stopped or restarted while
	// the cycle was in flight; nothing was emitted.
	Discarded bool
}

// Gate is the session gate as seen by the poller.
type Gate interface {
	Validate() bool
	Credentials() (model.Credentials, bool)
	Invalidate(reason string)
}

// Fetcher is the notification feed API.
type Fetcher interface {
	GetUnreadCount(ctx context.Context, creds model.Credentials) (int, error)
	GetUserNotifications(ctx context.Context, creds model.Credentials) ([]model.Notification, error)
}

// Cache receives every fetched page so views can render without a
// network round-trip.
type Cache interface {
	UpsertNotifications(ctx context.Context, userID string, ns []model.Notification) error
}

// fetchTimeout is the maximum time allowed for a single fetch cycle.
const fetchTimeout = 30 * time.Second

// Config tunes a Poller.
type Config struct {
	// Interval between background checks.
	Interval time.Duration

	// Filter selects which unread notifications are surfaced.
	Filter Filter

	// DedupCapacity bounds the processed-ID set.
	DedupCapacity int

	// MaxToastsPerPoll caps show-toast events per cycle, newest first.
	// Zero means no cap. New-notification events are never capped.
	MaxToastsPerPoll int

	// FetchTimeout bounds one cycle's network calls.
	FetchTimeout time.Duration
}

// ConfigFrom builds a poller Config from the application config.
func ConfigFrom(cfg model.PollerConfig) Config {
	return Config{
		Interval:         cfg.Interval,
		Filter:           ProfileFilter(cfg.Profile),
		DedupCapacity:    cfg.DedupCapacity,
		MaxToastsPerPoll: cfg.MaxToastsPerPoll,
	}
}

// sessionState is the last-seen view of the feed for one session.
type sessionState struct {
	lastCount int
	highestID int64
	processed *dedupSet
	// cached is set once the full list has been written to the cache.
	cached bool
}

func (s *sessionState) reset() {
	s.lastCount = 0
	s.highestID = 0
	s.cached = false
	s.processed.Reset()
}

// Poller periodically fetches the notification feed and emits every
// genuinely new unread notification exactly once.
type Poller struct {
	fetcher Fetcher
	gate    Gate
	events  *bus.Events
	cache   Cache
	cfg     Config

	triggerCh chan struct{}

	mu         gosync.Mutex
	running    bool
	generation uint64
	stopCh     chan struct{}
	state      sessionState
	status     Status
}

// New creates a Poller. cache may be nil.
func New(fetcher Fetcher, gate Gate, events *bus.Events, cache Cache, cfg Config) *Poller {
	if cfg.Interval <= 0 {
		cfg.Interval = model.DefaultMobileInterval
	}
	if cfg.Filter == nil {
		cfg.Filter = AcceptAll
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = fetchTimeout
	}
	return &Poller{
		fetcher:   fetcher,
		gate:      gate,
		events:    events,
		cache:     cache,
		cfg:       cfg,
		triggerCh: make(chan struct{}, 1),
		state: sessionState{
			processed: newDedupSet(cfg.DedupCapacity),
		},
	}
}

// Start performs one immediate check and then polls on the configured
// interval until Stop is called or ctx is cancelled. It is a no-op when
// already running and fails with ErrNotAuthenticated when the session
// gate refuses.
func (p *Poller) Start(ctx context.Context) error {
	if p.IsRunning() {
		return nil
	}
	if !p.gate.Validate() {
		log.Printf("[Poller] refusing to start: %v", ErrNotAuthenticated)
		return ErrNotAuthenticated
	}

	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = true
	p.generation++
	gen := p.generation
	stopCh := make(chan struct{})
	p.stopCh = stopCh
	p.status.Running = true
	p.mu.Unlock()

	log.Printf("[Poller] starting, interval %v", p.cfg.Interval)

	if _, err := p.check(ctx, gen); err != nil {
		if api.IsAuthError(err) || errors.Is(err, ErrNotAuthenticated) {
			return err
		}
	}

	go p.loop(ctx, gen, stopCh)
	return nil
}

// Stop halts polling. A cycle already in flight completes but its
// result is discarded. Safe to call when not running.
func (p *Poller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.running {
		return
	}

	close(p.stopCh)
	p.running = false
	p.generation++
	p.status.Running = false
	p.status.State = PollIdle
	log.Printf("[Poller] stopped")
}

// IsRunning reports whether the polling loop is active.
func (p *Poller) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// Refresh triggers an immediate check on the running loop without
// blocking. It is dropped when a trigger is already pending.
func (p *Poller) Refresh() {
	select {
	case p.triggerCh <- struct{}{}:
	default:
	}
}

// CheckOnce runs a single fetch-and-compare cycle on the caller's
// goroutine.
func (p *Poller) CheckOnce(ctx context.Context) (Result, error) {
	p.mu.Lock()
	gen := p.generation
	p.mu.Unlock()
	return p.check(ctx, gen)
}

// ClearCache forgets every processed ID and the last-seen counters.
func (p *Poller) ClearCache() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state.reset()
	p.status.UnreadCount = 0
	p.status.HighestID = 0
	p.status.Processed = 0
	log.Printf("[Poller] cache cleared")
}

// ClearUnread forgets the cached unread count only.
func (p *Poller) ClearUnread() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state.lastCount = 0
	p.status.UnreadCount = 0
}

// Status returns a snapshot of the poller.
func (p *Poller) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

// loop runs the ticker for one start generation.
func (p *Poller) loop(ctx context.Context, gen uint64, stopCh <-chan struct{}) {
	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ctx.Done():
			p.stopGeneration(gen)
			return
		case <-ticker.C:
			p.check(ctx, gen)
		case <-p.triggerCh:
			p.check(ctx, gen)
		}
	}
}

// stopGeneration stops the poller only if gen is still the active run.
func (p *Poller) stopGeneration(gen uint64) {
	p.mu.Lock()
	current := p.running && p.generation == gen
	p.mu.Unlock()
	if current {
		p.Stop()
	}
}

// check performs one cycle for generation gen.
func (p *Poller) check(ctx context.Context, gen uint64) (Result, error) {
	if !p.gate.Validate() {
		p.Stop()
		return Result{}, ErrNotAuthenticated
	}
	creds, ok := p.gate.Credentials()
	if !ok {
		p.Stop()
		return Result{}, ErrNotAuthenticated
	}

	ctx, cancel := context.WithTimeout(ctx, p.cfg.FetchTimeout)
	defer cancel()

	p.setState(PollRunning, nil)

	count, err := p.fetcher.GetUnreadCount(ctx, creds)
	if err != nil {
		return Result{}, p.fail(err)
	}

	p.mu.Lock()
	prevCount := p.state.lastCount
	cached := p.state.cached
	p.mu.Unlock()

	res := Result{UnreadCount: count}

	// A read+new swap keeps the count constant, so the list is fetched
	// whenever anything is unread, not only when the count rose. With
	// nothing unread it is still fetched to refresh the cache on the
	// first cycle and whenever the count moved.
	refreshCache := p.cache != nil && (!cached || count != prevCount)
	var candidates []model.Notification
	listed := false
	if count > 0 || refreshCache {
		if count > prevCount {
			log.Printf("[Poller] unread count %d -> %d", prevCount, count)
		}
		list, err := p.fetcher.GetUserNotifications(ctx, creds)
		if err != nil {
			return Result{}, p.fail(err)
		}
		res.Fetched = len(list)
		if count > 0 {
			candidates = p.selectUnread(list)
		}

		if p.cache != nil {
			listed = true
			if len(list) > 0 {
				if err := p.cache.UpsertNotifications(ctx, creds.UserID, list); err != nil {
					log.Printf("[Poller] caching notifications: %v", err)
					listed = false
				}
			}
		}
	}

	fresh, current := p.claim(gen, count, listed, candidates)
	if !current {
		res.Discarded = true
		return res, nil
	}
	res.New = fresh

	p.emit(fresh, count != prevCount)
	p.setState(PollIdle, nil)
	return res, nil
}

// selectUnread keeps unread, accepted notifications, newest first.
func (p *Poller) selectUnread(list []model.Notification) []model.Notification {
	out := make([]model.Notification, 0, len(list))
	for _, n := range list {
		if n.Read || !p.cfg.Filter(n) {
			continue
		}
		out = append(out, n)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].ID > out[j].ID
	})
	return out
}

// claim marks candidates as processed and returns the ones not seen
// before. It reports false when gen is no longer the active generation,
// in which case nothing is marked.
func (p *Poller) claim(gen uint64, count int, listed bool, candidates []model.Notification) ([]model.Notification, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.generation != gen {
		return nil, false
	}

	var fresh []model.Notification
	inBatch := make(map[int64]struct{}, len(candidates))
	for _, n := range candidates {
		if _, dup := inBatch[n.ID]; dup || p.state.processed.Seen(n.ID) {
			continue
		}
		inBatch[n.ID] = struct{}{}
		fresh = append(fresh, n)
	}
	// fresh is newest first; mark oldest first so overflow evicts the
	// lowest IDs.
	for i := len(fresh) - 1; i >= 0; i-- {
		p.state.processed.Mark(fresh[i].ID)
		if fresh[i].ID > p.state.highestID {
			p.state.highestID = fresh[i].ID
		}
	}
	p.state.lastCount = count
	if listed {
		p.state.cached = true
	}

	p.status.UnreadCount = count
	p.status.HighestID = p.state.highestID
	p.status.Processed = p.state.processed.Len()
	p.status.LastPoll = time.Now()
	return fresh, true
}

// emit publishes the bus events for newly claimed notifications.
func (p *Poller) emit(fresh []model.Notification, countChanged bool) {
	if p.events == nil {
		return
	}

	for i, n := range fresh {
		log.Printf("[Poller] new notification %d (%s): %s", n.ID, n.Type, n.Title)
		p.events.NewNotification.Publish(bus.TopicNewNotification, n, bus.PublishOptions{})

		if p.cfg.MaxToastsPerPoll <= 0 || i < p.cfg.MaxToastsPerPoll {
			p.events.ShowToast.Publish(bus.TopicShowToast, n, bus.PublishOptions{})
		}

		if bus.IsLoginRequest(n) {
			p.events.LoginRequest.Publish(bus.TopicLoginRequest, bus.LoginRequestFrom(n), bus.PublishOptions{})
		}
	}

	if len(fresh) > 0 || countChanged {
		p.events.NotificationUpdated.Publish(bus.TopicNotificationUpdated, struct{}{}, bus.PublishOptions{})
	}
}

// fail records a cycle error. Auth failures invalidate the session,
// which stops the poller.
func (p *Poller) fail(err error) error {
	p.setState(PollError, err)

	if api.IsAuthError(err) {
		log.Printf("[Poller] authentication rejected, stopping: %v", err)
		p.gate.Invalidate(err.Error())
		p.Stop()
		return err
	}

	log.Printf("[Poller] poll failed, retrying next tick: %v", err)
	return fmt.Errorf("polling notifications: %w", err)
}

// setState updates the reported poll state.
func (p *Poller) setState(state PollState, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.status.State = state
	p.status.Error = err
}
