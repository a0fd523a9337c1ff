// Package realtime keeps platform data streams fresh for in-process
// consumers. Each stream is polled by a single loop that exists only
// while the stream has subscribers on the bus, so any number of views
// share one fetch cadence per stream.
package realtime

import (
	"context"
	"errors"
	"fmt"
	"log"
	gosync "sync"
	"time"

	"github.com/mitchellh/hashstructure/v2"

	"github.com/amrut/notifydesk/internal/api"
	"github.com/amrut/notifydesk/internal/bus"
	"github.com/amrut/notifydesk/internal/model"
)

// DefaultInterval is used when no interval is configured.
const DefaultInterval = 10 * time.Second

var (
	// ErrUnknownStream is returned for a data type the watcher does not serve.
	ErrUnknownStream = errors.New("unknown data stream")
	// ErrNotAuthenticated is returned when a stream needs a session and
	// none is active.
	ErrNotAuthenticated = errors.New("not authenticated")
)

// Source fetches the raw stream payloads.
type Source interface {
	GetCategories(ctx context.Context) (any, error)
	GetProductsByCategory(ctx context.Context, categoryID string) (any, error)
	GetUserOrders(ctx context.Context, creds model.Credentials) (any, error)
	GetSliders(ctx context.Context) (any, error)
}

// Gate supplies credentials for authenticated streams.
type Gate interface {
	Credentials() (model.Credentials, bool)
	Invalidate(reason string)
}

type streamKey struct {
	dataType   string
	categoryID string
}

func (k streamKey) String() string {
	if k.categoryID == "" {
		return k.dataType
	}
	return k.dataType + ":" + k.categoryID
}

type stream struct {
	refs   int
	cancel context.CancelFunc
	done   chan struct{}
}

// Watcher polls data streams on behalf of bus subscribers.
type Watcher struct {
	src      Source
	gate     Gate
	events   *bus.Events
	interval time.Duration
	enabled  map[string]bool

	mu      gosync.Mutex
	ctx     context.Context
	streams map[streamKey]*stream
	latest  map[streamKey]bus.DataEvent
}

// New creates a Watcher serving the configured streams. gate may be nil,
// in which case the orders stream is unavailable.
func New(src Source, gate Gate, events *bus.Events, cfg model.RealtimeConfig) *Watcher {
	interval := cfg.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	enabled := make(map[string]bool)
	for _, s := range cfg.Streams {
		enabled[s] = true
	}
	if len(enabled) == 0 {
		for _, s := range []string{bus.DataCategories, bus.DataProducts, bus.DataOrders, bus.DataSliders} {
			enabled[s] = true
		}
	}
	return &Watcher{
		src:      src,
		gate:     gate,
		events:   events,
		interval: interval,
		enabled:  enabled,
		streams:  make(map[streamKey]*stream),
		latest:   make(map[streamKey]bus.DataEvent),
	}
}

// Start hooks the watcher into the data bus. Loops run under ctx until
// their last subscriber leaves or Stop is called.
func (w *Watcher) Start(ctx context.Context) {
	w.mu.Lock()
	w.ctx = ctx
	for key, s := range w.streams {
		if s.cancel == nil {
			w.startLocked(key, s)
		}
	}
	w.mu.Unlock()

	w.events.Data.SetHooks(bus.Hooks{
		Subscribed: func(dataType string, opts bus.Options, _ int) {
			w.acquire(streamKey{dataType, opts.CategoryID})
		},
		Unsubscribed: func(dataType string, opts bus.Options, _ int) {
			w.release(streamKey{dataType, opts.CategoryID})
		},
	})
}

// Stop detaches from the bus and ends every loop.
func (w *Watcher) Stop() {
	w.events.Data.SetHooks(bus.Hooks{})

	w.mu.Lock()
	streams := w.streams
	w.streams = make(map[streamKey]*stream)
	w.ctx = nil
	w.mu.Unlock()

	for key, s := range streams {
		if s.cancel != nil {
			s.cancel()
			<-s.done
		}
		log.Printf("[Realtime] stopped %s", key)
	}
}

// Active lists the streams that currently have a running loop.
func (w *Watcher) Active() []string {
	w.mu.Lock()
	defer w.mu.Unlock()

	out := make([]string, 0, len(w.streams))
	for key, s := range w.streams {
		if s.cancel != nil {
			out = append(out, key.String())
		}
	}
	return out
}

func (w *Watcher) acquire(key streamKey) {
	w.mu.Lock()
	defer w.mu.Unlock()

	s, ok := w.streams[key]
	if !ok {
		s = &stream{}
		w.streams[key] = s
	}
	s.refs++
	if s.refs == 1 && w.ctx != nil {
		w.startLocked(key, s)
	}
}

func (w *Watcher) startLocked(key streamKey, s *stream) {
	if !w.serves(key) {
		log.Printf("[Realtime] %s is not served, subscriber gets no updates", key)
		return
	}

	ctx, cancel := context.WithCancel(w.ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	go w.loop(ctx, key, s.done)
	log.Printf("[Realtime] started %s every %v", key, w.interval)
}

func (w *Watcher) release(key streamKey) {
	w.mu.Lock()
	s, ok := w.streams[key]
	if !ok {
		w.mu.Unlock()
		return
	}
	s.refs--
	if s.refs > 0 {
		w.mu.Unlock()
		return
	}
	delete(w.streams, key)
	delete(w.latest, key)
	w.mu.Unlock()

	// The last subscriber may leave from inside a delivery on this
	// stream's own loop, so the loop is cancelled without waiting.
	if s.cancel != nil {
		s.cancel()
		log.Printf("[Realtime] stopped %s", key)
	}
}

func (w *Watcher) serves(key streamKey) bool {
	if !w.enabled[key.dataType] {
		return false
	}
	// Products are always fetched per category.
	return key.dataType != bus.DataProducts || key.categoryID != ""
}

func (w *Watcher) loop(ctx context.Context, key streamKey, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.poll(ctx, key, false)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.poll(ctx, key, false)
		}
	}
}

// Refresh fetches one stream immediately and publishes it to
// subscribers even when it has not changed.
func (w *Watcher) Refresh(ctx context.Context, dataType, categoryID string) (any, error) {
	key := streamKey{dataType, categoryID}
	if !w.serves(key) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownStream, key)
	}
	return w.poll(ctx, key, true)
}

// poll fetches key and publishes when the payload hash changed or force
// is set.
func (w *Watcher) poll(ctx context.Context, key streamKey, force bool) (any, error) {
	payload, err := w.fetch(ctx, key)
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		if errors.Is(err, ErrNotAuthenticated) {
			return nil, err
		}
		if api.IsAuthError(err) && w.gate != nil {
			w.gate.Invalidate(err.Error())
		}
		log.Printf("[Realtime] fetching %s: %v", key, err)
		return nil, err
	}

	hash, err := hashstructure.Hash(payload, hashstructure.FormatV2, nil)
	if err != nil {
		return nil, fmt.Errorf("hashing %s: %w", key, err)
	}

	ev := bus.DataEvent{
		DataType:   key.dataType,
		CategoryID: key.categoryID,
		Payload:    payload,
		Hash:       hash,
		FetchedAt:  time.Now(),
	}

	w.mu.Lock()
	prev, seen := w.latest[key]
	_, live := w.streams[key]
	if live || force {
		w.latest[key] = ev
	}
	w.mu.Unlock()

	if seen && prev.Hash == hash && !force {
		return payload, nil
	}

	w.events.Data.Publish(key.dataType, ev, bus.PublishOptions{CategoryID: key.categoryID})
	return payload, nil
}

// Latest returns the last payload fetched for a stream, so a subscriber
// joining a running stream can render before the next change.
func (w *Watcher) Latest(dataType, categoryID string) (bus.DataEvent, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	ev, ok := w.latest[streamKey{dataType, categoryID}]
	return ev, ok
}

func (w *Watcher) fetch(ctx context.Context, key streamKey) (any, error) {
	switch key.dataType {
	case bus.DataCategories:
		return w.src.GetCategories(ctx)
	case bus.DataProducts:
		return w.src.GetProductsByCategory(ctx, key.categoryID)
	case bus.DataSliders:
		return w.src.GetSliders(ctx)
	case bus.DataOrders:
		if w.gate == nil {
			return nil, ErrNotAuthenticated
		}
		creds, ok := w.gate.Credentials()
		if !ok {
			return nil, ErrNotAuthenticated
		}
		return w.src.GetUserOrders(ctx, creds)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownStream, key.dataType)
	}
}
