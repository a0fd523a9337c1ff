package app

import (
	"log"
	gosync "sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/amrut/notifydesk/internal/bus"
	"github.com/amrut/notifydesk/internal/present"
	"github.com/amrut/notifydesk/internal/ui/toast"
)

// bridgeBuffer bounds how many bus events can wait for the UI loop.
const bridgeBuffer = 64

// notificationsChangedMsg asks the inbox and badge to reload.
type notificationsChangedMsg struct{}

// sessionExpiredMsg reports that the session ended without a logout.
type sessionExpiredMsg struct {
	reason string
}

// ordersChangedMsg reports a changed orders stream.
type ordersChangedMsg struct {
	count int
}

// loginRequestMsg carries an admin login-approval request.
type loginRequestMsg struct {
	event bus.LoginRequestEvent
}

// Bridge turns bus events and presenter toasts into tea messages. Bus
// handlers run on producer goroutines, so they only enqueue; the UI
// loop drains the queue through Wait.
type Bridge struct {
	ch     chan tea.Msg
	events *bus.Events

	mu   gosync.Mutex
	subs []func()
}

var _ present.Sink = (*Bridge)(nil)

// NewBridge subscribes to the UI-relevant topics of events.
func NewBridge(events *bus.Events) *Bridge {
	b := &Bridge{
		ch:     make(chan tea.Msg, bridgeBuffer),
		events: events,
	}

	updated := events.NotificationUpdated.Subscribe(bus.TopicNotificationUpdated,
		func(struct{}, bus.PublishOptions) { b.send(notificationsChangedMsg{}) },
		bus.Options{})
	expired := events.SessionExpired.Subscribe(bus.TopicSessionExpired,
		func(ev bus.SessionEvent, _ bus.PublishOptions) { b.send(sessionExpiredMsg{reason: ev.Reason}) },
		bus.Options{})
	login := events.LoginRequest.Subscribe(bus.TopicLoginRequest,
		func(ev bus.LoginRequestEvent, _ bus.PublishOptions) { b.send(loginRequestMsg{event: ev}) },
		bus.Options{})
	// Subscribing starts the watcher's orders loop.
	orders := events.Data.Subscribe(bus.DataOrders,
		func(ev bus.DataEvent, _ bus.PublishOptions) { b.send(ordersChangedMsg{count: CountItems(ev.Payload)}) },
		bus.Options{})

	b.subs = []func(){
		func() { events.NotificationUpdated.Unsubscribe(bus.TopicNotificationUpdated, updated) },
		func() { events.SessionExpired.Unsubscribe(bus.TopicSessionExpired, expired) },
		func() { events.LoginRequest.Unsubscribe(bus.TopicLoginRequest, login) },
		func() { events.Data.Unsubscribe(bus.DataOrders, orders) },
	}
	return b
}

// ShowToast implements present.Sink.
func (b *Bridge) ShowToast(t present.Toast) {
	b.send(toast.ShowMsg{Toast: t})
}

func (b *Bridge) send(msg tea.Msg) {
	select {
	case b.ch <- msg:
	default:
		log.Printf("[Bridge] UI queue full, dropping %T", msg)
	}
}

// Wait returns a command that blocks until the next bridged message.
// The root model re-issues it after every bridged message.
func (b *Bridge) Wait() tea.Cmd {
	return func() tea.Msg {
		return <-b.ch
	}
}

// PublishUpdated tells every badge consumer on the bus to refetch.
func (b *Bridge) PublishUpdated() {
	b.events.NotificationUpdated.Publish(bus.TopicNotificationUpdated, struct{}{}, bus.PublishOptions{})
}

// Close unsubscribes from the bus.
func (b *Bridge) Close() {
	b.mu.Lock()
	subs := b.subs
	b.subs = nil
	b.mu.Unlock()

	for _, unsubscribe := range subs {
		unsubscribe()
	}
}

// CountItems returns the number of records in a decoded stream payload:
// a bare array, or an object wrapping one array. It returns -1 when the
// shape is unknown.
func CountItems(payload any) int {
	switch v := payload.(type) {
	case []any:
		return len(v)
	case map[string]any:
		for _, field := range v {
			if items, ok := field.([]any); ok {
				return len(items)
			}
		}
	}
	return -1
}
