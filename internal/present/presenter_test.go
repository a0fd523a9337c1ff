package present

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amrut/notifydesk/internal/bus"
	"github.com/amrut/notifydesk/internal/model"
)

type fakeSound struct {
	played []model.NotificationType
	err    error
}

func (s *fakeSound) Play(_ context.Context, typ model.NotificationType) error {
	s.played = append(s.played, typ)
	return s.err
}

type fakeMarker struct {
	token string
	ids   []int64
	err   error
}

func (m *fakeMarker) MarkNotificationRead(_ context.Context, token string, id int64) error {
	m.token = token
	m.ids = append(m.ids, id)
	return m.err
}

type staticCreds struct {
	creds model.Credentials
	ok    bool
}

func (c staticCreds) Credentials() (model.Credentials, bool) { return c.creds, c.ok }

func TestCategoryFor(t *testing.T) {
	tests := []struct {
		typ  model.NotificationType
		want Category
	}{
		{model.TypeLoginApproved, CategorySuccess},
		{model.TypeLoginRejected, CategoryError},
		{model.TypeSystemAlert, CategoryWarning},
		{model.TypeNewOrder, CategoryInfo},
		{model.TypeGeneral, CategoryInfo},
		{"something_new", CategoryInfo},
	}
	for _, tt := range tests {
		t.Run(string(tt.typ), func(t *testing.T) {
			assert.Equal(t, tt.want, CategoryFor(tt.typ))
		})
	}
}

func TestPresentShowsToastAndPlaysCue(t *testing.T) {
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	sound := &fakeSound{err: errors.New("audio blocked")}
	var shown []Toast

	p := New(model.PresenterConfig{ToastDuration: 3 * time.Second},
		WithSink(SinkFunc(func(t Toast) { shown = append(shown, t) })),
		WithSoundPlayer(sound),
		WithClock(func() time.Time { return now }),
	)

	toast := p.Present(context.Background(), model.Notification{ID: 7, Type: model.TypeLoginRejected})

	require.Len(t, shown, 1, "a failing cue still shows the toast")
	assert.Equal(t, CategoryError, toast.Category)
	assert.Equal(t, model.DefaultTitle, toast.Title)
	assert.Equal(t, now.Add(3*time.Second), toast.ExpiresAt)
	assert.False(t, toast.Expired(now.Add(time.Second)))
	assert.True(t, toast.Expired(now.Add(3*time.Second)))
	assert.Equal(t, []model.NotificationType{model.TypeLoginRejected}, sound.played)
}

func TestAttachSubscribesToShowToast(t *testing.T) {
	events := bus.NewEvents()
	sound := &fakeSound{}
	var shown []int64

	p := New(model.PresenterConfig{},
		WithSink(SinkFunc(func(t Toast) { shown = append(shown, t.Notification.ID) })),
		WithSoundPlayer(sound),
	)
	assert.Equal(t, DefaultToastDuration, p.Duration())

	p.Attach(events)
	p.Attach(events)
	events.ShowToast.Publish(bus.TopicShowToast, model.Notification{ID: 1}, bus.PublishOptions{})
	assert.Equal(t, []int64{1}, shown, "re-attaching does not double subscribe")

	p.Detach()
	events.ShowToast.Publish(bus.TopicShowToast, model.Notification{ID: 2}, bus.PublishOptions{})
	assert.Equal(t, []int64{1}, shown)
	assert.Equal(t, 0, events.ShowToast.Count(bus.TopicShowToast))
}

func TestAcknowledge(t *testing.T) {
	events := bus.NewEvents()
	marker := &fakeMarker{}
	updated := 0
	events.NotificationUpdated.Subscribe(bus.TopicNotificationUpdated, func(struct{}, bus.PublishOptions) {
		updated++
	}, bus.Options{})

	p := New(model.PresenterConfig{},
		WithSoundPlayer(&fakeSound{}),
		WithMarker(marker, staticCreds{creds: model.Credentials{UserID: "1", Token: "tok"}, ok: true}),
	)
	p.Attach(events)

	require.NoError(t, p.Acknowledge(context.Background(), 55))
	assert.Equal(t, "tok", marker.token)
	assert.Equal(t, []int64{55}, marker.ids)
	assert.Equal(t, 1, updated)

	marker.err = errors.New("boom")
	assert.Error(t, p.Acknowledge(context.Background(), 56))
	assert.Equal(t, 1, updated)
}

func TestAcknowledgeWithoutSession(t *testing.T) {
	p := New(model.PresenterConfig{},
		WithSoundPlayer(&fakeSound{}),
		WithMarker(&fakeMarker{}, staticCreds{}),
	)
	assert.ErrorIs(t, p.Acknowledge(context.Background(), 1), ErrNoSession)

	bare := New(model.PresenterConfig{}, WithSoundPlayer(&fakeSound{}))
	assert.ErrorIs(t, bare.Acknowledge(context.Background(), 1), ErrNoSession)
}

func TestSoundPicksTypeAssetThenDefault(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "new_order.wav"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "default.wav"), []byte("x"), 0o644))

	s := NewSound(model.PresenterConfig{SoundEnabled: true, SoundVolume: 0.5, SoundDir: dir, Player: "paplay"})
	var calls [][]string
	s.run = func(_ context.Context, name string, args ...string) error {
		calls = append(calls, append([]string{name}, args...))
		return nil
	}

	require.NoError(t, s.Play(context.Background(), model.TypeNewOrder))
	require.NoError(t, s.Play(context.Background(), model.TypeCartUpdated))

	require.Len(t, calls, 2)
	assert.Equal(t, []string{"paplay", "--volume", "32768", filepath.Join(dir, "new_order.wav")}, calls[0])
	assert.Equal(t, filepath.Join(dir, "default.wav"), calls[1][len(calls[1])-1])
}

func TestSoundFallsBackToBell(t *testing.T) {
	var bell bytes.Buffer
	s := NewSound(model.PresenterConfig{SoundEnabled: true, SoundVolume: 1})
	s.bell = &bell

	require.NoError(t, s.Play(context.Background(), model.TypeGeneral))
	assert.Equal(t, "\a", bell.String())
}

func TestSoundBlankPlayerRingsBell(t *testing.T) {
	var bell bytes.Buffer
	s := NewSound(model.PresenterConfig{SoundEnabled: true, SoundVolume: 1, Player: "  \t "})
	s.bell = &bell
	s.run = func(context.Context, string, ...string) error {
		t.Fatal("blank player must not be run")
		return nil
	}

	require.NoError(t, s.Play(context.Background(), model.TypeGeneral))
	assert.Equal(t, "\a", bell.String())

	bell.Reset()
	s.player = " "
	require.NoError(t, s.Play(context.Background(), model.TypeGeneral))
	assert.Equal(t, "\a", bell.String())
	assert.ErrorIs(t, s.playFile(context.Background(), "cue.wav"), ErrNoPlayer)
}

func TestSoundFailingPlayerSynthesizesThenRings(t *testing.T) {
	var bell bytes.Buffer
	s := NewSound(model.PresenterConfig{SoundEnabled: true, SoundVolume: 1, Player: "afplay"})
	s.bell = &bell

	var played []string
	s.run = func(_ context.Context, _ string, args ...string) error {
		played = append(played, args[len(args)-1])
		return errors.New("no audio device")
	}

	require.NoError(t, s.Play(context.Background(), model.TypeGeneral))
	require.Len(t, played, 1, "no asset dir, so only the synthesized tone is tried")
	assert.Contains(t, played[0], "notifydesk-tone-")
	assert.Equal(t, "\a", bell.String())
}

func TestSoundDisabledAndVolumeClamp(t *testing.T) {
	var bell bytes.Buffer
	s := NewSound(model.PresenterConfig{SoundEnabled: false, SoundVolume: 3})
	s.bell = &bell
	assert.Equal(t, 1.0, s.Volume())

	require.NoError(t, s.Play(context.Background(), model.TypeGeneral))
	assert.Empty(t, bell.String())

	s.SetEnabled(true)
	s.SetVolume(-1)
	assert.Equal(t, 0.0, s.Volume())
	require.NoError(t, s.Play(context.Background(), model.TypeGeneral))
	assert.Empty(t, bell.String(), "muted volume plays nothing")
}

func TestSynthesizeToneHeader(t *testing.T) {
	wav := synthesizeTone(0.5)
	require.Greater(t, len(wav), 44)
	assert.Equal(t, "RIFF", string(wav[0:4]))
	assert.Equal(t, "WAVE", string(wav[8:12]))
	assert.Equal(t, "data", string(wav[36:40]))
	assert.Equal(t, 44+int(toneSampleRate*toneDuration)*2, len(wav))
}
