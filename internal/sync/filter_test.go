package sync

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/amrut/notifydesk/internal/model"
)

func TestProfileFilter(t *testing.T) {
	withAction := func(typ model.NotificationType, action string) model.Notification {
		return model.Notification{Type: typ, Data: map[string]any{"action": action}}
	}
	override := model.Notification{
		Type: model.TypeGeneral,
		Data: map[string]any{"notificationType": string(model.TypeSystemAlert)},
	}

	tests := []struct {
		name    string
		profile string
		n       model.Notification
		want    bool
	}{
		{"mobile keeps order updates", model.ProfileMobile, model.Notification{Type: model.TypeOrderStatusUpdated}, true},
		{"mobile drops login requests", model.ProfileMobile, model.Notification{Type: model.TypeLoginRequest}, false},
		{"mobile drops system alerts", model.ProfileMobile, model.Notification{Type: model.TypeSystemAlert}, false},
		{"admin keeps login requests", model.ProfileAdmin, model.Notification{Type: model.TypeLoginRequest}, true},
		{"admin keeps new orders", model.ProfileAdmin, model.Notification{Type: model.TypeNewOrder}, true},
		{"admin drops cart updates", model.ProfileAdmin, model.Notification{Type: model.TypeCartUpdated}, false},
		{"admin drops mobile actions", model.ProfileAdmin, withAction(model.TypeNewOrder, "view_order"), false},
		{"admin honours type override", model.ProfileAdmin, override, true},
		{"unknown profile accepts all", "", model.Notification{Type: model.TypeCartUpdated}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ProfileFilter(tt.profile)(tt.n))
		})
	}
}

func TestDedupSetEvictsOldest(t *testing.T) {
	d := newDedupSet(2)
	d.Mark(1)
	d.Mark(2)
	assert.True(t, d.Seen(1))

	d.Mark(3)
	assert.False(t, d.Seen(1), "oldest is evicted even after a lookup")
	assert.True(t, d.Seen(2))
	assert.True(t, d.Seen(3))
	assert.Equal(t, 2, d.Len())

	d.Reset()
	assert.Equal(t, 0, d.Len())
}
