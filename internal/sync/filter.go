package sync

import (
	"github.com/amrut/notifydesk/internal/model"
)

// Filter decides whether an unread notification is surfaced.
type Filter func(n model.Notification) bool

// AcceptAll surfaces every notification.
func AcceptAll(model.Notification) bool { return true }

// Types meant for the admin dashboard; the mobile app never shows them.
var adminOnlyTypes = map[model.NotificationType]bool{
	model.TypeLoginRequest:      true,
	model.TypeUserRegistration:  true,
	model.TypeUserRegistered:    true,
	model.TypeAdminNotification: true,
	model.TypeSystemAlert:       true,
}

// Types the admin dashboard surfaces.
var adminRelevantTypes = map[model.NotificationType]bool{
	model.TypeLoginRequest:      true,
	model.TypeUserRegistration:  true,
	model.TypeUserRegistered:    true,
	model.TypeAdminNotification: true,
	model.TypeSystemAlert:       true,
	model.TypeNewOrder:          true,
}

// Payload actions that only make sense inside the mobile app.
var mobileActions = map[string]bool{
	"redirect_to_home": true,
	"force_logout":     true,
	"view_order":       true,
	"view_cart":        true,
}

// ProfileFilter returns the allowlist for a poller profile.
func ProfileFilter(profile string) Filter {
	switch profile {
	case model.ProfileAdmin:
		return adminFilter
	case model.ProfileMobile:
		return mobileFilter
	default:
		return AcceptAll
	}
}

func mobileFilter(n model.Notification) bool {
	return !adminOnlyTypes[n.Type]
}

func adminFilter(n model.Notification) bool {
	if mobileActions[n.DataString("action")] {
		return false
	}
	return adminRelevantTypes[n.Type] || adminRelevantTypes[n.EffectiveType()]
}
