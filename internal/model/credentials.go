package model

// Credentials identify the logged-in user to the backend.
type Credentials struct {
	// UserID is the backend user identifier used in feed URLs.
	UserID string `json:"user_id"`

	// Token is the bearer credential sent on every authenticated call.
	Token string `json:"token"`
}

// Valid reports whether both fields are present.
func (c Credentials) Valid() bool {
	return c.UserID != "" && c.Token != ""
}
