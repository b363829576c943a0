package session

// Session binds a subscriber to the project they are editing. The cookie
// that keys it is the only credential for unsubscribe and update calls.
type Session struct {
	Username  string `json:"username"`
	ProjectID string `json:"project_id"`
}
