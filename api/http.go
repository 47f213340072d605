package api

// HTTPMessage is the only response shape that crosses the HTTP boundary.
// Passcode is set exactly once, when a passcode is created or reset.
type HTTPMessage struct {
	Message  string `json:"message"`
	Passcode string `json:"passcode,omitempty"`
}

type JoinRequest struct {
	Passcode string `json:"passcode"`
}

type TeamStatus struct {
	Name      string `json:"name"`
	Ready     bool   `json:"ready"`
	CreatedAt string `json:"createdAt,omitempty"`
}
