package models

// Action names a message kind exchanged between the page side and the
// gateway side.
type Action string

const (
	ActionLocate      Action = "voodooCall"
	ActionDevices     Action = "voodooDevices"
	ActionLogin       Action = "login"
	ActionAddLogEntry Action = "addLogEntry"
)

// LoginRequest carries credentials typed into the login prompt.
type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// Message is the envelope passed through the messenger. Exactly one of the
// payload fields is set, matching Action.
type Message struct {
	Action  Action          `json:"action"`
	Command *Command        `json:"command,omitempty"`
	Devices []DeviceCommand `json:"devices,omitempty"`
	Login   *LoginRequest   `json:"login,omitempty"`
	Entry   *LogEntry       `json:"entry,omitempty"`
}

// Response acknowledges a message. It never carries the outcome of the
// remote call; that is reported through the log.
type Response struct {
	Done bool `json:"done"`
}
