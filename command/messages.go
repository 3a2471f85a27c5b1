package command

import (
	"strings"

	"github.com/goliatone/go-session/core"
)

const (
	TypeLogin    = "session.command.login"
	TypeLogout   = "session.command.logout"
	TypeSetValue = "session.command.value.set"
)

// LoginMessage stores Token as the current session. With Strict set the
// token must decode as a session token before it is stored.
type LoginMessage struct {
	Token  string
	Strict bool
}

func (LoginMessage) Type() string { return TypeLogin }

func (m LoginMessage) Validate() error {
	token := strings.TrimSpace(m.Token)
	if token == "" {
		return commandValidationError("token", "token is required")
	}
	if !m.Strict {
		return nil
	}
	if _, err := core.DecodeSessionToken(token); err != nil {
		return commandWrapValidation(err, "command: token is not a valid session token")
	}
	return nil
}

type LogoutMessage struct{}

func (LogoutMessage) Type() string { return TypeLogout }

func (LogoutMessage) Validate() error { return nil }

// SetValueMessage writes Value under Key in a string store. An unset Value
// removes the key from durable storage; a null Value records an explicit
// clear.
type SetValueMessage struct {
	Key   string
	Value core.Maybe[string]
}

func (SetValueMessage) Type() string { return TypeSetValue }

func (m SetValueMessage) Validate() error {
	if strings.TrimSpace(m.Key) == "" {
		return commandValidationError("key", "key is required")
	}
	return nil
}
