package query

import "strings"

const (
	TypeGetSession = "session.query.session.get"
	TypeGetValue   = "session.query.value.get"
)

type GetSessionMessage struct{}

func (GetSessionMessage) Type() string { return TypeGetSession }

func (GetSessionMessage) Validate() error { return nil }

type GetValueMessage struct {
	Key string
}

func (GetValueMessage) Type() string { return TypeGetValue }

func (m GetValueMessage) Validate() error {
	if strings.TrimSpace(m.Key) == "" {
		return queryValidationError("key", "key is required")
	}
	return nil
}
