package command

import (
	"context"
	"strings"

	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-session/core"
)

type SessionService interface {
	Login(ctx context.Context, token string) error
	Logout(ctx context.Context) error
	CurrentSession(ctx context.Context) core.Maybe[core.SessionToken]
}

type ValueWriter interface {
	Set(key string, value core.Maybe[string])
}

type LoginCommand struct {
	service SessionService
}

func NewLoginCommand(service SessionService) *LoginCommand {
	return &LoginCommand{service: service}
}

// Execute stores the token and publishes the resulting session, which is
// null or unset when the token is already expired or unparsable.
func (c *LoginCommand) Execute(ctx context.Context, msg LoginMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: session service is required")
	}
	if err := msg.Validate(); err != nil {
		return err
	}
	if err := c.service.Login(ctx, strings.TrimSpace(msg.Token)); err != nil {
		return err
	}
	storeResult(ctx, c.service.CurrentSession(ctx))
	return nil
}

type LogoutCommand struct {
	service SessionService
}

func NewLogoutCommand(service SessionService) *LogoutCommand {
	return &LogoutCommand{service: service}
}

func (c *LogoutCommand) Execute(ctx context.Context, _ LogoutMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: session service is required")
	}
	return c.service.Logout(ctx)
}

type SetValueCommand struct {
	writer ValueWriter
}

func NewSetValueCommand(writer ValueWriter) *SetValueCommand {
	return &SetValueCommand{writer: writer}
}

func (c *SetValueCommand) Execute(_ context.Context, msg SetValueMessage) error {
	if c == nil || c.writer == nil {
		return commandDependencyError("command: value writer is required")
	}
	if err := msg.Validate(); err != nil {
		return err
	}
	c.writer.Set(msg.Key, msg.Value)
	return nil
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}
