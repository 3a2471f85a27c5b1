package command

import (
	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-session/core"
)

var (
	_ gocmd.Commander[LoginMessage]    = (*LoginCommand)(nil)
	_ gocmd.Commander[LogoutMessage]   = (*LogoutCommand)(nil)
	_ gocmd.Commander[SetValueMessage] = (*SetValueCommand)(nil)

	_ SessionService = (*core.Client)(nil)
	_ ValueWriter    = (*core.Store[string])(nil)
)
