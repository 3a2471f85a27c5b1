package query

import (
	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-session/core"
)

var (
	_ gocmd.Querier[GetSessionMessage, core.Maybe[core.SessionToken]] = (*GetSessionQuery)(nil)
	_ gocmd.Querier[GetValueMessage, core.Maybe[string]]              = (*GetValueQuery)(nil)

	_ SessionReader = (*core.Client)(nil)
	_ ValueReader   = (*core.Store[string])(nil)
)
