package session

import (
	"context"
	"fmt"

	sessioncommand "github.com/goliatone/go-session/command"
	"github.com/goliatone/go-session/core"
	sessionquery "github.com/goliatone/go-session/query"
)

// CommandQueryService is what the facade needs from a client: the session
// lifecycle plus the shared string store.
type CommandQueryService interface {
	sessioncommand.SessionService
	Store() *core.Store[string]
}

type Commands struct {
	Login    *sessioncommand.LoginCommand
	Logout   *sessioncommand.LogoutCommand
	SetValue *sessioncommand.SetValueCommand
}

type Queries struct {
	GetSession *sessionquery.GetSessionQuery
	GetValue   *sessionquery.GetValueQuery
}

type Facade struct {
	service  CommandQueryService
	commands Commands
	queries  Queries
}

type FacadeOption func(*facadeOptions)

type facadeOptions struct {
	values valueStore
}

type valueStore interface {
	sessioncommand.ValueWriter
	sessionquery.ValueReader
}

// WithValueStore routes SetValue and GetValue to store instead of the
// client's session store.
func WithValueStore(store *core.Store[string]) FacadeOption {
	return func(options *facadeOptions) {
		if store != nil {
			options.values = store
		}
	}
}

func NewFacade(service CommandQueryService, opts ...FacadeOption) (*Facade, error) {
	if service == nil {
		return nil, fmt.Errorf("session: command/query service is required")
	}
	cfg := facadeOptions{}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&cfg)
	}

	values := cfg.values
	if values == nil {
		store := service.Store()
		if store == nil {
			return nil, fmt.Errorf("session: value store is required")
		}
		values = store
	}

	facade := &Facade{service: service}
	facade.commands = Commands{
		Login:    sessioncommand.NewLoginCommand(service),
		Logout:   sessioncommand.NewLogoutCommand(service),
		SetValue: sessioncommand.NewSetValueCommand(values),
	}
	facade.queries = Queries{
		GetSession: sessionquery.NewGetSessionQuery(service),
		GetValue:   sessionquery.NewGetValueQuery(values),
	}
	return facade, nil
}

func (f *Facade) Commands() Commands {
	if f == nil {
		return Commands{}
	}
	return f.commands
}

func (f *Facade) Queries() Queries {
	if f == nil {
		return Queries{}
	}
	return f.queries
}

func (f *Facade) Service() CommandQueryService {
	if f == nil {
		return nil
	}
	return f.service
}

// Login runs the login command and returns the session it produced.
func (f *Facade) Login(ctx context.Context, token string) (core.Maybe[core.SessionToken], error) {
	if f == nil {
		return core.Unset[core.SessionToken](), fmt.Errorf("session: facade is not configured")
	}
	if err := f.commands.Login.Execute(ctx, sessioncommand.LoginMessage{Token: token}); err != nil {
		return core.Unset[core.SessionToken](), err
	}
	return f.queries.GetSession.Query(ctx, sessionquery.GetSessionMessage{})
}

var _ CommandQueryService = (*core.Client)(nil)
