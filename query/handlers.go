package query

import (
	"context"

	"github.com/goliatone/go-session/core"
)

type SessionReader interface {
	CurrentSession(ctx context.Context) core.Maybe[core.SessionToken]
}

type ValueReader interface {
	Get(key string) core.Maybe[string]
}

type GetSessionQuery struct {
	reader SessionReader
}

func NewGetSessionQuery(reader SessionReader) *GetSessionQuery {
	return &GetSessionQuery{reader: reader}
}

// Query returns the live session. Expired sessions are cleared as a side
// effect of the read and come back null.
func (q *GetSessionQuery) Query(ctx context.Context, _ GetSessionMessage) (core.Maybe[core.SessionToken], error) {
	if q == nil || q.reader == nil {
		return core.Unset[core.SessionToken](), queryDependencyError("query: session reader is required")
	}
	return q.reader.CurrentSession(ctx), nil
}

type GetValueQuery struct {
	reader ValueReader
}

func NewGetValueQuery(reader ValueReader) *GetValueQuery {
	return &GetValueQuery{reader: reader}
}

func (q *GetValueQuery) Query(_ context.Context, msg GetValueMessage) (core.Maybe[string], error) {
	if q == nil || q.reader == nil {
		return core.Unset[string](), queryDependencyError("query: value reader is required")
	}
	if err := msg.Validate(); err != nil {
		return core.Unset[string](), err
	}
	return q.reader.Get(msg.Key), nil
}
