package adapters_test

import (
	"context"
	"encoding/base64"
	"strconv"
	"testing"
	"time"

	"github.com/goliatone/go-command"
	job "github.com/goliatone/go-job"
	glog "github.com/goliatone/go-logger/glog"
	"github.com/goliatone/go-session/adapters/gocommand"
	"github.com/goliatone/go-session/adapters/gojob"
	"github.com/goliatone/go-session/adapters/gologger"
	sessioncommand "github.com/goliatone/go-session/command"
	"github.com/goliatone/go-session/core"
)

func TestRuntimeCompatibility_GoJobGoCommandGoLogger(t *testing.T) {
	ctx := context.Background()

	logger := &compatLogger{}
	provider, _, jobProvider, jobLogger := gologger.ResolveForJob(&compatProvider{logger: logger}, nil)
	if jobProvider == nil || jobLogger == nil {
		t.Fatalf("expected go-job logger bridges")
	}

	start := time.Unix(1_700_000_000, 0).UTC()
	scheduler := core.NewManualScheduler(start)
	recordedEnqueuer := &compatEnqueuer{}

	client, err := core.NewClient(core.DefaultConfig(),
		core.WithLoggerProvider(provider),
		core.WithScheduler(scheduler),
		core.WithClientExpiryNotifier(gojob.NewExpiryEnqueuer(gojob.NewEnqueuerAdapter(recordedEnqueuer))),
	)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	defer client.Close()

	commandAdapter := gocommand.NewRegistryAdapter(command.NewRegistry())
	subs, err := gocommand.RegisterSessionHandlers(commandAdapter, client)
	if err != nil {
		t.Fatalf("register session handlers: %v", err)
	}
	defer subs.Unsubscribe()
	if err := commandAdapter.Initialize(); err != nil {
		t.Fatalf("initialize command registry: %v", err)
	}

	if err := gocommand.Dispatch(ctx, sessioncommand.LoginMessage{
		Token: compatToken(start.Add(time.Minute)),
	}); err != nil {
		t.Fatalf("dispatch login: %v", err)
	}
	if !client.CurrentSession(ctx).IsPresent() {
		t.Fatalf("expected live session after login")
	}

	scheduler.Advance(time.Minute)
	if !client.CurrentSession(ctx).IsNull() {
		t.Fatalf("expected session to be cleared on expiry")
	}
	if recordedEnqueuer.last == nil || recordedEnqueuer.last.JobID != gojob.JobIDSessionExpired {
		t.Fatalf("expected session.expired job through the go-job enqueuer")
	}
	if recordedEnqueuer.last.IdempotencyKey != "session.expired:jti-compat" {
		t.Fatalf("unexpected idempotency key %q", recordedEnqueuer.last.IdempotencyKey)
	}
	if logger.infos == 0 {
		t.Fatalf("expected expiry to be logged through the resolved provider")
	}
}

func compatToken(expiresAt time.Time) string {
	enc := base64.RawURLEncoding
	payload := `{"sub":"user-1","jti":"jti-compat","exp":` + strconv.FormatInt(expiresAt.Unix(), 10) + `}`
	return enc.EncodeToString([]byte(`{"alg":"HS256"}`)) + "." + enc.EncodeToString([]byte(payload)) + ".sig"
}

type compatEnqueuer struct {
	last *job.ExecutionMessage
}

func (e *compatEnqueuer) Enqueue(_ context.Context, msg *job.ExecutionMessage) error {
	e.last = msg
	return nil
}

type compatProvider struct {
	logger glog.Logger
}

func (p *compatProvider) GetLogger(string) glog.Logger {
	if p == nil || p.logger == nil {
		return glog.Nop()
	}
	return p.logger
}

type compatLogger struct {
	infos int
}

func (*compatLogger) Trace(string, ...any) {}
func (*compatLogger) Debug(string, ...any) {}
func (l *compatLogger) Info(string, ...any) {
	l.infos++
}
func (*compatLogger) Warn(string, ...any)                       {}
func (*compatLogger) Error(string, ...any)                      {}
func (*compatLogger) Fatal(string, ...any)                      {}
func (l *compatLogger) WithContext(context.Context) glog.Logger { return l }
