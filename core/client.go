package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

// Client wires one process-wide session store, its expiry timer and the
// session manager from configuration. Framework bindings receive the
// Client (or its parts) by injection.
type Client struct {
	config          Config
	logger          Logger
	loggerProvider  LoggerProvider
	metricsRecorder MetricsRecorder
	errorMapper     ErrorMapper
	configProvider  ConfigProvider
	optionsResolver OptionsResolver
	storage         Storage
	scheduler       Scheduler
	clock           Clock

	store    *Store[string]
	timer    *Timer
	sessions *SessionManager
}

type ClientDependencies struct {
	Logger          Logger
	LoggerProvider  LoggerProvider
	MetricsRecorder MetricsRecorder
	ErrorMapper     ErrorMapper
	ConfigProvider  ConfigProvider
	OptionsResolver OptionsResolver
	Storage         Storage
	Scheduler       Scheduler
	Clock           Clock
}

func NewClient(cfg Config, opts ...Option) (*Client, error) {
	builder := defaultClientBuilder(cfg)
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&builder)
	}

	provider, logger := glog.Resolve("session", builder.loggerProvider, builder.logger)
	logger = glog.Ensure(logger)
	if provider != nil {
		if named := provider.GetLogger("session"); named != nil {
			logger = glog.Ensure(named)
		}
	}

	if builder.metricsRecorder == nil {
		builder.metricsRecorder = NopMetricsRecorder{}
	}
	if builder.errorMapper == nil {
		builder.errorMapper = defaultErrorMapper
	}
	if builder.configProvider == nil {
		builder.configProvider = NewCfgxConfigProvider(nil)
	}
	if builder.optionsResolver == nil {
		builder.optionsResolver = GoOptionsResolver{}
	}
	if builder.scheduler == nil {
		builder.scheduler = RealScheduler{}
	}
	if builder.clock == nil {
		if clock, ok := builder.scheduler.(Clock); ok {
			builder.clock = clock
		} else {
			builder.clock = ClockFunc(func() time.Time { return time.Now().UTC() })
		}
	}

	ctx := context.Background()
	defaults := DefaultConfig()
	loaded, err := builder.configProvider.Load(ctx, defaults)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}
	finalConfig, err := builder.optionsResolver.Resolve(defaults, loaded, builder.runtimeConfig)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}

	storage := builder.storage
	if !builder.storageSet {
		storage, err = resolveStorage(ctx, finalConfig.Backend, builder.storageFactory)
		if err != nil {
			return nil, mapBuildError(builder.errorMapper, err)
		}
	}

	durable := NewDurableBackend(storage,
		WithDurableCodec[string](StringCodec{}),
		WithDurableNamespace[string](finalConfig.Namespace),
		WithDurableLogger[string](logger),
	)
	if storage != nil && !durable.Enabled() {
		logger.Warn("durable storage unavailable, session will not survive restarts",
			"driver", finalConfig.Backend.NormalizedDriver(),
		)
	}
	store := NewStore(durable,
		WithStoreLogger[string](logger),
		WithStoreMetrics[string](builder.metricsRecorder),
	)
	timer := NewTimer(builder.scheduler,
		WithTimerLogger(logger),
		WithTimerMetrics(builder.metricsRecorder),
	)
	sessions, err := NewSessionManager(store, timer,
		WithSessionKey(finalConfig.SessionKey),
		WithSessionClock(builder.clock),
		WithSessionClockSkew(finalConfig.Session.ClockSkew),
		WithSessionLogger(logger),
		WithSessionMetrics(builder.metricsRecorder),
		WithExpiryNotifier(builder.expiryNotifier),
	)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}

	return &Client{
		config:          finalConfig,
		logger:          logger,
		loggerProvider:  provider,
		metricsRecorder: builder.metricsRecorder,
		errorMapper:     builder.errorMapper,
		configProvider:  builder.configProvider,
		optionsResolver: builder.optionsResolver,
		storage:         storage,
		scheduler:       builder.scheduler,
		clock:           builder.clock,
		store:           store,
		timer:           timer,
		sessions:        sessions,
	}, nil
}

func Setup(cfg Config, opts ...Option) (*Client, error) {
	return NewClient(cfg, opts...)
}

func resolveStorage(ctx context.Context, cfg BackendConfig, factory StorageFactory) (Storage, error) {
	switch cfg.NormalizedDriver() {
	case BackendDriverNone:
		return nil, nil
	case BackendDriverMemory:
		return NewMemoryStorage(), nil
	default:
		if factory == nil {
			return nil, fmt.Errorf("core: storage factory is required for the %s driver", cfg.NormalizedDriver())
		}
		return factory.BuildStorage(ctx, cfg)
	}
}

func mapBuildError(mapper ErrorMapper, err error) error {
	if err == nil {
		return nil
	}
	if mapper == nil {
		return err
	}
	mapped := mapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}

func (c *Client) Config() Config {
	if c == nil {
		return Config{}
	}
	return c.config
}

func (c *Client) Dependencies() ClientDependencies {
	if c == nil {
		return ClientDependencies{}
	}
	return ClientDependencies{
		Logger:          c.logger,
		LoggerProvider:  c.loggerProvider,
		MetricsRecorder: c.metricsRecorder,
		ErrorMapper:     c.errorMapper,
		ConfigProvider:  c.configProvider,
		OptionsResolver: c.optionsResolver,
		Storage:         c.storage,
		Scheduler:       c.scheduler,
		Clock:           c.clock,
	}
}

func (c *Client) sessionKey() string {
	if c == nil {
		return ""
	}
	return c.config.SessionKey
}

func (c *Client) Store() *Store[string] {
	if c == nil {
		return nil
	}
	return c.store
}

func (c *Client) Timer() *Timer {
	if c == nil {
		return nil
	}
	return c.timer
}

func (c *Client) Sessions() *SessionManager {
	if c == nil {
		return nil
	}
	return c.sessions
}

// Login stores token as the current session.
func (c *Client) Login(ctx context.Context, token string) (err error) {
	startedAt := time.Now()
	defer func() {
		c.observeOperation(ctx, startedAt, operationLogin, ParseSessionToken(Some(token), glog.Nop()), err)
	}()
	if c == nil || c.sessions == nil {
		return mapBuildError(defaultErrorMapper, fmt.Errorf("core: session client is not configured"))
	}
	if err := c.sessions.SetToken(token); err != nil {
		return mapBuildError(c.errorMapper, err)
	}
	return nil
}

func (c *Client) Logout(ctx context.Context) (err error) {
	startedAt := time.Now()
	previous := Unset[SessionToken]()
	defer func() {
		c.observeOperation(ctx, startedAt, operationLogout, previous, err)
	}()
	if c == nil || c.sessions == nil {
		return mapBuildError(defaultErrorMapper, fmt.Errorf("core: session client is not configured"))
	}
	previous = ParseSessionToken(c.store.Get(c.sessionKey()), glog.Nop())
	c.sessions.Logout()
	return nil
}

// CurrentSession returns the live session. Absent, malformed and expired
// tokens all come back as a non-present value; it never fails.
func (c *Client) CurrentSession(_ context.Context) Maybe[SessionToken] {
	if c == nil || c.sessions == nil {
		return Unset[SessionToken]()
	}
	return c.sessions.Current()
}

// Close releases the session manager, detaches the store from durable
// storage, and closes the storage when it owns resources.
func (c *Client) Close() error {
	if c == nil {
		return nil
	}
	c.sessions.Close()
	c.store.Close()
	if closer, ok := c.storage.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
	}
	return nil
}

// OpenStore builds an additional typed store over the client's durable
// storage and namespace, for values other than the session token.
func OpenStore[T any](c *Client, opts ...StoreOption[T]) *Store[T] {
	if c == nil {
		return NewStore[T](nil, opts...)
	}
	durable := NewDurableBackend[T](c.storage,
		WithDurableNamespace[T](c.config.Namespace),
		WithDurableLogger[T](c.logger),
	)
	base := []StoreOption[T]{
		WithStoreLogger[T](c.logger),
		WithStoreMetrics[T](c.metricsRecorder),
	}
	return NewStore(durable, append(base, opts...)...)
}
