package core

import (
	"context"
	"fmt"
	"strings"

	"github.com/goliatone/go-config/cfgx"
	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
	opts "github.com/goliatone/go-options"
)

type ErrorMapper func(err error) *goerrors.Error

type ConfigProvider interface {
	Load(ctx context.Context, defaults Config) (Config, error)
}

type RawConfigLoader interface {
	LoadRaw(ctx context.Context) (map[string]any, error)
}

type OptionsResolver interface {
	Resolve(defaults Config, loaded Config, runtime Config) (Config, error)
}

type clientBuilder struct {
	runtimeConfig   Config
	logger          Logger
	loggerProvider  LoggerProvider
	metricsRecorder MetricsRecorder
	errorMapper     ErrorMapper
	configProvider  ConfigProvider
	optionsResolver OptionsResolver
	storage         Storage
	storageSet      bool
	storageFactory  StorageFactory
	scheduler       Scheduler
	clock           Clock
	expiryNotifier  ExpiryNotifier
}

type Option func(*clientBuilder)

func WithLogger(logger Logger) Option {
	return func(b *clientBuilder) {
		b.logger = logger
	}
}

func WithLoggerProvider(provider LoggerProvider) Option {
	return func(b *clientBuilder) {
		b.loggerProvider = provider
	}
}

func WithMetricsRecorder(recorder MetricsRecorder) Option {
	return func(b *clientBuilder) {
		b.metricsRecorder = recorder
	}
}

func WithErrorMapper(mapper ErrorMapper) Option {
	return func(b *clientBuilder) {
		b.errorMapper = mapper
	}
}

func WithConfigProvider(provider ConfigProvider) Option {
	return func(b *clientBuilder) {
		b.configProvider = provider
	}
}

func WithOptionsResolver(resolver OptionsResolver) Option {
	return func(b *clientBuilder) {
		b.optionsResolver = resolver
	}
}

// WithStorage supplies the durable primitive directly, bypassing the
// configured driver. A nil storage disables durability.
func WithStorage(storage Storage) Option {
	return func(b *clientBuilder) {
		b.storage = storage
		b.storageSet = true
	}
}

// WithStorageFactory supplies the factory used for the file and sql
// drivers.
func WithStorageFactory(factory StorageFactory) Option {
	return func(b *clientBuilder) {
		b.storageFactory = factory
	}
}

func WithScheduler(scheduler Scheduler) Option {
	return func(b *clientBuilder) {
		b.scheduler = scheduler
	}
}

func WithClock(clock Clock) Option {
	return func(b *clientBuilder) {
		b.clock = clock
	}
}

func WithClientExpiryNotifier(notifier ExpiryNotifier) Option {
	return func(b *clientBuilder) {
		b.expiryNotifier = notifier
	}
}

func defaultClientBuilder(runtime Config) clientBuilder {
	loggerProvider, logger := glog.Resolve("session", nil, nil)
	return clientBuilder{
		runtimeConfig:   runtime,
		loggerProvider:  loggerProvider,
		logger:          logger,
		metricsRecorder: NopMetricsRecorder{},
		errorMapper:     defaultErrorMapper,
		configProvider:  NewCfgxConfigProvider(nil),
		optionsResolver: GoOptionsResolver{},
		scheduler:       RealScheduler{},
	}
}

func defaultErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}
	return sessionErrorMapper(err)
}

type StaticRawConfigLoader struct {
	Values map[string]any
}

func (l StaticRawConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	if len(l.Values) == 0 {
		return map[string]any{}, nil
	}
	out := make(map[string]any, len(l.Values))
	for key, value := range l.Values {
		out[key] = value
	}
	return out, nil
}

type CfgxConfigProvider struct {
	Loader RawConfigLoader
}

func NewCfgxConfigProvider(loader RawConfigLoader) *CfgxConfigProvider {
	return &CfgxConfigProvider{Loader: loader}
}

func (p *CfgxConfigProvider) Load(ctx context.Context, defaults Config) (Config, error) {
	if p == nil {
		return defaults, nil
	}
	loader := p.Loader
	if loader == nil {
		loader = StaticRawConfigLoader{}
	}
	raw, err := loader.LoadRaw(ctx)
	if err != nil {
		return Config{}, err
	}
	cfg, err := cfgx.Build[Config](raw,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// GoOptionsResolver layers defaults < loaded config < runtime config.
type GoOptionsResolver struct{}

func (GoOptionsResolver) Resolve(defaults Config, loaded Config, runtime Config) (Config, error) {
	stack, err := opts.NewStack(
		opts.NewLayer(
			opts.NewScope("defaults", 0),
			configToLayerMap(defaults, true),
			opts.WithSnapshotID[map[string]any]("defaults"),
		),
		opts.NewLayer(
			opts.NewScope("config", 10),
			configToLayerMap(loaded, false),
			opts.WithSnapshotID[map[string]any]("config"),
		),
		opts.NewLayer(
			opts.NewScope("runtime", 20),
			configToLayerMap(runtime, false),
			opts.WithSnapshotID[map[string]any]("runtime"),
		),
	)
	if err != nil {
		return Config{}, fmt.Errorf("core: options stack build failed: %w", err)
	}
	merged, err := stack.Merge()
	if err != nil {
		return Config{}, fmt.Errorf("core: options merge failed: %w", err)
	}
	resolved, err := cfgx.Build[Config](merged.Value,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	if err := resolved.Validate(); err != nil {
		return Config{}, err
	}
	return resolved, nil
}

func configToLayerMap(cfg Config, includeZero bool) map[string]any {
	layer := map[string]any{}
	if includeZero || strings.TrimSpace(cfg.Namespace) != "" {
		layer["namespace"] = cfg.Namespace
	}
	if includeZero || strings.TrimSpace(cfg.SessionKey) != "" {
		layer["session_key"] = cfg.SessionKey
	}

	backend := map[string]any{}
	if includeZero || strings.TrimSpace(cfg.Backend.Driver) != "" {
		backend["driver"] = cfg.Backend.Driver
	}
	if includeZero || strings.TrimSpace(cfg.Backend.Directory) != "" {
		backend["directory"] = cfg.Backend.Directory
	}
	if includeZero || strings.TrimSpace(cfg.Backend.Dialect) != "" {
		backend["dialect"] = cfg.Backend.Dialect
	}
	if includeZero || strings.TrimSpace(cfg.Backend.DSN) != "" {
		backend["dsn"] = cfg.Backend.DSN
	}
	if includeZero || cfg.Backend.PollInterval > 0 {
		backend["poll_interval"] = cfg.Backend.PollInterval
	}
	if includeZero || strings.TrimSpace(cfg.Backend.EncryptionKey) != "" {
		backend["encryption_key"] = cfg.Backend.EncryptionKey
	}
	if len(backend) > 0 {
		layer["backend"] = backend
	}

	if includeZero || cfg.Session.ClockSkew > 0 {
		layer["session"] = map[string]any{
			"clock_skew": cfg.Session.ClockSkew,
		}
	}
	return layer
}
