package core

import (
	"fmt"
	"strings"
	"time"
)

const (
	BackendDriverMemory = "memory"
	BackendDriverFile   = "file"
	BackendDriverSQL    = "sql"
	BackendDriverNone   = "none"
)

const defaultPollInterval = time.Second

type BackendConfig struct {
	Driver       string        `koanf:"driver" mapstructure:"driver"`
	Directory    string        `koanf:"directory" mapstructure:"directory"`
	Dialect      string        `koanf:"dialect" mapstructure:"dialect"`
	DSN          string        `koanf:"dsn" mapstructure:"dsn"`
	PollInterval time.Duration `koanf:"poll_interval" mapstructure:"poll_interval"`
	// EncryptionKey seals stored values at rest when set.
	EncryptionKey string `koanf:"encryption_key" mapstructure:"encryption_key"`
}

type SessionConfig struct {
	ClockSkew time.Duration `koanf:"clock_skew" mapstructure:"clock_skew"`
}

type Config struct {
	Namespace  string        `koanf:"namespace" mapstructure:"namespace"`
	SessionKey string        `koanf:"session_key" mapstructure:"session_key"`
	Backend    BackendConfig `koanf:"backend" mapstructure:"backend"`
	Session    SessionConfig `koanf:"session" mapstructure:"session"`
}

func DefaultConfig() Config {
	return Config{
		Namespace:  "connect",
		SessionKey: DefaultSessionKey,
		Backend: BackendConfig{
			Driver:       BackendDriverMemory,
			PollInterval: defaultPollInterval,
		},
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.SessionKey) == "" {
		return fmt.Errorf("core: session_key is required")
	}
	if strings.ContainsAny(c.Namespace, ":/\\") {
		return fmt.Errorf("core: namespace must not contain separators")
	}
	if c.Session.ClockSkew < 0 {
		return fmt.Errorf("core: session.clock_skew must not be negative")
	}
	return c.Backend.Validate()
}

func (c BackendConfig) Validate() error {
	switch strings.ToLower(strings.TrimSpace(c.Driver)) {
	case "", BackendDriverMemory, BackendDriverNone:
		return nil
	case BackendDriverFile:
		if strings.TrimSpace(c.Directory) == "" {
			return fmt.Errorf("core: backend.directory is required for the file driver")
		}
	case BackendDriverSQL:
		if strings.TrimSpace(c.DSN) == "" {
			return fmt.Errorf("core: backend.dsn is required for the sql driver")
		}
		if c.PollInterval < 0 {
			return fmt.Errorf("core: backend.poll_interval must not be negative")
		}
	default:
		return fmt.Errorf("core: backend.driver %q is not supported", c.Driver)
	}
	return nil
}

// NormalizedDriver returns the lower-cased driver, defaulting to memory.
func (c BackendConfig) NormalizedDriver() string {
	driver := strings.ToLower(strings.TrimSpace(c.Driver))
	if driver == "" {
		return BackendDriverMemory
	}
	return driver
}
