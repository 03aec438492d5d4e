// Package messagebus provisions NATS/JetStream connections for storage/natsstore,
// plus (in natsembedded.go) an in-process embedded server for tests.
package messagebus

import (
	"log/slog"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/kvlock/lockset/config"
	"github.com/kvlock/lockset/log"
	"github.com/kvlock/lockset/xerrors/stacktrace"
)

const natsConfigPath = "nats"

type natsCommonConfig struct {
	Address         string
	CredentialsPath string `koanf:"credentialspath"` // Use this for .creds files
	UserJWT         string `koanf:"userjwt"`         // Or use UserJWT and NKeySeed for passing values directly.
	NKeySeed        string `koanf:"nkeyseed"`
}

// NewNatsConnection creates a new NATS connection from cfg, read from the
// "nats" config path unless overridden with WithNATSConnectionConfigPath.
func NewNatsConnection(cfg *config.Configuration, opts ...Option) (*nats.Conn, error) {
	options := parseOptions(opts)

	natsConfig := natsCommonConfig{
		Address: nats.DefaultURL,
	}
	if err := cfg.Unmarshal(options.natsConnectionConfigPath, &natsConfig); err != nil {
		return nil, stacktrace.Wrap(err)
	}

	connectionOptions := make([]nats.Option, 0)
	if natsConfig.CredentialsPath != "" {
		connectionOptions = append(connectionOptions, nats.UserCredentials(natsConfig.CredentialsPath))
	} else if natsConfig.UserJWT != "" && natsConfig.NKeySeed != "" {
		connectionOptions = append(connectionOptions, nats.UserJWTAndSeed(natsConfig.UserJWT, natsConfig.NKeySeed))
	}

	nc, err := nats.Connect(natsConfig.Address, connectionOptions...)
	if err != nil {
		return nil, stacktrace.Wrap(err)
	}
	return nc, nil
}

// NewJetStreamConnection creates a new NATS connection and a JetStream
// context, the pair storage/natsstore needs to provision a KV bucket.
func NewJetStreamConnection(cfg *config.Configuration, opts ...Option) (*nats.Conn, jetstream.JetStream, error) {
	nc, err := NewNatsConnection(cfg, opts...)
	if err != nil {
		return nil, nil, err
	}

	js, err := jetstream.New(nc)
	if err != nil {
		return nil, nil, stacktrace.Wrap(err)
	}
	return nc, js, nil
}

type options struct {
	logger                   *slog.Logger
	natsConnectionConfigPath string
}

func parseOptions(opts []Option) options {
	options := options{
		logger:                   log.NewNilLogger(),
		natsConnectionConfigPath: natsConfigPath,
	}
	for _, opt := range opts {
		opt(&options)
	}
	return options
}

// Option configures NewNatsConnection/NewJetStreamConnection.
type Option func(options *options)

// WithLogger sets the logger to be used.
func WithLogger(logger *slog.Logger) Option {
	return func(options *options) {
		options.logger = logger
	}
}

// WithNATSConnectionConfigPath overrides the config path NewNatsConnection
// reads connection settings from (default "nats").
func WithNATSConnectionConfigPath(configPath string) Option {
	return func(options *options) {
		options.natsConnectionConfigPath = configPath
	}
}
