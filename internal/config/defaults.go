package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultLogLevel       = "info"
	DefaultListenAddr     = ":8443"
	DefaultPath           = "/admin"
	DefaultPingInterval   = 15 * time.Second
	DefaultPongTimeout    = 30 * time.Second
	DefaultWriteTimeout   = 10 * time.Second
	DefaultReadLimit      = 1 << 20
	DefaultMailboxSize    = 64
	DefaultMaxSkew        = 30 * time.Second
	DefaultNATSURL        = "nats://127.0.0.1:4222"
	DefaultSubjectPrefix  = "cluster"
	DefaultRequestTimeout = 5 * time.Second
	DefaultConnectTimeout = 5 * time.Second
	DefaultBatchSize      = 100
	DefaultFlushInterval  = 1 * time.Second
	DefaultBufferSize     = 1000
	DefaultDBPort         = 5432
	DefaultDBSSLMode      = "prefer"
	DefaultMaxConns       = 4
	DefaultMinConns       = 1
	DefaultMetricsPort    = 9090
	DefaultMetricsPath    = "/metrics"
)

func (c *Config) applyDefaults() {
	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}

	// Server defaults
	if c.Server.ListenAddr == "" {
		c.Server.ListenAddr = DefaultListenAddr
	}
	if c.Server.Path == "" {
		c.Server.Path = DefaultPath
	}
	if c.Server.PingInterval == 0 {
		c.Server.PingInterval = DefaultPingInterval
	}
	if c.Server.PongTimeout == 0 {
		c.Server.PongTimeout = DefaultPongTimeout
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = DefaultWriteTimeout
	}
	if c.Server.ReadLimit == 0 {
		c.Server.ReadLimit = DefaultReadLimit
	}
	if c.Server.MailboxSize == 0 {
		c.Server.MailboxSize = DefaultMailboxSize
	}
	if c.Server.Auth.MaxSkew == 0 {
		c.Server.Auth.MaxSkew = DefaultMaxSkew
	}

	// Backend defaults
	if c.Backend.NATSURL == "" {
		c.Backend.NATSURL = DefaultNATSURL
	}
	if c.Backend.SubjectPrefix == "" {
		c.Backend.SubjectPrefix = DefaultSubjectPrefix
	}
	if c.Backend.RequestTimeout == 0 {
		c.Backend.RequestTimeout = DefaultRequestTimeout
	}
	if c.Backend.ConnectTimeout == 0 {
		c.Backend.ConnectTimeout = DefaultConnectTimeout
	}

	// Audit defaults
	if c.Audit.BatchSize == 0 {
		c.Audit.BatchSize = DefaultBatchSize
	}
	if c.Audit.FlushInterval == 0 {
		c.Audit.FlushInterval = DefaultFlushInterval
	}
	if c.Audit.BufferSize == 0 {
		c.Audit.BufferSize = DefaultBufferSize
	}
	applyDBDefaults(&c.Audit.Database)

	// Metrics defaults
	if c.Metrics.Port == 0 {
		c.Metrics.Port = DefaultMetricsPort
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}
}

func applyDBDefaults(db *DBConfig) {
	if db.Port == 0 {
		db.Port = DefaultDBPort
	}
	if db.SSLMode == "" {
		db.SSLMode = DefaultDBSSLMode
	}
	if db.MaxConns == 0 {
		db.MaxConns = DefaultMaxConns
	}
	if db.MinConns == 0 {
		db.MinConns = DefaultMinConns
	}
}
