package config

import "time"

// Config is the root configuration for an admin gateway instance.
type Config struct {
	Instance InstanceConfig `yaml:"instance"`
	Log      LogConfig      `yaml:"log"`
	Server   ServerConfig   `yaml:"server"`
	Backend  BackendConfig  `yaml:"backend"`
	Audit    AuditConfig    `yaml:"audit"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// InstanceConfig identifies this gateway and the cluster node it fronts.
type InstanceConfig struct {
	ID   string     `yaml:"id"`
	Node NodeConfig `yaml:"node"`
}

// NodeConfig names a cluster node.
type NodeConfig struct {
	Name string `yaml:"name"`
	Addr string `yaml:"addr"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `yaml:"level"` // debug, info, warn or error
}

// ServerConfig holds admin WebSocket server settings.
type ServerConfig struct {
	ListenAddr   string        `yaml:"listen_addr"`
	Path         string        `yaml:"path"`
	PingInterval time.Duration `yaml:"ping_interval"`
	PongTimeout  time.Duration `yaml:"pong_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	ReadLimit    int64         `yaml:"read_limit"`   // Max client frame size in bytes
	MailboxSize  int           `yaml:"mailbox_size"` // Initial connection mailbox capacity
	Auth         AuthConfig    `yaml:"auth"`
}

// AuthConfig holds request signature verification settings.
type AuthConfig struct {
	Enabled       bool          `yaml:"enabled"`
	PublicKeyPath string        `yaml:"public_key_path"` // RSA public key PEM file
	MaxSkew       time.Duration `yaml:"max_skew"`
}

// BackendConfig holds the messaging substrate settings.
type BackendConfig struct {
	NATSURL        string        `yaml:"nats_url"`
	SubjectPrefix  string        `yaml:"subject_prefix"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
}

// AuditConfig holds audit trail writer settings.
type AuditConfig struct {
	Enabled       bool          `yaml:"enabled"`
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	BufferSize    int           `yaml:"buffer_size"`
	Database      DBConfig      `yaml:"database"`
}

// DBConfig holds a single database connection.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	Port int    `yaml:"port"`
	Path string `yaml:"path"`
}
