package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate checks that all required fields are set and values are valid.
func (c *Config) Validate() error {
	if c.Instance.ID == "" {
		return errors.New("instance.id is required")
	}
	if c.Instance.Node.Name == "" {
		return errors.New("instance.node.name is required")
	}
	if strings.Contains(c.Instance.Node.Name, "::") || strings.Contains(c.Instance.Node.Name, "@") {
		return fmt.Errorf("instance.node.name must not contain \"::\" or \"@\", got %q", c.Instance.Node.Name)
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be one of debug, info, warn, error, got %q", c.Log.Level)
	}

	if !strings.HasPrefix(c.Server.Path, "/") {
		return fmt.Errorf("server.path must start with /, got %q", c.Server.Path)
	}
	if c.Server.PongTimeout <= c.Server.PingInterval {
		return fmt.Errorf("server.pong_timeout (%s) must exceed server.ping_interval (%s)",
			c.Server.PongTimeout, c.Server.PingInterval)
	}
	if c.Server.ReadLimit < 1 {
		return errors.New("server.read_limit must be >= 1")
	}
	if c.Server.MailboxSize < 1 {
		return errors.New("server.mailbox_size must be >= 1")
	}
	if c.Server.Auth.Enabled && c.Server.Auth.PublicKeyPath == "" {
		return errors.New("server.auth.public_key_path is required when auth is enabled")
	}

	if c.Backend.RequestTimeout <= 0 {
		return errors.New("backend.request_timeout must be > 0")
	}
	if c.Backend.SubjectPrefix == "" || strings.ContainsAny(c.Backend.SubjectPrefix, "*> ") {
		return fmt.Errorf("backend.subject_prefix must be a literal subject, got %q", c.Backend.SubjectPrefix)
	}

	if c.Audit.Enabled {
		if err := c.Audit.Database.validate("audit.database"); err != nil {
			return err
		}
		if c.Audit.BatchSize < 1 {
			return errors.New("audit.batch_size must be >= 1")
		}
		if c.Audit.BufferSize < 1 {
			return errors.New("audit.buffer_size must be >= 1")
		}
	}

	if c.Metrics.Port < 1 || c.Metrics.Port > 65535 {
		return fmt.Errorf("metrics.port must be between 1 and 65535, got %d", c.Metrics.Port)
	}

	return nil
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.Password == "" {
		return fmt.Errorf("%s.password is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}
