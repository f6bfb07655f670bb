package config

import (
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/psantana5/covrun/internal/history"
	"github.com/psantana5/covrun/internal/instrumenter"
	"github.com/psantana5/covrun/pkg/logging"
	"github.com/psantana5/covrun/pkg/retry"
)

// ValidationError reports one invalid key.
type ValidationError struct {
	Key    string
	Value  interface{}
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s %v: %s", e.Key, e.Value, e.Reason)
}

func invalid(key string, value interface{}, reason string) error {
	return &ValidationError{Key: key, Value: value, Reason: reason}
}

// Validate checks every key that cannot be corrected silently.
func (c *Config) Validate() error {
	if c.Retry.MaxAttempts < 1 {
		return invalid("retry.max_attempts", c.Retry.MaxAttempts, "must be at least 1")
	}
	switch strings.ToLower(c.Retry.Strategy) {
	case "constant", "linear", "exponential":
	default:
		return invalid("retry.strategy", c.Retry.Strategy, "expected constant, linear or exponential")
	}
	if _, err := parseDuration("retry.backoff", c.Retry.Backoff); err != nil {
		return err
	}
	if _, err := parseDuration("retry.max_backoff", c.Retry.MaxBackoff); err != nil {
		return err
	}
	if _, err := parseDuration("instrumenter.timeout", c.Instrumenter.Timeout); err != nil {
		return err
	}

	if !logging.ValidLevel(c.Logging.Level) {
		return invalid("logging.level", c.Logging.Level, "expected debug, info, warn or error")
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return invalid("logging.format", c.Logging.Format, "expected text or json")
	}

	switch c.History.Driver {
	case "", "sqlite3", "sqlite", "postgres", "postgresql":
	default:
		return invalid("history.driver", c.History.Driver, "expected sqlite3 or postgres")
	}

	if _, err := parseDuration("history.retention", c.History.Retention); err != nil {
		return err
	}
	if _, err := parseDuration("history.prune_interval", c.History.PruneInterval); err != nil {
		return err
	}

	if c.Server.RateLimit < 0 {
		return invalid("server.rate_limit", c.Server.RateLimit, "must not be negative")
	}
	if (c.Server.TLSCert == "") != (c.Server.TLSKey == "") {
		return invalid("server.tls_cert", c.Server.TLSCert, "tls_cert and tls_key must be set together")
	}
	if c.Server.ClientCA != "" && c.Server.TLSCert == "" {
		return invalid("server.client_ca", c.Server.ClientCA, "requires tls_cert and tls_key")
	}
	return CheckListenAddr(c.Server.Addr, len(c.Server.APIKeyHashes) > 0)
}

// CheckListenAddr rejects an API that would accept unauthenticated
// requests from beyond the loopback interface. The API rewrites any path
// the process can write.
func CheckListenAddr(addr string, authenticated bool) error {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return invalid("server.addr", addr, err.Error())
	}
	if authenticated || isLoopback(host) {
		return nil
	}
	return invalid("server.addr", addr, "listening beyond loopback requires server.api_key_hashes")
}

func isLoopback(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func parseDuration(key, s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, invalid(key, s, err.Error())
	}
	if d < 0 {
		return 0, invalid(key, s, "must not be negative")
	}
	return d, nil
}

// ToPolicy converts the retry section into a policy.
func (c *Config) ToPolicy(opts ...retry.Option) (retry.Policy, error) {
	step, err := parseDuration("retry.backoff", c.Retry.Backoff)
	if err != nil {
		return retry.Policy{}, err
	}
	max, err := parseDuration("retry.max_backoff", c.Retry.MaxBackoff)
	if err != nil {
		return retry.Policy{}, err
	}

	var backoff retry.Backoff
	switch strings.ToLower(c.Retry.Strategy) {
	case "constant":
		backoff = retry.Constant(step)
	case "exponential":
		backoff = retry.Exponential(step, c.Retry.Multiplier, max)
	default:
		backoff = retry.Linear(step)
	}
	return retry.NewPolicy(c.Retry.MaxAttempts, backoff, opts...)
}

// ToRetention converts the history retention keys. ok is false when runs
// are kept forever.
func (c *Config) ToRetention() (cfg history.RetentionConfig, ok bool, err error) {
	maxAge, err := parseDuration("history.retention", c.History.Retention)
	if err != nil || maxAge == 0 {
		return history.RetentionConfig{}, false, err
	}
	interval, err := parseDuration("history.prune_interval", c.History.PruneInterval)
	if err != nil {
		return history.RetentionConfig{}, false, err
	}
	return history.RetentionConfig{MaxAge: maxAge, Interval: interval}, true, nil
}

// ToInstrumenter converts the instrumenter section. ok is false when no
// command is configured and the passthrough instrumenter should be used.
func (c *Config) ToInstrumenter() (cfg instrumenter.Config, ok bool, err error) {
	if strings.TrimSpace(c.Instrumenter.Command) == "" {
		return instrumenter.Config{}, false, nil
	}
	timeout, err := parseDuration("instrumenter.timeout", c.Instrumenter.Timeout)
	if err != nil {
		return instrumenter.Config{}, false, err
	}
	return instrumenter.Config{
		Command: c.Instrumenter.Command,
		Args:    c.Instrumenter.Args,
		Timeout: timeout,
	}, true, nil
}
