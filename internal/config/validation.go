package config

import (
	"errors"
	"fmt"
)

// Sentinel validation errors, checked with errors.Is().
var (
	// ErrConfigNil indicates the configuration is nil.
	ErrConfigNil = errors.New("configuration is nil")

	// ErrInvalidTemperature indicates the temperature value is out of range.
	ErrInvalidTemperature = errors.New("invalid temperature")

	// ErrInvalidMaxTokens indicates the max tokens value is out of range.
	ErrInvalidMaxTokens = errors.New("invalid max tokens")

	// ErrInvalidWindowSize indicates the history window size is out of range.
	ErrInvalidWindowSize = errors.New("invalid window size")

	// ErrInvalidSessionTimeout indicates the session timeout is not positive.
	ErrInvalidSessionTimeout = errors.New("invalid session timeout")

	// ErrInvalidMaxSessions indicates the session capacity is not positive.
	ErrInvalidMaxSessions = errors.New("invalid max sessions")

	// ErrInvalidRetrievalK indicates the retrieval result count is out of range.
	ErrInvalidRetrievalK = errors.New("invalid retrieval k")

	// ErrInvalidPostgresPort indicates the PostgreSQL port is out of range.
	ErrInvalidPostgresPort = errors.New("invalid PostgreSQL port")

	// ErrInvalidHMACSecret indicates the HMAC secret is too short for serve mode.
	ErrInvalidHMACSecret = errors.New("invalid HMAC secret")
)

// Range limits enforced by Validate.
const (
	MaxAllowedTokens     = 8192
	MaxAllowedWindowSize = 100
	MaxAllowedRetrievalK = 25

	// MinHMACSecretLen is the minimum secret length for signing identities.
	MinHMACSecretLen = 32
)

// Validate checks value ranges. It does not require serve-mode-only fields
// (HMAC secret); use ValidateServe before starting the HTTP server.
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigNil
	}

	if c.Temperature < 0 || c.Temperature > 1 {
		return fmt.Errorf("%w: %v (must be in [0,1])", ErrInvalidTemperature, c.Temperature)
	}
	if c.MaxTokens <= 0 || c.MaxTokens > MaxAllowedTokens {
		return fmt.Errorf("%w: %d (must be in (0,%d])", ErrInvalidMaxTokens, c.MaxTokens, MaxAllowedTokens)
	}
	if c.WindowSize <= 0 || c.WindowSize > MaxAllowedWindowSize {
		return fmt.Errorf("%w: %d (must be in (0,%d])", ErrInvalidWindowSize, c.WindowSize, MaxAllowedWindowSize)
	}
	if c.SessionTimeout <= 0 {
		return fmt.Errorf("%w: %v", ErrInvalidSessionTimeout, c.SessionTimeout)
	}
	if c.MaxSessions <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidMaxSessions, c.MaxSessions)
	}
	if c.RetrievalK <= 0 || c.RetrievalK > MaxAllowedRetrievalK {
		return fmt.Errorf("%w: %d (must be in (0,%d])", ErrInvalidRetrievalK, c.RetrievalK, MaxAllowedRetrievalK)
	}
	if c.PostgresPort <= 0 || c.PostgresPort > 65535 {
		return fmt.Errorf("%w: %d", ErrInvalidPostgresPort, c.PostgresPort)
	}

	return nil
}

// ValidateServe checks the additional requirements of serve mode.
func (c *Config) ValidateServe() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if len(c.HMACSecret) < MinHMACSecretLen {
		return fmt.Errorf("%w: must be at least %d bytes", ErrInvalidHMACSecret, MinHMACSecretLen)
	}
	return nil
}
