package cache

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidConfig indicates the cache configuration is unusable.
	ErrInvalidConfig = errors.New("invalid cache config")

	// ErrBackendUnavailable indicates the remote backend could not be reached.
	ErrBackendUnavailable = errors.New("cache backend unavailable")

	// ErrBackendMiss indicates the key does not exist in the remote backend.
	ErrBackendMiss = errors.New("cache backend miss")

	// ErrSerialization indicates a value could not be encoded or decoded.
	ErrSerialization = errors.New("cache value serialization failed")
)

// ConfigError reports an invalid configuration field.
type ConfigError struct {
	Field  string
	Value  any
	Reason string
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid cache config: %s=%v: %s", e.Field, e.Value, e.Reason)
}

// Unwrap makes errors.Is(err, ErrInvalidConfig) hold.
func (e *ConfigError) Unwrap() error {
	return ErrInvalidConfig
}

// FetchError is a failed Fetcher call for one subject during warmup or
// revalidation. It never aborts the surrounding operation.
type FetchError struct {
	Subject string
	Err     error
}

// Error implements the error interface.
func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.Subject, e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *FetchError) Unwrap() error {
	return e.Err
}
