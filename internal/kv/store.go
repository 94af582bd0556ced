// Package kv defines the string-keyed storage the table emulator persists into.
package kv

import (
	"context"
	"errors"
)

var (
	// ErrEmptyKey indicates an operation was attempted without a key.
	ErrEmptyKey = errors.New("kv: key required")
	// ErrUnknownDriver indicates the configured storage driver is not supported.
	ErrUnknownDriver = errors.New("kv: unknown storage driver")
)

// Store is the sole durability mechanism of the emulator: get, set and remove whole values.
// A missing key is reported through found=false, never as an error.
type Store interface {
	Get(ctx context.Context, key string) (value string, found bool, err error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
}

// Driver names accepted by configuration.
const (
	DriverMemory = "memory"
	DriverSQLite = "sqlite"
	DriverRedis  = "redis"
)
