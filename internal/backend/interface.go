package backend

import (
	"context"
	"time"

	"ledger/internal/store"
)

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// BackendResult contains the record store and optional cleanup function
type BackendResult struct {
	Store   store.Store
	Cleanup CleanupFunc
}

// Close runs Cleanup when set.
func (r *BackendResult) Close() error {
	if r == nil || r.Cleanup == nil {
		return nil
	}
	return r.Cleanup()
}

// Factory creates backends based on configuration
type Factory interface {
	// CreateBackend opens the record store named by config.Type.
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

// Config holds configuration for backend creation
type Config struct {
	Type BackendType

	SQLiteDBPath   string
	PostgresDSN    string
	RedisURL       string
	RedisKeyPrefix string

	BlobBackend    string
	S3Bucket       string
	S3Endpoint     string
	S3Region       string
	S3UsePathStyle bool

	SummaryCacheTTL  time.Duration
	SummaryCacheSize int
}

// BackendType represents the type of backend
type BackendType string

const (
	MemoryBackend   BackendType = "memory"
	RedisBackend    BackendType = "redis"
	SQLiteBackend   BackendType = "sqlite"
	PostgresBackend BackendType = "postgres"
)

// String implements fmt.Stringer
func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is valid
func (bt BackendType) IsValid() bool {
	switch bt {
	case MemoryBackend, RedisBackend, SQLiteBackend, PostgresBackend:
		return true
	default:
		return false
	}
}

// Persistent reports whether records survive a restart.
func (bt BackendType) Persistent() bool {
	return bt != MemoryBackend
}
