package backend

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"ledger/internal/blob"
	"ledger/internal/cache"
	"ledger/internal/log"
	"ledger/internal/store/memory"
	"ledger/internal/store/postgres"
	"ledger/internal/store/redisstore"
	"ledger/internal/store/sqlite"
	"ledger/internal/summary"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *log.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *log.Logger) *DefaultFactory {
	return &DefaultFactory{logger: log.OrDefault(logger, log.ComponentBackend)}
}

// CreateBackend implements Factory.CreateBackend
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	switch config.Type {
	case MemoryBackend:
		return f.createMemoryBackend()
	case RedisBackend:
		return f.createRedisBackend(ctx, config)
	case SQLiteBackend:
		return f.createSQLiteBackend(ctx, config)
	case PostgresBackend:
		return f.createPostgresBackend(ctx, config)
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
}

func (f *DefaultFactory) createMemoryBackend() (*BackendResult, error) {
	s := memory.New(f.logger.WithComponent(log.ComponentStorage))

	f.logger.Warn("Initialized memory backend, records are lost on restart")

	return &BackendResult{Store: s, Cleanup: s.Close}, nil
}

func (f *DefaultFactory) createRedisBackend(ctx context.Context, config Config) (*BackendResult, error) {
	s, err := redisstore.Open(ctx, config.RedisURL, config.RedisKeyPrefix, f.logger.WithComponent(log.ComponentStorage))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Redis store: %w", err)
	}

	f.logger.Info("Initialized Redis backend", "key_prefix", config.RedisKeyPrefix)

	return &BackendResult{Store: s, Cleanup: s.Close}, nil
}

func (f *DefaultFactory) createSQLiteBackend(ctx context.Context, config Config) (*BackendResult, error) {
	s, err := sqlite.Open(ctx, config.SQLiteDBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize SQLite store: %w", err)
	}

	f.logger.Info("Initialized SQLite backend", "db_path", config.SQLiteDBPath)

	return &BackendResult{Store: s, Cleanup: s.Close}, nil
}

func (f *DefaultFactory) createPostgresBackend(ctx context.Context, config Config) (*BackendResult, error) {
	s, err := postgres.Open(ctx, config.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Postgres store: %w", err)
	}

	f.logger.Info("Initialized Postgres backend")

	return &BackendResult{Store: s, Cleanup: s.Close}, nil
}

// CreateBlobStore returns the attachment store, or nil when attachments
// stay inline in the record.
func (f *DefaultFactory) CreateBlobStore(ctx context.Context, config Config) (blob.Store, error) {
	switch config.BlobBackend {
	case "", "none":
		return nil, nil
	case "memory":
		f.logger.Info("Initialized in-memory blob store")
		return blob.NewMemory(), nil
	case "s3":
		s, err := blob.NewS3(ctx, blob.S3Config{
			Bucket:       config.S3Bucket,
			Region:       config.S3Region,
			Endpoint:     config.S3Endpoint,
			UsePathStyle: config.S3UsePathStyle,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize S3 blob store: %w", err)
		}
		f.logger.Info("Initialized S3 blob store", "bucket", config.S3Bucket, "endpoint", config.S3Endpoint)
		return s, nil
	default:
		return nil, fmt.Errorf("unsupported blob backend: %s", config.BlobBackend)
	}
}

// SummaryCache is a summary cache plus what it needs released on shutdown.
type SummaryCache struct {
	Cache   summary.Cache
	LRU     *cache.LRUCache[string]
	Cleanup CleanupFunc
}

// CreateSummaryCache shares summaries through Redis whenever a Redis URL is
// configured, so the worker's warm-up is visible to the web process.
// Otherwise summaries live in a process-local LRU.
func (f *DefaultFactory) CreateSummaryCache(config Config) (*SummaryCache, error) {
	if config.RedisURL != "" {
		opts, err := redis.ParseURL(config.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		client := redis.NewClient(opts)
		f.logger.Info("Summary cache backed by Redis", "ttl", config.SummaryCacheTTL)
		return &SummaryCache{
			Cache:   summary.NewRedisCache(client, config.RedisKeyPrefix, config.SummaryCacheTTL, f.logger.WithComponent(log.ComponentCache)),
			Cleanup: client.Close,
		}, nil
	}

	lru := cache.NewLRUCache[string](config.SummaryCacheSize, config.SummaryCacheTTL)
	f.logger.Info("Summary cache kept in process", "size", config.SummaryCacheSize, "ttl", config.SummaryCacheTTL)
	return &SummaryCache{Cache: summary.NewLRUCache(lru), LRU: lru}, nil
}
