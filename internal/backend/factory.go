package backend

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"estoque/internal/amqp"
	"estoque/internal/identity"
	applog "estoque/internal/log"
	"estoque/internal/notify"
	"estoque/internal/records/memory"
	"estoque/internal/services"
	"estoque/internal/storage"
)

const redisPingTimeout = 5 * time.Second

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *applog.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *applog.Logger) Factory {
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	return &DefaultFactory{
		logger: logger.WithComponent(applog.ComponentBackend),
	}
}

// CreateBackend implements Factory.CreateBackend
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	var (
		rdb      *redis.Client
		notifier notify.Notifier
		revoked  identity.RevocationList
	)
	if config.RedisAddr != "" {
		var err error
		rdb, err = f.connectRedis(ctx, config.RedisAddr)
		if err != nil {
			return nil, err
		}
		notifier = notify.NewRedis(rdb, notify.DefaultChannel)
		revoked = identity.NewRedisRevocations(rdb)
	}

	var (
		store Store
		users identity.UserRepository
		err   error
	)
	switch config.Type {
	case SQLiteBackend:
		store, users, err = f.createSQLStore(storage.DialectSQLite, config.SQLiteDBPath, notifier)
	case MySQLBackend:
		store, users, err = f.createSQLStore(storage.DialectMySQL, config.MySQLDSN, notifier)
	case MemoryBackend:
		store, users = f.createMemoryStore(rdb != nil)
	default:
		err = fmt.Errorf("unsupported backend type: %s", config.Type)
	}
	if err != nil {
		closeRedis(rdb)
		return nil, err
	}

	svc := services.NewRecordService(store, f.createPublisher(config), config.Location)

	ident, err := identity.NewService(users, revoked, identity.Config{
		Secret:     []byte(config.JWTSecret),
		SessionTTL: config.SessionTTL,
	}, f.logger)
	if err != nil {
		svc.Close()
		closeRedis(rdb)
		return nil, fmt.Errorf("failed to initialize identity service: %w", err)
	}

	f.logger.Info("Initialized backend",
		"type", config.Type,
		"redis_enabled", rdb != nil,
		"amqp_enabled", config.AMQPURL != "")

	return &BackendResult{
		Store:    store,
		Users:    users,
		Records:  svc,
		Identity: ident,
		Cleanup: func() error {
			return errors.Join(svc.Close(), closeRedis(rdb))
		},
	}, nil
}

func (f *DefaultFactory) createSQLStore(dialect storage.Dialect, dsn string, n notify.Notifier) (*storage.Repository, *storage.Repository, error) {
	var (
		repo *storage.Repository
		err  error
	)
	if dialect == storage.DialectSQLite {
		repo, err = storage.NewSQLiteRepository(dsn, n)
	} else {
		repo, err = storage.NewMySQLRepository(dsn, n)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize %s repository: %w", dialect, err)
	}

	f.logger.Info("Initialized SQL record store", "dialect", dialect)
	return repo, repo, nil
}

func (f *DefaultFactory) createMemoryStore(shared bool) (*memory.Store, *identity.MemoryUsers) {
	if shared {
		f.logger.Warn("Redis is configured but the memory backend keeps records per process")
	}
	f.logger.Info("Initialized memory record store")
	return memory.NewStore(), identity.NewMemoryUsers()
}

// createPublisher returns nil when AMQP is not configured or unreachable;
// writes then succeed without change events.
func (f *DefaultFactory) createPublisher(config Config) services.ChangePublisher {
	if config.AMQPURL == "" {
		return nil
	}
	client, err := amqp.NewClient(config.AMQPURL, config.AMQPExchange, config.AMQPQueue)
	if err != nil {
		f.logger.Warn("Failed to initialize AMQP client, continuing without mirror events", applog.FieldError, err)
		return nil
	}
	f.logger.Info("Initialized AMQP client",
		"exchange", config.AMQPExchange,
		"queue", config.AMQPQueue)
	return client
}

func (f *DefaultFactory) connectRedis(ctx context.Context, addr string) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr})

	pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}

	f.logger.Info("Connected to redis", "addr", addr)
	return rdb, nil
}

func closeRedis(rdb *redis.Client) error {
	if rdb == nil {
		return nil
	}
	return rdb.Close()
}
