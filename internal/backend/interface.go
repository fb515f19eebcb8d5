package backend

import (
	"context"
	"time"

	"estoque/internal/identity"
	"estoque/internal/records"
	"estoque/internal/services"
)

// Store is a record store that can also enumerate its owners.
type Store interface {
	records.Store
	Owners(ctx context.Context) ([]string, error)
}

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// BackendResult contains the wired services and the cleanup function that
// releases everything they hold.
type BackendResult struct {
	Store    Store
	Users    identity.UserRepository
	Records  *services.RecordService
	Identity *identity.Service
	Cleanup  CleanupFunc
}

// Factory creates backends based on configuration
type Factory interface {
	// CreateBackend creates a backend instance based on the provided config
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

// Config holds configuration for backend creation
type Config struct {
	// Backend type
	Type BackendType

	// SQL specific
	SQLiteDBPath string
	MySQLDSN     string

	// Optional shared infrastructure
	RedisAddr    string
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Identity
	JWTSecret  string
	SessionTTL time.Duration

	// Reporting time zone
	Location *time.Location
}

// BackendType represents the type of backend
type BackendType string

const (
	MemoryBackend BackendType = "memory"
	SQLiteBackend BackendType = "sqlite"
	MySQLBackend  BackendType = "mysql"
)

// String implements fmt.Stringer
func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is valid
func (bt BackendType) IsValid() bool {
	switch bt {
	case MemoryBackend, SQLiteBackend, MySQLBackend:
		return true
	default:
		return false
	}
}
