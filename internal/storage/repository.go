// Package storage is the SQL record store and user repository, backed by
// SQLite or MySQL. Live subscriptions are refreshed through a notify.Notifier
// so writes made by any process reach every subscriber.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
	sqlitedrv "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"estoque/internal/core"
	"estoque/internal/identity"
	"estoque/internal/notify"
	"estoque/internal/records"
)

// Dialect names a supported SQL backend.
type Dialect string

const (
	DialectSQLite Dialect = "sqlite"
	DialectMySQL  Dialect = "mysql"
)

func (d Dialect) driverName() string {
	return string(d)
}

const (
	mysqlDuplicateEntry = 1062

	// loadTimeout bounds a snapshot query, which runs detached from the
	// callers sharing it.
	loadTimeout = 30 * time.Second
)

// Repository implements records.Store and identity.UserRepository.
type Repository struct {
	db       *sql.DB
	queries  *Queries
	dialect  Dialect
	hub      *records.Hub
	notifier notify.Notifier
	origin   string
	now      func() time.Time

	loads singleflight.Group
	seq   atomic.Uint64

	mu      sync.Mutex
	gen     map[string]uint64
	running map[string]bool
	pending map[string]bool
	closed  bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Ensure interface conformance
var (
	_ records.Store           = (*Repository)(nil)
	_ identity.UserRepository = (*Repository)(nil)
)

// NewSQLiteRepository opens (and migrates) the SQLite database at dbPath.
func NewSQLiteRepository(dbPath string, n notify.Notifier) (*Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}
	// WAL and a busy timeout let readers and the single writer coexist.
	dsn := dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
	return Open(DialectSQLite, dsn, n)
}

// NewMySQLRepository opens (and migrates) the MySQL database at dsn.
func NewMySQLRepository(dsn string, n notify.Notifier) (*Repository, error) {
	return Open(DialectMySQL, dsn, n)
}

// Open connects to dsn, runs migrations and starts listening for change
// signals on n. A nil notifier means a process-local one.
func Open(dialect Dialect, dsn string, n notify.Notifier) (*Repository, error) {
	db, err := sql.Open(dialect.driverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", dialect, err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dialect, dsn); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	if dialect == DialectSQLite {
		db.SetMaxOpenConns(1)
	}

	return newRepository(db, dialect, n), nil
}

func newRepository(db *sql.DB, dialect Dialect, n notify.Notifier) *Repository {
	if n == nil {
		n = notify.NewLocal()
	}
	ctx, cancel := context.WithCancel(context.Background())
	r := &Repository{
		db:       db,
		queries:  New(db),
		dialect:  dialect,
		hub:      records.NewHub(),
		notifier: n,
		origin:   uuid.NewString(),
		now:      time.Now,
		gen:      make(map[string]uint64),
		running:  make(map[string]bool),
		pending:  make(map[string]bool),
		ctx:      ctx,
		cancel:   cancel,
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := n.Listen(ctx, r.onSignal); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("Record change listener stopped", "error", err, "dialect", dialect)
		}
	}()

	return r
}

// Ping checks the database connection.
func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *Repository) Close() error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()

	r.cancel()
	r.hub.CloseAll()
	r.wg.Wait()

	var errs []error
	if err := r.notifier.Close(); err != nil {
		errs = append(errs, fmt.Errorf("notifier: %w", err))
	}
	if r.db != nil {
		if err := r.db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("db: %w", err))
		}
	}
	return errors.Join(errs...)
}

func (r *Repository) Create(ctx context.Context, ownerID string, in core.RecordInput) (core.InventoryRecord, error) {
	rec := in.Record()
	rec.ID = uuid.NewString()
	rec.OwnerID = ownerID

	if err := r.queries.CreateRecord(ctx, CreateRecordParams{Record: rec, CreatedAt: r.now()}); err != nil {
		return core.InventoryRecord{}, fmt.Errorf("create record: %w", err)
	}

	slog.InfoContext(ctx, "Record saved",
		"id", rec.ID,
		"owner_id", ownerID,
		"dialect", r.dialect)

	r.changed(ctx, ownerID)
	return rec, nil
}

func (r *Repository) Update(ctx context.Context, ownerID, id string, in core.RecordInput) (core.InventoryRecord, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return core.InventoryRecord{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	q := r.queries.WithTx(tx)
	lock := ""
	if r.dialect == DialectMySQL {
		lock = "FOR UPDATE"
	}
	rec, err := q.GetRecordForUpdate(ctx, ownerID, id, lock)
	if errors.Is(err, sql.ErrNoRows) {
		return core.InventoryRecord{}, records.ErrNotFound
	}
	if err != nil {
		return core.InventoryRecord{}, fmt.Errorf("get record: %w", err)
	}

	in.ApplyTo(&rec)
	if _, err := q.UpdateRecord(ctx, rec, r.now()); err != nil {
		return core.InventoryRecord{}, fmt.Errorf("update record: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return core.InventoryRecord{}, fmt.Errorf("commit: %w", err)
	}

	r.changed(ctx, ownerID)
	return rec, nil
}

func (r *Repository) Delete(ctx context.Context, ownerID, id string) error {
	n, err := r.queries.DeleteRecord(ctx, ownerID, id)
	if err != nil {
		return fmt.Errorf("delete record: %w", err)
	}
	if n == 0 {
		return records.ErrNotFound
	}
	r.changed(ctx, ownerID)
	return nil
}

func (r *Repository) Get(ctx context.Context, ownerID, id string) (core.InventoryRecord, error) {
	rec, err := r.queries.GetRecord(ctx, ownerID, id)
	if errors.Is(err, sql.ErrNoRows) {
		return core.InventoryRecord{}, records.ErrNotFound
	}
	if err != nil {
		return core.InventoryRecord{}, fmt.Errorf("get record: %w", err)
	}
	return rec, nil
}

func (r *Repository) List(ctx context.Context, ownerID string) ([]core.InventoryRecord, error) {
	snap, err := r.load(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	return slices.Clone(snap.Records), nil
}

func (r *Repository) Subscribe(ctx context.Context, ownerID string) (*records.Subscription, error) {
	r.mu.Lock()
	closed := r.closed
	r.mu.Unlock()
	if closed {
		return nil, records.ErrClosed
	}

	// Register before loading so a write landing during the load triggers
	// a refresh for this subscriber.
	sub := r.hub.Add(ctx, ownerID)
	snap, err := r.load(ctx, ownerID)
	if err != nil {
		sub.Unsubscribe()
		return nil, err
	}
	sub.Deliver(snap)
	return sub, nil
}

// load reads the owner's records. Concurrent loads started after the same
// change share one query. The query runs under the repository's own context
// so a caller that gives up does not fail the others waiting on it.
func (r *Repository) load(ctx context.Context, ownerID string) (records.Snapshot, error) {
	r.mu.Lock()
	key := ownerID + "#" + strconv.FormatUint(r.gen[ownerID], 10)
	r.mu.Unlock()

	ch := r.loads.DoChan(key, func() (any, error) {
		qctx, cancel := context.WithTimeout(r.ctx, loadTimeout)
		defer cancel()

		seq := r.seq.Add(1)
		items, err := r.queries.ListRecords(qctx, ownerID)
		if err != nil {
			return records.Snapshot{}, fmt.Errorf("list records: %w", err)
		}
		return records.Snapshot{OwnerID: ownerID, Records: items, Seq: seq}, nil
	})

	select {
	case <-ctx.Done():
		return records.Snapshot{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return records.Snapshot{}, res.Err
		}
		return res.Val.(records.Snapshot), nil
	}
}

// changed refreshes local subscribers and signals other processes. A failed
// signal only delays remote subscribers.
func (r *Repository) changed(ctx context.Context, ownerID string) {
	r.onChange(ownerID)
	s := notify.Signal{OwnerID: ownerID, Origin: r.origin}
	if err := r.notifier.Publish(context.WithoutCancel(ctx), s); err != nil {
		slog.WarnContext(ctx, "Failed to publish record change", "owner_id", ownerID, "error", err)
	}
}

// onSignal handles change signals from the notifier. Signals this
// repository published were already applied by changed.
func (r *Repository) onSignal(s notify.Signal) {
	if s.Origin == r.origin {
		return
	}
	r.onChange(s.OwnerID)
}

// onChange bumps the owner's generation and refreshes its subscribers.
func (r *Repository) onChange(ownerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.gen[ownerID]++

	if r.hub.Count(ownerID) == 0 {
		return
	}
	if r.running[ownerID] {
		r.pending[ownerID] = true
		return
	}
	r.running[ownerID] = true
	r.wg.Add(1)
	go r.refreshLoop(ownerID)
}

// refreshLoop publishes fresh snapshots until no change is pending.
func (r *Repository) refreshLoop(ownerID string) {
	defer r.wg.Done()
	for {
		snap, err := r.load(r.ctx, ownerID)
		if err != nil {
			if r.ctx.Err() == nil {
				slog.Error("Failed to reload records", "owner_id", ownerID, "error", err)
			}
		} else {
			r.hub.Publish(snap)
		}

		r.mu.Lock()
		if !r.pending[ownerID] || r.closed {
			delete(r.running, ownerID)
			delete(r.pending, ownerID)
			r.mu.Unlock()
			return
		}
		delete(r.pending, ownerID)
		r.mu.Unlock()
	}
}

// Owners lists every owner holding at least one record.
func (r *Repository) Owners(ctx context.Context) ([]string, error) {
	owners, err := r.queries.ListOwners(ctx)
	if err != nil {
		return nil, fmt.Errorf("list owners: %w", err)
	}
	return owners, nil
}

// Subscribers returns the number of live subscriptions for ownerID.
func (r *Repository) Subscribers(ownerID string) int {
	return r.hub.Count(ownerID)
}

// CreateUser implements identity.UserRepository.
func (r *Repository) CreateUser(ctx context.Context, u identity.User) error {
	if err := r.queries.CreateUser(ctx, u); err != nil {
		if isUniqueViolation(err) {
			return identity.ErrEmailTaken
		}
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (r *Repository) UserByEmail(ctx context.Context, email string) (identity.User, error) {
	u, err := r.queries.GetUserByEmail(ctx, email)
	if errors.Is(err, sql.ErrNoRows) {
		return identity.User{}, identity.ErrUserNotFound
	}
	if err != nil {
		return identity.User{}, fmt.Errorf("get user by email: %w", err)
	}
	return u, nil
}

func (r *Repository) UserByID(ctx context.Context, id string) (identity.User, error) {
	u, err := r.queries.GetUserByID(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return identity.User{}, identity.ErrUserNotFound
	}
	if err != nil {
		return identity.User{}, fmt.Errorf("get user by id: %w", err)
	}
	return u, nil
}

func isUniqueViolation(err error) bool {
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == mysqlDuplicateEntry
	}
	var liteErr *sqlitedrv.Error
	if errors.As(err, &liteErr) {
		return liteErr.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE ||
			liteErr.Code() == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
	}
	return false
}
