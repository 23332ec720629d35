package tenancy

import (
	"context"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
	"go.uber.org/zap"

	"github.com/mosaicms/mosaic/internal/config"
	"github.com/mosaicms/mosaic/internal/metrics"
)

// PooledConnection is one live client pool for a single database. Owned by
// the Registry; requests share it and must never close it themselves.
type PooledConnection struct {
	DBName    string
	Client    *mongo.Client
	CreatedAt time.Time
}

// DB returns the database handle this pool was created for.
func (p *PooledConnection) DB() *mongo.Database {
	return p.Client.Database(p.DBName)
}

// DialFunc establishes and verifies a client pool. Swappable in tests.
type DialFunc func(ctx context.Context, cfg config.MongoConfig) (*mongo.Client, error)

// poolEntry is the placeholder reserved in the map before the slow dial
// runs. Waiters block on ready; exactly one of conn/err is set when it
// closes. Failed entries are removed from the map before ready closes, so
// the next request dials again instead of reusing a broken handle.
type poolEntry struct {
	ready chan struct{}
	conn  *PooledConnection
	err   error
}

// Registry owns every client pool in the process: one per distinct tenant
// database plus the central singleton. At most one pool is ever created per
// database name, even under concurrent first requests; the map mutex guards
// only the check-or-reserve step, never the dial itself.
type Registry struct {
	cfg     config.MongoConfig
	logger  *zap.Logger
	metrics *metrics.Collector
	dial    DialFunc

	mu      sync.Mutex
	pools   map[string]*poolEntry
	central *poolEntry
	closed  bool
}

func NewRegistry(cfg config.MongoConfig, logger *zap.Logger, collector *metrics.Collector) *Registry {
	return &Registry{
		cfg:     cfg,
		logger:  logger,
		metrics: collector,
		dial:    dialMongo,
		pools:   make(map[string]*poolEntry),
	}
}

func dialMongo(ctx context.Context, cfg config.MongoConfig) (*mongo.Client, error) {
	opts := options.Client().
		ApplyURI(cfg.URI).
		SetMaxPoolSize(cfg.MaxPoolSize).
		SetMinPoolSize(cfg.MinPoolSize).
		SetMaxConnIdleTime(cfg.MaxConnIdleTime).
		SetServerSelectionTimeout(cfg.ServerSelectionTimeout).
		SetTimeout(cfg.OperationTimeout)

	client, err := mongo.Connect(opts)
	if err != nil {
		return nil, err
	}

	pingCtx, cancel := context.WithTimeout(ctx, cfg.ServerSelectionTimeout)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return client, nil
}

// GetOrCreate returns the pool for dbName, dialing it on first use. When N
// requests race on an unseen name, one dials and the rest wait for its
// result. A failed dial is not cached: the entry is removed before waiters
// wake, so the next request retries.
func (r *Registry) GetOrCreate(ctx context.Context, dbName string) (*PooledConnection, error) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, ErrShutdown
	}
	if e, ok := r.pools[dbName]; ok {
		r.mu.Unlock()
		return await(ctx, e)
	}
	e := &poolEntry{ready: make(chan struct{})}
	r.pools[dbName] = e
	r.mu.Unlock()

	r.connect(ctx, dbName, e, false)
	return await(ctx, e)
}

// Central returns the pool for the central database, dialing it lazily on
// first need with the same single-creation guarantee as tenant pools.
func (r *Registry) Central(ctx context.Context) (*PooledConnection, error) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, ErrShutdown
	}
	if e := r.central; e != nil {
		r.mu.Unlock()
		return await(ctx, e)
	}
	e := &poolEntry{ready: make(chan struct{})}
	r.central = e
	r.mu.Unlock()

	r.connect(ctx, r.cfg.CentralDB, e, true)
	return await(ctx, e)
}

func (r *Registry) connect(ctx context.Context, dbName string, e *poolEntry, central bool) {
	client, err := r.dial(ctx, r.cfg)
	if err != nil {
		r.mu.Lock()
		if central {
			if r.central == e {
				r.central = nil
			}
		} else if r.pools[dbName] == e {
			delete(r.pools, dbName)
		}
		r.mu.Unlock()
		e.err = &ConnectionError{DBName: dbName, Err: err}
		close(e.ready)
		r.metrics.ConnectFailed(dbName)
		r.logger.Error("database connection failed",
			zap.String("database", dbName), zap.Error(err))
		return
	}
	e.conn = &PooledConnection{DBName: dbName, Client: client, CreatedAt: time.Now()}
	close(e.ready)
	r.metrics.PoolOpened(dbName)
	r.logger.Info("database pool created", zap.String("database", dbName))
}

func await(ctx context.Context, e *poolEntry) (*PooledConnection, error) {
	select {
	case <-e.ready:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if e.err != nil {
		return nil, e.err
	}
	return e.conn, nil
}

// ListDatabaseNames queries the server catalog through any already-open
// pool, or a throwaway client when none exists yet.
func (r *Registry) ListDatabaseNames(ctx context.Context) ([]string, error) {
	if client := r.anyClient(); client != nil {
		return client.ListDatabaseNames(ctx, bson.D{})
	}

	client, err := r.dial(ctx, r.cfg)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := client.Disconnect(context.Background()); err != nil {
			r.logger.Warn("closing throwaway catalog client", zap.Error(err))
		}
	}()
	return client.ListDatabaseNames(ctx, bson.D{})
}

func (r *Registry) anyClient() *mongo.Client {
	r.mu.Lock()
	defer r.mu.Unlock()
	if client := publishedClient(r.central); client != nil {
		return client
	}
	for _, e := range r.pools {
		if client := publishedClient(e); client != nil {
			return client
		}
	}
	return nil
}

// publishedClient reads an entry's client only after its dial finished; the
// fields of an in-flight entry are still owned by the dialing goroutine.
func publishedClient(e *poolEntry) *mongo.Client {
	if e == nil {
		return nil
	}
	select {
	case <-e.ready:
	default:
		return nil
	}
	if e.conn == nil {
		return nil
	}
	return e.conn.Client
}

// Drop removes the pool for dbName and disconnects it in the background.
// Collaborators call it after a fatal driver error so the next request
// redials instead of reusing a dead pool.
func (r *Registry) Drop(dbName string) {
	r.mu.Lock()
	e, ok := r.pools[dbName]
	if ok {
		delete(r.pools, dbName)
	}
	r.mu.Unlock()
	if !ok {
		return
	}
	go func() {
		conn, err := await(context.Background(), e)
		if err != nil {
			return
		}
		if err := conn.Client.Disconnect(context.Background()); err != nil {
			r.logger.Warn("closing dropped pool",
				zap.String("database", dbName), zap.Error(err))
		}
		r.metrics.PoolClosed(dbName)
	}()
}

// CloseAll disconnects every tenant pool concurrently, then the central
// pool, collecting errors without aborting the sweep. The registry refuses
// new pools from the first call onward; later calls find nothing to close.
func (r *Registry) CloseAll(ctx context.Context) []error {
	r.mu.Lock()
	r.closed = true
	entries := make(map[string]*poolEntry, len(r.pools))
	for name, e := range r.pools {
		entries[name] = e
	}
	r.pools = make(map[string]*poolEntry)
	central := r.central
	r.central = nil
	r.mu.Unlock()

	var (
		wg    sync.WaitGroup
		errMu sync.Mutex
		errs  []error
	)
	closeOne := func(name string, e *poolEntry) {
		conn, err := await(ctx, e)
		if err != nil {
			return // dial already failed or never finished; nothing to close
		}
		if err := conn.Client.Disconnect(ctx); err != nil {
			r.logger.Error("closing database pool",
				zap.String("database", name), zap.Error(err))
			errMu.Lock()
			errs = append(errs, &ConnectionError{DBName: name, Err: err})
			errMu.Unlock()
			return
		}
		r.metrics.PoolClosed(name)
	}

	for name, e := range entries {
		wg.Add(1)
		go func(name string, e *poolEntry) {
			defer wg.Done()
			closeOne(name, e)
		}(name, e)
	}
	wg.Wait()

	if central != nil {
		closeOne(r.cfg.CentralDB, central)
	}
	return errs
}
