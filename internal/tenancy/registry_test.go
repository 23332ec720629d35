package tenancy

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.uber.org/zap"

	"github.com/mosaicms/mosaic/internal/config"
)

func testMongoConfig() config.MongoConfig {
	return config.MongoConfig{
		URI:                    "mongodb://127.0.0.1:27017",
		CentralDB:              "mosaic_central",
		MaxPoolSize:            10,
		MinPoolSize:            1,
		MaxConnIdleTime:        time.Minute,
		ServerSelectionTimeout: time.Second,
		OperationTimeout:       time.Second,
	}
}

// newDetachedClient builds a client without touching the network; the
// driver dials lazily, so handing these out in tests is safe.
func newDetachedClient(t *testing.T) *mongo.Client {
	t.Helper()
	client, err := mongo.Connect(options.Client().ApplyURI("mongodb://127.0.0.1:27017"))
	require.NoError(t, err)
	return client
}

func newTestRegistry(t *testing.T, dial DialFunc) *Registry {
	r := NewRegistry(testMongoConfig(), zap.NewNop(), nil)
	r.dial = dial
	return r
}

func TestGetOrCreateSingleDial(t *testing.T) {
	var dials atomic.Int64
	client := newDetachedClient(t)
	r := newTestRegistry(t, func(ctx context.Context, cfg config.MongoConfig) (*mongo.Client, error) {
		dials.Add(1)
		time.Sleep(20 * time.Millisecond) // widen the race window
		return client, nil
	})

	const k = 32
	conns := make([]*PooledConnection, k)
	errs := make([]error, k)
	var wg sync.WaitGroup
	for i := range k {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			conns[i], errs[i] = r.GetOrCreate(context.Background(), "mosaic_acme")
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}

	assert.EqualValues(t, 1, dials.Load(), "exactly one underlying connect for K concurrent first requests")
	for _, conn := range conns {
		assert.Same(t, conns[0], conn, "all callers share the same pool")
	}
	assert.Equal(t, "mosaic_acme", conns[0].DBName)
}

func TestGetOrCreateDistinctNames(t *testing.T) {
	var dials atomic.Int64
	r := newTestRegistry(t, func(ctx context.Context, cfg config.MongoConfig) (*mongo.Client, error) {
		dials.Add(1)
		return newDetachedClient(t), nil
	})

	a, err := r.GetOrCreate(context.Background(), "mosaic_acme")
	require.NoError(t, err)
	b, err := r.GetOrCreate(context.Background(), "mosaic_beta")
	require.NoError(t, err)

	assert.EqualValues(t, 2, dials.Load())
	assert.NotSame(t, a, b)
}

func TestGetOrCreateFailureNotCached(t *testing.T) {
	var dials atomic.Int64
	client := newDetachedClient(t)
	r := newTestRegistry(t, func(ctx context.Context, cfg config.MongoConfig) (*mongo.Client, error) {
		if dials.Add(1) == 1 {
			return nil, errors.New("no reachable servers")
		}
		return client, nil
	})

	_, err := r.GetOrCreate(context.Background(), "mosaic_acme")
	var cerr *ConnectionError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "mosaic_acme", cerr.DBName)

	// The broken entry must not be cached; the next call redials.
	conn, err := r.GetOrCreate(context.Background(), "mosaic_acme")
	require.NoError(t, err)
	assert.Equal(t, "mosaic_acme", conn.DBName)
	assert.EqualValues(t, 2, dials.Load())
}

func TestCentralSingleton(t *testing.T) {
	var dials atomic.Int64
	client := newDetachedClient(t)
	r := newTestRegistry(t, func(ctx context.Context, cfg config.MongoConfig) (*mongo.Client, error) {
		dials.Add(1)
		time.Sleep(10 * time.Millisecond)
		return client, nil
	})

	const k = 16
	conns := make([]*PooledConnection, k)
	errs := make([]error, k)
	var wg sync.WaitGroup
	for i := range k {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			conns[i], errs[i] = r.Central(context.Background())
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}

	assert.EqualValues(t, 1, dials.Load())
	for _, conn := range conns {
		assert.Same(t, conns[0], conn)
	}
	assert.Equal(t, "mosaic_central", conns[0].DBName)
}

func TestCentralIndependentOfTenantPools(t *testing.T) {
	var dials atomic.Int64
	r := newTestRegistry(t, func(ctx context.Context, cfg config.MongoConfig) (*mongo.Client, error) {
		dials.Add(1)
		return newDetachedClient(t), nil
	})

	central, err := r.Central(context.Background())
	require.NoError(t, err)
	tenant, err := r.GetOrCreate(context.Background(), "mosaic_acme")
	require.NoError(t, err)

	assert.NotSame(t, central, tenant)
	assert.EqualValues(t, 2, dials.Load())
}

func TestCloseAllRefusesNewPools(t *testing.T) {
	r := newTestRegistry(t, func(ctx context.Context, cfg config.MongoConfig) (*mongo.Client, error) {
		return newDetachedClient(t), nil
	})

	_, err := r.GetOrCreate(context.Background(), "mosaic_acme")
	require.NoError(t, err)

	errs := r.CloseAll(context.Background())
	assert.Empty(t, errs)

	_, err = r.GetOrCreate(context.Background(), "mosaic_beta")
	assert.ErrorIs(t, err, ErrShutdown)
	_, err = r.Central(context.Background())
	assert.ErrorIs(t, err, ErrShutdown)
}

func TestCloseAllIdempotent(t *testing.T) {
	r := newTestRegistry(t, func(ctx context.Context, cfg config.MongoConfig) (*mongo.Client, error) {
		return newDetachedClient(t), nil
	})

	_, err := r.GetOrCreate(context.Background(), "mosaic_acme")
	require.NoError(t, err)
	_, err = r.Central(context.Background())
	require.NoError(t, err)

	assert.Empty(t, r.CloseAll(context.Background()))
	// Second sweep finds nothing left to close.
	assert.Empty(t, r.CloseAll(context.Background()))
}

func TestDropRemovesPool(t *testing.T) {
	var dials atomic.Int64
	r := newTestRegistry(t, func(ctx context.Context, cfg config.MongoConfig) (*mongo.Client, error) {
		dials.Add(1)
		return newDetachedClient(t), nil
	})

	_, err := r.GetOrCreate(context.Background(), "mosaic_acme")
	require.NoError(t, err)

	r.Drop("mosaic_acme")
	_, err = r.GetOrCreate(context.Background(), "mosaic_acme")
	require.NoError(t, err)
	assert.EqualValues(t, 2, dials.Load(), "dropped pool is redialed on next request")
}

func TestListDatabaseNamesDialError(t *testing.T) {
	dialErr := errors.New("no reachable servers")
	r := newTestRegistry(t, func(ctx context.Context, cfg config.MongoConfig) (*mongo.Client, error) {
		return nil, dialErr
	})

	_, err := r.ListDatabaseNames(context.Background())
	assert.ErrorIs(t, err, dialErr)
}

func TestAnyClientSkipsInFlightDial(t *testing.T) {
	client := newDetachedClient(t)
	release := make(chan struct{})
	r := newTestRegistry(t, func(ctx context.Context, cfg config.MongoConfig) (*mongo.Client, error) {
		<-release
		return client, nil
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = r.GetOrCreate(context.Background(), "mosaic_acme")
	}()

	// Hammer the catalog path while the dial is in flight; the reserved
	// entry must stay invisible until its result is published.
	deadline := time.After(50 * time.Millisecond)
loop:
	for {
		select {
		case <-deadline:
			break loop
		default:
			assert.Nil(t, r.anyClient())
		}
	}

	close(release)
	<-done
	assert.Same(t, client, r.anyClient())
}
