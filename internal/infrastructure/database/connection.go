package database

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/bidwire/auction-exchange-backend/internal/infrastructure/config"
)

// ConnectionPool wraps a pgx pool with health checking and basic stats.
// All writes go through Transaction so row locks and ledger writes commit
// or roll back together.
type ConnectionPool struct {
	pool    *pgxpool.Pool
	config  *config.DatabaseConfig
	logger  *zap.Logger
	metrics *PoolMetrics
	stop    chan struct{}
	stopped sync.Once
}

// PoolMetrics tracks connection and transaction counters.
type PoolMetrics struct {
	mu sync.RWMutex

	TotalConnections  int64
	ActiveConnections int64
	IdleConnections   int64

	TransactionsStarted    int64
	TransactionsCommitted  int64
	TransactionsRolledBack int64

	LastHealthCheck time.Time
}

// NewConnectionPool connects to the primary database and starts the
// health check and stats routines.
func NewConnectionPool(cfg *config.DatabaseConfig, logger *zap.Logger) (*ConnectionPool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	p := &ConnectionPool{
		config:  cfg,
		logger:  logger,
		metrics: &PoolMetrics{},
		stop:    make(chan struct{}),
	}
	p.configure(poolConfig)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	p.pool, err = pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := p.pool.Ping(ctx); err != nil {
		p.pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	go p.healthCheckRoutine()

	logger.Info("database connection pool initialized",
		zap.Int32("max_conns", poolConfig.MaxConns),
		zap.Int32("min_conns", poolConfig.MinConns))

	return p, nil
}

func (p *ConnectionPool) configure(poolConfig *pgxpool.Config) {
	if p.config.MaxConns > 0 {
		poolConfig.MaxConns = p.config.MaxConns
	} else {
		poolConfig.MaxConns = 25
	}
	if p.config.MinConns > 0 {
		poolConfig.MinConns = p.config.MinConns
	} else {
		poolConfig.MinConns = 5
	}
	if p.config.ConnMaxLifetime > 0 {
		poolConfig.MaxConnLifetime = p.config.ConnMaxLifetime
	} else {
		poolConfig.MaxConnLifetime = 30 * time.Minute
	}
	if p.config.ConnMaxIdleTime > 0 {
		poolConfig.MaxConnIdleTime = p.config.ConnMaxIdleTime
	} else {
		poolConfig.MaxConnIdleTime = 10 * time.Minute
	}
	if p.config.HealthCheckPeriod > 0 {
		poolConfig.HealthCheckPeriod = p.config.HealthCheckPeriod
	} else {
		poolConfig.HealthCheckPeriod = time.Minute
	}

	poolConfig.ConnConfig.ConnectTimeout = 5 * time.Second

	// lock_timeout caps how long a bid waits on a contended wallet or
	// auction row before the driver surfaces 55P03.
	poolConfig.ConnConfig.RuntimeParams = map[string]string{
		"application_name":                    "auction_exchange",
		"timezone":                            "UTC",
		"lock_timeout":                        "10s",
		"statement_timeout":                   "30s",
		"idle_in_transaction_session_timeout": "60s",
		"default_transaction_isolation":       "read committed",
	}

	poolConfig.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		p.metrics.mu.Lock()
		p.metrics.TotalConnections++
		p.metrics.mu.Unlock()
		return nil
	}
}

// Pool exposes the underlying pgx pool for single-statement reads.
func (p *ConnectionPool) Pool() *pgxpool.Pool {
	return p.pool
}

// Transaction executes fn within a database transaction.
func (p *ConnectionPool) Transaction(ctx context.Context, fn func(pgx.Tx) error) error {
	return p.TransactionWithOptions(ctx, pgx.TxOptions{}, fn)
}

// TransactionWithOptions executes fn within a transaction using the given options.
func (p *ConnectionPool) TransactionWithOptions(ctx context.Context, opts pgx.TxOptions, fn func(pgx.Tx) error) error {
	p.metrics.mu.Lock()
	p.metrics.TransactionsStarted++
	p.metrics.mu.Unlock()

	err := pgx.BeginTxFunc(ctx, p.pool, opts, fn)

	p.metrics.mu.Lock()
	if err != nil {
		p.metrics.TransactionsRolledBack++
	} else {
		p.metrics.TransactionsCommitted++
	}
	p.metrics.mu.Unlock()

	return err
}

// Ping verifies the database is reachable.
func (p *ConnectionPool) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

// Metrics returns a snapshot of the pool counters.
func (p *ConnectionPool) Metrics() PoolMetrics {
	p.collectStats()

	p.metrics.mu.RLock()
	defer p.metrics.mu.RUnlock()
	return PoolMetrics{
		TotalConnections:       p.metrics.TotalConnections,
		ActiveConnections:      p.metrics.ActiveConnections,
		IdleConnections:        p.metrics.IdleConnections,
		TransactionsStarted:    p.metrics.TransactionsStarted,
		TransactionsCommitted:  p.metrics.TransactionsCommitted,
		TransactionsRolledBack: p.metrics.TransactionsRolledBack,
		LastHealthCheck:        p.metrics.LastHealthCheck,
	}
}

func (p *ConnectionPool) healthCheckRoutine() {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.performHealthCheck()
		case <-p.stop:
			return
		}
	}
}

func (p *ConnectionPool) performHealthCheck() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := p.pool.Ping(ctx); err != nil {
		p.logger.Error("database health check failed", zap.Error(err))
	}

	p.collectStats()

	p.metrics.mu.Lock()
	p.metrics.LastHealthCheck = time.Now()
	p.metrics.mu.Unlock()
}

func (p *ConnectionPool) collectStats() {
	stats := p.pool.Stat()

	p.metrics.mu.Lock()
	p.metrics.ActiveConnections = int64(stats.AcquiredConns())
	p.metrics.IdleConnections = int64(stats.IdleConns())
	p.metrics.mu.Unlock()
}

// Close stops the background routines and closes the pool.
func (p *ConnectionPool) Close() error {
	p.stopped.Do(func() {
		close(p.stop)
	})
	p.pool.Close()
	p.logger.Info("database connection pool closed")
	return nil
}
