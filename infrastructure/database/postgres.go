package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/MaanVader/Chack/application/ports"
	"github.com/MaanVader/Chack/config"
	"github.com/MaanVader/Chack/observability/types"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

var _ ports.Database = (*DB)(nil)

// DB implements ports.Database for PostgreSQL
type DB struct {
	conn    *sqlx.DB
	logger  types.Logger
	metrics types.Metrics
}

// NewPostgres opens a pooled PostgreSQL connection and verifies it with a ping.
func NewPostgres(ctx context.Context, cfg config.DatabaseConfig, logger types.Logger, metrics types.Metrics) (*DB, error) {
	logger.Info(ctx, "Connecting to PostgreSQL database", types.Fields{
		"host":     cfg.Host,
		"port":     cfg.Port,
		"database": cfg.Database,
	})

	conn, err := sqlx.Open("postgres", cfg.DSN())
	if err != nil {
		logger.Error(ctx, "Failed to open database connection", err, nil)
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	conn.SetMaxOpenConns(cfg.MaxOpenConns)
	conn.SetMaxIdleConns(cfg.MaxIdleConns)
	conn.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := conn.PingContext(pingCtx); err != nil {
		logger.Error(ctx, "Failed to ping database", err, nil)
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info(ctx, "Successfully connected to PostgreSQL database", nil)
	metrics.RecordSuccess("database.connect")

	return &DB{conn: conn, logger: logger, metrics: metrics}, nil
}

// Execute runs a query that doesn't return rows
func (d *DB) Execute(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	startTime := time.Now()

	result, err := d.conn.ExecContext(ctx, query, args...)

	d.recordMetrics("execute", startTime, err)

	if err != nil {
		d.logger.Error(ctx, "Failed to execute query", err, types.Fields{"query": query})
		return nil, err
	}

	return result, nil
}

// Get executes a query and scans the result into dest (single row)
func (d *DB) Get(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	startTime := time.Now()

	err := d.conn.GetContext(ctx, dest, query, args...)

	if errors.Is(err, sql.ErrNoRows) {
		d.recordMetrics("get", startTime, nil)
		d.logger.Debug(ctx, "No rows found", types.Fields{"query": query})
		return err
	}
	d.recordMetrics("get", startTime, err)
	if err != nil {
		d.logger.Error(ctx, "Failed to get row", err, types.Fields{"query": query})
		return err
	}

	return nil
}

// Select executes a query and scans the result into dest (multiple rows)
func (d *DB) Select(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	startTime := time.Now()

	err := d.conn.SelectContext(ctx, dest, query, args...)

	d.recordMetrics("select", startTime, err)

	if err != nil {
		d.logger.Error(ctx, "Failed to select rows", err, types.Fields{"query": query})
		return err
	}

	return nil
}

// Transaction executes fn within a transaction. The transaction is rolled back
// when fn returns an error or panics.
func (d *DB) Transaction(ctx context.Context, fn func(tx ports.Transaction) error) (err error) {
	startTime := time.Now()
	defer func() { d.recordMetrics("transaction", startTime, err) }()

	tx, err := d.conn.BeginTxx(ctx, nil)
	if err != nil {
		d.logger.Error(ctx, "Failed to begin transaction", err, nil)
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()

	if err = fn(&pgTx{tx: tx}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			d.logger.Error(ctx, "Failed to rollback", rbErr, nil)
		}
		return err
	}

	if err = tx.Commit(); err != nil {
		d.logger.Error(ctx, "Failed to commit", err, nil)
		return err
	}

	return nil
}

// Ping verifies the connection
func (d *DB) Ping(ctx context.Context) error {
	return d.conn.PingContext(ctx)
}

// Close closes the database connection
func (d *DB) Close() error {
	d.logger.Info(context.Background(), "Closing database connection", nil)
	return d.conn.Close()
}

func (d *DB) recordMetrics(operation string, startTime time.Time, err error) {
	op := "database." + operation
	d.metrics.RecordDuration(op, time.Since(startTime).Seconds())

	if err != nil {
		d.metrics.RecordError(op, "query")
	} else {
		d.metrics.RecordSuccess(op)
	}
}

type pgTx struct {
	tx *sqlx.Tx
}

func (t *pgTx) Execute(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	return t.tx.ExecContext(ctx, query, args...)
}

func (t *pgTx) Get(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	return t.tx.GetContext(ctx, dest, query, args...)
}

func (t *pgTx) Select(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	return t.tx.SelectContext(ctx, dest, query, args...)
}
