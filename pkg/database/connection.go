package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/medrex/hms-scheduling/pkg/config"
	"github.com/medrex/hms-scheduling/pkg/logger"
	"github.com/medrex/hms-scheduling/pkg/types"
)

// DB represents the database connection
type DB struct {
	*sql.DB
	config *config.DatabaseConfig
	logger *logger.Logger
}

// NewConnection opens and verifies the PostgreSQL connection pool
func NewConnection(cfg *config.DatabaseConfig, log *logger.Logger) (*DB, error) {
	sqlDB, err := sql.Open("postgres", buildConnectionString(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetime) * time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Info("Database connection established successfully")
	return NewFromSQL(sqlDB, cfg, log), nil
}

// NewFromSQL wraps an already opened *sql.DB, e.g. a sqlmock handle in tests
func NewFromSQL(sqlDB *sql.DB, cfg *config.DatabaseConfig, log *logger.Logger) *DB {
	return &DB{
		DB:     sqlDB,
		config: cfg,
		logger: log,
	}
}

// buildConnectionString constructs the PostgreSQL connection string
func buildConnectionString(cfg *config.DatabaseConfig) string {
	if cfg.URL != "" {
		return cfg.URL
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host,
		cfg.Port,
		cfg.User,
		cfg.Password,
		cfg.Name,
		cfg.SSLMode,
	)
}

// Close closes the database connection
func (db *DB) Close() error {
	if db.DB != nil {
		return db.DB.Close()
	}
	return nil
}

// Health checks the database connection health
func (db *DB) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	return db.PingContext(ctx)
}

// WithTx runs fn inside a transaction bounded by the configured tx timeout;
// fn must issue its statements with the context it is handed.
// fn's error rolls the transaction back; a nil error commits it. Transient
// store conflicts, including the tx timeout firing, come back as StoreBusy.
func (db *DB) WithTx(ctx context.Context, opts *sql.TxOptions, fn func(ctx context.Context, tx *sql.Tx) error) error {
	txCtx := ctx
	if db.config != nil && db.config.TxTimeout > 0 {
		var cancel context.CancelFunc
		txCtx, cancel = context.WithTimeout(ctx, db.config.TxTimeoutDuration())
		defer cancel()
	}

	tx, err := db.BeginTx(txCtx, opts)
	if err != nil {
		return db.storeError(ctx, txCtx, fmt.Errorf("failed to begin transaction: %w", err))
	}

	if err := fn(txCtx, tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			db.logger.WithError(rbErr).Warn("Failed to roll back transaction")
		}
		return db.storeError(ctx, txCtx, err)
	}

	if err := tx.Commit(); err != nil {
		return db.storeError(ctx, txCtx, fmt.Errorf("failed to commit transaction: %w", err))
	}

	return nil
}

func (db *DB) storeError(parent, txCtx context.Context, err error) error {
	if types.KindOf(err) != "" {
		return err
	}
	if IsRetryable(err) {
		return types.NewStoreBusyError(err)
	}
	if errors.Is(txCtx.Err(), context.DeadlineExceeded) && parent.Err() == nil {
		return types.NewStoreBusyError(err)
	}
	return err
}
