// Package db is the PostgreSQL backing store for online network data:
// the client and server tables filled from whazzup downloads and the
// bounding-box query surface used by the spatial cache. It also hosts
// the Manager that combines text parsing with storage.
package db

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/QQ7ita/littlenavmap/pkg/config"
)

//go:embed schema.sql
var schemaSQL embed.FS

// DB wraps a database connection with helper methods.
type DB struct {
	*sql.DB
	config config.DatabaseConfig
}

// Connect establishes a connection to the PostgreSQL database.
func Connect(cfg config.DatabaseConfig) (*DB, error) {
	connStr := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host,
		cfg.Port,
		cfg.Username,
		cfg.Password,
		cfg.Database,
		cfg.SSLMode,
	)

	sqlDB, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(time.Hour)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{
		DB:     sqlDB,
		config: cfg,
	}, nil
}

// InitSchema creates or updates the database schema.
// This should be called once at application startup.
func (db *DB) InitSchema(ctx context.Context) error {
	schemaBytes, err := schemaSQL.ReadFile("schema.sql")
	if err != nil {
		return fmt.Errorf("failed to read schema file: %w", err)
	}

	if _, err := db.ExecContext(ctx, string(schemaBytes)); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	return nil
}

// Stats returns store statistics for the status endpoint.
func (db *DB) Stats(ctx context.Context) (map[string]interface{}, error) {
	stats := make(map[string]interface{})

	var clientCount int
	err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM client`,
	).Scan(&clientCount)
	if err != nil {
		return nil, err
	}
	stats["clients"] = clientCount

	var pilotCount int
	err = db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM client WHERE client_type = 'PILOT'`,
	).Scan(&pilotCount)
	if err != nil {
		return nil, err
	}
	stats["pilots"] = pilotCount

	var atcCount int
	err = db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM client WHERE client_type = 'ATC'`,
	).Scan(&atcCount)
	if err != nil {
		return nil, err
	}
	stats["atc"] = atcCount

	var serverCount int
	err = db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM server`,
	).Scan(&serverCount)
	if err != nil {
		return nil, err
	}
	stats["servers"] = serverCount

	return stats, nil
}
