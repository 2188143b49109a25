package db

import (
	"context"
	"log"
	"time"

	"github.com/QQ7ita/littlenavmap/pkg/config"
)

// ConnectWithRetry connects to the database with exponential backoff.
// The service is typically started together with its database; retrying
// here covers the window where PostgreSQL is still coming up.
//
// maxRetries of 0 retries forever.
func ConnectWithRetry(cfg config.DatabaseConfig, maxRetries int, initialDelay time.Duration) (*DB, error) {
	delay := initialDelay
	attempt := 0

	for {
		attempt++

		db, err := Connect(cfg)
		if err == nil {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			pingErr := db.PingContext(ctx)
			cancel()
			if pingErr == nil {
				return db, nil
			}
			db.Close()
			err = pingErr
		}

		if maxRetries > 0 && attempt >= maxRetries {
			log.Printf("Failed to connect to database after %d attempts", attempt)
			return nil, err
		}

		log.Printf("Database connection failed: %v (retry in %v)", err, delay)
		time.Sleep(delay)

		// Exponential backoff capped at 60 seconds
		delay *= 2
		if delay > 60*time.Second {
			delay = 60 * time.Second
		}
	}
}
