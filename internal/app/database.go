package app

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	_ "github.com/newrelic/go-agent/v3/integrations/nrpq" // Registers "nrpostgres" driver
	"github.com/newrelic/go-agent/v3/newrelic"

	"schoolbus/internal/config"
)

const (
	pingAttempts = 10
	pingBackoff  = 2 * time.Second
)

// driverName picks the instrumented driver when New Relic is on.
// "nrpostgres" is registered by the nrpq import.
func driverName(nrApp *newrelic.Application) string {
	if nrApp != nil {
		return "nrpostgres"
	}
	return "postgres"
}

// NewDatabase opens the document database, retrying the first ping while the
// server starts up. The pool is sized for one writer per vehicle step plus
// viewer reads.
func NewDatabase(ctx context.Context, cfg config.DatabaseConfig, nrApp *newrelic.Application) (*sql.DB, error) {
	db, err := sql.Open(driverName(nrApp), cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)

	var pingErr error
	for attempt := 1; attempt <= pingAttempts; attempt++ {
		if pingErr = db.PingContext(ctx); pingErr == nil {
			break
		}
		if attempt == pingAttempts {
			break
		}
		select {
		case <-ctx.Done():
			_ = db.Close()
			return nil, ctx.Err()
		case <-time.After(pingBackoff):
		}
	}
	if pingErr != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", pingErr)
	}

	return db, nil
}
