// Package dbtest connects tests to a real PostgreSQL when one is configured.
package dbtest

import (
	"context"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/docledger/internal/platform/db"
)

// EnvDSN names the variable holding the test database DSN. PG_DSN is not used
// because test mode points it at an unreachable address.
const EnvDSN = "DOCLEDGER_TEST_PG_DSN"

var companySeq atomic.Int64

// Connect opens a migrated pool or skips t when EnvDSN is unset.
func Connect(t testing.TB) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv(EnvDSN)
	if dsn == "" {
		t.Skipf("%s not set", EnvDSN)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	pool, err := db.New(ctx, dsn, db.Options{MaxConns: 16})
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(pool.Close)
	if err := db.Migrate(ctx, pool); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return pool
}

// CompanyID returns a tenant id not used by earlier runs against the same
// database, so tests need no cleanup.
func CompanyID() int64 {
	return time.Now().UnixNano()/1000 + companySeq.Add(1)
}
