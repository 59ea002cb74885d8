package testdb

import (
	"context"
	"log"
	"os"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	tcpg "github.com/mpapenbr/selfdriving-car-go/testsupport/tcpostgres"
)

var (
	once sync.Once
	pool *pgxpool.Pool
)

// InitTestDb returns a pool to an empty, migrated test database.
// The pool is shared by all tests of a package. TESTDB_URL selects an
// external database instead of a container.
func InitTestDb() *pgxpool.Pool {
	once.Do(func() {
		if os.Getenv("TESTDB_URL") != "" {
			pool = tcpg.SetupExternalTestDb()
		} else {
			pool = tcpg.SetupTestDb()
		}
	})
	if err := pgx.BeginFunc(context.Background(), pool, func(tx pgx.Tx) error {
		return tcpg.ClearAllTables(context.Background(), tx)
	}); err != nil {
		log.Fatalf("initTestDb: %v\n", err)
	}
	return pool
}
