package tcpostgres

import (
	"context"
	"log"
	"os"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mpapenbr/selfdriving-car-go/pkg/db/migrate"
	database "github.com/mpapenbr/selfdriving-car-go/pkg/db/postgres"
)

// SetupTestDb starts the shared test container and returns a migrated pool
func SetupTestDb() *pgxpool.Pool {
	ctx := context.Background()
	container, err := SetupPostgres(ctx, WithName("selfdriving-car-test"))
	if err != nil {
		log.Fatal(err)
	}
	dbURL, err := container.ConnectionURL(ctx)
	if err != nil {
		log.Fatal(err)
	}
	return initPool(dbURL)
}

// SetupExternalTestDb uses the database given by TESTDB_URL
func SetupExternalTestDb() *pgxpool.Pool {
	return initPool(os.Getenv("TESTDB_URL"))
}

func initPool(dbURL string) *pgxpool.Pool {
	if err := migrate.MigrateDb(dbURL); err != nil {
		log.Fatal(err)
	}
	pool, err := database.InitWithURL(context.Background(), dbURL)
	if err != nil {
		log.Fatal(err)
	}
	return pool
}

// ClearAllTables removes all rows, children first
func ClearAllTables(ctx context.Context, tx pgx.Tx) error {
	for _, table := range []string{"episode", "training_run"} {
		if _, err := tx.Exec(ctx, "delete from "+table); err != nil {
			return err
		}
	}
	return nil
}
