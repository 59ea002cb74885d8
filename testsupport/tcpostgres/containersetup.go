package tcpostgres

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/docker/go-connections/nat"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const defaultImage = "postgres:17-alpine"

// PostgresContainer is a started postgres container
type PostgresContainer struct {
	testcontainers.Container
	user     string
	password string
	dbName   string
}

type containerConfig struct {
	req      testcontainers.ContainerRequest
	user     string
	password string
	dbName   string
}

type PostgresContainerOption func(cfg *containerConfig)

func WithImage(image string) PostgresContainerOption {
	return func(cfg *containerConfig) {
		cfg.req.Image = image
	}
}

func WithStartupTimeout(d time.Duration) PostgresContainerOption {
	return func(cfg *containerConfig) {
		cfg.req.WaitingFor = wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(d)
	}
}

func WithName(containerName string) PostgresContainerOption {
	return func(cfg *containerConfig) {
		cfg.req.Name = containerName
	}
}

func WithInitialDatabase(user, password, dbName string) PostgresContainerOption {
	return func(cfg *containerConfig) {
		cfg.user, cfg.password, cfg.dbName = user, password, dbName
	}
}

// SetupPostgres starts (or reuses) a postgres container.
// The image may be overridden by TESTDB_IMAGE.
func SetupPostgres(ctx context.Context, opts ...PostgresContainerOption) (
	*PostgresContainer, error,
) {
	cfg := &containerConfig{
		req: testcontainers.ContainerRequest{
			Image:        defaultImage,
			ExposedPorts: []string{"5432/tcp"},
			Cmd:          []string{"postgres", "-c", "fsync=off"},
		},
		user:     "postgres",
		password: "password",
		dbName:   "postgres",
	}
	if image := os.Getenv("TESTDB_IMAGE"); image != "" {
		cfg.req.Image = image
	}
	WithStartupTimeout(30 * time.Second)(cfg)
	for _, opt := range opts {
		opt(cfg)
	}
	cfg.req.Env = map[string]string{
		"POSTGRES_USER":     cfg.user,
		"POSTGRES_PASSWORD": cfg.password,
		"POSTGRES_DB":       cfg.dbName,
	}

	container, err := testcontainers.GenericContainer(
		ctx,
		testcontainers.GenericContainerRequest{
			ContainerRequest: cfg.req,
			Started:          true,
			Reuse:            cfg.req.Name != "",
		})
	if err != nil {
		return nil, err
	}
	return &PostgresContainer{
		Container: container,
		user:      cfg.user,
		password:  cfg.password,
		dbName:    cfg.dbName,
	}, nil
}

// ConnectionURL returns the url to reach the database from the host
func (c *PostgresContainer) ConnectionURL(ctx context.Context) (string, error) {
	port, err := c.MappedPort(ctx, nat.Port("5432/tcp"))
	if err != nil {
		return "", err
	}
	host, err := c.Host(ctx)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("postgresql://%s:%s@%s:%s/%s",
		c.user, c.password, host, port.Port(), c.dbName), nil
}
