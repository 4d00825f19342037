package core

import (
	"tbtr/internal/infra/persistence/memory"
	"tbtr/internal/infra/persistence/postgres"
)

// NewPostgresStore constructs a Postgres-backed template store from the provided DSN.
func NewPostgresStore(dsn string, engine *RulesEngine, opts ...memory.Option) (*postgres.Store, error) {
	return postgres.NewStore(dsn, engine, opts...)
}
