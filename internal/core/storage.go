package core

import (
	"fmt"
	"os"
	"strconv"

	"tbtr/internal/infra/persistence/memory"
)

// StorageDriver identifies a concrete persistent storage implementation.
type StorageDriver string

const (
	StorageMemory   StorageDriver = "memory"   // in-memory only (tests / ephemeral)
	StorageSQLite   StorageDriver = "sqlite"   // embedded sqlite file
	StoragePostgres StorageDriver = "postgres" // PostgreSQL server
)

// OpenPersistentStore selects a backend using environment variables.
// Defaults to sqlite when unset.
//
//	TBTR_STORAGE_DRIVER: memory|sqlite|postgres (default sqlite)
//	TBTR_SQLITE_PATH: path to sqlite file (default ./tbtr.db)
//	TBTR_POSTGRES_DSN: postgres DSN when driver=postgres
//	TBTR_TEMPLATE_POOL_LIMIT: maximum number of live template units
func OpenPersistentStore(engine *RulesEngine) (PersistentStore, error) {
	opts, err := storeOptionsFromEnv()
	if err != nil {
		return nil, err
	}
	driver := os.Getenv("TBTR_STORAGE_DRIVER")
	if driver == "" {
		driver = string(StorageSQLite)
	}
	switch StorageDriver(driver) {
	case StorageMemory:
		return memory.NewStore(engine, opts...), nil
	case StorageSQLite:
		ss, err := NewSQLiteStore(os.Getenv("TBTR_SQLITE_PATH"), engine, opts...)
		if err != nil {
			return nil, err
		}
		return ss, nil
	case StoragePostgres:
		ps, err := NewPostgresStore(os.Getenv("TBTR_POSTGRES_DSN"), engine, opts...)
		if err != nil {
			return nil, err
		}
		return ps, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %s", driver)
	}
}

func storeOptionsFromEnv() ([]memory.Option, error) {
	raw := os.Getenv("TBTR_TEMPLATE_POOL_LIMIT")
	if raw == "" {
		return nil, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return nil, fmt.Errorf("invalid TBTR_TEMPLATE_POOL_LIMIT %q", raw)
	}
	return []memory.Option{memory.WithUnitLimit(limit)}, nil
}
