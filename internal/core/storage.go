package core

import (
	"fmt"
	"os"

	"go.uber.org/zap"

	"spacecore/internal/infra/persistence/jsonfile"
	"spacecore/internal/infra/persistence/memory"
	"spacecore/internal/infra/persistence/postgres"
	"spacecore/internal/infra/persistence/sqlite"
)

// StorageDriver identifies a concrete persistent storage implementation.
type StorageDriver string

const (
	StorageMemory   StorageDriver = "memory"   // in-memory only (tests / ephemeral)
	StorageJSONFile StorageDriver = "jsonfile" // single JSON document (default)
	StorageSQLite   StorageDriver = "sqlite"   // embedded sqlite file
	StoragePostgres StorageDriver = "postgres" // PostgreSQL server
)

func newMemoryStore(engine *RulesEngine) PersistentStore {
	return memory.NewStore(engine)
}

// OpenPersistentStore selects a backend using environment variables.
// Defaults to the JSON document store when unset.
//
//	SPACECORE_STORAGE_DRIVER: memory|jsonfile|sqlite|postgres (default jsonfile)
//	SPACECORE_JSON_PATH: path to the JSON document (default ./spaces.json)
//	SPACECORE_SQLITE_PATH: path to sqlite file (default ./spacecore.db)
//	SPACECORE_POSTGRES_DSN: postgres DSN when driver=postgres
func OpenPersistentStore(engine *RulesEngine, logger *zap.Logger) (PersistentStore, error) {
	driver := os.Getenv("SPACECORE_STORAGE_DRIVER")
	if driver == "" {
		driver = string(StorageJSONFile)
	}
	switch StorageDriver(driver) {
	case StorageMemory:
		return memory.NewStore(engine), nil
	case StorageJSONFile:
		return jsonfile.NewStore(os.Getenv("SPACECORE_JSON_PATH"), engine, logger)
	case StorageSQLite:
		return sqlite.NewStore(os.Getenv("SPACECORE_SQLITE_PATH"), engine)
	case StoragePostgres:
		return postgres.NewStore(os.Getenv("SPACECORE_POSTGRES_DSN"), engine)
	default:
		return nil, fmt.Errorf("unknown storage driver %s", driver)
	}
}
