package storage

import "fmt"

// Store backends selectable from configuration
const (
	BackendMemory   = "memory"
	BackendSQLite   = DriverSQLite
	BackendPostgres = DriverPostgres
)

// Open returns the Store for backend. SQL backends are migrated on open.
func Open(backend string, cfg DBConfig) (Store, error) {
	switch backend {
	case BackendMemory:
		return NewMemoryStore(), nil
	case BackendSQLite, BackendPostgres:
		cfg.Driver = backend
		return OpenSQLStore(cfg)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, backend)
	}
}
