package storage

import "fmt"

// NewStore selects a backend by name. An empty kind falls back to the
// in-memory store; "sqlite" requires a build with the sqlite tag.
func NewStore(kind, sqlitePath string) (Store, error) {
	switch kind {
	case "", "memory":
		return NewMemoryStore(), nil
	case "sqlite":
		return newSQLiteStore(sqlitePath)
	}
	return nil, fmt.Errorf("unknown store kind %q (want memory or sqlite)", kind)
}

// CloseIfSupported closes backends that hold external resources.
func CloseIfSupported(store Store) error {
	if closer, ok := store.(interface{ Close() error }); ok {
		return closer.Close()
	}
	return nil
}
