package backend

import (
	"fmt"

	"faturas/internal/config"
)

// FromAppConfig converts the application config to backend config
func FromAppConfig(appConfig *config.Config) (Config, error) {
	if appConfig == nil {
		return Config{}, fmt.Errorf("app config is nil")
	}

	backendType := BackendType(appConfig.DataBackend)
	if !backendType.IsValid() {
		return Config{}, fmt.Errorf("invalid backend type in config: %s", appConfig.DataBackend)
	}
	queueType := QueueType(appConfig.QueueBackend)
	if !queueType.IsValid() {
		return Config{}, fmt.Errorf("invalid queue type in config: %s", appConfig.QueueBackend)
	}

	return Config{
		Type:         backendType,
		SQLiteDBPath: appConfig.SQLiteDBPath,
		PostgresDSN:  appConfig.PostgresDSN,
		Queue:        queueType,
		QueueFile:    appConfig.QueueFile,
	}, nil
}

// Validate validates the backend configuration
func (c Config) Validate() error {
	if !c.Type.IsValid() {
		return fmt.Errorf("invalid backend type %q: must be one of %v", c.Type, GetBackendTypeStrings())
	}
	if !c.Queue.IsValid() {
		return fmt.Errorf("invalid queue type: %s", c.Queue)
	}

	switch c.Type {
	case SQLiteBackend:
		if c.SQLiteDBPath == "" {
			return fmt.Errorf("SQLite database path is required for sqlite backend")
		}
	case PostgresBackend:
		if c.PostgresDSN == "" {
			return fmt.Errorf("Postgres DSN is required for postgres backend")
		}
	case MemoryBackend:
		// Memory backend doesn't require additional validation
	}

	switch c.Queue {
	case SQLiteQueue:
		if c.SQLiteDBPath == "" {
			return fmt.Errorf("SQLite database path is required for sqlite queue")
		}
	case FileQueue:
		if c.QueueFile == "" {
			return fmt.Errorf("queue file path is required for file queue")
		}
	}

	return nil
}

// GetBackendTypes returns all valid backend types
func GetBackendTypes() []BackendType {
	return []BackendType{MemoryBackend, SQLiteBackend, PostgresBackend}
}

// GetBackendTypeStrings returns all valid backend type strings
func GetBackendTypeStrings() []string {
	types := GetBackendTypes()
	strings := make([]string, len(types))
	for i, t := range types {
		strings[i] = t.String()
	}
	return strings
}
