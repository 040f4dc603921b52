package settings

import "sundial-hq/aperture/pkg/config"

// NewStore creates the Store selected by the settings configuration.
func NewStore(cfg *config.SettingsConfig) (Store, error) {
	switch cfg.Backend {
	case "sqlite":
		return NewSQLiteStore(cfg.Path)
	case "memory":
		return NewMemoryStore(), nil
	default:
		return NewFileStore(cfg.Path)
	}
}
