package storage

import (
	"fmt"

	"github.com/yourname/focustracker/internal"
	"github.com/yourname/focustracker/internal/config"
)

// NewStore picks the backend from config.
func NewStore(cfg *config.Config, logger internal.Logger) (Store, error) {
	switch cfg.DBType {
	case "postgres":
		return NewPostgresStore(cfg.DBDSN, logger)
	case "file":
		return NewFileStore(cfg.DataDir, logger)
	default:
		return nil, fmt.Errorf("storage: unknown backend %q", cfg.DBType)
	}
}
