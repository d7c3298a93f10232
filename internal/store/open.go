package store

import (
	"github.com/cockroachdb/errors"

	"adsync/internal/config"
)

// Open returns the sink selected by the warehouse configuration.
func Open(cfg config.Warehouse) (Sink, error) {
	switch cfg.Driver {
	case "sqlite":
		return OpenSQLSink(SQLite, cfg.DSN, cfg.Table)
	case "postgres":
		return OpenSQLSink(Postgres, cfg.DSN, cfg.Table)
	case "parquet":
		return NewParquetSink(cfg.DataDir, cfg.Table), nil
	default:
		return nil, errors.Newf("unknown warehouse driver %q", cfg.Driver)
	}
}
