// Package database provides SQLite connectivity for the lighting core.
//
// It owns the connection lifecycle (WAL mode, busy timeout, single
// writer) and a small forward-only migration runner. The schema itself
// lives in the top-level migrations package, which embeds the SQL files
// and registers them here at init time.
//
// Migrations are additive: new columns must be nullable or carry a
// default, and every .up.sql has a matching .down.sql.
//
// Usage:
//
//	db, err := database.Open(database.Config{Path: cfg.Database.Path, WALMode: true})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
package database
