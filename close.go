package vinstore

import "context"

// Close implements io.Closer by calling Shutdown with a background context.
func (db *DB) Close() error {
	if db == nil {
		return nil
	}
	return db.Shutdown(context.Background())
}
