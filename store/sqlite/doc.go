// Package sqlite provides a SQLite checkpoint store using github.com/mattn/go-sqlite3.
//
// It suits single-node deployments that want checkpoints to survive restarts
// without running a database server:
//
//	s, err := sqlite.NewSqliteCheckpointStore(sqlite.SqliteOptions{Path: "./fabflow.db"})
package sqlite
