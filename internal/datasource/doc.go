// Package datasource provides physical database connections for sessions.
//
// A DataSource hands out Connections. A Connection is one pooled
// database/sql connection with explicit transaction demarcation on top:
//
//   - Auto-commit mode: every statement runs directly on the connection.
//   - Manual-commit mode: the first statement (or Begin) opens a database
//     transaction that stays open until Commit or Rollback.
//
// Switching a connection back to auto-commit commits any open transaction.
// Closing a connection rolls back any open transaction and returns it to the
// pool.
//
// # Dialects
//
// Pool construction goes through a Dialect, which knows the database/sql
// driver name and how to build a DSN from Options:
//
//   - sqlite:   github.com/mattn/go-sqlite3 (WAL, busy timeout, foreign keys)
//   - mysql:    github.com/go-sql-driver/mysql
//   - postgres: github.com/lib/pq
//
// DriverCode extracts vendor error codes from any of the three drivers.
package datasource
