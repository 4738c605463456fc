package datasource

import (
	"errors"
	"fmt"

	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
)

// DriverCode extracts a vendor error code from err, prefixed with the
// driver family ("sqlite:19", "mysql:1062", "postgres:23505").
// Returns "" when err carries no driver error.
func DriverCode(err error) string {
	if err == nil {
		return ""
	}

	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return fmt.Sprintf("sqlite:%d", int(sqliteErr.Code))
	}

	var mysqlErr *mysqldriver.MySQLError
	if errors.As(err, &mysqlErr) {
		return fmt.Sprintf("mysql:%d", mysqlErr.Number)
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return fmt.Sprintf("postgres:%s", string(pqErr.Code))
	}

	return ""
}
