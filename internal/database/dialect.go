package database

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// Dialect identifies the SQL flavour behind a *sql.DB.
type Dialect string

const (
	DialectMySQL  Dialect = "mysql"
	DialectSQLite Dialect = "sqlite"
)

// IsSQLite reports whether d is the SQLite dialect.
func (d Dialect) IsSQLite() bool { return d == DialectSQLite }

// UpsertSuffix returns the clause that turns an INSERT into an upsert keyed
// on conflictCol, updating the listed columns from the inserted row.
func (d Dialect) UpsertSuffix(conflictCol string, cols ...string) string {
	sets := make([]string, 0, len(cols))
	if d.IsSQLite() {
		for _, c := range cols {
			sets = append(sets, fmt.Sprintf("%s=excluded.%s", c, c))
		}
		return fmt.Sprintf("ON CONFLICT(%s) DO UPDATE SET %s", conflictCol, strings.Join(sets, ", "))
	}
	for _, c := range cols {
		sets = append(sets, fmt.Sprintf("%s=VALUES(%s)", c, c))
	}
	return "ON DUPLICATE KEY UPDATE " + strings.Join(sets, ", ")
}

// LikeExpr returns a case-insensitive LIKE predicate for column.
func (d Dialect) LikeExpr(column string) string {
	return fmt.Sprintf("LOWER(%s) LIKE ?", column)
}

// IsUniqueViolation reports whether err was caused by a unique index or
// primary key conflict.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		return me.Number == 1062
	}
	var se *sqlite.Error
	if errors.As(err, &se) {
		switch se.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return true
		}
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint failed") || strings.Contains(msg, "duplicate entry")
}
