// ABOUTME: Idempotent upsert helper keyed on external CRM ids
// ABOUTME: Falls back to select-then-write when the conflict target is unusable
package db

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"
)

// Upsert inserts a row into table, updating updateCols from the incoming
// values when a row with the same conflictCol already exists. columns[0] must
// be the row id column; conflictCol must appear in columns. When the backend
// rejects the conflict target (no matching unique constraint), the write is
// retried as select-by-key then update-by-row-id or insert. That path is not
// atomic; callers serialize writes per external id space.
func Upsert(db *sql.DB, table string, columns []string, values []any, conflictCol string, updateCols []string) error {
	if len(columns) != len(values) {
		return fmt.Errorf("upsert %s: %d columns but %d values", table, len(columns), len(values))
	}

	placeholders := make([]string, len(columns))
	for i := range columns {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}

	sets := make([]string, len(updateCols))
	for i, col := range updateCols {
		sets[i] = fmt.Sprintf("%s = excluded.%s", col, col)
	}

	query := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) DO UPDATE SET %s",
		table,
		strings.Join(columns, ", "),
		strings.Join(placeholders, ", "),
		conflictCol,
		strings.Join(sets, ", "),
	)

	if _, err := db.Exec(query, values...); err != nil {
		if IsMissingConflictTarget(err) {
			return fallbackUpsert(db, table, columns, values, conflictCol, updateCols)
		}
		return err
	}

	return nil
}

// IsMissingConflictTarget reports whether err means the backend could not use
// the ON CONFLICT target: Postgres 42P10, or SQLite's equivalent message.
func IsMissingConflictTarget(err error) bool {
	if err == nil {
		return false
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "42P10"
	}

	return strings.Contains(err.Error(), "ON CONFLICT clause does not match")
}

func fallbackUpsert(db *sql.DB, table string, columns []string, values []any, conflictCol string, updateCols []string) error {
	keyIdx := columnIndex(columns, conflictCol)
	if keyIdx < 0 {
		return fmt.Errorf("upsert %s: conflict column %s not in column list", table, conflictCol)
	}

	idCol := columns[0]
	var rowID string

	err := db.QueryRow(
		fmt.Sprintf("SELECT %s FROM %s WHERE %s = $1", idCol, table, conflictCol),
		values[keyIdx],
	).Scan(&rowID)

	if err == sql.ErrNoRows {
		query := fmt.Sprintf(
			"INSERT INTO %s (%s) VALUES (%s)",
			table,
			strings.Join(columns, ", "),
			placeholderList(len(columns)),
		)
		_, err := db.Exec(query, values...)
		return err
	}
	if err != nil {
		return err
	}

	sets := make([]string, len(updateCols))
	args := make([]any, 0, len(updateCols)+1)
	for i, col := range updateCols {
		idx := columnIndex(columns, col)
		if idx < 0 {
			return fmt.Errorf("upsert %s: update column %s not in column list", table, col)
		}
		sets[i] = fmt.Sprintf("%s = $%d", col, i+1)
		args = append(args, values[idx])
	}
	args = append(args, rowID)

	query := fmt.Sprintf(
		"UPDATE %s SET %s WHERE %s = $%d",
		table,
		strings.Join(sets, ", "),
		idCol,
		len(args),
	)
	_, err = db.Exec(query, args...)
	return err
}

func columnIndex(columns []string, name string) int {
	for i, col := range columns {
		if col == name {
			return i
		}
	}
	return -1
}

func placeholderList(n int) string {
	placeholders := make([]string, n)
	for i := range placeholders {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}
	return strings.Join(placeholders, ", ")
}
