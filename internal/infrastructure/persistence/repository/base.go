// Package repository implements the application ports on SQLite. Monetary
// amounts are stored as decimal strings and compared in Go; SQLite numeric
// affinity is never trusted with money.
package repository

import (
	"context"
	"database/sql"

	"github.com/shopspring/decimal"

	"github.com/reqflow/requisition-service/internal/infrastructure/persistence/sqlite"
)

// executor interface covers both *sql.DB and *sql.Tx
type executor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// getExecutor returns the transaction carried by the context, or the plain
// connection when the call runs outside a transaction.
func getExecutor(ctx context.Context, db *sql.DB) executor {
	if tx := sqlite.ExtractTx(ctx); tx != nil {
		return tx
	}
	return db
}

// stringArg converts an optional string into a bindable NULL-able value.
func stringArg(v *string) sql.NullString {
	if v == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *v, Valid: true}
}

// decimalArg converts an optional decimal into its canonical string form
// for storage, NULL when absent.
func decimalArg(v *decimal.Decimal) sql.NullString {
	if v == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: v.String(), Valid: true}
}
