// Package repository implements the MySQL side of the store seam.  Each
// repository maps one table; the …Tx methods run inside a transaction
// owned by MySQLStore.InTx.  Lookups that find nothing return
// store.ErrNotFound so higher layers never depend on database/sql
// sentinels.
package repository

import (
	"database/sql"
	"errors"

	"github.com/iliyamo/cinema-seat-access/internal/store"
)

// notFound converts sql.ErrNoRows into store.ErrNotFound and leaves every
// other error untouched.
func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	return err
}
