package sqlite

import (
	"fmt"
	"github.com/strataops/strata/migration"
)

type Dialect struct {
	ledgerTable string
}

func NewDialect(ledgerTable string) *Dialect {
	return &Dialect{ledgerTable: ledgerTable}
}

func (d *Dialect) InitQuery() string {
	const createLedgerSchema = `
		CREATE TABLE IF NOT EXISTS %s (
			version BIGINT PRIMARY KEY,
			name VARCHAR(255) NOT NULL,
			applied_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
	`

	return fmt.Sprintf(createLedgerSchema, d.ledgerTable)
}

func (d *Dialect) InsertQuery(r migration.Record) (string, []interface{}) {
	q := fmt.Sprintf("INSERT INTO %s (version, name, applied_at) VALUES (?, ?, ?);", d.ledgerTable)
	return q, []interface{}{uint64(r.Version), r.Name, r.AppliedAt}
}

func (d *Dialect) RemoveQuery(v migration.Version) (string, []interface{}) {
	q := fmt.Sprintf("DELETE FROM %s WHERE version = ?;", d.ledgerTable)
	return q, []interface{}{uint64(v)}
}

func (d *Dialect) ReadQuery() string {
	return fmt.Sprintf("SELECT version, name, applied_at FROM %s ORDER BY version ASC;", d.ledgerTable)
}

func (d *Dialect) DropLedgerQuery() string {
	return fmt.Sprintf("DROP TABLE IF EXISTS %s;", d.ledgerTable)
}

func (d *Dialect) ShowTablesQuery() string {
	return "SELECT name FROM sqlite_master WHERE type='table' AND name NOT LIKE 'sqlite_%' ORDER BY name;"
}

func (d *Dialect) DropTableQuery(table string) string {
	return fmt.Sprintf("DROP TABLE IF EXISTS %s;", table)
}

func (d *Dialect) DisableForeignKeysQuery() string {
	return "PRAGMA foreign_keys = OFF;"
}

func (d *Dialect) EnableForeignKeysQuery() string {
	return "PRAGMA foreign_keys = ON;"
}
