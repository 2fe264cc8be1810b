package mysql

import (
	"fmt"
	"github.com/strataops/strata/migration"
)

const DefaultCharset = "utf8mb4"

type Dialect struct {
	ledgerTable string
	charset     string
}

func NewDialect(ledgerTable, charset string) *Dialect {
	if charset == "" {
		charset = DefaultCharset
	}

	return &Dialect{ledgerTable: ledgerTable, charset: charset}
}

func (d *Dialect) InitQuery() string {
	const createLedgerSchema = `
		CREATE TABLE IF NOT EXISTS %s (
			version BIGINT UNSIGNED PRIMARY KEY,
			name VARCHAR(255) NOT NULL,
			applied_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		) ENGINE=InnoDB DEFAULT CHARSET=%s;
	`

	return fmt.Sprintf(createLedgerSchema, d.ledgerTable, d.charset)
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
	return "SHOW TABLES;"
}

func (d *Dialect) DropTableQuery(table string) string {
	return fmt.Sprintf("DROP TABLE IF EXISTS %s;", table)
}

func (d *Dialect) DisableForeignKeysQuery() string {
	return "SET FOREIGN_KEY_CHECKS = 0;"
}

func (d *Dialect) EnableForeignKeysQuery() string {
	return "SET FOREIGN_KEY_CHECKS = 1;"
}
