package xa

import (
	"fmt"
	"strings"
)

// MySQLDialect spells the XA statement set for MySQL and compatible engines
// (Percona, MariaDB). MySQL requires the xid inline in the XA statements;
// the server does not accept it as a bound parameter.
type MySQLDialect struct{}

func init() {
	RegisterDialect(MySQLDialect{})
}

func (MySQLDialect) Name() string { return "mysql" }

func (d MySQLDialect) StartStmt(xid string) string {
	return fmt.Sprintf("XA START %s", d.QuoteXid(xid))
}

func (d MySQLDialect) EndStmt(xid string) string {
	return fmt.Sprintf("XA END %s", d.QuoteXid(xid))
}

func (d MySQLDialect) PrepareStmt(xid string) string {
	return fmt.Sprintf("XA PREPARE %s", d.QuoteXid(xid))
}

func (d MySQLDialect) CommitStmt(xid string) string {
	return fmt.Sprintf("XA COMMIT %s", d.QuoteXid(xid))
}

func (d MySQLDialect) CommitOnePhaseStmt(xid string) string {
	return fmt.Sprintf("XA COMMIT %s ONE PHASE", d.QuoteXid(xid))
}

func (d MySQLDialect) RollbackStmt(xid string) string {
	return fmt.Sprintf("XA ROLLBACK %s", d.QuoteXid(xid))
}

func (MySQLDialect) RecoverQuery() string { return "XA RECOVER" }

func (MySQLDialect) Placeholder(int) string { return "?" }

// QuoteXid doubles embedded single quotes and wraps the xid in single
// quotes, so any byte sequence parses as one string literal.
func (MySQLDialect) QuoteXid(xid string) string {
	return "'" + strings.ReplaceAll(xid, "'", "''") + "'"
}

// RollbackBeforePrepare: MySQL accepts XA ROLLBACK from the IDLE state
// (after XA END) as an abort-before-prepare path. From ACTIVE the server
// requires XA END first.
func (MySQLDialect) RollbackBeforePrepare(s State) bool {
	return s == StateEnded
}
