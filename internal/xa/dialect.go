// Package xa implements a two-phase-commit participant for lock-based SQL
// engines using the X/Open XA protocol. One participant drives one backend;
// a global coordinator (outside this package) decides commit or abort across
// participants once every branch has voted.
package xa

import (
	"sync"

	"github.com/Aidin1998/sqltx/pkg/errors"
)

// Dialect describes how one backend spells the XA statement set. The xid is
// always interpolated inline via QuoteXid because the XA keywords do not
// accept bound parameters; everything else uses Placeholder markers.
type Dialect interface {
	// Name identifies the backend, e.g. "mysql".
	Name() string

	// StartStmt returns the statement that opens a transaction branch.
	StartStmt(xid string) string

	// EndStmt returns the statement that ends the active branch.
	EndStmt(xid string) string

	// PrepareStmt returns the statement that durably votes to commit.
	PrepareStmt(xid string) string

	// CommitStmt returns the statement that commits a prepared branch.
	CommitStmt(xid string) string

	// CommitOnePhaseStmt returns the single-participant commit variant.
	CommitOnePhaseStmt(xid string) string

	// RollbackStmt returns the statement that rolls back a branch.
	RollbackStmt(xid string) string

	// RecoverQuery returns the query listing branches left prepared after a
	// crash. Result rows carry four fixed columns: format id, gtrid length,
	// bqual length, raw identifier bytes.
	RecoverQuery() string

	// Placeholder returns the parameter marker for position n (1-based),
	// "?" or "$1" style depending on the backend.
	Placeholder(n int) string

	// QuoteXid renders the xid as a single quoted SQL literal with the
	// backend's string-termination character neutralized. This is the only
	// injection surface in the subsystem.
	QuoteXid(xid string) string

	// RollbackBeforePrepare reports whether the backend accepts a rollback
	// from the given pre-prepare state as an abort path.
	RollbackBeforePrepare(s State) bool
}

var (
	dialectMu sync.RWMutex
	dialects  = make(map[string]Dialect)
)

// RegisterDialect makes a backend dialect available by name. Backends are
// selected at construction time; an absent backend is simply not registered.
func RegisterDialect(d Dialect) {
	dialectMu.Lock()
	defer dialectMu.Unlock()
	dialects[d.Name()] = d
}

// DialectByName returns the registered dialect for name.
func DialectByName(name string) (Dialect, error) {
	dialectMu.RLock()
	defer dialectMu.RUnlock()
	d, ok := dialects[name]
	if !ok {
		return nil, errors.NotFound.Explain("no registered dialect %q", name)
	}
	return d, nil
}
