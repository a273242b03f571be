package xa

import (
	"context"
	"database/sql"

	"gorm.io/gorm"

	"github.com/Aidin1998/sqltx/pkg/errors"
)

// Pool hands out connections for exclusive use. A connection acquired for a
// transaction branch belongs to that branch alone until the session reaches
// a terminal state; it must not be shared or returned early.
type Pool interface {
	Acquire(ctx context.Context) (Conn, error)
}

// Conn is a dedicated backend connection.
type Conn interface {
	// Exec runs a statement. XA control statements carry no bound
	// parameters; args serve the ordinary statements issued through the
	// session during the branch.
	Exec(ctx context.Context, query string, args ...any) error

	// Query runs a query and returns its rows.
	Query(ctx context.Context, query string, args ...any) (Rows, error)

	// Release returns the connection to its pool.
	Release() error
}

// Rows is the minimal row cursor the recovery scan needs.
type Rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close() error
}

// SQLPool adapts a *sql.DB to Pool. Each Acquire pins a dedicated *sql.Conn,
// which is the property XA depends on: every statement of a branch must run
// on the same server connection.
type SQLPool struct {
	db *sql.DB
}

// NewSQLPool wraps an open database handle. The caller registers the
// concrete driver (e.g. a MySQL driver) as with any database/sql use.
func NewSQLPool(db *sql.DB) *SQLPool {
	return &SQLPool{db: db}
}

// NewSQLPoolFromGorm unwraps the *sql.DB behind a gorm handle so XA branches
// can share the pool an ORM layer already owns.
func NewSQLPoolFromGorm(gdb *gorm.DB) (*SQLPool, error) {
	db, err := gdb.DB()
	if err != nil {
		return nil, errors.ConnectionFailed.Explain("unwrap gorm handle").Wrap(err)
	}
	return &SQLPool{db: db}, nil
}

func (p *SQLPool) Acquire(ctx context.Context) (Conn, error) {
	c, err := p.db.Conn(ctx)
	if err != nil {
		return nil, errors.ConnectionFailed.Explain("acquire connection").Wrap(err)
	}
	return &sqlConn{conn: c}, nil
}

type sqlConn struct {
	conn *sql.Conn
}

func (c *sqlConn) Exec(ctx context.Context, query string, args ...any) error {
	_, err := c.conn.ExecContext(ctx, query, args...)
	return err
}

func (c *sqlConn) Query(ctx context.Context, query string, args ...any) (Rows, error) {
	rows, err := c.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (c *sqlConn) Release() error {
	return c.conn.Close()
}
