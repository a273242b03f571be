package xa

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// fakeBackend emulates a MySQL-style XA engine: it parses the statements a
// participant issues and keeps per-xid branch state, so tests exercise the
// real statement generation and quoting instead of stubbing call results.
type fakeBackend struct {
	mu       sync.Mutex
	branches map[string]string // xid -> active | idle | prepared

	acquireErr   error
	failRollback map[string]bool
	acquired     int
	released     int
	execLog      []string

	// When set, Exec signals execStarted and then blocks until execGate is
	// closed, letting tests observe in-flight operations.
	execGate    chan struct{}
	execStarted chan struct{}
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		branches:     make(map[string]string),
		failRollback: make(map[string]bool),
	}
}

func (b *fakeBackend) Acquire(ctx context.Context) (Conn, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.acquireErr != nil {
		return nil, b.acquireErr
	}
	b.acquired++
	return &fakeConn{backend: b}, nil
}

func (b *fakeBackend) state(xid string) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.branches[xid]
}

func (b *fakeBackend) openConns() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.acquired - b.released
}

type fakeConn struct {
	backend *fakeBackend
	closed  bool
}

func (c *fakeConn) Release() error {
	c.backend.mu.Lock()
	defer c.backend.mu.Unlock()
	if c.closed {
		return fmt.Errorf("double release")
	}
	c.closed = true
	c.backend.released++
	return nil
}

func (c *fakeConn) Exec(ctx context.Context, query string, args ...any) error {
	b := c.backend
	b.mu.Lock()
	gate, started := b.execGate, b.execStarted
	b.mu.Unlock()
	if started != nil {
		started <- struct{}{}
	}
	if gate != nil {
		<-gate
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if c.closed {
		return fmt.Errorf("connection closed")
	}
	b.execLog = append(b.execLog, query)

	onePhase := strings.HasSuffix(query, " ONE PHASE")
	stmt := strings.TrimSuffix(query, " ONE PHASE")

	verb, xid, err := parseXAStatement(stmt)
	if err != nil {
		return err
	}

	switch verb {
	case "START":
		if _, exists := b.branches[xid]; exists {
			return fmt.Errorf("XAER_DUPID: xid %q already exists", xid)
		}
		b.branches[xid] = "active"
	case "END":
		if b.branches[xid] != "active" {
			return fmt.Errorf("XAER_RMFAIL: xid %q not active", xid)
		}
		b.branches[xid] = "idle"
	case "PREPARE":
		if b.branches[xid] != "idle" {
			return fmt.Errorf("XAER_RMFAIL: xid %q not idle", xid)
		}
		b.branches[xid] = "prepared"
	case "COMMIT":
		want := "prepared"
		if onePhase {
			want = "idle"
		}
		if st, exists := b.branches[xid]; !exists {
			return fmt.Errorf("XAER_NOTA: unknown xid %q", xid)
		} else if st != want {
			return fmt.Errorf("XAER_RMFAIL: xid %q is %s, want %s", xid, st, want)
		}
		delete(b.branches, xid)
	case "ROLLBACK":
		if b.failRollback[xid] {
			return fmt.Errorf("RMFAIL: rollback of %q refused", xid)
		}
		st, exists := b.branches[xid]
		if !exists {
			return fmt.Errorf("XAER_NOTA: unknown xid %q", xid)
		}
		if st != "prepared" && st != "idle" {
			return fmt.Errorf("XAER_RMFAIL: xid %q is %s", xid, st)
		}
		delete(b.branches, xid)
	default:
		return fmt.Errorf("unsupported statement %q", query)
	}
	return nil
}

func (c *fakeConn) Query(ctx context.Context, query string, args ...any) (Rows, error) {
	b := c.backend
	b.mu.Lock()
	defer b.mu.Unlock()
	if query != "XA RECOVER" {
		return nil, fmt.Errorf("unsupported query %q", query)
	}
	var rows [][]any
	for xid, st := range b.branches {
		if st != "prepared" {
			continue
		}
		rows = append(rows, []any{int64(1), int64(len(xid)), int64(0), []byte(xid)})
	}
	return &fakeRows{rows: rows, idx: -1}, nil
}

// parseXAStatement splits "XA <VERB> '<quoted xid>'" and unquotes the xid
// the way the server's parser would, so malformed quoting fails the test.
func parseXAStatement(stmt string) (verb, xid string, err error) {
	if !strings.HasPrefix(stmt, "XA ") {
		return "", "", fmt.Errorf("not an XA statement: %q", stmt)
	}
	rest := stmt[len("XA "):]
	sp := strings.IndexByte(rest, ' ')
	if sp < 0 {
		return "", "", fmt.Errorf("malformed XA statement: %q", stmt)
	}
	verb = rest[:sp]
	lit := rest[sp+1:]
	if len(lit) < 2 || lit[0] != '\'' || lit[len(lit)-1] != '\'' {
		return "", "", fmt.Errorf("xid is not a quoted literal: %q", lit)
	}
	inner := lit[1 : len(lit)-1]
	// A lone quote inside the literal means the statement would not have
	// parsed as a single string.
	if strings.Count(inner, "'")%2 != 0 {
		return "", "", fmt.Errorf("unbalanced quoting in %q", lit)
	}
	for i := 0; i < len(inner)-1; i++ {
		if inner[i] == '\'' && inner[i+1] != '\'' {
			return "", "", fmt.Errorf("unescaped quote in %q", lit)
		}
		if inner[i] == '\'' {
			i++
		}
	}
	return verb, strings.ReplaceAll(inner, "''", "'"), nil
}

type fakeRows struct {
	rows [][]any
	idx  int
}

func (r *fakeRows) Next() bool {
	r.idx++
	return r.idx < len(r.rows)
}

func (r *fakeRows) Scan(dest ...any) error {
	row := r.rows[r.idx]
	if len(dest) != len(row) {
		return fmt.Errorf("scan expects %d destinations, got %d", len(row), len(dest))
	}
	for i, src := range row {
		switch d := dest[i].(type) {
		case *int64:
			*d = src.(int64)
		case *[]byte:
			*d = src.([]byte)
		default:
			return fmt.Errorf("unsupported scan destination %T", dest[i])
		}
	}
	return nil
}

func (r *fakeRows) Err() error   { return nil }
func (r *fakeRows) Close() error { return nil }
