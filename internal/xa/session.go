package xa

// State is the protocol state of one transaction branch. Transitions are
// strictly ordered: Idle -> Started -> Ended -> Prepared -> Committed or
// RolledBack. The terminal states are never observed on a live session
// because the operation reaching them consumes the session.
type State int

const (
	StateIdle State = iota
	StateStarted
	StateEnded
	StatePrepared
	StateCommitted
	StateRolledBack
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateStarted:
		return "STARTED"
	case StateEnded:
		return "ENDED"
	case StatePrepared:
		return "PREPARED"
	case StateCommitted:
		return "COMMITTED"
	case StateRolledBack:
		return "ROLLED_BACK"
	default:
		return "UNKNOWN"
	}
}

// Session is one transaction branch: an exclusively owned connection, the
// branch xid, and the current protocol state. All XA statements for a
// branch must run on this one connection.
//
// A Session is not safe for concurrent use; the caller serializes
// operations per xid.
type Session struct {
	conn     Conn
	xid      string
	state    State
	released bool
}

// Xid returns the branch identifier.
func (s *Session) Xid() string { return s.xid }

// State returns the current protocol state.
func (s *Session) State() State { return s.state }

// Conn exposes the branch connection for issuing ordinary statements
// between Begin and End. The connection stays owned by the session; callers
// must not release it or use it for another branch.
func (s *Session) Conn() Conn { return s.conn }

// release returns the connection to the pool exactly once.
func (s *Session) release() error {
	if s.released {
		return nil
	}
	s.released = true
	return s.conn.Release()
}
