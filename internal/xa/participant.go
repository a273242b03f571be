package xa

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/Aidin1998/sqltx/pkg/errors"
	"github.com/Aidin1998/sqltx/pkg/metrics"
)

// Participant drives transaction branches against one backend. It never
// retries: every operation either succeeds or reports a definite error, so
// the coordinating layer stays in control of the two-phase contract.
type Participant struct {
	pool    Pool
	dialect Dialect
	logger  *zap.Logger
}

// NewParticipant creates a participant for the given backend pool and
// dialect.
func NewParticipant(pool Pool, dialect Dialect, logger *zap.Logger) *Participant {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Participant{
		pool:    pool,
		dialect: dialect,
		logger:  logger,
	}
}

// Dialect returns the backend dialect the participant was built with.
func (p *Participant) Dialect() Dialect { return p.dialect }

// Begin acquires a fresh connection, opens a branch for xid and returns the
// session owning that connection. The xid must be unique among branches
// currently open on this backend.
func (p *Participant) Begin(ctx context.Context, xid string) (*Session, error) {
	conn, err := p.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}

	if err := conn.Exec(ctx, p.dialect.StartStmt(xid)); err != nil {
		// The branch never opened; the connection is clean and reusable.
		_ = conn.Release()
		return nil, errors.Internal.Explain("start branch %q", xid).Wrap(err)
	}

	metrics.BranchesStarted.WithLabelValues(p.dialect.Name()).Inc()
	p.logger.Debug("started transaction branch",
		zap.String("xid", xid),
		zap.String("dialect", p.dialect.Name()))

	return &Session{conn: conn, xid: xid, state: StateStarted}, nil
}

// End closes the active phase of the branch. Requires StateStarted.
func (p *Participant) End(ctx context.Context, s *Session) error {
	if err := requireState(s, StateStarted); err != nil {
		return err
	}
	if err := s.conn.Exec(ctx, p.dialect.EndStmt(s.xid)); err != nil {
		return errors.Internal.Explain("end branch %q", s.xid).Wrap(err)
	}
	s.state = StateEnded
	p.logger.Debug("ended transaction branch", zap.String("xid", s.xid))
	return nil
}

// Prepare durably votes to commit. Requires StateEnded. After Prepare
// succeeds this participant has promised to honor a later commit decision.
func (p *Participant) Prepare(ctx context.Context, s *Session) error {
	if err := requireState(s, StateEnded); err != nil {
		return err
	}
	if err := s.conn.Exec(ctx, p.dialect.PrepareStmt(s.xid)); err != nil {
		return errors.Internal.Explain("prepare branch %q", s.xid).Wrap(err)
	}
	s.state = StatePrepared
	p.logger.Info("prepared transaction branch", zap.String("xid", s.xid))
	return nil
}

// Commit commits a prepared branch and consumes the session, returning its
// connection to the pool. Requires StatePrepared.
func (p *Participant) Commit(ctx context.Context, s *Session) error {
	if err := requireState(s, StatePrepared); err != nil {
		return err
	}
	return p.finish(ctx, s, p.dialect.CommitStmt(s.xid), StateCommitted, "two_phase")
}

// CommitOnePhase commits without a prepare vote and consumes the session.
// Requires StateEnded. Valid only when this branch is the sole participant
// of the distributed transaction; that contract belongs to the coordinator.
func (p *Participant) CommitOnePhase(ctx context.Context, s *Session) error {
	if err := requireState(s, StateEnded); err != nil {
		return err
	}
	return p.finish(ctx, s, p.dialect.CommitOnePhaseStmt(s.xid), StateCommitted, "one_phase")
}

// Rollback aborts the branch and consumes the session. Requires
// StatePrepared, or an earlier state the dialect explicitly accepts as an
// abort-before-prepare path.
func (p *Participant) Rollback(ctx context.Context, s *Session) error {
	if s == nil || s.released {
		return errors.InvalidState.Explain("session already consumed")
	}
	if s.state != StatePrepared && !p.dialect.RollbackBeforePrepare(s.state) {
		return errors.InvalidState.Explain(
			"rollback requires PREPARED, session %q is %s", s.xid, s.state)
	}
	return p.finish(ctx, s, p.dialect.RollbackStmt(s.xid), StateRolledBack, "")
}

// finish runs a terminal statement. The session is consumed either way: a
// failed terminal statement leaves the branch to the recovery scan, not to
// further use of this session.
func (p *Participant) finish(ctx context.Context, s *Session, stmt string, target State, mode string) error {
	start := time.Now()
	err := s.conn.Exec(ctx, stmt)
	metrics.CommitLatency.Observe(time.Since(start).Seconds())

	if relErr := s.release(); relErr != nil && err == nil {
		p.logger.Warn("releasing branch connection failed",
			zap.String("xid", s.xid), zap.Error(relErr))
	}
	if err != nil {
		return errors.Internal.Explain("finish branch %q", s.xid).Wrap(err)
	}

	s.state = target
	if target == StateCommitted {
		metrics.BranchesCommitted.WithLabelValues(p.dialect.Name(), mode).Inc()
		p.logger.Info("committed transaction branch",
			zap.String("xid", s.xid), zap.String("mode", mode))
	} else {
		metrics.BranchesRolledBack.WithLabelValues(p.dialect.Name()).Inc()
		p.logger.Info("rolled back transaction branch", zap.String("xid", s.xid))
	}
	return nil
}

// CommitXid commits a prepared branch identified only by xid, on a freshly
// acquired connection. This is the recovery path for branches whose
// original session is gone, e.g. after a process crash.
func (p *Participant) CommitXid(ctx context.Context, xid string) error {
	return p.execDetached(ctx, xid, p.dialect.CommitStmt(xid), "commit by xid")
}

// RollbackXid rolls back a prepared branch identified only by xid on a
// freshly acquired connection.
func (p *Participant) RollbackXid(ctx context.Context, xid string) error {
	return p.execDetached(ctx, xid, p.dialect.RollbackStmt(xid), "rollback by xid")
}

func (p *Participant) execDetached(ctx context.Context, xid, stmt, op string) error {
	conn, err := p.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()

	if err := conn.Exec(ctx, stmt); err != nil {
		return errors.Internal.Explain("%s %q", op, xid).Wrap(err)
	}
	p.logger.Info("resolved detached branch",
		zap.String("xid", xid), zap.String("op", op))
	return nil
}

func requireState(s *Session, want State) error {
	if s == nil || s.released {
		return errors.InvalidState.Explain("session already consumed")
	}
	if s.state != want {
		return errors.InvalidState.Explain(
			"operation requires %s, session %q is %s", want, s.xid, s.state)
	}
	return nil
}
