package xa

import (
	"context"
	"sync"

	"github.com/Aidin1998/sqltx/pkg/errors"
)

// Registry drives branches keyed by xid for callers that cannot hold a
// *Session across their own async or callback boundaries (framework hooks
// that only carry an id). It maps xid -> session behind a plain mutex.
//
// The lock is never held across a backend call. Every wrapper extracts the
// session under the lock, releases the lock, performs the network round
// trip, and reinserts (or drops) the session. Holding the lock through the
// round trip would serialize every unrelated branch behind one network
// call.
//
// A second concurrent call for an in-flight xid finds no entry (it was
// extracted) and fails NotFound; the registry does not queue per key.
type Registry struct {
	participant *Participant

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewRegistry wraps a participant with xid-keyed session storage.
func NewRegistry(p *Participant) *Registry {
	return &Registry{
		participant: p,
		sessions:    make(map[string]*Session),
	}
}

// BeginXid opens a branch for xid and stores its session under the same
// key. Fails if an entry already exists for xid.
func (r *Registry) BeginXid(ctx context.Context, xid string) error {
	r.mu.Lock()
	_, exists := r.sessions[xid]
	r.mu.Unlock()
	if exists {
		return errors.Conflict.Explain("branch %q already registered", xid)
	}

	session, err := r.participant.Begin(ctx, xid)
	if err != nil {
		return err
	}

	r.mu.Lock()
	if _, exists := r.sessions[xid]; exists {
		r.mu.Unlock()
		// Lost a race to a concurrent BeginXid for the same xid. Abort the
		// branch just opened rather than orphan its connection; the branch
		// must be ended before the dialect accepts a rollback.
		if err := r.participant.End(ctx, session); err == nil {
			_ = r.participant.Rollback(ctx, session)
		}
		return errors.Conflict.Explain("branch %q already registered", xid)
	}
	r.sessions[xid] = session
	r.mu.Unlock()
	return nil
}

// EndXid runs End on the session registered for xid.
func (r *Registry) EndXid(ctx context.Context, xid string) error {
	session, err := r.extract(xid)
	if err != nil {
		return err
	}

	if err := r.participant.End(ctx, session); err != nil {
		r.reinsert(xid, session)
		return err
	}
	r.reinsert(xid, session)
	return nil
}

// PrepareXid runs Prepare on the session registered for xid.
func (r *Registry) PrepareXid(ctx context.Context, xid string) error {
	session, err := r.extract(xid)
	if err != nil {
		return err
	}

	if err := r.participant.Prepare(ctx, session); err != nil {
		r.reinsert(xid, session)
		return err
	}
	r.reinsert(xid, session)
	return nil
}

// CommitXid commits the session registered for xid and removes the entry
// permanently; the terminal operation consumes the session.
func (r *Registry) CommitXid(ctx context.Context, xid string) error {
	session, err := r.extract(xid)
	if err != nil {
		return err
	}
	return r.finishExtracted(ctx, xid, session, r.participant.Commit)
}

// RollbackXid rolls back the session registered for xid and removes the
// entry permanently.
func (r *Registry) RollbackXid(ctx context.Context, xid string) error {
	session, err := r.extract(xid)
	if err != nil {
		return err
	}
	return r.finishExtracted(ctx, xid, session, r.participant.Rollback)
}

// finishExtracted runs a terminal op on an extracted session. A rejected op
// (wrong protocol state) leaves the session live, so it goes back into the
// map with its connection intact; a terminal statement that reached the
// backend consumed the session either way, and the entry stays removed.
func (r *Registry) finishExtracted(ctx context.Context, xid string, session *Session, op func(context.Context, *Session) error) error {
	if err := op(ctx, session); err != nil {
		if !session.released {
			r.reinsert(xid, session)
		}
		return err
	}
	return nil
}

// Active reports whether a session is currently registered for xid.
func (r *Registry) Active(xid string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.sessions[xid]
	return ok
}

// extract removes and returns the session for xid under the lock.
func (r *Registry) extract(xid string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	session, ok := r.sessions[xid]
	if !ok {
		return nil, errors.NotFound.Explain("no active branch %q", xid)
	}
	delete(r.sessions, xid)
	return session, nil
}

func (r *Registry) reinsert(xid string, session *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[xid] = session
}
