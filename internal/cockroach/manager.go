// Package cockroach implements a client-side retrying transaction manager
// for serializable, multi-region SQL engines reached over the Postgres wire
// protocol. These engines resolve conflicts optimistically: a transaction
// that loses a read/write race fails with a retryable error and the client
// re-runs the whole transaction. There is no prepare phase and no session
// object; callers submit a unit of work and the manager owns retry,
// backoff and priority.
package cockroach

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/Aidin1998/sqltx/pkg/errors"
	"github.com/Aidin1998/sqltx/pkg/metrics"
)

// TxFunc is the unit of work. It receives the transaction handle and may be
// invoked more than once: every retry re-runs the whole function. Side
// effects outside the handle (external API calls, channel sends) are unsafe
// to retry and are the caller's responsibility to avoid.
type TxFunc func(ctx context.Context, tx pgx.Tx) error

// Beginner opens transactions. *pgxpool.Pool satisfies it.
type Beginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Config tunes the retry loop. The zero value is completed by Default
// values at construction; the struct is immutable once the manager holds it.
type Config struct {
	// MaxRetries is the number of retries after the initial attempt, so a
	// transaction runs at most MaxRetries+1 times.
	MaxRetries int
	// BaseBackoff is the delay before the first retry; each further retry
	// doubles it.
	BaseBackoff time.Duration
}

// DefaultConfig returns the deployment-neutral tuning.
func DefaultConfig() Config {
	return Config{
		MaxRetries:  3,
		BaseBackoff: 100 * time.Millisecond,
	}
}

// WithMaxRetries returns a copy with the retry budget replaced.
func (c Config) WithMaxRetries(n int) Config {
	c.MaxRetries = n
	return c
}

// WithBaseBackoff returns a copy with the base backoff replaced.
func (c Config) WithBaseBackoff(d time.Duration) Config {
	c.BaseBackoff = d
	return c
}

// ClusterInfo is informational backend metadata.
type ClusterInfo struct {
	Version  string
	NumNodes int
}

// TransactionManager executes units of work as single logical transactions
// with internal retry on serialization conflicts.
type TransactionManager struct {
	db     Beginner
	cfg    Config
	logger *zap.Logger
}

// NewTransactionManager builds a manager over db, typically a
// *pgxpool.Pool.
func NewTransactionManager(db Beginner, cfg Config, logger *zap.Logger) *TransactionManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = DefaultConfig().BaseBackoff
	}
	return &TransactionManager{db: db, cfg: cfg, logger: logger}
}

// Config returns the manager's tuning.
func (m *TransactionManager) Config() Config { return m.cfg }

// ExecuteWithRetry opens a transaction, runs fn, and commits. On a
// retryable serialization conflict the whole transaction, fn included, is
// re-run with exponential backoff until it succeeds or the budget is spent,
// which surfaces RetryExhausted wrapping the last conflict. Any other error
// rolls back and propagates immediately.
func (m *TransactionManager) ExecuteWithRetry(ctx context.Context, fn TxFunc) error {
	return m.run(ctx, "", fn)
}

// ExecuteWithPriority is ExecuteWithRetry with the backend's transaction
// priority set before the work runs. Priority is a conflict-resolution
// hint: a HIGH priority transaction tends to win races, trading retries
// here for retries elsewhere.
func (m *TransactionManager) ExecuteWithPriority(ctx context.Context, priority string, fn TxFunc) error {
	p := strings.ToUpper(strings.TrimSpace(priority))
	switch p {
	case "LOW", "NORMAL", "HIGH":
	default:
		return errors.InvalidState.Explain("invalid transaction priority %q", priority)
	}
	return m.run(ctx, p, fn)
}

func (m *TransactionManager) run(ctx context.Context, priority string, fn TxFunc) error {
	var lastErr error

	for attempt := 0; attempt <= m.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			if err := m.backoff(ctx, attempt); err != nil {
				return err
			}
			m.logger.Debug("retrying transaction",
				zap.Int("attempt", attempt+1),
				zap.Error(lastErr))
		}

		err := m.attempt(ctx, priority, fn)
		if err == nil {
			metrics.RetryAttempts.WithLabelValues("committed").Inc()
			return nil
		}
		if !IsRetryable(err) {
			metrics.RetryAttempts.WithLabelValues("fatal").Inc()
			return err
		}
		lastErr = err
	}

	metrics.RetryAttempts.WithLabelValues("exhausted").Inc()
	m.logger.Warn("transaction retry budget exhausted",
		zap.Int("attempts", m.cfg.MaxRetries+1),
		zap.Error(lastErr))
	return errors.RetryExhausted.
		Explain("transaction failed after %d attempts", m.cfg.MaxRetries+1).
		Wrap(lastErr)
}

// attempt runs one full begin/work/commit cycle. A failed attempt is always
// rolled back so no partial writes survive into the next attempt.
func (m *TransactionManager) attempt(ctx context.Context, priority string, fn TxFunc) error {
	tx, err := m.db.Begin(ctx)
	if err != nil {
		return errors.ConnectionFailed.Explain("begin transaction").Wrap(err)
	}

	if priority != "" {
		if _, err := tx.Exec(ctx, "SET TRANSACTION PRIORITY "+priority); err != nil {
			_ = tx.Rollback(ctx)
			return classify(err)
		}
	}

	if err := fn(ctx, tx); err != nil {
		_ = tx.Rollback(ctx)
		return classify(err)
	}

	if err := tx.Commit(ctx); err != nil {
		_ = tx.Rollback(ctx)
		return classify(err)
	}
	return nil
}

// maxBackoff caps the doubling; past it every retry waits the same, and the
// computed delay can never overflow into a negative duration.
const maxBackoff = time.Minute

// backoff sleeps for BaseBackoff doubled per prior retry, honoring context
// cancellation.
func (m *TransactionManager) backoff(ctx context.Context, attempt int) error {
	timer := time.NewTimer(m.backoffDelay(attempt))
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return errors.ConnectionFailed.Explain("canceled during backoff").Wrap(ctx.Err())
	case <-timer.C:
		return nil
	}
}

func (m *TransactionManager) backoffDelay(attempt int) time.Duration {
	delay := m.cfg.BaseBackoff
	for i := 1; i < attempt && delay < maxBackoff; i++ {
		delay *= 2
	}
	if delay > maxBackoff {
		delay = maxBackoff
	}
	return delay
}

// GetClusterInfo reports backend version and node count. Purely
// informational; failures to count nodes degrade to zero rather than error,
// since older single-node deployments hide the gossip table.
func (m *TransactionManager) GetClusterInfo(ctx context.Context) (*ClusterInfo, error) {
	info := &ClusterInfo{}

	err := m.ExecuteWithRetry(ctx, func(ctx context.Context, tx pgx.Tx) error {
		var raw string
		if err := tx.QueryRow(ctx, "SELECT version()").Scan(&raw); err != nil {
			return err
		}
		info.Version = versionToken(raw)

		var nodes int
		if err := tx.QueryRow(ctx, "SELECT count(*) FROM crdb_internal.gossip_nodes").Scan(&nodes); err == nil {
			info.NumNodes = nodes
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return info, nil
}

// AsOfSystemTimeSQL rewrites a read-only query to run against the
// historical snapshot at the given interval, e.g. "-5s". A read-side
// consistency tool: the rewritten query is not transactional.
func (m *TransactionManager) AsOfSystemTimeSQL(query, interval string) string {
	return fmt.Sprintf("%s AS OF SYSTEM TIME '%s'", query, strings.ReplaceAll(interval, "'", "''"))
}

// versionToken extracts the "vX.Y.Z" token from a version() banner like
// "CockroachDB CCL v23.1.0 (...)". Falls back to the raw banner when no
// token matches.
func versionToken(raw string) string {
	for _, f := range strings.Fields(raw) {
		if len(f) > 1 && f[0] == 'v' && f[1] >= '0' && f[1] <= '9' {
			return f
		}
	}
	return raw
}
