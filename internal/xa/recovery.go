package xa

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/Aidin1998/sqltx/pkg/errors"
	"github.com/Aidin1998/sqltx/pkg/metrics"
)

// TransactionInfo is one row of the backend's recovery query: a branch that
// was prepared but never resolved, typically because a coordinator or
// process crashed between the vote and the decision. It carries no link to
// any live session.
type TransactionInfo struct {
	// FormatID is the XA format identifier.
	FormatID int64
	// GtridLength is the length of the global transaction id portion.
	GtridLength int64
	// BqualLength is the length of the branch qualifier portion.
	BqualLength int64
	// Data holds the raw identifier bytes.
	Data []byte
	// Xid is the best-effort string decoding of Data.
	Xid string
}

// ListPreparedTransactions scans the backend for branches left in the
// prepared state. It assumes nothing about live sessions; this is the one
// operation that can observe branches orphaned by a crash.
func (p *Participant) ListPreparedTransactions(ctx context.Context) ([]TransactionInfo, error) {
	conn, err := p.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, p.dialect.RecoverQuery())
	if err != nil {
		return nil, errors.Internal.Explain("recovery query").Wrap(err)
	}
	defer rows.Close()

	metrics.RecoveryScans.Inc()

	var infos []TransactionInfo
	for rows.Next() {
		var info TransactionInfo
		if err := rows.Scan(&info.FormatID, &info.GtridLength, &info.BqualLength, &info.Data); err != nil {
			return nil, errors.Internal.Explain("scan recovery row").Wrap(err)
		}
		info.Xid = decodeXid(info.Data)
		infos = append(infos, info)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Internal.Explain("recovery rows").Wrap(err)
	}

	p.logger.Debug("scanned prepared branches", zap.Int("count", len(infos)))
	return infos, nil
}

// FindPreparedTransaction returns the recovery record for xid, or NotFound
// when the backend holds no prepared branch under that id.
func (p *Participant) FindPreparedTransaction(ctx context.Context, xid string) (*TransactionInfo, error) {
	infos, err := p.ListPreparedTransactions(ctx)
	if err != nil {
		return nil, err
	}
	for i := range infos {
		if infos[i].Xid == xid {
			return &infos[i], nil
		}
	}
	return nil, errors.NotFound.Explain("no prepared branch %q", xid)
}

// CleanupStaleTransactions rolls back every prepared branch whose xid
// starts with prefix and returns how many were actually rolled back.
// Individual rollback failures are logged and skipped so a partial sweep
// never aborts the whole pass. The prefix is the only staleness filter;
// callers own the blast radius of the prefix they choose.
func (p *Participant) CleanupStaleTransactions(ctx context.Context, prefix string) (int, error) {
	infos, err := p.ListPreparedTransactions(ctx)
	if err != nil {
		return 0, err
	}

	cleaned := 0
	for _, info := range infos {
		if !strings.HasPrefix(info.Xid, prefix) {
			continue
		}
		if err := p.RollbackXid(ctx, info.Xid); err != nil {
			p.logger.Warn("stale branch rollback failed",
				zap.String("xid", info.Xid), zap.Error(err))
			continue
		}
		cleaned++
		metrics.StaleBranchesSwept.Inc()
	}

	p.logger.Info("stale branch sweep finished",
		zap.String("prefix", prefix), zap.Int("cleaned", cleaned))
	return cleaned, nil
}

// decodeXid turns raw identifier bytes into an xid string. The conversion
// keeps every byte, including invalid UTF-8, so the result round-trips into
// commit and rollback statements unchanged.
func decodeXid(data []byte) string {
	return string(data)
}
